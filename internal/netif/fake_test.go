package netif

import (
	"errors"
	"net/netip"
	"testing"
)

func TestFakeSetAddrKeepsConfigAddress(t *testing.T) {
	cfg := netip.MustParsePrefix("192.168.254.254/24")
	f := NewFake("eth0", cfg, netip.MustParsePrefix("10.0.0.2/8"))

	if err := f.SetAddr("eth0", cfg.Addr(), netip.MustParseAddr("192.168.1.50"), 24); err != nil {
		t.Fatal(err)
	}
	got, _ := f.Addrs("eth0")
	want := []netip.Prefix{cfg, netip.MustParsePrefix("192.168.1.50/24")}
	if len(got) != len(want) {
		t.Fatalf("Addrs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Addrs[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// Applying the same binding again changes nothing.
	if err := f.SetAddr("eth0", cfg.Addr(), netip.MustParseAddr("192.168.1.50"), 24); err != nil {
		t.Fatal(err)
	}
	again, _ := f.Addrs("eth0")
	if len(again) != 2 {
		t.Errorf("Addrs after repeat = %v", again)
	}
}

func TestFakeGateway(t *testing.T) {
	f := NewFake("eth0")
	if _, err := f.DefaultGateway(); !errors.Is(err, ErrNoDefaultRoute) {
		t.Errorf("err = %v, want ErrNoDefaultRoute", err)
	}
	gw := netip.MustParseAddr("192.168.1.1")
	if err := f.ReplaceDefaultRoute("eth0", gw); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.DefaultGateway(); got != gw {
		t.Errorf("gateway = %v, want %v", got, gw)
	}
	if n := len(f.RouteCalls()); n != 1 {
		t.Errorf("route calls = %d, want 1", n)
	}
}

func TestFakeSetAddrRejectsConfigAddress(t *testing.T) {
	cfg := netip.MustParsePrefix("192.168.254.254/24")
	f := NewFake("eth0", cfg)

	err := f.SetAddr("eth0", cfg.Addr(), cfg.Addr(), 24)
	if !errors.Is(err, ErrKeepAddress) {
		t.Fatalf("err = %v, want ErrKeepAddress", err)
	}
	if got, _ := f.Addrs("eth0"); len(got) != 1 || got[0] != cfg {
		t.Errorf("Addrs = %v, want only the config binding", got)
	}
}
