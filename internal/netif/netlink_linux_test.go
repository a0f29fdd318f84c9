//go:build linux

package netif

import (
	"net"
	"net/netip"
	"testing"

	"github.com/vishvananda/netlink"
)

func TestToPrefix(t *testing.T) {
	_, ipnet, _ := net.ParseCIDR("192.168.1.0/24")
	ipnet.IP = net.ParseIP("192.168.1.50")
	p, ok := toPrefix(ipnet)
	if !ok {
		t.Fatal("toPrefix rejected IPv4 net")
	}
	if p != netip.MustParsePrefix("192.168.1.50/24") {
		t.Errorf("prefix = %s", p)
	}

	_, v6, _ := net.ParseCIDR("fe80::1/64")
	if _, ok := toPrefix(v6); ok {
		t.Error("toPrefix accepted IPv6 net")
	}
	if _, ok := toPrefix(nil); ok {
		t.Error("toPrefix accepted nil")
	}
}

func TestIsDefault(t *testing.T) {
	_, zero, _ := net.ParseCIDR("0.0.0.0/0")
	_, lan, _ := net.ParseCIDR("192.168.1.0/24")
	tests := []struct {
		name  string
		route netlink.Route
		want  bool
	}{
		{"nil dst", netlink.Route{}, true},
		{"zero dst", netlink.Route{Dst: zero}, true},
		{"lan dst", netlink.Route{Dst: lan}, false},
	}
	for _, tt := range tests {
		if got := isDefault(tt.route); got != tt.want {
			t.Errorf("%s: isDefault = %v, want %v", tt.name, got, tt.want)
		}
	}
}
