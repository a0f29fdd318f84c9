package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"upsbox/internal/device"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testNetwork(t *testing.T) device.NetworkSetting {
	t.Helper()
	ns, err := device.ParseNetworkSetting("192.168.1.50", "255.255.255.0", "192.168.1.1")
	if err != nil {
		t.Fatal(err)
	}
	return ns
}

func TestSettingsNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.DeviceName(); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeviceName err = %v, want ErrNotFound", err)
	}
	if _, err := s.Network(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Network err = %v, want ErrNotFound", err)
	}
	if _, err := s.Broker(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Broker err = %v, want ErrNotFound", err)
	}

	settings, err := LoadSettings(s)
	if err != nil {
		t.Fatal(err)
	}
	if settings.DeviceName != nil || settings.Network != nil || settings.Broker != nil {
		t.Errorf("settings = %+v, want empty", settings)
	}
}

func TestSaveAndLoadSettings(t *testing.T) {
	s := newTestStore(t)
	ns := testNetwork(t)
	broker := device.Broker{Host: "broker.local", Port: 8883}

	if err := s.SaveDeviceName("rack-3"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveNetwork(ns); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveBroker(broker); err != nil {
		t.Fatal(err)
	}

	settings, err := LoadSettings(s)
	if err != nil {
		t.Fatal(err)
	}
	if settings.DeviceName == nil || *settings.DeviceName != "rack-3" {
		t.Errorf("device name = %v", settings.DeviceName)
	}
	if settings.Network == nil || *settings.Network != ns {
		t.Errorf("network = %v, want %v", settings.Network, ns)
	}
	if settings.Broker == nil || *settings.Broker != broker {
		t.Errorf("broker = %v, want %v", settings.Broker, broker)
	}
}

func TestSettingsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveDeviceName("persisted"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	name, err := s.DeviceName()
	if err != nil {
		t.Fatal(err)
	}
	if name != "persisted" {
		t.Errorf("name = %q, want %q", name, "persisted")
	}
}

func TestChangesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	for _, v := range []string{"a", "b", "c"} {
		if err := s.AppendChange(Change{Kind: "device_name", Value: v}); err != nil {
			t.Fatal(err)
		}
	}

	changes, err := s.Changes(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 {
		t.Fatalf("len = %d, want 2", len(changes))
	}
	if changes[0].Value != "c" || changes[0].Seq != 3 {
		t.Errorf("changes[0] = %+v", changes[0])
	}
	if changes[1].Value != "b" {
		t.Errorf("changes[1] = %+v", changes[1])
	}

	all, err := s.Changes(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestWriterApply(t *testing.T) {
	s := newTestStore(t)
	w := NewWriter(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return at }

	ns := testNetwork(t)
	msgs := []device.SaveMsg{
		device.DeviceNameMsg("rack-3"),
		device.NetMsg(ns),
		device.BrokerMsg(device.Broker{Host: "10.0.0.5", Port: 1883}),
	}
	for _, m := range msgs {
		if err := w.Apply(m); err != nil {
			t.Fatalf("Apply(%v): %v", m.Kind, err)
		}
	}
	if err := w.Apply(device.SaveMsg{}); err == nil {
		t.Error("Apply(zero) should fail")
	}

	if got, _ := s.Network(); got != ns {
		t.Errorf("network = %v, want %v", got, ns)
	}
	changes, err := s.Changes(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 3 {
		t.Fatalf("changes = %d, want 3", len(changes))
	}
	if c := changes[0]; c.Kind != "broker" || c.Value != "10.0.0.5 : 1883" || !c.At.Equal(at) {
		t.Errorf("latest change = %+v", c)
	}
	if c := changes[1]; c.Kind != "net" || c.Value != ns.String() {
		t.Errorf("net change = %+v", c)
	}
}

func TestWriterRun(t *testing.T) {
	s := newTestStore(t)
	w := NewWriter(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	msgs := make(chan device.SaveMsg, 1)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), msgs)
		close(done)
	}()

	msgs <- device.NetMsg(device.NetworkSetting{
		IP:      netip.MustParseAddr("10.0.0.2"),
		Prefix:  8,
		Gateway: netip.MustParseAddr("10.0.0.1"),
	})
	close(msgs)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
	if ns, err := s.Network(); err != nil || ns.Prefix != 8 {
		t.Errorf("network = %v, %v", ns, err)
	}
}

func TestWriterDrain(t *testing.T) {
	s := newTestStore(t)
	w := NewWriter(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	msgs := make(chan device.SaveMsg, 2)
	msgs <- device.DeviceNameMsg("first")
	msgs <- device.DeviceNameMsg("second")

	w.Drain(msgs)
	if name, _ := s.DeviceName(); name != "second" {
		t.Errorf("name = %q, want last write to win", name)
	}
	if len(msgs) != 0 {
		t.Errorf("%d messages left", len(msgs))
	}
}
