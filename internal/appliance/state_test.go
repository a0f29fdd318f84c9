package appliance

import (
	"fmt"
	"sync"
	"testing"

	"upsbox/internal/device"
)

func TestStatusHistoryFIFO(t *testing.T) {
	s := NewState("ups-box", device.Broker{})
	for _, v := range []string{"a", "b", "c", "d", "e", "f"} {
		s.PushStatus(v)
	}
	got := s.StatusSnapshot()
	want := []string{"b", "c", "d", "e", "f"}
	if len(got) != len(want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("snapshot[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStatusSnapshotIsCopy(t *testing.T) {
	s := NewState("ups-box", device.Broker{})
	s.PushStatus("a")
	snap := s.StatusSnapshot()
	snap[0] = "mutated"
	if got := s.StatusSnapshot()[0]; got != "a" {
		t.Errorf("history modified through snapshot: %q", got)
	}
}

func TestStatusHistoryConcurrentPush(t *testing.T) {
	s := NewState("ups-box", device.Broker{})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.PushStatus(fmt.Sprintf("s%d", i))
			_ = s.StatusSnapshot()
		}(i)
	}
	wg.Wait()
	got := s.StatusSnapshot()
	if len(got) != StatusHistorySize {
		t.Fatalf("len = %d, want %d", len(got), StatusHistorySize)
	}
	seen := make(map[string]bool, len(got))
	for _, v := range got {
		var i int
		if _, err := fmt.Sscanf(v, "s%d", &i); err != nil || i < 0 || i >= 100 {
			t.Errorf("entry %q was never pushed", v)
		}
		if seen[v] {
			t.Errorf("entry %q appears twice in %v", v, got)
		}
		seen[v] = true
	}
}

func TestStateSetters(t *testing.T) {
	s := NewState("old", device.Broker{Host: "a.example"})
	s.SetDeviceName("new")
	s.SetBroker(device.Broker{Host: "b.example", Port: 1883})
	if s.DeviceName() != "new" {
		t.Errorf("DeviceName = %q", s.DeviceName())
	}
	if b := s.Broker(); b.Host != "b.example" || b.Port != 1883 {
		t.Errorf("Broker = %+v", b)
	}
}
