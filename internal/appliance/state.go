package appliance

import (
	"sync"

	"upsbox/internal/device"
)

// StatusHistorySize is the number of status snapshots retained.
const StatusHistorySize = 5

// State is the shared device state. All methods are safe for concurrent use;
// writers hold the lock only for a field assignment or a buffer push.
type State struct {
	mu         sync.RWMutex
	deviceName string
	broker     device.Broker
	history    []string
}

// NewState creates the state from the initial configuration.
func NewState(deviceName string, broker device.Broker) *State {
	return &State{
		deviceName: deviceName,
		broker:     broker,
		history:    make([]string, 0, StatusHistorySize),
	}
}

func (s *State) DeviceName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceName
}

func (s *State) Broker() device.Broker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broker
}

// StatusSnapshot returns the retained status strings, oldest first.
func (s *State) StatusSnapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

func (s *State) SetDeviceName(name string) {
	s.mu.Lock()
	s.deviceName = name
	s.mu.Unlock()
}

// SetBroker replaces the broker endpoint. b must come from device.NewBroker.
func (s *State) SetBroker(b device.Broker) {
	s.mu.Lock()
	s.broker = b
	s.mu.Unlock()
}

// PushStatus appends a snapshot, evicting the oldest once the history is full.
func (s *State) PushStatus(status string) {
	s.mu.Lock()
	if len(s.history) == StatusHistorySize {
		copy(s.history, s.history[1:])
		s.history[StatusHistorySize-1] = status
	} else {
		s.history = append(s.history, status)
	}
	s.mu.Unlock()
}
