package store

import (
	"time"

	"upsbox/internal/device"
)

// Settings is the persisted overlay applied on top of the file configuration.
// Nil fields were never saved.
type Settings struct {
	DeviceName *string                `json:"device_name,omitempty"`
	Network    *device.NetworkSetting `json:"network,omitempty"`
	Broker     *device.Broker         `json:"broker,omitempty"`
}

// Change is one entry of the persisted change log.
type Change struct {
	Seq   uint64    `json:"seq"`
	Kind  string    `json:"kind"`
	Value string    `json:"value"`
	At    time.Time `json:"at"`
}

// LoadSettings reads every saved setting. Missing settings are left nil.
func LoadSettings(s Store) (Settings, error) {
	var out Settings
	if name, err := s.DeviceName(); err == nil {
		out.DeviceName = &name
	} else if !isNotFound(err) {
		return out, err
	}
	if ns, err := s.Network(); err == nil {
		out.Network = &ns
	} else if !isNotFound(err) {
		return out, err
	}
	if b, err := s.Broker(); err == nil {
		out.Broker = &b
	} else if !isNotFound(err) {
		return out, err
	}
	return out, nil
}
