// Package store persists the device settings that survive a restart.
package store

import (
	"errors"

	"upsbox/internal/device"
)

// ErrNotFound is returned when a requested setting has never been saved.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	SaveDeviceName(name string) error
	DeviceName() (string, error)

	SaveNetwork(ns device.NetworkSetting) error
	Network() (device.NetworkSetting, error)

	SaveBroker(b device.Broker) error
	Broker() (device.Broker, error)

	// AppendChange records an applied save in the change log.
	AppendChange(c Change) error
	// Changes returns at most limit entries, newest first.
	Changes(limit int) ([]Change, error)

	Close() error
}
