// Package netif exposes the four OS network primitives the appliance needs:
// listing interface addresses, replacing an interface address, reading the
// default gateway and replacing the default route.
package netif

import (
	"errors"
	"net/netip"
)

var (
	// ErrNoDefaultRoute is returned by DefaultGateway when no IPv4 default route exists.
	ErrNoDefaultRoute = errors.New("no default route")
	// ErrUnsupported is returned on platforms without a netlink implementation.
	ErrUnsupported = errors.New("network configuration not supported on this platform")
)

// Manager manipulates IPv4 interface addresses and the default route.
type Manager interface {
	// Addrs lists the IPv4 bindings of the interface.
	Addrs(ifname string) ([]netip.Prefix, error)
	// SetAddr binds addr/prefix to the interface. The keep address is left
	// untouched; every other IPv4 binding is replaced. Binding an address that
	// is already present is a no-op.
	SetAddr(ifname string, keep, addr netip.Addr, prefix int) error
	// DefaultGateway returns the gateway of the first IPv4 default route.
	DefaultGateway() (netip.Addr, error)
	// ReplaceDefaultRoute points the default route at gw through the interface.
	ReplaceDefaultRoute(ifname string, gw netip.Addr) error
	Close() error
}
