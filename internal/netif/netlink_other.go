//go:build !linux

package netif

import (
	"log/slog"
	"net/netip"
)

// Netlink is unavailable outside Linux; every primitive fails with ErrUnsupported.
type Netlink struct{}

func NewNetlink(_ *slog.Logger) (*Netlink, error) {
	return nil, ErrUnsupported
}

func (*Netlink) Addrs(string) ([]netip.Prefix, error)                 { return nil, ErrUnsupported }
func (*Netlink) SetAddr(string, netip.Addr, netip.Addr, int) error    { return ErrUnsupported }
func (*Netlink) DefaultGateway() (netip.Addr, error)                  { return netip.Addr{}, ErrUnsupported }
func (*Netlink) ReplaceDefaultRoute(string, netip.Addr) error         { return ErrUnsupported }
func (*Netlink) Close() error                                         { return nil }
