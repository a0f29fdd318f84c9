//go:build linux

package netif

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Netlink implements Manager on top of a rtnetlink socket.
type Netlink struct {
	h      *netlink.Handle
	logger *slog.Logger
}

// NewNetlink opens a netlink handle in the current network namespace.
func NewNetlink(logger *slog.Logger) (*Netlink, error) {
	h, err := netlink.NewHandle(unix.NETLINK_ROUTE)
	if err != nil {
		return nil, fmt.Errorf("netlink handle: %w", err)
	}
	return &Netlink{h: h, logger: logger.With("component", "netif")}, nil
}

func (n *Netlink) Addrs(ifname string) ([]netip.Prefix, error) {
	link, err := n.h.LinkByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", ifname, err)
	}
	return linkOps{n, link}.list()
}

func (n *Netlink) SetAddr(ifname string, keep, addr netip.Addr, prefix int) error {
	link, err := n.h.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("link %s: %w", ifname, err)
	}
	want := netip.PrefixFrom(addr, prefix)
	if err := replaceAddr(linkOps{n, link}, keep, want); err != nil {
		return fmt.Errorf("set %s on %s: %w", want, ifname, err)
	}
	n.logger.Info("address set", "iface", ifname, "addr", want.String())
	return nil
}

// linkOps binds addrOps to one link.
type linkOps struct {
	n    *Netlink
	link netlink.Link
}

func (o linkOps) list() ([]netip.Prefix, error) {
	addrs, err := o.n.h.AddrList(o.link, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("list addrs %s: %w", o.link.Attrs().Name, err)
	}
	out := make([]netip.Prefix, 0, len(addrs))
	for _, a := range addrs {
		if p, ok := toPrefix(a.IPNet); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (o linkOps) add(p netip.Prefix) error {
	return o.n.h.AddrAdd(o.link, toAddr(p))
}

func (o linkOps) del(p netip.Prefix) error {
	if err := o.n.h.AddrDel(o.link, toAddr(p)); err != nil {
		return err
	}
	o.n.logger.Debug("address removed", "iface", o.link.Attrs().Name, "addr", p.String())
	return nil
}

func (n *Netlink) DefaultGateway() (netip.Addr, error) {
	routes, err := n.h.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("list routes: %w", err)
	}
	for _, r := range routes {
		if !isDefault(r) || r.Gw == nil {
			continue
		}
		if gw, ok := netip.AddrFromSlice(r.Gw.To4()); ok {
			return gw, nil
		}
	}
	return netip.Addr{}, ErrNoDefaultRoute
}

func (n *Netlink) ReplaceDefaultRoute(ifname string, gw netip.Addr) error {
	link, err := n.h.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("link %s: %w", ifname, err)
	}
	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       &net.IPNet{IP: net.IPv4zero.To4(), Mask: net.CIDRMask(0, 32)},
		Gw:        net.IP(gw.AsSlice()),
		Scope:     netlink.SCOPE_UNIVERSE,
		Table:     unix.RT_TABLE_MAIN,
	}
	if err := n.h.RouteReplace(route); err != nil {
		return fmt.Errorf("replace default route via %s: %w", gw, err)
	}
	n.logger.Info("default route replaced", "iface", ifname, "gateway", gw.String())
	return nil
}

func (n *Netlink) Close() error {
	n.h.Close()
	return nil
}

func isDefault(r netlink.Route) bool {
	if r.Dst == nil {
		return true
	}
	ones, _ := r.Dst.Mask.Size()
	return ones == 0 && r.Dst.IP.IsUnspecified()
}

func toPrefix(ipnet *net.IPNet) (netip.Prefix, bool) {
	if ipnet == nil {
		return netip.Prefix{}, false
	}
	addr, ok := netip.AddrFromSlice(ipnet.IP.To4())
	if !ok {
		return netip.Prefix{}, false
	}
	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(addr, ones), true
}

func toAddr(p netip.Prefix) *netlink.Addr {
	return &netlink.Addr{IPNet: &net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), 32),
	}}
}
