package netif

import (
	"fmt"
	"net/netip"
	"slices"
	"sync"
)

// SetAddrCall records one Fake.SetAddr invocation.
type SetAddrCall struct {
	Ifname string
	Keep   netip.Addr
	Addr   netip.Addr
	Prefix int
}

// Fake is an in-memory Manager for tests and for running off-target.
// SetAddr goes through the same replacement sequence as Netlink.
type Fake struct {
	mu      sync.Mutex
	addrs   map[string][]netip.Prefix
	gateway netip.Addr

	// Injected failures, returned by the corresponding method when set.
	AddrsErr   error
	SetAddrErr error
	GatewayErr error
	RouteErr   error

	setAddrCalls []SetAddrCall
	routeCalls   []netip.Addr
}

// NewFake creates a Fake with the given bindings on ifname.
func NewFake(ifname string, addrs ...netip.Prefix) *Fake {
	return &Fake{addrs: map[string][]netip.Prefix{ifname: slices.Clone(addrs)}}
}

func (f *Fake) Addrs(ifname string) ([]netip.Prefix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddrsErr != nil {
		return nil, f.AddrsErr
	}
	return slices.Clone(f.addrs[ifname]), nil
}

func (f *Fake) SetAddr(ifname string, keep, addr netip.Addr, prefix int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setAddrCalls = append(f.setAddrCalls, SetAddrCall{ifname, keep, addr, prefix})
	if f.SetAddrErr != nil {
		return f.SetAddrErr
	}
	if f.addrs == nil {
		f.addrs = make(map[string][]netip.Prefix)
	}
	return replaceAddr(fakeOps{f, ifname}, keep, netip.PrefixFrom(addr, prefix))
}

// fakeOps edits the bindings of one fake interface. The caller holds f.mu.
type fakeOps struct {
	f      *Fake
	ifname string
}

func (o fakeOps) list() ([]netip.Prefix, error) {
	return slices.Clone(o.f.addrs[o.ifname]), nil
}

func (o fakeOps) add(p netip.Prefix) error {
	if slices.Contains(o.f.addrs[o.ifname], p) {
		return fmt.Errorf("%s: address exists", p)
	}
	o.f.addrs[o.ifname] = append(o.f.addrs[o.ifname], p)
	return nil
}

func (o fakeOps) del(p netip.Prefix) error {
	i := slices.Index(o.f.addrs[o.ifname], p)
	if i < 0 {
		return fmt.Errorf("%s: address not found", p)
	}
	o.f.addrs[o.ifname] = slices.Delete(o.f.addrs[o.ifname], i, i+1)
	return nil
}

func (f *Fake) DefaultGateway() (netip.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GatewayErr != nil {
		return netip.Addr{}, f.GatewayErr
	}
	if !f.gateway.IsValid() {
		return netip.Addr{}, ErrNoDefaultRoute
	}
	return f.gateway, nil
}

func (f *Fake) ReplaceDefaultRoute(ifname string, gw netip.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routeCalls = append(f.routeCalls, gw)
	if f.RouteErr != nil {
		return f.RouteErr
	}
	f.gateway = gw
	return nil
}

func (f *Fake) Close() error { return nil }

// SetGateway sets the default gateway without recording a route call.
func (f *Fake) SetGateway(gw netip.Addr) {
	f.mu.Lock()
	f.gateway = gw
	f.mu.Unlock()
}

// Fail sets the injected errors under the lock.
func (f *Fake) Fail(setAddr, route error) {
	f.mu.Lock()
	f.SetAddrErr = setAddr
	f.RouteErr = route
	f.mu.Unlock()
}

// SetAddrCalls returns the recorded SetAddr invocations.
func (f *Fake) SetAddrCalls() []SetAddrCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SetAddrCall(nil), f.setAddrCalls...)
}

// RouteCalls returns the gateways passed to ReplaceDefaultRoute.
func (f *Fake) RouteCalls() []netip.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]netip.Addr(nil), f.routeCalls...)
}
