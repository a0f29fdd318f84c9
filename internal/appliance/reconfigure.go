package appliance

import (
	"fmt"
	"net/netip"

	"upsbox/internal/device"
	"upsbox/internal/netif"
)

// NetworkRequest is the textual network change submitted by a client.
type NetworkRequest struct {
	IP      string `json:"ip"`
	Mask    string `json:"mask"`
	Gateway string `json:"gateway"`
}

// ApplyNetwork validates req and reconfigures the interface:
// validate, notify the transport and wait the grace period, set the address,
// replace the default route, then enqueue the setting for persistence.
// The first failing step aborts the run. Runs are serialized.
func (a *Appliance) ApplyNetwork(req NetworkRequest) (device.NetworkSetting, error) {
	a.reconfMu.Lock()
	defer a.reconfMu.Unlock()

	ns, err := device.ParseNetworkSetting(req.IP, req.Mask, req.Gateway)
	if err != nil {
		a.logger.Warn("network setting rejected", "ip", req.IP, "mask", req.Mask, "gateway", req.Gateway, "err", err)
		a.metrics.NetworkChange("invalid")
		return device.NetworkSetting{}, fmt.Errorf("%w: %w", ErrInvalidSetting, err)
	}
	if ns.IP == a.cfg.ConfigIP {
		a.logger.Warn("network setting rejected: configuration address", "ip", req.IP)
		a.metrics.NetworkChange("invalid")
		return device.NetworkSetting{}, fmt.Errorf("%w: %w", ErrInvalidSetting, netif.ErrKeepAddress)
	}

	// Give the broker transport a chance to disconnect cleanly before the
	// address under it disappears.
	if err := send(a, a.netNotify, ns, "net_notify"); err != nil {
		a.logger.Warn("network change notification not delivered", "err", err)
	} else {
		a.sleep(a.cfg.GracePeriod)
	}

	previous := a.hostAddrs()

	if err := a.netif.SetAddr(a.cfg.Interface, a.cfg.ConfigIP, ns.IP, ns.Prefix); err != nil {
		a.logger.Error("set interface address", "iface", a.cfg.Interface, "setting", ns.String(), "err", err)
		a.metrics.NetworkChange("apply_failed")
		return device.NetworkSetting{}, fmt.Errorf("%w: set address: %w", ErrApply, err)
	}

	if err := a.netif.ReplaceDefaultRoute(a.cfg.Interface, ns.Gateway); err != nil {
		a.logger.Error("replace default route", "iface", a.cfg.Interface, "gateway", ns.Gateway.String(), "err", err)
		a.rollback(previous, ns)
		a.metrics.NetworkChange("route_failed")
		return device.NetworkSetting{}, fmt.Errorf("%w: replace default route: %w", ErrApply, err)
	}

	if err := send(a, a.save, device.NetMsg(ns), "save"); err != nil {
		a.logger.Warn("network setting not queued for saving", "setting", ns.String(), "err", err)
	}

	a.logger.Info("network reconfigured", "setting", ns.String())
	a.metrics.NetworkChange("ok")
	a.events.Emit(Event{Type: EventNetwork, Data: ns})
	return ns, nil
}

// RestoreNetwork re-applies a persisted setting at startup. Nothing is
// notified or persisted.
func (a *Appliance) RestoreNetwork(ns device.NetworkSetting) error {
	a.reconfMu.Lock()
	defer a.reconfMu.Unlock()

	if err := a.netif.SetAddr(a.cfg.Interface, a.cfg.ConfigIP, ns.IP, ns.Prefix); err != nil {
		return fmt.Errorf("%w: set address: %w", ErrApply, err)
	}
	if err := a.netif.ReplaceDefaultRoute(a.cfg.Interface, ns.Gateway); err != nil {
		return fmt.Errorf("%w: replace default route: %w", ErrApply, err)
	}
	a.logger.Info("network restored", "setting", ns.String())
	a.events.Emit(Event{Type: EventNetwork, Data: ns})
	return nil
}

// rollback restores the first host binding that existed before a failed run.
func (a *Appliance) rollback(previous []netip.Prefix, failed device.NetworkSetting) {
	if len(previous) == 0 {
		a.logger.Warn("no previous address to restore", "iface", a.cfg.Interface)
		return
	}
	p := previous[0]
	if p == netip.PrefixFrom(failed.IP, failed.Prefix) {
		return
	}
	if err := a.netif.SetAddr(a.cfg.Interface, a.cfg.ConfigIP, p.Addr(), p.Bits()); err != nil {
		a.logger.Error("restore previous address", "iface", a.cfg.Interface, "addr", p.String(), "err", err)
		return
	}
	a.logger.Warn("previous address restored after route failure", "iface", a.cfg.Interface, "addr", p.String())
}

// hostAddrs lists the interface bindings other than the configuration address.
func (a *Appliance) hostAddrs() []netip.Prefix {
	addrs, err := a.netif.Addrs(a.cfg.Interface)
	if err != nil {
		a.logger.Debug("list interface addresses", "iface", a.cfg.Interface, "err", err)
		return nil
	}
	out := make([]netip.Prefix, 0, len(addrs))
	for _, p := range addrs {
		if p.Addr() != a.cfg.ConfigIP {
			out = append(out, p)
		}
	}
	return out
}
