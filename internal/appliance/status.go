package appliance

import (
	"strings"

	"upsbox/internal/device"
)

// Status is the read-only view served by GET /api/status.
type Status struct {
	HostName    string `json:"host_name"`
	HostIP      string `json:"host_ip"`
	HostMask    string `json:"host_mask"`
	GatewayIP   string `json:"gateway_ip"`
	Broker      string `json:"broker"`
	PowerStatus string `json:"power_status"`
}

// Status assembles the current view. Failed lookups yield empty fields.
func (a *Appliance) Status() Status {
	var ips, masks []string
	for _, p := range a.hostAddrs() {
		ips = append(ips, p.Addr().String())
		masks = append(masks, device.PrefixToMask(p.Bits()).String())
	}

	var gateway string
	if gw, err := a.netif.DefaultGateway(); err == nil {
		gateway = gw.String()
	} else {
		a.logger.Debug("default gateway lookup", "err", err)
	}

	history := a.state.StatusSnapshot()
	tokens := make([]string, len(history))
	for i, s := range history {
		tokens[i] = "[" + s + "]"
	}

	return Status{
		HostName:    a.state.DeviceName(),
		HostIP:      strings.Join(ips, "  "),
		HostMask:    strings.Join(masks, "  "),
		GatewayIP:   gateway,
		Broker:      a.state.Broker().String(),
		PowerStatus: strings.Join(tokens, " "),
	}
}
