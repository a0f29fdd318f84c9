package device

import (
	"errors"
	"fmt"
	"math/bits"
	"net/netip"
)

var (
	ErrInvalidAddress        = errors.New("invalid IPv4 address")
	ErrInvalidMask           = errors.New("invalid subnet mask")
	ErrGatewayOutsideNetwork = errors.New("gateway is not in this ip network")
)

// NetworkSetting is a validated IPv4 host configuration.
type NetworkSetting struct {
	IP      netip.Addr `json:"ip"`
	Prefix  int        `json:"prefix"`
	Gateway netip.Addr `json:"gateway"`
}

// Network returns the network ip/prefix belongs to.
func (n NetworkSetting) Network() netip.Prefix {
	return netip.PrefixFrom(n.IP, n.Prefix).Masked()
}

// Mask returns the dotted-decimal mask of the setting.
func (n NetworkSetting) Mask() netip.Addr {
	return PrefixToMask(n.Prefix)
}

func (n NetworkSetting) String() string {
	return fmt.Sprintf("%s/%d via %s", n.IP, n.Prefix, n.Gateway)
}

// ParseNetworkSetting parses the textual ip/mask/gateway triple and checks
// that the gateway lies inside ip/prefix.
func ParseNetworkSetting(ip, mask, gateway string) (NetworkSetting, error) {
	maskAddr, err := parseIPv4(mask)
	if err != nil {
		return NetworkSetting{}, fmt.Errorf("%w: %q", ErrInvalidMask, mask)
	}
	prefix, err := MaskToPrefix(maskAddr)
	if err != nil {
		return NetworkSetting{}, err
	}
	addr, err := parseIPv4(ip)
	if err != nil {
		return NetworkSetting{}, fmt.Errorf("ip: %w", err)
	}
	gw, err := parseIPv4(gateway)
	if err != nil {
		return NetworkSetting{}, fmt.Errorf("gateway: %w", err)
	}
	return NewNetworkSetting(addr, prefix, gw)
}

// NewNetworkSetting builds a setting from parsed values, enforcing gateway membership.
func NewNetworkSetting(ip netip.Addr, prefix int, gateway netip.Addr) (NetworkSetting, error) {
	if !ip.Is4() || !gateway.Is4() {
		return NetworkSetting{}, ErrInvalidAddress
	}
	if prefix < 0 || prefix > 32 {
		return NetworkSetting{}, fmt.Errorf("%w: prefix %d", ErrInvalidMask, prefix)
	}
	ns := NetworkSetting{IP: ip, Prefix: prefix, Gateway: gateway}
	if gateway.IsLoopback() || !ns.Network().Contains(gateway) {
		return NetworkSetting{}, fmt.Errorf("%w: %s not in %s", ErrGatewayOutsideNetwork, gateway, ns.Network())
	}
	return ns, nil
}

// MaskToPrefix converts a contiguous dotted-decimal mask to a prefix length.
func MaskToPrefix(mask netip.Addr) (int, error) {
	if !mask.Is4() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidMask, mask)
	}
	b := mask.As4()
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	ones := bits.LeadingZeros32(^v)
	if v<<ones != 0 {
		return 0, fmt.Errorf("%w: %s is not contiguous", ErrInvalidMask, mask)
	}
	return ones, nil
}

// PrefixToMask converts a prefix length (0..32) to a dotted-decimal mask.
func PrefixToMask(prefix int) netip.Addr {
	if prefix <= 0 {
		return netip.AddrFrom4([4]byte{})
	}
	if prefix > 32 {
		prefix = 32
	}
	v := ^uint32(0) << (32 - prefix)
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return addr, nil
}
