package device

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidHost is returned when a broker host is neither a DNS name nor an IPv4 literal.
var ErrInvalidHost = errors.New("host parse error")

// Broker is the upstream MQTT broker endpoint. Port 0 means "no port configured".
type Broker struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(true),
	idna.ValidateLabels(true),
	idna.VerifyDNSLength(true),
	idna.BidiRule(),
)

// NewBroker validates host and returns a Broker. Hosts must be a syntactically
// valid domain name or an IPv4 literal.
func NewBroker(host string, port uint16) (Broker, error) {
	if !ValidHost(host) {
		return Broker{}, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return Broker{Host: host, Port: port}, nil
}

// ValidHost reports whether host is an IPv4 literal or has valid domain syntax.
func ValidHost(host string) bool {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Is4()
	}
	return validDomain(host)
}

func validDomain(host string) bool {
	if host == "" || strings.HasSuffix(host, ".") {
		return false
	}
	ascii, err := hostProfile.ToASCII(host)
	if err != nil {
		return false
	}
	labels := strings.Split(ascii, ".")
	for _, l := range labels {
		if !validLabel(l) {
			return false
		}
	}
	// A numeric top-level label is an address fragment, not a domain.
	tld := labels[len(labels)-1]
	return strings.Trim(tld, "0123456789") != ""
}

func validLabel(l string) bool {
	if l == "" || len(l) > 63 || l[0] == '-' || l[len(l)-1] == '-' {
		return false
	}
	for i := 0; i < len(l); i++ {
		c := l[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return true
}

// String formats the endpoint as "host" or "host : port".
func (b Broker) String() string {
	if b.Port == 0 {
		return b.Host
	}
	return fmt.Sprintf("%s : %d", b.Host, b.Port)
}

// URL returns the paho broker URL, using defaultPort when no port is configured.
func (b Broker) URL(defaultPort uint16) string {
	port := b.Port
	if port == 0 {
		port = defaultPort
	}
	return "tcp://" + net.JoinHostPort(b.Host, strconv.Itoa(int(port)))
}
