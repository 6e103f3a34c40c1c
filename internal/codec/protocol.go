package codec

import (
	"fmt"
	"strings"

	"github.com/robgonnella/lanmap/internal/exception"
)

// Protocol identifies a discovery protocol
type Protocol int

const (
	// ARP address resolution probing
	ARP Protocol = iota
	// ICMP echo probing
	ICMP
	// DNS reverse lookups against the configured resolver
	DNS
	// MDNS reverse and service lookups sent to the host itself
	MDNS
)

// AllProtocols every supported protocol in probing order
var AllProtocols = []Protocol{ARP, ICMP, DNS, MDNS}

func (p Protocol) String() string {
	switch p {
	case ARP:
		return "arp"
	case ICMP:
		return "icmp"
	case DNS:
		return "dns"
	case MDNS:
		return "mdns"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// Discovery reports whether the protocol establishes liveness on its
// own. Name protocols are only worth sending once a host is known to exist.
func (p Protocol) Discovery() bool {
	return p == ARP || p == ICMP
}

// ParseProtocol returns the protocol matching name
func ParseProtocol(name string) (Protocol, error) {
	for _, p := range AllProtocols {
		if strings.EqualFold(strings.TrimSpace(name), p.String()) {
			return p, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", exception.ErrUnsupportedProtocol, name)
}

// ParseProtocols parses a list of protocol names, dropping duplicates
func ParseProtocols(names []string) ([]Protocol, error) {
	seen := map[Protocol]bool{}
	protocols := []Protocol{}

	for _, name := range names {
		p, err := ParseProtocol(name)

		if err != nil {
			return nil, err
		}

		if seen[p] {
			continue
		}

		seen[p] = true
		protocols = append(protocols, p)
	}

	return protocols, nil
}
