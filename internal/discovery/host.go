package discovery

import (
	"encoding/json"
	"net"
	"net/netip"
	"strings"

	"github.com/robgonnella/lanmap/internal/codec"
)

// Host the public record for one discovered address. Every field but
// Vendor is derived from a HostState by Materialize. Vendor is looked up
// from the MAC prefix when the scanner has a vendor repo.
type Host struct {
	IP       netip.Addr
	MAC      net.HardwareAddr
	Vendor   string
	Hostname string
	Services []string
}

type hostJSON struct {
	IP       string   `json:"ip"`
	MAC      string   `json:"mac,omitempty"`
	Vendor   string   `json:"vendor,omitempty"`
	Hostname string   `json:"hostname,omitempty"`
	Services []string `json:"services,omitempty"`
}

// MarshalJSON renders the MAC in its usual colon separated form
func (h Host) MarshalJSON() ([]byte, error) {
	out := hostJSON{
		IP:       h.IP.String(),
		Vendor:   h.Vendor,
		Hostname: h.Hostname,
		Services: h.Services,
	}

	if len(h.MAC) > 0 {
		out.MAC = h.MAC.String()
	}

	return json.Marshal(out)
}

// hostname sources in order of preference
var nameSources = []codec.Protocol{codec.DNS, codec.MDNS}

// Materialize snapshots state into a Host. A state with no positive
// evidence yields nothing unless includeAll is set, in which case only the
// IP is populated. state is not modified.
func Materialize(state *HostState, includeAll bool) (*Host, bool) {
	if state == nil {
		return nil, false
	}

	if !state.Responded() {
		if !includeAll {
			return nil, false
		}

		return &Host{IP: state.Addr, Services: []string{}}, true
	}

	host := &Host{
		IP:       state.Addr,
		Services: []string{},
	}

	if arp, ok := state.Protocols[codec.ARP]; ok && len(arp.HardwareAddr) > 0 {
		host.MAC = append(net.HardwareAddr{}, arp.HardwareAddr...)
	}

	for _, p := range nameSources {
		ps, ok := state.Protocols[p]

		if !ok || len(ps.Names) == 0 {
			continue
		}

		// names are kept sorted
		host.Hostname = strings.TrimSuffix(ps.Names[0], ".")
		break
	}

	for _, ps := range state.Protocols {
		host.Services = union(host.Services, ps.Services)
	}

	return host, true
}
