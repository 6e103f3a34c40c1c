package discovery

import (
	"bytes"
	"net"
	"net/netip"
	"sort"
	"time"

	"github.com/robgonnella/lanmap/internal/codec"
)

// Evidence a single protocol's contribution about one address
type Evidence struct {
	Protocol     codec.Protocol
	Addr         netip.Addr
	Seen         time.Time
	HardwareAddr net.HardwareAddr
	RTT          time.Duration
	Names        []string
	Services     []string
}

// ProtocolState accumulated evidence from one protocol
type ProtocolState struct {
	Responded    bool
	LastSeen     time.Time
	HardwareAddr net.HardwareAddr
	// RTT best round trip observed
	RTT      time.Duration
	Names    []string
	Services []string
}

// HostState everything learned about one address during a session. A
// HostState is owned by a single goroutine, it is not safe for concurrent
// use.
type HostState struct {
	Addr      netip.Addr
	Protocols map[codec.Protocol]*ProtocolState
}

// NewHostState returns an empty state for addr
func NewHostState(addr netip.Addr) *HostState {
	return &HostState{
		Addr:      addr,
		Protocols: map[codec.Protocol]*ProtocolState{},
	}
}

// Merge folds e into the state. Every field is combined with an order
// independent rule (latest timestamp, lowest RTT, lowest MAC, set union)
// so the result does not depend on the order evidence arrives in.
// Evidence about another address is ignored and false is returned.
func (h *HostState) Merge(e Evidence) bool {
	if e.Addr != h.Addr {
		return false
	}

	ps, ok := h.Protocols[e.Protocol]

	if !ok {
		ps = &ProtocolState{}
		h.Protocols[e.Protocol] = ps
	}

	ps.Responded = true

	if e.Seen.After(ps.LastSeen) {
		ps.LastSeen = e.Seen
	}

	if len(e.HardwareAddr) > 0 &&
		(len(ps.HardwareAddr) == 0 || bytes.Compare(e.HardwareAddr, ps.HardwareAddr) < 0) {
		ps.HardwareAddr = append(net.HardwareAddr{}, e.HardwareAddr...)
	}

	if e.RTT > 0 && (ps.RTT == 0 || e.RTT < ps.RTT) {
		ps.RTT = e.RTT
	}

	ps.Names = union(ps.Names, e.Names)
	ps.Services = union(ps.Services, e.Services)

	return true
}

// Responded reports whether any evidence shows the host exists. A
// resolver answering for an address says nothing about the host unless
// it returned a name.
func (h *HostState) Responded() bool {
	for p, ps := range h.Protocols {
		if !ps.Responded {
			continue
		}

		if p == codec.DNS && len(ps.Names) == 0 {
			continue
		}

		return true
	}

	return false
}

func union(a, b []string) []string {
	if len(b) == 0 {
		return a
	}

	set := make(map[string]bool, len(a)+len(b))

	for _, s := range a {
		set[s] = true
	}

	for _, s := range b {
		if s != "" {
			set[s] = true
		}
	}

	out := make([]string, 0, len(set))

	for s := range set {
		out = append(out, s)
	}

	sort.Strings(out)

	return out
}
