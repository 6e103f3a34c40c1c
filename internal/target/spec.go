package target

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/projectdiscovery/mapcidr"
	"github.com/robgonnella/lanmap/internal/exception"
)

// LAN is the keyword requesting the auto detected local network
const LAN = "lan"

// Kind identifies the variant held by a Spec
type Kind int

const (
	// KindCIDR a network/prefix block
	KindCIDR Kind = iota
	// KindRange an inclusive start..end range
	KindRange
	// KindAutoLAN the local network, resolved by the network package
	KindAutoLAN
)

// Spec represents one parsed target
type Spec struct {
	Kind    Kind
	Network netip.Prefix
	Start   netip.Addr
	End     netip.Addr
	// SkipEdges drops the network and broadcast addresses of a CIDR block
	SkipEdges bool
}

// CIDR returns a CIDR spec for prefix with host bits masked off
func CIDR(prefix netip.Prefix) Spec {
	return Spec{Kind: KindCIDR, Network: prefix.Masked()}
}

// Range returns a range spec
func Range(start, end netip.Addr) Spec {
	return Spec{Kind: KindRange, Start: start, End: end}
}

// AutoLAN returns the unresolved auto LAN spec
func AutoLAN() Spec {
	return Spec{Kind: KindAutoLAN}
}

func (s Spec) String() string {
	switch s.Kind {
	case KindCIDR:
		return s.Network.String()
	case KindRange:
		if s.Start == s.End {
			return s.Start.String()
		}
		return s.Start.String() + "-" + s.End.String()
	default:
		return LAN
	}
}

// First returns the lowest address the spec covers
func (s Spec) First() (netip.Addr, error) {
	first, _, err := s.bounds()

	if err != nil {
		return netip.Addr{}, err
	}

	return fromUint32(first), nil
}

// bounds returns the first and last address of the spec as integers
func (s Spec) bounds() (uint32, uint32, error) {
	switch s.Kind {
	case KindRange:
		return toUint32(s.Start), toUint32(s.End), nil
	case KindCIDR:
		_, ipnet, err := net.ParseCIDR(s.Network.String())

		if err != nil {
			return 0, 0, invalid("%s: %s", s.Network, err)
		}

		first, last, err := mapcidr.AddressRange(ipnet)

		if err != nil {
			return 0, 0, invalid("%s: %s", s.Network, err)
		}

		firstAddr, _ := netip.AddrFromSlice(first.To4())
		lastAddr, _ := netip.AddrFromSlice(last.To4())

		lo, hi := toUint32(firstAddr), toUint32(lastAddr)

		if s.SkipEdges && s.Network.Bits() <= 30 {
			lo++
			hi--
		}

		return lo, hi, nil
	default:
		return 0, 0, invalid("%s must be resolved before expansion", LAN)
	}
}

// Parse parses a single target: lan, a.b.c.d, a.b.c.d/n, ip1-ip2 or
// ip1-suffix where suffix replaces the low order 1 to 3 octets of ip1
func Parse(raw string) (Spec, error) {
	raw = strings.TrimSpace(raw)

	if raw == "" {
		return Spec{}, invalid("empty target")
	}

	if strings.EqualFold(raw, LAN) {
		return AutoLAN(), nil
	}

	if addr, bits, ok := strings.Cut(raw, "/"); ok {
		return parseCIDR(raw, addr, bits)
	}

	if start, end, ok := strings.Cut(raw, "-"); ok {
		return parseRange(raw, start, end)
	}

	addr, err := parseAddr(raw)

	if err != nil {
		return Spec{}, err
	}

	return Range(addr, addr), nil
}

// ParseList parses a comma separated list of targets
func ParseList(raw string) ([]Spec, error) {
	specs := []Spec{}

	for _, part := range strings.Split(raw, ",") {
		spec, err := Parse(part)

		if err != nil {
			return nil, err
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

func parseCIDR(raw, addr, bits string) (Spec, error) {
	n, err := strconv.Atoi(bits)

	if !digits(bits) || err != nil || n < 0 || n > 32 {
		return Spec{}, invalid("%s: prefix length must be 0..32", raw)
	}

	ip, err := parseAddr(addr)

	if err != nil {
		return Spec{}, err
	}

	return CIDR(netip.PrefixFrom(ip, n)), nil
}

func parseRange(raw, startRaw, endRaw string) (Spec, error) {
	start, err := parseAddr(startRaw)

	if err != nil {
		return Spec{}, err
	}

	parts := strings.Split(strings.TrimSpace(endRaw), ".")

	if len(parts) < 1 || len(parts) > 4 {
		return Spec{}, invalid("%s: range end must have 1 to 4 octets", raw)
	}

	octets := start.As4()
	k := len(parts)

	for i, p := range parts {
		o, err := parseOctet(p)

		if err != nil {
			return Spec{}, invalid("%s: %s", raw, err)
		}

		octets[4-k+i] = o
	}

	end := netip.AddrFrom4(octets)

	if end.Less(start) {
		return Spec{}, invalid("%s: range end %s precedes start %s", raw, end, start)
	}

	return Range(start, end), nil
}

func parseAddr(raw string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))

	if err != nil || !addr.Is4() {
		return netip.Addr{}, invalid("%q is not an IPv4 address", raw)
	}

	return addr, nil
}

func parseOctet(raw string) (byte, error) {
	if raw == "" || len(raw) > 3 || !digits(raw) {
		return 0, fmt.Errorf("bad octet %q", raw)
	}

	n, err := strconv.Atoi(raw)

	if err != nil || n < 0 || n > 255 {
		return 0, fmt.Errorf("octet %q out of range 0..255", raw)
	}

	return byte(n), nil
}

// digits reports whether raw is non-empty and only ASCII digits
func digits(raw string) bool {
	if raw == "" {
		return false
	}

	for _, r := range raw {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", exception.ErrInvalidTargetSpec, fmt.Sprintf(format, args...))
}

func toUint32(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

func fromUint32(n uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return netip.AddrFrom4(b)
}
