package network

import (
	"errors"
	"net"
	"net/netip"
	"strconv"

	"github.com/miekg/dns"
)

// ResolvConf system resolver configuration file
const ResolvConf = "/etc/resolv.conf"

// ErrNoResolver returned when no IPv4 nameserver is configured
var ErrNoResolver = errors.New("no IPv4 nameserver configured")

// DefaultResolver returns the first IPv4 nameserver listed in path
func DefaultResolver(path string) (netip.AddrPort, error) {
	conf, err := dns.ClientConfigFromFile(path)

	if err != nil {
		return netip.AddrPort{}, err
	}

	port, err := strconv.ParseUint(conf.Port, 10, 16)

	if err != nil {
		port = 53
	}

	for _, server := range conf.Servers {
		addr, err := netip.ParseAddr(server)

		if err != nil || !addr.Unmap().Is4() {
			continue
		}

		return netip.AddrPortFrom(addr.Unmap(), uint16(port)), nil
	}

	return netip.AddrPort{}, ErrNoResolver
}

// ParseResolver parses "host:port" or a bare address defaulting to port 53
func ParseResolver(raw string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap, nil
	}

	if addr, err := netip.ParseAddr(raw); err == nil {
		return netip.AddrPortFrom(addr, 53), nil
	}

	host, port, err := net.SplitHostPort(raw)

	if err != nil {
		return netip.AddrPort{}, err
	}

	ips, err := net.LookupIP(host)

	if err != nil {
		return netip.AddrPort{}, err
	}

	p, err := strconv.ParseUint(port, 10, 16)

	if err != nil {
		return netip.AddrPort{}, err
	}

	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip.To4()); ok {
			return netip.AddrPortFrom(addr, uint16(p)), nil
		}
	}

	return netip.AddrPort{}, ErrNoResolver
}
