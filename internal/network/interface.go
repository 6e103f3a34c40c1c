package network

import (
	"net"
	"net/netip"
)

//go:generate mockgen -destination=../mock/network/mock_network.go -package=mock_network . Inspector

// Interface describes one local network interface
type Interface struct {
	Name         string
	Index        int
	MTU          int
	HardwareAddr net.HardwareAddr
	// Addr first IPv4 address, invalid if the interface has none
	Addr netip.Addr
	// Prefix subnet containing Addr
	Prefix   netip.Prefix
	Up       bool
	Loopback bool
}

// Mask returns the subnet mask of the interface's IPv4 network
func (i Interface) Mask() net.IPMask {
	if !i.Prefix.IsValid() {
		return nil
	}

	return net.CIDRMask(i.Prefix.Bits(), 32)
}

// Usable reports whether the interface can be scanned from
func (i Interface) Usable() bool {
	return i.Up && !i.Loopback && i.Addr.IsValid()
}

// Inspector reads live interface state from the OS
type Inspector interface {
	Interfaces() ([]Interface, error)
	Gateway() (netip.Addr, error)
}
