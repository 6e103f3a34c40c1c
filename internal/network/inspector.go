package network

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/jackpal/gateway"
	"github.com/robgonnella/lanmap/internal/exception"
	"github.com/robgonnella/lanmap/internal/target"
)

// SystemInspector Inspector implementation backed by the OS
type SystemInspector struct{}

// NewSystemInspector returns a new SystemInspector
func NewSystemInspector() *SystemInspector {
	return &SystemInspector{}
}

// Interfaces lists all interfaces with their first IPv4 network
func (s *SystemInspector) Interfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()

	if err != nil {
		return nil, err
	}

	result := make([]Interface, 0, len(ifaces))

	for _, iface := range ifaces {
		desc := Interface{
			Name:         iface.Name,
			Index:        iface.Index,
			MTU:          iface.MTU,
			HardwareAddr: iface.HardwareAddr,
			Up:           iface.Flags&net.FlagUp != 0,
			Loopback:     iface.Flags&net.FlagLoopback != 0,
		}

		addrs, err := iface.Addrs()

		if err == nil {
			desc.Addr, desc.Prefix = firstIPv4(addrs)
		}

		result = append(result, desc)
	}

	return result, nil
}

// Gateway returns the default gateway address
func (s *SystemInspector) Gateway() (netip.Addr, error) {
	gw, err := gateway.DiscoverGateway()

	if err != nil {
		return netip.Addr{}, err
	}

	addr, ok := netip.AddrFromSlice(gw.To4())

	if !ok {
		return netip.Addr{}, fmt.Errorf("gateway %s is not IPv4", gw)
	}

	return addr, nil
}

func firstIPv4(addrs []net.Addr) (netip.Addr, netip.Prefix) {
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)

		if !ok || ipnet.IP.To4() == nil {
			continue
		}

		addr, _ := netip.AddrFromSlice(ipnet.IP.To4())
		bits, _ := ipnet.Mask.Size()

		// some platforms report 16 byte masks for IPv4 addresses
		if len(ipnet.Mask) == net.IPv6len {
			bits -= 96
		}

		return addr, netip.PrefixFrom(addr, bits).Masked()
	}

	return netip.Addr{}, netip.Prefix{}
}

// ResolveAutoLAN picks the interface to scan from when no target is given
// and returns the subnet it sits on. The interface holding the default
// route wins, otherwise the first usable one.
func ResolveAutoLAN(inspector Inspector) (target.Spec, Interface, error) {
	iface, err := DefaultInterface(inspector)

	if err != nil {
		return target.Spec{}, Interface{}, err
	}

	spec := target.CIDR(iface.Prefix)
	spec.SkipEdges = true

	return spec, iface, nil
}

// DefaultInterface returns the interface holding the default route, or
// the first usable interface when there is no gateway
func DefaultInterface(inspector Inspector) (Interface, error) {
	ifaces, err := inspector.Interfaces()

	if err != nil {
		return Interface{}, err
	}

	if gw, err := inspector.Gateway(); err == nil {
		for _, iface := range ifaces {
			if iface.Usable() && iface.Prefix.Contains(gw) {
				return iface, nil
			}
		}
	}

	for _, iface := range ifaces {
		if iface.Usable() {
			return iface, nil
		}
	}

	return Interface{}, exception.ErrNoSuitableInterface
}

// ForTarget returns the interface whose subnet contains addr, falling back
// to the default interface for off-link targets
func ForTarget(inspector Inspector, addr netip.Addr) (Interface, error) {
	ifaces, err := inspector.Interfaces()

	if err != nil {
		return Interface{}, err
	}

	for _, iface := range ifaces {
		if iface.Usable() && iface.Prefix.Contains(addr) {
			return iface, nil
		}
	}

	return DefaultInterface(inspector)
}

// ByName returns the named interface if it can be scanned from
func ByName(inspector Inspector, name string) (Interface, error) {
	ifaces, err := inspector.Interfaces()

	if err != nil {
		return Interface{}, err
	}

	for _, iface := range ifaces {
		if iface.Name != name {
			continue
		}

		if !iface.Usable() {
			return Interface{}, fmt.Errorf("%w: %s is down, loopback or has no IPv4 address", exception.ErrNoSuitableInterface, name)
		}

		return iface, nil
	}

	return Interface{}, fmt.Errorf("%w: %s not found", exception.ErrNoSuitableInterface, name)
}
