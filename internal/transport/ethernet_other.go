//go:build !linux && !darwin

package transport

import (
	"fmt"
	"net/netip"
	"runtime"
	"time"

	"github.com/robgonnella/lanmap/internal/network"
)

type ethernetConn struct{}

func openEthernet(iface network.Interface) (*ethernetConn, error) {
	return nil, fmt.Errorf("arp probing is not supported on %s", runtime.GOOS)
}

func (c *ethernetConn) Send(_ []byte, _ netip.AddrPort) error {
	return nil
}

func (c *ethernetConn) Receive(_ []byte, _ time.Duration) (int, netip.Addr, error) {
	return 0, netip.Addr{}, ErrReadTimeout
}

func (c *ethernetConn) Close() error {
	return nil
}
