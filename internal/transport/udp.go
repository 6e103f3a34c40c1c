package transport

import (
	"net"
	"net/netip"
	"time"

	"github.com/robgonnella/lanmap/internal/network"
)

type udpConn struct {
	conn *net.UDPConn
}

// openUDP opens an unconnected UDP socket on an ephemeral port of the
// interface address. Queries to port 5353 from a port other than 5353
// get unicast replies from mDNS responders.
func openUDP(iface network.Interface) (*udpConn, error) {
	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(netip.AddrPortFrom(iface.Addr, 0)))

	if err != nil {
		return nil, err
	}

	return &udpConn{conn: conn}, nil
}

func (c *udpConn) Send(frame []byte, dst netip.AddrPort) error {
	_, err := c.conn.WriteToUDPAddrPort(frame, dst)
	return err
}

func (c *udpConn) Receive(buf []byte, timeout time.Duration) (int, netip.Addr, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, netip.Addr{}, err
	}

	n, peer, err := c.conn.ReadFromUDPAddrPort(buf)

	if err != nil {
		if isTimeout(err) {
			return 0, netip.Addr{}, ErrReadTimeout
		}
		return 0, netip.Addr{}, err
	}

	return n, peer.Addr().Unmap(), nil
}

func (c *udpConn) Close() error {
	return c.conn.Close()
}
