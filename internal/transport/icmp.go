package transport

import (
	"net"
	"net/netip"
	"time"

	"github.com/robgonnella/lanmap/internal/network"
	"golang.org/x/net/icmp"
)

type icmpConn struct {
	conn *icmp.PacketConn
}

// openICMP opens a raw ICMP socket bound to the interface address. Reads
// return the ICMP message without its IPv4 header.
func openICMP(iface network.Interface) (*icmpConn, error) {
	conn, err := icmp.ListenPacket("ip4:icmp", iface.Addr.String())

	if err != nil {
		return nil, err
	}

	return &icmpConn{conn: conn}, nil
}

func (c *icmpConn) Send(frame []byte, dst netip.AddrPort) error {
	_, err := c.conn.WriteTo(frame, &net.IPAddr{IP: dst.Addr().AsSlice()})
	return err
}

func (c *icmpConn) Receive(buf []byte, timeout time.Duration) (int, netip.Addr, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, netip.Addr{}, err
	}

	n, peer, err := c.conn.ReadFrom(buf)

	if err != nil {
		if isTimeout(err) {
			return 0, netip.Addr{}, ErrReadTimeout
		}
		return 0, netip.Addr{}, err
	}

	var src netip.Addr

	if ipAddr, ok := peer.(*net.IPAddr); ok {
		src, _ = netip.AddrFromSlice(ipAddr.IP.To4())
	}

	return n, src, nil
}

func (c *icmpConn) Close() error {
	return c.conn.Close()
}
