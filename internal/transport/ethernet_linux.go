//go:build linux

package transport

import (
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/mdlayher/packet"
	"github.com/robgonnella/lanmap/internal/network"
)

type ethernetConn struct {
	conn *packet.Conn
}

// openEthernet opens an AF_PACKET socket receiving ARP frames only
func openEthernet(iface network.Interface) (*ethernetConn, error) {
	ifi, err := net.InterfaceByName(iface.Name)

	if err != nil {
		return nil, err
	}

	conn, err := packet.Listen(ifi, packet.Raw, int(layers.EthernetTypeARP), nil)

	if err != nil {
		return nil, err
	}

	return &ethernetConn{conn: conn}, nil
}

func (c *ethernetConn) Send(frame []byte, _ netip.AddrPort) error {
	dst := net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

	if len(frame) >= 6 {
		dst = net.HardwareAddr(frame[:6])
	}

	_, err := c.conn.WriteTo(frame, &packet.Addr{HardwareAddr: dst})

	return err
}

func (c *ethernetConn) Receive(buf []byte, timeout time.Duration) (int, netip.Addr, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, netip.Addr{}, err
	}

	n, _, err := c.conn.ReadFrom(buf)

	if err != nil {
		if isTimeout(err) {
			return 0, netip.Addr{}, ErrReadTimeout
		}
		return 0, netip.Addr{}, err
	}

	return n, netip.Addr{}, nil
}

func (c *ethernetConn) Close() error {
	return c.conn.Close()
}
