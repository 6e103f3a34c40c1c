//go:build darwin

package transport

import (
	"errors"
	"net/netip"
	"time"

	"github.com/google/gopacket/pcap"
	"github.com/robgonnella/lanmap/internal/network"
)

// pcap read timeouts are fixed when the handle is opened
const pcapReadTimeout = 100 * time.Millisecond

type ethernetConn struct {
	handle *pcap.Handle
}

// openEthernet opens a pcap handle filtered to ARP frames
func openEthernet(iface network.Interface) (*ethernetConn, error) {
	handle, err := pcap.OpenLive(iface.Name, 65536, false, pcapReadTimeout)

	if err != nil {
		return nil, err
	}

	if err := handle.SetBPFFilter("arp"); err != nil {
		handle.Close()
		return nil, err
	}

	return &ethernetConn{handle: handle}, nil
}

func (c *ethernetConn) Send(frame []byte, _ netip.AddrPort) error {
	return c.handle.WritePacketData(frame)
}

func (c *ethernetConn) Receive(buf []byte, _ time.Duration) (int, netip.Addr, error) {
	data, _, err := c.handle.ReadPacketData()

	if err != nil {
		var nextErr pcap.NextError

		if errors.As(err, &nextErr) && nextErr == pcap.NextErrorTimeoutExpired {
			return 0, netip.Addr{}, ErrReadTimeout
		}

		return 0, netip.Addr{}, err
	}

	return copy(buf, data), netip.Addr{}, nil
}

func (c *ethernetConn) Close() error {
	c.handle.Close()
	return nil
}
