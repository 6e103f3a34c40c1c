package codec

import (
	"net"
	"net/netip"
	"time"
)

// Identity describes the local end of a probe
type Identity struct {
	HardwareAddr net.HardwareAddr
	Addr         netip.Addr
	// EchoID identifies our echo requests among other processes' pings
	EchoID uint16
}

// Probe describes a single outbound probe
type Probe struct {
	Target netip.Addr
	// Seq is the echo sequence number or the DNS transaction id
	Seq  uint16
	Sent time.Time
}

// Reply a decoded inbound frame
type Reply interface {
	Protocol() Protocol
	// Source the address the reply carries evidence about. Invalid when
	// the frame itself does not name it (echo), in which case the
	// address the frame was received from is used.
	Source() netip.Addr
}

// Codec encodes probes and decodes replies for one protocol. Codecs
// perform no I/O and keep no state.
type Codec interface {
	Protocol() Protocol
	EncodeProbe(probe Probe, local Identity) ([]byte, error)
	DecodeReply(frame []byte) (Reply, error)
}

var codecs = map[Protocol]Codec{
	ARP:  arpCodec{},
	ICMP: echoCodec{},
	DNS:  nameCodec{mdns: false},
	MDNS: nameCodec{mdns: true},
}

// For returns the codec for p
func For(p Protocol) Codec {
	return codecs[p]
}
