package codec

import (
	"encoding/binary"
	"errors"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/robgonnella/lanmap/internal/exception"
)

const (
	ethernetHeaderLen = 14
	arpFixedLen       = 8
	arpIPv4Len        = arpFixedLen + 2*6 + 2*4
)

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ARPReply a decoded ARP frame
type ARPReply struct {
	Operation          uint16
	SenderHardwareAddr net.HardwareAddr
	SenderAddr         netip.Addr
	TargetHardwareAddr net.HardwareAddr
	TargetAddr         netip.Addr
}

// Protocol implements Reply
func (r *ARPReply) Protocol() Protocol {
	return ARP
}

// Source implements Reply
func (r *ARPReply) Source() netip.Addr {
	return r.SenderAddr
}

// IsReply reports whether the frame was an ARP reply rather than a request
func (r *ARPReply) IsReply() bool {
	return r.Operation == layers.ARPReply
}

type arpCodec struct{}

func (arpCodec) Protocol() Protocol {
	return ARP
}

// EncodeProbe builds a broadcast who-has request for probe.Target
func (arpCodec) EncodeProbe(probe Probe, local Identity) ([]byte, error) {
	return encodeARP(
		layers.ARPRequest,
		local.HardwareAddr,
		local.Addr,
		broadcastMAC,
		net.HardwareAddr{0, 0, 0, 0, 0, 0},
		probe.Target,
	)
}

// EncodeARPReply builds the is-at reply a host with hw and addr would send
// back to requester
func EncodeARPReply(hw net.HardwareAddr, addr netip.Addr, requester Identity) ([]byte, error) {
	return encodeARP(
		layers.ARPReply,
		hw,
		addr,
		requester.HardwareAddr,
		requester.HardwareAddr,
		requester.Addr,
	)
}

func encodeARP(
	op uint16,
	srcHW net.HardwareAddr,
	srcAddr netip.Addr,
	dstMAC net.HardwareAddr,
	dstHW net.HardwareAddr,
	dstAddr netip.Addr,
) ([]byte, error) {
	if len(srcHW) != 6 || len(dstHW) != 6 {
		return nil, errors.New("arp: hardware addresses must be 6 bytes")
	}

	if !srcAddr.Is4() || !dstAddr.Is4() {
		return nil, errors.New("arp: protocol addresses must be IPv4")
	}

	src4 := srcAddr.As4()
	dst4 := dstAddr.As4()

	eth := layers.Ethernet{
		SrcMAC:       srcHW,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeARP,
	}

	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   []byte(srcHW),
		SourceProtAddress: src4[:],
		DstHwAddress:      []byte(dstHW),
		DstProtAddress:    dst4[:],
	}

	buf := gopacket.NewSerializeBuffer()

	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}

	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeReply decodes an Ethernet II frame carrying an IPv4 ARP packet
func (arpCodec) DecodeReply(frame []byte) (Reply, error) {
	if len(frame) < ethernetHeaderLen {
		return nil, exception.NewDecodeError(ARP.String(), "frame too short for ethernet header: %d bytes", len(frame))
	}

	if t := binary.BigEndian.Uint16(frame[12:14]); t != uint16(layers.EthernetTypeARP) {
		return nil, exception.NewDecodeError(ARP.String(), "unexpected ethertype 0x%04x", t)
	}

	payload := frame[ethernetHeaderLen:]

	if len(payload) < arpFixedLen {
		return nil, exception.NewDecodeError(ARP.String(), "truncated arp header: %d bytes", len(payload))
	}

	// gopacket trusts these sizes, check them before it reads anything
	if hw, prot := payload[4], payload[5]; hw != 6 || prot != 4 {
		return nil, exception.NewDecodeError(ARP.String(), "unsupported address sizes hw=%d prot=%d", hw, prot)
	}

	if len(payload) < arpIPv4Len {
		return nil, exception.NewDecodeError(ARP.String(), "truncated arp body: %d bytes", len(payload))
	}

	eth := layers.Ethernet{}

	if err := eth.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		return nil, exception.NewDecodeError(ARP.String(), "ethernet: %s", err)
	}

	arp := layers.ARP{}

	if err := arp.DecodeFromBytes(eth.Payload, gopacket.NilDecodeFeedback); err != nil {
		return nil, exception.NewDecodeError(ARP.String(), "arp: %s", err)
	}

	if arp.Protocol != layers.EthernetTypeIPv4 {
		return nil, exception.NewDecodeError(ARP.String(), "unexpected protocol type %s", arp.Protocol)
	}

	sender, _ := netip.AddrFromSlice(arp.SourceProtAddress)
	target, _ := netip.AddrFromSlice(arp.DstProtAddress)

	return &ARPReply{
		Operation:          arp.Operation,
		SenderHardwareAddr: cloneHW(arp.SourceHwAddress),
		SenderAddr:         sender,
		TargetHardwareAddr: cloneHW(arp.DstHwAddress),
		TargetAddr:         target,
	}, nil
}

// frames are read into reused buffers
func cloneHW(b []byte) net.HardwareAddr {
	hw := make(net.HardwareAddr, len(b))
	copy(hw, b)
	return hw
}
