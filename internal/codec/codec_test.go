package codec_test

import (
	"errors"
	"math/rand"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/robgonnella/lanmap/internal/codec"
	"github.com/robgonnella/lanmap/internal/exception"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var local = codec.Identity{
	HardwareAddr: net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
	Addr:         netip.MustParseAddr("192.168.1.10"),
	EchoID:       4242,
}

func TestARPCodec(t *testing.T) {
	arp := codec.For(codec.ARP)
	peerHW := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	peer := netip.MustParseAddr("192.168.1.20")

	t.Run("encodes a broadcast request", func(st *testing.T) {
		frame, err := arp.EncodeProbe(codec.Probe{Target: peer}, local)
		require.NoError(st, err)

		assert.Equal(st, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, frame[:6])

		reply, err := arp.DecodeReply(frame)
		require.NoError(st, err)

		req := reply.(*codec.ARPReply)
		assert.False(st, req.IsReply())
		assert.Equal(st, local.HardwareAddr, req.SenderHardwareAddr)
		assert.Equal(st, local.Addr, req.SenderAddr)
		assert.Equal(st, peer, req.TargetAddr)
	})

	t.Run("round trips a reply", func(st *testing.T) {
		frame, err := codec.EncodeARPReply(peerHW, peer, local)
		require.NoError(st, err)

		reply, err := arp.DecodeReply(frame)
		require.NoError(st, err)

		res := reply.(*codec.ARPReply)
		assert.True(st, res.IsReply())
		assert.Equal(st, codec.ARP, res.Protocol())
		assert.Equal(st, peer, res.Source())
		assert.Equal(st, peerHW, res.SenderHardwareAddr)
		assert.Equal(st, local.HardwareAddr, res.TargetHardwareAddr)
		assert.Equal(st, local.Addr, res.TargetAddr)
	})

	t.Run("rejects unsupported address sizes", func(st *testing.T) {
		frame, err := codec.EncodeARPReply(peerHW, peer, local)
		require.NoError(st, err)

		frame[14+4] = 255

		_, err = arp.DecodeReply(frame)
		assert.True(st, errors.Is(err, exception.ErrPacketDecode))
	})

	t.Run("rejects non arp ethertypes", func(st *testing.T) {
		frame, err := codec.EncodeARPReply(peerHW, peer, local)
		require.NoError(st, err)

		frame[12], frame[13] = 0x08, 0x00

		_, err = arp.DecodeReply(frame)
		assert.True(st, errors.Is(err, exception.ErrPacketDecode))
	})
}

func TestEchoCodec(t *testing.T) {
	echo := codec.For(codec.ICMP)
	sent := time.Unix(1700000000, 123456789)

	t.Run("round trips a reply", func(st *testing.T) {
		frame, err := codec.EncodeEchoReply(local.EchoID, 7, sent)
		require.NoError(st, err)

		reply, err := echo.DecodeReply(frame)
		require.NoError(st, err)

		res := reply.(*codec.EchoReply)
		assert.Equal(st, local.EchoID, res.ID)
		assert.Equal(st, uint16(7), res.Seq)
		assert.True(st, sent.Equal(res.Sent))
		assert.Equal(st, 5*time.Millisecond, res.RTT(sent.Add(5*time.Millisecond)))
		assert.False(st, res.Source().IsValid())
	})

	t.Run("does not decode its own requests as replies", func(st *testing.T) {
		frame, err := echo.EncodeProbe(codec.Probe{Target: netip.MustParseAddr("10.0.0.1"), Seq: 1, Sent: sent}, local)
		require.NoError(st, err)

		_, err = echo.DecodeReply(frame)
		assert.True(st, errors.Is(err, exception.ErrPacketDecode))
	})

	t.Run("rejects foreign payloads", func(st *testing.T) {
		frame, err := codec.EncodeEchoReply(1, 1, sent)
		require.NoError(st, err)

		frame[len(frame)-1] ^= 0xff

		_, err = echo.DecodeReply(frame)
		assert.True(st, errors.Is(err, exception.ErrPacketDecode))
	})
}

func TestNameCodec(t *testing.T) {
	peer := netip.MustParseAddr("192.168.1.20")

	t.Run("round trips a dns ptr response", func(st *testing.T) {
		frame, err := codec.EncodeNameReply(false, 99, peer, []string{"printer.lan"}, nil)
		require.NoError(st, err)

		reply, err := codec.For(codec.DNS).DecodeReply(frame)
		require.NoError(st, err)

		res := reply.(*codec.NameReply)
		assert.Equal(st, codec.DNS, res.Protocol())
		assert.Equal(st, uint16(99), res.ID)
		assert.Equal(st, peer, res.Source())
		assert.Equal(st, []string{"printer.lan."}, res.Names)
		assert.Empty(st, res.Services)
	})

	t.Run("round trips an mdns response with services", func(st *testing.T) {
		frame, err := codec.EncodeNameReply(
			true,
			3,
			peer,
			[]string{"printer.local"},
			[]string{"_ipp._tcp", "_http._tcp", "_ipp._tcp"},
		)
		require.NoError(st, err)

		reply, err := codec.For(codec.MDNS).DecodeReply(frame)
		require.NoError(st, err)

		res := reply.(*codec.NameReply)
		assert.Equal(st, codec.MDNS, res.Protocol())
		assert.Equal(st, []string{"printer.local."}, res.Names)
		assert.Equal(st, []string{"_http._tcp", "_ipp._tcp"}, res.Services)
	})

	t.Run("probe carries the reverse name and id", func(st *testing.T) {
		frame, err := codec.For(codec.MDNS).EncodeProbe(codec.Probe{Target: peer, Seq: 77}, local)
		require.NoError(st, err)

		// queries are not responses
		_, err = codec.For(codec.MDNS).DecodeReply(frame)
		assert.True(st, errors.Is(err, exception.ErrPacketDecode))

		frame[2] |= 0x80

		reply, err := codec.For(codec.MDNS).DecodeReply(frame)
		require.NoError(st, err)

		res := reply.(*codec.NameReply)
		assert.Equal(st, uint16(77), res.ID)
		assert.Equal(st, peer, res.Addr)
	})
}

func TestDecodeMalformed(t *testing.T) {
	sent := time.Unix(1700000000, 0)

	arpFrame, err := codec.EncodeARPReply(net.HardwareAddr{1, 2, 3, 4, 5, 6}, netip.MustParseAddr("10.0.0.2"), local)
	require.NoError(t, err)

	echoFrame, err := codec.EncodeEchoReply(1, 1, sent)
	require.NoError(t, err)

	dnsFrame, err := codec.EncodeNameReply(false, 1, netip.MustParseAddr("10.0.0.2"), []string{"a.lan"}, nil)
	require.NoError(t, err)

	mdnsFrame, err := codec.EncodeNameReply(true, 1, netip.MustParseAddr("10.0.0.2"), []string{"a.local"}, []string{"_ssh._tcp"})
	require.NoError(t, err)

	valid := map[codec.Protocol][]byte{
		codec.ARP:  arpFrame,
		codec.ICMP: echoFrame,
		codec.DNS:  dnsFrame,
		codec.MDNS: mdnsFrame,
	}

	t.Run("every truncation is a decode error", func(st *testing.T) {
		for proto, frame := range valid {
			c := codec.For(proto)

			for n := 0; n < len(frame); n++ {
				_, err := c.DecodeReply(frame[:n])
				assert.Truef(st, errors.Is(err, exception.ErrPacketDecode), "%s truncated to %d bytes", proto, n)
			}
		}
	})

	t.Run("random bytes never panic", func(st *testing.T) {
		rng := rand.New(rand.NewSource(1))

		for _, proto := range codec.AllProtocols {
			c := codec.For(proto)

			for i := 0; i < 2000; i++ {
				buf := make([]byte, rng.Intn(128))
				rng.Read(buf)

				assert.NotPanics(st, func() {
					_, err := c.DecodeReply(buf)
					assert.Error(st, err)
				})
			}
		}
	})
}

func TestParseProtocols(t *testing.T) {
	t.Run("parses and dedupes", func(st *testing.T) {
		protocols, err := codec.ParseProtocols([]string{"ARP", "icmp", "arp", " mdns"})
		require.NoError(st, err)
		assert.Equal(st, []codec.Protocol{codec.ARP, codec.ICMP, codec.MDNS}, protocols)
	})

	t.Run("rejects unknown protocols", func(st *testing.T) {
		_, err := codec.ParseProtocols([]string{"tcp"})
		assert.True(st, errors.Is(err, exception.ErrUnsupportedProtocol))
	})
}
