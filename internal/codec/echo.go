package codec

import (
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/robgonnella/lanmap/internal/exception"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	icmpHeaderLen   = 4
	echoHeaderLen   = icmpHeaderLen + 4
	echoTimestamp   = 8
	echoPayloadMark = "lanmap"
)

// EchoReply a decoded ICMP echo reply
type EchoReply struct {
	ID   uint16
	Seq  uint16
	Sent time.Time
}

// Protocol implements Reply
func (r *EchoReply) Protocol() Protocol {
	return ICMP
}

// Source implements Reply. Echo messages do not carry the responder's
// address, the receiver supplies it.
func (r *EchoReply) Source() netip.Addr {
	return netip.Addr{}
}

// RTT returns the round trip time measured at receive time
func (r *EchoReply) RTT(received time.Time) time.Duration {
	return received.Sub(r.Sent)
}

type echoCodec struct{}

func (echoCodec) Protocol() Protocol {
	return ICMP
}

// EncodeProbe builds an ICMP echo request. The send time travels in the
// payload so the round trip can be measured without keeping state.
func (echoCodec) EncodeProbe(probe Probe, local Identity) ([]byte, error) {
	return encodeEcho(ipv4.ICMPTypeEcho, local.EchoID, probe.Seq, probe.Sent)
}

// EncodeEchoReply builds the reply a host would send for an echo request
// with id, seq and sent
func EncodeEchoReply(id, seq uint16, sent time.Time) ([]byte, error) {
	return encodeEcho(ipv4.ICMPTypeEchoReply, id, seq, sent)
}

func encodeEcho(typ ipv4.ICMPType, id, seq uint16, sent time.Time) ([]byte, error) {
	data := make([]byte, echoTimestamp, echoTimestamp+len(echoPayloadMark))
	binary.BigEndian.PutUint64(data, uint64(sent.UnixNano()))
	data = append(data, echoPayloadMark...)

	msg := icmp.Message{
		Type: typ,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(id),
			Seq:  int(seq),
			Data: data,
		},
	}

	return msg.Marshal(nil)
}

// DecodeReply decodes an ICMP message with the IPv4 header already removed
func (echoCodec) DecodeReply(frame []byte) (Reply, error) {
	if len(frame) < echoHeaderLen {
		return nil, exception.NewDecodeError(ICMP.String(), "message too short: %d bytes", len(frame))
	}

	if ipv4.ICMPType(frame[0]) != ipv4.ICMPTypeEchoReply {
		return nil, exception.NewDecodeError(ICMP.String(), "not an echo reply: type %d", frame[0])
	}

	msg, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), frame)

	if err != nil {
		return nil, exception.NewDecodeError(ICMP.String(), "%s", err)
	}

	echo, ok := msg.Body.(*icmp.Echo)

	if !ok {
		return nil, exception.NewDecodeError(ICMP.String(), "unexpected body %T", msg.Body)
	}

	if len(echo.Data) < echoTimestamp+len(echoPayloadMark) {
		return nil, exception.NewDecodeError(ICMP.String(), "payload too short: %d bytes", len(echo.Data))
	}

	if string(echo.Data[echoTimestamp:echoTimestamp+len(echoPayloadMark)]) != echoPayloadMark {
		return nil, exception.NewDecodeError(ICMP.String(), "payload was not sent by us")
	}

	nanos := int64(binary.BigEndian.Uint64(echo.Data[:echoTimestamp]))

	if nanos <= 0 {
		return nil, exception.NewDecodeError(ICMP.String(), "invalid timestamp")
	}

	return &EchoReply{
		ID:   uint16(echo.ID),
		Seq:  uint16(echo.Seq),
		Sent: time.Unix(0, nanos),
	}, nil
}
