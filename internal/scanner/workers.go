package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/robgonnella/lanmap/internal/codec"
	"github.com/robgonnella/lanmap/internal/discovery"
	"github.com/robgonnella/lanmap/internal/transport"
	"golang.org/x/time/rate"
)

// receive buffers fit any ethernet frame
const maxFrameLen = 65536

type job struct {
	addr    netip.Addr
	proto   codec.Protocol
	attempt int
	seq     uint16
}

type sentEvent struct {
	job job
	at  time.Time
	// err set when the probe could not be encoded or its destination
	// was unreachable
	err error
}

// feed pulls addresses lazily from the sequence. The channel is closed
// once the sequence is exhausted.
func (s *Session) feed(ctx context.Context, addrs chan<- netip.Addr) error {
	for {
		addr, ok := s.addrs.Next()

		if !ok {
			close(addrs)
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case addrs <- addr:
		}
	}
}

// send encodes and writes probes at the shared pace. Only errors about
// the socket itself end the session, errors about one destination are
// reported back and the probe times out like any other.
func (s *Session) send(
	ctx context.Context,
	limiter *rate.Limiter,
	jobs <-chan job,
	sent chan<- sentEvent,
) error {
	for {
		var j job

		select {
		case <-ctx.Done():
			return nil
		case j = <-jobs:
		}

		if err := limiter.Wait(ctx); err != nil {
			// session is ending
			return nil
		}

		now := time.Now()

		frame, err := codec.For(j.proto).EncodeProbe(codec.Probe{
			Target: j.addr,
			Seq:    j.seq,
			Sent:   now,
		}, s.local)

		if err == nil {
			err = s.conns[j.proto].Send(frame, s.destination(j.proto, j.addr))

			if err != nil && !transport.IsTransient(err) {
				if ctx.Err() != nil {
					return nil
				}

				return fmt.Errorf("%s send to %s failed: %w", j.proto, j.addr, err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case sent <- sentEvent{job: j, at: now, err: err}:
		}
	}
}

func (s *Session) destination(proto codec.Protocol, addr netip.Addr) netip.AddrPort {
	switch proto {
	case codec.DNS:
		return s.conf.Resolver
	case codec.MDNS:
		return netip.AddrPortFrom(addr, codec.MDNSPort)
	default:
		return netip.AddrPortFrom(addr, 0)
	}
}

// receive reads and decodes frames from one conn until the session ends.
// Frames that fail to decode or do not concern this session are dropped.
func (s *Session) receive(
	ctx context.Context,
	proto codec.Protocol,
	conn transport.Conn,
	evidence chan<- discovery.Evidence,
) error {
	buf := make([]byte, maxFrameLen)
	c := codec.For(proto)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, src, err := conn.Receive(buf, s.conf.ReadTimeout)

		if err != nil {
			if errors.Is(err, transport.ErrReadTimeout) || transport.IsTransient(err) {
				continue
			}

			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("%s receive failed: %w", proto, err)
		}

		reply, err := c.DecodeReply(buf[:n])

		if err != nil {
			s.log.Debug().Err(err).Str("protocol", proto.String()).Msg("dropping frame")
			continue
		}

		ev, ok := s.evidenceFrom(reply, src, time.Now())

		if !ok {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case evidence <- ev:
		}
	}
}

// evidenceFrom converts a decoded reply into evidence about the address
// it concerns. Our own frames and replies meant for others are rejected.
func (s *Session) evidenceFrom(reply codec.Reply, src netip.Addr, now time.Time) (discovery.Evidence, bool) {
	ev := discovery.Evidence{
		Protocol: reply.Protocol(),
		Addr:     reply.Source(),
		Seen:     now,
	}

	switch r := reply.(type) {
	case *codec.ARPReply:
		if !r.IsReply() || r.SenderAddr == s.local.Addr {
			return ev, false
		}

		ev.HardwareAddr = r.SenderHardwareAddr
	case *codec.EchoReply:
		if r.ID != s.local.EchoID {
			return ev, false
		}

		ev.Addr = src

		if rtt := r.RTT(now); rtt > 0 {
			ev.RTT = rtt
		}
	case *codec.NameReply:
		// responders that answer without echoing the question name
		// themselves by the address they reply from
		if !ev.Addr.IsValid() && r.Multicast {
			ev.Addr = src
		}

		ev.Names = r.Names
		ev.Services = r.Services
	}

	return ev, ev.Addr.IsValid()
}
