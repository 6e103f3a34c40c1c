package scanner

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robgonnella/lanmap/internal/codec"
	"github.com/robgonnella/lanmap/internal/discovery"
	"github.com/robgonnella/lanmap/internal/logger"
	"github.com/robgonnella/lanmap/internal/target"
	"github.com/robgonnella/lanmap/internal/transport"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Session one discovery run over an address sequence. A session owns its
// sockets exclusively and releases them when Run returns.
type Session struct {
	id        string
	conf      Config
	addrs     *target.Sequence
	local     codec.Identity
	conns     map[codec.Protocol]transport.Conn
	log       logger.Logger
	closeOnce sync.Once
}

// NewSession opens a conn per enabled protocol on the configured
// interface. If any conn fails to open the ones already opened are closed
// and the error is returned; missing privileges surface as
// exception.ErrPermissionDenied.
func NewSession(
	conf Config,
	addrs *target.Sequence,
	opener transport.Opener,
) (*Session, error) {
	id := uuid.New().String()
	log := logger.New().With("session", id)
	conf = conf.normalize()

	if addrs == nil {
		addrs, _ = target.NewSequence()
	}

	protocols := []codec.Protocol{}

	for _, p := range conf.Protocols {
		if p == codec.DNS && !conf.Resolver.IsValid() {
			log.Warn().Msg("no DNS resolver configured, skipping reverse lookups")
			continue
		}

		protocols = append(protocols, p)
	}

	conf.Protocols = protocols

	if !slices.ContainsFunc(protocols, codec.Protocol.Discovery) {
		return nil, errors.New("at least one of arp or icmp must be enabled")
	}

	s := &Session{
		id:    id,
		conf:  conf,
		addrs: addrs,
		local: codec.Identity{
			HardwareAddr: conf.Interface.HardwareAddr,
			Addr:         conf.Interface.Addr,
			EchoID:       uint16(os.Getpid() & 0xffff),
		},
		conns: map[codec.Protocol]transport.Conn{},
		log:   log,
	}

	for _, p := range protocols {
		conn, err := opener.Open(p, conf.Interface)

		if err != nil {
			s.Close()
			return nil, err
		}

		s.conns[p] = conn
	}

	return s, nil
}

// ID unique id of this session
func (s *Session) ID() string {
	return s.id
}

// Close releases every socket held by the session. Safe to call more
// than once.
func (s *Session) Close() error {
	var errs []error

	s.closeOnce.Do(func() {
		for p, conn := range s.conns {
			if err := conn.Close(); err != nil {
				s.log.Debug().Err(err).Str("protocol", p.String()).Msg("failed to close conn")
				errs = append(errs, err)
			}
		}
	})

	return errors.Join(errs...)
}

// Run probes every address of the sequence and sends a Host on results
// for each responsive address, as soon as the address quiesces or when
// the session deadline is reached. results is closed when Run returns.
// Reaching the deadline is a normal completion and returns nil. Socket
// failures end the session with an error. The caller must keep draining
// results until it is closed.
func (s *Session) Run(ctx context.Context, results chan<- *discovery.Host) error {
	defer close(results)
	defer s.Close()

	if len(s.conns) == 0 {
		return errors.New("no protocols enabled")
	}

	start := time.Now()

	s.log.Info().Fields(map[string]interface{}{
		"interface": s.conf.Interface.Name,
		"targets":   s.addrs.Len(),
		"protocols": protocolNames(s.conf.Protocols),
		"deadline":  s.conf.Deadline.String(),
	}).Msg("starting scan")

	var deadlineCtx context.Context
	var cancel context.CancelFunc

	if s.conf.Deadline > 0 {
		deadlineCtx, cancel = context.WithTimeout(ctx, s.conf.Deadline)
	} else {
		deadlineCtx, cancel = context.WithCancel(ctx)
	}

	defer cancel()

	group, groupCtx := errgroup.WithContext(deadlineCtx)

	runCtx, stop := context.WithCancel(groupCtx)
	defer stop()

	limit := rate.Inf

	if s.conf.Rate > 0 {
		limit = rate.Limit(s.conf.Rate)
	}

	limiter := rate.NewLimiter(limit, s.conf.Senders)

	addrs := make(chan netip.Addr, s.conf.Window)
	jobs := make(chan job, s.conf.Senders)
	sent := make(chan sentEvent, s.conf.Senders)
	evidence := make(chan discovery.Evidence, 256)

	sched := newScheduler(s, jobs, results)

	group.Go(func() error {
		return s.feed(runCtx, addrs)
	})

	for i := 0; i < s.conf.Senders; i++ {
		group.Go(func() error {
			return s.send(runCtx, limiter, jobs, sent)
		})
	}

	for p, conn := range s.conns {
		p, conn := p, conn

		group.Go(func() error {
			return s.receive(runCtx, p, conn, evidence)
		})
	}

	group.Go(func() error {
		// everything else winds down once the scheduler is done
		defer stop()
		return sched.run(runCtx, ctx, addrs, sent, evidence)
	})

	err := group.Wait()

	s.log.Info().Fields(map[string]interface{}{
		"found":     sched.stats.found,
		"probes":    sched.stats.sent,
		"exhausted": sched.stats.exhausted,
		"elapsed":   time.Since(start).String(),
	}).Msg("scan complete")

	if err != nil {
		return err
	}

	return ctx.Err()
}

func protocolNames(protocols []codec.Protocol) string {
	names := make([]string, 0, len(protocols))

	for _, p := range protocols {
		names = append(names, p.String())
	}

	return strings.Join(names, ",")
}
