package scanner

import (
	"context"
	"net/netip"
	"time"

	"github.com/robgonnella/lanmap/internal/codec"
	"github.com/robgonnella/lanmap/internal/discovery"
)

// idle wake up when no timer is armed
const idleWait = time.Hour

type probeStatus int

const (
	// waiting for its backoff to elapse
	statusPending probeStatus = iota
	// handed to a sender
	statusQueued
	// sent, waiting for a reply
	statusProbed
	statusResponded
	statusExhausted
)

type probe struct {
	status  probeStatus
	attempt int
}

func (p *probe) terminal() bool {
	return p.status == statusResponded || p.status == statusExhausted
}

// entry the scheduler's record for one in-flight address
type entry struct {
	state  *discovery.HostState
	probes map[codec.Protocol]*probe
}

func (e *entry) quiescent() bool {
	for _, p := range e.probes {
		if !p.terminal() {
			return false
		}
	}

	return true
}

type stats struct {
	sent      int
	exhausted int
	found     int
}

// scheduler the single goroutine owning all per-address state. Every
// evidence update, timer and send confirmation is applied here, so host
// state needs no locking.
type scheduler struct {
	session *Session
	table   map[netip.Addr]*entry
	timers  timerQueue
	queue   []job
	jobs    chan<- job
	results chan<- *discovery.Host
	seq     map[codec.Protocol]uint16
	stats   stats
}

func newScheduler(s *Session, jobs chan<- job, results chan<- *discovery.Host) *scheduler {
	return &scheduler{
		session: s,
		table:   map[netip.Addr]*entry{},
		timers:  timerQueue{},
		queue:   []job{},
		jobs:    jobs,
		results: results,
		seq:     map[codec.Protocol]uint16{},
	}
}

// run drives the session until every address has quiesced or ctx ends.
// Hosts are delivered on emitCtx so the final flush still happens after
// the deadline fires.
func (sc *scheduler) run(
	ctx context.Context,
	emitCtx context.Context,
	addrs <-chan netip.Addr,
	sent <-chan sentEvent,
	evidence <-chan discovery.Evidence,
) error {
	clock := time.NewTimer(idleWait)
	defer clock.Stop()

	for {
		if addrs == nil && len(sc.table) == 0 {
			return nil
		}

		var admit <-chan netip.Addr

		if len(sc.table) < sc.session.conf.Window {
			admit = addrs
		}

		var out chan<- job
		var next job

		if len(sc.queue) > 0 {
			out = sc.jobs
			next = sc.queue[0]
		}

		resetTimer(clock, sc.timers.wait(time.Now(), idleWait))

		select {
		case <-ctx.Done():
			sc.finalize(emitCtx, evidence)
			return nil
		case addr, ok := <-admit:
			if !ok {
				addrs = nil
				continue
			}
			sc.admit(emitCtx, addr)
		case out <- next:
			sc.queue = sc.queue[1:]
		case ev := <-sent:
			sc.confirm(emitCtx, ev)
		case ev := <-evidence:
			sc.merge(emitCtx, ev)
		case now := <-clock.C:
			for _, t := range sc.timers.expired(now) {
				sc.fire(emitCtx, t, now)
			}
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}

	t.Reset(d)
}

// admit starts probing addr with every enabled discovery protocol. Name
// protocols wait for the first sign of life.
func (sc *scheduler) admit(emitCtx context.Context, addr netip.Addr) {
	if _, ok := sc.table[addr]; ok {
		return
	}

	e := &entry{
		state:  discovery.NewHostState(addr),
		probes: map[codec.Protocol]*probe{},
	}

	sc.table[addr] = e

	local := sc.session.local

	if addr == local.Addr {
		// nothing answers our own ARP requests
		sc.record(e, discovery.Evidence{
			Protocol:     codec.ARP,
			Addr:         addr,
			Seen:         time.Now(),
			HardwareAddr: local.HardwareAddr,
		})
	}

	for _, p := range sc.session.conf.Protocols {
		if p.Discovery() {
			sc.start(e, addr, p)
		}
	}

	sc.settle(emitCtx, addr, e)
}

// start creates the probe for p if it does not exist and queues attempt 1
func (sc *scheduler) start(e *entry, addr netip.Addr, p codec.Protocol) {
	if _, ok := e.probes[p]; ok {
		return
	}

	pr := &probe{status: statusPending, attempt: 0}
	e.probes[p] = pr

	sc.enqueue(addr, p, pr)
}

func (sc *scheduler) enqueue(addr netip.Addr, p codec.Protocol, pr *probe) {
	pr.attempt++
	pr.status = statusQueued
	sc.seq[p]++

	sc.queue = append(sc.queue, job{
		addr:    addr,
		proto:   p,
		attempt: pr.attempt,
		seq:     sc.seq[p],
	})
}

// confirm arms the reply timeout once the probe actually left
func (sc *scheduler) confirm(emitCtx context.Context, ev sentEvent) {
	e, pr := sc.lookup(ev.job.addr, ev.job.proto)

	sc.stats.sent++

	if pr == nil || pr.attempt != ev.job.attempt || pr.status != statusQueued {
		return
	}

	if ev.err != nil {
		sc.session.log.Debug().
			Err(ev.err).
			Str("ip", ev.job.addr.String()).
			Str("protocol", ev.job.proto.String()).
			Msg("probe not delivered")
	}

	pr.status = statusProbed

	sc.timers.schedule(timer{
		at:      ev.at.Add(sc.session.conf.Timeout),
		kind:    timerTimeout,
		addr:    ev.job.addr,
		proto:   ev.job.proto,
		attempt: ev.job.attempt,
	})

	sc.settle(emitCtx, ev.job.addr, e)
}

// merge records evidence for an in-flight address. Evidence for
// addresses we are not probing, or already finished, is ignored.
func (sc *scheduler) merge(emitCtx context.Context, ev discovery.Evidence) {
	e, ok := sc.table[ev.Addr]

	if !ok {
		return
	}

	sc.record(e, ev)

	sc.settle(emitCtx, ev.Addr, e)
}

func (sc *scheduler) record(e *entry, ev discovery.Evidence) {
	alive := e.state.Responded()

	e.state.Merge(ev)

	if pr, ok := e.probes[ev.Protocol]; ok && !pr.terminal() {
		pr.status = statusResponded
	} else if !ok {
		e.probes[ev.Protocol] = &probe{status: statusResponded}
	}

	if alive || !e.state.Responded() {
		return
	}

	for _, p := range sc.session.conf.Protocols {
		if !p.Discovery() {
			sc.start(e, ev.Addr, p)
		}
	}
}

// fire applies an expired timer. Stale timers, for attempts that have
// since been answered or superseded, are ignored.
func (sc *scheduler) fire(emitCtx context.Context, t timer, now time.Time) {
	e, pr := sc.lookup(t.addr, t.proto)

	if pr == nil || pr.attempt != t.attempt {
		return
	}

	switch t.kind {
	case timerTimeout:
		if pr.status != statusProbed {
			return
		}

		if pr.attempt >= sc.session.conf.Retries {
			pr.status = statusExhausted
			sc.stats.exhausted++
			sc.settle(emitCtx, t.addr, e)
			return
		}

		pr.status = statusPending

		sc.timers.schedule(timer{
			at:      now.Add(sc.session.conf.backoff(pr.attempt)),
			kind:    timerResend,
			addr:    t.addr,
			proto:   t.proto,
			attempt: pr.attempt,
		})
	case timerResend:
		if pr.status == statusPending {
			sc.enqueue(t.addr, t.proto, pr)
		}
	}
}

func (sc *scheduler) lookup(addr netip.Addr, p codec.Protocol) (*entry, *probe) {
	e, ok := sc.table[addr]

	if !ok {
		return nil, nil
	}

	return e, e.probes[p]
}

// settle emits and forgets the address once none of its probes can
// change state any more
func (sc *scheduler) settle(emitCtx context.Context, addr netip.Addr, e *entry) {
	if !e.quiescent() {
		return
	}

	delete(sc.table, addr)

	sc.emit(emitCtx, e)
}

// finalize runs when the session deadline fires or the session is
// cancelled: evidence already received is merged, every outstanding probe
// is exhausted and whatever is known is emitted.
func (sc *scheduler) finalize(emitCtx context.Context, evidence <-chan discovery.Evidence) {
	for drained := false; !drained; {
		select {
		case ev := <-evidence:
			if e, ok := sc.table[ev.Addr]; ok {
				e.state.Merge(ev)
			}
		default:
			drained = true
		}
	}

	for addr, e := range sc.table {
		for _, pr := range e.probes {
			if !pr.terminal() {
				pr.status = statusExhausted
				sc.stats.exhausted++
			}
		}

		delete(sc.table, addr)

		sc.emit(emitCtx, e)
	}

	sc.queue = nil
	sc.timers = timerQueue{}
}

func (sc *scheduler) emit(emitCtx context.Context, e *entry) {
	host, ok := discovery.Materialize(e.state, sc.session.conf.IncludeAll)

	if !ok {
		return
	}

	vendor, err := discovery.Vendor(sc.session.conf.Vendors, host.MAC)

	if err != nil {
		sc.session.log.Debug().Err(err).Str("mac", host.MAC.String()).Msg("vendor lookup failed")
	}

	host.Vendor = vendor

	if e.state.Responded() {
		sc.stats.found++

		sc.session.log.Debug().
			Str("ip", host.IP.String()).
			Str("mac", host.MAC.String()).
			Str("hostname", host.Hostname).
			Msg("found host")
	}

	select {
	case <-emitCtx.Done():
	case sc.results <- host:
	}
}
