package scanner

import (
	"container/heap"
	"net/netip"
	"time"

	"github.com/robgonnella/lanmap/internal/codec"
)

type timerKind int

const (
	// a probe's reply window elapsed
	timerTimeout timerKind = iota
	// a probe's backoff elapsed and it may be resent
	timerResend
)

type timer struct {
	at      time.Time
	kind    timerKind
	addr    netip.Addr
	proto   codec.Protocol
	attempt int
}

// timerQueue min-heap of timers ordered by expiry
type timerQueue []timer

func (q timerQueue) Len() int           { return len(q) }
func (q timerQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }
func (q timerQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) {
	*q = append(*q, x.(timer))
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	*q = old[:n-1]
	return t
}

func (q *timerQueue) schedule(t timer) {
	heap.Push(q, t)
}

// expired pops every timer due at or before now
func (q *timerQueue) expired(now time.Time) []timer {
	due := []timer{}

	for q.Len() > 0 && !(*q)[0].at.After(now) {
		due = append(due, heap.Pop(q).(timer))
	}

	return due
}

// wait returns how long until the next timer, or fallback if none
func (q timerQueue) wait(now time.Time, fallback time.Duration) time.Duration {
	if len(q) == 0 {
		return fallback
	}

	if d := q[0].at.Sub(now); d > 0 {
		return d
	}

	return 0
}
