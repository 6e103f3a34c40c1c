package target

import (
	"net/netip"
)

type span struct {
	first uint32
	last  uint32
}

// Sequence lazily yields the addresses of one or more specs in order.
// Addresses are computed on demand so even a /8 never exists in memory
// as a list. Sequence is not safe for concurrent use.
type Sequence struct {
	spans []span
	idx   int
	next  uint64
}

// NewSequence returns a sequence over specs. Auto LAN specs must be
// resolved into a CIDR spec first. Addresses covered by more than one spec
// are yielded once, at their first occurrence.
func NewSequence(specs ...Spec) (*Sequence, error) {
	spans := make([]span, 0, len(specs))

	for _, s := range specs {
		first, last, err := s.bounds()

		if err != nil {
			return nil, err
		}

		if first > last {
			continue
		}

		spans = append(spans, subtract(span{first: first, last: last}, spans)...)
	}

	seq := &Sequence{spans: spans}
	seq.Reset()

	return seq, nil
}

// Expand parses a comma separated target string into a sequence
func Expand(raw string) (*Sequence, error) {
	specs, err := ParseList(raw)

	if err != nil {
		return nil, err
	}

	return NewSequence(specs...)
}

// Next returns the next address and true, or false when exhausted
func (s *Sequence) Next() (netip.Addr, bool) {
	for s.idx < len(s.spans) {
		sp := s.spans[s.idx]

		if s.next <= uint64(sp.last) {
			addr := fromUint32(uint32(s.next))
			s.next++
			return addr, true
		}

		s.idx++

		if s.idx < len(s.spans) {
			s.next = uint64(s.spans[s.idx].first)
		}
	}

	return netip.Addr{}, false
}

// Reset rewinds the sequence to its first address
func (s *Sequence) Reset() {
	s.idx = 0
	s.next = 0

	if len(s.spans) > 0 {
		s.next = uint64(s.spans[0].first)
	}
}

// Len returns the total number of addresses the sequence yields
func (s *Sequence) Len() uint64 {
	var total uint64

	for _, sp := range s.spans {
		total += uint64(sp.last) - uint64(sp.first) + 1
	}

	return total
}

// subtract returns the parts of s not covered by taken, ascending
func subtract(s span, taken []span) []span {
	pieces := []span{s}

	for _, t := range taken {
		rest := []span{}

		for _, p := range pieces {
			if t.last < p.first || t.first > p.last {
				rest = append(rest, p)
				continue
			}

			if t.first > p.first {
				rest = append(rest, span{first: p.first, last: t.first - 1})
			}

			if t.last < p.last {
				rest = append(rest, span{first: t.last + 1, last: p.last})
			}
		}

		pieces = rest
	}

	return pieces
}
