package scanner

import (
	"net/netip"
	"time"

	"github.com/robgonnella/lanmap/internal/codec"
	"github.com/robgonnella/lanmap/internal/discovery"
	"github.com/robgonnella/lanmap/internal/network"
)

const (
	defaultReadTimeout = 100 * time.Millisecond
	maxBackoffShift    = 6
)

// Config settings for one scan session
type Config struct {
	Interface network.Interface
	Protocols []codec.Protocol
	// Timeout how long a probe waits for its reply
	Timeout time.Duration
	// Retries attempts per probe before the probe is exhausted
	Retries int
	// Backoff delay before the second attempt, doubled for each further one
	Backoff time.Duration
	// Deadline bounds the whole session
	Deadline time.Duration
	// Rate probes per second across all senders, 0 for unlimited
	Rate    int
	Senders int
	// Window addresses in flight at once
	Window     int
	IncludeAll bool
	// Resolver DNS server used for reverse lookups
	Resolver netip.AddrPort
	// ReadTimeout how long receivers block before checking for shutdown
	ReadTimeout time.Duration
	// Vendors optional OUI lookup for discovered MACs
	Vendors discovery.VendorRepo
}

func (c Config) normalize() Config {
	if c.Retries < 1 {
		c.Retries = 1
	}

	if c.Senders < 1 {
		c.Senders = 1
	}

	if c.Window < 1 {
		c.Window = 1
	}

	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}

	return c
}

// backoff returns the delay before the attempt following attempt
func (c Config) backoff(attempt int) time.Duration {
	shift := attempt - 1

	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}

	return c.Backoff << shift
}
