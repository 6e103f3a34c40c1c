package core

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/robgonnella/lanmap/internal/codec"
	"github.com/robgonnella/lanmap/internal/config"
	"github.com/robgonnella/lanmap/internal/discovery"
	"github.com/robgonnella/lanmap/internal/exception"
	"github.com/robgonnella/lanmap/internal/logger"
	"github.com/robgonnella/lanmap/internal/network"
	"github.com/robgonnella/lanmap/internal/scanner"
	"github.com/robgonnella/lanmap/internal/target"
	"github.com/robgonnella/lanmap/internal/transport"
)

// Core represents our core data structure
type Core struct {
	conf      config.Config
	inspector network.Inspector
	opener    transport.Opener
	vendors   discovery.VendorRepo
	resolv    string
	log       logger.Logger
}

// Option configures optional Core behaviour
type Option func(c *Core)

// WithVendorRepo enables MAC vendor lookups for discovered hosts
func WithVendorRepo(repo discovery.VendorRepo) Option {
	return func(c *Core) {
		c.vendors = repo
	}
}

// New returns new core module for given configuration
func New(
	conf config.Config,
	inspector network.Inspector,
	opener transport.Opener,
	options ...Option,
) *Core {
	c := &Core{
		conf:      conf,
		inspector: inspector,
		opener:    opener,
		resolv:    network.ResolvConf,
		log:       logger.New(),
	}

	for _, o := range options {
		o(c)
	}

	return c
}

// Conf returns the configuration core was created with
func (c *Core) Conf() config.Config {
	return c.conf
}

// Interfaces lists local interfaces
func (c *Core) Interfaces() ([]network.Interface, error) {
	return c.inspector.Interfaces()
}

// Gateway returns the default gateway
func (c *Core) Gateway() (netip.Addr, error) {
	return c.inspector.Gateway()
}

// AutoLAN returns the local network target
func (c *Core) AutoLAN() (target.Spec, error) {
	spec, _, err := network.ResolveAutoLAN(c.inspector)
	return spec, err
}

// Expand turns target strings into an address sequence, resolving the
// lan keyword to the local network
func (c *Core) Expand(targets ...string) (*target.Sequence, error) {
	specs, err := c.specs(targets)

	if err != nil {
		return nil, err
	}

	return target.NewSequence(specs...)
}

func (c *Core) specs(targets []string) ([]target.Spec, error) {
	if len(targets) == 0 {
		targets = []string{target.LAN}
	}

	specs := []target.Spec{}

	for _, raw := range targets {
		parsed, err := target.ParseList(raw)

		if err != nil {
			return nil, err
		}

		for _, spec := range parsed {
			if spec.Kind == target.KindAutoLAN {
				spec, err = c.AutoLAN()

				if err != nil {
					return nil, err
				}
			}

			specs = append(specs, spec)
		}
	}

	return specs, nil
}

// Scan a running scan session
type Scan struct {
	ID        string
	Targets   []target.Spec
	Interface network.Interface
	hosts     chan *discovery.Host
	done      chan struct{}
	err       error
}

// Hosts streams hosts as they are found. The channel closes when the
// scan ends.
func (s *Scan) Hosts() <-chan *discovery.Host {
	return s.hosts
}

// Wait blocks until the scan ends and returns its error. Hosts must be
// drained for the scan to end.
func (s *Scan) Wait() error {
	<-s.done
	return s.err
}

// RunScan validates targets, selects an interface, opens the session's
// sockets and starts scanning. Invalid targets, a missing interface and
// missing privileges are reported here, before any host is produced.
func (c *Core) RunScan(ctx context.Context, targets []string) (*Scan, error) {
	specs, err := c.specs(targets)

	if err != nil {
		return nil, err
	}

	seq, err := target.NewSequence(specs...)

	if err != nil {
		return nil, err
	}

	iface, err := c.selectInterface(specs)

	if err != nil {
		return nil, err
	}

	protocols, err := codec.ParseProtocols(c.conf.Protocols)

	if err != nil {
		return nil, err
	}

	session, err := scanner.NewSession(scanner.Config{
		Interface:  iface,
		Protocols:  protocols,
		Timeout:    c.conf.Timeout,
		Retries:    c.conf.Retries,
		Backoff:    c.conf.Backoff,
		Deadline:   c.conf.Deadline,
		Rate:       c.conf.Rate,
		Senders:    c.conf.Senders,
		Window:     c.conf.Window,
		IncludeAll: c.conf.IncludeAll,
		Resolver:   c.resolver(protocols),
		Vendors:    c.vendors,
	}, seq, c.opener)

	if err != nil {
		return nil, err
	}

	scan := &Scan{
		ID:        session.ID(),
		Targets:   specs,
		Interface: iface,
		hosts:     make(chan *discovery.Host),
		done:      make(chan struct{}),
	}

	go func() {
		scan.err = session.Run(ctx, scan.hosts)
		close(scan.done)
	}()

	return scan, nil
}

// selectInterface honours a configured interface, otherwise picks the
// interface facing the first target
func (c *Core) selectInterface(specs []target.Spec) (network.Interface, error) {
	if c.conf.Interface != "" {
		return network.ByName(c.inspector, c.conf.Interface)
	}

	if len(specs) == 0 {
		return network.DefaultInterface(c.inspector)
	}

	first, err := specs[0].First()

	if err != nil {
		return network.Interface{}, err
	}

	return network.ForTarget(c.inspector, first)
}

func (c *Core) resolver(protocols []codec.Protocol) netip.AddrPort {
	wanted := false

	for _, p := range protocols {
		wanted = wanted || p == codec.DNS
	}

	if !wanted {
		return netip.AddrPort{}
	}

	if c.conf.Resolver != "" {
		resolver, err := network.ParseResolver(c.conf.Resolver)

		if err == nil {
			return resolver
		}

		c.log.Warn().Err(err).Str("resolver", c.conf.Resolver).Msg("ignoring configured resolver")
	}

	resolver, err := network.DefaultResolver(c.resolv)

	if err != nil {
		c.log.Debug().Err(err).Msg("no system resolver")
		return netip.AddrPort{}
	}

	return resolver
}

// ExitCode maps setup errors to distinct process exit codes
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, exception.ErrInvalidTargetSpec):
		return 2
	case errors.Is(err, exception.ErrNoSuitableInterface):
		return 3
	case errors.Is(err, exception.ErrPermissionDenied):
		return 4
	default:
		return 1
	}
}

// Describe returns a human readable summary of specs
func Describe(specs []target.Spec) string {
	parts := make([]string, 0, len(specs))

	for _, s := range specs {
		parts = append(parts, s.String())
	}

	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}
