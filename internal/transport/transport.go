package transport

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/robgonnella/lanmap/internal/codec"
	"github.com/robgonnella/lanmap/internal/exception"
	"github.com/robgonnella/lanmap/internal/network"
)

//go:generate mockgen -destination=../mock/transport/mock_transport.go -package=mock_transport . Conn,Opener

// ErrReadTimeout returned by Receive when nothing arrived in time
var ErrReadTimeout = errors.New("read timeout")

// Conn a socket bound to one interface for one protocol family
type Conn interface {
	// Send writes frame towards dst. Link layer conns ignore dst, the
	// frame carries its own addressing.
	Send(frame []byte, dst netip.AddrPort) error
	// Receive reads one frame into buf, waiting at most timeout. The
	// returned address is the sender's when the socket reports it.
	Receive(buf []byte, timeout time.Duration) (int, netip.Addr, error)
	Close() error
}

// Opener opens protocol conns on an interface
type Opener interface {
	Open(proto codec.Protocol, iface network.Interface) (Conn, error)
}

// SystemOpener Opener backed by OS sockets
type SystemOpener struct{}

// NewSystemOpener returns a new SystemOpener
func NewSystemOpener() *SystemOpener {
	return &SystemOpener{}
}

// Open opens the socket matching proto: a link layer socket for ARP, a
// raw ICMP socket for echo and a UDP socket for name probing
func (o *SystemOpener) Open(proto codec.Protocol, iface network.Interface) (Conn, error) {
	var conn Conn
	var err error

	switch proto {
	case codec.ARP:
		conn, err = openEthernet(iface)
	case codec.ICMP:
		conn, err = openICMP(iface)
	case codec.DNS, codec.MDNS:
		conn, err = openUDP(iface)
	default:
		return nil, fmt.Errorf("%w: %s", exception.ErrUnsupportedProtocol, proto)
	}

	if err != nil {
		return nil, WrapOpenError(proto, iface, err)
	}

	return conn, nil
}

// WrapOpenError turns socket creation failures caused by missing
// privileges into ErrPermissionDenied
func WrapOpenError(proto codec.Protocol, iface network.Interface, err error) error {
	if IsPermission(err) {
		return fmt.Errorf("%w (%s on %s): %s", exception.ErrPermissionDenied, proto, iface.Name, err)
	}

	return fmt.Errorf("failed to open %s socket on %s: %w", proto, iface.Name, err)
}

// IsPermission reports whether err was caused by missing privileges
func IsPermission(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, exception.ErrPermissionDenied) {
		return true
	}

	// libpcap only reports a message
	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "don't have permission") ||
		strings.Contains(msg, "operation not permitted")
}

// IsTransient reports whether a socket error concerns a single
// destination rather than the socket itself
func IsTransient(err error) bool {
	return errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTDOWN) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOBUFS)
}

// Privileged reports whether the process runs as root. Capabilities such
// as CAP_NET_RAW can grant raw sockets without it, so this is advisory.
func Privileged() bool {
	return os.Geteuid() == 0
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
