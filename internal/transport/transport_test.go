package transport_test

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/robgonnella/lanmap/internal/codec"
	"github.com/robgonnella/lanmap/internal/exception"
	"github.com/robgonnella/lanmap/internal/network"
	"github.com/robgonnella/lanmap/internal/transport"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	iface := network.Interface{Name: "eth0"}

	t.Run("maps socket permission errors", func(st *testing.T) {
		opErr := &net.OpError{
			Op:  "listen",
			Net: "ip4:icmp",
			Err: os.NewSyscallError("socket", syscall.EPERM),
		}

		err := transport.WrapOpenError(codec.ICMP, iface, opErr)

		assert.True(st, errors.Is(err, exception.ErrPermissionDenied))
	})

	t.Run("maps pcap permission messages", func(st *testing.T) {
		err := transport.WrapOpenError(
			codec.ARP,
			iface,
			errors.New("en0: You don't have permission to capture on that device"),
		)

		assert.True(st, errors.Is(err, exception.ErrPermissionDenied))
	})

	t.Run("keeps other errors distinct", func(st *testing.T) {
		cause := errors.New("no such device")
		err := transport.WrapOpenError(codec.ARP, iface, cause)

		assert.False(st, errors.Is(err, exception.ErrPermissionDenied))
		assert.True(st, errors.Is(err, cause))
	})

	t.Run("detects per destination errors", func(st *testing.T) {
		err := fmt.Errorf("write: %w", os.NewSyscallError("sendto", syscall.EHOSTUNREACH))

		assert.True(st, transport.IsTransient(err))
		assert.False(st, transport.IsTransient(errors.New("network is down")))
	})

	t.Run("rejects unknown protocols", func(st *testing.T) {
		_, err := transport.NewSystemOpener().Open(codec.Protocol(99), iface)

		assert.True(st, errors.Is(err, exception.ErrUnsupportedProtocol))
	})
}
