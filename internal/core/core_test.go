package core_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/robgonnella/lanmap/internal/codec"
	"github.com/robgonnella/lanmap/internal/config"
	"github.com/robgonnella/lanmap/internal/core"
	"github.com/robgonnella/lanmap/internal/discovery"
	"github.com/robgonnella/lanmap/internal/exception"
	mock_network "github.com/robgonnella/lanmap/internal/mock/network"
	mock_transport "github.com/robgonnella/lanmap/internal/mock/transport"
	"github.com/robgonnella/lanmap/internal/network"
	"github.com/robgonnella/lanmap/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eth0 = network.Interface{
	Name:         "eth0",
	Index:        2,
	HardwareAddr: net.HardwareAddr{2, 0, 0, 0, 0, 1},
	Addr:         netip.MustParseAddr("192.168.1.5"),
	Prefix:       netip.MustParsePrefix("192.168.1.0/24"),
	Up:           true,
}

func testConf() config.Config {
	conf := *config.Default()
	conf.Protocols = []string{"arp"}
	conf.Timeout = 20 * time.Millisecond
	conf.Backoff = 0
	conf.Retries = 1
	conf.Deadline = 2 * time.Second
	conf.Rate = 0
	return conf
}

func silentConn(ctrl *gomock.Controller) *mock_transport.MockConn {
	conn := mock_transport.NewMockConn(ctrl)

	conn.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	conn.EXPECT().Receive(gomock.Any(), gomock.Any()).DoAndReturn(
		func(buf []byte, timeout time.Duration) (int, netip.Addr, error) {
			time.Sleep(timeout)
			return 0, netip.Addr{}, transport.ErrReadTimeout
		},
	).AnyTimes()
	conn.EXPECT().Close().Return(nil).AnyTimes()

	return conn
}

func TestExpand(t *testing.T) {
	ctrl := gomock.NewController(t)

	defer ctrl.Finish()

	t.Run("resolves lan through the inspector", func(st *testing.T) {
		inspector := mock_network.NewMockInspector(ctrl)
		opener := mock_transport.NewMockOpener(ctrl)

		inspector.EXPECT().Interfaces().Return([]network.Interface{eth0}, nil).AnyTimes()
		inspector.EXPECT().Gateway().Return(netip.MustParseAddr("192.168.1.1"), nil).AnyTimes()

		c := core.New(testConf(), inspector, opener)

		seq, err := c.Expand("lan")

		require.NoError(st, err)
		assert.Equal(st, uint64(254), seq.Len())

		first, ok := seq.Next()

		assert.True(st, ok)
		assert.Equal(st, "192.168.1.1", first.String())
	})

	t.Run("expands lists in order", func(st *testing.T) {
		inspector := mock_network.NewMockInspector(ctrl)
		opener := mock_transport.NewMockOpener(ctrl)

		c := core.New(testConf(), inspector, opener)

		seq, err := c.Expand("10.0.0.9", "10.0.0.1-2")

		require.NoError(st, err)

		got := []string{}

		for addr, ok := seq.Next(); ok; addr, ok = seq.Next() {
			got = append(got, addr.String())
		}

		assert.Equal(st, []string{"10.0.0.9", "10.0.0.1", "10.0.0.2"}, got)
	})

	t.Run("returns invalid target spec", func(st *testing.T) {
		inspector := mock_network.NewMockInspector(ctrl)
		opener := mock_transport.NewMockOpener(ctrl)

		c := core.New(testConf(), inspector, opener)

		_, err := c.Expand("10.0.0.300")

		assert.ErrorIs(st, err, exception.ErrInvalidTargetSpec)
	})
}

func TestRunScan(t *testing.T) {
	ctrl := gomock.NewController(t)

	defer ctrl.Finish()

	t.Run("completes a scan with no responders", func(st *testing.T) {
		inspector := mock_network.NewMockInspector(ctrl)
		opener := mock_transport.NewMockOpener(ctrl)

		inspector.EXPECT().Interfaces().Return([]network.Interface{eth0}, nil).AnyTimes()
		opener.EXPECT().Open(codec.ARP, eth0).Return(silentConn(ctrl), nil)

		c := core.New(testConf(), inspector, opener)

		scan, err := c.RunScan(context.Background(), []string{"192.168.1.10-12"})

		require.NoError(st, err)
		assert.NotEmpty(st, scan.ID)
		assert.Equal(st, "eth0", scan.Interface.Name)

		hosts := []*discovery.Host{}

		for h := range scan.Hosts() {
			hosts = append(hosts, h)
		}

		assert.NoError(st, scan.Wait())
		assert.Empty(st, hosts)
	})

	t.Run("include all reports every address", func(st *testing.T) {
		inspector := mock_network.NewMockInspector(ctrl)
		opener := mock_transport.NewMockOpener(ctrl)

		inspector.EXPECT().Interfaces().Return([]network.Interface{eth0}, nil).AnyTimes()
		opener.EXPECT().Open(codec.ARP, eth0).Return(silentConn(ctrl), nil)

		conf := testConf()
		conf.IncludeAll = true

		c := core.New(conf, inspector, opener)

		scan, err := c.RunScan(context.Background(), []string{"192.168.1.10-12"})

		require.NoError(st, err)

		count := 0

		for range scan.Hosts() {
			count++
		}

		assert.NoError(st, scan.Wait())
		assert.Equal(st, 3, count)
	})

	t.Run("honours configured interface", func(st *testing.T) {
		inspector := mock_network.NewMockInspector(ctrl)
		opener := mock_transport.NewMockOpener(ctrl)

		inspector.EXPECT().Interfaces().Return([]network.Interface{eth0}, nil).AnyTimes()

		conf := testConf()
		conf.Interface = "wlan9"

		c := core.New(conf, inspector, opener)

		_, err := c.RunScan(context.Background(), []string{"192.168.1.10"})

		assert.ErrorIs(st, err, exception.ErrNoSuitableInterface)
	})

	t.Run("returns no suitable interface for lan", func(st *testing.T) {
		inspector := mock_network.NewMockInspector(ctrl)
		opener := mock_transport.NewMockOpener(ctrl)

		inspector.EXPECT().Interfaces().Return([]network.Interface{}, nil).AnyTimes()
		inspector.EXPECT().Gateway().Return(netip.Addr{}, errors.New("no route")).AnyTimes()

		c := core.New(testConf(), inspector, opener)

		_, err := c.RunScan(context.Background(), nil)

		assert.ErrorIs(st, err, exception.ErrNoSuitableInterface)
		assert.Equal(st, 3, core.ExitCode(err))
	})

	t.Run("returns permission denied before any host", func(st *testing.T) {
		inspector := mock_network.NewMockInspector(ctrl)
		opener := mock_transport.NewMockOpener(ctrl)

		inspector.EXPECT().Interfaces().Return([]network.Interface{eth0}, nil).AnyTimes()
		opener.EXPECT().Open(codec.ARP, eth0).Return(
			nil,
			fmt.Errorf("%w: arp socket", exception.ErrPermissionDenied),
		)

		c := core.New(testConf(), inspector, opener)

		scan, err := c.RunScan(context.Background(), []string{"192.168.1.10"})

		assert.Nil(st, scan)
		assert.ErrorIs(st, err, exception.ErrPermissionDenied)
		assert.Equal(st, 4, core.ExitCode(err))
	})

	t.Run("returns invalid target spec", func(st *testing.T) {
		inspector := mock_network.NewMockInspector(ctrl)
		opener := mock_transport.NewMockOpener(ctrl)

		c := core.New(testConf(), inspector, opener)

		_, err := c.RunScan(context.Background(), []string{"10.0.0.5-10.0.0.1"})

		assert.ErrorIs(st, err, exception.ErrInvalidTargetSpec)
		assert.Equal(st, 2, core.ExitCode(err))
	})

	t.Run("returns unsupported protocol", func(st *testing.T) {
		inspector := mock_network.NewMockInspector(ctrl)
		opener := mock_transport.NewMockOpener(ctrl)

		inspector.EXPECT().Interfaces().Return([]network.Interface{eth0}, nil).AnyTimes()

		conf := testConf()
		conf.Protocols = []string{"tcp"}

		c := core.New(conf, inspector, opener)

		_, err := c.RunScan(context.Background(), []string{"192.168.1.10"})

		assert.Error(st, err)
		assert.Equal(st, 1, core.ExitCode(err))
	})
}
