package discovery_test

import (
	"encoding/json"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/robgonnella/go-lanscan/pkg/oui"
	"github.com/robgonnella/lanmap/internal/codec"
	"github.com/robgonnella/lanmap/internal/discovery"
	mock_discovery "github.com/robgonnella/lanmap/internal/mock/discovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addr = netip.MustParseAddr("192.168.1.20")

func fixture() []discovery.Evidence {
	now := time.Unix(1700000000, 0)

	return []discovery.Evidence{
		{Protocol: codec.ARP, Addr: addr, Seen: now, HardwareAddr: net.HardwareAddr{0xaa, 0, 0, 0, 0, 2}},
		{Protocol: codec.ARP, Addr: addr, Seen: now.Add(time.Second), HardwareAddr: net.HardwareAddr{0xaa, 0, 0, 0, 0, 1}},
		{Protocol: codec.ICMP, Addr: addr, Seen: now.Add(2 * time.Second), RTT: 3 * time.Millisecond},
		{Protocol: codec.ICMP, Addr: addr, Seen: now.Add(3 * time.Second), RTT: time.Millisecond},
		{Protocol: codec.MDNS, Addr: addr, Seen: now, Names: []string{"zed.local."}, Services: []string{"_ssh._tcp"}},
		{Protocol: codec.MDNS, Addr: addr, Seen: now, Names: []string{"alpha.local."}, Services: []string{"_http._tcp", "_ssh._tcp"}},
		{Protocol: codec.DNS, Addr: addr, Seen: now, Names: []string{"nas.lan."}},
	}
}

// permutations calls fn with every ordering of items
func permutations(items []discovery.Evidence, fn func([]discovery.Evidence)) {
	var permute func(int)

	permute = func(k int) {
		if k == len(items) {
			fn(append([]discovery.Evidence{}, items...))
			return
		}

		for i := k; i < len(items); i++ {
			items[k], items[i] = items[i], items[k]
			permute(k + 1)
			items[k], items[i] = items[i], items[k]
		}
	}

	permute(0)
}

func TestMerge(t *testing.T) {
	t.Run("materialize is independent of merge order", func(st *testing.T) {
		var expected *discovery.Host
		var expectedState *discovery.HostState

		permutations(fixture(), func(order []discovery.Evidence) {
			state := discovery.NewHostState(addr)

			for _, e := range order {
				state.Merge(e)
			}

			host, ok := discovery.Materialize(state, false)
			require.True(st, ok)

			if expected == nil {
				expected = host
				expectedState = state
				return
			}

			assert.Equal(st, expected, host)
			assert.Equal(st, expectedState, state)
		})
	})

	t.Run("combines protocol evidence", func(st *testing.T) {
		state := discovery.NewHostState(addr)

		for _, e := range fixture() {
			state.Merge(e)
		}

		assert.Equal(st, time.Millisecond, state.Protocols[codec.ICMP].RTT)
		assert.Equal(st, time.Unix(1700000001, 0), state.Protocols[codec.ARP].LastSeen)

		host, ok := discovery.Materialize(state, false)
		require.True(st, ok)

		assert.Equal(st, addr, host.IP)
		assert.Equal(st, "aa:00:00:00:00:01", host.MAC.String())
		assert.Equal(st, "nas.lan", host.Hostname)
		assert.Equal(st, []string{"_http._tcp", "_ssh._tcp"}, host.Services)
	})

	t.Run("falls back to mdns names", func(st *testing.T) {
		state := discovery.NewHostState(addr)

		for _, e := range fixture() {
			if e.Protocol != codec.DNS {
				state.Merge(e)
			}
		}

		host, ok := discovery.Materialize(state, false)
		require.True(st, ok)
		assert.Equal(st, "alpha.local", host.Hostname)
	})

	t.Run("ignores evidence for other addresses", func(st *testing.T) {
		state := discovery.NewHostState(addr)

		merged := state.Merge(discovery.Evidence{
			Protocol: codec.ICMP,
			Addr:     netip.MustParseAddr("192.168.1.21"),
		})

		assert.False(st, merged)
		assert.False(st, state.Responded())
	})
}

func TestMaterialize(t *testing.T) {
	t.Run("returns nothing without evidence", func(st *testing.T) {
		host, ok := discovery.Materialize(discovery.NewHostState(addr), false)

		assert.False(st, ok)
		assert.Nil(st, host)
	})

	t.Run("include all returns only the ip", func(st *testing.T) {
		host, ok := discovery.Materialize(discovery.NewHostState(addr), true)

		require.True(st, ok)
		assert.Equal(st, addr, host.IP)
		assert.Nil(st, host.MAC)
		assert.Empty(st, host.Hostname)
		assert.Empty(st, host.Services)
	})

	t.Run("an empty resolver answer is not evidence", func(st *testing.T) {
		state := discovery.NewHostState(addr)
		state.Merge(discovery.Evidence{Protocol: codec.DNS, Addr: addr})

		_, ok := discovery.Materialize(state, false)
		assert.False(st, ok)
	})

	t.Run("does not share memory with the state", func(st *testing.T) {
		state := discovery.NewHostState(addr)
		state.Merge(discovery.Evidence{Protocol: codec.ARP, Addr: addr, HardwareAddr: net.HardwareAddr{1, 2, 3, 4, 5, 6}})

		host, ok := discovery.Materialize(state, false)
		require.True(st, ok)

		host.MAC[0] = 0xff

		assert.Equal(st, byte(1), state.Protocols[codec.ARP].HardwareAddr[0])
	})

	t.Run("marshals json", func(st *testing.T) {
		host := discovery.Host{
			IP:       addr,
			MAC:      net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
			Vendor:   "Synology",
			Hostname: "nas.lan",
			Services: []string{"_smb._tcp"},
		}

		b, err := json.Marshal(host)
		require.NoError(st, err)

		assert.JSONEq(
			st,
			`{"ip":"192.168.1.20","mac":"aa:bb:cc:dd:ee:ff","vendor":"Synology","hostname":"nas.lan","services":["_smb._tcp"]}`,
			string(b),
		)
	})
}

func TestVendor(t *testing.T) {
	ctrl := gomock.NewController(t)

	defer ctrl.Finish()

	mac := net.HardwareAddr{0x00, 0x11, 0x32, 0x01, 0x02, 0x03}

	t.Run("returns the registered vendor", func(st *testing.T) {
		repo := mock_discovery.NewMockVendorRepo(ctrl)

		repo.EXPECT().Query(mac).Return(&oui.VendorResult{Name: "Synology"}, nil)

		vendor, err := discovery.Vendor(repo, mac)

		require.NoError(st, err)
		assert.Equal(st, "Synology", vendor)
	})

	t.Run("skips hosts without a mac", func(st *testing.T) {
		repo := mock_discovery.NewMockVendorRepo(ctrl)

		vendor, err := discovery.Vendor(repo, nil)

		require.NoError(st, err)
		assert.Empty(st, vendor)
	})

	t.Run("skips lookups without a repo", func(st *testing.T) {
		vendor, err := discovery.Vendor(nil, mac)

		require.NoError(st, err)
		assert.Empty(st, vendor)
	})

	t.Run("returns lookup errors", func(st *testing.T) {
		repo := mock_discovery.NewMockVendorRepo(ctrl)

		repo.EXPECT().Query(mac).Return(nil, errors.New("no oui database"))

		vendor, err := discovery.Vendor(repo, mac)

		assert.Error(st, err)
		assert.Empty(st, vendor)
	})
}
