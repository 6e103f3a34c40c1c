package config_test

import (
	"os"
	"path"
	"testing"
	"time"

	"github.com/robgonnella/lanmap/internal/config"
	"github.com/robgonnella/lanmap/internal/network"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("fills missing values with defaults", func(st *testing.T) {
		file := path.Join(st.TempDir(), "config.yml")

		err := os.WriteFile(file, []byte("timeout: 500ms\nprotocols: [arp]\ninclude-all: true\n"), 0644)
		require.NoError(st, err)

		conf, err := config.New(file)
		require.NoError(st, err)

		assert.Equal(st, 500*time.Millisecond, conf.Timeout)
		assert.Equal(st, []string{"arp"}, conf.Protocols)
		assert.True(st, conf.IncludeAll)
		assert.Equal(st, config.Default().Retries, conf.Retries)
		assert.Equal(st, config.Default().Deadline, conf.Deadline)
	})

	t.Run("rejects invalid values", func(st *testing.T) {
		file := path.Join(st.TempDir(), "config.yml")

		err := os.WriteFile(file, []byte("protocols: [arp, tcp]\n"), 0644)
		require.NoError(st, err)

		_, err = config.New(file)
		assert.Error(st, err)
	})

	t.Run("uses defaults without a file", func(st *testing.T) {
		conf, err := config.Load(path.Join(st.TempDir(), "missing.yml"))

		require.NoError(st, err)
		assert.Equal(st, config.Default(), conf)
		assert.NoError(st, conf.Validate())
	})

	t.Run("overlays flag and environment values", func(st *testing.T) {
		v := viper.New()
		v.Set("deadline", "5s")
		v.Set("protocols", []string{"icmp"})
		v.Set("rate", 0)

		conf := config.Default()
		conf.Overlay(v)

		assert.Equal(st, 5*time.Second, conf.Deadline)
		assert.Equal(st, []string{"icmp"}, conf.Protocols)
		assert.Equal(st, 0, conf.Rate)
		assert.Equal(st, config.Default().Timeout, conf.Timeout)
		assert.NoError(st, conf.Validate())
	})

	t.Run("accepts the resolver forms the network package parses", func(st *testing.T) {
		for _, resolver := range []string{"8.8.8.8", "8.8.8.8:53", "192.168.1.1:5353"} {
			conf := config.Default()
			conf.Resolver = resolver

			assert.NoErrorf(st, conf.Validate(), "resolver %q", resolver)

			_, err := network.ParseResolver(resolver)
			assert.NoErrorf(st, err, "resolver %q", resolver)
		}

		for _, resolver := range []string{"8.8.8.8:99999", "not a resolver"} {
			conf := config.Default()
			conf.Resolver = resolver

			assert.Errorf(st, conf.Validate(), "resolver %q", resolver)
		}
	})

	t.Run("writes a config that reads back", func(st *testing.T) {
		file := path.Join(st.TempDir(), "config.yml")
		viper.Set("config-file", file)

		conf := config.Default()
		conf.Resolver = "192.168.1.1:53"

		require.NoError(st, config.Write(*conf))

		loaded, err := config.New(file)
		require.NoError(st, err)
		assert.Equal(st, conf, loaded)
	})
}
