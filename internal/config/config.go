package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/imdario/mergo"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the data structure of our user provided yaml configuration
type Config struct {
	Interface  string        `yaml:"interface"`
	Protocols  []string      `yaml:"protocols" validate:"required,min=1,dive,oneof=arp icmp dns mdns"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	Retries    int           `yaml:"retries" validate:"min=1,max=10"`
	Backoff    time.Duration `yaml:"backoff" validate:"gte=0"`
	Deadline   time.Duration `yaml:"deadline" validate:"gt=0"`
	Rate       int           `yaml:"rate" validate:"min=0"`
	Senders    int           `yaml:"senders" validate:"min=1,max=64"`
	Window     int           `yaml:"window" validate:"min=1,max=65536"`
	IncludeAll bool          `yaml:"include-all"`
	Resolver   string        `yaml:"resolver" validate:"omitempty,hostname_port|ip4_addr"`
}

var validate = validator.New()

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Protocols: []string{"arp", "icmp", "dns", "mdns"},
		Timeout:   time.Second,
		Retries:   2,
		Backoff:   250 * time.Millisecond,
		Deadline:  30 * time.Second,
		Rate:      1000,
		Senders:   4,
		Window:    1024,
	}
}

// New returns umarshaled data structure of user provided config with any
// missing values taken from Default
func New(confPath string) (*Config, error) {
	var config Config

	raw, err := os.ReadFile(confPath)

	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, err
	}

	if err := mergo.Merge(&config, Default()); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Load returns the config at confPath or the default config if there is
// no file yet
func Load(confPath string) (*Config, error) {
	conf, err := New(confPath)

	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return conf, err
}

// Overlay replaces values with any set in v, from bound command flags or
// the environment
func (c *Config) Overlay(v *viper.Viper) {
	if v.IsSet("interface") {
		c.Interface = v.GetString("interface")
	}

	if v.IsSet("protocols") {
		c.Protocols = v.GetStringSlice("protocols")
	}

	if v.IsSet("timeout") {
		c.Timeout = v.GetDuration("timeout")
	}

	if v.IsSet("retries") {
		c.Retries = v.GetInt("retries")
	}

	if v.IsSet("backoff") {
		c.Backoff = v.GetDuration("backoff")
	}

	if v.IsSet("deadline") {
		c.Deadline = v.GetDuration("deadline")
	}

	if v.IsSet("rate") {
		c.Rate = v.GetInt("rate")
	}

	if v.IsSet("senders") {
		c.Senders = v.GetInt("senders")
	}

	if v.IsSet("window") {
		c.Window = v.GetInt("window")
	}

	if v.IsSet("include-all") {
		c.IncludeAll = v.GetBool("include-all")
	}

	if v.IsSet("resolver") {
		c.Resolver = v.GetString("resolver")
	}
}

// Validate checks every value is usable
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// Write saves conf to the config file path shared through viper
func Write(conf Config) error {
	configFile := viper.GetString("config-file")

	file, err := os.Create(configFile)

	if err != nil {
		return err
	}

	defer file.Close()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)

	return encoder.Encode(conf)
}
