package commands

import (
	"context"
	"errors"
	"slices"

	"github.com/robgonnella/lanmap/internal/config"
	"github.com/robgonnella/lanmap/internal/core"
	"github.com/robgonnella/lanmap/internal/discovery"
	"github.com/robgonnella/lanmap/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flag name -> config key
var discoverBindings = map[string]string{
	"interface": "interface",
	"protocols": "protocols",
	"timeout":   "timeout",
	"retries":   "retries",
	"backoff":   "backoff",
	"deadline":  "deadline",
	"rate":      "rate",
	"all":       "include-all",
	"resolver":  "resolver",
}

func discover(props *CommandProps) *cobra.Command {
	var noDNS bool
	var asJSON bool
	var updateVendors bool

	defaults := config.Default()

	cmd := &cobra.Command{
		Use:     "discover [target...]",
		Aliases: []string{"d"},
		Short:   "Discover live hosts in a range, CIDR block, host list or the local network",
		Long: `Discover live hosts using ARP, ICMP echo and DNS / mDNS name probes.

Targets may be a CIDR block (192.168.1.0/24), a range (10.0.0.1-10.0.0.40),
a shorthand range (10.0.0.1-40), a single host, a comma separated list of
those, or "lan" for the network of the default interface. Without targets
the local network is scanned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New()

			conf := *props.Conf
			conf.Overlay(viper.GetViper())

			if noDNS {
				conf.Protocols = slices.DeleteFunc(
					slices.Clone(conf.Protocols),
					func(p string) bool { return p == "dns" || p == "mdns" },
				)
			}

			if err := conf.Validate(); err != nil {
				return err
			}

			options := []core.Option{}

			if props.Vendors != nil {
				if updateVendors {
					if err := refreshVendors(props.Vendors); err != nil {
						log.Warn().Err(err).Msg("failed to update vendor database")
					}
				}

				options = append(options, core.WithVendorRepo(props.Vendors))
			}

			c := core.New(conf, props.Inspector, props.Opener, options...)

			scan, err := c.RunScan(cmd.Context(), args)

			if err != nil {
				return err
			}

			log.Info().Fields(map[string]interface{}{
				"session":   scan.ID,
				"interface": scan.Interface.Name,
				"targets":   core.Describe(scan.Targets),
			}).Msg("scanning")

			hosts := []*discovery.Host{}

			for host := range scan.Hosts() {
				log.Debug().Str("ip", host.IP.String()).Msg("found host")
				hosts = append(hosts, host)
			}

			err = scan.Wait()

			if errors.Is(err, context.Canceled) {
				log.Warn().Msg("scan interrupted, showing partial results")
				err = nil
			}

			if err != nil {
				return err
			}

			log.Info().Int("hosts", len(hosts)).Msg("scan complete")

			return writeHosts(cmd.OutOrStdout(), hosts, asJSON)
		},
	}

	flags := cmd.Flags()

	flags.StringP("interface", "i", "", "interface to scan from")
	flags.StringSlice("protocols", defaults.Protocols, "probe protocols: arp, icmp, dns, mdns")
	flags.Duration("timeout", defaults.Timeout, "per probe reply timeout")
	flags.Int("retries", defaults.Retries, "attempts per address and protocol")
	flags.Duration("backoff", defaults.Backoff, "base delay before a retry, doubled per attempt")
	flags.Duration("deadline", defaults.Deadline, "overall scan deadline")
	flags.Int("rate", defaults.Rate, "probes per second, 0 for unlimited")
	flags.BoolP("all", "a", false, "report every scanned address, even without replies")
	flags.String("resolver", "", "DNS resolver host:port, defaults to the system resolver")
	flags.BoolVarP(&noDNS, "no-dns", "n", false, "skip dns and mdns name probes")
	flags.BoolVar(&asJSON, "json", false, "print results as JSON")
	flags.BoolVar(&updateVendors, "update-vendors", false, "download the latest MAC vendor database before scanning")

	for flag, key := range discoverBindings {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

// refreshVendors updates repos that can fetch a newer OUI database
func refreshVendors(repo discovery.VendorRepo) error {
	updater, ok := repo.(interface{ UpdateVendors() error })

	if !ok {
		return nil
	}

	return updater.UpdateVendors()
}
