package commands

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	app_info "github.com/robgonnella/lanmap/internal/app-info"
	"github.com/robgonnella/lanmap/internal/network"
	"github.com/robgonnella/lanmap/internal/transport"
	"github.com/spf13/cobra"
)

func info(props *CommandProps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "info",
		Aliases: []string{"i"},
		Short:   "Print interfaces, gateway and the auto detected network",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			ifaces, err := props.Inspector.Interfaces()

			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%s: %s\n\n", app_info.NAME, app_info.VERSION)

			table := tablewriter.NewWriter(out)
			table.Header("Name", "Index", "MAC", "IPv4", "Network", "Up", "Loopback")

			for _, iface := range ifaces {
				addr, prefix, mac := none, none, none

				if iface.Addr.IsValid() {
					addr = iface.Addr.String()
					prefix = iface.Prefix.String()
				}

				if len(iface.HardwareAddr) > 0 {
					mac = iface.HardwareAddr.String()
				}

				if err := table.Append([]string{
					iface.Name,
					strconv.Itoa(iface.Index),
					mac,
					addr,
					prefix,
					strconv.FormatBool(iface.Up),
					strconv.FormatBool(iface.Loopback),
				}); err != nil {
					return err
				}
			}

			if err := table.Render(); err != nil {
				return err
			}

			fmt.Fprintln(out)

			gateway := none

			if gw, err := props.Inspector.Gateway(); err == nil {
				gateway = gw.String()
			}

			fmt.Fprintf(out, "gateway:  %s\n", gateway)

			if spec, iface, err := network.ResolveAutoLAN(props.Inspector); err == nil {
				fmt.Fprintf(out, "lan:      %s via %s\n", spec, iface.Name)
			} else {
				fmt.Fprintf(out, "lan:      %s\n", err)
			}

			resolver := none

			if r, err := network.DefaultResolver(network.ResolvConf); err == nil {
				resolver = r.String()
			}

			fmt.Fprintf(out, "resolver: %s\n", resolver)

			if !transport.Privileged() {
				fmt.Fprintln(out, "\narp and icmp probes need root or CAP_NET_RAW")
			}

			return nil
		},
	}

	return cmd
}
