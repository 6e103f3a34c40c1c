package commands

import (
	"encoding/json"
	"io"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/robgonnella/lanmap/internal/discovery"
)

const none = "-"

func writeHosts(w io.Writer, hosts []*discovery.Host, asJSON bool) error {
	slices.SortFunc(hosts, func(a, b *discovery.Host) int {
		return a.IP.Compare(b.IP)
	})

	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(hosts)
	}

	table := tablewriter.NewWriter(w)
	table.Header("IP", "MAC", "Vendor", "Hostname", "Services")

	for _, host := range hosts {
		mac := none

		if len(host.MAC) > 0 {
			mac = host.MAC.String()
		}

		if err := table.Append([]string{
			host.IP.String(),
			mac,
			orNone(host.Vendor),
			orNone(host.Hostname),
			orNone(strings.Join(host.Services, ", ")),
		}); err != nil {
			return err
		}
	}

	return table.Render()
}

func orNone(s string) string {
	if s == "" {
		return none
	}

	return s
}
