package cmd

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	k8s "github.com/efortin/factorio-chill/pkg/kubernetes"
	"github.com/efortin/factorio-chill/pkg/stats"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the cluster nodes and their external IPs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		sw, closeSwitch, err := newSwitch(cmd.Context(), cfg, stats.NewMetricsRecorder(), logger)
		if err != nil {
			return err
		}
		defer closeSwitch()

		addrs, err := sw.ExternalIPs(cmd.Context())
		if err != nil {
			return err
		}
		renderNodes(cmd.OutOrStdout(), addrs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nodesCmd)
}

func renderNodes(w io.Writer, addrs []k8s.NodeAddress) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Node", "External IP"})
	table.SetAutoWrapText(false)
	for _, addr := range addrs {
		ip := addr.IP
		if !addr.Found {
			ip = "<none>"
		}
		table.Append([]string{addr.Node, ip})
	}
	table.Render()
}
