package cmd

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/efortin/factorio-chill/pkg/rbac"
	"github.com/efortin/factorio-chill/pkg/stats"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the bot's identity holds the RBAC permissions it needs",
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

		clientset, err := sw.Clientset(cmd.Context())
		if err != nil {
			return err
		}

		results, err := rbac.CheckAll(cmd.Context(), clientset, cfg.Namespace)
		if err != nil {
			return err
		}
		renderPermissions(cmd.OutOrStdout(), results)

		if err := rbac.Missing(results); err != nil {
			return err
		}
		logger.Info("All required permissions are granted", zap.String("cluster", cfg.ContextName()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func renderPermissions(w io.Writer, results []rbac.PermissionResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Permission", "Allowed"})
	table.SetAutoWrapText(false)
	for _, r := range results {
		allowed := "no"
		if r.Allowed {
			allowed = "yes"
		}
		table.Append([]string{r.Permission.String(), allowed})
	}
	table.Render()
}
