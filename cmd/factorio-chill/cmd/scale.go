package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efortin/factorio-chill/pkg/bot"
	"github.com/efortin/factorio-chill/pkg/operation"
	"github.com/efortin/factorio-chill/pkg/stats"
)

var scaleCmd = &cobra.Command{
	Use:   "scale",
	Short: "Start or stop the game server without going through Telegram",
}

func newScaleSubcommand(use, short string, run func(sw *operation.Switch, ctx context.Context) (*operation.Result, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
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

			result, err := run(sw, cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), bot.FormatResult(result))
			return err
		},
	}
}

func init() {
	rootCmd.AddCommand(scaleCmd)

	scaleCmd.AddCommand(
		newScaleSubcommand("up", "Scale the game server to 1 replica", (*operation.Switch).Start),
		newScaleSubcommand("down", "Scale the game server to 0 replicas", (*operation.Switch).Stop),
		newScaleSubcommand("toggle", "Flip the game server between 0 and 1 replicas", (*operation.Switch).Toggle),
	)
}
