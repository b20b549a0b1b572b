package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/efortin/factorio-chill/pkg/bot"
	"github.com/efortin/factorio-chill/pkg/config"
	"github.com/efortin/factorio-chill/pkg/operation"
	"github.com/efortin/factorio-chill/pkg/stats"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot",
	Long: `Run the Telegram bot.

In production (NODE_ENV=production) the bot registers its webhook with
Telegram and serves updates over HTTP, along with health probes and
Prometheus metrics. Otherwise it removes any webhook and long-polls.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if err := cfg.ValidateBot(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("bot-token", "", "Telegram bot token")
	flags.String("mode", config.ModeDevelopment, "production for webhook, anything else for long polling")
	flags.String("function-name", config.DefaultFunctionName, "Function name used in the webhook URL and route")
	flags.String("webhook-url", "", "Public webhook URL, derived from zone, project and function name when empty")
	flags.String("webhook-secret", "", "Secret Telegram echoes on every webhook request (A-Z a-z 0-9 _ -), random per process when empty")
	flags.String("port", config.DefaultPort, "HTTP server port")
	flags.String("allowed-users", "", "Comma separated Telegram user IDs allowed to issue commands")
	flags.String("operations-token", "", "Bearer token enabling the /operations endpoints")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := stats.NewMetricsRecorder()

	sw, closeSwitch, err := newSwitch(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closeSwitch()

	if err := tgbotapi.SetLogger(zap.NewStdLog(logger.Named("telegram"))); err != nil {
		return err
	}
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	api.Debug = cfg.LogLevel == "debug"

	logger.Info("Starting factorio-chill",
		zap.String("version", versionInfo.version),
		zap.String("bot", api.Self.UserName),
		zap.String("mode", cfg.Mode),
		zap.String("cluster", cfg.ContextName()),
		zap.String("deployment", cfg.Namespace+"/"+cfg.Deployment),
	)
	if len(cfg.AllowedUsers) == 0 {
		logger.Warn("No allowed users configured, every Telegram user can start and stop the server")
	}

	dispatcher := bot.NewDispatcher(sw, api, cfg.IsUserAllowed, metrics, logger)

	if cfg.IsProduction() {
		return serveWebhook(ctx, cfg, api, dispatcher, sw, metrics, logger)
	}
	return servePolling(ctx, api, dispatcher, logger)
}

func serveWebhook(ctx context.Context, cfg *config.Config, api bot.APIClient, handler bot.UpdateHandler, manager operation.Manager, metrics *stats.MetricsRecorder, logger *zap.Logger) error {
	if cfg.WebhookSecret == "" {
		// uuid strings only use characters Telegram accepts in a secret_token
		cfg.WebhookSecret = uuid.NewString()
		logger.Warn("No webhook secret configured, generated one for this process; set WEBHOOK_SECRET when running several instances")
	}
	if cfg.WaitReady {
		logger.Info("Readiness wait runs inside the webhook request", zap.Duration("ready_timeout", cfg.GetReadyTimeout()))
	}

	server := bot.NewWebhookServer(cfg, handler, manager, metrics, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		url := cfg.GetWebhookURL()
		if err := bot.RegisterWebhook(api, url, cfg.WebhookSecret); err != nil {
			return err
		}
		logger.Info("Registered webhook", zap.String("url", url))
		server.SetReady(true)
		return nil
	})
	return g.Wait()
}

func servePolling(ctx context.Context, api *tgbotapi.BotAPI, handler bot.UpdateHandler, logger *zap.Logger) error {
	if err := bot.DeleteWebhook(api); err != nil {
		return err
	}
	return bot.NewPoller(api, handler, logger).Run(ctx)
}
