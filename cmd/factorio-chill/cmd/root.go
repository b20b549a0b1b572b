package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/efortin/factorio-chill/pkg/config"
	"github.com/efortin/factorio-chill/pkg/gke"
	k8s "github.com/efortin/factorio-chill/pkg/kubernetes"
	"github.com/efortin/factorio-chill/pkg/logging"
	"github.com/efortin/factorio-chill/pkg/operation"
	"github.com/efortin/factorio-chill/pkg/stats"
)

var v = viper.New()

var versionInfo = struct {
	version string
	commit  string
	date    string
}{"dev", "none", "unknown"}

var rootCmd = &cobra.Command{
	Use:   "factorio-chill",
	Short: "Telegram bot that starts and stops a Factorio server on GKE",
	Long: `factorio-chill scales the game server Deployment between 0 and 1
replicas on demand, so the cluster only costs money while people play.

Send /up to the bot to start the server and get the nodes' external IPs,
and /down to stop it. The same operations are available from the CLI.`,
	SilenceUsage: true,
}

// envBindings maps configuration keys to their environment variables
var envBindings = map[string]string{
	"bot-token":        "BOT_TOKEN",
	"mode":             "NODE_ENV",
	"function-name":    "FUNCTION_TARGET",
	"webhook-url":      "WEBHOOK_URL",
	"webhook-secret":   "WEBHOOK_SECRET",
	"port":             "PORT",
	"allowed-users":    "ALLOWED_USERS",
	"operations-token": "OPERATIONS_TOKEN",
	"project":          "GCP_PROJECT",
	"zone":             "GKE_ZONE",
	"cluster":          "GKE_CLUSTER",
	"namespace":        "TARGET_NAMESPACE",
	"deployment":       "TARGET_DEPLOYMENT",
	"report-ips":       "REPORT_IPS",
	"wait-ready":       "WAIT_READY",
	"ready-timeout":    "READY_TIMEOUT",
	"log-level":        "LOG_LEVEL",
	"log-format":       "LOG_FORMAT",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion records build information
func SetVersion(version, commit, date string) {
	versionInfo.version = version
	versionInfo.commit = commit
	versionInfo.date = date
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.String("project", config.DefaultProjectID, "GCP project ID")
	flags.String("zone", config.DefaultZone, "GKE cluster location")
	flags.String("cluster", config.DefaultCluster, "GKE cluster name")
	flags.String("namespace", config.DefaultNamespace, "Namespace of the game server Deployment")
	flags.String("deployment", config.DefaultDeployment, "Game server Deployment name")
	flags.Bool("report-ips", true, "Report node external IPs after starting")
	flags.Bool("wait-ready", false, "Wait for the Deployment to become ready after starting, capped at 45s in production where it holds the webhook request open")
	flags.String("ready-timeout", config.DefaultReadyTimeout, "Maximum time to wait for readiness")
	flags.String("log-level", "info", "Log level (debug/info/warn/error)")
	flags.String("log-format", "json", "Log format (json/console)")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

// loadConfig assembles the configuration from flags, environment and defaults
func loadConfig() (*config.Config, error) {
	allowed, err := config.ParseUserIDs(v.GetString("allowed-users"))
	if err != nil {
		return nil, fmt.Errorf("invalid allowed users: %w", err)
	}

	cfg := &config.Config{
		BotToken:        v.GetString("bot-token"),
		Mode:            v.GetString("mode"),
		FunctionName:    v.GetString("function-name"),
		WebhookURL:      v.GetString("webhook-url"),
		WebhookSecret:   v.GetString("webhook-secret"),
		Port:            v.GetString("port"),
		AllowedUsers:    allowed,
		ProjectID:       v.GetString("project"),
		Zone:            v.GetString("zone"),
		Cluster:         v.GetString("cluster"),
		Namespace:       v.GetString("namespace"),
		Deployment:      v.GetString("deployment"),
		ReportIPs:       v.GetBool("report-ips"),
		WaitReady:       v.GetBool("wait-ready"),
		ReadyTimeout:    v.GetString("ready-timeout"),
		OperationsToken: v.GetString("operations-token"),
		LogLevel:        v.GetString("log-level"),
		LogFormat:       v.GetString("log-format"),
	}
	if cfg.Mode == "" {
		cfg.Mode = config.ModeDevelopment
	}
	if cfg.Port == "" {
		cfg.Port = config.DefaultPort
	}
	if cfg.FunctionName == "" {
		cfg.FunctionName = config.DefaultFunctionName
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup loads the configuration and builds the logger every subcommand needs
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newSwitch wires the GKE credential resolver into an operation switch.
// The returned func releases the Container API connection.
func newSwitch(ctx context.Context, cfg *config.Config, metrics *stats.MetricsRecorder, logger *zap.Logger) (*operation.Switch, func(), error) {
	resolver, err := gke.NewResolver(ctx, cfg.ProjectID, gke.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("Failed to close Container API client", zap.Error(err))
		}
	}
	return operation.NewSwitch(resolver, k8s.NewClientset, cfg, metrics, logger), closer, nil
}
