// Package config holds the runtime configuration of factorio-chill.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults for the single game server this bot manages.
const (
	DefaultZone         = "europe-west3"
	DefaultProjectID    = "alice-larp"
	DefaultCluster      = "cost-cutting-autopilot"
	DefaultNamespace    = "default"
	DefaultDeployment   = "factorio"
	DefaultFunctionName = "factorio-chill"
	DefaultPort         = "8080"
	DefaultReadyTimeout = "2m"

	// MaxWebhookReadyWait bounds the readiness wait while a webhook request is open.
	// Telegram abandons and redelivers an update that is not answered in time.
	MaxWebhookReadyWait = 45 * time.Second

	// MaxWebhookSecretLength is the longest secret_token Telegram accepts
	MaxWebhookSecretLength = 256

	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Config holds the configuration assembled once at startup
type Config struct {
	// Telegram
	BotToken     string
	Mode         string
	FunctionName string
	WebhookURL   string // overrides the Cloud Functions URL when set
	Port         string
	AllowedUsers []int64
	// WebhookSecret is echoed by Telegram on every webhook request, generated when empty
	WebhookSecret string

	// Target cluster and workload
	ProjectID  string
	Zone       string
	Cluster    string
	Namespace  string
	Deployment string

	// Behaviour
	ReportIPs    bool
	WaitReady    bool
	ReadyTimeout string

	// Manual HTTP operations, disabled when empty
	OperationsToken string

	LogLevel  string
	LogFormat string
}

// Validate checks that the target identity and ambient settings are usable
func (c *Config) Validate() error {
	if c.Zone == "" {
		return fmt.Errorf("zone cannot be empty")
	}
	if c.Cluster == "" {
		return fmt.Errorf("cluster cannot be empty")
	}
	if c.Namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if c.Deployment == "" {
		return fmt.Errorf("deployment cannot be empty")
	}
	if c.ReadyTimeout != "" {
		if _, err := time.ParseDuration(c.ReadyTimeout); err != nil {
			return fmt.Errorf("invalid ready timeout: %w", err)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("invalid log format: %s (must be json/console)", c.LogFormat)
	}
	return nil
}

// ValidateBot additionally checks what the chat transport needs
func (c *Config) ValidateBot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.BotToken == "" {
		return fmt.Errorf("bot token cannot be empty")
	}
	if err := ValidateWebhookSecret(c.WebhookSecret); err != nil {
		return err
	}
	if c.IsProduction() {
		if c.FunctionName == "" {
			return fmt.Errorf("function name cannot be empty in production")
		}
		if c.WebhookURL == "" && c.ProjectID == "" {
			return fmt.Errorf("project ID or webhook URL is required in production")
		}
	}
	return nil
}

// ValidateWebhookSecret checks a secret against Telegram's secret_token rules.
// An empty secret is accepted and replaced at startup.
func ValidateWebhookSecret(secret string) error {
	if len(secret) > MaxWebhookSecretLength {
		return fmt.Errorf("invalid webhook secret: longer than %d characters", MaxWebhookSecretLength)
	}
	for _, r := range secret {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("invalid webhook secret: character %q not in A-Z a-z 0-9 _ -", r)
		}
	}
	return nil
}

// IsProduction reports whether the bot runs behind a webhook
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Mode, ModeProduction)
}

// GetWebhookURL returns the public callback URL registered with Telegram
func (c *Config) GetWebhookURL() string {
	if c.WebhookURL != "" {
		return c.WebhookURL
	}
	return fmt.Sprintf("https://%s-%s.cloudfunctions.net/%s", c.Zone, c.ProjectID, c.FunctionName)
}

// GetReadyTimeout parses and returns the readiness wait timeout.
// In production the wait runs inside the webhook request and is capped at MaxWebhookReadyWait.
func (c *Config) GetReadyTimeout() time.Duration {
	d, err := time.ParseDuration(c.ReadyTimeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultReadyTimeout)
	}
	if c.IsProduction() && d > MaxWebhookReadyWait {
		return MaxWebhookReadyWait
	}
	return d
}

// GetServerAddress returns the listen address of the webhook server
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// IsUserAllowed reports whether a Telegram user may issue commands.
// An empty allow-list trusts everyone.
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// ParseUserIDs parses a comma or whitespace separated list of Telegram user IDs
func ParseUserIDs(raw string) ([]int64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})

	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q: %w", f, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ContextName is the kubeconfig context name gcloud would generate
func (c *Config) ContextName() string {
	return fmt.Sprintf("gke_%s_%s_%s", c.ProjectID, c.Zone, c.Cluster)
}

// Default returns a Config populated with the built-in defaults
func Default() *Config {
	return &Config{
		Mode:         ModeDevelopment,
		FunctionName: DefaultFunctionName,
		Port:         DefaultPort,
		ProjectID:    DefaultProjectID,
		Zone:         DefaultZone,
		Cluster:      DefaultCluster,
		Namespace:    DefaultNamespace,
		Deployment:   DefaultDeployment,
		ReportIPs:    true,
		ReadyTimeout: DefaultReadyTimeout,
		LogLevel:     "info",
		LogFormat:    "json",
	}
}
