package bot

import (
	"context"
	"fmt"
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// DefaultPollTimeout is the long polling timeout in seconds
const DefaultPollTimeout = 60

// Requester performs raw Telegram API calls
type Requester interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// APIClient performs Telegram calls by endpoint name
type APIClient interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Updater is the long polling side of the Telegram API
type Updater interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poller consumes updates through getUpdates, one at a time
type Poller struct {
	updater Updater
	handler UpdateHandler
	timeout int
	logger  *zap.Logger
}

// NewPoller creates a new Poller
func NewPoller(updater Updater, handler UpdateHandler, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		updater: updater,
		handler: handler,
		timeout: DefaultPollTimeout,
		logger:  logger,
	}
}

// Run dispatches updates until the context is cancelled or the channel closes
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.timeout

	updates := p.updater.GetUpdatesChan(cfg)
	defer p.updater.StopReceivingUpdates()

	p.logger.Info("Polling for updates", zap.Int("timeout_seconds", p.timeout))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping update polling")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := p.handler.HandleUpdate(ctx, update); err != nil {
				p.logger.Error("Failed to handle update", zap.Int("update_id", update.UpdateID), zap.Error(err))
			}
		}
	}
}

// RegisterWebhook points Telegram at the given public URL. Telegram echoes
// secret in the SecretTokenHeader of every update it delivers there.
func RegisterWebhook(api APIClient, webhookURL, secret string) error {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL %q: %w", webhookURL, err)
	}

	params := tgbotapi.Params{"url": u.String()}
	params.AddNonEmpty("secret_token", secret)
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes any registered webhook so getUpdates can be used
func DeleteWebhook(api Requester) error {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}
