// Package bot turns Telegram updates into game server operations.
package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/efortin/factorio-chill/pkg/operation"
	"github.com/efortin/factorio-chill/pkg/stats"
)

// Commands understood by the bot
const (
	CommandUp   = "up"
	CommandDown = "down"
)

// Sender delivers messages and chat actions to Telegram
type Sender interface {
	Requester
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UpdateHandler consumes a single Telegram update
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// Authorizer decides whether a Telegram user may issue commands
type Authorizer func(userID int64) bool

// Dispatcher routes /up and /down to the operation manager and replies in the originating chat
type Dispatcher struct {
	manager   operation.Manager
	sender    Sender
	authorize Authorizer
	metrics   *stats.MetricsRecorder
	logger    *zap.Logger
}

// NewDispatcher creates a new Dispatcher. A nil authorizer allows every sender.
func NewDispatcher(manager operation.Manager, sender Sender, authorize Authorizer, metrics *stats.MetricsRecorder, logger *zap.Logger) *Dispatcher {
	if authorize == nil {
		authorize = func(int64) bool { return true }
	}
	if metrics == nil {
		metrics = stats.NewMetricsRecorder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		manager:   manager,
		sender:    sender,
		authorize: authorize,
		metrics:   metrics,
		logger:    logger,
	}
}

// HandleUpdate runs the command carried by the update, if any, and replies to the chat.
// The returned error only reports a reply that could not be delivered.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return nil
	}

	command := msg.Command()
	if command != CommandUp && command != CommandDown {
		d.logger.Debug("Ignoring unknown command", zap.String("command", command))
		return nil
	}

	logger := d.logger.With(
		zap.String("command", command),
		zap.Int64("chat_id", msg.Chat.ID),
		zap.Int("update_id", update.UpdateID),
	)
	if msg.From != nil {
		logger = logger.With(zap.Int64("user_id", msg.From.ID), zap.String("username", msg.From.UserName))
	}

	if msg.From == nil || !d.authorize(msg.From.ID) {
		logger.Warn("Rejected command from unauthorized user")
		d.metrics.RecordCommand(command, stats.OutcomeUnauthorized)
		return d.reply(logger, msg.Chat.ID, MessageUnauthorized)
	}

	logger.Info("Handling command")
	d.typing(logger, msg.Chat.ID)

	var (
		result *operation.Result
		err    error
	)
	switch command {
	case CommandUp:
		result, err = d.manager.Start(ctx)
	case CommandDown:
		result, err = d.manager.Stop(ctx)
	}

	if err != nil {
		logger.Error("Command failed", zap.Error(err))
		d.metrics.RecordCommand(command, stats.OutcomeFailure)
		return d.reply(logger, msg.Chat.ID, FormatFailure(command, err))
	}

	outcome := stats.OutcomeSuccess
	if result.IPError != nil || len(result.MissingIP) > 0 {
		outcome = stats.OutcomePartial
	}
	d.metrics.RecordCommand(command, outcome)
	logger.Info("Command completed", zap.String("outcome", outcome), zap.Int32("replicas", result.Replicas))

	return d.reply(logger, msg.Chat.ID, FormatResult(result))
}

// typing shows a "typing" indicator; failures are not worth more than a debug line
func (d *Dispatcher) typing(logger *zap.Logger, chatID int64) {
	if _, err := d.sender.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		logger.Debug("Failed to send chat action", zap.Error(err))
	}
}

func (d *Dispatcher) reply(logger *zap.Logger, chatID int64, text string) error {
	if _, err := d.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		logger.Error("Failed to send reply", zap.Error(err))
		d.metrics.RecordReplyFailure()
		return fmt.Errorf("failed to send reply to chat %d: %w", chatID, err)
	}
	return nil
}
