package bot_test

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/efortin/factorio-chill/pkg/bot"
)

// fakeUpdater feeds a prepared channel to the poller
type fakeUpdater struct {
	updates chan tgbotapi.Update
	config  tgbotapi.UpdateConfig
	stopped chan struct{}
}

func newFakeUpdater() *fakeUpdater {
	return &fakeUpdater{
		updates: make(chan tgbotapi.Update, 10),
		stopped: make(chan struct{}),
	}
}

func (u *fakeUpdater) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	u.config = config
	return u.updates
}

func (u *fakeUpdater) StopReceivingUpdates() {
	close(u.stopped)
}

var _ = Describe("Poller", func() {
	It("should dispatch updates in order until the channel closes", func() {
		updater := newFakeUpdater()
		handler := &recordingHandler{}
		updater.updates <- commandUpdate(7, 42, "/up")
		updater.updates <- commandUpdate(7, 42, "/down")
		close(updater.updates)

		Expect(bot.NewPoller(updater, handler, nil).Run(context.Background())).To(Succeed())

		Expect(handler.updates).To(HaveLen(2))
		Expect(handler.updates[0].Message.Command()).To(Equal("up"))
		Expect(handler.updates[1].Message.Command()).To(Equal("down"))
		Expect(updater.config.Timeout).To(Equal(bot.DefaultPollTimeout))
		Expect(updater.stopped).To(BeClosed())
	})

	It("should keep polling after a failed reply", func() {
		updater := newFakeUpdater()
		handler := &recordingHandler{err: errBoom}
		updater.updates <- commandUpdate(7, 42, "/up")
		updater.updates <- commandUpdate(7, 42, "/up")
		close(updater.updates)

		Expect(bot.NewPoller(updater, handler, nil).Run(context.Background())).To(Succeed())
		Expect(handler.updates).To(HaveLen(2))
	})

	It("should stop when the context is cancelled", func() {
		updater := newFakeUpdater()
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- bot.NewPoller(updater, &recordingHandler{}, nil).Run(ctx)
		}()

		cancel()
		Eventually(done, time.Second).Should(Receive(BeNil()))
		Expect(updater.stopped).To(BeClosed())
	})
})

var _ = Describe("Webhook registration", func() {
	It("should register the webhook URL", func() {
		sender := &fakeSender{}

		Expect(bot.RegisterWebhook(sender, "https://europe-west3-alice-larp.cloudfunctions.net/factorio-chill", "s3cret_token")).To(Succeed())
		Expect(sender.calls).To(HaveLen(1))

		call := sender.calls[0]
		Expect(call.endpoint).To(Equal("setWebhook"))
		Expect(call.params).To(HaveKeyWithValue("url", "https://europe-west3-alice-larp.cloudfunctions.net/factorio-chill"))
		Expect(call.params).To(HaveKeyWithValue("secret_token", "s3cret_token"))
	})

	It("should omit an empty secret token", func() {
		sender := &fakeSender{}

		Expect(bot.RegisterWebhook(sender, "https://example.com/hook", "")).To(Succeed())
		Expect(sender.calls[0].params).NotTo(HaveKey("secret_token"))
	})

	It("should reject an unparsable URL", func() {
		sender := &fakeSender{}

		Expect(bot.RegisterWebhook(sender, "://nope", "s3cret")).To(MatchError(ContainSubstring("invalid webhook URL")))
		Expect(sender.calls).To(BeEmpty())
	})

	It("should wrap API failures", func() {
		sender := &fakeSender{requestErr: errors.New("Unauthorized")}

		Expect(bot.RegisterWebhook(sender, "https://example.com/hook", "s3cret")).To(MatchError(ContainSubstring("failed to register webhook: Unauthorized")))
		Expect(bot.DeleteWebhook(sender)).To(MatchError(ContainSubstring("failed to delete webhook: Unauthorized")))
	})

	It("should delete the webhook", func() {
		sender := &fakeSender{}

		Expect(bot.DeleteWebhook(sender)).To(Succeed())
		_, ok := sender.requests[0].(tgbotapi.DeleteWebhookConfig)
		Expect(ok).To(BeTrue())
	})
})
