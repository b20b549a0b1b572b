package bot_test

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/efortin/factorio-chill/pkg/bot"
	"github.com/efortin/factorio-chill/pkg/config"
	"github.com/efortin/factorio-chill/pkg/operation"
)

var _ = Describe("Dispatcher", func() {
	var (
		manager    *fakeManager
		sender     *fakeSender
		dispatcher *bot.Dispatcher
		ctx        context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager = &fakeManager{}
		sender = &fakeSender{}
		dispatcher = bot.NewDispatcher(manager, sender, nil, nil, nil)
	})

	Describe("/down", func() {
		It("should stop the server and reply Done!", func() {
			Expect(dispatcher.HandleUpdate(ctx, commandUpdate(7, 42, "/down"))).To(Succeed())

			Expect(manager.stops).To(Equal(1))
			Expect(manager.starts).To(BeZero())
			Expect(sender.texts()).To(Equal([]string{"Done!"}))
			Expect(sender.messages[0].ChatID).To(Equal(int64(7)))
		})

		It("should report the failure to the requester", func() {
			manager.stopErr = errors.New("failed to update deployment default/factorio: conflict")

			Expect(dispatcher.HandleUpdate(ctx, commandUpdate(7, 42, "/down"))).To(Succeed())
			Expect(sender.texts()).To(Equal([]string{
				"Failed to stop the server: failed to update deployment default/factorio: conflict",
			}))
		})
	})

	Describe("/up", func() {
		It("should reply with one IP per line", func() {
			manager.startResult = &operation.Result{
				Action:   operation.ActionStart,
				Replicas: 1,
				IPs:      []string{"34.1.1.1", "34.2.2.2"},
			}

			Expect(dispatcher.HandleUpdate(ctx, commandUpdate(7, 42, "/up"))).To(Succeed())
			Expect(manager.starts).To(Equal(1))
			Expect(sender.texts()).To(Equal([]string{"Done!\nIP addresses:\n34.1.1.1\n34.2.2.2"}))
		})

		It("should send a typing action before replying", func() {
			Expect(dispatcher.HandleUpdate(ctx, commandUpdate(7, 42, "/up"))).To(Succeed())

			Expect(sender.actions).To(HaveLen(1))
			Expect(sender.actions[0].Action).To(Equal(tgbotapi.ChatTyping))
			Expect(sender.actions[0].ChatID).To(Equal(int64(7)))
		})

		It("should still reply when the typing action fails", func() {
			sender.requestErr = errors.New("too many requests")

			Expect(dispatcher.HandleUpdate(ctx, commandUpdate(7, 42, "/up"))).To(Succeed())
			Expect(sender.texts()).To(Equal([]string{"Done!"}))
		})

		It("should accept commands addressed to the bot by name", func() {
			Expect(dispatcher.HandleUpdate(ctx, commandUpdate(7, 42, "/up@factorio_chill_bot"))).To(Succeed())
			Expect(manager.starts).To(Equal(1))
		})

		It("should report a partial success", func() {
			manager.startResult = &operation.Result{
				Action:   operation.ActionStart,
				Replicas: 1,
				IPError:  errors.New("failed to list nodes: forbidden"),
			}

			Expect(dispatcher.HandleUpdate(ctx, commandUpdate(7, 42, "/up"))).To(Succeed())
			Expect(sender.texts()).To(Equal([]string{
				"Done!\n(could not list node IP addresses: failed to list nodes: forbidden)",
			}))
		})

		It("should report the failure to the requester", func() {
			manager.startErr = errors.New("failed to resolve cluster credentials: permission denied")

			Expect(dispatcher.HandleUpdate(ctx, commandUpdate(7, 42, "/up"))).To(Succeed())
			Expect(sender.texts()).To(ConsistOf(
				"Failed to start the server: failed to resolve cluster credentials: permission denied",
			))
		})
	})

	Describe("ignored updates", func() {
		It("should ignore updates without a message", func() {
			Expect(dispatcher.HandleUpdate(ctx, tgbotapi.Update{UpdateID: 1})).To(Succeed())
			Expect(sender.requests).To(BeEmpty())
			Expect(sender.messages).To(BeEmpty())
		})

		It("should ignore plain text", func() {
			update := commandUpdate(7, 42, "/up")
			update.Message.Entities = nil
			update.Message.Text = "up please"

			Expect(dispatcher.HandleUpdate(ctx, update)).To(Succeed())
			Expect(manager.starts).To(BeZero())
			Expect(sender.messages).To(BeEmpty())
		})

		It("should ignore unknown commands", func() {
			Expect(dispatcher.HandleUpdate(ctx, commandUpdate(7, 42, "/start"))).To(Succeed())
			Expect(manager.starts).To(BeZero())
			Expect(manager.stops).To(BeZero())
			Expect(sender.messages).To(BeEmpty())
		})
	})

	Describe("allow-list", func() {
		BeforeEach(func() {
			cfg := config.Default()
			cfg.AllowedUsers = []int64{42}
			dispatcher = bot.NewDispatcher(manager, sender, cfg.IsUserAllowed, nil, nil)
		})

		It("should let allowed users through", func() {
			Expect(dispatcher.HandleUpdate(ctx, commandUpdate(7, 42, "/down"))).To(Succeed())
			Expect(manager.stops).To(Equal(1))
		})

		It("should refuse other users without scaling", func() {
			Expect(dispatcher.HandleUpdate(ctx, commandUpdate(7, 1337, "/down"))).To(Succeed())

			Expect(manager.stops).To(BeZero())
			Expect(sender.actions).To(BeEmpty())
			Expect(sender.texts()).To(Equal([]string{bot.MessageUnauthorized}))
		})

		It("should refuse messages without a sender", func() {
			update := commandUpdate(7, 42, "/up")
			update.Message.From = nil

			Expect(dispatcher.HandleUpdate(ctx, update)).To(Succeed())
			Expect(manager.starts).To(BeZero())
		})
	})

	It("should return an error when the reply cannot be sent", func() {
		sender.sendErr = errBoom

		err := dispatcher.HandleUpdate(ctx, commandUpdate(7, 42, "/down"))
		Expect(err).To(MatchError(errBoom))
		Expect(err.Error()).To(ContainSubstring("chat 7"))
		Expect(manager.stops).To(Equal(1))
	})
})
