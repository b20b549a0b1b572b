package bot_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/efortin/factorio-chill/pkg/bot"
	"github.com/efortin/factorio-chill/pkg/config"
)

const downUpdate = `{"update_id":5,"message":{"message_id":1,"date":0,` +
	`"from":{"id":42,"is_bot":false,"first_name":"Alice"},` +
	`"chat":{"id":7,"type":"private"},"text":"/down",` +
	`"entities":[{"type":"bot_command","offset":0,"length":5}]}}`

// recordingHandler captures dispatched updates
type recordingHandler struct {
	updates []tgbotapi.Update
	err     error
}

func (h *recordingHandler) HandleUpdate(_ context.Context, update tgbotapi.Update) error {
	h.updates = append(h.updates, update)
	return h.err
}

const webhookSecret = "s3cret_token-1"

var _ = Describe("WebhookServer", func() {
	var (
		cfg     *config.Config
		handler *recordingHandler
		manager *fakeManager
		server  *bot.WebhookServer
	)

	do := func(method, path, body string, headers ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		cfg = config.Default()
		cfg.WebhookSecret = webhookSecret
		handler = &recordingHandler{}
		manager = &fakeManager{}
		server = bot.NewWebhookServer(cfg, handler, manager, nil, nil)
		gin.SetMode(gin.TestMode)
	})

	Describe("update endpoint", func() {
		It("should dispatch updates posted to the function path", func() {
			w := do(http.MethodPost, "/factorio-chill", downUpdate, bot.SecretTokenHeader, webhookSecret)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(handler.updates).To(HaveLen(1))
			Expect(handler.updates[0].UpdateID).To(Equal(5))
			Expect(handler.updates[0].Message.Command()).To(Equal("down"))
			Expect(handler.updates[0].Message.Chat.ID).To(Equal(int64(7)))
		})

		It("should dispatch updates posted to the root path", func() {
			w := do(http.MethodPost, "/", downUpdate, bot.SecretTokenHeader, webhookSecret)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(handler.updates).To(HaveLen(1))
		})

		It("should reject a malformed body", func() {
			w := do(http.MethodPost, "/factorio-chill", `{"update_id":`, bot.SecretTokenHeader, webhookSecret)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("invalid_request"))
			Expect(handler.updates).To(BeEmpty())
		})

		It("should refuse updates without the secret token", func() {
			w := do(http.MethodPost, "/factorio-chill", downUpdate)

			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(handler.updates).To(BeEmpty())
		})

		It("should refuse updates with a wrong secret token", func() {
			w := do(http.MethodPost, "/", downUpdate, bot.SecretTokenHeader, "guessed")

			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(handler.updates).To(BeEmpty())
		})

		It("should refuse every update when no secret is configured", func() {
			cfg.WebhookSecret = ""
			server = bot.NewWebhookServer(cfg, handler, manager, nil, nil)

			Expect(do(http.MethodPost, "/", downUpdate).Code).To(Equal(http.StatusUnauthorized))
			Expect(do(http.MethodPost, "/", downUpdate, bot.SecretTokenHeader, "").Code).To(Equal(http.StatusUnauthorized))
			Expect(handler.updates).To(BeEmpty())
		})

		It("should answer 200 even when the reply could not be sent", func() {
			handler.err = errBoom

			w := do(http.MethodPost, "/factorio-chill", downUpdate, bot.SecretTokenHeader, webhookSecret)
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("should carry a request ID", func() {
			w := do(http.MethodPost, "/", downUpdate, bot.SecretTokenHeader, webhookSecret)
			Expect(w.Header().Get("X-Request-ID")).NotTo(BeEmpty())
		})
	})

	Describe("probes", func() {
		It("should always be healthy", func() {
			Expect(do(http.MethodGet, "/healthz", "").Code).To(Equal(http.StatusOK))
		})

		It("should be ready only once marked ready", func() {
			Expect(do(http.MethodGet, "/readyz", "").Code).To(Equal(http.StatusServiceUnavailable))

			server.SetReady(true)
			Expect(do(http.MethodGet, "/readyz", "").Code).To(Equal(http.StatusOK))
		})

		It("should expose Prometheus metrics", func() {
			do(http.MethodGet, "/healthz", "")

			w := do(http.MethodGet, "/metrics", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("factorio_chill_http_requests_total"))
		})
	})

	Describe("manual operations", func() {
		It("should not be mounted without a token", func() {
			w := do(http.MethodPost, "/operations/start", "", "Authorization", "Bearer anything")

			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(manager.starts).To(BeZero())
		})

		It("should be mounted behind the bearer token", func() {
			cfg.OperationsToken = "s3cret"
			server = bot.NewWebhookServer(cfg, handler, manager, nil, nil)

			Expect(do(http.MethodPost, "/operations/stop", "").Code).To(Equal(http.StatusUnauthorized))

			w := do(http.MethodPost, "/operations/stop", "", "Authorization", "Bearer s3cret")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(manager.stops).To(Equal(1))
		})
	})

	It("should route updates end to end through the dispatcher", func() {
		sender := &fakeSender{}
		dispatcher := bot.NewDispatcher(manager, sender, nil, nil, nil)
		server = bot.NewWebhookServer(cfg, dispatcher, manager, nil, nil)

		w := do(http.MethodPost, "/factorio-chill", downUpdate, bot.SecretTokenHeader, webhookSecret)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(manager.stops).To(Equal(1))
		Expect(sender.texts()).To(Equal([]string{"Done!"}))
	})

	It("should not let a forged update impersonate an allowed user", func() {
		cfg.AllowedUsers = []int64{42}
		sender := &fakeSender{}
		dispatcher := bot.NewDispatcher(manager, sender, cfg.IsUserAllowed, nil, nil)
		server = bot.NewWebhookServer(cfg, dispatcher, manager, nil, nil)

		Expect(do(http.MethodPost, "/factorio-chill", downUpdate).Code).To(Equal(http.StatusUnauthorized))
		Expect(do(http.MethodPost, "/factorio-chill", downUpdate, bot.SecretTokenHeader, "s3cret_token-2").Code).
			To(Equal(http.StatusUnauthorized))

		Expect(manager.stops).To(BeZero())
		Expect(sender.texts()).To(BeEmpty())

		w := do(http.MethodPost, "/factorio-chill", downUpdate, bot.SecretTokenHeader, webhookSecret)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(manager.stops).To(Equal(1))
	})
})
