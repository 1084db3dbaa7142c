package messenger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	coreconfig "github.com/m3rciful/mbot/core/config"
	"github.com/m3rciful/mbot/core/logger"
	"log/slog"
)

const maxUpdateBytes = 1 << 20

// Webhook terminates the platform's HTTP callbacks: the verification
// handshake on GET and event delivery on POST, both on one path.
type Webhook struct {
	bot  *Bot
	path string
}

// NewWebhook builds the webhook endpoints for the bot.
func NewWebhook(b *Bot, path string) *Webhook {
	if path == "" {
		path = coreconfig.DefaultWebhookPath
	}
	return &Webhook{bot: b, path: path}
}

// Mount attaches the webhook routes to an existing router.
func (wh *Webhook) Mount(r chi.Router) {
	r.Get(wh.path, wh.verify)
	r.Post(wh.path, wh.receive)
}

// Handler returns a standalone router serving only the webhook routes.
func (wh *Webhook) Handler() http.Handler {
	r := chi.NewRouter()
	wh.Mount(r)
	return r
}

// verify answers the subscription handshake: echo the challenge when
// the mode and token match, refuse with 403 otherwise. An empty
// configured token never verifies.
func (wh *Webhook) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && wh.bot.verifyToken != "" && token == wh.bot.verifyToken {
		logger.Info(r.Context(), "http", "webhook.verify",
			slog.String("status", "ok"),
			slog.String("path", wh.path),
		)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	logger.Warn(r.Context(), "http", "webhook.verify.reject",
		slog.String("path", wh.path),
		slog.String("mode", mode),
	)
	w.WriteHeader(http.StatusForbidden)
}

// receive parses one delivery and runs its events in order before
// acknowledging. Anything that does not look like a page event batch is
// refused with 404; handler failures never surface here.
func (wh *Webhook) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	if err != nil {
		logger.Warn(r.Context(), "http", "webhook.reject",
			slog.String("reason", "body_read_failed"),
			slog.String("err", err.Error()),
		)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var u Update
	if err := json.Unmarshal(body, &u); err != nil {
		logger.Warn(r.Context(), "http", "webhook.reject",
			slog.String("reason", "malformed_json"),
		)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if u.Object != "page" {
		logger.Warn(r.Context(), "http", "webhook.reject",
			slog.String("reason", "unexpected_object"),
			slog.String("object", u.Object),
		)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	events := 0
	for _, entry := range u.Entry {
		events += len(entry.Messaging)
	}
	logger.Debug(r.Context(), "http", "webhook.received",
		slog.Int("count", events),
	)

	// Detached from the request so queued sends and session writes are
	// not cancelled when the client goes away after the ack.
	wh.bot.ProcessUpdate(context.WithoutCancel(r.Context()), u)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}
