package messenger

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/m3rciful/mbot/core/logger"
	"github.com/m3rciful/mbot/core/messenger/sender"
	"github.com/m3rciful/mbot/core/messenger/template"
	"log/slog"
)

// ErrUnsupportedSendable is returned when Send receives a value it
// cannot turn into an outbound message.
var ErrUnsupportedSendable = errors.New("messenger: unsupported sendable type")

var errNoRecipient = errors.New("messenger: event has no sender to reply to")

// Settings configures a Bot. Token and VerifyToken come from the page
// setup in the developer console.
type Settings struct {
	Token       string
	VerifyToken string

	// APIURL and Version select the Graph API endpoint. Zero values use
	// the production defaults.
	APIURL  string
	Version string

	// Client overrides the tuned default HTTP client.
	Client *http.Client

	// ExclusiveDispatch suppresses generic handlers once an action,
	// command or hears trigger matched. The default keeps them running
	// as observers on every event.
	ExclusiveDispatch bool

	// OnError receives handler and middleware errors for this bot. When
	// unset, trapped errors are logged and dropped.
	OnError func(err error, c Context)

	// Offline skips the page identity probe at construction. Meant for
	// tests that never reach the network.
	Offline bool
}

// Bot receives webhook events and dispatches them to registered
// handlers through the middleware chain. All registration methods are
// meant to be called before serving begins.
type Bot struct {
	// Me holds the page identity probed at construction. Nil in offline
	// mode.
	Me *Page

	client      *Client
	registry    *Registry
	middlewares []MiddlewareFunc
	onError     func(error, Context)
	exclusive   bool
	verifyToken string
	dispatcher  *sender.Dispatcher
}

// NewBot builds a bot from settings and, unless Offline is set, probes
// the page identity to fail fast on a bad token.
func NewBot(pref Settings) (*Bot, error) {
	if pref.Token == "" {
		return nil, errors.New("messenger: access token is required")
	}

	b := &Bot{
		client: NewClient(ClientOptions{
			Token:   pref.Token,
			APIURL:  pref.APIURL,
			Version: pref.Version,
			Client:  pref.Client,
		}),
		registry:    NewRegistry(),
		onError:     pref.OnError,
		exclusive:   pref.ExclusiveDispatch,
		verifyToken: pref.VerifyToken,
	}

	if !pref.Offline {
		page, err := b.client.Me(context.Background())
		if err != nil {
			return nil, fmt.Errorf("messenger: page identity probe failed: %w", err)
		}
		b.Me = page
	}

	return b, nil
}

// Use appends middleware to the chain in execution order.
func (b *Bot) Use(middleware ...MiddlewareFunc) {
	b.middlewares = append(b.middlewares, middleware...)
}

// On registers a generic handler for an event type. All handlers for a
// type run on each matching event.
func (b *Bot) On(event string, h HandlerFunc) {
	b.registry.RegisterOn(event, h)
}

// Command registers a handler for message text matching the trigger: a
// string (exact match), a *regexp.Regexp, or a slice of either.
func (b *Bot) Command(trigger any, h HandlerFunc) {
	b.registry.RegisterCommand(trigger, h)
}

// Hears registers a handler for message text containing the pattern: a
// string (case-insensitive substring), a *regexp.Regexp, or a slice of
// either.
func (b *Bot) Hears(pattern any, h HandlerFunc) {
	b.registry.RegisterHears(pattern, h)
}

// Action registers a handler for an exact postback or quick reply
// payload. Accepts a string or []string.
func (b *Bot) Action(payload any, h HandlerFunc) {
	b.registry.RegisterAction(payload, h)
}

// Catch installs the global error handler invoked for every error that
// escapes a handler or middleware. Errors never reach the transport
// either way.
func (b *Bot) Catch(fn func(err error, c Context)) {
	b.onError = fn
}

// Registry exposes the routing table for diagnostics.
func (b *Bot) Registry() *Registry {
	return b.registry
}

// Client exposes the Graph API client, for profile configuration calls.
func (b *Bot) Client() *Client {
	return b.client
}

// SetDispatcher routes outbound sends through the asynchronous
// dispatcher. Pass nil to send synchronously again.
func (b *Bot) SetDispatcher(d *sender.Dispatcher) {
	b.dispatcher = d
}

// ProcessUpdate walks one webhook envelope and handles every event it
// carries. Events within a single delivery run strictly in order;
// concurrency only comes from concurrent deliveries.
func (b *Bot) ProcessUpdate(ctx context.Context, u Update) {
	for _, entry := range u.Entry {
		for i := range entry.Messaging {
			e := &entry.Messaging[i]
			if e.Recipient.ID == "" {
				e.Recipient.ID = entry.ID
			}
			b.HandleEvent(ctx, e)
		}
	}
}

// HandleEvent runs the middleware chain and the dispatcher for one
// event. Every error raised along the way is trapped here: it reaches
// the handler installed with Catch, or a log line, and nothing else.
func (b *Bot) HandleEvent(ctx context.Context, e *Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.WithRID(ctx, logger.NewRID())

	mid := ""
	if e != nil && e.Message != nil {
		mid = e.Message.MID
	}
	var userID, pageID string
	if e != nil {
		userID = e.Sender.ID
		pageID = e.Recipient.ID
	}
	ctx = logger.WithEventMeta(ctx, mid, userID, pageID)

	c := b.NewContext(ctx, e)
	chain := applyMiddleware(b.dispatch, b.middlewares)

	if err := chain(c); err != nil {
		b.trapError(err, c)
	}
}

func (b *Bot) trapError(err error, c Context) {
	if b.onError != nil {
		b.onError(err, c)
		return
	}
	logger.Error(c.Context(), "bot", "handler.error",
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.String("err_code", deriveErrorCode(err)),
	)
}

// send resolves the recipient and payload, then delivers through the
// async dispatcher when one is installed, synchronously otherwise.
// Delivery failures are logged and swallowed; only payload construction
// problems come back to the caller.
func (b *Bot) send(c Context, what any) error {
	to := c.Sender()
	if to == "" {
		return errNoRecipient
	}

	var msg *template.Message
	switch v := what.(type) {
	case string:
		msg = template.Text(v)
	case *template.Message:
		msg = v
	case template.Message:
		msg = &v
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedSendable, what)
	}
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrUnsupportedSendable)
	}

	ctx := c.Context()
	if d := b.dispatcher; d != nil {
		err := d.Enqueue(ctx, "message.send", endpointMessages, func() error {
			return b.client.SendMessage(ctx, to, msg)
		})
		if err == nil {
			addSent(c)
			return nil
		}
		logger.Warn(ctx, "bot", "send.enqueue.fallback",
			slog.String("err", err.Error()),
		)
	}

	if err := b.client.SendMessage(ctx, to, msg); err != nil {
		logger.Error(ctx, "bot", "send.fail",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
		return nil
	}
	addSent(c)
	return nil
}

// senderAction delivers typing indicators and read receipts. Failures
// are logged and swallowed like message sends.
func (b *Bot) senderAction(c Context, action string) error {
	to := c.Sender()
	if to == "" {
		return errNoRecipient
	}

	ctx := c.Context()
	if d := b.dispatcher; d != nil {
		err := d.Enqueue(ctx, "sender_action."+action, endpointMessages, func() error {
			return b.client.SenderAction(ctx, to, action)
		})
		if err == nil {
			return nil
		}
		logger.Warn(ctx, "bot", "send.enqueue.fallback",
			slog.String("err", err.Error()),
		)
	}

	if err := b.client.SenderAction(ctx, to, action); err != nil {
		logger.Error(ctx, "bot", "send.fail",
			slog.String("action", action),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
	return nil
}
