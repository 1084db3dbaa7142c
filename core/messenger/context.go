package messenger

import (
	"context"
	"sync"

	"github.com/m3rciful/mbot/core/session"
)

// HandlerFunc processes one inbound event.
type HandlerFunc func(c Context) error

// MiddlewareFunc wraps a handler. Calling next continues the chain;
// returning without calling it short-circuits the rest of the pass.
type MiddlewareFunc func(next HandlerFunc) HandlerFunc

// Context carries a single inbound event through the middleware chain
// and into handlers. A context is built fresh per event and must not be
// retained after the handler returns.
type Context interface {
	// Context returns the request-scoped context carrying the rid and
	// event metadata for logging and store calls.
	Context() context.Context

	// Bot returns the bot processing this event.
	Bot() *Bot

	// Event returns the raw messaging event.
	Event() *Event

	// Message returns the inbound message, or nil for non-message events.
	Message() *Message

	// Postback returns the inbound postback, or nil otherwise.
	Postback() *Postback

	// EventType reports which On* event this is.
	EventType() string

	// Sender returns the page-scoped id of the user this event came from.
	Sender() string

	// PageID returns the id of the page that received the event.
	PageID() string

	// Text returns the message text, empty when the event has none.
	Text() string

	// Payload returns the quick reply payload for messages and the
	// button payload for postbacks, empty otherwise.
	Payload() string

	// Attachments returns inbound attachments, nil when there are none.
	Attachments() []Attachment

	// AttachmentsOfType filters inbound attachments by type tag.
	AttachmentsOfType(kind string) []Attachment

	// Session returns the per-user session bound to this pass. Before
	// session middleware runs it is a fresh unattached session.
	Session() *session.Session

	// SetSession binds the session loaded from the store to this pass.
	SetSession(s *session.Session)

	// Send delivers a reply to the event's sender. Accepts a string or a
	// *template.Message; delivery failures are logged, not returned.
	Send(what any) error

	// SendText delivers a plain text reply to the event's sender.
	SendText(text string) error

	// SendTyping toggles the typing indicator for the event's sender.
	SendTyping(on bool) error

	// Set stores a value scoped to this event pass.
	Set(key string, value any)

	// Get retrieves a value stored with Set, or nil.
	Get(key string) any
}

type nativeContext struct {
	b     *Bot
	ctx   context.Context
	event *Event
	sess  *session.Session

	lock  sync.RWMutex
	store map[string]any
}

// NewContext builds a context for one event. Exposed so integrators can
// drive handlers directly in tests.
func (b *Bot) NewContext(ctx context.Context, e *Event) Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &nativeContext{
		b:     b,
		ctx:   ctx,
		event: e,
		sess:  session.New(),
	}
}

func (c *nativeContext) Context() context.Context {
	if v := c.Get(ctxStashKey); v != nil {
		if ctx, ok := v.(context.Context); ok {
			return ctx
		}
	}
	return c.ctx
}

func (c *nativeContext) Bot() *Bot {
	return c.b
}

func (c *nativeContext) Event() *Event {
	return c.event
}

func (c *nativeContext) Message() *Message {
	if c.event == nil {
		return nil
	}
	return c.event.Message
}

func (c *nativeContext) Postback() *Postback {
	if c.event == nil {
		return nil
	}
	return c.event.Postback
}

func (c *nativeContext) EventType() string {
	return c.event.Type()
}

func (c *nativeContext) Sender() string {
	if c.event == nil {
		return ""
	}
	return c.event.Sender.ID
}

func (c *nativeContext) PageID() string {
	if c.event == nil {
		return ""
	}
	return c.event.Recipient.ID
}

func (c *nativeContext) Text() string {
	return c.event.Text()
}

func (c *nativeContext) Payload() string {
	switch {
	case c.event == nil:
		return ""
	case c.event.Message != nil && c.event.Message.QuickReply != nil:
		return c.event.Message.QuickReply.Payload
	case c.event.Postback != nil:
		return c.event.Postback.Payload
	default:
		return ""
	}
}

func (c *nativeContext) Attachments() []Attachment {
	if c.event == nil || c.event.Message == nil {
		return nil
	}
	return c.event.Message.Attachments
}

func (c *nativeContext) AttachmentsOfType(kind string) []Attachment {
	var out []Attachment
	for _, a := range c.Attachments() {
		if a.Type == kind {
			out = append(out, a)
		}
	}
	return out
}

func (c *nativeContext) Session() *session.Session {
	return c.sess
}

func (c *nativeContext) SetSession(s *session.Session) {
	if s == nil {
		s = session.New()
	}
	c.sess = s
}

func (c *nativeContext) Send(what any) error {
	return c.b.send(c, what)
}

func (c *nativeContext) SendText(text string) error {
	return c.b.send(c, text)
}

func (c *nativeContext) SendTyping(on bool) error {
	action := SenderActionTypingOff
	if on {
		action = SenderActionTypingOn
	}
	return c.b.senderAction(c, action)
}

func (c *nativeContext) Set(key string, value any) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.store == nil {
		c.store = make(map[string]any)
	}
	c.store[key] = value
}

func (c *nativeContext) Get(key string) any {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.store[key]
}

// Pass-scoped stash keys used by the framework itself.
const (
	ctxStashKey  = "ctx"
	sentStashKey = "messages"
)

// StoreContext attaches a derived request context to the pass. Later
// calls to c.Context() return it, so middleware can thread rid and
// event metadata through to handlers and summary logs.
func StoreContext(c Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(ctxStashKey, ctx)
}

// addSent bumps the per-pass outbound message counter.
func addSent(c Context) {
	n := 0
	if v := c.Get(sentStashKey); v != nil {
		if nv, ok := v.(int); ok {
			n = nv
		}
	}
	c.Set(sentStashKey, n+1)
}

// sentCount reads the per-pass outbound message counter.
func sentCount(c Context) int {
	if v := c.Get(sentStashKey); v != nil {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return 0
}
