package messenger

import (
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/mbot/core/logger"
	"log/slog"
)

// dispatch routes one event through the registries. It is the terminal
// stage of the middleware chain; a scene that claims the event earlier
// in the chain prevents it from running at all.
func (b *Bot) dispatch(c Context) error {
	switch c.EventType() {
	case OnMessage:
		return b.dispatchMessage(c)
	case OnPostback:
		return b.dispatchPostback(c)
	case OnDelivery, OnRead, OnReferral:
		return b.runGeneric(c, c.EventType())
	default:
		logger.Debug(c.Context(), "bot", "dispatch.skip",
			slog.String("reason", "unroutable_event"),
		)
		return nil
	}
}

// dispatchMessage applies the message precedence: an action registered
// for the quick reply payload claims the event, else the first matching
// command, else every matching hears pattern. Generic message handlers
// run afterwards regardless of an earlier match, so observer-style
// handlers see every message; exclusive dispatch suppresses them once
// something matched.
func (b *Bot) dispatchMessage(c Context) error {
	matched := false

	if payload := c.Payload(); payload != "" {
		if h, ok := b.registry.GetAction(payload); ok {
			matched = true
			if err := b.handleWithSummary(c, normalizeHandlerName(payload), h,
				slog.String("action", payload),
			); err != nil {
				return err
			}
		}
	}

	text := c.Text()
	if !matched && text != "" {
		if name, h, ok := b.registry.matchCommand(text); ok {
			matched = true
			if err := b.handleWithSummary(c, normalizeHandlerName(name), h,
				slog.String("command", name),
			); err != nil {
				return err
			}
		}
	}

	if !matched && text != "" {
		for _, m := range b.registry.matchHears(text) {
			matched = true
			if err := b.handleWithSummary(c, normalizeHandlerName(m.pattern), m.handler,
				slog.String("pattern", m.pattern),
			); err != nil {
				return err
			}
		}
	}

	if matched && b.exclusive {
		return nil
	}
	return b.runGeneric(c, OnMessage)
}

// dispatchPostback routes button presses: the action for the payload
// first, then the generic postback handlers under the same exclusive
// dispatch rule as messages.
func (b *Bot) dispatchPostback(c Context) error {
	matched := false

	if payload := c.Payload(); payload != "" {
		if h, ok := b.registry.GetAction(payload); ok {
			matched = true
			if err := b.handleWithSummary(c, normalizeHandlerName(payload), h,
				slog.String("action", payload),
			); err != nil {
				return err
			}
		}
	}

	if matched && b.exclusive {
		return nil
	}
	return b.runGeneric(c, OnPostback)
}

func (b *Bot) runGeneric(c Context, event string) error {
	for _, h := range b.registry.HandlersFor(event) {
		if err := b.handleWithSummary(c, "on_"+event, h); err != nil {
			return err
		}
	}
	return nil
}

// handleWithSummary runs one handler and emits the per-invocation
// summary line. The handler name is attached to the request context so
// nested logs carry it.
func (b *Bot) handleWithSummary(c Context, handlerName string, fn HandlerFunc, extras ...slog.Attr) error {
	start := time.Now()
	StoreContext(c, logger.WithHandler(c.Context(), handlerName))
	err := fn(c)
	logHandlerSummary(c, handlerName, start, err, extras...)
	return err
}

func logHandlerSummary(c Context, handlerName string, start time.Time, err error, extras ...slog.Attr) {
	status := logger.Status(err)
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.String("event_type", c.EventType()),
		slog.String("outcome", status),
		slog.Int("messages", sentCount(c)),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", handlerName),
		)
	}
	if len(extras) > 0 {
		attrs = append(attrs, extras...)
	}
	logger.LogEvent(c.Context(), logger.Component("bot"), slog.LevelInfo, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	if c, ok := err.(coder); ok {
		code := strings.TrimSpace(c.Code())
		if code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil {
		return strings.ToUpper(strings.ReplaceAll(t.Name(), " ", "_"))
	}
	return "UNKNOWN_ERROR"
}
