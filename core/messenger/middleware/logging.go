package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/m3rciful/mbot/core/logger"
	"github.com/m3rciful/mbot/core/messenger"
	"log/slog"
)

// recentEvents keeps a short-lived set of processed event keys to avoid
// double logging when the platform redelivers a webhook.
var (
	recentMu     sync.Mutex
	recentEvents = make(map[string]time.Time)
	keepFor      = 10 * time.Second
)

func alreadyLogged(key string) bool {
	if key == "" {
		return false
	}
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	for k, ts := range recentEvents {
		if now.Sub(ts) > keepFor {
			delete(recentEvents, k)
		}
	}
	if _, ok := recentEvents[key]; ok {
		return true
	}
	recentEvents[key] = now
	return false
}

// eventKey identifies an event across redeliveries: the message id when
// there is one, sender plus timestamp otherwise.
func eventKey(c messenger.Context) string {
	if m := c.Message(); m != nil && m.MID != "" {
		return m.MID
	}
	e := c.Event()
	if e == nil {
		return ""
	}
	return c.Sender() + "/" + strconv.FormatInt(e.Timestamp, 10)
}

// LoggerMiddleware logs a single sampled receipt line per event,
// deduplicated across webhook redeliveries.
func LoggerMiddleware(next messenger.HandlerFunc) messenger.HandlerFunc {
	return func(c messenger.Context) error {
		if logger.ShouldSampleDebug() && !alreadyLogged(eventKey(c)) {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("event_type", c.EventType()),
			}
			if t := c.Text(); t != "" {
				attrs = append(attrs, slog.String("text", logger.SanitizeLimit(t, 256)))
			}
			if p := c.Payload(); p != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(p, 256)))
			}
			if n := len(c.Attachments()); n > 0 {
				attrs = append(attrs, slog.Int("count", n))
			}
			logger.Debug(c.Context(), "bot", "event.received", attrs...)
		}
		return next(c)
	}
}
