// Package middleware provides global bot middleware: panic recovery,
// receipt logging and Prometheus instrumentation.
package middleware

import (
	"runtime/debug"

	"github.com/m3rciful/mbot/core/logger"
	"github.com/m3rciful/mbot/core/messenger"
	"log/slog"
)

// RecoverMiddleware catches panics in handlers and prevents the bot
// from crashing.
func RecoverMiddleware(next messenger.HandlerFunc) messenger.HandlerFunc {
	return func(c messenger.Context) error {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Context(), "bot", "panic.recovered",
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		return next(c)
	}
}
