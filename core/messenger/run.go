package messenger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coreconfig "github.com/m3rciful/mbot/core/config"
	"github.com/m3rciful/mbot/core/logger"
	"github.com/m3rciful/mbot/core/messenger/sender"
	"log/slog"
)

const (
	serverReadHeaderTimeout = 10 * time.Second
	serverShutdownTimeout   = 10 * time.Second
)

// Middleware names a global middleware registered via bot.Use.
type Middleware struct {
	Name string
	Use  MiddlewareFunc
}

// RunOptions controls the behaviour of RunMessenger.
type RunOptions struct {
	Config *coreconfig.Config
	Bot    *Bot

	DispatcherOptions sender.Options
	Dispatcher        *sender.Dispatcher

	Middlewares []Middleware

	// Mount customizes the router before the server starts.
	Mount func(r chi.Router)

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *Bot
	Dispatcher *sender.Dispatcher
}

// RunMessenger wires the bot to its webhook server and serves until the
// context is done. The outbound dispatcher and registered middlewares
// are attached here, so handler registration is all that has to happen
// beforehand.
func RunMessenger(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("messenger: nil config provided")
	}
	if opts.Bot == nil {
		return fmt.Errorf("messenger: nil bot provided")
	}

	cfg := opts.Config
	bot := opts.Bot

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = sender.NewDispatcher(opts.DispatcherOptions)
	}
	bot.SetDispatcher(dispatcher)

	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}

	rt := Runtime{
		Bot:        bot,
		Dispatcher: dispatcher,
	}

	commands, hears, actions, generic := bot.Registry().Counts()
	wireAttrs := []slog.Attr{
		slog.Int("commands", commands),
		slog.Int("hears", hears),
		slog.Int("actions", actions),
		slog.Int("handlers", generic),
	}
	if preview, truncated := logger.SummarizeStrings(bot.Registry().ListActions(), 5); preview != "" {
		wireAttrs = append(wireAttrs, slog.String("actions_preview", preview))
		if truncated {
			wireAttrs = append(wireAttrs, slog.Bool("truncated", true))
		}
	}
	logger.Info(ctx, "bot.wire", "wire.complete", wireAttrs...)

	r := chi.NewRouter()
	NewWebhook(bot, cfg.Webhook.Path).Mount(r)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if opts.Mount != nil {
		opts.Mount(r)
	}

	addr := net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: serverReadHeaderTimeout,
	}

	logger.Info(ctx, "http", "serve.start",
		slog.String("mode", "webhook"),
		slog.String("listen", addr),
		slog.String("path", cfg.Webhook.Path),
		slog.String("public_url", cfg.Webhook.PublicURL),
	)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			dispatcher.Close()
			bot.SetDispatcher(nil)
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	var runErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn(ctx, "http", "serve.shutdown.timeout",
				slog.String("err", err.Error()),
			)
		}
		cancel()
		<-serveErr
		runErr = ctx.Err()
	case err := <-serveErr:
		runErr = err
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}

	// Drain queued sends before the process exits.
	dispatcher.Close()
	bot.SetDispatcher(nil)

	logger.Info(ctx, "http", "serve.stop",
		slog.String("listen", addr),
	)

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return nil
		}
		return runErr
	}
	return nil
}
