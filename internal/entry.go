// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/mcpserver"
	"github.com/starford/mise/internal/sse"
	"github.com/starford/mise/internal/terminal"
	"github.com/starford/mise/internal/web"
)

const shutdownTimeout = 10 * time.Second

// ErrCommandFailed reports a terminal command whose failure was already
// shown to the user.
var ErrCommandFailed = errors.New("command failed")

// Run starts the web front end with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := bootstrap(ctx, opts, logJSON)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg, logger := rt.cfg, rt.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend_url", cfg.Backend.BaseURL),
		slog.String("ordering", string(cfg.Sync.OrderingPolicy())),
		slog.String("templates_dir", cfg.UI.TemplatesDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	templates, err := web.LoadTemplates(cfg.UI.TemplatesDir)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	// SSE broker.
	broker := sse.NewBroker(cfg.UI.CalendarThrottle, logger)
	defer broker.Close()

	webOpts := []web.Option{
		web.WithBroker(broker),
		web.WithLogger(logger),
		web.WithNoticeTTL(cfg.UI.NoticeTTL),
		web.WithOrdering(cfg.Sync.OrderingPolicy()),
		web.WithCommentConcurrency(cfg.Sync.CommentFetchConcurrency),
	}
	if len(cfg.App.HTTP.CORSOrigins) > 0 {
		webOpts = append(webOpts, web.WithCORSOrigins(cfg.App.HTTP.CORSOrigins...))
	}
	front := web.NewServer(rt.client, templates, webOpts...)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/", front.Routes())

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload template overrides and tell open pages.
	g.Go(func() error {
		return web.WatchTemplates(gCtx, templates, logger, func() {
			broker.Publish(sse.Event{Type: sse.TemplatesReloaded, Data: map[string]string{}})
		})
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the server has been shut down so the
// template watcher stops too.
var errShutdown = errors.New("shutdown")

// RunShell starts the interactive terminal shell.
func RunShell(ctx context.Context, opts ...Option) error {
	rt, err := bootstrap(ctx, opts, logText)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sh := terminal.NewShell(rt.app.stdin, rt.app.stdout, rt.logger)
	unbind := sh.Attach(clientsync.New(rt.client, sh.View(), rt.syncOptions()...))
	defer unbind()

	if err := sh.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// RunMCP serves the recipe tools over stdio.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := bootstrap(ctx, opts, logJSON)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.logger.Info("MCP server starting", slog.String("backend_url", rt.cfg.Backend.BaseURL))
	srv := mcpserver.New(rt.client, rt.app.version, mcpserver.WithLogger(rt.logger))
	return srv.ServeStdio()
}

// TerminalOp is one operation run by a terminal command.
type TerminalOp func(ctx context.Context, s *clientsync.Syncer, v *terminal.View) error

// RunTerminal runs op against a terminal view and prints the result. prompt
// answers comment edits; nil opens a dialog when stdin is a terminal.
func RunTerminal(ctx context.Context, op TerminalOp, prompt terminal.PromptFunc, opts ...Option) error {
	rt, err := bootstrap(ctx, opts, logText)
	if err != nil {
		return err
	}
	defer rt.close()

	if prompt == nil {
		prompt = terminal.DialogPrompt(rt.app.stdin, rt.app.stdout)
	}
	view := terminal.NewView(rt.app.stdout, terminal.WithPrompt(prompt))
	err = op(ctx, clientsync.New(rt.client, view, rt.syncOptions()...), view)
	view.Flush()
	if errors.Is(err, clientsync.ErrSuperseded) {
		return nil
	}
	if errors.Is(err, terminal.ErrNotInteractive) {
		return err
	}
	if err != nil {
		rt.logger.Debug("terminal command failed", slog.String("error", err.Error()))
		return ErrCommandFailed
	}
	return nil
}
