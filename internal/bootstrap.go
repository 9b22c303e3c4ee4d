package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/starford/mise/internal/clientsync"
	"github.com/starford/mise/internal/recipeclient"
	"github.com/starford/mise/internal/telemetry"
)

type logFormat int

const (
	logJSON logFormat = iota
	logText
)

// runtime bundles the services every command needs.
type runtime struct {
	app       *application
	cfg       *Config
	logger    *slog.Logger
	client    *recipeclient.Client
	telemetry *telemetry.Providers
}

func bootstrap(ctx context.Context, opts []Option, format logFormat) (*runtime, error) {
	app := newApplication(opts)
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// stdout stays clean for command output and the MCP transport.
	handlerOpts := &slog.HandlerOptions{Level: cfg.App.LogLevel}
	var handler slog.Handler = slog.NewJSONHandler(app.stderr, handlerOpts)
	if format == logText {
		handler = slog.NewTextHandler(app.stderr, handlerOpts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	tel, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     app.version,
		Writer:      app.stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	clientOpts := []recipeclient.Option{
		recipeclient.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
		recipeclient.WithUserAgent("mise/" + app.version),
		recipeclient.WithLogger(logger),
		recipeclient.WithTracerProvider(tel.TracerProvider),
		recipeclient.WithMeterProvider(tel.MeterProvider),
	}
	if cfg.Backend.Auth.AuthEnabled() {
		clientOpts = append(clientOpts, recipeclient.WithToken(cfg.Backend.Auth.Token))
	}
	client, err := recipeclient.New(cfg.Backend.BaseURL, clientOpts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init client: %w", err), tel.Shutdown(ctx))
	}

	return &runtime{app: app, cfg: cfg, logger: logger, client: client, telemetry: tel}, nil
}

// syncOptions are the Syncer options implied by the configuration.
func (rt *runtime) syncOptions() []clientsync.Option {
	return []clientsync.Option{
		clientsync.WithSequencer(clientsync.NewSequencer(rt.cfg.Sync.OrderingPolicy())),
		clientsync.WithNoticeTTL(rt.cfg.UI.NoticeTTL),
		clientsync.WithLogger(rt.logger),
		clientsync.WithCommentConcurrency(rt.cfg.Sync.CommentFetchConcurrency),
	}
}

func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.telemetry.Shutdown(ctx); err != nil {
		rt.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
	}
}
