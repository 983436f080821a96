// Package server is the scenario engine's composition root: it loads the
// scenario document, builds the state store, the notifier, the driver, the
// configured transport adapters, and the HTTP admin/preview surface, and
// wires them together.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/api"
	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/api/handlers"
	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/config"
	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/driver"
	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/notify"
	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/scenario"
	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/store"
	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/transport"

	"github.com/rs/zerolog/log"
)

// Server bundles the running engine's HTTP handler and the pieces a caller
// needs to shut it down cleanly.
type Server struct {
	Handler      http.Handler
	Store        store.Store
	Driver       *driver.Driver
	Preview      *transport.Preview
	Port         int
	ShutdownFunc func(context.Context) error

	telegram  *transport.Telegram
	websocket *transport.WebSocket
	wsAddr    string
}

// New builds a Server from environment-derived configuration.
func New(ctx context.Context, shutdownTelemetry func(context.Context) error) (*Server, error) {
	cfg := config.Load()
	return NewWithConfig(ctx, cfg, shutdownTelemetry)
}

// NewWithConfig builds a Server from an explicit Config, for tests and
// callers that assemble configuration themselves.
func NewWithConfig(ctx context.Context, cfg *config.Config, shutdownTelemetry func(context.Context) error) (*Server, error) {
	if err := config.ValidatePlatforms(cfg.Platform.Names); err != nil {
		return nil, err
	}

	doc, err := os.ReadFile(cfg.Scenario.Path)
	if err != nil {
		return nil, fmt.Errorf("read scenario document: %w", err)
	}
	sc, err := scenario.Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("validate scenario document: %w", err)
	}
	log.Info().Str("bot_name", sc.BotName).Str("path", cfg.Scenario.Path).Msg("scenario document loaded")

	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	preview := transport.NewPreview()
	d := driver.New(sc, st, preview)

	if len(cfg.Notify.WebhookURLs) > 0 {
		n := notify.NewService(cfg.Notify.WebhookURLs, cfg.Notify.Secret, cfg.Notify.Timeout)
		d = d.WithNotifier(n)
	}

	h := handlers.New(d, preview, cfg.Version)
	router := api.NewRouter(h)

	srv := &Server{
		Handler: router,
		Store:   st,
		Driver:  d,
		Preview: preview,
		Port:    cfg.Port,
		wsAddr:  cfg.Platform.WebSocketAddr,
		ShutdownFunc: func(ctx context.Context) error {
			if shutdownTelemetry != nil {
				return shutdownTelemetry(ctx)
			}
			return nil
		},
	}

	for _, name := range cfg.Platform.Names {
		switch name {
		case "telegram":
			tg, err := transport.NewTelegram(cfg.Platform.TelegramToken, d)
			if err != nil {
				return nil, fmt.Errorf("build telegram adapter: %w", err)
			}
			srv.telegram = tg
		case "websocket":
			srv.websocket = transport.NewWebSocket(d, cfg.Platform.WebSocketRateLimit, cfg.Platform.WebSocketBurst)
		}
	}

	return srv, nil
}

// Run starts every configured transport adapter. Telegram polling runs
// until ctx is cancelled; the WebSocket adapter, if configured, is mounted
// on its own listener since it needs a long-lived upgrade path distinct
// from the admin/preview HTTP surface.
func (s *Server) Run(ctx context.Context) {
	if s.telegram != nil {
		go s.telegram.Run(ctx)
		log.Info().Msg("telegram adapter started")
	}
	if s.websocket != nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.websocket.Handler)
		wsServer := &http.Server{Addr: s.wsAddr, Handler: mux}
		go func() {
			log.Info().Str("addr", s.wsAddr).Msg("websocket adapter listening")
			if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("websocket listener failed")
			}
		}()
		go func() {
			<-ctx.Done()
			_ = wsServer.Close()
		}()
	}
}

func buildStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q (allowed: memory, postgres)", cfg.Backend)
	}
}
