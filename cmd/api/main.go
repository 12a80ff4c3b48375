package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-voice/backend/internal/config"
	"github.com/zhouzirui/z-voice/backend/internal/handler"
	"github.com/zhouzirui/z-voice/backend/internal/logging"
	"github.com/zhouzirui/z-voice/backend/internal/observability"
	"github.com/zhouzirui/z-voice/backend/internal/service/chat"
	"github.com/zhouzirui/z-voice/backend/internal/service/relay"
	"github.com/zhouzirui/z-voice/backend/internal/service/session"
)

func main() {
	logging.Preinit()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded, using process environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logCloser, err := logging.Init(cfg.Log)
	if err != nil {
		slog.Error("failed to initialize logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	di := do.New()
	do.ProvideValue(di, ctx)
	do.ProvideValue(di, cfg)
	registerServices(di)

	if err := run(ctx, di, cfg); err != nil {
		slog.Error("server error", "error", err)
		shutdown(di)
		os.Exit(1)
	}
	shutdown(di)
}

func run(ctx context.Context, di *do.Injector, cfg *config.Config) error {
	router := handler.NewRouter(handler.Dependencies{
		Chat:      do.MustInvoke[*chat.Service](di),
		Store:     do.MustInvoke[*session.Store](di),
		Relay:     do.MustInvoke[*relay.Relay](di),
		Counter:   do.MustInvoke[*observability.Counter](di),
		Speech:    speechServiceOrNil(di),
		Voice:     voicePipelineOrNil(di),
		RelayPoll: !cfg.Relay.ConsumerEnabled,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("voice chat backend listening", "addr", srv.Addr, "provider", cfg.AI.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		slog.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Relay.ConsumerEnabled {
		consumer := do.MustInvoke[*relay.Consumer](di)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	return g.Wait()
}

// shutdown drops every session, then lets the container close the relay.
func shutdown(di *do.Injector) {
	store := do.MustInvoke[*session.Store](di)
	slog.Info("clearing sessions", "count", store.Len())
	store.Reset()

	if err := di.Shutdown(); err != nil {
		slog.Warn("service shutdown reported errors", "error", err)
	}
	slog.Info("shutdown complete")
}
