package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pocketchat-dev/pocketchat/backend/internal/config"
	"github.com/pocketchat-dev/pocketchat/backend/internal/handler"
	authHandler "github.com/pocketchat-dev/pocketchat/backend/internal/handler/auth"
	chatHandler "github.com/pocketchat-dev/pocketchat/backend/internal/handler/chat"
	"github.com/pocketchat-dev/pocketchat/backend/internal/service/llm"
	"github.com/pocketchat-dev/pocketchat/backend/internal/service/transcript"
	"github.com/pocketchat-dev/pocketchat/backend/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("failed to load .env file, continuing with system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Session accessor: per-request handles for HTTP, plus the shared
	// service session persisted next to the binary.
	accessor := session.New(cfg.Backend, session.NewFileStore(".pb_auth"))

	if err := accessor.Shared().Health(ctx); err != nil {
		log.Warn().Err(err).Str("url", cfg.Backend.URL).Msg("pocketbase health check failed, auth features degraded until it comes up")
	}

	transcripts := startServiceSession(ctx, cfg.Backend, accessor)

	// Chat completion adapter
	var chatSvc *llm.Service
	if cfg.Chat.Enabled() {
		chatSvc, err = llm.NewService(cfg.Chat)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize chat service, continuing without chat")
		} else {
			log.Info().Str("model", cfg.Chat.Model).Bool("stream", cfg.Chat.StreamResponse).Msg("chat service initialized")
		}
	} else {
		log.Info().Msg("completion endpoint credentials not configured, chat disabled")
	}

	router := handler.NewRouter(
		authHandler.New(accessor, cfg.Backend),
		chatHandler.New(chatSvc, transcripts),
	)

	startServer(ctx, cfg.Server, router)
}

// startServiceSession signs the shared client in with the service account
// (when configured) and runs the readiness monitor over it, returning the
// transcript service bound to that session.
func startServiceSession(ctx context.Context, cfg config.BackendConfig, accessor *session.Accessor) *transcript.Service {
	monitor := session.NewMonitor(accessor.Shared())
	status := monitor.Start(ctx)

	if status != session.StatusAuthenticated && cfg.ServiceSessionEnabled() {
		if _, err := accessor.SignInWithPassword(ctx, accessor.Shared(), cfg.ServiceIdentity, cfg.ServiceSecret); err != nil {
			log.Warn().Err(err).Msg("service account sign-in failed, transcript persistence disabled")
		}
	}

	log.Info().Stringer("status", monitor.Status()).Msg("shared session ready")

	if monitor.Status() != session.StatusAuthenticated {
		return nil
	}
	return transcript.NewService(accessor)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("pocketchat backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
