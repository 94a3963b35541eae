package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hookbin/hookbin/internal/config"
	"github.com/hookbin/hookbin/internal/crypto"
	"github.com/hookbin/hookbin/internal/handler"
	"github.com/hookbin/hookbin/internal/metrics"
	"github.com/hookbin/hookbin/internal/session"
	"github.com/hookbin/hookbin/internal/store"
	"github.com/hookbin/hookbin/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogger(cfg)

	s, err := store.NewSQLiteStore(cfg.DatabasePath, cfg.RetentionCap)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("open database")
	}
	defer s.Close()

	codec, err := crypto.NewCodec(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid encryption key")
	}

	signer := session.NewSigner(cfg.CookieSecret)
	registry := ws.NewRegistry()
	h := handler.New(s, codec, signer, registry, cfg.BaseURL, cfg.SessionTTL, log.Logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Access logs for the API only; capture routes stay quiet so arbitrary
	// inbound traffic does not flood the log.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.HasPrefix(req.URL.Path, "/api/") {
				start := time.Now()
				next.ServeHTTP(w, req)
				log.Debug().
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Dur("elapsed", time.Since(start)).
					Msg("request")
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/init", h.InitSession)
		r.Get("/ws", h.WebSocket)
		r.Post("/endpoints", h.CreateEndpoint)
		r.Get("/endpoints", h.ListEndpoints)
		r.Get("/endpoints/{slug}", h.GetEndpoint)
		r.Delete("/endpoints/{id}", h.DeleteEndpoint)
		r.Get("/webhooks", h.ListWebhooks)
		r.Get("/webhooks/{id}", h.GetWebhook)
		r.NotFound(h.NotFound)
	})

	// Everything else is a capture attempt.
	r.HandleFunc("/*", h.Capture)

	// Expired sessions cascade away hourly; captured requests are bounded
	// by the retention cap, so this is the only background cleanup needed.
	c := cron.New()
	if _, err := c.AddFunc("@hourly", func() {
		n, err := s.DeleteExpiredSessions(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("session cleanup")
			return
		}
		if n > 0 {
			log.Info().Int64("sessions", n).Msg("expired sessions removed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("schedule cleanup")
	}
	c.Start()
	defer c.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("server stopped")
}

func setupLogger(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
