package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"screener.dev/internal/audit"
	"screener.dev/internal/auth"
	"screener.dev/internal/config"
	"screener.dev/internal/httpapi"
	"screener.dev/internal/migrate"
	"screener.dev/internal/obs"
	"screener.dev/internal/ratelimit"
	"screener.dev/internal/store/pg"
)

var version = "0.3.1"

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fallback := obs.NewLogger("info", false, os.Stderr)
		fallback.Fatal().Err(err).Msg("configuration invalid")
	}

	log := obs.NewLogger(cfg.LogLevel, !cfg.IsProduction(), os.Stderr).
		With().Str("service", "screener-auth").Str("version", version).Logger()
	obs.Init()

	if cfg.PostgresDSN == "" {
		log.Fatal().Msg("SCREENER_PG_DSN is required")
	}
	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer store.Close()

	if err := migrate.NewRunner(store.DB()).Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("apply migrations")
	}

	codec, err := auth.NewCodec(cfg.BcryptCost, cfg.TokenPepper)
	if err != nil {
		log.Fatal().Err(err).Msg("credential codec")
	}
	sessions := auth.NewSessions(store, codec, auth.WithSessionTTL(cfg.SessionTTL))
	recorder := audit.New(store, log)
	svc, err := auth.NewService(store, codec, sessions, recorder)
	if err != nil {
		log.Fatal().Err(err).Msg("auth service")
	}

	if err := svc.EnsureBuiltins(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure builtin permissions")
	}
	if cfg.SeedAdminEmail != "" && cfg.SeedAdminPassword != "" {
		if err := svc.SeedAdmin(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
			log.Fatal().Err(err).Msg("seed admin")
		}
	}

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = ratelimit.NewRedis(client, cfg.LoginMaxFailures, cfg.LoginWindow)
		log.Info().Str("addr", cfg.RedisAddr).Msg("login throttle backed by redis")
	} else {
		limiter = ratelimit.NewMemory(cfg.LoginMaxFailures, cfg.LoginWindow)
		log.Info().Msg("login throttle backed by process memory")
	}

	api := httpapi.New(cfg, sessions, svc, codec, limiter, recorder, log,
		httpapi.ReadyProbe{Check: store.Ping}, version)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("stopped")
}
