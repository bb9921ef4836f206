package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"

	router "github.com/dkeye/canvas-presence/internal/adapters/http"
	"github.com/dkeye/canvas-presence/internal/adapters/identity"
	"github.com/dkeye/canvas-presence/internal/adapters/store"
	"github.com/dkeye/canvas-presence/internal/app"
	"github.com/dkeye/canvas-presence/internal/app/orch"
	"github.com/dkeye/canvas-presence/internal/config"
	"github.com/dkeye/canvas-presence/internal/core"
)

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Early logger so config.Load can report.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}
	logFile := initLogger(cfg.Mode, cfg.Log)
	closers := []io.Closer{logFile}
	defer func() {
		if err := closeAll(closers); err != nil {
			fmt.Fprintln(os.Stderr, "shutdown:", err)
		}
	}()

	st, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		closers = append(closers, db)
	}

	resolver, sessionStore, rdb, err := openIdentity(cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		closers = append(closers, rdb)
	}

	o := orch.New(orch.Options{
		Store:            st,
		Policy:           app.NewStreamPolicy(cfg.DiagramDropBudget),
		AuthzCacheSize:   cfg.Authz.CacheSize,
		AuthzCacheTTL:    cfg.Authz.CacheTTL,
		TypingTTL:        cfg.Typing.TTL,
		ChatRateLimit:    cfg.Chat.RateLimit,
		ChatRateInterval: cfg.Chat.RateInterval,
	})
	if cfg.Typing.SweepInterval > 0 {
		go o.RunTypingSweeper(ctx, cfg.Typing.SweepInterval)
	}

	r := router.SetupRouter(ctx, cfg, o, resolver, sessionStore)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", Version).Msg("presence server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			log.Error().Err(err).Msg("server error")
			return err
		}
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

// openStore returns Postgres when database.url is set, else an empty
// in-memory store. db is nil for the memory store.
func openStore(ctx context.Context, cfg *config.Config) (core.Store, io.Closer, error) {
	if cfg.Database.URL == "" {
		log.Warn().Str("module", "store").Msg("database.url not set, using in-memory store")
		return store.NewMemoryStore(nil), nil, nil
	}
	db, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("module", "store").Msg("connected to postgres")
	return store.NewPostgresStore(db), db, nil
}

func openIdentity(cfg *config.Config) (core.IdentityResolver, sessions.Store, io.Closer, error) {
	var sessionStore sessions.Store
	if cfg.Secret != "" {
		cs := cookie.NewStore([]byte(cfg.Secret))
		cs.Options(sessions.Options{
			Path:     "/",
			MaxAge:   7 * 24 * 3600,
			HttpOnly: true,
			Secure:   cfg.Mode == "release",
			SameSite: http.SameSiteLaxMode,
		})
		sessionStore = cs
	}

	switch cfg.Identity.Backend {
	case config.IdentityRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse redis.url: %w", err)
		}
		rdb := redis.NewClient(opts)
		log.Info().Str("module", "identity.redis").Str("addr", opts.Addr).Msg("session lookups via redis")
		return identity.NewRedisResolver(rdb, cfg.Identity.CookieName, cfg.Redis.SessionPrefix), sessionStore, rdb, nil
	default:
		return identity.NewCookieResolver(sessionStore), sessionStore, nil, nil
	}
}

func closeAll(closers []io.Closer) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i].Close())
	}
	return err
}
