// Command server runs the CrystaRise HTTP API.
//
// @title                       CrystaRise API
// @version                     1.0
// @description                 Goal tracking with rooms, crystals and a progress ledger.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	_ "github.com/tbourn/crystarise-backend/docs"
	"github.com/tbourn/crystarise-backend/internal/auth"
	"github.com/tbourn/crystarise-backend/internal/config"
	httpapi "github.com/tbourn/crystarise-backend/internal/http"
	"github.com/tbourn/crystarise-backend/internal/observability"
	"github.com/tbourn/crystarise-backend/internal/repo"
	"github.com/tbourn/crystarise-backend/internal/supabase"
	"github.com/tbourn/crystarise-backend/internal/sysutil"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Build{Version: version, StoreBackend: cfg.StoreBackend})
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// The embedded database always backs idempotency keys, and the whole
	// ledger when STORE_BACKEND=sqlite.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("gorm tracing disabled")
		}
	}

	deps, err := buildDeps(cfg, db)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("storage backend")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("backend", cfg.StoreBackend).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// buildDeps selects the storage and identity backends.
func buildDeps(cfg config.Config, db *gorm.DB) (httpapi.Deps, error) {
	idem := &repo.IdempotencyStore{DB: db, TTL: cfg.IdempotencyTTL}

	switch cfg.StoreBackend {
	case config.BackendSupabase:
		client, err := supabase.NewClient(supabase.Config{
			URL:             cfg.Supabase.URL,
			Key:             cfg.Supabase.Key,
			Timeout:         cfg.Supabase.Timeout,
			BreakerFailures: uint32(cfg.Supabase.BreakerFailures),
			BreakerCooldown: cfg.Supabase.BreakerCooldown,
		})
		if err != nil {
			return httpapi.Deps{}, err
		}
		var offline *auth.JWTManager
		if cfg.Supabase.JWTSecret != "" {
			if offline, err = auth.NewJWTManager(cfg.Supabase.JWTSecret, 0); err != nil {
				return httpapi.Deps{}, err
			}
		}
		st := supabase.NewStore(client)
		accounts := supabase.NewAuth(client, offline)
		return httpapi.Deps{Rooms: st, Crystals: st, Idem: idem, Verifier: accounts, Accounts: accounts}, nil

	default:
		secret := cfg.JWT.Secret
		if secret == "" {
			s, err := sysutil.RandomSecret(32)
			if err != nil {
				return httpapi.Deps{}, err
			}
			secret = s
			log.Warn().Msg("JWT_SECRET not set; tokens will not survive a restart")
		}
		tokens, err := auth.NewJWTManager(secret, cfg.JWT.TTL)
		if err != nil {
			return httpapi.Deps{}, err
		}
		st := repo.NewStore(db)
		accounts := auth.NewLocalAccounts(db, tokens)
		return httpapi.Deps{Rooms: st, Crystals: st, Idem: idem, Verifier: accounts, Accounts: accounts}, nil
	}
}
