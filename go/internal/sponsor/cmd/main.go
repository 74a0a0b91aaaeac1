// Command sponsord pays gas for Majority Rules game transactions.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/majorityrules/go/internal/config"
	"github.com/mcdev12/majorityrules/go/internal/ledger"
	"github.com/mcdev12/majorityrules/go/internal/logging"
	"github.com/mcdev12/majorityrules/go/internal/sponsor"
	"github.com/mcdev12/majorityrules/go/internal/tx"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.LoadSponsor(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer, err := tx.NewKeySigner(cfg.SponsorKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load sponsor key")
	}

	store, closeStore, err := openGrantStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open grant store")
	}
	defer closeStore()

	server := sponsor.NewServer(sponsor.ServerConfig{
		PackageID:   cfg.PackageID,
		GasBudget:   cfg.GasBudget,
		GrantTTL:    cfg.GrantTTL,
		Quota:       cfg.Quota,
		QuotaWindow: cfg.QuotaWindow,
		RateLimit: sponsor.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		AllowedOrigins: cfg.AllowedOrigins,
	}, signer, ledger.NewClient(cfg.LedgerURL), store, clockwork.NewRealClock())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("sponsor", signer.Address()).
			Str("package_id", cfg.PackageID).
			Msg("sponsord listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down sponsord")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openGrantStore uses Postgres when a database is configured and an in-memory
// store otherwise.
func openGrantStore(ctx context.Context, cfg *config.Sponsor) (sponsor.GrantStore, func(), error) {
	if !cfg.Database.Enabled() {
		log.Warn().Msg("no database configured, grants are kept in memory")
		return sponsor.NewMemoryGrantStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	store := sponsor.NewPostgresGrantStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info().Str("database", cfg.Database.Database).Msg("grant store connected")
	return store, func() { db.Close() }, nil
}
