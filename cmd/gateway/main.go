package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edvin/llmgate/internal/admission"
	"github.com/edvin/llmgate/internal/api"
	"github.com/edvin/llmgate/internal/config"
	"github.com/edvin/llmgate/internal/core"
	"github.com/edvin/llmgate/internal/db"
	"github.com/edvin/llmgate/internal/logging"
	"github.com/edvin/llmgate/internal/metrics"
	"github.com/edvin/llmgate/internal/oidc"
	"github.com/edvin/llmgate/internal/seed"
)

const sweepInterval = 30 * time.Second

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations/core", "Migration files directory")
	seedFlag := flag.String("seed", "", "Apply a seed manifest before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("gateway"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	services := core.NewServices(pool, core.Options{
		SecretKey:   cfg.SecretKey,
		UIDStart:    cfg.UIDRangeStart,
		UIDEnd:      cfg.UIDRangeEnd,
		Admitter:    admission.NewSlotCounter(rdb),
		Exchanger:   oidc.NewClient(),
		RedirectURI: cfg.PublicBaseURL + "/auth/callback",
		Logger:      logger,
	})

	if *seedFlag != "" {
		logger.Info().Str("file", *seedFlag).Msg("applying seed manifest")
		if err := seed.Apply(ctx, services, *seedFlag, logger); err != nil {
			logger.Fatal().Err(err).Msg("seed failed")
		}
	}

	// Reconcile persisted backend state against what is actually reachable.
	live, stale, err := services.Containers.Recover(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("container recovery failed")
	}
	logger.Info().Int("live", live).Int("stale", stale).Msg("recovered backend containers")

	go sweepReservations(ctx, services.Reservations, logger)

	srv := api.NewServer(logger, pool, rdb, services, cfg)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting gateway server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

// sweepReservations drives reservation windows through their time-based
// transitions. Every replica sweeps; the conditional updates make the extra
// passes no-ops.
func sweepReservations(ctx context.Context, reservations *core.ReservationService, logger zerolog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			activated, completed, err := reservations.Sweep(ctx, time.Now())
			if err != nil {
				logger.Error().Err(err).Msg("reservation sweep failed")
				continue
			}
			if activated > 0 || completed > 0 {
				logger.Info().
					Int64("activated", activated).
					Int64("completed", completed).
					Msg("reservation sweep")
			}
		}
	}
}
