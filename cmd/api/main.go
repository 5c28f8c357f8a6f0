package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/patronlane/tokenledger/internal/actions"
	"github.com/patronlane/tokenledger/internal/api"
	"github.com/patronlane/tokenledger/internal/config"
	"github.com/patronlane/tokenledger/internal/domain"
	"github.com/patronlane/tokenledger/internal/ledger"
	"github.com/patronlane/tokenledger/internal/reconcile"
	"github.com/patronlane/tokenledger/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	treasuryID, err := uuid.Parse(cfg.TreasuryAccountID)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid TREASURY_ACCOUNT_ID")
	}

	var (
		ledgerStore  store.Ledger
		recordsStore store.Records
	)
	if cfg.DatabaseURL != "" {
		if err := runMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		pg, err := store.NewPostgres(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("unable to connect to database")
		}
		defer pg.Close()
		ledgerStore, recordsStore = pg, pg
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		mem := store.NewMemory()
		ledgerStore, recordsStore = mem, mem
	}

	if _, err := ledgerStore.CreateAccount(context.Background(), treasuryID, cfg.TreasuryOpeningBalance); err != nil && !errors.Is(err, domain.ErrAccountExists) {
		log.Fatal().Err(err).Msg("treasury account setup failed")
	}

	engine := ledger.NewEngine(ledgerStore, log)
	coord := ledger.NewCoordinator(engine, ledgerStore, log)
	query := ledger.NewQuery(ledgerStore)
	svc := actions.NewService(coord, recordsStore, treasuryID, log)

	worker := reconcile.NewWorker(ledgerStore, engine, log)
	if err := worker.Start(cfg.ReconcileSchedule); err != nil {
		log.Fatal().Err(err).Msg("reconciliation worker failed to start")
	}
	defer worker.Stop()

	handler := api.NewHandler(query, coord, svc, ledgerStore, log)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	log.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Env == "development" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return log.Level(level)
}

func runMigrations(dbURL, path string) error {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
