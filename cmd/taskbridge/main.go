package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"taskbridge/internal/api"
	"taskbridge/internal/broker"
	"taskbridge/internal/config"
	"taskbridge/internal/history"
	"taskbridge/internal/janitor"
)

func main() {
	cfg := config.Default()
	var (
		producerAddr = flag.String("producer-addr", cfg.ProducerAddr, "producer listen address")
		executorAddr = flag.String("executor-addr", cfg.ExecutorAddr, "executor listen address")
		adminAddr    = flag.String("admin-addr", cfg.AdminAddr, "ops HTTP listen address")
		dbPath       = flag.String("db", cfg.DBPath, "history journal SQLite path (empty disables history)")
		acquire      = flag.Duration("acquire-timeout", cfg.AcquireTimeout, "bound on waiting for an idle executor")
		backoff      = flag.Duration("dispatch-backoff", cfg.DispatchBackoff, "delay between dispatch attempts")
		attempts     = flag.Int("max-attempts", cfg.MaxDispatchAttempts, "dispatch attempts before a task is failed")
		ledgerTTL    = flag.Duration("ledger-ttl", cfg.LedgerTTL, "age at which pending entries are swept")
		sweepSpec    = flag.String("sweep-spec", cfg.LedgerSweepSpec, "cron spec for ledger sweeping")
		retention    = flag.Duration("history-retention", cfg.HistoryRetention, "age at which journal rows are pruned")
		pruneSpec    = flag.String("prune-spec", cfg.HistoryPruneSpec, "cron spec for journal pruning")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg.ProducerAddr = *producerAddr
	cfg.ExecutorAddr = *executorAddr
	cfg.AdminAddr = *adminAddr
	cfg.DBPath = *dbPath
	cfg.AcquireTimeout = *acquire
	cfg.DispatchBackoff = *backoff
	cfg.MaxDispatchAttempts = *attempts
	cfg.LedgerTTL = *ledgerTTL
	cfg.LedgerSweepSpec = *sweepSpec
	cfg.HistoryRetention = *retention
	cfg.HistoryPruneSpec = *pruneSpec

	for _, spec := range []string{cfg.LedgerSweepSpec, cfg.HistoryPruneSpec} {
		if err := janitor.ValidateSpec(spec); err != nil {
			log.Fatal().Err(err).Str("spec", spec).Msg("invalid cron spec")
		}
	}

	var repo history.Repository
	if cfg.DBPath != "" {
		dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", cfg.DBPath)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("open db")
		}
		defer db.Close()
		db.SetMaxOpenConns(1) // SQLite single writer

		if err := history.EnsureSchema(db); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		repo = history.NewSQLiteRepo(db)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := broker.NewServer(cfg, repo)
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("broker")
		}
	}()
	<-srv.Ready()

	jan := janitor.NewService(srv.Ledger(), repo, cfg.LedgerTTL, cfg.HistoryRetention)
	if err := jan.Start(cfg.LedgerSweepSpec, cfg.HistoryPruneSpec); err != nil {
		log.Fatal().Err(err).Msg("janitor")
	}

	admin := &http.Server{Addr: cfg.AdminAddr, Handler: api.NewServer(srv.Stats, repo)}
	go func() {
		log.Info().Str("addr", cfg.AdminAddr).Msg("ops HTTP server starting")
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ops server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	jan.Stop()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = admin.Shutdown(ctxTimeout)
}
