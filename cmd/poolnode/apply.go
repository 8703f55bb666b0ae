package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mpesapool/internal/config"
	"mpesapool/internal/executor"
	"mpesapool/internal/model"
	"mpesapool/internal/observability"
	"mpesapool/internal/storage"
	"mpesapool/internal/storage/migrations"
	"mpesapool/internal/storage/postgres"
)

func runApply(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadApply(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}

	params, err := cfg.Ledger.Params()
	if err != nil {
		return err
	}
	genesis, err := executor.LoadGenesis(cfg.Genesis)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("poolnode")
	execCfg := executor.Config{
		Params:        params,
		Genesis:       genesis,
		SnapshotEvery: cfg.SnapshotEvery,
		Outcomes:      storage.NewJsonlStorage[model.Outcome](cfg.Outcomes),
		Events:        storage.NewJsonlStorage[model.EventRecord](cfg.Events),
		Metrics:       metrics,
	}

	if cfg.PGDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return err
		}
		store := postgres.NewStore(pool)
		execCfg.Snapshots = &executor.DBSnapshotStore{Store: store, Name: cfg.PoolName}
		execCfg.Journal = &executor.DBJournal{Store: store, Name: cfg.PoolName}
	} else {
		execCfg.Snapshots = &executor.FileSnapshotStore{Path: cfg.SnapshotFile}
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, metrics, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	exec, err := executor.New(execCfg, logger)
	if err != nil {
		return err
	}

	logger.Info("apply start",
		zap.String("in", cfg.In),
		zap.String("pool_account", params.PoolAccount.Hex()),
		zap.Uint64("fee_bps", params.FeeBps),
		zap.Uint64("claim_ttl", params.ClaimTTL),
		zap.Uint64("dispute_window", params.DisputeWindow),
		zap.Uint64("withdraw_cooldown", params.WithdrawCooldown),
		zap.Int("oracles", len(params.Oracles)),
		zap.Bool("postgres", cfg.PGDSN != ""),
	)

	_, err = exec.Run(ctx, cfg.In)
	return err
}

func serveMetrics(addr string, metrics *observability.Metrics, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}
