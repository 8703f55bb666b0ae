package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "poolnode",
		Short:        "M-Pesa liquidity pool ledger node",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Index gateway logs into the submission journal",
		RunE:  runIndex,
	}

	indexCmd.Flags().String("rpc", "", "RPC URL")
	indexCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	indexCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest confirmed")
	indexCmd.Flags().StringSlice("gateway", nil, "gateway contract addresses (comma-separated)")
	indexCmd.Flags().Uint64("confirmations", 12, "blocks to wait before a block is final")
	indexCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	indexCmd.Flags().String("out", "./data/submissions.jsonl", "output submissions JSONL")
	indexCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	indexCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	indexCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	indexCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	indexCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	indexCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(indexCmd)

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the submission journal to the pool ledger",
		RunE:  runApply,
	}

	applyCmd.Flags().String("in", "./data/submissions.jsonl", "input submissions JSONL")
	applyCmd.Flags().String("genesis", "", "genesis balances JSON")
	applyCmd.Flags().String("outcomes", "./data/outcomes.jsonl", "output outcomes JSONL")
	applyCmd.Flags().String("events", "./data/events.jsonl", "output ledger events JSONL")
	applyCmd.Flags().String("snapshot-file", "./data/snapshot.json", "snapshot file used when no Postgres DSN is set")
	applyCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	applyCmd.Flags().String("pool-name", "default", "pool name in Postgres")
	applyCmd.Flags().Uint64("snapshot-every", 100, "blocks between snapshots")
	applyCmd.Flags().String("metrics-addr", "", "listen address for /metrics, empty disables")
	applyCmd.Flags().String("pool-account", "", "substrate account holding pool funds")
	applyCmd.Flags().String("min-contribution", "1", "minimum contribution in smallest units")
	applyCmd.Flags().Uint64("withdraw-cooldown", 10, "blocks after a contribution before withdrawal")
	applyCmd.Flags().Uint64("claim-ttl", 100, "blocks before an unsettled claim expires")
	applyCmd.Flags().Uint64("dispute-window", 10, "blocks between proof and settlement")
	applyCmd.Flags().String("fee-rate", "0.01", "draw fee as a fraction (e.g. 0.01)")
	applyCmd.Flags().StringSlice("oracles", nil, "oracle addresses allowed to settle (comma-separated)")
	applyCmd.Flags().String("cid-mode", "multihash", "proof anchoring key (multihash, opaque)")
	applyCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(applyCmd)

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Print the latest pool snapshot",
		RunE:  runState,
	}

	stateCmd.Flags().String("snapshot-file", "./data/snapshot.json", "snapshot file used when no Postgres DSN is set")
	stateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	stateCmd.Flags().String("pool-name", "default", "pool name in Postgres")
	stateCmd.Flags().Int32("decimals", 0, "decimal places of the currency unit")
	stateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(stateCmd)

	cidCmd := &cobra.Command{
		Use:   "cid <receipt.json>",
		Short: "Compute the content address of an M-Pesa receipt",
		Args:  cobra.ExactArgs(1),
		RunE:  runCID,
	}

	cidCmd.Flags().String("verify", "", "check the receipt against this CID instead")

	root.AddCommand(cidCmd)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
