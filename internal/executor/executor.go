// Package executor replays the ordered submission journal against the pool
// ledger, one block at a time.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mpesapool/internal/ledger"
	"mpesapool/internal/model"
	"mpesapool/internal/observability"
	"mpesapool/internal/storage"
	"mpesapool/internal/substrate"
)

// Config controls executor behavior.
type Config struct {
	Params  ledger.Params
	Genesis model.Genesis
	// SnapshotEvery persists state after this many applied blocks. Zero
	// snapshots only at the end of a run.
	SnapshotEvery uint64
	Snapshots     SnapshotStore
	Outcomes      storage.Sink[model.Outcome]
	Events        storage.Sink[model.EventRecord]
	Journal       Journal
	Metrics       *observability.Metrics
}

// Executor applies submissions to the ledger in consensus order.
type Executor struct {
	cfg      Config
	logger   *zap.Logger
	ledger   *ledger.Ledger
	accounts *substrate.Memory

	// height is the last fully applied block. Submissions at or below
	// restored were applied before the snapshot was taken.
	height      uint64
	restored    uint64
	savedHeight uint64
	sinceSave   uint64
	seen        map[string]struct{}

	block    uint64
	outcomes []model.Outcome
	events   []model.EventRecord
}

// RunStats summarises one run.
type RunStats struct {
	Applied    int
	Rejected   int
	Skipped    int
	Duplicates int
	Malformed  int
	Blocks     int
}

func New(cfg Config, logger *zap.Logger) (*Executor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	return &Executor{
		cfg:    cfg,
		logger: logger,
		seen:   make(map[string]struct{}),
	}, nil
}

// Ledger returns the ledger after Restore or Run.
func (e *Executor) Ledger() *ledger.Ledger {
	return e.ledger
}

// Accounts returns the account substrate after Restore or Run.
func (e *Executor) Accounts() *substrate.Memory {
	return e.accounts
}

// Height returns the last fully applied block.
func (e *Executor) Height() uint64 {
	return e.height
}

// Restore rebuilds the ledger from the latest snapshot, or from genesis when
// none exists.
func (e *Executor) Restore(ctx context.Context) error {
	var (
		snap model.Snapshot
		ok   bool
		err  error
	)
	if e.cfg.Snapshots != nil {
		snap, ok, err = e.cfg.Snapshots.Load(ctx)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
	}

	if !ok {
		accounts, err := substrate.FromGenesis(e.cfg.Genesis)
		if err != nil {
			return fmt.Errorf("load genesis: %w", err)
		}
		l, err := ledger.New(e.cfg.Params, accounts)
		if err != nil {
			return err
		}
		e.ledger, e.accounts = l, accounts
		e.height, e.restored, e.savedHeight = 0, 0, 0
		e.logger.Info("start from genesis", zap.Int("accounts", len(e.cfg.Genesis.Accounts)))
		return nil
	}

	state, err := ledger.Import(snap)
	if err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	accounts := substrate.NewMemory()
	if err := accounts.Load(snap.Accounts); err != nil {
		return fmt.Errorf("load snapshot accounts: %w", err)
	}
	if err := accounts.SetHeight(snap.Height); err != nil {
		return err
	}
	l, err := ledger.Restore(e.cfg.Params, accounts, state)
	if err != nil {
		return err
	}
	e.ledger, e.accounts = l, accounts
	e.height, e.restored, e.savedHeight = snap.Height, snap.Height, snap.Height
	e.logger.Info("resume from snapshot", zap.Uint64("height", snap.Height), zap.String("state_root", snap.StateRoot))
	return nil
}

// Run applies every submission in the JSONL file at inputPath that lies
// above the restored height.
func (e *Executor) Run(ctx context.Context, inputPath string) (RunStats, error) {
	var stats RunStats
	if e.ledger == nil {
		if err := e.Restore(ctx); err != nil {
			return stats, err
		}
	}

	err := storage.ScanJsonl(inputPath, func(sub model.Submission) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return e.step(ctx, sub, &stats)
	}, func(line int, err error) {
		stats.Malformed++
		e.logger.Warn("decode submission", zap.Int("line", line), zap.Error(err))
	})
	if err != nil {
		return stats, err
	}

	if e.block != 0 {
		if err := e.finishBlock(ctx, &stats); err != nil {
			return stats, err
		}
	}
	if e.height > e.savedHeight {
		if err := e.saveSnapshot(ctx); err != nil {
			return stats, err
		}
	}

	e.logger.Info("apply complete",
		zap.Uint64("height", e.height),
		zap.Int("applied", stats.Applied),
		zap.Int("rejected", stats.Rejected),
		zap.Int("skipped", stats.Skipped),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("malformed", stats.Malformed),
		zap.String("state_root", e.ledger.StateRoot().Hex()),
	)
	return stats, nil
}

func (e *Executor) step(ctx context.Context, sub model.Submission, stats *RunStats) error {
	if sub.BlockNumber <= e.restored {
		stats.Skipped++
		return nil
	}
	key := sub.Key()
	if _, ok := e.seen[key]; ok {
		stats.Duplicates++
		return nil
	}
	if sub.BlockNumber <= e.height || sub.BlockNumber < e.block {
		return fmt.Errorf("submission %s is behind block %d", key, max(e.height, e.block))
	}
	e.seen[key] = struct{}{}

	if sub.BlockNumber > e.block {
		if e.block != 0 {
			if err := e.finishBlock(ctx, stats); err != nil {
				return err
			}
		}
		if err := e.accounts.SetHeight(sub.BlockNumber); err != nil {
			return err
		}
		e.block = sub.BlockNumber
	}

	outcome, err := e.apply(sub)
	if err != nil {
		return fmt.Errorf("apply %s: %w", key, err)
	}
	for _, ev := range e.ledger.TakeEvents() {
		e.events = append(e.events, ledger.EventRecord(ev))
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.EventsEmitted.WithLabelValues(string(ev.Kind)).Inc()
		}
	}
	e.outcomes = append(e.outcomes, outcome)

	if outcome.Accepted {
		stats.Applied++
	} else {
		stats.Rejected++
	}
	return nil
}

// finishBlock flushes the outputs of the block in progress and marks it
// applied.
func (e *Executor) finishBlock(ctx context.Context, stats *RunStats) error {
	if e.cfg.Outcomes != nil {
		if err := e.cfg.Outcomes.Append(e.outcomes); err != nil {
			return fmt.Errorf("store outcomes: %w", err)
		}
	}
	if e.cfg.Events != nil {
		if err := e.cfg.Events.Append(e.events); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
	}
	if e.cfg.Journal != nil {
		if err := e.cfg.Journal.Append(ctx, e.events); err != nil {
			return fmt.Errorf("journal events: %w", err)
		}
	}

	e.logger.Info("block applied",
		zap.Uint64("block", e.block),
		zap.Int("submissions", len(e.outcomes)),
		zap.Int("events", len(e.events)),
	)

	e.height = e.block
	e.block = 0
	e.outcomes = e.outcomes[:0]
	e.events = e.events[:0]
	e.sinceSave++
	stats.Blocks++

	if m := e.cfg.Metrics; m != nil {
		m.BlocksApplied.Inc()
		m.LastAppliedHeight.Set(float64(e.height))
		m.ObservePool(e.ledger.Pool(), e.ledger.LiveClaims())
	}

	if e.cfg.SnapshotEvery > 0 && e.sinceSave >= e.cfg.SnapshotEvery {
		return e.saveSnapshot(ctx)
	}
	return nil
}

func (e *Executor) saveSnapshot(ctx context.Context) error {
	if e.cfg.Snapshots == nil {
		return nil
	}
	start := time.Now()

	snap := ledger.Export(e.ledger.Snapshot())
	snap.Height = e.height
	snap.Accounts = e.accounts.Balances()
	snap.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	if err := e.cfg.Snapshots.Save(ctx, snap); err != nil {
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.SnapshotErrors.Inc()
		}
		return fmt.Errorf("save snapshot: %w", err)
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	}

	e.savedHeight = e.height
	e.sinceSave = 0
	e.logger.Debug("snapshot saved", zap.Uint64("height", e.height), zap.String("state_root", snap.StateRoot))
	return nil
}
