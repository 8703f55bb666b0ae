package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"mpesapool/internal/gateway"
	"mpesapool/internal/model"
	"mpesapool/internal/storage"
)

// LogSource is the subset of the chain client the runner reads from.
type LogSource interface {
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Gateways          []common.Address
	Confirmations     uint64
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner streams gateway logs from the chain, decodes them into submissions
// and appends them to the submission journal in consensus order.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	decoder    *gateway.Decoder
	sink       storage.SubmissionSink
	errSink    storage.DecodeErrorSink
	logger     *zap.Logger
	retry      retrier
	seen       map[string]struct{}
	checkpoint *CheckpointStore
	progress   Checkpoint
}

// NewRunner builds a Runner with its dependencies. errSink may be nil.
func NewRunner(
	cfg RunConfig,
	source LogSource,
	decoder *gateway.Decoder,
	sink storage.SubmissionSink,
	errSink storage.DecodeErrorSink,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		decoder:    decoder,
		sink:       sink,
		errSink:    errSink,
		logger:     logger,
		retry:      newRetrier(cfg.MaxRetries, cfg.RetryBackoff, logger),
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("log source is nil")
	}
	if r.decoder == nil {
		return fmt.Errorf("decoder is nil")
	}
	if r.sink == nil {
		return fmt.Errorf("submission sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Gateways) == 0 {
		return fmt.Errorf("at least one gateway address is required")
	}

	chainID, err := r.source.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	to, err := r.safeHead(ctx)
	if err != nil {
		return err
	}

	r.progress = Checkpoint{ChainID: chainIDValue}
	cp, ok, err := r.checkpoint.Load(chainIDValue)
	if err != nil {
		return err
	}
	if ok {
		r.progress.Submissions = cp.Submissions
		r.progress.LastSubmission = cp.LastSubmission
		if cp.LastSubmission != "" {
			r.seen[cp.LastSubmission] = struct{}{}
		}
		if cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			r.logger.Info("resume from checkpoint",
				zap.Uint64("last_processed", cp.LastProcessedBlock),
				zap.String("last_submission", cp.LastSubmission),
				zap.Uint64("from", from),
			)
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	queue := newRangeQueue(ranges)
	for {
		blockRange, ok := queue.next()
		if !ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			if ctx.Err() == nil && queue.split(blockRange) {
				r.logger.Warn("log query refused, splitting range",
					zap.Uint64("from", blockRange.From),
					zap.Uint64("to", blockRange.To),
					zap.Error(err),
				)
				continue
			}
			return fmt.Errorf("filter logs [%d, %d]: %w", blockRange.From, blockRange.To, err)
		}
		if err := r.ingest(chainIDValue, blockRange, logs); err != nil {
			return err
		}
	}
}

// ingest decodes one range of logs, appends the submissions and advances
// the checkpoint past the range.
func (r *Runner) ingest(chainID uint64, blockRange BlockRange, logs []types.Log) error {
	sortLogs(logs)

	ingestedAt := time.Now().UTC()
	submissions := make([]model.Submission, 0, len(logs))
	var failures []model.DecodeError
	for _, log := range logs {
		if log.Removed || r.isDuplicate(log) {
			continue
		}

		record := buildLogRecord(chainID, log, ingestedAt)
		sub, err := r.decoder.Decode(record)
		if err != nil {
			r.logger.Warn("decode failed", zap.Error(err), zap.Uint64("block_number", log.BlockNumber), zap.String("tx_hash", record.TxHash))
			failures = append(failures, buildDecodeError(record, err))
			continue
		}
		submissions = append(submissions, *sub)
	}

	if err := r.sink.Append(submissions); err != nil {
		return fmt.Errorf("store submissions: %w", err)
	}
	if r.errSink != nil && len(failures) > 0 {
		if err := r.errSink.Append(failures); err != nil {
			return fmt.Errorf("store decode errors: %w", err)
		}
	}

	r.progress.LastProcessedBlock = blockRange.To
	if n := len(submissions); n > 0 {
		r.progress.LastSubmission = submissions[n-1].Key()
		r.progress.Submissions += uint64(n)
	}
	if err := r.checkpoint.Save(r.progress); err != nil {
		return err
	}

	r.logger.Info("batch complete",
		zap.Int("submissions", len(submissions)),
		zap.Int("decode_errors", len(failures)),
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
		zap.Uint64("total_submissions", r.progress.Submissions),
	)
	return nil
}

// safeHead returns the last block considered final: the configured end
// block, capped at latest minus confirmations.
func (r *Runner) safeHead(ctx context.Context) (uint64, error) {
	var latest uint64
	err := r.retry.do(ctx, "latest_block", func(ctx context.Context) error {
		var err error
		latest, err = r.source.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}

	var head uint64
	if latest > r.cfg.Confirmations {
		head = latest - r.cfg.Confirmations
	}
	if r.cfg.ToBlock != 0 && r.cfg.ToBlock < head {
		head = r.cfg.ToBlock
	}
	return head, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := r.retry.do(ctx, "filter_logs", func(ctx context.Context) error {
		var err error
		logs, err = r.source.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Gateways, r.decoder.Topic0())
		return err
	})
	return logs, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}

func sortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}
