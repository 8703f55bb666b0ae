package indexer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const maxRetryDelay = 30 * time.Second

// retrier re-runs RPC calls with exponential backoff and logs every failed
// attempt.
type retrier struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func newRetrier(maxRetries int, baseDelay time.Duration, logger *zap.Logger) retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return retrier{maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// do calls fn until it succeeds, the retry budget is spent or ctx ends.
func (r retrier) do(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := r.baseDelay
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > r.maxRetries {
			r.logger.Warn("rpc call failed, giving up", zap.String("op", op), zap.Int("attempts", attempt), zap.Error(err))
			return err
		}
		r.logger.Warn("rpc call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}
