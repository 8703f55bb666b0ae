package indexer

import "fmt"

// BlockRange is an inclusive span of blocks fetched in one log query.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (b BlockRange) Len() uint64 {
	return b.To - b.From + 1
}

// Halve splits the range into two adjacent halves. A single block cannot be
// split.
func (b BlockRange) Halve() (BlockRange, BlockRange, bool) {
	if b.From >= b.To {
		return b, BlockRange{}, false
	}
	mid := b.From + (b.To-b.From)/2
	return BlockRange{From: b.From, To: mid}, BlockRange{From: mid + 1, To: b.To}, true
}

// SplitRange cuts [from, to] into consecutive batches of at most batchSize blocks.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d is before from block %d", to, from)
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; start += batchSize {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
	}
}

// rangeQueue hands out block ranges in ascending order. A range pushed back
// with split is replaced by its two halves, lower half first, so that a
// provider refusing a large query still yields logs in consensus order.
type rangeQueue struct {
	pending []BlockRange
}

func newRangeQueue(ranges []BlockRange) *rangeQueue {
	pending := make([]BlockRange, len(ranges))
	for i, r := range ranges {
		pending[len(ranges)-1-i] = r
	}
	return &rangeQueue{pending: pending}
}

func (q *rangeQueue) next() (BlockRange, bool) {
	if len(q.pending) == 0 {
		return BlockRange{}, false
	}
	r := q.pending[len(q.pending)-1]
	q.pending = q.pending[:len(q.pending)-1]
	return r, true
}

func (q *rangeQueue) split(r BlockRange) bool {
	lower, upper, ok := r.Halve()
	if !ok {
		return false
	}
	q.pending = append(q.pending, upper, lower)
	return true
}
