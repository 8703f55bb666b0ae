package indexer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpesapool/internal/gateway"
	"mpesapool/internal/model"
)

var (
	testGateway  = common.HexToAddress("0x9999999999999999999999999999999999999999")
	testProvider = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fakeSource struct {
	latest  uint64
	logs    []types.Log
	queries [][2]uint64
	// maxSpan refuses queries covering more blocks, like providers that cap
	// eth_getLogs results.
	maxSpan uint64
}

func (f *fakeSource) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(31337), nil
}

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	f.queries = append(f.queries, [2]uint64{from, to})
	if f.maxSpan != 0 && to-from+1 > f.maxSpan {
		return nil, errors.New("query returned more than 10000 results")
	}
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

type memorySink[T any] struct {
	records []T
}

func (m *memorySink[T]) Append(records []T) error {
	m.records = append(m.records, records...)
	return nil
}

func contributeLog(t *testing.T, block uint64, index uint, amount int64) types.Log {
	t.Helper()
	gatewayABI, err := gateway.GatewayABI()
	require.NoError(t, err)
	event := gatewayABI.Events["Contribute"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(amount))
	require.NoError(t, err)

	return types.Log{
		Address:     testGateway,
		Topics:      []common.Hash{event.ID, common.BytesToHash(testProvider.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		Index:       index,
	}
}

func newTestRunner(t *testing.T, cfg RunConfig, source LogSource) (*Runner, *memorySink[model.Submission], *memorySink[model.DecodeError]) {
	t.Helper()
	decoder, err := gateway.NewDecoder()
	require.NoError(t, err)

	subs := &memorySink[model.Submission]{}
	errs := &memorySink[model.DecodeError]{}
	cfg.Gateways = []common.Address{testGateway}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	return NewRunner(cfg, source, decoder, subs, errs, nil), subs, errs
}

func TestRunnerDecodesInConsensusOrder(t *testing.T) {
	bad := contributeLog(t, 3, 0, 1)
	bad.Data = []byte{0x01}

	source := &fakeSource{
		latest: 20,
		logs: []types.Log{
			contributeLog(t, 2, 1, 300),
			contributeLog(t, 2, 0, 200),
			contributeLog(t, 1, 0, 100),
			contributeLog(t, 1, 0, 100),
			bad,
		},
	}
	runner, subs, errs := newTestRunner(t, RunConfig{FromBlock: 1, Confirmations: 5}, source)

	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, subs.records, 3)
	assert.Equal(t, "100", subs.records[0].Amount)
	assert.Equal(t, "200", subs.records[1].Amount)
	assert.Equal(t, "300", subs.records[2].Amount)
	assert.Equal(t, uint64(31337), subs.records[0].ChainID)
	assert.Equal(t, testProvider.Hex(), subs.records[0].Caller)

	require.Len(t, errs.records, 1)
	assert.Equal(t, uint64(3), errs.records[0].BlockNumber)

	require.Len(t, source.queries, 2)
	assert.Equal(t, [2]uint64{11, 15}, source.queries[1])
}

func TestRunnerSkipsRemovedLogs(t *testing.T) {
	removed := contributeLog(t, 1, 0, 100)
	removed.Removed = true
	source := &fakeSource{latest: 1, logs: []types.Log{removed}}
	runner, subs, _ := newTestRunner(t, RunConfig{FromBlock: 1}, source)

	require.NoError(t, runner.Run(context.Background()))
	assert.Empty(t, subs.records)
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	source := &fakeSource{
		latest: 4,
		logs: []types.Log{
			contributeLog(t, 1, 0, 100),
			contributeLog(t, 4, 0, 400),
		},
	}
	cfg := RunConfig{FromBlock: 1, ToBlock: 2, CheckpointPath: path, CheckpointEnabled: true}
	runner, subs, _ := newTestRunner(t, cfg, source)
	require.NoError(t, runner.Run(context.Background()))
	require.Len(t, subs.records, 1)

	cfg.ToBlock = 0
	runner, subs, _ = newTestRunner(t, cfg, source)
	require.NoError(t, runner.Run(context.Background()))
	require.Len(t, subs.records, 1)
	assert.Equal(t, "400", subs.records[0].Amount)
	assert.Equal(t, [2]uint64{3, 4}, source.queries[len(source.queries)-1])
}

func TestRunnerSplitsRefusedRanges(t *testing.T) {
	source := &fakeSource{
		latest:  8,
		maxSpan: 2,
		logs: []types.Log{
			contributeLog(t, 1, 0, 100),
			contributeLog(t, 4, 0, 400),
			contributeLog(t, 7, 0, 700),
		},
	}
	runner, subs, _ := newTestRunner(t, RunConfig{FromBlock: 1, BatchSize: 8}, source)

	require.NoError(t, runner.Run(context.Background()))
	require.Len(t, subs.records, 3)
	assert.Equal(t, "100", subs.records[0].Amount)
	assert.Equal(t, "400", subs.records[1].Amount)
	assert.Equal(t, "700", subs.records[2].Amount)
	assert.Equal(t, [][2]uint64{{1, 8}, {1, 4}, {1, 2}, {3, 4}, {5, 8}, {5, 6}, {7, 8}}, source.queries)
}

func TestRunnerFailsWhenSingleBlockIsRefused(t *testing.T) {
	failing := &failingSource{fakeSource: &fakeSource{latest: 1}}
	runner, _, _ := newTestRunner(t, RunConfig{FromBlock: 1}, failing)

	err := runner.Run(context.Background())
	assert.ErrorContains(t, err, "filter logs [1, 1]")
}

type failingSource struct {
	*fakeSource
}

func (f *failingSource) FilterLogs(context.Context, uint64, uint64, []common.Address, []common.Hash) ([]types.Log, error) {
	return nil, errors.New("upstream unavailable")
}

func TestRunnerCheckpointRecordsLastSubmission(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	source := &fakeSource{
		latest: 5,
		logs: []types.Log{
			contributeLog(t, 2, 0, 100),
			contributeLog(t, 2, 1, 200),
		},
	}
	cfg := RunConfig{FromBlock: 1, CheckpointPath: path, CheckpointEnabled: true}
	runner, subs, _ := newTestRunner(t, cfg, source)
	require.NoError(t, runner.Run(context.Background()))
	require.Len(t, subs.records, 2)

	cp, ok, err := NewCheckpointStore(path, true).Load(31337)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(31337), cp.ChainID)
	assert.Equal(t, uint64(5), cp.LastProcessedBlock)
	assert.Equal(t, uint64(2), cp.Submissions)
	assert.Equal(t, subs.records[1].Key(), cp.LastSubmission)
}

func TestRunnerNothingToSyncBelowConfirmations(t *testing.T) {
	source := &fakeSource{latest: 3, logs: []types.Log{contributeLog(t, 1, 0, 100)}}
	runner, subs, _ := newTestRunner(t, RunConfig{FromBlock: 1, Confirmations: 12}, source)

	require.NoError(t, runner.Run(context.Background()))
	assert.Empty(t, subs.records)
	assert.Empty(t, source.queries)
}

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{" 0x9999999999999999999999999999999999999999 ", ""})
	require.NoError(t, err)
	assert.Equal(t, []common.Address{testGateway}, got)

	_, err = ParseAddresses([]string{"0x12"})
	assert.Error(t, err)
}
