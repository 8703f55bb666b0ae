package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpesapool/internal/ledger"
	"mpesapool/internal/model"
	"mpesapool/internal/observability"
	"mpesapool/internal/storage"
)

var (
	poolAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	provider    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	agent       = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func testParams() ledger.Params {
	return ledger.Params{
		PoolAccount:      poolAccount,
		MinContribution:  ledger.NewAmount(1),
		WithdrawCooldown: 5,
		ClaimTTL:         100,
		DisputeWindow:    10,
		FeeBps:           100,
	}
}

func testGenesis() model.Genesis {
	return model.Genesis{Accounts: []model.AccountRecord{
		{Account: provider.Hex(), Balance: "1000"},
	}}
}

type memorySink[T any] struct {
	records []T
}

func (m *memorySink[T]) Append(records []T) error {
	m.records = append(m.records, records...)
	return nil
}

func sub(block, index uint64, kind model.SubmissionKind, caller common.Address) model.Submission {
	return model.Submission{
		ChainID:     31337,
		BlockNumber: block,
		TxHash:      common.BigToHash(common.Big1).Hex(),
		LogIndex:    index,
		Kind:        kind,
		Caller:      caller.Hex(),
	}
}

// drawScenario contributes, opens and proves a draw, settles it after the
// dispute window and claims the fee reward.
func drawScenario() []model.Submission {
	contribute := sub(1, 0, model.KindContribute, provider)
	contribute.Amount = "1000"

	open := sub(2, 0, model.KindOpenClaim, agent)
	open.Direction = "draw"
	open.Amount = "400"

	proof := sub(3, 0, model.KindAttachProof, agent)
	proof.ClaimID = 1
	proof.CID = "QmProof1"

	early := sub(5, 0, model.KindSettle, agent)
	early.ClaimID = 1

	settle := sub(13, 0, model.KindSettle, agent)
	settle.ClaimID = 1

	rewards := sub(14, 0, model.KindClaimRewards, provider)

	return []model.Submission{contribute, open, proof, early, settle, rewards}
}

func writeJournal(t *testing.T, path string, subs []model.Submission) {
	t.Helper()
	require.NoError(t, storage.NewJsonlStorage[model.Submission](path).Append(subs))
}

func newExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	cfg.Params = testParams()
	if cfg.Genesis.Accounts == nil {
		cfg.Genesis = testGenesis()
	}
	exec, err := New(cfg, nil)
	require.NoError(t, err)
	return exec
}

func TestRunDrawLifecycle(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "submissions.jsonl")
	writeJournal(t, input, drawScenario())

	outcomes := &memorySink[model.Outcome]{}
	events := &memorySink[model.EventRecord]{}
	metrics := observability.NewMetrics("test")
	exec := newExecutor(t, Config{
		Snapshots: &FileSnapshotStore{Path: filepath.Join(dir, "snapshot.json")},
		Outcomes:  outcomes,
		Events:    events,
		Metrics:   metrics,
	})

	stats, err := exec.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Applied)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 6, stats.Blocks)
	assert.Equal(t, uint64(14), exec.Height())

	require.Len(t, outcomes.records, 6)
	assert.Equal(t, "1000", outcomes.records[0].Shares)
	assert.Equal(t, uint64(1), outcomes.records[1].ClaimID)
	assert.False(t, outcomes.records[3].Accepted)
	assert.Equal(t, ledger.ErrDisputeWindowActive.Error(), outcomes.records[3].Error)
	assert.Equal(t, outcomes.records[2].StateRoot, outcomes.records[3].StateRoot)
	assert.True(t, outcomes.records[4].Accepted)
	assert.Equal(t, "4", outcomes.records[5].Amount)

	pool := exec.Ledger().Pool()
	assert.Equal(t, uint64(596), pool.TotalBalance.Uint64())
	assert.Equal(t, uint64(1000), pool.TotalShares.Uint64())
	assert.True(t, pool.ReservedBalance.IsZero())

	bal := exec.Accounts().SpendableBalance(agent)
	assert.Equal(t, uint64(400), bal.Uint64())
	bal = exec.Accounts().SpendableBalance(poolAccount)
	assert.Equal(t, uint64(596), bal.Uint64())
	bal = exec.Accounts().SpendableBalance(provider)
	assert.Equal(t, uint64(4), bal.Uint64())

	kinds := make([]string, 0, len(events.records))
	for _, ev := range events.records {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []string{
		"provider_created", "contributed", "claim_opened", "proof_anchored",
		"claim_settled", "fee_distributed", "reward_accrued", "rewards_claimed",
	}, kinds)
	for i, ev := range events.records {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SubmissionsRejected.WithLabelValues("settle", "dispute_window_active")))
	assert.Equal(t, 14.0, testutil.ToFloat64(metrics.LastAppliedHeight))
	assert.Equal(t, 596.0, testutil.ToFloat64(metrics.TotalBalance))
	assert.FileExists(t, filepath.Join(dir, "snapshot.json"))
}

func TestRunResumesFromSnapshot(t *testing.T) {
	scenario := drawScenario()

	single := t.TempDir()
	input := filepath.Join(single, "submissions.jsonl")
	writeJournal(t, input, scenario)
	full := newExecutor(t, Config{Snapshots: &FileSnapshotStore{Path: filepath.Join(single, "snapshot.json")}})
	_, err := full.Run(context.Background(), input)
	require.NoError(t, err)

	split := t.TempDir()
	input = filepath.Join(split, "submissions.jsonl")
	snapshots := &FileSnapshotStore{Path: filepath.Join(split, "snapshot.json")}
	writeJournal(t, input, scenario[:3])

	first := newExecutor(t, Config{Snapshots: snapshots})
	_, err = first.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), first.Height())

	writeJournal(t, input, scenario[3:])
	outcomes := &memorySink[model.Outcome]{}
	second := newExecutor(t, Config{Snapshots: snapshots, Outcomes: outcomes})
	stats, err := second.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Skipped)
	assert.Len(t, outcomes.records, 3)

	assert.Equal(t, full.Ledger().StateRoot(), second.Ledger().StateRoot())
	assert.Equal(t, full.Accounts().Balances(), second.Accounts().Balances())

	snap, ok, err := snapshots.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(14), snap.Height)
	assert.Equal(t, full.Ledger().StateRoot().Hex(), snap.StateRoot)
}

func TestRunSkipsDuplicatesAndMalformedLines(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "submissions.jsonl")
	scenario := drawScenario()
	writeJournal(t, input, scenario[:2])
	writeJournal(t, input, scenario[:2])

	f, err := os.OpenFile(input, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	exec := newExecutor(t, Config{})
	stats, err := exec.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Applied)
	assert.Equal(t, 2, stats.Duplicates)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 1, exec.Ledger().LiveClaims())
}

func TestRunRejectsOutOfOrderBlocks(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "submissions.jsonl")
	scenario := drawScenario()

	late := sub(3, 0, model.KindClaimRewards, provider)
	writeJournal(t, input, []model.Submission{scenario[0], scenario[3], late})

	exec := newExecutor(t, Config{})
	_, err := exec.Run(context.Background(), input)
	assert.ErrorContains(t, err, "behind block")
}

func TestRunRecordsMalformedSubmissionAsRejection(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "submissions.jsonl")

	badCaller := sub(1, 0, model.KindContribute, provider)
	badCaller.Caller = "nobody"
	badCaller.Amount = "10"
	badAmount := sub(1, 1, model.KindContribute, provider)
	badAmount.Amount = "-5"
	unknown := sub(1, 2, "mint", provider)
	writeJournal(t, input, []model.Submission{badCaller, badAmount, unknown})

	outcomes := &memorySink[model.Outcome]{}
	exec := newExecutor(t, Config{Outcomes: outcomes})
	stats, err := exec.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Rejected)
	require.Len(t, outcomes.records, 3)
	for _, out := range outcomes.records {
		assert.False(t, out.Accepted)
		assert.NotEmpty(t, out.Error)
	}
	assert.True(t, strings.HasPrefix(outcomes.records[1].Error, ledger.ErrInvalidAmount.Error()))
}

func TestRunExpiresClaimOnTouch(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "submissions.jsonl")
	scenario := drawScenario()

	touch := sub(103, 0, model.KindTouch, provider)
	touch.ClaimID = 1
	settle := sub(104, 0, model.KindSettle, agent)
	settle.ClaimID = 1
	writeJournal(t, input, []model.Submission{scenario[0], scenario[1], touch, settle})

	outcomes := &memorySink[model.Outcome]{}
	exec := newExecutor(t, Config{Outcomes: outcomes})
	_, err := exec.Run(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, outcomes.records, 4)
	assert.True(t, outcomes.records[2].Accepted)
	assert.Equal(t, ledger.ErrInvalidClaimState.Error(), outcomes.records[3].Error)

	claim, ok := exec.Ledger().Claim(1)
	require.True(t, ok)
	assert.Equal(t, ledger.ClaimExpired, claim.State)
	pool := exec.Ledger().Pool()
	assert.True(t, pool.ReservedBalance.IsZero())
}

func TestLoadGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"accounts":[{"account":"0x1111111111111111111111111111111111111111","balance":"1000"}]}`), 0o644))

	genesis, err := LoadGenesis(path)
	require.NoError(t, err)
	require.Len(t, genesis.Accounts, 1)
	assert.Equal(t, "1000", genesis.Accounts[0].Balance)

	empty, err := LoadGenesis("")
	require.NoError(t, err)
	assert.Empty(t, empty.Accounts)
}
