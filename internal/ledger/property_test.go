package ledger_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"mpesapool/internal/ledger"
	"mpesapool/internal/substrate"
)

func add(a, b ledger.Amount) ledger.Amount {
	var out ledger.Amount
	out.Add(&a, &b)
	return out
}

// checkConservation verifies that pool flows reconcile with the balance and
// that the substrate holds exactly the pool balance plus unpaid rewards.
func checkConservation(t *testing.T, l *ledger.Ledger, accounts *substrate.Memory, supply ledger.Amount) {
	t.Helper()
	state := l.Snapshot()
	require.NoError(t, state.CheckInvariants())

	totals := state.Totals
	inflow := add(add(totals.Contributed, totals.Returned), totals.Dust)
	outflow := add(add(add(state.Pool.TotalBalance, totals.Withdrawn), totals.Drawn), totals.Fees)
	require.True(t, inflow.Eq(&outflow), "flows: in %s, out %s", inflow.Dec(), outflow.Dec())

	require.False(t, state.Pool.TotalBalance.Lt(&state.Pool.ReservedBalance))

	var pending ledger.Amount
	for _, pos := range state.Positions {
		pending = add(pending, pos.PendingReward)
	}
	escrow := add(state.Pool.TotalBalance, pending)
	held := accounts.SpendableBalance(poolAccount)
	require.True(t, held.Eq(&escrow), "pool account holds %s, expected %s", held.Dec(), escrow.Dec())

	var total ledger.Amount
	for _, rec := range accounts.Balances() {
		bal, err := ledger.ParseAmount(rec.Balance)
		require.NoError(t, err)
		total = add(total, bal)
	}
	require.True(t, total.Eq(&supply), "supply drifted: %s != %s", total.Dec(), supply.Dec())

	accrued := add(totals.RewardsAccrued, totals.Dust)
	require.True(t, accrued.Eq(&totals.Fees), "fees %s, accrued+dust %s", totals.Fees.Dec(), accrued.Dec())
}

func TestRandomOperationsPreserveConservation(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 1337} {
		seed := seed
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			runRandomOperations(t, seed, 600)
		})
	}
}

func runRandomOperations(t *testing.T, seed int64, steps int) {
	rng := rand.New(rand.NewSource(seed))

	params := defaultParams()
	params.WithdrawCooldown = 3
	params.ClaimTTL = 20
	params.DisputeWindow = 4
	params.FeeBps = 137

	accounts := substrate.NewMemory()
	l, err := ledger.New(params, accounts)
	require.NoError(t, err)

	providers := []common.Address{providerA, providerB, stranger}
	agents := []common.Address{agent, agent2}

	var supply ledger.Amount
	for _, who := range append(append([]common.Address{}, providers...), agents...) {
		require.NoError(t, accounts.Credit(who, ledger.NewAmount(1_000_000)))
		supply = add(supply, ledger.NewAmount(1_000_000))
	}

	height := uint64(0)
	pick := func(list []common.Address) common.Address { return list[rng.Intn(len(list))] }
	claimID := func() uint64 {
		next := l.Snapshot().NextClaimID
		return uint64(rng.Int63n(int64(next))) + 1
	}

	for i := 0; i < steps; i++ {
		height += uint64(rng.Intn(3))
		require.NoError(t, accounts.SetHeight(height))

		var err error
		switch rng.Intn(9) {
		case 0, 1:
			_, err = l.Contribute(pick(providers), ledger.NewAmount(uint64(rng.Intn(5000)+1)))
		case 2:
			_, err = l.Withdraw(pick(providers), ledger.NewAmount(uint64(rng.Intn(3000)+1)))
		case 3:
			_, err = l.OpenClaim(pick(agents), ledger.DirectionDraw, ledger.NewAmount(uint64(rng.Intn(4000)+1)))
		case 4:
			_, err = l.OpenClaim(pick(agents), ledger.DirectionReturn, ledger.NewAmount(uint64(rng.Intn(2000)+1)))
		case 5:
			err = l.AttachProof(pick(agents), claimID(), fmt.Sprintf("cid-%d", rng.Intn(steps)))
		case 6:
			caller := pick(agents)
			if rng.Intn(4) == 0 {
				caller = oracle
			}
			err = l.Settle(caller, claimID())
		case 7:
			if rng.Intn(2) == 0 {
				err = l.Cancel(pick(agents), claimID())
			} else {
				_, err = l.Touch(claimID())
			}
		case 8:
			if rng.Intn(2) == 0 {
				_, err = l.ClaimRewards(pick(providers))
			} else {
				err = l.TransferShares(pick(providers), pick(providers), ledger.NewAmount(uint64(rng.Intn(1000)+1)))
			}
		}
		if err != nil {
			require.True(t, ledger.IsRejection(err), "step %d: %v", i, err)
		}
		l.TakeEvents()
		checkConservation(t, l, accounts, supply)
	}
}
