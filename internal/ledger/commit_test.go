package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAccounts fails the transfers whose call index is listed in fail.
type scriptedAccounts struct {
	calls int
	fail  map[int]bool
	moved []transfer
}

func (a *scriptedAccounts) SpendableBalance(common.Address) Amount { return NewAmount(1_000_000) }

func (a *scriptedAccounts) CurrentBlockHeight() uint64 { return 1 }

func (a *scriptedAccounts) Transfer(from, to common.Address, amount Amount) error {
	a.calls++
	if a.fail[a.calls] {
		return errors.New("substrate unavailable")
	}
	a.moved = append(a.moved, transfer{from: from, to: to, amount: amount})
	return nil
}

var escrow = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newScriptedLedger(t *testing.T, fail ...int) (*Ledger, *scriptedAccounts) {
	t.Helper()
	accounts := &scriptedAccounts{fail: make(map[int]bool)}
	for _, n := range fail {
		accounts.fail[n] = true
	}
	l, err := New(Params{PoolAccount: escrow, ClaimTTL: 10}, accounts)
	require.NoError(t, err)
	return l, accounts
}

func twoTransfers(tx *txn) error {
	tx.move(alice, escrow, NewAmount(5))
	tx.move(escrow, bob, NewAmount(3))
	tx.emit(Event{Kind: EventContributed, Account: alice})
	return nil
}

func TestCommitRevertsEarlierTransfers(t *testing.T) {
	l, accounts := newScriptedLedger(t, 2)
	root := l.StateRoot()

	err := l.commit(twoTransfers)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.True(t, IsRejection(err))
	assert.Equal(t, []transfer{
		{from: alice, to: escrow, amount: NewAmount(5)},
		{from: escrow, to: alice, amount: NewAmount(5)},
	}, accounts.moved)
	assert.Equal(t, root, l.StateRoot())
	assert.Empty(t, l.TakeEvents())
}

func TestCommitReportsFailedRevert(t *testing.T) {
	l, _ := newScriptedLedger(t, 2, 3)

	err := l.commit(twoTransfers)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, ErrInvariantViolated)
	assert.False(t, IsRejection(err), "an unreverted transfer is a ledger fault")
	assert.ErrorContains(t, err, "revert")
	assert.Empty(t, l.TakeEvents())
}
