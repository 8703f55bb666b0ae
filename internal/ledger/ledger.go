package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Accounts is the account substrate the pool settles against.
type Accounts interface {
	SpendableBalance(account common.Address) Amount
	Transfer(from, to common.Address, amount Amount) error
	CurrentBlockHeight() uint64
}

// Params are the policy knobs of one pool.
type Params struct {
	// PoolAccount holds pool balance plus unclaimed rewards on the substrate.
	PoolAccount     common.Address
	MinContribution Amount
	// WithdrawCooldown is the number of blocks after a contribution during
	// which the provider cannot withdraw or transfer shares.
	WithdrawCooldown uint64
	ClaimTTL         uint64
	// DisputeWindow is the number of blocks between attach_proof and the
	// earliest settlement.
	DisputeWindow uint64
	FeeBps        uint64
	Oracles       []common.Address
	AnchorKey     AnchorKeyFunc
}

// Validate checks params for internal consistency.
func (p Params) Validate() error {
	if p.PoolAccount == (common.Address{}) {
		return fmt.Errorf("pool account is required")
	}
	if p.ClaimTTL == 0 {
		return fmt.Errorf("claim ttl must be greater than zero")
	}
	if p.DisputeWindow >= p.ClaimTTL {
		return fmt.Errorf("dispute window (%d) must be shorter than claim ttl (%d)", p.DisputeWindow, p.ClaimTTL)
	}
	if p.FeeBps > bpsDenominator {
		return fmt.Errorf("fee bps %d exceeds %d", p.FeeBps, bpsDenominator)
	}
	return nil
}

// Ledger executes pool transitions one at a time. It is not safe for
// concurrent use; the caller serialises submissions in block order.
type Ledger struct {
	params   Params
	oracles  map[common.Address]struct{}
	accounts Accounts
	state    *State
	events   []Event
}

// New returns a ledger over an empty pool.
func New(params Params, accounts Accounts) (*Ledger, error) {
	return Restore(params, accounts, NewState())
}

// Restore returns a ledger over a previously persisted state.
func Restore(params Params, accounts Accounts, state *State) (*Ledger, error) {
	if accounts == nil {
		return nil, fmt.Errorf("accounts substrate is nil")
	}
	if state == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := state.CheckInvariants(); err != nil {
		return nil, err
	}
	if params.AnchorKey == nil {
		params.AnchorKey = OpaqueAnchorKey
	}

	oracles := make(map[common.Address]struct{}, len(params.Oracles))
	for _, o := range params.Oracles {
		oracles[o] = struct{}{}
	}

	return &Ledger{
		params:   params,
		oracles:  oracles,
		accounts: accounts,
		state:    state.Clone(),
	}, nil
}

// Params returns the ledger's policy.
func (l *Ledger) Params() Params {
	return l.params
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() *State {
	return l.state.Clone()
}

// StateRoot returns the digest of the current state.
func (l *Ledger) StateRoot() common.Hash {
	return l.state.StateRoot()
}

// LiveClaims counts claims that are open or proven.
func (l *Ledger) LiveClaims() int {
	n := 0
	for _, claim := range l.state.Claims {
		if !claim.State.Terminal() {
			n++
		}
	}
	return n
}

// Pool returns the pool aggregate.
func (l *Ledger) Pool() Pool {
	return l.state.Pool
}

// Totals returns cumulative flows.
func (l *Ledger) Totals() Totals {
	return l.state.Totals
}

// Position returns a provider position by value.
func (l *Ledger) Position(provider common.Address) (ProviderPosition, bool) {
	pos, ok := l.state.Positions[provider]
	if !ok {
		return ProviderPosition{}, false
	}
	return *pos, true
}

// Claim returns a claim by value. Lazy expiry is not applied.
func (l *Ledger) Claim(id uint64) (Claim, bool) {
	claim, ok := l.state.Claims[id]
	if !ok {
		return Claim{}, false
	}
	return *claim, true
}

// Resolve looks up the claim a content address was anchored to.
func (l *Ledger) Resolve(cid string) (uint64, bool) {
	key, err := l.params.AnchorKey(cid)
	if err != nil {
		return 0, false
	}
	return l.state.Resolve(key)
}

// TakeEvents returns events committed since the previous call.
func (l *Ledger) TakeEvents() []Event {
	out := l.events
	l.events = nil
	return out
}

type transfer struct {
	from   common.Address
	to     common.Address
	amount Amount
}

// txn is a transition in progress against a private copy of the state.
type txn struct {
	state     *State
	height    uint64
	events    []Event
	transfers []transfer
}

func (t *txn) emit(ev Event) {
	t.state.EventSeq++
	ev.Seq = t.state.EventSeq
	ev.ID = eventID(ev.Seq)
	ev.Height = t.height
	t.events = append(t.events, ev)
}

func (t *txn) move(from, to common.Address, amount Amount) {
	if amount.IsZero() {
		return
	}
	t.transfers = append(t.transfers, transfer{from: from, to: to, amount: amount})
}

// commit runs fn on a copy of the state. The copy replaces the live state
// only if fn succeeds, the invariants hold and every substrate transfer
// lands; otherwise nothing changes.
func (l *Ledger) commit(fn func(tx *txn) error) error {
	tx := &txn{state: l.state.Clone(), height: l.accounts.CurrentBlockHeight()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.state.CheckInvariants(); err != nil {
		return err
	}
	if err := l.runTransfers(tx.transfers); err != nil {
		return err
	}
	l.state = tx.state
	l.events = append(l.events, tx.events...)
	return nil
}

func (l *Ledger) runTransfers(transfers []transfer) error {
	for i, tr := range transfers {
		if err := l.accounts.Transfer(tr.from, tr.to, tr.amount); err != nil {
			errs := []error{fmt.Errorf("%w: %v", ErrTransferFailed, err)}
			for j := i - 1; j >= 0; j-- {
				back := transfers[j]
				if err := l.accounts.Transfer(back.to, back.from, back.amount); err != nil {
					errs = append(errs, fmt.Errorf("%w: revert %s -> %s of %s: %v", ErrInvariantViolated, back.to.Hex(), back.from.Hex(), back.amount.Dec(), err))
				}
			}
			return errors.Join(errs...)
		}
	}
	return nil
}

func (l *Ledger) isOracle(account common.Address) bool {
	_, ok := l.oracles[account]
	return ok
}

// checkParticipant rejects the pool's own account acting as provider or agent.
func (l *Ledger) checkParticipant(account common.Address) error {
	if account == l.params.PoolAccount || account == (common.Address{}) {
		return ErrUnauthorized
	}
	return nil
}

// IsRejection reports whether err is a transition rejection rather than a
// ledger fault.
func IsRejection(err error) bool {
	return err != nil && !errors.Is(err, ErrInvariantViolated)
}
