package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Direction says whether a claim draws liquidity out of the pool or returns it.
type Direction string

const (
	DirectionDraw   Direction = "draw"
	DirectionReturn Direction = "return"
)

// ParseDirection accepts "draw"/"return" in any case.
func ParseDirection(input string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(input))) {
	case DirectionDraw:
		return DirectionDraw, nil
	case DirectionReturn:
		return DirectionReturn, nil
	default:
		return "", fmt.Errorf("unknown claim direction %q", input)
	}
}

// ClaimState is the lifecycle state of a Claim.
type ClaimState string

const (
	ClaimOpen      ClaimState = "open"
	ClaimProven    ClaimState = "proven"
	ClaimSettled   ClaimState = "settled"
	ClaimExpired   ClaimState = "expired"
	ClaimCancelled ClaimState = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s ClaimState) Terminal() bool {
	return s == ClaimSettled || s == ClaimExpired || s == ClaimCancelled
}

// Pool is the aggregate liquidity of one market.
type Pool struct {
	TotalBalance    Amount
	TotalShares     Amount
	ReservedBalance Amount
}

// Available is the balance not earmarked by reservations.
func (p Pool) Available() Amount {
	var out Amount
	if p.TotalBalance.Lt(&p.ReservedBalance) {
		return out
	}
	out.Sub(&p.TotalBalance, &p.ReservedBalance)
	return out
}

// Totals are cumulative flows used for audit and the conservation identity.
type Totals struct {
	Contributed    Amount
	Withdrawn      Amount
	Drawn          Amount
	Fees           Amount
	Returned       Amount
	Dust           Amount
	RewardsPaid    Amount
	RewardsAccrued Amount
}

// ProviderPosition is a provider's share of the pool. Positions are never removed.
type ProviderPosition struct {
	Provider               common.Address
	Shares                 Amount
	PendingReward          Amount
	LastContributionHeight uint64
	HasContributed         bool
}

// Claim is a single agent draw or return tracked through its lifecycle.
type Claim struct {
	ID            uint64
	Agent         common.Address
	Direction     Direction
	Amount        Amount
	Fee           Amount
	State         ClaimState
	CreatedAt     uint64
	ExpiresAt     uint64
	ProvenAt      uint64
	ClosedAt      uint64
	ProofCID      string
	ReservationID uint64
}

// ReservationToken is the single-use handle returned by Reserve.
type ReservationToken struct {
	ID     uint64
	Amount Amount
}

// State is the complete replicated ledger state. It is owned by a Ledger and
// only mutated through transitions on a private copy.
type State struct {
	Pool              Pool
	Totals            Totals
	Positions         map[common.Address]*ProviderPosition
	Claims            map[uint64]*Claim
	Anchors           map[string]uint64
	Reservations      map[uint64]Amount
	NextClaimID       uint64
	NextReservationID uint64
	EventSeq          uint64
}

// NewState returns an empty pool state.
func NewState() *State {
	return &State{
		Positions:         make(map[common.Address]*ProviderPosition),
		Claims:            make(map[uint64]*Claim),
		Anchors:           make(map[string]uint64),
		Reservations:      make(map[uint64]Amount),
		NextClaimID:       1,
		NextReservationID: 1,
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := &State{
		Pool:              s.Pool,
		Totals:            s.Totals,
		Positions:         make(map[common.Address]*ProviderPosition, len(s.Positions)),
		Claims:            make(map[uint64]*Claim, len(s.Claims)),
		Anchors:           make(map[string]uint64, len(s.Anchors)),
		Reservations:      make(map[uint64]Amount, len(s.Reservations)),
		NextClaimID:       s.NextClaimID,
		NextReservationID: s.NextReservationID,
		EventSeq:          s.EventSeq,
	}
	for k, v := range s.Positions {
		cp := *v
		out.Positions[k] = &cp
	}
	for k, v := range s.Claims {
		cp := *v
		out.Claims[k] = &cp
	}
	for k, v := range s.Anchors {
		out.Anchors[k] = v
	}
	for k, v := range s.Reservations {
		out.Reservations[k] = v
	}
	return out
}

// position returns the provider's position, creating an inert one if absent.
func (s *State) position(provider common.Address) (*ProviderPosition, bool) {
	pos, ok := s.Positions[provider]
	if ok {
		return pos, false
	}
	pos = &ProviderPosition{Provider: provider}
	s.Positions[provider] = pos
	return pos, true
}

// CheckInvariants verifies the pool accounting invariants.
func (s *State) CheckInvariants() error {
	if s.Pool.TotalBalance.Lt(&s.Pool.ReservedBalance) {
		return fmt.Errorf("%w: reserved %s exceeds balance %s", ErrInvariantViolated, s.Pool.ReservedBalance.Dec(), s.Pool.TotalBalance.Dec())
	}
	if s.Pool.TotalShares.IsZero() != s.Pool.TotalBalance.IsZero() {
		return fmt.Errorf("%w: shares %s vs balance %s", ErrInvariantViolated, s.Pool.TotalShares.Dec(), s.Pool.TotalBalance.Dec())
	}

	var reserved Amount
	for _, amt := range s.Reservations {
		reserved.Add(&reserved, &amt)
	}
	if !reserved.Eq(&s.Pool.ReservedBalance) {
		return fmt.Errorf("%w: reservations sum %s, reserved balance %s", ErrInvariantViolated, reserved.Dec(), s.Pool.ReservedBalance.Dec())
	}

	if committed := s.committed(); !committed.IsZero() && !committed.Lt(&s.Pool.TotalBalance) {
		return fmt.Errorf("%w: committed %s leaves no remainder in balance %s", ErrInvariantViolated, committed.Dec(), s.Pool.TotalBalance.Dec())
	}

	var shares Amount
	for _, pos := range s.Positions {
		shares.Add(&shares, &pos.Shares)
	}
	if !shares.Eq(&s.Pool.TotalShares) {
		return fmt.Errorf("%w: position shares %s, total shares %s", ErrInvariantViolated, shares.Dec(), s.Pool.TotalShares.Dec())
	}
	return nil
}

// heldFees sums the fees quoted to live draws. Settling a draw debits its
// fee on top of the reserved amount, so these fees are as unavailable to
// withdrawals as the reservations themselves.
func (s *State) heldFees() Amount {
	var held Amount
	for _, claim := range s.Claims {
		if claim.Direction == DirectionDraw && !claim.State.Terminal() {
			held.Add(&held, &claim.Fee)
		}
	}
	return held
}

// committed is the balance promised to live draws: reservations plus their
// quoted fees. While it is non-zero it must stay strictly below the balance
// so every draw can settle without emptying a pool that still has shares.
func (s *State) committed() Amount {
	held := s.heldFees()
	held.Add(&held, &s.Pool.ReservedBalance)
	return held
}

// uncommitted is the balance a new reservation or a withdrawal may take.
// When anything is committed one unit is kept back as the remainder.
func (s *State) uncommitted() Amount {
	committed := s.committed()
	if committed.IsZero() {
		return s.Pool.TotalBalance
	}
	committed.AddUint64(&committed, 1)
	var out Amount
	if s.Pool.TotalBalance.Lt(&committed) {
		return out
	}
	out.Sub(&s.Pool.TotalBalance, &committed)
	return out
}
