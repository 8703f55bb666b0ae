package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// OpenClaim registers a draw or return request. Draws reserve their amount
// immediately; returns move no funds until settlement.
func (l *Ledger) OpenClaim(agent common.Address, direction Direction, amount Amount) (uint64, error) {
	if err := l.checkParticipant(agent); err != nil {
		return 0, err
	}
	if amount.IsZero() {
		return 0, ErrInvalidAmount
	}
	if direction != DirectionDraw && direction != DirectionReturn {
		return 0, fmt.Errorf("%w: direction %q", ErrInvalidAmount, direction)
	}
	if direction == DirectionDraw {
		if err := l.expireAllDue(); err != nil {
			return 0, err
		}
	}

	var id uint64
	err := l.commit(func(tx *txn) error {
		claim := &Claim{
			ID:        tx.state.NextClaimID,
			Agent:     agent,
			Direction: direction,
			Amount:    amount,
			State:     ClaimOpen,
			CreatedAt: tx.height,
			ExpiresAt: tx.height + l.params.ClaimTTL,
		}
		if direction == DirectionDraw {
			fee, err := FeeFor(amount, l.params.FeeBps)
			if err != nil {
				return err
			}
			token, err := tx.state.Reserve(amount, fee)
			if err != nil {
				return err
			}
			claim.ReservationID = token.ID
			claim.Fee = fee
		}

		tx.state.Claims[claim.ID] = claim
		tx.state.NextClaimID++
		id = claim.ID
		tx.emit(Event{Kind: EventClaimOpened, Account: agent, ClaimID: claim.ID, Direction: direction, Amount: amount})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AttachProof anchors the content address of the off-chain receipt to an
// Open claim and moves it to Proven. No funds move.
func (l *Ledger) AttachProof(caller common.Address, claimID uint64, cid string) error {
	if err := l.touchBefore(claimID); err != nil {
		return err
	}
	key, err := l.params.AnchorKey(cid)
	if err != nil {
		if errors.Is(err, ErrInvalidCID) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}

	return l.commit(func(tx *txn) error {
		claim := tx.state.Claims[claimID]
		if claim.State != ClaimOpen {
			return ErrInvalidClaimState
		}
		if caller != claim.Agent {
			return ErrUnauthorized
		}
		if err := tx.state.Anchor(claimID, key); err != nil {
			return err
		}

		claim.State = ClaimProven
		claim.ProvenAt = tx.height
		claim.ProofCID = cid
		tx.emit(Event{Kind: EventProofAnchored, Account: caller, ClaimID: claimID, CID: cid})
		return nil
	})
}

// Settle finalises a Proven claim once its dispute window has passed. The
// claim's agent or a designated oracle may settle.
func (l *Ledger) Settle(caller common.Address, claimID uint64) error {
	if err := l.touchBefore(claimID); err != nil {
		return err
	}

	return l.commit(func(tx *txn) error {
		claim := tx.state.Claims[claimID]
		if claim.State != ClaimProven {
			return ErrInvalidClaimState
		}
		if caller != claim.Agent && !l.isOracle(caller) {
			return ErrUnauthorized
		}
		if tx.height < claim.ProvenAt+l.params.DisputeWindow {
			return ErrDisputeWindowActive
		}

		var err error
		switch claim.Direction {
		case DirectionDraw:
			err = l.settleDraw(tx, claim)
		case DirectionReturn:
			err = l.settleReturn(tx, claim)
		default:
			err = ErrInvalidClaimState
		}
		if err != nil {
			return err
		}

		claim.State = ClaimSettled
		claim.ClosedAt = tx.height
		return nil
	})
}

// settleDraw pays the agent and charges the fee quoted at open on top of the
// drawn amount. The fee is split across providers before the claim is
// finalised.
func (l *Ledger) settleDraw(tx *txn, claim *Claim) error {
	fee := claim.Fee
	charge, err := addAmount(claim.Amount, fee)
	if err != nil {
		return err
	}

	token := ReservationToken{ID: claim.ReservationID, Amount: claim.Amount}
	if err := tx.state.Debit(charge, token); err != nil {
		return err
	}
	tx.state.Totals.Drawn.Add(&tx.state.Totals.Drawn, &claim.Amount)
	tx.state.Totals.Fees.Add(&tx.state.Totals.Fees, &fee)

	dist, err := tx.state.DistributeFee(fee)
	if err != nil {
		return err
	}

	tx.move(l.params.PoolAccount, claim.Agent, claim.Amount)
	tx.emit(Event{Kind: EventClaimSettled, Account: claim.Agent, ClaimID: claim.ID, Direction: claim.Direction, Amount: claim.Amount, CID: claim.ProofCID})
	if !fee.IsZero() {
		tx.emit(Event{Kind: EventFeeDistributed, ClaimID: claim.ID, Amount: fee, Dust: dist.Dust})
		for _, share := range dist.Shares {
			tx.emit(Event{Kind: EventRewardAccrued, Account: share.Provider, ClaimID: claim.ID, Amount: share.Amount})
		}
	}
	return nil
}

// settleReturn pulls the returned amount from the agent into the pool.
func (l *Ledger) settleReturn(tx *txn, claim *Claim) error {
	if less(l.accounts.SpendableBalance(claim.Agent), claim.Amount) {
		return ErrInsufficientFunds
	}
	if err := tx.state.Credit(claim.Amount); err != nil {
		return err
	}
	if claim.ReservationID != 0 {
		tx.state.Release(ReservationToken{ID: claim.ReservationID})
	}
	tx.state.Totals.Returned.Add(&tx.state.Totals.Returned, &claim.Amount)

	tx.move(claim.Agent, l.params.PoolAccount, claim.Amount)
	tx.emit(Event{Kind: EventClaimSettled, Account: claim.Agent, ClaimID: claim.ID, Direction: claim.Direction, Amount: claim.Amount, CID: claim.ProofCID})
	return nil
}

// Cancel withdraws an Open claim on behalf of its agent.
func (l *Ledger) Cancel(caller common.Address, claimID uint64) error {
	if err := l.touchBefore(claimID); err != nil {
		return err
	}

	return l.commit(func(tx *txn) error {
		claim := tx.state.Claims[claimID]
		if claim.State != ClaimOpen {
			return ErrInvalidClaimState
		}
		if caller != claim.Agent {
			return ErrUnauthorized
		}

		released := tx.releaseClaim(claim)
		claim.State = ClaimCancelled
		claim.ClosedAt = tx.height
		tx.emit(Event{Kind: EventClaimCancelled, Account: caller, ClaimID: claimID, Direction: claim.Direction, Amount: released})
		return nil
	})
}

// Touch evaluates lazy expiry for one claim and reports whether it expired.
func (l *Ledger) Touch(claimID uint64) (bool, error) {
	return l.expireClaim(claimID)
}

// touchBefore runs lazy expiry ahead of a claim operation. The expiry is
// committed on its own so it survives the operation's rejection.
func (l *Ledger) touchBefore(claimID uint64) error {
	expired, err := l.expireClaim(claimID)
	if err != nil {
		return err
	}
	if expired {
		return ErrExpired
	}
	return nil
}

func (l *Ledger) isDue(claim *Claim, height uint64) bool {
	return !claim.State.Terminal() && height > claim.ExpiresAt
}

func (l *Ledger) expireClaim(claimID uint64) (bool, error) {
	claim, ok := l.state.Claims[claimID]
	if !ok {
		return false, ErrClaimNotFound
	}
	if !l.isDue(claim, l.accounts.CurrentBlockHeight()) {
		return false, nil
	}
	err := l.commit(func(tx *txn) error {
		tx.expire(tx.state.Claims[claimID])
		return nil
	})
	return err == nil, err
}

// expireAllDue expires every live claim past its expiry so that their
// reservations stop counting against available balance.
func (l *Ledger) expireAllDue() error {
	height := l.accounts.CurrentBlockHeight()
	var due []uint64
	for id, claim := range l.state.Claims {
		if l.isDue(claim, height) {
			due = append(due, id)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	return l.commit(func(tx *txn) error {
		for _, id := range due {
			tx.expire(tx.state.Claims[id])
		}
		return nil
	})
}

func (t *txn) expire(claim *Claim) {
	released := t.releaseClaim(claim)
	claim.State = ClaimExpired
	claim.ClosedAt = t.height
	t.emit(Event{Kind: EventClaimExpired, Account: claim.Agent, ClaimID: claim.ID, Direction: claim.Direction, Amount: released})
}

func (t *txn) releaseClaim(claim *Claim) Amount {
	if claim.ReservationID == 0 {
		return Amount{}
	}
	amount := t.state.Reservations[claim.ReservationID]
	t.state.Release(ReservationToken{ID: claim.ReservationID})
	return amount
}
