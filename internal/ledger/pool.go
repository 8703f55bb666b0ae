package ledger

import (
	"github.com/ethereum/go-ethereum/common"
)

// ApplyContribution mints shares for amount at the current exchange rate.
// spendable is the provider's substrate balance; it must cover amount.
func (s *State) ApplyContribution(provider common.Address, amount, spendable Amount) (Amount, error) {
	if amount.IsZero() {
		return Amount{}, ErrInvalidAmount
	}
	if less(spendable, amount) {
		return Amount{}, ErrInsufficientFunds
	}

	minted := amount
	if !s.Pool.TotalShares.IsZero() {
		var err error
		minted, err = mulDiv(amount, s.Pool.TotalShares, s.Pool.TotalBalance)
		if err != nil {
			return Amount{}, err
		}
		// Rounding down to zero would turn the deposit into a gift to other holders.
		if minted.IsZero() {
			return Amount{}, ErrInvalidAmount
		}
	}

	balance, err := addAmount(s.Pool.TotalBalance, amount)
	if err != nil {
		return Amount{}, err
	}
	shares, err := addAmount(s.Pool.TotalShares, minted)
	if err != nil {
		return Amount{}, err
	}
	contributed, err := addAmount(s.Totals.Contributed, amount)
	if err != nil {
		return Amount{}, err
	}

	pos, _ := s.position(provider)
	posShares, err := addAmount(pos.Shares, minted)
	if err != nil {
		return Amount{}, err
	}

	s.Pool.TotalBalance = balance
	s.Pool.TotalShares = shares
	s.Totals.Contributed = contributed
	pos.Shares = posShares
	return minted, nil
}

// ApplyWithdrawal burns shares and returns their proportional amount. The
// amount must be covered by balance not committed to live draws.
func (s *State) ApplyWithdrawal(provider common.Address, shares Amount) (Amount, error) {
	if shares.IsZero() {
		return Amount{}, ErrInvalidAmount
	}
	pos, ok := s.Positions[provider]
	if !ok || less(pos.Shares, shares) {
		return Amount{}, ErrInsufficientShares
	}

	amount, err := mulDiv(shares, s.Pool.TotalBalance, s.Pool.TotalShares)
	if err != nil {
		return Amount{}, err
	}
	if less(s.uncommitted(), amount) {
		return Amount{}, ErrPoolLiquidityLocked
	}

	remainingShares, err := subAmount(s.Pool.TotalShares, shares)
	if err != nil {
		return Amount{}, err
	}
	remainingBalance, err := subAmount(s.Pool.TotalBalance, amount)
	if err != nil {
		return Amount{}, err
	}
	// Rounding leaves the remainder with the last holder; never strand
	// balance without shares.
	if remainingShares.IsZero() != remainingBalance.IsZero() {
		return Amount{}, ErrPoolLiquidityLocked
	}

	s.Pool.TotalShares = remainingShares
	s.Pool.TotalBalance = remainingBalance
	pos.Shares.Sub(&pos.Shares, &shares)
	s.Totals.Withdrawn.Add(&s.Totals.Withdrawn, &amount)
	return amount, nil
}

// Reserve earmarks amount for a draw whose settlement will also charge fee.
// Both must fit in the uncommitted balance with one unit to spare, so the
// reservation can always be debited together with its fee.
func (s *State) Reserve(amount, fee Amount) (ReservationToken, error) {
	if amount.IsZero() {
		return ReservationToken{}, ErrInvalidAmount
	}
	need, err := addAmount(amount, fee)
	if err != nil {
		return ReservationToken{}, err
	}
	free := s.uncommitted()
	committed := s.committed()
	if committed.IsZero() && !free.IsZero() {
		free.SubUint64(&free, 1)
	}
	if less(free, need) {
		return ReservationToken{}, ErrPoolLiquidityLocked
	}

	token := ReservationToken{ID: s.NextReservationID, Amount: amount}
	s.NextReservationID++
	s.Reservations[token.ID] = amount
	s.Pool.ReservedBalance.Add(&s.Pool.ReservedBalance, &amount)
	return token, nil
}

// Release returns a reservation's amount to available balance. Tokens are
// consumed on first release; later releases report false and change nothing.
func (s *State) Release(token ReservationToken) bool {
	amount, ok := s.Reservations[token.ID]
	if !ok {
		return false
	}
	delete(s.Reservations, token.ID)
	s.Pool.ReservedBalance.Sub(&s.Pool.ReservedBalance, &amount)
	return true
}

// Credit adds amount to the pool balance. Crediting a pool without
// shareholders is refused since nobody would own the funds.
func (s *State) Credit(amount Amount) error {
	if s.Pool.TotalShares.IsZero() {
		return ErrEmptyPool
	}
	balance, err := addAmount(s.Pool.TotalBalance, amount)
	if err != nil {
		return err
	}
	s.Pool.TotalBalance = balance
	return nil
}

// Debit consumes token and removes amount from the pool balance. amount may
// exceed the token's reservation as long as unreserved balance covers the rest.
func (s *State) Debit(amount Amount, token ReservationToken) error {
	reserved, ok := s.Reservations[token.ID]
	if !ok {
		return ErrInvalidClaimState
	}

	available := s.Pool.Available()
	available.Add(&available, &reserved)
	if less(available, amount) {
		return ErrPoolLiquidityLocked
	}
	remaining, err := subAmount(s.Pool.TotalBalance, amount)
	if err != nil {
		return err
	}
	if remaining.IsZero() && !s.Pool.TotalShares.IsZero() {
		return ErrPoolLiquidityLocked
	}

	s.Release(token)
	s.Pool.TotalBalance = remaining
	return nil
}
