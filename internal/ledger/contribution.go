package ledger

import (
	"github.com/ethereum/go-ethereum/common"
)

// Contribute moves amount from the provider into the pool and mints shares.
func (l *Ledger) Contribute(provider common.Address, amount Amount) (Amount, error) {
	if err := l.checkParticipant(provider); err != nil {
		return Amount{}, err
	}
	if amount.IsZero() {
		return Amount{}, ErrInvalidAmount
	}
	if less(amount, l.params.MinContribution) {
		return Amount{}, ErrBelowMinimum
	}

	var minted Amount
	err := l.commit(func(tx *txn) error {
		_, existed := tx.state.Positions[provider]

		var err error
		minted, err = tx.state.ApplyContribution(provider, amount, l.accounts.SpendableBalance(provider))
		if err != nil {
			return err
		}

		pos := tx.state.Positions[provider]
		pos.HasContributed = true
		pos.LastContributionHeight = tx.height

		if !existed {
			tx.emit(Event{Kind: EventProviderCreated, Account: provider})
		}
		tx.move(provider, l.params.PoolAccount, amount)
		tx.emit(Event{Kind: EventContributed, Account: provider, Amount: amount, Shares: minted})
		return nil
	})
	if err != nil {
		return Amount{}, err
	}
	return minted, nil
}

// Withdraw burns shares and pays their proportional amount to the provider.
// Reserved liquidity is never released to withdrawals.
func (l *Ledger) Withdraw(provider common.Address, shares Amount) (Amount, error) {
	if err := l.checkParticipant(provider); err != nil {
		return Amount{}, err
	}
	if err := l.expireAllDue(); err != nil {
		return Amount{}, err
	}

	var amount Amount
	err := l.commit(func(tx *txn) error {
		if pos, ok := tx.state.Positions[provider]; ok && l.inCooldown(pos, tx.height) {
			return ErrCooldownActive
		}

		var err error
		amount, err = tx.state.ApplyWithdrawal(provider, shares)
		if err != nil {
			return err
		}

		tx.move(l.params.PoolAccount, provider, amount)
		tx.emit(Event{Kind: EventWithdrawn, Account: provider, Amount: amount, Shares: shares})
		return nil
	})
	if err != nil {
		return Amount{}, err
	}
	return amount, nil
}

// TransferShares moves shares between providers. Pending rewards stay with
// the sender. Only the sender's cooldown applies; the receiver's cooldown
// still runs from its own last contribution.
func (l *Ledger) TransferShares(from, to common.Address, shares Amount) error {
	if err := l.checkParticipant(from); err != nil {
		return err
	}
	if err := l.checkParticipant(to); err != nil {
		return err
	}
	if shares.IsZero() || from == to {
		return ErrInvalidAmount
	}

	return l.commit(func(tx *txn) error {
		sender, ok := tx.state.Positions[from]
		if !ok || less(sender.Shares, shares) {
			return ErrInsufficientShares
		}
		if l.inCooldown(sender, tx.height) {
			return ErrCooldownActive
		}

		receiver, created := tx.state.position(to)
		sender.Shares.Sub(&sender.Shares, &shares)
		receiver.Shares.Add(&receiver.Shares, &shares)

		if created {
			tx.emit(Event{Kind: EventProviderCreated, Account: to})
		}
		tx.emit(Event{Kind: EventSharesTransferred, Account: from, Counterparty: to, Shares: shares})
		return nil
	})
}

// ClaimRewards pays out a provider's pending reward from the pool account.
func (l *Ledger) ClaimRewards(provider common.Address) (Amount, error) {
	if err := l.checkParticipant(provider); err != nil {
		return Amount{}, err
	}

	var paid Amount
	err := l.commit(func(tx *txn) error {
		pos, ok := tx.state.Positions[provider]
		if !ok || pos.PendingReward.IsZero() {
			return ErrInvalidAmount
		}

		paid = pos.PendingReward
		pos.PendingReward = Amount{}
		tx.state.Totals.RewardsPaid.Add(&tx.state.Totals.RewardsPaid, &paid)
		tx.move(l.params.PoolAccount, provider, paid)
		tx.emit(Event{Kind: EventRewardsClaimed, Account: provider, Amount: paid})
		return nil
	})
	if err != nil {
		return Amount{}, err
	}
	return paid, nil
}

func (l *Ledger) inCooldown(pos *ProviderPosition, height uint64) bool {
	if !pos.HasContributed || l.params.WithdrawCooldown == 0 {
		return false
	}
	return height < pos.LastContributionHeight+l.params.WithdrawCooldown
}
