package ledger

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// RewardShare is one provider's cut of a distributed fee.
type RewardShare struct {
	Provider common.Address
	Amount   Amount
}

// Distribution is the outcome of splitting one fee across providers.
type Distribution struct {
	Fee    Amount
	Shares []RewardShare
	Dust   Amount
}

// DistributeFee credits fee pro-rata to every position's pending reward using
// the current share snapshot. The integer-division remainder is credited back
// to the pool balance as dust.
func (s *State) DistributeFee(fee Amount) (Distribution, error) {
	dist := Distribution{Fee: fee}
	if fee.IsZero() {
		return dist, nil
	}
	if s.Pool.TotalShares.IsZero() {
		return Distribution{}, ErrEmptyPool
	}

	providers := make([]common.Address, 0, len(s.Positions))
	for addr, pos := range s.Positions {
		if !pos.Shares.IsZero() {
			providers = append(providers, addr)
		}
	}
	sort.Slice(providers, func(i, j int) bool {
		return bytes.Compare(providers[i][:], providers[j][:]) < 0
	})

	var paid Amount
	for _, addr := range providers {
		pos := s.Positions[addr]
		cut, err := mulDiv(fee, pos.Shares, s.Pool.TotalShares)
		if err != nil {
			return Distribution{}, err
		}
		if cut.IsZero() {
			continue
		}
		pos.PendingReward.Add(&pos.PendingReward, &cut)
		paid.Add(&paid, &cut)
		dist.Shares = append(dist.Shares, RewardShare{Provider: addr, Amount: cut})
	}

	dust, err := subAmount(fee, paid)
	if err != nil {
		return Distribution{}, err
	}
	if !dust.IsZero() {
		if err := s.Credit(dust); err != nil {
			return Distribution{}, err
		}
		s.Totals.Dust.Add(&s.Totals.Dust, &dust)
	}
	s.Totals.RewardsAccrued.Add(&s.Totals.RewardsAccrued, &paid)
	dist.Dust = dust
	return dist, nil
}
