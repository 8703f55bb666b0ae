package ledger

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"mpesapool/internal/model"
)

// Export converts state to its persisted form. Height, accounts and the
// update timestamp are left for the caller.
func Export(s *State) model.Snapshot {
	snap := model.Snapshot{
		StateRoot: s.StateRoot().Hex(),
		Pool: model.PoolRecord{
			TotalBalance:    s.Pool.TotalBalance.Dec(),
			TotalShares:     s.Pool.TotalShares.Dec(),
			ReservedBalance: s.Pool.ReservedBalance.Dec(),
		},
		Totals: model.TotalsRecord{
			Contributed:    s.Totals.Contributed.Dec(),
			Withdrawn:      s.Totals.Withdrawn.Dec(),
			Drawn:          s.Totals.Drawn.Dec(),
			Fees:           s.Totals.Fees.Dec(),
			Returned:       s.Totals.Returned.Dec(),
			Dust:           s.Totals.Dust.Dec(),
			RewardsPaid:    s.Totals.RewardsPaid.Dec(),
			RewardsAccrued: s.Totals.RewardsAccrued.Dec(),
		},
		Counters: model.CountersRecord{
			NextClaimID:       s.NextClaimID,
			NextReservationID: s.NextReservationID,
			EventSeq:          s.EventSeq,
		},
	}

	providers := make([]common.Address, 0, len(s.Positions))
	for addr := range s.Positions {
		providers = append(providers, addr)
	}
	sort.Slice(providers, func(i, j int) bool {
		return bytes.Compare(providers[i][:], providers[j][:]) < 0
	})
	for _, addr := range providers {
		pos := s.Positions[addr]
		snap.Positions = append(snap.Positions, model.PositionRecord{
			Provider:               addr.Hex(),
			Shares:                 pos.Shares.Dec(),
			PendingReward:          pos.PendingReward.Dec(),
			LastContributionHeight: pos.LastContributionHeight,
			HasContributed:         pos.HasContributed,
		})
	}

	for _, id := range sortedKeys(s.Claims) {
		c := s.Claims[id]
		snap.Claims = append(snap.Claims, model.ClaimRecord{
			ID:            c.ID,
			Agent:         c.Agent.Hex(),
			Direction:     string(c.Direction),
			Amount:        c.Amount.Dec(),
			Fee:           c.Fee.Dec(),
			State:         string(c.State),
			CreatedAt:     c.CreatedAt,
			ExpiresAt:     c.ExpiresAt,
			ProvenAt:      c.ProvenAt,
			ClosedAt:      c.ClosedAt,
			ProofCID:      c.ProofCID,
			ReservationID: c.ReservationID,
		})
	}

	keys := make([]string, 0, len(s.Anchors))
	for key := range s.Anchors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		snap.Anchors = append(snap.Anchors, model.AnchorRecord{Key: key, ClaimID: s.Anchors[key]})
	}

	for _, id := range sortedKeys(s.Reservations) {
		amt := s.Reservations[id]
		snap.Reservations = append(snap.Reservations, model.ReservationRecord{ID: id, Amount: amt.Dec()})
	}
	return snap
}

// Import rebuilds state from its persisted form and checks that it still
// hashes to the recorded root.
func Import(snap model.Snapshot) (*State, error) {
	s := NewState()

	var err error
	amounts := []struct {
		dst *Amount
		src string
	}{
		{&s.Pool.TotalBalance, snap.Pool.TotalBalance},
		{&s.Pool.TotalShares, snap.Pool.TotalShares},
		{&s.Pool.ReservedBalance, snap.Pool.ReservedBalance},
		{&s.Totals.Contributed, snap.Totals.Contributed},
		{&s.Totals.Withdrawn, snap.Totals.Withdrawn},
		{&s.Totals.Drawn, snap.Totals.Drawn},
		{&s.Totals.Fees, snap.Totals.Fees},
		{&s.Totals.Returned, snap.Totals.Returned},
		{&s.Totals.Dust, snap.Totals.Dust},
		{&s.Totals.RewardsPaid, snap.Totals.RewardsPaid},
		{&s.Totals.RewardsAccrued, snap.Totals.RewardsAccrued},
	}
	for _, a := range amounts {
		if *a.dst, err = parseOrZero(a.src); err != nil {
			return nil, err
		}
	}

	if snap.Counters.NextClaimID > 0 {
		s.NextClaimID = snap.Counters.NextClaimID
	}
	if snap.Counters.NextReservationID > 0 {
		s.NextReservationID = snap.Counters.NextReservationID
	}
	s.EventSeq = snap.Counters.EventSeq

	for _, rec := range snap.Positions {
		if !common.IsHexAddress(rec.Provider) {
			return nil, fmt.Errorf("invalid provider address %q", rec.Provider)
		}
		pos := &ProviderPosition{
			Provider:               common.HexToAddress(rec.Provider),
			LastContributionHeight: rec.LastContributionHeight,
			HasContributed:         rec.HasContributed,
		}
		if pos.Shares, err = parseOrZero(rec.Shares); err != nil {
			return nil, err
		}
		if pos.PendingReward, err = parseOrZero(rec.PendingReward); err != nil {
			return nil, err
		}
		s.Positions[pos.Provider] = pos
	}

	for _, rec := range snap.Claims {
		if !common.IsHexAddress(rec.Agent) {
			return nil, fmt.Errorf("invalid agent address %q", rec.Agent)
		}
		dir, err := ParseDirection(rec.Direction)
		if err != nil {
			return nil, err
		}
		c := &Claim{
			ID:            rec.ID,
			Agent:         common.HexToAddress(rec.Agent),
			Direction:     dir,
			State:         ClaimState(rec.State),
			CreatedAt:     rec.CreatedAt,
			ExpiresAt:     rec.ExpiresAt,
			ProvenAt:      rec.ProvenAt,
			ClosedAt:      rec.ClosedAt,
			ProofCID:      rec.ProofCID,
			ReservationID: rec.ReservationID,
		}
		if c.Amount, err = parseOrZero(rec.Amount); err != nil {
			return nil, err
		}
		if c.Fee, err = parseOrZero(rec.Fee); err != nil {
			return nil, err
		}
		s.Claims[c.ID] = c
	}

	for _, rec := range snap.Anchors {
		s.Anchors[rec.Key] = rec.ClaimID
	}
	for _, rec := range snap.Reservations {
		amt, err := parseOrZero(rec.Amount)
		if err != nil {
			return nil, err
		}
		s.Reservations[rec.ID] = amt
	}

	if err := s.CheckInvariants(); err != nil {
		return nil, err
	}
	if snap.StateRoot != "" {
		if root := s.StateRoot().Hex(); root != snap.StateRoot {
			return nil, fmt.Errorf("state root mismatch: computed %s, recorded %s", root, snap.StateRoot)
		}
	}
	return s, nil
}

// EventRecord converts an event to its journal form.
func EventRecord(ev Event) model.EventRecord {
	rec := model.EventRecord{
		ID:          ev.ID.String(),
		Seq:         ev.Seq,
		BlockNumber: ev.Height,
		Kind:        string(ev.Kind),
		ClaimID:     ev.ClaimID,
		Direction:   string(ev.Direction),
		CID:         ev.CID,
	}
	if ev.Account != (common.Address{}) {
		rec.Account = ev.Account.Hex()
	}
	if ev.Counterparty != (common.Address{}) {
		rec.Counterparty = ev.Counterparty.Hex()
	}
	if !ev.Amount.IsZero() {
		rec.Amount = ev.Amount.Dec()
	}
	if !ev.Shares.IsZero() {
		rec.Shares = ev.Shares.Dec()
	}
	if !ev.Dust.IsZero() {
		rec.Dust = ev.Dust.Dec()
	}
	return rec
}

func parseOrZero(input string) (Amount, error) {
	if input == "" {
		return Amount{}, nil
	}
	return ParseAmount(input)
}
