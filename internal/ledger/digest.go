package ledger

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// StateRoot returns a Keccak-256 digest of a canonical encoding of the state.
// Replicas that applied the same submissions produce the same root.
func (s *State) StateRoot() common.Hash {
	var buf bytes.Buffer
	w := digestWriter{buf: &buf}

	w.amount(s.Pool.TotalBalance)
	w.amount(s.Pool.TotalShares)
	w.amount(s.Pool.ReservedBalance)
	for _, v := range []Amount{
		s.Totals.Contributed, s.Totals.Withdrawn, s.Totals.Drawn, s.Totals.Fees,
		s.Totals.Returned, s.Totals.Dust, s.Totals.RewardsPaid, s.Totals.RewardsAccrued,
	} {
		w.amount(v)
	}
	w.uint(s.NextClaimID)
	w.uint(s.NextReservationID)
	w.uint(s.EventSeq)

	providers := make([]common.Address, 0, len(s.Positions))
	for addr := range s.Positions {
		providers = append(providers, addr)
	}
	sort.Slice(providers, func(i, j int) bool {
		return bytes.Compare(providers[i][:], providers[j][:]) < 0
	})
	w.uint(uint64(len(providers)))
	for _, addr := range providers {
		pos := s.Positions[addr]
		buf.Write(addr[:])
		w.amount(pos.Shares)
		w.amount(pos.PendingReward)
		w.uint(pos.LastContributionHeight)
		w.bool(pos.HasContributed)
	}

	claimIDs := sortedKeys(s.Claims)
	w.uint(uint64(len(claimIDs)))
	for _, id := range claimIDs {
		c := s.Claims[id]
		w.uint(c.ID)
		buf.Write(c.Agent[:])
		w.str(string(c.Direction))
		w.amount(c.Amount)
		w.amount(c.Fee)
		w.str(string(c.State))
		w.uint(c.CreatedAt)
		w.uint(c.ExpiresAt)
		w.uint(c.ProvenAt)
		w.uint(c.ClosedAt)
		w.str(c.ProofCID)
		w.uint(c.ReservationID)
	}

	anchors := make([]string, 0, len(s.Anchors))
	for key := range s.Anchors {
		anchors = append(anchors, key)
	}
	sort.Strings(anchors)
	w.uint(uint64(len(anchors)))
	for _, key := range anchors {
		w.str(key)
		w.uint(s.Anchors[key])
	}

	reservations := sortedKeys(s.Reservations)
	w.uint(uint64(len(reservations)))
	for _, id := range reservations {
		w.uint(id)
		w.amount(s.Reservations[id])
	}

	return crypto.Keccak256Hash(buf.Bytes())
}

type digestWriter struct {
	buf *bytes.Buffer
}

func (w digestWriter) amount(v Amount) {
	b := v.Bytes32()
	w.buf.Write(b[:])
}

func (w digestWriter) uint(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w digestWriter) str(v string) {
	w.uint(uint64(len(v)))
	w.buf.WriteString(v)
}

func (w digestWriter) bool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
