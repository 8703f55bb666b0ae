package model

// Snapshot is the persisted pool state after the last fully applied block.
type Snapshot struct {
	Height       uint64              `json:"height"`
	StateRoot    string              `json:"state_root"`
	Pool         PoolRecord          `json:"pool"`
	Totals       TotalsRecord        `json:"totals"`
	Positions    []PositionRecord    `json:"positions"`
	Claims       []ClaimRecord       `json:"claims"`
	Anchors      []AnchorRecord      `json:"anchors"`
	Reservations []ReservationRecord `json:"reservations"`
	Accounts     []AccountRecord     `json:"accounts"`
	Counters     CountersRecord      `json:"counters"`
	UpdatedAt    string              `json:"updated_at"`
}

// PoolRecord holds the pool aggregate.
type PoolRecord struct {
	TotalBalance    string `json:"total_balance"`
	TotalShares     string `json:"total_shares"`
	ReservedBalance string `json:"reserved_balance"`
}

// TotalsRecord holds cumulative flows.
type TotalsRecord struct {
	Contributed    string `json:"contributed"`
	Withdrawn      string `json:"withdrawn"`
	Drawn          string `json:"drawn"`
	Fees           string `json:"fees"`
	Returned       string `json:"returned"`
	Dust           string `json:"dust"`
	RewardsPaid    string `json:"rewards_paid"`
	RewardsAccrued string `json:"rewards_accrued"`
}

// PositionRecord is one provider position.
type PositionRecord struct {
	Provider               string `json:"provider"`
	Shares                 string `json:"shares"`
	PendingReward          string `json:"pending_reward"`
	LastContributionHeight uint64 `json:"last_contribution_height"`
	HasContributed         bool   `json:"has_contributed"`
}

// ClaimRecord is one claim.
type ClaimRecord struct {
	ID            uint64 `json:"id"`
	Agent         string `json:"agent"`
	Direction     string `json:"direction"`
	Amount        string `json:"amount"`
	Fee           string `json:"fee"`
	State         string `json:"state"`
	CreatedAt     uint64 `json:"created_at"`
	ExpiresAt     uint64 `json:"expires_at"`
	ProvenAt      uint64 `json:"proven_at"`
	ClosedAt      uint64 `json:"closed_at"`
	ProofCID      string `json:"proof_cid,omitempty"`
	ReservationID uint64 `json:"reservation_id,omitempty"`
}

// AnchorRecord maps an anchor key to its claim.
type AnchorRecord struct {
	Key     string `json:"key"`
	ClaimID uint64 `json:"claim_id"`
}

// ReservationRecord is one outstanding reservation.
type ReservationRecord struct {
	ID     uint64 `json:"id"`
	Amount string `json:"amount"`
}

// AccountRecord is a substrate balance.
type AccountRecord struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// CountersRecord holds id and sequence counters.
type CountersRecord struct {
	NextClaimID       uint64 `json:"next_claim_id"`
	NextReservationID uint64 `json:"next_reservation_id"`
	EventSeq          uint64 `json:"event_seq"`
}

// Genesis seeds substrate balances before the first block.
type Genesis struct {
	Accounts []AccountRecord `json:"accounts"`
}
