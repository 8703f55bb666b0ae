package model

import "fmt"

// SubmissionKind names a pool operation carried by a gateway log.
type SubmissionKind string

const (
	KindContribute     SubmissionKind = "contribute"
	KindWithdraw       SubmissionKind = "withdraw"
	KindOpenClaim      SubmissionKind = "open_claim"
	KindAttachProof    SubmissionKind = "attach_proof"
	KindSettle         SubmissionKind = "settle"
	KindCancel         SubmissionKind = "cancel"
	KindTransferShares SubmissionKind = "transfer_shares"
	KindClaimRewards   SubmissionKind = "claim_rewards"
	KindTouch          SubmissionKind = "touch"
)

// Submission is one ordered operation against the pool. Amounts are base-10
// strings in the pool's smallest unit.
type Submission struct {
	ChainID      uint64         `json:"chain_id"`
	BlockNumber  uint64         `json:"block_number"`
	BlockHash    string         `json:"block_hash"`
	TxHash       string         `json:"tx_hash"`
	LogIndex     uint64         `json:"log_index"`
	Kind         SubmissionKind `json:"kind"`
	Caller       string         `json:"caller"`
	Counterparty string         `json:"counterparty,omitempty"`
	Direction    string         `json:"direction,omitempty"`
	Amount       string         `json:"amount,omitempty"`
	Shares       string         `json:"shares,omitempty"`
	ClaimID      uint64         `json:"claim_id,omitempty"`
	CID          string         `json:"cid,omitempty"`
}

// Key identifies the submission in the consensus order.
func (s Submission) Key() string {
	return fmt.Sprintf("%d:%s:%d", s.BlockNumber, s.TxHash, s.LogIndex)
}

// Before reports whether s is ordered ahead of other.
func (s Submission) Before(other Submission) bool {
	if s.BlockNumber != other.BlockNumber {
		return s.BlockNumber < other.BlockNumber
	}
	return s.LogIndex < other.LogIndex
}
