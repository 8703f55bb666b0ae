package model

// Outcome is the result of applying one submission. Rejected submissions
// carry the error and leave the pool untouched.
type Outcome struct {
	BlockNumber uint64         `json:"block_number"`
	TxHash      string         `json:"tx_hash"`
	LogIndex    uint64         `json:"log_index"`
	Kind        SubmissionKind `json:"kind"`
	Caller      string         `json:"caller"`
	Accepted    bool           `json:"accepted"`
	Error       string         `json:"error,omitempty"`
	ClaimID     uint64         `json:"claim_id,omitempty"`
	Amount      string         `json:"amount,omitempty"`
	Shares      string         `json:"shares,omitempty"`
	StateRoot   string         `json:"state_root"`
}

// EventRecord is the journal form of a committed ledger event.
type EventRecord struct {
	ID           string `json:"id"`
	Seq          uint64 `json:"seq"`
	BlockNumber  uint64 `json:"block_number"`
	Kind         string `json:"kind"`
	Account      string `json:"account,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	ClaimID      uint64 `json:"claim_id,omitempty"`
	Direction    string `json:"direction,omitempty"`
	Amount       string `json:"amount,omitempty"`
	Shares       string `json:"shares,omitempty"`
	Dust         string `json:"dust,omitempty"`
	CID          string `json:"cid,omitempty"`
}
