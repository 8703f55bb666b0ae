package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"mpesapool/internal/ledger"
)

// ErrMismatch is returned when a receipt does not hash to the claimed CID.
var ErrMismatch = errors.New("receipt does not match cid")

// Prefix is the CID format used for new receipts: CIDv1, raw codec, sha2-256.
var Prefix = cid.Prefix{
	Version:  1,
	Codec:    cid.Raw,
	MhType:   mh.SHA2_256,
	MhLength: -1,
}

// Receipt is the off-chain record of one M-Pesa cash movement.
type Receipt struct {
	TransactionCode string `json:"transaction_code"`
	Direction       string `json:"direction"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	AgentTill       string `json:"agent_till"`
	Agent           string `json:"agent"`
	CustomerHash    string `json:"customer_hash"`
	CompletedAt     string `json:"completed_at"`
}

// Normalize returns a copy with whitespace trimmed, codes upper-cased and the
// timestamp rewritten in UTC RFC3339.
func (r Receipt) Normalize() (Receipt, error) {
	out := Receipt{
		TransactionCode: strings.ToUpper(strings.TrimSpace(r.TransactionCode)),
		Amount:          strings.TrimSpace(r.Amount),
		Currency:        strings.ToUpper(strings.TrimSpace(r.Currency)),
		AgentTill:       strings.TrimSpace(r.AgentTill),
		Agent:           strings.ToLower(strings.TrimSpace(r.Agent)),
		CustomerHash:    strings.ToLower(strings.TrimSpace(r.CustomerHash)),
	}

	if out.TransactionCode == "" {
		return Receipt{}, fmt.Errorf("transaction code is required")
	}
	dir, err := ledger.ParseDirection(r.Direction)
	if err != nil {
		return Receipt{}, err
	}
	out.Direction = string(dir)

	amount, err := ledger.ParseAmount(out.Amount)
	if err != nil {
		return Receipt{}, err
	}
	if amount.IsZero() {
		return Receipt{}, fmt.Errorf("amount must be positive")
	}
	out.Amount = amount.Dec()

	if out.Currency == "" {
		return Receipt{}, fmt.Errorf("currency is required")
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(r.CompletedAt))
	if err != nil {
		return Receipt{}, fmt.Errorf("completed_at: %w", err)
	}
	out.CompletedAt = ts.UTC().Format(time.RFC3339)
	return out, nil
}

// CanonicalBytes returns the bytes a receipt CID commits to.
func (r Receipt) CanonicalBytes() ([]byte, error) {
	norm, err := r.Normalize()
	if err != nil {
		return nil, err
	}
	return json.Marshal(norm)
}

// CIDOf hashes data into a CIDv1.
func CIDOf(data []byte) (cid.Cid, error) {
	return Prefix.Sum(data)
}

// CIDOfReceipt returns the CID of a receipt's canonical bytes.
func CIDOfReceipt(r Receipt) (cid.Cid, error) {
	data, err := r.CanonicalBytes()
	if err != nil {
		return cid.Undef, err
	}
	return CIDOf(data)
}

// Verify checks that r hashes to c under c's own prefix, so CIDv0 spellings
// of the same content verify too.
func Verify(c string, r Receipt) error {
	parsed, err := cid.Decode(c)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidCID, err)
	}
	data, err := r.CanonicalBytes()
	if err != nil {
		return err
	}
	sum, err := parsed.Prefix().Sum(data)
	if err != nil {
		return err
	}
	if !sum.Equals(parsed) {
		return ErrMismatch
	}
	return nil
}

// AnchorKey maps a CID string to its multihash so CIDv0 and CIDv1 spellings
// of the same content collide. It satisfies ledger.AnchorKeyFunc.
func AnchorKey(c string) (string, error) {
	parsed, err := cid.Decode(strings.TrimSpace(c))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrInvalidCID, err)
	}
	return parsed.Hash().B58String(), nil
}

var _ ledger.AnchorKeyFunc = AnchorKey
