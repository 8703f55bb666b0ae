package ledger

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventKind names a committed ledger transition.
type EventKind string

const (
	EventProviderCreated   EventKind = "provider_created"
	EventContributed       EventKind = "contributed"
	EventWithdrawn         EventKind = "withdrawn"
	EventSharesTransferred EventKind = "shares_transferred"
	EventRewardsClaimed    EventKind = "rewards_claimed"
	EventClaimOpened       EventKind = "claim_opened"
	EventProofAnchored     EventKind = "proof_anchored"
	EventClaimSettled      EventKind = "claim_settled"
	EventFeeDistributed    EventKind = "fee_distributed"
	EventRewardAccrued     EventKind = "reward_accrued"
	EventClaimExpired      EventKind = "claim_expired"
	EventClaimCancelled    EventKind = "claim_cancelled"
)

// eventNamespace seeds name-based event IDs so replays reproduce them.
var eventNamespace = uuid.MustParse("6f1c9a2e-4b57-5d0e-9a43-2f8e61c0b7d4")

// Event is emitted for every committed transition. Events of a rejected
// transition are dropped together with its state.
type Event struct {
	ID           uuid.UUID
	Seq          uint64
	Height       uint64
	Kind         EventKind
	Account      common.Address
	Counterparty common.Address
	ClaimID      uint64
	Direction    Direction
	Amount       Amount
	Shares       Amount
	Dust         Amount
	CID          string
}

func eventID(seq uint64) uuid.UUID {
	return uuid.NewSHA1(eventNamespace, []byte(strconv.FormatUint(seq, 10)))
}
