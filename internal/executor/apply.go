package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"mpesapool/internal/ledger"
	"mpesapool/internal/model"
)

var errMalformed = errors.New("malformed submission")

// rejectionReasons label rejected submissions in metrics.
var rejectionReasons = []error{
	ledger.ErrInsufficientFunds,
	ledger.ErrInsufficientShares,
	ledger.ErrPoolLiquidityLocked,
	ledger.ErrCooldownActive,
	ledger.ErrInvalidClaimState,
	ledger.ErrAlreadyAnchored,
	ledger.ErrExpired,
	ledger.ErrUnauthorized,
	ledger.ErrDisputeWindowActive,
	ledger.ErrInvalidAmount,
	ledger.ErrBelowMinimum,
	ledger.ErrEmptyPool,
	ledger.ErrClaimNotFound,
	ledger.ErrInvalidCID,
	ledger.ErrTransferFailed,
	ledger.ErrOverflow,
	errMalformed,
}

// apply runs one submission. Rejections are reported in the outcome; only
// ledger faults are returned as errors.
func (e *Executor) apply(sub model.Submission) (model.Outcome, error) {
	outcome := model.Outcome{
		BlockNumber: sub.BlockNumber,
		TxHash:      sub.TxHash,
		LogIndex:    sub.LogIndex,
		Kind:        sub.Kind,
		Caller:      sub.Caller,
		ClaimID:     sub.ClaimID,
	}

	err := e.dispatch(sub, &outcome)
	switch {
	case err == nil:
		outcome.Accepted = true
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.SubmissionsApplied.WithLabelValues(string(sub.Kind)).Inc()
		}
	case ledger.IsRejection(err):
		outcome.Error = err.Error()
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.SubmissionsRejected.WithLabelValues(string(sub.Kind), reasonOf(err)).Inc()
		}
		e.logger.Debug("submission rejected",
			zap.String("key", sub.Key()),
			zap.String("kind", string(sub.Kind)),
			zap.Error(err),
		)
	default:
		return model.Outcome{}, err
	}

	outcome.StateRoot = e.ledger.StateRoot().Hex()
	return outcome, nil
}

func (e *Executor) dispatch(sub model.Submission, outcome *model.Outcome) error {
	caller, err := parseAccount(sub.Caller)
	if err != nil {
		return err
	}
	l := e.ledger

	switch sub.Kind {
	case model.KindContribute:
		amount, err := parseQuantity(sub.Amount)
		if err != nil {
			return err
		}
		shares, err := l.Contribute(caller, amount)
		if err != nil {
			return err
		}
		outcome.Amount, outcome.Shares = amount.Dec(), shares.Dec()

	case model.KindWithdraw:
		shares, err := parseQuantity(sub.Shares)
		if err != nil {
			return err
		}
		amount, err := l.Withdraw(caller, shares)
		if err != nil {
			return err
		}
		outcome.Amount, outcome.Shares = amount.Dec(), shares.Dec()

	case model.KindOpenClaim:
		direction, err := ledger.ParseDirection(sub.Direction)
		if err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		amount, err := parseQuantity(sub.Amount)
		if err != nil {
			return err
		}
		id, err := l.OpenClaim(caller, direction, amount)
		if err != nil {
			return err
		}
		outcome.ClaimID, outcome.Amount = id, amount.Dec()

	case model.KindAttachProof:
		return l.AttachProof(caller, sub.ClaimID, sub.CID)

	case model.KindSettle:
		if err := l.Settle(caller, sub.ClaimID); err != nil {
			return err
		}
		if claim, ok := l.Claim(sub.ClaimID); ok {
			outcome.Amount = claim.Amount.Dec()
		}

	case model.KindCancel:
		return l.Cancel(caller, sub.ClaimID)

	case model.KindTransferShares:
		to, err := parseAccount(sub.Counterparty)
		if err != nil {
			return err
		}
		shares, err := parseQuantity(sub.Shares)
		if err != nil {
			return err
		}
		if err := l.TransferShares(caller, to, shares); err != nil {
			return err
		}
		outcome.Shares = shares.Dec()

	case model.KindClaimRewards:
		paid, err := l.ClaimRewards(caller)
		if err != nil {
			return err
		}
		outcome.Amount = paid.Dec()

	case model.KindTouch:
		_, err := l.Touch(sub.ClaimID)
		return err

	default:
		return fmt.Errorf("%w: unknown kind %q", errMalformed, sub.Kind)
	}
	return nil
}

func parseAccount(input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%w: invalid account %q", errMalformed, input)
	}
	return common.HexToAddress(input), nil
}

func parseQuantity(input string) (ledger.Amount, error) {
	amount, err := ledger.ParseAmount(input)
	if err != nil {
		return ledger.Amount{}, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	return amount, nil
}

func reasonOf(err error) string {
	for _, reason := range rejectionReasons {
		if errors.Is(err, reason) {
			return strings.ReplaceAll(reason.Error(), " ", "_")
		}
	}
	return "other"
}
