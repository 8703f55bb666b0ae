package ledger

import "errors"

// Transition errors. A transition that returns one of these leaves the ledger
// state unchanged.
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrPoolLiquidityLocked = errors.New("pool liquidity locked")
	ErrCooldownActive      = errors.New("withdrawal cooldown active")
	ErrInvalidClaimState   = errors.New("invalid claim state")
	ErrAlreadyAnchored     = errors.New("proof already anchored")
	ErrExpired             = errors.New("claim expired")
	ErrUnauthorized        = errors.New("unauthorized")

	ErrDisputeWindowActive = errors.New("dispute window active")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrBelowMinimum        = errors.New("amount below minimum contribution")
	ErrEmptyPool           = errors.New("pool has no outstanding shares")
	ErrClaimNotFound       = errors.New("claim not found")
	ErrInvalidCID          = errors.New("invalid cid")
	ErrTransferFailed      = errors.New("substrate transfer failed")

	ErrOverflow          = errors.New("amount overflow")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrInvariantViolated = errors.New("ledger invariant violated")
)
