package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"mpesapool/internal/ledger"
	"mpesapool/internal/receipt"
)

// CID anchoring modes.
const (
	CIDModeMultihash = "multihash"
	CIDModeOpaque    = "opaque"
)

// LedgerConfig holds pool policy parameters.
type LedgerConfig struct {
	PoolAccount      string
	MinContribution  string
	WithdrawCooldown uint64
	ClaimTTL         uint64
	DisputeWindow    uint64
	FeeRate          string
	Oracles          []string
	CIDMode          string
}

var ledgerDefaults = map[string]interface{}{
	"min-contribution":  "1",
	"withdraw-cooldown": uint64(10),
	"claim-ttl":         uint64(100),
	"dispute-window":    uint64(10),
	"fee-rate":          "0.01",
	"cid-mode":          CIDModeMultihash,
}

func loadLedger(v *viper.Viper) LedgerConfig {
	return LedgerConfig{
		PoolAccount:      v.GetString("pool-account"),
		MinContribution:  v.GetString("min-contribution"),
		WithdrawCooldown: v.GetUint64("withdraw-cooldown"),
		ClaimTTL:         v.GetUint64("claim-ttl"),
		DisputeWindow:    v.GetUint64("dispute-window"),
		FeeRate:          v.GetString("fee-rate"),
		Oracles:          getStringSlice(v, "oracles"),
		CIDMode:          v.GetString("cid-mode"),
	}
}

// Params converts the configuration into validated ledger parameters.
func (c LedgerConfig) Params() (ledger.Params, error) {
	if !common.IsHexAddress(c.PoolAccount) {
		return ledger.Params{}, fmt.Errorf("invalid pool account: %q", c.PoolAccount)
	}

	minContribution := ledger.NewAmount(0)
	if strings.TrimSpace(c.MinContribution) != "" {
		var err error
		minContribution, err = ledger.ParseAmount(c.MinContribution)
		if err != nil {
			return ledger.Params{}, fmt.Errorf("min contribution: %w", err)
		}
	}

	feeBps, err := ParseFeeRate(c.FeeRate)
	if err != nil {
		return ledger.Params{}, err
	}

	oracles := make([]common.Address, 0, len(c.Oracles))
	for _, o := range c.Oracles {
		if !common.IsHexAddress(o) {
			return ledger.Params{}, fmt.Errorf("invalid oracle address: %s", o)
		}
		oracles = append(oracles, common.HexToAddress(o))
	}

	var anchorKey ledger.AnchorKeyFunc
	switch strings.ToLower(strings.TrimSpace(c.CIDMode)) {
	case "", CIDModeMultihash:
		anchorKey = receipt.AnchorKey
	case CIDModeOpaque:
		anchorKey = ledger.OpaqueAnchorKey
	default:
		return ledger.Params{}, fmt.Errorf("unknown cid mode %q", c.CIDMode)
	}

	params := ledger.Params{
		PoolAccount:      common.HexToAddress(c.PoolAccount),
		MinContribution:  minContribution,
		WithdrawCooldown: c.WithdrawCooldown,
		ClaimTTL:         c.ClaimTTL,
		DisputeWindow:    c.DisputeWindow,
		FeeBps:           feeBps,
		Oracles:          oracles,
		AnchorKey:        anchorKey,
	}
	if err := params.Validate(); err != nil {
		return ledger.Params{}, err
	}
	return params, nil
}

var bpsPerUnit = decimal.NewFromInt(10_000)

// ParseFeeRate converts a fractional rate such as "0.01" into basis points.
// Rates finer than one basis point are rejected.
func ParseFeeRate(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}

	rate, err := decimal.NewFromString(input)
	if err != nil {
		return 0, fmt.Errorf("invalid fee rate %q: %w", input, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return 0, fmt.Errorf("fee rate %s out of range [0, 1]", input)
	}

	bps := rate.Mul(bpsPerUnit)
	if !bps.Equal(bps.Truncate(0)) {
		return 0, fmt.Errorf("fee rate %s is finer than one basis point", input)
	}
	return uint64(bps.IntPart()), nil
}
