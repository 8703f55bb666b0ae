package receipt

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpesapool/internal/ledger"
)

func sampleReceipt() Receipt {
	return Receipt{
		TransactionCode: "qk71abc2de",
		Direction:       "draw",
		Amount:          "400",
		Currency:        "kes",
		AgentTill:       "552211",
		Agent:           "0x2222222222222222222222222222222222222222",
		CustomerHash:    "AB12CD",
		CompletedAt:     "2024-03-01T12:00:00+03:00",
	}
}

func TestCIDIsStableAcrossFormatting(t *testing.T) {
	a := sampleReceipt()
	b := sampleReceipt()
	b.TransactionCode = "  QK71ABC2DE "
	b.Currency = "KES"
	b.CompletedAt = "2024-03-01T09:00:00Z"

	ca, err := CIDOfReceipt(a)
	require.NoError(t, err)
	cb, err := CIDOfReceipt(b)
	require.NoError(t, err)

	assert.True(t, ca.Equals(cb))
	assert.Equal(t, uint64(1), ca.Version())
	assert.Equal(t, uint64(cid.Raw), ca.Type())
}

func TestVerify(t *testing.T) {
	r := sampleReceipt()
	c, err := CIDOfReceipt(r)
	require.NoError(t, err)

	require.NoError(t, Verify(c.String(), r))

	tampered := r
	tampered.Amount = "4000"
	require.ErrorIs(t, Verify(c.String(), tampered), ErrMismatch)

	require.ErrorIs(t, Verify("not-a-cid", r), ledger.ErrInvalidCID)
}

func TestVerifyAcceptsCIDv0(t *testing.T) {
	r := sampleReceipt()
	c, err := CIDOfReceipt(r)
	require.NoError(t, err)

	v0 := cid.NewCidV0(c.Hash())
	require.NoError(t, Verify(v0.String(), r))
}

func TestAnchorKeyMergesVersions(t *testing.T) {
	c, err := CIDOf([]byte("receipt bytes"))
	require.NoError(t, err)
	v0 := cid.NewCidV0(c.Hash())

	k1, err := AnchorKey(c.String())
	require.NoError(t, err)
	k0, err := AnchorKey(v0.String())
	require.NoError(t, err)
	assert.Equal(t, k1, k0)

	other, err := CIDOf([]byte("other bytes"))
	require.NoError(t, err)
	k2, err := AnchorKey(other.String())
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	_, err = AnchorKey("Qm123")
	require.ErrorIs(t, err, ledger.ErrInvalidCID)
}

func TestNormalizeRejectsIncompleteReceipts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Receipt)
	}{
		{"missing code", func(r *Receipt) { r.TransactionCode = " " }},
		{"bad direction", func(r *Receipt) { r.Direction = "sideways" }},
		{"zero amount", func(r *Receipt) { r.Amount = "0" }},
		{"bad amount", func(r *Receipt) { r.Amount = "12.5" }},
		{"missing currency", func(r *Receipt) { r.Currency = "" }},
		{"bad timestamp", func(r *Receipt) { r.CompletedAt = "yesterday" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleReceipt()
			tt.mutate(&r)
			_, err := r.Normalize()
			require.Error(t, err)
		})
	}
}
