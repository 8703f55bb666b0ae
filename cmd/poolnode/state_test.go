package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpesapool/internal/model"
	"mpesapool/internal/receipt"
)

func TestScaleSnapshot(t *testing.T) {
	snap := model.Snapshot{
		Pool:      model.PoolRecord{TotalBalance: "59600", TotalShares: "100000", ReservedBalance: "0"},
		Totals:    model.TotalsRecord{Fees: "400"},
		Positions: []model.PositionRecord{{Shares: "100000", PendingReward: "400"}},
		Claims:    []model.ClaimRecord{{Amount: "40000", Fee: "400"}},
		Accounts:  []model.AccountRecord{{Balance: "40000"}},
	}

	got := scaleSnapshot(snap, 2)
	assert.Equal(t, "596", got.Pool.TotalBalance)
	assert.Equal(t, "100000", got.Pool.TotalShares)
	assert.Equal(t, "4", got.Totals.Fees)
	assert.Equal(t, "", got.Totals.Drawn)
	assert.Equal(t, "100000", got.Positions[0].Shares)
	assert.Equal(t, "4", got.Positions[0].PendingReward)
	assert.Equal(t, "400", got.Claims[0].Amount)
	assert.Equal(t, "400", got.Accounts[0].Balance)
	assert.Equal(t, "400", snap.Positions[0].PendingReward, "input must not be modified")
}

func TestCIDCommandRoundTrip(t *testing.T) {
	r := receipt.Receipt{
		TransactionCode: "QFT7XYZ123",
		Direction:       "draw",
		Amount:          "400",
		Currency:        "KES",
		AgentTill:       "123456",
		Agent:           "0x2222222222222222222222222222222222222222",
		CompletedAt:     "2026-01-02T03:04:05Z",
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "receipt.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	want, err := receipt.CIDOfReceipt(r)
	require.NoError(t, err)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"cid", path})
	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "cid: "+want.String()+"\n"))

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"cid", path, "--verify", want.String()})
	require.NoError(t, root.Execute())
	assert.Equal(t, "ok "+want.String()+"\n", out.String())
}
