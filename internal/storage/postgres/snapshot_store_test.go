//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"mpesapool/internal/model"
	"mpesapool/internal/storage/migrations"
	"mpesapool/internal/storage/postgres"
)

func setupTestDB(t *testing.T) *postgres.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool))
	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool), "migrations must be idempotent")
	return pool
}

func sampleSnapshot(height uint64) model.Snapshot {
	return model.Snapshot{
		Height:    height,
		StateRoot: "0xabc",
		Pool:      model.PoolRecord{TotalBalance: "596", TotalShares: "1000", ReservedBalance: "0"},
		Totals: model.TotalsRecord{
			Contributed: "1000", Drawn: "400", Fees: "4", RewardsAccrued: "4",
		},
		Positions: []model.PositionRecord{{
			Provider: "0x1111111111111111111111111111111111111111", Shares: "1000",
			PendingReward: "4", LastContributionHeight: 1, HasContributed: true,
		}},
		Claims: []model.ClaimRecord{{
			ID: 1, Agent: "0x2222222222222222222222222222222222222222", Direction: "draw",
			Amount: "400", Fee: "4", State: "settled", CreatedAt: 2, ExpiresAt: 102,
			ProvenAt: 3, ClosedAt: 13, ProofCID: "Qm123", ReservationID: 1,
		}},
		Anchors:  []model.AnchorRecord{{Key: "Qm123", ClaimID: 1}},
		Accounts: []model.AccountRecord{{Account: "0x2222222222222222222222222222222222222222", Balance: "400"}},
		Counters: model.CountersRecord{NextClaimID: 2, NextReservationID: 2, EventSeq: 9},
	}
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewStore(setupTestDB(t))

	_, ok, err := store.LoadSnapshot(ctx, "kes")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveSnapshot(ctx, "kes", sampleSnapshot(13)))

	got, ok, err := store.LoadSnapshot(ctx, "kes")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(13), got.Height)
	assert.Equal(t, "596", got.Pool.TotalBalance)
	assert.Equal(t, "4", got.Totals.Fees)
	assert.Equal(t, "0", got.Totals.Withdrawn)
	require.Len(t, got.Claims, 1)
	assert.Equal(t, "settled", got.Claims[0].State)
	assert.Equal(t, uint64(102), got.Claims[0].ExpiresAt)
	require.Len(t, got.Anchors, 1)
	assert.Empty(t, got.Reservations)
	assert.Equal(t, uint64(9), got.Counters.EventSeq)

	next := sampleSnapshot(20)
	next.Claims = nil
	next.Anchors = nil
	require.NoError(t, store.SaveSnapshot(ctx, "kes", next))

	got, ok, err = store.LoadSnapshot(ctx, "kes")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(20), got.Height)
	assert.Empty(t, got.Claims)
	assert.Empty(t, got.Anchors)
}

func TestStoreAppendEventsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewStore(setupTestDB(t))

	events := []model.EventRecord{
		{ID: "5b1e0c1c-6d0f-5b5e-8f0a-111111111111", Seq: 1, BlockNumber: 1, Kind: "contributed", Account: "0x1111111111111111111111111111111111111111", Amount: "1000", Shares: "1000"},
		{ID: "5b1e0c1c-6d0f-5b5e-8f0a-222222222222", Seq: 2, BlockNumber: 2, Kind: "claim_opened", ClaimID: 1, Direction: "draw", Amount: "400"},
	}
	require.NoError(t, store.AppendEvents(ctx, "kes", events))
	require.NoError(t, store.AppendEvents(ctx, "kes", events))

	n, err := store.CountEvents(ctx, "kes")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
