package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"mpesapool/internal/config"
	"mpesapool/internal/executor"
	"mpesapool/internal/model"
	"mpesapool/internal/storage/postgres"
)

func runState(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadState(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var store executor.SnapshotStore = &executor.FileSnapshotStore{Path: cfg.SnapshotFile}
	if cfg.PGDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = &executor.DBSnapshotStore{Store: postgres.NewStore(pool), Name: cfg.PoolName}
	}

	snap, ok, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no snapshot found")
	}

	if cfg.Decimals > 0 {
		snap = scaleSnapshot(snap, cfg.Decimals)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// scaleSnapshot rewrites currency amounts from smallest units into whole
// units. Share counts are left as they are.
func scaleSnapshot(snap model.Snapshot, decimals int32) model.Snapshot {
	scale := func(v *string) {
		if *v == "" {
			return
		}
		d, err := decimal.NewFromString(*v)
		if err != nil {
			return
		}
		*v = d.Shift(-decimals).String()
	}

	scale(&snap.Pool.TotalBalance)
	scale(&snap.Pool.ReservedBalance)
	for _, v := range []*string{
		&snap.Totals.Contributed, &snap.Totals.Withdrawn, &snap.Totals.Drawn, &snap.Totals.Fees,
		&snap.Totals.Returned, &snap.Totals.Dust, &snap.Totals.RewardsPaid, &snap.Totals.RewardsAccrued,
	} {
		scale(v)
	}

	positions := make([]model.PositionRecord, len(snap.Positions))
	copy(positions, snap.Positions)
	for i := range positions {
		scale(&positions[i].PendingReward)
	}
	snap.Positions = positions

	claims := make([]model.ClaimRecord, len(snap.Claims))
	copy(claims, snap.Claims)
	for i := range claims {
		scale(&claims[i].Amount)
		scale(&claims[i].Fee)
	}
	snap.Claims = claims

	reservations := make([]model.ReservationRecord, len(snap.Reservations))
	copy(reservations, snap.Reservations)
	for i := range reservations {
		scale(&reservations[i].Amount)
	}
	snap.Reservations = reservations

	accounts := make([]model.AccountRecord, len(snap.Accounts))
	copy(accounts, snap.Accounts)
	for i := range accounts {
		scale(&accounts[i].Balance)
	}
	snap.Accounts = accounts
	return snap
}
