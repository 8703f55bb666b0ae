package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"mpesapool/internal/model"
)

// Store persists pool snapshots and the event journal.
type Store struct {
	pool *Pool
}

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// SaveSnapshot replaces the stored snapshot for name in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, name string, snap model.Snapshot) error {
	if name == "" {
		return fmt.Errorf("snapshot name required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO pool_snapshots (
			name, height, state_root, total_balance, total_shares, reserved_balance,
			contributed, withdrawn, drawn, fees, returned, dust, rewards_paid, rewards_accrued,
			next_claim_id, next_reservation_id, event_seq, updated_at
		) VALUES (
			$1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric,
			$7::text::numeric, $8::text::numeric, $9::text::numeric, $10::text::numeric,
			$11::text::numeric, $12::text::numeric, $13::text::numeric, $14::text::numeric,
			$15, $16, $17, now()
		)
		ON CONFLICT (name) DO UPDATE SET
			height = EXCLUDED.height,
			state_root = EXCLUDED.state_root,
			total_balance = EXCLUDED.total_balance,
			total_shares = EXCLUDED.total_shares,
			reserved_balance = EXCLUDED.reserved_balance,
			contributed = EXCLUDED.contributed,
			withdrawn = EXCLUDED.withdrawn,
			drawn = EXCLUDED.drawn,
			fees = EXCLUDED.fees,
			returned = EXCLUDED.returned,
			dust = EXCLUDED.dust,
			rewards_paid = EXCLUDED.rewards_paid,
			rewards_accrued = EXCLUDED.rewards_accrued,
			next_claim_id = EXCLUDED.next_claim_id,
			next_reservation_id = EXCLUDED.next_reservation_id,
			event_seq = EXCLUDED.event_seq,
			updated_at = now()
	`,
		name,
		int64(snap.Height),
		snap.StateRoot,
		orZero(snap.Pool.TotalBalance),
		orZero(snap.Pool.TotalShares),
		orZero(snap.Pool.ReservedBalance),
		orZero(snap.Totals.Contributed),
		orZero(snap.Totals.Withdrawn),
		orZero(snap.Totals.Drawn),
		orZero(snap.Totals.Fees),
		orZero(snap.Totals.Returned),
		orZero(snap.Totals.Dust),
		orZero(snap.Totals.RewardsPaid),
		orZero(snap.Totals.RewardsAccrued),
		int64(snap.Counters.NextClaimID),
		int64(snap.Counters.NextReservationID),
		int64(snap.Counters.EventSeq),
	)
	if err != nil {
		return fmt.Errorf("upsert pool snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for _, table := range []string{"provider_positions", "claims", "proof_anchors", "reservations", "substrate_accounts"} {
		batch.Queue(`DELETE FROM `+table+` WHERE name = $1`, name)
	}
	for _, p := range snap.Positions {
		batch.Queue(`
			INSERT INTO provider_positions (name, provider, shares, pending_reward, last_contribution_height, has_contributed)
			VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5, $6)
		`, name, p.Provider, orZero(p.Shares), orZero(p.PendingReward), int64(p.LastContributionHeight), p.HasContributed)
	}
	for _, c := range snap.Claims {
		batch.Queue(`
			INSERT INTO claims (
				name, claim_id, agent, direction, amount, fee, state,
				created_at, expires_at, proven_at, closed_at, proof_cid, reservation_id
			) VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7, $8, $9, $10, $11, $12, $13)
		`,
			name, int64(c.ID), c.Agent, c.Direction, orZero(c.Amount), orZero(c.Fee), c.State,
			int64(c.CreatedAt), int64(c.ExpiresAt), int64(c.ProvenAt), int64(c.ClosedAt), c.ProofCID, int64(c.ReservationID),
		)
	}
	for _, a := range snap.Anchors {
		batch.Queue(`INSERT INTO proof_anchors (name, anchor_key, claim_id) VALUES ($1, $2, $3)`, name, a.Key, int64(a.ClaimID))
	}
	for _, r := range snap.Reservations {
		batch.Queue(`INSERT INTO reservations (name, reservation_id, amount) VALUES ($1, $2, $3::text::numeric)`, name, int64(r.ID), orZero(r.Amount))
	}
	for _, a := range snap.Accounts {
		batch.Queue(`INSERT INTO substrate_accounts (name, account, balance) VALUES ($1, $2, $3::text::numeric)`, name, a.Account, orZero(a.Balance))
	}
	if err := execBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("write snapshot rows: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadSnapshot returns the stored snapshot for name.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (model.Snapshot, bool, error) {
	if name == "" {
		return model.Snapshot{}, false, fmt.Errorf("snapshot name required")
	}

	var snap model.Snapshot
	var height, nextClaim, nextReservation, eventSeq int64
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT height, state_root,
			total_balance::text, total_shares::text, reserved_balance::text,
			contributed::text, withdrawn::text, drawn::text, fees::text, returned::text,
			dust::text, rewards_paid::text, rewards_accrued::text,
			next_claim_id, next_reservation_id, event_seq, updated_at
		FROM pool_snapshots WHERE name = $1
	`, name).Scan(
		&height, &snap.StateRoot,
		&snap.Pool.TotalBalance, &snap.Pool.TotalShares, &snap.Pool.ReservedBalance,
		&snap.Totals.Contributed, &snap.Totals.Withdrawn, &snap.Totals.Drawn, &snap.Totals.Fees, &snap.Totals.Returned,
		&snap.Totals.Dust, &snap.Totals.RewardsPaid, &snap.Totals.RewardsAccrued,
		&nextClaim, &nextReservation, &eventSeq, &updatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, fmt.Errorf("load pool snapshot: %w", err)
	}
	snap.Height = uint64(height)
	snap.Counters = model.CountersRecord{
		NextClaimID:       uint64(nextClaim),
		NextReservationID: uint64(nextReservation),
		EventSeq:          uint64(eventSeq),
	}
	snap.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)

	if snap.Positions, err = queryRows(ctx, s.pool, `
		SELECT provider, shares::text, pending_reward::text, last_contribution_height, has_contributed
		FROM provider_positions WHERE name = $1 ORDER BY provider
	`, name, func(rows pgx.Rows) (model.PositionRecord, error) {
		var p model.PositionRecord
		var last int64
		err := rows.Scan(&p.Provider, &p.Shares, &p.PendingReward, &last, &p.HasContributed)
		p.LastContributionHeight = uint64(last)
		return p, err
	}); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("load positions: %w", err)
	}

	if snap.Claims, err = queryRows(ctx, s.pool, `
		SELECT claim_id, agent, direction, amount::text, fee::text, state,
			created_at, expires_at, proven_at, closed_at, proof_cid, reservation_id
		FROM claims WHERE name = $1 ORDER BY claim_id
	`, name, func(rows pgx.Rows) (model.ClaimRecord, error) {
		var c model.ClaimRecord
		var id, created, expires, proven, closed, reservation int64
		err := rows.Scan(&id, &c.Agent, &c.Direction, &c.Amount, &c.Fee, &c.State,
			&created, &expires, &proven, &closed, &c.ProofCID, &reservation)
		c.ID = uint64(id)
		c.CreatedAt = uint64(created)
		c.ExpiresAt = uint64(expires)
		c.ProvenAt = uint64(proven)
		c.ClosedAt = uint64(closed)
		c.ReservationID = uint64(reservation)
		return c, err
	}); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("load claims: %w", err)
	}

	if snap.Anchors, err = queryRows(ctx, s.pool, `
		SELECT anchor_key, claim_id FROM proof_anchors WHERE name = $1 ORDER BY anchor_key
	`, name, func(rows pgx.Rows) (model.AnchorRecord, error) {
		var a model.AnchorRecord
		var id int64
		err := rows.Scan(&a.Key, &id)
		a.ClaimID = uint64(id)
		return a, err
	}); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("load anchors: %w", err)
	}

	if snap.Reservations, err = queryRows(ctx, s.pool, `
		SELECT reservation_id, amount::text FROM reservations WHERE name = $1 ORDER BY reservation_id
	`, name, func(rows pgx.Rows) (model.ReservationRecord, error) {
		var r model.ReservationRecord
		var id int64
		err := rows.Scan(&id, &r.Amount)
		r.ID = uint64(id)
		return r, err
	}); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("load reservations: %w", err)
	}

	if snap.Accounts, err = queryRows(ctx, s.pool, `
		SELECT account, balance::text FROM substrate_accounts WHERE name = $1 ORDER BY account
	`, name, func(rows pgx.Rows) (model.AccountRecord, error) {
		var a model.AccountRecord
		err := rows.Scan(&a.Account, &a.Balance)
		return a, err
	}); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("load accounts: %w", err)
	}

	return snap, true, nil
}

// AppendEvents journals ledger events. Events already present are skipped,
// so replaying a block is harmless.
func (s *Store) AppendEvents(ctx context.Context, name string, events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO ledger_events (
				id, name, seq, block_number, kind, account, counterparty, claim_id,
				direction, amount, shares, dust, cid
			) VALUES (
				$1::text::uuid, $2, $3, $4, $5, $6, $7, $8,
				$9, $10::text::numeric, $11::text::numeric, $12::text::numeric, $13
			)
			ON CONFLICT (id) DO NOTHING
		`,
			ev.ID, name, int64(ev.Seq), int64(ev.BlockNumber), ev.Kind, ev.Account, ev.Counterparty,
			int64(ev.ClaimID), ev.Direction, nullable(ev.Amount), nullable(ev.Shares), nullable(ev.Dust), ev.CID,
		)
	}
	if err := execBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	return tx.Commit(ctx)
}

// CountEvents returns the number of journaled events for name.
func (s *Store) CountEvents(ctx context.Context, name string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM ledger_events WHERE name = $1`, name).Scan(&n)
	return n, err
}

func queryRows[T any](ctx context.Context, pool *Pool, sql string, name string, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := pool.Query(ctx, sql, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
