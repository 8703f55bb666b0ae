package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"mpesapool/internal/model"
	"mpesapool/internal/storage/postgres"
)

// SnapshotStore persists the pool state after the last fully applied block.
type SnapshotStore interface {
	Load(ctx context.Context) (model.Snapshot, bool, error)
	Save(ctx context.Context, snap model.Snapshot) error
}

// FileSnapshotStore stores the snapshot in a local JSON file.
type FileSnapshotStore struct {
	Path string
}

func (s *FileSnapshotStore) Load(ctx context.Context) (model.Snapshot, bool, error) {
	if s == nil || s.Path == "" {
		return model.Snapshot{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *FileSnapshotStore) Save(ctx context.Context, snap model.Snapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// DBSnapshotStore stores the snapshot in the pool tables under Name.
type DBSnapshotStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBSnapshotStore) Load(ctx context.Context) (model.Snapshot, bool, error) {
	if s == nil || s.Store == nil {
		return model.Snapshot{}, false, nil
	}
	return s.Store.LoadSnapshot(ctx, s.Name)
}

func (s *DBSnapshotStore) Save(ctx context.Context, snap model.Snapshot) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveSnapshot(ctx, s.Name, snap)
}

// Journal receives committed ledger events.
type Journal interface {
	Append(ctx context.Context, events []model.EventRecord) error
}

// DBJournal appends events to the ledger_events table under Name.
type DBJournal struct {
	Store *postgres.Store
	Name  string
}

func (j *DBJournal) Append(ctx context.Context, events []model.EventRecord) error {
	if j == nil || j.Store == nil || len(events) == 0 {
		return nil
	}
	return j.Store.AppendEvents(ctx, j.Name, events)
}

// LoadGenesis reads initial substrate balances from a JSON file. An empty
// path yields an empty genesis.
func LoadGenesis(path string) (model.Genesis, error) {
	if path == "" {
		return model.Genesis{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Genesis{}, fmt.Errorf("read genesis: %w", err)
	}
	var genesis model.Genesis
	if err := json.Unmarshal(data, &genesis); err != nil {
		return model.Genesis{}, fmt.Errorf("parse genesis: %w", err)
	}
	return genesis, nil
}
