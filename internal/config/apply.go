package config

import (
	"github.com/spf13/pflag"
)

// ApplyConfig holds configuration for the apply command.
type ApplyConfig struct {
	In            string
	Genesis       string
	Outcomes      string
	Events        string
	SnapshotFile  string
	PGDSN         string
	PoolName      string
	SnapshotEvery uint64
	MetricsAddr   string
	LogLevel      string
	Ledger        LedgerConfig
}

// LoadApply merges config file, environment variables, and flags into ApplyConfig.
func LoadApply(cfgFile string, flags *pflag.FlagSet) (ApplyConfig, error) {
	defaults := map[string]interface{}{
		"in":             "./data/submissions.jsonl",
		"outcomes":       "./data/outcomes.jsonl",
		"events":         "./data/events.jsonl",
		"snapshot-file":  "./data/snapshot.json",
		"pool-name":      "default",
		"snapshot-every": uint64(100),
		"log-level":      "info",
	}
	for key, value := range ledgerDefaults {
		defaults[key] = value
	}

	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return ApplyConfig{}, err
	}

	cfg := ApplyConfig{
		In:            v.GetString("in"),
		Genesis:       v.GetString("genesis"),
		Outcomes:      v.GetString("outcomes"),
		Events:        v.GetString("events"),
		SnapshotFile:  v.GetString("snapshot-file"),
		PGDSN:         v.GetString("pg-dsn"),
		PoolName:      v.GetString("pool-name"),
		SnapshotEvery: v.GetUint64("snapshot-every"),
		MetricsAddr:   v.GetString("metrics-addr"),
		LogLevel:      v.GetString("log-level"),
		Ledger:        loadLedger(v),
	}

	return cfg, nil
}
