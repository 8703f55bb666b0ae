package config

import (
	"github.com/spf13/pflag"
)

// StateConfig holds configuration for the state command.
type StateConfig struct {
	SnapshotFile string
	PGDSN        string
	PoolName     string
	Decimals     int32
	LogLevel     string
}

// LoadState merges config file, environment variables, and flags into StateConfig.
func LoadState(cfgFile string, flags *pflag.FlagSet) (StateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"snapshot-file": "./data/snapshot.json",
		"pool-name":     "default",
		"decimals":      0,
		"log-level":     "info",
	})
	if err != nil {
		return StateConfig{}, err
	}

	return StateConfig{
		SnapshotFile: v.GetString("snapshot-file"),
		PGDSN:        v.GetString("pg-dsn"),
		PoolName:     v.GetString("pool-name"),
		Decimals:     v.GetInt32("decimals"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}
