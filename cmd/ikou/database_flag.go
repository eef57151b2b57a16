package main

import (
	"time"

	"github.com/root-talis/ikou/config"
)

// DatabaseFlag overrides the configuration file. Unset flags keep the
// file's values.
type DatabaseFlag struct {
	Driver      string        `long:"driver" env:"IKOU_DRIVER" choice:"mysql" choice:"postgres" choice:"sqlite" description:"Database driver"`
	DSN         string        `long:"dsn" env:"IKOU_DSN" description:"Data source name passed to the driver"`
	Table       string        `long:"table" env:"IKOU_TABLE" description:"Name of the table which holds migration information"`
	Dir         string        `long:"dir" env:"IKOU_DIR" description:"Directory with .up.sql and .down.sql files"`
	LockTimeout time.Duration `long:"lock-timeout" env:"IKOU_LOCK_TIMEOUT" description:"How long to wait for another run to release the lock"`
	UnitTimeout time.Duration `long:"unit-timeout" env:"IKOU_UNIT_TIMEOUT" description:"Time after which a single migration is cancelled and rolled back"`
}

func (f DatabaseFlag) apply(cfg *config.Config) {
	if f.Driver != "" {
		cfg.Driver = f.Driver
	}
	if f.DSN != "" {
		cfg.DSN = f.DSN
	}
	if f.Table != "" {
		cfg.Table = f.Table
	}
	if f.Dir != "" {
		cfg.Dir = f.Dir
	}
	if f.LockTimeout != 0 {
		cfg.LockTimeout = f.LockTimeout
	}
	if f.UnitTimeout != 0 {
		cfg.UnitTimeout = f.UnitTimeout
	}
}
