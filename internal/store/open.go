package store

import (
	"errors"
	"strings"
	"time"

	"adzbot/pkg/logx"
)

// Config configures the store.
//
// Driver values:
//   - "file" (or empty): JSON record files under the Path prefix
//   - "sqlite": SQLite database file (requires the "sqlite" build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured driver.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
