package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full bot configuration.
//
// The file may be JSON or YAML (YAML is coerced to JSON before decoding so both
// formats go through the same strict decoder). All durations are Go duration
// strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`

	// Timezone is the IANA zone used for schedule time-of-day matching and
	// status display, e.g. "Asia/Kolkata". Defaults to "Local".
	Timezone string `json:"timezone,omitempty"`

	Branding BrandingConfig `json:"branding"`
	Storage  StorageConfig  `json:"storage"`
	Dispatch DispatchConfig `json:"dispatch"`
	Autopost LoopConfig     `json:"autopost"`
	Sweeper  LoopConfig     `json:"sweeper"`
	Limits   LimitsConfig   `json:"limits"`
	Logging  LoggingConfig  `json:"logging"`
	Debug    DebugConfig    `json:"debug,omitempty"`
}

type TelegramConfig struct {
	Token   string `json:"token"`
	OwnerID int64  `json:"owner_id"`
	// PollTimeout is the long-poll timeout, a Go duration string.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type BrandingConfig struct {
	// PromoSuffix is appended to every delivered creative body.
	PromoSuffix string `json:"promo_suffix,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Driver values:
//   - "file": JSON record files under the path prefix (default)
//   - "sqlite": single SQLite database file (requires the sqlite build tag)
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type DispatchConfig struct {
	// SendSpacing is the minimum gap between two channel sends in one delivery.
	SendSpacing string `json:"send_spacing,omitempty"`
}

// LoopConfig controls one background polling loop.
type LoopConfig struct {
	Enabled      bool   `json:"enabled"`
	PollInterval string `json:"poll_interval,omitempty"`
}

type LimitsConfig struct {
	MaxButtonsPerRow int `json:"max_buttons_per_row,omitempty"`
	MaxButtonRows    int `json:"max_button_rows,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// DebugConfig controls the optional debug HTTP server (pprof + metrics).
//
// Prefer binding to localhost. A non-loopback bind without a token is rejected
// unless allow_insecure is set.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Defaults used when fields are omitted.
const (
	DefaultPollTimeout      = 10 * time.Second
	DefaultSendSpacing      = 500 * time.Millisecond
	DefaultAutopostInterval = 30 * time.Second
	DefaultSweepInterval    = 10 * time.Second
	DefaultStoragePath      = "./data/adzbot"

	DefaultMaxButtonsPerRow = 5
	DefaultMaxButtonRows    = 10
)

// applyEnv layers environment overrides on top of the file values. BOT_TOKEN
// and OWNER_ID match the names the deployment's .env historically used.
func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("BOT_TOKEN")); v != "" {
		c.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("OWNER_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("OWNER_ID: invalid value %q: %w", v, err)
		}
		c.Telegram.OwnerID = id
	}
	return nil
}

// Validate checks the fields that would otherwise fail deep inside a service.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required (file or BOT_TOKEN)")
	}
	if c.Telegram.OwnerID == 0 {
		return errors.New("telegram.owner_id is required (file or OWNER_ID)")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"dispatch.send_spacing", c.Dispatch.SendSpacing},
		{"autopost.poll_interval", c.Autopost.PollInterval},
		{"sweeper.poll_interval", c.Sweeper.PollInterval},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Limits.MaxButtonsPerRow < 0 || c.Limits.MaxButtonRows < 0 {
		return errors.New("limits: values must be >= 0")
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: unknown zone %q: %w", tz, err)
	}
	return loc, nil
}

func (c *Config) MaxButtonsPerRow() int {
	if c.Limits.MaxButtonsPerRow > 0 {
		return c.Limits.MaxButtonsPerRow
	}
	return DefaultMaxButtonsPerRow
}

func (c *Config) MaxButtonRows() int {
	if c.Limits.MaxButtonRows > 0 {
		return c.Limits.MaxButtonRows
	}
	return DefaultMaxButtonRows
}
