//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"adzbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Record names inside the records table. Same four independent records as the
// file driver, just rows instead of files.
const (
	recEntities = "entities"
	recPending  = "pending_deletions"
	recStats    = "stats"
	recFirstRun = "first_run"
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	// One mutex per record keeps the read-modify-write cycles of different
	// records independent, mirroring the file driver's locking.
	locks map[string]*sync.Mutex
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for the sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &sqliteStore{
		db:  db,
		log: log,
		locks: map[string]*sync.Mutex{
			recEntities: {},
			recPending:  {},
			recStats:    {},
			recFirstRun: {},
		},
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// readRecord decodes the named record into out. Missing rows and corrupt
// bodies read as the zero default.
func (s *sqliteStore) readRecord(ctx context.Context, name string, out any) {
	var body []byte
	err := s.db.QueryRowContext(ctx, "SELECT body FROM records WHERE name = ?", name).Scan(&body)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("record unreadable; using defaults", logx.String("record", name), logx.Err(err))
		}
		return
	}
	if err := json.Unmarshal(body, out); err != nil {
		s.log.Warn("record corrupt; using defaults", logx.String("record", name), logx.Err(err))
	}
}

func (s *sqliteStore) writeRecord(ctx context.Context, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO records(name, body, updated_at) VALUES(?, ?, ?) ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at",
		name, b, time.Now().UnixMilli())
	return err
}

func (s *sqliteStore) Entities(ctx context.Context) (Entities, error) {
	mu := s.locks[recEntities]
	mu.Lock()
	defer mu.Unlock()
	var e Entities
	s.readRecord(ctx, recEntities, &e)
	return e, nil
}

func (s *sqliteStore) MutateEntities(ctx context.Context, fn func(*Entities) error) error {
	mu := s.locks[recEntities]
	mu.Lock()
	defer mu.Unlock()
	var e Entities
	s.readRecord(ctx, recEntities, &e)
	if err := fn(&e); err != nil {
		return err
	}
	return s.writeRecord(ctx, recEntities, &e)
}

func (s *sqliteStore) PendingDeletions(ctx context.Context) ([]PendingDeletion, error) {
	mu := s.locks[recPending]
	mu.Lock()
	defer mu.Unlock()
	var list []PendingDeletion
	s.readRecord(ctx, recPending, &list)
	return list, nil
}

func (s *sqliteStore) AppendPending(ctx context.Context, p PendingDeletion) error {
	mu := s.locks[recPending]
	mu.Lock()
	defer mu.Unlock()
	var list []PendingDeletion
	s.readRecord(ctx, recPending, &list)
	list = append(list, p)
	return s.writeRecord(ctx, recPending, list)
}

func (s *sqliteStore) RemovePending(ctx context.Context, keys []DeletionKey) error {
	if len(keys) == 0 {
		return nil
	}
	drop := make(map[DeletionKey]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}

	mu := s.locks[recPending]
	mu.Lock()
	defer mu.Unlock()
	var list []PendingDeletion
	s.readRecord(ctx, recPending, &list)
	kept := list[:0]
	for _, p := range list {
		if _, ok := drop[p.Key()]; !ok {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	return s.writeRecord(ctx, recPending, kept)
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	mu := s.locks[recStats]
	mu.Lock()
	defer mu.Unlock()
	var st Stats
	s.readRecord(ctx, recStats, &st)
	return st, nil
}

func (s *sqliteStore) AddStats(ctx context.Context, delta Stats) error {
	mu := s.locks[recStats]
	mu.Lock()
	defer mu.Unlock()
	var st Stats
	s.readRecord(ctx, recStats, &st)
	st.add(delta)
	return s.writeRecord(ctx, recStats, &st)
}

func (s *sqliteStore) FirstRun(ctx context.Context) (bool, error) {
	mu := s.locks[recFirstRun]
	mu.Lock()
	defer mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO records(name, body, updated_at) VALUES(?, ?, ?)",
		recFirstRun, []byte("{}"), time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
