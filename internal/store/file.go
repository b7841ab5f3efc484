package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"adzbot/pkg/logx"
)

// fileStore keeps each record in its own JSON file under a shared prefix:
//
//	<prefix>.entities.json
//	<prefix>.pending.json
//	<prefix>.stats.json
//	<prefix>.initialized        (empty marker file)
//
// Every record has its own mutex, so writers to different records never block
// each other, while two mutations of the same record are fully serialized.
// Writes go through a temp file plus rename, so a crash mid-write leaves the
// previous version intact.
type fileStore struct {
	log logx.Logger

	entitiesPath string
	pendingPath  string
	statsPath    string
	markerPath   string

	entMu    sync.Mutex
	pendMu   sync.Mutex
	statsMu  sync.Mutex
	markerMu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for the file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		entitiesPath: prefix + ".entities.json",
		pendingPath:  prefix + ".pending.json",
		statsPath:    prefix + ".stats.json",
		markerPath:   prefix + ".initialized",
	}, nil
}

func (s *fileStore) Close() error { return nil }

// readRecord loads path into out. A missing or undecodable file is treated as
// "no prior state": out keeps its zero value and no error is returned.
func (s *fileStore) readRecord(path string, out any) {
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("record unreadable; using defaults", logx.String("path", path), logx.Err(err))
		}
		return
	}
	if err := json.Unmarshal(b, out); err != nil {
		s.log.Warn("record corrupt; using defaults", logx.String("path", path), logx.Err(err))
	}
}

func (s *fileStore) writeRecord(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ---- entities ----

func (s *fileStore) Entities(ctx context.Context) (Entities, error) {
	_ = ctx
	s.entMu.Lock()
	defer s.entMu.Unlock()
	var e Entities
	s.readRecord(s.entitiesPath, &e)
	return e, nil
}

func (s *fileStore) MutateEntities(ctx context.Context, fn func(*Entities) error) error {
	_ = ctx
	s.entMu.Lock()
	defer s.entMu.Unlock()
	var e Entities
	s.readRecord(s.entitiesPath, &e)
	if err := fn(&e); err != nil {
		return err
	}
	return s.writeRecord(s.entitiesPath, &e)
}

// ---- pending deletions ----

func (s *fileStore) PendingDeletions(ctx context.Context) ([]PendingDeletion, error) {
	_ = ctx
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	var list []PendingDeletion
	s.readRecord(s.pendingPath, &list)
	return list, nil
}

func (s *fileStore) AppendPending(ctx context.Context, p PendingDeletion) error {
	_ = ctx
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	var list []PendingDeletion
	s.readRecord(s.pendingPath, &list)
	list = append(list, p)
	return s.writeRecord(s.pendingPath, list)
}

func (s *fileStore) RemovePending(ctx context.Context, keys []DeletionKey) error {
	_ = ctx
	if len(keys) == 0 {
		return nil
	}
	drop := make(map[DeletionKey]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}

	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	var list []PendingDeletion
	s.readRecord(s.pendingPath, &list)
	kept := list[:0]
	for _, p := range list {
		if _, ok := drop[p.Key()]; !ok {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	return s.writeRecord(s.pendingPath, kept)
}

// ---- stats ----

func (s *fileStore) Stats(ctx context.Context) (Stats, error) {
	_ = ctx
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	var st Stats
	s.readRecord(s.statsPath, &st)
	return st, nil
}

func (s *fileStore) AddStats(ctx context.Context, delta Stats) error {
	_ = ctx
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	var st Stats
	s.readRecord(s.statsPath, &st)
	st.add(delta)
	return s.writeRecord(s.statsPath, &st)
}

// ---- first-run marker ----

func (s *fileStore) FirstRun(ctx context.Context) (bool, error) {
	_ = ctx
	s.markerMu.Lock()
	defer s.markerMu.Unlock()
	if _, err := os.Stat(s.markerPath); err == nil {
		return false, nil
	}
	if err := os.WriteFile(s.markerPath, []byte("ok\n"), 0o600); err != nil {
		return false, err
	}
	return true, nil
}
