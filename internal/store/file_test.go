package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"adzbot/pkg/logx"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "adzbot")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestEntitiesRoundTrip(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	var want Entities
	err := st.MutateEntities(ctx, func(e *Entities) error {
		c := e.AddCreative("Big summer sale")
		b := e.AddButtonSet([][]Button{
			{{Label: "Shop", URL: "https://example.com"}, {Label: "Info", URL: "https://example.com/info"}},
			{{Label: "Join", URL: "https://t.me/example"}},
		})
		c.ButtonSetID = b.ID
		e.UpdateCreative(c)
		e.AddChannel("@promo")
		e.AddChannel("-1001234")
		e.AddSchedule(c.ID, "22:00", 3600)
		want = *e
		return nil
	})
	if err != nil {
		t.Fatalf("MutateEntities: %v", err)
	}

	got, err := st.Entities(ctx)
	if err != nil {
		t.Fatalf("Entities: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
	if got.Creatives[0].ID != 1 || got.NextCreativeID != 2 {
		t.Fatalf("creative id assignment: %+v", got)
	}
}

func TestMissingFilesReadAsDefaults(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	e, err := st.Entities(ctx)
	if err != nil {
		t.Fatalf("Entities: %v", err)
	}
	if len(e.Creatives) != 0 || len(e.Channels) != 0 {
		t.Fatalf("expected empty entities, got %+v", e)
	}

	pend, err := st.PendingDeletions(ctx)
	if err != nil {
		t.Fatalf("PendingDeletions: %v", err)
	}
	if len(pend) != 0 {
		t.Fatalf("expected no pending, got %v", pend)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestCorruptFileReadsAsDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	prefix := filepath.Join(dir, "adzbot")
	if err := os.WriteFile(prefix+".entities.json", []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	st, err := Open(Config{Driver: "file", Path: prefix}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	e, err := st.Entities(context.Background())
	if err != nil {
		t.Fatalf("Entities should not fail on corruption: %v", err)
	}
	if len(e.Creatives) != 0 {
		t.Fatalf("expected defaults, got %+v", e)
	}

	// A mutation over the corrupt record starts from defaults and succeeds.
	err = st.MutateEntities(context.Background(), func(e *Entities) error {
		e.AddChannel("@x")
		return nil
	})
	if err != nil {
		t.Fatalf("MutateEntities: %v", err)
	}
}

func TestPendingAppendRemove(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	a := PendingDeletion{ChatID: 1, MessageID: 10, SentAt: now, TTLSeconds: 60}
	b := PendingDeletion{ChatID: 2, MessageID: 20, SentAt: now, TTLSeconds: 120}
	for _, p := range []PendingDeletion{a, b} {
		if err := st.AppendPending(ctx, p); err != nil {
			t.Fatalf("AppendPending: %v", err)
		}
	}

	if err := st.RemovePending(ctx, []DeletionKey{a.Key()}); err != nil {
		t.Fatalf("RemovePending: %v", err)
	}
	left, err := st.PendingDeletions(ctx)
	if err != nil {
		t.Fatalf("PendingDeletions: %v", err)
	}
	if len(left) != 1 || left[0].Key() != b.Key() {
		t.Fatalf("expected only b left, got %+v", left)
	}

	// Removing an already-removed key is a no-op.
	if err := st.RemovePending(ctx, []DeletionKey{a.Key()}); err != nil {
		t.Fatalf("repeat RemovePending: %v", err)
	}
}

func TestAddStatsAccumulates(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.AddStats(ctx, Stats{Broadcasts: 1, Sent: 2}); err != nil {
		t.Fatalf("AddStats: %v", err)
	}
	if err := st.AddStats(ctx, Stats{Autoposts: 1, Sent: 3, Failed: 1}); err != nil {
		t.Fatalf("AddStats: %v", err)
	}

	got, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{Broadcasts: 1, Autoposts: 1, Sent: 5, Failed: 1}
	if got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
}

func TestFirstRunOnce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	prefix := filepath.Join(dir, "adzbot")

	st, err := Open(Config{Path: prefix}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first, err := st.FirstRun(context.Background())
	if err != nil || !first {
		t.Fatalf("first call = (%v, %v), want (true, nil)", first, err)
	}
	again, err := st.FirstRun(context.Background())
	if err != nil || again {
		t.Fatalf("second call = (%v, %v), want (false, nil)", again, err)
	}
	_ = st.Close()

	// The marker survives a reopen.
	st2, err := Open(Config{Path: prefix}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	after, err := st2.FirstRun(context.Background())
	if err != nil || after {
		t.Fatalf("after reopen = (%v, %v), want (false, nil)", after, err)
	}
}

func TestRemoveCreativeLeavesScheduleInert(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	var schedID, creativeID int
	err := st.MutateEntities(ctx, func(e *Entities) error {
		c := e.AddCreative("doomed")
		creativeID = c.ID
		schedID = e.AddSchedule(c.ID, "09:00", 0).ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = st.MutateEntities(ctx, func(e *Entities) error {
		if !e.RemoveCreative(creativeID) {
			t.Fatal("RemoveCreative returned false")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	e, _ := st.Entities(ctx)
	sched, ok := e.ScheduleByID(schedID)
	if !ok {
		t.Fatal("schedule should survive creative removal")
	}
	if _, ok := e.CreativeByID(sched.CreativeID); ok {
		t.Fatal("creative should be gone")
	}
}

func TestRemoveButtonSetDetachesCreatives(t *testing.T) {
	t.Parallel()
	var e Entities
	c := e.AddCreative("promo")
	b := e.AddButtonSet([][]Button{{{Label: "x", URL: "https://x"}}})
	c.ButtonSetID = b.ID
	e.UpdateCreative(c)

	if !e.RemoveButtonSet(b.ID) {
		t.Fatal("RemoveButtonSet returned false")
	}
	got, _ := e.CreativeByID(c.ID)
	if got.ButtonSetID != 0 {
		t.Fatalf("creative still references removed set: %+v", got)
	}
}

func TestChannelSetSemantics(t *testing.T) {
	t.Parallel()
	var e Entities
	if !e.AddChannel("@a") || !e.AddChannel("@b") {
		t.Fatal("adds should succeed")
	}
	if e.AddChannel("@a") {
		t.Fatal("duplicate add should be rejected")
	}
	if got := len(e.Channels); got != 2 {
		t.Fatalf("len = %d", got)
	}
	if e.Channels[0] != "@a" || e.Channels[1] != "@b" {
		t.Fatalf("insertion order not preserved: %v", e.Channels)
	}
	if !e.RemoveChannel("@a") || e.RemoveChannel("@a") {
		t.Fatal("remove semantics wrong")
	}
}
