package autopost

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"adzbot/internal/dispatch"
	"adzbot/internal/store"
	"adzbot/internal/transport"
	"adzbot/pkg/logx"
)

type fakeTransport struct {
	mu     sync.Mutex
	nextID int
	sends  []string
}

func (f *fakeTransport) SendMessage(_ context.Context, to transport.Recipient, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sends = append(f.sends, string(to))
	return transport.MessageRef{ChatID: int64(f.nextID), MessageID: f.nextID}, nil
}

func (f *fakeTransport) DeleteMessage(context.Context, transport.MessageRef) error { return nil }

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type fixture struct {
	svc *Service
	st  store.Store
	tr  *fakeTransport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "adzbot")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	tr := &fakeTransport{}
	eng := dispatch.New(dispatch.Config{SendSpacing: time.Millisecond}, st, tr, nil, logx.Nop())
	svc := New(Config{Enabled: true}, st, eng, time.UTC, logx.Nop())
	return &fixture{svc: svc, st: st, tr: tr}
}

func (fx *fixture) seed(t *testing.T, timeOfDay string, ttl int) (scheduleID, creativeID int) {
	t.Helper()
	err := fx.st.MutateEntities(context.Background(), func(e *store.Entities) error {
		c := e.AddCreative("promo body")
		creativeID = c.ID
		scheduleID = e.AddSchedule(c.ID, timeOfDay, ttl).ID
		e.AddChannel("@main")
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return scheduleID, creativeID
}

func (fx *fixture) schedule(t *testing.T, id int) store.Schedule {
	t.Helper()
	e, err := fx.st.Entities(context.Background())
	if err != nil {
		t.Fatalf("entities: %v", err)
	}
	s, ok := e.ScheduleByID(id)
	if !ok {
		t.Fatalf("schedule %d missing", id)
	}
	return s
}

var at2200 = time.Date(2026, 8, 29, 22, 0, 30, 0, time.UTC)

func TestTickFiresOnceAndStamps(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	schedID, _ := fx.seed(t, "22:00", 3600)

	fx.svc.tick(context.Background(), at2200)

	if got := fx.tr.count(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
	if s := fx.schedule(t, schedID); s.LastFiredDate != "2026-08-29" {
		t.Fatalf("last_fired_date = %q", s.LastFiredDate)
	}

	// Second tick in the same minute window must not fire again.
	fx.svc.tick(context.Background(), at2200.Add(20*time.Second))
	if got := fx.tr.count(); got != 1 {
		t.Fatalf("sends after second tick = %d, want 1", got)
	}

	// Later the same day, still nothing.
	fx.svc.tick(context.Background(), at2200.Add(10*time.Minute))
	if got := fx.tr.count(); got != 1 {
		t.Fatalf("sends after later tick = %d, want 1", got)
	}

	stats, _ := fx.st.Stats(context.Background())
	if stats.Autoposts != 1 || stats.Sent != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestTickZeroTTLCreatesNoPending(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	schedID, _ := fx.seed(t, "22:00", 0)

	fx.svc.tick(context.Background(), at2200)

	if s := fx.schedule(t, schedID); s.LastFiredDate != "2026-08-29" {
		t.Fatalf("last_fired_date = %q", s.LastFiredDate)
	}
	pend, _ := fx.st.PendingDeletions(context.Background())
	if len(pend) != 0 {
		t.Fatalf("pending = %v, want none", pend)
	}
}

func TestTickPositiveTTLRegistersPending(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.seed(t, "22:00", 120)

	fx.svc.tick(context.Background(), at2200)

	pend, _ := fx.st.PendingDeletions(context.Background())
	if len(pend) != 1 || pend[0].TTLSeconds != 120 {
		t.Fatalf("pending = %+v", pend)
	}
}

func TestTickOutsideMinuteDoesNotFire(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	schedID, _ := fx.seed(t, "22:00", 0)

	fx.svc.tick(context.Background(), at2200.Add(-time.Minute))
	fx.svc.tick(context.Background(), at2200.Add(time.Minute))

	if got := fx.tr.count(); got != 0 {
		t.Fatalf("sends = %d, want 0", got)
	}
	if s := fx.schedule(t, schedID); s.LastFiredDate != "" {
		t.Fatalf("last_fired_date = %q, want empty", s.LastFiredDate)
	}
}

func TestTickFiresAgainNextDay(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	schedID, _ := fx.seed(t, "22:00", 0)

	fx.svc.tick(context.Background(), at2200)
	fx.svc.tick(context.Background(), at2200.AddDate(0, 0, 1))

	if got := fx.tr.count(); got != 2 {
		t.Fatalf("sends = %d, want 2", got)
	}
	if s := fx.schedule(t, schedID); s.LastFiredDate != "2026-08-30" {
		t.Fatalf("last_fired_date = %q", s.LastFiredDate)
	}
}

func TestTickTwoSchedulesSameMinuteBothFire(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.seed(t, "22:00", 60)
	err := fx.st.MutateEntities(context.Background(), func(e *store.Entities) error {
		c := e.AddCreative("second promo")
		e.AddSchedule(c.ID, "22:00", 60)
		return nil
	})
	if err != nil {
		t.Fatalf("seed second: %v", err)
	}

	fx.svc.tick(context.Background(), at2200)

	if got := fx.tr.count(); got != 2 {
		t.Fatalf("sends = %d, want 2", got)
	}
	pend, _ := fx.st.PendingDeletions(context.Background())
	if len(pend) != 2 {
		t.Fatalf("pending = %d, want 2", len(pend))
	}
}

func TestTickSkipsScheduleWithRemovedCreative(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	schedID, creativeID := fx.seed(t, "22:00", 0)

	err := fx.st.MutateEntities(context.Background(), func(e *store.Entities) error {
		e.RemoveCreative(creativeID)
		return nil
	})
	if err != nil {
		t.Fatalf("remove creative: %v", err)
	}

	fx.svc.tick(context.Background(), at2200)

	if got := fx.tr.count(); got != 0 {
		t.Fatalf("sends = %d, want 0", got)
	}
	// The schedule survives, unstamped, until removed explicitly.
	if s := fx.schedule(t, schedID); s.LastFiredDate != "" {
		t.Fatalf("last_fired_date = %q, want empty", s.LastFiredDate)
	}
}

// panicDispatcher panics for one creative id and delegates otherwise.
type panicDispatcher struct {
	panicFor int
	next     Dispatcher
}

func (p *panicDispatcher) Deliver(ctx context.Context, req dispatch.Request) (dispatch.Report, error) {
	if req.CreativeID == p.panicFor {
		panic("boom")
	}
	return p.next.Deliver(ctx, req)
}

func TestTickIsolatesPanicPerSchedule(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	_, badCreative := fx.seed(t, "22:00", 0)
	err := fx.st.MutateEntities(context.Background(), func(e *store.Entities) error {
		c := e.AddCreative("good promo")
		e.AddSchedule(c.ID, "22:00", 0)
		return nil
	})
	if err != nil {
		t.Fatalf("seed second: %v", err)
	}

	fx.svc.disp = &panicDispatcher{panicFor: badCreative, next: fx.svc.disp}

	fx.svc.tick(context.Background(), at2200)

	// The panicking schedule is contained; the healthy one still fires.
	if got := fx.tr.count(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
}
