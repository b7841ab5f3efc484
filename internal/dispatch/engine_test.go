package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"adzbot/internal/store"
	"adzbot/internal/transport"
	"adzbot/pkg/logx"
)

type sendCall struct {
	To        string
	Text      string
	HasMarkup bool
}

// fakeTransport records sends and can be told to fail for specific channels.
type fakeTransport struct {
	mu     sync.Mutex
	fail   map[string]error
	nextID int
	calls  []sendCall
}

func (f *fakeTransport) SendMessage(_ context.Context, to transport.Recipient, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[string(to)]; ok {
		return transport.MessageRef{}, err
	}
	f.nextID++
	f.calls = append(f.calls, sendCall{To: string(to), Text: text, HasMarkup: opt != nil && opt.ReplyMarkup != nil})
	return transport.MessageRef{ChatID: int64(1000 + f.nextID), MessageID: f.nextID}, nil
}

func (f *fakeTransport) DeleteMessage(context.Context, transport.MessageRef) error { return nil }

func (f *fakeTransport) sent() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

func newTestEngine(t *testing.T, tr transport.Transport) (*Engine, store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "adzbot")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	eng := New(Config{SendSpacing: time.Millisecond, PromoSuffix: "via adzbot"}, st, tr, nil, logx.Nop())
	return eng, st
}

func seedCreative(t *testing.T, st store.Store, body string, channels ...string) int {
	t.Helper()
	var id int
	err := st.MutateEntities(context.Background(), func(e *store.Entities) error {
		id = e.AddCreative(body).ID
		for _, ch := range channels {
			e.AddChannel(ch)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return id
}

func TestDeliverAllChannelsWithTTL(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	eng, st := newTestEngine(t, tr)
	id := seedCreative(t, st, "sale!", "@one", "@two")

	rep, err := eng.Deliver(context.Background(), Request{CreativeID: id, TTLSeconds: 3600})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if rep.Sent != 2 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}

	pend, _ := st.PendingDeletions(context.Background())
	if len(pend) != 2 {
		t.Fatalf("pending = %d, want 2", len(pend))
	}
	for _, p := range pend {
		if p.TTLSeconds != 3600 {
			t.Fatalf("ttl = %d", p.TTLSeconds)
		}
		if p.SentAt.IsZero() {
			t.Fatal("sent_at not stamped")
		}
	}

	stats, _ := st.Stats(context.Background())
	want := store.Stats{Broadcasts: 1, Sent: 2}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	for _, c := range tr.sent() {
		if c.Text != "sale!\n\nvia adzbot" {
			t.Fatalf("rendered text = %q", c.Text)
		}
	}
}

func TestDeliverZeroTTLCreatesNoPending(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	eng, st := newTestEngine(t, tr)
	id := seedCreative(t, st, "hi", "@one")

	if _, err := eng.Deliver(context.Background(), Request{CreativeID: id}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	pend, _ := st.PendingDeletions(context.Background())
	if len(pend) != 0 {
		t.Fatalf("pending = %v, want none", pend)
	}
}

func TestDeliverIsolatesChannelFailures(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{fail: map[string]error{"@bad": errors.New("403: bot was kicked")}}
	eng, st := newTestEngine(t, tr)
	id := seedCreative(t, st, "hi", "@ok1", "@bad", "@ok2")

	rep, err := eng.Deliver(context.Background(), Request{CreativeID: id})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if rep.Sent != 2 || rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}

	calls := tr.sent()
	if len(calls) != 2 || calls[0].To != "@ok1" || calls[1].To != "@ok2" {
		t.Fatalf("calls = %+v", calls)
	}

	stats, _ := st.Stats(context.Background())
	if stats.Sent != 2 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestDeliverNoChannelsIsNoOp(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	eng, st := newTestEngine(t, tr)
	id := seedCreative(t, st, "hi") // no channels

	rep, err := eng.Deliver(context.Background(), Request{CreativeID: id})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if rep != (Report{}) {
		t.Fatalf("report = %+v", rep)
	}
	stats, _ := st.Stats(context.Background())
	if stats != (store.Stats{}) {
		t.Fatalf("stats = %+v, want zero", stats)
	}
}

func TestDeliverUnknownCreative(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	eng, _ := newTestEngine(t, tr)

	_, err := eng.Deliver(context.Background(), Request{CreativeID: 404})
	if !errors.Is(err, ErrUnknownCreative) {
		t.Fatalf("err = %v, want ErrUnknownCreative", err)
	}
	if len(tr.sent()) != 0 {
		t.Fatal("nothing should have been sent")
	}
}

func TestDeliverExplicitSubset(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	eng, st := newTestEngine(t, tr)
	id := seedCreative(t, st, "hi", "@a", "@b", "@c")

	rep, err := eng.Deliver(context.Background(), Request{CreativeID: id, Channels: []string{"@b"}})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if rep.Sent != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if calls := tr.sent(); len(calls) != 1 || calls[0].To != "@b" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestDeliverAutopostCountsSeparately(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	eng, st := newTestEngine(t, tr)
	id := seedCreative(t, st, "hi", "@a")

	if _, err := eng.Deliver(context.Background(), Request{CreativeID: id, Kind: KindAutopost}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	stats, _ := st.Stats(context.Background())
	if stats.Autoposts != 1 || stats.Broadcasts != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestDeliverAttachesKeyboard(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	eng, st := newTestEngine(t, tr)

	var id int
	err := st.MutateEntities(context.Background(), func(e *store.Entities) error {
		bs := e.AddButtonSet([][]store.Button{{{Label: "Go", URL: "https://x"}}})
		c := e.AddCreative("hi")
		c.ButtonSetID = bs.ID
		e.UpdateCreative(c)
		id = c.ID
		e.AddChannel("@a")
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := eng.Deliver(context.Background(), Request{CreativeID: id}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if calls := tr.sent(); !calls[0].HasMarkup {
		t.Fatal("expected keyboard markup on send")
	}
}

func TestDeliverDanglingButtonSetSendsWithoutKeyboard(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	eng, st := newTestEngine(t, tr)

	var id int
	err := st.MutateEntities(context.Background(), func(e *store.Entities) error {
		c := e.AddCreative("hi")
		c.ButtonSetID = 777 // never existed
		e.UpdateCreative(c)
		id = c.ID
		e.AddChannel("@a")
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rep, err := eng.Deliver(context.Background(), Request{CreativeID: id})
	if err != nil || rep.Sent != 1 {
		t.Fatalf("rep = %+v, err = %v", rep, err)
	}
	if calls := tr.sent(); calls[0].HasMarkup {
		t.Fatal("dangling button set must not produce markup")
	}
}
