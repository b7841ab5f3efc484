// Package sweeper removes delivered messages once their TTL has elapsed.
//
// Each tick partitions the pending-deletion record into due and not-yet-due,
// issues one delete attempt per due record and then drops the due records
// from storage. A failed delete still drops its record: deletion is
// at-most-once, never retried.
package sweeper

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"adzbot/internal/metrics"
	"adzbot/internal/store"
	"adzbot/internal/transport"
	"adzbot/pkg/logx"
)

type Config struct {
	Enabled      bool
	PollInterval time.Duration
}

type Service struct {
	cfg Config
	st  store.Store
	tr  transport.Transport
	met *metrics.Metrics
	log logx.Logger

	runMu sync.Mutex
	c     *cron.Cron
}

func New(cfg Config, st store.Store, tr transport.Transport, met *metrics.Metrics, log logx.Logger) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if met == nil {
		met = metrics.Nop()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, st: st, tr: tr, met: met, log: log}
}

// Start launches the polling loop. It returns immediately.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("sweeper disabled")
		return nil
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.c != nil {
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.PollInterval)
	if _, err := c.AddFunc(spec, func() { s.tick(ctx, time.Now()) }); err != nil {
		return fmt.Errorf("sweeper: register tick: %w", err)
	}
	c.Start()
	s.c = c
	s.log.Info("sweeper started", logx.Duration("poll_interval", s.cfg.PollInterval))
	return nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Service) Stop() {
	s.runMu.Lock()
	c := s.c
	s.c = nil
	s.runMu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		s.log.Info("sweeper stopped")
	}
}

// tick performs one sweep. Any panic is contained so the loop survives.
func (s *Service) tick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in sweep",
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()

	pending, err := s.st.PendingDeletions(ctx)
	if err != nil {
		s.log.Warn("sweep: load pending failed", logx.Err(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	due := make([]store.PendingDeletion, 0, len(pending))
	for _, p := range pending {
		if p.Due(now) {
			due = append(due, p)
		}
	}
	if len(due) == 0 {
		return
	}

	// One attempt per record. Transport failures are logged and the record is
	// dropped regardless; a single bad record never halts the rest.
	keys := make([]store.DeletionKey, 0, len(due))
	for _, p := range due {
		keys = append(keys, p.Key())
		err := s.tr.DeleteMessage(ctx, transport.MessageRef{ChatID: p.ChatID, MessageID: p.MessageID})
		if err != nil {
			s.met.DeleteFailures.Inc()
			s.log.Warn("delete failed; dropping record anyway",
				logx.Int64("chat_id", p.ChatID),
				logx.Int("message_id", p.MessageID),
				logx.Err(err))
			continue
		}
		s.met.Deletes.Inc()
		s.log.Debug("message deleted",
			logx.Int64("chat_id", p.ChatID),
			logx.Int("message_id", p.MessageID))
	}

	// Remove by identity rather than rewriting the whole list, so records
	// appended by a concurrent delivery are preserved.
	if err := s.st.RemovePending(ctx, keys); err != nil {
		s.log.Warn("sweep: persist failed", logx.Err(err))
		return
	}

	s.log.Info("sweep finished",
		logx.Int("due", len(due)),
		logx.Int("remaining", len(pending)-len(due)))
}
