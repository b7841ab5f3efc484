// Package autopost runs the daily schedule loop.
//
// The loop wakes on a fixed polling interval, re-reads the full schedule set
// and fires every schedule whose time-of-day matches the current local minute
// and which has not fired yet today. There is no catch-up: if the process was
// down across a schedule's minute, that day's firing is skipped.
package autopost

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"adzbot/internal/dispatch"
	"adzbot/internal/store"
	"adzbot/pkg/logx"
)

const dateLayout = "2006-01-02"

// Dispatcher is the slice of the dispatch engine the scheduler needs.
type Dispatcher interface {
	Deliver(ctx context.Context, req dispatch.Request) (dispatch.Report, error)
}

type Config struct {
	Enabled      bool
	PollInterval time.Duration
}

type Service struct {
	cfg  Config
	loc  *time.Location
	st   store.Store
	disp Dispatcher
	log  logx.Logger

	runMu sync.Mutex
	c     *cron.Cron
}

func New(cfg Config, st store.Store, disp Dispatcher, loc *time.Location, log logx.Logger) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, loc: loc, st: st, disp: disp, log: log}
}

// Start launches the polling loop. It returns immediately.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("autopost disabled")
		return nil
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.c != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(s.loc))
	spec := fmt.Sprintf("@every %s", s.cfg.PollInterval)
	if _, err := c.AddFunc(spec, func() { s.tick(ctx, time.Now()) }); err != nil {
		return fmt.Errorf("autopost: register tick: %w", err)
	}
	c.Start()
	s.c = c
	s.log.Info("autopost started", logx.Duration("poll_interval", s.cfg.PollInterval), logx.String("tz", s.loc.String()))
	return nil
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (s *Service) Stop() {
	s.runMu.Lock()
	c := s.c
	s.c = nil
	s.runMu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		s.log.Info("autopost stopped")
	}
}

// tick evaluates every schedule against now. Failures are isolated per
// schedule; the loop itself never dies on a bad tick.
func (s *Service) tick(ctx context.Context, now time.Time) {
	now = now.In(s.loc)
	today := now.Format(dateLayout)
	minute := now.Format("15:04")

	ents, err := s.st.Entities(ctx)
	if err != nil {
		s.log.Warn("tick: load entities failed", logx.Err(err))
		return
	}

	for _, sched := range ents.Schedules {
		s.runOne(ctx, &ents, sched, minute, today)
	}
}

func (s *Service) runOne(ctx context.Context, ents *store.Entities, sched store.Schedule, minute, today string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic while processing schedule",
				logx.Int("schedule", sched.ID),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()

	if sched.TimeOfDay != minute {
		return
	}
	if sched.LastFiredDate == today {
		return
	}
	if _, ok := ents.CreativeByID(sched.CreativeID); !ok {
		// Creative was removed; the schedule stays inert until the owner
		// removes it explicitly.
		s.log.Debug("schedule references missing creative; skipping",
			logx.Int("schedule", sched.ID),
			logx.Int("creative", sched.CreativeID))
		return
	}

	rep, err := s.disp.Deliver(ctx, dispatch.Request{
		CreativeID: sched.CreativeID,
		TTLSeconds: sched.AutoDeleteSeconds,
		Kind:       dispatch.KindAutopost,
	})
	if err != nil {
		s.log.Warn("scheduled delivery failed",
			logx.Int("schedule", sched.ID),
			logx.Err(err))
		return
	}

	// The firing happened; per-channel failures do not block the stamp.
	err = s.st.MutateEntities(ctx, func(e *store.Entities) error {
		e.StampFired(sched.ID, today)
		return nil
	})
	if err != nil {
		s.log.Warn("failed to stamp schedule", logx.Int("schedule", sched.ID), logx.Err(err))
	}

	s.log.Info("schedule fired",
		logx.Int("schedule", sched.ID),
		logx.Int("creative", sched.CreativeID),
		logx.String("at", minute),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed))
}
