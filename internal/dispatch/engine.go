package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"adzbot/internal/metrics"
	"adzbot/internal/store"
	"adzbot/internal/transport"
	"adzbot/pkg/logx"
)

// ErrUnknownCreative is returned when the requested creative id does not
// resolve to a stored creative.
var ErrUnknownCreative = errors.New("unknown creative")

// Kind tells which persisted counter a delivery belongs to.
type Kind int

const (
	KindBroadcast Kind = iota
	KindAutopost
)

func (k Kind) String() string {
	if k == KindAutopost {
		return "autopost"
	}
	return "broadcast"
}

type Config struct {
	// SendSpacing is the minimum gap between two channel sends.
	SendSpacing time.Duration
	// PromoSuffix is appended to every rendered body.
	PromoSuffix string
}

// Request describes one delivery.
type Request struct {
	CreativeID int
	// Channels is an explicit target subset; nil means the full configured
	// channel set.
	Channels   []string
	TTLSeconds int
	Kind       Kind
}

// Report is the aggregate outcome. Per-channel failure reasons are logged,
// never returned.
type Report struct {
	Sent   int
	Failed int
}

type Engine struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	store store.Store
	tr    transport.Transport
	met   *metrics.Metrics
	log   logx.Logger
}

func New(cfg Config, st store.Store, tr transport.Transport, met *metrics.Metrics, log logx.Logger) *Engine {
	if met == nil {
		met = metrics.Nop()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{store: st, tr: tr, met: met, log: log}
	e.Apply(cfg)
	return e
}

// Apply swaps pacing and branding at runtime (config hot reload).
func (e *Engine) Apply(cfg Config) {
	if cfg.SendSpacing <= 0 {
		cfg.SendSpacing = 500 * time.Millisecond
	}
	e.mu.Lock()
	e.cfg = cfg
	e.limiter = rate.NewLimiter(rate.Every(cfg.SendSpacing), 1)
	e.mu.Unlock()
}

// Deliver sends the creative to every target channel and records the outcome.
//
// The creative and channel set are re-read from the store at call time; the
// caller must not pass stale copies. An empty target set is a successful
// no-op with zero counter increments.
func (e *Engine) Deliver(ctx context.Context, req Request) (Report, error) {
	ents, err := e.store.Entities(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load entities: %w", err)
	}

	creative, ok := ents.CreativeByID(req.CreativeID)
	if !ok {
		return Report{}, fmt.Errorf("%w: id %d", ErrUnknownCreative, req.CreativeID)
	}

	channels := req.Channels
	if channels == nil {
		channels = ents.Channels
	}
	if len(channels) == 0 {
		e.log.Debug("delivery with no target channels", logx.Int("creative", creative.ID))
		return Report{}, nil
	}

	e.mu.Lock()
	lim := e.limiter
	suffix := e.cfg.PromoSuffix
	e.mu.Unlock()

	text := renderBody(creative.Body, suffix)
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: false}
	if creative.ButtonSetID != 0 {
		// A dangling button set reference means "no keyboard", not a failure.
		if bs, ok := ents.ButtonSetByID(creative.ButtonSetID); ok {
			opt.ReplyMarkup = renderKeyboard(bs)
		}
	}

	var rep Report
	var loopErr error
	for _, ch := range channels {
		if err := lim.Wait(ctx); err != nil {
			// Shutdown mid-delivery: abandon the remaining channels.
			loopErr = err
			break
		}
		ref, err := e.tr.SendMessage(ctx, transport.Recipient(ch), text, opt)
		if err != nil {
			rep.Failed++
			e.log.Warn("send failed",
				logx.String("channel", ch),
				logx.Int("creative", creative.ID),
				logx.String("kind", req.Kind.String()),
				logx.Err(err))
			continue
		}
		rep.Sent++
		if req.TTLSeconds > 0 {
			p := store.PendingDeletion{
				ChatID:     ref.ChatID,
				MessageID:  ref.MessageID,
				SentAt:     time.Now(),
				TTLSeconds: req.TTLSeconds,
			}
			if err := e.store.AppendPending(ctx, p); err != nil {
				e.log.Error("failed to register pending deletion",
					logx.Int64("chat_id", ref.ChatID),
					logx.Int("message_id", ref.MessageID),
					logx.Err(err))
			}
		}
	}

	e.record(ctx, req.Kind, rep)

	e.log.Info("delivery finished",
		logx.Int("creative", creative.ID),
		logx.String("kind", req.Kind.String()),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed))

	return rep, loopErr
}

// record persists the aggregate counters, once per Deliver call.
func (e *Engine) record(ctx context.Context, kind Kind, rep Report) {
	delta := store.Stats{Sent: uint64(rep.Sent), Failed: uint64(rep.Failed)}
	switch kind {
	case KindAutopost:
		delta.Autoposts = 1
		e.met.Autoposts.Inc()
	default:
		delta.Broadcasts = 1
		e.met.Broadcasts.Inc()
	}
	e.met.Sent.Add(float64(rep.Sent))
	e.met.Failed.Add(float64(rep.Failed))

	if err := e.store.AddStats(ctx, delta); err != nil {
		// Stats undercount is a tolerated inconsistency.
		e.log.Warn("stats update failed", logx.Err(err))
	}
}
