// Package app wires the bot together: config, logging, store, transport,
// dispatch, the two background loops, the command surface, and the optional
// debug server.
package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"adzbot/internal/autopost"
	"adzbot/internal/bot"
	"adzbot/internal/config"
	"adzbot/internal/dispatch"
	"adzbot/internal/metrics"
	"adzbot/internal/observability/debug"
	"adzbot/internal/store"
	"adzbot/internal/sweeper"
	"adzbot/internal/transport/telegram"
	"adzbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	st     store.Store
	ad     *telegram.Adapter
	reg    *prometheus.Registry
	eng    *dispatch.Engine
	router *bot.Router
	auto   *autopost.Service
	sweep  *sweeper.Service
	dbg    *debug.Service

	cancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	st, err := store.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	dispCfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	eng := dispatch.New(dispCfg, st, ad, met, log.With(logx.String("comp", "dispatch")))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	autoEvery, err := loopInterval("autopost", cfg.Autopost, config.DefaultAutopostInterval)
	if err != nil {
		return nil, err
	}
	sweepEvery, err := loopInterval("sweeper", cfg.Sweeper, config.DefaultSweepInterval)
	if err != nil {
		return nil, err
	}

	return &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		st:     st,
		ad:     ad,
		reg:    reg,
		eng:    eng,
		router: bot.New(cfgm, st, eng, log.With(logx.String("comp", "commands"))),
		auto: autopost.New(autopost.Config{
			Enabled:      cfg.Autopost.Enabled,
			PollInterval: autoEvery,
		}, st, eng, loc, log.With(logx.String("comp", "autopost"))),
		sweep: sweeper.New(sweeper.Config{
			Enabled:      cfg.Sweeper.Enabled,
			PollInterval: sweepEvery,
		}, st, ad, met, log.With(logx.String("comp", "sweeper"))),
		dbg:    debug.New(reg, log.With(logx.String("comp", "debug"))),
	}, nil
}

func (a *App) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	cfg := a.cfgm.Get()
	if err := a.dbg.Apply(ctx, mapDebugConfig(cfg)); err != nil {
		return err
	}

	a.router.Register(ctx, a.ad.Bot())
	a.ad.Start(ctx)

	if err := a.auto.Start(ctx); err != nil {
		return err
	}
	if err := a.sweep.Start(ctx); err != nil {
		return err
	}

	a.router.SendFirstRunWelcome(ctx)

	go func() {
		if err := a.cfgm.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	sub := a.cfgm.Subscribe(8)
	go a.reloadLoop(ctx, sub)

	a.log.Info("started",
		logx.String("storage", cfg.Storage.Driver),
		logx.String("timezone", cfg.Timezone))
	return nil
}

// reloadLoop applies hot-reloadable settings on config changes. Storage
// driver, token, and loop intervals need a restart; the loop says so instead
// of silently half-applying.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			if dispCfg, err := mapDispatchConfig(cfg); err == nil {
				a.eng.Apply(dispCfg)
			} else {
				a.log.Warn("dispatch config rejected", logx.Err(err))
			}
			if err := a.dbg.Apply(ctx, mapDebugConfig(cfg)); err != nil {
				a.log.Warn("debug config rejected", logx.Err(err))
			}
			a.log.Info("config reloaded (storage, token, and loop intervals need a restart)")
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.auto.Stop()
	a.sweep.Stop()
	a.dbg.Stop(ctx)

	err := a.st.Close()
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

func mapStorageConfig(cfg *config.Config) store.Config {
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	path := cfg.Storage.Path
	if path == "" {
		path = config.DefaultStoragePath
	}
	return store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        path,
		BusyTimeout: busy,
	}
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	spacing, err := config.ParseDurationOrDefault("dispatch.send_spacing", cfg.Dispatch.SendSpacing, config.DefaultSendSpacing)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		SendSpacing: spacing,
		PromoSuffix: cfg.Branding.PromoSuffix,
	}, nil
}

func loopInterval(name string, lc config.LoopConfig, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(name+".poll_interval", lc.PollInterval, def)
}

func mapDebugConfig(cfg *config.Config) debug.Config {
	return debug.Config{
		Enabled:       cfg.Debug.Enabled,
		Addr:          cfg.Debug.Addr,
		Token:         cfg.Debug.Token,
		AllowInsecure: cfg.Debug.AllowInsecure,
	}
}
