package app

import (
	"context"
	"time"

	"borsabot/internal/config"
	"borsabot/internal/market"
	"borsabot/internal/notify"
	"borsabot/internal/router"
	rtsup "borsabot/internal/runtime/supervisor"
	"borsabot/internal/store"
	kit "borsabot/internal/transport"
	"borsabot/internal/transport/telegram"
	logx "borsabot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter *telegram.Adapter
	db      *store.Store
	feed    *market.Client
	engine  *notify.Engine
	router  *router.Router
	cmds    *router.Commands
	jobs    *Jobs

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO")

	cfgm := config.NewManager(cfgPath, bootLog.With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adCfg := telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}
	if cfg.Telegram.Webhook.Enabled {
		adCfg.WebhookURL = cfg.Telegram.Webhook.PublicURL
		adCfg.WebhookListen = cfg.Telegram.Webhook.Listen
	}
	ad, err := telegram.New(adCfg, bootLog.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	// Bootstrap with the Telegram sink disabled so the initial Apply does not
	// warn before the target chat is set.
	baseLogCfg := logCfgFrom(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	logSvc.SetTelegramTarget(cfg.Telegram.LogChatID)
	logSvc.Apply(logCfgFrom(cfg))

	if cfg.Telegram.AdminID == 0 {
		log.Warn("telegram.admin_id is not set; announcement commands stay unusable")
	}

	loc := cfg.Location()

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
		Location:    loc,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	feedTimeout, err := config.ParseDurationOrDefault("feed.timeout", cfg.Feed.Timeout, 3*time.Second)
	if err != nil {
		return nil, err
	}
	feed := market.New(market.Config{URL: cfg.Feed.URL, Timeout: feedTimeout},
		log.With(logx.String("comp", "feed")))

	engine := notify.New(notify.Config{
		Workers:    cfg.Notify.Workers,
		RatePerSec: cfg.Notify.RatePerSec,
	}, ad, db, log.With(logx.String("comp", "notify")))

	rt := router.New(ad, cfg.Telegram.AdminID, log.With(logx.String("comp", "router")))

	awaitTimeout, err := config.ParseDurationOrDefault("broadcast.await_timeout", cfg.Broadcast.AwaitTimeout, router.DefaultAwaitTimeout)
	if err != nil {
		return nil, err
	}
	cmds := router.NewCommands(feed, db, db, engine, awaitTimeout, log.With(logx.String("comp", "commands")))
	cmds.Mount(rt)

	jobs := NewJobs(loc, feed, db, engine, log.With(logx.String("comp", "jobs")))
	if err := jobs.Schedule(cfg.Schedule); err != nil {
		return nil, err
	}

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		db:      db,
		feed:    feed,
		engine:  engine,
		router:  rt,
		cmds:    cmds,
		jobs:    jobs,
		updates: make(chan kit.Update, 256),
	}, nil
}

func logCfgFrom(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.jobs.Start(a.sup.Context())

	a.sup.Go("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts; only the newest config matters.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.log.Info("started")
	return nil
}

// applyReload hot-applies what can change at runtime: logging and its target
// chat. Everything else is wired at construction; say so instead of
// half-applying.
func (a *App) applyReload(old, cfg *config.Config) {
	a.logs.SetTelegramTarget(cfg.Telegram.LogChatID)
	a.logs.Apply(logCfgFrom(cfg))

	changed, _ := config.SummarizeChange(old, cfg)
	for _, section := range changed {
		if section == "logging" {
			continue
		}
		a.log.Warn("config change needs a restart to take effect", logx.String("section", section))
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	a.jobs.Stop()
	_ = a.adapter.Stop(ctx)

	if a.sup != nil {
		a.sup.Cancel()
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = a.sup.Wait(wctx)
		cancel()
	}

	if err := a.db.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	_ = a.logs.Close()
	return nil
}
