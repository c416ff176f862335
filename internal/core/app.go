package core

import (
	"context"
	"fmt"
	"time"

	"mofkobot/internal/config"
	rtsup "mofkobot/internal/runtime/supervisor"
	"mofkobot/internal/services/jobs"
	"mofkobot/internal/storage"
	"mofkobot/internal/transport"
	"mofkobot/internal/transport/telegram/adapter"
	"mofkobot/pkg/logx"
)

// App wires config, logging, storage, the Telegram adapter, the jobs runner
// and the plugin host together. Plugins are registered between New and Run.
type App struct {
	cfgMgr *config.Manager
	cfg    *config.Config

	logSvc *logx.Service
	log    logx.Logger

	store   storage.Store
	adapter transport.Adapter
	jobs    *jobs.Service

	plugins *PluginManager
	router  *Router
}

func NewApp(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram.token is required")
	}
	if len(cfg.Telegram.OwnerUserIDs) == 0 {
		return nil, fmt.Errorf("telegram.owner_user_ids is required")
	}

	logSvc, log := logx.New(logx.Config{
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
	})
	mgr.SetLogger(log.Named("config"))

	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.Named("storage"))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := adapter.New(adapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.Named("telegram"))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	js := jobs.New(jobs.Config{
		Enabled:  cfg.Jobs.Enabled,
		Workers:  cfg.Jobs.Workers,
		Timezone: cfg.Jobs.Timezone,
	}, log.Named("jobs"))

	router := NewRouter(log.Named("router"), ad, cfg.Telegram.CommandPrefix, cfg.Telegram.OwnerUserIDs)

	return &App{
		cfgMgr:  mgr,
		cfg:     cfg,
		logSvc:  logSvc,
		log:     log,
		store:   store,
		adapter: ad,
		jobs:    js,
		plugins: NewPluginManager(log.Named("plugins")),
		router:  router,
	}, nil
}

func (a *App) Log() logx.Logger       { return a.log }
func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Register(p Plugin) error { return a.plugins.Register(p) }

func (a *App) deps() Deps {
	return Deps{
		Log:      a.log,
		Adapter:  a.adapter,
		Storage:  a.store,
		Jobs:     a.jobs,
		Disp:     a.router,
		Timezone: a.cfg.Jobs.Timezone,
		Prefix:   a.router.Prefix(),
	}
}

// Run starts everything and blocks until ctx is canceled, then shuts down
// in reverse order.
func (a *App) Run(ctx context.Context) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(a.log.Named("supervisor")))

	if a.cfg.Logging.Telegram.Enabled && a.cfg.Telegram.LogChatID != 0 {
		chatID := a.cfg.Telegram.LogChatID
		a.logSvc.SetTelegramTarget(chatID, func(c context.Context, id int64, text string) error {
			_, err := a.adapter.SendText(c, transport.ChatTarget{ChatID: id}, text, nil)
			return err
		})
	}

	if err := a.plugins.InitAll(ctx, a.deps(), a.rawPluginConfig, a.pluginEnabled); err != nil {
		return err
	}
	for _, p := range a.plugins.All() {
		if err := a.router.Bind(p); err != nil {
			return err
		}
	}

	updates := make(chan transport.Update, 128)
	if err := a.adapter.Start(ctx, updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}
	if a.jobs.Enabled() {
		a.jobs.Start(ctx)
	}
	if err := a.plugins.StartAll(ctx); err != nil {
		a.shutdown()
		return err
	}

	sup.Go0("router.updates", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case upd := <-updates:
				a.router.Handle(c, upd)
			}
		}
	})
	sup.Go("config.watch", func(c context.Context) error {
		return a.cfgMgr.Watch(c)
	})
	sup.Go0("config.apply", func(c context.Context) {
		sub := a.cfgMgr.Subscribe(1)
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	})

	a.log.Info("bot is up", logx.Int("plugins", len(a.plugins.All())))
	<-ctx.Done()

	a.shutdown()
	sup.Cancel()
	wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = sup.Wait(wctx)
	return nil
}

func (a *App) rawPluginConfig(name string) []byte {
	pc, ok := a.cfg.Plugins[name]
	if !ok {
		return nil
	}
	return pc.Config
}

// pluginEnabled treats plugins without a config block as enabled.
func (a *App) pluginEnabled(name string) bool {
	pc, ok := a.cfg.Plugins[name]
	if !ok {
		return true
	}
	return pc.Enabled
}

// applyReload handles config hot-reload. Only the logging section is applied
// live; everything else requires a restart and is logged as such.
func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logSvc.Apply(logx.Config{
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
	})
	a.log.Info("logging config applied")
}

func (a *App) shutdown() {
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.plugins.StopAll(sctx)
	a.jobs.Stop(sctx)
	if err := a.adapter.Stop(sctx); err != nil {
		a.log.Warn("adapter stop failed", logx.Err(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	_ = a.logSvc.Close()
}
