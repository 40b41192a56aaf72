// Package app wires the duebot components together: config, logging,
// storage, channel adapters, dispatcher, scheduler and the optional AMQP
// trigger bridge.
package app

import (
	"context"
	"fmt"
	"time"

	"duebot/internal/bindings"
	"duebot/internal/config"
	"duebot/internal/credential"
	"duebot/internal/dispatch"
	rtsup "duebot/internal/runtime/supervisor"
	"duebot/internal/services/scheduler"
	"duebot/internal/storage"
	"duebot/internal/transport"
	"duebot/internal/transport/line"
	"duebot/internal/transport/telegram"
	"duebot/internal/transport/wechat"
	"duebot/internal/trigger"
	"duebot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store     storage.Store
	senders   []transport.Sender
	scheduler *scheduler.Service
	bridge    *trigger.Bridge

	sup *rtsup.Supervisor
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", cfgPath, err)
	}

	a := &App{cfgMgr: mgr}

	// Telegram comes first: it doubles as the admin-notification sink for
	// the logging service.
	tg, err := telegram.New(telegram.Config{
		Token:       credential.Resolve(cfg.Telegram.Token, credential.KeyTelegramToken),
		AdminChatID: cfg.Telegram.AdminChatID,
	}, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return nil, err
	}

	a.logSvc, a.log = logx.New(loggingConfig(cfg), tg)
	mgr.SetLogger(a.log.With(logx.String("comp", "config")))

	if cfg.Storage != nil {
		busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, a.log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		a.store = st
	}

	ln := line.New(line.Config{
		ChannelToken: credential.Resolve(cfg.Line.ChannelToken, credential.KeyLineToken),
		BaseURL:      cfg.Line.BaseURL,
	}, a.log.With(logx.String("comp", "line")))

	a.senders = []transport.Sender{tg, ln, wechat.New()}

	disp := dispatch.New(a.senders, dispatchOptions(cfg), a.log.With(logx.String("comp", "dispatch")))

	a.scheduler = scheduler.New(schedulerConfig(cfg), scheduler.Deps{
		Store:      a.store,
		Registry:   bindings.NewStatic(configBindings(cfg)),
		Dispatcher: disp,
		Snapshot:   fileSnapshot(cfg.Data.SnapshotPath),
	}, a.log.With(logx.String("comp", "scheduler")))

	if cfg.Trigger != nil && cfg.Trigger.Enabled {
		a.bridge = trigger.New(trigger.Config{
			URL:   cfg.Trigger.URL,
			Queue: cfg.Trigger.Queue,
		}, a.scheduler, a.log.With(logx.String("comp", "trigger")))
	}
	return a, nil
}

func (a *App) Logger() logx.Logger { return a.log }

// Scheduler exposes the service for programmatic "send now" calls.
func (a *App) Scheduler() *scheduler.Service { return a.scheduler }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	a.scheduler.Start(a.sup.Context())

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgMgr.Watch(c)
	})
	a.sup.Go0("config.apply", func(c context.Context) {
		sub := a.cfgMgr.Subscribe(1)
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg := <-sub:
				if cfg == nil {
					continue
				}
				a.logSvc.Apply(loggingConfig(cfg))
				a.scheduler.Apply(schedulerConfig(cfg))
			}
		}
	})
	if a.bridge != nil {
		a.sup.Go("trigger.amqp", func(c context.Context) error {
			return a.bridge.Run(c)
		})
	}

	a.log.Info("duebot started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup != nil {
		a.sup.Cancel()
	}
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	a.scheduler.Stop(stopCtx)
	if a.sup != nil {
		_ = a.sup.Wait(stopCtx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logSvc.Close()
	return nil
}

// ---- config mapping ----

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Admin: logx.AdminConfig{
			Enabled:    cfg.Logging.Admin.Enabled,
			MinLevel:   cfg.Logging.Admin.MinLevel,
			RatePerSec: cfg.Logging.Admin.RatePerSec,
		},
	}
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	interval, _ := config.ParseDurationOrDefault("schedule.check_interval", cfg.Schedule.CheckInterval, 5*time.Minute)
	groups := make([]dispatch.GroupTarget, 0, len(cfg.Groups))
	for _, g := range cfg.Groups {
		groups = append(groups, dispatch.GroupTarget{
			Platform: transport.Platform(g.Platform),
			TargetID: g.TargetID,
			Timezone: g.Timezone,
		})
	}
	return scheduler.Config{
		Enabled:          cfg.Schedule.Enabled,
		CheckInterval:    interval,
		CheckSpec:        cfg.Schedule.CheckSpec,
		NotificationHour: cfg.Schedule.NotificationHour,
		WeekendAllowed:   cfg.Schedule.WeekendNotifications,
		Timezone:         cfg.Schedule.Timezone,
		HorizonDays:      cfg.Schedule.HorizonDays,
		Groups:           groups,
	}
}

func dispatchOptions(cfg *config.Config) dispatch.Options {
	timeout, _ := config.ParseDurationOrDefault("dispatch.send_timeout", cfg.Dispatch.SendTimeout, 30*time.Second)
	return dispatch.Options{
		PerSendTimeout:  timeout,
		RatePerSec:      cfg.Dispatch.RatePerSec,
		DefaultTimezone: cfg.Schedule.Timezone,
	}
}

func configBindings(cfg *config.Config) []bindings.Binding {
	out := make([]bindings.Binding, 0, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		out = append(out, bindings.Binding{
			UserID:      b.UserID,
			Platform:    transport.Platform(b.Platform),
			ExternalID:  b.ExternalID,
			DisplayName: b.DisplayName,
			Active:      b.Active,
		})
	}
	return out
}
