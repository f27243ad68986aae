// Package app wires configuration, storage, adapters, and services into a
// runnable daemon.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tgcast/internal/adapters/analytics"
	"tgcast/internal/adapters/telegram"
	"tgcast/internal/broker"
	"tgcast/internal/config"
	"tgcast/internal/httpapi"
	"tgcast/internal/services/dispatch"
	"tgcast/internal/services/sweeper"
	"tgcast/internal/storage"
	"tgcast/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	log  logx.Logger

	store  storage.Store
	queue  *broker.RedisQueue
	engine *dispatch.Service
	sweep  *sweeper.Service
	http   *http.Server
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.Nop())
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    cfg.Logging.File,
	})

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: config.MustDuration(cfg.Storage.BusyTimeout),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	deliver, err := telegram.New(telegram.Config{
		Token:      cfg.Telegram.Token,
		RatePerSec: cfg.Telegram.RatePerSec,
		Timeout:    config.MustDuration(cfg.Telegram.Timeout),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	metrics := analytics.New(analytics.Config{
		BaseURL: cfg.Analytics.BaseURL,
		Timeout: config.MustDuration(cfg.Analytics.Timeout),
	}, log.With(logx.String("comp", "analytics")))

	// The durable queue is optional. An unreachable broker at boot degrades
	// to in-process timers instead of failing the daemon.
	var rq *broker.RedisQueue
	if cfg.Broker.Enabled {
		rq, err = broker.DialRedis(broker.RedisConfig{
			URL:          cfg.Broker.RedisURL,
			DB:           cfg.Broker.RedisDB,
			PollInterval: config.MustDuration(cfg.Broker.PollInterval),
		}, log.With(logx.String("comp", "broker")))
		if err != nil {
			log.Warn("broker unreachable, using in-process timers", logx.Err(err))
			rq = nil
		}
	}
	var queue broker.Queue
	if rq != nil {
		queue = rq
	}

	engine := dispatch.New(dispatch.Config{
		EnqueueTimeout: config.MustDuration(cfg.Dispatch.EnqueueTimeout),
		DeleteGap:      config.MustDuration(cfg.Dispatch.DeleteGap),
	}, store, deliver, metrics, queue, log.With(logx.String("comp", "dispatch")))

	sweep := sweeper.New(sweeper.Config{
		Enabled:  cfg.Sweeper.Enabled,
		Interval: config.MustDuration(cfg.Sweeper.Interval),
	}, store, engine, log.With(logx.String("comp", "sweeper")))

	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	api := httpapi.New(httpapi.Config{BodyLimit: cfg.HTTP.BodyLimit},
		engine, log.With(logx.String("comp", "http")))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfgm:   cfgm,
		log:    log.With(logx.String("comp", "app")),
		store:  store,
		queue:  rq,
		engine: engine,
		sweep:  sweep,
		http:   srv,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.engine.Start(ctx)
	if err := a.sweep.Start(ctx); err != nil {
		return err
	}
	if err := a.cfgm.Watch(ctx); err != nil {
		a.log.Warn("config watch disabled", logx.Err(err))
	}

	go func() {
		a.log.Info("http listening", logx.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server", logx.Err(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutCtx); err != nil {
		a.log.Warn("http shutdown", logx.Err(err))
	}

	a.sweep.Stop()
	a.engine.Stop()
	if a.queue != nil {
		_ = a.queue.Close()
	}
	err := a.store.Close()
	a.log.Info("stopped")
	return err
}
