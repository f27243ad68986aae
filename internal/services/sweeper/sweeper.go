// Package sweeper expires finished broadcasts whose time-to-live elapsed.
//
// Each tick it asks the store for expirable tasks (completed or partially
// completed, expiry set, TTL past) and hands them to the engine, which
// reverses the broadcast and marks the task expired.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tgcast/internal/services/dispatch"
	"tgcast/internal/storage"
	"tgcast/pkg/logx"
)

type Config struct {
	Enabled  bool
	Interval time.Duration // default 1m
}

type Service struct {
	cfg    Config
	store  storage.Store
	engine *dispatch.Service
	log    logx.Logger

	mu     sync.Mutex
	c      *cron.Cron
	cancel context.CancelFunc
}

func New(cfg Config, store storage.Store, engine *dispatch.Service, log logx.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, engine: engine, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := c.AddFunc(spec, func() { s.sweep(runCtx) }); err != nil {
		cancel()
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("expiry sweeper started", logx.Duration("interval", s.cfg.Interval))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
		s.log.Info("expiry sweeper stopped")
	}
}

// sweep runs one pass. Each expired task is reversed independently; one
// failing reversal does not stop the rest.
func (s *Service) sweep(ctx context.Context) {
	tasks, err := s.store.ListExpirable(ctx, time.Now())
	if err != nil {
		s.log.Warn("expiry scan failed", logx.Err(err))
		return
	}
	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		sum, err := s.engine.Expire(ctx, t.ID)
		if err != nil {
			s.log.Warn("expiry reversal failed", logx.String("task", t.ID), logx.Err(err))
			continue
		}
		s.log.Info("task expired",
			logx.String("task", t.ID),
			logx.Int("deleted", sum.Deleted),
			logx.Int("failed", sum.Failed))
	}
}
