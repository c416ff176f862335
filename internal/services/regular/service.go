package regular

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mofkobot/internal/transport"
	"mofkobot/pkg/logx"
)

// Config tunes the delivery engine. Zero values fall back to the defaults
// noted per field.
type Config struct {
	Enabled       bool
	CheckInterval time.Duration // poll period, default 60s, floor 30s
	RetryDelay    time.Duration // backoff after a failed send, default 5m, floor 60s
	SendTimeout   time.Duration // per-send transport bound, default 30s
	MaxPerMinute  int           // global delivery budget, default 5, range 1..30
	Timezone      string        // see ResolveLocation
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 60 * time.Second
	}
	if c.CheckInterval < 30*time.Second {
		c.CheckInterval = 30 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Minute
	}
	if c.RetryDelay < time.Minute {
		c.RetryDelay = time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.MaxPerMinute < 1 {
		c.MaxPerMinute = 5
	}
	if c.MaxPerMinute > 30 {
		c.MaxPerMinute = 30
	}
	return c
}

// Service is the delivery engine: a single background loop that polls the
// store for due entries and dispatches them one at a time under a global
// per-minute rate budget.
type Service struct {
	cfg     Config
	log     logx.Logger
	store   *Store
	adapter transport.Adapter

	limiter *rate.Limiter

	mu       sync.Mutex
	stopCh   chan struct{}
	stopDone chan struct{}
	poke     chan struct{}
}

func NewService(cfg Config, store *Store, adapter transport.Adapter, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		store:   store,
		adapter: adapter,
		// minimum spacing of 60s/MaxPerMinute between dispatches, burst 1:
		// delivery is serialized, never parallel-fired
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxPerMinute)), 1),
		poke:    make(chan struct{}, 1),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.stopDone = make(chan struct{})
	go s.run(ctx, s.stopCh, s.stopDone)
	s.log.Info("delivery engine started",
		logx.Duration("check_interval", s.cfg.CheckInterval),
		logx.Int("max_per_minute", s.cfg.MaxPerMinute))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	stopCh, stopDone := s.stopCh, s.stopDone
	s.stopCh, s.stopDone = nil, nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-stopDone:
	case <-ctx.Done():
	}
}

// CheckNow asks the loop to run a delivery cycle without waiting for the
// next poll tick.
func (s *Service) CheckNow() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

// DueCount reports how many entries are due right now.
func (s *Service) DueCount() int {
	return len(s.store.Due(time.Now()))
}

func (s *Service) run(ctx context.Context, stopCh <-chan struct{}, stopDone chan<- struct{}) {
	defer close(stopDone)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
		case <-s.poke:
		}
		s.cycle(ctx, stopCh)
	}
}

// cycle processes one snapshot of due entries. A failure on one entry delays
// the cycle (shared retry backoff) but never prevents the rest of the
// snapshot from being attempted, and never stops the loop.
func (s *Service) cycle(ctx context.Context, stopCh <-chan struct{}) {
	due := s.store.Due(time.Now())
	for _, e := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		select {
		case <-stopCh:
			return
		default:
		}

		if err := s.deliver(ctx, e.ID); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrNotFound) {
				continue
			}
			s.log.Warn("delivery failed", logx.Uint64("id", e.ID), logx.Err(err))
			if !sleepInterruptible(ctx, stopCh, s.cfg.RetryDelay) {
				return
			}
		}
	}
}

// deliver re-reads the entry (it may have been edited or deleted since the
// snapshot), sends it and records the outcome.
func (s *Service) deliver(ctx context.Context, id uint64) error {
	e, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if !e.Enabled {
		return nil
	}

	if err := s.send(ctx, &e); err != nil {
		if _, mErr := s.store.MarkFailed(ctx, id); mErr != nil && !IsNotFound(mErr) {
			s.log.Error("failure state not persisted", logx.Uint64("id", id), logx.Err(mErr))
		}
		return err
	}

	if _, err := s.store.MarkSent(ctx, id); err != nil && !IsNotFound(err) {
		s.log.Error("sent state not persisted", logx.Uint64("id", id), logx.Err(err))
	}
	s.log.Debug("entry delivered", logx.Uint64("id", id), logx.Int64("chat", e.ChatID))
	return nil
}

func (s *Service) send(ctx context.Context, e *Entry) error {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	to := transport.ChatTarget{ChatID: e.ChatID}
	opt := &transport.SendOptions{ParseMode: "HTML"}

	var err error
	if e.HasPhoto() {
		_, err = s.adapter.SendPhoto(sctx, to, e.Photo, e.Text, opt)
	} else {
		_, err = s.adapter.SendText(sctx, to, e.Text, opt)
	}
	if err != nil {
		return fmt.Errorf("send to chat %d: %w", e.ChatID, err)
	}
	return nil
}

// TestSend delivers the entry immediately, bypassing the schedule but going
// through the normal success/failure bookkeeping.
func (s *Service) TestSend(ctx context.Context, id uint64) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.deliver(ctx, id)
}

// sleepInterruptible waits for d unless the context or stop channel fires
// first; it reports whether the full wait elapsed.
func sleepInterruptible(ctx context.Context, stopCh <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stopCh:
		return false
	case <-t.C:
		return true
	}
}
