package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rsas-protocol/rsas-go/pkg/log"
)

// Sweep defaults.
const (
	DefaultSweepInterval = 10 * time.Second
	DefaultTTL           = 30 * time.Second
)

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	Interval time.Duration
	TTL      time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time

	Logger log.Logger
}

// Sweeper evicts stale devices on its own schedule, independent of how often
// discovery refreshes them.
type Sweeper struct {
	reg      *Registry
	interval time.Duration
	ttl      atomic.Int64
	now      func() time.Time
	logger   log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a Sweeper over reg.
func NewSweeper(reg *Registry, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.WithName("sweeper")
	}
	s := &Sweeper{reg: reg, interval: cfg.Interval, now: cfg.Now, logger: cfg.Logger}
	s.ttl.Store(int64(cfg.TTL))
	return s
}

// TTL returns the current time-to-live.
func (s *Sweeper) TTL() time.Duration { return time.Duration(s.ttl.Load()) }

// SetTTL changes the time-to-live used by subsequent sweeps.
func (s *Sweeper) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl.Store(int64(ttl))
	}
}

// Sweep runs one eviction pass and returns the evicted IDs.
func (s *Sweeper) Sweep() []string {
	ids := s.reg.EvictExpired(s.now(), s.TTL())
	if len(ids) > 0 {
		s.logger.Info("evicted stale devices", "ids", ids, "ttl", s.TTL())
	}
	return ids
}

// Start launches the sweep loop. Calling Start on a running Sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Stop halts the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
