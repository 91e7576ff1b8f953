package service

import (
	"context"
	"log"
	"sync"
	"time"
)

// SweepFunc is one maintenance pass. The context carries the per-run
// timeout.
type SweepFunc func(ctx context.Context) error

// Sweeper runs a maintenance function on a fixed interval. The retry,
// reaper, and task purge loops all run on one of these.
type Sweeper struct {
	name     string
	interval time.Duration
	fn       SweepFunc

	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewSweeper creates a sweeper that runs fn every interval.
func NewSweeper(name string, interval time.Duration, fn SweepFunc) *Sweeper {
	return &Sweeper{
		name:     name,
		interval: interval,
		fn:       fn,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop. The first run happens shortly after
// startup rather than a full interval later.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.interval)
	s.mu.Unlock()

	log.Printf("[Sweeper:%s] Started - Interval: %v", s.name, s.interval)

	go func() {
		select {
		case <-time.After(1 * time.Minute):
			s.sweep()
		case <-s.stopCh:
		}
	}()

	go s.run()
}

func (s *Sweeper) run() {
	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stopCh:
			log.Printf("[Sweeper:%s] Stopped", s.name)
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.fn(ctx); err != nil {
		log.Printf("[Sweeper:%s] Error during sweep: %v", s.name, err)
	}
}

// Stop stops the sweep loop.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate sweep.
func (s *Sweeper) RunNow(ctx context.Context) error {
	return s.fn(ctx)
}
