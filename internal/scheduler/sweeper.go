// Package scheduler runs the periodic expiry sweep over tracked questions.
package scheduler

import (
	"sync"
	"time"

	"github.com/askrelay/daemon/internal/logging"
	"github.com/askrelay/daemon/internal/questions"
)

const (
	// DefaultSweepInterval is the default interval between sweeps.
	DefaultSweepInterval = 5 * time.Minute

	// DefaultMaxAge is the default age after which a question is dropped.
	DefaultMaxAge = time.Hour
)

// Sweeper periodically removes stale questions from the store so that
// abandoned questions do not accumulate for the life of the process.
type Sweeper struct {
	mu       sync.RWMutex
	store    *questions.Store
	logger   *logging.Logger
	interval time.Duration
	maxAge   time.Duration
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSweeper creates a sweeper over the store.
func NewSweeper(store *questions.Store, logger *logging.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		logger:   logger,
		interval: DefaultSweepInterval,
		maxAge:   DefaultMaxAge,
	}
}

// SetInterval sets the interval between sweeps.
func (s *Sweeper) SetInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// SetMaxAge sets the age after which questions are dropped.
func (s *Sweeper) SetMaxAge(d time.Duration) {
	s.mu.Lock()
	s.maxAge = d
	s.mu.Unlock()
}

// Start starts the sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.sweepLoop()
	s.logger.Info("sweeper started", "interval", s.interval.String(), "max_age", s.maxAge.String())
}

// Stop stops the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
	s.logger.Info("sweeper stopped")
}

// IsRunning checks if the sweep loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Sweeper) sweepLoop() {
	defer close(s.doneCh)

	s.mu.RLock()
	interval := s.interval
	s.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce performs a single expiry sweep.
func (s *Sweeper) SweepOnce() int {
	s.mu.RLock()
	maxAge := s.maxAge
	s.mu.RUnlock()

	removed := s.store.Sweep(maxAge)
	if removed > 0 {
		s.logger.Info("swept stale questions", "removed", removed, "remaining", s.store.Len())
	}
	return removed
}
