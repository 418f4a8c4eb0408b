package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	applog "saldo/internal/log"
)

// SessionPurger deletes expired sessions and reports how many were removed.
type SessionPurger interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type SessionSweeperConfig struct {
	// Interval is how often expired sessions are removed (default: 10m)
	Interval time.Duration
}

func DefaultSessionSweeperConfig() SessionSweeperConfig {
	return SessionSweeperConfig{Interval: 10 * time.Minute}
}

// SessionSweeper periodically removes expired sessions.
type SessionSweeper struct {
	purger SessionPurger
	config SessionSweeperConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSessionSweeper(purger SessionPurger, config SessionSweeperConfig) *SessionSweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSessionSweeperConfig().Interval
	}
	return &SessionSweeper{purger: purger, config: config}
}

// Start begins the sweep loop. Returns an error if already running.
func (s *SessionSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("session sweeper is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	s.logger(ctx).InfoContext(ctx, "Session sweeper started", "interval", s.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to finish.
func (s *SessionSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger(ctx).InfoContext(ctx, "Session sweeper stopped")
	case <-ctx.Done():
		s.logger(ctx).WarnContext(ctx, "Session sweeper stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *SessionSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SessionSweeper) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	n, err := s.purger.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger(ctx).ErrorContext(ctx, "Failed to remove expired sessions", "error", err)
		}
		return
	}
	if n > 0 {
		s.logger(ctx).InfoContext(ctx, "Expired sessions removed", "count", n)
	}
}

func (s *SessionSweeper) logger(ctx context.Context) *applog.Logger {
	return applog.FromContext(ctx).WithComponent(applog.ComponentSweeper)
}
