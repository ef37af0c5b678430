package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper terminates expired sessions at a fixed interval and announces each
// one with a SESSION_EXPIRED event.
type Sweeper struct {
	store     *Store
	publisher Publisher
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSweeper creates a sweeper. It does nothing until Start is called.
func NewSweeper(store *Store, publisher Publisher, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
	}
}

// Start runs the sweep loop in the background. If it is already running,
// this is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background(), time.Now())
			case <-stop:
				return
			}
		}
	}(s.stop, s.done)
}

// Stop halts the loop and waits for an in-flight sweep to finish. If it is
// not running, this is a no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
}

// Sweep performs one pass and returns how many sessions it terminated.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) int {
	expired, err := s.store.TerminateExpired(ctx, now)
	if err != nil {
		s.logger.Error("session sweep failed", slog.String("error", err.Error()))
		return 0
	}

	for _, rec := range expired {
		if err := s.publisher.Publish(ctx, NewEvent(EventSessionExpired, rec)); err != nil {
			s.logger.Warn("failed to publish session expiry",
				slog.String("session_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(expired) > 0 {
		s.logger.Info("expired sessions swept", slog.Int("count", len(expired)))
	}
	return len(expired)
}
