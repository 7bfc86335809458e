package analysis

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrSupervisorClosed is returned by Go once Shutdown has begun.
var ErrSupervisorClosed = errors.New("supervisor is shutting down")

// Supervisor owns background runs. At most max runs execute at once; extra
// runs wait inside their own goroutine so callers never block.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	sem    *semaphore.Weighted

	mu     sync.Mutex
	closed bool
}

func NewSupervisor(max int64) *Supervisor {
	if max <= 0 {
		max = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{ctx: ctx, cancel: cancel, sem: semaphore.NewWeighted(max)}
}

// Go schedules fn. fn always runs, even if cancelled while queued, so it can
// record its own failure.
func (s *Supervisor) Go(fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSupervisorClosed
	}
	s.group.Go(func() error {
		if err := s.sem.Acquire(s.ctx, 1); err == nil {
			defer s.sem.Release(1)
		}
		fn(s.ctx)
		return nil
	})
	return nil
}

// Shutdown stops accepting work and waits for running work. When ctx expires
// first, running work is cancelled and Shutdown still waits for it to return.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// Ready reports ErrSupervisorClosed once Shutdown has begun.
func (s *Supervisor) Ready(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSupervisorClosed
	}
	return nil
}
