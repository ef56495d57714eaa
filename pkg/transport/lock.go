package transport

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Locks hands out exclusive per-Ref holds. The zero value is not usable; use
// NewLocks.
type Locks struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted

	// FailFast makes Acquire behave like TryAcquire.
	FailFast bool
}

// NewLocks creates an empty lock table.
func NewLocks(failFast bool) *Locks {
	return &Locks{sems: make(map[string]*semaphore.Weighted), FailFast: failFast}
}

func (l *Locks) sem(ref Ref) *semaphore.Weighted {
	key := ref.Kind.String() + "|" + ref.String()

	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[key]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.sems[key] = s
	}
	return s
}

// Acquire takes the hold for ref, waiting until it is free or ctx is done.
// The returned release must be called exactly once.
func (l *Locks) Acquire(ctx context.Context, ref Ref) (func(), error) {
	if l.FailFast {
		return l.TryAcquire(ref)
	}
	s := l.sem(ref)
	if err := s.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", ref, ctxErr(err))
	}
	return func() { s.Release(1) }, nil
}

// TryAcquire takes the hold for ref or fails with ErrBusy.
func (l *Locks) TryAcquire(ref Ref) (func(), error) {
	s := l.sem(ref)
	if !s.TryAcquire(1) {
		return nil, fmt.Errorf("%s: %w", ref, ErrBusy)
	}
	return func() { s.Release(1) }, nil
}
