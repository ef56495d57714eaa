package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// readBuffer accumulates bytes from a producer goroutine and lets a consumer
// wait for them with a deadline. notify has capacity one; a pending signal
// means "state changed since you last looked".
type readBuffer struct {
	mu     sync.Mutex
	data   []byte
	err    error
	eof    bool
	notify chan struct{}
}

func newReadBuffer() *readBuffer {
	return &readBuffer{notify: make(chan struct{}, 1)}
}

func (b *readBuffer) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *readBuffer) append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(b.data, p...)
	b.mu.Unlock()
	b.signal()
}

// fail records a terminal producer error. Bytes already buffered stay readable.
func (b *readBuffer) fail(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
	b.signal()
}

// finish marks the end of the current answer; collect returns without
// waiting for the rest of its window.
func (b *readBuffer) finish() {
	b.mu.Lock()
	b.eof = true
	b.mu.Unlock()
	b.signal()
}

// reset drops buffered bytes and any recorded state.
func (b *readBuffer) reset() {
	b.mu.Lock()
	b.data = nil
	b.err = nil
	b.eof = false
	b.mu.Unlock()
	select {
	case <-b.notify:
	default:
	}
}

func (b *readBuffer) take() []byte {
	out := b.data
	b.data = nil
	return out
}

// collect waits until the window elapses or the answer is known to be over
// (complete satisfied, producer finished or failed, ctx done) and returns the
// bytes gathered.
func (b *readBuffer) collect(ctx context.Context, window time.Duration, complete Completion) ([]byte, error) {
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if complete != nil && len(b.data) > 0 && complete(b.data) {
			out := b.take()
			b.mu.Unlock()
			return out, nil
		}
		if b.err != nil {
			out, err := b.take(), b.err
			b.mu.Unlock()
			return out, err
		}
		if b.eof {
			out := b.take()
			b.mu.Unlock()
			return out, nil
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
		case <-timer.C:
			b.mu.Lock()
			out := b.take()
			b.mu.Unlock()
			return out, nil
		case <-ctx.Done():
			b.mu.Lock()
			out := b.take()
			b.mu.Unlock()
			return out, ctxErr(ctx.Err())
		}
	}
}

// ctxErr maps a context error to the transport taxonomy.
func ctxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctxErr(ctx.Err())
	}
}
