package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBufferWindowCollectsEverything(t *testing.T) {
	b := newReadBuffer()

	go func() {
		b.append([]byte("hel"))
		time.Sleep(10 * time.Millisecond)
		b.append([]byte("lo"))
	}()

	got, err := b.collect(context.Background(), 100*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestReadBufferEmptyWindowIsNotAnError(t *testing.T) {
	b := newReadBuffer()

	start := time.Now()
	got, err := b.collect(context.Background(), 30*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestReadBufferCompletionEndsEarly(t *testing.T) {
	b := newReadBuffer()
	complete := func(p []byte) bool { return bytes.Contains(p, []byte("}")) }

	go func() {
		b.append([]byte(`{"esn":`))
		b.append([]byte(`"A1"}`))
	}()

	start := time.Now()
	got, err := b.collect(context.Background(), 5*time.Second, complete)
	require.NoError(t, err)
	assert.Equal(t, `{"esn":"A1"}`, string(got))
	assert.Less(t, time.Since(start), time.Second)
}

func TestReadBufferFinishEndsEarly(t *testing.T) {
	b := newReadBuffer()
	b.append([]byte("STORED"))
	b.finish()

	got, err := b.collect(context.Background(), 5*time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, "STORED", string(got))
}

func TestReadBufferFailKeepsData(t *testing.T) {
	b := newReadBuffer()
	b.append([]byte("partial"))
	b.fail(ErrUnavailable)

	got, err := b.collect(context.Background(), time.Second, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "partial", string(got))
}

func TestReadBufferContextDeadlineIsTimeout(t *testing.T) {
	b := newReadBuffer()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.collect(ctx, time.Minute, nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReadBufferContextCancelIsNotTimeout(t *testing.T) {
	b := newReadBuffer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.collect(ctx, time.Minute, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestReadBufferReset(t *testing.T) {
	b := newReadBuffer()
	b.append([]byte("boot banner"))
	b.fail(errors.New("stale"))
	b.reset()

	got, err := b.collect(context.Background(), 10*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
