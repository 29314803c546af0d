package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerRunsAtStartAndOnInterval(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	tick := NewTicker(10*time.Millisecond, true)
	require.NoError(t, tick.Start(context.Background(), func(time.Time) { runs.Add(1) }))

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, tick.Stop(context.Background()))

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestTickerDisabledWithoutInterval(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	tick := NewTicker(0, true)
	require.NoError(t, tick.Start(context.Background(), func(time.Time) { runs.Add(1) }))
	require.NoError(t, tick.Stop(context.Background()))
	assert.Zero(t, runs.Load())
}

func TestTickerStopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	tick := NewTicker(5*time.Millisecond, false)
	require.NoError(t, tick.Start(ctx, func(time.Time) { runs.Add(1) }))
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, tick.Stop(context.Background()))
}
