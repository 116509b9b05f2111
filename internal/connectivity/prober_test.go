package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProber_ProbeOnce(t *testing.T) {
	m := NewMonitor(true)
	var up atomic.Bool
	p := NewProber(m, func(context.Context) bool { return up.Load() }, time.Hour, time.Second, nil)

	assert.False(t, p.ProbeOnce(context.Background()))
	assert.False(t, m.IsOnline())

	up.Store(true)
	assert.True(t, p.ProbeOnce(context.Background()))
	assert.True(t, m.IsOnline())
}

func TestProber_TimeoutApplied(t *testing.T) {
	m := NewMonitor(true)
	p := NewProber(m, func(ctx context.Context) bool {
		<-ctx.Done()
		return false
	}, time.Hour, 10*time.Millisecond, nil)

	assert.False(t, p.ProbeOnce(context.Background()))
	assert.False(t, m.IsOnline())
}

func TestProber_RunStopsOnCancel(t *testing.T) {
	m := NewMonitor(false)
	var probes atomic.Int32
	p := NewProber(m, func(context.Context) bool {
		probes.Add(1)
		return true
	}, 5*time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return probes.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, m.IsOnline())

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestProber_CanceledCheckNotRecorded(t *testing.T) {
	m := NewMonitor(true)
	ctx, cancel := context.WithCancel(context.Background())
	p := NewProber(m, func(context.Context) bool {
		cancel()
		return false
	}, time.Hour, time.Second, nil)

	p.ProbeOnce(ctx)

	assert.True(t, m.IsOnline())
}

func TestNewProber_Defaults(t *testing.T) {
	p := NewProber(NewMonitor(true), func(context.Context) bool { return true }, 0, -1, nil)
	assert.Equal(t, DefaultProbeInterval, p.interval)
	assert.Equal(t, DefaultProbeTimeout, p.timeout)
}
