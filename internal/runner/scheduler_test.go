package runner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingMetrics struct {
	nopMetrics
	triggers atomic.Int64
}

func (m *countingMetrics) RecordSchedulerTrigger() {
	m.triggers.Add(1)
}

func newTestScheduler(t *testing.T, interval time.Duration, metrics *countingMetrics) (*defaultScheduler, *fakeSink) {
	t.Helper()
	sink := newFakeSink()
	runner := newTestRunner(testConfig(t), nil, sink, &fakeAlerter{})
	return &defaultScheduler{
		interval: interval,
		runner:   runner,
		metrics:  metrics,
		logger:   zap.NewNop(),
	}, sink
}

func TestSchedulerTriggersImmediatelyAndOnTicks(t *testing.T) {
	metrics := &countingMetrics{}
	sched, sink := newTestScheduler(t, 20*time.Millisecond, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return metrics.triggers.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond, "expected an immediate run plus at least one tick")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancellation")
	}

	sink.mu.Lock()
	runs := len(sink.created)
	sink.mu.Unlock()
	assert.GreaterOrEqual(t, runs, 2)
}

func TestSchedulerStopSuppressesTriggers(t *testing.T) {
	metrics := &countingMetrics{}
	sched, sink := newTestScheduler(t, 10*time.Millisecond, metrics)

	assert.True(t, sched.IsHealthy())
	require.NoError(t, sched.Stop())
	assert.False(t, sched.IsHealthy())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sched.Start(ctx)

	assert.Zero(t, metrics.triggers.Load())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Empty(t, sink.created)
}
