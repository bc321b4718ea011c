package sync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepeatingTaskRunsOnInterval(t *testing.T) {
	var runs int32
	task := NewRepeatingTask(10*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	})
	task.Start()
	defer task.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, task.Running())
}

func TestRepeatingTaskTriggersCoalesce(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	var runs int32
	task := NewRepeatingTask(0, func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	task.Start()
	defer task.Stop()

	task.Trigger()
	<-started

	// Everything requested during the run collapses into one rerun.
	for i := 0; i < 5; i++ {
		task.Trigger()
	}
	release <- struct{}{}
	<-started
	release <- struct{}{}

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
}

func TestRepeatingTaskRunsNeverOverlap(t *testing.T) {
	var active, overlaps int32
	task := NewRepeatingTask(time.Millisecond, func(ctx context.Context) {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
	})
	var skipped int32
	task.OnSkip(func() { atomic.AddInt32(&skipped, 1) })
	task.Start()

	for i := 0; i < 10; i++ {
		task.Trigger()
		time.Sleep(2 * time.Millisecond)
	}
	task.Stop()

	assert.Zero(t, atomic.LoadInt32(&overlaps))
	assert.Positive(t, atomic.LoadInt32(&skipped))
}

func TestRepeatingTaskStopCancelsRun(t *testing.T) {
	running := make(chan struct{})
	var cancelled int32
	task := NewRepeatingTask(0, func(ctx context.Context) {
		close(running)
		<-ctx.Done()
		atomic.StoreInt32(&cancelled, 1)
	})
	task.Start()
	task.Trigger()
	<-running

	task.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&cancelled))
	assert.False(t, task.Running())

	// Stop is idempotent and Start after Stop does nothing.
	task.Stop()
	task.Start()
	assert.False(t, task.Running())
}

func TestRepeatingTaskStopWithoutStart(t *testing.T) {
	task := NewRepeatingTask(time.Second, func(ctx context.Context) {})
	task.Stop()
	assert.False(t, task.Running())
}
