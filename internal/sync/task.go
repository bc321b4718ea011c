package sync

import (
	"context"
	gosync "sync"
	"time"
)

// RepeatingTask runs a function on a fixed interval and on demand.
// Runs never overlap: they all happen on one goroutine, ticks that fire
// while a run is in progress are skipped, and any number of Trigger calls
// made during a run collapse into a single rerun.
type RepeatingTask struct {
	interval time.Duration
	run      func(ctx context.Context)
	onSkip   func()

	triggerCh chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	mu      gosync.Mutex
	started bool
	stopped bool
}

// NewRepeatingTask creates a stopped task. A non-positive interval means
// the task only runs when triggered.
func NewRepeatingTask(interval time.Duration, run func(ctx context.Context)) *RepeatingTask {
	ctx, cancel := context.WithCancel(context.Background())
	return &RepeatingTask{
		interval:  interval,
		run:       run,
		triggerCh: make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// OnSkip registers a callback invoked for every tick dropped because a
// run was still in progress. It must be set before Start.
func (t *RepeatingTask) OnSkip(fn func()) {
	t.onSkip = fn
}

// Start launches the loop. Calling Start more than once, or after Stop,
// does nothing.
func (t *RepeatingTask) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.stopped {
		return
	}
	t.started = true
	go t.loop()
}

// Trigger requests a run as soon as possible without blocking.
func (t *RepeatingTask) Trigger() {
	select {
	case t.triggerCh <- struct{}{}:
	default:
		// A rerun is already pending.
	}
}

// Stop cancels the context handed to the running function and waits for
// the loop to exit. It is safe to call more than once.
func (t *RepeatingTask) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	started := t.started
	t.mu.Unlock()

	t.cancel()
	if started {
		<-t.done
	}
}

// Running reports whether the loop has been started and not stopped.
func (t *RepeatingTask) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.stopped
}

func (t *RepeatingTask) loop() {
	defer close(t.done)

	var tick <-chan time.Time
	if t.interval > 0 {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-tick:
			t.execute(tick)
		case <-t.triggerCh:
			t.execute(tick)
		}
	}
}

// execute performs one run, then drops a tick that became due while it
// was running.
func (t *RepeatingTask) execute(tick <-chan time.Time) {
	t.run(t.ctx)

	select {
	case <-tick:
		if t.onSkip != nil {
			t.onSkip()
		}
	default:
	}
}
