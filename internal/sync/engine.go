// Package sync keeps a client-side notification collection fresh by
// polling the server, and applies user mutations optimistically.
//
// One Engine owns the collection of one (user, filter) pair. Its list is
// always the server's latest answer with the still-unconfirmed local
// mutations replayed on top; the unread count is derived from that list.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/health-notify/internal/api"
	"github.com/nhle/health-notify/internal/lifecycle"
	"github.com/nhle/health-notify/internal/metrics"
	"github.com/nhle/health-notify/internal/model"
	"github.com/nhle/health-notify/internal/store"
)

// DefaultRefreshInterval is the poll period used when none is configured.
const DefaultRefreshInterval = 30 * time.Second

// fetchTimeout is the maximum time allowed for a single poll cycle.
const fetchTimeout = 30 * time.Second

// markAllConcurrency bounds the parallel requests of MarkAllAsRead.
const markAllConcurrency = 4

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("sync engine closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("sync engine already started")
)

var validate = validator.New()

// Options configures an Engine.
type Options struct {
	UserID          string        `validate:"required"`
	Type            model.Type    `validate:"omitempty,max=64"`
	Status          model.Status  `validate:"omitempty,oneof=SENT DELIVERED READ ARCHIVED"`
	AutoRefresh     bool
	RefreshInterval time.Duration `validate:"omitempty,min=1s"`
}

// Filter returns the server-side filter of the options.
func (o Options) Filter() model.Filter {
	return model.Filter{Type: o.Type, Status: o.Status}
}

// SnapshotStore persists the last applied list for a warm start.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap store.Snapshot) error
	LoadSnapshot(ctx context.Context, ownerID, filterKey string) (*store.Snapshot, error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithSnapshotStore enables warm start from, and saving to, s.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(e *Engine) { e.snapshots = s }
}

// WithClock replaces time.Now for the timestamps of local transitions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFetchTimeout overrides the per-cycle timeout of polling.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.fetchTimeout = d
		}
	}
}

// EventKind identifies what changed.
type EventKind int

const (
	// EventRefreshed is sent after a poll cycle was applied.
	EventRefreshed EventKind = iota
	// EventMutated is sent after a local optimistic change.
	EventMutated
	// EventError is sent when a poll cycle failed.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventRefreshed:
		return "refreshed"
	case EventMutated:
		return "mutated"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// CountSnapshot is the unread count as fetched from the server, labelled
// with the poll cycle that fetched it.
type CountSnapshot struct {
	Count int
	Cycle uint64
}

// Event notifies subscribers of a state change. It carries a copy of the
// state at the time of the change.
type Event struct {
	Kind          EventKind
	Cycle         uint64
	Notifications []model.Notification
	Unread        int
	ServerUnread  CountSnapshot
	Err           error
}

// State is a consistent copy of the engine's observable state.
type State struct {
	Notifications []model.Notification
	Unread        int
	ServerUnread  CountSnapshot
	Cycle         uint64
	Loading       bool
	LastError     error
	LastSync      time.Time
}

// overlay is a local mutation replayed over server lists until a poll
// cycle that started after the server acknowledged it has landed.
type overlay struct {
	seq      uint64
	id       string
	op       lifecycle.Op
	acked    bool
	ackCycle uint64
	failed   bool

	// at is when the mutation was made; replays stamp it, not the
	// replay time.
	at time.Time
}

// Engine maintains the notification collection of one user and filter.
type Engine struct {
	repo         api.Repository
	opts         Options
	log          *zap.Logger
	snapshots    SnapshotStore
	now          func() time.Time
	fetchTimeout time.Duration

	// cycleMu serializes poll cycles.
	cycleMu gosync.Mutex

	mu           gosync.Mutex
	base         []model.Notification
	items        []model.Notification
	overlays     []*overlay
	overlaySeq   uint64
	cycleSeq     uint64
	appliedCycle uint64
	serverCount  CountSnapshot
	loading      bool
	lastErr      error
	lastSync     time.Time
	started      bool
	closed       bool
	task         *RepeatingTask

	subs subscribers
}

// subscribers holds the subscriber channels behind their own lock so
// publishing never waits on the state lock.
type subscribers struct {
	mu     gosync.Mutex
	chans  []chan Event
	closed bool
}

// New creates an engine for opts. It does not fetch anything until Start.
func New(repo api.Repository, opts Options, options ...Option) (*Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("creating sync engine: nil repository")
	}
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid sync options: %w", err)
	}
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}

	e := &Engine{
		repo:         repo,
		opts:         opts,
		log:          zap.NewNop(),
		now:          time.Now,
		fetchTimeout: fetchTimeout,
		items:        []model.Notification{},
	}
	for _, o := range options {
		o(e)
	}
	e.log = e.log.With(
		zap.String("user_id", opts.UserID),
		zap.String("filter", opts.Filter().Key()),
	)
	return e, nil
}

// Options returns the options the engine was created with.
func (e *Engine) Options() Options {
	return e.opts
}

// Start loads the saved snapshot if any, performs the first fetch of the
// list and unread count, and starts polling when AutoRefresh is set.
// A failed first fetch is returned, recorded as LastError, and does not
// prevent polling from starting.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	e.warmStart(ctx)

	err := e.Refresh(ctx)

	if e.opts.AutoRefresh {
		task := NewRepeatingTask(e.opts.RefreshInterval, e.poll)
		task.OnSkip(func() { metrics.PollSkipped.Inc() })

		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return ErrClosed
		}
		e.task = task
		e.mu.Unlock()

		task.Start()
		e.log.Debug("polling started", zap.Duration("interval", e.opts.RefreshInterval))
	}

	return err
}

// warmStart shows the last saved list until the first cycle lands.
func (e *Engine) warmStart(ctx context.Context) {
	if e.snapshots == nil {
		return
	}
	snap, err := e.snapshots.LoadSnapshot(ctx, e.opts.UserID, e.opts.Filter().Key())
	if err != nil {
		e.log.Warn("loading snapshot failed", zap.Error(err))
		return
	}
	if snap == nil {
		return
	}

	e.mu.Lock()
	if e.appliedCycle > 0 || e.closed {
		e.mu.Unlock()
		return
	}
	e.base = sortNotifications(e.keepMatching(snap.Notifications))
	e.items = cloneList(e.base)
	ev := e.eventLocked(EventRefreshed, nil)
	e.mu.Unlock()

	e.log.Debug("restored snapshot",
		zap.Int("count", len(snap.Notifications)),
		zap.Time("saved_at", snap.SavedAt))
	e.publish(ev)
}

// Close stops polling and waits for the polling goroutine to exit.
// Results of requests still in flight are discarded. Subscriber channels
// are closed.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	task := e.task
	e.mu.Unlock()

	if task != nil {
		task.Stop()
	}

	e.subs.mu.Lock()
	e.subs.closed = true
	for _, ch := range e.subs.chans {
		close(ch)
	}
	e.subs.chans = nil
	e.subs.mu.Unlock()

	e.log.Debug("sync engine closed")
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Subscribe returns a channel receiving state change events. The channel
// holds one event; a subscriber that falls behind only sees the latest.
// It is closed when the engine closes.
func (e *Engine) Subscribe() <-chan Event {
	ch := make(chan Event, 1)

	e.subs.mu.Lock()
	defer e.subs.mu.Unlock()
	if e.subs.closed {
		close(ch)
		return ch
	}
	e.subs.chans = append(e.subs.chans, ch)
	return ch
}

func (e *Engine) publish(ev Event) {
	e.subs.mu.Lock()
	defer e.subs.mu.Unlock()
	if e.subs.closed {
		return
	}
	for _, ch := range e.subs.chans {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Replace the stale event the subscriber has not read yet.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// RequestRefresh schedules a poll cycle without waiting for it. Without
// auto refresh it behaves like a detached Refresh.
func (e *Engine) RequestRefresh() {
	e.mu.Lock()
	task := e.task
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	if task != nil {
		task.Trigger()
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.fetchTimeout)
		defer cancel()
		_ = e.Refresh(ctx)
	}()
}

// Refresh runs a poll cycle now and waits for it. When another cycle is
// in flight it waits for that one to finish first. Fetch failures are
// both returned and recorded as LastError.
func (e *Engine) Refresh(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	return e.runCycle(ctx)
}

// poll is the repeating task body. A tick that finds a manual refresh in
// flight is skipped.
func (e *Engine) poll(ctx context.Context) {
	if !e.cycleMu.TryLock() {
		metrics.PollSkipped.Inc()
		return
	}
	defer e.cycleMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	if err := e.runCycle(ctx); err != nil && !errors.Is(err, ErrClosed) {
		e.log.Debug("poll cycle failed", zap.Error(err))
	}
}

// runCycle fetches the list and the unread count concurrently and
// applies them. The caller holds cycleMu.
func (e *Engine) runCycle(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.cycleSeq++
	cycle := e.cycleSeq
	e.loading = true
	e.mu.Unlock()

	var (
		list     []model.Notification
		count    int
		listErr  error
		countErr error
		g        errgroup.Group
	)
	g.Go(func() error {
		list, listErr = e.repo.List(ctx, e.opts.Filter())
		return listErr
	})
	g.Go(func() error {
		count, countErr = e.repo.UnreadCount(ctx)
		return countErr
	})
	_ = g.Wait()

	return e.applyCycle(ctx, cycle, list, listErr, count, countErr)
}

func (e *Engine) applyCycle(
	ctx context.Context,
	cycle uint64,
	list []model.Notification,
	listErr error,
	count int,
	countErr error,
) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		metrics.RecordPoll("discarded")
		return ErrClosed
	}
	if cycle < e.appliedCycle {
		e.loading = false
		e.mu.Unlock()
		metrics.RecordPoll("stale")
		e.log.Debug("discarding stale cycle",
			zap.Uint64("cycle", cycle), zap.Uint64("applied", e.appliedCycle))
		return nil
	}

	if listErr == nil {
		fresh := sortNotifications(e.keepMatching(list))
		e.logRegressions(fresh)
		e.base = fresh
		e.dropSettledOverlays(cycle)
		e.items = e.replayOverlays(e.base)
		e.appliedCycle = cycle
		e.lastSync = e.now()
	}
	if countErr == nil {
		e.serverCount = CountSnapshot{Count: count, Cycle: cycle}
	}

	err := errors.Join(wrapFetch("fetching notifications", listErr), wrapFetch("fetching unread count", countErr))
	e.lastErr = err
	e.loading = false

	kind := EventRefreshed
	if listErr != nil {
		kind = EventError
	}
	ev := e.eventLocked(kind, err)
	var snap *store.Snapshot
	if listErr == nil && e.snapshots != nil {
		snap = &store.Snapshot{
			OwnerID:       e.opts.UserID,
			FilterKey:     e.opts.Filter().Key(),
			Notifications: cloneList(e.base),
			Cycle:         cycle,
			SavedAt:       e.lastSync,
		}
	}
	e.mu.Unlock()

	metrics.SetUnread(e.opts.Filter().Key(), ev.Unread)
	if err != nil {
		metrics.RecordPoll("error")
		if api.IsUnauthorized(err) {
			e.log.Warn("poll unauthorized", zap.Uint64("cycle", cycle), zap.Error(err))
		} else {
			e.log.Info("poll failed", zap.Uint64("cycle", cycle), zap.Error(err))
		}
	} else {
		metrics.RecordPoll("ok")
	}

	e.publish(ev)

	if snap != nil {
		if serr := e.snapshots.SaveSnapshot(context.WithoutCancel(ctx), *snap); serr != nil {
			e.log.Warn("saving snapshot failed", zap.Error(serr))
		}
	}

	return err
}

func wrapFetch(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}

// logRegressions logs server statuses that moved backwards. Server data
// is applied regardless.
func (e *Engine) logRegressions(fresh []model.Notification) {
	if len(e.base) == 0 {
		return
	}
	prev := make(map[string]model.Status, len(e.base))
	for _, n := range e.base {
		prev[n.ID] = n.Status
	}
	for _, n := range fresh {
		if old, ok := prev[n.ID]; ok && !lifecycle.CanTransition(old, n.Status) {
			e.log.Debug("server status regressed",
				zap.String("notification_id", n.ID),
				zap.String("from", string(old)),
				zap.String("to", string(n.Status)))
		}
	}
}

// dropSettledOverlays removes overlays acknowledged before cycle started.
func (e *Engine) dropSettledOverlays(cycle uint64) {
	kept := e.overlays[:0]
	for _, o := range e.overlays {
		if o.acked && cycle > o.ackCycle {
			continue
		}
		kept = append(kept, o)
	}
	e.overlays = kept
}

// replayOverlays applies the pending overlays to a copy of list.
func (e *Engine) replayOverlays(list []model.Notification) []model.Notification {
	out := cloneList(list)
	if len(e.overlays) == 0 {
		return out
	}
	for _, o := range e.overlays {
		if o.op == lifecycle.OpDelete {
			out, _ = lifecycle.Remove(out, o.id)
			continue
		}
		for i := range out {
			if out[i].ID != o.id {
				continue
			}
			if n, changed, err := lifecycle.Apply(out[i], o.op, o.at); err == nil && changed {
				out[i] = n
			}
			break
		}
	}
	return e.keepMatching(out)
}

// keepMatching drops notifications outside the engine's filter and
// those owned by another user.
func (e *Engine) keepMatching(list []model.Notification) []model.Notification {
	out := make([]model.Notification, 0, len(list))
	for _, n := range list {
		if n.OwnerID != "" && n.OwnerID != e.opts.UserID {
			e.log.Debug("dropping notification of another user",
				zap.String("notification_id", n.ID), zap.String("owner_id", n.OwnerID))
			continue
		}
		if e.opts.Type != "" && n.Type != e.opts.Type {
			continue
		}
		if e.opts.Status != "" && n.Status != e.opts.Status {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (e *Engine) eventLocked(kind EventKind, err error) Event {
	return Event{
		Kind:          kind,
		Cycle:         e.appliedCycle,
		Notifications: cloneList(e.items),
		Unread:        lifecycle.UnreadCount(e.items),
		ServerUnread:  e.serverCount,
		Err:           err,
	}
}

// Notifications returns a copy of the current collection, newest first.
func (e *Engine) Notifications() []model.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneList(e.items)
}

// Get returns the notification with id from the current collection.
func (e *Engine) Get(id string) (model.Notification, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range e.items {
		if n.ID == id {
			return n.Clone(), true
		}
	}
	return model.Notification{}, false
}

// UnreadCount returns the number of SENT or DELIVERED notifications in
// the current collection.
func (e *Engine) UnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lifecycle.UnreadCount(e.items)
}

// ServerUnreadCount returns the last unread count fetched from the server
// and the cycle that fetched it.
func (e *Engine) ServerUnreadCount() CountSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serverCount
}

// Loading reports whether a poll cycle is in flight.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// LastError returns the error of the latest poll cycle, or nil.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Snapshot returns a consistent copy of the observable state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Notifications: cloneList(e.items),
		Unread:        lifecycle.UnreadCount(e.items),
		ServerUnread:  e.serverCount,
		Cycle:         e.appliedCycle,
		Loading:       e.loading,
		LastError:     e.lastErr,
		LastSync:      e.lastSync,
	}
}

// PendingMutations returns the number of local mutations not yet settled
// by a poll cycle.
func (e *Engine) PendingMutations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.overlays)
}

func sortNotifications(list []model.Notification) []model.Notification {
	out := cloneList(list)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func cloneList(list []model.Notification) []model.Notification {
	out := make([]model.Notification, len(list))
	for i, n := range list {
		out[i] = n.Clone()
	}
	return out
}
