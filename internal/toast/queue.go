// Package toast decides which notifications become transient on-screen
// alerts. It never changes a notification: dismissing a toast only
// affects what is drawn.
package toast

import (
	"context"
	"errors"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/health-notify/internal/lifecycle"
	"github.com/nhle/health-notify/internal/metrics"
	"github.com/nhle/health-notify/internal/model"
	"github.com/nhle/health-notify/internal/routing"
)

// DefaultTimeout is how long a toast stays up without interaction.
const DefaultTimeout = 5 * time.Second

// MaxVisible is how many toasts are stacked on screen at once. Toasts
// below that depth wait without a deadline until they move up.
const MaxVisible = 3

// ErrUnknownToast is returned when a toast id is not on screen.
var ErrUnknownToast = errors.New("toast not active")

// Toast is one on-screen alert.
type Toast struct {
	ID           string
	Notification model.Notification
	ShownAt      time.Time

	// ExpiresAt is zero while the toast is queued below the visible
	// stack.
	ExpiresAt time.Time

	// Held is set once the user interacts with the toast; held toasts
	// are never auto-dismissed.
	Held bool
}

// Ledger persists the ids that have already been toasted so a restart
// does not present them again.
type Ledger interface {
	SeenIDs() ([]string, error)
	MarkSeen(id string) error
	Forget(id string) error
}

// Reader marks a notification read. The sync engine implements it.
type Reader interface {
	MarkAsRead(ctx context.Context, id string) error
}

// Option configures a Queue.
type Option func(*Queue)

// WithTimeout overrides the auto-dismiss timeout.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithLedger persists the seen set.
func WithLedger(l Ledger) Option {
	return func(q *Queue) { q.ledger = l }
}

// WithLogger sets the logger used for ledger failures.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// Queue holds the active toast stack and the set of notification ids that
// have already been toasted or dismissed.
type Queue struct {
	mu         gosync.Mutex
	timeout    time.Duration
	now        func() time.Time
	ledger     Ledger
	log        *zap.Logger
	seen       map[string]bool
	lastStatus map[string]model.Status
	active     []Toast
}

// NewQueue creates an empty queue. When a ledger is configured its ids
// are loaded as already seen.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		timeout:    DefaultTimeout,
		now:        time.Now,
		log:        zap.NewNop(),
		seen:       make(map[string]bool),
		lastStatus: make(map[string]model.Status),
	}
	for _, opt := range opts {
		opt(q)
	}

	if q.ledger != nil {
		ids, err := q.ledger.SeenIDs()
		if err != nil {
			q.log.Warn("loading toast ledger failed", zap.Error(err))
		}
		for _, id := range ids {
			q.seen[id] = true
		}
	}
	return q
}

// Observe takes the latest notification list and enqueues a toast for
// every SENT notification not seen before, newest first. It returns the
// toasts it added.
//
// A notification observed leaving ARCHIVED is re-armed so that a new SENT
// occurrence after a restore can be toasted again.
func (q *Queue) Observe(list []model.Notification) []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	current := make(map[string]model.Status, len(list))
	for _, n := range list {
		if prev, ok := q.lastStatus[n.ID]; ok &&
			prev == model.StatusArchived && n.Status != model.StatusArchived {
			q.forgetLocked(n.ID)
		}
		current[n.ID] = n.Status
	}
	q.lastStatus = current

	var fresh []model.Notification
	for _, n := range list {
		if n.Status == model.StatusSent && !q.seen[n.ID] {
			fresh = append(fresh, n)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		if !fresh[i].CreatedAt.Equal(fresh[j].CreatedAt) {
			return fresh[i].CreatedAt.After(fresh[j].CreatedAt)
		}
		return fresh[i].ID > fresh[j].ID
	})

	now := q.now()
	added := make([]Toast, 0, len(fresh))
	for _, n := range fresh {
		q.seen[n.ID] = true
		if q.ledger != nil {
			if err := q.ledger.MarkSeen(n.ID); err != nil {
				q.log.Warn("persisting toast ledger failed",
					zap.String("notification_id", n.ID), zap.Error(err))
			}
		}
		added = append(added, Toast{
			ID:           uuid.NewString(),
			Notification: n.Clone(),
			ShownAt:      now,
		})
	}

	q.active = append(append([]Toast{}, added...), q.active...)
	q.armVisibleLocked(now)
	copy(added, q.active[:len(added)])
	metrics.ToastsShown.Add(float64(len(added)))
	return added
}

// armVisibleLocked gives every visible toast without a deadline one
// starting at now, and clears the deadline of toasts pushed below the
// visible stack.
func (q *Queue) armVisibleLocked(now time.Time) {
	for i := range q.active {
		t := &q.active[i]
		if i >= MaxVisible {
			t.ExpiresAt = time.Time{}
			continue
		}
		if t.ExpiresAt.IsZero() {
			t.ExpiresAt = now.Add(q.timeout)
		}
	}
}

// Rearm makes id toast-eligible again. The app calls it after a local
// restore so the next SENT observation can be presented.
func (q *Queue) Rearm(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.forgetLocked(id)
}

func (q *Queue) forgetLocked(id string) {
	if !q.seen[id] {
		return
	}
	delete(q.seen, id)
	if q.ledger != nil {
		if err := q.ledger.Forget(id); err != nil {
			q.log.Warn("forgetting toast ledger entry failed",
				zap.String("notification_id", id), zap.Error(err))
		}
	}
}

// Seen reports whether a toast has already been produced for id.
func (q *Queue) Seen(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seen[id]
}

// Active returns the on-screen toasts, newest first.
func (q *Queue) Active() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Toast, len(q.active))
	copy(out, q.active)
	return out
}

// Get returns the active toast with the given id.
func (q *Queue) Get(toastID string) (Toast, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.active {
		if t.ID == toastID {
			return t, true
		}
	}
	return Toast{}, false
}

// Timeout returns the auto-dismiss timeout.
func (q *Queue) Timeout() time.Duration {
	return q.timeout
}

// Dismiss removes a toast immediately. It reports whether the toast was
// on screen.
func (q *Queue) Dismiss(toastID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.takeLocked(toastID)
	return ok
}

// Hold pins a toast so it is no longer auto-dismissed.
func (q *Queue) Hold(toastID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.active {
		if q.active[i].ID == toastID {
			q.active[i].Held = true
			return true
		}
	}
	return false
}

// Expire removes every visible toast whose timeout has passed at now and
// that the user has not interacted with. Toasts moving up into the
// visible stack start their timeout at now. It returns the removed
// toasts.
func (q *Queue) Expire(now time.Time) []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []Toast
	kept := q.active[:0]
	for _, t := range q.active {
		if !t.Held && !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt) {
			expired = append(expired, t)
			continue
		}
		kept = append(kept, t)
	}
	q.active = kept
	q.armVisibleLocked(now)
	return expired
}

// Activate handles a click on a toast: the notification is marked read
// if it was unread, the toast is dismissed and the routing action is
// returned. The action is returned even when marking read fails, so the
// caller can still navigate and report the error.
func (q *Queue) Activate(
	ctx context.Context,
	toastID string,
	reader Reader,
	role model.Role,
) (routing.Action, error) {
	q.mu.Lock()
	t, ok := q.takeLocked(toastID)
	q.mu.Unlock()
	if !ok {
		return routing.Action{}, ErrUnknownToast
	}

	n := t.Notification
	var err error
	if lifecycle.IsUnread(n) && reader != nil {
		err = reader.MarkAsRead(ctx, n.ID)
	}
	return routing.Dispatch(n, role), err
}

func (q *Queue) takeLocked(toastID string) (Toast, bool) {
	for i, t := range q.active {
		if t.ID == toastID {
			q.active = append(q.active[:i], q.active[i+1:]...)
			q.armVisibleLocked(q.now())
			return t, true
		}
	}
	return Toast{}, false
}
