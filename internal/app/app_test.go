package app

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/health-notify/internal/api"
	"github.com/nhle/health-notify/internal/enrich"
	"github.com/nhle/health-notify/internal/lifecycle"
	"github.com/nhle/health-notify/internal/model"
	appsync "github.com/nhle/health-notify/internal/sync"
	"github.com/nhle/health-notify/internal/toast"
	toastview "github.com/nhle/health-notify/internal/ui/toast"
)

var baseTime = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func notif(id string, status model.Status, age time.Duration) model.Notification {
	return model.Notification{
		ID:        id,
		OwnerID:   "u1",
		Type:      model.TypeMedicalEvent,
		Status:    status,
		Title:     "notification " + id,
		CreatedAt: baseTime.Add(-age),
	}
}

// memRepo is an in-memory notification server.
type memRepo struct {
	mu    gosync.Mutex
	items map[string]model.Notification
	calls map[string]int
}

func newMemRepo(items ...model.Notification) *memRepo {
	r := &memRepo{
		items: make(map[string]model.Notification),
		calls: make(map[string]int),
	}
	for _, n := range items {
		r.items[n.ID] = n
	}
	return r
}

func (r *memRepo) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *memRepo) List(ctx context.Context, filter model.Filter) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["list"]++
	out := make([]model.Notification, 0, len(r.items))
	for _, n := range r.items {
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		out = append(out, n.Clone())
	}
	return out, nil
}

func (r *memRepo) UnreadCount(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if lifecycle.IsUnread(item) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) Get(ctx context.Context, id string) (*api.Detail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, &api.Error{Kind: api.KindNotFound, Op: "get", StatusCode: 404}
	}
	return &api.Detail{Notification: n.Clone()}, nil
}

func (r *memRepo) apply(op, id string, fn func(model.Notification) model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[op]++
	n, ok := r.items[id]
	if !ok {
		return &api.Error{Kind: api.KindNotFound, Op: op, StatusCode: 404}
	}
	r.items[id] = fn(n)
	return nil
}

func (r *memRepo) SetStatus(ctx context.Context, id string, status model.Status) error {
	return r.apply("set-status", id, func(n model.Notification) model.Notification {
		out, _ := lifecycle.MarkRead(n, baseTime)
		return out
	})
}

func (r *memRepo) Archive(ctx context.Context, id string) error {
	return r.apply("archive", id, func(n model.Notification) model.Notification {
		out, _ := lifecycle.Archive(n, baseTime)
		return out
	})
}

func (r *memRepo) Restore(ctx context.Context, id string) error {
	return r.apply("restore", id, func(n model.Notification) model.Notification {
		out, _ := lifecycle.Restore(n)
		return out
	})
}

func (r *memRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["delete"]++
	delete(r.items, id)
	return nil
}

// newTestModel builds the root model over repo and hands it the started
// inbox engine. Subscription commands are never run, since they block.
func newTestModel(t *testing.T, repo *memRepo) Model {
	t.Helper()
	set := appsync.NewEngineSet(repo, appsync.Options{UserID: "u1"}, nil)
	t.Cleanup(set.Close)

	m := New(Deps{
		Engines:  set,
		Toasts:   toast.NewQueue(),
		Resolver: enrich.NewResolver(repo, nil),
	})

	ready, ok := m.openEngine(m.deps.Inbox)().(engineReadyMsg)
	require.True(t, ok)
	require.NoError(t, ready.err)

	m, _ = update(m, ready)
	require.NotNil(t, m.inbox)
	require.Same(t, m.inbox, m.current)
	return m
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// run executes cmd and any batch it expands to, returning the messages.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestOpeningInboxMarksEverythingRead(t *testing.T) {
	repo := newMemRepo(
		notif("1", model.StatusSent, time.Hour),
		notif("2", model.StatusDelivered, 2*time.Hour),
		notif("3", model.StatusRead, 3*time.Hour),
	)
	m := newTestModel(t, repo)
	assert.Equal(t, 2, m.unread)

	m, cmd := update(m, keyPress("1"))
	require.NotNil(t, cmd)

	msgs := run(cmd)
	require.Len(t, msgs, 1)
	done, ok := msgs[0].(markAllDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)

	m, _ = update(m, done)
	assert.Equal(t, 2, repo.count("set-status"))
	assert.Zero(t, m.inbox.UnreadCount())
	assert.Empty(t, m.flash)
}

func TestOpeningInboxWithNothingUnreadSendsNothing(t *testing.T) {
	repo := newMemRepo(notif("1", model.StatusRead, time.Hour))
	m := newTestModel(t, repo)

	_, cmd := update(m, keyPress("1"))
	assert.Empty(t, run(cmd))
	assert.Zero(t, repo.count("set-status"))
}

func TestActivatingToastOpensDetail(t *testing.T) {
	repo := newMemRepo(notif("1", model.StatusSent, time.Hour))
	m := newTestModel(t, repo)

	active := m.deps.Toasts.Active()
	require.Len(t, active, 1)

	m, cmd := update(m, toastview.OpenMsg{ToastID: active[0].ID})
	msgs := run(cmd)
	require.Len(t, msgs, 1)
	activated, ok := msgs[0].(toastActivatedMsg)
	require.True(t, ok)
	require.NoError(t, activated.err)
	assert.Equal(t, "1", activated.action.NotificationID)
	assert.Equal(t, model.StatusRead, activated.notification.Status)

	m, _ = update(m, activated)
	assert.Equal(t, ViewDetail, m.currentView)
	assert.Equal(t, "1", m.detail.CurrentID())
	assert.Empty(t, m.deps.Toasts.Active())
	assert.Equal(t, 1, repo.count("set-status"))
}

func TestRestoreRearmsToast(t *testing.T) {
	repo := newMemRepo(notif("1", model.StatusSent, time.Hour))
	m := newTestModel(t, repo)
	require.True(t, m.deps.Toasts.Seen("1"))

	msgs := run(runMutation(m.current, lifecycle.OpArchive, "1"))
	require.Len(t, msgs, 1)
	m, _ = update(m, msgs[0])
	assert.True(t, m.deps.Toasts.Seen("1"))

	msgs = run(runMutation(m.current, lifecycle.OpRestore, "1"))
	require.Len(t, msgs, 1)
	done, ok := msgs[0].(mutationDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)
	assert.Equal(t, lifecycle.OpRestore, done.op)

	m, _ = update(m, done)
	assert.False(t, m.deps.Toasts.Seen("1"))
	assert.Equal(t, 1, repo.count("restore"))
}

func TestNextExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	_, ok := nextExpiry(nil, now)
	assert.False(t, ok)

	_, ok = nextExpiry([]toast.Toast{{ID: "a", ExpiresAt: now.Add(time.Second), Held: true}}, now)
	assert.False(t, ok)

	d, ok := nextExpiry([]toast.Toast{
		{ID: "a", ExpiresAt: now.Add(4 * time.Second)},
		{ID: "b", ExpiresAt: now.Add(time.Second), Held: true},
		{ID: "c", ExpiresAt: now.Add(2 * time.Second)},
	}, now)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	// Toasts queued below the visible stack have no deadline yet.
	_, ok = nextExpiry([]toast.Toast{{ID: "a"}}, now)
	assert.False(t, ok)

	// Overdue toasts fire on the next short tick.
	d, ok = nextExpiry([]toast.Toast{{ID: "a", ExpiresAt: now.Add(-time.Second)}}, now)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, d)
}
