package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/nhle/health-notify/internal/api"
	"github.com/nhle/health-notify/internal/lifecycle"
	"github.com/nhle/health-notify/internal/model"
	"github.com/nhle/health-notify/internal/store"
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

// fakeRepo is an in-memory server. It applies mutations with the same
// lifecycle rules the client uses.
type fakeRepo struct {
	mu       gosync.Mutex
	items    map[string]model.Notification
	calls    map[string]int
	listErr  error
	countErr error
	mutErr   map[string]error
	gate     chan struct{}
}

func newFakeRepo(items ...model.Notification) *fakeRepo {
	r := &fakeRepo{
		items:  make(map[string]model.Notification),
		calls:  make(map[string]int),
		mutErr: make(map[string]error),
	}
	for _, n := range items {
		r.items[n.ID] = n
	}
	return r
}

func (r *fakeRepo) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *fakeRepo) put(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.ID] = n
}

func (r *fakeRepo) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

func (r *fakeRepo) setGate(g chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = g
}

func (r *fakeRepo) setListErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listErr = err
}

func (r *fakeRepo) failMutation(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutErr[id] = err
}

// List snapshots the server state, then waits on the gate if one is set.
func (r *fakeRepo) List(ctx context.Context, filter model.Filter) ([]model.Notification, error) {
	r.mu.Lock()
	r.calls["list"]++
	err := r.listErr
	var out []model.Notification
	for _, n := range r.items {
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		out = append(out, n.Clone())
	}
	gate := r.gate
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fakeRepo) UnreadCount(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["count"]++
	if r.countErr != nil {
		return 0, r.countErr
	}
	n := 0
	for _, item := range r.items {
		if lifecycle.IsUnread(item) {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) Get(ctx context.Context, id string) (*api.Detail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["get"]++
	n, ok := r.items[id]
	if !ok {
		return nil, &api.Error{Kind: api.KindNotFound, Op: "get"}
	}
	return &api.Detail{Notification: n.Clone()}, nil
}

func (r *fakeRepo) mutate(op, id string, fn func(model.Notification) model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[op]++
	if err := r.mutErr[id]; err != nil {
		return err
	}
	n, ok := r.items[id]
	if !ok {
		return &api.Error{Kind: api.KindNotFound, Op: op, StatusCode: 404}
	}
	r.items[id] = fn(n)
	return nil
}

func (r *fakeRepo) SetStatus(ctx context.Context, id string, status model.Status) error {
	if status != model.StatusRead {
		return &api.Error{Kind: api.KindValidation, Op: "set-status", Message: fmt.Sprintf("status %s", status)}
	}
	return r.mutate("set-status", id, func(n model.Notification) model.Notification {
		out, _ := lifecycle.MarkRead(n, baseTime)
		return out
	})
}

func (r *fakeRepo) Archive(ctx context.Context, id string) error {
	return r.mutate("archive", id, func(n model.Notification) model.Notification {
		out, _ := lifecycle.Archive(n, baseTime)
		return out
	})
}

func (r *fakeRepo) Restore(ctx context.Context, id string) error {
	return r.mutate("restore", id, func(n model.Notification) model.Notification {
		out, _ := lifecycle.Restore(n)
		return out
	})
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["delete"]++
	if err := r.mutErr[id]; err != nil {
		return err
	}
	if _, ok := r.items[id]; !ok {
		return &api.Error{Kind: api.KindNotFound, Op: "delete", StatusCode: 404}
	}
	delete(r.items, id)
	return nil
}

// memSnapshots is an in-memory SnapshotStore.
type memSnapshots struct {
	mu    gosync.Mutex
	snaps map[string]store.Snapshot
	saves int
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{snaps: make(map[string]store.Snapshot)}
}

func (m *memSnapshots) SaveSnapshot(ctx context.Context, snap store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.snaps[snap.OwnerID+"/"+snap.FilterKey] = snap
	return nil
}

func (m *memSnapshots) LoadSnapshot(ctx context.Context, ownerID, filterKey string) (*store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[ownerID+"/"+filterKey]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}
