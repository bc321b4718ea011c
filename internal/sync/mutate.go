package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/health-notify/internal/api"
	"github.com/nhle/health-notify/internal/lifecycle"
	"github.com/nhle/health-notify/internal/metrics"
	"github.com/nhle/health-notify/internal/model"
)

// MarkAsRead marks id read. It is idempotent: marking a notification the
// server already reported as read succeeds without a request.
func (e *Engine) MarkAsRead(ctx context.Context, id string) error {
	return e.mutate(ctx, lifecycle.OpMarkRead, id, func(ctx context.Context) error {
		return e.repo.SetStatus(ctx, id, model.StatusRead)
	})
}

// Archive archives id, remembering its status for a later restore.
func (e *Engine) Archive(ctx context.Context, id string) error {
	return e.mutate(ctx, lifecycle.OpArchive, id, func(ctx context.Context) error {
		return e.repo.Archive(ctx, id)
	})
}

// Restore brings an archived id back to the status it had before.
func (e *Engine) Restore(ctx context.Context, id string) error {
	return e.mutate(ctx, lifecycle.OpRestore, id, func(ctx context.Context) error {
		return e.repo.Restore(ctx, id)
	})
}

// Delete removes id. Deleting a notification the server no longer knows
// counts as success.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.mutate(ctx, lifecycle.OpDelete, id, func(ctx context.Context) error {
		err := e.repo.Delete(ctx, id)
		if api.IsNotFound(err) {
			return nil
		}
		return err
	})
}

// mutate applies op locally, records an overlay, calls the server and
// refreshes. A failed call is returned without rolling the local change
// back; the next poll cycle corrects it.
func (e *Engine) mutate(
	ctx context.Context,
	op lifecycle.Op,
	id string,
	call func(ctx context.Context) error,
) error {
	o, ev, skip, err := e.applyLocal(op, id)
	if err != nil {
		return err
	}
	if skip {
		metrics.RecordMutation(string(op), nil)
		return nil
	}
	if ev != nil {
		e.publish(*ev)
	}

	callErr := call(ctx)
	e.acknowledge(callErr, o)
	metrics.RecordMutation(string(op), callErr)

	if callErr != nil {
		e.log.Info("mutation failed",
			zap.String("op", string(op)),
			zap.String("notification_id", id),
			zap.Error(callErr))
		callErr = fmt.Errorf("%s %s: %w", opVerb(op), id, callErr)
	}

	e.refreshAfterMutation(ctx)
	return callErr
}

// applyLocal performs the optimistic part of a mutation. skip is true
// when the notification is known and already in the target state with no
// unsettled mutation, so there is nothing to send.
func (e *Engine) applyLocal(op lifecycle.Op, id string) (o *overlay, ev *Event, skip bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, nil, false, ErrClosed
	}

	idx := -1
	for i := range e.items {
		if e.items[i].ID == id {
			idx = i
			break
		}
	}

	now := e.now()
	changed := false
	switch {
	case idx < 0:
		// Not in this view; the server decides.
	case op == lifecycle.OpDelete:
		e.items, changed = lifecycle.Remove(e.items, id)
	default:
		var n model.Notification
		n, changed, err = lifecycle.Apply(e.items[idx], op, now)
		if err != nil {
			return nil, nil, false, err
		}
		e.items[idx] = n
	}

	if idx >= 0 && !changed && !e.hasOverlayLocked(id) {
		return nil, nil, true, nil
	}

	e.overlaySeq++
	o = &overlay{seq: e.overlaySeq, id: id, op: op, at: now}
	e.overlays = append(e.overlays, o)

	if changed {
		e.items = e.keepMatching(e.items)
		mutated := e.eventLocked(EventMutated, nil)
		ev = &mutated
	}
	return o, ev, false, nil
}

func (e *Engine) hasOverlayLocked(id string) bool {
	for _, o := range e.overlays {
		if o.id == id {
			return true
		}
	}
	return false
}

// acknowledge marks o answered. It settles once a cycle started after
// this point has been applied.
func (e *Engine) acknowledge(callErr error, overlays ...*overlay) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range overlays {
		if o == nil {
			continue
		}
		o.acked = true
		o.ackCycle = e.cycleSeq
		o.failed = callErr != nil
	}
}

func (e *Engine) refreshAfterMutation(ctx context.Context) {
	if err := e.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
		e.log.Debug("refresh after mutation failed", zap.Error(err))
	}
}

// MarkAllAsRead marks every unread notification of the collection read
// as one operation: all local changes happen at once, the requests run
// concurrently and a single refresh follows. The errors of individual
// requests are joined.
func (e *Engine) MarkAllAsRead(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	now := e.now()
	var ids []string
	var pending []*overlay
	for i, n := range e.items {
		read, changed := lifecycle.MarkRead(n, now)
		if !changed {
			continue
		}
		e.items[i] = read
		e.overlaySeq++
		o := &overlay{seq: e.overlaySeq, id: n.ID, op: lifecycle.OpMarkRead, at: now}
		e.overlays = append(e.overlays, o)
		pending = append(pending, o)
		ids = append(ids, n.ID)
	}
	if len(ids) == 0 {
		e.mu.Unlock()
		return nil
	}
	e.items = e.keepMatching(e.items)
	ev := e.eventLocked(EventMutated, nil)
	e.mu.Unlock()

	e.publish(ev)

	var (
		errMu gosync.Mutex
		errs  []error
		g     errgroup.Group
	)
	g.SetLimit(markAllConcurrency)
	for i, id := range ids {
		id := id // per-iteration copy; go.mod targets go1.21 loop semantics
		o := pending[i]
		g.Go(func() error {
			err := e.repo.SetStatus(ctx, id, model.StatusRead)
			e.acknowledge(err, o)
			metrics.RecordMutation(string(lifecycle.OpMarkRead), err)
			if err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("mark %s read: %w", id, err))
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	e.log.Debug("marked all read", zap.Int("count", len(ids)), zap.Int("failed", len(errs)))
	e.refreshAfterMutation(ctx)
	return errors.Join(errs...)
}

func opVerb(op lifecycle.Op) string {
	switch op {
	case lifecycle.OpMarkRead:
		return "mark read"
	case lifecycle.OpArchive:
		return "archive"
	case lifecycle.OpRestore:
		return "restore"
	case lifecycle.OpDelete:
		return "delete"
	default:
		return string(op)
	}
}
