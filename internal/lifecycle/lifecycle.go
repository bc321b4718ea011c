// Package lifecycle defines the valid status transitions of a notification
// and the quantities derived from a collection of notifications.
//
// Every function is pure: inputs are never mutated, and a transition that
// does not apply returns the notification unchanged with changed=false.
// Repeating a transition is therefore always safe.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/nhle/health-notify/internal/model"
)

// Op is a client-initiated transition.
type Op string

const (
	OpMarkRead Op = "mark_read"
	OpArchive  Op = "archive"
	OpRestore  Op = "restore"
	OpDelete   Op = "delete"
)

// rank orders the forward states. ARCHIVED sits outside the chain because
// it can be left again through restore.
var rank = map[model.Status]int{
	model.StatusSent:      0,
	model.StatusDelivered: 1,
	model.StatusRead:      2,
}

// IsUnread reports whether n counts towards the unread badge.
// Archived notifications never count, whatever they were before.
func IsUnread(n model.Notification) bool {
	return n.Status == model.StatusSent || n.Status == model.StatusDelivered
}

// UnreadCount returns the number of unread notifications in list.
func UnreadCount(list []model.Notification) int {
	count := 0
	for _, n := range list {
		if IsUnread(n) {
			count++
		}
	}
	return count
}

// MarkRead moves SENT or DELIVERED to READ and stamps ReadAt.
// It is a no-op on READ and ARCHIVED.
func MarkRead(n model.Notification, now time.Time) (model.Notification, bool) {
	if !IsUnread(n) {
		return n, false
	}
	out := n.Clone()
	out.Status = model.StatusRead
	out.ReadAt = &now
	return out, true
}

// Archive moves any non-archived notification to ARCHIVED, remembering
// the prior status so Restore can put it back.
func Archive(n model.Notification, now time.Time) (model.Notification, bool) {
	if n.Status == model.StatusArchived {
		return n, false
	}
	out := n.Clone()
	out.PriorStatus = n.Status
	out.Status = model.StatusArchived
	out.ArchivedAt = &now
	return out, true
}

// Restore moves an archived notification back to its prior status and
// clears ArchivedAt. A notification that was read before archiving comes
// back read; one that was never read comes back unread.
func Restore(n model.Notification) (model.Notification, bool) {
	if n.Status != model.StatusArchived {
		return n, false
	}
	out := n.Clone()
	out.Status = restoreTarget(n)
	out.PriorStatus = ""
	out.ArchivedAt = nil
	if IsUnread(out) {
		out.ReadAt = nil
	}
	return out, true
}

// restoreTarget picks the status an archived notification returns to.
// Without a recorded prior status, ReadAt tells whether it had been read.
func restoreTarget(n model.Notification) model.Status {
	switch n.PriorStatus {
	case model.StatusSent, model.StatusDelivered, model.StatusRead:
		return n.PriorStatus
	}
	if n.ReadAt != nil {
		return model.StatusRead
	}
	return model.StatusSent
}

// Apply performs op on n. OpDelete is not representable on a single
// notification; use Remove.
func Apply(n model.Notification, op Op, now time.Time) (model.Notification, bool, error) {
	switch op {
	case OpMarkRead:
		out, changed := MarkRead(n, now)
		return out, changed, nil
	case OpArchive:
		out, changed := Archive(n, now)
		return out, changed, nil
	case OpRestore:
		out, changed := Restore(n)
		return out, changed, nil
	default:
		return n, false, fmt.Errorf("unsupported transition %q", op)
	}
}

// Remove returns list without the notification identified by id.
// The input slice is not modified.
func Remove(list []model.Notification, id string) ([]model.Notification, bool) {
	out := make([]model.Notification, 0, len(list))
	removed := false
	for _, n := range list {
		if n.ID == id {
			removed = true
			continue
		}
		out = append(out, n)
	}
	return out, removed
}

// CanTransition reports whether moving from one status to another is a
// legal lifecycle step. Server data is never rejected on this basis; the
// sync engine only uses it to flag regressions in its logs.
func CanTransition(from, to model.Status) bool {
	if from == to {
		return true
	}
	if to == model.StatusArchived {
		return from.Valid()
	}
	if from == model.StatusArchived {
		// Restore may return to any forward state.
		_, ok := rank[to]
		return ok
	}
	fr, okFrom := rank[from]
	tr, okTo := rank[to]
	return okFrom && okTo && tr > fr
}
