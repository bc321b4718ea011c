// Package store is the local cache of the notification client. It keeps
// the toast ledger and the last applied list per (user, filter) so a
// restart neither re-toasts old notifications nor starts from an empty
// screen. The server remains the source of truth.
package store

import (
	"context"
	"time"

	"github.com/nhle/health-notify/internal/model"
)

// Snapshot is the last notification list applied by an engine.
type Snapshot struct {
	OwnerID       string
	FilterKey     string
	Notifications []model.Notification
	Cycle         uint64
	SavedAt       time.Time
}

// Store defines the persistence interface of the local cache.
type Store interface {
	// === Toast ledger ===

	MarkToastSeen(ctx context.Context, ownerID, notificationID string) error
	ForgetToast(ctx context.Context, ownerID, notificationID string) error
	ToastSeenIDs(ctx context.Context, ownerID string) ([]string, error)
	PruneToastLedger(ctx context.Context, ownerID string, before time.Time, keep []string) (int64, error)

	// === Snapshots ===

	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshot(ctx context.Context, ownerID, filterKey string) (*Snapshot, error)
	DeleteSnapshots(ctx context.Context, ownerID string) error

	Close() error
}
