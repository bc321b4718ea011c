package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// MarkToastSeen records that a toast was produced for notificationID.
// Recording the same id twice keeps the first timestamp.
func (s *SQLiteStore) MarkToastSeen(ctx context.Context, ownerID, notificationID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO toast_ledger (owner_id, notification_id, seen_at)
		VALUES (?, ?, ?)`,
		ownerID, notificationID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("marking toast %s seen: %w", notificationID, err)
	}
	return nil
}

// ForgetToast removes notificationID from the ledger so it may be toasted
// again.
func (s *SQLiteStore) ForgetToast(ctx context.Context, ownerID, notificationID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM toast_ledger WHERE owner_id = ? AND notification_id = ?",
		ownerID, notificationID,
	)
	if err != nil {
		return fmt.Errorf("forgetting toast %s: %w", notificationID, err)
	}
	return nil
}

// ToastSeenIDs returns every notification id already toasted for ownerID.
func (s *SQLiteStore) ToastSeenIDs(ctx context.Context, ownerID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT notification_id FROM toast_ledger WHERE owner_id = ? ORDER BY seen_at",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing toast ledger: %w", err)
	}
	return ids, nil
}

// PruneToastLedger deletes entries recorded before the cutoff, except
// those whose notification id is in keep, and returns how many were
// removed.
func (s *SQLiteStore) PruneToastLedger(ctx context.Context, ownerID string, before time.Time, keep []string) (int64, error) {
	query := "DELETE FROM toast_ledger WHERE owner_id = ? AND seen_at < ?"
	args := []any{ownerID, before.UTC()}
	if len(keep) > 0 {
		var err error
		query, args, err = sqlx.In(query+" AND notification_id NOT IN (?)", ownerID, before.UTC(), keep)
		if err != nil {
			return 0, fmt.Errorf("building toast ledger prune: %w", err)
		}
		query = s.db.Rebind(query)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("pruning toast ledger: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking pruned rows: %w", err)
	}
	return n, nil
}

// PruneStaleToasts drops old ledger entries of ownerID whose
// notification is no longer in the stored list for filterKey. Without a
// stored list nothing is known to be gone, so nothing is pruned.
func PruneStaleToasts(ctx context.Context, s Store, ownerID, filterKey string, before time.Time) (int64, error) {
	snap, err := s.LoadSnapshot(ctx, ownerID, filterKey)
	if err != nil {
		return 0, err
	}
	if snap == nil {
		return 0, nil
	}
	keep := make([]string, 0, len(snap.Notifications))
	for _, n := range snap.Notifications {
		keep = append(keep, n.ID)
	}
	return s.PruneToastLedger(ctx, ownerID, before, keep)
}

// OwnerLedger binds the toast ledger to one user. It satisfies
// toast.Ledger, whose methods carry no context, so each call runs under
// its own short timeout.
type OwnerLedger struct {
	store   Store
	ownerID string
	timeout time.Duration
}

// NewOwnerLedger returns the ledger of ownerID in s.
func NewOwnerLedger(s Store, ownerID string) *OwnerLedger {
	return &OwnerLedger{store: s, ownerID: ownerID, timeout: 2 * time.Second}
}

// SeenIDs returns the ids toasted in earlier sessions.
func (l *OwnerLedger) SeenIDs() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.store.ToastSeenIDs(ctx, l.ownerID)
}

// MarkSeen records id.
func (l *OwnerLedger) MarkSeen(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.store.MarkToastSeen(ctx, l.ownerID, id)
}

// Forget removes id.
func (l *OwnerLedger) Forget(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.store.ForgetToast(ctx, l.ownerID, id)
}
