package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/health-notify/internal/model"
)

// snapshotRow is the database representation of a Snapshot.
type snapshotRow struct {
	OwnerID   string    `db:"owner_id"`
	FilterKey string    `db:"filter_key"`
	Payload   string    `db:"payload"`
	Cycle     int64     `db:"cycle"`
	SavedAt   time.Time `db:"saved_at"`
}

// SaveSnapshot replaces the stored list for (owner, filter).
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	list := snap.Notifications
	if list == nil {
		list = []model.Notification{}
	}
	payload, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshaling snapshot for %s: %w", snap.FilterKey, err)
	}

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO notification_snapshots (
			owner_id, filter_key, payload, cycle, saved_at
		) VALUES (?, ?, ?, ?, ?)`,
		snap.OwnerID, snap.FilterKey, string(payload), int64(snap.Cycle), savedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot for %s: %w", snap.FilterKey, err)
	}
	return nil
}

// LoadSnapshot returns the stored list for (owner, filter), or nil when
// none was saved.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, ownerID, filterKey string) (*Snapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, `
		SELECT owner_id, filter_key, payload, cycle, saved_at
		FROM notification_snapshots
		WHERE owner_id = ? AND filter_key = ?`,
		ownerID, filterKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot for %s: %w", filterKey, err)
	}

	var list []model.Notification
	if err := json.Unmarshal([]byte(row.Payload), &list); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot for %s: %w", filterKey, err)
	}

	return &Snapshot{
		OwnerID:       row.OwnerID,
		FilterKey:     row.FilterKey,
		Notifications: list,
		Cycle:         uint64(row.Cycle),
		SavedAt:       row.SavedAt,
	}, nil
}

// DeleteSnapshots removes every stored list of ownerID, e.g. on logout.
func (s *SQLiteStore) DeleteSnapshots(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM notification_snapshots WHERE owner_id = ?", ownerID)
	if err != nil {
		return fmt.Errorf("deleting snapshots: %w", err)
	}
	return nil
}
