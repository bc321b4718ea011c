// Package api is the client side of the notification REST API.
package api

import (
	"context"
	"encoding/json"

	"github.com/nhle/health-notify/internal/model"
)

// Detail is a single notification together with the type-specific
// payload the server attaches when the notification is fetched by id.
type Detail struct {
	model.Notification

	// Enrichment is the raw related record (e.g., a medical incident).
	// It is nil when the server sends none.
	Enrichment json.RawMessage
}

// Repository defines the notification operations the sync engine relies
// on. Implementations must not retry; failures are returned as *Error.
type Repository interface {
	// List returns the notifications matching filter.
	List(ctx context.Context, filter model.Filter) ([]model.Notification, error)

	// UnreadCount returns the server's count of unread notifications.
	UnreadCount(ctx context.Context) (int, error)

	// Get returns one notification with its enrichment payload.
	Get(ctx context.Context, id string) (*Detail, error)

	// SetStatus requests a status change (used for READ).
	SetStatus(ctx context.Context, id string, status model.Status) error

	Delete(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
}

// TokenSource supplies the current bearer credential. It is consulted on
// every request so a refreshed token is picked up without rebuilding the
// client.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token() (string, error) {
	return string(t), nil
}
