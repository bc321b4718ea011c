// Package enrich loads the full related record behind summary-style
// notifications, such as the medical incident behind a medical_event
// notification, for the detail view.
package enrich

import (
	"context"
	"encoding/json"
	gosync "sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/health-notify/internal/api"
	"github.com/nhle/health-notify/internal/model"
	"github.com/nhle/health-notify/internal/routing"
)

// Fetcher retrieves a notification with its enrichment payload.
// api.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, id string) (*api.Detail, error)
}

// Detail is what the detail view renders. Title, message and timestamps
// come from Notification and are always present; Payload is only set
// when enrichment succeeded.
type Detail struct {
	Notification model.Notification
	Descriptor   routing.Descriptor

	// Payload is the raw related record. It is nil for types that need no
	// enrichment and when the server sent none.
	Payload json.RawMessage

	// Unavailable is set when the fetch failed; Err holds the cause.
	Unavailable bool
	Err         error
}

// Enriched reports whether a related record was loaded.
func (d Detail) Enriched() bool {
	return len(d.Payload) > 0
}

// Resolver fetches enrichment lazily and caches successful results per
// notification id for its lifetime. Concurrent requests for the same id
// share one fetch. Failures are not cached, so reopening retries.
type Resolver struct {
	fetcher Fetcher
	log     *zap.Logger
	group   singleflight.Group

	mu    gosync.RWMutex
	cache map[string]json.RawMessage
}

// NewResolver creates a resolver backed by fetcher.
func NewResolver(fetcher Fetcher, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		fetcher: fetcher,
		log:     log,
		cache:   make(map[string]json.RawMessage),
	}
}

// Resolve returns the detail for n. Types whose descriptor does not ask
// for enrichment return immediately without a fetch.
func (r *Resolver) Resolve(ctx context.Context, n model.Notification) Detail {
	d := Detail{Notification: n, Descriptor: routing.Describe(n.Type)}
	if !d.Descriptor.Enrich {
		return d
	}

	r.mu.RLock()
	payload, ok := r.cache[n.ID]
	r.mu.RUnlock()
	if ok {
		d.Payload = payload
		return d
	}

	v, err, shared := r.group.Do(n.ID, func() (interface{}, error) {
		detail, err := r.fetcher.Get(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		payload := detail.Enrichment
		if payload == nil {
			payload = json.RawMessage("{}")
		}
		r.mu.Lock()
		r.cache[n.ID] = payload
		r.mu.Unlock()
		return payload, nil
	})
	if err != nil {
		r.log.Warn("loading notification details failed",
			zap.String("notification_id", n.ID),
			zap.String("type", string(n.Type)),
			zap.Bool("shared", shared),
			zap.Error(err))
		d.Unavailable = true
		d.Err = err
		return d
	}

	d.Payload = v.(json.RawMessage)
	return d
}

// Cached reports whether id has a cached payload.
func (r *Resolver) Cached(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[id]
	return ok
}

// Forget drops the cached payload of id, e.g. after the notification was
// deleted.
func (r *Resolver) Forget(id string) {
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()
	r.group.Forget(id)
}

// Len returns the number of cached payloads.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
