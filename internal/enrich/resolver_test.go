package enrich

import (
	"context"
	"encoding/json"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/health-notify/internal/api"
	"github.com/nhle/health-notify/internal/model"
)

type fakeFetcher struct {
	calls   int32
	payload json.RawMessage
	err     error
	block   chan struct{}
}

func (f *fakeFetcher) Get(ctx context.Context, id string) (*api.Detail, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &api.Detail{
		Notification: model.Notification{ID: id},
		Enrichment:   f.payload,
	}, nil
}

func medical(id string) model.Notification {
	return model.Notification{ID: id, Type: model.TypeMedicalEvent, Status: model.StatusSent, Title: "Fall in yard"}
}

func TestResolveCachesPayload(t *testing.T) {
	f := &fakeFetcher{payload: json.RawMessage(`{"id":"ev1","severity":"HIGH"}`)}
	r := NewResolver(f, nil)

	d := r.Resolve(context.Background(), medical("1"))
	require.False(t, d.Unavailable)
	assert.True(t, d.Enriched())
	assert.JSONEq(t, `{"id":"ev1","severity":"HIGH"}`, string(d.Payload))
	assert.Equal(t, "Fall in yard", d.Notification.Title)

	again := r.Resolve(context.Background(), medical("1"))
	assert.Equal(t, d.Payload, again.Payload)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
	assert.True(t, r.Cached("1"))
	assert.Equal(t, 1, r.Len())

	r.Forget("1")
	assert.False(t, r.Cached("1"))
	r.Resolve(context.Background(), medical("1"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))
}

func TestResolveSharesConcurrentFetches(t *testing.T) {
	f := &fakeFetcher{payload: json.RawMessage(`{"id":"ev1"}`), block: make(chan struct{})}
	r := NewResolver(f, nil)

	var wg gosync.WaitGroup
	results := make([]Detail, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), medical("1"))
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&f.calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.block)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.calls))
	for _, d := range results {
		assert.True(t, d.Enriched())
	}
}

func TestResolveFailureIsNotCached(t *testing.T) {
	f := &fakeFetcher{err: &api.Error{Kind: api.KindServer, Op: "get", StatusCode: 502}}
	r := NewResolver(f, nil)

	d := r.Resolve(context.Background(), medical("1"))
	assert.True(t, d.Unavailable)
	assert.True(t, api.KindOf(d.Err) == api.KindServer)
	assert.Equal(t, "Fall in yard", d.Notification.Title)
	assert.False(t, r.Cached("1"))

	f.err = nil
	f.payload = json.RawMessage(`{"id":"ev1"}`)
	d = r.Resolve(context.Background(), medical("1"))
	assert.False(t, d.Unavailable)
	assert.True(t, d.Enriched())
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))
}

func TestResolveSkipsTypesWithoutEnrichment(t *testing.T) {
	f := &fakeFetcher{}
	r := NewResolver(f, nil)

	for _, typ := range []model.Type{model.TypeHealthCheck, model.TypeSystem, "unknown_type"} {
		d := r.Resolve(context.Background(), model.Notification{ID: "1", Type: typ})
		assert.False(t, d.Unavailable)
		assert.False(t, d.Enriched())
		assert.Equal(t, typ, d.Descriptor.Type)
	}
	assert.Zero(t, atomic.LoadInt32(&f.calls))
}

func TestResolveMissingEnrichmentCachesEmptyRecord(t *testing.T) {
	f := &fakeFetcher{}
	r := NewResolver(f, nil)

	d := r.Resolve(context.Background(), medical("1"))
	assert.False(t, d.Unavailable)
	assert.Equal(t, json.RawMessage("{}"), d.Payload)
	assert.True(t, r.Cached("1"))
}

func TestDecodeIncident(t *testing.T) {
	_, err := DecodeIncident(json.RawMessage(`{}`))
	assert.Error(t, err)
	_, err = DecodeIncident(nil)
	assert.Error(t, err)
	_, err = DecodeIncident(json.RawMessage(`[1,2]`))
	assert.Error(t, err)

	inc, err := DecodeIncident(json.RawMessage(`{
		"id": "ev1",
		"studentName": "An",
		"className": "3A",
		"eventType": "FALL",
		"severity": "HIGH",
		"medicationsUsed": ["ice pack", "bandage"],
		"parentNotified": true
	}`))
	require.NoError(t, err)

	fields := inc.Fields()
	assert.Equal(t, [2]string{"Student", "An (3A)"}, fields[0])
	assert.Equal(t, [2]string{"Event", "FALL"}, fields[1])
	assert.Equal(t, [2]string{"Severity", "HIGH"}, fields[2])
	assert.Contains(t, fields, [2]string{"Medications", "ice pack, bandage"})
	assert.Contains(t, fields, [2]string{"Parent notified", "yes"})
	for _, f := range fields {
		assert.NotEqual(t, "Location", f[0])
	}
}
