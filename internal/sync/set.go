package sync

import (
	"context"
	"errors"
	"sort"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/nhle/health-notify/internal/api"
	"github.com/nhle/health-notify/internal/model"
)

// EngineSet owns one engine per filter for a single user, so views with
// different filters never share a mutable collection.
type EngineSet struct {
	repo    api.Repository
	base    Options
	options []Option
	log     *zap.Logger

	mu      gosync.Mutex
	engines map[string]*Engine
	closed  bool
}

// NewEngineSet creates an empty set. base supplies the user and polling
// settings; the filter of each engine comes from Get.
func NewEngineSet(repo api.Repository, base Options, log *zap.Logger, options ...Option) *EngineSet {
	if log == nil {
		log = zap.NewNop()
	}
	return &EngineSet{
		repo:    repo,
		base:    base,
		options: options,
		log:     log,
		engines: make(map[string]*Engine),
	}
}

// Get returns the started engine for filter, creating it on first use.
// A failed first fetch is logged and left in the engine's LastError.
func (s *EngineSet) Get(ctx context.Context, filter model.Filter) (*Engine, error) {
	key := filter.Key()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := s.engines[key]; ok {
		s.mu.Unlock()
		return e, nil
	}

	opts := s.base
	opts.Type = filter.Type
	opts.Status = filter.Status
	e, err := New(s.repo, opts, s.options...)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.engines[key] = e
	s.mu.Unlock()

	if err := e.Start(ctx); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil, err
		}
		s.log.Info("first fetch failed", zap.String("filter", key), zap.Error(err))
	}
	return e, nil
}

// Peek returns the engine for filter without creating it.
func (s *EngineSet) Peek(filter model.Filter) (*Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engines[filter.Key()]
	return e, ok
}

// Keys returns the filter keys of the live engines in sorted order.
func (s *EngineSet) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.engines))
	for k := range s.engines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RequestRefreshExcept schedules a refresh on every engine but skip. The
// app calls it after a mutation so the other views catch up.
func (s *EngineSet) RequestRefreshExcept(skip *Engine) {
	s.mu.Lock()
	engines := make([]*Engine, 0, len(s.engines))
	for _, e := range s.engines {
		if e != skip {
			engines = append(engines, e)
		}
	}
	s.mu.Unlock()

	for _, e := range engines {
		e.RequestRefresh()
	}
}

// Release closes and removes the engine for filter.
func (s *EngineSet) Release(filter model.Filter) {
	s.mu.Lock()
	e, ok := s.engines[filter.Key()]
	delete(s.engines, filter.Key())
	s.mu.Unlock()
	if ok {
		e.Close()
	}
}

// Close closes every engine. Get fails afterwards.
func (s *EngineSet) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	engines := s.engines
	s.engines = make(map[string]*Engine)
	s.mu.Unlock()

	for _, e := range engines {
		e.Close()
	}
}
