package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/health-notify/internal/model"
)

func TestEngineSetSharesEngineByFilter(t *testing.T) {
	repo := newFakeRepo(notif("1", model.StatusSent, time.Hour))
	set := NewEngineSet(repo, Options{UserID: "u1"}, nil)
	defer set.Close()
	ctx := context.Background()

	inbox, err := set.Get(ctx, model.Filter{})
	require.NoError(t, err)
	again, err := set.Get(ctx, model.Filter{})
	require.NoError(t, err)
	assert.Same(t, inbox, again)
	assert.Equal(t, 1, repo.count("list"))

	archived, err := set.Get(ctx, model.Filter{Status: model.StatusArchived})
	require.NoError(t, err)
	assert.NotSame(t, inbox, archived)
	assert.Equal(t, []string{"*|*", "*|ARCHIVED"}, set.Keys())

	got, ok := set.Peek(model.Filter{Status: model.StatusArchived})
	assert.True(t, ok)
	assert.Same(t, archived, got)
	_, ok = set.Peek(model.Filter{Type: model.TypeMedicalEvent})
	assert.False(t, ok)
}

func TestEngineSetRejectsInvalidFilter(t *testing.T) {
	set := NewEngineSet(newFakeRepo(), Options{UserID: "u1"}, nil)
	defer set.Close()

	_, err := set.Get(context.Background(), model.Filter{Status: "BOGUS"})
	assert.Error(t, err)
	assert.Empty(t, set.Keys())
}

func TestEngineSetKeepsEngineWhenFirstFetchFails(t *testing.T) {
	repo := newFakeRepo()
	repo.setListErr(assert.AnError)
	set := NewEngineSet(repo, Options{UserID: "u1"}, nil)
	defer set.Close()

	e, err := set.Get(context.Background(), model.Filter{})
	require.NoError(t, err)
	assert.Error(t, e.LastError())
}

func TestEngineSetRelease(t *testing.T) {
	set := NewEngineSet(newFakeRepo(), Options{UserID: "u1"}, nil)
	defer set.Close()
	filter := model.Filter{Status: model.StatusArchived}

	e, err := set.Get(context.Background(), filter)
	require.NoError(t, err)
	set.Release(filter)

	assert.True(t, e.Closed())
	assert.Empty(t, set.Keys())

	fresh, err := set.Get(context.Background(), filter)
	require.NoError(t, err)
	assert.NotSame(t, e, fresh)
}

func TestEngineSetMutationReachesOtherViews(t *testing.T) {
	repo := newFakeRepo(notif("1", model.StatusSent, time.Hour))
	set := NewEngineSet(repo, Options{UserID: "u1"}, nil)
	defer set.Close()
	ctx := context.Background()

	inbox, err := set.Get(ctx, model.Filter{})
	require.NoError(t, err)
	archived, err := set.Get(ctx, model.Filter{Status: model.StatusArchived})
	require.NoError(t, err)
	assert.Empty(t, archived.Notifications())

	require.NoError(t, inbox.Archive(ctx, "1"))
	set.RequestRefreshExcept(inbox)

	require.Eventually(t, func() bool {
		return len(archived.Notifications()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEngineSetClose(t *testing.T) {
	set := NewEngineSet(newFakeRepo(), Options{UserID: "u1"}, nil)
	e, err := set.Get(context.Background(), model.Filter{})
	require.NoError(t, err)

	set.Close()
	set.Close()
	assert.True(t, e.Closed())

	_, err = set.Get(context.Background(), model.Filter{})
	assert.ErrorIs(t, err, ErrClosed)
}
