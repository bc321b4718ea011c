package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/health-notify/internal/model"
)

var now = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func notif(id string, status model.Status) model.Notification {
	return model.Notification{ID: id, Type: model.TypeMedicalEvent, Status: status, CreatedAt: now}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	for _, from := range []model.Status{model.StatusSent, model.StatusDelivered, model.StatusRead} {
		n := notif("1", from)
		for i := 0; i < 3; i++ {
			n, _ = MarkRead(n, now)
		}
		assert.Equal(t, model.StatusRead, n.Status, "from %s", from)
	}
}

func TestMarkReadStampsReadAt(t *testing.T) {
	out, changed := MarkRead(notif("1", model.StatusSent), now)
	require.True(t, changed)
	require.NotNil(t, out.ReadAt)
	assert.Equal(t, now, *out.ReadAt)

	again, changed := MarkRead(out, now.Add(time.Hour))
	assert.False(t, changed)
	assert.Equal(t, now, *again.ReadAt)
}

func TestMarkReadLeavesArchivedAlone(t *testing.T) {
	n := notif("1", model.StatusArchived)
	out, changed := MarkRead(n, now)
	assert.False(t, changed)
	assert.Equal(t, model.StatusArchived, out.Status)
}

func TestArchiveRestoreRoundTrip(t *testing.T) {
	for _, from := range []model.Status{model.StatusSent, model.StatusDelivered, model.StatusRead} {
		n := notif("1", from)
		archived, changed := Archive(n, now)
		require.True(t, changed)
		assert.Equal(t, model.StatusArchived, archived.Status)
		assert.Equal(t, from, archived.PriorStatus)
		assert.False(t, IsUnread(archived))

		restored, changed := Restore(archived)
		require.True(t, changed)
		assert.Equal(t, from, restored.Status)
		assert.Empty(t, restored.PriorStatus)
		assert.Nil(t, restored.ArchivedAt)
	}
}

func TestArchiveDoesNotMutateInput(t *testing.T) {
	n := notif("1", model.StatusSent)
	n.Related = model.RelatedRefs{"studentId": "s1"}
	out, _ := Archive(n, now)
	out.Related["studentId"] = "changed"

	assert.Equal(t, model.StatusSent, n.Status)
	assert.Nil(t, n.ArchivedAt)
	assert.Equal(t, "s1", n.Related.String("studentId"))
}

func TestArchiveTwiceKeepsPriorStatus(t *testing.T) {
	archived, _ := Archive(notif("1", model.StatusRead), now)
	again, changed := Archive(archived, now.Add(time.Minute))
	assert.False(t, changed)
	assert.Equal(t, model.StatusRead, again.PriorStatus)
}

func TestRestoreInfersTargetWithoutPriorStatus(t *testing.T) {
	read := notif("1", model.StatusArchived)
	readAt := now.Add(-time.Hour)
	read.ReadAt = &readAt
	out, _ := Restore(read)
	assert.Equal(t, model.StatusRead, out.Status)

	unread := notif("2", model.StatusArchived)
	out, _ = Restore(unread)
	assert.Equal(t, model.StatusSent, out.Status)
}

func TestRestoreNonArchivedIsNoop(t *testing.T) {
	n := notif("1", model.StatusRead)
	out, changed := Restore(n)
	assert.False(t, changed)
	assert.Equal(t, n, out)
}

func TestUnreadCount(t *testing.T) {
	list := []model.Notification{
		notif("1", model.StatusSent),
		notif("2", model.StatusDelivered),
		notif("3", model.StatusRead),
		notif("4", model.StatusArchived),
	}
	assert.Equal(t, 2, UnreadCount(list))
	assert.Zero(t, UnreadCount(nil))
}

func TestApply(t *testing.T) {
	out, changed, err := Apply(notif("1", model.StatusSent), OpArchive, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StatusArchived, out.Status)

	_, _, err = Apply(notif("1", model.StatusSent), OpDelete, now)
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	list := []model.Notification{notif("1", model.StatusSent), notif("2", model.StatusRead)}

	out, removed := Remove(list, "1")
	assert.True(t, removed)
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].ID)
	assert.Len(t, list, 2)

	_, removed = Remove(out, "missing")
	assert.False(t, removed)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(model.StatusSent, model.StatusRead))
	assert.True(t, CanTransition(model.StatusDelivered, model.StatusRead))
	assert.True(t, CanTransition(model.StatusRead, model.StatusArchived))
	assert.True(t, CanTransition(model.StatusArchived, model.StatusSent))
	assert.True(t, CanTransition(model.StatusRead, model.StatusRead))
	assert.False(t, CanTransition(model.StatusRead, model.StatusSent))
	assert.False(t, CanTransition(model.StatusRead, model.StatusDelivered))
}
