package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordMutation(t *testing.T) {
	ok := testutil.ToFloat64(Mutations.WithLabelValues("archive", "ok"))
	failed := testutil.ToFloat64(Mutations.WithLabelValues("archive", "error"))

	RecordMutation("archive", nil)
	RecordMutation("archive", errors.New("boom"))
	RecordMutation("archive", nil)

	assert.Equal(t, ok+2, testutil.ToFloat64(Mutations.WithLabelValues("archive", "ok")))
	assert.Equal(t, failed+1, testutil.ToFloat64(Mutations.WithLabelValues("archive", "error")))
}

func TestRecordPollAndUnread(t *testing.T) {
	before := testutil.ToFloat64(PollCycles.WithLabelValues("stale"))
	RecordPoll("stale")
	assert.Equal(t, before+1, testutil.ToFloat64(PollCycles.WithLabelValues("stale")))

	SetUnread("*|*", 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(Unread.WithLabelValues("*|*")))
	SetUnread("*|*", 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(Unread.WithLabelValues("*|*")))
}
