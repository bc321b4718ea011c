package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationDecodesNumericIDs(t *testing.T) {
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(`{"id":12,"ownerId":"u7","status":"READ","title":"Checkup"}`), &n))
	assert.Equal(t, "12", n.ID)
	assert.Equal(t, "u7", n.OwnerID)
	assert.Equal(t, StatusRead, n.Status)
	assert.Equal(t, "Checkup", n.Title)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"a1","ownerId":null}`), &n))
	assert.Equal(t, "a1", n.ID)
	assert.Empty(t, n.OwnerID)

	assert.Error(t, json.Unmarshal([]byte(`{"id":true}`), &n))
}

func TestNotificationIDsEncodeAsStrings(t *testing.T) {
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"ownerId":9}`), &n))

	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"3"`)
	assert.Contains(t, string(data), `"ownerId":"9"`)

	var back Notification
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, n.ID, back.ID)
	assert.Equal(t, n.OwnerID, back.OwnerID)
}

func TestRelatedRefsString(t *testing.T) {
	refs := RelatedRefs{"studentId": float64(42), "eventId": "ev1", "ratio": 1.5}
	assert.Equal(t, "42", refs.String(RefStudentID))
	assert.Equal(t, "ev1", refs.String(RefEventID))
	assert.Equal(t, "1.5", refs.String("ratio"))
	assert.Empty(t, refs.String(RefCampaignID))
}
