package mq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("PDT", -7*3600))

	env, err := NewEnvelope(EventSubmissionRequested, at, map[string]string{"user_id": "u1"})
	require.NoError(t, err)

	assert.Equal(t, EventSubmissionRequested, env.Event)
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	assert.JSONEq(t, `{"user_id":"u1"}`, string(env.Data))

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "occurred_at")
	assert.Equal(t, "dmv.submission.requested", decoded["event"])
}
