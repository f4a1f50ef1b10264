package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
)

func TestNewEnvelopeDefaults(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	id := uuid.New()
	buyer := &ActorRef{UserID: uuid.New(), UserType: "buyer"}

	env, err := newEnvelope(DomainEvent{
		EventType: enums.EventOrderPlaced,
		Actor:     buyer,
		Data:      map[string]any{"order_id": 17},
	}, id, now)
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, env.Version)
	assert.Equal(t, id.String(), env.EventID)
	assert.Equal(t, now.UTC(), env.OccurredAt)
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	assert.Same(t, buyer, env.Actor)
	assert.JSONEq(t, `{"order_id":17}`, string(env.Data))

	pinned := time.Date(2026, 5, 30, 8, 0, 0, 0, time.UTC)
	env, err = newEnvelope(DomainEvent{EventType: enums.EventOrderPlaced, Version: 2, OccurredAt: pinned, Data: struct{}{}}, id, now)
	require.NoError(t, err)
	assert.Equal(t, 2, env.Version)
	assert.Equal(t, pinned, env.OccurredAt)

	_, err = newEnvelope(DomainEvent{EventType: enums.EventOrderPlaced, Data: make(chan int)}, id, now)
	require.Error(t, err)
}

func TestParseEnvelope(t *testing.T) {
	id := uuid.New()
	raw, err := json.Marshal(PayloadEnvelope{Version: 1, EventID: id.String(), Data: json.RawMessage(`{"task_id":"x"}`)})
	require.NoError(t, err)

	env, err := ParseEnvelope(raw)
	require.NoError(t, err)
	got, err := env.ID()
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseEnvelope([]byte(`{"version":1,"eventId":"` + id.String() + `","data":null}`))
	require.ErrorIs(t, err, ErrEmptyPayload)

	_, err = ParseEnvelope([]byte(`{"version":1,"eventId":"` + id.String() + `"}`))
	require.ErrorIs(t, err, ErrEmptyPayload)

	_, err = ParseEnvelope([]byte(`{"version":1,"eventId":"00000000-0000-0000-0000-000000000000","data":{}}`))
	require.ErrorIs(t, err, ErrInvalidEventID)

	_, err = ParseEnvelope([]byte(`[`))
	require.Error(t, err)
}
