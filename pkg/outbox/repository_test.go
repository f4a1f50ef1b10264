package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
)

func seedEvents(t *testing.T, conn *gorm.DB, n int) []models.OutboxEvent {
	t.Helper()
	repo := NewRepository(conn)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	out := make([]models.OutboxEvent, 0, n)
	for i := range n {
		event := models.OutboxEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "1",
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error { return repo.Insert(tx, event) }))
	}
	require.NoError(t, conn.Order("created_at").Find(&out).Error)
	return out
}

func TestFetchSkipsPublishedAndExhaustedRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	events := seedEvents(t, conn, 4)

	require.NoError(t, repo.MarkPublishedTx(conn, events[0].ID))
	require.NoError(t, repo.MarkTerminalTx(conn, events[1].ID, errors.New("gone"), 3))
	require.NoError(t, repo.MarkFailedTx(conn, events[2].ID, errors.New("flaky")))

	pending, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, events[2].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "flaky", *pending[0].LastError)
	assert.Equal(t, events[3].ID, pending[1].ID)

	limited, err := repo.FetchUnpublishedForPublish(conn, 1, 3)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRepositoryWritesNeedTransaction(t *testing.T) {
	repo := NewRepository(nil)
	assert.ErrorIs(t, repo.Insert(nil, models.OutboxEvent{}), ErrTxRequired)
	_, err := repo.FetchUnpublishedForPublish(nil, 1, 1)
	assert.ErrorIs(t, err, ErrTxRequired)
	assert.ErrorIs(t, NewDLQRepository(nil).InsertTx(nil, models.OutboxDLQ{}), ErrTxRequired)
}

func TestDeletePublishedBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	events := seedEvents(t, conn, 2)

	published := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return published }
	require.NoError(t, repo.MarkPublishedTx(conn, events[0].ID))

	n, err := repo.DeletePublishedBefore(context.Background(), published.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var left int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&left).Error)
	assert.Equal(t, int64(1), left)
}

func TestDLQInsertClipsMessageAndCounts(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	long := strings.Repeat("é", maxErrorLen)

	for _, reason := range []enums.OutboxDLQErrorReason{
		enums.OutboxDLQReasonUnroutable,
		enums.OutboxDLQReasonUnroutable,
		enums.OutboxDLQReasonMaxAttempts,
	} {
		require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "9",
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   reason,
			ErrorMessage:  &long,
		}))
	}

	var stored models.OutboxDLQ
	require.NoError(t, conn.First(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.LessOrEqual(t, len(*stored.ErrorMessage), maxErrorLen)
	assert.True(t, utf8.ValidString(*stored.ErrorMessage))
	assert.False(t, stored.FailedAt.IsZero())

	counts, err := dlq.CountByReason(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[enums.OutboxDLQErrorReason]int64{
		enums.OutboxDLQReasonUnroutable:  2,
		enums.OutboxDLQReasonMaxAttempts: 1,
	}, counts)

	purged, err := dlq.DeleteFailedBefore(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)
}

func TestClipMessage(t *testing.T) {
	assert.Nil(t, clipMessage(nil))
	short := "ok"
	assert.Equal(t, "ok", *clipMessage(&short))
	assert.Nil(t, errorText(nil))
}
