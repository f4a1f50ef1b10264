package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/config"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/registry"
)

// harness wires a Service to in-memory collaborators. Publish acks are
// scripted per aggregate id; unscripted ids ack successfully.
type harness struct {
	svc      *Service
	rows     *memoryOutbox
	dlq      *memoryDLQ
	broker   *scriptedBroker
	resolver *stubResolver
	recorder *outcomeRecorder
}

func newHarness(t *testing.T, outboxCfg config.OutboxConfig, rows ...models.OutboxEvent) *harness {
	t.Helper()
	h := &harness{
		rows:     &memoryOutbox{pending: rows},
		dlq:      &memoryDLQ{},
		broker:   &scriptedBroker{acks: map[string]error{}},
		resolver: &stubResolver{topic: "od-notification-events"},
		recorder: &outcomeRecorder{},
	}
	svc, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               passthroughTx{},
		PubSub:           idlePubSub{},
		Repository:       h.rows,
		Registry:         h.resolver,
		DLQRepository:    h.dlq,
		Metrics:          h.recorder,
		PublisherFactory: func(topic string) publisher { return h.broker.forTopic(topic) },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func row(t *testing.T, eventType enums.OutboxEventType, aggregateID string) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Payload:       payload,
		CreatedAt:     time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}
}

var defaultOutbox = config.OutboxConfig{BatchSize: 10, PollIntervalMS: 100, MaxAttempts: 5}

func TestProcessBatchSettlesEachRowIndependently(t *testing.T) {
	ok := row(t, enums.EventOrderPlaced, "41")
	flaky := row(t, enums.EventOrderPlaced, "42")
	h := newHarness(t, defaultOutbox, flaky, ok)
	h.broker.acks["42"] = errors.New("unavailable")

	handled, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []uuid.UUID{ok.ID}, h.rows.published)
	assert.Equal(t, []uuid.UUID{flaky.ID}, h.rows.failed)
	assert.Empty(t, h.dlq.entries)

	// every message is handed over before the first ack is awaited
	assert.Equal(t, []string{"publish:42", "publish:41", "get:42", "get:41"}, h.broker.calls)
}

func TestProcessBatchMessageShape(t *testing.T) {
	event := row(t, enums.EventTaskSubmitted, uuid.NewString())
	event.AggregateType = enums.AggregateTask
	h := newHarness(t, defaultOutbox, event)
	h.resolver.topic = "od-task-events"

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, h.broker.sent, 1)
	sent := h.broker.sent[0]
	assert.Equal(t, "od-task-events", sent.topic)
	assert.Equal(t, []byte(event.Payload), sent.msg.Data)
	assert.Equal(t, map[string]string{
		"event_id":       event.ID.String(),
		"event_type":     "task_submitted",
		"event_version":  "1",
		"aggregate_type": "task",
		"aggregate_id":   event.AggregateID,
		"created_at":     "2026-07-01T12:00:00Z",
	}, sent.msg.Attributes)
}

func TestProcessBatchDeadLetters(t *testing.T) {
	cases := []struct {
		name       string
		attempts   int
		resolveErr error
		ackErr     error
		noTopic    bool
		reason     enums.OutboxDLQErrorReason
	}{
		{
			name:       "payload rejected by registry",
			resolveErr: registry.NewNonRetryableError(errors.New("invalid payload")),
			reason:     enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:       "no route for event type",
			resolveErr: registry.NewNonRetryableError(fmt.Errorf("%w order_placed", registry.ErrUnroutable)),
			reason:     enums.OutboxDLQReasonUnroutable,
		},
		{
			name:    "topic without publisher",
			noTopic: true,
			reason:  enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:     "last attempt fails",
			attempts: 4,
			ackErr:   errors.New("deadline exceeded"),
			reason:   enums.OutboxDLQReasonMaxAttempts,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := row(t, enums.EventOrderPlaced, "7")
			event.AttemptCount = tc.attempts
			h := newHarness(t, defaultOutbox, event)
			h.resolver.err = tc.resolveErr
			h.broker.acks["7"] = tc.ackErr
			if tc.noTopic {
				h.resolver.topic = "unknown-topic"
			}

			handled, err := h.svc.processBatch(context.Background())
			require.NoError(t, err)
			assert.True(t, handled)

			require.Len(t, h.dlq.entries, 1)
			entry := h.dlq.entries[0]
			assert.Equal(t, event.ID, entry.EventID)
			assert.Equal(t, tc.reason, entry.ErrorReason)
			assert.Equal(t, []byte(event.Payload), []byte(entry.Payload))
			assert.Equal(t, tc.attempts, entry.AttemptCount)
			require.NotNil(t, entry.ErrorMessage)
			assert.Equal(t, map[uuid.UUID]int{event.ID: defaultOutbox.MaxAttempts}, h.rows.terminal)
			assert.Empty(t, h.rows.published)
		})
	}
}

func TestProcessBatchRecordsOutcomes(t *testing.T) {
	published := row(t, enums.EventOrderStateChanged, "1")
	retried := row(t, enums.EventOrderStateChanged, "2")
	h := newHarness(t, defaultOutbox, published, retried)
	h.broker.acks["2"] = errors.New("unavailable")

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"order_state_changed/published", "order_state_changed/retry"}, h.recorder.outcomes)
	assert.Equal(t, 2, h.recorder.publishes)
}

func TestProcessBatchAbortsOnBookkeepingFailure(t *testing.T) {
	h := newHarness(t, defaultOutbox, row(t, enums.EventOrderPlaced, "1"))
	h.rows.markErr = errors.New("connection reset")

	_, err := h.svc.processBatch(context.Background())
	require.ErrorContains(t, err, "connection reset")
}

func TestProcessBatchEmpty(t *testing.T) {
	h := newHarness(t, defaultOutbox)
	handled, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, h.broker.calls)
}

func TestNewServiceDefaults(t *testing.T) {
	h := newHarness(t, config.OutboxConfig{})
	assert.Equal(t, defaultBatchSize, h.svc.batchSize)
	assert.Equal(t, defaultMaxAttempts, h.svc.maxAttempts)
	assert.Equal(t, defaultPollInterval, h.svc.pollInterval)

	_, err := NewService(ServiceParams{Logger: h.svc.logg})
	assert.Error(t, err)
}

func TestBackoffAndJitter(t *testing.T) {
	base := 500 * time.Millisecond
	assert.Equal(t, time.Second, nextBackoff(0, base, maxBackoff))
	assert.Equal(t, 4*time.Second, nextBackoff(2*time.Second, base, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(8*time.Second, base, maxBackoff))

	for range 50 {
		d := withJitter(time.Second)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, time.Second+jitterWindow)
	}
	assert.Zero(t, withJitter(0))
}

type memoryOutbox struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  map[uuid.UUID]int
	markErr   error
}

func (m *memoryOutbox) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(m.pending) > limit {
		return m.pending[:limit], nil
	}
	return m.pending, nil
}

func (m *memoryOutbox) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.published = append(m.published, id)
	return nil
}

func (m *memoryOutbox) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *memoryOutbox) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, attempts int) error {
	if m.terminal == nil {
		m.terminal = map[uuid.UUID]int{}
	}
	m.terminal[id] = attempts
	return nil
}

type memoryDLQ struct {
	entries []models.OutboxDLQ
}

func (m *memoryDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}

// stubResolver routes every row to topic unless err is set.
type stubResolver struct {
	topic string
	err   error
}

func (s *stubResolver) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	env, err := outbox.ParseEnvelope(event.Payload)
	if err != nil {
		return nil, registry.NewNonRetryableError(err)
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: s.topic, AggregateType: event.AggregateType},
		Envelope:   env,
	}, nil
}

type sentMessage struct {
	topic string
	msg   *gcppubsub.Message
}

// scriptedBroker serves the two known topics and logs the order of publish
// and ack calls.
type scriptedBroker struct {
	acks  map[string]error
	sent  []sentMessage
	calls []string
}

func (b *scriptedBroker) forTopic(topic string) publisher {
	if topic != "od-notification-events" && topic != "od-task-events" {
		return nil
	}
	return topicPublisher{broker: b, topic: topic}
}

type topicPublisher struct {
	broker *scriptedBroker
	topic  string
}

func (p topicPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	aggregate := msg.Attributes["aggregate_id"]
	p.broker.sent = append(p.broker.sent, sentMessage{topic: p.topic, msg: msg})
	p.broker.calls = append(p.broker.calls, "publish:"+aggregate)
	return pendingAck{broker: p.broker, aggregate: aggregate}
}

type pendingAck struct {
	broker    *scriptedBroker
	aggregate string
}

func (a pendingAck) Get(context.Context) (string, error) {
	a.broker.calls = append(a.broker.calls, "get:"+a.aggregate)
	if err := a.broker.acks[a.aggregate]; err != nil {
		return "", err
	}
	return "server-id-" + a.aggregate, nil
}

type outcomeRecorder struct {
	outcomes  []string
	publishes int
}

func (r *outcomeRecorder) ObserveEvent(eventType, outcome string) {
	r.outcomes = append(r.outcomes, eventType+"/"+outcome)
}

func (r *outcomeRecorder) ObservePublish(time.Duration) { r.publishes++ }

type passthroughTx struct{}

func (passthroughTx) Ping(context.Context) error { return nil }

func (passthroughTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type idlePubSub struct{}

func (idlePubSub) Ping(context.Context) error { return nil }

func (idlePubSub) Publisher(string) *gcppubsub.Publisher { return nil }
