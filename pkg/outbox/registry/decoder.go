package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox"
)

// ErrNotRegistered marks messages the consumer has no decoder for. Consumers
// ack them; every subscriber sees the whole topic.
var ErrNotRegistered = errors.New("event not registered")

type decoderFunc func(payload json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Decoded is a pub/sub message unpacked from its outbox envelope.
type Decoded struct {
	EventID    uuid.UUID
	Type       enums.OutboxEventType
	Version    int
	OccurredAt time.Time
	Payload    any
}

// DecoderRegistry maps (event type, payload version) to a decoder. A consumer
// registers exactly the events it acts on.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	decoders map[decoderKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]decoderFunc)}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.decoders[decoderKey{eventType: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) lookup(eventType enums.OutboxEventType, version int) (decoderFunc, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	decoder, ok := r.decoders[decoderKey{eventType: eventType, version: version}]
	return decoder, ok
}

func (r *DecoderRegistry) handles(eventType enums.OutboxEventType) bool {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	for key := range r.decoders {
		if key.eventType == eventType {
			return true
		}
	}
	return false
}

// Decode runs the decoder for one payload version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	decoder, ok := r.lookup(eventType, version)
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrNotRegistered, eventType, version)
	}
	return decoder(payload)
}

// DecodeMessage unpacks a message body given its event_type attribute. The
// error matches ErrNotRegistered for event types or payload versions this
// registry does not handle; any other error means a malformed message.
func (r *DecoderRegistry) DecodeMessage(eventType string, data []byte) (Decoded, error) {
	parsed, err := enums.ParseOutboxEventType(eventType)
	if err != nil || !r.handles(parsed) {
		return Decoded{}, fmt.Errorf("%w: %q", ErrNotRegistered, eventType)
	}

	envelope, err := outbox.ParseEnvelope(data)
	if err != nil {
		return Decoded{}, err
	}
	eventID, _ := envelope.ID()
	payload, err := r.Decode(parsed, envelope.Version, envelope.Data)
	if err != nil {
		return Decoded{}, fmt.Errorf("decode %s payload: %w", parsed, err)
	}
	return Decoded{
		EventID:    eventID,
		Type:       parsed,
		Version:    envelope.Version,
		OccurredAt: envelope.OccurredAt,
		Payload:    payload,
	}, nil
}

// JSONDecoder returns a decoder that unmarshals into a fresh *T.
func JSONDecoder[T any]() decoderFunc {
	return func(payload json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
