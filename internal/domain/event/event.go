package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is an audit record and, for some types, a trigger for asynchronous work
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	TenantID      string                 `json:"tenant_id"`
	EntityKind    string                 `json:"entity_kind"`
	EntityID      string                 `json:"entity_id"`
	ActorID       string                 `json:"actor_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a generated ID, using the ID as its own correlation root
func NewEvent(eventType Type, tenantID, entityKind, entityID, actorID string, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		TenantID:      tenantID,
		EntityKind:    entityKind,
		EntityID:      entityID,
		ActorID:       actorID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: id,
	}
}

// WithCorrelation returns a copy of the event linked to an existing correlation chain
func (e *Event) WithCorrelation(correlationID string) *Event {
	cp := e.clone(len(e.Payload))
	if correlationID != "" {
		cp.CorrelationID = correlationID
	}
	return cp
}

// WithTimestamp returns a copy of the event stamped with the given time
func (e *Event) WithTimestamp(ts time.Time) *Event {
	cp := e.clone(len(e.Payload))
	cp.Timestamp = ts
	return cp
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	cp := e.clone(len(e.Payload) + 1)
	cp.Payload[key] = value
	return cp
}

func (e *Event) clone(size int) *Event {
	payload := make(map[string]interface{}, size)
	for k, v := range e.Payload {
		payload[k] = v
	}
	cp := *e
	cp.Payload = payload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
