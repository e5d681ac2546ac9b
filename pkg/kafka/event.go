package kafka

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the envelope layout version written by NewEvent.
const SchemaVersion = 2

// Aggregate identifies what an event is about. Version is the aggregate's
// version after the change, so consumers can drop stale or duplicate events.
type Aggregate struct {
	ID      string
	Type    string
	Version int
}

// Event is the envelope published on every topic. The aggregate id is also
// the message key, which keeps one owner's events on one partition.
type Event struct {
	EventID          string            `json:"event_id"`
	EventType        string            `json:"event_type"`
	SchemaVersion    int               `json:"schema_version"`
	AggregateID      string            `json:"aggregate_id"`
	AggregateType    string            `json:"aggregate_type"`
	AggregateVersion int               `json:"aggregate_version"`
	OccurredAt       time.Time         `json:"occurred_at"`
	Source           string            `json:"source"`
	CorrelationID    string            `json:"correlation_id,omitempty"`
	Data             json.RawMessage   `json:"data"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// NewEvent builds an event for agg with a fresh id and the current UTC time.
func NewEvent(eventType string, agg Aggregate, source string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:          uuid.NewString(),
		EventType:        eventType,
		SchemaVersion:    SchemaVersion,
		AggregateID:      agg.ID,
		AggregateType:    agg.Type,
		AggregateVersion: agg.Version,
		OccurredAt:       time.Now().UTC(),
		Source:           source,
		Data:             raw,
	}, nil
}

// WithCorrelationID sets the correlation ID on the event.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithMetadata adds a key-value pair to the event metadata. Empty values are
// skipped.
func (e *Event) WithMetadata(key, value string) *Event {
	if value == "" {
		return e
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// headers returns the values copied into Kafka message headers, so consumers
// can route without decoding the body.
func (e *Event) headers() map[string]string {
	h := map[string]string{
		"event_type":        e.EventType,
		"source":            e.Source,
		"aggregate_type":    e.AggregateType,
		"aggregate_version": strconv.Itoa(e.AggregateVersion),
	}
	if e.CorrelationID != "" {
		h["correlation_id"] = e.CorrelationID
	}
	return h
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserializes an event from JSON bytes.
func UnmarshalEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// UnmarshalData deserializes the event payload into target.
func (e *Event) UnmarshalData(target any) error {
	return json.Unmarshal(e.Data, target)
}
