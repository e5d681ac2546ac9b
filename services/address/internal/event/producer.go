package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/Uebook/Luna-sub002/pkg/kafka"
	"github.com/Uebook/Luna-sub002/pkg/logger"
	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
)

// Kafka topic constants for address book domain events.
const (
	TopicBookUpdated    = "ecommerce.address.book_updated"
	TopicPrimaryChanged = "ecommerce.address.primary_changed"
)

// Aggregate type constant.
const AggregateTypeAddressBook = "address_book"

// Source identifier for events originating from the address service.
const SourceAddressService = "address-service"

// Operation names carried in event payloads and metrics.
const (
	OperationAdd        = "add"
	OperationUpdate     = "update"
	OperationRemove     = "remove"
	OperationSetPrimary = "set_primary"
	OperationImport     = "import"
)

// Change describes one persisted mutation of a book.
type Change struct {
	Operation         string
	AddressID         string
	PreviousPrimaryID string
	Book              *domain.AddressBook
}

// BookUpdatedData is the payload for an address.book_updated event.
type BookUpdatedData struct {
	Owner     string `json:"owner"`
	Operation string `json:"operation"`
	AddressID string `json:"address_id"`
	PrimaryID string `json:"primary_id"`
	Count     int    `json:"count"`
	Version   int    `json:"version"`
}

// PrimaryChangedData is the payload for an address.primary_changed event.
type PrimaryChangedData struct {
	Owner             string `json:"owner"`
	PrimaryID         string `json:"primary_id"`
	PreviousPrimaryID string `json:"previous_primary_id"`
}

// Producer publishes address book domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the address service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishBookUpdated publishes an address.book_updated event.
func (p *Producer) PublishBookUpdated(ctx context.Context, change Change) error {
	data := BookUpdatedData{
		Owner:     change.Book.Owner,
		Operation: change.Operation,
		AddressID: change.AddressID,
		PrimaryID: change.Book.PrimaryID(),
		Count:     len(change.Book.Addresses),
		Version:   change.Book.Version,
	}

	return p.publish(ctx, TopicBookUpdated, change, data)
}

// PublishPrimaryChanged publishes an address.primary_changed event.
func (p *Producer) PublishPrimaryChanged(ctx context.Context, change Change) error {
	data := PrimaryChangedData{
		Owner:             change.Book.Owner,
		PrimaryID:         change.Book.PrimaryID(),
		PreviousPrimaryID: change.PreviousPrimaryID,
	}

	return p.publish(ctx, TopicPrimaryChanged, change, data)
}

func (p *Producer) publish(ctx context.Context, topic string, change Change, data any) error {
	owner := change.Book.Owner
	agg := pkgkafka.Aggregate{ID: owner, Type: AggregateTypeAddressBook, Version: change.Book.Version}
	event, err := pkgkafka.NewEvent(topic, agg, SourceAddressService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithMetadata("operation", change.Operation).
		WithMetadata("address_id", change.AddressID)
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published address event",
		slog.String("topic", topic),
		slog.String("owner", owner),
		slog.Int("version", change.Book.Version),
	)

	return nil
}

// Nop discards every event. Used when event publishing is disabled.
type Nop struct{}

// PublishBookUpdated does nothing.
func (Nop) PublishBookUpdated(context.Context, Change) error { return nil }

// PublishPrimaryChanged does nothing.
func (Nop) PublishPrimaryChanged(context.Context, Change) error { return nil }
