package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/pkg/tracing"
	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
	"github.com/Uebook/Luna-sub002/services/address/internal/event"
)

const tracerName = "github.com/Uebook/Luna-sub002/services/address"

// MaxSaveAttempts bounds the load/apply/compare-and-swap loop of a mutation.
const MaxSaveAttempts = 3

// ErrNotPersisted is returned together with the resulting book when the
// change was computed but the backend write failed.
var ErrNotPersisted = apperrors.Unavailable("NOT_PERSISTED", "address book change could not be saved", nil)

// AddAddressInput holds the parameters for adding an address.
type AddAddressInput struct {
	Fields    map[string]any `json:"fields"`
	IsPrimary bool           `json:"is_primary"`
}

// UpdateAddressInput holds the parameters for patching an address.
// A nil IsPrimary leaves the flag unchanged.
type UpdateAddressInput struct {
	Fields    map[string]any `json:"fields"`
	IsPrimary *bool          `json:"is_primary"`
}

// EventPublisher publishes address book domain events.
type EventPublisher interface {
	PublishBookUpdated(ctx context.Context, change event.Change) error
	PublishPrimaryChanged(ctx context.Context, change event.Change) error
}

// AddressService implements the business logic for address book operations.
// Every mutation keeps exactly one primary address in a non-empty book.
type AddressService struct {
	store  *Store
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

// NewAddressService creates a new address service.
func NewAddressService(store *Store, events EventPublisher, logger *slog.Logger) *AddressService {
	return &AddressService{
		store:  store,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// mutation computes the next address list. addressID names the address the
// operation acted on.
type mutation func(list []domain.Address) (out []domain.Address, addressID string, repaired bool, err error)

// GetAddresses returns the owner's current book.
func (s *AddressService) GetAddresses(ctx context.Context, owner string) (*domain.AddressBook, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("owner is required")
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "AddressService.GetAddresses",
		attribute.String("address.owner", owner))
	defer span.End()

	return s.store.Load(ctx, owner), nil
}

// AddAddress prepends a new address with a fresh id. It becomes primary when
// requested or when the book was empty.
func (s *AddressService) AddAddress(ctx context.Context, owner string, input AddAddressInput) (*domain.AddressBook, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("owner is required")
	}

	rec := domain.Address{
		ID:        domain.NewID(s.now()),
		IsPrimary: input.IsPrimary,
		Fields:    domain.SanitizeFields(input.Fields),
	}
	if err := domain.ValidateAddress(rec); err != nil {
		return nil, err
	}

	return s.mutate(ctx, owner, event.OperationAdd, func(list []domain.Address) ([]domain.Address, string, bool, error) {
		if len(list) >= domain.MaxAddressesPerBook {
			return nil, "", false, apperrors.InvalidInput(fmt.Sprintf("address book must not contain more than %d addresses", domain.MaxAddressesPerBook))
		}
		return domain.Add(list, rec), rec.ID, false, nil
	})
}

// UpdateAddress merges input into the address with the given id.
func (s *AddressService) UpdateAddress(ctx context.Context, owner, id string, input UpdateAddressInput) (*domain.AddressBook, error) {
	if err := requireOwnerAndID(owner, id); err != nil {
		return nil, err
	}

	patch := domain.Patch{Fields: input.Fields, IsPrimary: input.IsPrimary}
	return s.mutate(ctx, owner, event.OperationUpdate, func(list []domain.Address) ([]domain.Address, string, bool, error) {
		out, repaired, err := domain.Update(list, id, patch)
		if err != nil {
			return nil, "", false, err
		}
		if err := domain.ValidateAddress(out[domain.IndexOf(out, id)]); err != nil {
			return nil, "", false, err
		}
		return out, id, repaired, nil
	})
}

// RemoveAddress deletes the address with the given id.
func (s *AddressService) RemoveAddress(ctx context.Context, owner, id string) (*domain.AddressBook, error) {
	if err := requireOwnerAndID(owner, id); err != nil {
		return nil, err
	}

	return s.mutate(ctx, owner, event.OperationRemove, func(list []domain.Address) ([]domain.Address, string, bool, error) {
		out, repaired, err := domain.Remove(list, id)
		return out, id, repaired, err
	})
}

// SetPrimary makes the address with the given id the only primary address.
func (s *AddressService) SetPrimary(ctx context.Context, owner, id string) (*domain.AddressBook, error) {
	if err := requireOwnerAndID(owner, id); err != nil {
		return nil, err
	}

	return s.mutate(ctx, owner, event.OperationSetPrimary, func(list []domain.Address) ([]domain.Address, string, bool, error) {
		out, err := domain.SetPrimary(list, id)
		return out, id, false, err
	})
}

// ImportAddresses replaces the owner's book with list, typically an exported
// address array. Missing or duplicate ids get fresh ones and the primary flags
// are normalized. The import overwrites whatever is stored.
func (s *AddressService) ImportAddresses(ctx context.Context, owner string, list []domain.Address) (_ *domain.AddressBook, err error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("owner is required")
	}
	if len(list) > domain.MaxAddressesPerBook {
		return nil, apperrors.InvalidInput(fmt.Sprintf("address book must not contain more than %d addresses", domain.MaxAddressesPerBook))
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "AddressService."+event.OperationImport,
		attribute.String("address.owner", owner),
		attribute.Int("address.count", len(list)))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	seen := make(map[string]struct{}, len(list))
	records := make([]domain.Address, 0, len(list))
	for _, a := range list {
		rec := domain.Address{ID: a.ID, IsPrimary: a.IsPrimary, Fields: domain.SanitizeFields(a.Fields)}
		if _, dup := seen[rec.ID]; rec.ID == "" || dup {
			rec.ID = domain.NewID(s.now())
		}
		seen[rec.ID] = struct{}{}
		if err := domain.ValidateAddress(rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	normalized, changed := domain.Normalize(records)
	if changed {
		primaryRepairsTotal.WithLabelValues(event.OperationImport).Inc()
	}

	current := s.store.Load(ctx, owner)
	book := &domain.AddressBook{
		Owner:     owner,
		Addresses: normalized,
		Version:   current.Version,
		UpdatedAt: s.now().UTC(),
	}
	if !s.store.Save(ctx, book) {
		return book, ErrNotPersisted
	}

	s.publish(ctx, event.Change{
		Operation:         event.OperationImport,
		PreviousPrimaryID: current.PrimaryID(),
		Book:              book,
	})

	s.logger.InfoContext(ctx, "address book imported",
		slog.String("owner", owner),
		slog.Int("count", len(book.Addresses)),
		slog.Bool("primary_normalized", changed),
	)

	return book, nil
}

// mutate runs load, apply and compare-and-swap, retrying when another writer
// saved in between. When the backend write fails the computed book is
// returned along with ErrNotPersisted.
func (s *AddressService) mutate(ctx context.Context, owner, operation string, fn mutation) (_ *domain.AddressBook, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "AddressService."+operation,
		attribute.String("address.owner", owner))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	for attempt := 1; attempt <= MaxSaveAttempts; attempt++ {
		current := s.store.Load(ctx, owner)
		expectedVersion := current.Version

		list, addressID, repaired, err := fn(current.Addresses)
		if err != nil {
			return nil, err
		}

		book := &domain.AddressBook{
			Owner:     owner,
			Addresses: list,
			Version:   expectedVersion,
			UpdatedAt: s.now().UTC(),
		}

		ok, err := s.store.SaveIfVersion(ctx, book, expectedVersion)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to persist address book",
				slog.String("owner", owner),
				slog.String("operation", operation),
				slog.String("error", err.Error()),
			)
			return book, fmt.Errorf("%w: %w", ErrNotPersisted, err)
		}
		if !ok {
			casConflictsTotal.WithLabelValues(operation).Inc()
			s.logger.DebugContext(ctx, "address book changed concurrently, retrying",
				slog.String("owner", owner),
				slog.String("operation", operation),
				slog.Int("attempt", attempt),
			)
			continue
		}

		span.SetAttributes(
			attribute.Int("address.count", len(book.Addresses)),
			attribute.Int("address.book_version", book.Version),
		)

		if repaired {
			primaryRepairsTotal.WithLabelValues(operation).Inc()
			s.logger.InfoContext(ctx, "no primary address left, promoted first address",
				slog.String("owner", owner),
				slog.String("operation", operation),
				slog.String("primary_id", book.PrimaryID()),
			)
		}

		s.publish(ctx, event.Change{
			Operation:         operation,
			AddressID:         addressID,
			PreviousPrimaryID: current.PrimaryID(),
			Book:              book,
		})

		s.logger.InfoContext(ctx, "address book updated",
			slog.String("owner", owner),
			slog.String("operation", operation),
			slog.String("address_id", addressID),
			slog.Int("count", len(book.Addresses)),
			slog.Int("version", book.Version),
		)

		return book, nil
	}

	return nil, apperrors.Conflict("address book was modified concurrently, please retry")
}

func (s *AddressService) publish(ctx context.Context, change event.Change) {
	if err := s.events.PublishBookUpdated(ctx, change); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish address.book_updated event",
			slog.String("owner", change.Book.Owner),
			slog.String("error", err.Error()),
		)
	}

	if change.Book.PrimaryID() == change.PreviousPrimaryID {
		return
	}
	if err := s.events.PublishPrimaryChanged(ctx, change); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish address.primary_changed event",
			slog.String("owner", change.Book.Owner),
			slog.String("error", err.Error()),
		)
	}
}

func requireOwnerAndID(owner, id string) error {
	if owner == "" {
		return apperrors.InvalidInput("owner is required")
	}
	if id == "" {
		return apperrors.InvalidInput("address id is required")
	}
	return nil
}
