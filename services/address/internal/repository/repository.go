package repository

import (
	"context"

	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
)

// AddressBookRepository defines the interface for address book persistence.
type AddressBookRepository interface {
	// Get retrieves the book of an owner. Returns apperrors.ErrNotFound when
	// nothing is stored.
	Get(ctx context.Context, owner string) (*domain.AddressBook, error)

	// Save writes the book unconditionally, overwriting any stored value.
	Save(ctx context.Context, book *domain.AddressBook) error

	// SaveIfVersion writes the book only if the stored version equals
	// expectedVersion (0 meaning "nothing stored yet"). On success the book's
	// Version is set to expectedVersion+1. A lost race returns false, nil.
	SaveIfVersion(ctx context.Context, book *domain.AddressBook, expectedVersion int) (bool, error)

	// Delete removes the book of an owner. Deleting a missing book is not an error.
	Delete(ctx context.Context, owner string) error
}
