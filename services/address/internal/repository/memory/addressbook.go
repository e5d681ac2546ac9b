package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
)

// AddressBookRepository keeps address books in process memory. Books are
// stored encoded so callers never share maps with the store.
type AddressBookRepository struct {
	mu    sync.Mutex
	books map[string][]byte
}

// NewAddressBookRepository creates an empty in-memory repository.
func NewAddressBookRepository() *AddressBookRepository {
	return &AddressBookRepository{books: make(map[string][]byte)}
}

// Get retrieves an address book by owner.
func (r *AddressBookRepository) Get(_ context.Context, owner string) (*domain.AddressBook, error) {
	r.mu.Lock()
	data, ok := r.books[owner]
	r.mu.Unlock()

	if !ok {
		return nil, apperrors.NotFound("address book", owner)
	}
	book, err := domain.DecodeBook(owner, data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal address book: %w", err)
	}
	return book, nil
}

// Save stores the book, overwriting any previous value.
func (r *AddressBookRepository) Save(_ context.Context, book *domain.AddressBook) error {
	data, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("marshal address book: %w", err)
	}

	r.mu.Lock()
	r.books[book.Owner] = data
	r.mu.Unlock()
	return nil
}

// SaveIfVersion stores the book when the stored version equals expectedVersion.
func (r *AddressBookRepository) SaveIfVersion(_ context.Context, book *domain.AddressBook, expectedVersion int) (bool, error) {
	next := *book
	next.Version = expectedVersion + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return false, fmt.Errorf("marshal address book: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := 0
	if stored, ok := r.books[book.Owner]; ok {
		if b, err := domain.DecodeBook(book.Owner, stored); err == nil {
			current = b.Version
		}
	}
	if current != expectedVersion {
		return false, nil
	}

	r.books[book.Owner] = data
	book.Version = next.Version
	return true, nil
}

// Delete removes an address book by owner.
func (r *AddressBookRepository) Delete(_ context.Context, owner string) error {
	r.mu.Lock()
	delete(r.books, owner)
	r.mu.Unlock()
	return nil
}
