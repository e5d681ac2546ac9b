package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Uebook/Luna-sub002/pkg/database"
	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
)

// AddressBookRepository implements repository.AddressBookRepository on a
// local SQLite file. The schema and CAS statements mirror the PostgreSQL
// backend with TEXT instead of JSONB.
type AddressBookRepository struct {
	db *sql.DB
}

// NewAddressBookRepository creates a new SQLite-backed address book repository.
func NewAddressBookRepository(db *sql.DB) *AddressBookRepository {
	return &AddressBookRepository{db: db}
}

const (
	selectBookQuery = `
		SELECT data, version, updated_at
		FROM address_books
		WHERE owner = ?`

	upsertBookQuery = `
		INSERT INTO address_books (owner, data, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner) DO UPDATE
		SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at`

	insertFirstBookQuery = `
		INSERT INTO address_books (owner, data, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner) DO UPDATE
		SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at
		WHERE address_books.version = 0`

	updateBookIfVersionQuery = `
		UPDATE address_books
		SET data = ?, version = ?, updated_at = ?
		WHERE owner = ? AND version = ?`

	deleteBookQuery = `DELETE FROM address_books WHERE owner = ?`
)

// Get retrieves an address book by owner.
func (r *AddressBookRepository) Get(ctx context.Context, owner string) (_ *domain.AddressBook, err error) {
	ctx, end := database.TraceQuery(ctx, "sqlite", "Get", selectBookQuery)
	defer func() { end(err) }()

	var (
		data      string
		version   int
		updatedAt time.Time
	)
	err = r.db.QueryRowContext(ctx, selectBookQuery, owner).Scan(&data, &version, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("address book", owner)
		}
		return nil, fmt.Errorf("get address book: %w", err)
	}

	book, err := domain.DecodeBook(owner, []byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal address book: %w", err)
	}
	book.Version = version
	book.UpdatedAt = updatedAt.UTC()

	return book, nil
}

// Save upserts an address book, overwriting any stored value.
func (r *AddressBookRepository) Save(ctx context.Context, book *domain.AddressBook) (err error) {
	ctx, end := database.TraceQuery(ctx, "sqlite", "Save", upsertBookQuery)
	defer func() { end(err) }()

	data, err := encodeAddresses(book)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, upsertBookQuery, book.Owner, data, book.Version, book.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("save address book: %w", err)
	}
	return nil
}

// SaveIfVersion writes the book only when the stored version matches. A stored
// row that cannot be decoded counts as version 0.
func (r *AddressBookRepository) SaveIfVersion(ctx context.Context, book *domain.AddressBook, expectedVersion int) (_ bool, err error) {
	ctx, end := database.TraceQuery(ctx, "sqlite", "SaveIfVersion", updateBookIfVersionQuery)
	defer func() { end(err) }()

	data, err := encodeAddresses(book)
	if err != nil {
		return false, err
	}

	next := expectedVersion + 1
	updatedAt := book.UpdatedAt.UTC()
	var res sql.Result
	if expectedVersion == 0 {
		res, err = r.db.ExecContext(ctx, insertFirstBookQuery, book.Owner, data, next, updatedAt)
	} else {
		res, err = r.db.ExecContext(ctx, updateBookIfVersionQuery, data, next, updatedAt, book.Owner, expectedVersion)
	}
	if err != nil {
		return false, fmt.Errorf("save address book if version: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save address book if version: %w", err)
	}
	if n == 0 {
		if expectedVersion == 0 {
			return r.replaceUndecodable(ctx, book, data, updatedAt)
		}
		return false, nil
	}
	book.Version = next
	return true, nil
}

// replaceUndecodable overwrites a stored book that no longer decodes. Such a
// row loads as an empty book at version 0, so the first-write insert above
// never matches it.
func (r *AddressBookRepository) replaceUndecodable(ctx context.Context, book *domain.AddressBook, data string, updatedAt time.Time) (bool, error) {
	var (
		stored  string
		version int
		ignored time.Time
	)
	err := r.db.QueryRowContext(ctx, selectBookQuery, book.Owner).Scan(&stored, &version, &ignored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("save address book if version: %w", err)
	}
	if _, err := domain.DecodeBook(book.Owner, []byte(stored)); err == nil {
		return false, nil
	}

	res, err := r.db.ExecContext(ctx, updateBookIfVersionQuery, data, version+1, updatedAt, book.Owner, version)
	if err != nil {
		return false, fmt.Errorf("replace undecodable address book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("replace undecodable address book: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	book.Version = version + 1
	return true, nil
}

// Delete removes an address book by owner.
func (r *AddressBookRepository) Delete(ctx context.Context, owner string) (err error) {
	ctx, end := database.TraceQuery(ctx, "sqlite", "Delete", deleteBookQuery)
	defer func() { end(err) }()

	if _, err := r.db.ExecContext(ctx, deleteBookQuery, owner); err != nil {
		return fmt.Errorf("delete address book: %w", err)
	}
	return nil
}

func encodeAddresses(book *domain.AddressBook) (string, error) {
	list := book.Addresses
	if list == nil {
		list = []domain.Address{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("marshal addresses: %w", err)
	}
	return string(data), nil
}
