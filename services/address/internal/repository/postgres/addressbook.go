package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Uebook/Luna-sub002/pkg/database"
	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
)

// DBTX is the subset of *pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AddressBookRepository implements repository.AddressBookRepository using PostgreSQL.
// The address list is stored as a JSONB array in address_books.data.
type AddressBookRepository struct {
	db DBTX
}

// NewAddressBookRepository creates a new PostgreSQL-backed address book repository.
func NewAddressBookRepository(db DBTX) *AddressBookRepository {
	return &AddressBookRepository{db: db}
}

const (
	selectBookQuery = `
		SELECT data, version, updated_at
		FROM address_books
		WHERE owner = $1`

	upsertBookQuery = `
		INSERT INTO address_books (owner, data, version, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner) DO UPDATE
		SET data = EXCLUDED.data, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`

	insertFirstBookQuery = `
		INSERT INTO address_books (owner, data, version, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner) DO UPDATE
		SET data = EXCLUDED.data, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at
		WHERE address_books.version = 0`

	updateBookIfVersionQuery = `
		UPDATE address_books
		SET data = $2, version = $3, updated_at = $4
		WHERE owner = $1 AND version = $5`

	deleteBookQuery = `DELETE FROM address_books WHERE owner = $1`
)

// Get retrieves an address book by owner.
func (r *AddressBookRepository) Get(ctx context.Context, owner string) (_ *domain.AddressBook, err error) {
	ctx, end := database.TraceQuery(ctx, "postgresql", "Get", selectBookQuery)
	defer func() { end(err) }()

	var (
		data      []byte
		version   int
		updatedAt time.Time
	)
	err = r.db.QueryRow(ctx, selectBookQuery, owner).Scan(&data, &version, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("address book", owner)
		}
		return nil, fmt.Errorf("get address book: %w", err)
	}

	book, err := domain.DecodeBook(owner, data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal address book: %w", err)
	}
	book.Version = version
	book.UpdatedAt = updatedAt

	return book, nil
}

// Save upserts an address book, overwriting any stored value.
func (r *AddressBookRepository) Save(ctx context.Context, book *domain.AddressBook) (err error) {
	ctx, end := database.TraceQuery(ctx, "postgresql", "Save", upsertBookQuery)
	defer func() { end(err) }()

	data, err := encodeAddresses(book)
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, upsertBookQuery, book.Owner, data, book.Version, book.UpdatedAt); err != nil {
		return fmt.Errorf("save address book: %w", err)
	}
	return nil
}

// SaveIfVersion writes the book only when the stored version matches. For an
// expected version of 0 the row may be missing or hold an undecodable value.
func (r *AddressBookRepository) SaveIfVersion(ctx context.Context, book *domain.AddressBook, expectedVersion int) (_ bool, err error) {
	query := updateBookIfVersionQuery
	if expectedVersion == 0 {
		query = insertFirstBookQuery
	}
	ctx, end := database.TraceQuery(ctx, "postgresql", "SaveIfVersion", query)
	defer func() { end(err) }()

	data, err := encodeAddresses(book)
	if err != nil {
		return false, err
	}

	next := expectedVersion + 1
	var tag pgconn.CommandTag
	if expectedVersion == 0 {
		tag, err = r.db.Exec(ctx, query, book.Owner, data, next, book.UpdatedAt)
	} else {
		tag, err = r.db.Exec(ctx, query, book.Owner, data, next, book.UpdatedAt, expectedVersion)
	}
	if err != nil {
		return false, fmt.Errorf("save address book if version: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if expectedVersion == 0 {
			return r.replaceUndecodable(ctx, book, data)
		}
		return false, nil
	}
	book.Version = next
	return true, nil
}

// replaceUndecodable overwrites a stored book that is valid JSONB but no
// longer decodes as an address list. Such a row loads as an empty book at
// version 0, so the first-write insert never matches it.
func (r *AddressBookRepository) replaceUndecodable(ctx context.Context, book *domain.AddressBook, data []byte) (bool, error) {
	var (
		stored  []byte
		version int
		ignored time.Time
	)
	err := r.db.QueryRow(ctx, selectBookQuery, book.Owner).Scan(&stored, &version, &ignored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("save address book if version: %w", err)
	}
	if _, err := domain.DecodeBook(book.Owner, stored); err == nil {
		return false, nil
	}

	tag, err := r.db.Exec(ctx, updateBookIfVersionQuery, book.Owner, data, version+1, book.UpdatedAt, version)
	if err != nil {
		return false, fmt.Errorf("replace undecodable address book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	book.Version = version + 1
	return true, nil
}

// Delete removes an address book by owner.
func (r *AddressBookRepository) Delete(ctx context.Context, owner string) (err error) {
	ctx, end := database.TraceQuery(ctx, "postgresql", "Delete", deleteBookQuery)
	defer func() { end(err) }()

	if _, err := r.db.Exec(ctx, deleteBookQuery, owner); err != nil {
		return fmt.Errorf("delete address book: %w", err)
	}
	return nil
}

func encodeAddresses(book *domain.AddressBook) ([]byte, error) {
	list := book.Addresses
	if list == nil {
		list = []domain.Address{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshal addresses: %w", err)
	}
	return data, nil
}
