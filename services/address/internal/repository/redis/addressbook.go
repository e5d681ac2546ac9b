package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Uebook/Luna-sub002/pkg/database"
	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
)

const keyPrefix = "addresses:"

// AddressBookRepository implements repository.AddressBookRepository using Redis.
// Each book is one JSON value; a zero TTL keeps it forever.
type AddressBookRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAddressBookRepository creates a new Redis-backed address book repository.
func NewAddressBookRepository(client *redis.Client, ttl time.Duration) *AddressBookRepository {
	return &AddressBookRepository{
		client: client,
		ttl:    ttl,
	}
}

// Key returns the Redis key holding an owner's book.
func Key(owner string) string {
	return keyPrefix + owner
}

// Get retrieves an address book by owner from Redis.
func (r *AddressBookRepository) Get(ctx context.Context, owner string) (_ *domain.AddressBook, err error) {
	ctx, end := database.TraceQuery(ctx, "redis", "Get", "GET "+Key(owner))
	defer func() { end(err) }()

	data, err := r.client.Get(ctx, Key(owner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("address book", owner)
		}
		return nil, fmt.Errorf("redis get address book: %w", err)
	}

	book, err := domain.DecodeBook(owner, data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal address book: %w", err)
	}

	return book, nil
}

// Save persists an address book to Redis, overwriting any stored value.
func (r *AddressBookRepository) Save(ctx context.Context, book *domain.AddressBook) (err error) {
	ctx, end := database.TraceQuery(ctx, "redis", "Save", "SET "+Key(book.Owner))
	defer func() { end(err) }()

	data, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("marshal address book: %w", err)
	}

	if err := r.client.Set(ctx, Key(book.Owner), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set address book: %w", err)
	}

	return nil
}

// SaveIfVersion writes the book inside WATCH/MULTI so a concurrent write
// between the version check and the SET aborts the transaction.
// A stored value that cannot be decoded counts as version 0.
func (r *AddressBookRepository) SaveIfVersion(ctx context.Context, book *domain.AddressBook, expectedVersion int) (_ bool, err error) {
	key := Key(book.Owner)
	ctx, end := database.TraceQuery(ctx, "redis", "SaveIfVersion", "WATCH "+key)
	defer func() { end(err) }()

	next := *book
	next.Version = expectedVersion + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return false, fmt.Errorf("marshal address book: %w", err)
	}

	swapped := false
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expectedVersion != 0 {
				return nil
			}
		case err != nil:
			return err
		default:
			if storedVersion(book.Owner, current) != expectedVersion {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}

	if err := r.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return false, nil
		}
		return false, fmt.Errorf("redis save address book if version: %w", err)
	}

	if swapped {
		book.Version = next.Version
	}
	return swapped, nil
}

// Delete removes an address book from Redis by owner.
func (r *AddressBookRepository) Delete(ctx context.Context, owner string) (err error) {
	ctx, end := database.TraceQuery(ctx, "redis", "Delete", "DEL "+Key(owner))
	defer func() { end(err) }()

	if err := r.client.Del(ctx, Key(owner)).Err(); err != nil {
		return fmt.Errorf("redis del address book: %w", err)
	}

	return nil
}

func storedVersion(owner string, data []byte) int {
	book, err := domain.DecodeBook(owner, data)
	if err != nil {
		return 0
	}
	return book.Version
}
