package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
)

func TestAddressBookRepository_RoundTrip(t *testing.T) {
	repo := NewAddressBookRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "u-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	book := domain.NewAddressBook("u-1")
	book.Addresses = domain.Add(nil, domain.Address{ID: "a", Fields: map[string]any{"city": "A"}})
	require.NoError(t, repo.Save(ctx, book))

	got, err := repo.Get(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, got.Addresses, 1)

	got.Addresses[0].Fields["city"] = "mutated"
	again, err := repo.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "A", again.Addresses[0].Fields["city"])

	require.NoError(t, repo.Delete(ctx, "u-1"))
	_, err = repo.Get(ctx, "u-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAddressBookRepository_SaveIfVersion(t *testing.T) {
	repo := NewAddressBookRepository()
	ctx := context.Background()

	book := domain.NewAddressBook("u-1")
	ok, err := repo.SaveIfVersion(ctx, book, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.SaveIfVersion(ctx, book, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, book.Version)

	ok, err = repo.SaveIfVersion(ctx, book, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddressBookRepository_ConcurrentCASHasOneWinnerPerVersion(t *testing.T) {
	repo := NewAddressBookRepository()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.SaveIfVersion(ctx, domain.NewAddressBook("u-1"), 0)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
