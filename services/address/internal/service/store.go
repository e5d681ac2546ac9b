package service

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/services/address/internal/domain"
	"github.com/Uebook/Luna-sub002/services/address/internal/repository"
)

// Store reads and writes whole address books. Reads never fail: a missing,
// unreadable or corrupt book loads as an empty one.
type Store struct {
	repo   repository.AddressBookRepository
	logger *slog.Logger
}

// NewStore creates a store over repo.
func NewStore(repo repository.AddressBookRepository, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger,
	}
}

// Load returns the owner's book, or an empty book at version 0.
func (s *Store) Load(ctx context.Context, owner string) *domain.AddressBook {
	book, err := s.repo.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			storeOperationsTotal.WithLabelValues("load", resultMissing).Inc()
		} else {
			storeOperationsTotal.WithLabelValues("load", resultError).Inc()
			s.logger.WarnContext(ctx, "failed to load address book, using empty book",
				slog.String("owner", owner),
				slog.String("error", err.Error()),
			)
		}
		return domain.NewAddressBook(owner)
	}

	storeOperationsTotal.WithLabelValues("load", resultOK).Inc()
	return book
}

// Save overwrites the stored book and bumps its version. It reports whether
// the write succeeded; on failure the caller keeps only its in-memory copy.
func (s *Store) Save(ctx context.Context, book *domain.AddressBook) bool {
	next := *book
	next.Version++
	if err := s.repo.Save(ctx, &next); err != nil {
		storeOperationsTotal.WithLabelValues("save", resultError).Inc()
		s.logger.ErrorContext(ctx, "failed to save address book",
			slog.String("owner", book.Owner),
			slog.String("error", err.Error()),
		)
		return false
	}

	storeOperationsTotal.WithLabelValues("save", resultOK).Inc()
	book.Version = next.Version
	return true
}

// SaveIfVersion writes the book if nobody else wrote since expectedVersion.
func (s *Store) SaveIfVersion(ctx context.Context, book *domain.AddressBook, expectedVersion int) (bool, error) {
	ok, err := s.repo.SaveIfVersion(ctx, book, expectedVersion)
	switch {
	case err != nil:
		storeOperationsTotal.WithLabelValues("save_if_version", resultError).Inc()
	case !ok:
		storeOperationsTotal.WithLabelValues("save_if_version", resultConflict).Inc()
	default:
		storeOperationsTotal.WithLabelValues("save_if_version", resultOK).Inc()
	}
	return ok, err
}
