package repository

import (
	"context"
	"errors"
	"time"

	"nft-rental-escrow/internal/domain"
)

var (
	// ErrNotFound is returned when a record or holding does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a compare-and-swap on a record version
	// loses against a concurrent writer. The whole transaction is void.
	ErrConflict = errors.New("version conflict")
	// ErrInsufficientBalance is returned when a debit exceeds a holding's amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type RentalRepository interface {
	Get(ctx context.Context, addr domain.Address) (*domain.RentalRecord, error)
	// Create inserts a new record; ErrConflict if one already exists.
	Create(ctx context.Context, rec *domain.RentalRecord) error
	// Update writes rec if the stored version still equals rec.Version and
	// increments rec.Version on success.
	Update(ctx context.Context, rec *domain.RentalRecord) error
	// Delete closes rec under the same version check as Update.
	Delete(ctx context.Context, rec *domain.RentalRecord) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.RentalRecord, error)
	ListByOwner(ctx context.Context, owner domain.Address) ([]domain.RentalRecord, error)
}

type HoldingRepository interface {
	Get(ctx context.Context, unit, owner domain.Address) (*domain.Holding, error)
	// GetOrCreate returns the standard holding for (unit, owner), opening an
	// empty one with the given authority if none exists.
	GetOrCreate(ctx context.Context, unit, owner, authority, addr domain.Address) (*domain.Holding, error)
	// Transfer moves amount of unit between two existing holdings.
	Transfer(ctx context.Context, unit, from, to domain.Address, amount uint64) error
	// Credit adds amount to an existing holding. Used by the minting collaborator.
	Credit(ctx context.Context, unit, owner domain.Address, amount uint64) error
}

type MetadataRepository interface {
	GetAssetMetadata(ctx context.Context, asset domain.Address) (*domain.AssetMetadata, error)
	UpsertAssetMetadata(ctx context.Context, md *domain.AssetMetadata) error
}

// Tx is the view of the store inside one atomic unit.
type Tx interface {
	Rentals() RentalRepository
	Holdings() HoldingRepository
}

// Store is the ledger: every protocol operation runs inside Atomic, which
// either applies all of fn's writes or none of them.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Rentals() RentalRepository
	Holdings() HoldingRepository
	Metadata() MetadataRepository
}
