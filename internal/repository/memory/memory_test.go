package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/repository"
	"nft-rental-escrow/internal/repository/memory"
)

func addr(b byte) domain.Address {
	var a domain.Address
	a[0] = b
	return a
}

func TestStore_StaleReadConflicts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rec := &domain.RentalRecord{Address: addr(1), Owner: addr(2), Phase: domain.PhaseListed}
	require.NoError(t, store.Rentals().Create(ctx, rec))

	err := store.Atomic(ctx, func(tx repository.Tx) error {
		seen, err := tx.Rentals().Get(ctx, addr(1))
		require.NoError(t, err)

		// A concurrent writer commits in between.
		other := seen.Clone()
		other.RentAmount = 10
		require.NoError(t, store.Rentals().Update(ctx, other))

		seen.RentAmount = 20
		return tx.Rentals().Update(ctx, seen)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := store.Rentals().Get(ctx, addr(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.RentAmount)
	assert.Equal(t, int64(2), got.Version)
}

func TestStore_RecreatedRecordStillConflicts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rec := &domain.RentalRecord{Address: addr(1), Owner: addr(2), Phase: domain.PhaseListed}
	require.NoError(t, store.Rentals().Create(ctx, rec))

	err := store.Atomic(ctx, func(tx repository.Tx) error {
		seen, err := tx.Rentals().Get(ctx, addr(1))
		require.NoError(t, err)

		require.NoError(t, store.Rentals().Delete(ctx, seen.Clone()))
		require.NoError(t, store.Rentals().Create(ctx, &domain.RentalRecord{Address: addr(1), Owner: addr(2), Phase: domain.PhaseListed}))

		return tx.Rentals().Update(ctx, seen)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestStore_FailedTransactionWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	unit := addr(9)

	_, err := store.Holdings().GetOrCreate(ctx, unit, addr(2), addr(2), addr(20))
	require.NoError(t, err)
	_, err = store.Holdings().GetOrCreate(ctx, unit, addr(3), addr(3), addr(30))
	require.NoError(t, err)
	require.NoError(t, store.Holdings().Credit(ctx, unit, addr(2), 5))

	err = store.Atomic(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.Holdings().Transfer(ctx, unit, addr(2), addr(3), 5))
		return tx.Holdings().Transfer(ctx, unit, addr(3), addr(2), 6)
	})
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)

	h, err := store.Holdings().Get(ctx, unit, addr(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), h.Amount)
	h, err = store.Holdings().Get(ctx, unit, addr(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), h.Amount)
}

func TestStore_ListExpiredAndByOwner(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	listed := &domain.RentalRecord{Address: addr(1), Owner: addr(5), Phase: domain.PhaseListed}
	require.NoError(t, store.Rentals().Create(ctx, listed))

	owned, err := store.Rentals().ListByOwner(ctx, addr(5))
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	expired, err := store.Rentals().ListExpired(ctx, listed.CreatedOn, 10)
	require.NoError(t, err)
	assert.Empty(t, expired)
}
