package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/repository"
	"nft-rental-escrow/internal/repository/postgres"
)

func addr(b byte) domain.Address {
	var a domain.Address
	for i := range a {
		a[i] = b
	}
	return a
}

var rentalCols = []string{"address", "owner", "renter", "asset_id", "collection_id", "fee_unit", "rent_amount",
	"deposit_amount", "rental_duration_secs", "rental_start_time", "phase", "bump", "version", "created_on", "updated_on"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestRentalRepository_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewRentalRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Rented", func(t *testing.T) {
		rows := sqlmock.NewRows(rentalCols).
			AddRow(addr(1).String(), addr(2).String(), addr(3).String(), addr(4).String(), addr(5).String(), addr(6).String(),
				int64(5), int64(4), int64(300), now, "RENTED", int64(254), int64(2), now, now)
		mock.ExpectQuery(`SELECT (.+) FROM rental_records WHERE address = \$1`).
			WithArgs(addr(1)).
			WillReturnRows(rows)

		rec, err := repo.Get(ctx, addr(1))
		require.NoError(t, err)
		assert.Equal(t, addr(2), rec.Owner)
		require.NotNil(t, rec.Renter)
		assert.Equal(t, addr(3), *rec.Renter)
		assert.Equal(t, uint64(5), rec.RentAmount)
		assert.Equal(t, uint64(4), rec.DepositAmount)
		assert.Equal(t, int64(300), *rec.RentalDuration)
		assert.Equal(t, domain.PhaseRented, rec.Phase)
		assert.Equal(t, uint8(254), rec.Bump)
		assert.Equal(t, int64(2), rec.Version)
	})

	t.Run("Listed", func(t *testing.T) {
		rows := sqlmock.NewRows(rentalCols).
			AddRow(addr(1).String(), addr(2).String(), nil, addr(4).String(), addr(5).String(), addr(6).String(),
				int64(5), int64(4), nil, nil, "LISTED", int64(255), int64(1), now, now)
		mock.ExpectQuery(`SELECT (.+) FROM rental_records WHERE address = \$1`).
			WithArgs(addr(1)).
			WillReturnRows(rows)

		rec, err := repo.Get(ctx, addr(1))
		require.NoError(t, err)
		assert.Nil(t, rec.Renter)
		assert.Nil(t, rec.RentalDuration)
		assert.Nil(t, rec.RentalStartTime)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM rental_records`).
			WithArgs(addr(9)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(ctx, addr(9))
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_Update(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewRentalRepository(db)
	ctx := context.Background()

	start := time.Unix(1_700_000_000, 0).UTC()
	duration := int64(300)
	renter := addr(3)
	rec := &domain.RentalRecord{
		Address:         addr(1),
		Owner:           addr(2),
		Renter:          &renter,
		RentAmount:      5,
		DepositAmount:   4,
		RentalDuration:  &duration,
		RentalStartTime: &start,
		Phase:           domain.PhaseRented,
		Version:         1,
	}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE rental_records`).
			WithArgs(renter.String(), uint64(5), uint64(4), duration, start, "RENTED", sqlmock.AnyArg(), addr(1), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(ctx, rec))
		assert.Equal(t, int64(2), rec.Version)
	})

	t.Run("Stale version", func(t *testing.T) {
		mock.ExpectExec(`UPDATE rental_records`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(ctx, rec)
		assert.ErrorIs(t, err, repository.ErrConflict)
		assert.Equal(t, int64(2), rec.Version)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_CreateAndDelete(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewRentalRepository(db)
	ctx := context.Background()

	rec := &domain.RentalRecord{Address: addr(1), Owner: addr(2), Phase: domain.PhaseListed, Bump: 255}

	mock.ExpectExec(`INSERT INTO rental_records`).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	mock.ExpectExec(`INSERT INTO rental_records`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Create(ctx, rec), repository.ErrConflict)

	mock.ExpectExec(`DELETE FROM rental_records WHERE address = \$1 AND version = \$2`).
		WithArgs(addr(1), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(ctx, rec), repository.ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHoldingRepository_Transfer(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewHoldingRepository(db)
	ctx := context.Background()
	unit, from, to := addr(7), addr(2), addr(1)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE holdings SET amount = amount - \$1`).
			WithArgs(uint64(9), sqlmock.AnyArg(), unit, from).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE holdings SET amount = amount \+ \$1`).
			WithArgs(uint64(9), sqlmock.AnyArg(), unit, to).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Transfer(ctx, unit, from, to, 9))
	})

	t.Run("Insufficient", func(t *testing.T) {
		now := time.Now()
		mock.ExpectExec(`UPDATE holdings SET amount = amount - \$1`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT (.+) FROM holdings WHERE unit = \$1 AND owner = \$2`).
			WithArgs(unit, from).
			WillReturnRows(sqlmock.NewRows([]string{"address", "unit", "owner", "authority", "amount", "version", "created_on", "updated_on"}).
				AddRow(addr(8).String(), unit.String(), from.String(), from.String(), int64(3), int64(1), now, now))

		assert.ErrorIs(t, repo.Transfer(ctx, unit, from, to, 9), repository.ErrInsufficientBalance)
	})

	t.Run("Zero amount is a no-op", func(t *testing.T) {
		assert.NoError(t, repo.Transfer(ctx, unit, from, to, 0))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Atomic(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		db, mock := newMock(t)
		store := postgres.NewStore(db)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM rental_records`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.Atomic(ctx, func(tx repository.Tx) error {
			return tx.Rentals().Delete(ctx, &domain.RentalRecord{Address: addr(1), Version: 3})
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback on error", func(t *testing.T) {
		db, mock := newMock(t)
		store := postgres.NewStore(db)

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := store.Atomic(ctx, func(tx repository.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Serialization failure is a conflict", func(t *testing.T) {
		db, mock := newMock(t)
		store := postgres.NewStore(db)

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})

		err := store.Atomic(ctx, func(tx repository.Tx) error { return nil })
		assert.ErrorIs(t, err, repository.ErrConflict)
	})
}

func TestMetadataRepository(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewMetadataRepository(db)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO asset_metadata`).
		WithArgs(addr(4), addr(5), true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpsertAssetMetadata(ctx, &domain.AssetMetadata{AssetID: addr(4), CollectionID: addr(5), Verified: true}))

	mock.ExpectQuery(`SELECT asset_id, collection_id, verified, updated_on FROM asset_metadata`).
		WithArgs(addr(4)).
		WillReturnRows(sqlmock.NewRows([]string{"asset_id", "collection_id", "verified", "updated_on"}).
			AddRow(addr(4).String(), addr(5).String(), true, time.Now()))
	md, err := repo.GetAssetMetadata(ctx, addr(4))
	require.NoError(t, err)
	assert.Equal(t, addr(5), md.CollectionID)
	assert.True(t, md.Verified)

	assert.NoError(t, mock.ExpectationsWereMet())
}
