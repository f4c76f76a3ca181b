package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/repository"
)

const rentalColumns = `address, owner, renter, asset_id, collection_id, fee_unit, rent_amount, deposit_amount,
	rental_duration_secs, rental_start_time, phase, bump, version, created_on, updated_on`

type rentalRepository struct {
	db DBTX
}

func NewRentalRepository(db DBTX) repository.RentalRepository {
	return &rentalRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRental(row rowScanner) (*domain.RentalRecord, error) {
	rec := &domain.RentalRecord{}
	var (
		renter   sql.NullString
		duration sql.NullInt64
		start    sql.NullTime
		phase    string
	)
	err := row.Scan(&rec.Address, &rec.Owner, &renter, &rec.AssetID, &rec.CollectionID, &rec.FeeUnit,
		&rec.RentAmount, &rec.DepositAmount, &duration, &start, &phase, &rec.Bump, &rec.Version,
		&rec.CreatedOn, &rec.UpdatedOn)
	if err != nil {
		return nil, err
	}
	rec.Phase = domain.Phase(phase)
	if renter.Valid {
		addr, err := domain.ParseAddress(renter.String)
		if err != nil {
			return nil, errors.Wrap(err, "scan renter")
		}
		rec.Renter = &addr
	}
	if duration.Valid {
		d := duration.Int64
		rec.RentalDuration = &d
	}
	if start.Valid {
		ts := start.Time.UTC()
		rec.RentalStartTime = &ts
	}
	return rec, nil
}

func nullableRental(rec *domain.RentalRecord) (renter, duration, start any) {
	if rec.Renter != nil {
		renter = rec.Renter.String()
	}
	if rec.RentalDuration != nil {
		duration = *rec.RentalDuration
	}
	if rec.RentalStartTime != nil {
		start = rec.RentalStartTime.UTC()
	}
	return renter, duration, start
}

func (r *rentalRepository) Get(ctx context.Context, addr domain.Address) (*domain.RentalRecord, error) {
	query := `SELECT ` + rentalColumns + ` FROM rental_records WHERE address = $1`
	rec, err := scanRental(r.db.QueryRowContext(ctx, query, addr))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get rental record")
	}
	return rec, nil
}

func (r *rentalRepository) Create(ctx context.Context, rec *domain.RentalRecord) error {
	query := `INSERT INTO rental_records (` + rentalColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	          ON CONFLICT (address) DO NOTHING`
	now := time.Now().UTC()
	renter, duration, start := nullableRental(rec)
	res, err := r.db.ExecContext(ctx, query, rec.Address, rec.Owner, renter, rec.AssetID, rec.CollectionID, rec.FeeUnit,
		rec.RentAmount, rec.DepositAmount, duration, start, string(rec.Phase), rec.Bump, int64(1), now, now)
	if err != nil {
		return errors.Wrap(err, "create rental record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "create rental record")
	}
	if n == 0 {
		return repository.ErrConflict
	}
	rec.Version = 1
	rec.CreatedOn = now
	rec.UpdatedOn = now
	return nil
}

func (r *rentalRepository) Update(ctx context.Context, rec *domain.RentalRecord) error {
	query := `UPDATE rental_records
	          SET renter = $1, rent_amount = $2, deposit_amount = $3, rental_duration_secs = $4,
	              rental_start_time = $5, phase = $6, version = version + 1, updated_on = $7
	          WHERE address = $8 AND version = $9`
	now := time.Now().UTC()
	renter, duration, start := nullableRental(rec)
	res, err := r.db.ExecContext(ctx, query, renter, rec.RentAmount, rec.DepositAmount, duration, start,
		string(rec.Phase), now, rec.Address, rec.Version)
	if err != nil {
		return errors.Wrap(err, "update rental record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update rental record")
	}
	if n == 0 {
		return repository.ErrConflict
	}
	rec.Version++
	rec.UpdatedOn = now
	return nil
}

func (r *rentalRepository) Delete(ctx context.Context, rec *domain.RentalRecord) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rental_records WHERE address = $1 AND version = $2`, rec.Address, rec.Version)
	if err != nil {
		return errors.Wrap(err, "delete rental record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete rental record")
	}
	if n == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *rentalRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.RentalRecord, error) {
	query := `SELECT ` + rentalColumns + ` FROM rental_records
	          WHERE phase = 'RENTED'
	            AND rental_start_time + make_interval(secs => rental_duration_secs) <= $1
	          ORDER BY rental_start_time ASC
	          LIMIT $2`
	return r.list(ctx, query, now.UTC(), limit)
}

func (r *rentalRepository) ListByOwner(ctx context.Context, owner domain.Address) ([]domain.RentalRecord, error) {
	query := `SELECT ` + rentalColumns + ` FROM rental_records WHERE owner = $1 ORDER BY created_on DESC`
	return r.list(ctx, query, owner)
}

func (r *rentalRepository) list(ctx context.Context, query string, args ...any) ([]domain.RentalRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list rental records")
	}
	defer rows.Close()

	var records []domain.RentalRecord
	for rows.Next() {
		rec, err := scanRental(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan rental record")
		}
		records = append(records, *rec)
	}
	return records, errors.Wrap(rows.Err(), "list rental records")
}
