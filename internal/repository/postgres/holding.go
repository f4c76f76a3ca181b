package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/repository"
)

const holdingColumns = `address, unit, owner, authority, amount, version, created_on, updated_on`

type holdingRepository struct {
	db DBTX
}

func NewHoldingRepository(db DBTX) repository.HoldingRepository {
	return &holdingRepository{db: db}
}

func scanHolding(row rowScanner) (*domain.Holding, error) {
	h := &domain.Holding{}
	err := row.Scan(&h.Address, &h.Unit, &h.Owner, &h.Authority, &h.Amount, &h.Version, &h.CreatedOn, &h.UpdatedOn)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (r *holdingRepository) Get(ctx context.Context, unit, owner domain.Address) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE unit = $1 AND owner = $2`
	h, err := scanHolding(r.db.QueryRowContext(ctx, query, unit, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get holding")
	}
	return h, nil
}

func (r *holdingRepository) GetOrCreate(ctx context.Context, unit, owner, authority, addr domain.Address) (*domain.Holding, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `INSERT INTO holdings (address, unit, owner, authority, amount, version, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, 0, 1, $5, $5)
	          ON CONFLICT (unit, owner) DO NOTHING`, addr, unit, owner, authority, now)
	if err != nil {
		return nil, errors.Wrap(err, "open holding")
	}
	return r.Get(ctx, unit, owner)
}

func (r *holdingRepository) Transfer(ctx context.Context, unit, from, to domain.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE holdings SET amount = amount - $1, version = version + 1, updated_on = $2
	          WHERE unit = $3 AND owner = $4 AND amount >= $1`, amount, now, unit, from)
	if err != nil {
		return errors.Wrap(err, "debit holding")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "debit holding")
	}
	if n == 0 {
		if _, err := r.Get(ctx, unit, from); err != nil {
			return err
		}
		return repository.ErrInsufficientBalance
	}
	return r.credit(ctx, unit, to, amount, now)
}

func (r *holdingRepository) Credit(ctx context.Context, unit, owner domain.Address, amount uint64) error {
	return r.credit(ctx, unit, owner, amount, time.Now().UTC())
}

func (r *holdingRepository) credit(ctx context.Context, unit, owner domain.Address, amount uint64, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE holdings SET amount = amount + $1, version = version + 1, updated_on = $2
	          WHERE unit = $3 AND owner = $4`, amount, now, unit, owner)
	if err != nil {
		return errors.Wrap(err, "credit holding")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "credit holding")
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
