package postgres

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/repository"
)

//go:embed schema.sql
var schema string

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db       *sql.DB
	rentals  repository.RentalRepository
	holdings repository.HoldingRepository
	metadata repository.MetadataRepository
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		rentals:  NewRentalRepository(db),
		holdings: NewHoldingRepository(db),
		metadata: NewMetadataRepository(db),
	}
}

func (s *Store) Rentals() repository.RentalRepository   { return s.rentals }
func (s *Store) Holdings() repository.HoldingRepository { return s.holdings }
func (s *Store) Metadata() repository.MetadataRepository {
	return s.metadata
}

type txStore struct {
	rentals  repository.RentalRepository
	holdings repository.HoldingRepository
}

func (t *txStore) Rentals() repository.RentalRepository   { return t.rentals }
func (t *txStore) Holdings() repository.HoldingRepository { return t.holdings }

// Atomic runs fn inside one database transaction. Serialization failures
// reported by Postgres surface as repository.ErrConflict.
func (s *Store) Atomic(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	view := &txStore{
		rentals:  NewRentalRepository(tx),
		holdings: NewHoldingRepository(tx),
	}
	if err := fn(view); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Warn("Rollback failed", "error", rbErr)
		}
		return translate(err)
	}
	if err := tx.Commit(); err != nil {
		return translate(errors.Wrap(err, "commit transaction"))
	}
	return nil
}

// Migrate creates the tables the store needs if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	logger.DatabaseCall("Migrate", "schema.sql")
	_, err := db.ExecContext(ctx, schema)
	logger.DatabaseResult("Migrate", 0, err)
	return errors.Wrap(err, "apply schema")
}

// translate maps Postgres error codes that mean "someone else won" onto
// repository.ErrConflict.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return errors.Wrap(repository.ErrConflict, pqErr.Message)
		}
	}
	return err
}
