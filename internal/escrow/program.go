// Package escrow is the rental state machine. Every operation runs as one
// store transaction that mutates the rental record and moves vault balances
// together, or not at all.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nft-rental-escrow/internal/custody"
	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/provenance"
	"nft-rental-escrow/internal/repository"
)

type ListRequest struct {
	Owner         domain.Address `json:"owner"`
	AssetID       domain.Address `json:"asset_id"`
	CollectionID  domain.Address `json:"collection_id"`
	FeeUnit       domain.Address `json:"fee_unit"`
	RentAmount    uint64         `json:"rent_amount"`
	DepositAmount uint64         `json:"deposit_amount"`
}

type RentRequest struct {
	Record       domain.Address `json:"record"`
	Renter       domain.Address `json:"renter"`
	DurationSecs int64          `json:"duration_secs"`
}

// EndRequest needs no signature once the rental expired. Before that it
// needs both owner and renter signatures.
type EndRequest struct {
	Record domain.Address `json:"record"`
	Caller domain.Address `json:"caller"`
}

type DelistRequest struct {
	Record domain.Address `json:"record"`
}

type EmergencyExitRequest struct {
	Record       domain.Address `json:"record"`
	RenterPayout uint64         `json:"renter_payout"`
	OwnerPayout  uint64         `json:"owner_payout"`
}

type Program interface {
	List(ctx context.Context, signers domain.Signers, req ListRequest) (*domain.RentalRecord, error)
	Rent(ctx context.Context, signers domain.Signers, req RentRequest) (*domain.RentalRecord, error)
	End(ctx context.Context, signers domain.Signers, req EndRequest) (*domain.Settlement, error)
	Delist(ctx context.Context, signers domain.Signers, req DelistRequest) (*domain.Settlement, error)
	EmergencyExit(ctx context.Context, signers domain.Signers, req EmergencyExitRequest) (*domain.Settlement, error)
	GetRental(ctx context.Context, record domain.Address) (*domain.RentalRecord, error)
}

type Options struct {
	// Arbitrator co-signs emergency exits. Zero disables them.
	Arbitrator         domain.Address
	MaxConflictRetries int
	Now                func() time.Time
}

type program struct {
	store     repository.Store
	custodian *custody.Custodian
	verifier  provenance.Verifier

	arbitrator  domain.Address
	maxAttempts int
	now         func() time.Time
}

func NewProgram(store repository.Store, custodian *custody.Custodian, verifier provenance.Verifier, opts Options) Program {
	p := &program{
		store:       store,
		custodian:   custodian,
		verifier:    verifier,
		arbitrator:  opts.Arbitrator,
		maxAttempts: opts.MaxConflictRetries,
		now:         opts.Now,
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = 3
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// atomic runs fn in a store transaction and re-runs it against fresh state
// when it loses a version race.
func (p *program) atomic(ctx context.Context, op string, fn func(tx repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err = p.store.Atomic(ctx, fn)
		if !errors.Is(err, repository.ErrConflict) {
			return err
		}
		logger.DebugContext(ctx, "Version conflict, retrying", "operation", op, "attempt", attempt)
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, p.maxAttempts, err)
}

func (p *program) exit(method string, err error, args ...any) {
	if err != nil {
		logger.ExitMethodWithError(method, err, domain.KindOf(err) == domain.KindPrecondition, args...)
		return
	}
	logger.ExitMethod(method, args...)
}

// loadRecord returns the record at addr, reporting absence as missing.
func (p *program) loadRecord(ctx context.Context, tx repository.Tx, addr domain.Address, missing error) (*domain.RentalRecord, error) {
	rec, err := tx.Rentals().Get(ctx, addr)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, missing
	}
	if err != nil {
		return nil, err
	}
	if err := p.custodian.CheckRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *program) GetRental(ctx context.Context, record domain.Address) (*domain.RentalRecord, error) {
	return p.store.Rentals().Get(ctx, record)
}
