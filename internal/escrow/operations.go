package escrow

import (
	"context"
	"errors"
	"time"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/repository"
)

func (p *program) List(ctx context.Context, signers domain.Signers, req ListRequest) (rec *domain.RentalRecord, err error) {
	logger.EnterMethod("escrow.List", "owner", req.Owner.String(), "asset", req.AssetID.String())
	defer func() { p.exit("escrow.List", err) }()

	if !signers.Has(req.Owner) {
		return nil, domain.ErrMissingSignature
	}
	if req.AssetID.IsZero() {
		return nil, domain.ErrNotAssetOwner
	}
	if req.CollectionID.IsZero() {
		return nil, domain.ErrNotCollectionMember
	}
	// The fee vault must be a different holding than the asset vault.
	if req.FeeUnit.IsZero() || req.FeeUnit == req.AssetID {
		return nil, domain.ErrInvalidFeeUnit
	}
	if _, ok := domain.CheckedAdd(req.RentAmount, req.DepositAmount); !ok {
		return nil, domain.ErrAmountOverflow
	}
	addr, bump, err := p.custodian.RecordAddress(req.AssetID, req.Owner)
	if err != nil {
		return nil, err
	}

	member, err := p.verifier.VerifyCollection(ctx, req.AssetID, req.CollectionID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, domain.ErrNotCollectionMember
	}

	err = p.atomic(ctx, "List", func(tx repository.Tx) error {
		_, err := tx.Rentals().Get(ctx, addr)
		if err == nil {
			return domain.ErrAlreadyListed
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		held, err := tx.Holdings().Get(ctx, req.AssetID, req.Owner)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotAssetOwner
		}
		if err != nil {
			return err
		}
		if held.Amount != 1 {
			return domain.ErrNotAssetOwner
		}

		rec = &domain.RentalRecord{
			Address:       addr,
			Owner:         req.Owner,
			AssetID:       req.AssetID,
			CollectionID:  req.CollectionID,
			FeeUnit:       req.FeeUnit,
			RentAmount:    req.RentAmount,
			DepositAmount: req.DepositAmount,
			Phase:         domain.PhaseListed,
			Bump:          bump,
		}
		if err := tx.Rentals().Create(ctx, rec); err != nil {
			return err
		}
		err = p.custodian.Deposit(ctx, tx, rec, req.AssetID, req.Owner, 1)
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return domain.ErrNotAssetOwner
		}
		if err != nil {
			return err
		}
		_, err = p.custodian.OpenVault(ctx, tx, rec, req.FeeUnit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *program) Rent(ctx context.Context, signers domain.Signers, req RentRequest) (rec *domain.RentalRecord, err error) {
	logger.EnterMethod("escrow.Rent", "record", req.Record.String(), "renter", req.Renter.String())
	defer func() { p.exit("escrow.Rent", err) }()

	if !signers.Has(req.Renter) {
		return nil, domain.ErrMissingSignature
	}
	if !domain.ValidDuration(req.DurationSecs) {
		return nil, domain.ErrInvalidDuration
	}

	err = p.atomic(ctx, "Rent", func(tx repository.Tx) error {
		cur, err := p.loadRecord(ctx, tx, req.Record, domain.ErrNotListed)
		if err != nil {
			return err
		}
		if cur.Phase != domain.PhaseListed {
			return domain.ErrNotListed
		}
		if req.Renter == cur.Owner {
			return domain.ErrInvalidRenter
		}
		total, ok := cur.EscrowAmount()
		if !ok {
			return domain.ErrAmountOverflow
		}
		if err := p.custodian.ExpectBalance(ctx, tx, cur, cur.AssetID, 1); err != nil {
			return err
		}
		if err := p.custodian.ExpectBalance(ctx, tx, cur, cur.FeeUnit, 0); err != nil {
			return err
		}

		funds, err := tx.Holdings().Get(ctx, cur.FeeUnit, req.Renter)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrInsufficientFunds
		}
		if err != nil {
			return err
		}
		if funds.Amount < total {
			return domain.ErrInsufficientFunds
		}
		err = p.custodian.Deposit(ctx, tx, cur, cur.FeeUnit, req.Renter, total)
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return domain.ErrInsufficientFunds
		}
		if err != nil {
			return err
		}

		renter := req.Renter
		duration := req.DurationSecs
		start := p.now().UTC().Truncate(time.Second)
		cur.Renter = &renter
		cur.RentalDuration = &duration
		cur.RentalStartTime = &start
		cur.Phase = domain.PhaseRented
		if err := tx.Rentals().Update(ctx, cur); err != nil {
			return err
		}
		rec = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *program) End(ctx context.Context, signers domain.Signers, req EndRequest) (st *domain.Settlement, err error) {
	logger.EnterMethod("escrow.End", "record", req.Record.String(), "caller", req.Caller.String())
	defer func() { p.exit("escrow.End", err) }()

	err = p.atomic(ctx, "End", func(tx repository.Tx) error {
		rec, err := p.loadRecord(ctx, tx, req.Record, domain.ErrNotRented)
		if err != nil {
			return err
		}
		if rec.Phase != domain.PhaseRented || rec.Renter == nil {
			return domain.ErrNotRented
		}

		path := domain.SettlementExpiry
		if signers.Has(rec.Owner) && signers.Has(*rec.Renter) {
			path = domain.SettlementCooperative
		} else if !rec.IsExpired(p.now()) {
			return domain.ErrRentalNotYetExpired
		}

		st, err = p.settle(ctx, tx, rec, path, rec.RentAmount, rec.DepositAmount, req.Caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (p *program) Delist(ctx context.Context, signers domain.Signers, req DelistRequest) (st *domain.Settlement, err error) {
	logger.EnterMethod("escrow.Delist", "record", req.Record.String())
	defer func() { p.exit("escrow.Delist", err) }()

	err = p.atomic(ctx, "Delist", func(tx repository.Tx) error {
		rec, err := p.loadRecord(ctx, tx, req.Record, domain.ErrNotListed)
		if err != nil {
			return err
		}
		if rec.Phase != domain.PhaseListed {
			return domain.ErrNotListed
		}
		if !signers.Has(rec.Owner) {
			return domain.ErrMissingSignature
		}
		st, err = p.settle(ctx, tx, rec, domain.SettlementDelist, 0, 0, rec.Owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (p *program) EmergencyExit(ctx context.Context, signers domain.Signers, req EmergencyExitRequest) (st *domain.Settlement, err error) {
	logger.EnterMethod("escrow.EmergencyExit", "record", req.Record.String(),
		"renter_payout", req.RenterPayout, "owner_payout", req.OwnerPayout)
	defer func() { p.exit("escrow.EmergencyExit", err) }()

	if p.arbitrator.IsZero() || !signers.Has(p.arbitrator) {
		return nil, domain.ErrMissingSignature
	}

	err = p.atomic(ctx, "EmergencyExit", func(tx repository.Tx) error {
		rec, err := p.loadRecord(ctx, tx, req.Record, domain.ErrNotRented)
		if err != nil {
			return err
		}
		if rec.Phase != domain.PhaseRented || rec.Renter == nil {
			return domain.ErrNotRented
		}
		if !signers.Has(rec.Owner) || !signers.Has(*rec.Renter) {
			return domain.ErrMissingSignature
		}
		total, _ := rec.EscrowAmount()
		payout, ok := domain.CheckedAdd(req.RenterPayout, req.OwnerPayout)
		if !ok || payout != total {
			return domain.ErrInvalidPayout
		}
		st, err = p.settle(ctx, tx, rec, domain.SettlementEmergency, req.OwnerPayout, req.RenterPayout, p.arbitrator)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// settle is the single exit path for a record: it checks both vaults against
// the record, pays out the fee vault, returns the asset and closes the record.
func (p *program) settle(ctx context.Context, tx repository.Tx, rec *domain.RentalRecord, path domain.SettlementPath,
	ownerFee, renterFee uint64, by domain.Address) (*domain.Settlement, error) {

	if err := p.custodian.ExpectBalance(ctx, tx, rec, rec.AssetID, 1); err != nil {
		return nil, err
	}

	var escrowed uint64
	if rec.Phase == domain.PhaseRented {
		total, ok := rec.EscrowAmount()
		if !ok {
			return nil, domain.ErrAmountOverflow
		}
		escrowed = total
	}
	if err := p.custodian.ExpectBalance(ctx, tx, rec, rec.FeeUnit, escrowed); err != nil {
		return nil, err
	}
	if ownerFee+renterFee != escrowed {
		logger.InvariantViolation(ctx, "settlement_split", "record", rec.Address.String(),
			"escrowed", escrowed, "owner", ownerFee, "renter", renterFee)
		return nil, domain.ErrVaultBalanceMismatch
	}

	if rec.Renter != nil {
		if err := p.custodian.Release(ctx, tx, rec, rec.FeeUnit, *rec.Renter, renterFee); err != nil {
			return nil, err
		}
	}
	if err := p.custodian.Release(ctx, tx, rec, rec.FeeUnit, rec.Owner, ownerFee); err != nil {
		return nil, err
	}
	if err := p.custodian.Release(ctx, tx, rec, rec.AssetID, rec.Owner, 1); err != nil {
		return nil, err
	}

	closed := rec.Clone()
	if err := tx.Rentals().Delete(ctx, rec); err != nil {
		return nil, err
	}
	return &domain.Settlement{
		Record:       *closed,
		Path:         path,
		OwnerPayout:  ownerFee,
		RenterPayout: renterFee,
		SettledBy:    by,
		SettledOn:    p.now().UTC(),
	}, nil
}
