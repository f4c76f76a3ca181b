package custody

import (
	"context"
	"errors"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/repository"
)

// Custodian moves value into and out of record vaults inside a store
// transaction. It never opens its own transaction.
type Custodian struct {
	program domain.Address
}

func NewCustodian(program domain.Address) *Custodian {
	return &Custodian{program: program}
}

func (c *Custodian) Program() domain.Address {
	return c.program
}

// RecordAddress derives the record address and bump for (asset, owner).
func (c *Custodian) RecordAddress(asset, owner domain.Address) (domain.Address, uint8, error) {
	return DeriveRecordAddress(c.program, asset, owner)
}

// HoldingAddress is the standard holding address of unit for owner.
func (c *Custodian) HoldingAddress(unit, owner domain.Address) (domain.Address, error) {
	return HoldingAddress(c.program, unit, owner)
}

// VaultAddresses returns the asset and fee vault addresses of rec.
func (c *Custodian) VaultAddresses(rec *domain.RentalRecord) (asset, fee domain.Address, err error) {
	if asset, err = c.HoldingAddress(rec.AssetID, rec.Address); err != nil {
		return asset, fee, err
	}
	fee, err = c.HoldingAddress(rec.FeeUnit, rec.Address)
	return asset, fee, err
}

// CheckRecord re-derives rec's address from its seeds and stored bump.
func (c *Custodian) CheckRecord(ctx context.Context, rec *domain.RentalRecord) error {
	addr, err := RecordAddressWithBump(c.program, rec.AssetID, rec.Owner, rec.Bump)
	if err != nil || addr != rec.Address {
		logger.InvariantViolation(ctx, "record_derivation",
			"record", rec.Address.String(), "bump", rec.Bump, "error", err)
		return domain.ErrInvalidAuthority
	}
	return nil
}

// CheckAuthority verifies that vault is owned by and debitable only by rec.
func (c *Custodian) CheckAuthority(ctx context.Context, rec *domain.RentalRecord, vault *domain.Holding) error {
	if vault.Owner != rec.Address || vault.Authority != rec.Address {
		logger.InvariantViolation(ctx, "vault_authority",
			"record", rec.Address.String(), "vault", vault.Address.String(),
			"owner", vault.Owner.String(), "authority", vault.Authority.String())
		return domain.ErrInvalidAuthority
	}
	expected, err := c.HoldingAddress(vault.Unit, rec.Address)
	if err != nil || expected != vault.Address {
		logger.InvariantViolation(ctx, "vault_address",
			"record", rec.Address.String(), "vault", vault.Address.String(), "error", err)
		return domain.ErrInvalidAuthority
	}
	return nil
}

// OpenVault provisions the vault of unit for rec if it does not exist yet.
func (c *Custodian) OpenVault(ctx context.Context, tx repository.Tx, rec *domain.RentalRecord, unit domain.Address) (*domain.Holding, error) {
	addr, err := c.HoldingAddress(unit, rec.Address)
	if err != nil {
		return nil, err
	}
	vault, err := tx.Holdings().GetOrCreate(ctx, unit, rec.Address, rec.Address, addr)
	if err != nil {
		return nil, provisioningError(err)
	}
	if err := c.CheckAuthority(ctx, rec, vault); err != nil {
		return nil, err
	}
	return vault, nil
}

// Vault loads an existing vault and checks its authority. A missing vault
// while a record exists is a bookkeeping failure.
func (c *Custodian) Vault(ctx context.Context, tx repository.Tx, rec *domain.RentalRecord, unit domain.Address) (*domain.Holding, error) {
	vault, err := tx.Holdings().Get(ctx, unit, rec.Address)
	if errors.Is(err, repository.ErrNotFound) {
		logger.InvariantViolation(ctx, "vault_missing", "record", rec.Address.String(), "unit", unit.String())
		return nil, domain.ErrVaultBalanceMismatch
	}
	if err != nil {
		return nil, err
	}
	if err := c.CheckAuthority(ctx, rec, vault); err != nil {
		return nil, err
	}
	return vault, nil
}

// EnsureHolding returns the standard holding of unit for owner, creating it
// with owner as authority when absent.
func (c *Custodian) EnsureHolding(ctx context.Context, tx repository.Tx, unit, owner domain.Address) (*domain.Holding, error) {
	addr, err := c.HoldingAddress(unit, owner)
	if err != nil {
		return nil, err
	}
	h, err := tx.Holdings().GetOrCreate(ctx, unit, owner, owner, addr)
	if err != nil {
		return nil, provisioningError(err)
	}
	return h, nil
}

// Deposit moves amount of unit from a party's holding into rec's vault.
// repository.ErrInsufficientBalance is returned unchanged so callers can map
// it to their own precondition.
func (c *Custodian) Deposit(ctx context.Context, tx repository.Tx, rec *domain.RentalRecord, unit, from domain.Address, amount uint64) error {
	if _, err := c.OpenVault(ctx, tx, rec, unit); err != nil {
		return err
	}
	return tx.Holdings().Transfer(ctx, unit, from, rec.Address, amount)
}

// Release moves amount of unit out of rec's vault to a party, signed by the
// record's derived authority.
func (c *Custodian) Release(ctx context.Context, tx repository.Tx, rec *domain.RentalRecord, unit, to domain.Address, amount uint64) error {
	if _, err := c.Vault(ctx, tx, rec, unit); err != nil {
		return err
	}
	if _, err := c.EnsureHolding(ctx, tx, unit, to); err != nil {
		return err
	}
	err := tx.Holdings().Transfer(ctx, unit, rec.Address, to, amount)
	if errors.Is(err, repository.ErrInsufficientBalance) {
		logger.InvariantViolation(ctx, "vault_release",
			"record", rec.Address.String(), "unit", unit.String(), "amount", amount)
		return domain.ErrVaultBalanceMismatch
	}
	return err
}

// ExpectBalance fails with VaultBalanceMismatch unless the vault of unit
// holds exactly want.
func (c *Custodian) ExpectBalance(ctx context.Context, tx repository.Tx, rec *domain.RentalRecord, unit domain.Address, want uint64) error {
	vault, err := c.Vault(ctx, tx, rec, unit)
	if err != nil {
		return err
	}
	if vault.Amount != want {
		logger.InvariantViolation(ctx, "vault_balance",
			"record", rec.Address.String(), "unit", unit.String(), "expected", want, "actual", vault.Amount)
		return domain.ErrVaultBalanceMismatch
	}
	return nil
}

// provisioningError keeps store conflicts visible for retry and reports
// everything else as an unavailable collaborator.
func provisioningError(err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return err
	}
	return domain.DependencyUnavailable("holding provisioning", err)
}
