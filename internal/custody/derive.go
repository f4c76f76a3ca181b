// Package custody owns escrow vaults: holdings whose owner and authority is a
// rental record address. Record addresses are derived from the program id and
// seeds and are never valid ed25519 public keys, so no private key can sign
// for them.
package custody

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/multiformats/go-multihash"

	"nft-rental-escrow/internal/domain"
)

const (
	RecordSeed    = "rental"
	MaxSeedLength = 32
	MaxSeeds      = 16

	derivationMarker = "ProgramDerivedAddress"
)

var (
	ErrSeedTooLong  = errors.New("derivation seed too long")
	ErrOnCurve      = errors.New("derived address is a valid public key")
	ErrNoViableBump = errors.New("no viable bump seed")
	errTooManySeeds = errors.New("too many derivation seeds")
)

// CreateAddress hashes seeds, program id and the derivation marker into an
// address. It fails with ErrOnCurve when the result is a point on ed25519.
func CreateAddress(program domain.Address, seeds ...[]byte) (domain.Address, error) {
	if len(seeds) > MaxSeeds {
		return domain.ZeroAddress, errTooManySeeds
	}
	var buf []byte
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return domain.ZeroAddress, ErrSeedTooLong
		}
		buf = append(buf, seed...)
	}
	buf = append(buf, program[:]...)
	buf = append(buf, derivationMarker...)

	sum, err := multihash.Sum(buf, multihash.SHA2_256, -1)
	if err != nil {
		return domain.ZeroAddress, fmt.Errorf("hash seeds: %w", err)
	}
	decoded, err := multihash.Decode(sum)
	if err != nil {
		return domain.ZeroAddress, fmt.Errorf("decode seed hash: %w", err)
	}
	addr, err := domain.AddressFromBytes(decoded.Digest)
	if err != nil {
		return domain.ZeroAddress, err
	}
	if IsOnCurve(addr) {
		return domain.ZeroAddress, ErrOnCurve
	}
	return addr, nil
}

// FindAddress searches bump seeds from 255 downward and returns the first
// off-curve address together with its bump.
func FindAddress(program domain.Address, seeds ...[]byte) (domain.Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateAddress(program, withBump...)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return domain.ZeroAddress, 0, err
		}
		return addr, uint8(bump), nil
	}
	return domain.ZeroAddress, 0, ErrNoViableBump
}

// IsOnCurve reports whether addr decodes as an ed25519 point.
func IsOnCurve(addr domain.Address) bool {
	_, err := new(edwards25519.Point).SetBytes(addr[:])
	return err == nil
}

// DeriveRecordAddress returns the rental record address for (asset, owner).
func DeriveRecordAddress(program, asset, owner domain.Address) (domain.Address, uint8, error) {
	return FindAddress(program, []byte(RecordSeed), asset[:], owner[:])
}

// RecordAddressWithBump re-derives a record address from its stored bump.
func RecordAddressWithBump(program, asset, owner domain.Address, bump uint8) (domain.Address, error) {
	return CreateAddress(program, []byte(RecordSeed), asset[:], owner[:], []byte{bump})
}

// HoldingAddress is the address of the standard holding of unit for owner.
func HoldingAddress(program, unit, owner domain.Address) (domain.Address, error) {
	addr, _, err := FindAddress(program, owner[:], unit[:])
	return addr, err
}
