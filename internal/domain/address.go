package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/multiformats/go-multibase"
)

// AddressLength is the byte length of identities, asset ids and derived addresses.
const AddressLength = 32

// Address identifies a party (an ed25519 public key), an asset class, or a
// program-derived account. The text form is multibase base58btc.
type Address [AddressLength]byte

var ZeroAddress Address

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) String() string {
	s, err := multibase.Encode(multibase.Base58BTC, a[:])
	if err != nil {
		// Base58BTC is always available in the multibase table.
		panic(err)
	}
	return s
}

// ParseAddress decodes a multibase encoded address.
func ParseAddress(s string) (Address, error) {
	var a Address
	_, data, err := multibase.Decode(s)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(data) != AddressLength {
		return a, fmt.Errorf("invalid address %q: expected %d bytes, got %d", s, AddressLength, len(data))
	}
	copy(a[:], data)
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("invalid address length %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value stores addresses in their text form.
func (a Address) Value() (driver.Value, error) {
	return a.String(), nil
}

func (a *Address) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case nil:
		*a = ZeroAddress
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Address", src)
	}
}

// Signers is the set of identities whose authorization accompanies a request.
type Signers map[Address]struct{}

func NewSigners(addrs ...Address) Signers {
	s := make(Signers, len(addrs))
	for _, a := range addrs {
		s[a] = struct{}{}
	}
	return s
}

func (s Signers) Has(a Address) bool {
	_, ok := s[a]
	return ok
}
