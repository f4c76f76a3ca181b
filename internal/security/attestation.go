package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/multiformats/go-multibase"

	"nft-rental-escrow/internal/domain"
)

var (
	ErrInvalidAttestation = errors.New("invalid attestation")
	ErrExpiredAttestation = errors.New("attestation has expired")
	ErrDigestMismatch     = errors.New("attestation signs a different instruction")
)

const attestationIssuer = "rental-escrow"

// AttestationClaims binds a signer identity to one instruction digest.
type AttestationClaims struct {
	Digest string `json:"dig"`
	jwt.RegisteredClaims
}

// Signer holds an identity's ed25519 key. The identity address is the public key.
type Signer struct {
	key  ed25519.PrivateKey
	addr domain.Address
}

func NewSigner(key ed25519.PrivateKey) *Signer {
	s := &Signer{key: key}
	copy(s.addr[:], key.Public().(ed25519.PublicKey))
	return s
}

func GenerateSigner() (*Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewSigner(key), nil
}

// LoadSigner reads a multibase encoded 32 byte seed from path.
func LoadSigner(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	_, seed, err := multibase.Decode(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key file: expected %d byte seed, got %d", ed25519.SeedSize, len(seed))
	}
	return NewSigner(ed25519.NewKeyFromSeed(seed)), nil
}

// Save writes the signer's seed to path, readable by the owner only.
func (s *Signer) Save(path string) error {
	encoded, err := multibase.Encode(multibase.Base58BTC, s.key.Seed())
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(encoded+"\n"), 0o600)
}

func (s *Signer) Address() domain.Address {
	return s.addr
}

// Attest signs digest as this identity. The token expires after ttl.
func (s *Signer) Attest(digest []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AttestationClaims{
		Digest: hex.EncodeToString(digest),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.addr.String(),
			Issuer:    attestationIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return s.SignClaims(claims)
}

// SignClaims signs arbitrary claims with the identity key.
func (s *Signer) SignClaims(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.key)
}

// VerifyAttestation checks that token was signed by the key of its subject
// over digest, and returns that subject.
func VerifyAttestation(tokenString string, digest []byte, maxAge time.Duration) (domain.Address, error) {
	claims := &AttestationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, ErrInvalidAttestation
		}
		signer, err := domain.ParseAddress(claims.Subject)
		if err != nil {
			return nil, ErrInvalidAttestation
		}
		return ed25519.PublicKey(signer[:]), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(attestationIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.ZeroAddress, ErrExpiredAttestation
		}
		return domain.ZeroAddress, ErrInvalidAttestation
	}
	if !token.Valid {
		return domain.ZeroAddress, ErrInvalidAttestation
	}
	if maxAge > 0 && (claims.IssuedAt == nil || time.Since(claims.IssuedAt.Time) > maxAge) {
		return domain.ZeroAddress, ErrExpiredAttestation
	}
	if claims.Digest != hex.EncodeToString(digest) {
		return domain.ZeroAddress, ErrDigestMismatch
	}
	signer, err := domain.ParseAddress(claims.Subject)
	if err != nil {
		return domain.ZeroAddress, ErrInvalidAttestation
	}
	return signer, nil
}
