package domain

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	// Precondition errors go back to the caller, who re-checks state and resubmits.
	KindPrecondition
	// Invariant violations abort the operation and indicate a bookkeeping bug.
	KindInvariant
	// Dependency errors come from collaborators outside the protocol.
	KindDependency
)

func (k ErrorKind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindInvariant:
		return "invariant"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

// ProtocolError is a named protocol failure.
type ProtocolError struct {
	Code    string
	Kind    ErrorKind
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

func newError(code string, kind ErrorKind, msg string) *ProtocolError {
	return &ProtocolError{Code: code, Kind: kind, Message: msg}
}

var (
	ErrNotAssetOwner       = newError("NotAssetOwner", KindPrecondition, "caller does not hold exactly one unit of the asset")
	ErrNotCollectionMember = newError("NotCollectionMember", KindPrecondition, "asset is not a verified member of the collection")
	ErrAlreadyListed       = newError("AlreadyListed", KindPrecondition, "asset is already listed by this owner")
	ErrNotListed           = newError("NotListed", KindPrecondition, "rental is not listed")
	ErrNotRented           = newError("NotRented", KindPrecondition, "rental is not rented")
	ErrInsufficientFunds   = newError("InsufficientFunds", KindPrecondition, "insufficient funds")
	ErrInvalidDuration     = newError("InvalidDuration", KindPrecondition, "rental duration must be between one second and 100 years")
	ErrRentalNotYetExpired = newError("RentalNotYetExpired", KindPrecondition, "rental period has not ended")
	ErrInvalidRenter       = newError("InvalidRenter", KindPrecondition, "owner cannot rent their own asset")
	ErrInvalidPayout       = newError("InvalidPayout", KindPrecondition, "payouts must add up to the escrowed amount")
	ErrAmountOverflow      = newError("AmountOverflow", KindPrecondition, "rent plus deposit overflows")
	ErrMissingSignature    = newError("MissingSignature", KindPrecondition, "required signature is missing")
	ErrInvalidFeeUnit      = newError("InvalidFeeUnit", KindPrecondition, "fee unit must be set and differ from the asset")

	ErrVaultBalanceMismatch = newError("VaultBalanceMismatch", KindInvariant, "vault balance does not match the rental record")
	ErrInvalidAuthority     = newError("InvalidAuthority", KindInvariant, "vault authority does not match the rental record derivation")

	ErrDependencyUnavailable = newError("DependencyUnavailable", KindDependency, "dependency unavailable")
	ErrSchedulingFailed      = newError("SchedulingFailed", KindDependency, "end of rental could not be scheduled")
)

// KindOf classifies err; unknown errors are internal.
func KindOf(err error) ErrorKind {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// CodeOf returns the protocol error code of err, or "" for foreign errors.
func CodeOf(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

type collaboratorError struct {
	sentinel     *ProtocolError
	collaborator string
	cause        error
}

func (e *collaboratorError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.sentinel.Message, e.collaborator, e.cause)
}

func (e *collaboratorError) Unwrap() []error {
	return []error{e.sentinel, e.cause}
}

// DependencyUnavailable wraps a collaborator failure so it stays distinguishable
// from protocol-logic errors while keeping the cause inspectable.
func DependencyUnavailable(collaborator string, cause error) error {
	return &collaboratorError{sentinel: ErrDependencyUnavailable, collaborator: collaborator, cause: cause}
}

// SchedulingFailed wraps a task queue submission failure.
func SchedulingFailed(cause error) error {
	return &collaboratorError{sentinel: ErrSchedulingFailed, collaborator: "task queue", cause: cause}
}
