package interceptor_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"nft-rental-escrow/internal/api/grpc/interceptor"
	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/ledger"
	"nft-rental-escrow/internal/repository"
)

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"Not listed", domain.ErrNotListed, codes.FailedPrecondition},
		{"Not yet expired", domain.ErrRentalNotYetExpired, codes.FailedPrecondition},
		{"Missing signature", fmt.Errorf("%w: attestation 0", domain.ErrMissingSignature), codes.PermissionDenied},
		{"Invalid duration", domain.ErrInvalidDuration, codes.InvalidArgument},
		{"Invalid payout", domain.ErrInvalidPayout, codes.InvalidArgument},
		{"Invalid fee unit", domain.ErrInvalidFeeUnit, codes.InvalidArgument},
		{"Vault mismatch", domain.ErrVaultBalanceMismatch, codes.Internal},
		{"Scheduling failed", domain.SchedulingFailed(errors.New("down")), codes.Unavailable},
		{"Registry down", domain.DependencyUnavailable("provenance registry", errors.New("down")), codes.Unavailable},
		{"Conflict", fmt.Errorf("Rent: gave up: %w", repository.ErrConflict), codes.Aborted},
		{"Not found", repository.ErrNotFound, codes.NotFound},
		{"Unknown instruction", ledger.ErrUnknownInstruction, codes.InvalidArgument},
		{"Deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"Status passes through", status.Error(codes.Unauthenticated, "no"), codes.Unauthenticated},
		{"Anything else", errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(interceptor.StatusFromError(tt.err)))
		})
	}

	assert.NoError(t, interceptor.StatusFromError(nil))
}

func TestStatusFromError_KeepsProtocolCode(t *testing.T) {
	st, ok := status.FromError(interceptor.StatusFromError(domain.ErrNotRented))
	assert.True(t, ok)
	assert.Contains(t, st.Message(), "NotRented: ")
}

func TestUnary(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/rentalescrow.v1.EscrowService/Submit"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, domain.ErrAlreadyListed
	}

	_, err := interceptor.Unary()(context.Background(), nil, info, handler)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}
