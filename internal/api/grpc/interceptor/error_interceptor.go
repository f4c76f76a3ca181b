package interceptor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/ledger"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/repository"
)

const RequestIDHeader = "x-request-id"

// Unary returns a server interceptor that tags each call with a request id,
// logs it, and converts escrow errors into gRPC status codes.
func Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		requestID := requestIDFrom(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		err = StatusFromError(err)

		code := status.Code(err)
		args := []any{"method", info.FullMethod, "request_id", requestID, "code", code.String(), "duration", time.Since(start)}
		switch code {
		case codes.OK:
			logger.DebugContext(ctx, "gRPC call", args...)
		case codes.Internal, codes.Unknown, codes.Unavailable:
			logger.ErrorContext(ctx, "gRPC call failed", append(args, "error", err)...)
		default:
			logger.InfoContext(ctx, "gRPC call rejected", append(args, "error", err)...)
		}
		return resp, err
	}
}

func requestIDFrom(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return uuid.NewString()
}

// StatusFromError maps err onto a gRPC status. Protocol errors keep their
// code as the message prefix so clients can match on it.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ledger.ErrUnknownInstruction), errors.Is(err, ledger.ErrMalformedParams):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, repository.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	}

	code := domain.CodeOf(err)
	msg := err.Error()
	if code != "" {
		msg = code + ": " + msg
	}

	switch domain.KindOf(err) {
	case domain.KindPrecondition:
		switch {
		case errors.Is(err, domain.ErrMissingSignature):
			return status.Error(codes.PermissionDenied, msg)
		case errors.Is(err, domain.ErrInvalidDuration),
			errors.Is(err, domain.ErrInvalidPayout),
			errors.Is(err, domain.ErrInvalidRenter),
			errors.Is(err, domain.ErrInvalidFeeUnit),
			errors.Is(err, domain.ErrAmountOverflow):
			return status.Error(codes.InvalidArgument, msg)
		}
		return status.Error(codes.FailedPrecondition, msg)
	case domain.KindInvariant:
		return status.Error(codes.Internal, msg)
	case domain.KindDependency:
		return status.Error(codes.Unavailable, msg)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, msg)
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, msg)
	}
	return status.Error(codes.Internal, msg)
}
