package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"nft-rental-escrow/internal/custody"
	"nft-rental-escrow/internal/deadline"
	"nft-rental-escrow/internal/escrow"
	"nft-rental-escrow/internal/ledger"
	"nft-rental-escrow/internal/repository"
)

type EscrowHandler struct {
	submitter ledger.Submitter
	program   escrow.Program
	bridge    deadline.Bridge
	custodian *custody.Custodian
}

func NewEscrowHandler(submitter ledger.Submitter, program escrow.Program, bridge deadline.Bridge, custodian *custody.Custodian) *EscrowHandler {
	return &EscrowHandler{submitter: submitter, program: program, bridge: bridge, custodian: custodian}
}

func (h *EscrowHandler) Submit(ctx context.Context, req *ledger.Request) (*ledger.Result, error) {
	if req.Instruction == "" {
		return nil, status.Error(codes.InvalidArgument, "instruction is required")
	}
	return h.submitter.Submit(ctx, *req)
}

func (h *EscrowHandler) GetRental(ctx context.Context, req *GetRentalRequest) (*GetRentalResponse, error) {
	rec, err := h.program.GetRental(ctx, req.Record)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "no rental record at %s", req.Record)
	}
	if err != nil {
		return nil, err
	}
	return &GetRentalResponse{Record: rec}, nil
}

// Reschedule resubmits the end-of-rental task. Used after a rent whose
// scheduling failed.
func (h *EscrowHandler) Reschedule(ctx context.Context, req *RescheduleRequest) (*RescheduleResponse, error) {
	task, err := h.bridge.Reschedule(ctx, req.Record)
	if err != nil {
		return nil, err
	}
	return &RescheduleResponse{Task: task}, nil
}

func (h *EscrowHandler) DeriveRecord(ctx context.Context, req *DeriveRecordRequest) (*DeriveRecordResponse, error) {
	record, bump, err := h.custodian.RecordAddress(req.AssetID, req.Owner)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "derive record address: %v", err)
	}
	assetVault, err := h.custodian.HoldingAddress(req.AssetID, record)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "derive asset vault: %v", err)
	}
	res := &DeriveRecordResponse{Record: record, Bump: bump, AssetVault: assetVault}
	if !req.FeeUnit.IsZero() {
		feeVault, err := h.custodian.HoldingAddress(req.FeeUnit, record)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "derive fee vault: %v", err)
		}
		res.FeeVault = &feeVault
	}
	return res, nil
}
