package grpc

import "nft-rental-escrow/internal/domain"

type GetRentalRequest struct {
	Record domain.Address `json:"record"`
}

type GetRentalResponse struct {
	Record *domain.RentalRecord `json:"record"`
}

type RescheduleRequest struct {
	Record domain.Address `json:"record"`
}

type RescheduleResponse struct {
	Task *domain.ScheduledTask `json:"task"`
}

// DeriveRecordRequest asks for the addresses a List would create. FeeUnit is
// optional; without it no fee vault is derived.
type DeriveRecordRequest struct {
	AssetID domain.Address `json:"asset_id"`
	Owner   domain.Address `json:"owner"`
	FeeUnit domain.Address `json:"fee_unit,omitempty"`
}

type DeriveRecordResponse struct {
	Record     domain.Address  `json:"record"`
	Bump       uint8           `json:"bump"`
	AssetVault domain.Address  `json:"asset_vault"`
	FeeVault   *domain.Address `json:"fee_vault,omitempty"`
}
