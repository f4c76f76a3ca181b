package domain

import "time"

// FinalizeRequest is the self-contained end-rental request handed to the task
// queue. A cranker has no other context, so every account is spelled out.
type FinalizeRequest struct {
	Program            Address `json:"program"`
	Record             Address `json:"record"`
	AssetID            Address `json:"asset_id"`
	CollectionID       Address `json:"collection_id"`
	FeeUnit            Address `json:"fee_unit"`
	Owner              Address `json:"owner"`
	Renter             Address `json:"renter"`
	AssetVault         Address `json:"asset_vault"`
	FeeVault           Address `json:"fee_vault"`
	OwnerAssetAcct     Address `json:"owner_asset_account"`
	OwnerFeeAcct       Address `json:"owner_fee_account"`
	RenterFeeAcct      Address `json:"renter_fee_account"`
	RentalStartUnix    int64   `json:"rental_start_unix"`
	RentalDurationSecs int64   `json:"rental_duration_secs"`
}

// TriggerAt is the earliest moment the request may execute.
func (f FinalizeRequest) TriggerAt() time.Time {
	return time.Unix(f.RentalStartUnix+f.RentalDurationSecs, 0).UTC()
}

type ScheduledTask struct {
	SlotID    string          `json:"slot_id"`
	Queue     string          `json:"queue"`
	TriggerAt time.Time       `json:"trigger_at"`
	Payload   FinalizeRequest `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	CreatedOn time.Time       `json:"created_on"`
}
