package domain

import (
	"math"
	"time"
)

type Phase string

const (
	PhaseListed Phase = "LISTED"
	PhaseRented Phase = "RENTED"
)

// MaxEscrowAmount bounds rent + deposit so balances fit signed 64-bit storage.
const MaxEscrowAmount = math.MaxInt64

// MaxRentalDuration is the longest rental in seconds (100 years). Expiry
// arithmetic and stored intervals stay far from overflow below it.
const MaxRentalDuration int64 = 100 * 365 * 24 * 60 * 60

// ValidDuration reports whether secs is an acceptable rental duration.
func ValidDuration(secs int64) bool {
	return secs > 0 && secs <= MaxRentalDuration
}

// RentalRecord is the durable state of one (asset, owner) pair. Its address is
// derived from that pair and is both the key and the vault authority.
type RentalRecord struct {
	Address         Address    `json:"address"`
	Owner           Address    `json:"owner"`
	Renter          *Address   `json:"renter,omitempty"`
	AssetID         Address    `json:"asset_id"`
	CollectionID    Address    `json:"collection_id"`
	FeeUnit         Address    `json:"fee_unit"`
	RentAmount      uint64     `json:"rent_amount"`
	DepositAmount   uint64     `json:"deposit_amount"`
	RentalDuration  *int64     `json:"rental_duration,omitempty"` // seconds
	RentalStartTime *time.Time `json:"rental_start_time,omitempty"`
	Phase           Phase      `json:"phase"`
	Bump            uint8      `json:"bump"`
	Version         int64      `json:"version"`
	CreatedOn       time.Time  `json:"created_on"`
	UpdatedOn       time.Time  `json:"updated_on"`
}

// EscrowAmount is rent + deposit, the fee vault balance while rented.
func (r *RentalRecord) EscrowAmount() (uint64, bool) {
	return CheckedAdd(r.RentAmount, r.DepositAmount)
}

// ExpiresAt reports the end of the current rental cycle. A record with an
// out-of-range duration has no expiry.
func (r *RentalRecord) ExpiresAt() (time.Time, bool) {
	if r.RentalStartTime == nil || r.RentalDuration == nil || !ValidDuration(*r.RentalDuration) {
		return time.Time{}, false
	}
	start := *r.RentalStartTime
	return time.Unix(start.Unix()+*r.RentalDuration, int64(start.Nanosecond())).In(start.Location()), true
}

// IsExpired is true once now >= start + duration.
func (r *RentalRecord) IsExpired(now time.Time) bool {
	end, ok := r.ExpiresAt()
	if !ok {
		return false
	}
	return !now.Before(end)
}

// ResetRental clears the per-cycle fields.
func (r *RentalRecord) ResetRental() {
	r.Renter = nil
	r.RentalDuration = nil
	r.RentalStartTime = nil
	r.Phase = PhaseListed
}

func (r *RentalRecord) Clone() *RentalRecord {
	c := *r
	if r.Renter != nil {
		renter := *r.Renter
		c.Renter = &renter
	}
	if r.RentalDuration != nil {
		d := *r.RentalDuration
		c.RentalDuration = &d
	}
	if r.RentalStartTime != nil {
		ts := *r.RentalStartTime
		c.RentalStartTime = &ts
	}
	return &c
}

func CheckedAdd(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a || sum > MaxEscrowAmount {
		return 0, false
	}
	return sum, true
}

type SettlementPath string

const (
	SettlementExpiry      SettlementPath = "EXPIRY"
	SettlementCooperative SettlementPath = "COOPERATIVE"
	SettlementDelist      SettlementPath = "DELIST"
	SettlementEmergency   SettlementPath = "EMERGENCY_EXIT"
)

// Settlement describes how a closed record's custody was redistributed.
type Settlement struct {
	Record       RentalRecord   `json:"record"`
	Path         SettlementPath `json:"path"`
	OwnerPayout  uint64         `json:"owner_payout"`
	RenterPayout uint64         `json:"renter_payout"`
	SettledBy    Address        `json:"settled_by"`
	SettledOn    time.Time      `json:"settled_on"`
}
