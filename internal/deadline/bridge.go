// Package deadline hands the end of each rental to the external task queue.
// The queue only promises "not before the trigger", so every submitted task
// carries everything needed to finalize and is re-validated before use.
package deadline

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/multiformats/go-multihash"

	"nft-rental-escrow/internal/custody"
	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/repository"
	"nft-rental-escrow/internal/taskqueue"
)

type Bridge interface {
	// ScheduleEnd submits the finalize task for a freshly rented record. A
	// failure is returned as domain.ErrSchedulingFailed; the rental stands.
	ScheduleEnd(ctx context.Context, rec *domain.RentalRecord) (*domain.ScheduledTask, error)
	// Reschedule loads the record and schedules it again. Safe to repeat.
	Reschedule(ctx context.Context, record domain.Address) (*domain.ScheduledTask, error)
	// Validate re-derives every address in req and rejects mismatches.
	Validate(req domain.FinalizeRequest) error
}

type bridge struct {
	custodian *custody.Custodian
	queue     taskqueue.Queue
	rentals   repository.RentalRepository
	timeout   time.Duration
	now       func() time.Time
}

// NewBridge builds a bridge submitting to queue. A nil now uses time.Now.
func NewBridge(custodian *custody.Custodian, queue taskqueue.Queue, rentals repository.RentalRepository, timeout time.Duration, now func() time.Time) Bridge {
	if now == nil {
		now = time.Now
	}
	return &bridge{custodian: custodian, queue: queue, rentals: rentals, timeout: timeout, now: now}
}

// SlotID is deterministic in (queue, record, start) so a resubmission of the
// same rental cycle lands on the same slot.
func SlotID(queue string, record domain.Address, start time.Time) (string, error) {
	buf := make([]byte, 0, len(queue)+domain.AddressLength+8)
	buf = append(buf, queue...)
	buf = append(buf, record[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(start.Unix()))

	sum, err := multihash.Sum(buf, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	decoded, err := multihash.Decode(sum)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(decoded.Digest[:16]), nil
}

// BuildFinalizeRequest spells out every account the end of rec touches.
func BuildFinalizeRequest(c *custody.Custodian, rec *domain.RentalRecord) (domain.FinalizeRequest, error) {
	if rec.Phase != domain.PhaseRented || rec.Renter == nil || rec.RentalStartTime == nil || rec.RentalDuration == nil {
		return domain.FinalizeRequest{}, domain.ErrNotRented
	}
	req := domain.FinalizeRequest{
		Program:            c.Program(),
		Record:             rec.Address,
		AssetID:            rec.AssetID,
		CollectionID:       rec.CollectionID,
		FeeUnit:            rec.FeeUnit,
		Owner:              rec.Owner,
		Renter:             *rec.Renter,
		RentalStartUnix:    rec.RentalStartTime.Unix(),
		RentalDurationSecs: *rec.RentalDuration,
	}
	var err error
	if req.AssetVault, req.FeeVault, err = c.VaultAddresses(rec); err != nil {
		return req, err
	}
	if req.OwnerAssetAcct, err = c.HoldingAddress(rec.AssetID, rec.Owner); err != nil {
		return req, err
	}
	if req.OwnerFeeAcct, err = c.HoldingAddress(rec.FeeUnit, rec.Owner); err != nil {
		return req, err
	}
	if req.RenterFeeAcct, err = c.HoldingAddress(rec.FeeUnit, *rec.Renter); err != nil {
		return req, err
	}
	return req, nil
}

func (b *bridge) Validate(req domain.FinalizeRequest) error {
	if req.Program != b.custodian.Program() {
		return domain.ErrInvalidAuthority
	}
	record, _, err := b.custodian.RecordAddress(req.AssetID, req.Owner)
	if err != nil || record != req.Record {
		return domain.ErrInvalidAuthority
	}
	rec := &domain.RentalRecord{Address: req.Record, AssetID: req.AssetID, FeeUnit: req.FeeUnit}
	assetVault, feeVault, err := b.custodian.VaultAddresses(rec)
	if err != nil || assetVault != req.AssetVault || feeVault != req.FeeVault {
		return domain.ErrInvalidAuthority
	}

	accounts := []struct {
		unit, owner, got domain.Address
	}{
		{req.AssetID, req.Owner, req.OwnerAssetAcct},
		{req.FeeUnit, req.Owner, req.OwnerFeeAcct},
		{req.FeeUnit, req.Renter, req.RenterFeeAcct},
	}
	for _, a := range accounts {
		want, err := b.custodian.HoldingAddress(a.unit, a.owner)
		if err != nil || want != a.got {
			return domain.ErrInvalidAuthority
		}
	}
	if !domain.ValidDuration(req.RentalDurationSecs) {
		return domain.ErrInvalidDuration
	}
	return nil
}

func (b *bridge) ScheduleEnd(ctx context.Context, rec *domain.RentalRecord) (*domain.ScheduledTask, error) {
	req, err := BuildFinalizeRequest(b.custodian, rec)
	if err != nil {
		return nil, err
	}
	slot, err := SlotID(b.queue.Name(), rec.Address, *rec.RentalStartTime)
	if err != nil {
		return nil, domain.SchedulingFailed(err)
	}
	task := &domain.ScheduledTask{
		SlotID:    slot,
		Queue:     b.queue.Name(),
		TriggerAt: req.TriggerAt(),
		Payload:   req,
		CreatedOn: b.now().UTC(),
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	created, err := b.queue.Submit(ctx, task)
	if err != nil {
		logger.WarnContext(ctx, "End of rental not scheduled; unilateral end remains available",
			"record", rec.Address.String(), "slot", slot, "error", err)
		return nil, domain.SchedulingFailed(err)
	}
	logger.InfoContext(ctx, "End of rental scheduled",
		"record", rec.Address.String(), "slot", slot, "trigger_at", task.TriggerAt, "created", created)
	return task, nil
}

func (b *bridge) Reschedule(ctx context.Context, record domain.Address) (*domain.ScheduledTask, error) {
	rec, err := b.rentals.Get(ctx, record)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ErrNotRented
	}
	if err != nil {
		return nil, domain.DependencyUnavailable("rental store", err)
	}
	return b.ScheduleEnd(ctx, rec)
}
