package deadline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-rental-escrow/internal/custody"
	"nft-rental-escrow/internal/deadline"
	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/repository/memory"
	"nft-rental-escrow/internal/taskqueue"
)

func rentedRecord(t *testing.T, c *custody.Custodian) *domain.RentalRecord {
	t.Helper()
	asset, owner, renter := domain.Address{2}, domain.Address{3}, domain.Address{4}
	recAddr, bump, err := c.RecordAddress(asset, owner)
	require.NoError(t, err)
	start := time.Unix(1_700_000_000, 0).UTC()
	dur := int64(300)
	return &domain.RentalRecord{
		Address:         recAddr,
		Owner:           owner,
		Renter:          &renter,
		AssetID:         asset,
		CollectionID:    domain.Address{5},
		FeeUnit:         domain.Address{6},
		RentAmount:      5,
		DepositAmount:   4,
		RentalDuration:  &dur,
		RentalStartTime: &start,
		Phase:           domain.PhaseRented,
		Bump:            bump,
	}
}

func newRedisQueue(t *testing.T) (*taskqueue.RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return taskqueue.NewRedisQueue(rdb, "end_rental", 100), mr
}

func TestSlotID(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	a, err := deadline.SlotID("end_rental", domain.Address{1}, start)
	require.NoError(t, err)
	b, err := deadline.SlotID("end_rental", domain.Address{1}, start)
	require.NoError(t, err)
	c, err := deadline.SlotID("end_rental", domain.Address{1}, start.Add(time.Second))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestBridge_ScheduleEnd(t *testing.T) {
	ctx := context.Background()
	c := custody.NewCustodian(domain.Address{1})
	rec := rentedRecord(t, c)

	t.Run("Scheduling twice yields one task", func(t *testing.T) {
		q, _ := newRedisQueue(t)
		b := deadline.NewBridge(c, q, memory.NewStore().Rentals(), time.Second, nil)

		first, err := b.ScheduleEnd(ctx, rec)
		require.NoError(t, err)
		second, err := b.ScheduleEnd(ctx, rec)
		require.NoError(t, err)

		assert.Equal(t, first.SlotID, second.SlotID)
		assert.Equal(t, time.Unix(1_700_000_300, 0).UTC(), first.TriggerAt)
		n, err := q.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		stored, err := q.Get(ctx, first.SlotID)
		require.NoError(t, err)
		assert.NoError(t, b.Validate(stored.Payload))
	})

	t.Run("Task is stamped with the bridge clock", func(t *testing.T) {
		q, _ := newRedisQueue(t)
		at := time.Unix(1_700_000_042, 0).UTC()
		b := deadline.NewBridge(c, q, memory.NewStore().Rentals(), time.Second, func() time.Time { return at })

		task, err := b.ScheduleEnd(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, at, task.CreatedOn)

		stored, err := q.Get(ctx, task.SlotID)
		require.NoError(t, err)
		assert.True(t, at.Equal(stored.CreatedOn))
	})

	t.Run("Queue outage is a scheduling failure", func(t *testing.T) {
		q, mr := newRedisQueue(t)
		mr.Close()
		b := deadline.NewBridge(c, q, memory.NewStore().Rentals(), 200*time.Millisecond, nil)

		_, err := b.ScheduleEnd(ctx, rec)
		assert.ErrorIs(t, err, domain.ErrSchedulingFailed)
		assert.Equal(t, domain.KindDependency, domain.KindOf(err))
	})

	t.Run("Listed record is not schedulable", func(t *testing.T) {
		q, _ := newRedisQueue(t)
		b := deadline.NewBridge(c, q, memory.NewStore().Rentals(), time.Second, nil)
		listed := rec.Clone()
		listed.ResetRental()

		_, err := b.ScheduleEnd(ctx, listed)
		assert.ErrorIs(t, err, domain.ErrNotRented)
	})
}

func TestBridge_Validate(t *testing.T) {
	c := custody.NewCustodian(domain.Address{1})
	q, _ := newRedisQueue(t)
	b := deadline.NewBridge(c, q, memory.NewStore().Rentals(), time.Second, nil)
	req, err := deadline.BuildFinalizeRequest(c, rentedRecord(t, c))
	require.NoError(t, err)
	require.NoError(t, b.Validate(req))

	tamper := map[string]func(r *domain.FinalizeRequest){
		"program":     func(r *domain.FinalizeRequest) { r.Program = domain.Address{9} },
		"record":      func(r *domain.FinalizeRequest) { r.Record = domain.Address{9} },
		"fee vault":   func(r *domain.FinalizeRequest) { r.FeeVault = domain.Address{9} },
		"renter acct": func(r *domain.FinalizeRequest) { r.RenterFeeAcct = domain.Address{9} },
		"owner":       func(r *domain.FinalizeRequest) { r.Owner = domain.Address{9} },
		"asset vault": func(r *domain.FinalizeRequest) { r.AssetVault = r.FeeVault },
		"owner asset": func(r *domain.FinalizeRequest) { r.OwnerAssetAcct = r.OwnerFeeAcct },
	}
	t.Run("duration out of range", func(t *testing.T) {
		for _, secs := range []int64{0, -1, domain.MaxRentalDuration + 1, 1 << 62} {
			bad := req
			bad.RentalDurationSecs = secs
			assert.ErrorIs(t, b.Validate(bad), domain.ErrInvalidDuration, "duration %d", secs)
		}
	})

	for name, mutate := range tamper {
		t.Run(name, func(t *testing.T) {
			bad := req
			mutate(&bad)
			assert.ErrorIs(t, b.Validate(bad), domain.ErrInvalidAuthority)
		})
	}
}

func TestBridge_Reschedule(t *testing.T) {
	ctx := context.Background()
	c := custody.NewCustodian(domain.Address{1})
	store := memory.NewStore()
	q, _ := newRedisQueue(t)
	b := deadline.NewBridge(c, q, store.Rentals(), time.Second, nil)

	_, err := b.Reschedule(ctx, domain.Address{7})
	assert.True(t, errors.Is(err, domain.ErrNotRented))

	rec := rentedRecord(t, c)
	require.NoError(t, store.Rentals().Create(ctx, rec))
	task, err := b.Reschedule(ctx, rec.Address)
	require.NoError(t, err)
	assert.Equal(t, rec.Address, task.Payload.Record)
}
