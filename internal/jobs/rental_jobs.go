package jobs

import (
	"context"
	"errors"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/escrow"
	"nft-rental-escrow/internal/logger"
)

// SweepExpiredRentals ends rentals past their expiry whether or not a task
// was ever scheduled for them
func (jr *JobRunner) SweepExpiredRentals() {
	jr.runWithRecovery("SweepExpiredRentals", func(ctx context.Context) error {
		n, err := jr.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Info("Swept expired rentals", "count", n)
		return nil
	})
}

// Sweep ends up to one batch of expired rentals and returns how many it ended.
func (jr *JobRunner) Sweep(ctx context.Context) (int, error) {
	expired, err := jr.services.Rentals.ListExpired(ctx, jr.now(), jr.config.Cranker.BatchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, rec := range expired {
		_, err := jr.endRental(ctx, escrow.EndRequest{Record: rec.Address, Caller: jr.cranker.Address()})
		if err != nil {
			// lost a race with a task or a cooperative end
			if errors.Is(err, domain.ErrNotRented) {
				continue
			}
			logger.Error("Failed to end expired rental", "record", rec.Address.String(), "error", err)
			continue
		}
		logger.Debug("Ended expired rental", "record", rec.Address.String(), "owner", rec.Owner.String())
		count++
	}

	if jr.metrics != nil {
		jr.metrics.SweptRentals.Add(float64(count))
	}
	return count, nil
}
