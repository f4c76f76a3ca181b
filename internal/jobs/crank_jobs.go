package jobs

import (
	"context"
	"errors"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/escrow"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/repository"
)

// CrankReport counts what one crank pass did with the due tasks.
type CrankReport struct {
	Ended   int
	Stale   int
	Early   int
	Invalid int
	Failed  int
}

// CrankDueTasks executes every finalize task whose trigger time has passed
func (jr *JobRunner) CrankDueTasks() {
	jr.runWithRecovery("CrankDueTasks", func(ctx context.Context) error {
		report, err := jr.Crank(ctx)
		if err != nil {
			return err
		}
		logger.Info("Cranked due tasks",
			"ended", report.Ended, "stale", report.Stale, "early", report.Early,
			"invalid", report.Invalid, "failed", report.Failed)
		return nil
	})
}

// Crank processes one batch of due tasks. A task whose rental already ended,
// or moved on to a later cycle, is completed without ending anything.
func (jr *JobRunner) Crank(ctx context.Context) (CrankReport, error) {
	var report CrankReport
	queue := jr.services.Queue
	reward := jr.config.Queue.MinCrankReward

	tasks, err := queue.Due(ctx, jr.now(), jr.config.Cranker.BatchSize)
	if err != nil {
		return report, err
	}

	for _, task := range tasks {
		result := jr.crankTask(ctx, &task)
		switch result {
		case "ended", "stale":
			if err := queue.Complete(ctx, task.SlotID, jr.cranker.Address(), reward); err != nil {
				logger.Error("Failed to complete task", "slot", task.SlotID, "error", err)
				result = "failed"
			}
		case "early":
			// queue clock ran ahead of ours; retry next pass
		default:
			if err := queue.RecordFailure(ctx, task.SlotID, errors.New(result)); err != nil {
				logger.Warn("Failed to record task failure", "slot", task.SlotID, "error", err)
			}
		}

		switch result {
		case "ended":
			report.Ended++
		case "stale":
			report.Stale++
		case "early":
			report.Early++
		case "invalid":
			report.Invalid++
		default:
			report.Failed++
			result = "failed"
		}
		if jr.metrics != nil {
			jr.metrics.CrankedTasks.WithLabelValues(result).Inc()
		}
	}

	if jr.metrics != nil {
		if n, err := queue.Len(ctx); err == nil {
			jr.metrics.QueueDepth.Set(float64(n))
		}
	}
	return report, nil
}

func (jr *JobRunner) crankTask(ctx context.Context, task *domain.ScheduledTask) string {
	req := task.Payload
	if err := jr.services.Bridge.Validate(req); err != nil {
		logger.Warn("Rejected finalize task", "slot", task.SlotID, "record", req.Record.String(), "error", err)
		return "invalid"
	}

	rec, err := jr.services.Rentals.Get(ctx, req.Record)
	if errors.Is(err, repository.ErrNotFound) {
		return "stale"
	}
	if err != nil {
		logger.Error("Failed to load rental for task", "slot", task.SlotID, "error", err)
		return "failed"
	}
	if rec.Phase != domain.PhaseRented || rec.RentalStartTime == nil ||
		rec.RentalStartTime.Unix() != req.RentalStartUnix {
		return "stale"
	}

	_, err = jr.endRental(ctx, escrow.EndRequest{Record: req.Record, Caller: jr.cranker.Address()})
	switch {
	case err == nil:
		logger.Info("Ended rental from task", "slot", task.SlotID, "record", req.Record.String())
		return "ended"
	case errors.Is(err, domain.ErrNotRented):
		return "stale"
	case errors.Is(err, domain.ErrRentalNotYetExpired):
		return "early"
	default:
		logger.Error("Failed to end rental from task", "slot", task.SlotID, "record", req.Record.String(), "error", err)
		return "failed"
	}
}

// PruneStaleTasks drops tasks that have been due for longer than the
// configured stale age. The sweep still ends their rentals.
func (jr *JobRunner) PruneStaleTasks() {
	jr.runWithRecovery("PruneStaleTasks", func(ctx context.Context) error {
		n, err := jr.Prune(ctx)
		if err != nil {
			return err
		}
		logger.Info("Pruned stale tasks", "count", n)
		return nil
	})
}

func (jr *JobRunner) Prune(ctx context.Context) (int, error) {
	cutoff := jr.now().Add(-jr.config.StaleTaskAge())
	n, err := jr.services.Queue.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if jr.metrics != nil {
		jr.metrics.PrunedTasks.Add(float64(n))
	}
	return n, nil
}
