package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nft-rental-escrow/internal/config"
	"nft-rental-escrow/internal/deadline"
	"nft-rental-escrow/internal/ledger"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/metrics"
	"nft-rental-escrow/internal/repository"
	"nft-rental-escrow/internal/security"
	"nft-rental-escrow/internal/taskqueue"
)

// JobRunner is the permissionless executor. It cranks due finalize tasks,
// sweeps expired rentals the queue missed, and prunes stale tasks.
type JobRunner struct {
	services *Services
	cranker  *security.Signer
	metrics  *metrics.Metrics
	config   *config.Config
	now      func() time.Time
}

// Services holds all dependencies needed by jobs
type Services struct {
	Ledger  ledger.Submitter
	Bridge  deadline.Bridge
	Queue   taskqueue.Queue
	Rentals repository.RentalRepository
}

// NewJobRunner creates a new job runner acting as cranker
func NewJobRunner(services *Services, cranker *security.Signer, m *metrics.Metrics, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		cranker:  cranker,
		metrics:  m,
		config:   cfg,
		now:      time.Now,
	}
}

// Config returns the runner configuration
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) {
	runID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "run_id", runID, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName, "run_id", runID)
	if err := jobFunc(context.Background()); err != nil {
		logger.Error("Job failed", "job", jobName, "run_id", runID, "error", err)
		return
	}
	logger.Info("Job completed", "job", jobName, "run_id", runID)
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.CrankDueTasks()
	jr.SweepExpiredRentals()
	jr.PruneStaleTasks()
}

// Run runs a single job by name. It reports false for an unknown name.
func (jr *JobRunner) Run(name string) bool {
	switch name {
	case "crank":
		jr.CrankDueTasks()
	case "sweep":
		jr.SweepExpiredRentals()
	case "prune":
		jr.PruneStaleTasks()
	case "all":
		jr.RunAll()
	default:
		return false
	}
	return true
}

// endRental submits a cranker-signed End for record.
func (jr *JobRunner) endRental(ctx context.Context, params any) (*ledger.Result, error) {
	req, err := ledger.Sign(ledger.InstructionEnd, params, attestationTTL, jr.cranker)
	if err != nil {
		return nil, err
	}
	return jr.services.Ledger.Submit(ctx, req)
}

const attestationTTL = time.Minute
