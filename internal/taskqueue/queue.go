// Package taskqueue is the client side of the external permissionless task
// queue. A task becomes runnable at its trigger time, may run any time after,
// and may be dropped once stale.
package taskqueue

import (
	"context"
	"errors"
	"time"

	"nft-rental-escrow/internal/domain"
)

var (
	ErrQueueFull    = errors.New("task queue is at capacity")
	ErrTaskNotFound = errors.New("task not found")
)

type Queue interface {
	Name() string
	// Submit stores task unless a task with the same slot already exists.
	// It reports whether a new task was created.
	Submit(ctx context.Context, task *domain.ScheduledTask) (bool, error)
	Get(ctx context.Context, slotID string) (*domain.ScheduledTask, error)
	// Due returns up to limit tasks whose trigger time is not after now.
	Due(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledTask, error)
	// Complete removes the task and credits reward to the cranker.
	Complete(ctx context.Context, slotID string, cranker domain.Address, reward uint64) error
	RecordFailure(ctx context.Context, slotID string, cause error) error
	// Prune drops tasks whose trigger time is before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Len(ctx context.Context) (int64, error)
	Rewards(ctx context.Context, cranker domain.Address) (uint64, error)
}
