// Package events announces rental lifecycle changes after they commit.
// Publishing is best effort: a lost event never undoes a committed operation.
package events

import (
	"context"
	"time"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/logger"
)

type Type string

const (
	RentalListed     Type = "rental.listed"
	RentalRented     Type = "rental.rented"
	RentalEnded      Type = "rental.ended"
	RentalDelisted   Type = "rental.delisted"
	RentalExited     Type = "rental.emergency_exit"
	ScheduleFailed   Type = "rental.schedule_failed"
	EndTaskScheduled Type = "rental.end_scheduled"
)

type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Record     domain.Address `json:"record"`
	OccurredOn time.Time      `json:"occurred_on"`
	Data       any            `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type logPublisher struct{}

// NewLogPublisher writes events to the application log. Used when no broker
// is configured.
func NewLogPublisher() Publisher {
	return logPublisher{}
}

func (logPublisher) Publish(ctx context.Context, ev Event) error {
	logger.InfoContext(ctx, "Rental event", "id", ev.ID, "type", string(ev.Type), "record", ev.Record.String())
	return nil
}

func (logPublisher) Close() error { return nil }
