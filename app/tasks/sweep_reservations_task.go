package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/ianmintz/pourover/app/database"
)

// SweepReservationsTask reclaims creating=true placeholder rows whose
// enrichment never completed. Without it an item that yields no usable
// data would pin its guid forever.
type SweepReservationsTask struct {
	Task
	entryRepo database.EntryRepository
	maxAge    time.Duration
}

func NewSweepReservationsTask(entryRepo database.EntryRepository, maxAge time.Duration) *SweepReservationsTask {
	return &SweepReservationsTask{
		Task:      NewTask(TaskTypeSweepReservations, 0),
		entryRepo: entryRepo,
		maxAge:    maxAge,
	}
}

func (t *SweepReservationsTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	cutoff := time.Now().UTC().Add(-t.maxAge)
	deleted, err := t.entryRepo.DeleteStaleReservations(cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		slog.Info("Task completed",
			"type", t.GetType(),
			"duration", t.GetDuration(),
			"reclaimed", deleted)
	}

	return nil
}
