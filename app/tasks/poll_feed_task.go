package tasks

import (
	"context"
	"log/slog"

	"github.com/ianmintz/pourover/app/database"
	"github.com/ianmintz/pourover/app/feed"
)

// PollFeedTask runs one full update cycle for a feed: fetch, ingest and
// a publish pass. Used by the scheduler ticker, the job endpoints and
// the webhook push fan-out.
type PollFeedTask struct {
	Task
	feedID    int64
	feedRepo  database.FeedRepository
	processor *feed.Processor
}

func NewPollFeedTask(feedID int64, feedRepo database.FeedRepository, processor *feed.Processor) *PollFeedTask {
	return &PollFeedTask{
		Task:      NewTask(TaskTypePollFeed, feedID),
		feedID:    feedID,
		feedRepo:  feedRepo,
		processor: processor,
	}
}

func (t *PollFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fd, err := t.feedRepo.GetFeed(t.feedID)
	if err != nil {
		return err
	}
	if fd == nil {
		slog.Debug("Feed no longer exists, skipping poll", "feed_id", t.feedID)
		return nil
	}
	if fd.Status != database.FeedStatusActive {
		slog.Debug("Feed not active, skipping poll", "feed_id", t.feedID, "status", fd.Status)
		return nil
	}

	_, numNewItems, err := t.processor.UpdateForFeed(ctx, fd, true, false, false, database.OverflowNone)
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed_id", t.feedID,
		"duration", t.GetDuration(),
		"new_items", numNewItems)

	return nil
}
