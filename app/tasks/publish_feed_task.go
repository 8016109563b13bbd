package tasks

import (
	"context"
	"log/slog"

	"github.com/ianmintz/pourover/app/database"
	"github.com/ianmintz/pourover/app/feed"
)

// PublishFeedTask runs a publish-only pass for a feed without fetching.
type PublishFeedTask struct {
	Task
	feedID    int64
	feedRepo  database.FeedRepository
	publisher *feed.Publisher
}

func NewPublishFeedTask(feedID int64, feedRepo database.FeedRepository, publisher *feed.Publisher) *PublishFeedTask {
	return &PublishFeedTask{
		Task:      NewTask(TaskTypePublishFeed, feedID),
		feedID:    feedID,
		feedRepo:  feedRepo,
		publisher: publisher,
	}
}

func (t *PublishFeedTask) Execute(ctx context.Context) error {
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
		slog.Debug("Feed no longer exists, skipping publish", "feed_id", t.feedID)
		return nil
	}

	posted, err := t.publisher.PublishForFeed(ctx, fd, false)
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed_id", t.feedID,
		"duration", t.GetDuration(),
		"posted", posted)

	return nil
}
