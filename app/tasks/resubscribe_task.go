package tasks

import (
	"context"
	"log/slog"

	"github.com/ianmintz/pourover/app/database"
	"github.com/ianmintz/pourover/app/feed"
)

// ResubscribeTask sweeps feeds that discovered a hub but never got
// their subscription confirmed and re-issues the subscribe request.
type ResubscribeTask struct {
	Task
	feedRepo  database.FeedRepository
	processor *feed.Processor
}

func NewResubscribeTask(feedRepo database.FeedRepository, processor *feed.Processor) *ResubscribeTask {
	return &ResubscribeTask{
		Task:      NewTask(TaskTypeResubscribe, 0),
		feedRepo:  feedRepo,
		processor: processor,
	}
}

func (t *ResubscribeTask) Execute(ctx context.Context) error {
	feeds, err := t.feedRepo.GetUnsubscribedHubFeeds()
	if err != nil {
		return err
	}

	successCount := 0
	errorCount := 0
	for i := range feeds {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := t.processor.SubscribeToHub(ctx, &feeds[i]); err != nil {
			slog.Error("Hub resubscribe failed", "feed_id", feeds[i].ID, "hub", feeds[i].Hub, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"duration", t.GetDuration(),
		"success", successCount,
		"errors", errorCount)

	return nil
}
