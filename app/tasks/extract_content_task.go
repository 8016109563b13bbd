package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ianmintz/pourover/app/database"
	"github.com/ianmintz/pourover/app/feed"
)

const extractionBatchSize = 10

// ExtractContentTask backfills readable article content for entries of
// a feed with extract_content enabled whose items arrived without a
// body.
type ExtractContentTask struct {
	Task
	feedID           int64
	feedRepo         database.FeedRepository
	entryRepo        database.EntryRepository
	contentExtractor *feed.ContentExtractor
	httpClient       *http.Client
	userAgent        string
}

func NewExtractContentTask(feedID int64, feedRepo database.FeedRepository, entryRepo database.EntryRepository,
	contentExtractor *feed.ContentExtractor, httpClient *http.Client, userAgent string) *ExtractContentTask {
	return &ExtractContentTask{
		Task:             NewTask(TaskTypeExtractContent, feedID),
		feedID:           feedID,
		feedRepo:         feedRepo,
		entryRepo:        entryRepo,
		contentExtractor: contentExtractor,
		httpClient:       httpClient,
		userAgent:        userAgent,
	}
}

func (t *ExtractContentTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fd, err := t.feedRepo.GetFeed(t.feedID)
	if err != nil {
		return err
	}
	if fd == nil || !fd.ExtractContent {
		slog.Debug("Content extraction not applicable", "feed_id", t.feedID)
		return nil
	}

	entries, err := t.entryRepo.GetEntriesForExtraction(t.feedID, extractionBatchSize)
	if err != nil {
		return fmt.Errorf("failed to get entries for content extraction: %w", err)
	}

	if len(entries) == 0 {
		slog.Debug("No entries need content extraction", "feed_id", t.feedID)
		return nil
	}

	successCount := 0
	errorCount := 0

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := t.extractContentForEntry(ctx, entry); err != nil {
			slog.Error("Failed to extract content", "entry_id", entry.ID, "url", entry.Link, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed_id", t.feedID,
		"duration", t.GetDuration(),
		"success", successCount,
		"errors", errorCount)

	return nil
}

func (t *ExtractContentTask) extractContentForEntry(ctx context.Context, entry database.Entry) error {
	if entry.Link == "" {
		return fmt.Errorf("entry has no link")
	}

	data, err := t.fetchArticleContent(ctx, entry.Link)
	if err != nil {
		return fmt.Errorf("failed to fetch article content: %w", err)
	}

	extractedContent, err := t.contentExtractor.Run(data)
	if err != nil {
		return fmt.Errorf("failed to extract content: %w", err)
	}

	if err := t.entryRepo.UpdateExtractedContent(entry.ID, extractedContent); err != nil {
		return fmt.Errorf("failed to update extracted content: %w", err)
	}

	slog.Debug("Content extracted successfully", "entry_id", entry.ID, "url", entry.Link, "content_length", len(extractedContent))
	return nil
}

func (t *ExtractContentTask) fetchArticleContent(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
