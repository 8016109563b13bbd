package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ianmintz/pourover/app/database"
)

const publishTimeout = 30 * time.Second

// ErrOrphanedFeed marks a feed found without its owning user. The feed
// and its entries have already been removed when this is returned.
var ErrOrphanedFeed = errors.New("feed has no owning user")

// Publisher posts entries to the external API and applies the
// per-status-code state transitions. PublishForFeed enforces the
// rolling-window budget.
type Publisher struct {
	users     database.UserRepository
	feeds     database.FeedRepository
	entries   database.EntryRepository
	formatter *Formatter
	client    *http.Client
	postURL   string

	defaultPeriod int
	defaultMax    int
}

func NewPublisher(users database.UserRepository, feeds database.FeedRepository,
	entries database.EntryRepository, postURL string, defaultPeriod, defaultMax int) *Publisher {
	return &Publisher{
		users:         users,
		feeds:         feeds,
		entries:       entries,
		formatter:     NewFormatter(),
		client:        &http.Client{Timeout: publishTimeout},
		postURL:       postURL,
		defaultPeriod: defaultPeriod,
		defaultMax:    defaultMax,
	}
}

// PublishForFeed posts up to the remaining window budget, oldest first.
// skipQueue is the manual trigger: it always posts at least one entry
// even when the window is exhausted.
func (p *Publisher) PublishForFeed(ctx context.Context, fd *database.Feed, skipQueue bool) (int, error) {
	period := p.defaultPeriod
	maxStories := p.defaultMax
	if fd.ManualControl {
		period = fd.SchedulePeriod
		maxStories = fd.MaxStoriesPerPeriod
	}

	since := time.Now().UTC().Add(-time.Duration(period) * time.Minute)
	publishedInWindow, err := p.entries.CountPublishedSince(fd.ID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count published entries: %w", err)
	}

	budget := maxStories - publishedInWindow
	if budget <= 0 && !skipQueue {
		return 0, nil
	}
	if skipQueue && budget <= 0 {
		budget = 1
	}

	eligible, err := p.entries.GetUnpublished(fd.ID, budget)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unpublished entries: %w", err)
	}

	// Strictly sequential per feed so no two posts race the window count
	posted := 0
	for i := range eligible {
		if err := p.PublishEntry(ctx, &eligible[i], fd); err != nil {
			return posted, err
		}
		posted++
	}

	return posted, nil
}

// PublishEntry posts one entry. Network failures leave the entry
// untouched for a later cycle; the status-code transitions are:
// 401 feed needs reauth, 200 published, 400 terminal malformed
// overflow, anything else an error with no mutation.
func (p *Publisher) PublishEntry(ctx context.Context, entry *database.Entry, fd *database.Feed) error {
	user, err := p.users.GetUser(fd.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve feed owner: %w", err)
	}
	if user == nil {
		slog.Warn("Found feed without owner, deleting", "feed_id", fd.ID, "feed_url", fd.FeedURL)
		if _, err := p.entries.DeleteForFeed(fd.ID); err != nil {
			return fmt.Errorf("failed to delete orphaned entries: %w", err)
		}
		if err := p.feeds.DeleteFeed(fd.ID); err != nil {
			return fmt.Errorf("failed to delete orphaned feed: %w", err)
		}
		return ErrOrphanedFeed
	}

	post := p.formatter.Run(entry, fd)
	payload, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("failed to encode post: %w", err)
	}

	postCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(postCtx, http.MethodPost, p.postURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+user.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		// Transient; entry stays unpublished for the next cycle
		slog.Error("Failed to post entry", "entry_id", entry.ID, "feed_id", fd.ID, "error", err)
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		slog.Info("Feed authorization has been pulled", "feed_id", fd.ID, "feed_url", fd.FeedURL)
		if err := p.feeds.SetFeedStatus(fd.ID, database.FeedStatusNeedsReauth); err != nil {
			return fmt.Errorf("failed to flag feed for reauthorization: %w", err)
		}
		return nil

	case http.StatusOK:
		var result struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &result); err == nil && result.Data.ID != "" {
			slog.Info("Published entry", "entry_id", entry.ID, "post_id", result.Data.ID)
		} else {
			slog.Info("Published entry", "entry_id", entry.ID)
		}
		now := time.Now().UTC()
		if err := p.entries.MarkPublished(entry.ID, now); err != nil {
			return fmt.Errorf("failed to mark entry published: %w", err)
		}
		entry.Published = true
		entry.PublishedAt = &now
		return nil

	case http.StatusBadRequest:
		slog.Warn("Post rejected as malformed", "entry_id", entry.ID, "response", string(body))
		if err := p.entries.MarkOverflow(entry.ID, database.OverflowMalformed); err != nil {
			return fmt.Errorf("failed to mark entry malformed: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unexpected status %d posting entry: %s", resp.StatusCode, string(body))
	}
}

// DrainQueue gives up on the feed's current backlog: every unpublished
// entry is marked published+overflow so a sudden batch never floods the
// external API.
func (p *Publisher) DrainQueue(fd *database.Feed) (int, error) {
	drained, err := p.entries.DrainUnpublished(fd.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to drain queue: %w", err)
	}
	if drained > 0 {
		slog.Info("Drained feed queue", "feed_id", fd.ID, "entries", drained)
	}
	return drained, nil
}
