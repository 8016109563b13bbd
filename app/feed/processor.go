package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ianmintz/pourover/app/database"
)

// hubPollInterval widens polling once a hub delivers pushes for a feed.
const hubPollInterval = 15

// drainThreshold is the all-new item count at which ingestion gives up
// on catching up and drains the queue instead.
const drainThreshold = 5

// Processor orchestrates fetch, ingest, drain and publish for one feed
// invocation, and owns hub subscription state transitions.
type Processor struct {
	feeds     database.FeedRepository
	fetcher   *Fetcher
	ingester  *Ingester
	publisher *Publisher
	client    *http.Client
	baseURL   string
}

func NewProcessor(feeds database.FeedRepository, fetcher *Fetcher, ingester *Ingester,
	publisher *Publisher, baseURL string) *Processor {
	return &Processor{
		feeds:     feeds,
		fetcher:   fetcher,
		ingester:  ingester,
		publisher: publisher,
		client:    &http.Client{Timeout: fetchTimeout},
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}
}

// UpdateForFeed runs one full cycle: fetch, metadata bookkeeping,
// ingest, drain evaluation, publish. A 304 skips everything except the
// optional publish pass. Returns the parsed feed and the number of new
// items.
func (p *Processor) UpdateForFeed(ctx context.Context, fd *database.Feed, publish, skipQueue, overflow bool, reason database.OverflowReason) (*ParsedFeed, int, error) {
	parsed, meta, err := p.fetcher.Run(ctx, fd)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch feed %d: %w", fd.ID, err)
	}

	numNewItems := 0
	drain := false

	if meta.StatusCode != http.StatusNotModified {
		modified := false

		if meta.PermanentRedirect && meta.FinalURL != "" && meta.FinalURL != fd.FeedURL {
			slog.Info("Feed moved permanently", "feed_id", fd.ID, "from", fd.FeedURL, "to", meta.FinalURL)
			fd.FeedURL = meta.FinalURL
			modified = true
			publish = false
		} else if meta.ETag != "" && fd.ETag != meta.ETag {
			fd.ETag = meta.ETag
			modified = true
		}

		if parsed.Language != "" {
			if lang := CanonicalLanguage(parsed.Language); lang != fd.Language {
				fd.Language = lang
				modified = true
			}
		}
		if parsed.Title != "" && parsed.Title != fd.Title {
			fd.Title = parsed.Title
			modified = true
		}
		if parsed.Link != "" && parsed.Link != fd.Link {
			fd.Link = parsed.Link
			modified = true
		}

		if modified {
			if err := p.feeds.UpdateFeed(fd); err != nil {
				return nil, 0, fmt.Errorf("failed to update feed metadata: %w", err)
			}
		}

		newGUIDs, oldGUIDs, err := p.ingester.Run(ctx, parsed, fd, overflow, reason)
		if err != nil {
			return nil, 0, err
		}
		numNewItems = len(newGUIDs)

		total := len(newGUIDs) + len(oldGUIDs)
		if total >= drainThreshold && len(newGUIDs) == total {
			drain = true
		}
	}

	if publish {
		if _, err := p.publisher.PublishForFeed(ctx, fd, skipQueue); err != nil {
			return parsed, numNewItems, err
		}
	}

	if drain {
		if _, err := p.publisher.DrainQueue(fd); err != nil {
			return parsed, numNewItems, err
		}
	}

	if err := p.feeds.SetLastFetched(fd.ID, time.Now().UTC()); err != nil {
		slog.Error("Failed to record fetch time", "feed_id", fd.ID, "error", err)
	}

	return parsed, numNewItems, nil
}

// ProcessPushedFeed ingests hub-pushed body content directly, skipping
// the fetch, then runs the same drain evaluation and publish pass as a
// polled cycle.
func (p *Processor) ProcessPushedFeed(ctx context.Context, fd *database.Feed, data []byte) (int, error) {
	parsed, err := p.fetcher.Parse(data)
	if err != nil {
		return 0, fmt.Errorf("failed to parse pushed content for feed %d: %w", fd.ID, err)
	}

	newGUIDs, oldGUIDs, err := p.ingester.Run(ctx, parsed, fd, false, database.OverflowNone)
	if err != nil {
		return 0, err
	}

	if _, err := p.publisher.PublishForFeed(ctx, fd, false); err != nil {
		return len(newGUIDs), err
	}

	total := len(newGUIDs) + len(oldGUIDs)
	if total >= drainThreshold && len(newGUIDs) == total {
		if _, err := p.publisher.DrainQueue(fd); err != nil {
			return len(newGUIDs), err
		}
	}

	return len(newGUIDs), nil
}

// ProcessNewFeed runs the first import: history is ingested as backlog
// (published+overflow so nothing floods out), then hub discovery and
// subscription.
func (p *Processor) ProcessNewFeed(ctx context.Context, fd *database.Feed) error {
	parsed, numNewItems, err := p.UpdateForFeed(ctx, fd, false, false, true, database.OverflowBacklog)
	if err != nil {
		return err
	}

	slog.Info("Processed new feed", "feed_id", fd.ID, "new_items", numNewItems)

	if parsed != nil && parsed.Hub != "" {
		fd.Hub = parsed.Hub
		fd.VerifyToken = uuid.NewString()
		// A secret only helps when the hub endpoint can keep it private
		if strings.HasPrefix(parsed.Hub, "https://") {
			fd.HubSecret = uuid.NewString()
		} else {
			fd.HubSecret = ""
		}

		if err := p.feeds.UpdateFeed(fd); err != nil {
			return fmt.Errorf("failed to persist hub state: %w", err)
		}

		if err := p.SubscribeToHub(ctx, fd); err != nil {
			slog.Error("Hub subscription failed", "feed_id", fd.ID, "hub", fd.Hub, "error", err)
		}
	}

	return nil
}

// SubscribeToHub issues the PuSH subscribe request. Verify token goes
// out under both the legacy and current field names. A 402 means the
// hub refuses us; the stored hub URL is cleared so we stop retrying.
func (p *Processor) SubscribeToHub(ctx context.Context, fd *database.Feed) error {
	form := url.Values{
		"hub.callback":     {fmt.Sprintf("%s/api/feeds/%d/subscribe", p.baseURL, fd.ID)},
		"hub.mode":         {"subscribe"},
		"hub.topic":        {fd.FeedURL},
		"hub.verify_token": {fd.VerifyToken},
		"hub.verify":       {fd.VerifyToken},
	}
	if fd.HubSecret != "" {
		form.Set("hub.secret", fd.HubSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fd.Hub, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create subscribe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach hub: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	slog.Info("Hub subscribe request", "hub", fd.Hub, "status", resp.StatusCode, "response", string(body))

	if resp.StatusCode == http.StatusPaymentRequired {
		slog.Info("Hub refused subscription, clearing", "feed_id", fd.ID, "hub", fd.Hub)
		fd.Hub = ""
		if err := p.feeds.UpdateFeed(fd); err != nil {
			return fmt.Errorf("failed to clear refused hub: %w", err)
		}
	}

	return nil
}

// ConfirmHubSubscription records a verified challenge and widens the
// poll interval, since the hub now pushes updates.
func (p *Processor) ConfirmHubSubscription(fd *database.Feed) error {
	fd.SubscribedAtHub = true
	fd.UpdateInterval = hubPollInterval
	if err := p.feeds.UpdateFeed(fd); err != nil {
		return fmt.Errorf("failed to confirm hub subscription: %w", err)
	}
	return nil
}

// Reauthorize sweeps a user's feeds that were blocked on a 401 back to
// active, returning how many were cleared.
func (p *Processor) Reauthorize(user *database.User) (int, error) {
	feeds, err := p.feeds.GetFeedsForUser(user.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list feeds for user: %w", err)
	}

	cleared := 0
	for i := range feeds {
		if feeds[i].Status != database.FeedStatusNeedsReauth {
			continue
		}
		if err := p.feeds.SetFeedStatus(feeds[i].ID, database.FeedStatusActive); err != nil {
			return cleared, fmt.Errorf("failed to reactivate feed %d: %w", feeds[i].ID, err)
		}
		cleared++
	}

	slog.Info("Reauthorized feeds", "user_id", user.ID, "cleared", cleared)
	return cleared, nil
}
