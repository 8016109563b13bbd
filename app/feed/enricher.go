package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"

	"github.com/ianmintz/pourover/app/database"
)

const (
	maxSummaryLength = 500
	thumbnailBox     = 200
)

// Enricher turns a normalized item into a persistable entry: sanitized
// summary, canonical language, fitted media dimensions and optional
// readable-content extraction for feeds that request it.
type Enricher struct {
	sanitizer *bluemonday.Policy
	extractor *ContentExtractor
	client    *http.Client
}

func NewEnricher() *Enricher {
	return &Enricher{
		sanitizer: bluemonday.StrictPolicy(),
		extractor: NewContentExtractor(),
		client:    &http.Client{Timeout: fetchTimeout},
	}
}

// Run returns nil when the item carries nothing usable; the caller's
// reservation is then left behind for the stale-reservation sweep.
func (e *Enricher) Run(ctx context.Context, item ParsedItem, fd *database.Feed) *database.Entry {
	if item.Title == "" && item.Link == "" {
		return nil
	}

	entry := &database.Entry{
		FeedID:   fd.ID,
		GUID:     GUIDForItem(item),
		Title:    strings.TrimSpace(e.sanitizer.Sanitize(item.Title)),
		Summary:  e.sanitizeSummary(item.Summary),
		Link:     item.Link,
		Author:   item.Author,
		Language: CanonicalLanguage(fd.Language),
		Content:  item.Content,
		Status:   database.EntryStatusActive,
		AddedAt:  time.Now().UTC(),
	}

	entry.ImageURL = item.ImageURL
	entry.ImageWidth = item.ImageWidth
	entry.ImageHeight = item.ImageHeight

	entry.ThumbnailURL = item.ThumbnailURL
	if entry.ThumbnailURL == "" {
		entry.ThumbnailURL = item.ImageURL
		item.ThumbnailWidth = item.ImageWidth
		item.ThumbnailHeight = item.ImageHeight
	}
	entry.ThumbnailWidth, entry.ThumbnailHeight = FitToBox(item.ThumbnailWidth, item.ThumbnailHeight, thumbnailBox, thumbnailBox)

	if fd.ExtractContent && entry.Content == "" && entry.Link != "" {
		content, err := e.extractFromLink(ctx, entry.Link, fd)
		if err != nil {
			slog.Debug("Content extraction skipped", "link", entry.Link, "error", err)
		} else {
			entry.Content = content
			entry.ContentExtracted = true
		}
	}

	return entry
}

func (e *Enricher) sanitizeSummary(html string) string {
	clean := strings.TrimSpace(e.sanitizer.Sanitize(html))

	runes := []rune(clean)
	if len(runes) > maxSummaryLength {
		clean = string(runes[:maxSummaryLength])
	}

	return clean
}

func (e *Enricher) extractFromLink(ctx context.Context, link string, fd *database.Feed) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if fd.UserAgent != "" {
		req.Header.Set("User-Agent", fd.UserAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching page", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read page body: %w", err)
	}

	return e.extractor.Run(body)
}

// CanonicalLanguage reduces a feed-supplied language value ("en-US",
// "en_us") to its base tag ("en"). Unparseable values pass through
// unchanged after lowercasing.
func CanonicalLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}

	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return strings.ToLower(lang)
	}

	base, _ := tag.Base()
	return base.String()
}

// FitToBox scales dimensions down proportionally to fit inside the
// given bounding box. Unknown or already-fitting dimensions pass
// through.
func FitToBox(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}

	widthRatio := float64(maxWidth) / float64(width)
	heightRatio := float64(maxHeight) / float64(height)

	ratio := widthRatio
	if heightRatio < ratio {
		ratio = heightRatio
	}

	return int(float64(width) * ratio), int(float64(height) * ratio)
}
