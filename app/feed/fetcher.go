package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ianmintz/pourover/app/database"
)

const fetchTimeout = 30 * time.Second

// Fetcher retrieves a feed's current content and normalizes it through
// the parser. RSS/Atom feeds get conditional GETs via ETag; Instagram
// feeds hit the media JSON endpoint stored as the feed URL.
type Fetcher struct {
	client    *http.Client
	parser    *Parser
	userAgent string
}

func NewFetcher(userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: fetchTimeout},
		parser:    NewParser(),
		userAgent: userAgent,
	}
}

// Parse normalizes feed content that arrived without a fetch, e.g. a
// hub push body.
func (f *Fetcher) Parse(data []byte) (*ParsedFeed, error) {
	return f.parser.Run(data)
}

func (f *Fetcher) Run(ctx context.Context, fd *database.Feed) (*ParsedFeed, *FetchMeta, error) {
	switch fd.Type {
	case database.FeedTypeInstagram:
		return f.fetchInstagram(ctx, fd)
	default:
		return f.fetchRSS(ctx, fd)
	}
}

func (f *Fetcher) fetchRSS(ctx context.Context, fd *database.Feed) (*ParsedFeed, *FetchMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fd.FeedURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.resolveUserAgent(fd))
	if fd.ETag != "" {
		req.Header.Set("If-None-Match", fd.ETag)
	}

	// The redirect hook only sees intermediate responses, so permanence
	// is recorded per call on a client copy.
	permanent := false
	client := *f.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if req.Response != nil {
			switch req.Response.StatusCode {
			case http.StatusMovedPermanently, http.StatusPermanentRedirect:
				permanent = true
			}
		}
		if len(via) >= 10 {
			return fmt.Errorf("too many redirects")
		}
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	meta := &FetchMeta{
		StatusCode:        resp.StatusCode,
		ETag:              resp.Header.Get("ETag"),
		PermanentRedirect: permanent,
		FinalURL:          resp.Request.URL.String(),
	}

	if resp.StatusCode == http.StatusNotModified {
		return nil, meta, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, meta, fmt.Errorf("unexpected status %d fetching feed", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, meta, fmt.Errorf("failed to read feed body: %w", err)
	}

	parsed, err := f.parser.Run(body)
	if err != nil {
		return nil, meta, err
	}

	return parsed, meta, nil
}

func (f *Fetcher) fetchInstagram(ctx context.Context, fd *database.Feed) (*ParsedFeed, *FetchMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fd.FeedURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.resolveUserAgent(fd))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch instagram media: %w", err)
	}
	defer resp.Body.Close()

	meta := &FetchMeta{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
	}

	if resp.StatusCode != http.StatusOK {
		return nil, meta, fmt.Errorf("unexpected status %d fetching instagram media", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, meta, fmt.Errorf("failed to read instagram body: %w", err)
	}

	parsed, err := f.parser.ParseInstagram(body)
	if err != nil {
		return nil, meta, err
	}

	return parsed, meta, nil
}

func (f *Fetcher) resolveUserAgent(fd *database.Feed) string {
	if fd.UserAgent != "" {
		return fd.UserAgent
	}
	return f.userAgent
}
