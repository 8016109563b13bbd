package feed

import (
	"time"
)

// Normalized feed representation shared by the RSS/Atom and Instagram
// fetch paths.

type ParsedFeed struct {
	Title       string
	Link        string
	Description string
	Language    string
	Hub         string
	Items       []ParsedItem
}

type ParsedItem struct {
	GUID        string
	Title       string
	Summary     string
	Link        string
	Author      string
	PublishedAt *time.Time

	ImageURL    string
	ImageWidth  int
	ImageHeight int

	ThumbnailURL    string
	ThumbnailWidth  int
	ThumbnailHeight int

	Content string
}

// FetchMeta carries the HTTP response bookkeeping the lifecycle manager
// needs: conditional-GET results and permanent redirects.
type FetchMeta struct {
	StatusCode        int
	ETag              string
	PermanentRedirect bool
	FinalURL          string
}
