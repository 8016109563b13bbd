package database

import (
	"time"
)

type FeedType string

const (
	FeedTypeRSS       FeedType = "rss"
	FeedTypeInstagram FeedType = "instagram"
)

type FeedStatus string

const (
	FeedStatusActive      FeedStatus = "active"
	FeedStatusNeedsReauth FeedStatus = "needs_reauth"
	FeedStatusDisabled    FeedStatus = "disabled"
)

type EntryStatus string

const (
	EntryStatusActive  EntryStatus = "active"
	EntryStatusDeleted EntryStatus = "deleted"
)

// OverflowReason records why an entry was taken out of the normal publish
// flow and marked already-handled.
type OverflowReason int

const (
	OverflowNone OverflowReason = iota
	// OverflowBacklog: pre-existing items imported at feed creation,
	// marked published so history is never flooded out.
	OverflowBacklog
	// OverflowMalformed: the external API rejected the post body (400).
	OverflowMalformed
	// OverflowFeedOverflow: too many simultaneous new items, drained in bulk.
	OverflowFeedOverflow
)

func (r OverflowReason) String() string {
	switch r {
	case OverflowBacklog:
		return "backlog"
	case OverflowMalformed:
		return "malformed"
	case OverflowFeedOverflow:
		return "feed_overflow"
	default:
		return "none"
	}
}

type User struct {
	ID          int64
	AccessToken string
	CreatedAt   time.Time
}

type Feed struct {
	ID                  int64
	UserID              int64
	Type                FeedType
	FeedURL             string
	Link                string // Homepage URL; feed_url is the technical location
	Title               string
	Description         string
	ETag                string
	Language            string
	UpdateInterval      int // minutes between polls
	ManualControl       bool
	SchedulePeriod      int // rolling window length in minutes (manual feeds)
	MaxStoriesPerPeriod int
	Status              FeedStatus
	Hub                 string
	SubscribedAtHub     bool
	VerifyToken         string
	HubSecret           string
	IncludeSummary      bool
	IncludeThumb        bool
	ExtractContent      bool
	InstagramUserID     int64
	UserAgent           string
	LastFetchedAt       *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Entry is a child of Feed; (FeedID, GUID) is the idempotent upsert key.
// A row with Creating=true is a reservation only and must never surface in
// publish-eligible or listing queries.
type Entry struct {
	ID               int64
	FeedID           int64
	GUID             string
	Title            string
	Summary          string
	Link             string
	Author           string
	Language         string
	ImageURL         string
	ImageWidth       int
	ImageHeight      int
	ThumbnailURL     string
	ThumbnailWidth   int
	ThumbnailHeight  int
	Content          string
	ContentExtracted bool
	Creating         bool
	Published        bool
	PublishedAt      *time.Time
	Overflow         bool
	OverflowReason   OverflowReason
	Status           EntryStatus
	AddedAt          time.Time
}
