package database

import (
	"time"
)

type UserRepository interface {
	CreateUser(accessToken string) (*User, error)
	GetUser(id int64) (*User, error)
	GetUserByToken(accessToken string) (*User, error)
}

type FeedRepository interface {
	CreateFeed(f *Feed) error
	GetFeed(id int64) (*Feed, error)
	GetFeedByURL(userID int64, feedURL string) (*Feed, error)
	GetFeedsForUser(userID int64) ([]Feed, error)
	GetFeedsForInterval(interval int) ([]Feed, error)
	GetActiveFeeds() ([]Feed, error)
	GetUnsubscribedHubFeeds() ([]Feed, error)
	GetInstagramFeeds(instagramUserIDs []int64) ([]Feed, error)
	UpdateFeed(f *Feed) error
	SetFeedStatus(id int64, status FeedStatus) error
	SetLastFetched(id int64, at time.Time) error
	DeleteFeed(id int64) error
	GetFeedCount() (int, error)
}

type EntryRepository interface {
	// GetByGUIDs resolves the given guid set against stored entries in a
	// single query.
	GetByGUIDs(feedID int64, guids []string) ([]Entry, error)
	// ReservePlaceholders claims (feedID, guid) identities with
	// creating=true rows and reports which guids were actually won.
	ReservePlaceholders(feedID int64, guids []string) ([]string, error)
	// UpdateEnriched persists a batch of enriched entries in one transaction.
	UpdateEnriched(entries []*Entry) error

	GetEntry(feedID, entryID int64) (*Entry, error)
	CountPublishedSince(feedID int64, since time.Time) (int, error)
	GetUnpublished(feedID int64, limit int) ([]Entry, error)
	GetLatestPublished(feedID int64, limit int) ([]Entry, error)
	GetLatestForFeed(feedID int64, limit int) ([]Entry, error)
	GetEntryCount(feedID int64) (int, error)

	MarkPublished(entryID int64, at time.Time) error
	MarkOverflow(entryID int64, reason OverflowReason) error
	ClearOverflow(entryID int64) error

	// DrainUnpublished marks every unpublished entry of the feed
	// published+overflow(feed_overflow), paginated.
	DrainUnpublished(feedID int64) (int, error)
	// DeleteForFeed removes all entries of the feed in bounded pages.
	DeleteForFeed(feedID int64) (int, error)
	DeleteStaleReservations(olderThan time.Time) (int64, error)

	GetEntriesForExtraction(feedID int64, limit int) ([]Entry, error)
	UpdateExtractedContent(entryID int64, content string) error
}
