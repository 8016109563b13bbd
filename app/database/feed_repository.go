package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// defaultUpdateInterval is the poll cadence in minutes for feeds
// created without one.
const defaultUpdateInterval = 5

var _ FeedRepository = (*FeedRepo)(nil)

type FeedRepo struct {
	db *DB
}

func NewFeedRepository(db *DB) *FeedRepo {
	return &FeedRepo{db: db}
}

const feedColumns = `id, user_id, feed_type, feed_url, link, title, description, etag, language,
	update_interval, manual_control, schedule_period, max_stories_per_period, status,
	hub, subscribed_at_hub, verify_token, hub_secret,
	include_summary, include_thumb, extract_content, instagram_user_id, user_agent,
	last_fetched_at, created_at, updated_at`

func scanFeed(row interface{ Scan(...any) error }) (*Feed, error) {
	var f Feed
	err := row.Scan(
		&f.ID, &f.UserID, &f.Type, &f.FeedURL, &f.Link, &f.Title, &f.Description, &f.ETag, &f.Language,
		&f.UpdateInterval, &f.ManualControl, &f.SchedulePeriod, &f.MaxStoriesPerPeriod, &f.Status,
		&f.Hub, &f.SubscribedAtHub, &f.VerifyToken, &f.HubSecret,
		&f.IncludeSummary, &f.IncludeThumb, &f.ExtractContent, &f.InstagramUserID, &f.UserAgent,
		&f.LastFetchedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FeedRepo) queryFeeds(query string, args ...any) ([]Feed, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

func (r *FeedRepo) CreateFeed(f *Feed) error {
	now := time.Now().UTC()
	if f.Type == "" {
		f.Type = FeedTypeRSS
	}
	if f.Status == "" {
		f.Status = FeedStatusActive
	}
	if f.UpdateInterval <= 0 {
		f.UpdateInterval = defaultUpdateInterval
	}
	f.CreatedAt = now
	f.UpdatedAt = now

	res, err := r.db.Exec(`
		INSERT INTO feeds (
			user_id, feed_type, feed_url, link, title, description, etag, language,
			update_interval, manual_control, schedule_period, max_stories_per_period, status,
			hub, subscribed_at_hub, verify_token, hub_secret,
			include_summary, include_thumb, extract_content, instagram_user_id, user_agent,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		f.UserID, f.Type, f.FeedURL, f.Link, f.Title, f.Description, f.ETag, f.Language,
		f.UpdateInterval, f.ManualControl, f.SchedulePeriod, f.MaxStoriesPerPeriod, f.Status,
		f.Hub, f.SubscribedAtHub, f.VerifyToken, f.HubSecret,
		f.IncludeSummary, f.IncludeThumb, f.ExtractContent, f.InstagramUserID, f.UserAgent,
		f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create feed: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get feed id: %w", err)
	}
	f.ID = id

	return nil
}

func (r *FeedRepo) GetFeed(id int64) (*Feed, error) {
	f, err := scanFeed(r.db.QueryRow(`SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return f, nil
}

func (r *FeedRepo) GetFeedByURL(userID int64, feedURL string) (*Feed, error) {
	f, err := scanFeed(r.db.QueryRow(`
		SELECT `+feedColumns+` FROM feeds WHERE user_id = ? AND feed_url = ?
	`, userID, feedURL))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed by URL: %w", err)
	}
	return f, nil
}

func (r *FeedRepo) GetFeedsForUser(userID int64) ([]Feed, error) {
	return r.queryFeeds(`SELECT `+feedColumns+` FROM feeds WHERE user_id = ? ORDER BY id`, userID)
}

func (r *FeedRepo) GetFeedsForInterval(interval int) ([]Feed, error) {
	return r.queryFeeds(`
		SELECT `+feedColumns+` FROM feeds WHERE update_interval = ? AND status = ? ORDER BY id
	`, interval, FeedStatusActive)
}

func (r *FeedRepo) GetActiveFeeds() ([]Feed, error) {
	return r.queryFeeds(`SELECT `+feedColumns+` FROM feeds WHERE status = ? ORDER BY id`, FeedStatusActive)
}

func (r *FeedRepo) GetUnsubscribedHubFeeds() ([]Feed, error) {
	return r.queryFeeds(`
		SELECT `+feedColumns+` FROM feeds WHERE hub != '' AND subscribed_at_hub = 0 ORDER BY id
	`)
}

func (r *FeedRepo) GetInstagramFeeds(instagramUserIDs []int64) ([]Feed, error) {
	if len(instagramUserIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(instagramUserIDs)), ",")
	args := make([]any, 0, len(instagramUserIDs)+1)
	args = append(args, FeedTypeInstagram)
	for _, id := range instagramUserIDs {
		args = append(args, id)
	}

	return r.queryFeeds(`
		SELECT `+feedColumns+` FROM feeds
		WHERE feed_type = ? AND instagram_user_id IN (`+placeholders+`)
		ORDER BY id
	`, args...)
}

func (r *FeedRepo) UpdateFeed(f *Feed) error {
	f.UpdatedAt = time.Now().UTC()
	_, err := r.db.Exec(`
		UPDATE feeds SET
			feed_url = ?, link = ?, title = ?, description = ?, etag = ?, language = ?,
			update_interval = ?, manual_control = ?, schedule_period = ?, max_stories_per_period = ?,
			status = ?, hub = ?, subscribed_at_hub = ?, verify_token = ?, hub_secret = ?,
			include_summary = ?, include_thumb = ?, extract_content = ?, user_agent = ?,
			updated_at = ?
		WHERE id = ?
	`,
		f.FeedURL, f.Link, f.Title, f.Description, f.ETag, f.Language,
		f.UpdateInterval, f.ManualControl, f.SchedulePeriod, f.MaxStoriesPerPeriod,
		f.Status, f.Hub, f.SubscribedAtHub, f.VerifyToken, f.HubSecret,
		f.IncludeSummary, f.IncludeThumb, f.ExtractContent, f.UserAgent,
		f.UpdatedAt, f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update feed: %w", err)
	}
	return nil
}

func (r *FeedRepo) SetFeedStatus(id int64, status FeedStatus) error {
	_, err := r.db.Exec(`
		UPDATE feeds SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set feed status: %w", err)
	}
	return nil
}

func (r *FeedRepo) SetLastFetched(id int64, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feeds SET last_fetched_at = ? WHERE id = ?
	`, at, id)
	if err != nil {
		return fmt.Errorf("failed to set last fetched time: %w", err)
	}
	return nil
}

func (r *FeedRepo) DeleteFeed(id int64) error {
	_, err := r.db.Exec(`DELETE FROM feeds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}
	return nil
}

func (r *FeedRepo) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}
