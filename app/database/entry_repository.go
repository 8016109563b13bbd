package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// drainPageSize bounds how many rows a single drain/delete pass touches.
const drainPageSize = 25

var _ EntryRepository = (*EntryRepo)(nil)

type EntryRepo struct {
	db *DB
}

func NewEntryRepository(db *DB) *EntryRepo {
	return &EntryRepo{db: db}
}

const entryColumns = `id, feed_id, guid, title, summary, link, author, language,
	image_url, image_width, image_height, thumbnail_url, thumbnail_width, thumbnail_height,
	content, content_extracted, creating, published, published_at,
	overflow, overflow_reason, status, added_at`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.FeedID, &e.GUID, &e.Title, &e.Summary, &e.Link, &e.Author, &e.Language,
		&e.ImageURL, &e.ImageWidth, &e.ImageHeight, &e.ThumbnailURL, &e.ThumbnailWidth, &e.ThumbnailHeight,
		&e.Content, &e.ContentExtracted, &e.Creating, &e.Published, &e.PublishedAt,
		&e.Overflow, &e.OverflowReason, &e.Status, &e.AddedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EntryRepo) queryEntries(query string, args ...any) ([]Entry, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		entries = append(entries, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}

	return entries, nil
}

func (r *EntryRepo) GetByGUIDs(feedID int64, guids []string) ([]Entry, error) {
	if len(guids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(guids)), ",")
	args := make([]any, 0, len(guids)+1)
	args = append(args, feedID)
	for _, g := range guids {
		args = append(args, g)
	}

	return r.queryEntries(`
		SELECT `+entryColumns+` FROM entries
		WHERE feed_id = ? AND guid IN (`+placeholders+`)
	`, args...)
}

func (r *EntryRepo) ReservePlaceholders(feedID int64, guids []string) ([]string, error) {
	if len(guids) == 0 {
		return nil, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO entries (feed_id, guid, creating, added_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (feed_id, guid) DO NOTHING
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare reservation statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var won []string
	for _, guid := range guids {
		res, err := stmt.Exec(feedID, guid, now)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve entry %q: %w", guid, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected > 0 {
			won = append(won, guid)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reservations: %w", err)
	}

	return won, nil
}

func (r *EntryRepo) UpdateEnriched(entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE entries SET
			title = ?, summary = ?, link = ?, author = ?, language = ?,
			image_url = ?, image_width = ?, image_height = ?,
			thumbnail_url = ?, thumbnail_width = ?, thumbnail_height = ?,
			content = ?, content_extracted = ?, creating = 0,
			published = ?, published_at = ?, overflow = ?, overflow_reason = ?
		WHERE feed_id = ? AND guid = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare update statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.Exec(
			e.Title, e.Summary, e.Link, e.Author, e.Language,
			e.ImageURL, e.ImageWidth, e.ImageHeight,
			e.ThumbnailURL, e.ThumbnailWidth, e.ThumbnailHeight,
			e.Content, e.ContentExtracted,
			e.Published, e.PublishedAt, e.Overflow, e.OverflowReason,
			e.FeedID, e.GUID,
		)
		if err != nil {
			return fmt.Errorf("failed to update entry %q: %w", e.GUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entry updates: %w", err)
	}

	return nil
}

func (r *EntryRepo) GetEntry(feedID, entryID int64) (*Entry, error) {
	e, err := scanEntry(r.db.QueryRow(`
		SELECT `+entryColumns+` FROM entries WHERE feed_id = ? AND id = ?
	`, feedID, entryID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

func (r *EntryRepo) CountPublishedSince(feedID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM entries
		WHERE feed_id = ? AND published = 1 AND creating = 0 AND published_at >= ?
	`, feedID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count published entries: %w", err)
	}
	return count, nil
}

func (r *EntryRepo) GetUnpublished(feedID int64, limit int) ([]Entry, error) {
	return r.queryEntries(`
		SELECT `+entryColumns+` FROM entries
		WHERE feed_id = ? AND published = 0 AND creating = 0 AND status = ?
		ORDER BY added_at ASC, id ASC
		LIMIT ?
	`, feedID, EntryStatusActive, limit)
}

func (r *EntryRepo) GetLatestPublished(feedID int64, limit int) ([]Entry, error) {
	return r.queryEntries(`
		SELECT `+entryColumns+` FROM entries
		WHERE feed_id = ? AND published = 1 AND creating = 0 AND status = ?
		ORDER BY published_at DESC, id DESC
		LIMIT ?
	`, feedID, EntryStatusActive, limit)
}

func (r *EntryRepo) GetLatestForFeed(feedID int64, limit int) ([]Entry, error) {
	return r.queryEntries(`
		SELECT `+entryColumns+` FROM entries
		WHERE feed_id = ? AND creating = 0 AND status = ?
		ORDER BY added_at DESC, id DESC
		LIMIT ?
	`, feedID, EntryStatusActive, limit)
}

func (r *EntryRepo) GetEntryCount(feedID int64) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM entries WHERE feed_id = ? AND creating = 0
	`, feedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get entry count: %w", err)
	}
	return count, nil
}

func (r *EntryRepo) MarkPublished(entryID int64, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE entries SET published = 1, published_at = ? WHERE id = ?
	`, at, entryID)
	if err != nil {
		return fmt.Errorf("failed to mark entry published: %w", err)
	}
	return nil
}

func (r *EntryRepo) MarkOverflow(entryID int64, reason OverflowReason) error {
	_, err := r.db.Exec(`
		UPDATE entries SET published = 1, published_at = ?, overflow = 1, overflow_reason = ?
		WHERE id = ?
	`, time.Now().UTC(), reason, entryID)
	if err != nil {
		return fmt.Errorf("failed to mark entry overflow: %w", err)
	}
	return nil
}

func (r *EntryRepo) ClearOverflow(entryID int64) error {
	_, err := r.db.Exec(`
		UPDATE entries SET published = 0, published_at = NULL, overflow = 0, overflow_reason = ?
		WHERE id = ?
	`, OverflowNone, entryID)
	if err != nil {
		return fmt.Errorf("failed to clear entry overflow: %w", err)
	}
	return nil
}

func (r *EntryRepo) DrainUnpublished(feedID int64) (int, error) {
	total := 0
	now := time.Now().UTC()
	for {
		res, err := r.db.Exec(`
			UPDATE entries SET published = 1, published_at = ?, overflow = 1, overflow_reason = ?
			WHERE id IN (
				SELECT id FROM entries
				WHERE feed_id = ? AND published = 0 AND creating = 0 AND status = ?
				ORDER BY added_at ASC, id ASC
				LIMIT ?
			)
		`, now, OverflowFeedOverflow, feedID, EntryStatusActive, drainPageSize)
		if err != nil {
			return total, fmt.Errorf("failed to drain entries: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get affected rows: %w", err)
		}
		total += int(affected)
		if affected < drainPageSize {
			return total, nil
		}
	}
}

func (r *EntryRepo) DeleteForFeed(feedID int64) (int, error) {
	total := 0
	for {
		res, err := r.db.Exec(`
			DELETE FROM entries WHERE id IN (
				SELECT id FROM entries WHERE feed_id = ? LIMIT ?
			)
		`, feedID, drainPageSize)
		if err != nil {
			return total, fmt.Errorf("failed to delete entries: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get affected rows: %w", err)
		}
		total += int(affected)
		if affected < drainPageSize {
			return total, nil
		}
	}
}

func (r *EntryRepo) DeleteStaleReservations(olderThan time.Time) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM entries WHERE creating = 1 AND status = ? AND added_at < ?
	`, EntryStatusActive, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale reservations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}

func (r *EntryRepo) GetEntriesForExtraction(feedID int64, limit int) ([]Entry, error) {
	return r.queryEntries(`
		SELECT `+entryColumns+` FROM entries
		WHERE feed_id = ? AND creating = 0 AND content_extracted = 0 AND link != ''
		ORDER BY added_at DESC, id DESC
		LIMIT ?
	`, feedID, limit)
}

func (r *EntryRepo) UpdateExtractedContent(entryID int64, content string) error {
	_, err := r.db.Exec(`
		UPDATE entries SET content = ?, content_extracted = 1 WHERE id = ?
	`, content, entryID)
	if err != nil {
		return fmt.Errorf("failed to update extracted content: %w", err)
	}
	return nil
}
