package feed

import (
	"sort"
	"sync"
	"time"

	"github.com/ianmintz/pourover/app/database"
)

// Hand-written in-memory fakes for engine tests. Mirror the repository
// contracts closely enough that reservation and publish bookkeeping
// behave like the real store.

type fakeEntryRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*database.Entry
}

var _ database.EntryRepository = (*fakeEntryRepo)(nil)

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{entries: make(map[int64]*database.Entry)}
}

func (r *fakeEntryRepo) GetByGUIDs(feedID int64, guids []string) ([]database.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool, len(guids))
	for _, g := range guids {
		want[g] = true
	}

	var out []database.Entry
	for _, e := range r.entries {
		if e.FeedID == feedID && want[e.GUID] {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeEntryRepo) ReservePlaceholders(feedID int64, guids []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	taken := make(map[string]bool)
	for _, e := range r.entries {
		if e.FeedID == feedID {
			taken[e.GUID] = true
		}
	}

	var won []string
	for _, guid := range guids {
		if taken[guid] {
			continue
		}
		r.nextID++
		r.entries[r.nextID] = &database.Entry{
			ID:       r.nextID,
			FeedID:   feedID,
			GUID:     guid,
			Creating: true,
			AddedAt:  time.Now().UTC(),
		}
		taken[guid] = true
		won = append(won, guid)
	}
	return won, nil
}

func (r *fakeEntryRepo) UpdateEnriched(entries []*database.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, update := range entries {
		for _, e := range r.entries {
			if e.FeedID == update.FeedID && e.GUID == update.GUID {
				id, addedAt := e.ID, e.AddedAt
				*e = *update
				e.ID = id
				e.AddedAt = addedAt
				e.Creating = false
			}
		}
	}
	return nil
}

func (r *fakeEntryRepo) GetEntry(feedID, entryID int64) (*database.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[entryID]
	if !ok || e.FeedID != feedID {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (r *fakeEntryRepo) CountPublishedSince(feedID int64, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, e := range r.entries {
		if e.FeedID == feedID && e.Published && !e.Creating &&
			e.PublishedAt != nil && e.PublishedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakeEntryRepo) GetUnpublished(feedID int64, limit int) ([]database.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []database.Entry
	for _, e := range r.entries {
		if e.FeedID == feedID && !e.Published && !e.Creating && e.Status != database.EntryStatusDeleted {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeEntryRepo) GetLatestPublished(feedID int64, limit int) ([]database.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []database.Entry
	for _, e := range r.entries {
		if e.FeedID == feedID && e.Published && !e.Creating {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeEntryRepo) GetLatestForFeed(feedID int64, limit int) ([]database.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []database.Entry
	for _, e := range r.entries {
		if e.FeedID == feedID && !e.Creating {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeEntryRepo) GetEntryCount(feedID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, e := range r.entries {
		if e.FeedID == feedID && !e.Creating {
			count++
		}
	}
	return count, nil
}

func (r *fakeEntryRepo) MarkPublished(entryID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[entryID]; ok {
		e.Published = true
		e.PublishedAt = &at
	}
	return nil
}

func (r *fakeEntryRepo) MarkOverflow(entryID int64, reason database.OverflowReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[entryID]; ok {
		now := time.Now().UTC()
		e.Published = true
		e.PublishedAt = &now
		e.Overflow = true
		e.OverflowReason = reason
	}
	return nil
}

func (r *fakeEntryRepo) ClearOverflow(entryID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[entryID]; ok {
		e.Published = false
		e.PublishedAt = nil
		e.Overflow = false
		e.OverflowReason = database.OverflowNone
	}
	return nil
}

func (r *fakeEntryRepo) DrainUnpublished(feedID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	count := 0
	for _, e := range r.entries {
		if e.FeedID == feedID && !e.Published && !e.Creating {
			e.Published = true
			e.PublishedAt = &now
			e.Overflow = true
			e.OverflowReason = database.OverflowFeedOverflow
			count++
		}
	}
	return count, nil
}

func (r *fakeEntryRepo) DeleteForFeed(feedID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, e := range r.entries {
		if e.FeedID == feedID {
			delete(r.entries, id)
			count++
		}
	}
	return count, nil
}

func (r *fakeEntryRepo) DeleteStaleReservations(olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, e := range r.entries {
		if e.Creating && e.AddedAt.Before(olderThan) {
			delete(r.entries, id)
			count++
		}
	}
	return count, nil
}

func (r *fakeEntryRepo) GetEntriesForExtraction(feedID int64, limit int) ([]database.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []database.Entry
	for _, e := range r.entries {
		if e.FeedID == feedID && !e.Creating && !e.ContentExtracted && e.Link != "" {
			out = append(out, *e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeEntryRepo) UpdateExtractedContent(entryID int64, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[entryID]; ok {
		e.Content = content
		e.ContentExtracted = true
	}
	return nil
}

type fakeFeedRepo struct {
	mu     sync.Mutex
	nextID int64
	feeds  map[int64]*database.Feed
}

var _ database.FeedRepository = (*fakeFeedRepo)(nil)

func newFakeFeedRepo() *fakeFeedRepo {
	return &fakeFeedRepo{feeds: make(map[int64]*database.Feed)}
}

func (r *fakeFeedRepo) CreateFeed(f *database.Feed) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	f.ID = r.nextID
	if f.Type == "" {
		f.Type = database.FeedTypeRSS
	}
	if f.Status == "" {
		f.Status = database.FeedStatusActive
	}
	copied := *f
	r.feeds[f.ID] = &copied
	return nil
}

func (r *fakeFeedRepo) GetFeed(id int64) (*database.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.feeds[id]
	if !ok {
		return nil, nil
	}
	copied := *f
	return &copied, nil
}

func (r *fakeFeedRepo) GetFeedByURL(userID int64, feedURL string) (*database.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.feeds {
		if f.UserID == userID && f.FeedURL == feedURL {
			copied := *f
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeFeedRepo) GetFeedsForUser(userID int64) ([]database.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []database.Feed
	for _, f := range r.feeds {
		if f.UserID == userID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeFeedRepo) GetFeedsForInterval(interval int) ([]database.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []database.Feed
	for _, f := range r.feeds {
		if f.UpdateInterval == interval && f.Status == database.FeedStatusActive {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *fakeFeedRepo) GetActiveFeeds() ([]database.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []database.Feed
	for _, f := range r.feeds {
		if f.Status == database.FeedStatusActive {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeFeedRepo) GetUnsubscribedHubFeeds() ([]database.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []database.Feed
	for _, f := range r.feeds {
		if f.Hub != "" && !f.SubscribedAtHub {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *fakeFeedRepo) GetInstagramFeeds(instagramUserIDs []int64) ([]database.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[int64]bool, len(instagramUserIDs))
	for _, id := range instagramUserIDs {
		want[id] = true
	}

	var out []database.Feed
	for _, f := range r.feeds {
		if f.Type == database.FeedTypeInstagram && want[f.InstagramUserID] {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *fakeFeedRepo) UpdateFeed(f *database.Feed) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *f
	r.feeds[f.ID] = &copied
	return nil
}

func (r *fakeFeedRepo) SetFeedStatus(id int64, status database.FeedStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.feeds[id]; ok {
		f.Status = status
	}
	return nil
}

func (r *fakeFeedRepo) SetLastFetched(id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.feeds[id]; ok {
		f.LastFetchedAt = &at
	}
	return nil
}

func (r *fakeFeedRepo) DeleteFeed(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.feeds, id)
	return nil
}

func (r *fakeFeedRepo) GetFeedCount() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.feeds), nil
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*database.User
}

var _ database.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*database.User)}
}

func (r *fakeUserRepo) CreateUser(accessToken string) (*database.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.AccessToken == accessToken {
			copied := *u
			return &copied, nil
		}
	}

	r.nextID++
	u := &database.User{ID: r.nextID, AccessToken: accessToken, CreatedAt: time.Now().UTC()}
	r.users[u.ID] = u
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) GetUser(id int64) (*database.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) GetUserByToken(accessToken string) (*database.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.AccessToken == accessToken {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}
