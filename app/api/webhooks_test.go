package api

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ianmintz/pourover/app/cfg"
	"github.com/ianmintz/pourover/app/database"
	"github.com/ianmintz/pourover/app/feed"
	"github.com/ianmintz/pourover/app/ratelimit"
	"github.com/ianmintz/pourover/app/tasks"
)

const pushedRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Pushed Feed</title>
    <link>https://example.com</link>
    <item>
      <title>Pushed Item</title>
      <link>https://example.com/pushed</link>
      <guid>pushed-guid-1</guid>
    </item>
  </channel>
</rss>`

type fakeScheduler struct {
	enqueued []tasks.TaskInterface
}

var _ tasks.TaskSchedulerInterface = (*fakeScheduler)(nil)

func (s *fakeScheduler) Start() {}
func (s *fakeScheduler) Stop()  {}
func (s *fakeScheduler) EnqueueTask(task tasks.TaskInterface) error {
	s.enqueued = append(s.enqueued, task)
	return nil
}

type testEnv struct {
	router    *gin.Engine
	userRepo  database.UserRepository
	feedRepo  database.FeedRepository
	entryRepo database.EntryRepository
	scheduler *fakeScheduler
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg.Set(&cfg.Cfg{
		InstagramVerifyToken:  "ig-verify-token",
		InstagramClientSecret: "ig-client-secret",
		DefaultSchedulePeriod: 5,
		DefaultMaxPerPeriod:   1,
	})

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	userRepo := database.NewUserRepository(db)
	feedRepo := database.NewFeedRepository(db)
	entryRepo := database.NewEntryRepository(db)

	postServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"id": "100"}}`))
	}))
	t.Cleanup(postServer.Close)

	publisher := feed.NewPublisher(userRepo, feedRepo, entryRepo, postServer.URL, 5, 1)
	ingester := feed.NewIngester(entryRepo, feed.NewEnricher())
	processor := feed.NewProcessor(feedRepo, feed.NewFetcher("test-agent"), ingester, publisher, "http://localhost:8080")

	scheduler := &fakeScheduler{}
	handler := NewHandler(userRepo, feedRepo, entryRepo, processor, publisher, scheduler, ratelimit.New(0))

	return &testEnv{
		router:    NewServer(handler, "test-key"),
		userRepo:  userRepo,
		feedRepo:  feedRepo,
		entryRepo: entryRepo,
		scheduler: scheduler,
	}
}

func (e *testEnv) createUserAndFeed(t *testing.T, mutate func(*database.Feed)) *database.Feed {
	t.Helper()

	user, err := e.userRepo.CreateUser("token-1")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	fd := &database.Feed{
		UserID:         user.ID,
		FeedURL:        "https://example.com/feed.xml",
		UpdateInterval: 5,
	}
	if mutate != nil {
		mutate(fd)
	}
	if err := e.feedRepo.CreateFeed(fd); err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}

	return fd
}

func (e *testEnv) do(method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func signBody(body, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHubChallengeEcho(t *testing.T) {
	env := setupTestEnv(t)
	fd := env.createUserAndFeed(t, func(fd *database.Feed) {
		fd.VerifyToken = "feed-token"
		fd.Hub = "https://hub.example.com"
	})

	path := "/api/feeds/1/subscribe?hub.mode=subscribe&hub.challenge=abc123&hub.verify_token=feed-token"
	w := env.do("GET", path, "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "abc123" {
		t.Errorf("Expected challenge echoed verbatim, got %q", w.Body.String())
	}

	reloaded, err := env.feedRepo.GetFeed(fd.ID)
	if err != nil {
		t.Fatalf("Failed to reload feed: %v", err)
	}
	if !reloaded.SubscribedAtHub {
		t.Error("Expected feed marked subscribed after verified challenge")
	}
	if reloaded.UpdateInterval != 15 {
		t.Errorf("Expected update interval widened to 15, got %d", reloaded.UpdateInterval)
	}
}

func TestHubChallengeOmittedTokenIsAccepted(t *testing.T) {
	env := setupTestEnv(t)
	fd := env.createUserAndFeed(t, func(fd *database.Feed) {
		fd.VerifyToken = "feed-token"
		fd.Hub = "https://hub.example.com"
	})

	// PuSH 0.4 hubs send no verify token at all.
	path := "/api/feeds/1/subscribe?hub.mode=subscribe&hub.challenge=abc123"
	w := env.do("GET", path, "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "abc123" {
		t.Errorf("Expected challenge echoed verbatim, got %q", w.Body.String())
	}

	reloaded, err := env.feedRepo.GetFeed(fd.ID)
	if err != nil {
		t.Fatalf("Failed to reload feed: %v", err)
	}
	if !reloaded.SubscribedAtHub {
		t.Error("Expected feed marked subscribed when hub omits verify token")
	}
}

func TestHubChallengeTokenMismatch(t *testing.T) {
	env := setupTestEnv(t)
	fd := env.createUserAndFeed(t, func(fd *database.Feed) {
		fd.VerifyToken = "feed-token"
	})

	path := "/api/feeds/1/subscribe?hub.mode=subscribe&hub.challenge=abc123&hub.verify_token=wrong"
	w := env.do("GET", path, "", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if w.Body.String() != "Failed Verification" {
		t.Errorf("Expected failure body, got %q", w.Body.String())
	}

	reloaded, _ := env.feedRepo.GetFeed(fd.ID)
	if reloaded.SubscribedAtHub {
		t.Error("Expected feed not subscribed after failed challenge")
	}
}

func TestHubPushSignatureMismatchIsSilentNoOp(t *testing.T) {
	env := setupTestEnv(t)
	fd := env.createUserAndFeed(t, func(fd *database.Feed) {
		fd.HubSecret = "push-secret"
	})

	w := env.do("POST", "/api/feeds/1/subscribe", pushedRSS, map[string]string{
		"X-Hub-Signature": "sha1=deadbeef",
	})

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", w.Body.String())
	}

	count, err := env.entryRepo.GetEntryCount(fd.ID)
	if err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no entries after rejected push, got %d", count)
	}
}

func TestHubPushIngestsAndPublishes(t *testing.T) {
	env := setupTestEnv(t)
	fd := env.createUserAndFeed(t, func(fd *database.Feed) {
		fd.HubSecret = "push-secret"
	})

	w := env.do("POST", "/api/feeds/1/subscribe", pushedRSS, map[string]string{
		"X-Hub-Signature": signBody(pushedRSS, "push-secret"),
	})

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	entries, err := env.entryRepo.GetLatestForFeed(fd.ID, 10)
	if err != nil {
		t.Fatalf("Failed to load entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry after push, got %d", len(entries))
	}
	if entries[0].GUID != "pushed-guid-1" {
		t.Errorf("Expected pushed guid, got %q", entries[0].GUID)
	}
	if !entries[0].Published {
		t.Error("Expected pushed entry published through the normal pass")
	}
}

func TestInstagramChallenge(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do("GET", "/api/instagram/subscribe?hub.challenge=xyz&hub.verify_token=ig-verify-token", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "xyz" {
		t.Errorf("Expected challenge echoed, got %q", w.Body.String())
	}

	w = env.do("GET", "/api/instagram/subscribe?hub.challenge=xyz&hub.verify_token=wrong", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 on token mismatch, got %d", w.Code)
	}

	w = env.do("GET", "/api/instagram/subscribe?hub.challenge=xyz", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 when token omitted, got %d", w.Code)
	}
	if w.Body.String() != "xyz" {
		t.Errorf("Expected challenge echoed when token omitted, got %q", w.Body.String())
	}
}

func TestInstagramPushFansOutPollTasks(t *testing.T) {
	env := setupTestEnv(t)
	env.createUserAndFeed(t, func(fd *database.Feed) {
		fd.Type = database.FeedTypeInstagram
		fd.FeedURL = "https://api.instagram.com/v1/users/55/media/recent"
		fd.InstagramUserID = 55
	})

	body := `[{"object": "user", "object_id": "55", "changed_aspect": "media"}]`
	w := env.do("POST", "/api/instagram/subscribe", body, map[string]string{
		"X-Hub-Signature": signBody(body, "ig-client-secret"),
	})

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if len(env.scheduler.enqueued) != 1 {
		t.Fatalf("Expected 1 enqueued task, got %d", len(env.scheduler.enqueued))
	}
	if env.scheduler.enqueued[0].GetType() != tasks.TaskTypePollFeed {
		t.Errorf("Expected poll task, got %s", env.scheduler.enqueued[0].GetType())
	}
}

func TestInstagramPushSignatureMismatch(t *testing.T) {
	env := setupTestEnv(t)
	env.createUserAndFeed(t, func(fd *database.Feed) {
		fd.Type = database.FeedTypeInstagram
		fd.InstagramUserID = 55
	})

	body := `[{"object_id": "55"}]`
	w := env.do("POST", "/api/instagram/subscribe", body, map[string]string{
		"X-Hub-Signature": "sha1=deadbeef",
	})

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if len(env.scheduler.enqueued) != 0 {
		t.Errorf("Expected no tasks enqueued after rejected push, got %d", len(env.scheduler.enqueued))
	}
}
