package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ianmintz/pourover/app/cfg"
	"github.com/ianmintz/pourover/app/database"
	"github.com/ianmintz/pourover/app/feed"
	"github.com/ianmintz/pourover/app/ratelimit"
	"github.com/ianmintz/pourover/app/tasks"
)

const defaultListLimit = 25

func NewHandler(userRepo database.UserRepository, feedRepo database.FeedRepository,
	entryRepo database.EntryRepository, processor *feed.Processor,
	publisher *feed.Publisher, scheduler tasks.TaskSchedulerInterface,
	limiter ratelimit.Limiter) *Handler {
	c := cfg.Get()

	return &Handler{
		userRepo:              userRepo,
		feedRepo:              feedRepo,
		entryRepo:             entryRepo,
		processor:             processor,
		publisher:             publisher,
		scheduler:             scheduler,
		limiter:               limiter,
		instagramVerifyToken:  c.InstagramVerifyToken,
		instagramClientSecret: c.InstagramClientSecret,
		defaultSchedulePeriod: c.DefaultSchedulePeriod,
		defaultMaxPerPeriod:   c.DefaultMaxPerPeriod,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   cfg.GetVersion(),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
		health["feeds"] = feedCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListFeeds(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid user_id parameter"})
		return
	}

	feeds, err := h.feedRepo.GetFeedsForUser(userID)
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	result := make([]map[string]interface{}, 0, len(feeds))
	for i := range feeds {
		info := feedResponse(&feeds[i])
		if count, err := h.entryRepo.GetEntryCount(feeds[i].ID); err == nil {
			info["entry_count"] = count
		}
		result = append(result, info)
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": result,
		"total": len(result),
	})
}

// CreateFeed registers a feed and runs its first import. Registration
// is idempotent per (user, feed_url): re-posting an existing feed
// returns it unchanged.
func (h *Handler) CreateFeed(c *gin.Context) {
	var req CreateFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	user, err := h.userRepo.GetUser(req.UserID)
	if err != nil {
		slog.Error("Database error", "operation", "get_user", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	existing, err := h.feedRepo.GetFeedByURL(req.UserID, req.FeedURL)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed_by_url", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusOK, feedResponse(existing))
		return
	}

	fd := &database.Feed{
		UserID:              req.UserID,
		Type:                database.FeedType(req.Type),
		FeedURL:             req.FeedURL,
		InstagramUserID:     req.InstagramUserID,
		IncludeSummary:      req.IncludeSummary,
		IncludeThumb:        req.IncludeThumb,
		ExtractContent:      req.ExtractContent,
		UpdateInterval:      req.UpdateInterval,
		SchedulePeriod:      h.defaultSchedulePeriod,
		MaxStoriesPerPeriod: h.defaultMaxPerPeriod,
	}

	if err := h.feedRepo.CreateFeed(fd); err != nil {
		slog.Error("Database error", "operation", "create_feed", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// First import failures are recoverable: the feed row exists and the
	// scheduler will poll it on the next tick.
	if err := h.processor.ProcessNewFeed(c.Request.Context(), fd); err != nil {
		slog.Warn("First import failed", "feed_id", fd.ID, "error", err)
	}

	c.JSON(http.StatusCreated, feedResponse(fd))
}

func (h *Handler) GetFeed(c *gin.Context) {
	fd, ok := h.feedFromPath(c)
	if !ok {
		return
	}

	entries, err := h.entryRepo.GetLatestForFeed(fd.ID, defaultListLimit)
	if err != nil {
		slog.Error("Database error", "operation", "get_entries", "feed_id", fd.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := feedResponse(fd)
	response["entries"] = entryResponses(entries)

	c.JSON(http.StatusOK, response)
}

func (h *Handler) UpdateFeed(c *gin.Context) {
	fd, ok := h.feedFromPath(c)
	if !ok {
		return
	}

	var req UpdateFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if req.IncludeSummary != nil {
		fd.IncludeSummary = *req.IncludeSummary
	}
	if req.IncludeThumb != nil {
		fd.IncludeThumb = *req.IncludeThumb
	}
	if req.ExtractContent != nil {
		fd.ExtractContent = *req.ExtractContent
	}
	if req.ManualControl != nil {
		fd.ManualControl = *req.ManualControl
	}
	if req.SchedulePeriod != nil {
		fd.SchedulePeriod = *req.SchedulePeriod
	}
	if req.MaxStoriesPerPeriod != nil {
		fd.MaxStoriesPerPeriod = *req.MaxStoriesPerPeriod
	}
	if req.UpdateInterval != nil {
		fd.UpdateInterval = *req.UpdateInterval
	}
	if req.UserAgent != nil {
		fd.UserAgent = *req.UserAgent
	}

	if err := h.feedRepo.UpdateFeed(fd); err != nil {
		slog.Error("Database error", "operation", "update_feed", "feed_id", fd.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, feedResponse(fd))
}

func (h *Handler) DeleteFeed(c *gin.Context) {
	fd, ok := h.feedFromPath(c)
	if !ok {
		return
	}

	deleted, err := h.entryRepo.DeleteForFeed(fd.ID)
	if err != nil {
		slog.Error("Database error", "operation", "delete_entries", "feed_id", fd.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if err := h.feedRepo.DeleteFeed(fd.ID); err != nil {
		slog.Error("Database error", "operation", "delete_feed", "feed_id", fd.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Feed deleted", "feed_id", fd.ID, "entries_deleted", deleted)

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"entries_deleted": deleted,
	})
}

func (h *Handler) GetUnpublishedEntries(c *gin.Context) {
	fd, ok := h.feedFromPath(c)
	if !ok {
		return
	}

	entries, err := h.entryRepo.GetUnpublished(fd.ID, listLimit(c))
	if err != nil {
		slog.Error("Database error", "operation", "get_unpublished", "feed_id", fd.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entryResponses(entries),
		"total":   len(entries),
	})
}

func (h *Handler) GetLatestEntries(c *gin.Context) {
	fd, ok := h.feedFromPath(c)
	if !ok {
		return
	}

	entries, err := h.entryRepo.GetLatestPublished(fd.ID, listLimit(c))
	if err != nil {
		slog.Error("Database error", "operation", "get_latest", "feed_id", fd.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entryResponses(entries),
		"total":   len(entries),
	})
}

// PublishEntry posts one entry immediately, regardless of the feed's
// rolling window. An overflowed entry is first returned to the queue so
// the post is not suppressed by its terminal state.
func (h *Handler) PublishEntry(c *gin.Context) {
	fd, ok := h.feedFromPath(c)
	if !ok {
		return
	}

	entryID, err := strconv.ParseInt(c.Param("entry_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entry id"})
		return
	}

	entry, err := h.entryRepo.GetEntry(fd.ID, entryID)
	if err != nil {
		slog.Error("Database error", "operation", "get_entry", "feed_id", fd.ID, "entry_id", entryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}

	if entry.Overflow {
		if err := h.entryRepo.ClearOverflow(entry.ID); err != nil {
			slog.Error("Database error", "operation", "clear_overflow", "entry_id", entry.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		entry.Published = false
		entry.PublishedAt = nil
		entry.Overflow = false
		entry.OverflowReason = database.OverflowNone
	}

	if err := h.publisher.PublishEntry(c.Request.Context(), entry, fd); err != nil {
		slog.Error("Manual publish failed", "feed_id", fd.ID, "entry_id", entry.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Publish failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, entryResponse(entry))
}

func (h *Handler) ReauthorizeUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	user, err := h.userRepo.GetUser(userID)
	if err != nil {
		slog.Error("Database error", "operation", "get_user", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	cleared, err := h.processor.Reauthorize(user)
	if err != nil {
		slog.Error("Reauthorization failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reauthorization failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"feeds_reactivated": cleared,
	})
}

// feedFromPath resolves the :id parameter. On failure the response is
// already written and ok is false.
func (h *Handler) feedFromPath(c *gin.Context) (*database.Feed, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed id"})
		return nil, false
	}

	fd, err := h.feedRepo.GetFeed(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	if fd == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return nil, false
	}

	return fd, true
}

func listLimit(c *gin.Context) int {
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		return limit
	}
	return defaultListLimit
}

func feedResponse(fd *database.Feed) map[string]interface{} {
	return map[string]interface{}{
		"id":                     fd.ID,
		"user_id":                fd.UserID,
		"type":                   fd.Type,
		"feed_url":               fd.FeedURL,
		"link":                   fd.Link,
		"title":                  fd.Title,
		"language":               fd.Language,
		"status":                 fd.Status,
		"update_interval":        fd.UpdateInterval,
		"manual_control":         fd.ManualControl,
		"schedule_period":        fd.SchedulePeriod,
		"max_stories_per_period": fd.MaxStoriesPerPeriod,
		"include_summary":        fd.IncludeSummary,
		"include_thumb":          fd.IncludeThumb,
		"extract_content":        fd.ExtractContent,
		"hub":                    fd.Hub,
		"subscribed_at_hub":      fd.SubscribedAtHub,
		"last_fetched_at":        fd.LastFetchedAt,
		"created_at":             fd.CreatedAt,
		"updated_at":             fd.UpdatedAt,
	}
}

func entryResponse(entry *database.Entry) map[string]interface{} {
	return map[string]interface{}{
		"id":              entry.ID,
		"feed_id":         entry.FeedID,
		"guid":            entry.GUID,
		"title":           entry.Title,
		"summary":         entry.Summary,
		"link":            entry.Link,
		"author":          entry.Author,
		"thumbnail_url":   entry.ThumbnailURL,
		"published":       entry.Published,
		"published_at":    entry.PublishedAt,
		"overflow":        entry.Overflow,
		"overflow_reason": entry.OverflowReason.String(),
		"added_at":        entry.AddedAt,
	}
}

func entryResponses(entries []database.Entry) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(entries))
	for i := range entries {
		result = append(result, entryResponse(&entries[i]))
	}
	return result
}
