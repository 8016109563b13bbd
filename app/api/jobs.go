package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ianmintz/pourover/app/tasks"
)

// Job endpoints mirror what the internal ticker does, so an external
// cron can drive the service instead. All of them are idempotent.

// UpdateFeedsAtInterval enqueues a poll for every active feed
// configured with the given update interval.
func (h *Handler) UpdateFeedsAtInterval(c *gin.Context) {
	interval, err := strconv.Atoi(c.Param("interval"))
	if err != nil || interval <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid interval"})
		return
	}

	if !h.limiter.Allow(fmt.Sprintf("jobs:update:%d", interval)) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Job invoked too recently"})
		return
	}

	feeds, err := h.feedRepo.GetFeedsForInterval(interval)
	if err != nil {
		slog.Error("Database error", "operation", "get_feeds_for_interval", "interval", interval, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	enqueued := 0
	errorCount := 0
	for i := range feeds {
		task := tasks.NewPollFeedTask(feeds[i].ID, h.feedRepo, h.processor)
		if err := h.scheduler.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue poll task", "feed_id", feeds[i].ID, "error", err)
			errorCount++
			continue
		}
		enqueued++
	}

	slog.Info("Update job completed", "interval", interval, "enqueued", enqueued, "errors", errorCount)

	c.JSON(http.StatusOK, gin.H{
		"interval": interval,
		"enqueued": enqueued,
		"errors":   errorCount,
	})
}

// PostAllFeeds runs one publish pass over every active feed inline. A
// single feed's failure is counted, not propagated, so siblings still
// get their pass.
func (h *Handler) PostAllFeeds(c *gin.Context) {
	if !h.limiter.Allow("jobs:post") {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Job invoked too recently"})
		return
	}

	feeds, err := h.feedRepo.GetActiveFeeds()
	if err != nil {
		slog.Error("Database error", "operation", "get_active_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	posted := 0
	errorCount := 0
	for i := range feeds {
		n, err := h.publisher.PublishForFeed(c.Request.Context(), &feeds[i], false)
		if err != nil {
			slog.Warn("Publish pass failed for feed", "feed_id", feeds[i].ID, "error", err)
			errorCount++
			continue
		}
		posted += n
	}

	slog.Info("Post job completed", "feeds", len(feeds), "posted", posted, "errors", errorCount)

	c.JSON(http.StatusOK, gin.H{
		"feeds":  len(feeds),
		"posted": posted,
		"errors": errorCount,
	})
}

// SubscribeAllFeeds enqueues the hub resubscribe sweep.
func (h *Handler) SubscribeAllFeeds(c *gin.Context) {
	if !h.limiter.Allow("jobs:subscribe") {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Job invoked too recently"})
		return
	}

	task := tasks.NewResubscribeTask(h.feedRepo, h.processor)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Failed to enqueue resubscribe task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue task"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.GetID(),
			"type": task.GetType(),
		},
	})
}
