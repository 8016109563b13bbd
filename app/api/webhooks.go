package api

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ianmintz/pourover/app/tasks"
)

// HubChallenge answers a PubSubHubbub verification request: the hub
// calls back with a challenge that must be echoed verbatim. A token
// mismatch is answered with 400 so the hub abandons the subscription.
func (h *Handler) HubChallenge(c *gin.Context) {
	fd, ok := h.feedFromPath(c)
	if !ok {
		return
	}

	challenge := c.Query("hub.challenge")
	token := c.Query("hub.verify_token")

	// PuSH 0.4 hubs omit the verify token, so only an echoed token that
	// disagrees with ours fails verification.
	if token != "" && fd.VerifyToken != "" && token != fd.VerifyToken {
		slog.Warn("Hub challenge token mismatch", "feed_id", fd.ID)
		c.String(http.StatusBadRequest, "Failed Verification")
		return
	}

	if c.Query("hub.mode") == "subscribe" {
		if err := h.processor.ConfirmHubSubscription(fd); err != nil {
			slog.Error("Failed to record hub subscription", "feed_id", fd.ID, "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		slog.Info("Hub subscription verified", "feed_id", fd.ID, "hub", fd.Hub)
	}

	c.String(http.StatusOK, challenge)
}

// HubPush ingests content pushed by the feed's hub. When the feed has a
// shared secret, the body must carry a matching HMAC-SHA1 signature;
// an unsigned or mis-signed push is dropped with an empty 200 so the
// hub does not retry a payload we will never accept.
func (h *Handler) HubPush(c *gin.Context) {
	fd, ok := h.feedFromPath(c)
	if !ok {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if fd.HubSecret != "" && !verifySignature(body, c.GetHeader("X-Hub-Signature"), fd.HubSecret) {
		slog.Warn("Hub push signature mismatch", "feed_id", fd.ID)
		c.Status(http.StatusOK)
		return
	}

	numNewItems, err := h.processor.ProcessPushedFeed(c.Request.Context(), fd, body)
	if err != nil {
		slog.Error("Failed to process hub push", "feed_id", fd.ID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	slog.Info("Hub push processed", "feed_id", fd.ID, "new_items", numNewItems)
	c.Status(http.StatusOK)
}

// InstagramChallenge answers the Instagram subscription handshake,
// which uses a single service-wide verify token.
func (h *Handler) InstagramChallenge(c *gin.Context) {
	if token := c.Query("hub.verify_token"); token != "" && token != h.instagramVerifyToken {
		slog.Warn("Instagram challenge token mismatch")
		c.String(http.StatusBadRequest, "Failed Verification")
		return
	}

	c.String(http.StatusOK, c.Query("hub.challenge"))
}

type instagramUpdate struct {
	ObjectID string `json:"object_id"`
}

// InstagramPush fans pushed media notifications out to queued poll
// tasks rather than fetching inline; Instagram expects a fast ack.
func (h *Handler) InstagramPush(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if h.instagramClientSecret != "" && !verifySignature(body, c.GetHeader("X-Hub-Signature"), h.instagramClientSecret) {
		slog.Warn("Instagram push signature mismatch")
		c.Status(http.StatusOK)
		return
	}

	var updates []instagramUpdate
	if err := json.Unmarshal(body, &updates); err != nil {
		slog.Error("Failed to parse Instagram push body", "error", err)
		c.Status(http.StatusBadRequest)
		return
	}

	ids := make([]int64, 0, len(updates))
	for _, update := range updates {
		id, err := strconv.ParseInt(update.ObjectID, 10, 64)
		if err != nil {
			slog.Warn("Skipping unparseable Instagram object id", "object_id", update.ObjectID)
			continue
		}
		ids = append(ids, id)
	}

	feeds, err := h.feedRepo.GetInstagramFeeds(ids)
	if err != nil {
		slog.Error("Database error", "operation", "get_instagram_feeds", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	enqueued := 0
	for i := range feeds {
		task := tasks.NewPollFeedTask(feeds[i].ID, h.feedRepo, h.processor)
		if err := h.scheduler.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue poll for Instagram push", "feed_id", feeds[i].ID, "error", err)
			continue
		}
		enqueued++
	}

	slog.Info("Instagram push processed", "updates", len(updates), "feeds_enqueued", enqueued)
	c.JSON(http.StatusOK, gin.H{"feeds_enqueued": enqueued})
}

// verifySignature checks an HMAC-SHA1 hex signature over body. Hubs
// differ on whether the header value carries a "sha1=" prefix, so both
// forms are accepted.
func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha1=")

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}
