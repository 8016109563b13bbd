package api

import (
	"github.com/ianmintz/pourover/app/database"
	"github.com/ianmintz/pourover/app/feed"
	"github.com/ianmintz/pourover/app/ratelimit"
	"github.com/ianmintz/pourover/app/tasks"
)

type Handler struct {
	userRepo  database.UserRepository
	feedRepo  database.FeedRepository
	entryRepo database.EntryRepository
	processor *feed.Processor
	publisher *feed.Publisher
	scheduler tasks.TaskSchedulerInterface
	limiter   ratelimit.Limiter

	instagramVerifyToken  string
	instagramClientSecret string
	defaultSchedulePeriod int
	defaultMaxPerPeriod   int
}

type CreateFeedRequest struct {
	UserID          int64  `json:"user_id" binding:"required"`
	FeedURL         string `json:"feed_url" binding:"required"`
	Type            string `json:"type"`
	InstagramUserID int64  `json:"instagram_user_id"`
	IncludeSummary  bool   `json:"include_summary"`
	IncludeThumb    bool   `json:"include_thumb"`
	ExtractContent  bool   `json:"extract_content"`
	UpdateInterval  int    `json:"update_interval"`
}

// UpdateFeedRequest uses pointers so PATCH can distinguish "not sent"
// from zero values.
type UpdateFeedRequest struct {
	IncludeSummary      *bool   `json:"include_summary"`
	IncludeThumb        *bool   `json:"include_thumb"`
	ExtractContent      *bool   `json:"extract_content"`
	ManualControl       *bool   `json:"manual_control"`
	SchedulePeriod      *int    `json:"schedule_period"`
	MaxStoriesPerPeriod *int    `json:"max_stories_per_period"`
	UpdateInterval      *int    `json:"update_interval"`
	UserAgent           *string `json:"user_agent"`
}
