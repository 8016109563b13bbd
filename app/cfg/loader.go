package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./pourover.db" description:"Path to the SQLite database file"`

	// Application configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for hub callbacks (e.g., https://pourover.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for feed processing"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authenticated and scheduler endpoints"`
	SeedFile          string `long:"seed-file" env:"SEED_FILE" description:"YAML file with users and feeds to register at startup (optional)"`

	// Publishing configuration
	PostAPIURL            string `long:"post-api-url" env:"POST_API_URL" default:"https://alpha-api.app.net/stream/0/posts" description:"External posting API endpoint"`
	DefaultSchedulePeriod int    `long:"default-schedule-period" env:"DEFAULT_SCHEDULE_PERIOD" default:"5" description:"Default rolling window length in minutes for automatic feeds"`
	DefaultMaxPerPeriod   int    `long:"default-max-per-period" env:"DEFAULT_MAX_PER_PERIOD" default:"1" description:"Default max posts per window for automatic feeds"`

	// Instagram webhook configuration
	InstagramVerifyToken  string `long:"instagram-verify-token" env:"INSTAGRAM_VERIFY_TOKEN" description:"Verify token for Instagram subscription challenges"`
	InstagramClientSecret string `long:"instagram-client-secret" env:"INSTAGRAM_CLIENT_SECRET" description:"Client secret for Instagram push signature verification"`

	// Housekeeping
	ReservationMaxAge int    `long:"reservation-max-age" env:"RESERVATION_MAX_AGE" default:"60" description:"Age in minutes after which stale entry reservations are swept"`
	JobRateLimit      int    `long:"job-rate-limit" env:"JOB_RATE_LIMIT" default:"10" description:"Minimum seconds between invocations of each scheduled job endpoint"`
	RedisAddr         string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for distributed job rate limiting (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Pourover/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:                raw.DBPath,
		Port:                  raw.Port,
		BaseUrl:               raw.BaseUrl,
		WorkerCount:           raw.WorkerCount,
		SchedulerInterval:     raw.SchedulerInterval,
		APIAccessKey:          raw.APIAccessKey,
		SeedFile:              raw.SeedFile,
		PostAPIURL:            raw.PostAPIURL,
		DefaultSchedulePeriod: raw.DefaultSchedulePeriod,
		DefaultMaxPerPeriod:   raw.DefaultMaxPerPeriod,
		InstagramVerifyToken:  raw.InstagramVerifyToken,
		InstagramClientSecret: raw.InstagramClientSecret,
		ReservationMaxAge:     raw.ReservationMaxAge,
		JobRateLimit:          raw.JobRateLimit,
		RedisAddr:             raw.RedisAddr,
		UserAgent:             raw.UserAgent,
		Timezone:              raw.Timezone,
		Debug:                 raw.Debug,
		Version:               GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Set replaces the global configuration. Intended for tests.
func Set(c *Cfg) {
	globalCfg = c
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
