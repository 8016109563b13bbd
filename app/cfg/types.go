package cfg

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string
	SeedFile          string

	// Publishing configuration
	PostAPIURL            string
	DefaultSchedulePeriod int
	DefaultMaxPerPeriod   int

	// Instagram webhook configuration
	InstagramVerifyToken  string
	InstagramClientSecret string

	// Housekeeping
	ReservationMaxAge int
	JobRateLimit      int
	RedisAddr         string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
