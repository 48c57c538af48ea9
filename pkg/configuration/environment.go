package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/fit-portal/placement/pkg/logging"
)

const Production = "production"

// MaxPreferenceRanks is the hard upper bound on a submitted preference batch.
const MaxPreferenceRanks = 5

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory. When none
// exist there, the nearest parent directory holding a go.mod is tried.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if root, ok := moduleRoot(); ok {
			existing = existingFiles(root, envFiles)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, envFiles []string) []string {
	out := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if fs.FileExists(path) {
			out = append(out, path)
		}
	}
	return out
}

func moduleRoot() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for dir := wd; ; {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"faculty_portal"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

// StudentRecordsOptions points at the student-records collaborator. An empty
// DSN means the records live in the main database.
type StudentRecordsOptions struct {
	DSN   string `env:"STUDENT_RECORDS_DSN"`
	Table string `env:"STUDENT_RECORDS_TABLE" envDefault:"student_records"`
}

type LogOptions struct {
	Level string `env:"LOG_LEVEL" envDefault:"error"`
	Path  string `env:"LOG_PATH" envDefault:"./logs/app.log"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"placement"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.GlobalRPS > 1000000 {
		return fmt.Errorf("rate limit GlobalRPS too high, maximum is 1,000,000, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type QueueCacheOptions struct {
	Backend  string        `env:"QUEUE_CACHE_BACKEND" envDefault:"memory"` // memory, redis or none
	TTL      time.Duration `env:"QUEUE_CACHE_TTL" envDefault:"5m"`
	RedisURL string        `env:"QUEUE_CACHE_REDIS_URL"`
}

func (q *QueueCacheOptions) Validate() error {
	switch q.Backend {
	case "memory", "none":
	case "redis":
		if q.RedisURL == "" {
			return fmt.Errorf("queue cache RedisURL is required when Backend is 'redis'")
		}
	default:
		return fmt.Errorf("queue cache Backend must be 'memory', 'redis' or 'none', got '%s'", q.Backend)
	}
	if q.TTL < 0 {
		return fmt.Errorf("queue cache TTL must be non-negative, got %s", q.TTL)
	}
	return nil
}

type OutboxOptions struct {
	RelayEnabled         bool          `env:"OUTBOX_RELAY_ENABLED" envDefault:"true"`
	RelayTable           string        `env:"OUTBOX_RELAY_TABLE" envDefault:"public.internship_outbox"`
	RelayPollInterval    time.Duration `env:"OUTBOX_RELAY_POLL_INTERVAL" envDefault:"1s"`
	RelayBatchSize       int           `env:"OUTBOX_RELAY_BATCH_SIZE" envDefault:"100"`
	RelayLockTTL         time.Duration `env:"OUTBOX_RELAY_LOCK_TTL" envDefault:"60s"`
	RelayMaxAttempts     int           `env:"OUTBOX_RELAY_MAX_ATTEMPTS" envDefault:"25"`
	RelayDispatchTimeout time.Duration `env:"OUTBOX_RELAY_DISPATCH_TIMEOUT" envDefault:"30s"`
	LastErrorMaxBytes    int           `env:"OUTBOX_LAST_ERROR_MAX_BYTES" envDefault:"2048"`
}

type Configuration struct {
	Database       DatabaseOptions
	StudentRecords StudentRecordsOptions
	Log            LogOptions
	OpenTelemetry  OpenTelemetryOptions
	Prometheus     PrometheusOptions
	RateLimit      RateLimitOptions
	QueueCache     QueueCacheOptions
	Outbox         OutboxOptions

	// postgres or memory; memory is meant for local demos and tests.
	StoreBackend       string `env:"STORE_BACKEND" envDefault:"postgres"`
	PreferenceMaxRanks int    `env:"PREFERENCE_MAX_RANKS" envDefault:"5"`
	// Number of server instances sharing the database.
	Replicas int `env:"REPLICAS" envDefault:"1"`

	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	Origin           string `env:"ORIGIN" envDefault:"http://localhost:3200"`
	CorsOrigins      string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`
	// Looked up on every request; a random uuidv4 is generated when absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	RealIPHeader    string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`
	// Set by the authenticating proxy in front of this service.
	ActorIDHeader string `env:"ACTOR_ID_HEADER" envDefault:"X-Actor-ID"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.Log.Level {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func (c *Configuration) CorsAllowedOrigins() []string {
	out := make([]string, 0, 2)
	for _, part := range strings.Split(c.CorsOrigins, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.Log.Path)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

// Validate normalizes and checks option groups after parsing.
func (c *Configuration) Validate() error {
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.QueueCache.Validate(); err != nil {
		return fmt.Errorf("queue cache configuration error: %w", err)
	}

	backend := strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid STORE_BACKEND=%q (expected postgres|memory)", c.StoreBackend)
	}
	c.StoreBackend = backend

	if c.Replicas < 1 {
		return fmt.Errorf("invalid REPLICAS=%d (expected >= 1)", c.Replicas)
	}
	// Each outbox row reaches one instance, so an in-process queue cache would
	// miss invalidations made elsewhere.
	if c.Replicas > 1 && c.StoreBackend == "postgres" && c.QueueCache.Backend == "memory" {
		return fmt.Errorf("QUEUE_CACHE_BACKEND=memory cannot serve REPLICAS=%d; use redis or none", c.Replicas)
	}

	if c.PreferenceMaxRanks < 1 || c.PreferenceMaxRanks > MaxPreferenceRanks {
		return fmt.Errorf("invalid PREFERENCE_MAX_RANKS=%d (expected 1..%d)", c.PreferenceMaxRanks, MaxPreferenceRanks)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
