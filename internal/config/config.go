package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type APIConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// storage: postgres or memory
	StoreDriver    string `envconfig:"STORE_DRIVER" default:"postgres"`
	DBDSN          string `envconfig:"DB_DSN"`
	RunMigrations  bool   `envconfig:"RUN_MIGRATIONS" default:"true"`
	RecipientsFile string `envconfig:"RECIPIENTS_FILE"`

	DBPoolMaxConns          int32         `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32         `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   time.Duration `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"1h"`
	DBPoolMaxConnIdleTime   time.Duration `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:"5m"`
	DBPoolHealthCheckPeriod time.Duration `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD" default:"30s"`

	// dispatch
	DispatchConcurrency int           `envconfig:"DISPATCH_CONCURRENCY" default:"8"`
	MaxRetries          int           `envconfig:"MAX_RETRIES" default:"2"`
	RetryBackoff        time.Duration `envconfig:"RETRY_BACKOFF" default:"500ms"`
	StoreTimeout        time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	CampaignTimeout     time.Duration `envconfig:"CAMPAIGN_TIMEOUT" default:"10m"`
	ShutdownGrace       time.Duration `envconfig:"SHUTDOWN_GRACE" default:"30s"`
	TemplatesFile       string        `envconfig:"TEMPLATES_FILE"`

	// mailer: emailapi or smtp
	MailerKind    string        `envconfig:"MAILER_KIND" default:"emailapi"`
	MailerTimeout time.Duration `envconfig:"MAILER_TIMEOUT" default:"15s"`
	// MailerRPS of 0 disables send rate limiting.
	MailerRPS     float64       `envconfig:"MAILER_RPS" default:"0"`
	MailerBurst   int           `envconfig:"MAILER_BURST" default:"10"`
	EmailAPIURL   string        `envconfig:"EMAIL_API_URL" default:"http://localhost:8787"`
	EmailAPIKey   string        `envconfig:"EMAIL_API_KEY"`
	SMTPHost      string        `envconfig:"SMTP_HOST"`
	SMTPPort      int           `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser      string        `envconfig:"SMTP_USER"`
	SMTPPass      string        `envconfig:"SMTP_PASS"`
	FromEmail     string        `envconfig:"FROM_EMAIL" default:"noreply@example.com"`
	FromName      string        `envconfig:"FROM_NAME" default:"Launch Team"`

	BreakerFailures    uint32        `envconfig:"BREAKER_CONSECUTIVE_FAILURES" default:"10"`
	BreakerOpenTimeout time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`
	BreakerHalfOpenMax uint32        `envconfig:"BREAKER_HALF_OPEN_MAX_REQUESTS" default:"1"`

	// AWS / SQS; events are off when EVENTS_QUEUE_URL is empty
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`
	EventsQueueURL     string `envconfig:"EVENTS_QUEUE_URL"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
}

func (c APIConfig) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DBDSN == "" {
			return errors.New("DB_DSN is required when STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		return errors.New("STORE_DRIVER must be postgres or memory")
	}
	switch c.MailerKind {
	case "emailapi":
		if c.EmailAPIURL == "" {
			return errors.New("EMAIL_API_URL is required when MAILER_KIND=emailapi")
		}
	case "smtp":
		if c.SMTPHost == "" {
			return errors.New("SMTP_HOST is required when MAILER_KIND=smtp")
		}
	default:
		return errors.New("MAILER_KIND must be emailapi or smtp")
	}
	if c.ShutdownGrace <= c.StoreTimeout {
		return errors.New("SHUTDOWN_GRACE must exceed STORE_TIMEOUT")
	}
	if c.MaxRetries < 0 {
		return errors.New("MAX_RETRIES must be >= 0")
	}
	return nil
}

type MockProviderConfig struct {
	Port      string        `envconfig:"PORT" default:"8787"`
	LogFormat string        `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string        `envconfig:"LOG_LEVEL" default:"info"`
	Delay     time.Duration `envconfig:"MOCK_DELAY" default:"50ms"`
	// FailureRate is the share of requests answered with 500, 0..1.
	FailureRate float64 `envconfig:"MOCK_FAILURE_RATE" default:"0"`
	// FailAddresses are always rejected with 500.
	FailAddresses []string `envconfig:"MOCK_FAIL_ADDRESSES"`
	// RejectAddresses are always rejected with 400.
	RejectAddresses []string `envconfig:"MOCK_REJECT_ADDRESSES"`
}

func LoadAPI() APIConfig {
	loadDotEnv()
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func LoadMockProvider() MockProviderConfig {
	loadDotEnv()
	var cfg MockProviderConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

// loadDotEnv reads .env when present; real environment variables win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}
}
