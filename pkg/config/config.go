package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Tasks         TasksConfig
	Feed          FeedConfig
	Orders        OrdersConfig
	Notifications NotificationsConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate reports every cross-field problem envconfig cannot express.
func (c *Config) validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.App.LogFormat == "json" || c.App.LogFormat == "console",
		"ORDERDESK_LOG_FORMAT must be json or console, got %q", c.App.LogFormat)
	check(c.DB.Driver == "postgres" || c.DB.Driver == "sqlite",
		"ORDERDESK_DB_DRIVER must be postgres or sqlite, got %q", c.DB.Driver)
	check(c.Outbox.BatchSize > 0, "ORDERDESK_OUTBOX_PUBLISH_BATCH_SIZE must be positive")
	check(c.Outbox.MaxAttempts > 0, "ORDERDESK_OUTBOX_MAX_ATTEMPTS must be positive")
	check(c.Cron.LockTTL > 0, "ORDERDESK_CRON_LOCK_TTL must be positive")
	check(c.Cron.JobTimeout >= 0, "ORDERDESK_CRON_JOB_TIMEOUT must not be negative")
	check(c.Feed.MaxBytes > 0, "ORDERDESK_FEED_MAX_BYTES must be positive")
	if errs != nil {
		return fmt.Errorf("invalid config: %w", errs)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"ORDERDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ORDERDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERDESK_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"ORDERDESK_LOG_FORMAT" default:"json"`

	// CORSOrigins is a comma-separated allow list for browser clients.
	CORSOrigins []string `envconfig:"ORDERDESK_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERDESK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERDESK_DB_DSN"`
	Driver string `envconfig:"ORDERDESK_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"ORDERDESK_DB_HOST"`
	Port     int    `envconfig:"ORDERDESK_DB_PORT" default:"5432"`
	User     string `envconfig:"ORDERDESK_DB_USER"`
	Password string `envconfig:"ORDERDESK_DB_PASSWORD"`
	Name     string `envconfig:"ORDERDESK_DB_NAME"`
	SSLMode  string `envconfig:"ORDERDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERDESK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERDESK_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ORDERDESK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ORDERDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ORDERDESK_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TokenTTL returns the access token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int           `envconfig:"ORDERDESK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int           `envconfig:"ORDERDESK_ARGON_TIME" default:"3"`
	ArgonParallelism int           `envconfig:"ORDERDESK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int           `envconfig:"ORDERDESK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int           `envconfig:"ORDERDESK_ARGON_KEY_LEN" default:"32"`
	MinLength        int           `envconfig:"ORDERDESK_PASSWORD_MIN_LENGTH" default:"8"`
	ResetTokenTTL    time.Duration `envconfig:"ORDERDESK_PASSWORD_RESET_TOKEN_TTL" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERDESK_DB_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"ORDERDESK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ORDERDESK_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	TasksTopic               string `envconfig:"ORDERDESK_PUBSUB_TASKS_TOPIC" default:"od-task-events"`
	TasksSubscription        string `envconfig:"ORDERDESK_PUBSUB_TASKS_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"ORDERDESK_PUBSUB_NOTIFICATION_TOPIC" default:"od-notification-events"`
	NotificationSubscription string `envconfig:"ORDERDESK_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	MaxOutstandingMessages   int    `envconfig:"ORDERDESK_PUBSUB_MAX_OUTSTANDING_MESSAGES" default:"4"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERDESK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERDESK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type TasksConfig struct {
	StaleAfter time.Duration `envconfig:"ORDERDESK_TASKS_STALE_AFTER" default:"30m"`
	Retention  time.Duration `envconfig:"ORDERDESK_TASKS_RETENTION" default:"168h"`
}

type FeedConfig struct {
	FetchTimeout time.Duration `envconfig:"ORDERDESK_FEED_FETCH_TIMEOUT" default:"30s"`
	MaxBytes     int64         `envconfig:"ORDERDESK_FEED_MAX_BYTES" default:"10485760"`
	LockTTL      time.Duration `envconfig:"ORDERDESK_FEED_IMPORT_LOCK_TTL" default:"10m"`
}

type OrdersConfig struct {
	ScopeStateToShop bool `envconfig:"ORDERDESK_ORDERS_SCOPE_STATE_TO_SHOP" default:"false"`
}

type NotificationsConfig struct {
	SMTPHost     string `envconfig:"ORDERDESK_SMTP_HOST"`
	SMTPPort     int    `envconfig:"ORDERDESK_SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"ORDERDESK_SMTP_USER"`
	SMTPPassword string `envconfig:"ORDERDESK_SMTP_PASSWORD"`
	DefaultFrom  string `envconfig:"ORDERDESK_SMTP_FROM_EMAIL" default:"no-reply@orderdesk.local"`
}

// SMTPEnabled reports whether outgoing mail should go through an SMTP relay.
func (n NotificationsConfig) SMTPEnabled() bool {
	return strings.TrimSpace(n.SMTPHost) != ""
}

type CronConfig struct {
	Interval time.Duration `envconfig:"ORDERDESK_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"ORDERDESK_CRON_LOCK_TTL" default:"4m"`
	// JobTimeout caps one job; zero falls back to Interval.
	JobTimeout time.Duration `envconfig:"ORDERDESK_CRON_JOB_TIMEOUT" default:"0"`

	// RetentionEvery spaces out the outbox purge, which only needs a daily pass.
	RetentionEvery time.Duration `envconfig:"ORDERDESK_CRON_RETENTION_EVERY" default:"24h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
