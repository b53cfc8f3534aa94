package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "TABLEPOINTS_DB_DSN"
	EnvDBHost = "TABLEPOINTS_DB_HOST"
	EnvDBUser = "TABLEPOINTS_DB_USER"
	EnvDBName = "TABLEPOINTS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Loyalty      LoyaltyConfig
	Push         PushConfig
	Sendgrid     SendgridConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TABLEPOINTS_APP_ENV" required:"true"`
	Port         string `envconfig:"TABLEPOINTS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TABLEPOINTS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TABLEPOINTS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TABLEPOINTS_DB_DSN"`
	Driver string `envconfig:"TABLEPOINTS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TABLEPOINTS_DB_HOST"`
	LegacyPort     int    `envconfig:"TABLEPOINTS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TABLEPOINTS_DB_USER"`
	LegacyPassword string `envconfig:"TABLEPOINTS_DB_PASSWORD"`
	LegacyName     string `envconfig:"TABLEPOINTS_DB_NAME"`
	LegacySSLMode  string `envconfig:"TABLEPOINTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TABLEPOINTS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TABLEPOINTS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TABLEPOINTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TABLEPOINTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TABLEPOINTS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TABLEPOINTS_REDIS_ADDR"`
	Password     string        `envconfig:"TABLEPOINTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"TABLEPOINTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TABLEPOINTS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TABLEPOINTS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TABLEPOINTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TABLEPOINTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TABLEPOINTS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TABLEPOINTS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TABLEPOINTS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TABLEPOINTS_JWT_EXPIRATION_MINUTES" default:"60"`
}

// LoyaltyConfig tunes ledger behavior per deployment.
type LoyaltyConfig struct {
	WelcomeBonusPoints  int64 `envconfig:"TABLEPOINTS_WELCOME_BONUS_POINTS" default:"100"`
	MemberCodeAttempts  int   `envconfig:"TABLEPOINTS_MEMBER_CODE_ATTEMPTS" default:"15"`
	HistoryPageSize     int   `envconfig:"TABLEPOINTS_HISTORY_PAGE_SIZE" default:"50"`
	RestaurantFeedLimit int   `envconfig:"TABLEPOINTS_RESTAURANT_FEED_LIMIT" default:"20"`
}

// PushConfig carries the VAPID key pair for Web Push delivery. Push sending is
// disabled when the keys are absent.
type PushConfig struct {
	VAPIDPublicKey  string        `envconfig:"TABLEPOINTS_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `envconfig:"TABLEPOINTS_VAPID_PRIVATE_KEY"`
	Subject         string        `envconfig:"TABLEPOINTS_VAPID_SUBJECT" default:"mailto:support@tablepoints.io"`
	TTL             int           `envconfig:"TABLEPOINTS_PUSH_TTL_SECONDS" default:"60"`
	SendTimeout     time.Duration `envconfig:"TABLEPOINTS_PUSH_SEND_TIMEOUT" default:"10s"`
}

// Configured reports whether the provider credentials are present.
func (p PushConfig) Configured() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

type SendgridConfig struct {
	APIKey      string `envconfig:"TABLEPOINTS_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"TABLEPOINTS_SENDGRID_FROM_EMAIL" default:"hello@tablepoints.io"`
	FromName    string `envconfig:"TABLEPOINTS_SENDGRID_FROM_NAME" default:"TablePoints"`
}

type RateLimitConfig struct {
	NotifyWindow time.Duration `envconfig:"TABLEPOINTS_RATE_LIMIT_NOTIFY_WINDOW" default:"1m"`
	NotifyLimit  int64         `envconfig:"TABLEPOINTS_RATE_LIMIT_NOTIFY_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TABLEPOINTS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TABLEPOINTS_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
