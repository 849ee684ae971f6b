package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Pricing   PricingConfig
	Paystack  PaystackConfig
	RateLimit RateLimitConfig
	Outbox    OutboxConfig
	PubSub    PubSubConfig
	GCP       GCPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MARKETPLACE_DB_HOST"`
	Port     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	User     string `envconfig:"MARKETPLACE_DB_USER"`
	Password string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	Name     string `envconfig:"MARKETPLACE_DB_NAME"`
	SSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
}

// PricingConfig carries the injectable pricing policy used by the cart.
// Rates are expressed in basis points so money math stays integral.
type PricingConfig struct {
	TaxRateBasisPoints int    `envconfig:"MARKETPLACE_TAX_RATE_BPS" default:"750"`
	ShippingFlatCents  int64  `envconfig:"MARKETPLACE_SHIPPING_FLAT_CENTS" default:"1000"`
	Currency           string `envconfig:"MARKETPLACE_CURRENCY" default:"GHS"`
}

func (p PricingConfig) validate() error {
	if p.TaxRateBasisPoints < 0 || p.TaxRateBasisPoints > 10000 {
		return fmt.Errorf("tax rate must be between 0 and 10000 basis points, got %d", p.TaxRateBasisPoints)
	}
	if p.ShippingFlatCents < 0 {
		return fmt.Errorf("shipping fee must be non-negative, got %d", p.ShippingFlatCents)
	}
	return nil
}

type PaystackConfig struct {
	SecretKey      string        `envconfig:"MARKETPLACE_PAYSTACK_SECRET_KEY" required:"true"`
	WebhookSecret  string        `envconfig:"MARKETPLACE_PAYSTACK_WEBHOOK_SECRET"`
	BaseURL        string        `envconfig:"MARKETPLACE_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	RequestTimeout time.Duration `envconfig:"MARKETPLACE_PAYSTACK_REQUEST_TIMEOUT" default:"15s"`
	MaxRetries     int           `envconfig:"MARKETPLACE_PAYSTACK_MAX_RETRIES" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"MARKETPLACE_PAYSTACK_RETRY_BASE_DELAY" default:"250ms"`
}

// SigningSecret returns the secret used to verify webhook signatures.
// Paystack signs webhooks with the account secret key unless a dedicated
// webhook secret is configured.
func (p PaystackConfig) SigningSecret() string {
	if s := strings.TrimSpace(p.WebhookSecret); s != "" {
		return s
	}
	return strings.TrimSpace(p.SecretKey)
}

type RateLimitConfig struct {
	APILimit      int64         `envconfig:"MARKETPLACE_RATE_LIMIT_API" default:"300"`
	APIWindow     time.Duration `envconfig:"MARKETPLACE_RATE_LIMIT_API_WINDOW" default:"1m"`
	WebhookLimit  int64         `envconfig:"MARKETPLACE_RATE_LIMIT_WEBHOOK" default:"120"`
	WebhookWindow time.Duration `envconfig:"MARKETPLACE_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"MARKETPLACE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"MARKETPLACE_GCP_CREDENTIALS_JSON"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		"MARKETPLACE_DB_HOST": db.Host,
		"MARKETPLACE_DB_USER": db.User,
		"MARKETPLACE_DB_NAME": db.Name,
	}
	for _, key := range []string{"MARKETPLACE_DB_HOST", "MARKETPLACE_DB_USER", "MARKETPLACE_DB_NAME"} {
		if parts[key] == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either MARKETPLACE_DB_DSN or %s are required", strings.Join(missing, ", "))
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
