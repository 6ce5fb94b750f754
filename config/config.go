package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Admin       AdminConfig
	Stripe      StripeConfig
	Zoom        ZoomConfig
	Mail        MailConfig
	Queue       QueueConfig
	Fulfillment FulfillmentConfig
	RateLimit   RateLimitConfig
	Tracing     TracingConfig
}

type AppConfig struct {
	Name        string
	Port        string
	Env         string
	LogLevel    string
	CORSOrigins []string
}

type DBConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret       string
	AccessExpiry time.Duration
}

type AdminConfig struct {
	Email        string
	PasswordHash string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	SessionTTL    time.Duration
}

type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIBaseURL   string
}

type MailConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	FromName        string
	OperatorAddress string
}

type QueueConfig struct {
	URL      string
	Exchange string
	Queue    string
	Buffer   int
}

type FulfillmentConfig struct {
	Concurrency int
	Timeout     time.Duration
	Lease       time.Duration
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type TracingConfig struct {
	Endpoint string
}

// Stripe accepts expires_at between 30 minutes and 24 hours after the
// session is created; the margins absorb clock skew and request latency.
const (
	MinCheckoutSessionTTL = 31 * time.Minute
	MaxCheckoutSessionTTL = 24*time.Hour - 5*time.Minute
)

// ClampCheckoutSessionTTL bounds d to the window Stripe accepts.
func ClampCheckoutSessionTTL(d time.Duration) time.Duration {
	switch {
	case d < MinCheckoutSessionTTL:
		return MinCheckoutSessionTTL
	case d > MaxCheckoutSessionTTL:
		return MaxCheckoutSessionTTL
	default:
		return d
	}
}

func setDefaults() {
	viper.SetDefault("APP_NAME", "consultation-booking")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_AUTO_MIGRATE", true)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)

	viper.SetDefault("CHECKOUT_SUCCESS_URL", "http://localhost:3000/booking/success?session_id={CHECKOUT_SESSION_ID}")
	viper.SetDefault("CHECKOUT_CANCEL_URL", "http://localhost:3000/booking")

	viper.SetDefault("ZOOM_TOKEN_URL", "https://zoom.us/oauth/token")
	viper.SetDefault("ZOOM_API_BASE_URL", "https://api.zoom.us/v2")

	viper.SetDefault("MAIL_HOST", "smtp.gmail.com")
	viper.SetDefault("MAIL_PORT", 587)
	viper.SetDefault("MAIL_FROM_NAME", "Consultation Booking")

	viper.SetDefault("QUEUE_EXCHANGE", "booking.events")
	viper.SetDefault("QUEUE_NAME", "booking.fulfillment")
	viper.SetDefault("QUEUE_BUFFER", 100)

	viper.SetDefault("WORKER_CONCURRENCY", 4)

	viper.SetDefault("RATE_LIMIT_RPS", 2.0)
	viper.SetDefault("RATE_LIMIT_BURST", 5)
}

// LoadConfig reads path (usually ".env") when it exists and overlays the
// process environment. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	setDefaults()
	viper.SetConfigFile(path)
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	accessExpiry := parseDuration("JWT_ACCESS_EXPIRY", 12*time.Hour)

	sessionTTL := ClampCheckoutSessionTTL(parseDuration("CHECKOUT_SESSION_TTL", MinCheckoutSessionTTL))

	mailUser := firstNonEmpty(viper.GetString("MAIL_USERNAME"), viper.GetString("EMAIL_USER"))

	config := &Config{
		App: AppConfig{
			Name:        viper.GetString("APP_NAME"),
			Port:        viper.GetString("APP_PORT"),
			Env:         viper.GetString("APP_ENV"),
			LogLevel:    viper.GetString("LOG_LEVEL"),
			CORSOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		DB: DBConfig{
			Host:        viper.GetString("DB_HOST"),
			Port:        viper.GetString("DB_PORT"),
			User:        viper.GetString("DB_USER"),
			Password:    viper.GetString("DB_PASSWORD"),
			Name:        viper.GetString("DB_NAME"),
			SSLMode:     viper.GetString("DB_SSLMODE"),
			AutoMigrate: viper.GetBool("DB_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:       viper.GetString("JWT_SECRET"),
			AccessExpiry: accessExpiry,
		},
		Admin: AdminConfig{
			Email:        strings.ToLower(strings.TrimSpace(viper.GetString("ADMIN_EMAIL"))),
			PasswordHash: viper.GetString("ADMIN_PASSWORD_HASH"),
		},
		Stripe: StripeConfig{
			SecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:    viper.GetString("CHECKOUT_SUCCESS_URL"),
			CancelURL:     viper.GetString("CHECKOUT_CANCEL_URL"),
			SessionTTL:    sessionTTL,
		},
		Zoom: ZoomConfig{
			AccountID:    viper.GetString("ZOOM_ACCOUNT_ID"),
			ClientID:     viper.GetString("ZOOM_CLIENT_ID"),
			ClientSecret: viper.GetString("ZOOM_CLIENT_SECRET"),
			TokenURL:     viper.GetString("ZOOM_TOKEN_URL"),
			APIBaseURL:   strings.TrimRight(viper.GetString("ZOOM_API_BASE_URL"), "/"),
		},
		Mail: MailConfig{
			Host:            viper.GetString("MAIL_HOST"),
			Port:            viper.GetInt("MAIL_PORT"),
			Username:        mailUser,
			Password:        firstNonEmpty(viper.GetString("MAIL_PASSWORD"), viper.GetString("EMAIL_APP_PASSWORD")),
			FromName:        viper.GetString("MAIL_FROM_NAME"),
			OperatorAddress: firstNonEmpty(viper.GetString("MAIL_OPERATOR_ADDRESS"), mailUser),
		},
		Queue: QueueConfig{
			URL:      viper.GetString("QUEUE_URL"),
			Exchange: viper.GetString("QUEUE_EXCHANGE"),
			Queue:    viper.GetString("QUEUE_NAME"),
			Buffer:   viper.GetInt("QUEUE_BUFFER"),
		},
		Fulfillment: FulfillmentConfig{
			Concurrency: viper.GetInt("WORKER_CONCURRENCY"),
			Timeout:     parseDuration("FULFILLMENT_TIMEOUT", 2*time.Minute),
			Lease:       parseDuration("FULFILLMENT_LEASE", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RPS:   viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst: viper.GetInt("RATE_LIMIT_BURST"),
		},
		Tracing: TracingConfig{
			Endpoint: viper.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}

	return config, nil
}

// Validate reports settings the service cannot start without.
// Meeting and mail credentials are checked when they are used.
func (c *Config) Validate() error {
	var missing []string
	if c.DB.Host == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.DB.Name == "" {
		missing = append(missing, "DB_NAME")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.Stripe.WebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
