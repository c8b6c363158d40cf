package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr      string
	PublicBaseURL string
	OTLPEndpoint  string

	// TrustedProxies lists the proxies allowed to set X-Forwarded-For.
	// Empty means the TCP peer is the client.
	TrustedProxies []string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	RateLimit RateLimitConfig

	// GatewayConfigSecret derives the key used to encrypt stored gateway credentials.
	GatewayConfigSecret string

	// NonWalletCeiling caps a single order paid through an external gateway.
	NonWalletCeiling string

	Webhook   WebhookConfig
	Scheduler SchedulerConfig
	Worker    WorkerConfig
	Email     EmailConfig

	SettingsPath string
	// AdminToken guards the operator settings endpoint. Empty disables it.
	AdminToken string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig bounds wallet debits per user with a Redis token bucket.
type RateLimitConfig struct {
	Enabled     bool
	WalletRate  float64
	WalletBurst int
}

type WebhookConfig struct {
	EnforceIPAllowlist bool
}

type SchedulerConfig struct {
	Enabled           bool
	TickInterval      time.Duration
	ReconcileInterval time.Duration
	RelayInterval     time.Duration
	// Jobs limits the scheduler to a comma separated job list. Empty runs all.
	Jobs string
}

type WorkerConfig struct {
	Enabled     bool
	Concurrency int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	return Config{
		AppName:       getenv("APP_SERVICE", "creatorpay"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   environment,
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		TrustedProxies: getenvList("TRUSTED_PROXIES"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "creatorpay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},

		RateLimit: RateLimitConfig{
			Enabled:     getenvBool("RATE_LIMIT_ENABLED", false),
			WalletRate:  getenvFloat("RATE_LIMIT_WALLET_RATE", 2),
			WalletBurst: int(getenvInt64("RATE_LIMIT_WALLET_BURST", 10)),
		},

		GatewayConfigSecret: strings.TrimSpace(getenv("GATEWAY_CONFIG_SECRET", "")),
		NonWalletCeiling:    getenv("NON_WALLET_CEILING", "300.00"),

		Webhook: WebhookConfig{
			// allow-lists are always enforced in production
			EnforceIPAllowlist: environment == "production" || getenvBool("WEBHOOK_ENFORCE_IP_ALLOWLIST", false),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getenvBool("SCHEDULER_ENABLED", true),
			TickInterval:      getenvDuration("SCHEDULER_TICK_INTERVAL", time.Minute),
			ReconcileInterval: getenvDuration("RECONCILE_INTERVAL", 15*time.Minute),
			RelayInterval:     getenvDuration("OUTBOX_RELAY_INTERVAL", time.Minute),
			Jobs:              getenv("SCHEDULER_JOBS", ""),
		},
		Worker: WorkerConfig{
			Enabled:     getenvBool("WORKER_ENABLED", true),
			Concurrency: int(getenvInt64("WORKER_CONCURRENCY", 10)),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@creatorpay.local"),
		},

		SettingsPath: getenv("SETTINGS_PATH", ""),
		AdminToken:   strings.TrimSpace(getenv("ADMIN_TOKEN", "")),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
