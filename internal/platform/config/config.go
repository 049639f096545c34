package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MinDeliveryLease is the longest a single delivery can run: backoffs of 1s, 2s and 4s plus four
// 10s attempt timeouts. A shorter lease lets another worker reclaim a job that is still running.
const MinDeliveryLease = 47 * time.Second

// Config is the process configuration, read from the environment.
type Config struct {
	Port string

	// StorageBackend selects the object store: "memory" or "redis".
	StorageBackend string
	RedisURL       string
	RedisPrefix    string

	// DatabaseURL enables the Postgres form directory and durable delivery queue.
	DatabaseURL string

	// OperatorToken, when set, is required as a bearer token on the /forms owner routes.
	OperatorToken string

	// FormsFile is an optional YAML seed upserted into the form directory at startup.
	FormsFile string

	// DeliveryMode is "queue" or "detached". Queue mode requires DatabaseURL.
	DeliveryMode         string
	DeliveryWorkers      int
	DeliveryPollInterval time.Duration
	DeliveryLease        time.Duration

	LogLevel  string
	LogFormat string

	MaxBodyBytes int64

	QuotaFree       int
	QuotaPro        int
	QuotaTeam       int
	QuotaEnterprise int
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Port:                 getenv("PORT", "8080"),
		StorageBackend:       strings.ToLower(getenv("STORAGE_BACKEND", "memory")),
		RedisURL:             os.Getenv("REDIS_URL"),
		RedisPrefix:          getenv("REDIS_PREFIX", "vf"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		FormsFile:            os.Getenv("FORMS_FILE"),
		OperatorToken:        os.Getenv("OPERATOR_TOKEN"),
		DeliveryWorkers:      4,
		DeliveryPollInterval: time.Second,
		DeliveryLease:        2 * time.Minute,
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogFormat:            getenv("LOG_FORMAT", "text"),
		MaxBodyBytes:         1 << 20,
		QuotaFree:            100,
		QuotaPro:             1000,
		QuotaTeam:            10000,
		QuotaEnterprise:      0,
	}

	switch cfg.StorageBackend {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL is required when STORAGE_BACKEND=redis")
		}
	default:
		return Config{}, fmt.Errorf("STORAGE_BACKEND must be memory or redis, got %q", cfg.StorageBackend)
	}

	defaultMode := "detached"
	if cfg.DatabaseURL != "" {
		defaultMode = "queue"
	}
	cfg.DeliveryMode = strings.ToLower(getenv("DELIVERY_MODE", defaultMode))
	switch cfg.DeliveryMode {
	case "detached":
	case "queue":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when DELIVERY_MODE=queue")
		}
	default:
		return Config{}, fmt.Errorf("DELIVERY_MODE must be queue or detached, got %q", cfg.DeliveryMode)
	}

	var err error
	if cfg.DeliveryWorkers, err = intEnv("DELIVERY_WORKERS", cfg.DeliveryWorkers); err != nil {
		return Config{}, err
	}
	if cfg.DeliveryPollInterval, err = durationEnv("DELIVERY_POLL_INTERVAL", cfg.DeliveryPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.DeliveryLease, err = durationEnv("DELIVERY_LEASE", cfg.DeliveryLease); err != nil {
		return Config{}, err
	}
	if cfg.DeliveryLease < MinDeliveryLease {
		return Config{}, fmt.Errorf("DELIVERY_LEASE must be at least %s, got %s", MinDeliveryLease, cfg.DeliveryLease)
	}
	maxBody, err := intEnv("MAX_BODY_BYTES", int(cfg.MaxBodyBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBodyBytes = int64(maxBody)
	if cfg.QuotaFree, err = intEnv("QUOTA_FREE", cfg.QuotaFree); err != nil {
		return Config{}, err
	}
	if cfg.QuotaPro, err = intEnv("QUOTA_PRO", cfg.QuotaPro); err != nil {
		return Config{}, err
	}
	if cfg.QuotaTeam, err = intEnv("QUOTA_TEAM", cfg.QuotaTeam); err != nil {
		return Config{}, err
	}
	if cfg.QuotaEnterprise, err = intEnv("QUOTA_ENTERPRISE", cfg.QuotaEnterprise); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func intEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", k, err)
	}
	return n, nil
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 1s): %w", k, err)
	}
	return d, nil
}
