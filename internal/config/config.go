package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	PollSchedule string
	SQLitePath   string
	TenantsFile  string

	TelegramToken  string
	TelegramDMRate float64

	FeedTimeout time.Duration

	// Reverse geocoding (locality lookup for alerts).
	GeocodeURL       string
	GeocodeTimeout   time.Duration
	GeocodeCacheSize int

	// Mapbox forward geocoding, used to validate subscription cities.
	MapboxToken   string
	MapboxEnabled bool
	MapboxTimeout time.Duration

	// Delivery stream; disabled when no brokers are configured.
	KafkaBrokers       []string
	KafkaDeliveryTopic string

	// Distributed tenant locks; in-process locks when empty.
	RedisAddr string
	LockTTL   time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	feedTimeout, err := parsePositiveDuration("FEED_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	geocodeTimeout, err := parsePositiveDuration("GEOCODE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	lockTTL, err := parsePositiveDuration("LOCK_TTL", "10m")
	if err != nil {
		return nil, err
	}

	dmRate, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("TELEGRAM_DM_RATE", "20"), 64)
	if err != nil || dmRate <= 0 {
		return nil, errors.New("invalid TELEGRAM_DM_RATE")
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	var brokers []string
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		PollSchedule: sharedcfg.EnvOrDefault("POLL_SCHEDULE", "@every 5m"),
		SQLitePath:   sharedcfg.EnvOrDefault("SQLITE_PATH", "data/seismic-alert.db"),
		TenantsFile:  os.Getenv("TENANTS_FILE"),

		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramDMRate: dmRate,

		FeedTimeout: feedTimeout,

		GeocodeURL:       sharedcfg.EnvOrDefault("GEOCODE_URL", "https://api.bigdatacloud.net/data/reverse-geocode-client"),
		GeocodeTimeout:   geocodeTimeout,
		GeocodeCacheSize: parseCacheSize(),

		MapboxToken:   mapboxToken,
		MapboxEnabled: mapboxEnabled,
		MapboxTimeout: mapboxTimeout,

		KafkaBrokers:       brokers,
		KafkaDeliveryTopic: sharedcfg.EnvOrDefault("KAFKA_DELIVERY_TOPIC", "seismic-deliveries"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		LockTTL:   lockTTL,
	}

	if cfg.TelegramToken == "" {
		return nil, errors.New("TELEGRAM_TOKEN is required")
	}
	if cfg.SQLitePath == "" {
		return nil, errors.New("SQLITE_PATH is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaDeliveryTopic == "" {
		return nil, errors.New("KAFKA_DELIVERY_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether deliveries are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseCacheSize() int {
	if s := os.Getenv("GEOCODE_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
