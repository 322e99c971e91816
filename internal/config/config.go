package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"

	"github.com/congo-pay/custody/internal/units"
)

const (
	defaultAppName         = "Custody"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultEventStream     = "stream:wallet"
	defaultFaucetMax       = "100 ether"
	defaultFaucetPerMinute = 5
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Event sinks accepted by EVENT_SINK.
const (
	SinkLog   = "log"
	SinkRedis = "redis"
	SinkKafka = "kafka"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string
	AppEnv          string
	Port            string
	LogLevel        string
	DatabaseURL     string
	RedisURL        string
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
	EventSink       string
	EventStream     string
	KafkaServers    string
	OwnerOnlySends  bool
	FaucetMax       *uint256.Int
	FaucetPerMinute int
}

// Load reads an optional .env file, then configuration values from the
// environment. Variables already set win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		EventSink:       strings.ToLower(getEnv("EVENT_SINK", SinkLog)),
		EventStream:     getEnv("EVENT_STREAM", defaultEventStream),
		KafkaServers:    os.Getenv("KAFKA_SERVERS"),
		FaucetPerMinute: defaultFaucetPerMinute,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("OWNER_ONLY_SENDS"); v != "" {
		if cfg.OwnerOnlySends, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid OWNER_ONLY_SENDS: %w", err)
		}
	}
	if cfg.FaucetMax, err = units.ParseValue(getEnv("FAUCET_MAX", defaultFaucetMax)); err != nil {
		return Config{}, fmt.Errorf("invalid FAUCET_MAX: %w", err)
	}
	if v := os.Getenv("FAUCET_PER_MINUTE"); v != "" {
		if cfg.FaucetPerMinute, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("invalid FAUCET_PER_MINUTE: %w", err)
		}
	}

	switch cfg.EventSink {
	case SinkLog, SinkRedis:
	case SinkKafka:
		if cfg.KafkaServers == "" {
			return Config{}, fmt.Errorf("KAFKA_SERVERS must be set when EVENT_SINK=kafka")
		}
	default:
		return Config{}, fmt.Errorf("invalid EVENT_SINK %q", cfg.EventSink)
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}
	if cfg.EventSink == SinkRedis && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set when EVENT_SINK=redis")
	}

	return cfg, nil
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
