// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the service configuration, read from the environment.
type Config struct {
	Port string

	PostgresUser     string
	PostgresPassword string
	PGHost           string
	PGPort           string
	PGDatabase       string

	RedisAddr      string
	RedisDB        int
	RoomEventQueue string

	LeaseTimeout      time.Duration
	ForceStartTimeout time.Duration
	TokenExpireTime   time.Duration

	// Raw ed25519 key files shared with the service that issues tokens. When unset
	// the server signs with a key pair generated at startup.
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string

	HistorianBatchSize int
	HistorianFlush     time.Duration

	WSMessagesPerSecond int
}

// Load reads every setting, applying defaults for anything unset.
func Load() (Config, error) {
	c := Config{
		Port:             getEnv("PORT", "8080"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PGHost:           getEnv("PG_HOST", "localhost"),
		PGPort:           getEnv("PG_PORT", "5432"),
		PGDatabase:       getEnv("PG_DATABASE", "matchroom"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RoomEventQueue:   getEnv("ROOM_EVENT_QUEUE", "matchroom_events"),

		LeaseTimeout:      getEnvDuration("LEASE_TIMEOUT", 5*time.Second),
		ForceStartTimeout: getEnvDuration("FORCE_START_TIMEOUT", 30*time.Second),
		JWTPrivateKeyPath: os.Getenv("JWT_PRIVATE_KEY_PATH"),
		JWTPublicKeyPath:  os.Getenv("JWT_PUBLIC_KEY_PATH"),

		HistorianBatchSize:  getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:      time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		WSMessagesPerSecond: getEnvInt("WS_MESSAGES_PER_SECOND", 10),
	}

	// "never" and "0" issue tokens without expiry.
	switch expire := os.Getenv("TOKEN_EXPIRE_TIME"); expire {
	case "", "never", "0":
	default:
		d, err := time.ParseDuration(expire)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse TOKEN_EXPIRE_TIME: %w", err)
		}
		c.TokenExpireTime = d
	}

	if (c.JWTPrivateKeyPath == "") != (c.JWTPublicKeyPath == "") {
		return Config{}, fmt.Errorf("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set together")
	}
	if c.HistorianBatchSize <= 0 {
		return Config{}, fmt.Errorf("HISTORIAN_BATCH_SIZE must be positive, got %d", c.HistorianBatchSize)
	}
	if c.WSMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("WS_MESSAGES_PER_SECOND must be positive, got %d", c.WSMessagesPerSecond)
	}
	return c, nil
}

// PostgresDSN builds the pgx connection string.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.PostgresUser, c.PostgresPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as an integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration parses an environment variable as a time.Duration, else a default value.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
