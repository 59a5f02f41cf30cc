package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "REDIS_ADDR", "REDIS_DB", "ROOM_EVENT_QUEUE", "LEASE_TIMEOUT", "FORCE_START_TIMEOUT",
		"TOKEN_EXPIRE_TIME", "HISTORIAN_BATCH_SIZE", "HISTORIAN_FLUSH_MS", "WS_MESSAGES_PER_SECOND",
		"JWT_PRIVATE_KEY_PATH", "JWT_PUBLIC_KEY_PATH",
	} {
		t.Setenv(key, "")
	}

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "localhost:6379", c.RedisAddr)
	assert.Equal(t, "matchroom_events", c.RoomEventQueue)
	assert.Equal(t, 5*time.Second, c.LeaseTimeout)
	assert.Equal(t, 30*time.Second, c.ForceStartTimeout)
	assert.Zero(t, c.TokenExpireTime)
	assert.Equal(t, 20, c.HistorianBatchSize)
	assert.Equal(t, 500*time.Millisecond, c.HistorianFlush)
	assert.Equal(t, 10, c.WSMessagesPerSecond)
	assert.Empty(t, c.JWTPrivateKeyPath)
	assert.Empty(t, c.JWTPublicKeyPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LEASE_TIMEOUT", "250ms")
	t.Setenv("FORCE_START_TIMEOUT", "not-a-duration")
	t.Setenv("TOKEN_EXPIRE_TIME", "72h")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("POSTGRES_USER", "rooms")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("PG_DATABASE", "live")
	t.Setenv("JWT_PRIVATE_KEY_PATH", "/keys/ed25519")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/keys/ed25519.pub")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, 250*time.Millisecond, c.LeaseTimeout)
	assert.Equal(t, 30*time.Second, c.ForceStartTimeout, "unparseable values fall back")
	assert.Equal(t, 72*time.Hour, c.TokenExpireTime)
	assert.Equal(t, 3, c.RedisDB)
	assert.Equal(t, "postgres://rooms:pw@db:6543/live", c.PostgresDSN())
	assert.Equal(t, "/keys/ed25519", c.JWTPrivateKeyPath)
	assert.Equal(t, "/keys/ed25519.pub", c.JWTPublicKeyPath)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TOKEN_EXPIRE_TIME", "soon")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("TOKEN_EXPIRE_TIME", "never")
	t.Setenv("HISTORIAN_BATCH_SIZE", "0")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRequiresBothKeyPaths(t *testing.T) {
	t.Setenv("JWT_PRIVATE_KEY_PATH", "/keys/ed25519")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_PUBLIC_KEY_PATH")

	t.Setenv("JWT_PRIVATE_KEY_PATH", "")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/keys/ed25519.pub")
	_, err = Load()
	assert.Error(t, err)
}
