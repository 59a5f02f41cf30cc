package auth

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomPasswordRoundTrip(t *testing.T) {
	hash, err := HashRoomPassword("hunter2")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := ComparePasswordAndHash("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ComparePasswordAndHash("hunter3", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := HashRoomPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts differ")
}

func TestDecodeHashRejectsGarbage(t *testing.T) {
	_, err := ComparePasswordAndHash("x", "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = ComparePasswordAndHash("x", "$argon2id$v=1$m=1,t=1,p=1$AAAA$AAAA")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestJWTCarriesUserID(t *testing.T) {
	require.NoError(t, Init(time.Hour))

	token, err := CreateJWT(42)
	require.NoError(t, err)

	id, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestKeysFromFilesVerifyIssuerTokens(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "ed25519")
	pubPath := filepath.Join(dir, "ed25519.pub")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o644))

	require.NoError(t, InitFromPath(privPath, pubPath, time.Hour))

	// A token minted elsewhere with the shared private key is accepted.
	issued, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{"sub": "9"}).SignedString(priv)
	require.NoError(t, err)
	id, err := AuthenticateJWT(issued)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	// Keys survive a restart.
	require.NoError(t, InitFromPath(privPath, pubPath, time.Hour))
	id, err = AuthenticateJWT(issued)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	assert.Error(t, InitFromPath(filepath.Join(dir, "missing"), pubPath, 0))
	require.NoError(t, os.WriteFile(pubPath, []byte("short"), 0o644))
	assert.Error(t, InitFromPath(privPath, pubPath, 0))
}

func TestJWTRejectsForeignAndExpiredTokens(t *testing.T) {
	require.NoError(t, Init(0))
	foreign, err := CreateJWT(7)
	require.NoError(t, err)

	// Rotating keys invalidates tokens signed with the old ones.
	require.NoError(t, Init(0))
	_, err = AuthenticateJWT(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"sub": "7",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := expired.SignedString(privateKey)
	require.NoError(t, err)
	_, err = AuthenticateJWT(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	bad := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{"sub": "abc"})
	signed, err = bad.SignedString(privateKey)
	require.NoError(t, err)
	_, err = AuthenticateJWT(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
