package githost

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return key, pemBytes
}

func TestAppTokenSourceExchangesAndCaches(t *testing.T) {
	key, pemBytes := testAppKey(t)

	var calls int
	var mux http.ServeMux
	mux.HandleFunc("/api/v3/app/installations/42/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		calls++

		// The exchange must be authenticated with the app JWT.
		auth := r.Header.Get("Authorization")
		require.True(t, strings.HasPrefix(auth, "Bearer "))
		token, err := jwt.ParseWithClaims(
			strings.TrimPrefix(auth, "Bearer "),
			&jwt.RegisteredClaims{},
			func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
			jwt.WithValidMethods([]string{"RS256"}),
		)
		require.NoError(t, err)
		claims, ok := token.Claims.(*jwt.RegisteredClaims)
		require.True(t, ok)
		assert.Equal(t, "1234", claims.Issuer)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token": "ghs_test%d", "expires_at": %q}`,
			calls, time.Now().Add(time.Hour).Format(time.RFC3339))
	})

	server := httptest.NewServer(&mux)
	defer server.Close()

	source, err := NewAppTokenSource(1234, 42, pemBytes, server.URL)
	require.NoError(t, err)

	ctx := context.Background()
	token, err := source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ghs_test1", token)

	// Cached until near expiry: no second exchange.
	token, err = source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ghs_test1", token)
	assert.Equal(t, 1, calls)

	// Invalidate forces a fresh exchange, the refresh path after an
	// auth failure.
	source.Invalidate()
	token, err = source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ghs_test2", token)
	assert.Equal(t, 2, calls)
}

func TestAppTokenSourceBadKey(t *testing.T) {
	_, err := NewAppTokenSource(1, 2, []byte("not a pem"), "")
	require.Error(t, err)
}

func TestAppJWTClaims(t *testing.T) {
	key, pemBytes := testAppKey(t)
	source, err := NewAppTokenSource(99, 1, pemBytes, "")
	require.NoError(t, err)

	now := time.Now()
	signed, err := source.appJWT(now)
	require.NoError(t, err)

	token, err := jwt.ParseWithClaims(
		signed,
		&jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
		jwt.WithValidMethods([]string{"RS256"}),
	)
	require.NoError(t, err)

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	require.True(t, ok)
	assert.Equal(t, "99", claims.Issuer)
	assert.True(t, claims.IssuedAt.Before(now))
	assert.True(t, claims.ExpiresAt.After(now))
}
