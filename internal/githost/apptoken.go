package githost

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v68/github"
	"github.com/pitabwire/util"
)

const (
	appJWTLifetime = 9 * time.Minute

	// installation tokens last an hour; renew with margin so a token
	// never expires mid-run.
	tokenRenewMargin = 5 * time.Minute
)

// AppTokenSource mints GitHub App installation tokens: a short-lived
// RS256 app JWT authenticates the exchange, the resulting installation
// token is cached until close to expiry. Invalidate drops the cached
// token so the next call re-exchanges, which is the refresh path after
// an auth-classed failure.
type AppTokenSource struct {
	appID          int64
	installationID int64
	key            *rsa.PrivateKey
	apps           *github.AppsService

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewAppTokenSource parses the PEM private key and prepares the
// exchange client. baseURL overrides the API endpoint; empty means
// github.com.
func NewAppTokenSource(appID, installationID int64, privateKeyPEM []byte, baseURL string) (*AppTokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse app private key: %w", err)
	}

	s := &AppTokenSource{
		appID:          appID,
		installationID: installationID,
		key:            key,
	}

	client := github.NewClient(&http.Client{
		Transport: &appJWTTransport{source: s},
	})
	if baseURL != "" {
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("set base URL: %w", err)
		}
	}
	s.apps = client.Apps
	return s, nil
}

// Token implements TokenSource.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expires.Add(-tokenRenewMargin)) {
		return s.token, nil
	}

	inst, _, err := s.apps.CreateInstallationToken(ctx, s.installationID, nil)
	if err != nil {
		return "", fmt.Errorf("exchange installation token: %w", err)
	}

	s.token = inst.GetToken()
	s.expires = inst.GetExpiresAt().Time

	util.Log(ctx).Debug("installation token refreshed",
		"installation", s.installationID,
		"expires", s.expires,
	)
	return s.token, nil
}

// Invalidate implements TokenSource.
func (s *AppTokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expires = time.Time{}
	s.mu.Unlock()
}

// appJWT signs a fresh app-level JWT. Issued-at is backdated a minute
// to absorb clock skew against the host.
func (s *AppTokenSource) appJWT(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    fmt.Sprintf("%d", s.appID),
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return signed, nil
}

// appJWTTransport authenticates exchange requests with the app JWT.
type appJWTTransport struct {
	source *AppTokenSource
}

func (t *appJWTTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	signed, err := t.source.appJWT(time.Now())
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+signed)
	return http.DefaultTransport.RoundTrip(clone)
}
