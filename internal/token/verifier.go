// Package token verifies identity tokens issued by the identity provider.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dtroode/taq-server/internal/logger"
	"github.com/dtroode/taq-server/internal/model"
	"github.com/dtroode/taq-server/internal/retry"
)

// ErrNotReady is returned by Verify before signing keys are loaded.
var ErrNotReady = errors.New("token verifier not ready")

var _ model.TokenVerifier = (*Verifier)(nil)

// Claims are the identity token claims the service relies on.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid,omitempty"`
}

// Verifier validates identity tokens against either the provider's JWKS
// (ES256) or a shared secret (HS256, development only).
type Verifier struct {
	issuer   string
	audience string
	methods  []string

	mu      sync.RWMutex
	keyfunc jwt.Keyfunc
	jwks    *keyfunc.JWKS
}

// JWKSConfig configures a verifier backed by a remote key set.
type JWKSConfig struct {
	URL             string
	Issuer          string
	Audience        string
	RefreshInterval time.Duration
	// LoadRetryDelay separates attempts to fetch the key set at startup.
	LoadRetryDelay time.Duration
}

// NewJWKSVerifier returns a verifier that becomes ready once the key set has
// been fetched. Fetching runs in the background until it succeeds or ctx ends.
func NewJWKSVerifier(ctx context.Context, cfg JWKSConfig, log *logger.Logger) *Verifier {
	v := &Verifier{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		methods:  []string{jwt.SigningMethodES256.Alg()},
	}

	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = time.Hour
	}
	delay := cfg.LoadRetryDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	opts := keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			log.Warn("Token verifier: failed to refresh key set", "error", err)
		},
		RefreshInterval:   refresh,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	}

	go func() {
		err := retry.Do(ctx, retry.Policy{
			Retries: retry.Unbounded,
			Delay:   delay,
			OnRetry: func(err error, wait time.Duration) {
				log.Warn("Token verifier: key set unavailable, retrying", "url", cfg.URL, "wait", wait, "error", err)
			},
		}, func(context.Context) error {
			jwks, err := keyfunc.Get(cfg.URL, opts)
			if err != nil {
				return err
			}
			v.mu.Lock()
			v.jwks = jwks
			v.keyfunc = jwks.Keyfunc
			v.mu.Unlock()
			return nil
		})
		if err != nil {
			log.Error("Token verifier: gave up loading key set", "url", cfg.URL, "error", err)
			return
		}
		log.Info("Token verifier: key set loaded", "url", cfg.URL)
	}()

	return v
}

// NewHMACVerifier returns a verifier for HS256 tokens signed with secret.
func NewHMACVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{
		issuer:   issuer,
		audience: audience,
		methods:  []string{jwt.SigningMethodHS256.Alg()},
		keyfunc: func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		},
	}
}

// Ready reports whether signing keys are available.
func (v *Verifier) Ready() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.keyfunc != nil
}

// Verify validates tokenString and returns the identity id it was issued for.
func (v *Verifier) Verify(_ context.Context, tokenString string) (string, error) {
	v.mu.RLock()
	kf := v.keyfunc
	v.mu.RUnlock()
	if kf == nil {
		return "", ErrNotReady
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, kf, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse identity token: %w", model.ErrNotAuthenticated, err)
	}
	if !token.Valid {
		return "", fmt.Errorf("%w: identity token is invalid", model.ErrNotAuthenticated)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: identity token has no subject", model.ErrNotAuthenticated)
	}
	return claims.Subject, nil
}

// Close stops background key set refreshes.
func (v *Verifier) Close() {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// SignHMAC issues an HS256 identity token. It backs the development login
// flow and tests; production tokens come from the provider.
func SignHMAC(secret, identityID, issuer, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign identity token: %w", err)
	}
	return tokenString, nil
}
