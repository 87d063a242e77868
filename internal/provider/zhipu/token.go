package zhipu

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/valpere/gameloc/internal"
)

const (
	// DefaultTokenTTL is the validity window of a signed access token.
	DefaultTokenTTL = time.Hour
	// DefaultRefreshBefore is how much validity must remain for a cached
	// token to be reused; below it a fresh token is signed.
	DefaultRefreshBefore = 30 * time.Minute
)

// TokenSource signs short-lived HS256 access tokens from an "id.secret" key
// and caches them until they come within refreshBefore of expiring.
type TokenSource struct {
	id            string
	secret        []byte
	ttl           time.Duration
	refreshBefore time.Duration
	now           func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// ParseAPIKey splits a key of the form "id.secret".
func ParseAPIKey(apiKey string) (id, secret string, err error) {
	parts := strings.Split(apiKey, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", internal.Invalid("zhipu.api_key", "expected format id.secret")
	}
	return parts[0], parts[1], nil
}

// NewTokenSource validates apiKey and returns a source. Zero durations fall
// back to the defaults; refreshBefore is clamped below ttl.
func NewTokenSource(apiKey string, ttl, refreshBefore time.Duration) (*TokenSource, error) {
	id, secret, err := ParseAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if refreshBefore <= 0 {
		refreshBefore = DefaultRefreshBefore
	}
	if refreshBefore >= ttl {
		refreshBefore = ttl / 2
	}
	return &TokenSource{
		id:            id,
		secret:        []byte(secret),
		ttl:           ttl,
		refreshBefore: refreshBefore,
		now:           time.Now,
	}, nil
}

// Token returns a valid token, signing a new one when needed.
func (s *TokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && s.expires.Sub(now) > s.refreshBefore {
		return s.token, nil
	}

	exp := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"api_key":   s.id,
		"exp":       exp.UnixMilli(),
		"timestamp": now.UnixMilli(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["sign_type"] = "SIGN"

	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	s.token, s.expires = signed, exp
	return signed, nil
}
