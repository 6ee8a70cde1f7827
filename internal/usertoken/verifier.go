package usertoken

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"favbooks/internal/util"
)

const (
	signingAlg                = "RS256"
	defaultLeeway             = 30 * time.Second
	defaultMinRefetchInterval = 30 * time.Second
	defaultHTTPTimeout        = 5 * time.Second
	// failureBackoff spaces out retries after a failed key set fetch.
	failureBackoff = 2 * time.Second
)

// Config configures bearer-token verification against an identity provider's JWKS.
type Config struct {
	JWKSURL string
	// Issuer and Audience are checked only when set.
	Issuer   string
	Audience string
	Leeway   time.Duration
	// RefreshInterval bounds how long a cached key is trusted. Zero keeps keys
	// for the life of the process.
	RefreshInterval time.Duration
	// MinRefetchInterval throttles refetches triggered by unknown key ids.
	MinRefetchInterval time.Duration
	HTTPClient         *http.Client
}

// Claims is the verified payload of a user token. Subject is the owner id.
type Claims struct {
	jwt.RegisteredClaims
}

type cachedKey struct {
	key       *rsa.PublicKey
	fetchedAt time.Time
}

// Verifier validates RS256 bearer tokens. It fetches the key set lazily on
// first use and caches keys by kid for the lifetime of the instance.
type Verifier struct {
	jwksURL         string
	issuer          string
	audience        string
	leeway          time.Duration
	refreshInterval time.Duration
	minRefetch      time.Duration
	httpClient      *http.Client
	now             func() time.Time

	fetch singleflight.Group

	mu          sync.RWMutex
	keys        map[string]cachedKey
	lastFetch   time.Time
	lastFailure time.Time
	lastErr     error
}

// NewVerifier creates a token verifier. No network call is made until the
// first token is verified.
func NewVerifier(cfg Config) (*Verifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, errors.New("token verifier requires jwksURL")
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	minRefetch := cfg.MinRefetchInterval
	if minRefetch <= 0 {
		minRefetch = defaultMinRefetchInterval
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Verifier{
		jwksURL:         jwksURL,
		issuer:          strings.TrimSpace(cfg.Issuer),
		audience:        strings.TrimSpace(cfg.Audience),
		leeway:          leeway,
		refreshInterval: cfg.RefreshInterval,
		minRefetch:      minRefetch,
		httpClient:      httpClient,
		now:             time.Now,
		keys:            make(map[string]cachedKey),
	}, nil
}

// TokenFromHeader extracts the token from an Authorization header value.
// The scheme must be "bearer" in any letter case.
func TokenFromHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedHeader
	}
	return token, nil
}

// Verify checks the Authorization header value and returns the token claims.
func (v *Verifier) Verify(ctx context.Context, authHeader string) (Claims, error) {
	token, err := TokenFromHeader(authHeader)
	if err != nil {
		return Claims{}, err
	}
	return v.VerifyToken(ctx, token)
}

// VerifyToken checks a raw JWT string.
func (v *Verifier) VerifyToken(ctx context.Context, token string) (Claims, error) {
	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, fmt.Errorf("%w: token header has no kid", ErrInvalidToken)
		}
		return v.signingKey(ctx, kid)
	}, v.parserOptions()...)
	if err != nil {
		if errors.Is(err, ErrKeySet) || errors.Is(err, ErrInvalidToken) {
			return Claims{}, err
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: token subject missing", ErrInvalidToken)
	}
	return claims, nil
}

// Invalidate drops every cached key so the next verification refetches the key set.
func (v *Verifier) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys = make(map[string]cachedKey)
	v.lastFetch = time.Time{}
	v.lastFailure = time.Time{}
	v.lastErr = nil
}

func (v *Verifier) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingAlg}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	return opts
}

func (v *Verifier) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	entry, found := v.lookup(kid)
	if found && !v.stale(entry) {
		return entry.key, nil
	}
	if allowed, lastErr := v.refetchAllowed(); !allowed {
		if found {
			return entry.key, nil
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: no signing key matches kid %q", ErrKeySet, kid)
	}

	// Concurrent misses share one fetch; it must not die with whichever
	// request happened to start it.
	fetchCtx := context.WithoutCancel(ctx)
	if _, err, _ := v.fetch.Do("jwks", func() (any, error) {
		return nil, v.refresh(fetchCtx)
	}); err != nil {
		return nil, err
	}

	entry, found = v.lookup(kid)
	if !found {
		return nil, fmt.Errorf("%w: no signing key matches kid %q", ErrKeySet, kid)
	}
	return entry.key, nil
}

func (v *Verifier) lookup(kid string) (cachedKey, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.keys[kid]
	return entry, ok
}

func (v *Verifier) stale(entry cachedKey) bool {
	if v.refreshInterval <= 0 {
		return false
	}
	return v.now().Sub(entry.fetchedAt) >= v.refreshInterval
}

// refetchAllowed reports whether the key set may be fetched again. While a
// recent fetch failure is backing off it also returns that failure.
func (v *Verifier) refetchAllowed() (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	now := v.now()
	if v.lastErr != nil && now.Sub(v.lastFailure) < failureBackoff {
		return false, v.lastErr
	}
	return v.lastFetch.IsZero() || now.Sub(v.lastFetch) >= v.minRefetch, nil
}

func (v *Verifier) refresh(ctx context.Context) error {
	now := v.now()
	keys, err := v.loadKeys(ctx, now)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.lastFailure = now
		v.lastErr = err
		return err
	}
	v.keys = keys
	v.lastFetch = now
	v.lastFailure = time.Time{}
	v.lastErr = nil
	return nil
}

func (v *Verifier) loadKeys(ctx context.Context, now time.Time) (map[string]cachedKey, error) {
	logger := util.LoggerFromContext(ctx)
	logger.Info("fetching signing keys", "jwks_url", v.jwksURL)
	keys, err := v.fetchKeySet(ctx)
	if err != nil {
		logger.Warn("signing key fetch failed", "err", err)
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: key set is empty", ErrKeySet)
	}
	candidates := signingKeys(keys)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: key set has no signing keys", ErrKeySet)
	}

	fresh := make(map[string]cachedKey, len(candidates))
	for _, k := range candidates {
		pub, err := k.publicKey()
		if err != nil {
			logger.Warn("skipping unusable signing key", "kid", k.Kid, "err", err)
			continue
		}
		fresh[strings.TrimSpace(k.Kid)] = cachedKey{key: pub, fetchedAt: now}
	}
	if len(fresh) == 0 {
		return nil, fmt.Errorf("%w: no signing key could be decoded", ErrKeySet)
	}
	logger.Info("signing keys cached", "count", len(fresh))
	return fresh, nil
}
