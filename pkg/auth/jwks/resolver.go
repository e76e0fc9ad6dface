package jwks

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/osvaldoandrade/fngate/internal/metrics"
	"github.com/osvaldoandrade/fngate/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL           = 10 * time.Minute
	DefaultHTTPTimeout        = 5 * time.Second
	DefaultMinRefreshInterval = 30 * time.Second
	DefaultFailureBackoff     = 5 * time.Second

	maxDocumentBytes = 1 << 20
)

var (
	ErrFetch        = errors.New("jwks fetch failed")
	ErrKeyNotFound  = errors.New("signing key not found")
	ErrMissingKeyID = errors.New("missing kid in token header")
)

// Resolver resolves signing keys from a remote key set. Keys are cached for
// cacheTTL; an unknown kid triggers a refetch, at most once per
// minRefreshInterval. Concurrent misses share one fetch and its error, and a
// failed fetch is not retried for failureBackoff. Safe for concurrent use.
type Resolver struct {
	url                string
	client             *http.Client
	store              KeyStore
	cacheTTL           time.Duration
	minRefreshInterval time.Duration
	failureBackoff     time.Duration
	logger             *slog.Logger
	now                func() time.Time

	mu        sync.RWMutex
	keys      map[string]Key
	fetchedAt time.Time

	flights singleflight.Group

	attemptMu   sync.Mutex
	lastAttempt time.Time
	lastFailure time.Time
	lastErr     error
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithHTTPClient replaces the client used to fetch the key set.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithKeyStore shares fetched documents through store.
func WithKeyStore(store KeyStore) ResolverOption {
	return func(r *Resolver) { r.store = store }
}

// WithFailureBackoff sets how long a failed fetch is reused before the
// endpoint is tried again. Zero retries on every miss.
func WithFailureBackoff(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d >= 0 {
			r.failureBackoff = d
		}
	}
}

func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver creates a resolver for the key set at jwksURL.
func NewResolver(jwksURL string, cacheTTL, httpTimeout, minRefreshInterval time.Duration, opts ...ResolverOption) (*Resolver, error) {
	if strings.TrimSpace(jwksURL) == "" {
		return nil, errors.New("jwksURL is required")
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	if httpTimeout <= 0 {
		httpTimeout = DefaultHTTPTimeout
	}
	if minRefreshInterval < 0 {
		minRefreshInterval = 0
	}
	r := &Resolver{
		url:                jwksURL,
		client:             &http.Client{Timeout: httpTimeout},
		cacheTTL:           cacheTTL,
		minRefreshInterval: minRefreshInterval,
		failureBackoff:     DefaultFailureBackoff,
		logger:             slog.Default(),
		now:                time.Now,
		keys:               map[string]Key{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// URL returns the key set location.
func (r *Resolver) URL() string {
	return r.url
}

// ResolveKey returns the public key for kid. An empty kid resolves only when
// the key set holds exactly one key.
func (r *Resolver) ResolveKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if key, ok := r.cached(kid); ok {
		metrics.KeyLookupTotal.WithLabelValues("hit").Inc()
		return key.PublicKey, nil
	}
	metrics.KeyLookupTotal.WithLabelValues("miss").Inc()

	if err := r.refresh(ctx, kid); err != nil {
		return nil, err
	}

	if key, ok := r.lookup(kid); ok {
		return key.PublicKey, nil
	}
	if kid == "" {
		return nil, ErrMissingKeyID
	}
	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
}

// Keys returns a snapshot of the cached keys, fetching the set if the cache
// is empty or stale.
func (r *Resolver) Keys(ctx context.Context) ([]Key, error) {
	if !r.fresh() {
		if err := r.refresh(ctx, ""); err != nil {
			return nil, err
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Key, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, k)
	}
	return out, nil
}

func (r *Resolver) cached(kid string) (Key, bool) {
	if !r.fresh() {
		return Key{}, false
	}
	return r.lookup(kid)
}

func (r *Resolver) fresh() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.fetchedAt.IsZero() && r.now().Sub(r.fetchedAt) < r.cacheTTL
}

func (r *Resolver) lookup(kid string) (Key, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if kid == "" {
		if len(r.keys) == 1 {
			for _, k := range r.keys {
				return k, true
			}
		}
		return Key{}, false
	}
	k, ok := r.keys[kid]
	return k, ok
}

// refresh joins the in-flight refresh for kid, or starts one. The fetch runs
// detached from ctx so a caller giving up does not fail the others waiting
// on it; the HTTP client timeout bounds it.
func (r *Resolver) refresh(ctx context.Context, kid string) error {
	ch := r.flights.DoChan(kid, func() (interface{}, error) {
		return nil, r.doRefresh(context.WithoutCancel(ctx), kid)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
	}
}

func (r *Resolver) doRefresh(ctx context.Context, kid string) error {
	// a flight that just finished may already have installed the key
	if _, ok := r.cached(kid); ok {
		return nil
	}

	if r.store != nil {
		doc, ok, err := r.store.Get(ctx, r.url)
		switch {
		case err != nil:
			r.logger.Warn("jwks store read failed", "url", r.url, "err", err)
		case ok:
			keys, perr := ParseKeySet(doc)
			if perr == nil {
				metrics.JWKSFetchTotal.WithLabelValues("store", "ok").Inc()
				r.install(keys)
				if _, found := r.lookup(kid); found {
					return nil
				}
			}
		}
	}

	now := r.now()
	r.attemptMu.Lock()
	if r.lastErr != nil && now.Sub(r.lastFailure) < r.failureBackoff {
		err := r.lastErr
		r.attemptMu.Unlock()
		r.logger.Debug("jwks fetch backing off", "url", r.url, "kid", kid)
		return err
	}
	if r.fresh() && now.Sub(r.lastAttempt) < r.minRefreshInterval {
		r.attemptMu.Unlock()
		r.logger.Debug("jwks refetch throttled", "url", r.url, "kid", kid)
		return nil
	}
	r.lastAttempt = now
	r.attemptMu.Unlock()

	doc, keys, err := r.fetch(ctx)

	r.attemptMu.Lock()
	if err != nil {
		r.lastFailure, r.lastErr = r.now(), err
	} else {
		r.lastFailure, r.lastErr = time.Time{}, nil
	}
	r.attemptMu.Unlock()
	if err != nil {
		return err
	}
	r.install(keys)

	if r.store != nil {
		if err := r.store.Set(ctx, r.url, doc, r.cacheTTL); err != nil {
			r.logger.Warn("jwks store write failed", "url", r.url, "err", err)
		}
	}
	return nil
}

func (r *Resolver) install(keys map[string]Key) {
	r.mu.Lock()
	r.keys = keys
	r.fetchedAt = r.now()
	r.mu.Unlock()
}

func (r *Resolver) fetch(ctx context.Context) ([]byte, map[string]Key, error) {
	ctx, span := tracing.StartKeyFetch(ctx, r.url)
	defer span.End()

	start := time.Now()
	doc, keys, err := r.fetchDocument(ctx)
	metrics.JWKSFetchLatencySeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.JWKSFetchTotal.WithLabelValues("network", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "jwks fetch failed")
		r.logger.Warn("jwks fetch failed", "url", r.url, "err", err)
		return nil, nil, err
	}
	metrics.JWKSFetchTotal.WithLabelValues("network", "ok").Inc()
	span.SetAttributes(attribute.Int("jwks.keys", len(keys)))
	r.logger.Debug("jwks fetched", "url", r.url, "keys", len(keys))
	return doc, keys, nil
}

func (r *Resolver) fetchDocument(ctx context.Context) ([]byte, map[string]Key, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("%w: endpoint returned status %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read response: %v", ErrFetch, err)
	}

	keys, err := ParseKeySet(body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return body, keys, nil
}
