package cognito

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/upb/identity-core/internal/observability"
	"github.com/upb/identity-core/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrJWKSFetchFailed is returned when the key set endpoint cannot be read
var ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")

const maxJWKSBytes = 1 << 20

// KeySetConfig holds configuration for KeySet
type KeySetConfig struct {
	URL string

	// TTL is how long a fetched key set is trusted without refetching
	TTL time.Duration

	// MinRefreshInterval rate-limits refreshes caused by unknown key IDs
	MinRefreshInterval time.Duration

	// MaxStaleness bounds how long the last good key set is served
	// while refreshes fail
	MaxStaleness time.Duration

	HTTPTimeout time.Duration
}

// KeySet caches the provider's signing keys and refreshes them on expiry or
// when a token names an unknown kid. Concurrent refreshes share one fetch.
type KeySet struct {
	cfg     KeySetConfig
	client  *http.Client
	store   KeySetStore
	logger  *zap.Logger
	metrics observability.Metrics
	now     func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

// KeySetOption configures optional KeySet collaborators
type KeySetOption func(*KeySet)

// WithKeySetStore shares fetched key sets through store
func WithKeySetStore(store KeySetStore) KeySetOption {
	return func(ks *KeySet) { ks.store = store }
}

// WithHTTPClient replaces the HTTP client used for fetching
func WithHTTPClient(client *http.Client) KeySetOption {
	return func(ks *KeySet) { ks.client = client }
}

// WithKeySetMetrics records refresh outcomes
func WithKeySetMetrics(metrics observability.Metrics) KeySetOption {
	return func(ks *KeySet) { ks.metrics = metrics }
}

// NewKeySet creates a key set cache for cfg.URL
func NewKeySet(cfg KeySetConfig, logger *zap.Logger, opts ...KeySetOption) *KeySet {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.MinRefreshInterval <= 0 {
		cfg.MinRefreshInterval = 30 * time.Second
	}
	if cfg.MaxStaleness <= 0 {
		cfg.MaxStaleness = 24 * time.Hour
	}
	if cfg.MaxStaleness < cfg.TTL {
		cfg.MaxStaleness = cfg.TTL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}

	ks := &KeySet{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		logger:  logger.With(zap.String("jwks_url", cfg.URL)),
		metrics: observability.NoopMetrics{},
		now:     time.Now,
		keys:    make(map[string]*rsa.PublicKey),
	}
	for _, opt := range opts {
		opt(ks)
	}
	return ks
}

type keyState struct {
	key            *rsa.PublicKey
	fresh          bool
	usable         bool
	refreshAllowed bool
}

func (ks *KeySet) lookup(kid string) keyState {
	now := ks.now()

	ks.mu.RLock()
	defer ks.mu.RUnlock()

	age := now.Sub(ks.fetchedAt)
	return keyState{
		key:            ks.keys[kid],
		fresh:          !ks.fetchedAt.IsZero() && age < ks.cfg.TTL,
		usable:         !ks.fetchedAt.IsZero() && age < ks.cfg.MaxStaleness,
		refreshAllowed: ks.lastAttempt.IsZero() || now.Sub(ks.lastAttempt) >= ks.cfg.MinRefreshInterval,
	}
}

// Key returns the signing key for kid. Errors are *models.TokenError with
// reason unknown_kid or transport.
func (ks *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	st := ks.lookup(kid)
	if st.key != nil && st.fresh {
		return st.key, nil
	}

	// Refreshes are rate limited whether caused by expiry or an unknown kid.
	if st.refreshAllowed {
		err := ks.refresh(ctx, kid)
		after := ks.lookup(kid)
		if err == nil {
			if after.key != nil {
				return after.key, nil
			}
			return nil, models.NewTokenError(models.TokenUnknownKid, fmt.Errorf("kid %q not in key set", kid))
		}

		if after.key != nil && after.usable {
			ks.logger.Warn("serving stale signing key after failed refresh",
				zap.String("kid", kid),
				zap.Error(err))
			return after.key, nil
		}
		return nil, models.NewTokenError(models.TokenTransport, err)
	}

	switch {
	case st.key != nil && st.usable:
		return st.key, nil
	case st.usable:
		return nil, models.NewTokenError(models.TokenUnknownKid, fmt.Errorf("kid %q not in key set", kid))
	default:
		return nil, models.NewTokenError(models.TokenTransport, fmt.Errorf("%w: no usable key set", ErrJWKSFetchFailed))
	}
}

// Refresh forces a fetch of the key set
func (ks *KeySet) Refresh(ctx context.Context) error {
	return ks.refresh(ctx, "")
}

// refresh joins or starts the fetch for kid. Flights are keyed by kid because
// a shared store hit only proves the kid that started the flight. The fetch is
// detached from ctx so a cancelled caller does not fail the other waiters.
func (ks *KeySet) refresh(ctx context.Context, kid string) error {
	ch := ks.group.DoChan("jwks:"+kid, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ks.cfg.HTTPTimeout)
		defer cancel()
		return nil, ks.fetch(fetchCtx, kid)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, ctx.Err())
	}
}

func (ks *KeySet) fetch(ctx context.Context, kid string) error {
	start := ks.now()

	ks.mu.RLock()
	current := ks.fetchedAt
	ks.mu.RUnlock()

	// Stamped on completion so callers arriving mid-flight join it instead of
	// being rate limited.
	defer func() {
		ks.mu.Lock()
		ks.lastAttempt = ks.now()
		ks.mu.Unlock()
	}()

	if ks.store != nil {
		if keys, fetchedAt, ok := ks.loadFromStore(ctx, kid, current); ok {
			ks.install(keys, fetchedAt)
			ks.metrics.RecordKeySetRefresh("store", ks.now().Sub(start))
			return nil
		}
	}

	doc, err := ks.download(ctx)
	if err == nil {
		var keys map[string]*rsa.PublicKey
		keys, err = parseKeySet(doc)
		if err == nil {
			fetchedAt := ks.now()
			ks.install(keys, fetchedAt)
			ks.saveToStore(ctx, doc, fetchedAt)
			ks.metrics.RecordKeySetRefresh("success", ks.now().Sub(start))
			ks.logger.Debug("signing keys refreshed", zap.Int("keys", len(keys)))
			return nil
		}
	}

	ks.metrics.RecordKeySetRefresh("error", ks.now().Sub(start))
	ks.logger.Warn("signing key refresh failed", zap.Error(err))
	return err
}

func (ks *KeySet) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := ks.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	doc, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	return doc, nil
}

// loadFromStore accepts a shared key set only if it is newer than ours,
// still fresh, and holds the wanted kid.
func (ks *KeySet) loadFromStore(ctx context.Context, kid string, current time.Time) (map[string]*rsa.PublicKey, time.Time, bool) {
	stored, err := ks.store.Load(ctx, ks.cfg.URL)
	if err != nil {
		ks.logger.Warn("key set store load failed", zap.Error(err))
		return nil, time.Time{}, false
	}
	if stored == nil || !stored.FetchedAt.After(current) || ks.now().Sub(stored.FetchedAt) >= ks.cfg.TTL {
		return nil, time.Time{}, false
	}

	keys, err := parseKeySet(stored.Document)
	if err != nil {
		ks.logger.Warn("ignoring invalid stored key set", zap.Error(err))
		return nil, time.Time{}, false
	}
	if kid != "" && keys[kid] == nil {
		return nil, time.Time{}, false
	}
	return keys, stored.FetchedAt, true
}

func (ks *KeySet) saveToStore(ctx context.Context, doc []byte, fetchedAt time.Time) {
	if ks.store == nil {
		return
	}
	set := &StoredKeySet{Document: json.RawMessage(doc), FetchedAt: fetchedAt}
	if err := ks.store.Save(ctx, ks.cfg.URL, set, ks.cfg.TTL); err != nil {
		ks.logger.Warn("key set store save failed", zap.Error(err))
	}
}

// install replaces the cached keys; keys no longer published are dropped.
// A set older than the cached one is ignored.
func (ks *KeySet) install(keys map[string]*rsa.PublicKey, fetchedAt time.Time) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if fetchedAt.Before(ks.fetchedAt) {
		return
	}
	ks.keys = keys
	ks.fetchedAt = fetchedAt
}

// Stats returns cache statistics
func (ks *KeySet) Stats() map[string]interface{} {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	return map[string]interface{}{
		"cached_keys_count": len(ks.keys),
		"fetched_at":        ks.fetchedAt,
		"last_attempt":      ks.lastAttempt,
	}
}
