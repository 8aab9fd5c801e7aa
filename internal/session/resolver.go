// Package session resolves and caches the tenant/persona configuration
// snapshot that gates everything else in the console.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"packdesk/internal/domain"
)

// ErrConfigUnavailable is terminal: the retry budget is spent and no
// safe default role exists, so the caller must block rather than guess.
var ErrConfigUnavailable = errors.New("config unavailable")

const (
	defaultTTL      = 5 * time.Minute
	defaultAttempts = 3
)

// Context is the explicit session identity a resolver is constructed
// with. PersonaID is empty for anonymous sessions.
type Context struct {
	TenantID  string
	PersonaID string
}

// FetchFunc performs the remote config fetch. The resolver owns retry
// and caching; the func should do a single attempt and honor ctx.
type FetchFunc func(ctx context.Context, sc Context) (domain.TenantConfig, error)

// Resolver caches one TenantConfig per session with a freshness window.
// Concurrent loaders on a cold cache share a single in-flight fetch.
type Resolver struct {
	Session  Context
	Fetch    FetchFunc
	TTL      time.Duration
	Attempts int
	Now      func() time.Time

	sf        singleflight.Group
	mu        sync.Mutex
	cached    *domain.TenantConfig
	fetchedAt time.Time
}

// NewResolver creates a resolver with the default freshness window and
// retry budget.
func NewResolver(sc Context, fetch FetchFunc) *Resolver {
	return &Resolver{
		Session:  sc,
		Fetch:    fetch,
		TTL:      defaultTTL,
		Attempts: defaultAttempts,
		Now:      time.Now,
	}
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) fresh() (domain.TenantConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ttl := r.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	if r.cached != nil && r.now().Sub(r.fetchedAt) < ttl {
		return *r.cached, true
	}
	return domain.TenantConfig{}, false
}

// Load returns the cached config while fresh, otherwise fetches it.
// On failure it retries up to the attempt budget (three total), then
// surfaces ErrConfigUnavailable wrapping the last cause. A caller whose
// context ends while another caller's fetch is in flight abandons the
// wait; the late result is not delivered to it.
func (r *Resolver) Load(ctx context.Context) (domain.TenantConfig, error) {
	if cfg, ok := r.fresh(); ok {
		return cfg, nil
	}
	ch := r.sf.DoChan("config", func() (any, error) {
		return r.fetchWithRetry(ctx)
	})
	select {
	case <-ctx.Done():
		return domain.TenantConfig{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.TenantConfig{}, res.Err
		}
		return res.Val.(domain.TenantConfig), nil
	}
}

func (r *Resolver) fetchWithRetry(ctx context.Context) (domain.TenantConfig, error) {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return domain.TenantConfig{}, err
		}
		cfg, err := r.Fetch(ctx, r.Session)
		if err == nil {
			r.mu.Lock()
			r.cached = &cfg
			r.fetchedAt = r.now()
			r.mu.Unlock()
			return cfg, nil
		}
		lastErr = err
	}
	return domain.TenantConfig{}, fmt.Errorf("%w: %s", ErrConfigUnavailable, lastErr)
}

// HasFeature reports a feature flag from the cached config. Absent
// flags and an unloaded cache both read as false: flags default closed.
func (r *Resolver) HasFeature(flag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		return false
	}
	return r.cached.FeatureFlags[flag]
}

// Cached returns the last resolved config without fetching.
func (r *Resolver) Cached() (domain.TenantConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		return domain.TenantConfig{}, false
	}
	return *r.cached, true
}

// Invalidate drops the cached snapshot; the next Load fetches again.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}
