package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"packdesk/internal/domain"
	"packdesk/internal/session"
)

func staticFetch(calls *atomic.Int64) session.FetchFunc {
	return func(ctx context.Context, sc session.Context) (domain.TenantConfig, error) {
		calls.Add(1)
		return domain.TenantConfig{
			TenantID:     sc.TenantID,
			Role:         domain.RolePartnerAdmin,
			FeatureFlags: map[string]bool{"sequence_campaigns": true},
		}, nil
	}
}

func TestLoadCachesWithinFreshnessWindow(t *testing.T) {
	var calls atomic.Int64
	r := session.NewResolver(session.Context{TenantID: "acme"}, staticFetch(&calls))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.Now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		cfg, err := r.Load(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.TenantID != "acme" {
			t.Fatalf("tenant %s", cfg.TenantID)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls.Load())
	}

	now = now.Add(6 * time.Minute)
	if _, err := r.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", calls.Load())
	}
}

func TestLoadStopsAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int64
	r := session.NewResolver(session.Context{TenantID: "acme"}, func(ctx context.Context, sc session.Context) (domain.TenantConfig, error) {
		calls.Add(1)
		return domain.TenantConfig{}, errors.New("relay timeout")
	})
	_, err := r.Load(context.Background())
	if !errors.Is(err, session.ErrConfigUnavailable) {
		t.Fatalf("expected ErrConfigUnavailable, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls.Load())
	}
}

func TestConcurrentColdLoadersShareOneFetch(t *testing.T) {
	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	r := session.NewResolver(session.Context{TenantID: "acme"}, func(ctx context.Context, sc session.Context) (domain.TenantConfig, error) {
		calls.Add(1)
		close(started)
		<-release
		return domain.TenantConfig{TenantID: sc.TenantID, Role: domain.RoleAnalyst}, nil
	})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Load(context.Background())
			errs <- err
		}()
	}
	<-started
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one shared fetch, got %d", calls.Load())
	}
}

func TestHasFeatureDefaultsClosed(t *testing.T) {
	var calls atomic.Int64
	r := session.NewResolver(session.Context{TenantID: "acme"}, staticFetch(&calls))
	if r.HasFeature("sequence_campaigns") {
		t.Fatalf("unloaded resolver must report false")
	}
	if _, err := r.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !r.HasFeature("sequence_campaigns") {
		t.Fatalf("expected flag true after load")
	}
	if r.HasFeature("pack_approvals") {
		t.Fatalf("absent flag must read false")
	}
}

func TestCanceledWaiterAbandonsFetch(t *testing.T) {
	release := make(chan struct{})
	r := session.NewResolver(session.Context{TenantID: "acme"}, func(ctx context.Context, sc session.Context) (domain.TenantConfig, error) {
		<-release
		return domain.TenantConfig{TenantID: sc.TenantID}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Load(ctx)
		done <- err
	}()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)
}
