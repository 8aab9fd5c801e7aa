package tracking_test

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"

	"packdesk/internal/domain"
	"packdesk/internal/tracking"
)

func TestTrackDispatchesOncePerKey(t *testing.T) {
	var calls atomic.Int64
	tr := tracking.New("part-1", func(ctx context.Context, evt domain.TrackingEvent) error {
		calls.Add(1)
		return nil
	})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		tr.Track(ctx, 3, "asset-3", domain.EventView)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", calls.Load())
	}
}

func TestTrackDistinctKeysDispatch(t *testing.T) {
	var mu sync.Mutex
	var got []domain.TrackingEvent
	tr := tracking.New("part-1", func(ctx context.Context, evt domain.TrackingEvent) error {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
		return nil
	})
	ctx := context.Background()
	tr.Track(ctx, 0, "a0", domain.EventView)
	tr.Track(ctx, 0, "a0", domain.EventAssetClick)
	tr.Track(ctx, 0, "a0", domain.EventCTAClick)
	tr.Track(ctx, 1, "a1", domain.EventView)
	tr.Track(ctx, 1, "a1", domain.EventView)
	if len(got) != 4 {
		t.Fatalf("expected 4 dispatches, got %d", len(got))
	}
	for _, evt := range got {
		if evt.ParticipationID != "part-1" {
			t.Fatalf("participation %s", evt.ParticipationID)
		}
	}
}

func TestTrackSwallowsDispatchFailure(t *testing.T) {
	tr := tracking.New("part-1", func(ctx context.Context, evt domain.TrackingEvent) error {
		return errors.New("collector down")
	})
	tr.Logger = log.New(io.Discard, "", 0)
	// must not panic or surface anything
	tr.Track(context.Background(), 2, "a2", domain.EventCTAClick)
}

func TestConcurrentTriggersDispatchOnce(t *testing.T) {
	var calls atomic.Int64
	tr := tracking.New("part-1", func(ctx context.Context, evt domain.TrackingEvent) error {
		calls.Add(1)
		return nil
	})
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Track(context.Background(), 7, "a7", domain.EventView)
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Fatalf("expected 1 dispatch under concurrency, got %d", calls.Load())
	}
}
