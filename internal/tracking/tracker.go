// Package tracking reports partner interactions with sequence content
// without double-counting. Telemetry is best effort: a failed dispatch
// never blocks the interaction that triggered it.
package tracking

import (
	"context"
	"log"
	"sync"

	"packdesk/internal/domain"
)

// DispatchFunc forwards one event to the metrics collaborator.
type DispatchFunc func(ctx context.Context, evt domain.TrackingEvent) error

// Tracker dedupes events per session. The key is
// (participation, day, event type); a view re-triggered by re-hovering
// the same item is sent at most once for the tracker's lifetime.
type Tracker struct {
	ParticipationID string
	Dispatch        DispatchFunc
	Logger          *log.Logger

	mu   sync.Mutex
	sent map[dedupeKey]struct{}
}

type dedupeKey struct {
	day       int
	eventType string
}

// New creates a tracker for one participation session.
func New(participationID string, dispatch DispatchFunc) *Tracker {
	return &Tracker{
		ParticipationID: participationID,
		Dispatch:        dispatch,
		sent:            make(map[dedupeKey]struct{}),
	}
}

func (t *Tracker) logger() *log.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return log.Default()
}

// reserve performs the check-and-set on the dedupe key. The key is
// claimed before dispatch so concurrent triggers cannot double-send.
func (t *Tracker) reserve(key dedupeKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sent == nil {
		t.sent = make(map[dedupeKey]struct{})
	}
	if _, dup := t.sent[key]; dup {
		return false
	}
	t.sent[key] = struct{}{}
	return true
}

// Track reports one interaction, fire and forget. Duplicate keys are
// dropped silently; dispatch failures are logged and swallowed.
func (t *Tracker) Track(ctx context.Context, dayNumber int, assetRef, eventType string) {
	if !t.reserve(dedupeKey{day: dayNumber, eventType: eventType}) {
		return
	}
	evt := domain.TrackingEvent{
		ParticipationID: t.ParticipationID,
		DayNumber:       dayNumber,
		AssetRef:        assetRef,
		EventType:       eventType,
	}
	if err := t.Dispatch(ctx, evt); err != nil {
		t.logger().Printf("tracking: dispatch %s day %d failed: %v", eventType, dayNumber, err)
	}
}
