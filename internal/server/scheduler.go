package server

import (
	"context"
	"log"
	"time"

	"packdesk/internal/engine"
)

const defaultSchedulerInterval = time.Minute

// progressionScheduler drives day unlocks. It is the only writer of
// current_day: clients render whatever the server has unlocked and
// never advance anything themselves.
type progressionScheduler struct {
	engine   engine.Engine
	interval time.Duration
}

// StartScheduler runs the progression tick in the background until ctx
// is canceled. The interval comes from the workspace config.
func StartScheduler(ctx context.Context, e engine.Engine) {
	interval := defaultSchedulerInterval
	if e.Config != nil && e.Config.Scheduler.IntervalSeconds > 0 {
		interval = time.Duration(e.Config.Scheduler.IntervalSeconds) * time.Second
	}
	s := &progressionScheduler{engine: e, interval: interval}
	go s.run(ctx)
}

func (s *progressionScheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *progressionScheduler) tick(ctx context.Context) {
	advanced, err := s.engine.Advance(ctx, "scheduler")
	if err != nil {
		log.Printf("scheduler: advance failed: %v", err)
		return
	}
	if advanced > 0 {
		log.Printf("scheduler: advanced %d participations", advanced)
	}
}
