package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"packdesk/internal/config"
	"packdesk/internal/db"
	"packdesk/internal/domain"
	"packdesk/internal/engine"
	"packdesk/internal/migrate"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
	Clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("packdesk")
	eng := engine.New(conn, cfg)
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return clock }
	ctx := context.Background()
	if err := eng.SeedDemo(ctx, "tenant-1", "tester"); err != nil {
		t.Fatalf("seed demo: %v", err)
	}
	return testEnv{Engine: &eng, Ctx: ctx, Clock: &clock}
}

const seqCampaign = "tenant-1-spring-drip"

func (env testEnv) join(t *testing.T, channels ...string) domain.Participation {
	t.Helper()
	if len(channels) == 0 {
		channels = []string{"email"}
	}
	p, err := env.Engine.Join(env.Ctx, engine.JoinOptions{
		CampaignID: seqCampaign,
		TenantID:   "tenant-1",
		Channels:   channels,
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return p
}

func TestJoinOnce(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t)
	if p.CurrentDay != 0 || p.TotalDays != 22 || p.Status != "active" {
		t.Fatalf("unexpected participation: %+v", p)
	}

	_, err := env.Engine.Join(env.Ctx, engine.JoinOptions{
		CampaignID: seqCampaign,
		TenantID:   "tenant-1",
		Channels:   []string{"email"},
		ActorID:    "tester",
	})
	var dup engine.AlreadyJoinedError
	if !errors.As(err, &dup) {
		t.Fatalf("expected AlreadyJoinedError, got %v", err)
	}
	if dup.ParticipationID != p.ID {
		t.Fatalf("duplicate join should carry the original participation id")
	}
}

func TestJoinValidation(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.Engine.Join(env.Ctx, engine.JoinOptions{
		CampaignID: "tenant-1-launch", TenantID: "tenant-1", Channels: []string{"email"}, ActorID: "tester",
	}); err == nil {
		t.Fatalf("standalone campaign must not be joinable")
	}
	if _, err := env.Engine.Join(env.Ctx, engine.JoinOptions{
		CampaignID: seqCampaign, TenantID: "tenant-1", Channels: []string{"fax"}, ActorID: "tester",
	}); err == nil {
		t.Fatalf("channel outside the campaign's set must be rejected")
	}
	if _, err := env.Engine.Join(env.Ctx, engine.JoinOptions{
		CampaignID: seqCampaign, TenantID: "tenant-1", ActorID: "tester",
	}); err == nil {
		t.Fatalf("empty channel selection must be rejected")
	}
}

func TestAdvanceForwardOnly(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t, "email", "social")

	// same instant: nothing to unlock
	n, err := env.Engine.Advance(env.Ctx, "scheduler")
	if err != nil || n != 0 {
		t.Fatalf("advance at join time: n=%d err=%v", n, err)
	}

	*env.Clock = env.Clock.Add(3*24*time.Hour + time.Minute)
	n, err = env.Engine.Advance(env.Ctx, "scheduler")
	if err != nil || n != 1 {
		t.Fatalf("advance after 3 days: n=%d err=%v", n, err)
	}
	got, err := env.Engine.Repo.GetParticipation(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get participation: %v", err)
	}
	if got.CurrentDay != 3 {
		t.Fatalf("current_day = %d, want 3", got.CurrentDay)
	}

	// re-running the tick changes nothing
	n, err = env.Engine.Advance(env.Ctx, "scheduler")
	if err != nil || n != 0 {
		t.Fatalf("idempotent re-run: n=%d err=%v", n, err)
	}

	receipts, err := env.Engine.Repo.ListReceipts(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	// 3 days x 2 channels
	if len(receipts) != 6 {
		t.Fatalf("receipts = %d, want 6", len(receipts))
	}
	for _, rc := range receipts {
		if rc.Status != "delivered" || rc.DayNumber < 0 || rc.DayNumber > 2 {
			t.Fatalf("unexpected receipt: %+v", rc)
		}
	}
}

func TestAdvanceCompletes(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t)

	*env.Clock = env.Clock.Add(40 * 24 * time.Hour)
	if _, err := env.Engine.Advance(env.Ctx, "scheduler"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	got, err := env.Engine.Repo.GetParticipation(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get participation: %v", err)
	}
	if got.CurrentDay != 22 || got.Status != "completed" {
		t.Fatalf("got day=%d status=%s, want 22/completed", got.CurrentDay, got.Status)
	}
	receipts, err := env.Engine.Repo.ListReceipts(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(receipts) != 22 {
		t.Fatalf("receipts = %d, want 22 (capped at duration)", len(receipts))
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "tenant-1", "participation.completed", "", "")
	if err != nil || len(events) != 1 {
		t.Fatalf("completed events = %d err=%v, want 1", len(events), err)
	}
}

func TestPauseResume(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t)

	paused, err := env.Engine.Pause(env.Ctx, p.ID, "admin-1")
	if err != nil || paused.Status != "paused" {
		t.Fatalf("pause: %+v %v", paused, err)
	}
	// paused participations are skipped by the scheduler
	*env.Clock = env.Clock.Add(5 * 24 * time.Hour)
	if n, err := env.Engine.Advance(env.Ctx, "scheduler"); err != nil || n != 0 {
		t.Fatalf("paused participation advanced: n=%d err=%v", n, err)
	}
	if _, err := env.Engine.Pause(env.Ctx, p.ID, "admin-1"); err == nil {
		t.Fatalf("pausing a paused participation must fail")
	}
	resumed, err := env.Engine.Resume(env.Ctx, p.ID, "admin-1")
	if err != nil || resumed.Status != "active" {
		t.Fatalf("resume: %+v %v", resumed, err)
	}
	if _, err := env.Engine.Resume(env.Ctx, p.ID, "admin-1"); err == nil {
		t.Fatalf("resuming an active participation must fail")
	}
}

func TestRecordEngagementDedupe(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t)

	evt := domain.TrackingEvent{
		ParticipationID: p.ID,
		DayNumber:       0,
		AssetRef:        "assets/" + seqCampaign + "/day-00",
		EventType:       domain.EventView,
	}
	recorded, err := env.Engine.RecordEngagement(env.Ctx, evt, "persona-1")
	if err != nil || !recorded {
		t.Fatalf("first record: recorded=%v err=%v", recorded, err)
	}
	recorded, err = env.Engine.RecordEngagement(env.Ctx, evt, "persona-1")
	if err != nil || recorded {
		t.Fatalf("duplicate record: recorded=%v err=%v", recorded, err)
	}
	// distinct event type is a distinct row
	evt.EventType = domain.EventCTAClick
	recorded, err = env.Engine.RecordEngagement(env.Ctx, evt, "persona-1")
	if err != nil || !recorded {
		t.Fatalf("distinct type: recorded=%v err=%v", recorded, err)
	}
	n, err := env.Engine.Repo.CountEngagements(env.Ctx, p.ID)
	if err != nil || n != 2 {
		t.Fatalf("engagements = %d err=%v, want 2", n, err)
	}

	evt.EventType = "hover"
	if _, err := env.Engine.RecordEngagement(env.Ctx, evt, "persona-1"); err == nil {
		t.Fatalf("unknown event type must be rejected")
	}
	evt.EventType = domain.EventView
	evt.DayNumber = 22
	if _, err := env.Engine.RecordEngagement(env.Ctx, evt, "persona-1"); err == nil {
		t.Fatalf("day outside [0,total) must be rejected")
	}
}

func TestResolveTenantConfig(t *testing.T) {
	env := newTestEnv(t)

	anon, err := env.Engine.ResolveTenantConfig(env.Ctx, "", "")
	if err != nil {
		t.Fatalf("anonymous resolve: %v", err)
	}
	if anon.Role != domain.RoleAnonymous || anon.TenantID != "" {
		t.Fatalf("anonymous config: %+v", anon)
	}

	cfg, err := env.Engine.ResolveTenantConfig(env.Ctx, "tenant-1", "tenant-1-analyst")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Role != domain.RoleAnalyst || cfg.TenantID != "tenant-1" {
		t.Fatalf("analyst config: %+v", cfg)
	}
	if !cfg.FeatureFlags["sequence_campaigns"] {
		t.Fatalf("default flags missing: %+v", cfg.FeatureFlags)
	}

	if _, err := env.Engine.ResolveTenantConfig(env.Ctx, "tenant-1", "nope"); err == nil {
		t.Fatalf("unknown persona must fail")
	}
}

func TestSequenceViewReceipts(t *testing.T) {
	env := newTestEnv(t)
	p := env.join(t)

	*env.Clock = env.Clock.Add(2*24*time.Hour + time.Hour)
	if _, err := env.Engine.Advance(env.Ctx, "scheduler"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	view, err := env.Engine.GetSequenceView(env.Ctx, seqCampaign, "tenant-1")
	if err != nil {
		t.Fatalf("sequence view: %v", err)
	}
	if !view.Campaign.IsJoined || view.Participation == nil {
		t.Fatalf("view must mark the campaign joined")
	}
	if view.Participation.ID != p.ID || len(view.Participation.Receipts) != 2 {
		t.Fatalf("participation %+v", view.Participation)
	}
	if len(view.Items) != 22 {
		t.Fatalf("items = %d, want 22", len(view.Items))
	}

	// anonymous view has no participation
	anon, err := env.Engine.GetSequenceView(env.Ctx, seqCampaign, "")
	if err != nil || anon.Participation != nil || anon.Campaign.IsJoined {
		t.Fatalf("anonymous view: %+v err=%v", anon, err)
	}
}

func TestAddSequenceItemContiguity(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AddSequenceItem(env.Ctx, domain.SequenceItem{
		CampaignID: seqCampaign,
		DayNumber:  30,
		Title:      "gap",
		AssetRef:   "assets/gap",
	}, "tester")
	if err == nil {
		t.Fatalf("non-contiguous day must be rejected")
	}
	if _, err := env.Engine.AddSequenceItem(env.Ctx, domain.SequenceItem{
		CampaignID: "tenant-1-launch",
		DayNumber:  0,
		Title:      "x",
		AssetRef:   "assets/x",
	}, "tester"); err == nil {
		t.Fatalf("standalone campaign cannot take sequence items")
	}
}
