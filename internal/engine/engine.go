package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"packdesk/internal/config"
	"packdesk/internal/domain"
	"packdesk/internal/events"
	"packdesk/internal/repo"
)

// AlreadyJoinedError rejects a second join for the same partner and
// campaign. The existing participation id travels with it so callers
// can proceed to the status view instead of failing the flow.
type AlreadyJoinedError struct {
	CampaignID      string
	ParticipationID string
}

func (e AlreadyJoinedError) Error() string {
	return fmt.Sprintf("already joined campaign %s", e.CampaignID)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) channelKnown(channel string) bool {
	if e.Config == nil || len(e.Config.Channels.Catalog) == 0 {
		return true
	}
	_, ok := e.Config.Channels.Catalog[channel]
	return ok
}

// CampaignCreateOptions are parameters for creating a campaign.
type CampaignCreateOptions struct {
	ID           string
	TenantID     string
	Name         string
	Type         string
	Status       string
	Channels     []string
	DurationDays int
	ActorID      string
}

func (e Engine) CreateCampaign(ctx context.Context, opts CampaignCreateOptions) (domain.Campaign, error) {
	if opts.TenantID == "" {
		return domain.Campaign{}, errors.New("tenant is required")
	}
	if opts.Name == "" {
		return domain.Campaign{}, errors.New("name is required")
	}
	switch opts.Type {
	case "standalone", "sequence":
	case "":
		opts.Type = "standalone"
	default:
		return domain.Campaign{}, fmt.Errorf("invalid campaign type %s", opts.Type)
	}
	switch opts.Status {
	case "available", "active", "closed":
	case "":
		opts.Status = "available"
	default:
		return domain.Campaign{}, fmt.Errorf("invalid campaign status %s", opts.Status)
	}
	if opts.Type == "sequence" && opts.DurationDays <= 0 {
		return domain.Campaign{}, errors.New("duration required for sequence campaigns")
	}
	if len(opts.Channels) == 0 {
		return domain.Campaign{}, errors.New("at least one channel is required")
	}
	for _, ch := range opts.Channels {
		if !e.channelKnown(ch) {
			return domain.Campaign{}, fmt.Errorf("unknown channel %s", ch)
		}
	}
	if _, err := e.Repo.GetTenant(ctx, opts.TenantID); err != nil {
		return domain.Campaign{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	c := domain.Campaign{
		ID:        id,
		TenantID:  opts.TenantID,
		Name:      opts.Name,
		Type:      opts.Type,
		Status:    opts.Status,
		Channels:  opts.Channels,
		CreatedAt: now,
	}
	if opts.Type == "sequence" {
		d := opts.DurationDays
		c.DurationDays = &d
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Campaign{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCampaign(ctx, tx, c); err != nil {
		return domain.Campaign{}, fmt.Errorf("insert campaign: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "campaign.created", c.TenantID, "campaign", c.ID, opts.ActorID, events.EventPayload{
		"name": c.Name, "type": c.Type, "status": c.Status,
	}); err != nil {
		return domain.Campaign{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

// AddSequenceItem appends the next day of content to a sequence
// campaign. Day numbers must stay contiguous from 0, so the item's day
// is the current item count.
func (e Engine) AddSequenceItem(ctx context.Context, it domain.SequenceItem, actorID string) (domain.SequenceItem, error) {
	c, err := e.Repo.GetCampaign(ctx, it.CampaignID)
	if err != nil {
		return it, err
	}
	if c.Type != "sequence" {
		return it, fmt.Errorf("campaign %s is not a sequence campaign", c.ID)
	}
	existing, err := e.Repo.ListSequenceItems(ctx, c.ID)
	if err != nil {
		return it, err
	}
	if it.DayNumber != len(existing) {
		return it, fmt.Errorf("day %d breaks contiguity; next day is %d", it.DayNumber, len(existing))
	}
	if c.DurationDays != nil && it.DayNumber >= *c.DurationDays {
		return it, fmt.Errorf("day %d exceeds campaign duration %d", it.DayNumber, *c.DurationDays)
	}
	if it.Title == "" || it.AssetRef == "" {
		return it, errors.New("title and asset_ref required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return it, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSequenceItem(ctx, tx, it); err != nil {
		return it, fmt.Errorf("insert sequence item: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "sequence.item.added", c.TenantID, "campaign", c.ID, actorID, events.EventPayload{
		"day_number": it.DayNumber,
	}); err != nil {
		return it, err
	}
	return it, tx.Commit()
}

// JoinOptions are parameters for joining a sequence campaign.
type JoinOptions struct {
	CampaignID string
	TenantID   string
	Channels   []string
	ActorID    string
}

// Join creates the participation record for a partner/campaign pair,
// exactly once. A second join is rejected with AlreadyJoinedError.
func (e Engine) Join(ctx context.Context, opts JoinOptions) (domain.Participation, error) {
	if opts.CampaignID == "" || opts.TenantID == "" {
		return domain.Participation{}, errors.New("campaign and tenant required")
	}
	c, err := e.Repo.GetCampaign(ctx, opts.CampaignID)
	if err != nil {
		return domain.Participation{}, err
	}
	if c.Type != "sequence" {
		return domain.Participation{}, fmt.Errorf("campaign %s is not joinable", c.ID)
	}
	if c.Status == "closed" {
		return domain.Participation{}, fmt.Errorf("campaign %s is closed", c.ID)
	}
	if c.DurationDays == nil || *c.DurationDays <= 0 {
		return domain.Participation{}, fmt.Errorf("campaign %s has no duration", c.ID)
	}
	if len(opts.Channels) == 0 {
		return domain.Participation{}, errors.New("at least one channel is required")
	}
	campaignChannels := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		campaignChannels[ch] = true
	}
	for _, ch := range opts.Channels {
		if !campaignChannels[ch] {
			return domain.Participation{}, fmt.Errorf("channel %s not offered by campaign %s", ch, c.ID)
		}
	}
	if existing, err := e.Repo.GetParticipationByCampaign(ctx, opts.CampaignID, opts.TenantID); err == nil {
		return domain.Participation{}, AlreadyJoinedError{CampaignID: c.ID, ParticipationID: existing.ID}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Participation{}, err
	}

	p := domain.Participation{
		ID:         uuid.New().String(),
		CampaignID: c.ID,
		TenantID:   opts.TenantID,
		JoinedAt:   e.now().UTC().Format(time.RFC3339),
		Channels:   opts.Channels,
		CurrentDay: 0,
		TotalDays:  *c.DurationDays,
		Status:     "active",
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Participation{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertParticipation(ctx, tx, p); err != nil {
		// the unique index backstops a concurrent join
		return domain.Participation{}, fmt.Errorf("insert participation: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "participation.joined", p.TenantID, "participation", p.ID, opts.ActorID, events.EventPayload{
		"campaign_id": p.CampaignID,
		"channels":    p.Channels,
		"total_days":  p.TotalDays,
	}); err != nil {
		return domain.Participation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Participation{}, err
	}
	return p, nil
}

func ensureParticipationTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case "active":
		if newStatus == "paused" || newStatus == "completed" {
			return nil
		}
	case "paused":
		if newStatus == "active" {
			return nil
		}
	}
	return fmt.Errorf("invalid participation transition %s -> %s", oldStatus, newStatus)
}

// Advance is the scheduler tick. For every active participation it
// recomputes current_day from whole days elapsed since joined_at,
// moves it forward only, appends delivered receipts for each newly
// unlocked day and selected channel, and completes the participation
// when the final day unlocks. Re-running a tick is a no-op.
func (e Engine) Advance(ctx context.Context, actorID string) (int, error) {
	parts, err := e.Repo.ListActiveParticipations(ctx)
	if err != nil {
		return 0, err
	}
	advanced := 0
	now := e.now().UTC()
	for _, p := range parts {
		joined, err := time.Parse(time.RFC3339, p.JoinedAt)
		if err != nil {
			return advanced, fmt.Errorf("participation %s joined_at: %w", p.ID, err)
		}
		elapsed := int(now.Sub(joined) / (24 * time.Hour))
		if elapsed < 0 {
			elapsed = 0
		}
		target := elapsed
		if target > p.TotalDays {
			target = p.TotalDays
		}
		if target <= p.CurrentDay {
			continue
		}
		if err := e.advanceOne(ctx, p, target, now, actorID); err != nil {
			return advanced, err
		}
		advanced++
	}
	return advanced, nil
}

func (e Engine) advanceOne(ctx context.Context, p domain.Participation, target int, now time.Time, actorID string) error {
	status := p.Status
	if target == p.TotalDays {
		if err := ensureParticipationTransition(p.Status, "completed"); err != nil {
			return err
		}
		status = "completed"
	}
	nowStr := now.Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for day := p.CurrentDay; day < target; day++ {
		for _, channel := range p.Channels {
			rc := domain.DeliveryReceipt{
				ID:              uuid.New().String(),
				ParticipationID: p.ID,
				DayNumber:       day,
				Channel:         channel,
				Status:          "delivered",
				DeliveredAt:     &nowStr,
			}
			if err := e.Repo.InsertReceipt(ctx, tx, rc); err != nil {
				return fmt.Errorf("insert receipt: %w", err)
			}
		}
	}
	if err := e.Repo.UpdateParticipationProgress(ctx, tx, p.ID, target, status); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "participation.advanced", p.TenantID, "participation", p.ID, actorID, events.EventPayload{
		"from_day": p.CurrentDay,
		"to_day":   target,
	}); err != nil {
		return err
	}
	if status == "completed" {
		if err := e.Events.Append(ctx, tx, "participation.completed", p.TenantID, "participation", p.ID, actorID, events.EventPayload{}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Pause suspends an active participation. Admin action; partners have
// no transition of their own.
func (e Engine) Pause(ctx context.Context, participationID, actorID string) (domain.Participation, error) {
	return e.setParticipationStatus(ctx, participationID, "paused", actorID)
}

// Resume reactivates a paused participation.
func (e Engine) Resume(ctx context.Context, participationID, actorID string) (domain.Participation, error) {
	return e.setParticipationStatus(ctx, participationID, "active", actorID)
}

func (e Engine) setParticipationStatus(ctx context.Context, id, status, actorID string) (domain.Participation, error) {
	p, err := e.Repo.GetParticipation(ctx, id)
	if err != nil {
		return p, err
	}
	if err := ensureParticipationTransition(p.Status, status); err != nil {
		return p, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateParticipationStatus(ctx, tx, id, status); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "participation.updated", p.TenantID, "participation", p.ID, actorID, events.EventPayload{
		"from_status": p.Status,
		"to_status":   status,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Status = status
	return p, nil
}

// RecordEngagement stores one engagement at most once per
// (participation, day, event type) key. The boolean reports whether
// this call was the first.
func (e Engine) RecordEngagement(ctx context.Context, evt domain.TrackingEvent, actorID string) (bool, error) {
	switch evt.EventType {
	case domain.EventView, domain.EventAssetClick, domain.EventCTAClick:
	default:
		return false, fmt.Errorf("invalid event type %s", evt.EventType)
	}
	p, err := e.Repo.GetParticipation(ctx, evt.ParticipationID)
	if err != nil {
		return false, err
	}
	if evt.DayNumber < 0 || evt.DayNumber >= p.TotalDays {
		return false, fmt.Errorf("day %d out of range [0,%d)", evt.DayNumber, p.TotalDays)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	recorded, err := e.Repo.InsertEngagement(ctx, tx, evt, e.now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, err
	}
	if recorded {
		if err := e.Events.Append(ctx, tx, "engagement."+evt.EventType, p.TenantID, "participation", p.ID, actorID, events.EventPayload{
			"day_number": evt.DayNumber,
			"asset_ref":  evt.AssetRef,
		}); err != nil {
			return false, err
		}
	}
	return recorded, tx.Commit()
}

// ResolveTenantConfig builds the session snapshot for an identity pair.
// No identity resolves to the anonymous config; flags default from the
// workspace config and persona overrides win.
func (e Engine) ResolveTenantConfig(ctx context.Context, tenantID, personaID string) (domain.TenantConfig, error) {
	flags := map[string]bool{}
	if e.Config != nil {
		for k, v := range e.Config.Features.Defaults {
			flags[k] = v
		}
	}
	cfg := domain.TenantConfig{
		Role:         domain.RoleAnonymous,
		FeatureFlags: flags,
	}
	if tenantID == "" {
		return cfg, nil
	}
	t, err := e.Repo.GetTenant(ctx, tenantID)
	if err != nil {
		return domain.TenantConfig{}, err
	}
	cfg.TenantID = t.ID
	cfg.PartnerName = &t.PartnerName
	if personaID == "" {
		return cfg, nil
	}
	p, overrides, err := e.Repo.GetPersona(ctx, personaID)
	if err != nil {
		return domain.TenantConfig{}, err
	}
	if p.TenantID != t.ID {
		return domain.TenantConfig{}, fmt.Errorf("persona %s not in tenant %s", personaID, tenantID)
	}
	cfg.PersonaID = &p.ID
	cfg.Role = p.Role
	for k, v := range overrides {
		cfg.FeatureFlags[k] = v
	}
	return cfg, nil
}

// SequenceView is the server snapshot a partner's console renders for a
// joined campaign.
type SequenceView struct {
	Campaign      domain.Campaign       `json:"campaign"`
	Items         []domain.SequenceItem `json:"items"`
	Participation *domain.Participation `json:"participation,omitempty"`
}

// GetSequenceView loads a campaign, its items, and the tenant's
// participation (with receipts) when one exists.
func (e Engine) GetSequenceView(ctx context.Context, campaignID, tenantID string) (SequenceView, error) {
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return SequenceView{}, err
	}
	items, err := e.Repo.ListSequenceItems(ctx, campaignID)
	if err != nil {
		return SequenceView{}, err
	}
	view := SequenceView{Campaign: c, Items: items}
	if tenantID == "" {
		return view, nil
	}
	p, err := e.Repo.GetParticipationByCampaign(ctx, campaignID, tenantID)
	if errors.Is(err, repo.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return SequenceView{}, err
	}
	receipts, err := e.Repo.ListReceipts(ctx, p.ID)
	if err != nil {
		return SequenceView{}, err
	}
	p.Receipts = receipts
	view.Campaign.IsJoined = true
	view.Participation = &p
	return view, nil
}

// InitTenant creates a tenant with one persona per non-anonymous role.
func (e Engine) InitTenant(ctx context.Context, tenantID, partnerName, actorID string) (domain.Tenant, error) {
	if tenantID == "" {
		return domain.Tenant{}, errors.New("tenant id required")
	}
	if partnerName == "" {
		partnerName = tenantID
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Tenant{ID: tenantID, PartnerName: partnerName, CreatedAt: now}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTenant(ctx, tx, t); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	personas := []domain.Persona{
		{ID: tenantID + "-owner", TenantID: tenantID, Name: partnerName + " Owner", Role: domain.RolePartnerAdmin},
		{ID: tenantID + "-analyst", TenantID: tenantID, Name: partnerName + " Analyst", Role: domain.RoleAnalyst},
		{ID: tenantID + "-admin", TenantID: tenantID, Name: "Internal Admin", Role: domain.RoleAGQAdmin},
	}
	for _, p := range personas {
		if err := e.Repo.InsertPersona(ctx, tx, p, nil); err != nil {
			return domain.Tenant{}, fmt.Errorf("insert persona %s: %w", p.ID, err)
		}
	}
	if err := e.Events.Append(ctx, tx, "tenant.created", t.ID, "tenant", t.ID, actorID, events.EventPayload{
		"partner_name": t.PartnerName,
	}); err != nil {
		return domain.Tenant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

// SeedDemo fills a fresh workspace with a tenant, a 22-day sequence
// campaign (explainer days 0 and 1), and a standalone campaign.
func (e Engine) SeedDemo(ctx context.Context, tenantID, actorID string) error {
	if _, err := e.InitTenant(ctx, tenantID, "", actorID); err != nil {
		return err
	}
	seq, err := e.CreateCampaign(ctx, CampaignCreateOptions{
		ID:           tenantID + "-spring-drip",
		TenantID:     tenantID,
		Name:         "Spring 22-Day Drip",
		Type:         "sequence",
		Status:       "available",
		Channels:     []string{"email", "social"},
		DurationDays: 22,
		ActorID:      actorID,
	})
	if err != nil {
		return err
	}
	for day := 0; day < 22; day++ {
		title := fmt.Sprintf("Day %d drip", day)
		if day <= 1 {
			title = fmt.Sprintf("Welcome explainer %d", day+1)
		}
		if _, err := e.AddSequenceItem(ctx, domain.SequenceItem{
			CampaignID: seq.ID,
			DayNumber:  day,
			Title:      title,
			AssetRef:   fmt.Sprintf("assets/%s/day-%02d", seq.ID, day),
			CTAURL:     fmt.Sprintf("https://example.com/%s/day/%d", seq.ID, day),
			Explainer:  day <= 1,
		}, actorID); err != nil {
			return err
		}
	}
	_, err = e.CreateCampaign(ctx, CampaignCreateOptions{
		ID:       tenantID + "-launch",
		TenantID: tenantID,
		Name:     "Launch Announcement",
		Type:     "standalone",
		Status:   "active",
		Channels: []string{"email", "print"},
		ActorID:  actorID,
	})
	return err
}
