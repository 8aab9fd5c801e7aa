package domain

// Role is the closed set of session roles. Every protected resource
// enumerates which roles may enter; there is no role hierarchy.
type Role string

const (
	RoleAnonymous    Role = "anonymous"
	RolePartnerAdmin Role = "partner_admin"
	RoleAnalyst      Role = "analyst"
	RoleAGQAdmin     Role = "agq_admin"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleAnonymous, RolePartnerAdmin, RoleAnalyst, RoleAGQAdmin}
}

// Known reports whether r is a member of the closed role set.
func (r Role) Known() bool {
	switch r {
	case RoleAnonymous, RolePartnerAdmin, RoleAnalyst, RoleAGQAdmin:
		return true
	}
	return false
}

// TenantConfig identifies the active session context: who is asking
// and what they may see. PersonaID may be empty for anonymous sessions.
type TenantConfig struct {
	TenantID     string          `json:"tenant_id"`
	PersonaID    *string         `json:"persona_id,omitempty"`
	Role         Role            `json:"role"`
	PartnerName  *string         `json:"partner_name,omitempty"`
	FeatureFlags map[string]bool `json:"feature_flags"`
}

type Tenant struct {
	ID          string `json:"id"`
	PartnerName string `json:"partner_name"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Persona struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

type Campaign struct {
	ID           string   `json:"id"`
	TenantID     string   `json:"tenant_id"`
	Name         string   `json:"name"`
	Type         string   `json:"type" enum:"standalone,sequence"`
	Status       string   `json:"status" enum:"available,active,closed"`
	Channels     []string `json:"channels"`
	DurationDays *int     `json:"duration_days,omitempty"`
	IsJoined     bool     `json:"is_joined"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

// SequenceItem is one day of drip content in a sequence campaign.
// Day numbers are 0-indexed and contiguous within a campaign; explainer
// items (days 0 and 1 by convention) carry introductory content.
type SequenceItem struct {
	CampaignID   string  `json:"campaign_id"`
	DayNumber    int     `json:"day_number"`
	Title        string  `json:"title"`
	AssetRef     string  `json:"asset_ref"`
	CTAURL       string  `json:"cta_url"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	Explainer    bool    `json:"explainer"`
	// DeliveryStatus is filled from the participation's receipts when the
	// item is returned for a joined campaign; it is the only input the UI
	// uses to enable or dim a day.
	DeliveryStatus string `json:"delivery_status" enum:"pending,delivered"`
}

// Participation tracks one partner's progress through a sequence
// campaign. CurrentDay only moves forward, driven by the scheduler from
// elapsed time since JoinedAt; clients never compute it.
type Participation struct {
	ID         string            `json:"id"`
	CampaignID string            `json:"campaign_id"`
	TenantID   string            `json:"tenant_id"`
	JoinedAt   string            `json:"joined_at" format:"date-time"`
	Channels   []string          `json:"channels"`
	CurrentDay int               `json:"current_day"`
	TotalDays  int               `json:"total_days"`
	Status     string            `json:"status" enum:"active,completed,paused"`
	Receipts   []DeliveryReceipt `json:"receipts,omitempty"`
}

// DeliveryReceipt records one channel delivery for one unlocked day.
// Rows are append-only; a receipt in a terminal status (delivered or
// failed) is never mutated.
type DeliveryReceipt struct {
	ID              string  `json:"id"`
	ParticipationID string  `json:"participation_id"`
	DayNumber       int     `json:"day_number"`
	Channel         string  `json:"channel"`
	Status          string  `json:"status" enum:"pending,delivered,failed"`
	DeliveredAt     *string `json:"delivered_at,omitempty" format:"date-time"`
	URL             *string `json:"url,omitempty"`
}

// Engagement event types.
const (
	EventView       = "view"
	EventAssetClick = "asset_click"
	EventCTAClick   = "cta_click"
)

// TrackingEvent is a partner interaction with a sequence item. Its
// dedupe key is (participation_id, day_number, event_type).
type TrackingEvent struct {
	ParticipationID string `json:"participation_id"`
	DayNumber       int    `json:"day_number"`
	AssetRef        string `json:"asset_ref"`
	EventType       string `json:"event_type" enum:"view,asset_click,cta_click"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	PersonaID string `json:"persona_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
