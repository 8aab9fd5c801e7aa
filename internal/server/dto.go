package server

import (
	"packdesk/internal/domain"
)

// Request payloads

type JoinCampaignRequest struct {
	Channels []string `json:"channels" minItems:"1"`
}

type TrackRequest struct {
	ParticipationID string `json:"participation_id"`
	DayNumber       int    `json:"day_number" minimum:"0"`
	AssetRef        string `json:"asset_ref,omitempty"`
	EventType       string `json:"event_type" enum:"view,asset_click,cta_click"`
}

type CreateCampaignRequest struct {
	ID           *string  `json:"id,omitempty"`
	Name         string   `json:"name"`
	Type         string   `json:"type,omitempty" enum:"standalone,sequence"`
	Status       string   `json:"status,omitempty" enum:"available,active,closed"`
	Channels     []string `json:"channels" minItems:"1"`
	DurationDays *int     `json:"duration_days,omitempty"`
}

type CreateAPIKeyRequest struct {
	PersonaID string `json:"persona_id"`
	Name      string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	TenantID  string `json:"tenant_id"`
	PersonaID string `json:"persona_id"`
	Role      string `json:"role" enum:"anonymous,partner_admin,analyst,agq_admin"`
}

// Response payloads

type SessionConfigResponse struct {
	domain.TenantConfig
	LandingPage string `json:"landing_page"`
}

type CampaignListResponse struct {
	Items []domain.Campaign `json:"items"`
}

// SequenceDayResponse is one day of a campaign detail view. Enabled
// mirrors the delivery receipts: only delivered days open in the
// console, regardless of what the client's clock says.
type SequenceDayResponse struct {
	domain.SequenceItem
	Enabled bool `json:"enabled"`
}

type CampaignDetailResponse struct {
	Campaign        domain.Campaign       `json:"campaign"`
	ExplainerItems  []SequenceDayResponse `json:"explainer_items,omitempty"`
	RegularItems    []SequenceDayResponse `json:"regular_items,omitempty"`
	Participation   *domain.Participation `json:"participation,omitempty"`
	ProgressPercent int                   `json:"progress_percent"`
}

type TrackResponse struct {
	Recorded bool `json:"recorded"`
}

type EventListResponse struct {
	Items []domain.Event `json:"items"`
}

type CreateAPIKeyResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type APIKeyListResponse struct {
	Items []domain.APIKey `json:"items"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
