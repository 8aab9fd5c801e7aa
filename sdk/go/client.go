package packdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Packdesk HTTP API client.
type Client struct {
	BaseURL     string
	TenantID    string
	PersonaID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ErrAlreadyJoined maps the join-conflict response.
var ErrAlreadyJoined = errors.New("already joined")

// SessionConfig is the resolved session snapshot.
type SessionConfig struct {
	TenantID     string          `json:"tenant_id"`
	PersonaID    *string         `json:"persona_id,omitempty"`
	Role         string          `json:"role"`
	PartnerName  *string         `json:"partner_name,omitempty"`
	FeatureFlags map[string]bool `json:"feature_flags"`
	LandingPage  string          `json:"landing_page"`
}

// Campaign represents the API campaign model.
type Campaign struct {
	ID           string   `json:"id"`
	TenantID     string   `json:"tenant_id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	Channels     []string `json:"channels"`
	DurationDays *int     `json:"duration_days,omitempty"`
	IsJoined     bool     `json:"is_joined"`
}

// SequenceDay is one day of a campaign detail view.
type SequenceDay struct {
	CampaignID string `json:"campaign_id"`
	DayNumber  int    `json:"day_number"`
	Title      string `json:"title"`
	AssetRef   string `json:"asset_ref"`
	CTAURL     string `json:"cta_url"`
	Explainer  bool   `json:"explainer"`
	Enabled    bool   `json:"enabled"`
}

// Participation tracks sequence progress.
type Participation struct {
	ID         string   `json:"id"`
	CampaignID string   `json:"campaign_id"`
	TenantID   string   `json:"tenant_id"`
	JoinedAt   string   `json:"joined_at"`
	Channels   []string `json:"channels"`
	CurrentDay int      `json:"current_day"`
	TotalDays  int      `json:"total_days"`
	Status     string   `json:"status"`
}

// CampaignDetail is the full campaign view with sequence days.
type CampaignDetail struct {
	Campaign        Campaign       `json:"campaign"`
	ExplainerItems  []SequenceDay  `json:"explainer_items"`
	RegularItems    []SequenceDay  `json:"regular_items"`
	Participation   *Participation `json:"participation,omitempty"`
	ProgressPercent int            `json:"progress_percent"`
}

// AccessDecision is the gate outcome for a resource group.
type AccessDecision struct {
	Allowed    bool   `json:"allowed"`
	RedirectTo string `json:"redirect_to"`
}

// Event represents a ledger entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// ResolveConfig fetches the session config for the client's identity.
func (c *Client) ResolveConfig(ctx context.Context) (SessionConfig, error) {
	var resp SessionConfig
	err := c.do(ctx, http.MethodGet, "v0/config", nil, &resp)
	return resp, err
}

// CheckAccess gates a resource group for the client's role.
func (c *Client) CheckAccess(ctx context.Context, group string) (AccessDecision, error) {
	var resp AccessDecision
	err := c.do(ctx, http.MethodGet, "v0/access/"+url.PathEscape(group), nil, &resp)
	return resp, err
}

// ListCampaigns returns the tenant's catalog. Filter is one of
// "all", "available", "active".
func (c *Client) ListCampaigns(ctx context.Context, filter string) ([]Campaign, error) {
	endpoint := "v0/campaigns"
	if filter != "" {
		endpoint += "?filter=" + url.QueryEscape(filter)
	}
	var resp struct {
		Items []Campaign `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// GetCampaign fetches a campaign with its sequence days.
func (c *Client) GetCampaign(ctx context.Context, campaignID string) (CampaignDetail, error) {
	var resp CampaignDetail
	err := c.do(ctx, http.MethodGet, "v0/campaigns/"+url.PathEscape(campaignID), nil, &resp)
	return resp, err
}

// Join enrolls the client's tenant in a sequence campaign. A repeat
// join returns ErrAlreadyJoined.
func (c *Client) Join(ctx context.Context, campaignID string, channels []string) (Participation, error) {
	body := map[string]any{"channels": channels}
	var resp Participation
	err := c.do(ctx, http.MethodPost, "v0/campaigns/"+url.PathEscape(campaignID)+"/join", body, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "already_joined" {
		return resp, fmt.Errorf("%w: campaign %s", ErrAlreadyJoined, campaignID)
	}
	return resp, err
}

// Track records one engagement event. Recorded is false when the
// event was already counted.
func (c *Client) Track(ctx context.Context, participationID string, dayNumber int, eventType, assetRef string) (bool, error) {
	body := map[string]any{
		"participation_id": participationID,
		"day_number":       dayNumber,
		"event_type":       eventType,
		"asset_ref":        assetRef,
	}
	var resp struct {
		Recorded bool `json:"recorded"`
	}
	err := c.do(ctx, http.MethodPost, "v0/track", body, &resp)
	return resp.Recorded, err
}

// GetParticipation fetches a participation with its receipts.
func (c *Client) GetParticipation(ctx context.Context, id string) (Participation, error) {
	var resp Participation
	err := c.do(ctx, http.MethodGet, "v0/participations/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Events returns recent ledger events for the tenant.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	default:
		if c.TenantID != "" {
			req.Header.Set("X-Tenant-Id", c.TenantID)
		}
		if c.PersonaID != "" {
			req.Header.Set("X-Persona-Id", c.PersonaID)
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
