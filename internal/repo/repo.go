package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"packdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func marshalChannels(channels []string) string {
	if channels == nil {
		channels = []string{}
	}
	b, _ := json.Marshal(channels)
	return string(b)
}

func unmarshalChannels(raw string) []string {
	var out []string
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &out)
	}
	return out
}

// --- tenants and personas ---

func (r Repo) InsertTenant(ctx context.Context, tx *sql.Tx, t domain.Tenant) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tenants(id,partner_name,created_at) VALUES (?,?,?)`,
		t.ID, t.PartnerName, t.CreatedAt)
	return err
}

func (r Repo) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	var t domain.Tenant
	err := r.DB.QueryRowContext(ctx, `SELECT id,partner_name,created_at FROM tenants WHERE id=?`, id).
		Scan(&t.ID, &t.PartnerName, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// SingleTenant returns the tenant when exactly one exists.
func (r Repo) SingleTenant(ctx context.Context) (domain.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,partner_name,created_at FROM tenants LIMIT 2`)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer rows.Close()
	var tenants []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.PartnerName, &t.CreatedAt); err != nil {
			return domain.Tenant{}, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return domain.Tenant{}, err
	}
	if len(tenants) != 1 {
		return domain.Tenant{}, ErrNotFound
	}
	return tenants[0], nil
}

func (r Repo) ListPersonas(ctx context.Context, tenantID string) ([]domain.Persona, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,name,role FROM personas WHERE tenant_id=? ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var personas []domain.Persona
	for rows.Next() {
		var p domain.Persona
		var role string
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &role); err != nil {
			return nil, err
		}
		p.Role = domain.Role(role)
		personas = append(personas, p)
	}
	return personas, rows.Err()
}

func (r Repo) InsertPersona(ctx context.Context, tx *sql.Tx, p domain.Persona, featureFlags map[string]bool) error {
	var flagsJSON any
	if len(featureFlags) > 0 {
		b, err := json.Marshal(featureFlags)
		if err != nil {
			return err
		}
		flagsJSON = string(b)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO personas(id,tenant_id,name,role,feature_flags_json) VALUES (?,?,?,?,?)`,
		p.ID, p.TenantID, p.Name, string(p.Role), flagsJSON)
	return err
}

func (r Repo) GetPersona(ctx context.Context, id string) (domain.Persona, map[string]bool, error) {
	var p domain.Persona
	var role string
	var flagsJSON sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,role,feature_flags_json FROM personas WHERE id=?`, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &role, &flagsJSON)
	if err == sql.ErrNoRows {
		return p, nil, ErrNotFound
	}
	if err != nil {
		return p, nil, err
	}
	p.Role = domain.Role(role)
	flags := map[string]bool{}
	if flagsJSON.Valid && flagsJSON.String != "" {
		_ = json.Unmarshal([]byte(flagsJSON.String), &flags)
	}
	return p, flags, nil
}

// --- campaigns ---

func (r Repo) InsertCampaign(ctx context.Context, tx *sql.Tx, c domain.Campaign) error {
	var duration any
	if c.DurationDays != nil {
		duration = *c.DurationDays
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO campaigns(id,tenant_id,name,type,status,channels_json,duration_days,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.TenantID, c.Name, c.Type, c.Status, marshalChannels(c.Channels), duration, c.CreatedAt)
	return err
}

func scanCampaign(scan func(dest ...any) error) (domain.Campaign, error) {
	var c domain.Campaign
	var channelsJSON string
	var duration sql.NullInt64
	err := scan(&c.ID, &c.TenantID, &c.Name, &c.Type, &c.Status, &channelsJSON, &duration, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Channels = unmarshalChannels(channelsJSON)
	if duration.Valid {
		d := int(duration.Int64)
		c.DurationDays = &d
	}
	return c, nil
}

func (r Repo) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,type,status,channels_json,duration_days,created_at FROM campaigns WHERE id=?`, id)
	return scanCampaign(row.Scan)
}

// ListCampaigns returns the tenant's campaigns with the join flag set
// from the tenant's participations.
func (r Repo) ListCampaigns(ctx context.Context, tenantID string) ([]domain.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT c.id,c.tenant_id,c.name,c.type,c.status,c.channels_json,c.duration_days,c.created_at,
       CASE WHEN p.id IS NULL THEN 0 ELSE 1 END AS joined
FROM campaigns c
LEFT JOIN participations p ON p.campaign_id=c.id AND p.tenant_id=?
WHERE c.tenant_id=?
ORDER BY c.created_at DESC, c.id`, tenantID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		var channelsJSON string
		var duration sql.NullInt64
		var joined int
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Type, &c.Status, &channelsJSON, &duration, &c.CreatedAt, &joined); err != nil {
			return nil, err
		}
		c.Channels = unmarshalChannels(channelsJSON)
		if duration.Valid {
			d := int(duration.Int64)
			c.DurationDays = &d
		}
		c.IsJoined = joined == 1
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- sequence items ---

func (r Repo) InsertSequenceItem(ctx context.Context, tx *sql.Tx, it domain.SequenceItem) error {
	var thumb any
	if it.ThumbnailURL != nil {
		thumb = *it.ThumbnailURL
	}
	explainer := 0
	if it.Explainer {
		explainer = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO sequence_items(campaign_id,day_number,title,asset_ref,cta_url,thumbnail_url,explainer) VALUES (?,?,?,?,?,?,?)`,
		it.CampaignID, it.DayNumber, it.Title, it.AssetRef, it.CTAURL, thumb, explainer)
	return err
}

func (r Repo) ListSequenceItems(ctx context.Context, campaignID string) ([]domain.SequenceItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT campaign_id,day_number,title,asset_ref,cta_url,thumbnail_url,explainer FROM sequence_items WHERE campaign_id=? ORDER BY day_number`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SequenceItem
	for rows.Next() {
		var it domain.SequenceItem
		var thumb sql.NullString
		var explainer int
		if err := rows.Scan(&it.CampaignID, &it.DayNumber, &it.Title, &it.AssetRef, &it.CTAURL, &thumb, &explainer); err != nil {
			return nil, err
		}
		if thumb.Valid {
			it.ThumbnailURL = &thumb.String
		}
		it.Explainer = explainer == 1
		it.DeliveryStatus = "pending"
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- participations ---

func (r Repo) InsertParticipation(ctx context.Context, tx *sql.Tx, p domain.Participation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO participations(id,campaign_id,tenant_id,joined_at,channels_json,current_day,total_days,status) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.CampaignID, p.TenantID, p.JoinedAt, marshalChannels(p.Channels), p.CurrentDay, p.TotalDays, p.Status)
	return err
}

func scanParticipation(scan func(dest ...any) error) (domain.Participation, error) {
	var p domain.Participation
	var channelsJSON string
	err := scan(&p.ID, &p.CampaignID, &p.TenantID, &p.JoinedAt, &channelsJSON, &p.CurrentDay, &p.TotalDays, &p.Status)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Channels = unmarshalChannels(channelsJSON)
	return p, nil
}

const participationColumns = `id,campaign_id,tenant_id,joined_at,channels_json,current_day,total_days,status`

func (r Repo) GetParticipation(ctx context.Context, id string) (domain.Participation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+participationColumns+` FROM participations WHERE id=?`, id)
	return scanParticipation(row.Scan)
}

func (r Repo) GetParticipationByCampaign(ctx context.Context, campaignID, tenantID string) (domain.Participation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+participationColumns+` FROM participations WHERE campaign_id=? AND tenant_id=?`, campaignID, tenantID)
	return scanParticipation(row.Scan)
}

func (r Repo) ListActiveParticipations(ctx context.Context) ([]domain.Participation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+participationColumns+` FROM participations WHERE status='active' ORDER BY joined_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Participation
	for rows.Next() {
		p, err := scanParticipation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r Repo) UpdateParticipationProgress(ctx context.Context, tx *sql.Tx, id string, currentDay int, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE participations SET current_day=?, status=? WHERE id=?`, currentDay, status, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateParticipationStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE participations SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- delivery receipts ---

// InsertReceipt appends one delivery receipt. The unique index on
// (participation, day, channel) makes a scheduler re-run a no-op; an
// existing row is never updated.
func (r Repo) InsertReceipt(ctx context.Context, tx *sql.Tx, rc domain.DeliveryReceipt) error {
	var deliveredAt, url any
	if rc.DeliveredAt != nil {
		deliveredAt = *rc.DeliveredAt
	}
	if rc.URL != nil {
		url = *rc.URL
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO delivery_receipts(id,participation_id,day_number,channel,status,delivered_at,url) VALUES (?,?,?,?,?,?,?)`,
		rc.ID, rc.ParticipationID, rc.DayNumber, rc.Channel, rc.Status, deliveredAt, url)
	return err
}

func (r Repo) ListReceipts(ctx context.Context, participationID string) ([]domain.DeliveryReceipt, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,participation_id,day_number,channel,status,delivered_at,url FROM delivery_receipts WHERE participation_id=? ORDER BY day_number, channel`, participationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DeliveryReceipt
	for rows.Next() {
		var rc domain.DeliveryReceipt
		var deliveredAt, url sql.NullString
		if err := rows.Scan(&rc.ID, &rc.ParticipationID, &rc.DayNumber, &rc.Channel, &rc.Status, &deliveredAt, &url); err != nil {
			return nil, err
		}
		if deliveredAt.Valid {
			rc.DeliveredAt = &deliveredAt.String
		}
		if url.Valid {
			rc.URL = &url.String
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// --- engagements ---

// InsertEngagement records one engagement, returning false when the
// (participation, day, event type) key was already recorded.
func (r Repo) InsertEngagement(ctx context.Context, tx *sql.Tx, evt domain.TrackingEvent, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO engagements(participation_id,day_number,event_type,asset_ref,created_at) VALUES (?,?,?,?,?)`,
		evt.ParticipationID, evt.DayNumber, evt.EventType, evt.AssetRef, now)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r Repo) CountEngagements(ctx context.Context, participationID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM engagements WHERE participation_id=?`, participationID).Scan(&n)
	return n, err
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, tenantID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(tenant_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var conds []string
	var args []any
	if tenantID != "" {
		conds = append(conds, "tenant_id=?")
		args = append(args, tenantID)
	}
	if evtType != "" {
		conds = append(conds, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		conds = append(conds, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		conds = append(conds, "entity_id=?")
		args = append(args, entityID)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.TenantID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
