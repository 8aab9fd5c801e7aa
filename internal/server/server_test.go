package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"testing"

	"packdesk/internal/config"
	"packdesk/internal/db"
	"packdesk/internal/domain"
	"packdesk/internal/engine"
	"packdesk/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

var (
	ownerHeaders = map[string]string{"X-Tenant-Id": "tenant-1", "X-Persona-Id": "tenant-1-owner"}
	analystHdrs  = map[string]string{"X-Tenant-Id": "tenant-1", "X-Persona-Id": "tenant-1-analyst"}
	adminHeaders = map[string]string{"X-Tenant-Id": "tenant-1", "X-Persona-Id": "tenant-1-admin"}
)

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("packdesk")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if err := e.SeedDemo(context.Background(), "tenant-1", "tester"); err != nil {
		t.Fatalf("seed demo: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{
		JWTSecret:         "test-secret",
		AllowRelayHeaders: true,
		Logger:            log.New(io.Discard, "", 0),
	}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestJoinConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	url := srv.URL + "/v0/campaigns/tenant-1-spring-drip/join"

	res, data := doJSON(t, client, http.MethodPost, url, map[string]any{
		"channels": []string{"email"},
	}, ownerHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("join status %d: %s", res.StatusCode, string(data))
	}
	var part domain.Participation
	if err := json.Unmarshal(data, &part); err != nil {
		t.Fatalf("unmarshal participation: %v", err)
	}
	if part.Status != "active" || part.TotalDays != 22 {
		t.Fatalf("unexpected participation: %+v", part)
	}

	res, data = doJSON(t, client, http.MethodPost, url, map[string]any{
		"channels": []string{"email"},
	}, ownerHeaders)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second join status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "already_joined" {
		t.Fatalf("error code = %s, want already_joined", envelope.Error.Code)
	}
	if envelope.Error.Details["participation_id"] != part.ID {
		t.Fatalf("conflict should carry the existing participation id: %+v", envelope.Error)
	}
}

func TestSessionConfig(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/config", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("anonymous config status %d: %s", res.StatusCode, string(data))
	}
	var anon SessionConfigResponse
	if err := json.Unmarshal(data, &anon); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if anon.Role != domain.RoleAnonymous || anon.LandingPage != "/campaigns" {
		t.Fatalf("anonymous config: %+v", anon)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/config", nil, analystHdrs)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("analyst config status %d: %s", res.StatusCode, string(data))
	}
	var analyst SessionConfigResponse
	if err := json.Unmarshal(data, &analyst); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if analyst.Role != domain.RoleAnalyst || analyst.LandingPage != "/reports" {
		t.Fatalf("analyst config: %+v", analyst)
	}
	if analyst.TenantID != "tenant-1" || !analyst.FeatureFlags["sequence_campaigns"] {
		t.Fatalf("analyst config: %+v", analyst)
	}
}

func TestAdminGroupDenied(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/participations/whatever/pause", nil, analystHdrs)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("analyst pause status %d: %s", res.StatusCode, string(data))
	}

	// admins pass the gate; the unknown id is their problem
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/participations/whatever/pause", nil, adminHeaders)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("admin pause status %d: %s", res.StatusCode, string(data))
	}
}

func TestCampaignFilters(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/campaigns?filter=available", nil, ownerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list CampaignListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != "tenant-1-spring-drip" {
		t.Fatalf("available campaigns: %+v", list.Items)
	}

	if res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/tenant-1-spring-drip/join", map[string]any{
		"channels": []string{"social"},
	}, ownerHeaders); res.StatusCode != http.StatusCreated {
		t.Fatalf("join status %d: %s", res.StatusCode, string(data))
	}

	// joined campaigns leave available and enter active
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/campaigns?filter=available", nil, ownerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 0 {
		t.Fatalf("available after join: %+v", list.Items)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/campaigns?filter=active", nil, ownerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	ids := map[string]bool{}
	for _, c := range list.Items {
		ids[c.ID] = true
	}
	if !ids["tenant-1-spring-drip"] || !ids["tenant-1-launch"] {
		t.Fatalf("active campaigns: %+v", list.Items)
	}
}

func TestCampaignDetailPartition(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/tenant-1-spring-drip/join", map[string]any{
		"channels": []string{"email"},
	}, ownerHeaders); res.StatusCode != http.StatusCreated {
		t.Fatalf("join status %d: %s", res.StatusCode, string(data))
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/campaigns/tenant-1-spring-drip", nil, ownerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("detail status %d: %s", res.StatusCode, string(data))
	}
	var detail CampaignDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if len(detail.ExplainerItems) != 2 || len(detail.RegularItems) != 20 {
		t.Fatalf("partition: %d explainer, %d regular", len(detail.ExplainerItems), len(detail.RegularItems))
	}
	if detail.Participation == nil || detail.ProgressPercent != 0 {
		t.Fatalf("fresh join: %+v", detail)
	}
	// nothing delivered yet, every day stays dimmed
	for _, day := range detail.RegularItems {
		if day.Enabled {
			t.Fatalf("day %d enabled without delivery", day.DayNumber)
		}
	}
}

func TestTrackDedupe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/tenant-1-spring-drip/join", map[string]any{
		"channels": []string{"email"},
	}, ownerHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("join status %d: %s", res.StatusCode, string(data))
	}
	var part domain.Participation
	if err := json.Unmarshal(data, &part); err != nil {
		t.Fatalf("unmarshal participation: %v", err)
	}

	evt := map[string]any{
		"participation_id": part.ID,
		"day_number":       0,
		"event_type":       "view",
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/track", evt, ownerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("track status %d: %s", res.StatusCode, string(data))
	}
	var tr TrackResponse
	if err := json.Unmarshal(data, &tr); err != nil || !tr.Recorded {
		t.Fatalf("first track: %+v err=%v", tr, err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/track", evt, ownerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("track status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &tr); err != nil || tr.Recorded {
		t.Fatalf("duplicate track: %+v err=%v", tr, err)
	}
}

func TestJWTAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"tenant_id":  "tenant-1",
		"persona_id": "tenant-1-owner",
		"role":       "partner_admin",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("login response: %s err=%v", string(data), err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/config", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("config with token status %d: %s", res.StatusCode, string(data))
	}
	var cfg SessionConfigResponse
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if cfg.Role != domain.RolePartnerAdmin || cfg.LandingPage != "/home" {
		t.Fatalf("jwt session: %+v", cfg)
	}

	// a presented-but-bad credential is a 401, not anonymous
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/config", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status %d: %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"persona_id": "tenant-1-owner",
		"name":       "console",
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var created CreateAPIKeyResponse
	if err := json.Unmarshal(data, &created); err != nil || created.Key == "" {
		t.Fatalf("create key response: %s err=%v", string(data), err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/config", nil, map[string]string{
		"X-Api-Key": created.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("config with api key status %d: %s", res.StatusCode, string(data))
	}
	var cfg SessionConfigResponse
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if cfg.Role != domain.RolePartnerAdmin || cfg.TenantID != "tenant-1" {
		t.Fatalf("api key session: %+v", cfg)
	}
}
