package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"packdesk/internal/access"
	"packdesk/internal/catalog"
	"packdesk/internal/domain"
	"packdesk/internal/engine"
	"packdesk/internal/repo"
	"packdesk/internal/sequence"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"already_joined"`
	Message string         `json:"message" example:"already joined campaign spring-drip"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"participation_id\":\"p-1\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Packdesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	gate := access.NewGate(cfg.Engine.Config)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Packdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerSessionConfig(group, cfg.Engine, gate)
	registerAccessCheck(group, gate)
	registerCampaigns(group, cfg.Engine, gate)
	registerParticipations(group, cfg.Engine, gate)
	registerTrack(group, cfg.Engine, gate)
	registerEvents(group, cfg.Engine, gate)
	registerAPIKeys(group, cfg.Engine, gate)
	registerDevAuth(group, cfg.Engine, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var dup engine.AlreadyJoinedError
	if errors.As(err, &dup) {
		return newAPIError(http.StatusConflict, "already_joined", err.Error(), map[string]any{"participation_id": dup.ParticipationID})
	}
	var denied access.DeniedError
	if errors.As(err, &denied) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{
			"role":  string(denied.Role),
			"group": denied.Group,
		})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "transition"):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "closed"),
		strings.Contains(lowered, "not joinable"),
		strings.Contains(lowered, "contiguity"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown channel") ||
		strings.Contains(lowered, "out of range") || strings.Contains(lowered, "not offered"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func requireGroup(ctx context.Context, gate access.Gate, group string) error {
	p := principalFromContext(ctx)
	return gate.Require(p.Role, group)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSessionConfig(api huma.API, e engine.Engine, gate access.Gate) {
	huma.Register(api, huma.Operation{
		OperationID: "get-session-config",
		Method:      http.MethodGet,
		Path:        "/config",
		Summary:     "Resolve session config",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionConfigResponse `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		cfg, err := e.ResolveTenantConfig(ctx, p.TenantID, p.PersonaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionConfigResponse `json:"body"`
		}{Body: SessionConfigResponse{
			TenantConfig: cfg,
			LandingPage:  gate.LandingPage(cfg.Role),
		}}, nil
	})
}

func registerAccessCheck(api huma.API, gate access.Gate) {
	huma.Register(api, huma.Operation{
		OperationID: "check-access",
		Method:      http.MethodGet,
		Path:        "/access/{group}",
		Summary:     "Gate a resource group for the current role",
	}, func(ctx context.Context, input *struct {
		Group string `path:"group"`
	}) (*struct {
		Body access.Decision `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		return &struct {
			Body access.Decision `json:"body"`
		}{Body: gate.CheckGroup(p.Role, input.Group)}, nil
	})
}

func registerCampaigns(api huma.API, e engine.Engine, gate access.Gate) {
	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Filter string `query:"filter" enum:"all,available,active" default:"all"`
	}) (*struct {
		Body CampaignListResponse `json:"body"`
	}, error) {
		if err := requireGroup(ctx, gate, "partner"); err != nil {
			return nil, handleError(err)
		}
		p, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cat := catalog.New(func(ctx context.Context) ([]domain.Campaign, error) {
			return e.Repo.ListCampaigns(ctx, p.TenantID)
		})
		items, err := cat.Load(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		switch input.Filter {
		case "available":
			items = catalog.Available(items)
		case "active":
			items = catalog.Active(items)
		}
		return &struct {
			Body CampaignListResponse `json:"body"`
		}{Body: CampaignListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-campaign",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}",
		Summary:     "Campaign detail with sequence days",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*struct {
		Body CampaignDetailResponse `json:"body"`
	}, error) {
		if err := requireGroup(ctx, gate, "partner"); err != nil {
			return nil, handleError(err)
		}
		p := principalFromContext(ctx)
		view, err := e.GetSequenceView(ctx, input.CampaignID, p.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := CampaignDetailResponse{Campaign: view.Campaign, Participation: view.Participation}
		items := view.Items
		if view.Participation != nil {
			items = sequence.ApplyReceipts(items, view.Participation.Receipts)
			resp.ProgressPercent = sequence.ProgressPercent(view.Participation.CurrentDay, view.Participation.TotalDays)
		}
		explainer, regular := sequence.Partition(items)
		resp.ExplainerItems = dayResponses(explainer)
		resp.RegularItems = dayResponses(regular)
		return &struct {
			Body CampaignDetailResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "join-campaign",
		Method:        http.MethodPost,
		Path:          "/campaigns/{campaign_id}/join",
		Summary:       "Join a sequence campaign",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		CampaignID string              `path:"campaign_id"`
		Body       JoinCampaignRequest `json:"body"`
	}) (*struct {
		Body domain.Participation `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireGroup(ctx, gate, "partner"); err != nil {
			return nil, handleError(err)
		}
		p, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		part, err := e.Join(ctx, engine.JoinOptions{
			CampaignID: input.CampaignID,
			TenantID:   p.TenantID,
			Channels:   input.Body.Channels,
			ActorID:    p.PersonaID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Participation `json:"body"`
		}{Body: part}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-campaign",
		Method:        http.MethodPost,
		Path:          "/campaigns",
		Summary:       "Create campaign",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCampaignRequest `json:"body"`
	}) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireGroup(ctx, gate, "admin"); err != nil {
			return nil, handleError(err)
		}
		p, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.CampaignCreateOptions{
			TenantID: p.TenantID,
			Name:     input.Body.Name,
			Type:     input.Body.Type,
			Status:   input.Body.Status,
			Channels: input.Body.Channels,
			ActorID:  p.PersonaID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.DurationDays != nil {
			opts.DurationDays = *input.Body.DurationDays
		}
		c, err := e.CreateCampaign(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})
}

func dayResponses(items []domain.SequenceItem) []SequenceDayResponse {
	out := make([]SequenceDayResponse, 0, len(items))
	for _, it := range items {
		out = append(out, SequenceDayResponse{
			SequenceItem: it,
			Enabled:      it.DeliveryStatus == "delivered",
		})
	}
	return out
}

func registerParticipations(api huma.API, e engine.Engine, gate access.Gate) {
	type participationPath struct {
		ParticipationID string `path:"participation_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-participation",
		Method:      http.MethodGet,
		Path:        "/participations/{participation_id}",
		Summary:     "Participation status",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *participationPath) (*struct {
		Body domain.Participation `json:"body"`
	}, error) {
		if err := requireGroup(ctx, gate, "partner"); err != nil {
			return nil, handleError(err)
		}
		part, err := e.Repo.GetParticipation(ctx, input.ParticipationID)
		if err != nil {
			return nil, handleError(err)
		}
		receipts, err := e.Repo.ListReceipts(ctx, part.ID)
		if err != nil {
			return nil, handleError(err)
		}
		part.Receipts = receipts
		return &struct {
			Body domain.Participation `json:"body"`
		}{Body: part}, nil
	})

	setStatus := func(opID, pathSuffix, summary string, apply func(context.Context, string, string) (domain.Participation, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/participations/{participation_id}/" + pathSuffix,
			Summary:     summary,
			Errors: []int{
				http.StatusUnauthorized,
				http.StatusForbidden,
				http.StatusNotFound,
				http.StatusConflict,
			},
		}, func(ctx context.Context, input *participationPath) (*struct {
			Body domain.Participation `json:"body"`
		}, error) {
			if err := requireGroup(ctx, gate, "admin"); err != nil {
				return nil, handleError(err)
			}
			p, authErr := requireIdentity(ctx)
			if authErr != nil {
				return nil, authErr
			}
			part, err := apply(ctx, input.ParticipationID, p.PersonaID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.Participation `json:"body"`
			}{Body: part}, nil
		})
	}
	setStatus("pause-participation", "pause", "Pause a participation", e.Pause)
	setStatus("resume-participation", "resume", "Resume a participation", e.Resume)
}

func registerTrack(api huma.API, e engine.Engine, gate access.Gate) {
	huma.Register(api, huma.Operation{
		OperationID: "track-engagement",
		Method:      http.MethodPost,
		Path:        "/track",
		Summary:     "Record an engagement event",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body TrackRequest `json:"body"`
	}) (*struct {
		Body TrackResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireGroup(ctx, gate, "unrestricted"); err != nil {
			return nil, handleError(err)
		}
		p := principalFromContext(ctx)
		recorded, err := e.RecordEngagement(ctx, domain.TrackingEvent{
			ParticipationID: input.Body.ParticipationID,
			DayNumber:       input.Body.DayNumber,
			AssetRef:        input.Body.AssetRef,
			EventType:       input.Body.EventType,
		}, p.PersonaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TrackResponse `json:"body"`
		}{Body: TrackResponse{Recorded: recorded}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine, gate access.Gate) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest ledger events",
		Errors:      []int{http.StatusForbidden, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		if err := requireGroup(ctx, gate, "reports"); err != nil {
			return nil, handleError(err)
		}
		p, authErr := requireIdentity(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.LatestEvents(ctx, input.Limit, p.TenantID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Items: nonNilSlice(items)}}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine, gate access.Gate) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreateAPIKeyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireGroup(ctx, gate, "admin"); err != nil {
			return nil, handleError(err)
		}
		if input.Body.PersonaID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "persona_id is required", nil)
		}
		if _, _, err := e.Repo.GetPersona(ctx, input.Body.PersonaID); err != nil {
			return nil, handleError(err)
		}
		raw := uuid.New().String() + uuid.New().String()
		key := domain.APIKey{
			ID:        uuid.New().String(),
			PersonaID: input.Body.PersonaID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(raw),
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateAPIKeyResponse `json:"body"`
		}{Body: CreateAPIKeyResponse{ID: key.ID, Key: raw}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		PersonaID string `query:"persona_id"`
	}) (*struct {
		Body APIKeyListResponse `json:"body"`
	}, error) {
		if err := requireGroup(ctx, gate, "admin"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAPIKeys(ctx, input.PersonaID)
		if err != nil {
			return nil, handleError(err)
		}
		for i := range items {
			items[i].KeyHash = ""
		}
		return &struct {
			Body APIKeyListResponse `json:"body"`
		}{Body: APIKeyListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := requireGroup(ctx, gate, "admin"); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		tenant := strings.TrimSpace(input.Body.TenantID)
		persona := strings.TrimSpace(input.Body.PersonaID)
		if tenant == "" || persona == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "tenant_id and persona_id are required", nil)
		}
		role := domain.Role(input.Body.Role)
		if !role.Known() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown role", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, persona, tenant, role, 12*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	openPaths := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if openPaths[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Packdesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
