package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"packdesk/internal/domain"
	"packdesk/internal/repo"
)

type AuthConfig struct {
	JWTSecret string
	// AllowRelayHeaders trusts X-Tenant-Id / X-Persona-Id set by the
	// console's edge proxy. Off unless the deployment sits behind one.
	AllowRelayHeaders bool
	Logger            *log.Logger
}

// Principal is the resolved identity pair for a request. An anonymous
// request still carries a principal with RoleAnonymous and no ids.
type Principal struct {
	TenantID  string
	PersonaID string
	Role      domain.Role
	Source    string
}

func (p Principal) Anonymous() bool { return p.PersonaID == "" }

type principalKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return Principal{Role: domain.RoleAnonymous, Source: "none"}
}

func requireIdentity(ctx context.Context) (Principal, huma.StatusError) {
	p := principalFromContext(ctx)
	if p.TenantID == "" {
		return p, newAPIError(http.StatusUnauthorized, "unauthorized", "a tenant identity is required", nil)
	}
	return p, nil
}

type jwtClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role,omitempty"`
}

// SignToken mints an HS256 session token for an identity pair. Used by
// the dev login endpoint and the CLI; production deployments verify
// tokens minted elsewhere with the shared secret.
func SignToken(secret, personaID, tenantID string, role domain.Role, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   personaID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: tenantID,
		Role:     string(role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticateJWT(token string, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return Principal{}, errors.New("subject and tenant_id claims required")
	}
	role := domain.Role(claims.Role)
	if !role.Known() {
		return Principal{}, errors.New("unknown role claim")
	}
	return Principal{
		TenantID:  claims.TenantID,
		PersonaID: claims.Subject,
		Role:      role,
		Source:    "jwt",
	}, nil
}

func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (Principal, error) {
	if strings.TrimSpace(key) == "" {
		return Principal{}, errors.New("api key required")
	}
	apiKey, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return Principal{}, err
	}
	persona, _, err := r.GetPersona(ctx, apiKey.PersonaID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{
		TenantID:  persona.TenantID,
		PersonaID: persona.ID,
		Role:      persona.Role,
		Source:    "api_key",
	}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves the request's identity pair. Anonymous
// requests pass through with an anonymous principal; the resource-group
// gates decide per route what anonymous may see. Presented credentials
// that fail to verify are a 401, never a silent downgrade to anonymous.
func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			relayTenant := strings.TrimSpace(req.Header.Get("X-Tenant-Id"))
			relayPersona := strings.TrimSpace(req.Header.Get("X-Persona-Id"))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if apiKeyHeader != "" {
				principal, err := authenticateAPIKey(req.Context(), r, apiKeyHeader)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if cfg.AllowRelayHeaders && relayTenant != "" {
				principal := Principal{
					TenantID: relayTenant,
					Role:     domain.RoleAnonymous,
					Source:   "relay_header",
				}
				if relayPersona != "" {
					persona, _, err := r.GetPersona(req.Context(), relayPersona)
					if err != nil || persona.TenantID != relayTenant {
						respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
						return
					}
					principal.PersonaID = persona.ID
					principal.Role = persona.Role
				}
				cfg.logger().Printf("identity from relay headers (tenant=%s persona=%s); only enable behind a trusted proxy", relayTenant, relayPersona)
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			anonymous := Principal{Role: domain.RoleAnonymous, Source: "none"}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), anonymous)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
