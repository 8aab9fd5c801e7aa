package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"packdesk/internal/config"
	"packdesk/internal/domain"
	"packdesk/internal/engine"
	"packdesk/internal/repo"
)

// ResolveConfig loads the workspace packdesk.yml, falling back to the
// compiled-in defaults when the file is absent.
func ResolveConfig(workspace, consoleName string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default(consoleName)
	}
	return cfg, nil
}

// WriteDefaultConfig materializes packdesk.yml in the workspace so the
// policy table can be edited. Refuses to overwrite an existing file.
func WriteDefaultConfig(workspace, consoleName string) (string, error) {
	path := config.Path(workspace)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%s already exists", path)
	} else if !os.IsNotExist(err) {
		return path, err
	}
	if err := os.WriteFile(path, []byte(config.GenerateDefault(consoleName)), 0o644); err != nil {
		return path, err
	}
	return path, nil
}

// EnsureTenant resolves the working tenant, creating it on the fly when
// the workspace has never seen it. An empty override falls back to the
// single tenant in the database.
func EnsureTenant(ctx context.Context, e engine.Engine, tenantOverride, actorID string) (domain.Tenant, error) {
	tenantID := tenantOverride
	if tenantID == "" {
		if t, err := e.Repo.SingleTenant(ctx); err == nil {
			return t, nil
		}
		return domain.Tenant{}, fmt.Errorf("tenant not specified; use --tenant")
	}
	t, err := e.Repo.GetTenant(ctx, tenantID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Tenant{}, err
	}
	return e.InitTenant(ctx, tenantID, "", actorID)
}
