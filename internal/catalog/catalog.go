// Package catalog lists the campaigns visible to the current tenant.
// The server scopes the list by the forwarded identity; the client only
// partitions it by join and status state.
package catalog

import (
	"context"
	"fmt"

	"packdesk/internal/domain"
)

// ListFunc performs the remote catalog fetch for the session's tenant.
type ListFunc func(ctx context.Context) ([]domain.Campaign, error)

// Catalog wraps the fetch with the derived views the console renders.
// Fetch failures are plain errors: the caller keeps prior state and may
// retry, unlike a config failure which blocks the UI.
type Catalog struct {
	List ListFunc
}

func New(list ListFunc) Catalog {
	return Catalog{List: list}
}

// Load fetches the scoped campaign list.
func (c Catalog) Load(ctx context.Context) ([]domain.Campaign, error) {
	campaigns, err := c.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch campaign catalog: %w", err)
	}
	return campaigns, nil
}

// Available filters campaigns open to join: status available and not
// yet joined.
func Available(campaigns []domain.Campaign) []domain.Campaign {
	var out []domain.Campaign
	for _, c := range campaigns {
		if c.Status == "available" && !c.IsJoined {
			out = append(out, c)
		}
	}
	return out
}

// Active filters campaigns the tenant is participating in or that are
// currently running.
func Active(campaigns []domain.Campaign) []domain.Campaign {
	var out []domain.Campaign
	for _, c := range campaigns {
		if c.IsJoined || c.Status == "active" {
			out = append(out, c)
		}
	}
	return out
}
