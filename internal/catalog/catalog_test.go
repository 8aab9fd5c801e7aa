package catalog_test

import (
	"context"
	"errors"
	"testing"

	"packdesk/internal/catalog"
	"packdesk/internal/domain"
)

var fixture = []domain.Campaign{
	{ID: "c1", Status: "available", IsJoined: false},
	{ID: "c2", Status: "available", IsJoined: true},
	{ID: "c3", Status: "active", IsJoined: false},
	{ID: "c4", Status: "closed", IsJoined: true},
	{ID: "c5", Status: "closed", IsJoined: false},
}

func ids(cs []domain.Campaign) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestAvailableFilter(t *testing.T) {
	got := ids(catalog.Available(fixture))
	if len(got) != 1 || got[0] != "c1" {
		t.Fatalf("available: got %v, want [c1]", got)
	}
}

func TestActiveFilter(t *testing.T) {
	got := ids(catalog.Active(fixture))
	want := map[string]bool{"c2": true, "c3": true, "c4": true}
	if len(got) != len(want) {
		t.Fatalf("active: got %v", got)
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected campaign %s in active view", id)
		}
	}
}

func TestLoadWrapsFetchError(t *testing.T) {
	cause := errors.New("relay 502")
	c := catalog.New(func(ctx context.Context) ([]domain.Campaign, error) {
		return nil, cause
	})
	_, err := c.Load(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestLoadPassesThrough(t *testing.T) {
	c := catalog.New(func(ctx context.Context) ([]domain.Campaign, error) {
		return fixture, nil
	})
	got, err := c.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(fixture) {
		t.Fatalf("got %d campaigns, want %d", len(got), len(fixture))
	}
}
