package usage

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/salonkit/mediavault/media/domain"
)

func staticResolver(usages ...domain.Usage) domain.UsageResolverFunc {
	return func(ctx context.Context, assetURL string) ([]domain.Usage, error) {
		return usages, nil
	}
}

func TestRegistry_ResolveAll_ConcatenatesAndOrders(t *testing.T) {
	registry := NewRegistry(time.Second, zerolog.Nop())

	registry.Register("blogPost", staticResolver(
		domain.Usage{EntityType: "blogPost", EntityID: "p2", EntityName: "Winter specials", FieldName: "coverImage"},
		domain.Usage{EntityType: "blogPost", EntityID: "p1", EntityName: "Autumn colors", FieldName: "coverImage"},
	), nil)
	registry.Register("salonProfile", staticResolver(
		domain.Usage{EntityType: "salonProfile", EntityID: "s1", EntityName: "Bella Studio", FieldName: "logo"},
	), nil)
	registry.Register("partnerCard", staticResolver(), nil)

	usages, err := registry.ResolveAll(context.Background(), "http://files/a.jpg")
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}

	if len(usages) != 3 {
		t.Fatalf("Got %d usages, want 3", len(usages))
	}

	// Ordered by entity type, then name
	if usages[0].EntityName != "Autumn colors" || usages[1].EntityName != "Winter specials" {
		t.Errorf("Blog usages out of order: %q, %q", usages[0].EntityName, usages[1].EntityName)
	}
	if usages[2].EntityType != "salonProfile" {
		t.Errorf("Last usage type = %q, want salonProfile", usages[2].EntityType)
	}
}

func TestRegistry_ResolveAll_NoResolvers(t *testing.T) {
	registry := NewRegistry(time.Second, zerolog.Nop())

	usages, err := registry.ResolveAll(context.Background(), "http://files/a.jpg")
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}
	if len(usages) != 0 {
		t.Errorf("Got %d usages from empty registry, want 0", len(usages))
	}
}

func TestRegistry_ResolveAll_FailureIsNotZeroUsages(t *testing.T) {
	registry := NewRegistry(time.Second, zerolog.Nop())

	registry.Register("blogPost", staticResolver(
		domain.Usage{EntityType: "blogPost", EntityID: "p1", EntityName: "Post", FieldName: "coverImage"},
	), nil)
	registry.Register("broken", domain.UsageResolverFunc(func(ctx context.Context, assetURL string) ([]domain.Usage, error) {
		return nil, context.DeadlineExceeded
	}), nil)

	usages, err := registry.ResolveAll(context.Background(), "http://files/a.jpg")
	if err == nil {
		t.Fatal("Expected resolver failure to surface, got nil error")
	}

	e, ok := domain.AsError(err)
	if !ok || e.Kind != domain.ErrResolverFailure {
		t.Fatalf("Expected resolver_failure kind, got %v", err)
	}
	if len(e.FailedResolvers) != 1 || e.FailedResolvers[0] != "broken" {
		t.Errorf("FailedResolvers = %v, want [broken]", e.FailedResolvers)
	}

	// The healthy resolver's usages are still reported alongside the failure
	if len(usages) != 1 {
		t.Errorf("Got %d partial usages, want 1", len(usages))
	}
}

func TestRegistry_ResolveAll_SlowResolverTimesOut(t *testing.T) {
	registry := NewRegistry(50*time.Millisecond, zerolog.Nop())

	registry.Register("slow", domain.UsageResolverFunc(func(ctx context.Context, assetURL string) ([]domain.Usage, error) {
		select {
		case <-time.After(5 * time.Second):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}), nil)
	registry.Register("fast", staticResolver(
		domain.Usage{EntityType: "fast", EntityID: "f1", EntityName: "Fast", FieldName: "image"},
	), nil)

	start := time.Now()
	usages, err := registry.ResolveAll(context.Background(), "http://files/a.jpg")
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("ResolveAll took %v, the timeout did not apply", elapsed)
	}

	e, ok := domain.AsError(err)
	if !ok || e.Kind != domain.ErrResolverFailure {
		t.Fatalf("Expected resolver_failure for timeout, got %v", err)
	}
	if len(e.FailedResolvers) != 1 || e.FailedResolvers[0] != "slow" {
		t.Errorf("FailedResolvers = %v, want [slow]", e.FailedResolvers)
	}
	if len(usages) != 1 {
		t.Errorf("The fast resolver's usages should survive the slow one's timeout")
	}
}

func TestRegistry_ClearReferences(t *testing.T) {
	registry := NewRegistry(time.Second, zerolog.Nop())

	cleared := make(map[string]string)
	registry.Register("blogPost", staticResolver(), domain.ReferenceClearerFunc(
		func(ctx context.Context, entityID, fieldName, assetURL string) error {
			cleared[entityID] = fieldName
			return nil
		},
	))

	usages := []domain.Usage{
		{EntityType: "blogPost", EntityID: "p1", EntityName: "One", FieldName: "coverImage"},
		{EntityType: "blogPost", EntityID: "p2", EntityName: "Two", FieldName: "coverImage"},
	}

	if err := registry.ClearReferences(context.Background(), "http://files/a.jpg", usages); err != nil {
		t.Fatalf("ClearReferences failed: %v", err)
	}

	if len(cleared) != 2 || cleared["p1"] != "coverImage" || cleared["p2"] != "coverImage" {
		t.Errorf("Cleared = %v, want both posts cleared", cleared)
	}
}

func TestRegistry_ClearReferences_MissingClearerFailsClosed(t *testing.T) {
	registry := NewRegistry(time.Second, zerolog.Nop())
	registry.Register("blogPost", staticResolver(), nil)

	usages := []domain.Usage{
		{EntityType: "blogPost", EntityID: "p1", EntityName: "One", FieldName: "coverImage"},
	}

	if err := registry.ClearReferences(context.Background(), "http://files/a.jpg", usages); err == nil {
		t.Error("Expected error for entity kind without a clearer, got nil")
	}
}

func TestRegistry_EntityTypes(t *testing.T) {
	registry := NewRegistry(time.Second, zerolog.Nop())
	registry.Register("salonProfile", staticResolver(), nil)
	registry.Register("blogPost", staticResolver(), nil)

	types := registry.EntityTypes()
	if len(types) != 2 || types[0] != "blogPost" || types[1] != "salonProfile" {
		t.Errorf("EntityTypes = %v, want sorted [blogPost salonProfile]", types)
	}
}
