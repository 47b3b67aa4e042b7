package domain

import (
	"context"
)

// Usage is a discovered reference from an owning entity to an asset URL. It is
// a point-in-time computation result, never a stored join row: the owning
// entities are the source of truth for their own fields, so usages are
// recomputed on demand.
type Usage struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	EntityName string `json:"entityName"`
	FieldName  string `json:"fieldName"`
}

// UsageResolver answers "which entities of one kind currently reference this
// asset URL". Implementations are supplied by the owning subsystem and must be
// deterministic and side-effect-free.
type UsageResolver interface {
	Resolve(ctx context.Context, assetURL string) ([]Usage, error)
}

// UsageResolverFunc adapts a plain function to the UsageResolver interface.
type UsageResolverFunc func(ctx context.Context, assetURL string) ([]Usage, error)

func (f UsageResolverFunc) Resolve(ctx context.Context, assetURL string) ([]Usage, error) {
	return f(ctx, assetURL)
}

// ReferenceClearer removes a reference from an owning entity during forced
// deletion. Clearing must only touch the named field and only when it still
// points at the given URL, so a field the owner re-pointed in the meantime is
// left alone.
type ReferenceClearer interface {
	ClearReference(ctx context.Context, entityID, fieldName, assetURL string) error
}

// ReferenceClearerFunc adapts a plain function to the ReferenceClearer interface.
type ReferenceClearerFunc func(ctx context.Context, entityID, fieldName, assetURL string) error

func (f ReferenceClearerFunc) ClearReference(ctx context.Context, entityID, fieldName, assetURL string) error {
	return f(ctx, entityID, fieldName, assetURL)
}
