package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category classifies an uploaded asset by the part of the salon product it
// belongs to. It is a closed set; uploads with an unknown category are rejected.
type Category string

const (
	CategoryProfileImage Category = "PROFILE_IMAGE"
	CategoryBlogImage    Category = "BLOG_IMAGE"
	CategoryLogo         Category = "LOGO"
	CategoryGalleryImage Category = "GALLERY_IMAGE"
	CategoryDocument     Category = "DOCUMENT"
	CategoryOther        Category = "OTHER"
)

var categories = map[Category]bool{
	CategoryProfileImage: true,
	CategoryBlogImage:    true,
	CategoryLogo:         true,
	CategoryGalleryImage: true,
	CategoryDocument:     true,
	CategoryOther:        true,
}

// ParseCategory validates a raw category string. An empty string maps to
// CategoryOther so upload widgets that never set a category still work.
func ParseCategory(raw string) (Category, error) {
	if raw == "" {
		return CategoryOther, nil
	}
	c := Category(raw)
	if !categories[c] {
		return "", fmt.Errorf("unknown asset category: %q", raw)
	}
	return c, nil
}

// Asset is a cataloged upload. SizeBytes and MimeType are fixed at creation.
// DeletedAt is nil while the asset is active; a set DeletedAt means the asset
// is soft-deleted and can still be restored. A purged asset has no row at all.
type Asset struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	SalonID      uuid.UUID
	StorageKey   string
	URL          string
	OriginalName string
	MimeType     string
	SizeBytes    int64
	Category     Category
	AltText      string
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// IsDeleted reports whether the asset is currently soft-deleted.
func (a *Asset) IsDeleted() bool {
	return a.DeletedAt != nil
}

// SortOrder is the direction of a listing sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListFilter narrows and orders catalog listings. Search matches OriginalName
// case-insensitively. SortBy must be one of "createdAt", "sizeBytes" or
// "originalName"; the repository rejects anything else.
type ListFilter struct {
	Category       Category
	OwnerID        uuid.UUID
	Search         string
	SortBy         string
	SortOrder      SortOrder
	Page           int
	Limit          int
	IncludeDeleted bool
}

// ListResult is one page of assets plus the total matching row count for
// pagination indicators.
type ListResult struct {
	Assets []*Asset
	Total  int
	Page   int
	Limit  int
}

// Stats aggregates the catalog footprint for quota and dashboard displays.
type Stats struct {
	TotalFiles     int
	TotalSizeBytes int64
}

// AssetRepository is the authoritative metadata store for uploads.
//
// MarkSoftDeleted, MarkRestored and Purge are bare state transitions guarded
// against concurrent writers: each one checks the asset's current deleted_at
// inside the same transaction as its write and returns a conflict error when
// another caller got there first. Sequencing and integrity checks belong to
// the caller.
type AssetRepository interface {
	Create(ctx context.Context, a *Asset) error
	Get(ctx context.Context, id uuid.UUID) (*Asset, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
	Stats(ctx context.Context, includeDeleted bool) (*Stats, error)

	MarkSoftDeleted(ctx context.Context, id uuid.UUID) (*Asset, error)
	MarkRestored(ctx context.Context, id uuid.UUID) (*Asset, error)
	Purge(ctx context.Context, id uuid.UUID) error
}
