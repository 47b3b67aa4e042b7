package application

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/salonkit/mediavault/media/domain"
	"github.com/salonkit/mediavault/media/storage"
	"github.com/salonkit/mediavault/media/usage"
)

// UploadLimits are the validation bounds applied before any bytes move.
type UploadLimits struct {
	MaxSizeBytes     int64
	AllowedMimeTypes map[string]bool
}

// CatalogService owns the asset lifecycle: upload, listing, usage lookup, the
// delete/restore state machine and the reference-integrity work around forced
// deletion.
type CatalogService struct {
	repo     domain.AssetRepository
	store    storage.BlobStore
	registry *usage.Registry
	gate     *AccessGate
	limits   UploadLimits
}

func NewCatalogService(repo domain.AssetRepository, store storage.BlobStore, registry *usage.Registry, gate *AccessGate, limits UploadLimits) *CatalogService {
	return &CatalogService{
		repo:     repo,
		store:    store,
		registry: registry,
		gate:     gate,
		limits:   limits,
	}
}

// UploadRequest carries one incoming file and its declared metadata.
type UploadRequest struct {
	Content      io.Reader
	OriginalName string
	MimeType     string
	SizeBytes    int64
	Category     domain.Category
	AltText      string
}

// Upload validates, stores and catalogs a new asset. Validation happens
// before any bytes are written; a failed catalog write after a successful
// byte write deletes the orphaned bytes again so no storage leaks.
func (s *CatalogService) Upload(ctx context.Context, actor domain.Actor, req UploadRequest) (*domain.Asset, error) {
	mimeType := strings.ToLower(strings.TrimSpace(req.MimeType))
	if !s.limits.AllowedMimeTypes[mimeType] {
		return nil, domain.NewError(domain.ErrUnsupportedMedia, "mime type %q is not allowed", req.MimeType)
	}

	if s.limits.MaxSizeBytes > 0 && req.SizeBytes > s.limits.MaxSizeBytes {
		return nil, domain.NewError(domain.ErrPayloadTooLarge, "file of %d bytes exceeds the %d byte limit", req.SizeBytes, s.limits.MaxSizeBytes)
	}

	id := uuid.New()
	key := storageKey(id, req.Category, req.OriginalName)

	url, err := s.store.Put(ctx, key, req.Content)
	if err != nil {
		// Storage failed, so no catalog row is created either.
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	asset := &domain.Asset{
		ID:           id,
		OwnerID:      actor.ID,
		SalonID:      actor.SalonID,
		StorageKey:   key,
		URL:          url,
		OriginalName: req.OriginalName,
		MimeType:     mimeType,
		SizeBytes:    req.SizeBytes,
		Category:     req.Category,
		AltText:      req.AltText,
	}

	if err := s.repo.Create(ctx, asset); err != nil {
		// Compensate: the bytes are already durable, so take them back out
		// rather than leak an orphaned object.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			log.Error().Err(delErr).Str("storageKey", key).Msg("Failed to clean up orphaned upload bytes")
		}
		return nil, fmt.Errorf("failed to catalog upload: %w", err)
	}

	log.Info().
		Str("assetId", id.String()).
		Str("category", string(req.Category)).
		Int64("sizeBytes", req.SizeBytes).
		Msg("Cataloged new upload")

	return asset, nil
}

// storageKey builds a collision-resistant key, grouped by category so the
// backing store stays browsable.
func storageKey(id uuid.UUID, category domain.Category, originalName string) string {
	dir := strings.ToLower(string(category))
	if dir == "" {
		dir = strings.ToLower(string(domain.CategoryOther))
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	return dir + "/" + id.String() + ext
}

// AssetDetail is an asset together with its current usages. FailedResolvers
// lists entity kinds whose resolver could not answer; their usages may be
// missing from the list and the caller should say so.
type AssetDetail struct {
	Asset           *domain.Asset
	Usages          []domain.Usage
	FailedResolvers []string
}

// Get returns the asset and a freshly computed usage list. Resolver failures
// do not hide the asset; they surface as warnings on the detail.
func (s *CatalogService) Get(ctx context.Context, id uuid.UUID) (*AssetDetail, error) {
	asset, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &AssetDetail{Asset: asset}

	usages, err := s.registry.ResolveAll(ctx, asset.URL)
	if err != nil {
		if e, ok := domain.AsError(err); ok && e.Kind == domain.ErrResolverFailure {
			detail.Usages = usages
			detail.FailedResolvers = e.FailedResolvers
			return detail, nil
		}
		return nil, err
	}

	detail.Usages = usages
	return detail, nil
}

// List returns one page of catalog entries.
func (s *CatalogService) List(ctx context.Context, filter domain.ListFilter) (*domain.ListResult, error) {
	return s.repo.List(ctx, filter)
}

// Stats aggregates the catalog footprint.
func (s *CatalogService) Stats(ctx context.Context, includeDeleted bool) (*domain.Stats, error) {
	return s.repo.Stats(ctx, includeDeleted)
}

// DeleteOutcome reports which lifecycle transition a delete call performed.
type DeleteOutcome struct {
	// Asset is the post-transition asset; nil once the asset is purged.
	Asset *domain.Asset
	// Purged is true when the call removed the asset permanently.
	Purged bool
}

// Delete advances the asset's lifecycle one step: an active asset becomes
// soft-deleted, an already soft-deleted one is purged for good. The current
// state picks the transition, not the caller.
//
// Before soft-deleting, usages are always re-resolved; a non-empty usage list
// blocks the delete unless force is set, in which case every referencing
// entity is told to clear its field first. Resolver failures block the delete
// outright: an unknown reference is treated like an existing one.
func (s *CatalogService) Delete(ctx context.Context, actor domain.Actor, id uuid.UUID, force bool, confirmationToken string) (*DeleteOutcome, error) {
	asset, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.checkDeleteAccess(actor, asset, confirmationToken); err != nil {
		return nil, err
	}

	if asset.IsDeleted() {
		return s.purge(ctx, asset)
	}

	return s.softDelete(ctx, asset, force)
}

// checkDeleteAccess runs the access gate and the confirmation-token round
// trip. It runs on every delete call, purge included.
func (s *CatalogService) checkDeleteAccess(actor domain.Actor, asset *domain.Asset, confirmationToken string) error {
	switch s.gate.AuthorizeDelete(actor, asset) {
	case DecisionAllowed:
		return nil

	case DecisionNeedsConfirmation:
		if confirmationToken != "" {
			err := s.gate.VerifyConfirmationToken(confirmationToken, actor, asset.ID)
			if err == nil {
				return nil
			}
			log.Warn().Err(err).Str("assetId", asset.ID.String()).Msg("Rejected stale confirmation token")
		}

		token, err := s.gate.IssueConfirmationToken(actor, asset.ID)
		if err != nil {
			return fmt.Errorf("failed to issue confirmation token: %w", err)
		}

		return &domain.Error{
			Kind:              domain.ErrNeedsConfirmation,
			Message:           "deleting another user's file requires confirmation",
			ConfirmationToken: token,
		}

	default:
		return domain.NewError(domain.ErrForbidden, "actor %s may not delete asset %s", actor.ID, asset.ID)
	}
}

// softDelete is the ACTIVE -> SOFT_DELETED transition.
func (s *CatalogService) softDelete(ctx context.Context, asset *domain.Asset, force bool) (*DeleteOutcome, error) {
	usages, err := s.registry.ResolveAll(ctx, asset.URL)
	if err != nil {
		// Fail closed: with resolvers unable to answer, a reference could
		// exist that we cannot see.
		if e, ok := domain.AsError(err); ok && e.Kind == domain.ErrResolverFailure {
			return nil, e
		}
		return nil, err
	}

	if len(usages) > 0 {
		if !force {
			return nil, &domain.Error{
				Kind:    domain.ErrInUse,
				Message: fmt.Sprintf("asset is referenced by %d entit(ies)", len(usages)),
				Usages:  usages,
			}
		}

		// Clear references first, then soft-delete, so no window exists in
		// which a live reference points at a deleted asset.
		if err := s.registry.ClearReferences(ctx, asset.URL, usages); err != nil {
			return nil, fmt.Errorf("failed to sever references before delete: %w", err)
		}
	}

	updated, err := s.repo.MarkSoftDeleted(ctx, asset.ID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("assetId", asset.ID.String()).
		Int("clearedUsages", len(usages)).
		Bool("force", force).
		Msg("Soft-deleted asset")

	return &DeleteOutcome{Asset: updated}, nil
}

// purge is the SOFT_DELETED -> PURGED transition. The bytes go first: a
// storage failure leaves the row soft-deleted for a retry, never the other
// way around, so metadata is never lost while bytes linger.
func (s *CatalogService) purge(ctx context.Context, asset *domain.Asset) (*DeleteOutcome, error) {
	if err := s.store.Delete(ctx, asset.StorageKey); err != nil {
		return nil, fmt.Errorf("failed to delete stored bytes: %w", err)
	}

	if err := s.repo.Purge(ctx, asset.ID); err != nil {
		return nil, err
	}

	log.Info().
		Str("assetId", asset.ID.String()).
		Str("storageKey", asset.StorageKey).
		Msg("Purged asset")

	return &DeleteOutcome{Purged: true}, nil
}

// Restore is the SOFT_DELETED -> ACTIVE transition. It only clears the
// soft-delete flag: references severed by a forced delete stay severed, and
// re-linking is left to the owning subsystems. Restoring an already-active
// asset is a no-op.
func (s *CatalogService) Restore(ctx context.Context, id uuid.UUID) (*domain.Asset, error) {
	asset, err := s.repo.MarkRestored(ctx, id)
	if err != nil {
		return nil, err
	}

	log.Info().Str("assetId", id.String()).Msg("Restored asset")

	return asset, nil
}
