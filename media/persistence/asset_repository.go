package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/salonkit/mediavault/media/domain"
	"github.com/salonkit/mediavault/shared/db"
)

var _ domain.AssetRepository = (*SQLiteAssetRepository)(nil)

// SQLiteAssetRepository implements domain.AssetRepository using SQL database (SQLite)
type SQLiteAssetRepository struct {
	db *sql.DB
}

// NewAssetRepository creates a new SQLiteAssetRepository from a standard sql.DB
func NewAssetRepository(sqlDB *sql.DB) *SQLiteAssetRepository {
	return &SQLiteAssetRepository{
		db: sqlDB,
	}
}

const insertAssetQuery = `
	INSERT INTO assets (id, owner_id, salon_id, storage_key, url, original_name, mime_type, size_bytes, category, alt_text, created_at, deleted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
`

// Create persists a new active asset
func (r *SQLiteAssetRepository) Create(ctx context.Context, a *domain.Asset) error {
	if a == nil {
		return fmt.Errorf("asset cannot be nil")
	}

	if a.ID == uuid.Nil {
		return fmt.Errorf("asset ID cannot be empty")
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	executor := db.GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, insertAssetQuery,
		a.ID.String(),
		a.OwnerID.String(),
		a.SalonID.String(),
		a.StorageKey,
		a.URL,
		a.OriginalName,
		a.MimeType,
		a.SizeBytes,
		string(a.Category),
		a.AltText,
		a.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}

	return nil
}

const getAssetQuery = `
	SELECT id, owner_id, salon_id, storage_key, url, original_name, mime_type, size_bytes, category, alt_text, created_at, deleted_at
	FROM assets
	WHERE id = ?
`

// Get retrieves a single asset by ID, regardless of its soft-delete state
func (r *SQLiteAssetRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Asset, error) {
	executor := db.GetExecutor(ctx, r.db)

	var row assetRow
	err := executor.QueryRowContext(ctx, getAssetQuery, id.String()).Scan(
		&row.ID,
		&row.OwnerID,
		&row.SalonID,
		&row.StorageKey,
		&row.URL,
		&row.OriginalName,
		&row.MimeType,
		&row.SizeBytes,
		&row.Category,
		&row.AltText,
		&row.CreatedAt,
		&row.DeletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, domain.NewError(domain.ErrNotFound, "asset not found: %s", id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return row.toDomain()
}

// sortColumns whitelists the sortable columns; anything else is rejected
// before it can reach the query string.
var sortColumns = map[string]string{
	"createdAt":    "created_at",
	"sizeBytes":    "size_bytes",
	"originalName": "original_name",
}

// List retrieves one page of assets matching the filter, along with the total
// match count for pagination indicators
func (r *SQLiteAssetRepository) List(ctx context.Context, filter domain.ListFilter) (*domain.ListResult, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	where := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.OwnerID != uuid.Nil {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID.String())
	}
	if filter.Search != "" {
		where = append(where, "LOWER(original_name) LIKE '%' || LOWER(?) || '%'")
		args = append(args, filter.Search)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "createdAt"
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return nil, fmt.Errorf("unsupported sort key: %q", sortBy)
	}

	direction := "DESC"
	if filter.SortOrder == domain.SortAsc {
		direction = "ASC"
	}

	executor := db.GetExecutor(ctx, r.db)

	var total int
	countQuery := "SELECT COUNT(*) FROM assets" + whereClause
	if err := executor.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}

	pageQuery := fmt.Sprintf(
		"SELECT id, owner_id, salon_id, storage_key, url, original_name, mime_type, size_bytes, category, alt_text, created_at, deleted_at FROM assets%s ORDER BY %s %s LIMIT ? OFFSET ?",
		whereClause, column, direction,
	)
	pageArgs := append(args, limit, (page-1)*limit)

	rows, err := executor.QueryContext(ctx, pageQuery, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	assets := make([]*domain.Asset, 0)
	for rows.Next() {
		var row assetRow
		err := rows.Scan(
			&row.ID,
			&row.OwnerID,
			&row.SalonID,
			&row.StorageKey,
			&row.URL,
			&row.OriginalName,
			&row.MimeType,
			&row.SizeBytes,
			&row.Category,
			&row.AltText,
			&row.CreatedAt,
			&row.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}

		asset, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset rows: %w", err)
	}

	return &domain.ListResult{
		Assets: assets,
		Total:  total,
		Page:   page,
		Limit:  limit,
	}, nil
}

// Stats aggregates file count and total size over the catalog. Purged rows are
// gone by definition; includeDeleted controls whether soft-deleted rows count.
func (r *SQLiteAssetRepository) Stats(ctx context.Context, includeDeleted bool) (*domain.Stats, error) {
	query := "SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM assets"
	if !includeDeleted {
		query += " WHERE deleted_at IS NULL"
	}

	executor := db.GetExecutor(ctx, r.db)

	stats := &domain.Stats{}
	err := executor.QueryRowContext(ctx, query).Scan(&stats.TotalFiles, &stats.TotalSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate asset stats: %w", err)
	}

	return stats, nil
}

const softDeleteAssetQuery = `
	UPDATE assets SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL
`

// MarkSoftDeleted flips an active asset to soft-deleted. The condition on the
// current deleted_at runs in the same transaction as the write, so a caller
// racing another delete loses with a conflict instead of silently re-deleting.
func (r *SQLiteAssetRepository) MarkSoftDeleted(ctx context.Context, id uuid.UUID) (*domain.Asset, error) {
	var asset *domain.Asset

	err := db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		executor := db.GetExecutor(txCtx, r.db)

		res, err := executor.ExecContext(txCtx, softDeleteAssetQuery, time.Now().UTC(), id.String())
		if err != nil {
			return fmt.Errorf("failed to soft-delete asset: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read soft-delete result: %w", err)
		}

		if affected == 0 {
			// Either the row is gone or another caller soft-deleted it first.
			if _, err := r.Get(txCtx, id); err != nil {
				return err
			}
			return domain.NewError(domain.ErrConflict, "asset %s was modified concurrently", id)
		}

		asset, err = r.Get(txCtx, id)
		return err
	})

	if err != nil {
		return nil, err
	}

	return asset, nil
}

const restoreAssetQuery = `
	UPDATE assets SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL
`

// MarkRestored clears the soft-delete flag. Restoring an already-active asset
// is a no-op that returns the asset unchanged.
func (r *SQLiteAssetRepository) MarkRestored(ctx context.Context, id uuid.UUID) (*domain.Asset, error) {
	var asset *domain.Asset

	err := db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		executor := db.GetExecutor(txCtx, r.db)

		if _, err := executor.ExecContext(txCtx, restoreAssetQuery, id.String()); err != nil {
			return fmt.Errorf("failed to restore asset: %w", err)
		}

		var err error
		asset, err = r.Get(txCtx, id)
		return err
	})

	if err != nil {
		return nil, err
	}

	return asset, nil
}

const purgeAssetQuery = `
	DELETE FROM assets WHERE id = ? AND deleted_at IS NOT NULL
`

// Purge removes a soft-deleted asset's row permanently. Purging an active
// asset is a conflict: it must be soft-deleted first.
func (r *SQLiteAssetRepository) Purge(ctx context.Context, id uuid.UUID) error {
	return db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		executor := db.GetExecutor(txCtx, r.db)

		res, err := executor.ExecContext(txCtx, purgeAssetQuery, id.String())
		if err != nil {
			return fmt.Errorf("failed to purge asset: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read purge result: %w", err)
		}

		if affected == 0 {
			if _, err := r.Get(txCtx, id); err != nil {
				return err
			}
			return domain.NewError(domain.ErrConflict, "asset %s is active and cannot be purged", id)
		}

		return nil
	})
}

// assetRow is a private struct used to scan database rows
// It uses sql.NullTime and sql.NullString to handle nullable fields
type assetRow struct {
	ID           string         `db:"id"`
	OwnerID      string         `db:"owner_id"`
	SalonID      string         `db:"salon_id"`
	StorageKey   string         `db:"storage_key"`
	URL          string         `db:"url"`
	OriginalName string         `db:"original_name"`
	MimeType     string         `db:"mime_type"`
	SizeBytes    int64          `db:"size_bytes"`
	Category     string         `db:"category"`
	AltText      sql.NullString `db:"alt_text"`
	CreatedAt    time.Time      `db:"created_at"`
	DeletedAt    sql.NullTime   `db:"deleted_at"`
}

// toDomain converts an assetRow to a domain.Asset, handling nullable fields
func (ar *assetRow) toDomain() (*domain.Asset, error) {
	id, err := uuid.Parse(ar.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid asset id %q: %w", ar.ID, err)
	}

	ownerID, err := uuid.Parse(ar.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("invalid owner id %q: %w", ar.OwnerID, err)
	}

	salonID, err := uuid.Parse(ar.SalonID)
	if err != nil {
		return nil, fmt.Errorf("invalid salon id %q: %w", ar.SalonID, err)
	}

	asset := &domain.Asset{
		ID:           id,
		OwnerID:      ownerID,
		SalonID:      salonID,
		StorageKey:   ar.StorageKey,
		URL:          ar.URL,
		OriginalName: ar.OriginalName,
		MimeType:     ar.MimeType,
		SizeBytes:    ar.SizeBytes,
		Category:     domain.Category(ar.Category),
		CreatedAt:    ar.CreatedAt,
	}

	if ar.AltText.Valid {
		asset.AltText = ar.AltText.String
	}
	if ar.DeletedAt.Valid {
		deletedAt := ar.DeletedAt.Time
		asset.DeletedAt = &deletedAt
	}

	return asset, nil
}
