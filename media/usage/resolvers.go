package usage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/salonkit/mediavault/media/domain"
	"github.com/salonkit/mediavault/shared/db"
)

// tableReference describes one URL column of a CMS table that may point at an
// asset. The column names are fixed at registration time; fieldName values
// arriving from usage lists are checked against this set before they get
// anywhere near a query string.
type tableReference struct {
	entityType string
	table      string
	nameColumn string
	fields     map[string]string // fieldName -> column
}

// sqlTableResolver resolves and clears asset references for a single CMS
// table. One instance covers all URL columns of its table.
type sqlTableResolver struct {
	db  *sql.DB
	ref tableReference
}

var (
	_ domain.UsageResolver    = (*sqlTableResolver)(nil)
	_ domain.ReferenceClearer = (*sqlTableResolver)(nil)
)

// Resolve reports every row of the table whose URL columns reference assetURL.
func (r *sqlTableResolver) Resolve(ctx context.Context, assetURL string) ([]domain.Usage, error) {
	executor := db.GetExecutor(ctx, r.db)

	usages := make([]domain.Usage, 0)
	for fieldName, column := range r.ref.fields {
		query := fmt.Sprintf("SELECT id, %s FROM %s WHERE %s = ?", r.ref.nameColumn, r.ref.table, column)

		rows, err := executor.QueryContext(ctx, query, assetURL)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s for references: %w", r.ref.table, err)
		}

		for rows.Next() {
			var id, name string
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s reference row: %w", r.ref.table, err)
			}
			usages = append(usages, domain.Usage{
				EntityType: r.ref.entityType,
				EntityID:   id,
				EntityName: name,
				FieldName:  fieldName,
			})
		}

		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating %s reference rows: %w", r.ref.table, err)
		}
		rows.Close()
	}

	return usages, nil
}

// ClearReference nulls the referencing column, but only while it still points
// at assetURL, so a field the owner re-pointed in the meantime stays intact.
func (r *sqlTableResolver) ClearReference(ctx context.Context, entityID, fieldName, assetURL string) error {
	column, ok := r.ref.fields[fieldName]
	if !ok {
		return fmt.Errorf("unknown field %q for entity type %s", fieldName, r.ref.entityType)
	}

	query := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE id = ? AND %s = ?", r.ref.table, column, column)

	executor := db.GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, entityID, assetURL); err != nil {
		return fmt.Errorf("failed to clear %s.%s: %w", r.ref.table, column, err)
	}

	return nil
}

// cmsTables is the set of salon CMS entities that hold asset URLs today. New
// content types register their own resolver instead of extending this list
// when they live outside this module.
var cmsTables = []tableReference{
	{
		entityType: "blogPost",
		table:      "blog_posts",
		nameColumn: "title",
		fields:     map[string]string{"coverImage": "cover_image_url"},
	},
	{
		entityType: "salonProfile",
		table:      "salon_profiles",
		nameColumn: "name",
		fields:     map[string]string{"logo": "logo_url", "coverImage": "cover_url"},
	},
	{
		entityType: "partnerCard",
		table:      "partner_cards",
		nameColumn: "name",
		fields:     map[string]string{"image": "image_url"},
	},
	{
		entityType: "staffProfile",
		table:      "staff_profiles",
		nameColumn: "name",
		fields:     map[string]string{"photo": "photo_url"},
	},
}

// RegisterCMSResolvers wires the bundled salon CMS tables into the registry.
func RegisterCMSResolvers(registry *Registry, sqlDB *sql.DB) {
	for _, ref := range cmsTables {
		resolver := &sqlTableResolver{db: sqlDB, ref: ref}
		registry.Register(ref.entityType, resolver, resolver)
	}
}
