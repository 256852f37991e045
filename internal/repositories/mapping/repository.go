package mapping

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

const columns = "id, shop_id, entity_type, canonical_id, external_id, external_label, active, created_at, updated_at, deleted_at"

// Repository handles identifier mapping persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new mapping repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts a mapping or replaces the active row for the same
// (shop_id, entity_type, canonical_id) key.
func (r *Repository) Upsert(ctx context.Context, record *models.MappingRecord) (*models.MappingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mapping.Repository.Upsert")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.Active = true
	record.CreatedAt = time.Now().UTC()
	record.UpdatedAt = record.CreatedAt

	// Re-pointing an external id from another canonical entity would trip
	// the external-id unique index, so retire that row first.
	release := `
		UPDATE entity_mappings
		SET active = false, deleted_at = $1, updated_at = $1
		WHERE shop_id = $2 AND entity_type = $3 AND external_id = $4 AND canonical_id <> $5 AND active`
	if _, err := r.db.ExecContext(ctx, release, record.CreatedAt, record.ShopID, record.EntityType, record.ExternalID, record.CanonicalID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"shop_id":     record.ShopID,
			"entity_type": record.EntityType,
			"external_id": record.ExternalID,
		}).Error("Failed to release external id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert mapping")
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("entity_mappings")
	sb.Cols("id", "shop_id", "entity_type", "canonical_id", "external_id", "external_label", "active", "created_at", "updated_at")
	sb.Values(record.ID, record.ShopID, record.EntityType, record.CanonicalID, record.ExternalID, record.ExternalLabel, record.Active, record.CreatedAt, record.UpdatedAt)

	query, args := sb.Build()
	// The unique index is partial (WHERE active), so the conflict target must name it
	query += " ON CONFLICT (shop_id, entity_type, canonical_id) WHERE active DO UPDATE SET external_id = EXCLUDED.external_id, external_label = EXCLUDED.external_label, updated_at = EXCLUDED.updated_at RETURNING " + columns

	var result models.MappingRecord
	if err := r.db.GetContext(ctx, &result, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"shop_id":      record.ShopID,
			"entity_type":  record.EntityType,
			"canonical_id": record.CanonicalID,
		}).Error("Failed to upsert mapping")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert mapping")
	}

	return &result, nil
}

// GetByCanonicalID retrieves the active mapping for a canonical identifier.
// Returns (nil, nil) when no active row exists.
func (r *Repository) GetByCanonicalID(ctx context.Context, shopID string, entityType models.EntityType, canonicalID string) (*models.MappingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mapping.Repository.GetByCanonicalID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("entity_mappings")
	sb.Where(
		sb.Equal("shop_id", shopID),
		sb.Equal("entity_type", entityType),
		sb.Equal("canonical_id", canonicalID),
		sb.Equal("active", true),
	)

	query, args := sb.Build()
	var record models.MappingRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get mapping by canonical id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get mapping")
	}

	return &record, nil
}

// GetByExternalID retrieves the active mapping for an external identifier.
// Returns (nil, nil) when no active row exists.
func (r *Repository) GetByExternalID(ctx context.Context, shopID string, entityType models.EntityType, externalID string) (*models.MappingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mapping.Repository.GetByExternalID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("entity_mappings")
	sb.Where(
		sb.Equal("shop_id", shopID),
		sb.Equal("entity_type", entityType),
		sb.Equal("external_id", externalID),
		sb.Equal("active", true),
	)

	query, args := sb.Build()
	var record models.MappingRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get mapping by external id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get mapping")
	}

	return &record, nil
}

// Deactivate logically deletes the active mapping for a canonical
// identifier, keeping the row for audit. Returns (nil, nil) when no active
// row exists.
func (r *Repository) Deactivate(ctx context.Context, shopID string, entityType models.EntityType, canonicalID string) (*models.MappingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mapping.Repository.Deactivate")
	defer span.End()

	now := time.Now().UTC()
	query := `
		UPDATE entity_mappings
		SET active = false, deleted_at = $1, updated_at = $1
		WHERE shop_id = $2 AND entity_type = $3 AND canonical_id = $4 AND active
		RETURNING ` + columns

	var record models.MappingRecord
	if err := r.db.GetContext(ctx, &record, query, now, shopID, entityType, canonicalID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to deactivate mapping")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to deactivate mapping")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": record.ID}).Debug("Deactivated mapping")
	return &record, nil
}

// ListActive retrieves all active mappings for a shop and entity type.
func (r *Repository) ListActive(ctx context.Context, shopID string, entityType models.EntityType) ([]models.MappingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mapping.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("entity_mappings")
	sb.Where(
		sb.Equal("shop_id", shopID),
		sb.Equal("entity_type", entityType),
		sb.Equal("active", true),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var records []models.MappingRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active mappings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list mappings")
	}

	return records, nil
}
