package override

import (
	"context"
	"fmt"
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

const columns = "id, shop_id, canonical_product_id, local_entity_id, operation_type, payload, external_id, sync_status, sync_error, created_at, updated_at"

// Repository handles shop override persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new override repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new override record
func (r *Repository) Create(ctx context.Context, record *models.OverrideRecord) (*models.OverrideRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.Create")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.SyncStatus == "" {
		record.SyncStatus = models.SyncStatusPending
	}
	record.CreatedAt = time.Now().UTC()
	record.UpdatedAt = record.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("shop_overrides")
	sb.Cols("id", "shop_id", "canonical_product_id", "local_entity_id", "operation_type", "payload", "external_id", "sync_status", "sync_error", "created_at", "updated_at")
	sb.Values(record.ID, record.ShopID, record.CanonicalProductID, record.LocalEntityID, record.Operation, record.Payload, record.ExternalID, record.SyncStatus, record.SyncError, record.CreatedAt, record.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"shop_id":              record.ShopID,
			"canonical_product_id": record.CanonicalProductID,
		}).Error("Failed to create override")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create override")
	}

	return record, nil
}

// Get retrieves an override by ID
func (r *Repository) Get(ctx context.Context, shopID, id string) (*models.OverrideRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("shop_overrides")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("shop_id", shopID),
	)

	query, args := sb.Build()
	var record models.OverrideRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("override %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get override")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get override")
	}

	return &record, nil
}

// GetByEntity retrieves the override for a product sub-entity. Returns
// (nil, nil) when none exists, which is the implicit INHERIT state.
func (r *Repository) GetByEntity(ctx context.Context, shopID, productID, localEntityID string) (*models.OverrideRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.GetByEntity")
	defer span.End()

	query := `
		SELECT ` + columns + `
		FROM shop_overrides
		WHERE shop_id = $1 AND canonical_product_id = $2 AND local_entity_id = $3
		LIMIT 1
	`

	var record models.OverrideRecord
	if err := r.db.GetContext(ctx, &record, query, shopID, productID, localEntityID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get override by entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get override")
	}

	return &record, nil
}

// Update writes the mutable fields of an override record
func (r *Repository) Update(ctx context.Context, record *models.OverrideRecord) (*models.OverrideRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.Update")
	defer span.End()

	record.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("shop_overrides")
	sb.Set(
		sb.Assign("operation_type", record.Operation),
		sb.Assign("payload", record.Payload),
		sb.Assign("external_id", record.ExternalID),
		sb.Assign("sync_status", record.SyncStatus),
		sb.Assign("sync_error", record.SyncError),
		sb.Assign("updated_at", record.UpdatedAt),
	)
	sb.Where(
		sb.Equal("id", record.ID),
		sb.Equal("shop_id", record.ShopID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": record.ID}).Error("Failed to update override")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update override")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("override %s not found", record.ID))
	}

	return record, nil
}

// UpdateSyncStatus records the outcome of a remote write for one override
func (r *Repository) UpdateSyncStatus(ctx context.Context, shopID, id string, status models.SyncStatus, externalID, syncErr *string) error {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.UpdateSyncStatus")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("shop_overrides")
	assigns := []string{
		sb.Assign("sync_status", status),
		sb.Assign("sync_error", syncErr),
		sb.Assign("updated_at", now),
	}
	if externalID != nil {
		assigns = append(assigns, sb.Assign("external_id", externalID))
	}
	sb.Set(assigns...)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("shop_id", shopID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to update override sync status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update override sync status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("override %s not found", id))
	}

	return nil
}

// Delete removes an override record outright
func (r *Repository) Delete(ctx context.Context, shopID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("shop_overrides")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("shop_id", shopID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to delete override")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete override")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("override %s not found", id))
	}

	return nil
}

// ListByProduct retrieves all overrides for a product in a shop
func (r *Repository) ListByProduct(ctx context.Context, shopID, productID string) ([]models.OverrideRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Repository.ListByProduct")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("shop_overrides")
	sb.Where(
		sb.Equal("shop_id", shopID),
		sb.Equal("canonical_product_id", productID),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var records []models.OverrideRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list overrides")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list overrides")
	}

	return records, nil
}
