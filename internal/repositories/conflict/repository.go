package conflict

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

const columns = "id, shop_id, canonical_product_id, conflict_type, canonical_set, shop_set, requires_resolution, detected_at, resolved_at, resolved_by"

// Repository handles conflict record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new conflict repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new conflict record
func (r *Repository) Create(ctx context.Context, record *models.ConflictRecord) (*models.ConflictRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.Create")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.ConflictType == "" {
		record.ConflictType = models.ConflictTypeEntitySetDivergence
	}
	record.RequiresResolution = true
	record.DetectedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("sync_conflicts")
	sb.Cols("id", "shop_id", "canonical_product_id", "conflict_type", "canonical_set", "shop_set", "requires_resolution", "detected_at")
	sb.Values(record.ID, record.ShopID, record.CanonicalProductID, record.ConflictType, record.CanonicalSet, record.ShopSet, record.RequiresResolution, record.DetectedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"shop_id":              record.ShopID,
			"canonical_product_id": record.CanonicalProductID,
		}).Error("Failed to create conflict record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create conflict record")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": record.ID}).Info("Recorded sync conflict")
	return record, nil
}

// Get retrieves a conflict record by ID
func (r *Repository) Get(ctx context.Context, shopID, id string) (*models.ConflictRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("sync_conflicts")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("shop_id", shopID),
	)

	query, args := sb.Build()
	var record models.ConflictRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("conflict %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get conflict record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conflict record")
	}

	return &record, nil
}

// ListOpen retrieves unresolved conflicts for a shop
func (r *Repository) ListOpen(ctx context.Context, shopID string, limit int) ([]models.ConflictRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.ListOpen")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("sync_conflicts")
	sb.Where(
		sb.Equal("shop_id", shopID),
		sb.Equal("requires_resolution", true),
	)
	sb.OrderBy("detected_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var records []models.ConflictRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list open conflicts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list conflicts")
	}

	return records, nil
}

// ListOpenByProduct retrieves unresolved conflicts for one product in a shop
func (r *Repository) ListOpenByProduct(ctx context.Context, shopID, productID string) ([]models.ConflictRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.ListOpenByProduct")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("sync_conflicts")
	sb.Where(
		sb.Equal("shop_id", shopID),
		sb.Equal("canonical_product_id", productID),
		sb.Equal("requires_resolution", true),
	)
	sb.OrderBy("detected_at DESC")

	query, args := sb.Build()
	var records []models.ConflictRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list open conflicts for product")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list conflicts")
	}

	return records, nil
}

// Resolve closes a conflict record
func (r *Repository) Resolve(ctx context.Context, shopID, id, resolvedBy string) error {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.Resolve")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("sync_conflicts")
	sb.Set(
		sb.Assign("requires_resolution", false),
		sb.Assign("resolved_at", now),
		sb.Assign("resolved_by", resolvedBy),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("shop_id", shopID),
		sb.Equal("requires_resolution", true),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to resolve conflict")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve conflict")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("open conflict %s not found", id))
	}

	return nil
}
