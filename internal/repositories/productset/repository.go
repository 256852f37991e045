// Package productset stores the entity ID sets the conflict detector
// compares: one default (canonical) set per product, identified by a NULL
// shop_id, plus one optional set per shop that has diverged or is keeping
// traceability rows.
package productset

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Repository handles product entity set persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new product set repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetDefaultSet returns the canonical default entity set for a product.
// Returns (nil, false, nil) when no default exists yet.
func (r *Repository) GetDefaultSet(ctx context.Context, productID string) ([]string, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "productset.Repository.GetDefaultSet")
	defer span.End()

	query := `
		SELECT entity_ids
		FROM product_entity_sets
		WHERE canonical_product_id = $1 AND shop_id IS NULL
	`

	var entityIDs pq.StringArray
	if err := r.db.GetContext(ctx, &entityIDs, query, productID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, false, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get default entity set")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get default entity set")
	}

	return entityIDs, true, nil
}

// GetShopSet returns the recorded entity set for a shop. Returns
// (nil, false, nil) when the shop inherits the default.
func (r *Repository) GetShopSet(ctx context.Context, shopID, productID string) ([]string, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "productset.Repository.GetShopSet")
	defer span.End()

	query := `
		SELECT entity_ids
		FROM product_entity_sets
		WHERE canonical_product_id = $1 AND shop_id = $2
	`

	var entityIDs pq.StringArray
	if err := r.db.GetContext(ctx, &entityIDs, query, productID, shopID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, false, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get shop entity set")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get shop entity set")
	}

	return entityIDs, true, nil
}

// ReplaceDefaultSet writes the canonical default entity set for a product
func (r *Repository) ReplaceDefaultSet(ctx context.Context, productID string, entityIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "productset.Repository.ReplaceDefaultSet")
	defer span.End()

	now := time.Now().UTC()
	query := `
		INSERT INTO product_entity_sets (id, canonical_product_id, shop_id, entity_ids, created_at, updated_at)
		VALUES ($1, $2, NULL, $3, $4, $4)
		ON CONFLICT (canonical_product_id) WHERE shop_id IS NULL
		DO UPDATE SET entity_ids = EXCLUDED.entity_ids, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, uuid.New().String(), productID, pq.StringArray(entityIDs), now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"canonical_product_id": productID,
		}).Error("Failed to replace default entity set")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace default entity set")
	}

	return nil
}

// ReplaceShopSet writes the shop-specific entity set for a product
func (r *Repository) ReplaceShopSet(ctx context.Context, shopID, productID string, entityIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "productset.Repository.ReplaceShopSet")
	defer span.End()

	now := time.Now().UTC()
	query := `
		INSERT INTO product_entity_sets (id, canonical_product_id, shop_id, entity_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (canonical_product_id, shop_id) WHERE shop_id IS NOT NULL
		DO UPDATE SET entity_ids = EXCLUDED.entity_ids, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, uuid.New().String(), productID, shopID, pq.StringArray(entityIDs), now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"shop_id":              shopID,
			"canonical_product_id": productID,
		}).Error("Failed to replace shop entity set")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace shop entity set")
	}

	return nil
}

// DeleteShopSet removes the shop-specific set so the shop falls back to
// inheriting the default. Deleting a set that does not exist is a no-op.
func (r *Repository) DeleteShopSet(ctx context.Context, shopID, productID string) error {
	ctx, span := tracing.StartSpan(ctx, "productset.Repository.DeleteShopSet")
	defer span.End()

	query := `
		DELETE FROM product_entity_sets
		WHERE canonical_product_id = $1 AND shop_id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, productID, shopID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete shop entity set")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete shop entity set")
	}

	return nil
}

// MarkImported records that a shop has imported this product at least once.
// Repeat calls are no-ops.
func (r *Repository) MarkImported(ctx context.Context, shopID, productID string) error {
	ctx, span := tracing.StartSpan(ctx, "productset.Repository.MarkImported")
	defer span.End()

	sb := database.NewInsertBuilder()
	sb.InsertInto("product_import_marks")
	sb.Cols("shop_id", "canonical_product_id", "first_imported_at")
	sb.Values(shopID, productID, time.Now().UTC())
	sb.OnConflictDoNothing()

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark product imported")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark product imported")
	}

	return nil
}

// HasImported reports whether this shop has ever imported this product.
func (r *Repository) HasImported(ctx context.Context, shopID, productID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "productset.Repository.HasImported")
	defer span.End()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM product_import_marks
			WHERE shop_id = $1 AND canonical_product_id = $2
		)
	`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, shopID, productID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check product import mark")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check product import mark")
	}

	return exists, nil
}
