package entity

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

const columns = "id, entity_type, label, alias_label, parent_id, created_at, updated_at"

// Repository handles canonical entity persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new canonical entity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new canonical entity
func (r *Repository) Create(ctx context.Context, req *models.CreateCanonicalEntityRequest) (*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	entity := &models.CanonicalEntity{
		ID:         uuid.New().String(),
		EntityType: req.EntityType,
		Label:      req.Label,
		AliasLabel: req.AliasLabel,
		ParentID:   req.ParentID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("canonical_entities")
	sb.Cols("id", "entity_type", "label", "alias_label", "parent_id", "created_at", "updated_at")
	sb.Values(entity.ID, entity.EntityType, entity.Label, entity.AliasLabel, entity.ParentID, entity.CreatedAt, entity.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": entity.EntityType,
			"label":       entity.Label,
		}).Error("Failed to create canonical entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create canonical entity")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": entity.ID}).Info("Created canonical entity")
	return entity, nil
}

// Get retrieves a canonical entity by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("canonical_entities")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entity models.CanonicalEntity
	if err := r.db.GetContext(ctx, &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("canonical entity %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get canonical entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get canonical entity")
	}

	return &entity, nil
}

// FindByLabel retrieves a canonical entity whose label or alias matches
// case-insensitively. Returns (nil, nil) when nothing matches; with multiple
// matches the oldest wins.
func (r *Repository) FindByLabel(ctx context.Context, entityType models.EntityType, label string) (*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.FindByLabel")
	defer span.End()

	query := `
		SELECT ` + columns + `
		FROM canonical_entities
		WHERE entity_type = $1
		AND (LOWER(label) = LOWER($2) OR LOWER(alias_label) = LOWER($2))
		ORDER BY created_at ASC
		LIMIT 1
	`

	var entity models.CanonicalEntity
	if err := r.db.GetContext(ctx, &entity, query, entityType, label); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find canonical entity by label")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find canonical entity")
	}

	return &entity, nil
}

// SetParent assigns a parent to an entity that does not have one yet. The
// first writer wins; a later call with a different parent is a no-op.
func (r *Repository) SetParent(ctx context.Context, id, parentID string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.SetParent")
	defer span.End()

	now := time.Now().UTC()
	query := `
		UPDATE canonical_entities
		SET parent_id = $1, updated_at = $2
		WHERE id = $3 AND parent_id IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, parentID, now, id); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to set canonical entity parent")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set canonical entity parent")
	}

	return nil
}

// ListByType retrieves canonical entities of a type
func (r *Repository) ListByType(ctx context.Context, entityType models.EntityType, limit int) ([]models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ListByType")
	defer span.End()

	if limit < 1 || limit > 1000 {
		limit = 200
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("canonical_entities")
	sb.Where(sb.Equal("entity_type", entityType))
	sb.OrderBy("label ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var entities []models.CanonicalEntity
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list canonical entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list canonical entities")
	}

	return entities, nil
}
