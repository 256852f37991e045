// Package ancestry finds or creates the canonical counterpart of an
// external entity, including its full parent chain. It is the auto-create
// path taken when an import encounters an unmapped external identifier.
package ancestry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/pkg/mappingstore"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/remote"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// DefaultMaxDepth bounds ancestor chains. Real taxonomies are a handful of
// levels deep; anything past this is treated like a cycle.
const DefaultMaxDepth = 25

var errCycleDetected = errors.New("ancestry cycle detected")

// Mappings is the slice of the mapping store the resolver needs.
type Mappings interface {
	GetReverse(ctx context.Context, shopID string, entityType models.EntityType, externalID string) (string, error)
	Put(ctx context.Context, req *models.PutMappingRequest) (*models.MappingRecord, error)
}

// EntityStore is the canonical entity side of resolution.
type EntityStore interface {
	FindByLabel(ctx context.Context, entityType models.EntityType, label string) (*models.CanonicalEntity, error)
	Create(ctx context.Context, req *models.CreateCanonicalEntityRequest) (*models.CanonicalEntity, error)
	SetParent(ctx context.Context, id, parentID string) error
}

// Fetcher fetches an external entity's detail from the shop.
type Fetcher interface {
	FetchEntity(ctx context.Context, shopID string, entityType models.EntityType, externalID string) (*remote.EntityDetail, error)
}

// Locker serializes creation per external entity across workers.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Config holds the resolver's hierarchy settings.
type Config struct {
	// RootSentinels are external IDs that mean "top of hierarchy" rather
	// than a real ancestor. They are never fetched or recursed into.
	RootSentinels []string
	// DefaultRootID is the canonical entity every sentinel-parented or
	// orphaned entity attaches to.
	DefaultRootID string
	// LockTTL bounds how long a creation lock is held.
	LockTTL time.Duration
	// MaxDepth bounds recursion; 0 uses DefaultMaxDepth.
	MaxDepth int
}

// Resolver finds or creates canonical entities with their ancestor chains
type Resolver struct {
	mappings  Mappings
	entities  EntityStore
	remote    Fetcher
	locker    Locker
	cfg       Config
	sentinels map[string]bool
	logger    ectologger.Logger
}

// NewResolver creates a new Resolver
func NewResolver(mappings Mappings, entities EntityStore, fetcher Fetcher, locker Locker, cfg Config, logger ectologger.Logger) *Resolver {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	sentinels := make(map[string]bool, len(cfg.RootSentinels))
	for _, s := range cfg.RootSentinels {
		sentinels[s] = true
	}
	return &Resolver{
		mappings:  mappings,
		entities:  entities,
		remote:    fetcher,
		locker:    locker,
		cfg:       cfg,
		sentinels: sentinels,
		logger:    logger,
	}
}

// ResolveOrCreate returns the canonical ID for an external entity, creating
// the entity and any missing ancestors first. Ancestors are created
// top-down, so a chain root->A->B->C materializes A, then B, then C.
//
// A remote fetch failure for the entity itself propagates to the caller; a
// failure while resolving an ancestor degrades to attachment at the default
// root so one broken ancestor cannot block an otherwise healthy subtree.
func (r *Resolver) ResolveOrCreate(ctx context.Context, shopID string, entityType models.EntityType, externalID string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "ancestry.Resolver.ResolveOrCreate")
	defer span.End()

	visited := map[string]bool{}
	return r.resolve(ctx, shopID, entityType, externalID, visited)
}

func (r *Resolver) resolve(ctx context.Context, shopID string, entityType models.EntityType, externalID string, visited map[string]bool) (string, error) {
	canonicalID, err := r.mappings.GetReverse(ctx, shopID, entityType, externalID)
	if err == nil {
		return canonicalID, nil
	}
	if !errors.Is(err, mappingstore.ErrNotFound) {
		return "", err
	}

	if visited[externalID] || len(visited) >= r.cfg.MaxDepth {
		return "", errCycleDetected
	}
	visited[externalID] = true

	lockKey := fmt.Sprintf("create:%s:%s:%s", shopID, entityType, externalID)
	err = r.locker.WithLock(ctx, lockKey, r.cfg.LockTTL, func() error {
		canonicalID, err = r.createLocked(ctx, shopID, entityType, externalID, visited)
		return err
	})
	if err != nil {
		return "", err
	}
	return canonicalID, nil
}

// createLocked runs under the per-entity creation lock. The mapping is
// re-checked first because a competing worker may have finished the same
// creation while this one waited on the lock.
func (r *Resolver) createLocked(ctx context.Context, shopID string, entityType models.EntityType, externalID string, visited map[string]bool) (string, error) {
	canonicalID, err := r.mappings.GetReverse(ctx, shopID, entityType, externalID)
	if err == nil {
		return canonicalID, nil
	}
	if !errors.Is(err, mappingstore.ErrNotFound) {
		return "", err
	}

	detail, err := r.remote.FetchEntity(ctx, shopID, entityType, externalID)
	if err != nil {
		return "", err
	}

	label := strings.TrimSpace(detail.Label)
	if label == "" {
		return "", httperror.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("external %s %s has no label", entityType, externalID))
	}

	parentID := r.resolveParent(ctx, shopID, entityType, detail, visited)

	entity, err := r.entities.FindByLabel(ctx, entityType, label)
	if err != nil {
		return "", err
	}

	if entity != nil {
		// Adopt the existing entity. Backfill ancestry only when it has
		// none; an entity that already has a parent is never moved.
		if !entity.HasParent() && parentID != "" {
			if err := r.entities.SetParent(ctx, entity.ID, parentID); err != nil {
				return "", err
			}
		}
	} else {
		req := &models.CreateCanonicalEntityRequest{
			EntityType: entityType,
			Label:      label,
		}
		if parentID != "" {
			req.ParentID = &parentID
		}
		entity, err = r.entities.Create(ctx, req)
		if err != nil {
			return "", err
		}
	}

	if _, err := r.mappings.Put(ctx, &models.PutMappingRequest{
		ShopID:        shopID,
		EntityType:    entityType,
		CanonicalID:   entity.ID,
		ExternalID:    externalID,
		ExternalLabel: detail.Label,
	}); err != nil {
		return "", err
	}

	return entity.ID, nil
}

// resolveParent turns an external parent reference into a canonical parent
// ID. Sentinels and missing references map to the default root without a
// remote fetch. Any failure resolving a real ancestor also degrades to the
// default root; the entity is still importable, just misplaced until the
// ancestor heals.
func (r *Resolver) resolveParent(ctx context.Context, shopID string, entityType models.EntityType, detail *remote.EntityDetail, visited map[string]bool) string {
	parentRef := detail.ParentExternalID
	if parentRef == "" || r.sentinels[parentRef] {
		return r.cfg.DefaultRootID
	}

	parentID, err := r.resolve(ctx, shopID, entityType, parentRef, visited)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"shop_id":            shopID,
			"entity_type":        entityType,
			"external_id":        detail.ExternalID,
			"parent_external_id": parentRef,
		}).Warn("Failed to resolve ancestor, attaching at default root")
		return r.cfg.DefaultRootID
	}
	return parentID
}
