// Package mappingstore is the single entry point for canonical-to-external
// identifier translation. Forward reads go through the cache; reverse reads
// always hit the repository. Writes synchronously invalidate the forward
// cache entry so a stale mapping is never served after an update.
package mappingstore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// DefaultCacheTTL bounds staleness from out-of-band database edits.
const DefaultCacheTTL = 15 * time.Minute

// ErrNotFound is returned when no active mapping exists for the lookup key.
var ErrNotFound = httperror.NewHTTPError(http.StatusNotFound, "mapping not found")

// Cache is the key/value layer in front of the repository. A miss is
// (value "", ok false, err nil); errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Repository is the persistent mapping table. Lookups return (nil, nil)
// when no active row matches.
type Repository interface {
	Upsert(ctx context.Context, record *models.MappingRecord) (*models.MappingRecord, error)
	GetByCanonicalID(ctx context.Context, shopID string, entityType models.EntityType, canonicalID string) (*models.MappingRecord, error)
	GetByExternalID(ctx context.Context, shopID string, entityType models.EntityType, externalID string) (*models.MappingRecord, error)
	Deactivate(ctx context.Context, shopID string, entityType models.EntityType, canonicalID string) (*models.MappingRecord, error)
	ListActive(ctx context.Context, shopID string, entityType models.EntityType) ([]models.MappingRecord, error)
}

// Events receives notifications about mapping writes. A nil sink disables
// emission.
type Events interface {
	MappingCreated(ctx context.Context, record *models.MappingRecord)
}

// Store resolves identifier mappings with a read-through cache
type Store struct {
	repo   Repository
	cache  Cache
	events Events
	ttl    time.Duration
	logger ectologger.Logger
}

// NewStore creates a new Store. A ttl of 0 uses DefaultCacheTTL.
func NewStore(repo Repository, cache Cache, events Events, ttl time.Duration, logger ectologger.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Store{
		repo:   repo,
		cache:  cache,
		events: events,
		ttl:    ttl,
		logger: logger,
	}
}

// Get resolves the external identifier for a canonical identifier. Returns
// ErrNotFound when no active mapping exists.
func (s *Store) Get(ctx context.Context, shopID string, entityType models.EntityType, canonicalID string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "mappingstore.Store.Get")
	defer span.End()

	key := cacheKey(shopID, entityType, canonicalID)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		// A broken cache degrades to repository reads, it must not fail lookups
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"key": key,
		}).Warn("mapping cache read failed")
	}
	if ok {
		return cached, nil
	}

	record, err := s.repo.GetByCanonicalID(ctx, shopID, entityType, canonicalID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", ErrNotFound
	}

	if err := s.cache.Set(ctx, key, record.ExternalID, s.ttl); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"key": key,
		}).Warn("mapping cache write failed")
	}

	return record.ExternalID, nil
}

// GetReverse resolves the canonical identifier for an external identifier.
// Reverse lookups always hit the repository: re-pointing writes the new
// external id, so a cached entry for the old one would keep resolving after
// the row went inactive. Returns ErrNotFound when no active mapping exists.
func (s *Store) GetReverse(ctx context.Context, shopID string, entityType models.EntityType, externalID string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "mappingstore.Store.GetReverse")
	defer span.End()

	record, err := s.repo.GetByExternalID(ctx, shopID, entityType, externalID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", ErrNotFound
	}

	return record.CanonicalID, nil
}

// GetRecord returns the full active mapping row for a canonical identifier,
// bypassing the cache. Returns ErrNotFound when no active mapping exists.
func (s *Store) GetRecord(ctx context.Context, shopID string, entityType models.EntityType, canonicalID string) (*models.MappingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mappingstore.Store.GetRecord")
	defer span.End()

	record, err := s.repo.GetByCanonicalID(ctx, shopID, entityType, canonicalID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	return record, nil
}

// Put writes a mapping and invalidates the forward cache entry. An existing
// active row for the same (shop, type, canonical) key is replaced.
func (s *Store) Put(ctx context.Context, req *models.PutMappingRequest) (*models.MappingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mappingstore.Store.Put")
	defer span.End()

	record, err := s.repo.Upsert(ctx, &models.MappingRecord{
		ShopID:        req.ShopID,
		EntityType:    req.EntityType,
		CanonicalID:   req.CanonicalID,
		ExternalID:    req.ExternalID,
		ExternalLabel: req.ExternalLabel,
		Active:        true,
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, record)

	if s.events != nil {
		s.events.MappingCreated(ctx, record)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"shopId":      record.ShopID,
		"entityType":  record.EntityType,
		"canonicalId": record.CanonicalID,
		"externalId":  record.ExternalID,
	}).Info("mapping stored")

	return record, nil
}

// Delete logically deletes the mapping for a canonical identifier. The row
// is kept with active=false for audit. Returns ErrNotFound when no active
// mapping exists.
func (s *Store) Delete(ctx context.Context, shopID string, entityType models.EntityType, canonicalID string) error {
	ctx, span := tracing.StartSpan(ctx, "mappingstore.Store.Delete")
	defer span.End()

	record, err := s.repo.Deactivate(ctx, shopID, entityType, canonicalID)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNotFound
	}

	s.invalidate(ctx, record)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"shopId":      record.ShopID,
		"entityType":  record.EntityType,
		"canonicalId": record.CanonicalID,
	}).Info("mapping deleted")

	return nil
}

// ListActive returns all active mappings for a shop and entity type.
func (s *Store) ListActive(ctx context.Context, shopID string, entityType models.EntityType) ([]models.MappingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mappingstore.Store.ListActive")
	defer span.End()

	return s.repo.ListActive(ctx, shopID, entityType)
}

// invalidate drops the forward cache entry for a record. Invalidation
// failures are logged and swallowed: the TTL bounds how long a stale entry
// can live.
func (s *Store) invalidate(ctx context.Context, record *models.MappingRecord) {
	key := cacheKey(record.ShopID, record.EntityType, record.CanonicalID)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"key": key,
		}).Warn("mapping cache invalidation failed")
	}
}

func cacheKey(shopID string, entityType models.EntityType, canonicalID string) string {
	return fmt.Sprintf("mapping:%s:%s:%s", shopID, entityType, canonicalID)
}
