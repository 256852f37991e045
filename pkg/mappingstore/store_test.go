package mappingstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

type fakeCache struct {
	entries map[string]string
	gets    int
	sets    int
	failing bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]string{}}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.gets++
	if c.failing {
		return "", false, errors.New("cache down")
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.sets++
	if c.failing {
		return errors.New("cache down")
	}
	c.entries[key] = value
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, key string) error {
	if c.failing {
		return errors.New("cache down")
	}
	delete(c.entries, key)
	return nil
}

type fakeRepo struct {
	records map[string]*models.MappingRecord
	queries int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]*models.MappingRecord{}}
}

func repoKey(shopID string, entityType models.EntityType, canonicalID string) string {
	return shopID + "/" + string(entityType) + "/" + canonicalID
}

func (r *fakeRepo) Upsert(ctx context.Context, record *models.MappingRecord) (*models.MappingRecord, error) {
	rec := *record
	rec.ID = "m-" + rec.CanonicalID
	rec.Active = true
	// the external id is released from any other canonical entity first
	for _, existing := range r.records {
		if existing.ShopID == rec.ShopID && existing.EntityType == rec.EntityType &&
			existing.ExternalID == rec.ExternalID && existing.CanonicalID != rec.CanonicalID {
			existing.Active = false
		}
	}
	r.records[repoKey(rec.ShopID, rec.EntityType, rec.CanonicalID)] = &rec
	return &rec, nil
}

func (r *fakeRepo) GetByCanonicalID(ctx context.Context, shopID string, entityType models.EntityType, canonicalID string) (*models.MappingRecord, error) {
	r.queries++
	rec, ok := r.records[repoKey(shopID, entityType, canonicalID)]
	if !ok || !rec.Active {
		return nil, nil
	}
	return rec, nil
}

func (r *fakeRepo) GetByExternalID(ctx context.Context, shopID string, entityType models.EntityType, externalID string) (*models.MappingRecord, error) {
	r.queries++
	for _, rec := range r.records {
		if rec.ShopID == shopID && rec.EntityType == entityType && rec.ExternalID == externalID && rec.Active {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) Deactivate(ctx context.Context, shopID string, entityType models.EntityType, canonicalID string) (*models.MappingRecord, error) {
	rec, ok := r.records[repoKey(shopID, entityType, canonicalID)]
	if !ok || !rec.Active {
		return nil, nil
	}
	rec.Active = false
	return rec, nil
}

func (r *fakeRepo) ListActive(ctx context.Context, shopID string, entityType models.EntityType) ([]models.MappingRecord, error) {
	var out []models.MappingRecord
	for _, rec := range r.records {
		if rec.ShopID == shopID && rec.EntityType == entityType && rec.Active {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type fakeEvents struct {
	created []*models.MappingRecord
}

func (e *fakeEvents) MappingCreated(ctx context.Context, record *models.MappingRecord) {
	e.created = append(e.created, record)
}

func newTestStore(repo *fakeRepo, cache *fakeCache) *Store {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewStore(repo, cache, nil, time.Minute, logger)
}

func TestStore_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("miss returns ErrNotFound", func(t *testing.T) {
		store := newTestStore(newFakeRepo(), newFakeCache())

		_, err := store.Get(ctx, "shop-1", models.EntityTypeCategory, "cat-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("second read is served from cache", func(t *testing.T) {
		repo := newFakeRepo()
		cache := newFakeCache()
		store := newTestStore(repo, cache)

		_, err := store.Put(ctx, &models.PutMappingRequest{
			ShopID:      "shop-1",
			EntityType:  models.EntityTypeCategory,
			CanonicalID: "cat-1",
			ExternalID:  "ps-55",
		})
		require.NoError(t, err)

		first, err := store.Get(ctx, "shop-1", models.EntityTypeCategory, "cat-1")
		require.NoError(t, err)
		assert.Equal(t, "ps-55", first)

		queriesAfterFirst := repo.queries

		second, err := store.Get(ctx, "shop-1", models.EntityTypeCategory, "cat-1")
		require.NoError(t, err)
		assert.Equal(t, "ps-55", second)
		assert.Equal(t, queriesAfterFirst, repo.queries)
	})

	t.Run("cache failure falls back to repository", func(t *testing.T) {
		repo := newFakeRepo()
		cache := newFakeCache()
		store := newTestStore(repo, cache)

		_, err := store.Put(ctx, &models.PutMappingRequest{
			ShopID:      "shop-1",
			EntityType:  models.EntityTypeFeature,
			CanonicalID: "feat-1",
			ExternalID:  "ps-9",
		})
		require.NoError(t, err)

		cache.failing = true

		got, err := store.Get(ctx, "shop-1", models.EntityTypeFeature, "feat-1")
		require.NoError(t, err)
		assert.Equal(t, "ps-9", got)
	})

	t.Run("mappings are scoped per shop", func(t *testing.T) {
		store := newTestStore(newFakeRepo(), newFakeCache())

		_, err := store.Put(ctx, &models.PutMappingRequest{
			ShopID:      "shop-1",
			EntityType:  models.EntityTypeCategory,
			CanonicalID: "cat-1",
			ExternalID:  "ps-55",
		})
		require.NoError(t, err)

		_, err = store.Get(ctx, "shop-2", models.EntityTypeCategory, "cat-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_GetReverse(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves active mappings only", func(t *testing.T) {
		store := newTestStore(newFakeRepo(), newFakeCache())

		_, err := store.Put(ctx, &models.PutMappingRequest{
			ShopID:      "shop-1",
			EntityType:  models.EntityTypeAttributeValue,
			CanonicalID: "val-3",
			ExternalID:  "ps-100",
		})
		require.NoError(t, err)

		got, err := store.GetReverse(ctx, "shop-1", models.EntityTypeAttributeValue, "ps-100")
		require.NoError(t, err)
		assert.Equal(t, "val-3", got)

		_, err = store.GetReverse(ctx, "shop-1", models.EntityTypeAttributeValue, "ps-999")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("always hits the repository", func(t *testing.T) {
		repo := newFakeRepo()
		store := newTestStore(repo, newFakeCache())

		_, err := store.Put(ctx, &models.PutMappingRequest{
			ShopID:      "shop-1",
			EntityType:  models.EntityTypeCategory,
			CanonicalID: "cat-1",
			ExternalID:  "ps-55",
		})
		require.NoError(t, err)

		_, err = store.GetReverse(ctx, "shop-1", models.EntityTypeCategory, "ps-55")
		require.NoError(t, err)
		queriesAfterFirst := repo.queries

		_, err = store.GetReverse(ctx, "shop-1", models.EntityTypeCategory, "ps-55")
		require.NoError(t, err)
		assert.Equal(t, queriesAfterFirst+1, repo.queries)
	})

	t.Run("old external id stops resolving after a re-point", func(t *testing.T) {
		store := newTestStore(newFakeRepo(), newFakeCache())

		_, err := store.Put(ctx, &models.PutMappingRequest{
			ShopID:      "shop-1",
			EntityType:  models.EntityTypeCategory,
			CanonicalID: "cat-1",
			ExternalID:  "ps-55",
		})
		require.NoError(t, err)

		// warm the reverse direction before re-pointing
		got, err := store.GetReverse(ctx, "shop-1", models.EntityTypeCategory, "ps-55")
		require.NoError(t, err)
		require.Equal(t, "cat-1", got)

		_, err = store.Put(ctx, &models.PutMappingRequest{
			ShopID:      "shop-1",
			EntityType:  models.EntityTypeCategory,
			CanonicalID: "cat-1",
			ExternalID:  "ps-77",
		})
		require.NoError(t, err)

		_, err = store.GetReverse(ctx, "shop-1", models.EntityTypeCategory, "ps-55")
		assert.ErrorIs(t, err, ErrNotFound)

		got, err = store.GetReverse(ctx, "shop-1", models.EntityTypeCategory, "ps-77")
		require.NoError(t, err)
		assert.Equal(t, "cat-1", got)
	})

	t.Run("external id moves between canonical entities", func(t *testing.T) {
		store := newTestStore(newFakeRepo(), newFakeCache())

		_, err := store.Put(ctx, &models.PutMappingRequest{
			ShopID:      "shop-1",
			EntityType:  models.EntityTypeCategory,
			CanonicalID: "cat-1",
			ExternalID:  "ps-55",
		})
		require.NoError(t, err)

		_, err = store.Put(ctx, &models.PutMappingRequest{
			ShopID:      "shop-1",
			EntityType:  models.EntityTypeCategory,
			CanonicalID: "cat-2",
			ExternalID:  "ps-55",
		})
		require.NoError(t, err)

		got, err := store.GetReverse(ctx, "shop-1", models.EntityTypeCategory, "ps-55")
		require.NoError(t, err)
		assert.Equal(t, "cat-2", got)

		// the previous owner lost its mapping
		_, err = store.Get(ctx, "shop-1", models.EntityTypeCategory, "cat-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_Put_InvalidatesStaleCache(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	cache := newFakeCache()
	store := newTestStore(repo, cache)

	_, err := store.Put(ctx, &models.PutMappingRequest{
		ShopID:      "shop-1",
		EntityType:  models.EntityTypeCategory,
		CanonicalID: "cat-1",
		ExternalID:  "ps-55",
	})
	require.NoError(t, err)

	// warm the cache
	got, err := store.Get(ctx, "shop-1", models.EntityTypeCategory, "cat-1")
	require.NoError(t, err)
	require.Equal(t, "ps-55", got)

	// remap to a new external id
	_, err = store.Put(ctx, &models.PutMappingRequest{
		ShopID:      "shop-1",
		EntityType:  models.EntityTypeCategory,
		CanonicalID: "cat-1",
		ExternalID:  "ps-77",
	})
	require.NoError(t, err)

	got, err = store.Get(ctx, "shop-1", models.EntityTypeCategory, "cat-1")
	require.NoError(t, err)
	assert.Equal(t, "ps-77", got)
}

func TestStore_Put_EmitsMappingCreated(t *testing.T) {
	ctx := context.Background()
	events := &fakeEvents{}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := NewStore(newFakeRepo(), newFakeCache(), events, time.Minute, logger)

	record, err := store.Put(ctx, &models.PutMappingRequest{
		ShopID:      "shop-1",
		EntityType:  models.EntityTypeCategory,
		CanonicalID: "cat-1",
		ExternalID:  "ps-55",
	})
	require.NoError(t, err)

	require.Len(t, events.created, 1)
	assert.Equal(t, record.ID, events.created[0].ID)
	assert.Equal(t, "ps-55", events.created[0].ExternalID)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted mapping is no longer served", func(t *testing.T) {
		store := newTestStore(newFakeRepo(), newFakeCache())

		_, err := store.Put(ctx, &models.PutMappingRequest{
			ShopID:      "shop-1",
			EntityType:  models.EntityTypeSupplier,
			CanonicalID: "sup-1",
			ExternalID:  "ps-4",
		})
		require.NoError(t, err)

		// warm both directions
		_, err = store.Get(ctx, "shop-1", models.EntityTypeSupplier, "sup-1")
		require.NoError(t, err)
		_, err = store.GetReverse(ctx, "shop-1", models.EntityTypeSupplier, "ps-4")
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, "shop-1", models.EntityTypeSupplier, "sup-1"))

		_, err = store.Get(ctx, "shop-1", models.EntityTypeSupplier, "sup-1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetReverse(ctx, "shop-1", models.EntityTypeSupplier, "ps-4")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("deleting a missing mapping returns ErrNotFound", func(t *testing.T) {
		store := newTestStore(newFakeRepo(), newFakeCache())
		err := store.Delete(ctx, "shop-1", models.EntityTypeSupplier, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
