package override

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/remote"
)

type fakeTx struct {
	database.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool { return !t.committed && !t.rolledBack }

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.IsOpen() {
		t.committed = true
	}
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.IsOpen() {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (d *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, d.tx, nil
}

type fakeRepo struct {
	records map[string]*models.OverrideRecord
	nextID  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]*models.OverrideRecord{}}
}

func (r *fakeRepo) Create(ctx context.Context, record *models.OverrideRecord) (*models.OverrideRecord, error) {
	r.nextID++
	rec := *record
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("ovr-%d", r.nextID)
	}
	if rec.SyncStatus == "" {
		rec.SyncStatus = models.SyncStatusPending
	}
	r.records[rec.ID] = &rec
	return &rec, nil
}

func (r *fakeRepo) Get(ctx context.Context, shopID, id string) (*models.OverrideRecord, error) {
	rec, ok := r.records[id]
	if !ok || rec.ShopID != shopID {
		return nil, fmt.Errorf("override %s not found", id)
	}
	return rec, nil
}

func (r *fakeRepo) GetByEntity(ctx context.Context, shopID, productID, localEntityID string) (*models.OverrideRecord, error) {
	for _, rec := range r.records {
		if rec.ShopID == shopID && rec.CanonicalProductID == productID &&
			rec.LocalEntityID != nil && *rec.LocalEntityID == localEntityID {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) Update(ctx context.Context, record *models.OverrideRecord) (*models.OverrideRecord, error) {
	if _, ok := r.records[record.ID]; !ok {
		return nil, fmt.Errorf("override %s not found", record.ID)
	}
	rec := *record
	r.records[rec.ID] = &rec
	return &rec, nil
}

func (r *fakeRepo) UpdateSyncStatus(ctx context.Context, shopID, id string, status models.SyncStatus, externalID, syncErr *string) error {
	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("override %s not found", id)
	}
	rec.SyncStatus = status
	rec.SyncError = syncErr
	if externalID != nil {
		rec.ExternalID = externalID
	}
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, shopID, id string) error {
	if _, ok := r.records[id]; !ok {
		return fmt.Errorf("override %s not found", id)
	}
	delete(r.records, id)
	return nil
}

func (r *fakeRepo) ListByProduct(ctx context.Context, shopID, productID string) ([]models.OverrideRecord, error) {
	var out []models.OverrideRecord
	for _, rec := range r.records {
		if rec.ShopID == shopID && rec.CanonicalProductID == productID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type fakeRemote struct {
	created         []map[string]any
	updated         map[string]map[string]any
	deleted         []string
	productEntities []remote.EntityDetail
	nextID          int
	failUpdate      error
	failCreate      error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{updated: map[string]map[string]any{}}
}

func (f *fakeRemote) CreateEntity(ctx context.Context, shopID string, entityType models.EntityType, payload map[string]any) (string, error) {
	if f.failCreate != nil {
		return "", f.failCreate
	}
	f.nextID++
	f.created = append(f.created, payload)
	return fmt.Sprintf("ext-%d", f.nextID), nil
}

func (f *fakeRemote) UpdateEntity(ctx context.Context, shopID string, entityType models.EntityType, externalID string, payload map[string]any) error {
	if f.failUpdate != nil {
		return f.failUpdate
	}
	f.updated[externalID] = payload
	return nil
}

func (f *fakeRemote) DeleteEntity(ctx context.Context, shopID string, entityType models.EntityType, externalID string) error {
	f.deleted = append(f.deleted, externalID)
	return nil
}

func (f *fakeRemote) ListProductEntities(ctx context.Context, shopID string, productExternalID string) ([]remote.EntityDetail, error) {
	return f.productEntities, nil
}

type fakeAncestry struct {
	byExternal map[string]string
	errs       map[string]error
}

func (f *fakeAncestry) ResolveOrCreate(ctx context.Context, shopID string, entityType models.EntityType, externalID string) (string, error) {
	if err, ok := f.errs[externalID]; ok {
		return "", err
	}
	return f.byExternal[externalID], nil
}

type fakeEvents struct {
	synced []*models.OverrideRecord
}

func (e *fakeEvents) OverrideSynced(ctx context.Context, record *models.OverrideRecord) {
	e.synced = append(e.synced, record)
}

type fixture struct {
	tx       *fakeTx
	repo     *fakeRepo
	remote   *fakeRemote
	ancestry *fakeAncestry
	events   *fakeEvents
	resolver *Resolver
}

func newFixture() *fixture {
	tx := &fakeTx{}
	repo := newFakeRepo()
	rem := newFakeRemote()
	ancestry := &fakeAncestry{byExternal: map[string]string{}, errs: map[string]error{}}
	events := &fakeEvents{}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	resolver := NewResolver(&fakeDB{tx: tx}, repo, rem, ancestry, events, time.Millisecond, logger)
	return &fixture{tx: tx, repo: repo, remote: rem, ancestry: ancestry, events: events, resolver: resolver}
}

func TestResolver_Create(t *testing.T) {
	f := newFixture()

	record, err := f.resolver.Create(context.Background(), &models.CreateOverrideRequest{
		ShopID:             "shop-1",
		CanonicalProductID: "prod-1",
		Payload:            json.RawMessage(`{"label":"Shop exclusive"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, models.OverrideOperationAdd, record.Operation)
	assert.Nil(t, record.LocalEntityID)
	assert.Equal(t, models.SyncStatusPending, record.SyncStatus)
}

func TestResolver_Modify(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an OVERRIDE when none exists", func(t *testing.T) {
		f := newFixture()

		record, err := f.resolver.Modify(ctx, &models.ModifyOverrideRequest{
			ShopID:             "shop-1",
			CanonicalProductID: "prod-1",
			LocalEntityID:      "ent-1",
			Payload:            json.RawMessage(`{"label":"Renamed"}`),
		})
		require.NoError(t, err)

		assert.Equal(t, models.OverrideOperationOverride, record.Operation)
		require.NotNil(t, record.LocalEntityID)
		assert.Equal(t, "ent-1", *record.LocalEntityID)
	})

	t.Run("merges new fields into the existing payload", func(t *testing.T) {
		f := newFixture()

		_, err := f.resolver.Modify(ctx, &models.ModifyOverrideRequest{
			ShopID:             "shop-1",
			CanonicalProductID: "prod-1",
			LocalEntityID:      "ent-1",
			Payload:            json.RawMessage(`{"label":"Renamed","position":3}`),
		})
		require.NoError(t, err)

		record, err := f.resolver.Modify(ctx, &models.ModifyOverrideRequest{
			ShopID:             "shop-1",
			CanonicalProductID: "prod-1",
			LocalEntityID:      "ent-1",
			Payload:            json.RawMessage(`{"label":"Renamed again"}`),
		})
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(record.Payload, &payload))
		assert.Equal(t, "Renamed again", payload["label"])
		// the field the second edit did not touch survives
		assert.Equal(t, float64(3), payload["position"])
	})

	t.Run("a hidden entity becomes OVERRIDE again on modify", func(t *testing.T) {
		f := newFixture()

		_, err := f.resolver.Hide(ctx, "shop-1", "prod-1", "ent-1")
		require.NoError(t, err)

		record, err := f.resolver.Modify(ctx, &models.ModifyOverrideRequest{
			ShopID:             "shop-1",
			CanonicalProductID: "prod-1",
			LocalEntityID:      "ent-1",
			Payload:            json.RawMessage(`{"label":"Back"}`),
		})
		require.NoError(t, err)
		assert.Equal(t, models.OverrideOperationOverride, record.Operation)
	})
}

func TestResolver_Hide(t *testing.T) {
	f := newFixture()

	record, err := f.resolver.Hide(context.Background(), "shop-1", "prod-1", "ent-1")
	require.NoError(t, err)

	assert.Equal(t, models.OverrideOperationDelete, record.Operation)
	assert.Equal(t, models.SyncStatusPending, record.SyncStatus)
}

func TestResolver_Unhide(t *testing.T) {
	ctx := context.Background()

	t.Run("no record is a no-op", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.resolver.Unhide(ctx, "shop-1", "prod-1", "ent-1"))
	})

	t.Run("record without remote linkage is deleted", func(t *testing.T) {
		f := newFixture()

		record, err := f.resolver.Hide(ctx, "shop-1", "prod-1", "ent-1")
		require.NoError(t, err)

		require.NoError(t, f.resolver.Unhide(ctx, "shop-1", "prod-1", "ent-1"))
		assert.NotContains(t, f.repo.records, record.ID)
	})

	t.Run("record with remote linkage degrades to INHERIT", func(t *testing.T) {
		f := newFixture()

		record, err := f.resolver.Hide(ctx, "shop-1", "prod-1", "ent-1")
		require.NoError(t, err)
		externalID := "ext-55"
		f.repo.records[record.ID].ExternalID = &externalID

		require.NoError(t, f.resolver.Unhide(ctx, "shop-1", "prod-1", "ent-1"))

		kept := f.repo.records[record.ID]
		require.NotNil(t, kept)
		assert.Equal(t, models.OverrideOperationInherit, kept.Operation)
		assert.Equal(t, models.SyncStatusSynced, kept.SyncStatus)
		assert.Equal(t, "ext-55", *kept.ExternalID)
	})
}

func TestResolver_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("applies creates updates and deletes and commits", func(t *testing.T) {
		f := newFixture()

		updateExt := "ext-upd"
		updateRec, err := f.repo.Create(ctx, &models.OverrideRecord{
			ShopID:             "shop-1",
			CanonicalProductID: "prod-1",
			Operation:          models.OverrideOperationOverride,
			Payload:            json.RawMessage(`{"label":"Changed"}`),
			ExternalID:         &updateExt,
		})
		require.NoError(t, err)

		deleteExt := "ext-del"
		deleteRec, err := f.repo.Create(ctx, &models.OverrideRecord{
			ShopID:             "shop-1",
			CanonicalProductID: "prod-1",
			Operation:          models.OverrideOperationDelete,
			ExternalID:         &deleteExt,
		})
		require.NoError(t, err)

		batch := &models.OverrideBatch{
			Creates: []models.OverrideRecord{
				{Payload: json.RawMessage(`{"label":"New"}`)},
			},
			Updates: []models.OverrideRecord{*updateRec},
			Deletes: []models.OverrideRecord{*deleteRec},
		}

		err = f.resolver.Commit(ctx, "shop-1", "prod-1", models.EntityTypeAttributeValue, batch)
		require.NoError(t, err)

		assert.True(t, f.tx.committed)
		assert.Len(t, f.remote.created, 1)
		assert.Contains(t, f.remote.updated, "ext-upd")
		assert.Equal(t, []string{"ext-del"}, f.remote.deleted)

		require.NotNil(t, batch.Creates[0].ExternalID)
		assert.Equal(t, models.SyncStatusSynced, batch.Creates[0].SyncStatus)
		assert.Equal(t, models.SyncStatusSynced, f.repo.records[updateRec.ID].SyncStatus)
		assert.Equal(t, models.SyncStatusSynced, f.repo.records[deleteRec.ID].SyncStatus)

		require.Len(t, f.events.synced, 3)
		for _, rec := range f.events.synced {
			assert.Equal(t, models.SyncStatusSynced, rec.SyncStatus)
		}
	})

	t.Run("rolls back the whole batch when a remote write fails", func(t *testing.T) {
		f := newFixture()
		f.remote.failUpdate = remote.TransientError("update", "upstream 503", nil)

		updateExt := "ext-upd"
		updateRec, err := f.repo.Create(ctx, &models.OverrideRecord{
			ShopID:             "shop-1",
			CanonicalProductID: "prod-1",
			Operation:          models.OverrideOperationOverride,
			Payload:            json.RawMessage(`{"label":"Changed"}`),
			ExternalID:         &updateExt,
		})
		require.NoError(t, err)

		batch := &models.OverrideBatch{
			Creates: []models.OverrideRecord{
				{Payload: json.RawMessage(`{"label":"New"}`)},
			},
			Updates: []models.OverrideRecord{*updateRec},
		}

		err = f.resolver.Commit(ctx, "shop-1", "prod-1", models.EntityTypeAttributeValue, batch)
		require.Error(t, err)

		assert.True(t, f.tx.rolledBack)
		assert.False(t, f.tx.committed)
		assert.Empty(t, f.events.synced)
	})

	t.Run("rejects an update with no remote linkage", func(t *testing.T) {
		f := newFixture()

		batch := &models.OverrideBatch{
			Updates: []models.OverrideRecord{
				{ID: "ovr-x", Payload: json.RawMessage(`{"label":"Changed"}`)},
			},
		}

		err := f.resolver.Commit(ctx, "shop-1", "prod-1", models.EntityTypeAttributeValue, batch)
		require.Error(t, err)
		assert.False(t, f.tx.committed)
	})

	t.Run("stops between entities when the context is cancelled", func(t *testing.T) {
		f := newFixture()
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		batch := &models.OverrideBatch{
			Creates: []models.OverrideRecord{
				{Payload: json.RawMessage(`{"label":"A"}`)},
				{Payload: json.RawMessage(`{"label":"B"}`)},
			},
		}

		err := f.resolver.Commit(cancelCtx, "shop-1", "prod-1", models.EntityTypeAttributeValue, batch)
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, f.tx.committed)
	})
}

func TestResolver_Pull(t *testing.T) {
	ctx := context.Background()

	t.Run("reflects the remote view decorated with linkage", func(t *testing.T) {
		f := newFixture()
		f.remote.productEntities = []remote.EntityDetail{
			{ExternalID: "ext-1", Label: "Inherited"},
			{ExternalID: "ext-2", Label: "Hidden soon"},
		}
		f.ancestry.byExternal["ext-1"] = "can-1"
		f.ancestry.byExternal["ext-2"] = "can-2"

		local := "can-2"
		_, err := f.repo.Create(ctx, &models.OverrideRecord{
			ShopID:             "shop-1",
			CanonicalProductID: "prod-1",
			LocalEntityID:      &local,
			Operation:          models.OverrideOperationOverride,
			SyncStatus:         models.SyncStatusPending,
		})
		require.NoError(t, err)

		view, err := f.resolver.Pull(ctx, "shop-1", "prod-1", "ext-prod", models.EntityTypeAttributeValue)
		require.NoError(t, err)
		require.Len(t, view, 2)

		assert.Equal(t, models.OverrideOperationInherit, view[0].Operation)
		assert.Equal(t, "can-1", view[0].CanonicalID)

		assert.Equal(t, models.OverrideOperationOverride, view[1].Operation)
		require.NotNil(t, view[1].LocalEntityID)
		assert.Equal(t, "can-2", *view[1].LocalEntityID)
		assert.Equal(t, models.SyncStatusSynced, view[1].SyncStatus)
	})

	t.Run("marks pending overrides synced and backfills external linkage", func(t *testing.T) {
		f := newFixture()
		f.remote.productEntities = []remote.EntityDetail{
			{ExternalID: "ext-9", Label: "Linked"},
		}
		f.ancestry.byExternal["ext-9"] = "can-9"

		local := "can-9"
		rec, err := f.repo.Create(ctx, &models.OverrideRecord{
			ShopID:             "shop-1",
			CanonicalProductID: "prod-1",
			LocalEntityID:      &local,
			Operation:          models.OverrideOperationOverride,
			SyncStatus:         models.SyncStatusPending,
		})
		require.NoError(t, err)

		_, err = f.resolver.Pull(ctx, "shop-1", "prod-1", "ext-prod", models.EntityTypeAttributeValue)
		require.NoError(t, err)

		stored := f.repo.records[rec.ID]
		assert.Equal(t, models.SyncStatusSynced, stored.SyncStatus)
		require.NotNil(t, stored.ExternalID)
		assert.Equal(t, "ext-9", *stored.ExternalID)
	})

	t.Run("confirms DELETE overrides absent remotely", func(t *testing.T) {
		f := newFixture()
		f.remote.productEntities = []remote.EntityDetail{}

		local := "can-1"
		ext := "ext-gone"
		rec, err := f.repo.Create(ctx, &models.OverrideRecord{
			ShopID:             "shop-1",
			CanonicalProductID: "prod-1",
			LocalEntityID:      &local,
			ExternalID:         &ext,
			Operation:          models.OverrideOperationDelete,
			SyncStatus:         models.SyncStatusPending,
		})
		require.NoError(t, err)

		view, err := f.resolver.Pull(ctx, "shop-1", "prod-1", "ext-prod", models.EntityTypeAttributeValue)
		require.NoError(t, err)

		assert.Empty(t, view)
		assert.Equal(t, models.SyncStatusSynced, f.repo.records[rec.ID].SyncStatus)
	})

	t.Run("keeps unresolvable entities in the view without canonical linkage", func(t *testing.T) {
		f := newFixture()
		f.remote.productEntities = []remote.EntityDetail{
			{ExternalID: "ext-broken", Label: "Mystery"},
		}
		f.ancestry.errs["ext-broken"] = remote.TransientError("fetch", "upstream 503", nil)

		view, err := f.resolver.Pull(ctx, "shop-1", "prod-1", "ext-prod", models.EntityTypeAttributeValue)
		require.NoError(t, err)
		require.Len(t, view, 1)

		assert.Equal(t, "ext-broken", view[0].ExternalID)
		assert.Empty(t, view[0].CanonicalID)
		assert.Equal(t, models.OverrideOperationInherit, view[0].Operation)
	})
}
