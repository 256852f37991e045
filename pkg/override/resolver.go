// Package override manages per-shop deviations from a product's canonical
// entity set. Each deviation is one OverrideRecord moving through the
// INHERIT / ADD / OVERRIDE / DELETE state machine; the canonical definition
// itself is never touched from here.
package override

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/remote"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// DefaultThrottle spaces remote writes during bulk operations to respect
// downstream rate limits. It is not a correctness mechanism.
const DefaultThrottle = 250 * time.Millisecond

// Repository is the override persistence port.
type Repository interface {
	Create(ctx context.Context, record *models.OverrideRecord) (*models.OverrideRecord, error)
	Get(ctx context.Context, shopID, id string) (*models.OverrideRecord, error)
	GetByEntity(ctx context.Context, shopID, productID, localEntityID string) (*models.OverrideRecord, error)
	Update(ctx context.Context, record *models.OverrideRecord) (*models.OverrideRecord, error)
	UpdateSyncStatus(ctx context.Context, shopID, id string, status models.SyncStatus, externalID, syncErr *string) error
	Delete(ctx context.Context, shopID, id string) error
	ListByProduct(ctx context.Context, shopID, productID string) ([]models.OverrideRecord, error)
}

// AncestryResolver finds or creates the canonical counterpart of a remote
// entity encountered during a pull.
type AncestryResolver interface {
	ResolveOrCreate(ctx context.Context, shopID string, entityType models.EntityType, externalID string) (string, error)
}

// RemoteWriter is the slice of the catalog port Commit and Pull need.
type RemoteWriter interface {
	CreateEntity(ctx context.Context, shopID string, entityType models.EntityType, payload map[string]any) (string, error)
	UpdateEntity(ctx context.Context, shopID string, entityType models.EntityType, externalID string, payload map[string]any) error
	DeleteEntity(ctx context.Context, shopID string, entityType models.EntityType, externalID string) error
	ListProductEntities(ctx context.Context, shopID string, productExternalID string) ([]remote.EntityDetail, error)
}

// TxStarter opens a transaction or joins the one carried by ctx.
type TxStarter interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Events receives notifications about confirmed remote writes. A nil sink
// disables emission.
type Events interface {
	OverrideSynced(ctx context.Context, record *models.OverrideRecord)
}

// Resolver drives the override state machine
type Resolver struct {
	db       TxStarter
	repo     Repository
	remote   RemoteWriter
	ancestry AncestryResolver
	events   Events
	throttle time.Duration
	logger   ectologger.Logger
}

// NewResolver creates a new override Resolver. A throttle of 0 uses
// DefaultThrottle.
func NewResolver(db TxStarter, repo Repository, remoteWriter RemoteWriter, ancestry AncestryResolver, events Events, throttle time.Duration, logger ectologger.Logger) *Resolver {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Resolver{
		db:       db,
		repo:     repo,
		remote:   remoteWriter,
		ancestry: ancestry,
		events:   events,
		throttle: throttle,
		logger:   logger,
	}
}

// Create records a shop-exclusive (ADD) entity. The entity exists only in
// this shop's view and has no canonical counterpart, so LocalEntityID stays
// nil until the record is committed remotely.
func (r *Resolver) Create(ctx context.Context, req *models.CreateOverrideRequest) (*models.OverrideRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Resolver.Create")
	defer span.End()

	return r.repo.Create(ctx, &models.OverrideRecord{
		ShopID:             req.ShopID,
		CanonicalProductID: req.CanonicalProductID,
		Operation:          models.OverrideOperationAdd,
		Payload:            req.Payload,
		SyncStatus:         models.SyncStatusPending,
	})
}

// Modify upserts an OVERRIDE for an existing canonical sub-entity. New
// payload fields are merged into any existing override payload rather than
// replacing it, so two partial edits compose.
func (r *Resolver) Modify(ctx context.Context, req *models.ModifyOverrideRequest) (*models.OverrideRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Resolver.Modify")
	defer span.End()

	existing, err := r.repo.GetByEntity(ctx, req.ShopID, req.CanonicalProductID, req.LocalEntityID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		localID := req.LocalEntityID
		return r.repo.Create(ctx, &models.OverrideRecord{
			ShopID:             req.ShopID,
			CanonicalProductID: req.CanonicalProductID,
			LocalEntityID:      &localID,
			Operation:          models.OverrideOperationOverride,
			Payload:            req.Payload,
			SyncStatus:         models.SyncStatusPending,
		})
	}

	merged, err := mergePayloads(existing.Payload, req.Payload)
	if err != nil {
		return nil, err
	}

	existing.Operation = models.OverrideOperationOverride
	existing.Payload = merged
	existing.SyncStatus = models.SyncStatusPending
	existing.SyncError = nil
	return r.repo.Update(ctx, existing)
}

// Hide marks a canonical sub-entity as DELETE for this shop.
func (r *Resolver) Hide(ctx context.Context, shopID, productID, localEntityID string) (*models.OverrideRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Resolver.Hide")
	defer span.End()

	existing, err := r.repo.GetByEntity(ctx, shopID, productID, localEntityID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		localID := localEntityID
		return r.repo.Create(ctx, &models.OverrideRecord{
			ShopID:             shopID,
			CanonicalProductID: productID,
			LocalEntityID:      &localID,
			Operation:          models.OverrideOperationDelete,
			SyncStatus:         models.SyncStatusPending,
		})
	}

	existing.Operation = models.OverrideOperationDelete
	existing.SyncStatus = models.SyncStatusPending
	existing.SyncError = nil
	return r.repo.Update(ctx, existing)
}

// Unhide reverts an override. A record with no remote linkage is deleted
// outright (back to implicit INHERIT); one with a linkage is kept and
// degraded to explicit INHERIT so the linkage survives future pulls.
func (r *Resolver) Unhide(ctx context.Context, shopID, productID, localEntityID string) error {
	ctx, span := tracing.StartSpan(ctx, "override.Resolver.Unhide")
	defer span.End()

	existing, err := r.repo.GetByEntity(ctx, shopID, productID, localEntityID)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil // already inheriting
	}

	if !existing.HasRemoteLinkage() {
		return r.repo.Delete(ctx, shopID, existing.ID)
	}

	existing.Operation = models.OverrideOperationInherit
	existing.SyncStatus = models.SyncStatusSynced
	existing.SyncError = nil
	_, err = r.repo.Update(ctx, existing)
	return err
}

// Commit applies a batch of override operations to the shop as one atomic
// unit: creates push new remote entities, updates rewrite existing ones,
// deletes remove them. Any failure rolls back every local change in the
// batch; a half-applied override set is a worse failure mode than an
// all-or-nothing retry.
func (r *Resolver) Commit(ctx context.Context, shopID, productID string, entityType models.EntityType, batch *models.OverrideBatch) error {
	ctx, span := tracing.StartSpan(ctx, "override.Resolver.Commit")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := range batch.Creates {
		record := &batch.Creates[i]
		record.ShopID = shopID
		record.CanonicalProductID = productID
		record.Operation = models.OverrideOperationAdd

		payload, err := decodePayload(record.Payload)
		if err != nil {
			return err
		}

		externalID, err := r.remote.CreateEntity(ctx, shopID, entityType, payload)
		if err != nil {
			return err
		}
		record.ExternalID = &externalID
		record.SyncStatus = models.SyncStatusSynced

		if _, err := r.repo.Create(ctx, record); err != nil {
			return err
		}

		if err := r.pause(ctx); err != nil {
			return err
		}
	}

	for i := range batch.Updates {
		record := &batch.Updates[i]
		if !record.HasRemoteLinkage() {
			return httperror.NewHTTPError(http.StatusUnprocessableEntity, "override update requires a remote linkage")
		}

		payload, err := decodePayload(record.Payload)
		if err != nil {
			return err
		}

		if err := r.remote.UpdateEntity(ctx, shopID, entityType, *record.ExternalID, payload); err != nil {
			return err
		}

		if err := r.repo.UpdateSyncStatus(ctx, shopID, record.ID, models.SyncStatusSynced, nil, nil); err != nil {
			return err
		}
		record.SyncStatus = models.SyncStatusSynced

		if err := r.pause(ctx); err != nil {
			return err
		}
	}

	for i := range batch.Deletes {
		record := &batch.Deletes[i]
		if !record.HasRemoteLinkage() {
			return httperror.NewHTTPError(http.StatusUnprocessableEntity, "override delete requires a remote linkage")
		}

		if err := r.remote.DeleteEntity(ctx, shopID, entityType, *record.ExternalID); err != nil {
			return err
		}

		if err := r.repo.UpdateSyncStatus(ctx, shopID, record.ID, models.SyncStatusSynced, nil, nil); err != nil {
			return err
		}
		record.SyncStatus = models.SyncStatusSynced

		if err := r.pause(ctx); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if r.events != nil {
		// Only after the batch is durable; a rolled-back commit must not emit.
		for i := range batch.Creates {
			r.events.OverrideSynced(ctx, &batch.Creates[i])
		}
		for i := range batch.Updates {
			r.events.OverrideSynced(ctx, &batch.Updates[i])
		}
		for i := range batch.Deletes {
			r.events.OverrideSynced(ctx, &batch.Deletes[i])
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"shop_id":    shopID,
		"product_id": productID,
		"creates":    len(batch.Creates),
		"updates":    len(batch.Updates),
		"deletes":    len(batch.Deletes),
	}).Info("Committed override batch")

	return nil
}

// Pull re-derives the shop-facing view of a product from the remote
// system's current state. The view is strictly what the remote side has,
// decorated with local linkage metadata; canonical entities absent remotely
// do not appear. Sub-entities are run through ancestry resolution so new
// remote entities gain canonical counterparts and mappings as a side
// effect, and sync_status is reconciled against what was observed.
func (r *Resolver) Pull(ctx context.Context, shopID, productID, productExternalID string, entityType models.EntityType) ([]models.EffectiveEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "override.Resolver.Pull")
	defer span.End()

	details, err := r.remote.ListProductEntities(ctx, shopID, productExternalID)
	if err != nil {
		return nil, err
	}

	overrides, err := r.repo.ListByProduct(ctx, shopID, productID)
	if err != nil {
		return nil, err
	}

	byLocalID := make(map[string]*models.OverrideRecord)
	byExternalID := make(map[string]*models.OverrideRecord)
	for i := range overrides {
		record := &overrides[i]
		if record.LocalEntityID != nil {
			byLocalID[*record.LocalEntityID] = record
		}
		if record.HasRemoteLinkage() {
			byExternalID[*record.ExternalID] = record
		}
	}

	seen := make(map[string]bool, len(details))
	view := make([]models.EffectiveEntity, 0, len(details))

	for _, detail := range details {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		eff := models.EffectiveEntity{
			ExternalID: detail.ExternalID,
			Label:      detail.Label,
			Operation:  models.OverrideOperationInherit,
			SyncStatus: models.SyncStatusSynced,
		}

		canonicalID, err := r.ancestry.ResolveOrCreate(ctx, shopID, entityType, detail.ExternalID)
		if err != nil {
			// One unresolvable entity must not sink the pull; it still
			// appears in the view, just without canonical linkage.
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"shop_id":     shopID,
				"external_id": detail.ExternalID,
			}).Warn("Failed to resolve remote entity during pull")
		} else {
			eff.CanonicalID = canonicalID
		}

		record := byExternalID[detail.ExternalID]
		if record == nil && canonicalID != "" {
			record = byLocalID[canonicalID]
		}
		if record != nil {
			seen[record.ID] = true
			eff.Operation = record.Operation
			eff.LocalEntityID = record.LocalEntityID

			if record.SyncStatus != models.SyncStatusSynced {
				externalID := detail.ExternalID
				if err := r.repo.UpdateSyncStatus(ctx, shopID, record.ID, models.SyncStatusSynced, &externalID, nil); err != nil {
					return nil, err
				}
			}
			eff.SyncStatus = models.SyncStatusSynced
		}

		view = append(view, eff)
	}

	// DELETE overrides confirmed absent remotely are now in sync.
	for i := range overrides {
		record := &overrides[i]
		if seen[record.ID] || record.Operation != models.OverrideOperationDelete {
			continue
		}
		if record.SyncStatus != models.SyncStatusSynced {
			if err := r.repo.UpdateSyncStatus(ctx, shopID, record.ID, models.SyncStatusSynced, nil, nil); err != nil {
				return nil, err
			}
		}
	}

	return view, nil
}

// pause waits the configured throttle between remote calls, honoring
// cancellation.
func (r *Resolver) pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.throttle):
		return nil
	}
}

func decodePayload(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "override payload is not a JSON object")
	}
	return payload, nil
}

// mergePayloads overlays the fields of next onto base. Top-level fields
// only; nested objects are replaced wholesale.
func mergePayloads(base, next json.RawMessage) (json.RawMessage, error) {
	baseMap, err := decodePayload(base)
	if err != nil {
		return nil, err
	}
	nextMap, err := decodePayload(next)
	if err != nil {
		return nil, err
	}
	for k, v := range nextMap {
		baseMap[k] = v
	}
	return json.Marshal(baseMap)
}
