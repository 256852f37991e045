// Package conflict decides what an incoming product entity set means for a
// shop: first baseline, clean match, or divergence. The canonical default
// set is only ever written once, by the first import; after that a
// divergence raises a ConflictRecord for a human to settle instead of
// silently rewriting anything.
package conflict

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// SetStore is the product entity set persistence port.
type SetStore interface {
	GetDefaultSet(ctx context.Context, productID string) ([]string, bool, error)
	ReplaceDefaultSet(ctx context.Context, productID string, entityIDs []string) error
	ReplaceShopSet(ctx context.Context, shopID, productID string, entityIDs []string) error
	DeleteShopSet(ctx context.Context, shopID, productID string) error
	MarkImported(ctx context.Context, shopID, productID string) error
	HasImported(ctx context.Context, shopID, productID string) (bool, error)
}

// ConflictStore records detected divergences.
type ConflictStore interface {
	Create(ctx context.Context, record *models.ConflictRecord) (*models.ConflictRecord, error)
}

// TxStarter opens a transaction or joins the one carried by ctx.
type TxStarter interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// Detector classifies product imports against the canonical baseline
type Detector struct {
	db        TxStarter
	sets      SetStore
	conflicts ConflictStore
	logger    ectologger.Logger
}

// NewDetector creates a new conflict Detector
func NewDetector(db TxStarter, sets SetStore, conflicts ConflictStore, logger ectologger.Logger) *Detector {
	return &Detector{
		db:        db,
		sets:      sets,
		conflicts: conflicts,
		logger:    logger,
	}
}

// ProcessImport compares the incoming entity set for (shop, product)
// against the canonical default set and persists the outcome:
//
//   - No default yet: the incoming set becomes both the canonical default
//     and the shop set. The first shop to populate data defines the
//     starting baseline.
//   - Identical sets: the shop inherits the default. Stale shop rows are
//     removed, except on the shop's own first import, where the rows are
//     recorded anyway for traceability.
//   - Diverging sets: the default is left untouched. The shop set is
//     persisted and a ConflictRecord with requires_resolution is raised
//     carrying both sets verbatim.
//
// All writes of one import happen in a single transaction.
func (d *Detector) ProcessImport(ctx context.Context, shopID, productID string, incoming []string) (*models.ImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Detector.ProcessImport")
	defer span.End()

	ctx, tx, err := d.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	result, err := d.processLocked(ctx, shopID, productID, incoming)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Detector) processLocked(ctx context.Context, shopID, productID string, incoming []string) (*models.ImportResult, error) {
	defaultSet, exists, err := d.sets.GetDefaultSet(ctx, productID)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := d.sets.ReplaceDefaultSet(ctx, productID, incoming); err != nil {
			return nil, err
		}
		if err := d.sets.ReplaceShopSet(ctx, shopID, productID, incoming); err != nil {
			return nil, err
		}
		if err := d.sets.MarkImported(ctx, shopID, productID); err != nil {
			return nil, err
		}

		d.logger.WithContext(ctx).WithFields(map[string]any{
			"shop_id":              shopID,
			"canonical_product_id": productID,
			"entities":             len(incoming),
		}).Info("Recorded canonical baseline from first import")

		return &models.ImportResult{
			BaselineState: models.BaselineStateNone,
			DefaultSet:    incoming,
			ShopSet:       incoming,
		}, nil
	}

	if equalSets(defaultSet, incoming) {
		imported, err := d.sets.HasImported(ctx, shopID, productID)
		if err != nil {
			return nil, err
		}

		result := &models.ImportResult{
			BaselineState: models.BaselineStateMatches,
			DefaultSet:    defaultSet,
		}

		if !imported {
			// First import from this shop: keep the rows for traceability
			// even though they equal the default.
			if err := d.sets.ReplaceShopSet(ctx, shopID, productID, incoming); err != nil {
				return nil, err
			}
			result.ShopSet = incoming
		} else {
			if err := d.sets.DeleteShopSet(ctx, shopID, productID); err != nil {
				return nil, err
			}
		}

		if err := d.sets.MarkImported(ctx, shopID, productID); err != nil {
			return nil, err
		}
		return result, nil
	}

	// Divergence. The default set is never overwritten from here.
	if err := d.sets.ReplaceShopSet(ctx, shopID, productID, incoming); err != nil {
		return nil, err
	}

	record, err := d.conflicts.Create(ctx, &models.ConflictRecord{
		ShopID:             shopID,
		CanonicalProductID: productID,
		ConflictType:       models.ConflictTypeEntitySetDivergence,
		CanonicalSet:       append([]string(nil), defaultSet...),
		ShopSet:            append([]string(nil), incoming...),
	})
	if err != nil {
		return nil, err
	}

	if err := d.sets.MarkImported(ctx, shopID, productID); err != nil {
		return nil, err
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"shop_id":              shopID,
		"canonical_product_id": productID,
		"conflict_id":          record.ID,
	}).Warn("Shop entity set diverges from canonical baseline")

	return &models.ImportResult{
		BaselineState: models.BaselineStateDiverges,
		Conflict:      record,
		DefaultSet:    defaultSet,
		ShopSet:       incoming,
	}, nil
}

// equalSets compares two ID collections as unordered sets.
func equalSets(a, b []string) bool {
	setA := make(map[string]bool, len(a))
	for _, id := range a {
		setA[id] = true
	}
	setB := make(map[string]bool, len(b))
	for _, id := range b {
		setB[id] = true
	}
	if len(setA) != len(setB) {
		return false
	}
	for id := range setA {
		if !setB[id] {
			return false
		}
	}
	return true
}
