package models

import (
	"time"

	"github.com/lib/pq"
)

// ConflictType classifies a detected divergence
type ConflictType string

const (
	ConflictTypeEntitySetDivergence ConflictType = "entity_set_divergence"
)

// BaselineState is the explicit tri-state outcome of comparing an incoming
// shop entity set against the canonical default set for a product.
type BaselineState string

const (
	BaselineStateNone     BaselineState = "no_baseline"
	BaselineStateMatches  BaselineState = "baseline_matches"
	BaselineStateDiverges BaselineState = "baseline_diverges"
)

// ConflictRecord is raised when a shop's entity set diverges from the
// canonical default. While RequiresResolution is set, no automated process
// may overwrite the canonical set for the product.
type ConflictRecord struct {
	ID                 string         `json:"id" db:"id"`
	ShopID             string         `json:"shop_id" db:"shop_id"`
	CanonicalProductID string         `json:"canonical_product_id" db:"canonical_product_id"`
	ConflictType       ConflictType   `json:"conflict_type" db:"conflict_type"`
	CanonicalSet       pq.StringArray `json:"canonical_set" db:"canonical_set"`
	ShopSet            pq.StringArray `json:"shop_set" db:"shop_set"`
	RequiresResolution bool           `json:"requires_resolution" db:"requires_resolution"`
	DetectedAt         time.Time      `json:"detected_at" db:"detected_at"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy         *string        `json:"resolved_by,omitempty" db:"resolved_by"`
}

// ImportResult summarizes one conflict-checked import of a product's
// sub-entity set for a shop.
type ImportResult struct {
	BaselineState BaselineState   `json:"baseline_state"`
	Conflict      *ConflictRecord `json:"conflict,omitempty"`
	DefaultSet    []string        `json:"default_set"`
	ShopSet       []string        `json:"shop_set,omitempty"`
}
