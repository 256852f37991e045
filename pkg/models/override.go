package models

import (
	"encoding/json"
	"time"
)

// OverrideOperation is the per-shop deviation state for one product
// sub-entity. INHERIT is also the implicit state when no record exists.
type OverrideOperation string

const (
	OverrideOperationInherit  OverrideOperation = "INHERIT"
	OverrideOperationAdd      OverrideOperation = "ADD"
	OverrideOperationOverride OverrideOperation = "OVERRIDE"
	OverrideOperationDelete   OverrideOperation = "DELETE"
)

// SyncStatus tracks whether an override has been written to the shop
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
)

// OverrideRecord is a shop-specific deviation from the canonical entity set
// of one product. LocalEntityID is nil only for ADD records (shop-exclusive
// entities with no canonical counterpart). ExternalID is the remote linkage;
// records with a linkage are degraded to INHERIT instead of deleted so the
// linkage survives future pulls.
type OverrideRecord struct {
	ID                 string            `json:"id" db:"id"`
	ShopID             string            `json:"shop_id" db:"shop_id"`
	CanonicalProductID string            `json:"canonical_product_id" db:"canonical_product_id"`
	LocalEntityID      *string           `json:"local_entity_id,omitempty" db:"local_entity_id"`
	Operation          OverrideOperation `json:"operation_type" db:"operation_type"`
	Payload            json.RawMessage   `json:"payload,omitempty" db:"payload"`
	ExternalID         *string           `json:"external_id,omitempty" db:"external_id"`
	SyncStatus         SyncStatus        `json:"sync_status" db:"sync_status"`
	SyncError          *string           `json:"sync_error,omitempty" db:"sync_error"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at"`
}

// HasRemoteLinkage reports whether the record is tied to a remote entity.
func (r *OverrideRecord) HasRemoteLinkage() bool {
	return r.ExternalID != nil && *r.ExternalID != ""
}

// CreateOverrideRequest creates a shop-exclusive (ADD) entity
type CreateOverrideRequest struct {
	ShopID             string          `json:"shop_id" validate:"required"`
	CanonicalProductID string          `json:"canonical_product_id" validate:"required"`
	Payload            json.RawMessage `json:"payload" validate:"required"`
}

// ModifyOverrideRequest upserts an OVERRIDE for an existing canonical entity
type ModifyOverrideRequest struct {
	ShopID             string          `json:"shop_id" validate:"required"`
	CanonicalProductID string          `json:"canonical_product_id" validate:"required"`
	LocalEntityID      string          `json:"local_entity_id" validate:"required"`
	Payload            json.RawMessage `json:"payload" validate:"required"`
}

// OverrideBatch is the atomic commit unit: all three operation groups are
// applied in one transaction or not at all.
type OverrideBatch struct {
	Creates []OverrideRecord `json:"creates"`
	Updates []OverrideRecord `json:"updates"`
	Deletes []OverrideRecord `json:"deletes"`
}

// EffectiveEntity is one entry of the shop-facing view of a product: the
// remote system's current entity decorated with local linkage metadata.
type EffectiveEntity struct {
	ExternalID    string            `json:"external_id"`
	Label         string            `json:"label"`
	CanonicalID   string            `json:"canonical_id,omitempty"`
	LocalEntityID *string           `json:"local_entity_id,omitempty"`
	Operation     OverrideOperation `json:"operation_type"`
	SyncStatus    SyncStatus        `json:"sync_status"`
}
