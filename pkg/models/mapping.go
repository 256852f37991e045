package models

import "time"

// EntityType identifies which canonical taxonomy an entity belongs to
type EntityType string

const (
	EntityTypeCategory       EntityType = "category"
	EntityTypeFeature        EntityType = "feature"
	EntityTypeAttributeGroup EntityType = "attribute_group"
	EntityTypeAttributeValue EntityType = "attribute_value"
	EntityTypeSupplier       EntityType = "supplier"
)

// MappingRecord is the durable correspondence between a canonical entity and
// its external ID in one shop. The mapping is the sole source of truth for
// ID translation; external IDs are never derived from canonical IDs.
type MappingRecord struct {
	ID            string     `json:"id" db:"id"`
	ShopID        string     `json:"shop_id" db:"shop_id"`
	EntityType    EntityType `json:"entity_type" db:"entity_type"`
	CanonicalID   string     `json:"canonical_id" db:"canonical_id"`
	ExternalID    string     `json:"external_id" db:"external_id"`
	ExternalLabel string     `json:"external_label" db:"external_label"`
	Active        bool       `json:"active" db:"active"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// PutMappingRequest is the request for creating or re-pointing a mapping
type PutMappingRequest struct {
	ShopID        string     `json:"shop_id" validate:"required"`
	EntityType    EntityType `json:"entity_type" validate:"required"`
	CanonicalID   string     `json:"canonical_id" validate:"required"`
	ExternalID    string     `json:"external_id" validate:"required"`
	ExternalLabel string     `json:"external_label"`
}
