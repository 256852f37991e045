package models

import "time"

// CanonicalEntity is the single authoritative record for a category,
// feature, attribute group/value, or supplier in the central catalog.
// ParentID is nil for roots; AliasLabel is an optional secondary label
// carried for matching (e.g. a translated or legacy name).
type CanonicalEntity struct {
	ID         string     `json:"id" db:"id"`
	EntityType EntityType `json:"entity_type" db:"entity_type"`
	Label      string     `json:"label" db:"label"`
	AliasLabel *string    `json:"alias_label,omitempty" db:"alias_label"`
	ParentID   *string    `json:"parent_id,omitempty" db:"parent_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// HasParent reports whether the entity is already attached in the hierarchy.
func (e *CanonicalEntity) HasParent() bool {
	return e.ParentID != nil && *e.ParentID != ""
}

// CreateCanonicalEntityRequest is the request for creating a canonical entity
type CreateCanonicalEntityRequest struct {
	EntityType EntityType `json:"entity_type" validate:"required"`
	Label      string     `json:"label" validate:"required"`
	AliasLabel *string    `json:"alias_label,omitempty"`
	ParentID   *string    `json:"parent_id,omitempty"`
}
