// Package remote defines the port to a shop's catalog API. The HTTP
// transport, retry/backoff, and wire codec live behind this interface.
package remote

import (
	"context"

	"github.com/Ramsey-B/sorrel/pkg/models"
)

// EntityDetail is the full remote view of one catalog entity.
type EntityDetail struct {
	ExternalID       string         `json:"external_id"`
	Label            string         `json:"label"`
	ParentExternalID string         `json:"parent_external_id"`
	Attributes       map[string]any `json:"attributes,omitempty"`
}

// EntitySummary is the listing view of a remote entity.
type EntitySummary struct {
	ExternalID       string `json:"external_id"`
	Label            string `json:"label"`
	ParentExternalID string `json:"parent_external_id,omitempty"`
}

// ListFilter narrows ListEntities results.
type ListFilter struct {
	ParentExternalID string
	Limit            int
}

// CatalogClient is the remote catalog port. Implementations return *Error
// values so callers can branch on NotFound / Transient / Fatal.
type CatalogClient interface {
	FetchEntity(ctx context.Context, shopID string, entityType models.EntityType, externalID string) (*EntityDetail, error)
	CreateEntity(ctx context.Context, shopID string, entityType models.EntityType, payload map[string]any) (string, error)
	UpdateEntity(ctx context.Context, shopID string, entityType models.EntityType, externalID string, payload map[string]any) error
	DeleteEntity(ctx context.Context, shopID string, entityType models.EntityType, externalID string) error
	ListEntities(ctx context.Context, shopID string, entityType models.EntityType, filter ListFilter) ([]EntitySummary, error)
	ListProductEntities(ctx context.Context, shopID string, productExternalID string) ([]EntityDetail, error)
}
