// Package suggestion ranks likely matches between unmapped canonical
// entities and unmapped external entities so a reviewer (or the auto-apply
// path) can link them without manual searching.
package suggestion

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/remote"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

const (
	// DefaultThreshold is the minimum confidence for a candidate to surface.
	DefaultThreshold = 0.8
	// ExactThreshold classifies a candidate as an exact match.
	ExactThreshold = 0.95
)

// Mappings is the slice of the mapping store the engine needs.
type Mappings interface {
	ListActive(ctx context.Context, shopID string, entityType models.EntityType) ([]models.MappingRecord, error)
	Put(ctx context.Context, req *models.PutMappingRequest) (*models.MappingRecord, error)
}

// EntityLister lists canonical entities of a type.
type EntityLister interface {
	ListByType(ctx context.Context, entityType models.EntityType, limit int) ([]models.CanonicalEntity, error)
}

// RemoteLister lists a shop's external entities of a type.
type RemoteLister interface {
	ListEntities(ctx context.Context, shopID string, entityType models.EntityType, filter remote.ListFilter) ([]remote.EntitySummary, error)
}

// Scorer compares two labels for likely-same-entity confidence.
type Scorer interface {
	Score(a, b string) float64
}

// Engine produces ranked mapping suggestions
type Engine struct {
	mappings Mappings
	entities EntityLister
	remote   RemoteLister
	scorer   Scorer
	logger   ectologger.Logger
}

// NewEngine creates a new suggestion Engine
func NewEngine(mappings Mappings, entities EntityLister, remoteLister RemoteLister, scorer Scorer, logger ectologger.Logger) *Engine {
	return &Engine{
		mappings: mappings,
		entities: entities,
		remote:   remoteLister,
		scorer:   scorer,
		logger:   logger,
	}
}

// Suggest scores every unmapped canonical entity against every unmapped
// external entity and returns the single best candidate per canonical
// entity at or above the threshold, sorted by descending confidence. A
// threshold <= 0 uses DefaultThreshold.
//
// The comparison is O(n*m) on the unmapped populations. Those are expected
// to stay small (anything matched no longer participates), so no index is
// built here.
func (e *Engine) Suggest(ctx context.Context, shopID string, entityType models.EntityType, threshold float64) ([]models.SuggestionCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "suggestion.Engine.Suggest")
	defer span.End()

	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	candidates, err := e.bestMatches(ctx, shopID, entityType)
	if err != nil {
		return nil, err
	}

	out := make([]models.SuggestionCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= threshold {
			out = append(out, c)
		}
	}
	return out, nil
}

// AutoApply writes every candidate at or above the threshold to the mapping
// store and returns the rest for manual review. Nothing below the threshold
// is dropped silently.
func (e *Engine) AutoApply(ctx context.Context, shopID string, entityType models.EntityType, threshold float64) (*models.ApplySuggestionsResult, error) {
	ctx, span := tracing.StartSpan(ctx, "suggestion.Engine.AutoApply")
	defer span.End()

	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	candidates, err := e.bestMatches(ctx, shopID, entityType)
	if err != nil {
		return nil, err
	}

	result := &models.ApplySuggestionsResult{
		Applied: []models.SuggestionCandidate{},
		Review:  []models.SuggestionCandidate{},
	}

	for _, c := range candidates {
		if c.Confidence < threshold {
			result.Review = append(result.Review, c)
			continue
		}

		if _, err := e.mappings.Put(ctx, &models.PutMappingRequest{
			ShopID:        shopID,
			EntityType:    entityType,
			CanonicalID:   c.CanonicalID,
			ExternalID:    c.ExternalID,
			ExternalLabel: c.ExternalLabel,
		}); err != nil {
			return nil, err
		}
		result.Applied = append(result.Applied, c)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"shop_id":     shopID,
		"entity_type": entityType,
		"applied":     len(result.Applied),
		"review":      len(result.Review),
	}).Info("Applied mapping suggestions")

	return result, nil
}

// bestMatches assembles the unmapped populations and keeps the best-scoring
// external entity for each canonical one, sorted by descending confidence.
func (e *Engine) bestMatches(ctx context.Context, shopID string, entityType models.EntityType) ([]models.SuggestionCandidate, error) {
	active, err := e.mappings.ListActive(ctx, shopID, entityType)
	if err != nil {
		return nil, err
	}

	mappedCanonical := make(map[string]bool, len(active))
	mappedExternal := make(map[string]bool, len(active))
	for _, m := range active {
		mappedCanonical[m.CanonicalID] = true
		mappedExternal[m.ExternalID] = true
	}

	canonical, err := e.entities.ListByType(ctx, entityType, 1000)
	if err != nil {
		return nil, err
	}

	external, err := e.remote.ListEntities(ctx, shopID, entityType, remote.ListFilter{})
	if err != nil {
		return nil, err
	}

	var unmappedExternal []remote.EntitySummary
	for _, ext := range external {
		if !mappedExternal[ext.ExternalID] {
			unmappedExternal = append(unmappedExternal, ext)
		}
	}

	var candidates []models.SuggestionCandidate
	for _, can := range canonical {
		if mappedCanonical[can.ID] {
			continue
		}

		best := models.SuggestionCandidate{Confidence: -1}
		for _, ext := range unmappedExternal {
			score := e.scorer.Score(can.Label, ext.Label)
			if can.AliasLabel != nil {
				if aliasScore := e.scorer.Score(*can.AliasLabel, ext.Label); aliasScore > score {
					score = aliasScore
				}
			}
			if score > best.Confidence {
				best = models.SuggestionCandidate{
					CanonicalID:    can.ID,
					CanonicalLabel: can.Label,
					ExternalID:     ext.ExternalID,
					ExternalLabel:  ext.Label,
					Confidence:     score,
					MatchType:      matchType(score),
				}
			}
		}
		if best.Confidence >= 0 {
			candidates = append(candidates, best)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	return candidates, nil
}

func matchType(score float64) models.MatchType {
	if score >= ExactThreshold {
		return models.MatchTypeExact
	}
	return models.MatchTypeSimilar
}
