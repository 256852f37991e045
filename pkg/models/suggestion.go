package models

// MatchType classifies a suggestion by confidence band
type MatchType string

const (
	MatchTypeExact   MatchType = "exact"
	MatchTypeSimilar MatchType = "similar"
)

// SuggestionCandidate pairs an unmapped canonical entity with its best
// unmapped external counterpart. Candidates are ephemeral; accepting one
// produces a MappingRecord.
type SuggestionCandidate struct {
	CanonicalID    string    `json:"canonical_id"`
	CanonicalLabel string    `json:"canonical_label"`
	ExternalID     string    `json:"external_id"`
	ExternalLabel  string    `json:"external_label"`
	Confidence     float64   `json:"confidence"`
	MatchType      MatchType `json:"match_type"`
}

// ApplySuggestionsResult partitions the candidate set by threshold: Applied
// were written to the mapping store, Review need a human decision.
type ApplySuggestionsResult struct {
	Applied []SuggestionCandidate `json:"applied"`
	Review  []SuggestionCandidate `json:"review"`
}
