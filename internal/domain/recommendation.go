package domain

// RecommendationType classifies what kind of change a recommendation
// proposes.
type RecommendationType string

const (
	RecommendationIndex   RecommendationType = "index"
	RecommendationRewrite RecommendationType = "rewrite"
	RecommendationConfig  RecommendationType = "config"
	RecommendationSchema  RecommendationType = "schema"
)

// Valid reports whether t is one of the known recommendation types.
func (t RecommendationType) Valid() bool {
	switch t {
	case RecommendationIndex, RecommendationRewrite, RecommendationConfig, RecommendationSchema:
		return true
	}
	return false
}

// Improvement is the provider's own estimate of how much a
// recommendation should help.
type Improvement string

const (
	ImprovementHigh   Improvement = "high"
	ImprovementMedium Improvement = "medium"
	ImprovementLow    Improvement = "low"
)

// Valid reports whether i is one of the known improvement levels.
func (i Improvement) Valid() bool {
	switch i {
	case ImprovementHigh, ImprovementMedium, ImprovementLow:
		return true
	}
	return false
}

// Recommendation is one optimization proposal from an advisor provider,
// normalized regardless of which provider produced it.
type Recommendation struct {
	Rank                int                `json:"rank"`
	Type                RecommendationType `json:"type"`
	Description         string             `json:"description"`
	OptimizedQuery      string             `json:"optimized_query,omitempty"`
	SuggestedIndexes    []string           `json:"suggested_indexes,omitempty"`
	ExpectedImprovement Improvement        `json:"expected_improvement"`
	Explanation         string             `json:"explanation,omitempty"`
	Provider            string             `json:"provider"`
}
