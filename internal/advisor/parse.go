package advisor

import (
	"encoding/json"
	"fmt"
	"strings"

	"pg-advisor/internal/domain"
)

// wireRecommendation is the JSON shape the prompt demands from
// providers.
type wireRecommendation struct {
	Type                string   `json:"type"`
	Description         string   `json:"description"`
	OptimizedQuery      string   `json:"optimized_query"`
	SuggestedIndexes    []string `json:"suggested_indexes"`
	ExpectedImprovement string   `json:"expected_improvement"`
	Explanation         string   `json:"explanation"`
}

// parseRecommendations decodes a provider response into exactly three
// ranked recommendations. Markdown fences and surrounding prose are
// tolerated; fewer than three recommendations are not.
func parseRecommendations(raw string) ([]domain.Recommendation, []string, error) {
	payload, ok := extractJSON(raw, '[', ']')
	if !ok {
		return nil, nil, domain.ErrAdvisor("response contains no JSON array")
	}

	var wire []wireRecommendation
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, nil, domain.ErrAdvisor("decode recommendations: %s", err)
	}

	if len(wire) < expectedRecommendations {
		return nil, nil, domain.ErrAdvisor("expected %d recommendations, got %d", expectedRecommendations, len(wire))
	}
	wire = wire[:expectedRecommendations]

	var warnings []string
	recs := make([]domain.Recommendation, 0, expectedRecommendations)
	for i, w := range wire {
		if strings.TrimSpace(w.Description) == "" {
			return nil, nil, domain.ErrAdvisor("recommendation %d has no description", i+1)
		}

		rec := domain.Recommendation{
			Rank:                i + 1,
			Type:                domain.RecommendationType(strings.ToLower(strings.TrimSpace(w.Type))),
			Description:         w.Description,
			OptimizedQuery:      strings.TrimSpace(w.OptimizedQuery),
			SuggestedIndexes:    cleanStatements(w.SuggestedIndexes),
			ExpectedImprovement: domain.Improvement(strings.ToLower(strings.TrimSpace(w.ExpectedImprovement))),
			Explanation:         w.Explanation,
		}

		if !rec.Type.Valid() {
			warnings = append(warnings, fmt.Sprintf("unknown type %q normalized to rewrite", w.Type))
			rec.Type = domain.RecommendationRewrite
		}
		if !rec.ExpectedImprovement.Valid() {
			warnings = append(warnings, fmt.Sprintf("unknown expected_improvement %q normalized to low", w.ExpectedImprovement))
			rec.ExpectedImprovement = domain.ImprovementLow
		}

		recs = append(recs, rec)
	}
	return recs, warnings, nil
}

// wireRefinement is the single-object response to a refine prompt.
type wireRefinement struct {
	OptimizedQuery   string   `json:"optimized_query"`
	SuggestedIndexes []string `json:"suggested_indexes"`
	Explanation      string   `json:"explanation"`
}

// parseRefinement decodes a refine response into one recommendation.
func parseRefinement(raw string) (*domain.Recommendation, error) {
	payload, ok := extractJSON(raw, '{', '}')
	if !ok {
		return nil, domain.ErrAdvisor("response contains no JSON object")
	}

	var wire wireRefinement
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, domain.ErrAdvisor("decode refinement: %s", err)
	}

	query := strings.TrimSpace(wire.OptimizedQuery)
	indexes := cleanStatements(wire.SuggestedIndexes)
	if query == "" && len(indexes) == 0 {
		return nil, domain.ErrAdvisor("refinement proposes neither a query nor indexes")
	}

	recType := domain.RecommendationRewrite
	if len(indexes) > 0 {
		recType = domain.RecommendationIndex
	}

	return &domain.Recommendation{
		Rank:                1,
		Type:                recType,
		Description:         "refinement of the previous attempt",
		OptimizedQuery:      query,
		SuggestedIndexes:    indexes,
		ExpectedImprovement: domain.ImprovementMedium,
		Explanation:         wire.Explanation,
	}, nil
}

// extractJSON pulls the first balanced-looking JSON payload out of a
// response that may be wrapped in Markdown fences or prose. Balance is
// approximated with the outermost open/close pair, which holds for the
// flat documents the prompts demand.
func extractJSON(raw string, open, closing byte) (string, bool) {
	s := stripFences(raw)

	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closing)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// stripFences drops Markdown code-fence lines (``` or ```json) while
// keeping their content.
func stripFences(raw string) string {
	if !strings.Contains(raw, "```") {
		return raw
	}

	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// cleanStatements trims statements and drops empties.
func cleanStatements(in []string) []string {
	var out []string
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
