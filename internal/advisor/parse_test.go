package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-advisor/internal/domain"
)

func TestParseRecommendations(t *testing.T) {
	recs, warnings, err := parseRecommendations(recommendationsPayload)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Empty(t, warnings)

	assert.Equal(t, 1, recs[0].Rank)
	assert.Equal(t, domain.RecommendationIndex, recs[0].Type)
	assert.Equal(t, domain.ImprovementHigh, recs[0].ExpectedImprovement)
	assert.Equal(t, []string{"CREATE INDEX idx_orders_status ON orders (status)"}, recs[0].SuggestedIndexes)

	assert.Equal(t, 2, recs[1].Rank)
	assert.Equal(t, domain.RecommendationRewrite, recs[1].Type)
	assert.Empty(t, recs[1].SuggestedIndexes)

	assert.Equal(t, 3, recs[2].Rank)
	assert.Equal(t, domain.RecommendationConfig, recs[2].Type)
}

func TestParseRecommendations_MarkdownFences(t *testing.T) {
	raw := "```json\n" + recommendationsPayload + "\n```"
	recs, _, err := parseRecommendations(raw)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestParseRecommendations_SurroundingProse(t *testing.T) {
	raw := "Here are my recommendations:\n\n" + recommendationsPayload + "\n\nLet me know if you need anything else."
	recs, _, err := parseRecommendations(raw)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestParseRecommendations_TooFew(t *testing.T) {
	raw := `[
	  {"type": "index", "description": "first", "expected_improvement": "high"},
	  {"type": "rewrite", "description": "second", "expected_improvement": "low"}
	]`
	_, _, err := parseRecommendations(raw)
	require.Error(t, err)

	var advErr *domain.AdvisorError
	require.ErrorAs(t, err, &advErr)
	assert.Contains(t, err.Error(), "expected 3 recommendations, got 2")
}

func TestParseRecommendations_ExtrasTruncated(t *testing.T) {
	raw := `[
	  {"type": "index", "description": "first", "expected_improvement": "high"},
	  {"type": "rewrite", "description": "second", "expected_improvement": "medium"},
	  {"type": "config", "description": "third", "expected_improvement": "low"},
	  {"type": "schema", "description": "fourth", "expected_improvement": "low"}
	]`
	recs, _, err := parseRecommendations(raw)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "third", recs[2].Description)
}

func TestParseRecommendations_NormalizesUnknownFields(t *testing.T) {
	raw := `[
	  {"type": "materialized view", "description": "first", "expected_improvement": "huge"},
	  {"type": "INDEX", "description": "second", "expected_improvement": "Medium"},
	  {"type": "rewrite", "description": "third", "expected_improvement": "low"}
	]`
	recs, warnings, err := parseRecommendations(raw)
	require.NoError(t, err)

	assert.Equal(t, domain.RecommendationRewrite, recs[0].Type)
	assert.Equal(t, domain.ImprovementLow, recs[0].ExpectedImprovement)
	assert.Equal(t, domain.RecommendationIndex, recs[1].Type)
	assert.Equal(t, domain.ImprovementMedium, recs[1].ExpectedImprovement)

	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], `unknown type "materialized view"`)
	assert.Contains(t, warnings[1], `unknown expected_improvement "huge"`)
}

func TestParseRecommendations_MissingDescription(t *testing.T) {
	raw := `[
	  {"type": "index", "description": "first", "expected_improvement": "high"},
	  {"type": "index", "description": "   ", "expected_improvement": "high"},
	  {"type": "index", "description": "third", "expected_improvement": "high"}
	]`
	_, _, err := parseRecommendations(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recommendation 2 has no description")
}

func TestParseRecommendations_NoJSON(t *testing.T) {
	_, _, err := parseRecommendations("I am unable to help with that request.")
	require.Error(t, err)

	var advErr *domain.AdvisorError
	require.ErrorAs(t, err, &advErr)
	assert.Contains(t, err.Error(), "no JSON array")
}

func TestParseRecommendations_MalformedJSON(t *testing.T) {
	_, _, err := parseRecommendations(`[{"type": index}]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode recommendations")
}

func TestParseRecommendations_CleansIndexStatements(t *testing.T) {
	raw := `[
	  {"type": "index", "description": "first", "suggested_indexes": ["  CREATE INDEX i ON t (c)  ", "", "   "], "expected_improvement": "high"},
	  {"type": "rewrite", "description": "second", "expected_improvement": "medium"},
	  {"type": "config", "description": "third", "expected_improvement": "low"}
	]`
	recs, _, err := parseRecommendations(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE INDEX i ON t (c)"}, recs[0].SuggestedIndexes)
}

func TestParseRefinement(t *testing.T) {
	rec, err := parseRefinement(refinementPayload)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Rank)
	assert.Equal(t, domain.RecommendationIndex, rec.Type)
	assert.Equal(t, domain.ImprovementMedium, rec.ExpectedImprovement)
	assert.Equal(t, "SELECT id FROM orders WHERE status = 'open'", rec.OptimizedQuery)
	assert.NotEmpty(t, rec.Description)
}

func TestParseRefinement_QueryOnly(t *testing.T) {
	rec, err := parseRefinement(`{"optimized_query": "SELECT id FROM orders", "suggested_indexes": [], "explanation": "narrower projection"}`)
	require.NoError(t, err)
	assert.Equal(t, domain.RecommendationRewrite, rec.Type)
}

func TestParseRefinement_MarkdownFences(t *testing.T) {
	raw := "```json\n" + refinementPayload + "\n```"
	_, err := parseRefinement(raw)
	require.NoError(t, err)
}

func TestParseRefinement_ProposesNothing(t *testing.T) {
	_, err := parseRefinement(`{"optimized_query": "", "suggested_indexes": [], "explanation": "out of ideas"}`)
	require.Error(t, err)

	var advErr *domain.AdvisorError
	require.ErrorAs(t, err, &advErr)
	assert.Contains(t, err.Error(), "neither a query nor indexes")
}

func TestParseRefinement_NoJSON(t *testing.T) {
	_, err := parseRefinement("no luck this time")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON object")
}
