// Package advisor asks a fallback chain of LLM providers for query
// optimization recommendations and normalizes whatever they return.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"pg-advisor/internal/domain"
)

// Chat parameters shared by every provider.
const (
	chatTemperature = 0.3
	maxTokens       = 4096
)

// expectedRecommendations is the contract with the prompt: a response
// that cannot produce this many is a provider failure, not a partial
// success.
const expectedRecommendations = 3

// Provider is one LLM backend in the fallback chain.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// RecommendRequest carries everything the prompt needs about the
// baseline measurement.
type RecommendRequest struct {
	Query         string
	PlanText      string
	ExecutionTime float64
	Issues        []domain.Issue
	Tables        []domain.TableInfo
}

// RefineRequest asks for a focused follow-up after testing showed the
// best attempt still falls short.
type RefineRequest struct {
	Query          string
	Previous       domain.Recommendation
	SandboxPlan    string
	AppliedIndexes []string
	Improvement    float64
	SeqScanRemains bool
}

// Gateway tries providers in order until one returns a parseable
// response.
type Gateway struct {
	providers []Provider
	limiters  map[string]*rate.Limiter
	logger    *slog.Logger
}

// NewGateway builds the fallback chain. At least one provider must be
// configured; each gets its own request-rate limiter.
func NewGateway(providers []Provider, rps float64, logger *slog.Logger) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no advisor providers configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rps <= 0 {
		rps = 1
	}

	limiters := make(map[string]*rate.Limiter, len(providers))
	for _, p := range providers {
		limiters[p.Name()] = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &Gateway{
		providers: providers,
		limiters:  limiters,
		logger:    logger.With("component", "advisor"),
	}, nil
}

// Providers returns the chain order by name.
func (g *Gateway) Providers() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name()
	}
	return names
}

// Recommend asks the chain for exactly three recommendations. The
// first provider whose response parses wins and is stamped into every
// recommendation; a provider that errors or returns garbage is skipped
// for the rest of the call.
func (g *Gateway) Recommend(ctx context.Context, req RecommendRequest) ([]domain.Recommendation, error) {
	prompt := recommendPrompt(req)

	var lastErr error
	tried := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		tried = append(tried, p.Name())

		recs, err := g.recommendWith(ctx, p, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.ErrTimeout("advisor request canceled: %s", ctx.Err())
			}
			g.logger.Warn("advisor provider failed", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}

		g.logger.Info("recommendations received", "provider", p.Name(), "count", len(recs))
		return recs, nil
	}

	return nil, domain.ErrAdvisor("all providers failed (%s): %s", strings.Join(tried, ", "), lastErr)
}

func (g *Gateway) recommendWith(ctx context.Context, p Provider, prompt string) ([]domain.Recommendation, error) {
	if err := g.limiters[p.Name()].Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := p.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	recs, warnings, err := parseRecommendations(raw)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		g.logger.Warn("normalized recommendation field", "provider", p.Name(), "detail", w)
	}
	for i := range recs {
		recs[i].Provider = p.Name()
	}
	return recs, nil
}

// RefineSeqScan asks for one follow-up recommendation building on the
// previous attempt. Same chain semantics as Recommend.
func (g *Gateway) RefineSeqScan(ctx context.Context, req RefineRequest) (*domain.Recommendation, error) {
	prompt := refinePrompt(req)

	var lastErr error
	tried := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		tried = append(tried, p.Name())

		if err := g.limiters[p.Name()].Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, domain.ErrTimeout("advisor request canceled: %s", ctx.Err())
			}
			lastErr = err
			continue
		}

		raw, err := p.Complete(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.ErrTimeout("advisor request canceled: %s", ctx.Err())
			}
			g.logger.Warn("advisor provider failed", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}

		rec, err := parseRefinement(raw)
		if err != nil {
			g.logger.Warn("unparseable refinement", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}

		rec.Provider = p.Name()
		return rec, nil
	}

	return nil, domain.ErrAdvisor("all providers failed (%s): %s", strings.Join(tried, ", "), lastErr)
}
