// Package optimizer drives optimization sessions through their state
// machine: validate the query, measure the baseline, collect advisor
// recommendations, test each one in a sandbox, refine until the goals
// are met or the round budget runs out, then conclude.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pg-advisor/internal/advisor"
	"pg-advisor/internal/analyzer"
	"pg-advisor/internal/domain"
	"pg-advisor/internal/planreader"
	"pg-advisor/internal/sqlcheck"
)

// Session bounds.
const (
	defaultMaxRefineRounds   = 5
	defaultImprovementTarget = 50.0
	defaultSessionTimeout    = 5 * time.Minute
)

// Config bounds every session the engine runs.
type Config struct {
	MaxRefineRounds   int
	ImprovementTarget float64
	SessionTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRefineRounds <= 0 {
		c.MaxRefineRounds = defaultMaxRefineRounds
	}
	if c.ImprovementTarget <= 0 {
		c.ImprovementTarget = defaultImprovementTarget
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = defaultSessionTimeout
	}
	return c
}

// Analyzer measures a query against the target database.
// Implemented by analyzer.Analyzer.
type Analyzer interface {
	Analyze(ctx context.Context, sql string, tables []string) (*analyzer.Report, error)
}

// Advisor produces and refines recommendations.
// Implemented by advisor.Gateway.
type Advisor interface {
	Recommend(ctx context.Context, req advisor.RecommendRequest) ([]domain.Recommendation, error)
	RefineSeqScan(ctx context.Context, req advisor.RefineRequest) (*domain.Recommendation, error)
}

// Sandbox is one disposable schema under test.
// Implemented by sandbox.Sandbox.
type Sandbox interface {
	ApplyIndexes(ctx context.Context, ddls []string) ([]string, error)
	ExplainInside(ctx context.Context, sql string) (*planreader.Explain, error)
	Destroy(ctx context.Context) error
}

// SandboxFactory creates a sandbox cloning the given tables.
type SandboxFactory func(ctx context.Context, tables []string) (Sandbox, error)

// Target bundles everything bound to one database under optimization.
type Target struct {
	Connection string
	Analyzer   Analyzer
	Sandboxes  SandboxFactory
}

// Engine runs optimization sessions. Safe for concurrent use; every
// session gets its own deadline, sandbox, and history records.
type Engine struct {
	advisor  Advisor
	sessions domain.SessionRepository
	cfg      Config
	logger   *slog.Logger

	jobs sync.Map // session id -> *job, while the session runs
}

// New builds an Engine. sessions may be nil, in which case no history
// is kept.
func New(adv Advisor, sessions domain.SessionRepository, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		advisor:  adv,
		sessions: sessions,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "optimizer"),
	}
}

// session is the in-flight state of one run.
type session struct {
	id      string
	target  Target
	query   string
	state   domain.SessionState
	started time.Time

	baseline *analyzer.Report
	tables   []string
	recs     []domain.Recommendation

	// attempts and testedRecs grow in lockstep: testedRecs[i] is the
	// recommendation that produced attempts[i].
	attempts   []domain.Attempt
	testedRecs []domain.Recommendation

	warnings []string
	rounds   int

	// appliedDDLs keeps the advisor-suggested statements that made it
	// into the sandbox, in order; applied indexes them for dedup.
	appliedDDLs []string
	applied     map[string]bool

	sb      Sandbox
	destroy sync.Once
}

func (s *session) destroySandbox(logger *slog.Logger) {
	s.destroy.Do(func() {
		if s.sb == nil {
			return
		}
		if err := s.sb.Destroy(context.Background()); err != nil {
			logger.Warn("sandbox destroy failed", "session", s.id, "error", err)
		}
	})
}

// Run executes one full session for query against target. The returned
// Conclusion describes the outcome even when err is non-nil.
func (e *Engine) Run(ctx context.Context, target Target, query string) (*domain.Conclusion, error) {
	return e.run(ctx, uuid.NewString(), target, query)
}

func (e *Engine) run(ctx context.Context, id string, target Target, query string) (*domain.Conclusion, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SessionTimeout)
	defer cancel()

	s := &session{
		id:      id,
		target:  target,
		query:   query,
		state:   domain.StateInit,
		started: time.Now().UTC(),
		applied: make(map[string]bool),
	}
	e.recordStart(ctx, s)
	defer s.destroySandbox(e.logger)

	c, err := e.drive(ctx, s)
	s.destroySandbox(e.logger)
	e.recordConclusion(ctx, s, c)
	return c, err
}

// drive walks the state machine. Failure paths return the conclusion
// together with the causing error.
func (e *Engine) drive(ctx context.Context, s *session) (*domain.Conclusion, error) {
	if err := e.transition(ctx, s, domain.StateValidating); err != nil {
		return e.fail(ctx, s, err), err
	}
	res, err := sqlcheck.Validate(s.query)
	if err != nil {
		return e.fail(ctx, s, err), err
	}
	s.tables = res.Tables
	s.warnings = append(s.warnings, res.Warnings...)

	if err := e.transition(ctx, s, domain.StateAnalyzing); err != nil {
		return e.fail(ctx, s, err), err
	}
	baseline, err := s.target.Analyzer.Analyze(ctx, s.query, s.tables)
	if err != nil {
		return e.fail(ctx, s, err), err
	}
	s.baseline = baseline
	e.logger.Info("baseline measured",
		"session", s.id,
		"execution_ms", baseline.ExecutionTime,
		"seq_scan", baseline.HasSeqScan,
		"issues", len(baseline.Issues))

	if err := e.transition(ctx, s, domain.StateRecommending); err != nil {
		return e.fail(ctx, s, err), err
	}
	recs, err := e.advisor.Recommend(ctx, advisor.RecommendRequest{
		Query:         s.query,
		PlanText:      baseline.PlanText,
		ExecutionTime: baseline.ExecutionTime,
		Issues:        baseline.Issues,
		Tables:        baseline.Tables,
	})
	if err != nil {
		return e.fail(ctx, s, err), err
	}
	s.recs = recs
	e.recordRecommendations(ctx, s)

	if err := e.transition(ctx, s, domain.StateTesting); err != nil {
		return e.fail(ctx, s, err), err
	}
	sb, err := s.target.Sandboxes(ctx, s.tables)
	if err != nil {
		return e.fail(ctx, s, err), err
	}
	s.sb = sb

	for _, rec := range recs {
		e.test(ctx, s, rec, 0)
		if ctx.Err() != nil {
			terr := domain.ErrTimeout("testing interrupted: %s", ctx.Err())
			return e.fail(ctx, s, terr), terr
		}
	}

	for s.rounds < e.cfg.MaxRefineRounds && e.needsRefinement(s) {
		if err := e.transition(ctx, s, domain.StateRefining); err != nil {
			return e.fail(ctx, s, err), err
		}
		refined, err := e.advisor.RefineSeqScan(ctx, e.refineRequest(s))
		if err != nil {
			if ctx.Err() != nil {
				terr := domain.ErrTimeout("refinement interrupted: %s", ctx.Err())
				return e.fail(ctx, s, terr), terr
			}
			e.logger.Warn("refinement unavailable, concluding with current results",
				"session", s.id, "round", s.rounds+1, "error", err)
			s.warnings = append(s.warnings, fmt.Sprintf("refinement stopped after round %d: %s", s.rounds, err))
			break
		}
		s.rounds++

		if err := e.transition(ctx, s, domain.StateTesting); err != nil {
			return e.fail(ctx, s, err), err
		}
		e.test(ctx, s, *refined, s.rounds)
		if ctx.Err() != nil {
			terr := domain.ErrTimeout("testing interrupted: %s", ctx.Err())
			return e.fail(ctx, s, terr), terr
		}
	}

	return e.conclude(ctx, s, domain.SessionCompleted, ""), nil
}

// test measures one recommendation in the sandbox and records the
// attempt. Failures land in the attempt's Err; the session carries on.
func (e *Engine) test(ctx context.Context, s *session, rec domain.Recommendation, round int) {
	a := domain.Attempt{
		SessionID:      s.id,
		Round:          round,
		Rank:           rec.Rank,
		Provider:       rec.Provider,
		Type:           string(rec.Type),
		BaselineTimeMs: s.baseline.ExecutionTime,
	}

	fresh, failed := e.applyIndexes(ctx, s, rec.SuggestedIndexes)
	a.IndexesApplied = fresh
	if failed != nil && len(fresh) == 0 && len(rec.SuggestedIndexes) > 0 {
		a.Err = failed.Error()
		e.finishAttempt(ctx, s, rec, a)
		return
	}

	candidate := s.query
	if q := strings.TrimSpace(rec.OptimizedQuery); q != "" && q != s.query {
		if _, verr := sqlcheck.Validate(q); verr != nil {
			s.warnings = append(s.warnings,
				fmt.Sprintf("round %d rank %d: advisor query rejected (%s); tested the original query", round, rec.Rank, verr))
		} else {
			candidate = q
		}
	}
	a.RewrittenQuery = candidate

	explain, err := s.sb.ExplainInside(ctx, candidate)
	if err != nil {
		a.Err = err.Error()
		e.finishAttempt(ctx, s, rec, a)
		return
	}

	a.SandboxTimeMs = explain.ExecutionTime
	a.ImprovementPct = improvementPct(s.baseline.ExecutionTime, explain.ExecutionTime)
	a.SeqScanEliminated = s.baseline.HasSeqScan && !explain.HasSeqScan()
	a.PlanText = planreader.Format(explain)
	e.finishAttempt(ctx, s, rec, a)

	e.logger.Info("attempt tested",
		"session", s.id,
		"round", round,
		"rank", rec.Rank,
		"improvement_pct", a.ImprovementPct,
		"seq_scan_eliminated", a.SeqScanEliminated)
}

func (e *Engine) finishAttempt(ctx context.Context, s *session, rec domain.Recommendation, a domain.Attempt) {
	s.attempts = append(s.attempts, a)
	s.testedRecs = append(s.testedRecs, rec)
	e.recordAttempt(ctx, s, a)
	if a.Err != "" {
		e.logger.Warn("attempt failed", "session", s.id, "round", a.Round, "rank", a.Rank, "error", a.Err)
	}
}

// applyIndexes feeds suggested DDL into the sandbox one statement at a
// time so a statement that already ran in an earlier round is skipped
// rather than retried. Returns the statements newly applied and the
// last failure, if any.
func (e *Engine) applyIndexes(ctx context.Context, s *session, ddls []string) ([]string, error) {
	var fresh []string
	var lastErr error
	for _, ddl := range ddls {
		if s.applied[ddl] {
			continue
		}
		if _, err := s.sb.ApplyIndexes(ctx, []string{ddl}); err != nil {
			lastErr = err
			continue
		}
		s.applied[ddl] = true
		s.appliedDDLs = append(s.appliedDDLs, ddl)
		fresh = append(fresh, ddl)
	}
	return fresh, lastErr
}

// needsRefinement reports whether the session should ask for another
// round: only when some attempt succeeded and either the baseline's
// sequential scan survives in the best plan or the improvement target
// is unmet.
func (e *Engine) needsRefinement(s *session) bool {
	best := bestIdx(s.attempts)
	if best < 0 {
		return false
	}
	a := s.attempts[best]
	if s.baseline.HasSeqScan && !a.SeqScanEliminated {
		return true
	}
	return a.ImprovementPct < e.cfg.ImprovementTarget
}

func (e *Engine) refineRequest(s *session) advisor.RefineRequest {
	best := bestIdx(s.attempts)
	a := s.attempts[best]
	return advisor.RefineRequest{
		Query:          s.query,
		Previous:       s.testedRecs[best],
		SandboxPlan:    a.PlanText,
		AppliedIndexes: s.appliedDDLs,
		Improvement:    a.ImprovementPct,
		SeqScanRemains: s.baseline.HasSeqScan && !a.SeqScanEliminated,
	}
}

func (e *Engine) transition(ctx context.Context, s *session, next domain.SessionState) error {
	if ctx.Err() != nil {
		return domain.ErrTimeout("session interrupted entering %s: %s", next, ctx.Err())
	}
	s.state = next
	e.publish(s.id, next)
	e.logger.Debug("session state", "session", s.id, "state", next)
	e.recordState(ctx, s)
	return nil
}

// conclude ranks the attempts, picks the best, and closes the session.
func (e *Engine) conclude(ctx context.Context, s *session, status domain.SessionStatus, reason string) *domain.Conclusion {
	s.state = domain.StateConcluded
	e.publish(s.id, domain.StateConcluded)

	ranked := rankAttempts(s.attempts)
	c := &domain.Conclusion{
		SessionID:     s.id,
		Status:        status,
		Rounds:        s.rounds,
		Ranked:        ranked,
		Warnings:      s.warnings,
		FailureReason: reason,
	}
	if s.baseline != nil {
		c.BaselineTimeMs = s.baseline.ExecutionTime
	}
	for i := range ranked {
		if ranked[i].Err == "" {
			c.Best = &ranked[i]
			break
		}
	}

	e.logger.Info("session concluded",
		"session", s.id,
		"status", status,
		"rounds", s.rounds,
		"attempts", len(s.attempts))
	return c
}

// fail closes the session on an error, distinguishing cancelation from
// everything else.
func (e *Engine) fail(ctx context.Context, s *session, cause error) *domain.Conclusion {
	status := domain.SessionFailed
	if errors.Is(ctx.Err(), context.Canceled) {
		status = domain.SessionCanceled
	}
	e.logger.Error("session failed", "session", s.id, "state", s.state, "error", cause)
	return e.conclude(ctx, s, status, cause.Error())
}

// rankAttempts orders attempts best first (successful ones by Better,
// failed ones after) and renumbers Rank to the final standing.
func rankAttempts(in []domain.Attempt) []domain.Attempt {
	out := make([]domain.Attempt, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Err == "") != (out[j].Err == "") {
			return out[i].Err == ""
		}
		return out[i].Better(out[j])
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func bestIdx(attempts []domain.Attempt) int {
	best := -1
	for i, a := range attempts {
		if a.Err != "" {
			continue
		}
		if best < 0 || a.Better(attempts[best]) {
			best = i
		}
	}
	return best
}

// improvementPct is the percentage gained over the baseline, rounded
// to two decimals. Negative when the candidate is slower.
func improvementPct(baseline, tested float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return math.Round((baseline-tested)/baseline*10000) / 100
}
