package optimizer

import (
	"context"

	"pg-advisor/internal/domain"
)

// History writes are best effort: a failed write warns and the session
// carries on.

func (e *Engine) recordStart(ctx context.Context, s *session) {
	if e.sessions == nil {
		return
	}
	rec := &domain.Session{
		ID:         s.id,
		Connection: s.target.Connection,
		Query:      s.query,
		State:      s.state,
		StartedAt:  s.started,
	}
	if err := e.sessions.Create(ctx, rec); err != nil {
		e.logger.Warn("record session start failed", "session", s.id, "error", err)
	}
}

func (e *Engine) recordState(ctx context.Context, s *session) {
	if e.sessions == nil {
		return
	}
	if err := e.sessions.UpdateState(ctx, s.id, s.state); err != nil {
		e.logger.Warn("record session state failed", "session", s.id, "error", err)
	}
}

func (e *Engine) recordRecommendations(ctx context.Context, s *session) {
	if e.sessions == nil {
		return
	}
	if err := e.sessions.InsertRecommendations(ctx, s.id, s.recs); err != nil {
		e.logger.Warn("record recommendations failed", "session", s.id, "error", err)
	}
}

func (e *Engine) recordAttempt(ctx context.Context, s *session, a domain.Attempt) {
	if e.sessions == nil {
		return
	}
	// Detached so an attempt cut short by the deadline is still kept.
	if err := e.sessions.InsertAttempt(context.WithoutCancel(ctx), &a); err != nil {
		e.logger.Warn("record attempt failed", "session", s.id, "error", err)
	}
}

func (e *Engine) recordConclusion(ctx context.Context, s *session, c *domain.Conclusion) {
	if e.sessions == nil {
		return
	}
	// Detached so a timed-out session still gets its terminal mark.
	if err := e.sessions.Conclude(context.WithoutCancel(ctx), s.id, c); err != nil {
		e.logger.Warn("record conclusion failed", "session", s.id, "error", err)
	}
}
