package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pg-advisor/internal/db"
	"pg-advisor/internal/domain"
)

// SessionRepo stores optimization sessions with their attempts and
// recommendations. Sessions are written as the engine progresses, so a
// crash mid-run leaves the last recorded state behind for inspection.
type SessionRepo struct {
	write *sql.DB
	read  *sql.DB
}

var _ domain.SessionRepository = (*SessionRepo)(nil)

func NewSessionRepo(pair *db.Pair) *SessionRepo {
	return &SessionRepo{write: pair.Write, read: pair.Read}
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	if s.State == "" {
		s.State = domain.StateInit
	}
	_, err := r.write.ExecContext(ctx,
		`INSERT INTO sessions (id, connection, query, state, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Connection, s.Query, s.State, s.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict("session %q already exists", s.ID)
		}
		return err
	}
	return nil
}

func (r *SessionRepo) UpdateState(ctx context.Context, id string, state domain.SessionState) error {
	res, err := r.write.ExecContext(ctx,
		`UPDATE sessions SET state = ? WHERE id = ?`, state, id)
	if err != nil {
		return err
	}
	return r.requireRow(res, id)
}

// Conclude writes the terminal record: status, rounds, the best
// measurement, and the concluded timestamp in one update.
func (r *SessionRepo) Conclude(ctx context.Context, id string, c *domain.Conclusion) error {
	var bestMs, bestPct float64
	if c.Best != nil {
		bestMs = c.Best.SandboxTimeMs
		bestPct = c.Best.ImprovementPct
	}
	res, err := r.write.ExecContext(ctx,
		`UPDATE sessions
		 SET state = ?, status = ?, rounds = ?, baseline_time_ms = ?,
		     best_time_ms = ?, improvement_pct = ?, failure_reason = ?, concluded_at = ?
		 WHERE id = ?`,
		domain.StateConcluded, c.Status, c.Rounds, c.BaselineTimeMs,
		bestMs, bestPct, c.FailureReason, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return r.requireRow(res, id)
}

const sessionColumns = `id, connection, query, state, status, rounds,
	baseline_time_ms, best_time_ms, improvement_pct, failure_reason,
	started_at, concluded_at`

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("session %q not found", id)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) List(ctx context.Context, limit, offset int) ([]domain.Session, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := r.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.read.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, total, rows.Err()
}

func (r *SessionRepo) InsertAttempt(ctx context.Context, a *domain.Attempt) error {
	_, err := r.write.ExecContext(ctx,
		`INSERT INTO attempts (session_id, round, rank, provider, type, rewritten_query,
		     indexes_applied, baseline_time_ms, sandbox_time_ms, improvement_pct,
		     seq_scan_eliminated, plan_text, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.Round, a.Rank, a.Provider, a.Type, a.RewrittenQuery,
		marshalStrings(a.IndexesApplied), a.BaselineTimeMs, a.SandboxTimeMs, a.ImprovementPct,
		boolToInt(a.SeqScanEliminated), a.PlanText, a.Err)
	return err
}

func (r *SessionRepo) ListAttempts(ctx context.Context, sessionID string) ([]domain.Attempt, error) {
	rows, err := r.read.QueryContext(ctx,
		`SELECT session_id, round, rank, provider, type, rewritten_query,
		     indexes_applied, baseline_time_ms, sandbox_time_ms, improvement_pct,
		     seq_scan_eliminated, plan_text, error
		 FROM attempts WHERE session_id = ? ORDER BY round, rank`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var attempts []domain.Attempt
	for rows.Next() {
		var (
			a       domain.Attempt
			indexes string
			seqElim int64
		)
		if err := rows.Scan(&a.SessionID, &a.Round, &a.Rank, &a.Provider, &a.Type, &a.RewrittenQuery,
			&indexes, &a.BaselineTimeMs, &a.SandboxTimeMs, &a.ImprovementPct,
			&seqElim, &a.PlanText, &a.Err); err != nil {
			return nil, err
		}
		a.IndexesApplied = unmarshalStrings(indexes)
		a.SeqScanEliminated = seqElim != 0
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// InsertRecommendations writes one advisor batch atomically.
func (r *SessionRepo) InsertRecommendations(ctx context.Context, sessionID string, recs []domain.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recommendations (session_id, rank, provider, type, description,
			     optimized_query, suggested_indexes, expected_improvement, explanation)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, rec.Rank, rec.Provider, rec.Type, rec.Description,
			rec.OptimizedQuery, marshalStrings(rec.SuggestedIndexes), rec.ExpectedImprovement, rec.Explanation); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SessionRepo) ListRecommendations(ctx context.Context, sessionID string) ([]domain.Recommendation, error) {
	rows, err := r.read.QueryContext(ctx,
		`SELECT rank, provider, type, description, optimized_query,
		     suggested_indexes, expected_improvement, explanation
		 FROM recommendations WHERE session_id = ? ORDER BY rank`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var recs []domain.Recommendation
	for rows.Next() {
		var (
			rec     domain.Recommendation
			indexes string
		)
		if err := rows.Scan(&rec.Rank, &rec.Provider, &rec.Type, &rec.Description, &rec.OptimizedQuery,
			&indexes, &rec.ExpectedImprovement, &rec.Explanation); err != nil {
			return nil, err
		}
		rec.SuggestedIndexes = unmarshalStrings(indexes)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// FailInterrupted concludes every session that never reached a
// terminal state, stamping the given reason. The engine records each
// state transition as it runs, so after a crash the interrupted
// sessions are exactly the non-concluded ones.
func (r *SessionRepo) FailInterrupted(ctx context.Context, reason string) (int64, error) {
	res, err := r.write.ExecContext(ctx,
		`UPDATE sessions
		 SET state = ?, status = ?, failure_reason = ?, concluded_at = ?
		 WHERE state != ?`,
		domain.StateConcluded, domain.SessionFailed, reason, time.Now().UTC(), domain.StateConcluded)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SessionRepo) requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("session %q not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s         domain.Session
		concluded sql.NullTime
	)
	err := row.Scan(&s.ID, &s.Connection, &s.Query, &s.State, &s.Status, &s.Rounds,
		&s.BaselineTimeMs, &s.BestTimeMs, &s.ImprovementPct, &s.FailureReason,
		&s.StartedAt, &concluded)
	if err != nil {
		return nil, err
	}
	if concluded.Valid {
		t := concluded.Time
		s.ConcludedAt = &t
	}
	return &s, nil
}
