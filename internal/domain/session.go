package domain

import "time"

// SessionState tracks where an optimization session is in its lifecycle.
// Transitions are strictly forward; Concluded is the only terminal state.
type SessionState string

const (
	StateInit         SessionState = "init"
	StateValidating   SessionState = "validating"
	StateAnalyzing    SessionState = "analyzing"
	StateRecommending SessionState = "recommending"
	StateTesting      SessionState = "testing"
	StateRefining     SessionState = "refining"
	StateConcluded    SessionState = "concluded"
)

// Terminal reports whether the state is final.
func (s SessionState) Terminal() bool { return s == StateConcluded }

// SessionStatus is the conclusion status of a session.
type SessionStatus string

const (
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCanceled  SessionStatus = "canceled"
)

// Session is the persisted record of one optimization run.
type Session struct {
	ID             string        `json:"id"`
	Connection     string        `json:"connection"`
	Query          string        `json:"query"`
	State          SessionState  `json:"state"`
	Status         SessionStatus `json:"status,omitempty"`
	Rounds         int           `json:"rounds"`
	BaselineTimeMs float64       `json:"baseline_time_ms,omitempty"`
	BestTimeMs     float64       `json:"best_time_ms,omitempty"`
	ImprovementPct float64       `json:"improvement_pct,omitempty"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	ConcludedAt    *time.Time    `json:"concluded_at,omitempty"`
}

// Attempt is one tested recommendation inside a session: the candidate
// query and indexes that ran in the sandbox, and what they measured.
type Attempt struct {
	SessionID         string   `json:"session_id,omitempty"`
	Round             int      `json:"round"`
	Rank              int      `json:"rank"`
	Provider          string   `json:"provider"`
	Type              string   `json:"type"`
	RewrittenQuery    string   `json:"rewritten_query,omitempty"`
	IndexesApplied    []string `json:"indexes_applied,omitempty"`
	BaselineTimeMs    float64  `json:"baseline_time_ms"`
	SandboxTimeMs     float64  `json:"sandbox_time_ms"`
	ImprovementPct    float64  `json:"improvement_pct"`
	SeqScanEliminated bool     `json:"seq_scan_eliminated"`
	PlanText          string   `json:"plan_text,omitempty"`
	Err               string   `json:"error,omitempty"`
}

// Better reports whether a ranks above b: sequential-scan elimination
// first, then measured improvement.
func (a Attempt) Better(b Attempt) bool {
	if a.SeqScanEliminated != b.SeqScanEliminated {
		return a.SeqScanEliminated
	}
	return a.ImprovementPct > b.ImprovementPct
}

// Conclusion is the final outcome of a session: every attempt ranked,
// the best one surfaced, and why the session ended.
type Conclusion struct {
	SessionID      string        `json:"session_id"`
	Status         SessionStatus `json:"status"`
	Rounds         int           `json:"rounds"`
	Best           *Attempt      `json:"best,omitempty"`
	Ranked         []Attempt     `json:"ranked,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	BaselineTimeMs float64       `json:"baseline_time_ms,omitempty"`
}
