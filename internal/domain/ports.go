package domain

import "context"

// SessionRepository persists optimization sessions, their tested
// attempts, and the recommendations the advisors produced.
// Implemented by store.SessionRepo.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	UpdateState(ctx context.Context, id string, state SessionState) error
	Conclude(ctx context.Context, id string, c *Conclusion) error
	GetByID(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context, limit, offset int) ([]Session, int64, error)
	InsertAttempt(ctx context.Context, a *Attempt) error
	ListAttempts(ctx context.Context, sessionID string) ([]Attempt, error)
	InsertRecommendations(ctx context.Context, sessionID string, recs []Recommendation) error
	ListRecommendations(ctx context.Context, sessionID string) ([]Recommendation, error)
}

// ConnectionRepository persists stored target-database connections.
// Implemented by store.ConnectionRepo.
type ConnectionRepository interface {
	Create(ctx context.Context, c *Connection) error
	GetByName(ctx context.Context, name string) (*Connection, error)
	List(ctx context.Context) ([]Connection, error)
	Delete(ctx context.Context, name string) error
}
