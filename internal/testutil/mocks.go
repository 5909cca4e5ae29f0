// Package testutil provides shared mock implementations of the domain
// repository interfaces for use in tests across the codebase.
package testutil

import (
	"context"

	"pg-advisor/internal/domain"
)

// === Connection Repository Mock ===

// MockConnectionRepo implements domain.ConnectionRepository for testing.
// Create collects its argument by default; the other methods panic
// unless hooked.
type MockConnectionRepo struct {
	CreateFn    func(ctx context.Context, c *domain.Connection) error
	GetByNameFn func(ctx context.Context, name string) (*domain.Connection, error)
	ListFn      func(ctx context.Context) ([]domain.Connection, error)
	DeleteFn    func(ctx context.Context, name string) error

	Created []*domain.Connection // collected creates for assertions
}

var _ domain.ConnectionRepository = (*MockConnectionRepo)(nil)

// Create implements the interface method for testing.
func (m *MockConnectionRepo) Create(ctx context.Context, c *domain.Connection) error {
	if m.CreateFn != nil {
		if err := m.CreateFn(ctx, c); err != nil {
			return err
		}
	}
	m.Created = append(m.Created, c)
	return nil
}

// GetByName implements the interface method for testing.
func (m *MockConnectionRepo) GetByName(ctx context.Context, name string) (*domain.Connection, error) {
	if m.GetByNameFn != nil {
		return m.GetByNameFn(ctx, name)
	}
	panic("unexpected call to MockConnectionRepo.GetByName")
}

// List implements the interface method for testing.
func (m *MockConnectionRepo) List(ctx context.Context) ([]domain.Connection, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}
	panic("unexpected call to MockConnectionRepo.List")
}

// Delete implements the interface method for testing.
func (m *MockConnectionRepo) Delete(ctx context.Context, name string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, name)
	}
	panic("unexpected call to MockConnectionRepo.Delete")
}

// === Session Repository Mock ===

// MockSessionRepo implements domain.SessionRepository for testing.
// The write methods collect their arguments by default; the read
// methods panic unless hooked.
type MockSessionRepo struct {
	CreateFn                func(ctx context.Context, s *domain.Session) error
	UpdateStateFn           func(ctx context.Context, id string, state domain.SessionState) error
	ConcludeFn              func(ctx context.Context, id string, c *domain.Conclusion) error
	GetByIDFn               func(ctx context.Context, id string) (*domain.Session, error)
	ListFn                  func(ctx context.Context, limit, offset int) ([]domain.Session, int64, error)
	InsertAttemptFn         func(ctx context.Context, a *domain.Attempt) error
	ListAttemptsFn          func(ctx context.Context, sessionID string) ([]domain.Attempt, error)
	InsertRecommendationsFn func(ctx context.Context, sessionID string, recs []domain.Recommendation) error
	ListRecommendationsFn   func(ctx context.Context, sessionID string) ([]domain.Recommendation, error)

	Sessions    []*domain.Session
	States      []domain.SessionState
	Attempts    []*domain.Attempt
	Recs        map[string][]domain.Recommendation
	Conclusions []*domain.Conclusion
}

var _ domain.SessionRepository = (*MockSessionRepo)(nil)

// Create implements the interface method for testing.
func (m *MockSessionRepo) Create(ctx context.Context, s *domain.Session) error {
	if m.CreateFn != nil {
		if err := m.CreateFn(ctx, s); err != nil {
			return err
		}
	}
	m.Sessions = append(m.Sessions, s)
	return nil
}

// UpdateState implements the interface method for testing.
func (m *MockSessionRepo) UpdateState(ctx context.Context, id string, state domain.SessionState) error {
	if m.UpdateStateFn != nil {
		if err := m.UpdateStateFn(ctx, id, state); err != nil {
			return err
		}
	}
	m.States = append(m.States, state)
	return nil
}

// Conclude implements the interface method for testing.
func (m *MockSessionRepo) Conclude(ctx context.Context, id string, c *domain.Conclusion) error {
	if m.ConcludeFn != nil {
		if err := m.ConcludeFn(ctx, id, c); err != nil {
			return err
		}
	}
	m.Conclusions = append(m.Conclusions, c)
	return nil
}

// GetByID implements the interface method for testing.
func (m *MockSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	panic("unexpected call to MockSessionRepo.GetByID")
}

// List implements the interface method for testing.
func (m *MockSessionRepo) List(ctx context.Context, limit, offset int) ([]domain.Session, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, limit, offset)
	}
	panic("unexpected call to MockSessionRepo.List")
}

// InsertAttempt implements the interface method for testing.
func (m *MockSessionRepo) InsertAttempt(ctx context.Context, a *domain.Attempt) error {
	if m.InsertAttemptFn != nil {
		if err := m.InsertAttemptFn(ctx, a); err != nil {
			return err
		}
	}
	m.Attempts = append(m.Attempts, a)
	return nil
}

// ListAttempts implements the interface method for testing.
func (m *MockSessionRepo) ListAttempts(ctx context.Context, sessionID string) ([]domain.Attempt, error) {
	if m.ListAttemptsFn != nil {
		return m.ListAttemptsFn(ctx, sessionID)
	}
	panic("unexpected call to MockSessionRepo.ListAttempts")
}

// InsertRecommendations implements the interface method for testing.
func (m *MockSessionRepo) InsertRecommendations(ctx context.Context, sessionID string, recs []domain.Recommendation) error {
	if m.InsertRecommendationsFn != nil {
		if err := m.InsertRecommendationsFn(ctx, sessionID, recs); err != nil {
			return err
		}
	}
	if m.Recs == nil {
		m.Recs = make(map[string][]domain.Recommendation)
	}
	m.Recs[sessionID] = append(m.Recs[sessionID], recs...)
	return nil
}

// ListRecommendations implements the interface method for testing.
func (m *MockSessionRepo) ListRecommendations(ctx context.Context, sessionID string) ([]domain.Recommendation, error) {
	if m.ListRecommendationsFn != nil {
		return m.ListRecommendationsFn(ctx, sessionID)
	}
	panic("unexpected call to MockSessionRepo.ListRecommendations")
}
