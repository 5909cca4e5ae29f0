package service

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-advisor/internal/domain"
	"pg-advisor/internal/optimizer"
	"pg-advisor/internal/pgdb"
	"pg-advisor/internal/testutil"
)

type fakeRunner struct {
	runFn      func(ctx context.Context, target optimizer.Target, query string) (*domain.Conclusion, error)
	runAsyncFn func(target optimizer.Target, query string) (string, error)
	cancelFn   func(id string) error
	statusFn   func(id string) (domain.SessionState, bool)
}

func (f *fakeRunner) Run(ctx context.Context, target optimizer.Target, query string) (*domain.Conclusion, error) {
	if f.runFn == nil {
		panic("unexpected call to Run")
	}
	return f.runFn(ctx, target, query)
}

func (f *fakeRunner) RunAsync(target optimizer.Target, query string) (string, error) {
	if f.runAsyncFn == nil {
		panic("unexpected call to RunAsync")
	}
	return f.runAsyncFn(target, query)
}

func (f *fakeRunner) Cancel(id string) error {
	if f.cancelFn == nil {
		panic("unexpected call to Cancel")
	}
	return f.cancelFn(id)
}

func (f *fakeRunner) Status(id string) (domain.SessionState, bool) {
	if f.statusFn == nil {
		return "", false
	}
	return f.statusFn(id)
}

// mockOpen returns an OpenTargetFunc backed by sqlmock pools and counts
// the dials.
func mockOpen(t *testing.T, dials *[]string) OpenTargetFunc {
	t.Helper()
	return func(dsn string) (*pgdb.DB, error) {
		*dials = append(*dials, dsn)
		pool, _, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = pool.Close() })
		return pgdb.FromSQL(pool, pgdb.Options{}), nil
	}
}

func newOptimizeService(t *testing.T, runner Runner, conns *ConnectionService, dials *[]string) *OptimizeService {
	t.Helper()
	svc := NewOptimizeService(runner, conns, &testutil.MockSessionRepo{}, OptimizeOptions{
		DefaultDSN: "postgres://advisor@localhost:5432/shop",
		Open:       mockOpen(t, dials),
	})
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestOptimize_DefaultTarget(t *testing.T) {
	var dials []string
	var gotTarget optimizer.Target
	runner := &fakeRunner{
		runFn: func(ctx context.Context, target optimizer.Target, query string) (*domain.Conclusion, error) {
			gotTarget = target
			return &domain.Conclusion{Status: domain.SessionCompleted}, nil
		},
	}
	svc := newOptimizeService(t, runner, nil, &dials)

	conclusion, err := svc.Optimize(context.Background(), "SELECT 1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, conclusion.Status)

	assert.Equal(t, "default", gotTarget.Connection)
	assert.NotNil(t, gotTarget.Analyzer)
	assert.NotNil(t, gotTarget.Sandboxes)
	assert.Equal(t, []string{"postgres://advisor@localhost:5432/shop"}, dials)
}

func TestOptimize_NoTargetConfigured(t *testing.T) {
	var dials []string
	svc := NewOptimizeService(&fakeRunner{}, nil, &testutil.MockSessionRepo{}, OptimizeOptions{
		Open: mockOpen(t, &dials),
	})
	t.Cleanup(func() { _ = svc.Close() })

	_, err := svc.Optimize(context.Background(), "SELECT 1", "")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, dials)
}

func TestOptimize_NamedConnection(t *testing.T) {
	enc := newEncryptor(t)
	repo := &testutil.MockConnectionRepo{
		GetByNameFn: func(ctx context.Context, name string) (*domain.Connection, error) {
			if name != "replica" {
				return nil, domain.ErrNotFound("connection %q not found", name)
			}
			return sealedConnection(t, enc, name, "hunter2"), nil
		},
	}
	conns := NewConnectionService(repo, enc, nil, nil)

	var dials []string
	var gotTarget optimizer.Target
	runner := &fakeRunner{
		runFn: func(ctx context.Context, target optimizer.Target, query string) (*domain.Conclusion, error) {
			gotTarget = target
			return &domain.Conclusion{}, nil
		},
	}
	svc := newOptimizeService(t, runner, conns, &dials)

	_, err := svc.Optimize(context.Background(), "SELECT 1", "replica")
	require.NoError(t, err)

	assert.Equal(t, "replica", gotTarget.Connection)
	require.Len(t, dials, 1)
	assert.Contains(t, dials[0], "db.internal:5432")
	assert.Contains(t, dials[0], "hunter2", "the pool dials with the opened password")
}

func TestOptimize_UnknownConnection(t *testing.T) {
	enc := newEncryptor(t)
	repo := &testutil.MockConnectionRepo{
		GetByNameFn: func(ctx context.Context, name string) (*domain.Connection, error) {
			return nil, domain.ErrNotFound("connection %q not found", name)
		},
	}
	conns := NewConnectionService(repo, enc, nil, nil)

	var dials []string
	svc := newOptimizeService(t, &fakeRunner{}, conns, &dials)

	_, err := svc.Optimize(context.Background(), "SELECT 1", "ghost")
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestOptimize_PoolReuse(t *testing.T) {
	var dials []string
	runner := &fakeRunner{
		runFn: func(ctx context.Context, target optimizer.Target, query string) (*domain.Conclusion, error) {
			return &domain.Conclusion{}, nil
		},
	}
	svc := newOptimizeService(t, runner, nil, &dials)
	ctx := context.Background()

	_, err := svc.Optimize(ctx, "SELECT 1", "")
	require.NoError(t, err)
	_, err = svc.Optimize(ctx, "SELECT 2", "")
	require.NoError(t, err)

	assert.Len(t, dials, 1, "the target pool is opened once and reused")
}

func TestInvalidate_ReopensPool(t *testing.T) {
	var dials []string
	runner := &fakeRunner{
		runFn: func(ctx context.Context, target optimizer.Target, query string) (*domain.Conclusion, error) {
			return &domain.Conclusion{}, nil
		},
	}
	svc := newOptimizeService(t, runner, nil, &dials)
	ctx := context.Background()

	_, err := svc.Optimize(ctx, "SELECT 1", "")
	require.NoError(t, err)

	svc.Invalidate("default")

	_, err = svc.Optimize(ctx, "SELECT 1", "")
	require.NoError(t, err)
	assert.Len(t, dials, 2)
}

func TestOptimizeAsync(t *testing.T) {
	var dials []string
	runner := &fakeRunner{
		runAsyncFn: func(target optimizer.Target, query string) (string, error) {
			assert.Equal(t, "default", target.Connection)
			return "session-42", nil
		},
	}
	svc := newOptimizeService(t, runner, nil, &dials)

	id, err := svc.OptimizeAsync(context.Background(), "SELECT 1", "")
	require.NoError(t, err)
	assert.Equal(t, "session-42", id)
}

func TestSession_ReportsLiveState(t *testing.T) {
	sessions := &testutil.MockSessionRepo{
		GetByIDFn: func(ctx context.Context, id string) (*domain.Session, error) {
			return &domain.Session{ID: id, State: domain.StateTesting}, nil
		},
	}
	runner := &fakeRunner{
		statusFn: func(id string) (domain.SessionState, bool) {
			return domain.StateRefining, true
		},
	}
	svc := NewOptimizeService(runner, nil, sessions, OptimizeOptions{})
	t.Cleanup(func() { _ = svc.Close() })

	sess, err := svc.Session(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRefining, sess.State, "a running session reports its live state")
}

func TestSession_StoreStateWhenNotRunning(t *testing.T) {
	sessions := &testutil.MockSessionRepo{
		GetByIDFn: func(ctx context.Context, id string) (*domain.Session, error) {
			return &domain.Session{ID: id, State: domain.StateConcluded, Status: domain.SessionCompleted}, nil
		},
	}
	svc := NewOptimizeService(&fakeRunner{}, nil, sessions, OptimizeOptions{})
	t.Cleanup(func() { _ = svc.Close() })

	sess, err := svc.Session(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateConcluded, sess.State)
}

func TestSessionAttempts_UnknownSession(t *testing.T) {
	sessions := &testutil.MockSessionRepo{
		GetByIDFn: func(ctx context.Context, id string) (*domain.Session, error) {
			return nil, domain.ErrNotFound("session %q not found", id)
		},
	}
	svc := NewOptimizeService(&fakeRunner{}, nil, sessions, OptimizeOptions{})
	t.Cleanup(func() { _ = svc.Close() })

	_, err := svc.SessionAttempts(context.Background(), "ghost")
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCancelSession(t *testing.T) {
	canceled := ""
	runner := &fakeRunner{
		cancelFn: func(id string) error {
			canceled = id
			return nil
		},
	}
	svc := NewOptimizeService(runner, nil, &testutil.MockSessionRepo{}, OptimizeOptions{})
	t.Cleanup(func() { _ = svc.Close() })

	require.NoError(t, svc.CancelSession("s-1"))
	assert.Equal(t, "s-1", canceled)
}
