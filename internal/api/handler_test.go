package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pg-advisor/internal/analyzer"
	"pg-advisor/internal/domain"
	"pg-advisor/internal/service"
	"pg-advisor/internal/sqlcheck"
)

// mockOptimizer implements Optimizer through settable hooks. Calls
// without a hook panic so tests notice unexpected traffic.
type mockOptimizer struct {
	validateFn func(sql string) (*sqlcheck.Result, error)
	analyzeFn  func(ctx context.Context, sql, connection string) (*analyzer.Report, error)
	optimizeFn func(ctx context.Context, sql, connection string) (*domain.Conclusion, error)
	asyncFn    func(ctx context.Context, sql, connection string) (string, error)
	cancelFn   func(id string) error
	sessionFn  func(ctx context.Context, id string) (*domain.Session, error)
	sessionsFn func(ctx context.Context, limit, offset int) ([]domain.Session, int64, error)
	attemptsFn func(ctx context.Context, id string) ([]domain.Attempt, error)
	recsFn     func(ctx context.Context, id string) ([]domain.Recommendation, error)
	pingFn     func(ctx context.Context) error

	invalidated []string
}

var _ Optimizer = (*mockOptimizer)(nil)

func (m *mockOptimizer) Validate(sql string) (*sqlcheck.Result, error) {
	if m.validateFn == nil {
		panic("unexpected call to mockOptimizer.Validate")
	}
	return m.validateFn(sql)
}

func (m *mockOptimizer) Analyze(ctx context.Context, sql, connection string) (*analyzer.Report, error) {
	if m.analyzeFn == nil {
		panic("unexpected call to mockOptimizer.Analyze")
	}
	return m.analyzeFn(ctx, sql, connection)
}

func (m *mockOptimizer) Optimize(ctx context.Context, sql, connection string) (*domain.Conclusion, error) {
	if m.optimizeFn == nil {
		panic("unexpected call to mockOptimizer.Optimize")
	}
	return m.optimizeFn(ctx, sql, connection)
}

func (m *mockOptimizer) OptimizeAsync(ctx context.Context, sql, connection string) (string, error) {
	if m.asyncFn == nil {
		panic("unexpected call to mockOptimizer.OptimizeAsync")
	}
	return m.asyncFn(ctx, sql, connection)
}

func (m *mockOptimizer) CancelSession(id string) error {
	if m.cancelFn == nil {
		panic("unexpected call to mockOptimizer.CancelSession")
	}
	return m.cancelFn(id)
}

func (m *mockOptimizer) Session(ctx context.Context, id string) (*domain.Session, error) {
	if m.sessionFn == nil {
		panic("unexpected call to mockOptimizer.Session")
	}
	return m.sessionFn(ctx, id)
}

func (m *mockOptimizer) Sessions(ctx context.Context, limit, offset int) ([]domain.Session, int64, error) {
	if m.sessionsFn == nil {
		panic("unexpected call to mockOptimizer.Sessions")
	}
	return m.sessionsFn(ctx, limit, offset)
}

func (m *mockOptimizer) SessionAttempts(ctx context.Context, id string) ([]domain.Attempt, error) {
	if m.attemptsFn == nil {
		panic("unexpected call to mockOptimizer.SessionAttempts")
	}
	return m.attemptsFn(ctx, id)
}

func (m *mockOptimizer) SessionRecommendations(ctx context.Context, id string) ([]domain.Recommendation, error) {
	if m.recsFn == nil {
		panic("unexpected call to mockOptimizer.SessionRecommendations")
	}
	return m.recsFn(ctx, id)
}

func (m *mockOptimizer) Invalidate(name string) {
	m.invalidated = append(m.invalidated, name)
}

func (m *mockOptimizer) Ping(ctx context.Context) error {
	if m.pingFn == nil {
		panic("unexpected call to mockOptimizer.Ping")
	}
	return m.pingFn(ctx)
}

// mockConnections implements Connections the same way.
type mockConnections struct {
	createFn func(ctx context.Context, req service.CreateConnectionRequest) (*domain.Connection, error)
	getFn    func(ctx context.Context, name string) (*domain.Connection, error)
	listFn   func(ctx context.Context) ([]domain.Connection, error)
	deleteFn func(ctx context.Context, name string) error
	testFn   func(ctx context.Context, name string) error
}

var _ Connections = (*mockConnections)(nil)

func (m *mockConnections) Create(ctx context.Context, req service.CreateConnectionRequest) (*domain.Connection, error) {
	if m.createFn == nil {
		panic("unexpected call to mockConnections.Create")
	}
	return m.createFn(ctx, req)
}

func (m *mockConnections) Get(ctx context.Context, name string) (*domain.Connection, error) {
	if m.getFn == nil {
		panic("unexpected call to mockConnections.Get")
	}
	return m.getFn(ctx, name)
}

func (m *mockConnections) List(ctx context.Context) ([]domain.Connection, error) {
	if m.listFn == nil {
		panic("unexpected call to mockConnections.List")
	}
	return m.listFn(ctx)
}

func (m *mockConnections) Delete(ctx context.Context, name string) error {
	if m.deleteFn == nil {
		panic("unexpected call to mockConnections.Delete")
	}
	return m.deleteFn(ctx, name)
}

func (m *mockConnections) Test(ctx context.Context, name string) error {
	if m.testFn == nil {
		panic("unexpected call to mockConnections.Test")
	}
	return m.testFn(ctx, name)
}

// newTestServer serves the full router over the given mocks.
func newTestServer(t *testing.T, svc *mockOptimizer, conns *mockConnections, opts RouterOptions) *httptest.Server {
	t.Helper()
	h := NewHandler(svc, conns, nil, nil)
	srv := httptest.NewServer(NewRouter(h, opts))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}
