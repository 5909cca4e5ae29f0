package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthServer(t *testing.T, storePing PingFunc, targetPing func(ctx context.Context) error) *httptest.Server {
	t.Helper()
	svc := &mockOptimizer{pingFn: targetPing}
	h := NewHandler(svc, &mockConnections{}, storePing, nil)
	srv := httptest.NewServer(NewRouter(h, RouterOptions{}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz_OK(t *testing.T) {
	srv := healthServer(t,
		func(context.Context) error { return nil },
		func(context.Context) error { return nil },
	)

	resp := getURL(t, srv.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out healthResponse
	decodeInto(t, resp, &out)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "ok", out.Store)
	assert.Equal(t, "ok", out.Target)
}

func TestHealthz_StoreDown(t *testing.T) {
	srv := healthServer(t,
		func(context.Context) error { return errors.New("database is locked") },
		func(context.Context) error { return nil },
	)

	resp := getURL(t, srv.URL+"/healthz")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var out healthResponse
	decodeInto(t, resp, &out)
	assert.Equal(t, "degraded", out.Status)
	assert.Contains(t, out.Store, "locked")
	assert.Equal(t, "ok", out.Target)
}

func TestHealthz_TargetDown(t *testing.T) {
	srv := healthServer(t,
		func(context.Context) error { return nil },
		func(context.Context) error { return errors.New("dial tcp: connection refused") },
	)

	resp := getURL(t, srv.URL+"/healthz")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var out healthResponse
	decodeInto(t, resp, &out)
	assert.Equal(t, "degraded", out.Status)
	assert.Equal(t, "ok", out.Store)
	assert.Contains(t, out.Target, "refused")
}

func TestHealthz_NilStorePing(t *testing.T) {
	srv := healthServer(t, nil, func(context.Context) error { return nil })

	resp := getURL(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
