/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/LedgerMCP/db"
)

// recordingSleep collects backoff waits instead of sleeping
type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

// newTestExecutor wires an executor against an upstream handler and a token
// endpoint that always succeeds
func newTestExecutor(t *testing.T, upstream http.Handler) (*Executor, db.Database, *db.ConnectionRecord, *recordingSleep) {
	t.Helper()

	upstreamServer := httptest.NewServer(upstream)
	t.Cleanup(upstreamServer.Close)

	var tokenCalls atomic.Int32
	tokenServer := tokenEndpoint(t, &tokenCalls, http.StatusOK, goodTokenBody)

	store := newTestStore(t)
	conn := seedConnection(t, store, "acme", "valid-access", "valid-refresh", time.Now().Add(time.Hour))

	config := testConfig(upstreamServer.URL, tokenServer.URL)
	manager := NewTokenManager(store, config, nil)

	sleeper := &recordingSleep{}
	executor := NewExecutor(manager, store, config, nil, WithSleepFunc(sleeper.sleep))
	return executor, store, conn, sleeper
}

func TestExecuteSuccess(t *testing.T) {
	executor, _, conn, _ := newTestExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer valid-access", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Correlation-ID"))
		assert.Equal(t, "/api/v1/123456/financial/GLAccounts", r.URL.Path)
		assert.Equal(t, "Code eq '1000'", r.URL.Query().Get("$filter"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"d":{"results":[{"Code":"1000"}]}}`))
	}))

	spec := RequestSpec{
		Path:  "/api/v1/123456/financial/GLAccounts",
		Query: map[string][]string{"$filter": {"Code eq '1000'"}},
	}

	body, err := executor.Execute(context.Background(), conn, spec)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"Code": "1000"}}, NormalizePage(body))
}

func TestExecuteThrottledBackoffBound(t *testing.T) {
	var attempts atomic.Int32
	executor, _, conn, sleeper := newTestExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := executor.Execute(context.Background(), conn, RequestSpec{Path: "/x"})
	require.Error(t, err)

	throttled, ok := AsThrottled(err)
	require.True(t, ok)
	assert.Equal(t, 3, throttled.Attempts)

	// Exactly 3 attempts, with a wait between attempts but not after the
	// last: two waits of 2s each
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.waits)
}

func TestExecuteThrottledRecoversMidBudget(t *testing.T) {
	var attempts atomic.Int32
	executor, _, conn, sleeper := newTestExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))

	_, err := executor.Execute(context.Background(), conn, RequestSpec{Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Len(t, sleeper.waits, 2)
}

func TestExecuteRetryAfterFallsBackToDefault(t *testing.T) {
	executor, _, conn, sleeper := newTestExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "soon")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := executor.Execute(context.Background(), conn, RequestSpec{Path: "/x"})
	require.Error(t, err)
	require.NotEmpty(t, sleeper.waits)
	assert.Equal(t, DefaultRetryAfter, sleeper.waits[0])
}

func TestExecute401ForcesOneRefresh(t *testing.T) {
	var attempts atomic.Int32
	executor, _, conn, _ := newTestExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// The refreshed token must be presented on the retry
		assert.Equal(t, "Bearer new-access", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"results":[{"ok":true}]}`))
	}))

	body, err := executor.Execute(context.Background(), conn, RequestSpec{Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Len(t, NormalizePage(body), 1)
}

func TestExecutePersistent401MarksRefreshFailed(t *testing.T) {
	executor, store, conn, _ := newTestExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := executor.Execute(context.Background(), conn, RequestSpec{Path: "/x"})
	require.Error(t, err)

	_, isAuthExpired := AsAuthExpired(err)
	assert.True(t, isAuthExpired)

	persisted, getErr := store.GetConnection("acme")
	require.NoError(t, getErr)
	assert.Equal(t, db.ConnectionRefreshFailed, persisted.Status)
}

func TestExecute5xxIsUpstreamUnavailable(t *testing.T) {
	executor, _, conn, _ := newTestExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := executor.Execute(context.Background(), conn, RequestSpec{Path: "/x"})
	require.Error(t, err)

	unavailable, ok := AsUpstreamUnavailable(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, unavailable.StatusCode)
}

func TestExecuteTransportErrorIsUpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	var tokenCalls atomic.Int32
	tokenServer := tokenEndpoint(t, &tokenCalls, http.StatusOK, goodTokenBody)

	store := newTestStore(t)
	conn := seedConnection(t, store, "acme", "valid-access", "valid-refresh", time.Now().Add(time.Hour))

	config := testConfig(server.URL, tokenServer.URL)
	executor := NewExecutor(NewTokenManager(store, config, nil), store, config, nil)

	_, err := executor.Execute(context.Background(), conn, RequestSpec{Path: "/x"})
	require.Error(t, err)
	_, ok := AsUpstreamUnavailable(err)
	assert.True(t, ok)
}

func TestExecuteOtherStatusIsUpstreamRejected(t *testing.T) {
	executor, _, conn, _ := newTestExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":{"value":"internal subscription detail"}}}`))
	}))

	_, err := executor.Execute(context.Background(), conn, RequestSpec{Path: "/api/v1/123456/financial/GLAccounts"})
	require.Error(t, err)

	rejected, ok := AsUpstreamRejected(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, rejected.StatusCode)

	// Message is derived from status and path category only; the upstream
	// body must never leak into it
	assert.Contains(t, err.Error(), "financial ledger data")
	assert.NotContains(t, err.Error(), "internal subscription detail")
}

func TestExecuteCancelledDuringBackoff(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(upstream.Close)

	var tokenCalls atomic.Int32
	tokenServer := tokenEndpoint(t, &tokenCalls, http.StatusOK, goodTokenBody)

	store := newTestStore(t)
	conn := seedConnection(t, store, "acme", "valid-access", "valid-refresh", time.Now().Add(time.Hour))

	config := testConfig(upstream.URL, tokenServer.URL)
	executor := NewExecutor(NewTokenManager(store, config, nil), store, config, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Execute(ctx, conn, RequestSpec{Path: "/x"})
	assert.ErrorIs(t, err, context.Canceled)
}
