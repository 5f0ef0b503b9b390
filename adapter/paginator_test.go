/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/LedgerMCP/db"
)

// pagedUpstream serves a fixed sequence of pages chained by __next cursors
type pagedUpstream struct {
	server *httptest.Server
	pages  []func(baseURL string) map[string]any
	hits   atomic.Int32
}

func newPagedUpstream(t *testing.T, pages []func(baseURL string) map[string]any) *pagedUpstream {
	t.Helper()
	u := &pagedUpstream{pages: pages}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		index := 0
		if page := r.URL.Query().Get("page"); page != "" {
			_, _ = fmt.Sscanf(page, "%d", &index)
		}
		require.Less(t, index, len(u.pages), "fetched past the final page")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(u.pages[index](u.server.URL))
	}))
	t.Cleanup(u.server.Close)
	return u
}

func newTestPaginator(t *testing.T, baseURL string) (*Paginator, *db.ConnectionRecord) {
	t.Helper()

	var tokenCalls atomic.Int32
	tokenServer := tokenEndpoint(t, &tokenCalls, http.StatusOK, goodTokenBody)

	store := newTestStore(t)
	conn := seedConnection(t, store, "acme", "valid-access", "valid-refresh", time.Now().Add(time.Hour))

	config := testConfig(baseURL, tokenServer.URL)
	executor := NewExecutor(NewTokenManager(store, config, nil), store, config, nil)
	return NewPaginator(executor, nil), conn
}

func TestFetchAllThreePages(t *testing.T) {
	record := func(n string) map[string]any { return map[string]any{"n": n} }

	upstream := newPagedUpstream(t, []func(string) map[string]any{
		func(base string) map[string]any {
			return map[string]any{"d": map[string]any{
				"results": []any{record("a"), record("b")},
				"__next":  base + "/?page=1",
			}}
		},
		func(base string) map[string]any {
			return map[string]any{"d": map[string]any{
				"results": []any{record("c")},
				"__next":  base + "/?page=2",
			}}
		},
		func(string) map[string]any {
			// Final page: no continuation reference
			return map[string]any{"d": map[string]any{
				"results": []any{record("d")},
			}}
		},
	})

	paginator, conn := newTestPaginator(t, upstream.server.URL)

	result, err := paginator.FetchAll(context.Background(), conn, RequestSpec{Path: "/?page=0"})
	require.NoError(t, err)

	assert.False(t, result.Partial)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, int32(3), upstream.hits.Load(), "no duplicate fetch after the final page")

	var names []string
	for _, r := range result.Records {
		names = append(names, r.(map[string]any)["n"].(string))
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, names)
}

func TestFetchAllRepeatedCursorGuard(t *testing.T) {
	upstream := newPagedUpstream(t, []func(string) map[string]any{
		func(base string) map[string]any {
			return map[string]any{
				"results": []any{map[string]any{"n": "a"}},
				"__next":  base + "/?page=1",
			}
		},
		func(base string) map[string]any {
			// Points back at itself; would loop forever without the guard
			return map[string]any{
				"results": []any{map[string]any{"n": "b"}},
				"__next":  base + "/?page=1",
			}
		},
	})

	paginator, conn := newTestPaginator(t, upstream.server.URL)

	result, err := paginator.FetchAll(context.Background(), conn, RequestSpec{Path: "/?page=0"})
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Len(t, result.Records, 2)
	assert.Equal(t, int32(2), upstream.hits.Load())
}

func TestFetchAllMidRunFailureReturnsPartial(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"results":[{"n":"a"}],"__next":%q}`, "http://"+r.Host+"/?page=1")
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	paginator, conn := newTestPaginator(t, server.URL)

	result, err := paginator.FetchAll(context.Background(), conn, RequestSpec{Path: "/?page=0"})
	require.Error(t, err)
	_, ok := AsUpstreamUnavailable(err)
	assert.True(t, ok)

	// Accumulated records survive the failure, flagged as partial
	assert.True(t, result.Partial)
	assert.Len(t, result.Records, 1)
}

func TestFetchAllNonAbsoluteCursorStops(t *testing.T) {
	upstream := newPagedUpstream(t, []func(string) map[string]any{
		func(string) map[string]any {
			return map[string]any{
				"results": []any{map[string]any{"n": "a"}},
				"__next":  "/relative/cursor",
			}
		},
	})

	paginator, conn := newTestPaginator(t, upstream.server.URL)

	result, err := paginator.FetchAll(context.Background(), conn, RequestSpec{Path: "/?page=0"})
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
	assert.Equal(t, int32(1), upstream.hits.Load())
}
