/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package adapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/PivotLLM/LedgerMCP/db"
	"github.com/PivotLLM/LedgerMCP/global"
)

// Paginator fetches every page of a result set by following continuation
// references. Page fetches are strictly sequential; result sets are small
// (hundreds of records), so simplicity wins over pipelining.
type Paginator struct {
	executor *Executor
	logger   global.Logger
}

// NewPaginator creates a Paginator over the given executor
func NewPaginator(executor *Executor, logger global.Logger) *Paginator {
	return &Paginator{executor: executor, logger: logger}
}

// FetchAll executes the initial request and follows continuation references
// until the upstream signals the final page. On error or cancellation the
// records accumulated so far are returned with Partial set, alongside the
// error.
func (p *Paginator) FetchAll(ctx context.Context, conn *db.ConnectionRecord, spec RequestSpec) (*PageResult, error) {
	result := &PageResult{}
	seen := make(map[string]bool)

	raw, err := p.executor.Execute(ctx, conn, spec)
	if err != nil {
		result.Partial = true
		return result, err
	}

	for {
		result.Pages++
		result.Records = append(result.Records, NormalizePage(raw)...)

		cursor := NextCursor(raw)
		if cursor == "" {
			return result, nil
		}

		// Continuation references must be absolute: they already encode the
		// full query, so the next fetch bypasses request-spec construction
		if !strings.HasPrefix(cursor, "http://") && !strings.HasPrefix(cursor, "https://") {
			if p.logger != nil {
				p.logger.Warningf("Ignoring non-absolute continuation reference %q", cursor)
			}
			return result, nil
		}

		if seen[cursor] {
			// A repeating cursor would loop forever
			if p.logger != nil {
				p.logger.Warningf("Continuation reference repeated, aborting pagination: %s", cursor)
			}
			result.Partial = true
			return result, nil
		}
		seen[cursor] = true

		raw, err = p.executor.ExecuteURL(ctx, conn, http.MethodGet, cursor)
		if err != nil {
			result.Partial = true
			return result, err
		}
	}
}
