/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package adapter

import (
	"sort"
	"strconv"
)

// reservedKeys are paging-envelope metadata, never records
var reservedKeys = map[string]bool{
	"__next":    true,
	"__count":   true,
	"count":     true,
	"skiptoken": true,
}

// NormalizePage converts one paged-list response body into an ordered list
// of records. The upstream's envelope is inconsistent: a conforming page
// nests records under a "results" array, a non-conforming page exposes them
// as object properties keyed by their numeric string index alongside
// metadata keys. A body matching neither shape but carrying entity fields is
// treated as a single record.
func NormalizePage(raw map[string]any) []any {
	inner := unwrapEnvelope(raw)

	switch v := inner.(type) {
	case []any:
		return v
	case map[string]any:
		return normalizeObject(v)
	default:
		return []any{}
	}
}

// unwrapEnvelope strips the optional "d" wrapper
func unwrapEnvelope(raw map[string]any) any {
	if d, ok := raw["d"]; ok {
		switch v := d.(type) {
		case map[string]any, []any:
			return v
		}
	}
	return raw
}

func normalizeObject(obj map[string]any) []any {
	if results, ok := obj["results"].([]any); ok {
		return results
	}

	// Collect properties keyed by non-negative integer strings. Numeric
	// sort is required: a plain string sort would order "10" before "2".
	type indexed struct {
		index int
		value any
	}
	var numbered []indexed
	hasEntityFields := false

	for key, value := range obj {
		if reservedKeys[key] {
			continue
		}
		// Round-trip check so "+1" and "007" count as entity fields, not
		// record indices
		if index, err := strconv.Atoi(key); err == nil && index >= 0 && strconv.Itoa(index) == key {
			numbered = append(numbered, indexed{index: index, value: value})
			continue
		}
		hasEntityFields = true
	}

	if len(numbered) > 0 {
		sort.Slice(numbered, func(i, j int) bool {
			return numbered[i].index < numbered[j].index
		})
		records := make([]any, len(numbered))
		for i, entry := range numbered {
			records[i] = entry.value
		}
		return records
	}

	if hasEntityFields {
		return []any{obj}
	}

	return []any{}
}

// NextCursor extracts the continuation reference from a raw response body,
// or "" when the upstream signals the final page
func NextCursor(raw map[string]any) string {
	if d, ok := raw["d"].(map[string]any); ok {
		if next, ok := d["__next"].(string); ok {
			return next
		}
	}
	if next, ok := raw["__next"].(string); ok {
		return next
	}
	return ""
}
