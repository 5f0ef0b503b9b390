/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePageResultsArray(t *testing.T) {
	a := map[string]any{"Code": "1000"}
	b := map[string]any{"Code": "1100"}

	records := NormalizePage(map[string]any{
		"results": []any{a, b},
		"__count": "2",
	})

	assert.Equal(t, []any{a, b}, records)
}

func TestNormalizePageDEnvelope(t *testing.T) {
	a := map[string]any{"Code": "1000"}

	records := NormalizePage(map[string]any{
		"d": map[string]any{
			"results": []any{a},
			"__next":  "https://example.test/next",
		},
	})

	assert.Equal(t, []any{a}, records)
}

func TestNormalizePageNumericKeys(t *testing.T) {
	a := map[string]any{"n": "a"}
	b := map[string]any{"n": "b"}
	c := map[string]any{"n": "c"}

	records := NormalizePage(map[string]any{
		"2": c,
		"0": a,
		"1": b,
	})

	assert.Equal(t, []any{a, b, c}, records)
}

func TestNormalizePageNumericNotLexicalOrder(t *testing.T) {
	x := map[string]any{"n": "x"}
	y := map[string]any{"n": "y"}

	// A lexical sort would put "10" before "2"
	records := NormalizePage(map[string]any{
		"10": x,
		"2":  y,
	})

	assert.Equal(t, []any{y, x}, records)
}

func TestNormalizePageNonCanonicalNumericKeys(t *testing.T) {
	// "+1" and "007" parse as integers but are not canonical indices; an
	// object carrying only such keys is a single entity, not a record list
	entity := map[string]any{
		"+1":  map[string]any{"n": "x"},
		"007": map[string]any{"n": "y"},
	}

	records := NormalizePage(entity)

	assert.Equal(t, []any{entity}, records)
}

func TestNormalizePageExcludesReservedKeys(t *testing.T) {
	a := map[string]any{"n": "a"}

	records := NormalizePage(map[string]any{
		"0":         a,
		"__next":    "https://example.test/next",
		"__count":   "57",
		"count":     float64(57),
		"skiptoken": "abc",
	})

	assert.Equal(t, []any{a}, records)
}

func TestNormalizePageSingleEntityFallback(t *testing.T) {
	entity := map[string]any{
		"Code":        "1000",
		"Description": "Cash",
	}

	records := NormalizePage(entity)

	assert.Equal(t, []any{entity}, records)
}

func TestNormalizePageMetadataOnlyIsEmpty(t *testing.T) {
	records := NormalizePage(map[string]any{
		"__count":   "0",
		"skiptoken": "abc",
	})

	assert.Empty(t, records)
}

func TestNormalizePageEmptyBody(t *testing.T) {
	assert.Empty(t, NormalizePage(map[string]any{}))
}

func TestNextCursor(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{
			name: "top level",
			body: map[string]any{"__next": "https://example.test/page2"},
			want: "https://example.test/page2",
		},
		{
			name: "inside d envelope",
			body: map[string]any{"d": map[string]any{"__next": "https://example.test/page3"}},
			want: "https://example.test/page3",
		},
		{
			name: "absent means final page",
			body: map[string]any{"results": []any{}},
			want: "",
		},
		{
			name: "non-string cursor ignored",
			body: map[string]any{"__next": float64(5)},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextCursor(tt.body))
		})
	}
}
