/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package global

import (
	"testing"
)

func TestParseToolName(t *testing.T) {
	tests := []struct {
		name       string
		toolName   string
		wantGroup  string
		wantEntity string
		wantErr    bool
	}{
		{
			name:       "ledger tool",
			toolName:   "ledger_accounts",
			wantGroup:  "ledger",
			wantEntity: "accounts",
			wantErr:    false,
		},
		{
			name:       "entity with multiple underscores",
			toolName:   "sales_invoice_lines",
			wantGroup:  "sales",
			wantEntity: "invoice_lines",
			wantErr:    false,
		},
		{
			name:       "single-word tool has no entity",
			toolName:   "divisions",
			wantGroup:  "divisions",
			wantEntity: "",
			wantErr:    false,
		},
		{
			name:     "empty tool name",
			toolName: "",
			wantErr:  true,
		},
		{
			name:     "underscore at start",
			toolName: "_accounts",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group, entity, err := ParseToolName(tt.toolName)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseToolName(%q) expected error, got none", tt.toolName)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseToolName(%q) unexpected error: %v", tt.toolName, err)
			}
			if group != tt.wantGroup || entity != tt.wantEntity {
				t.Errorf("ParseToolName(%q) = (%q, %q), want (%q, %q)",
					tt.toolName, group, entity, tt.wantGroup, tt.wantEntity)
			}
		})
	}
}

func TestBuildToolNameRoundTrip(t *testing.T) {
	tests := []struct {
		group  string
		entity string
		want   string
	}{
		{"ledger", "accounts", "ledger_accounts"},
		{"sales", "invoice_lines", "sales_invoice_lines"},
		{"divisions", "", "divisions"},
	}

	for _, tt := range tests {
		built := BuildToolName(tt.group, tt.entity)
		if built != tt.want {
			t.Errorf("BuildToolName(%q, %q) = %q, want %q", tt.group, tt.entity, built, tt.want)
		}

		group, entity, err := ParseToolName(built)
		if err != nil {
			t.Fatalf("ParseToolName(%q) unexpected error: %v", built, err)
		}
		if group != tt.group || entity != tt.entity {
			t.Errorf("round trip of (%q, %q) came back as (%q, %q)", tt.group, tt.entity, group, entity)
		}
	}
}

func TestBoolOption(t *testing.T) {
	options := map[string]any{
		"enabled":  true,
		"disabled": false,
		"wrong":    "yes",
	}

	if !BoolOption(options, "enabled", false) {
		t.Error("BoolOption should return the stored true value")
	}
	if BoolOption(options, "disabled", true) {
		t.Error("BoolOption should return the stored false value over the fallback")
	}
	if !BoolOption(options, "wrong", true) {
		t.Error("BoolOption should fall back when the value is not a boolean")
	}
	if BoolOption(options, "absent", false) {
		t.Error("BoolOption should fall back when the key is absent")
	}
}

func TestStringSliceOption(t *testing.T) {
	options := map[string]any{
		"fields": []interface{}{"a", float64(2), "b"},
		"wrong":  "not-a-list",
	}

	got := StringSliceOption(options, "fields")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("StringSliceOption skipping non-strings = %v, want [a b]", got)
	}
	if StringSliceOption(options, "wrong") != nil {
		t.Error("StringSliceOption should return nil for non-list values")
	}
	if StringSliceOption(options, "absent") != nil {
		t.Error("StringSliceOption should return nil for absent keys")
	}
}
