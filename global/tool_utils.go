/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package global

import (
	"fmt"
	"strings"
)

// ParseToolName extracts the report group and entity from a tool name.
// Tool names follow the format: {group}_{entity}
// For example: "ledger_accounts" -> ("ledger", "accounts")
func ParseToolName(toolName string) (group string, entity string, err error) {
	if toolName == "" {
		return "", "", fmt.Errorf("tool name cannot be empty")
	}

	// Find the first underscore to split group from entity
	firstUnderscore := strings.Index(toolName, "_")
	if firstUnderscore == -1 {
		// Single-word tools (e.g. "divisions") have no entity component
		return toolName, "", nil
	}

	group = toolName[:firstUnderscore]
	entity = toolName[firstUnderscore+1:]

	if group == "" {
		return "", "", fmt.Errorf("group cannot be empty in tool: %s", toolName)
	}

	return group, entity, nil
}

// BuildToolName constructs a tool name from a group and entity
func BuildToolName(group, entity string) string {
	if entity == "" {
		return group
	}
	return fmt.Sprintf("%s_%s", group, entity)
}

// StringOption extracts a string option from a tool options map,
// returning the fallback when the key is absent or not a string.
func StringOption(options map[string]any, key, fallback string) string {
	if v, ok := options[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// BoolOption extracts a boolean option from a tool options map,
// returning the fallback when the key is absent or not a boolean.
func BoolOption(options map[string]any, key string, fallback bool) bool {
	if v, ok := options[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// IntOption extracts an integer option from a tool options map. JSON numbers
// arrive as float64, so both forms are accepted.
func IntOption(options map[string]any, key string, fallback int) int {
	if v, ok := options[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return fallback
}

// StringSliceOption extracts a list-of-strings option from a tool options map.
// Non-string elements are skipped.
func StringSliceOption(options map[string]any, key string) []string {
	v, ok := options[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
