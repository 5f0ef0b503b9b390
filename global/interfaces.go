/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package global

import "fmt"

// DumpTools enables dumping of full tool definitions in the list-tools hook
// when debug mode is active.
const DumpTools = false

// Logger defines the logging interface used throughout LedgerMCP.
// It matches the mlogger API so the concrete logger can be passed directly.
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Notice(msg string)
	Noticef(format string, args ...interface{})
	Warning(msg string)
	Warningf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
	Fatal(msg string)
	Fatalf(format string, args ...interface{})
	Close()
}

// Parameter represents a parameter for a tool with rich metadata
type Parameter struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Required    bool          `json:"required"`
	Type        string        `json:"type"`    // "string", "number", "boolean", "array", "object"
	Default     interface{}   `json:"default"` // Default value
	Enum        []interface{} `json:"enum"`    // Valid values
	Examples    []interface{} `json:"examples"`
}

// EnhancedDescription generates a description with constraint information
func (p Parameter) EnhancedDescription() string {
	desc := p.Description

	// Add default value
	if p.Default != nil {
		desc += fmt.Sprintf(" (default: %v)", p.Default)
	}

	// Add valid values (limit to reasonable length)
	if len(p.Enum) > 0 && len(p.Enum) <= 10 {
		desc += fmt.Sprintf(" (valid: %v)", p.Enum)
	} else if len(p.Enum) > 10 {
		desc += fmt.Sprintf(" (valid values: %d options available)", len(p.Enum))
	}

	return desc
}

//
// Tools
//

// ToolDefinition represents the structure of a tool
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []Parameter
	Handler     ToolHandler
}

// ToolHandler defines the function signature for our tool handler
type ToolHandler func(options map[string]any) (string, error)

// ToolProvider defines an interface for providing tools
type ToolProvider interface {
	RegisterTools() []ToolDefinition
}

// NewTools is a helper function that returns an empty slice of ToolDefinition
//
//goland:noinspection GoUnusedExportedFunction
func NewTools() []ToolDefinition {
	return []ToolDefinition{}
}

//
// Context Keys for shared usage across packages
//

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	// ClientContextKey is the key used to store the authenticated client context
	ClientContextKey ContextKey = "client_context"
	// ConnectionIDKey is the key used to store the connection id in request contexts
	ConnectionIDKey ContextKey = "connection_id"
	// ToolNameKey is the key used to store the MCP tool name in request contexts
	ToolNameKey ContextKey = "tool_name"
)
