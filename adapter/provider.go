/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

// Package adapter implements the authenticated request core between the MCP
// tool surface and the upstream accounting platform: token lifecycle,
// rate-limit backoff, pagination, response normalization, and output
// sanitization.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PivotLLM/LedgerMCP/db"
	"github.com/PivotLLM/LedgerMCP/global"
)

// toolCallTimeout bounds one whole tool call including all page fetches
const toolCallTimeout = 2 * time.Minute

// toolSpec is one row of the tool registry: a small configuration record
// instead of a type per tool
type toolSpec struct {
	name        string
	description string

	// path is the endpoint path relative to the division segment
	path string

	// defaultSelect limits the upstream payload when the caller supplies
	// no field selection
	defaultSelect []string

	// transform is an optional jq expression applied to the sanitized
	// records before they are returned
	transform string
}

// toolRegistry lists every business tool. The shared handler below does all
// the work; each entry only describes the query.
var toolRegistry = []toolSpec{
	{
		name:          "ledger_accounts",
		description:   "List general ledger accounts (chart of accounts) for an administration",
		path:          "/financial/GLAccounts",
		defaultSelect: []string{"Code", "Description", "Type", "TypeDescription", "BalanceSide"},
	},
	{
		name:          "journal_entries",
		description:   "List journal transaction lines for an administration",
		path:          "/financialtransaction/TransactionLines",
		defaultSelect: []string{"Date", "GLAccountCode", "Description", "AmountDC", "InvoiceNumber", "JournalCode"},
	},
	{
		name:          "sales_invoices",
		description:   "List sales invoices for an administration",
		path:          "/salesinvoice/SalesInvoices",
		defaultSelect: []string{"InvoiceDate", "InvoiceNumber", "InvoiceToName", "AmountDC", "Status", "Description"},
	},
	{
		name:          "relations",
		description:   "List relations (customers and suppliers) for an administration",
		path:          "/crm/Accounts",
		defaultSelect: []string{"Code", "Name", "City", "Country", "Status", "IsSupplier"},
	},
	{
		name:          "inventory_items",
		description:   "List inventory items for an administration",
		path:          "/logistics/Items",
		defaultSelect: []string{"Code", "Description", "CostPriceStandard", "SalesPrice", "Stock", "Unit"},
	},
	{
		name:          "projects",
		description:   "List projects for an administration",
		path:          "/project/Projects",
		defaultSelect: []string{"Code", "Description", "StartDate", "EndDate", "Type"},
	},
	{
		name:          "divisions",
		description:   "List the administrations (divisions) available under a connection",
		path:          "/hrm/Divisions",
		defaultSelect: []string{"Code", "Description", "Main", "Country"},
		transform:     "map({code: .Code, description: .Description, default: (.Main // false)})",
	},
}

// Provider exposes the business tools as a global.ToolProvider
type Provider struct {
	store         db.Database
	config        *Config
	paginator     *Paginator
	logger        global.Logger
	defaultPolicy Policy
}

// ProviderOption configures a Provider
type ProviderOption func(*Provider)

// WithDefaultPolicy overrides the default sanitization policy
func WithDefaultPolicy(policy Policy) ProviderOption {
	return func(p *Provider) {
		p.defaultPolicy = policy
	}
}

// WithPaginator injects a pre-built paginator (used in tests)
func WithPaginator(paginator *Paginator) ProviderOption {
	return func(p *Provider) {
		p.paginator = paginator
	}
}

// NewProvider wires the full request core: token manager, executor, and
// paginator over the given store and configuration
func NewProvider(store db.Database, config *Config, logger global.Logger, options ...ProviderOption) *Provider {
	p := &Provider{
		store:         store,
		config:        config,
		logger:        logger,
		defaultPolicy: DefaultPolicy(),
	}
	for _, option := range options {
		option(p)
	}
	if p.paginator == nil {
		tokens := NewTokenManager(store, config, logger)
		executor := NewExecutor(tokens, store, config, logger)
		p.paginator = NewPaginator(executor, logger)
	}
	return p
}

// RegisterTools implements global.ToolProvider
func (p *Provider) RegisterTools() []global.ToolDefinition {
	tools := global.NewTools()

	for _, spec := range toolRegistry {
		spec := spec
		tools = append(tools, global.ToolDefinition{
			Name:        spec.name,
			Description: spec.description,
			Parameters:  toolParameters(),
			Handler: func(options map[string]any) (string, error) {
				return p.handleQuery(spec, options)
			},
		})
	}

	return tools
}

// toolParameters returns the parameter set shared by every business tool
func toolParameters() []global.Parameter {
	return []global.Parameter{
		{
			Name:        "connection",
			Description: "Connection id identifying the authorized link to the accounting platform",
			Required:    true,
			Type:        "string",
		},
		{
			Name:        "division",
			Description: "Administration code to query; defaults to the connection's stored division",
			Type:        "string",
		},
		{
			Name:        "filter",
			Description: "OData $filter expression, e.g. \"Status eq 50\"",
			Type:        "string",
		},
		{
			Name:        "select",
			Description: "Field names to return instead of the default selection",
			Type:        "array",
		},
		{
			Name:        "top",
			Description: "Maximum records per page requested from the upstream",
			Type:        "number",
			Default:     100,
		},
		{
			Name:        "exclude_fields",
			Description: "Field names to drop entirely from the sanitized output",
			Type:        "array",
		},
		{
			Name:        "mask_bank_accounts",
			Description: "Mask bank account numbers in the output",
			Type:        "boolean",
			Default:     true,
		},
		{
			Name:        "mask_national_ids",
			Description: "Mask national identification numbers in the output",
			Type:        "boolean",
			Default:     true,
		},
		{
			Name:        "mask_emails",
			Description: "Mask email addresses in the output",
			Type:        "boolean",
			Default:     true,
		},
		{
			Name:        "mask_phones",
			Description: "Mask phone numbers in the output",
			Type:        "boolean",
			Default:     true,
		},
		{
			Name:        "custom_patterns",
			Description: "Additional regular expressions whose matches are masked in the output",
			Type:        "array",
		},
	}
}

// handleQuery is the shared handler behind every business tool
func (p *Provider) handleQuery(spec toolSpec, options map[string]any) (string, error) {
	connectionID := global.StringOption(options, "connection", "")
	if connectionID == "" {
		return "", fmt.Errorf("the 'connection' parameter is required")
	}

	record, err := p.store.GetConnection(connectionID)
	if err != nil {
		if db.IsNotFound(err) {
			return "", fmt.Errorf("connection %q is not known to this server", connectionID)
		}
		return "", err
	}

	division := global.StringOption(options, "division", record.Division)
	if division == "" {
		return "", fmt.Errorf("no division specified and connection %q has no default division; "+
			"pass the 'division' parameter", connectionID)
	}

	request, err := p.buildRequest(spec, division, options)
	if err != nil {
		return "", err
	}

	policy, err := p.buildPolicy(options)
	if err != nil {
		return "", err
	}

	base := context.Background()
	if v, ok := options["__mcp_context"].(context.Context); ok && v != nil {
		base = v
	}
	ctx, cancel := context.WithTimeout(base, toolCallTimeout)
	defer cancel()

	result, fetchErr := p.paginator.FetchAll(ctx, record, request)
	if fetchErr != nil && len(result.Records) == 0 {
		return "", fetchErr
	}

	sanitized := Sanitize(result.Records, policy)

	if spec.transform != "" {
		transformed, err := Transform(spec.transform, sanitized)
		if err != nil {
			if p.logger != nil {
				p.logger.Errorf("Transform failed for tool %s: %v", spec.name, err)
			}
		} else {
			sanitized = transformed
		}
	}

	payload := map[string]any{
		"records": sanitized,
		"count":   len(result.Records),
		"partial": result.Partial,
	}
	if fetchErr != nil {
		// Accumulated records are still useful; surface the failure inline
		payload["error"] = fetchErr.Error()
	}

	output, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return string(output), nil
}

// buildRequest constructs the initial request spec for one tool call
func (p *Provider) buildRequest(spec toolSpec, division string, options map[string]any) (RequestSpec, error) {
	query := url.Values{}

	if filter := global.StringOption(options, "filter", ""); filter != "" {
		query.Set("$filter", filter)
	}

	selected := global.StringSliceOption(options, "select")
	if len(selected) == 0 {
		selected = spec.defaultSelect
	}
	if len(selected) > 0 {
		query.Set("$select", strings.Join(selected, ","))
	}

	top := global.IntOption(options, "top", 100)
	if top > 0 {
		query.Set("$top", strconv.Itoa(top))
	}

	return RequestSpec{
		Path:  "/api/v1/" + url.PathEscape(division) + spec.path,
		Query: query,
	}, nil
}

// buildPolicy merges the default sanitization policy with per-call options
func (p *Provider) buildPolicy(options map[string]any) (Policy, error) {
	policy := p.defaultPolicy

	policy.MaskBankAccounts = global.BoolOption(options, "mask_bank_accounts", policy.MaskBankAccounts)
	policy.MaskNationalIDs = global.BoolOption(options, "mask_national_ids", policy.MaskNationalIDs)
	policy.MaskEmails = global.BoolOption(options, "mask_emails", policy.MaskEmails)
	policy.MaskPhones = global.BoolOption(options, "mask_phones", policy.MaskPhones)

	if exclude := global.StringSliceOption(options, "exclude_fields"); len(exclude) > 0 {
		policy.ExcludeFields = append(append([]string{}, policy.ExcludeFields...), exclude...)
	}

	for _, pattern := range global.StringSliceOption(options, "custom_patterns") {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid custom pattern %q: %w", pattern, err)
		}
		policy.CustomPatterns = append(policy.CustomPatterns, compiled)
	}

	return policy, nil
}

// guidRegex matches the upstream's GUID key format
var guidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ValidateGUID reports whether a value is a well-formed GUID, for callers
// building filters on GUID keys
func ValidateGUID(value string) bool {
	return guidRegex.MatchString(value)
}

// EscapeFilterValue escapes a string literal for use inside an OData filter
// expression. Single quotes are doubled.
func EscapeFilterValue(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}
