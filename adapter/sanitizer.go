/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package adapter

import (
	"regexp"
	"strings"
)

// Policy controls which sensitive data categories are masked and which
// fields are dropped outright. Constructed per call; stateless.
type Policy struct {
	MaskBankAccounts bool
	MaskNationalIDs  bool
	MaskEmails       bool
	MaskPhones       bool

	// ExcludeFields are dropped from mappings entirely (case-insensitive)
	ExcludeFields []string

	// CustomPatterns are applied last; matches are fully masked
	CustomPatterns []*regexp.Regexp
}

// DefaultPolicy masks every category and drops nothing
func DefaultPolicy() Policy {
	return Policy{
		MaskBankAccounts: true,
		MaskNationalIDs:  true,
		MaskEmails:       true,
		MaskPhones:       true,
	}
}

// PolicyFromConfig builds a Policy from its JSON configuration form.
// Invalid custom patterns are reported rather than silently dropped.
func PolicyFromConfig(config PolicyConfig) (Policy, error) {
	policy := Policy{
		MaskBankAccounts: config.MaskBankAccounts,
		MaskNationalIDs:  config.MaskNationalIDs,
		MaskEmails:       config.MaskEmails,
		MaskPhones:       config.MaskPhones,
		ExcludeFields:    config.ExcludeFields,
	}
	for _, pattern := range config.CustomPatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return Policy{}, err
		}
		policy.CustomPatterns = append(policy.CustomPatterns, compiled)
	}
	return policy, nil
}

// Field-name fragments that identify sensitive fields regardless of content
var (
	bankFieldNames     = []string{"iban", "bankaccount", "bank_account", "accountnumber"}
	nationalFieldNames = []string{"bsn", "ssn", "burgerservicenummer", "nationalid", "national_id", "socialsecurity"}
	emailFieldNames    = []string{"email", "e_mail", "e-mail"}
	phoneFieldNames    = []string{"phone", "mobile", "telephone", "fax"}
)

// Content patterns for scanning free-form strings
var (
	ibanPattern  = regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z0-9]{10,30}\b`)
	bsnPattern   = regexp.MustCompile(`\b[0-9]{9}\b`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9 ().\-]{7,}[0-9]`)
)

// bsnContextKeywords gate the 9-digit national-id mask: a bare 9-digit
// number is only masked when one of these appears shortly before it.
// Without the gate, invoice numbers and amounts would be over-masked.
var bsnContextKeywords = []string{"bsn", "burgerservicenummer", "sofinummer", "sofi", "national id", "ssn"}

// bsnContextWindow is how many characters before a 9-digit run are searched
// for a context keyword
const bsnContextWindow = 20

// Sanitize returns a deep copy of value with sensitive data masked per the
// policy. The input is never mutated; arrays stay arrays, mappings stay
// mappings, and non-string leaves pass through unchanged.
func Sanitize(value any, policy Policy) any {
	return sanitizeValue(value, policy)
}

func sanitizeValue(value any, policy Policy) any {
	switch v := value.(type) {
	case map[string]any:
		return sanitizeMap(v, policy)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item, policy)
		}
		return out
	case string:
		return sanitizeString(v, policy)
	default:
		return v
	}
}

func sanitizeMap(m map[string]any, policy Policy) map[string]any {
	out := make(map[string]any, len(m))

	for key, value := range m {
		lower := strings.ToLower(key)

		if matchesAny(lower, policy.ExcludeFields) {
			continue
		}

		// A sensitive field name masks a string value directly; pattern
		// scanning is skipped because the whole value is the datum
		if str, ok := value.(string); ok {
			switch {
			case policy.MaskBankAccounts && containsAny(lower, bankFieldNames):
				out[key] = maskBankAccount(str)
				continue
			case policy.MaskNationalIDs && containsAny(lower, nationalFieldNames):
				out[key] = maskAll(str)
				continue
			case policy.MaskEmails && containsAny(lower, emailFieldNames):
				out[key] = maskEmail(str)
				continue
			case policy.MaskPhones && containsAny(lower, phoneFieldNames):
				out[key] = maskPhone(str)
				continue
			}
		}

		out[key] = sanitizeValue(value, policy)
	}

	return out
}

// sanitizeString scans free-form text for embedded sensitive patterns
func sanitizeString(s string, policy Policy) string {
	if policy.MaskBankAccounts {
		s = ibanPattern.ReplaceAllStringFunc(s, maskBankAccount)
	}
	if policy.MaskNationalIDs {
		s = maskContextualNationalIDs(s)
	}
	if policy.MaskEmails {
		s = emailPattern.ReplaceAllStringFunc(s, maskEmail)
	}
	if policy.MaskPhones {
		s = maskPhoneCandidates(s)
	}
	for _, pattern := range policy.CustomPatterns {
		s = pattern.ReplaceAllStringFunc(s, maskAll)
	}
	return s
}

// maskContextualNationalIDs masks 9-digit runs only when a context keyword
// appears within the preceding window
func maskContextualNationalIDs(s string) string {
	matches := bsnPattern.FindAllStringIndex(s, -1)
	if matches == nil {
		return s
	}

	var b strings.Builder
	last := 0

	for _, match := range matches {
		start, end := match[0], match[1]
		windowStart := start - bsnContextWindow
		if windowStart < 0 {
			windowStart = 0
		}
		// Lowercase only the extracted window: Unicode lowercasing does not
		// preserve byte length, so indices from s cannot be used on a
		// lowercased copy of the whole string
		window := strings.ToLower(s[windowStart:start])

		b.WriteString(s[last:start])
		if containsAny(window, bsnContextKeywords) {
			b.WriteString(strings.Repeat("*", end-start))
		} else {
			b.WriteString(s[start:end])
		}
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

// maskPhoneCandidates masks phone-number-like digit groups. A candidate
// must carry at least nine digits and either a leading plus or an internal
// separator, so plain numeric runs (invoice numbers, amounts) survive.
func maskPhoneCandidates(s string) string {
	return phonePattern.ReplaceAllStringFunc(s, func(match string) string {
		digits := countDigits(match)
		if digits < 9 {
			return match
		}
		if !strings.HasPrefix(match, "+") && !strings.ContainsAny(match, " ().-") {
			return match
		}
		return maskPhone(match)
	})
}

func countDigits(s string) int {
	count := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			count++
		}
	}
	return count
}

// maskBankAccount keeps the first four and last four characters
func maskBankAccount(s string) string {
	if len(s) < 9 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// maskAll replaces every character with an asterisk
func maskAll(s string) string {
	return strings.Repeat("*", len(s))
}

// maskEmail keeps the first character of the local part and the domain
func maskEmail(s string) string {
	at := strings.Index(s, "@")
	if at < 1 {
		return "****"
	}
	return s[:1] + "***@" + s[at+1:]
}

// maskPhone keeps the last four digits
func maskPhone(s string) string {
	if len(s) <= 4 {
		return s
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// matchesAny reports whether name equals any entry (case-insensitive)
func matchesAny(lowerName string, fields []string) bool {
	for _, field := range fields {
		if lowerName == strings.ToLower(field) {
			return true
		}
	}
	return false
}

// containsAny reports whether s contains any of the fragments
func containsAny(s string, fragments []string) bool {
	for _, fragment := range fragments {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}
