package logger

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMask replaces sensitive values in log output.
const DefaultMask = "***REDACTED***"

// Sanitizer masks sensitive bindings in log lines. Each "?" placeholder is
// attributed to the column it is compared with or inserted into; bindings whose
// column looks sensitive are masked and the rest are kept. Placeholders that
// cannot be attributed are masked whenever the statement mentions a sensitive
// column anywhere.
type Sanitizer struct {
	sensitiveFields []string
	maskValue       string
	patterns        []*regexp.Regexp
}

var (
	// columnBeforePlaceholder captures the identifier compared against a trailing placeholder.
	columnBeforePlaceholder = regexp.MustCompile(
		"(?i)([\\w\"`.]+)\\s*(?:=|<>|!=|<=|>=|<|>|\\blike\\b|\\bnot like\\b|\\bin\\b|\\bnot in\\b|\\bbetween\\b)\\s*\\(?\\s*(?:\\?\\s*,\\s*)*$")
	// insertColumns captures the column list and values section of an INSERT.
	insertColumns = regexp.MustCompile(`(?is)^\s*insert\b.*?\(([^()]*)\)\s*values\s*(.*)$`)
)

// NewSanitizer creates a new sanitizer with the specified sensitive field names.
// If no fields are provided, a default set of common sensitive field names is used.
func NewSanitizer(sensitiveFields []string) *Sanitizer {
	if len(sensitiveFields) == 0 {
		sensitiveFields = []string{
			"password", "passwd", "pwd",
			"token", "api_key", "apikey", "api_token",
			"secret", "auth", "authorization",
			"credit_card", "card_number", "cvv", "cvc",
			"ssn", "social_security",
			"private_key", "priv_key",
		}
	}

	patterns := make([]*regexp.Regexp, 0, len(sensitiveFields))
	for _, field := range sensitiveFields {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(field)+`\b`))
	}

	return &Sanitizer{
		sensitiveFields: sensitiveFields,
		maskValue:       DefaultMask,
		patterns:        patterns,
	}
}

// MaskParams returns a copy of params with sensitive values replaced by the mask.
// The original slice is never modified.
func (s *Sanitizer) MaskParams(sql string, params []any) []any {
	if len(params) == 0 || !s.containsSensitivePattern(sql) {
		return params
	}

	columns := s.placeholderColumns(sql)
	masked := make([]any, len(params))
	for i, param := range params {
		col := ""
		if i < len(columns) {
			col = columns[i]
		}
		if col == "" || s.containsSensitivePattern(col) {
			masked[i] = s.maskValue
			continue
		}
		masked[i] = param
	}
	return masked
}

// placeholderColumns attributes every placeholder in sql to a column name.
// An empty entry means the placeholder could not be attributed.
func (s *Sanitizer) placeholderColumns(sql string) []string {
	positions := placeholderPositions(sql)
	columns := make([]string, len(positions))

	if m := insertColumns.FindStringSubmatch(sql); m != nil {
		cols := strings.Split(m[1], ",")
		for i := range cols {
			cols[i] = unquote(cols[i])
		}
		valuesStart := len(sql) - len(m[2])
		n := 0
		for i, pos := range positions {
			if pos < valuesStart {
				continue
			}
			columns[i] = cols[n%len(cols)]
			n++
		}
		return columns
	}

	for i, pos := range positions {
		if m := columnBeforePlaceholder.FindStringSubmatch(sql[:pos]); m != nil {
			columns[i] = unquote(m[1])
		}
	}
	return columns
}

// placeholderPositions returns the byte offsets of "?" outside quoted literals.
func placeholderPositions(sql string) []int {
	var positions []int
	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '?':
			positions = append(positions, i)
		}
	}
	return positions
}

func unquote(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if i := strings.LastIndex(identifier, "."); i >= 0 {
		identifier = identifier[i+1:]
	}
	return strings.Trim(identifier, "\"`")
}

// containsSensitivePattern checks if text contains any sensitive field patterns.
func (s *Sanitizer) containsSensitivePattern(text string) bool {
	for _, pattern := range s.patterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// FormatParams converts parameters to a safe string representation for logging.
// Sensitive values should be masked using MaskParams before calling this.
func (s *Sanitizer) FormatParams(params []any) string {
	if len(params) == 0 {
		return "[]"
	}

	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = s.formatValue(p)
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

// formatValue formats a single parameter value for logging.
// Truncates very long strings to prevent log pollution.
func (s *Sanitizer) formatValue(v any) string {
	if v == nil {
		return "NULL"
	}

	str := fmt.Sprintf("%v", v)

	const maxLen = 100
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}

	return str
}
