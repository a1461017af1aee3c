// Package security guards hand-written SQL and audits executed statements.
package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsafeStatement is returned for statements or bindings matching an
// injection pattern.
var ErrUnsafeStatement = errors.New("unsafe SQL statement")

// Validator checks hand-written statements, the ones that bypass the
// query builder, against common injection patterns.
type Validator struct {
	patterns []*regexp.Regexp
	strict   bool
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithStrict also rejects any OR, AND, UNION or EXEC keyword. Expect false
// positives.
func WithStrict(strict bool) ValidatorOption {
	return func(v *Validator) { v.strict = strict }
}

// NewValidator returns a validator with the default pattern set.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{patterns: statementPatterns}
	for _, opt := range opts {
		opt(v)
	}
	if v.strict {
		v.patterns = append(append([]*regexp.Regexp(nil), v.patterns...), strictPatterns...)
	}
	return v
}

var statementPatterns = mustCompile(
	`--\s`,
	`/\*.*\*/`,
	`#\s`,
	`;\s*(DROP|DELETE|TRUNCATE|ALTER|CREATE)\s+`,
	`UNION(\s+ALL)?\s+SELECT`,
	`XP_CMDSHELL`,
	`SP_EXECUTESQL`,
	`\bEXEC(UTE)?\s*\(`,
	`\bEXEC\s+(XP|SP)_`,
	`INFORMATION_SCHEMA`,
	`PG_SLEEP\s*\(`,
	`BENCHMARK\s*\(`,
	`WAITFOR\s+DELAY`,
	`\sOR\s+1\s*=\s*1\b`,
	`\sOR\s+'1'\s*=\s*'1'`,
	`\sAND\s+1\s*=\s*0\b`,
)

var strictPatterns = mustCompile(`\bOR\b`, `\bAND\b`, `\bUNION\b`, `\bEXEC(UTE)?\b`)

func mustCompile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// ValidateQuery rejects a statement containing an injection pattern.
func (v *Validator) ValidateQuery(query string) error {
	upper := strings.ToUpper(query)
	for _, p := range v.patterns {
		if p.MatchString(upper) {
			return fmt.Errorf("%w: matches %s", ErrUnsafeStatement, p.String())
		}
	}
	return nil
}

var bindingIndicators = []string{"'--", "';", "' OR ", "' AND ", "/*", "*/", "' UNION ", "' DROP ", "XP_"}

// ValidateParams rejects string bindings that look like an attempt to
// break out of a quoted literal.
func (v *Validator) ValidateParams(params []any) error {
	for i, p := range params {
		s, ok := p.(string)
		if !ok {
			continue
		}
		upper := strings.ToUpper(s)
		for _, ind := range bindingIndicators {
			if strings.Contains(upper, ind) {
				return fmt.Errorf("%w: binding %d contains %q", ErrUnsafeStatement, i, ind)
			}
		}
	}
	return nil
}
