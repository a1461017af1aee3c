package core

import (
	"context"
	"regexp"
	"strings"
)

// Params holds named values for raw statements written with {:name}
// placeholders.
//
// Example:
//
//	conn.SelectNamed(ctx,
//	    "select * from {{users}} where [[id]] = {:id} and [[status]] = {:status}",
//	    quarry.Params{"id": 1, "status": "active"}, true)
type Params map[string]any

var (
	namedPlaceholderRegex = regexp.MustCompile(`\{:(\w+)\}`)

	// {{table}} is wrapped as a table (prefix applied), [[column]] as a column.
	quoteRegex = regexp.MustCompile(`(\{\{[\w\-. ]+\}\}|\[\[[\w\-. ]+\]\])`)
)

// CompileNamed rewrites {:name} into "?" and quotes {{table}} and [[column]]
// markers. It returns the statement and its bindings in placeholder order.
// A name used twice is bound twice.
func (g *Grammar) CompileNamed(query string, params Params) (string, []any, error) {
	var bindings []any
	var missing string

	out := namedPlaceholderRegex.ReplaceAllStringFunc(query, func(match string) string {
		name := match[2 : len(match)-1]
		v, ok := params[name]
		if !ok && missing == "" {
			missing = name
		}
		bindings = append(bindings, v)
		return "?"
	})
	if missing != "" {
		return "", nil, invalidArgument("missing parameter: %s", missing)
	}

	out = quoteRegex.ReplaceAllStringFunc(out, func(match string) string {
		ident := strings.TrimSpace(match[2 : len(match)-2])
		if strings.HasPrefix(match, "{{") {
			return g.WrapTable(ident)
		}
		return g.Wrap(ident)
	})
	return out, bindings, nil
}

// SelectNamed runs a select written with named placeholders.
func (c *Connection) SelectNamed(ctx context.Context, query string, params Params, useRead bool) ([]Row, error) {
	sql, bindings, err := c.grammar.CompileNamed(query, params)
	if err != nil {
		return nil, err
	}
	if err := c.validate(ctx, sql, bindings); err != nil {
		return nil, err
	}
	return c.Select(ctx, sql, bindings, useRead)
}

// StatementNamed runs a statement written with named placeholders and
// returns the number of affected rows.
func (c *Connection) StatementNamed(ctx context.Context, query string, params Params) (int64, error) {
	sql, bindings, err := c.grammar.CompileNamed(query, params)
	if err != nil {
		return 0, err
	}
	if err := c.validate(ctx, sql, bindings); err != nil {
		return 0, err
	}
	return c.AffectingStatement(ctx, sql, bindings)
}
