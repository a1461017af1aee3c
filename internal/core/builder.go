package core

import (
	"fmt"
	"strings"
)

// bindingCategory names a slot of the builder's bindings. Slots are flattened
// in declaration order, which matches the order the grammar emits clauses.
type bindingCategory int

const (
	bindSelect bindingCategory = iota
	bindFrom
	bindJoin
	bindWhere
	bindGroupBy
	bindHaving
	bindOrder
	bindUnion
	bindUnionOrder
	numBindingCategories
)

var bindingCategoryNames = [numBindingCategories]string{
	"select", "from", "join", "where", "groupBy", "having", "order", "union", "unionOrder",
}

func (c bindingCategory) String() string { return bindingCategoryNames[c] }

func parseBindingCategory(name string) (bindingCategory, error) {
	for i, n := range bindingCategoryNames {
		if n == name {
			return bindingCategory(i), nil
		}
	}
	return 0, invalidArgument("invalid binding type: %s", name)
}

type order struct {
	column    any
	direction string
	sql       string
}

type union struct {
	query *Builder
	all   bool
}

type aggregate struct {
	function string
	columns  []any
}

type lockState struct {
	set       bool
	exclusive bool
	sql       string
}

// Builder accumulates the state of one SQL statement. Mutators return the
// builder for chaining; the first invalid call is recorded and returned by
// ToSQL and every terminal method.
//
// A Builder is not safe for concurrent use. Clone it to branch.
type Builder struct {
	conn    *Connection
	grammar *Grammar
	macros  *MacroRegistry

	bindings [numBindingCategories][]any

	aggregate *aggregate
	columns   []any
	distinct  bool
	from      any
	joins     []*JoinClause
	wheres    []*where
	groups    []any
	havings   []*where
	orders    []order
	limit     int
	offset    int

	unions      []union
	unionOrders []order
	unionLimit  int
	unionOffset int

	lock     lockState
	useWrite bool
	err      error
}

// NewBuilder creates a builder compiling with g. conn may be nil, in which
// case the builder can only produce SQL.
func NewBuilder(g *Grammar, conn *Connection) *Builder {
	b := &Builder{
		conn:        conn,
		grammar:     g,
		limit:       -1,
		offset:      -1,
		unionLimit:  -1,
		unionOffset: -1,
	}
	if conn != nil {
		b.macros = conn.macros
	}
	return b
}

// NewQuery returns an empty builder sharing this builder's connection.
func (b *Builder) NewQuery() *Builder {
	nb := NewBuilder(b.grammar, b.conn)
	nb.macros = b.macros
	return nb
}

// Grammar returns the grammar used to compile the builder.
func (b *Builder) Grammar() *Grammar { return b.grammar }

// Connection returns the connection the builder executes on, if any.
func (b *Builder) Connection() *Connection { return b.conn }

// Err returns the first error recorded while building.
func (b *Builder) Err() error { return b.err }

func (b *Builder) setErr(err error) *Builder {
	if b.err == nil && err != nil {
		b.err = err
	}
	return b
}

// ToSQL compiles the builder into a SELECT statement.
func (b *Builder) ToSQL() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return b.grammar.CompileSelect(b), nil
}

// Bindings returns every binding flattened in clause order.
func (b *Builder) Bindings() []any {
	n := 0
	for _, c := range b.bindings {
		n += len(c)
	}
	out := make([]any, 0, n)
	for _, c := range b.bindings {
		out = append(out, c...)
	}
	return out
}

// bindingsExcept flattens every category not listed.
func (b *Builder) bindingsExcept(skip ...bindingCategory) []any {
	var out []any
	for i, c := range b.bindings {
		skipped := false
		for _, s := range skip {
			if bindingCategory(i) == s {
				skipped = true
				break
			}
		}
		if !skipped {
			out = append(out, c...)
		}
	}
	return out
}

// bindingsOf flattens the listed categories in the given order.
func (b *Builder) bindingsOf(categories ...bindingCategory) []any {
	var out []any
	for _, c := range categories {
		out = append(out, b.bindings[c]...)
	}
	return out
}

// RawBindings returns the bindings keyed by category name.
func (b *Builder) RawBindings() map[string][]any {
	out := make(map[string][]any, numBindingCategories)
	for i, c := range b.bindings {
		out[bindingCategoryNames[i]] = append([]any(nil), c...)
	}
	return out
}

// SetBindings replaces the bindings of one category.
func (b *Builder) SetBindings(category string, values []any) error {
	c, err := parseBindingCategory(category)
	if err != nil {
		return err
	}
	b.bindings[c] = append([]any(nil), values...)
	return nil
}

// AddBinding appends values to one category. Raw values are dropped since
// they are rendered inline.
func (b *Builder) AddBinding(category string, values ...any) error {
	c, err := parseBindingCategory(category)
	if err != nil {
		return err
	}
	b.addBinding(c, values...)
	return nil
}

func (b *Builder) addBinding(c bindingCategory, values ...any) {
	for _, v := range values {
		if _, ok := v.(Raw); ok {
			continue
		}
		b.bindings[c] = append(b.bindings[c], v)
	}
}

// MergeBindings appends every category of other to this builder.
func (b *Builder) MergeBindings(other *Builder) *Builder {
	for i, c := range other.bindings {
		b.bindings[i] = append(b.bindings[i], c...)
	}
	return b
}

// UseWriteHandle routes reads of this builder to the write handle.
func (b *Builder) UseWriteHandle() *Builder {
	b.useWrite = true
	return b
}

// Clone returns an independent copy of the builder.
func (b *Builder) Clone() *Builder {
	c := *b
	for i := range b.bindings {
		c.bindings[i] = append([]any(nil), b.bindings[i]...)
	}
	if b.aggregate != nil {
		agg := *b.aggregate
		agg.columns = append([]any(nil), b.aggregate.columns...)
		c.aggregate = &agg
	}
	c.columns = cloneSlice(b.columns)
	c.groups = cloneSlice(b.groups)
	c.orders = cloneSlice(b.orders)
	c.unionOrders = cloneSlice(b.unionOrders)
	c.wheres = cloneWheres(b.wheres)
	c.havings = cloneWheres(b.havings)
	if b.joins != nil {
		c.joins = make([]*JoinClause, len(b.joins))
		for i, j := range b.joins {
			c.joins[i] = j.clone()
		}
	}
	if b.unions != nil {
		c.unions = make([]union, len(b.unions))
		for i, u := range b.unions {
			c.unions[i] = union{query: u.query.Clone(), all: u.all}
		}
	}
	return &c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append([]T(nil), s...)
}

// CloneWithout clones the builder and resets the named parts. Valid parts:
// aggregate, columns, distinct, from, joins, wheres, groups, havings,
// orders, limit, offset, unions, unionOrders, unionLimit, unionOffset, lock.
func (b *Builder) CloneWithout(parts ...string) *Builder {
	c := b.Clone()
	for _, p := range parts {
		switch p {
		case "aggregate":
			c.aggregate = nil
		case "columns":
			c.columns = nil
		case "distinct":
			c.distinct = false
		case "from":
			c.from = nil
		case "joins":
			c.joins = nil
		case "wheres":
			c.wheres = nil
		case "groups":
			c.groups = nil
		case "havings":
			c.havings = nil
		case "orders":
			c.orders = nil
		case "limit":
			c.limit = -1
		case "offset":
			c.offset = -1
		case "unions":
			c.unions = nil
		case "unionOrders":
			c.unionOrders = nil
		case "unionLimit":
			c.unionLimit = -1
		case "unionOffset":
			c.unionOffset = -1
		case "lock":
			c.lock = lockState{}
		default:
			c.setErr(invalidArgument("unknown query part: %s", p))
		}
	}
	return c
}

// CloneWithoutBindings clones the builder and empties the named binding
// categories.
func (b *Builder) CloneWithoutBindings(categories ...string) *Builder {
	c := b.Clone()
	for _, name := range categories {
		cat, err := parseBindingCategory(name)
		if err != nil {
			c.setErr(err)
			continue
		}
		c.bindings[cat] = nil
	}
	return c
}

// compileSub compiles a sub-query given as *Builder or func(*Builder).
func (b *Builder) compileSub(query any) (string, []any, error) {
	sub, err := b.subQuery(query)
	if err != nil {
		return "", nil, err
	}
	sql, err := sub.ToSQL()
	if err != nil {
		return "", nil, err
	}
	return sql, sub.Bindings(), nil
}

func (b *Builder) subQuery(query any) (*Builder, error) {
	switch q := query.(type) {
	case *Builder:
		return q, nil
	case func(*Builder):
		sub := b.NewQuery()
		q(sub)
		return sub, nil
	default:
		return nil, invalidArgument("sub-query must be *Builder or func(*Builder), got %T", query)
	}
}

func (b *Builder) String() string {
	sql, err := b.ToSQL()
	if err != nil {
		return fmt.Sprintf("<invalid query: %v>", err)
	}
	return strings.TrimSpace(sql)
}
