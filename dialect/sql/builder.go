package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/relagg/dialect"
)

// Querier wraps the basic Query method that is implemented
// by the different builders in this file.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// node is implemented by every element that can render itself into a Builder.
type node interface {
	render(b *Builder)
}

// Builder is the base query builder for the sql dsl. Nested statements
// render into the same Builder so that positional placeholders stay in order.
type Builder struct {
	sb      *strings.Builder
	args    []any
	dialect string
}

func newBuilder(d string) *Builder {
	return &Builder{sb: &strings.Builder{}, dialect: d}
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string { return b.dialect }

// Quote quotes the given identifier with the characters based
// on the configured dialect. It defaults to double quotes.
func (b *Builder) Quote(ident string) string {
	return Quote(b.dialect, ident)
}

// Quote quotes ident for the given dialect.
func Quote(d, ident string) string {
	switch d {
	case dialect.Postgres:
		return pq.QuoteIdentifier(ident)
	case dialect.MySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// Ident appends the given string as an identifier. Qualified names
// ("table.column") are quoted per part, "*" and expressions are written as-is.
func (b *Builder) Ident(s string) *Builder {
	switch {
	case s == "":
	case s == "*", strings.ContainsAny(s, "( "):
		b.sb.WriteString(s)
	case strings.Contains(s, "."):
		for i, part := range strings.Split(s, ".") {
			if i > 0 {
				b.sb.WriteByte('.')
			}
			if part == "*" {
				b.sb.WriteString(part)
				continue
			}
			b.sb.WriteString(b.Quote(part))
		}
	default:
		b.sb.WriteString(b.Quote(s))
	}
	return b
}

// WriteString writes the given string as-is.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// WriteByte writes the given byte as-is.
func (b *Builder) WriteByte(c byte) *Builder {
	b.sb.WriteByte(c)
	return b
}

// Arg appends an input argument to the builder and writes its placeholder.
// Values that are themselves expressions are rendered inline.
func (b *Builder) Arg(a any) *Builder {
	if n, ok := a.(node); ok {
		n.render(b)
		return b
	}
	b.args = append(b.args, a)
	if b.dialect == dialect.Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.args)))
	} else {
		b.sb.WriteByte('?')
	}
	return b
}

// Args appends a list of arguments separated by commas.
func (b *Builder) Args(a ...any) *Builder {
	for i := range a {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(a[i])
	}
	return b
}

// String returns the accumulated string.
func (b *Builder) String() string { return b.sb.String() }

// Query implements the Querier interface.
func (b *Builder) Query() (string, []any) { return b.sb.String(), b.args }

// DialectBuilder prefixes all root builders with the Dialect value.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// Select creates a Selector for the configured dialect.
//
//	Dialect(dialect.Postgres).
//		Select("id", "name").
//		From(Table("users"))
func (d *DialectBuilder) Select(columns ...string) *Selector {
	s := Select(columns...)
	s.dialect = d.dialect
	return s
}

// SelectExpr creates a Selector with the given expressions as columns.
func (d *DialectBuilder) SelectExpr(exprs ...Expression) *Selector {
	s := SelectExpr(exprs...)
	s.dialect = d.dialect
	return s
}

// Insert creates an InsertBuilder for the configured dialect.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	i := Insert(table)
	i.dialect = d.dialect
	return i
}

// Update creates an UpdateBuilder for the configured dialect.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	u := Update(table)
	u.dialect = d.dialect
	return u
}

// Delete creates a DeleteBuilder for the configured dialect.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	x := Delete(table)
	x.dialect = d.dialect
	return x
}

// Expression is a renderable SQL expression used as a column, a
// predicate operand or an argument.
type Expression interface {
	node
}

type (
	// column is a (possibly qualified) identifier.
	column struct{ name string }
	// raw is an opaque SQL fragment written as-is.
	raw struct {
		s    string
		args []any
	}
	// aliased is an expression followed by "AS alias".
	aliased struct {
		expr  Expression
		alias string
	}
	// literal is a constant rendered inline.
	literal struct{ v any }
	// call is a function call over expressions.
	call struct {
		name string
		args []Expression
	}
)

// C returns an expression for the given column identifier.
func C(name string) Expression { return column{name: name} }

// Raw returns an opaque SQL expression. Question marks in s are replaced
// by the dialect placeholders of the given args.
func Raw(s string, args ...any) Expression { return raw{s: s, args: args} }

// Lit returns a literal value rendered inline, not as an argument.
func Lit(v any) Expression { return literal{v: v} }

// As returns the expression aliased with the given name.
func As(expr Expression, alias string) Expression { return aliased{expr: expr, alias: alias} }

// Coalesce returns the first non-null value of the given expressions.
func Coalesce(exprs ...Expression) Expression { return call{name: "COALESCE", args: exprs} }

// Greatest returns the largest value of the given expressions. SQLite has no
// GREATEST function; its multi-argument MAX is used instead.
func Greatest(exprs ...Expression) Expression { return call{name: "GREATEST", args: exprs} }

func (c column) render(b *Builder) { b.Ident(c.name) }

func (r raw) render(b *Builder) {
	if len(r.args) == 0 {
		b.WriteString(r.s)
		return
	}
	parts := strings.Split(r.s, "?")
	for i, p := range parts {
		b.WriteString(p)
		if i < len(parts)-1 && i < len(r.args) {
			b.Arg(r.args[i])
		}
	}
}

func (a aliased) render(b *Builder) {
	a.expr.render(b)
	b.WriteString(" AS ").Ident(a.alias)
}

func (l literal) render(b *Builder) {
	switch v := l.v.(type) {
	case string:
		b.WriteString("'" + strings.ReplaceAll(v, "'", "''") + "'")
	case nil:
		b.WriteString("NULL")
	default:
		b.WriteString(fmt.Sprint(v))
	}
}

func (c call) render(b *Builder) {
	name := c.name
	if name == "GREATEST" && b.dialect == dialect.SQLite {
		name = "MAX"
	}
	if len(c.args) == 1 && c.name == "GREATEST" {
		c.args[0].render(b)
		return
	}
	b.WriteString(name).WriteByte('(')
	for i, a := range c.args {
		if i > 0 {
			b.WriteString(", ")
		}
		a.render(b)
	}
	b.WriteByte(')')
}

// WindowFunc represents an analytic function with an OVER clause.
type WindowFunc struct {
	fn        string
	arg       string
	partition []string
	order     []string
}

// RowNumber returns the ROW_NUMBER() window function.
func RowNumber() *WindowFunc { return &WindowFunc{fn: "ROW_NUMBER"} }

// CountOver returns the COUNT(*) window function.
func CountOver() *WindowFunc { return &WindowFunc{fn: "COUNT", arg: "*"} }

// PartitionBy sets the PARTITION BY columns of the window.
func (w *WindowFunc) PartitionBy(columns ...string) *WindowFunc {
	w.partition = append(w.partition, columns...)
	return w
}

// OrderBy sets the ORDER BY columns of the window.
func (w *WindowFunc) OrderBy(columns ...string) *WindowFunc {
	w.order = append(w.order, columns...)
	return w
}

func (w *WindowFunc) render(b *Builder) {
	b.WriteString(w.fn).WriteByte('(').WriteString(w.arg).WriteString(") OVER (")
	if len(w.partition) > 0 {
		b.WriteString("PARTITION BY ")
		identList(b, w.partition)
	}
	if len(w.order) > 0 {
		if len(w.partition) > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("ORDER BY ")
		identList(b, w.order)
	}
	b.WriteByte(')')
}

// Case is a searched CASE expression with a single WHEN branch.
type Case struct {
	when *Predicate
	then Expression
	els  Expression
}

// CaseWhen returns "CASE WHEN p THEN then ELSE els END".
func CaseWhen(p *Predicate, then, els Expression) *Case {
	return &Case{when: p, then: then, els: els}
}

func (c *Case) render(b *Builder) {
	b.WriteString("CASE WHEN ")
	c.when.render(b)
	b.WriteString(" THEN ")
	c.then.render(b)
	b.WriteString(" ELSE ")
	c.els.render(b)
	b.WriteString(" END")
}

func identList(b *Builder, idents []string) {
	for i, c := range idents {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c)
	}
}

// TableView is a view that can be used as a table source: a table or a
// named sub-query.
type TableView interface {
	node
	view()
	// C returns the qualified column name of the view.
	C(string) string
}

// SelectTable is a table reference.
type SelectTable struct {
	name   string
	schema string
	as     string
}

// Table returns a new table selector.
//
//	t1 := Table("users").As("u")
//	return Select(t1.C("name"))
func Table(name string) *SelectTable {
	return &SelectTable{name: name}
}

// Schema sets the schema name of the table.
func (s *SelectTable) Schema(name string) *SelectTable {
	s.schema = name
	return s
}

// As adds the AS clause to the table selector.
func (s *SelectTable) As(alias string) *SelectTable {
	s.as = alias
	return s
}

// C returns a formatted string for the table column.
func (s *SelectTable) C(column string) string {
	name := s.name
	if s.as != "" {
		name = s.as
	}
	return name + "." + column
}

// Name returns the table name, or its alias if one was set.
func (s *SelectTable) Name() string {
	if s.as != "" {
		return s.as
	}
	return s.name
}

func (s *SelectTable) view() {}

func (s *SelectTable) render(b *Builder) {
	if s.schema != "" {
		b.Ident(s.schema).WriteByte('.')
	}
	b.WriteString(b.Quote(s.name))
	if s.as != "" {
		b.WriteString(" AS ").WriteString(b.Quote(s.as))
	}
}

type join struct {
	kind  string
	table TableView
	on    *Predicate
}

type order struct {
	expr Expression
	desc bool
}

// Selector is a builder for the `SELECT` statement.
type Selector struct {
	dialect   string
	columns   []Expression
	from      TableView
	joins     []join
	where     *Predicate
	order     []order
	as        string
	forUpdate bool
}

// Select returns a new selector for the `SELECT` statement.
func Select(columns ...string) *Selector {
	s := &Selector{}
	return s.Select(columns...)
}

// SelectExpr returns a new selector with the given expressions as columns.
func SelectExpr(exprs ...Expression) *Selector {
	return &Selector{columns: append([]Expression(nil), exprs...)}
}

// Select changes the columns selection of the SELECT statement.
func (s *Selector) Select(columns ...string) *Selector {
	s.columns = make([]Expression, 0, len(columns))
	for _, c := range columns {
		s.columns = append(s.columns, C(c))
	}
	return s
}

// AppendSelect appends additional columns to the SELECT statement.
func (s *Selector) AppendSelect(columns ...string) *Selector {
	for _, c := range columns {
		s.columns = append(s.columns, C(c))
	}
	return s
}

// AppendSelectExpr appends additional expressions to the SELECT statement.
func (s *Selector) AppendSelectExpr(exprs ...Expression) *Selector {
	s.columns = append(s.columns, exprs...)
	return s
}

// AppendSelectAs appends an expression with the given alias.
func (s *Selector) AppendSelectAs(expr Expression, alias string) *Selector {
	s.columns = append(s.columns, As(expr, alias))
	return s
}

// SelectedColumns returns the number of selected expressions.
func (s *Selector) SelectedColumns() int { return len(s.columns) }

// From sets the source of `FROM` clause.
func (s *Selector) From(t TableView) *Selector {
	s.from = t
	return s
}

// Join appends a `JOIN` clause to the statement.
func (s *Selector) Join(t TableView) *Selector {
	s.joins = append(s.joins, join{kind: "JOIN", table: t})
	return s
}

// LeftJoin appends a `LEFT JOIN` clause to the statement.
func (s *Selector) LeftJoin(t TableView) *Selector {
	s.joins = append(s.joins, join{kind: "LEFT JOIN", table: t})
	return s
}

// On sets the `ON` clause of the last `JOIN` operation to equality of two columns.
func (s *Selector) On(c1, c2 string) *Selector {
	return s.OnP(ColumnsEQ(c1, c2))
}

// OnP sets or appends the given predicate for the `ON` clause of the last `JOIN` operation.
func (s *Selector) OnP(p *Predicate) *Selector {
	if len(s.joins) == 0 {
		return s
	}
	j := &s.joins[len(s.joins)-1]
	if j.on == nil {
		j.on = p
	} else {
		j.on = And(j.on, p)
	}
	return s
}

// Where sets or appends the given predicate to the statement.
func (s *Selector) Where(p *Predicate) *Selector {
	if p == nil {
		return s
	}
	if s.where == nil {
		s.where = p
	} else {
		s.where = And(s.where, p)
	}
	return s
}

// OrderBy appends the `ORDER BY` clause to the `SELECT` statement.
func (s *Selector) OrderBy(columns ...string) *Selector {
	for _, c := range columns {
		s.order = append(s.order, order{expr: C(c)})
	}
	return s
}

// OrderExpr appends an expression to the `ORDER BY` clause.
func (s *Selector) OrderExpr(expr Expression, desc bool) *Selector {
	s.order = append(s.order, order{expr: expr, desc: desc})
	return s
}

// ForUpdate sets the `FOR UPDATE` lock clause. SQLite has no row locks and
// ignores it.
func (s *Selector) ForUpdate() *Selector {
	s.forUpdate = true
	return s
}

// As gives this selection an alias so it can be used as a sub-query.
func (s *Selector) As(alias string) *Selector {
	s.as = alias
	return s
}

// C returns a formatted string for a selected column from this statement.
func (s *Selector) C(column string) string {
	if s.as != "" {
		return s.as + "." + column
	}
	return column
}

// Joins returns the number of joins of the statement.
func (s *Selector) Joins() int { return len(s.joins) }

func (s *Selector) view() {}

// Query returns query representation of a `SELECT` statement.
func (s *Selector) Query() (string, []any) {
	b := newBuilder(s.dialect)
	s.renderSelect(b)
	return b.Query()
}

// String returns the statement text without its arguments.
func (s *Selector) String() string {
	q, _ := s.Query()
	return q
}

func (s *Selector) render(b *Builder) {
	if s.as == "" {
		b.WriteByte('(')
		s.renderSelect(b)
		b.WriteByte(')')
		return
	}
	b.WriteByte('(')
	s.renderSelect(b)
	b.WriteString(") AS ").WriteString(b.Quote(s.as))
}

func (s *Selector) renderSelect(b *Builder) {
	b.WriteString("SELECT ")
	if len(s.columns) == 0 {
		b.WriteByte('*')
	}
	for i, c := range s.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		c.render(b)
	}
	if s.from != nil {
		b.WriteString(" FROM ")
		s.from.render(b)
	}
	for _, j := range s.joins {
		b.WriteByte(' ').WriteString(j.kind).WriteByte(' ')
		j.table.render(b)
		if j.on != nil {
			b.WriteString(" ON ")
			j.on.render(b)
		}
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.render(b)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range s.order {
			if i > 0 {
				b.WriteString(", ")
			}
			o.expr.render(b)
			if o.desc {
				b.WriteString(" DESC")
			}
		}
	}
	if s.forUpdate && b.dialect != dialect.SQLite {
		b.WriteString(" FOR UPDATE")
	}
}

// InsertBuilder is a builder for `INSERT INTO` statement.
type InsertBuilder struct {
	dialect   string
	table     string
	schema    string
	columns   []string
	values    [][]any
	returning []string
	defaults  bool
}

// Insert creates a builder for the `INSERT INTO` statement.
//
//	Insert("users").
//		Columns("name", "age").
//		Values("a8m", 10).
//		Values("foo", 20)
func Insert(table string) *InsertBuilder { return &InsertBuilder{table: table} }

// Schema sets the database name for the insert table.
func (i *InsertBuilder) Schema(name string) *InsertBuilder {
	i.schema = name
	return i
}

// Columns appends columns to the INSERT statement.
func (i *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	i.columns = append(i.columns, columns...)
	return i
}

// Values append a value tuple for the insert statement.
func (i *InsertBuilder) Values(values ...any) *InsertBuilder {
	i.values = append(i.values, values)
	return i
}

// Default sets the default values clause based on the dialect type.
func (i *InsertBuilder) Default() *InsertBuilder {
	i.defaults = true
	return i
}

// Returning adds the `RETURNING` clause to the insert statement.
// Supported by SQLite and PostgreSQL.
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// Query returns query representation of an `INSERT INTO` statement.
func (i *InsertBuilder) Query() (string, []any) {
	b := newBuilder(i.dialect)
	b.WriteString("INSERT INTO ")
	if i.schema != "" {
		b.Ident(i.schema).WriteByte('.')
	}
	b.WriteString(b.Quote(i.table))
	if i.defaults && len(i.columns) == 0 {
		if i.dialect == dialect.MySQL {
			b.WriteString(" VALUES ()")
		} else {
			b.WriteString(" DEFAULT VALUES")
		}
	} else {
		b.WriteString(" (")
		for j, c := range i.columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(b.Quote(c))
		}
		b.WriteString(") VALUES ")
		for j, v := range i.values {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(').Args(v...).WriteByte(')')
		}
	}
	if len(i.returning) > 0 && i.dialect != dialect.MySQL {
		b.WriteString(" RETURNING ")
		for j, c := range i.returning {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(b.Quote(c))
		}
	}
	return b.Query()
}

// UpdateBuilder is a builder for `UPDATE` statement.
type UpdateBuilder struct {
	dialect string
	table   string
	schema  string
	columns []string
	values  []any
	where   *Predicate
}

// Update creates a builder for the `UPDATE` statement.
//
//	Update("users").Set("name", "foo").Set("age", 10)
func Update(table string) *UpdateBuilder { return &UpdateBuilder{table: table} }

// Schema sets the database name for the updated table.
func (u *UpdateBuilder) Schema(name string) *UpdateBuilder {
	u.schema = name
	return u
}

// Set sets a column to a given value.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// Where adds a where predicate for update statement.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	if u.where == nil {
		u.where = p
	} else {
		u.where = And(u.where, p)
	}
	return u
}

// Empty reports whether this builder does not contain update changes.
func (u *UpdateBuilder) Empty() bool { return len(u.columns) == 0 }

// Query returns query representation of an `UPDATE` statement.
func (u *UpdateBuilder) Query() (string, []any) {
	b := newBuilder(u.dialect)
	b.WriteString("UPDATE ")
	if u.schema != "" {
		b.Ident(u.schema).WriteByte('.')
	}
	b.WriteString(b.Quote(u.table)).WriteString(" SET ")
	for i, c := range u.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(b.Quote(c)).WriteString(" = ").Arg(u.values[i])
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where.render(b)
	}
	return b.Query()
}

// DeleteBuilder is a builder for `DELETE` statement.
type DeleteBuilder struct {
	dialect string
	table   string
	schema  string
	where   *Predicate
}

// Delete creates a builder for the `DELETE` statement.
//
//	Delete("users").
//		Where(
//			Or(
//				EQ("name", "foo").And().EQ("age", 10),
//				EQ("name", "bar").And().EQ("age", 20),
//			),
//		)
func Delete(table string) *DeleteBuilder { return &DeleteBuilder{table: table} }

// Schema sets the database name for the table whose row will be deleted.
func (d *DeleteBuilder) Schema(name string) *DeleteBuilder {
	d.schema = name
	return d
}

// Where appends a where predicate to the `DELETE` statement.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	if d.where == nil {
		d.where = p
	} else {
		d.where = And(d.where, p)
	}
	return d
}

// Query returns query representation of a `DELETE` statement.
func (d *DeleteBuilder) Query() (string, []any) {
	b := newBuilder(d.dialect)
	b.WriteString("DELETE FROM ")
	if d.schema != "" {
		b.Ident(d.schema).WriteByte('.')
	}
	b.WriteString(b.Quote(d.table))
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where.render(b)
	}
	return b.Query()
}
