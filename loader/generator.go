// Package loader generates the single statement that loads whole
// aggregates: one row per root and position, with the rows of independent
// child collections laid side by side instead of multiplied.
//
// The statement has three layers. Every table of the aggregate gets an
// inline query numbering its rows per parent. The inline queries are left
// joined on the root identifier and filtered so that the n-th row of each
// collection lines up with the n-th row of all others. The outer select
// blanks the columns of collections that ran out of rows.
package loader

import (
	"log/slog"
	"reflect"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/dialect/sql"
	"github.com/syssam/relagg/mapping"
)

const (
	// RowNumberColumn is the column of the combined row number.
	RowNumberColumn = "rn"
	mainAlias       = "main"
)

// Column is a selected column of a simple property.
type Column struct {
	Path  *aggpath.Path
	Alias string
}

// Table describes the columns selected for one entity path of the
// aggregate.
type Table struct {
	Path *aggpath.Path
	// ID is the alias of the identifier column, "" for entities without a
	// simple identifier.
	ID string
	// Key is the alias of the list index or map key, or of a row number for
	// sets. It is "" for the root.
	Key string
	// RowNumber is the alias of the row number of the table within its
	// parent.
	RowNumber string
	Columns   []Column
}

// Query is a generated load statement.
type Query struct {
	SQL  string
	Args []any
	// Root is the root table. Its ID column is never blanked.
	Root     Table
	Children []Table
}

type config struct {
	log *slog.Logger
}

// Option configures a Generator.
type Option func(*config)

// WithLogger sets the logger of the generator.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// Generator generates single statement aggregate loads. A Generator is safe
// for concurrent use.
type Generator struct {
	paths   *aggpath.Factory
	dialect string
	log     *slog.Logger
}

// NewGenerator returns a generator of statements in the given dialect.
func NewGenerator(paths *aggpath.Factory, dialect string, opts ...Option) *Generator {
	c := config{log: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	return &Generator{paths: paths, dialect: dialect, log: c.log}
}

// Dialect returns the dialect of the generated statements.
func (g *Generator) Dialect() string { return g.dialect }

// Supports reports whether aggregates of the given type can be loaded with
// a single statement.
func (g *Generator) Supports(t reflect.Type) bool {
	_, _, err := g.plan(t)
	return err == nil
}

// Generate returns the statement loading every aggregate of the given type
// whose root row matches where. A nil where loads all aggregates. Rows are
// ordered by root identifier and row number.
//
// Only aggregates with a simple root identifier whose entities are direct
// children of the root are supported; others fail with an UnsupportedError.
func (g *Generator) Generate(t reflect.Type, where *sql.Predicate) (*Query, error) {
	root, children, err := g.plan(t)
	if err != nil {
		return nil, err
	}
	var (
		aliases = NewAliasFactory()
		q       = &Query{}
	)
	rootView, err := g.rootQuery(root, aliases, where, &q.Root)
	if err != nil {
		return nil, err
	}
	main := sql.SelectExpr().From(rootView)
	selectTable(main, q.Root)
	q.Children = make([]Table, len(children))
	for i, child := range children {
		view, err := g.childQuery(child, aliases, &q.Children[i])
		if err != nil {
			return nil, err
		}
		main.LeftJoin(view).On(rootView.C(q.Root.ID), view.C(aliases.BackReference(child)))
		selectTable(main, q.Children[i])
	}
	main.Where(alignRows(q.Children, aliases))
	main.AppendSelectAs(rowNumber(q.Children), RowNumberColumn)
	main.As(mainAlias)

	outer := sql.Dialect(g.dialect).SelectExpr(sql.C(q.Root.ID))
	for _, table := range append([]Table{q.Root}, q.Children...) {
		blank := func(alias string) {
			outer.AppendSelectAs(
				sql.CaseWhen(sql.ColumnsEQ(RowNumberColumn, table.RowNumber), sql.C(alias), sql.Lit(nil)),
				alias,
			)
		}
		if !table.Path.IsRoot() {
			if table.ID != "" {
				blank(table.ID)
			}
			blank(table.Key)
		}
		for _, c := range table.Columns {
			blank(c.Alias)
		}
	}
	outer.AppendSelect(RowNumberColumn).
		From(main).
		OrderBy(q.Root.ID, RowNumberColumn)
	q.SQL, q.Args = outer.Query()
	g.log.Debug("loader: generated statement", "entity", root.RootEntity().Name(), "children", len(children), "dialect", g.dialect)
	return q, nil
}

// plan returns the root path and the entity paths of the aggregate, or an
// UnsupportedError when the aggregate shape is out of reach.
func (g *Generator) plan(t reflect.Type) (*aggpath.Path, []*aggpath.Path, error) {
	root, err := g.paths.Root(t)
	if err != nil {
		return nil, nil, err
	}
	e := root.RootEntity()
	if id := e.IDProperty(); id == nil || id.IsEmbedded() {
		return nil, nil, relagg.NewUnsupportedError(e.Name(), "single query load requires a simple identifier")
	}
	children, err := g.paths.Paths(t, mapping.IsTableEntity)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range children {
		if c.Parent().TableOwningAncestor() != root {
			return nil, nil, relagg.NewUnsupportedError(e.Name(), "single query load of nested path "+c.DotPath())
		}
	}
	return root, children, nil
}

func (g *Generator) rootQuery(root *aggpath.Path, aliases *AliasFactory, where *sql.Predicate, table *Table) (*sql.Selector, error) {
	table.Path = root
	alias := aliases.Table(root)
	table.RowNumber = aliases.RowNumber(root)
	s := sql.SelectExpr(
		sql.As(sql.Lit(1), table.RowNumber),
		sql.As(sql.Lit(1), aliases.RowCount(root)),
	)
	if err := simpleColumns(s, root, aliases, table); err != nil {
		return nil, err
	}
	s.From(tableOf(root)).Where(where)
	return s.As(alias), nil
}

func (g *Generator) childQuery(p *aggpath.Path, aliases *AliasFactory, table *Table) (*sql.Selector, error) {
	table.Path = p
	alias := aliases.Table(p)
	ti := p.TableInfo()
	rev, err := ti.ReverseColumnInfo()
	if err != nil {
		return nil, err
	}
	table.RowNumber = aliases.RowNumber(p)
	table.Key = aliases.Key(p)
	order := []string{rev.Name}
	switch {
	case ti.QualifierColumnInfo != nil:
		order = []string{ti.QualifierColumnInfo.Name}
	case !ti.IDColumnInfos.IsEmpty():
		order = ti.IDColumnInfos.Names()
	}
	s := sql.SelectExpr(
		sql.As(sql.RowNumber().PartitionBy(rev.Name).OrderBy(order...), table.RowNumber),
		sql.As(sql.CountOver().PartitionBy(rev.Name), aliases.RowCount(p)),
		sql.As(sql.C(rev.Name), aliases.BackReference(p)),
	)
	if ti.QualifierColumnInfo != nil {
		s.AppendSelectAs(sql.C(ti.QualifierColumnInfo.Name), table.Key)
	} else {
		s.AppendSelectAs(sql.RowNumber().PartitionBy(rev.Name).OrderBy(order...), table.Key)
	}
	if err := simpleColumns(s, p, aliases, table); err != nil {
		return nil, err
	}
	return s.From(tableOf(p)).As(alias), nil
}

// simpleColumns appends the simple properties of the leaf entity of p,
// including those of embedded values, to s.
func simpleColumns(s *sql.Selector, p *aggpath.Path, aliases *AliasFactory, table *Table) error {
	e, err := p.RequiredLeafEntity()
	if err != nil {
		return err
	}
	for _, prop := range e.Properties() {
		if prop.IsEntity() && !prop.IsEmbedded() {
			continue
		}
		cp, err := p.Append(prop)
		if err != nil {
			return err
		}
		if prop.IsEmbedded() {
			if err := simpleColumns(s, cp, aliases, table); err != nil {
				return err
			}
			continue
		}
		alias := aliases.Column(cp)
		s.AppendSelectAs(sql.C(cp.ColumnInfo().Name), alias)
		if prop.IsIDProperty() && p == table.Path {
			table.ID = alias
			continue
		}
		table.Columns = append(table.Columns, Column{Path: cp, Alias: alias})
	}
	return nil
}

func tableOf(p *aggpath.Path) *sql.SelectTable {
	ti := p.TableInfo()
	return sql.Table(ti.TableName).Schema(ti.Schema)
}

// selectTable selects every alias of an inline query in the main select.
func selectTable(s *sql.Selector, t Table) {
	s.AppendSelect(t.RowNumber)
	if t.Key != "" {
		s.AppendSelect(t.Key)
	}
	if t.ID != "" {
		s.AppendSelect(t.ID)
	}
	for _, c := range t.Columns {
		s.AppendSelect(c.Alias)
	}
}

// alignRows returns the condition keeping, for every pair of collections,
// the rows at equal positions, the rows where either side is absent and the
// rows past the end of the shorter side paired with its first row.
func alignRows(children []Table, aliases *AliasFactory) *sql.Predicate {
	var preds []*sql.Predicate
	for i, l := range children {
		for _, r := range children[i+1:] {
			rnL, rnR := l.RowNumber, r.RowNumber
			rcL, rcR := aliases.RowCount(l.Path), aliases.RowCount(r.Path)
			preds = append(preds, sql.Or(
				sql.ColumnsEQ(rnL, rnR),
				sql.IsNull(rnL),
				sql.IsNull(rnR),
				sql.And(sql.ColumnsGT(rnL, rcR), sql.EQ(rnR, sql.Lit(1))),
				sql.And(sql.ColumnsGT(rnR, rcL), sql.EQ(rnL, sql.Lit(1))),
			))
		}
	}
	if len(preds) == 0 {
		return nil
	}
	return sql.And(preds...)
}

// rowNumber returns the combined row number: the largest row number of all
// collections, 1 when there are none.
func rowNumber(children []Table) sql.Expression {
	if len(children) == 0 {
		return sql.Lit(1)
	}
	exprs := make([]sql.Expression, len(children))
	for i, c := range children {
		exprs[i] = sql.Coalesce(sql.C(c.RowNumber), sql.Lit(1))
	}
	return sql.Greatest(exprs...)
}
