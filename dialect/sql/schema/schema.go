// Package schema derives the tables storing aggregates from their mapping
// and creates them using Atlas.
//
// Every aggregate root gets a table holding its simple and embedded
// properties. Every entity-valued property below it gets a table holding
// the reverse columns referencing the row of its id-defining parent, the
// qualifier columns of every list or map on the way down, and its own
// simple properties.
//
//	m, err := schema.NewMigrate(drv, paths)
//	if err != nil {
//		return err
//	}
//	if err := m.Create(ctx, reflect.TypeFor[Order]()); err != nil {
//		return err
//	}
package schema

import (
	"reflect"
	"slices"
	"strings"
	"time"

	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
	"github.com/google/uuid"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/dialect"
	"github.com/syssam/relagg/mapping"
)

var (
	timeType  = reflect.TypeFor[time.Time]()
	uuidType  = reflect.TypeFor[uuid.UUID]()
	int64Type = reflect.TypeFor[int64]()
)

// Tables returns the tables of the given aggregate root types, roots
// first, every child table after the table it references. Types appearing
// more than once are derived once.
func Tables(d string, paths *aggpath.Factory, types ...reflect.Type) ([]*schema.Table, error) {
	b := newBuilder(d, paths, true)
	if err := b.build(types); err != nil {
		return nil, err
	}
	return b.tables, nil
}

func newBuilder(d string, paths *aggpath.Factory, fks bool) *builder {
	return &builder{
		dialect: d,
		paths:   paths,
		fks:     fks,
		schemas: make(map[string]*schema.Schema),
		byPath:  make(map[*aggpath.Path]*schema.Table),
	}
}

type builder struct {
	dialect string
	paths   *aggpath.Factory
	fks     bool
	tables  []*schema.Table
	schemas map[string]*schema.Schema
	byPath  map[*aggpath.Path]*schema.Table
	// sequences holds the identifier sequences in order of appearance.
	sequences []string
}

func (b *builder) build(types []reflect.Type) error {
	seen := make(map[*aggpath.Path]bool)
	for _, t := range types {
		root, err := b.paths.Root(t)
		if err != nil {
			return err
		}
		if seen[root] {
			continue
		}
		seen[root] = true
		if err := b.root(root); err != nil {
			return err
		}
		children, err := b.paths.Paths(root.RootEntity().Type(), mapping.IsTableEntity)
		if err != nil {
			return err
		}
		for _, p := range children {
			if err := b.child(p); err != nil {
				return err
			}
		}
	}
	if res := ValidateSchema(b.tables); res.HasErrors() {
		return relagg.NewMetadataError("", "", "invalid tables", res.Err())
	}
	return nil
}

func (b *builder) root(p *aggpath.Path) error {
	t, err := b.table(p)
	if err != nil {
		return err
	}
	if ids := b.idColumns(t, p); len(ids) > 0 {
		t.SetPrimaryKey(schema.NewPrimaryKey(ids...))
	}
	return nil
}

func (b *builder) child(p *aggpath.Path) error {
	target := p.IDDefiningParent()
	ti := p.TableInfo()
	t := b.newTable(ti)
	var keys []*schema.Column
	for key, info := range ti.ReverseColumnInfos.All() {
		c := column(info.Name, b.columnType(b.reverseType(target, key)), false)
		t.AddColumns(c)
		keys = append(keys, c)
	}
	refInfos := target.TableInfo().IDColumnInfos
	if ref, ok := b.byPath[target]; ok && b.fks && !refInfos.IsEmpty() {
		fk := schema.NewForeignKey(ti.TableName + "_" + strings.Join(ti.ReverseColumnInfos.Names(), "_") + "_fk").
			AddColumns(keys...).
			SetRefTable(ref)
		for key := range ti.ReverseColumnInfos.All() {
			info, ok := refInfos.Get(key)
			if !ok {
				return relagg.NewMetadataError(p.RootEntity().Name(), p.DotPath(), "no identifier column for reverse column "+key, nil)
			}
			rc, ok := ref.Column(info.Name)
			if !ok {
				return relagg.NewMetadataError(p.RootEntity().Name(), p.DotPath(), "missing referenced column "+info.Name, nil)
			}
			fk.AddRefColumns(rc)
		}
		t.AddForeignKeys(fk)
	}
	quals, unique := qualifiers(p, target)
	for _, q := range quals {
		qi := q.TableInfo()
		c := column(qi.QualifierColumnInfo.Name, b.columnType(qi.QualifierType), false)
		t.AddColumns(c)
		keys = append(keys, c)
	}
	if err := b.valueColumns(t, p); err != nil {
		return err
	}
	switch ids := b.idColumns(t, p); {
	case len(ids) > 0:
		t.SetPrimaryKey(schema.NewPrimaryKey(ids...))
		t.AddIndexes(schema.NewIndex(ti.TableName + "_" + keyNames(keys) + "_idx").AddColumns(keys...))
	case unique:
		t.SetPrimaryKey(schema.NewPrimaryKey(keys...))
	default:
		t.AddIndexes(schema.NewIndex(ti.TableName + "_" + keyNames(keys) + "_idx").AddColumns(keys...))
	}
	b.add(p, t)
	return nil
}

// qualifiers returns the qualified paths from just below target down to p,
// outermost first. unique reports whether the reverse and qualifier columns
// identify a row, which fails once a set lies on the way.
func qualifiers(p, target *aggpath.Path) (quals []*aggpath.Path, unique bool) {
	unique = true
	for q := p; q != target; q = q.Parent() {
		switch {
		case q.IsQualified():
			quals = append(quals, q)
		case q.IsCollectionLike():
			unique = false
		}
	}
	slices.Reverse(quals)
	return quals, unique
}

func (b *builder) table(p *aggpath.Path) (*schema.Table, error) {
	t := b.newTable(p.TableInfo())
	if err := b.valueColumns(t, p); err != nil {
		return nil, err
	}
	b.add(p, t)
	return t, nil
}

func (b *builder) newTable(ti aggpath.TableInfo) *schema.Table {
	s, ok := b.schemas[ti.Schema]
	if !ok {
		s = schema.New(ti.Schema)
		b.schemas[ti.Schema] = s
	}
	t := schema.NewTable(ti.TableName)
	s.AddTables(t)
	return t
}

func (b *builder) add(p *aggpath.Path, t *schema.Table) {
	b.tables = append(b.tables, t)
	b.byPath[p] = t
}

// valueColumns adds the columns of the simple and embedded properties of
// the leaf entity of p.
func (b *builder) valueColumns(t *schema.Table, p *aggpath.Path) error {
	var walk func(base *aggpath.Path, id bool) error
	walk = func(base *aggpath.Path, id bool) error {
		e, err := base.RequiredLeafEntity()
		if err != nil {
			return err
		}
		for _, prop := range e.Properties() {
			if prop.IsEntity() && !prop.IsEmbedded() {
				continue
			}
			cp, err := base.Append(prop)
			if err != nil {
				return err
			}
			isID := id || base == p && prop.IsIDProperty()
			if prop.IsEmbedded() {
				if err := walk(cp, isID); err != nil {
					return err
				}
				continue
			}
			name := cp.ColumnInfo().Name
			version := base == p && prop.IsVersionProperty()
			c := column(name, b.columnType(prop.Type()), !isID && !version)
			if isID && base == p && prop.Sequence() == "" && isInteger(prop.Type()) {
				b.autoIncrement(c)
			}
			if seq := prop.Sequence(); seq != "" && !slices.Contains(b.sequences, seq) {
				b.sequences = append(b.sequences, seq)
			}
			t.AddColumns(c)
		}
		return nil
	}
	return walk(p, false)
}

// idColumns returns the identifier columns of the table of p.
func (b *builder) idColumns(t *schema.Table, p *aggpath.Path) []*schema.Column {
	var ids []*schema.Column
	for _, info := range p.TableInfo().IDColumnInfos.All() {
		if c, ok := t.Column(info.Name); ok {
			ids = append(ids, c)
		}
	}
	return ids
}

func (b *builder) autoIncrement(c *schema.Column) {
	switch b.dialect {
	case dialect.SQLite:
		c.Type.Type = &schema.IntegerType{T: "integer"}
		c.AddAttrs(&sqlite.AutoIncrement{})
	case dialect.MySQL:
		c.AddAttrs(&mysql.AutoIncrement{})
	case dialect.Postgres:
		c.AddAttrs(&postgres.Identity{Generation: "BY DEFAULT"})
	}
}

// reverseType returns the Go type of the identifier part of target keyed
// by key (see aggpath.ColumnInfos).
func (b *builder) reverseType(target *aggpath.Path, key string) reflect.Type {
	e := target.LeafEntity()
	id := e.IDProperty()
	if id == nil {
		return int64Type
	}
	if key == "" {
		return id.Type()
	}
	ide, err := e.Context().PropertyEntity(id)
	if err != nil {
		return int64Type
	}
	if q, ok := ide.Property(key); ok {
		return q.Type()
	}
	return int64Type
}

// columnType maps a Go type to the column type of the dialect. Types
// without a dedicated column type, such as driver.Valuer implementations,
// are stored as text.
func (b *builder) columnType(t reflect.Type) schema.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	pg, my := b.dialect == dialect.Postgres, b.dialect == dialect.MySQL
	switch {
	case t == uuidType && pg:
		return &schema.UUIDType{T: "uuid"}
	case t == uuidType:
		return &schema.StringType{T: "char", Size: 36}
	case t == timeType && pg:
		return &schema.TimeType{T: "timestamp with time zone"}
	case t == timeType && my:
		return &schema.TimeType{T: "timestamp"}
	case t == timeType:
		return &schema.TimeType{T: "datetime"}
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 && pg:
		return &schema.BinaryType{T: "bytea"}
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return &schema.BinaryType{T: "blob"}
	}
	switch t.Kind() {
	case reflect.Bool:
		return &schema.BoolType{T: "boolean"}
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return b.intType("smallint", false)
	case reflect.Int32, reflect.Uint16:
		return b.intType("integer", false)
	case reflect.Int, reflect.Int64:
		return b.intType("bigint", false)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		return b.intType("bigint", my)
	case reflect.Float32, reflect.Float64:
		switch {
		case pg:
			return &schema.FloatType{T: "double precision"}
		case my:
			return &schema.FloatType{T: "double"}
		default:
			return &schema.FloatType{T: "real"}
		}
	case reflect.String:
		if my {
			return &schema.StringType{T: "varchar", Size: 255}
		}
		return &schema.StringType{T: "text"}
	default:
		if my {
			return &schema.StringType{T: "longtext"}
		}
		return &schema.StringType{T: "text"}
	}
}

// intType returns an integer type. SQLite integer columns are all declared
// as "integer".
func (b *builder) intType(name string, unsigned bool) schema.Type {
	if b.dialect == dialect.SQLite {
		name = "integer"
	}
	return &schema.IntegerType{T: name, Unsigned: unsigned}
}

func column(name string, t schema.Type, null bool) *schema.Column {
	return &schema.Column{Name: name, Type: &schema.ColumnType{Type: t, Null: null}}
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func keyNames(cols []*schema.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return strings.Join(names, "_")
}
