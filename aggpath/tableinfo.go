package aggpath

import (
	"iter"
	"reflect"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/mapping"
)

// ColumnInfo names a column and its alias in a select over an aggregate.
type ColumnInfo struct {
	Name  string
	Alias string
}

// ColumnInfos is an ordered collection of columns keyed by the property
// chain (see Path.Subtract) leading from a base path to each column. Simple
// identifiers have a single column keyed by "".
type ColumnInfos struct {
	keys  []string
	infos []ColumnInfo
}

func (c *ColumnInfos) add(key string, info ColumnInfo) {
	c.keys = append(c.keys, key)
	c.infos = append(c.infos, info)
}

// Len returns the number of columns.
func (c ColumnInfos) Len() int { return len(c.infos) }

// IsEmpty reports whether there are no columns.
func (c ColumnInfos) IsEmpty() bool { return len(c.infos) == 0 }

// Get returns the column of the given relative property chain.
func (c ColumnInfos) Get(key string) (ColumnInfo, bool) {
	for i, k := range c.keys {
		if k == key {
			return c.infos[i], true
		}
	}
	return ColumnInfo{}, false
}

// Any returns the first column. It panics when empty.
func (c ColumnInfos) Any() ColumnInfo {
	if c.IsEmpty() {
		panic(relagg.NewInvariantError("ColumnInfos", "", "no columns"))
	}
	return c.infos[0]
}

// Unique returns the only column or an error when there is not exactly one.
func (c ColumnInfos) Unique() (ColumnInfo, error) {
	if len(c.infos) != 1 {
		return ColumnInfo{}, relagg.Invariantf("ColumnInfos", "", "expected exactly one column, got %d", len(c.infos))
	}
	return c.infos[0], nil
}

// Names returns the column names in order.
func (c ColumnInfos) Names() []string {
	names := make([]string, len(c.infos))
	for i, info := range c.infos {
		names[i] = info.Name
	}
	return names
}

// All iterates over the relative keys and columns in order.
func (c ColumnInfos) All() iter.Seq2[string, ColumnInfo] {
	return func(yield func(string, ColumnInfo) bool) {
		for i, k := range c.keys {
			if !yield(k, c.infos[i]) {
				return
			}
		}
	}
}

// TableInfo holds the table facts of a path, derived from its table-owning
// ancestor.
type TableInfo struct {
	// QualifiedTableName is the table name prefixed by its schema, if any.
	QualifiedTableName string
	TableName          string
	Schema             string
	// TableAlias is "" for tables owned by the root.
	TableAlias string
	// ReverseColumnInfos are the columns referencing the row of the id-defining
	// parent, keyed by the parent identifier's relative property chain.
	// Empty for the root table.
	ReverseColumnInfos ColumnInfos
	// QualifierColumnInfo is the list index or map key column, or nil.
	QualifierColumnInfo *ColumnInfo
	// QualifierType is int for lists and the key type for maps, or nil.
	QualifierType reflect.Type
	// IDColumnInfos are the identifier columns of the table, if any.
	IDColumnInfos ColumnInfos
}

// ReverseColumnInfo returns the single reverse column. It returns an error
// for root tables and composite parent identifiers.
func (t TableInfo) ReverseColumnInfo() (ColumnInfo, error) {
	return t.ReverseColumnInfos.Unique()
}

func (p *Path) computeTableInfo() TableInfo {
	owner := p.TableOwningAncestor()
	e := owner.leaf
	ti := TableInfo{
		QualifiedTableName: e.QualifiedTableName(),
		TableName:          e.TableName(),
		Schema:             e.Schema(),
		TableAlias:         p.tableAlias(),
	}
	if !owner.IsRoot() {
		parent := owner.IDDefiningParent()
		leaf := owner.Leaf()
		reverse := leaf.ReverseColumnName(parent.leaf)
		for key, suffix := range idColumnSuffixes(parent.leaf) {
			name := reverse
			if suffix != "" {
				name += "_" + suffix
			}
			ti.ReverseColumnInfos.add(key, ColumnInfo{Name: name, Alias: prefixed(ti.TableAlias, name)})
		}
		if leaf.IsQualified() {
			key := leaf.KeyColumn()
			ti.QualifierColumnInfo = &ColumnInfo{Name: key, Alias: prefixed(ti.TableAlias, key)}
			ti.QualifierType = leaf.QualifierType()
		}
	}
	if id := e.IDProperty(); id != nil {
		idPath, err := owner.Append(id)
		if err != nil {
			panic(err)
		}
		if !id.IsEmbedded() {
			name := idPath.columnName(id.ColumnName())
			ti.IDColumnInfos.add("", ColumnInfo{Name: name, Alias: prefixed(ti.TableAlias, name)})
		} else if ide := idPath.leaf; ide != nil {
			for _, q := range ide.Properties() {
				if q.IsEntity() {
					continue
				}
				qp, err := idPath.Append(q)
				if err != nil {
					panic(err)
				}
				rel, _ := qp.Subtract(idPath)
				name := qp.columnName(q.ColumnName())
				ti.IDColumnInfos.add(rel.String(), ColumnInfo{Name: name, Alias: prefixed(ti.TableAlias, name)})
			}
		}
	}
	return ti
}

// idColumnSuffixes yields the relative key and the column suffix of every
// identifier column of e. Entities without or with a simple identifier have
// a single unsuffixed entry.
func idColumnSuffixes(e *mapping.Entity) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		id := e.IDProperty()
		if id == nil || !id.IsEmbedded() {
			yield("", "")
			return
		}
		ide, err := e.Context().PropertyEntity(id)
		if err != nil {
			panic(err)
		}
		for _, q := range ide.Properties() {
			if q.IsEntity() {
				continue
			}
			if !yield(q.Name, q.ColumnName()) {
				return
			}
		}
	}
}
