// Package aggpath implements the aggregate path algebra: positions in the
// property tree of an aggregate and the table, column and alias names
// derived from them.
package aggpath

import (
	"cmp"
	"reflect"
	"strings"
	"sync"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/mapping"
)

// Path identifies a property reachable from an aggregate root by a chain of
// property traversals. The root path has length 0 and identifies the root
// itself. Paths are immutable and interned by their Factory, so two paths
// of the same factory denote the same position if and only if they are the
// same pointer.
type Path struct {
	f      *Factory
	root   *mapping.Entity
	props  mapping.PropertyPath
	parent *Path
	leaf   *mapping.Entity
	key    string

	table func() TableInfo
}

// IsRoot reports whether p is the root path.
func (p *Path) IsRoot() bool { return len(p.props) == 0 }

// Len returns the number of property traversals.
func (p *Path) Len() int { return len(p.props) }

// Parent returns the path without its leaf property. It panics on the
// root path.
func (p *Path) Parent() *Path {
	if p.IsRoot() {
		panic(relagg.NewInvariantError("Parent", p.root.Name(), "root path has no parent"))
	}
	return p.parent
}

// Leaf returns the last property of the path. It panics on the root path.
func (p *Path) Leaf() *mapping.Property {
	if p.IsRoot() {
		panic(relagg.NewInvariantError("Leaf", p.root.Name(), "root path has no leaf property"))
	}
	return p.props[len(p.props)-1]
}

// RootEntity returns the entity the path is anchored at.
func (p *Path) RootEntity() *mapping.Entity { return p.root }

// LeafEntity returns the entity at the end of the path: the root entity for
// the root path and nil when the leaf property is not entity-valued.
func (p *Path) LeafEntity() *mapping.Entity { return p.leaf }

// RequiredLeafEntity is like LeafEntity but returns an error when the leaf
// is not an entity.
func (p *Path) RequiredLeafEntity() (*mapping.Entity, error) {
	if p.leaf == nil {
		return nil, relagg.NewMetadataError(p.root.Name(), p.DotPath(), "leaf property is not an entity", nil)
	}
	return p.leaf, nil
}

// Properties returns the property chain of the path.
func (p *Path) Properties() mapping.PropertyPath { return p.props }

// Factory returns the factory that created the path.
func (p *Path) Factory() *Factory { return p.f }

// IsEntity reports whether the path denotes an entity or embedded value.
func (p *Path) IsEntity() bool { return p.IsRoot() || p.Leaf().IsEntity() }

// IsEmbedded reports whether the leaf is an embedded value.
func (p *Path) IsEmbedded() bool { return !p.IsRoot() && p.Leaf().IsEmbedded() }

// IsQualified reports whether the leaf is a list or map.
func (p *Path) IsQualified() bool { return !p.IsRoot() && p.Leaf().IsQualified() }

// IsMap reports whether the leaf is a map.
func (p *Path) IsMap() bool { return !p.IsRoot() && p.Leaf().IsMap() }

// IsCollectionLike reports whether the leaf is a slice of entities.
func (p *Path) IsCollectionLike() bool { return !p.IsRoot() && p.Leaf().IsCollectionLike() }

// IsOrdered reports whether the leaf is an ordered list.
func (p *Path) IsOrdered() bool { return !p.IsRoot() && p.Leaf().IsOrdered() }

// IsMultiValued reports whether the leaf holds several entities.
func (p *Path) IsMultiValued() bool { return p.IsCollectionLike() || p.IsMap() }

// HasIDProperty reports whether the leaf entity declares an identifier.
func (p *Path) HasIDProperty() bool { return p.leaf != nil && p.leaf.HasIDProperty() }

// IDDefiningParent returns the nearest strict ancestor whose entity declares
// an identifier, or the root path. It panics on the root path.
func (p *Path) IDDefiningParent() *Path {
	parent := p.Parent()
	if parent.IsRoot() || parent.HasIDProperty() {
		return parent
	}
	return parent.IDDefiningParent()
}

// TableOwningAncestor returns the longest prefix of p denoting an entity
// that is not embedded, which may be p itself.
func (p *Path) TableOwningAncestor() *Path {
	if p.IsEntity() && !p.IsEmbedded() {
		return p
	}
	return p.parent.TableOwningAncestor()
}

// Append returns the path extended by the given property of the leaf entity.
func (p *Path) Append(prop *mapping.Property) (*Path, error) {
	props := make(mapping.PropertyPath, 0, len(p.props)+1)
	props = append(append(props, p.props...), prop)
	return p.f.For(props)
}

// StartsWith reports whether base is a prefix of p (or p itself).
func (p *Path) StartsWith(base *Path) bool {
	if p.root != base.root || base.Len() > p.Len() {
		return false
	}
	for i, prop := range base.props {
		if p.props[i] != prop {
			return false
		}
	}
	return true
}

// Subtract returns the property chain leading from base to p. It reports
// false when base is not a prefix of p.
func (p *Path) Subtract(base *Path) (mapping.PropertyPath, bool) {
	if !p.StartsWith(base) {
		return nil, false
	}
	return p.props[base.Len():], true
}

// Compare orders paths by root entity name, then by length, then by
// property names.
func (p *Path) Compare(o *Path) int {
	if c := cmp.Compare(p.root.Name(), o.root.Name()); c != 0 {
		return c
	}
	if c := cmp.Compare(p.Len(), o.Len()); c != 0 {
		return c
	}
	return cmp.Compare(p.DotPath(), o.DotPath())
}

// Equal reports whether the paths denote the same position.
func (p *Path) Equal(o *Path) bool {
	return p == o || o != nil && p.root.Type() == o.root.Type() && p.key == o.key
}

// DotPath returns the dot separated property names, "" for the root.
func (p *Path) DotPath() string { return p.key }

// String returns the root entity name followed by the property names.
func (p *Path) String() string {
	if p.IsRoot() {
		return p.root.Name()
	}
	return p.root.Name() + "." + p.key
}

// TableInfo returns the table facts of the path.
func (p *Path) TableInfo() TableInfo { return p.table() }

// ColumnInfo returns the column of the leaf property, prefixed by the
// prefixes of embedded ancestors. It panics on the root path.
func (p *Path) ColumnInfo() ColumnInfo {
	name := p.columnName(p.Leaf().ColumnName())
	return ColumnInfo{Name: name, Alias: prefixed(p.TableInfo().TableAlias, name)}
}

func (p *Path) columnName(suffix string) string {
	if p.Len() <= 1 {
		return suffix
	}
	parent := p.parent.Leaf()
	if !parent.IsEmbedded() {
		return suffix
	}
	return p.parent.columnName(parent.EmbeddedPrefix() + suffix)
}

func (p *Path) tableAlias() string {
	owner := p.TableOwningAncestor()
	if owner.IsRoot() {
		return ""
	}
	return owner.assembleAlias()
}

// assembleAlias joins property names from the root down. Embedded segments
// contribute their prefix with no separator. The result is an unquoted
// identifier; dialects quote it when rendering.
func (p *Path) assembleAlias() string {
	leaf := p.Leaf()
	prefix := leaf.Name
	if leaf.IsEmbedded() {
		prefix = leaf.EmbeddedPrefix()
	}
	if p.Len() == 1 {
		return prefix
	}
	alias := p.parent.assembleAlias()
	if p.parent.IsEmbedded() {
		return alias + prefix
	}
	return alias + "_" + prefix
}

func prefixed(alias, name string) string {
	if alias == "" {
		return name
	}
	return alias + "_" + name
}

type pathKey struct {
	root  reflect.Type
	chain string
}

// Factory creates and interns paths. Derived facts are memoized per path.
// A Factory is safe for concurrent use.
type Factory struct {
	ctx   *mapping.Context
	paths sync.Map // pathKey => *Path
}

// NewFactory returns a path factory over the given mapping context.
func NewFactory(ctx *mapping.Context) *Factory {
	return &Factory{ctx: ctx}
}

// Context returns the mapping context of the factory.
func (f *Factory) Context() *mapping.Context { return f.ctx }

// Root returns the root path of the given entity type.
func (f *Factory) Root(t reflect.Type) (*Path, error) {
	e, err := f.ctx.Entity(t)
	if err != nil {
		return nil, err
	}
	return f.RootOf(e), nil
}

// RootOf returns the root path of the given entity.
func (f *Factory) RootOf(e *mapping.Entity) *Path {
	k := pathKey{root: e.Type()}
	if v, ok := f.paths.Load(k); ok {
		return v.(*Path)
	}
	p := f.newPath(&Path{f: f, root: e, leaf: e})
	v, _ := f.paths.LoadOrStore(k, p)
	return v.(*Path)
}

// For returns the path of the given property chain, anchored at the owner
// of its first property.
func (f *Factory) For(props mapping.PropertyPath) (*Path, error) {
	if len(props) == 0 {
		return nil, relagg.NewInvariantError("For", "", "empty property path")
	}
	root := props[0].Owner()
	k := pathKey{root: root.Type(), chain: props.String()}
	if v, ok := f.paths.Load(k); ok {
		return v.(*Path), nil
	}
	parent := f.RootOf(root)
	if len(props) > 1 {
		var err error
		if parent, err = f.For(props[:len(props)-1]); err != nil {
			return nil, err
		}
	}
	leaf := props[len(props)-1]
	if parent.leaf == nil || leaf.Owner().Type() != parent.leaf.Type() {
		return nil, relagg.NewMetadataError(root.Name(), k.chain, "property "+leaf.Name+" is not declared by its parent", nil)
	}
	p := &Path{f: f, root: root, props: append(mapping.PropertyPath(nil), props...), parent: parent, key: k.chain}
	if leaf.IsEntity() {
		e, err := f.ctx.PropertyEntity(leaf)
		if err != nil {
			return nil, err
		}
		p.leaf = e
	}
	v, _ := f.paths.LoadOrStore(k, f.newPath(p))
	return v.(*Path), nil
}

// Paths returns the paths of all properties reachable from the given entity
// type whose leaf matches filter, parents before children.
func (f *Factory) Paths(t reflect.Type, filter func(*mapping.Property) bool) ([]*Path, error) {
	chains, err := f.ctx.FindPropertyPaths(t, filter)
	if err != nil {
		return nil, err
	}
	paths := make([]*Path, 0, len(chains))
	for _, c := range chains {
		p, err := f.For(c)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Parse returns the path denoted by dot separated property names from the
// given root type, such as "Lines.Items".
func (f *Factory) Parse(t reflect.Type, dotted string) (*Path, error) {
	p, err := f.Root(t)
	if err != nil || dotted == "" {
		return p, err
	}
	for _, name := range strings.Split(dotted, ".") {
		if p.leaf == nil {
			return nil, relagg.NewMetadataError(p.root.Name(), dotted, "cannot traverse simple property", nil)
		}
		prop, ok := p.leaf.Property(name)
		if !ok {
			return nil, relagg.NewMetadataError(p.leaf.Name(), dotted, "unknown property "+name, nil)
		}
		if p, err = p.Append(prop); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (f *Factory) newPath(p *Path) *Path {
	p.table = sync.OnceValue(p.computeTableInfo)
	return p
}
