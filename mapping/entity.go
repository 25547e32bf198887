package mapping

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/relagg"
)

// Tabler is implemented by entities that define their own table name.
type Tabler interface {
	TableName() string
}

// Entity is the metadata of an entity struct type.
type Entity struct {
	ctx     *Context
	typ     reflect.Type
	table   string
	schema  string
	props   []*Property
	byName  map[string]*Property
	id      *Property
	version *Property
}

// Type returns the struct type of the entity.
func (e *Entity) Type() reflect.Type { return e.typ }

// Context returns the mapping context the entity belongs to.
func (e *Entity) Context() *Context { return e.ctx }

// Name returns the Go type name of the entity.
func (e *Entity) Name() string { return e.typ.Name() }

// TableName returns the unqualified table name.
func (e *Entity) TableName() string { return e.table }

// Schema returns the schema of the table, or "".
func (e *Entity) Schema() string { return e.schema }

// QualifiedTableName returns the table name prefixed by its schema, if any.
func (e *Entity) QualifiedTableName() string {
	if e.schema == "" {
		return e.table
	}
	return e.schema + "." + e.table
}

// Properties returns the persistent properties in field order.
func (e *Entity) Properties() []*Property { return e.props }

// Property returns the property with the given Go field name.
func (e *Entity) Property(name string) (*Property, bool) {
	p, ok := e.byName[name]
	return p, ok
}

// HasIDProperty reports whether the entity declares an identifier.
func (e *Entity) HasIDProperty() bool { return e.id != nil }

// IDProperty returns the identifier property, or nil.
func (e *Entity) IDProperty() *Property { return e.id }

// RequiredIDProperty returns the identifier property or an error if the
// entity declares none.
func (e *Entity) RequiredIDProperty() (*Property, error) {
	if e.id == nil {
		return nil, relagg.NewMetadataError(e.Name(), "", "entity has no identifier property", nil)
	}
	return e.id, nil
}

// HasVersionProperty reports whether the entity declares a version.
func (e *Entity) HasVersionProperty() bool { return e.version != nil }

// VersionProperty returns the version property, or nil.
func (e *Entity) VersionProperty() *Property { return e.version }

// ID returns the identifier value of the given instance, or nil.
func (e *Entity) ID(instance any) any {
	if e.id == nil {
		return nil
	}
	return e.ctx.accessor.Get(instance, e.id)
}

// Version returns the version value of the given instance, or nil.
func (e *Entity) Version(instance any) any {
	if e.version == nil {
		return nil
	}
	return e.ctx.accessor.Get(instance, e.version)
}

// String returns the entity name.
func (e *Entity) String() string { return e.Name() }

func (c *Context) build(t reflect.Type) (*Entity, error) {
	e := &Entity{ctx: c, typ: t, byName: make(map[string]*Property)}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, tagged := f.Tag.Lookup("db")
		opts := parseTag(tag)
		if opts.skip {
			continue
		}
		if len(opts.unknown) > 0 {
			return nil, relagg.NewMetadataError(t.Name(), f.Name,
				fmt.Sprintf("unknown tag options %s", strings.Join(opts.unknown, ", ")), nil)
		}
		p := &Property{
			Name:     f.Name,
			owner:    e,
			index:    i,
			typ:      f.Type,
			actual:   f.Type,
			keyCol:   opts.key,
			refCol:   opts.ref,
			prefix:   opts.prefix,
			sequence: opts.sequence,
			id:       opts.id,
			version:  opts.version,
			readonly: opts.readonly,
		}
		if f.Anonymous && !tagged {
			if _, ok := structType(f.Type); ok {
				opts.embedded = true
			}
		}
		if err := classify(p, opts); err != nil {
			return nil, err
		}
		p.column = opts.name
		if p.column == "" {
			p.column = c.naming.ColumnName(p)
		}
		switch {
		case p.id && e.id != nil:
			return nil, relagg.NewMetadataError(t.Name(), f.Name, "multiple identifier properties", nil)
		case p.id && p.kind != KindSimple && p.kind != KindEmbedded:
			return nil, relagg.NewMetadataError(t.Name(), f.Name, "identifier must be a column or an embedded value", nil)
		case p.id:
			e.id = p
		}
		if p.version {
			if p.kind != KindSimple || e.version != nil {
				return nil, relagg.NewMetadataError(t.Name(), f.Name, "invalid version property", nil)
			}
			e.version = p
		}
		e.props = append(e.props, p)
		e.byName[p.Name] = p
	}
	if p, ok := e.byName["ID"]; e.id == nil && ok && p.kind == KindSimple {
		p.id = true
		e.id = p
	}
	if err := c.resolveNames(e); err != nil {
		return nil, err
	}
	return e, nil
}

func classify(p *Property, opts tagOptions) error {
	t := p.typ
	switch {
	case opts.embedded:
		st, ok := structType(t)
		if !ok {
			return relagg.NewMetadataError(p.owner.Name(), p.Name, "embedded property must be a struct", nil)
		}
		p.kind, p.actual = KindEmbedded, st
	case isSimple(t):
	case t.Kind() == reflect.Slice:
		if st, ok := structType(t.Elem()); ok {
			p.kind, p.actual = KindList, st
			if opts.set {
				p.kind = KindSet
			}
		}
	case t.Kind() == reflect.Map:
		if st, ok := structType(t.Elem()); ok {
			p.kind, p.actual, p.key = KindMap, st, t.Key()
		}
	default:
		if st, ok := structType(t); ok {
			p.kind, p.actual = KindReference, st
		}
	}
	return nil
}

func (c *Context) resolveNames(e *Entity) error {
	rc := ResolveContext{Entity: e.Name(), Table: c.naming.TableName(e.typ), Vars: c.vars}
	e.table = rc.Table
	if r, ok := c.tables[e.typ]; ok {
		name, err := r.Resolve(rc)
		if err != nil {
			return relagg.NewMetadataError(e.Name(), "", "resolve table name", err)
		}
		e.table = name
	} else if t, ok := reflect.New(e.typ).Interface().(Tabler); ok {
		e.table = t.TableName()
	}
	e.schema = c.naming.Schema()
	if c.schema != nil {
		name, err := c.schema.Resolve(rc)
		if err != nil {
			return relagg.NewMetadataError(e.Name(), "", "resolve schema name", err)
		}
		e.schema = name
	}
	return nil
}
