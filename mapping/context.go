package mapping

import (
	"cmp"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/syssam/relagg"
)

// Context holds the metadata of all entities known to a mapping. Entities
// are introspected on first use and cached. A Context is safe for
// concurrent use.
type Context struct {
	naming   NamingStrategy
	accessor PropertyAccessor
	schema   NameResolver
	tables   map[reflect.Type]NameResolver
	vars     map[string]string
	log      *slog.Logger

	mu       sync.RWMutex
	entities map[reflect.Type]*Entity
}

// Option configures a Context.
type Option func(*Context) error

// WithNamingStrategy sets the naming strategy. Strategies are wrapped by a
// CachingNamingStrategy scoped to the context.
func WithNamingStrategy(ns NamingStrategy) Option {
	return func(c *Context) error {
		if ns == nil {
			return relagg.NewMetadataError("", "", "naming strategy cannot be nil", nil)
		}
		if _, ok := ns.(*CachingNamingStrategy); !ok {
			ns = NewCachingNamingStrategy(ns)
		}
		c.naming = ns
		return nil
	}
}

// WithAccessor sets the property accessor.
func WithAccessor(a PropertyAccessor) Option {
	return func(c *Context) error {
		c.accessor = a
		return nil
	}
}

// WithTable overrides the table name of the entity type of the given
// sample value.
//
//	mapping.WithTable(Order{}, mapping.Literal("purchase_order"))
//	mapping.WithTable((*Order)(nil), mapping.MustExpression("${var.tenant}_${table}"))
func WithTable(sample any, r NameResolver) Option {
	return func(c *Context) error {
		t := reflect.TypeOf(sample)
		for t != nil && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t == nil || t.Kind() != reflect.Struct {
			return relagg.NewMetadataError(fmt.Sprintf("%T", sample), "", "table override requires a struct type", nil)
		}
		c.tables[t] = r
		return nil
	}
}

// WithSchema sets the schema resolver of all tables.
func WithSchema(r NameResolver) Option {
	return func(c *Context) error {
		c.schema = r
		return nil
	}
}

// WithVars sets the variables visible to name expressions as var.<name>.
func WithVars(vars map[string]string) Option {
	return func(c *Context) error {
		for k, v := range vars {
			c.vars[k] = v
		}
		return nil
	}
}

// WithLogger sets the logger of the context.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) error {
		c.log = l
		return nil
	}
}

// NewContext creates a new mapping context.
func NewContext(opts ...Option) (*Context, error) {
	c := &Context{
		naming:   NewCachingNamingStrategy(DefaultNamingStrategy{}),
		accessor: ReflectAccessor{},
		tables:   make(map[reflect.Type]NameResolver),
		vars:     make(map[string]string),
		log:      slog.Default(),
		entities: make(map[reflect.Type]*Entity),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NamingStrategy returns the naming strategy of the context.
func (c *Context) NamingStrategy() NamingStrategy { return c.naming }

// Accessor returns the property accessor of the context.
func (c *Context) Accessor() PropertyAccessor { return c.accessor }

// Logger returns the logger of the context.
func (c *Context) Logger() *slog.Logger { return c.log }

// Entity returns the metadata of the given struct type (or pointer to it).
func (c *Context) Entity(t reflect.Type) (*Entity, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		name := "<nil>"
		if t != nil {
			name = t.String()
		}
		return nil, relagg.NewMetadataError(name, "", "entity type must be a struct", nil)
	}
	c.mu.RLock()
	e, ok := c.entities[t]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entities[t]; ok {
		return e, nil
	}
	e, err := c.build(t)
	if err != nil {
		return nil, err
	}
	c.entities[t] = e
	c.log.Debug("mapping: entity registered", "entity", e.Name(), "table", e.QualifiedTableName(), "properties", len(e.props))
	return e, nil
}

// EntityOf returns the metadata of the type of the given instance.
func (c *Context) EntityOf(instance any) (*Entity, error) {
	return c.Entity(reflect.TypeOf(instance))
}

// PropertyEntity returns the entity held by an entity-valued property.
func (c *Context) PropertyEntity(p *Property) (*Entity, error) {
	if !p.IsEntity() {
		return nil, relagg.NewMetadataError(p.owner.Name(), p.Name, "property does not hold an entity", nil)
	}
	return c.Entity(p.actual)
}

// PropertyPath is a chain of property traversals starting at an entity.
type PropertyPath []*Property

// Leaf returns the last property of the chain, or nil for an empty chain.
func (pp PropertyPath) Leaf() *Property {
	if len(pp) == 0 {
		return nil
	}
	return pp[len(pp)-1]
}

// String returns the dot separated property names.
func (pp PropertyPath) String() string {
	names := make([]string, len(pp))
	for i, p := range pp {
		names[i] = p.Name
	}
	return strings.Join(names, ".")
}

// IsTableEntity is a property filter matching entities stored in their own
// table.
func IsTableEntity(p *Property) bool { return p.IsEntity() && !p.IsEmbedded() }

// FindPropertyPaths returns every property path reachable from the given
// entity type whose leaf matches filter (all paths when filter is nil).
// Traversal passes through embedded and entity properties. Paths are sorted
// by length, parents first; paths of equal length keep field order.
func (c *Context) FindPropertyPaths(t reflect.Type, filter func(*Property) bool) ([]PropertyPath, error) {
	root, err := c.Entity(t)
	if err != nil {
		return nil, err
	}
	var (
		paths []PropertyPath
		walk  func(*Entity, PropertyPath, []reflect.Type) error
	)
	walk = func(e *Entity, prefix PropertyPath, seen []reflect.Type) error {
		for _, p := range e.props {
			path := append(prefix[:len(prefix):len(prefix)], p)
			if filter == nil || filter(p) {
				paths = append(paths, path)
			}
			if !p.IsEntity() {
				continue
			}
			if slices.Contains(seen, p.actual) {
				return relagg.NewMetadataError(root.Name(), path.String(), "cyclic aggregate", nil)
			}
			child, err := c.Entity(p.actual)
			if err != nil {
				return err
			}
			if err := walk(child, path, append(seen, p.actual)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, nil, []reflect.Type{root.typ}); err != nil {
		return nil, err
	}
	slices.SortStableFunc(paths, func(a, b PropertyPath) int {
		return cmp.Compare(len(a), len(b))
	})
	return paths, nil
}
