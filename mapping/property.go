package mapping

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a property.
type Kind uint8

// Property kinds.
const (
	KindSimple    Kind = iota // a column of the owner's table
	KindEmbedded              // a value object flattened into the owner's table
	KindReference             // a single entity in its own table
	KindList                  // an ordered slice of entities, qualified by index
	KindSet                   // an unordered slice of entities
	KindMap                   // a map of entities, qualified by key
)

var kindNames = [...]string{"simple", "embedded", "reference", "list", "set", "map"}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Property is a persistent field of an entity.
type Property struct {
	// Name is the Go field name.
	Name string

	owner    *Entity
	index    int
	typ      reflect.Type
	actual   reflect.Type
	key      reflect.Type
	kind     Kind
	column   string
	keyCol   string
	refCol   string
	prefix   string
	sequence string
	id       bool
	version  bool
	readonly bool
}

// Owner returns the entity declaring the property.
func (p *Property) Owner() *Entity { return p.owner }

// Type returns the Go type of the field.
func (p *Property) Type() reflect.Type { return p.typ }

// ActualType returns the struct type of entity-valued properties (the
// element type for collections and maps) and the field type otherwise.
func (p *Property) ActualType() reflect.Type { return p.actual }

// Kind returns the property kind.
func (p *Property) Kind() Kind { return p.kind }

// IsEntity reports whether the property holds an entity or embedded value.
func (p *Property) IsEntity() bool { return p.kind != KindSimple }

// IsEmbedded reports whether the property is an embedded value object.
func (p *Property) IsEmbedded() bool { return p.kind == KindEmbedded }

// EmbeddedPrefix returns the column prefix of an embedded property.
func (p *Property) EmbeddedPrefix() string { return p.prefix }

// IsCollectionLike reports whether the property is a slice of entities.
func (p *Property) IsCollectionLike() bool { return p.kind == KindList || p.kind == KindSet }

// IsMap reports whether the property is a map of entities.
func (p *Property) IsMap() bool { return p.kind == KindMap }

// IsQualified reports whether elements are positioned by a qualifier
// (list index or map key) stored in a key column.
func (p *Property) IsQualified() bool { return p.kind == KindList || p.kind == KindMap }

// IsOrdered reports whether the property is an ordered list.
func (p *Property) IsOrdered() bool { return p.kind == KindList }

// IsIDProperty reports whether the property is the identifier.
func (p *Property) IsIDProperty() bool { return p.id }

// IsVersionProperty reports whether the property is the optimistic lock version.
func (p *Property) IsVersionProperty() bool { return p.version }

// IsWritable reports whether the property is written on insert and update.
func (p *Property) IsWritable() bool { return !p.readonly }

// Sequence returns the database sequence generating identifier values, if any.
func (p *Property) Sequence() string { return p.sequence }

// QualifierType returns the type of the qualifier: int for lists, the key
// type for maps and nil otherwise.
func (p *Property) QualifierType() reflect.Type {
	switch p.kind {
	case KindList:
		return intType
	case KindMap:
		return p.key
	default:
		return nil
	}
}

// ColumnName returns the column of a simple property, without any embedded
// prefix. Entity-valued properties use it as their path segment name.
func (p *Property) ColumnName() string { return p.column }

// KeyColumn returns the qualifier column of a list or map property.
func (p *Property) KeyColumn() string {
	if p.keyCol != "" {
		return p.keyCol
	}
	return p.owner.ctx.naming.KeyColumn(p)
}

// ReverseColumnName returns the column of this property's table referencing
// the given parent entity.
func (p *Property) ReverseColumnName(parent *Entity) string {
	if p.refCol != "" {
		return p.refCol
	}
	return p.owner.ctx.naming.ReverseColumnName(parent)
}

// String returns the qualified property name.
func (p *Property) String() string { return p.owner.Name() + "." + p.Name }

var (
	intType     = reflect.TypeOf(0)
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	bytesType   = reflect.TypeOf([]byte(nil))
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// isSimple reports whether values of t are stored in a single column.
func isSimple(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == timeType, t == uuidType, t == bytesType:
		return true
	case t.Implements(valuerType), reflect.PointerTo(t).Implements(scannerType):
		return true
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Map:
		return false
	default:
		return true
	}
}

// structType returns the struct type of t or *t when it is not simple.
func structType(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct && !isSimple(t) {
		return t, true
	}
	return nil, false
}

type tagOptions struct {
	name     string
	skip     bool
	id       bool
	version  bool
	readonly bool
	set      bool
	embedded bool
	prefix   string
	key      string
	ref      string
	sequence string
	unknown  []string
}

func parseTag(tag string) tagOptions {
	if tag == "-" {
		return tagOptions{skip: true}
	}
	parts := strings.Split(tag, ",")
	opts := tagOptions{name: strings.TrimSpace(parts[0])}
	for _, part := range parts[1:] {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "id":
			opts.id = true
		case "version":
			opts.version = true
		case "readonly":
			opts.readonly = true
		case "set":
			opts.set = true
		case "embedded":
			opts.embedded, opts.prefix = true, v
		case "key":
			opts.key = v
		case "ref":
			opts.ref = v
		case "sequence":
			opts.sequence = v
		case "":
		default:
			opts.unknown = append(opts.unknown, k)
		}
	}
	return opts
}
