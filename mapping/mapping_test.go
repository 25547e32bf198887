package mapping

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relagg"
)

type (
	Address struct {
		Street string
		City   string
	}
	Tag struct {
		Name string
	}
	Note struct {
		Text string
	}
	Item struct {
		ID   int64
		Name string
	}
	Line struct {
		ID    int64
		Sku   string `db:"sku_code"`
		Items []Item
	}
	Order struct {
		ID      int64            `db:"id,id"`
		Version int              `db:",version"`
		Ship    Address          `db:",embedded=ship_"`
		Lines   []*Line          `db:"lines"`
		Tags    []Tag            `db:",set"`
		Notes   map[string]*Note `db:",key=note_key"`
		Memo    string           `db:"-"`
		Created time.Time
		secret  string
	}
	Customer struct {
		ID   uuid.UUID
		Name string `db:",readonly"`
	}
	Invoice struct {
		Number string `db:"number,id"`
	}
	Node struct {
		ID       int64
		Children []Node
	}
	BadTag struct {
		ID   int64 `db:",bogus"`
	}
	Persisted struct {
		ID    int64
		State bool `db:"-"`
	}
)

func (Invoice) TableName() string { return "invoices_v2" }

func (p Persisted) IsNew() bool { return !p.State }

type noteMap map[string]*Note

func (noteMap) OrderedKeys() []any { return []any{"z", "a"} }

type (
	badKeys   map[string]*Note
	twiceKeys map[string]*Note
)

func (badKeys) OrderedKeys() []any { return []any{struct{}{}} }
func (twiceKeys) OrderedKeys() []any { return []any{"a", "a"} }

type OrderedNotes struct {
	ID    int64
	Notes noteMap
}

func newContext(t *testing.T, opts ...Option) *Context {
	t.Helper()
	c, err := NewContext(opts...)
	require.NoError(t, err)
	return c
}

func entity(t *testing.T, c *Context, v any) *Entity {
	t.Helper()
	e, err := c.EntityOf(v)
	require.NoError(t, err)
	return e
}

func TestEntity(t *testing.T) {
	c := newContext(t)
	e := entity(t, c, &Order{})

	assert.Equal(t, "Order", e.Name())
	assert.Equal(t, "order", e.TableName())
	assert.Equal(t, "order", e.QualifiedTableName())
	require.True(t, e.HasIDProperty())
	assert.Equal(t, "ID", e.IDProperty().Name)
	require.True(t, e.HasVersionProperty())
	assert.Equal(t, "Version", e.VersionProperty().Name)

	names := make([]string, 0, len(e.Properties()))
	for _, p := range e.Properties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"ID", "Version", "Ship", "Lines", "Tags", "Notes", "Created"}, names)

	tests := []struct {
		name      string
		kind      Kind
		entity    bool
		qualified bool
		actual    reflect.Type
		column    string
	}{
		{name: "ID", kind: KindSimple, column: "id", actual: reflect.TypeOf(int64(0))},
		{name: "Version", kind: KindSimple, column: "version", actual: reflect.TypeOf(0)},
		{name: "Ship", kind: KindEmbedded, entity: true, column: "ship", actual: reflect.TypeOf(Address{})},
		{name: "Lines", kind: KindList, entity: true, qualified: true, column: "lines", actual: reflect.TypeOf(Line{})},
		{name: "Tags", kind: KindSet, entity: true, column: "tags", actual: reflect.TypeOf(Tag{})},
		{name: "Notes", kind: KindMap, entity: true, qualified: true, column: "notes", actual: reflect.TypeOf(Note{})},
		{name: "Created", kind: KindSimple, column: "created", actual: reflect.TypeOf(time.Time{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := e.Property(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.kind, p.Kind())
			assert.Equal(t, tt.entity, p.IsEntity())
			assert.Equal(t, tt.qualified, p.IsQualified())
			assert.Equal(t, tt.actual, p.ActualType())
			assert.Equal(t, tt.column, p.ColumnName())
			assert.Same(t, e, p.Owner())
		})
	}

	ship, _ := e.Property("Ship")
	assert.Equal(t, "ship_", ship.EmbeddedPrefix())
	lines, _ := e.Property("Lines")
	assert.True(t, lines.IsOrdered())
	assert.True(t, lines.IsCollectionLike())
	assert.Equal(t, reflect.TypeOf(0), lines.QualifierType())
	assert.Equal(t, "order_key", lines.KeyColumn())
	notes, _ := e.Property("Notes")
	assert.True(t, notes.IsMap())
	assert.False(t, notes.IsCollectionLike())
	assert.Equal(t, reflect.TypeOf(""), notes.QualifierType())
	assert.Equal(t, "note_key", notes.KeyColumn())
	assert.Equal(t, "order", lines.ReverseColumnName(e))
	_, ok := e.Property("Memo")
	assert.False(t, ok)

	same, err := c.Entity(reflect.TypeOf(Order{}))
	require.NoError(t, err)
	assert.Same(t, e, same)
}

func TestEntityDetails(t *testing.T) {
	c := newContext(t)

	line := entity(t, c, Line{})
	require.True(t, line.HasIDProperty())
	sku, _ := line.Property("Sku")
	assert.Equal(t, "sku_code", sku.ColumnName())

	cust := entity(t, c, Customer{})
	name, _ := cust.Property("Name")
	assert.False(t, name.IsWritable())
	assert.Equal(t, "ID", cust.IDProperty().Name)

	inv := entity(t, c, Invoice{})
	assert.Equal(t, "invoices_v2", inv.TableName())
	assert.Equal(t, "Number", inv.IDProperty().Name)

	addr := entity(t, c, Address{})
	assert.False(t, addr.HasIDProperty())
	_, err := addr.RequiredIDProperty()
	require.True(t, relagg.IsMetadataError(err))
	assert.Nil(t, addr.ID(Address{}))

	_, err = c.EntityOf(BadTag{})
	require.Error(t, err)
	assert.True(t, relagg.IsMappingDefect(err))
	assert.Contains(t, err.Error(), "bogus")

	_, err = c.EntityOf(42)
	require.True(t, relagg.IsMetadataError(err))
	_, err = c.Entity(nil)
	require.Error(t, err)
}

func TestPropertyEntity(t *testing.T) {
	c := newContext(t)
	e := entity(t, c, Order{})
	lines, _ := e.Property("Lines")
	le, err := c.PropertyEntity(lines)
	require.NoError(t, err)
	assert.Equal(t, "Line", le.Name())

	id, _ := e.Property("ID")
	_, err = c.PropertyEntity(id)
	require.True(t, relagg.IsMetadataError(err))
}

func TestFindPropertyPaths(t *testing.T) {
	c := newContext(t)
	paths, err := c.FindPropertyPaths(reflect.TypeOf(Order{}), IsTableEntity)
	require.NoError(t, err)
	got := make([]string, len(paths))
	for i, p := range paths {
		got[i] = p.String()
	}
	assert.Equal(t, []string{"Lines", "Tags", "Notes", "Lines.Items"}, got)
	assert.Equal(t, "Items", paths[3].Leaf().Name)
	assert.Nil(t, PropertyPath(nil).Leaf())

	all, err := c.FindPropertyPaths(reflect.TypeOf(Order{}), nil)
	require.NoError(t, err)
	var found bool
	for _, p := range all {
		if p.String() == "Ship.City" {
			found = true
		}
	}
	assert.True(t, found)

	_, err = c.FindPropertyPaths(reflect.TypeOf(Node{}), IsTableEntity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic aggregate")
}

func TestWithTable(t *testing.T) {
	c := newContext(t,
		WithTable(Order{}, Literal("purchase_order")),
		WithTable((*Line)(nil), MustExpression("${var.tenant}_${table}")),
		WithVars(map[string]string{"tenant": "acme"}),
		WithSchema(Literal("sales")),
	)
	order := entity(t, c, Order{})
	assert.Equal(t, "purchase_order", order.TableName())
	assert.Equal(t, "sales", order.Schema())
	assert.Equal(t, "sales.purchase_order", order.QualifiedTableName())
	assert.Equal(t, "acme_line", entity(t, c, Line{}).TableName())

	lines, _ := order.Property("Lines")
	assert.Equal(t, "purchase_order_key", lines.KeyColumn())

	_, err := NewContext(WithTable(nil, Literal("x")))
	require.Error(t, err)
	_, err = NewContext(WithNamingStrategy(nil))
	require.Error(t, err)

	c = newContext(t, WithTable(Line{}, MustExpression("${var.missing}")))
	_, err = c.EntityOf(Line{})
	require.True(t, relagg.IsMetadataError(err))
}

func TestIsNew(t *testing.T) {
	c := newContext(t)
	order := entity(t, c, Order{})
	line := entity(t, c, Line{})
	cust := entity(t, c, Customer{})
	addr := entity(t, c, Address{})
	pers := entity(t, c, Persisted{})

	tests := []struct {
		name     string
		entity   *Entity
		instance any
		want     bool
	}{
		{"VersionZero", order, &Order{ID: 1}, true},
		{"VersionSet", order, &Order{ID: 1, Version: 1}, false},
		{"IDZero", line, Line{}, true},
		{"IDSet", line, &Line{ID: 3}, false},
		{"UUIDNil", cust, Customer{ID: uuid.Nil}, true},
		{"UUIDSet", cust, Customer{ID: uuid.New()}, false},
		{"NoID", addr, Address{City: "x"}, true},
		{"Persistable", pers, Persisted{ID: 0, State: true}, false},
		{"PersistableNew", pers, Persisted{ID: 7}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entity.IsNew(tt.instance))
		})
	}
}
