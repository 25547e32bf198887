package mapping

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relagg"
)

func TestAccessorSet(t *testing.T) {
	c := newContext(t)
	e := entity(t, c, Order{})
	id := e.IDProperty()

	t.Run("Pointer", func(t *testing.T) {
		o := &Order{}
		got, err := c.Accessor().Set(o, id, int64(5))
		require.NoError(t, err)
		assert.Same(t, o, got)
		assert.EqualValues(t, 5, o.ID)
		assert.True(t, Identical(o, got))
	})

	t.Run("Value", func(t *testing.T) {
		o := Order{Memo: "m"}
		got, err := c.Accessor().Set(o, id, 9)
		require.NoError(t, err)
		assert.Zero(t, o.ID)
		assert.EqualValues(t, 9, got.(Order).ID)
		assert.Equal(t, "m", got.(Order).Memo)
		assert.False(t, Identical(o, got))
	})

	t.Run("Conversion", func(t *testing.T) {
		cust := entity(t, c, Customer{})
		want := uuid.New()
		got, err := c.Accessor().Set(Customer{}, cust.IDProperty(), want.String())
		require.NoError(t, err)
		assert.Equal(t, want, got.(Customer).ID)

		v, err := c.Accessor().Set(&Order{}, e.VersionProperty(), int64(3))
		require.NoError(t, err)
		assert.Equal(t, 3, v.(*Order).Version)
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := c.Accessor().Set(nil, id, 1)
		require.True(t, relagg.IsInvariantError(err))
		_, err = c.Accessor().Set((*Order)(nil), id, 1)
		require.True(t, relagg.IsInvariantError(err))
		_, err = c.Accessor().Set(Line{}, id, 1)
		require.True(t, relagg.IsInvariantError(err))
		_, err = c.Accessor().Set(&Order{}, id, "not a number")
		require.True(t, relagg.IsMetadataError(err))
	})

	t.Run("Nil", func(t *testing.T) {
		lines, _ := e.Property("Lines")
		o := &Order{Lines: []*Line{{ID: 1}}}
		_, err := c.Accessor().Set(o, lines, nil)
		require.NoError(t, err)
		assert.Nil(t, o.Lines)
	})
}

func TestAccessorGet(t *testing.T) {
	c := newContext(t)
	e := entity(t, c, Order{})
	lines, _ := e.Property("Lines")
	notes, _ := e.Property("Notes")

	assert.Nil(t, c.Accessor().Get(&Order{}, lines))
	assert.Nil(t, c.Accessor().Get(&Order{}, notes))
	assert.Nil(t, c.Accessor().Get((*Order)(nil), lines))
	assert.Nil(t, c.Accessor().Get(nil, lines))
	assert.EqualValues(t, 4, e.ID(Order{ID: 4}))
	assert.Equal(t, 2, e.Version(&Order{Version: 2}))
	assert.Panics(t, func() { c.Accessor().Get(Line{}, lines) })
}

func TestPath(t *testing.T) {
	c := newContext(t)
	e := entity(t, c, Order{})
	ship, _ := e.Property("Ship")
	addr := entity(t, c, Address{})
	city, _ := addr.Property("City")
	path := PropertyPath{ship, city}
	assert.Equal(t, "Ship.City", path.String())

	t.Run("Value", func(t *testing.T) {
		o := Order{Ship: Address{Street: "Main", City: "Rome"}}
		assert.Equal(t, "Rome", c.GetPath(o, path))
		got, err := c.SetPath(o, path, "Berlin")
		require.NoError(t, err)
		assert.Equal(t, "Rome", o.Ship.City)
		assert.Equal(t, Address{Street: "Main", City: "Berlin"}, got.(Order).Ship)
	})

	t.Run("Pointer", func(t *testing.T) {
		o := &Order{}
		got, err := c.SetPath(o, path, "Oslo")
		require.NoError(t, err)
		assert.Same(t, o, got)
		assert.Equal(t, "Oslo", o.Ship.City)
	})

	t.Run("NilIntermediate", func(t *testing.T) {
		lines, _ := e.Property("Lines")
		assert.Nil(t, c.GetPath(&Order{}, PropertyPath{lines, lines}))
		_, err := c.SetPath(&Order{}, nil, 1)
		require.True(t, relagg.IsInvariantError(err))
	})
}

func TestIdentical(t *testing.T) {
	a, b := &Line{ID: 1}, &Line{ID: 1}
	assert.True(t, Identical(a, a))
	assert.False(t, Identical(a, b))
	assert.True(t, Identical(Line{ID: 1}, Line{ID: 1}))
	assert.False(t, Identical(Line{ID: 1}, Line{ID: 2}))
	assert.False(t, Identical(a, *a))
}

func TestEntries(t *testing.T) {
	c := newContext(t)
	e := entity(t, c, Order{})
	lines, _ := e.Property("Lines")
	tags, _ := e.Property("Tags")
	notes, _ := e.Property("Notes")
	ship, _ := e.Property("Ship")

	entries := func(p *Property, value any) []Entry {
		t.Helper()
		got, err := Entries(p, value)
		require.NoError(t, err)
		return got
	}
	l0, l2 := &Line{ID: 1}, &Line{ID: 3}
	assert.Equal(t, []Entry{{Key: 0, Value: l0}, {Key: 2, Value: l2}}, entries(lines, []*Line{l0, nil, l2}))
	assert.Equal(t, []Entry{{Value: Tag{"a"}}, {Value: Tag{"b"}}}, entries(tags, []Tag{{"a"}, {"b"}}))
	assert.Nil(t, entries(lines, nil))
	assert.Equal(t, []Entry{{Value: Address{City: "x"}}}, entries(ship, Address{City: "x"}))

	na, nb, nc := &Note{"a"}, &Note{"b"}, &Note{"c"}
	got := entries(notes, map[string]*Note{"c": nc, "a": na, "b": nb})
	assert.Equal(t, []Entry{{Key: "a", Value: na}, {Key: "b", Value: nb}, {Key: "c", Value: nc}}, got)

	on := entity(t, c, OrderedNotes{})
	onotes, _ := on.Property("Notes")
	nz := &Note{"z"}
	got = entries(onotes, noteMap{"a": na, "z": nz})
	assert.Equal(t, []Entry{{Key: "z", Value: nz}, {Key: "a", Value: na}}, got)

	t.Run("InvalidOrderedKeys", func(t *testing.T) {
		tests := []struct {
			name  string
			value any
			want  string
		}{
			{name: "Missing", value: noteMap{"a": na}, want: "ordered key z is not in the map"},
			{name: "WrongType", value: badKeys{"a": na}, want: "is not a string"},
			{name: "Duplicate", value: twiceKeys{"a": na}, want: "ordered key a is listed twice"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := Entries(onotes, tt.value)
				require.Error(t, err)
				assert.Nil(t, got)
				assert.True(t, relagg.IsMetadataError(err))
				assert.Contains(t, err.Error(), tt.want)
			})
		}
	})
}
