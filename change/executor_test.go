package change

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/dbaction"
)

// recorder generates sequential identifiers for all inserts with a
// generated identifier.
type recorder struct {
	next     int64
	executed []dbaction.Action
}

func (r *recorder) interpreter() dbaction.Interpreter {
	return dbaction.InterpreterFunc(func(_ context.Context, a dbaction.Action) error {
		r.executed = append(r.executed, a)
		for _, m := range dbaction.Flatten([]dbaction.Action{a}) {
			if g, ok := m.(dbaction.WithGeneratedID); ok && g.IDValueSource() == dbaction.IDValueSourceGenerated {
				r.next++
				g.SetGeneratedID(r.next)
			}
		}
		return nil
	})
}

func newExecutor(p *Planner, r *recorder) *Executor {
	return NewExecutor(p.ctx, r.interpreter())
}

func TestExecuteMutable(t *testing.T) {
	p := newPlanner(t)
	r := &recorder{}
	order := &Order{
		Lines: []Line{
			{Sku: "a", Items: []Item{{Name: "x"}, {Name: "y"}}},
			{Sku: "b"},
			{Sku: "c"},
		},
		Tags: map[string]Tag{"t": {Label: "l"}},
	}
	plan, err := p.Save(order)
	require.NoError(t, err)

	roots, err := newExecutor(p, r).Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Same(t, order, roots[0])
	assert.Same(t, order, plan.Root())
	assert.Len(t, r.executed, plan.Len())

	// Inserts run root first, then lines, tags and items.
	assert.Equal(t, int64(1), order.ID)
	assert.Equal(t, int64(1), order.Version)
	require.Len(t, order.Lines, 3)
	for i, sku := range []string{"a", "b", "c"} {
		assert.Equal(t, sku, order.Lines[i].Sku)
		assert.Equal(t, int64(i+2), order.Lines[i].ID)
	}
	assert.Equal(t, Tag{ID: 5, Label: "l"}, order.Tags["t"])
	assert.Equal(t, []Item{{ID: 6, Name: "x"}, {ID: 7, Name: "y"}}, order.Lines[0].Items)
}

func TestExecuteImmutableRoot(t *testing.T) {
	p := newPlanner(t)
	r := &recorder{}
	bag := Bag{Children: children("a", "b")}
	plan, err := p.Plan(Save, bag, nil)
	require.NoError(t, err)

	_, err = newExecutor(p, r).Execute(context.Background(), plan)
	require.NoError(t, err)
	got, ok := plan.Root().(Bag)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, bag.Children, got.Children)
	assert.Zero(t, bag.ID)

	root, ok := plan.RootAction()
	require.True(t, ok)
	assert.Equal(t, got, root.Entity())
}

func TestExecuteImmutableTree(t *testing.T) {
	p := newPlanner(t)
	r := &recorder{}
	var lines []Line
	for _, sku := range []string{"a", "b", "c", "d"} {
		lines = append(lines, Line{Sku: sku, Items: []Item{{Name: sku + "1"}, {Name: sku + "2"}}})
	}
	order := Order{Lines: lines, Tags: map[string]Tag{"x": {Label: "x"}, "y": {Label: "y", ID: 40}}}
	plan, err := p.Save(order)
	require.NoError(t, err)

	_, err = newExecutor(p, r).Execute(context.Background(), plan)
	require.NoError(t, err)
	got := plan.Root().(Order)
	assert.Equal(t, int64(1), got.ID)
	require.Len(t, got.Lines, 4)
	for i, l := range got.Lines {
		assert.Equal(t, lines[i].Sku, l.Sku)
		assert.NotZero(t, l.ID)
		require.Len(t, l.Items, 2)
		assert.Equal(t, lines[i].Sku+"1", l.Items[0].Name)
		assert.Equal(t, lines[i].Sku+"2", l.Items[1].Name)
		assert.NotZero(t, l.Items[0].ID)
	}
	require.Len(t, got.Tags, 2)
	assert.NotZero(t, got.Tags["x"].ID)
	assert.Equal(t, int64(40), got.Tags["y"].ID)
	assert.Zero(t, order.ID)
	assert.Zero(t, order.Lines[0].ID)
}

func TestExecuteThroughEmbedded(t *testing.T) {
	p := newPlanner(t)
	r := &recorder{}
	gift := &Gift{Text: "g"}
	item := &Item{Name: "i"}
	asm := &Assembly{Parts: []Part{{Sku: "p", Extra: Extra{Gift: gift}, Items: []*Item{item}}}}
	plan, err := p.Plan(Save, asm, nil)
	require.NoError(t, err)

	_, err = newExecutor(p, r).Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, int64(1), asm.ID)
	assert.Equal(t, int64(2), item.ID)
	assert.Equal(t, int64(3), gift.ID)
	assert.Same(t, gift, asm.Parts[0].Extra.Gift)
}

func TestExecuteDelete(t *testing.T) {
	p := newPlanner(t)
	r := &recorder{}
	plan, err := p.DeleteByID(bagType(), 1)
	require.NoError(t, err)
	roots, err := newExecutor(p, r).Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Nil(t, roots)
	assert.Equal(t, plan.Actions(), r.executed)
}

func TestExecuteErrors(t *testing.T) {
	p := newPlanner(t)
	boom := errors.New("boom")

	plan, err := p.Plan(Save, &Bag{Children: children("a")}, nil)
	require.NoError(t, err)
	var calls int
	failing := dbaction.InterpreterFunc(func(_ context.Context, a dbaction.Action) error {
		if calls++; calls == 2 {
			return boom
		}
		return nil
	})
	_, err = NewExecutor(p.ctx, failing).Execute(context.Background(), plan)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "change: execute Insert{path=Bag.Children")

	t.Run("NoRoot", func(t *testing.T) {
		_, err := NewExecutor(p.ctx, (&recorder{}).interpreter()).Execute(context.Background(), NewSaveMerged())
		assert.True(t, relagg.IsInvariantError(err))
	})
}

func TestAggregators(t *testing.T) {
	p := newPlanner(t)
	lines, err := p.paths.Parse(orderType(), "Lines")
	require.NoError(t, err)
	tags, err := p.paths.Parse(orderType(), "Tags")
	require.NoError(t, err)
	kids, err := p.paths.Parse(bagType(), "Children")
	require.NoError(t, err)

	t.Run("List", func(t *testing.T) {
		sv := &stagedValue{path: lines}
		for _, i := range []int{4, 2, 1, 0} {
			sv.entries = append(sv.entries, stagedEntry{qualifier: i, value: Line{ID: int64(i)}})
		}
		v, err := sv.value()
		require.NoError(t, err)
		assert.Equal(t, []Line{{ID: 0}, {ID: 1}, {ID: 2}, {ID: 4}}, v)

		sv.entries = append(sv.entries, stagedEntry{qualifier: "x", value: Line{}})
		_, err = sv.value()
		assert.True(t, relagg.IsInvariantError(err))
	})
	t.Run("Set", func(t *testing.T) {
		sv := &stagedValue{path: kids, entries: []stagedEntry{{value: Child{Name: "b"}}, {value: &Child{Name: "a"}}}}
		v, err := sv.value()
		require.NoError(t, err)
		assert.Equal(t, []Child{{Name: "a"}, {Name: "b"}}, v)
	})
	t.Run("Map", func(t *testing.T) {
		sv := &stagedValue{path: tags, entries: []stagedEntry{{qualifier: "b", value: Tag{ID: 2}}, {qualifier: "a", value: Tag{ID: 1}}}}
		v, err := sv.value()
		require.NoError(t, err)
		assert.Equal(t, map[string]Tag{"a": {ID: 1}, "b": {ID: 2}}, v)

		sv.entries = append(sv.entries, stagedEntry{qualifier: 1.5, value: Tag{}})
		_, err = sv.value()
		assert.True(t, relagg.IsInvariantError(err))
	})
	t.Run("Single", func(t *testing.T) {
		gift, err := p.paths.Parse(assemblyType(), "Parts.Extra.Gift")
		require.NoError(t, err)
		sv := &stagedValue{path: gift, entries: []stagedEntry{{value: &Gift{ID: 9}}}}
		v, err := sv.value()
		require.NoError(t, err)
		assert.Equal(t, &Gift{ID: 9}, v)
	})
	t.Run("ElementType", func(t *testing.T) {
		sv := &stagedValue{path: lines, entries: []stagedEntry{{qualifier: 0, value: Tag{}}}}
		_, err := sv.value()
		assert.True(t, relagg.IsInvariantError(err))
	})
}
