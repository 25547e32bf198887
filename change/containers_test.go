package change

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/dbaction"
)

func collect(t *testing.T, c Change) []dbaction.Action {
	t.Helper()
	var actions []dbaction.Action
	require.NoError(t, c.ForEachAction(func(a dbaction.Action) error {
		actions = append(actions, a)
		return nil
	}))
	return actions
}

func TestSaveMerged(t *testing.T) {
	p := newPlanner(t)
	meta, err := p.ctx.Entity(orderType())
	require.NoError(t, err)
	lines, err := p.paths.Parse(orderType(), "Lines")
	require.NoError(t, err)
	items, err := p.paths.Parse(orderType(), "Lines.Items")
	require.NoError(t, err)

	merged := NewSaveMerged()
	for id := int64(1); id <= 2; id++ {
		order := &Order{ID: id}
		plan := newPlan(Save, meta, order, nil)
		update := dbaction.NewUpdateRoot(meta, order, nil)
		plan.add(
			dbaction.NewDelete(id, lines),
			update,
			dbaction.NewInsert(&Item{}, items, update, nil, dbaction.IDValueSourceGenerated),
		)
		require.NoError(t, merged.Add(plan))
	}
	assert.Equal(t, []string{
		"UpdateRoot{entity=Order, previousVersion=<nil>}",
		"UpdateRoot{entity=Order, previousVersion=<nil>}",
		"Delete{path=Order.Lines, rootID=1}",
		"Delete{path=Order.Lines, rootID=2}",
		"BatchInsert{value=Order.Lines.Items/generated, actions=2}",
	}, describe(collect(t, merged)))
	assert.Equal(t, Save, merged.Kind())
}

func TestSaveMergedOrdering(t *testing.T) {
	p := newPlanner(t)
	merged := NewSaveMerged()
	for _, order := range []*Order{
		{ID: 1, Version: 1, Lines: []Line{{Items: []Item{{Name: "a"}}}}, Tags: map[string]Tag{"t": {}}},
		{Lines: []Line{{}}},
	} {
		plan, err := p.Save(order)
		require.NoError(t, err)
		require.NoError(t, merged.Add(plan))
	}
	assert.Equal(t, []string{
		"UpdateRoot{entity=Order, previousVersion=1}",
		"InsertRoot{entity=Order, idValueSource=generated}",
		"Delete{path=Order.Lines.Items, rootID=1}",
		"Delete{path=Order.Tags, rootID=1}",
		"Delete{path=Order.Lines, rootID=1}",
		"BatchInsert{value=Order.Lines/generated, actions=2}",
		"BatchInsert{value=Order.Tags/generated, actions=1}",
		"BatchInsert{value=Order.Lines.Items/generated, actions=1}",
	}, describe(collect(t, merged)))
}

func TestSaveBatching(t *testing.T) {
	p := newPlanner(t)
	batching := NewSaveBatching()
	bags := []*Bag{
		{Children: children("a")},
		{Children: children("b")},
		{ID: 3, Children: children("c")},
		{ID: 4, Fresh: true, Children: children("d")},
		{Children: children("e")},
	}
	for _, bag := range bags {
		plan, err := p.Plan(Save, bag, nil)
		require.NoError(t, err)
		require.NoError(t, batching.Add(plan))
	}
	actions := collect(t, batching)
	assert.Equal(t, []string{
		"BatchInsertRoot{value=generated, actions=2}",
		"UpdateRoot{entity=Bag, previousVersion=<nil>}",
		"InsertRoot{entity=Bag, idValueSource=provided}",
		"InsertRoot{entity=Bag, idValueSource=generated}",
		"Delete{path=Bag.Children, rootID=3}",
		"BatchInsert{value=Bag.Children/none, actions=5}",
	}, describe(actions))

	r := &recorder{}
	roots, err := newExecutor(p, r).Execute(context.Background(), batching)
	require.NoError(t, err)
	require.Len(t, roots, 5)
	for i, bag := range bags {
		assert.Same(t, bag, roots[i])
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 3}, []int64{bags[0].ID, bags[1].ID, bags[2].ID, bags[3].ID, bags[4].ID})
}

func TestSaveBatchingSingleCandidate(t *testing.T) {
	p := newPlanner(t)
	batching := NewSaveBatching()
	for _, bag := range []*Bag{{}, {ID: 2}} {
		plan, err := p.Plan(Save, bag, nil)
		require.NoError(t, err)
		require.NoError(t, batching.Add(plan))
	}
	assert.Equal(t, []string{
		"InsertRoot{entity=Bag, idValueSource=generated}",
		"UpdateRoot{entity=Bag, previousVersion=<nil>}",
		"Delete{path=Bag.Children, rootID=2}",
	}, describe(collect(t, batching)))
}

func TestDeleteBatching(t *testing.T) {
	p := newPlanner(t)
	batching := NewDeleteBatching()
	for _, root := range []any{&Bag{ID: 1}, &Bag{ID: 2}, &Order{ID: 9, Version: 3}} {
		plan, err := p.Delete(root)
		require.NoError(t, err)
		require.NoError(t, batching.Add(plan))
	}
	assert.Equal(t, []string{
		"AcquireLockRoot{entity=Bag, id=1}",
		"AcquireLockRoot{entity=Bag, id=2}",
		"AcquireLockRoot{entity=Order, id=9}",
		"Delete{path=Order.Lines.Items, rootID=9}",
		"BatchDelete{value=Bag.Children, actions=2}",
		"Delete{path=Order.Tags, rootID=9}",
		"Delete{path=Order.Lines, rootID=9}",
		"BatchDeleteRoot{value=Bag, actions=2}",
		"DeleteRoot{entity=Order, id=9, previousVersion=3}",
	}, describe(collect(t, batching)))
	assert.Equal(t, Delete, batching.Kind())

	r := &recorder{}
	roots, err := newExecutor(p, r).Execute(context.Background(), batching)
	require.NoError(t, err)
	assert.Nil(t, roots)
	assert.Len(t, r.executed, 9)
}

func TestContainerRejects(t *testing.T) {
	p := newPlanner(t)
	save, err := p.Plan(Save, &Bag{}, nil)
	require.NoError(t, err)
	del, err := p.DeleteByID(bagType(), 1)
	require.NoError(t, err)
	all, err := p.DeleteAll(bagType())
	require.NoError(t, err)

	tests := []struct {
		name string
		c    Container
		plan *Plan
	}{
		{"SaveBatching/delete", NewSaveBatching(), del},
		{"SaveMerged/delete", NewSaveMerged(), del},
		{"DeleteBatching/save", NewDeleteBatching(), save},
		{"DeleteBatching/all", NewDeleteBatching(), all},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, relagg.IsInvariantError(tt.c.Add(tt.plan)))
		})
	}
}
