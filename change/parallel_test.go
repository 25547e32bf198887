package change

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relagg"
)

func TestPlanAll(t *testing.T) {
	p := newPlanner(t)
	roots := make([]any, 20)
	for i := range roots {
		roots[i] = &Bag{ID: int64(i + 1), Children: children("a", "b")}
	}

	plans, err := PlanAll(context.Background(), p, Save, roots, 4)
	require.NoError(t, err)
	require.Len(t, plans, len(roots))
	for i, plan := range plans {
		assert.Same(t, roots[i], plan.Root())
		assert.Equal(t, 4, plan.Len())
	}

	plans, err = PlanAll(context.Background(), p, Delete, roots[:3], 0)
	require.NoError(t, err)
	for _, plan := range plans {
		assert.Equal(t, Delete, plan.Kind())
	}
}

func TestPlanAllErrors(t *testing.T) {
	p := newPlanner(t)

	_, err := PlanAll(context.Background(), p, Save, []any{&Bag{}, nil, &Bag{}, nil}, 2)
	var agg *relagg.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
	assert.True(t, relagg.IsMappingDefect(err))
	assert.Contains(t, err.Error(), "plan root 1")
	assert.Contains(t, err.Error(), "plan root 3")

	_, err = PlanAll(context.Background(), p, Kind(7), []any{&Bag{}}, 1)
	assert.True(t, relagg.IsInvariantError(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = PlanAll(ctx, p, Save, []any{&Bag{}}, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSaveAll(t *testing.T) {
	p := newPlanner(t)
	c := NewSaveMerged()
	require.NoError(t, SaveAll(context.Background(), p, c, []any{&Bag{}, &Bag{ID: 2}}, 2))
	assert.Equal(t, []string{
		"InsertRoot{entity=Bag, idValueSource=generated}",
		"UpdateRoot{entity=Bag, previousVersion=<nil>}",
		"Delete{path=Bag.Children, rootID=2}",
	}, describe(collect(t, c)))

	err := SaveAll(context.Background(), p, NewDeleteBatching(), []any{&Bag{}}, 1)
	assert.True(t, relagg.IsInvariantError(err))
}
