package change

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/dbaction"
	"github.com/syssam/relagg/mapping"
)

// Executor hands the actions of a change to an interpreter and propagates
// generated identifiers back into the aggregates.
type Executor struct {
	ctx    *mapping.Context
	interp dbaction.Interpreter
	policy Policy
	log    *slog.Logger
}

// NewExecutor returns an executor running actions with the given
// interpreter.
func NewExecutor(ctx *mapping.Context, interp dbaction.Interpreter, opts ...Option) *Executor {
	c := newConfig(opts)
	return &Executor{ctx: ctx, interp: interp, policy: c.policy, log: c.log}
}

// Execute runs all actions of the change in order. For saves it returns the
// resulting aggregate roots, one per root action in execution order; when
// the change is a *Plan its root is replaced by the result. A change
// rejected by the policy is not executed at all.
func (e *Executor) Execute(ctx context.Context, c Change) ([]any, error) {
	if e.policy != nil {
		if err := e.policy.EvalChange(ctx, c); err != nil {
			e.log.Warn("change: rejected by policy", "kind", c.Kind().String(), "error", err)
			return nil, fmt.Errorf("change: %s rejected: %w", c.Kind(), err)
		}
	}
	var executed []dbaction.Action
	err := c.ForEachAction(func(a dbaction.Action) error {
		e.log.Debug("change: executing action", "action", a.String())
		if err := dbaction.Dispatch(ctx, e.interp, a); err != nil {
			e.log.Error("change: action failed", "action", a.String(), "error", err)
			return fmt.Errorf("change: execute %s: %w", a, err)
		}
		executed = append(executed, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.Kind() != Save {
		return nil, nil
	}
	roots, err := e.populateIDs(dbaction.Flatten(executed))
	if err != nil {
		return nil, err
	}
	if p, ok := c.(*Plan); ok {
		p.SetRoot(roots[0])
	}
	return roots, nil
}

// populateIDs visits the executed actions in reverse order, so children are
// handled before their parents. Generated identifiers are set on the
// entities; entities that were replaced in the process (immutable values)
// are staged against the action of their parent and set on the parent when
// that action is visited.
func (e *Executor) populateIDs(actions []dbaction.Action) ([]any, error) {
	staged := newStagedValues()
	var roots []any
	for _, a := range slices.Backward(actions) {
		we, ok := a.(dbaction.WithEntity)
		if !ok {
			continue
		}
		entity, err := e.setIDAndCascadingProperties(we, staged)
		if err != nil {
			return nil, err
		}
		switch a := a.(type) {
		case dbaction.WithRoot:
			a.SetEntity(entity)
			roots = append(roots, entity)
		case dbaction.WithDependingOn:
			q, _, err := a.Qualifier()
			if err != nil {
				return nil, err
			}
			path := a.PropertyPath()
			switch {
			case !mapping.Identical(entity, a.Entity()):
				staged.stage(a.DependingOn(), path, q.Value, entity)
			case path.IsMultiValued():
				staged.gather(a.DependingOn(), path, q.Value, entity)
			}
		}
	}
	if len(roots) == 0 {
		return nil, relagg.NewInvariantError("populateIDs", "", "resulting roots are only available after an InsertRoot or UpdateRoot was executed")
	}
	slices.Reverse(roots)
	return roots, nil
}

func (e *Executor) setIDAndCascadingProperties(a dbaction.WithEntity, staged *stagedValues) (any, error) {
	entity := a.Entity()
	if g, ok := a.(dbaction.WithGeneratedID); ok && g.GeneratedID() != nil {
		meta, err := e.ctx.EntityOf(entity)
		if err != nil {
			return nil, err
		}
		id, err := meta.RequiredIDProperty()
		if err != nil {
			return nil, err
		}
		if entity, err = e.ctx.Accessor().Set(entity, id, g.GeneratedID()); err != nil {
			return nil, err
		}
	}
	for _, sv := range staged.staged(a) {
		rel, err := relativePath(a, sv)
		if err != nil {
			return nil, err
		}
		value, err := sv.value()
		if err != nil {
			return nil, err
		}
		if entity, err = e.ctx.SetPath(entity, rel, value); err != nil {
			return nil, err
		}
	}
	return entity, nil
}

func relativePath(a dbaction.Action, sv *stagedValue) (mapping.PropertyPath, error) {
	switch a := a.(type) {
	case dbaction.WithRoot:
		return sv.path.Properties(), nil
	case dbaction.WithDependingOn:
		if rel, ok := sv.path.Subtract(a.PropertyPath()); ok {
			return rel, nil
		}
	}
	return nil, relagg.Invariantf("relativePath", sv.path.String(), "values can't be staged on action %s", a)
}
