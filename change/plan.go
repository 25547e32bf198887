// Package change plans the database actions that persist or delete an
// aggregate, combines the plans of many aggregates into batched action
// sequences and executes them, propagating generated identifiers back into
// the aggregate.
package change

import (
	"github.com/syssam/relagg/dbaction"
	"github.com/syssam/relagg/mapping"
)

// Kind is the kind of an aggregate change.
type Kind uint8

// Change kinds.
const (
	Save Kind = iota
	Delete
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Save:
		return "save"
	case Delete:
		return "delete"
	default:
		return "invalid"
	}
}

// Change is an ordered sequence of actions ready for execution.
type Change interface {
	Kind() Kind
	// ForEachAction calls fn with every action in execution order and stops
	// at the first error.
	ForEachAction(fn func(dbaction.Action) error) error
}

// Plan is the change plan of a single aggregate. Its root is a mutable
// cell: after execution it holds the instance carrying generated
// identifiers, which differs from the planned one for immutable roots.
type Plan struct {
	kind    Kind
	meta    *mapping.Entity
	root    any
	version any
	actions []dbaction.Action
}

func newPlan(kind Kind, meta *mapping.Entity, root, previousVersion any) *Plan {
	return &Plan{kind: kind, meta: meta, root: root, version: previousVersion}
}

// Kind returns the change kind.
func (p *Plan) Kind() Kind { return p.kind }

// EntityType returns the metadata of the aggregate root.
func (p *Plan) EntityType() *mapping.Entity { return p.meta }

// Root returns the aggregate root, nil for delete plans.
func (p *Plan) Root() any { return p.root }

// SetRoot replaces the aggregate root.
func (p *Plan) SetRoot(root any) { p.root = root }

// PreviousVersion returns the version the root row is expected to have.
func (p *Plan) PreviousVersion() any { return p.version }

// Actions returns a copy of the planned actions.
func (p *Plan) Actions() []dbaction.Action {
	return append([]dbaction.Action(nil), p.actions...)
}

// Len returns the number of planned actions.
func (p *Plan) Len() int { return len(p.actions) }

// RootAction returns the action writing the root row of a save plan.
func (p *Plan) RootAction() (dbaction.WithRoot, bool) {
	for _, a := range p.actions {
		if r, ok := a.(dbaction.WithRoot); ok {
			return r, true
		}
	}
	return nil, false
}

// ForEachAction implements Change.
func (p *Plan) ForEachAction(fn func(dbaction.Action) error) error {
	for _, a := range p.actions {
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plan) add(actions ...dbaction.Action) {
	p.actions = append(p.actions, actions...)
}

var _ Change = (*Plan)(nil)
