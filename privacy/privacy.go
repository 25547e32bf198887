// Package privacy provides sets of types and helpers for writing rules
// deciding whether an aggregate change may be executed.
package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/relagg/change"
	"github.com/syssam/relagg/dbaction"
	"github.com/syssam/relagg/mapping"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from rules to indicate how the
// evaluation should proceed. Use errors.Is() to check for these values:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("relagg/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("relagg/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("relagg/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Rule decides whether a change is allowed. Returning nil is equivalent to
// returning Skip.
type Rule interface {
	EvalChange(context.Context, change.Change) error
}

// RuleFunc type is an adapter which allows the use of ordinary functions
// as rules.
type RuleFunc func(context.Context, change.Change) error

// EvalChange returns f(ctx, c).
func (f RuleFunc) EvalChange(ctx context.Context, c change.Change) error {
	return f(ctx, c)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() Rule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() Rule {
	return fixedDecision{Deny}
}

// ContextRule creates a rule from a context evaluation function.
func ContextRule(eval func(context.Context) error) Rule {
	return RuleFunc(func(ctx context.Context, _ change.Change) error {
		return eval(ctx)
	})
}

// OnKind evaluates the given rule only on changes of the given kinds.
func OnKind(rule Rule, kinds ...change.Kind) Rule {
	return RuleFunc(func(ctx context.Context, c change.Change) error {
		if slices.Contains(kinds, c.Kind()) {
			return rule.EvalChange(ctx, c)
		}
		return Skip
	})
}

// DenyKindRule returns a rule denying changes of the given kind.
func DenyKindRule(kind change.Kind) Rule {
	rule := RuleFunc(func(_ context.Context, c change.Change) error {
		return Denyf("relagg/privacy: %s is not allowed", c.Kind())
	})
	return OnKind(rule, kind)
}

// OnEntity evaluates the given rule only on changes touching one of the
// named aggregate root entities.
func OnEntity(rule Rule, names ...string) Rule {
	return RuleFunc(func(ctx context.Context, c change.Change) error {
		for _, e := range Entities(c) {
			if slices.Contains(names, e.Name()) {
				return rule.EvalChange(ctx, c)
			}
		}
		return Skip
	})
}

// Policy is an ordered list of rules. It implements change.Policy.
//
//	executor := change.NewExecutor(ctx, interp, change.WithPolicy(privacy.Policy{
//		privacy.DenyIfNoViewer(),
//		privacy.HasRole("admin"),
//		privacy.TenantRule("TenantID"),
//	}))
type Policy []Rule

// EvalChange evaluates the rules in order. The first Allow stops the
// evaluation with a nil error, the first other decision is returned, and a
// change no rule decided on is allowed. A decision attached to the context
// with DecisionContext overrides all rules.
func (policy Policy) EvalChange(ctx context.Context, c change.Change) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range policy {
		switch decision := rule.EvalChange(ctx, c); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attached to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalChange(context.Context, change.Change) error {
	return f.decision
}

// Roots returns the aggregate roots written by a save change, in execution
// order. Delete changes have none.
func Roots(c change.Change) []any {
	actions := rootActions(c)
	roots := make([]any, len(actions))
	for i, a := range actions {
		roots[i] = a.Entity()
	}
	return roots
}

func rootActions(c change.Change) []dbaction.WithRoot {
	var roots []dbaction.WithRoot
	_ = c.ForEachAction(func(a dbaction.Action) error {
		for _, a := range dbaction.Flatten([]dbaction.Action{a}) {
			if r, ok := a.(dbaction.WithRoot); ok {
				roots = append(roots, r)
			}
		}
		return nil
	})
	return roots
}

// Entities returns the distinct aggregate root entities a change writes,
// deletes or locks.
func Entities(c change.Change) []*mapping.Entity {
	var entities []*mapping.Entity
	_ = c.ForEachAction(func(a dbaction.Action) error {
		for _, a := range dbaction.Flatten([]dbaction.Action{a}) {
			r, ok := a.(interface{ EntityType() *mapping.Entity })
			if ok && !slices.Contains(entities, r.EntityType()) {
				entities = append(entities, r.EntityType())
			}
		}
		return nil
	})
	return entities
}

var _ change.Policy = Policy(nil)
