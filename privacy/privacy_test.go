package privacy_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/change"
	"github.com/syssam/relagg/dbaction"
	"github.com/syssam/relagg/mapping"
	"github.com/syssam/relagg/privacy"
)

type (
	Page struct {
		Body string
	}
	Doc struct {
		ID       int64
		OwnerID  string
		TenantID string
		Pages    []Page
	}
	Memo struct {
		ID   int64
		Text string
	}
)

type env struct {
	ctx     *mapping.Context
	planner *change.Planner
	ran     []dbaction.Action
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx, err := mapping.NewContext()
	require.NoError(t, err)
	return &env{ctx: ctx, planner: change.NewPlanner(aggpath.NewFactory(ctx))}
}

func (e *env) executor(p privacy.Policy) *change.Executor {
	interp := dbaction.InterpreterFunc(func(_ context.Context, a dbaction.Action) error {
		e.ran = append(e.ran, a)
		if g, ok := a.(dbaction.WithGeneratedID); ok && g.IDValueSource() == dbaction.IDValueSourceGenerated {
			g.SetGeneratedID(int64(len(e.ran)))
		}
		return nil
	})
	return change.NewExecutor(e.ctx, interp, change.WithPolicy(p))
}

func (e *env) save(t *testing.T, root any) *change.Plan {
	t.Helper()
	plan, err := e.planner.Save(root)
	require.NoError(t, err)
	return plan
}

func (e *env) delete(t *testing.T, root any) *change.Plan {
	t.Helper()
	plan, err := e.planner.Delete(root)
	require.NoError(t, err)
	return plan
}

func TestDecisionErrors(t *testing.T) {
	tests := []struct {
		name     string
		decision error
		want     error
	}{
		{name: "allow", decision: privacy.Allowf("owner %s", "u1"), want: privacy.Allow},
		{name: "deny", decision: privacy.Denyf("tenant %q", "acme"), want: privacy.Deny},
		{name: "skip", decision: privacy.Skipf("no viewer"), want: privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.decision, tt.want)
			for _, other := range []error{privacy.Allow, privacy.Deny, privacy.Skip} {
				if other != tt.want {
					assert.NotErrorIs(t, tt.decision, other)
				}
			}
		})
	}
	assert.Equal(t, `tenant "acme": relagg/privacy: deny rule`, privacy.Denyf("tenant %q", "acme").Error())
}

func TestPolicyEvaluation(t *testing.T) {
	e := newEnv(t)
	plan := e.save(t, &Doc{OwnerID: "u1"})
	ctx := context.Background()
	custom := errors.New("custom")

	tests := []struct {
		name   string
		policy privacy.Policy
		want   error
	}{
		{name: "Empty", policy: nil},
		{name: "AllSkip", policy: privacy.Policy{privacy.ContextRule(func(context.Context) error { return nil })}},
		{name: "Allow", policy: privacy.Policy{privacy.AlwaysAllowRule(), privacy.AlwaysDenyRule()}},
		{name: "Deny", policy: privacy.Policy{privacy.AlwaysDenyRule(), privacy.AlwaysAllowRule()}, want: privacy.Deny},
		{name: "SkipThenDeny", policy: privacy.Policy{privacy.ContextRule(func(context.Context) error { return privacy.Skip }), privacy.AlwaysDenyRule()}, want: privacy.Deny},
		{name: "OtherError", policy: privacy.Policy{privacy.RuleFunc(func(context.Context, change.Change) error { return custom })}, want: custom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.EvalChange(ctx, plan)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("DecisionContext", func(t *testing.T) {
		deny := privacy.Policy{privacy.AlwaysDenyRule()}
		assert.NoError(t, deny.EvalChange(privacy.DecisionContext(ctx, privacy.Allow), plan))
		allow := privacy.Policy{privacy.AlwaysAllowRule()}
		assert.ErrorIs(t, allow.EvalChange(privacy.DecisionContext(ctx, privacy.Deny), plan), privacy.Deny)
		assert.Equal(t, ctx, privacy.DecisionContext(ctx, privacy.Skip))
		_, ok := privacy.DecisionFromContext(ctx)
		assert.False(t, ok)
	})
}

func TestOnKind(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	doc := &Doc{ID: 3}
	policy := privacy.Policy{privacy.DenyKindRule(change.Delete)}
	assert.NoError(t, policy.EvalChange(ctx, e.save(t, doc)))
	err := policy.EvalChange(ctx, e.delete(t, doc))
	require.ErrorIs(t, err, privacy.Deny)
	assert.Contains(t, err.Error(), "delete is not allowed")
}

func TestOnEntity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	policy := privacy.Policy{privacy.OnEntity(privacy.AlwaysDenyRule(), "Memo")}
	assert.NoError(t, policy.EvalChange(ctx, e.save(t, &Doc{})))
	assert.ErrorIs(t, policy.EvalChange(ctx, e.save(t, &Memo{})), privacy.Deny)
	assert.ErrorIs(t, policy.EvalChange(ctx, e.delete(t, &Memo{ID: 1})), privacy.Deny)

	all, err := e.planner.DeleteAll(reflect.TypeOf(Memo{}))
	require.NoError(t, err)
	entities := privacy.Entities(all)
	require.Len(t, entities, 1)
	assert.Equal(t, "Memo", entities[0].Name())
}

func TestRoots(t *testing.T) {
	e := newEnv(t)
	a, b := &Doc{OwnerID: "a"}, &Doc{OwnerID: "b", Pages: []Page{{Body: "p"}}}
	batch := change.NewSaveBatching()
	require.NoError(t, batch.Add(e.save(t, a)))
	require.NoError(t, batch.Add(e.save(t, b)))
	assert.Equal(t, []any{a, b}, privacy.Roots(batch))
	assert.Empty(t, privacy.Roots(e.delete(t, &Doc{ID: 1})))
}

func TestExecutorPolicy(t *testing.T) {
	e := newEnv(t)
	ex := e.executor(privacy.Policy{
		privacy.DenyIfNoViewer(),
		privacy.HasRole("admin"),
		privacy.AlwaysDenyRule(),
	})

	_, err := ex.Execute(context.Background(), e.save(t, &Doc{}))
	require.ErrorIs(t, err, privacy.Deny)
	assert.Contains(t, err.Error(), "viewer required")
	assert.Empty(t, e.ran)

	ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u1", Roles: []string{"editor"}})
	_, err = ex.Execute(ctx, e.save(t, &Doc{}))
	require.ErrorIs(t, err, privacy.Deny)
	assert.Empty(t, e.ran)

	ctx = privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u2", Roles: []string{"admin"}})
	doc := &Doc{Pages: []Page{{Body: "p0"}}}
	_, err = ex.Execute(ctx, e.save(t, doc))
	require.NoError(t, err)
	assert.Len(t, e.ran, 2)
	assert.EqualValues(t, 1, doc.ID)
}

func Example() {
	ctx, _ := mapping.NewContext()
	planner := change.NewPlanner(aggpath.NewFactory(ctx))
	policy := privacy.Policy{privacy.DenyIfNoViewer(), privacy.TenantRule("TenantID")}
	plan, _ := planner.Save(&Doc{TenantID: "acme"})

	viewer := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u1", TenantID: "globex"})
	fmt.Println(policy.EvalChange(viewer, plan))
	// Output: relagg/privacy: TenantID does not match tenant "globex": relagg/privacy: deny rule
}
