// Package privacy implements rule based policies guarding the execution of
// aggregate changes.
//
// A Policy is an ordered list of rules, evaluated by a change.Executor
// configured with change.WithPolicy before the first action runs:
//
//	executor := change.NewExecutor(ctx, interp, change.WithPolicy(privacy.Policy{
//		privacy.DenyIfNoViewer(),
//		privacy.HasRole("admin"),
//		privacy.TenantRule("TenantID"),
//		privacy.IsOwner("OwnerID"),
//		privacy.DenyKindRule(change.Delete),
//	}))
//
// # Rule Evaluation
//
// Rules are evaluated in order until one returns a final decision:
//
//   - Allow: grants access and stops evaluation
//   - Deny: rejects the change and stops evaluation
//   - Skip (or nil): continues with the next rule
//
// A change no rule decided on is allowed; end a policy with
// AlwaysDenyRule to deny by default. Decisions wrap the sentinels, so
// callers test them with errors.Is:
//
//	_, err := executor.Execute(ctx, plan)
//	if errors.Is(err, privacy.Deny) {
//		...
//	}
//
// # Viewer
//
// Rules find the acting user in the context:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{
//		UserID:   "user-123",
//		Roles:    []string{"editor"},
//		TenantID: "acme",
//	})
//
// IsOwner and TenantRule compare a property of every saved aggregate root
// with the viewer's ID or tenant. DecisionContext attaches a fixed decision
// to a context, which bypasses all rules, for instance in migrations.
package privacy
