package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/relagg/change"
	"github.com/syssam/relagg/mapping"
)

// Viewer represents the authenticated user making a request.
// This interface should be implemented by application-specific user types.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier, or "".
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies changes made without a viewer
// in the context. It usually comes first in a policy.
func DenyIfNoViewer() Rule {
	return ContextRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("relagg/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows changes made by a viewer having the
// given role, and skips otherwise.
//
//	privacy.Policy{
//		privacy.DenyIfNoViewer(),
//		privacy.HasRole("admin"),
//		privacy.AlwaysDenyRule(),
//	}
func HasRole(role string) Rule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows changes made by a viewer having
// any of the given roles, and skips otherwise.
func HasAnyRole(roles ...string) Rule {
	return ContextRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(viewer.GetRoles(), role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a rule that allows saves whose roots all hold the
// viewer's ID in the named property. It skips deletes, saves of other
// users' aggregates and changes made without a viewer.
func IsOwner(property string) Rule {
	return RuleFunc(func(ctx context.Context, c change.Change) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || c.Kind() != change.Save {
			return Skip
		}
		ok, err := rootsMatch(c, property, viewer.GetID())
		switch {
		case err != nil:
			return err
		case ok:
			return Allow
		default:
			return Skip
		}
	})
}

// TenantRule returns a rule that denies saves of roots whose named
// property differs from the viewer's tenant. It skips when the viewer has
// no tenant.
func TenantRule(property string) Rule {
	return RuleFunc(func(ctx context.Context, c change.Change) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" || c.Kind() != change.Save {
			return Skip
		}
		ok, err := rootsMatch(c, property, viewer.GetTenantID())
		switch {
		case err != nil:
			return err
		case !ok:
			return Denyf("relagg/privacy: %s does not match tenant %q", property, viewer.GetTenantID())
		default:
			return Skip
		}
	})
}

// rootsMatch reports whether the named property of every root of c
// formats as want. A change without roots does not match.
func rootsMatch(c change.Change, property, want string) (bool, error) {
	roots := rootActions(c)
	if len(roots) == 0 {
		return false, nil
	}
	for _, r := range roots {
		e := r.EntityType()
		p, ok := e.Property(property)
		if !ok {
			return false, Denyf("relagg/privacy: %s has no property %s", e.Name(), property)
		}
		v := e.Context().GetPath(r.Entity(), mapping.PropertyPath{p})
		if v == nil || fmt.Sprint(v) != want {
			return false, nil
		}
	}
	return true, nil
}
