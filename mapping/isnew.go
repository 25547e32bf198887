package mapping

import "reflect"

// Persistable is implemented by entities that decide themselves whether
// they were persisted before.
type Persistable interface {
	IsNew() bool
}

// IsNew reports whether the instance has not been persisted yet. An
// instance implementing Persistable decides itself. Otherwise a zero
// version, or a zero identifier for unversioned entities, marks a new
// instance. Entities without identifier are always new.
func (e *Entity) IsNew(instance any) bool {
	if p, ok := instance.(Persistable); ok {
		return p.IsNew()
	}
	switch {
	case e.version != nil:
		return isZero(e.Version(instance))
	case e.id != nil:
		return isZero(e.ID(instance))
	default:
		return true
	}
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
