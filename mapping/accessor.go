package mapping

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/syssam/relagg"
)

// PropertyAccessor reads and writes properties of entity instances.
//
// Set returns the instance holding the new value. For mutable instances
// (pointers to structs) this is the given instance, for immutable ones
// (struct values) it is a modified copy.
type PropertyAccessor interface {
	Get(instance any, p *Property) any
	Set(instance any, p *Property, value any) (any, error)
}

// ReflectAccessor is the reflection based PropertyAccessor.
type ReflectAccessor struct{}

// Get implements PropertyAccessor. Nil pointers, slices and maps are
// returned as an untyped nil.
func (ReflectAccessor) Get(instance any, p *Property) any {
	rv := reflect.ValueOf(instance)
	if !rv.IsValid() {
		return nil
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Type() != p.owner.typ {
		panic(relagg.Invariantf("Get", p.String(), "instance of type %T does not declare the property", instance))
	}
	return interfaceOrNil(rv.Field(p.index))
}

// Set implements PropertyAccessor.
func (ReflectAccessor) Set(instance any, p *Property, value any) (any, error) {
	rv := reflect.ValueOf(instance)
	switch {
	case !rv.IsValid(), rv.Kind() == reflect.Pointer && rv.IsNil():
		return nil, relagg.NewInvariantError("Set", p.String(), "instance is nil")
	case rv.Kind() == reflect.Pointer && rv.Elem().Type() == p.owner.typ:
		if err := assign(rv.Elem().Field(p.index), value); err != nil {
			return nil, relagg.NewMetadataError(p.owner.Name(), p.Name, "set property", err)
		}
		return instance, nil
	case rv.Type() == p.owner.typ:
		cp := reflect.New(rv.Type()).Elem()
		cp.Set(rv)
		if err := assign(cp.Field(p.index), value); err != nil {
			return nil, relagg.NewMetadataError(p.owner.Name(), p.Name, "set property", err)
		}
		return cp.Interface(), nil
	default:
		return nil, relagg.Invariantf("Set", p.String(), "instance of type %T does not declare the property", instance)
	}
}

// GetPath reads the value at the end of the given property chain. It
// returns nil as soon as an intermediate value is nil.
func (c *Context) GetPath(instance any, path PropertyPath) any {
	v := instance
	for _, p := range path {
		if v == nil {
			return nil
		}
		v = c.accessor.Get(v, p)
	}
	return v
}

// SetPath sets the value at the end of the given property chain and
// returns the resulting instance. Immutable intermediate values are copied
// and set back on their owners.
func (c *Context) SetPath(instance any, path PropertyPath, value any) (any, error) {
	switch len(path) {
	case 0:
		return nil, relagg.NewInvariantError("SetPath", "", "empty property path")
	case 1:
		return c.accessor.Set(instance, path[0], value)
	}
	child := c.accessor.Get(instance, path[0])
	if child == nil {
		return nil, relagg.Invariantf("SetPath", path.String(), "property %s is nil", path[0].Name)
	}
	child, err := c.SetPath(child, path[1:], value)
	if err != nil {
		return nil, err
	}
	return c.accessor.Set(instance, path[0], child)
}

// Identical reports whether two instances are the same entity instance:
// the same pointer for mutable instances, equal values otherwise.
func Identical(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Pointer && vb.Kind() == reflect.Pointer {
		return va.Type() == vb.Type() && va.Pointer() == vb.Pointer()
	}
	return reflect.DeepEqual(a, b)
}

func interfaceOrNil(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}

func assign(f reflect.Value, value any) error {
	if value == nil {
		f.SetZero()
		return nil
	}
	v, ft := reflect.ValueOf(value), f.Type()
	switch {
	case v.Type().AssignableTo(ft):
		f.Set(v)
	case ft.Kind() == reflect.Pointer && v.Type().AssignableTo(ft.Elem()):
		ptr := reflect.New(ft.Elem())
		ptr.Elem().Set(v)
		f.Set(ptr)
	case v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Type().AssignableTo(ft):
		f.Set(v.Elem())
	case ft == uuidType:
		id, err := toUUID(value)
		if err != nil {
			return err
		}
		f.Set(reflect.ValueOf(id))
	case isNumber(v.Kind()) && isNumber(ft.Kind()), v.Kind() == reflect.String && ft.Kind() == reflect.String:
		f.Set(v.Convert(ft))
	case ft.Kind() == reflect.String && v.Type() == bytesType:
		f.SetString(string(v.Bytes()))
	default:
		return fmt.Errorf("cannot assign %T to %s", value, ft)
	}
	return nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func toUUID(v any) (uuid.UUID, error) {
	switch v := v.(type) {
	case string:
		return uuid.Parse(v)
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	case [16]byte:
		return uuid.UUID(v), nil
	default:
		return uuid.Nil, fmt.Errorf("cannot convert %T to uuid", v)
	}
}
