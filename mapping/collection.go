package mapping

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/syssam/relagg"
)

// Entry is one element of an entity-valued property. Key is the list index
// or map key of qualified properties and nil otherwise.
type Entry struct {
	Key   any
	Value any
}

// OrderedMap is implemented by map types that define their own iteration
// order. Maps that do not implement it are traversed in ascending key order.
type OrderedMap interface {
	OrderedKeys() []any
}

// Entries expands the value of an entity-valued property into its non-nil
// elements: one per list or set element, one per map entry and a single
// entry for references and embedded values. An OrderedMap listing a key
// the map does not hold, or a key of the wrong type, is a metadata error.
func Entries(p *Property, value any) ([]Entry, error) {
	if value == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(value)
	var entries []Entry
	switch p.kind {
	case KindList, KindSet:
		for i := 0; i < rv.Len(); i++ {
			e := interfaceOrNil(rv.Index(i))
			if e == nil {
				continue
			}
			if p.kind == KindList {
				entries = append(entries, Entry{Key: i, Value: e})
			} else {
				entries = append(entries, Entry{Value: e})
			}
		}
	case KindMap:
		keys, err := mapKeys(p, rv, value)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			v := rv.MapIndex(k)
			if !v.IsValid() {
				return nil, relagg.NewMetadataError(p.owner.Name(), p.Name, fmt.Sprintf("ordered key %v is not in the map", k.Interface()), nil)
			}
			if e := interfaceOrNil(v); e != nil {
				entries = append(entries, Entry{Key: k.Interface(), Value: e})
			}
		}
	default:
		entries = append(entries, Entry{Value: value})
	}
	return entries, nil
}

func mapKeys(p *Property, rv reflect.Value, value any) ([]reflect.Value, error) {
	om, ok := value.(OrderedMap)
	if !ok {
		keys := rv.MapKeys()
		slices.SortFunc(keys, compareKeys)
		return keys, nil
	}
	kt := rv.Type().Key()
	ordered := om.OrderedKeys()
	keys := make([]reflect.Value, 0, len(ordered))
	seen := make(map[any]bool, len(ordered))
	for _, k := range ordered {
		kv := reflect.ValueOf(k)
		switch {
		case !kv.IsValid():
			return nil, relagg.NewMetadataError(p.owner.Name(), p.Name, "ordered key is nil", nil)
		case kv.Type() == kt:
		case kv.Type().ConvertibleTo(kt):
			kv = kv.Convert(kt)
		default:
			return nil, relagg.NewMetadataError(p.owner.Name(), p.Name, fmt.Sprintf("ordered key %v of type %s is not a %s", k, kv.Type(), kt), nil)
		}
		if !kv.Comparable() {
			return nil, relagg.NewMetadataError(p.owner.Name(), p.Name, fmt.Sprintf("ordered key %v is not comparable", k), nil)
		}
		if seen[kv.Interface()] {
			return nil, relagg.NewMetadataError(p.owner.Name(), p.Name, fmt.Sprintf("ordered key %v is listed twice", k), nil)
		}
		seen[kv.Interface()] = true
		keys = append(keys, kv)
	}
	return keys, nil
}

func compareKeys(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	case reflect.String:
		return strings.Compare(a.String(), b.String())
	default:
		return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	}
}
