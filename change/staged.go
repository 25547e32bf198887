package change

import (
	"cmp"
	"reflect"
	"slices"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/dbaction"
	"github.com/syssam/relagg/mapping"
)

// stagedEntry is one child value waiting to be set on its parent.
type stagedEntry struct {
	qualifier any
	value     any
}

// stagedValue collects the children of one parent at one path. It is only
// applied to the parent when at least one child was replaced.
type stagedValue struct {
	path    *aggpath.Path
	entries []stagedEntry
	staged  bool
}

// stagedValues holds the child values to set on the entities of executed
// actions, keyed by the action that wrote the parent.
type stagedValues struct {
	byAction map[dbaction.Action][]*stagedValue
}

func newStagedValues() *stagedValues {
	return &stagedValues{byAction: make(map[dbaction.Action][]*stagedValue)}
}

// stage records a replaced child. The collection at path is set on the
// parent when the parent action is processed.
func (s *stagedValues) stage(parent dbaction.Action, path *aggpath.Path, qualifier, value any) {
	s.gather(parent, path, qualifier, value).staged = true
}

// gather records an unchanged child, so that the collection rebuilt for a
// replaced sibling still holds it.
func (s *stagedValues) gather(parent dbaction.Action, path *aggpath.Path, qualifier, value any) *stagedValue {
	values := s.byAction[parent]
	i := slices.IndexFunc(values, func(sv *stagedValue) bool { return sv.path == path })
	if i < 0 {
		values = append(values, &stagedValue{path: path})
		s.byAction[parent] = values
		i = len(values) - 1
	}
	sv := values[i]
	sv.entries = append(sv.entries, stagedEntry{qualifier: qualifier, value: value})
	return sv
}

// staged returns the staged values of the action in the order they were
// first recorded.
func (s *stagedValues) staged(a dbaction.Action) []*stagedValue {
	var staged []*stagedValue
	for _, sv := range s.byAction[a] {
		if sv.staged {
			staged = append(staged, sv)
		}
	}
	return staged
}

// value builds the property value from the collected children with the
// aggregator of the property kind.
func (sv *stagedValue) value() (any, error) {
	leaf := sv.path.Leaf()
	switch leaf.Kind() {
	case mapping.KindList:
		return aggregateList(sv.path, leaf.Type(), sv.entries)
	case mapping.KindSet:
		return aggregateSet(sv.path, leaf.Type(), sv.entries)
	case mapping.KindMap:
		return aggregateMap(sv.path, leaf.Type(), sv.entries)
	default:
		return sv.entries[len(sv.entries)-1].value, nil
	}
}

// aggregateList places every element at its index, or appends it when the
// index lies beyond the end of the list. Entries are placed in ascending
// index order, so gaps left by nil elements are closed.
func aggregateList(path *aggpath.Path, t reflect.Type, entries []stagedEntry) (any, error) {
	type indexed struct {
		index int
		value reflect.Value
	}
	sorted := make([]indexed, 0, len(entries))
	for _, e := range entries {
		idx, ok := e.qualifier.(int)
		if !ok {
			return nil, relagg.Invariantf("aggregateList", path.String(), "list qualifier %v of type %T is not an int", e.qualifier, e.qualifier)
		}
		v, err := elemValue(path, t.Elem(), e.value)
		if err != nil {
			return nil, err
		}
		sorted = append(sorted, indexed{index: idx, value: v})
	}
	slices.SortStableFunc(sorted, func(a, b indexed) int { return cmp.Compare(a.index, b.index) })
	list := make([]reflect.Value, 0, len(sorted))
	for _, e := range sorted {
		if e.index < len(list) {
			list = slices.Insert(list, e.index, e.value)
		} else {
			list = append(list, e.value)
		}
	}
	rv := reflect.MakeSlice(t, 0, len(list))
	return reflect.Append(rv, list...).Interface(), nil
}

// aggregateSet returns the union of all elements. Children are collected
// leaves first, so the order is reversed to restore the aggregate order.
func aggregateSet(path *aggpath.Path, t reflect.Type, entries []stagedEntry) (any, error) {
	rv := reflect.MakeSlice(t, 0, len(entries))
	for _, e := range slices.Backward(entries) {
		v, err := elemValue(path, t.Elem(), e.value)
		if err != nil {
			return nil, err
		}
		rv = reflect.Append(rv, v)
	}
	return rv.Interface(), nil
}

// aggregateMap puts every element at its key.
func aggregateMap(path *aggpath.Path, t reflect.Type, entries []stagedEntry) (any, error) {
	rv := reflect.MakeMapWithSize(t, len(entries))
	for _, e := range entries {
		k := reflect.ValueOf(e.qualifier)
		switch {
		case !k.IsValid():
			return nil, relagg.NewInvariantError("aggregateMap", path.String(), "map qualifier is nil")
		case k.Type() != t.Key() && k.Type().ConvertibleTo(t.Key()):
			k = k.Convert(t.Key())
		case k.Type() != t.Key():
			return nil, relagg.Invariantf("aggregateMap", path.String(), "map qualifier of type %s is not a %s", k.Type(), t.Key())
		}
		v, err := elemValue(path, t.Elem(), e.value)
		if err != nil {
			return nil, err
		}
		rv.SetMapIndex(k, v)
	}
	return rv.Interface(), nil
}

// elemValue converts a child entity to the element type of its container,
// taking its address or dereferencing it when needed.
func elemValue(path *aggpath.Path, t reflect.Type, value any) (reflect.Value, error) {
	rv := reflect.ValueOf(value)
	switch {
	case !rv.IsValid():
		return reflect.Zero(t), nil
	case rv.Type().AssignableTo(t):
		return rv, nil
	case t.Kind() == reflect.Pointer && rv.Type().AssignableTo(t.Elem()):
		p := reflect.New(t.Elem())
		p.Elem().Set(rv)
		return p, nil
	case rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem().AssignableTo(t):
		return rv.Elem(), nil
	default:
		return reflect.Value{}, relagg.Invariantf("elemValue", path.String(), "value of type %s does not fit element type %s", rv.Type(), t)
	}
}
