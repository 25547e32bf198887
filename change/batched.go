package change

import (
	"cmp"
	"iter"
	"slices"

	"github.com/syssam/relagg/aggpath"
)

// grouped collects values per key and remembers the order in which keys
// were first seen.
type grouped[K comparable, V any] struct {
	keys   []K
	groups map[K][]V
}

func (g *grouped[K, V]) add(k K, v V) {
	if g.groups == nil {
		g.groups = make(map[K][]V)
	}
	if _, ok := g.groups[k]; !ok {
		g.keys = append(g.keys, k)
	}
	g.groups[k] = append(g.groups[k], v)
}

// sorted yields the groups ordered by cmp. Keys comparing equal keep the
// order in which they were first seen.
func (g *grouped[K, V]) sorted(cmp func(K, K) int) iter.Seq2[K, []V] {
	keys := slices.Clone(g.keys)
	slices.SortStableFunc(keys, cmp)
	return func(yield func(K, []V) bool) {
		for _, k := range keys {
			if !yield(k, g.groups[k]) {
				return
			}
		}
	}
}

// shortestFirst orders paths parents before children.
func shortestFirst(a, b *aggpath.Path) int { return cmp.Compare(a.Len(), b.Len()) }

// longestFirst orders paths children before parents.
func longestFirst(a, b *aggpath.Path) int { return cmp.Compare(b.Len(), a.Len()) }
