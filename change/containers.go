package change

import (
	"github.com/syssam/relagg"
	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/dbaction"
)

// Container accumulates the plans of many aggregates into one change.
// Containers are scoped to a single accumulation pass and are not safe
// for concurrent use.
type Container interface {
	Change
	Add(*Plan) error
}

type insertKey struct {
	path *aggpath.Path
	src  dbaction.IDValueSource
}

// SaveBatching combines save plans. Consecutive root inserts sharing an
// identifier value source are batched; a root update or a root insert with
// another source closes the running batch. Root writes come first, then
// the deletes of all aggregates batched per path (children first), then
// the inserts batched per path and identifier value source (parents
// first).
type SaveBatching struct {
	roots      []dbaction.Action
	candidates []*dbaction.InsertRoot
	inserts    grouped[insertKey, *dbaction.Insert]
	deletes    grouped[*aggpath.Path, *dbaction.Delete]
}

// NewSaveBatching returns an empty SaveBatching.
func NewSaveBatching() *SaveBatching { return &SaveBatching{} }

// Kind implements Change.
func (c *SaveBatching) Kind() Kind { return Save }

// Add adds the actions of a save plan.
func (c *SaveBatching) Add(p *Plan) error {
	if p.Kind() != Save {
		return relagg.Invariantf("SaveBatching.Add", p.EntityType().Name(), "can't add a %s plan", p.Kind())
	}
	return p.ForEachAction(func(a dbaction.Action) error {
		switch a := a.(type) {
		case *dbaction.UpdateRoot:
			if err := c.commitCandidates(); err != nil {
				return err
			}
			c.roots = append(c.roots, a)
		case *dbaction.InsertRoot:
			if len(c.candidates) > 0 && c.candidates[0].IDValueSource() != a.IDValueSource() {
				if err := c.commitCandidates(); err != nil {
					return err
				}
			}
			c.candidates = append(c.candidates, a)
		case *dbaction.Insert:
			c.inserts.add(insertKey{path: a.PropertyPath(), src: a.IDValueSource()}, a)
		case *dbaction.Delete:
			c.deletes.add(a.PropertyPath(), a)
		default:
			return relagg.Invariantf("SaveBatching.Add", a.String(), "unexpected action of type %T", a)
		}
		return nil
	})
}

func (c *SaveBatching) commitCandidates() error {
	a, err := insertRoots(c.candidates)
	if err != nil || a == nil {
		return err
	}
	c.roots = append(c.roots, a)
	c.candidates = nil
	return nil
}

// ForEachAction implements Change.
func (c *SaveBatching) ForEachAction(fn func(dbaction.Action) error) error {
	for _, a := range c.roots {
		if err := fn(a); err != nil {
			return err
		}
	}
	last, err := insertRoots(c.candidates)
	if err != nil {
		return err
	}
	if last != nil {
		if err := fn(last); err != nil {
			return err
		}
	}
	for _, deletes := range c.deletes.sorted(longestFirst) {
		a, err := batchDeletes(deletes)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return forEachInsertBatch(&c.inserts, fn)
}

// SaveMerged combines save plans grouping non-root actions by path. Root
// writes keep their arrival order and are never batched. Deletes follow,
// grouped per path with the deepest paths first and emitted one by one,
// then inserts batched per path and identifier value source with the
// shallowest paths first.
type SaveMerged struct {
	roots   []dbaction.Action
	inserts grouped[insertKey, *dbaction.Insert]
	deletes grouped[*aggpath.Path, *dbaction.Delete]
}

// NewSaveMerged returns an empty SaveMerged.
func NewSaveMerged() *SaveMerged { return &SaveMerged{} }

// Kind implements Change.
func (c *SaveMerged) Kind() Kind { return Save }

// Add adds the actions of a save plan.
func (c *SaveMerged) Add(p *Plan) error {
	if p.Kind() != Save {
		return relagg.Invariantf("SaveMerged.Add", p.EntityType().Name(), "can't add a %s plan", p.Kind())
	}
	return p.ForEachAction(func(a dbaction.Action) error {
		switch a := a.(type) {
		case dbaction.WithRoot:
			c.roots = append(c.roots, a)
		case *dbaction.Insert:
			c.inserts.add(insertKey{path: a.PropertyPath(), src: a.IDValueSource()}, a)
		case *dbaction.Delete:
			c.deletes.add(a.PropertyPath(), a)
		default:
			return relagg.Invariantf("SaveMerged.Add", a.String(), "unexpected action of type %T", a)
		}
		return nil
	})
}

// ForEachAction implements Change.
func (c *SaveMerged) ForEachAction(fn func(dbaction.Action) error) error {
	for _, a := range c.roots {
		if err := fn(a); err != nil {
			return err
		}
	}
	for _, deletes := range c.deletes.sorted(longestFirst) {
		for _, d := range deletes {
			if err := fn(d); err != nil {
				return err
			}
		}
	}
	return forEachInsertBatch(&c.inserts, fn)
}

// DeleteBatching combines delete plans of single aggregates. Locks come
// first, then the deletes of all aggregates batched per path with the
// deepest paths first, then the unversioned root deletes as one batch and
// finally the versioned root deletes one by one.
type DeleteBatching struct {
	locks       []*dbaction.AcquireLockRoot
	deletes     grouped[*aggpath.Path, *dbaction.Delete]
	unversioned []*dbaction.DeleteRoot
	versioned   []*dbaction.DeleteRoot
}

// NewDeleteBatching returns an empty DeleteBatching.
func NewDeleteBatching() *DeleteBatching { return &DeleteBatching{} }

// Kind implements Change.
func (c *DeleteBatching) Kind() Kind { return Delete }

// Add adds the actions of a delete plan. Plans deleting all aggregates of
// a type can't be batched.
func (c *DeleteBatching) Add(p *Plan) error {
	if p.Kind() != Delete {
		return relagg.Invariantf("DeleteBatching.Add", p.EntityType().Name(), "can't add a %s plan", p.Kind())
	}
	return p.ForEachAction(func(a dbaction.Action) error {
		switch a := a.(type) {
		case *dbaction.AcquireLockRoot:
			c.locks = append(c.locks, a)
		case *dbaction.Delete:
			c.deletes.add(a.PropertyPath(), a)
		case *dbaction.DeleteRoot:
			if a.PreviousVersion() == nil {
				c.unversioned = append(c.unversioned, a)
			} else {
				c.versioned = append(c.versioned, a)
			}
		default:
			return relagg.Invariantf("DeleteBatching.Add", a.String(), "unexpected action of type %T", a)
		}
		return nil
	})
}

// ForEachAction implements Change.
func (c *DeleteBatching) ForEachAction(fn func(dbaction.Action) error) error {
	for _, a := range c.locks {
		if err := fn(a); err != nil {
			return err
		}
	}
	for _, deletes := range c.deletes.sorted(longestFirst) {
		a, err := batchDeletes(deletes)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	switch len(c.unversioned) {
	case 0:
	case 1:
		if err := fn(c.unversioned[0]); err != nil {
			return err
		}
	default:
		b, err := dbaction.NewBatchDeleteRoot(c.unversioned)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	for _, a := range c.versioned {
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

// insertRoots returns nil for no candidates, the single candidate or a
// batch of all candidates.
func insertRoots(candidates []*dbaction.InsertRoot) (dbaction.Action, error) {
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	default:
		return dbaction.NewBatchInsertRoot(append([]*dbaction.InsertRoot(nil), candidates...))
	}
}

func batchDeletes(deletes []*dbaction.Delete) (dbaction.Action, error) {
	if len(deletes) == 1 {
		return deletes[0], nil
	}
	return dbaction.NewBatchDelete(deletes)
}

func forEachInsertBatch(inserts *grouped[insertKey, *dbaction.Insert], fn func(dbaction.Action) error) error {
	byPath := func(a, b insertKey) int { return shortestFirst(a.path, b.path) }
	for _, group := range inserts.sorted(byPath) {
		b, err := dbaction.NewBatchInsert(group)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ Container = (*SaveBatching)(nil)
	_ Container = (*SaveMerged)(nil)
	_ Container = (*DeleteBatching)(nil)
)
