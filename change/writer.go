package change

import (
	"log/slog"
	"reflect"
	"slices"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/dbaction"
	"github.com/syssam/relagg/mapping"
)

// Planner computes the change plans of aggregates. It performs no I/O. A
// Planner is safe for concurrent use; every call walks the aggregate with
// its own traversal state.
type Planner struct {
	paths *aggpath.Factory
	ctx   *mapping.Context
	log   *slog.Logger
}

// NewPlanner returns a planner over the given path factory.
func NewPlanner(paths *aggpath.Factory, opts ...Option) *Planner {
	c := newConfig(opts)
	return &Planner{paths: paths, ctx: paths.Context(), log: c.log}
}

// Factory returns the path factory of the planner.
func (p *Planner) Factory() *aggpath.Factory { return p.paths }

// Plan computes the change plan of the given kind for root. A save inserts
// the aggregate when the root is new and otherwise deletes its children,
// updates the root and reinserts the children. A delete removes the
// children and then the root, identified by its identifier.
// previousVersion is the version the root row is expected to have, or nil.
func (p *Planner) Plan(kind Kind, root, previousVersion any) (*Plan, error) {
	meta, err := p.entityOf("Plan", root)
	if err != nil {
		return nil, err
	}
	switch kind {
	case Save:
		return p.save(meta, root, previousVersion, meta.IsNew(root))
	case Delete:
		if _, err := meta.RequiredIDProperty(); err != nil {
			return nil, err
		}
		return p.delete(meta, meta.ID(root), previousVersion)
	default:
		return nil, relagg.Invariantf("Plan", meta.Name(), "unknown change kind %d", kind)
	}
}

// Save plans a save of root and maintains its version property: a new root
// gets version 1, an existing one is incremented and its former version is
// checked by the update.
func (p *Planner) Save(root any) (*Plan, error) {
	meta, err := p.entityOf("Save", root)
	if err != nil {
		return nil, err
	}
	isNew := meta.IsNew(root)
	vp := meta.VersionProperty()
	if vp == nil {
		return p.save(meta, root, nil, isNew)
	}
	previous := meta.Version(root)
	next, err := nextVersion(previous, isNew)
	if err != nil {
		return nil, relagg.NewMetadataError(meta.Name(), vp.Name, "increment version", err)
	}
	if root, err = p.ctx.Accessor().Set(root, vp, next); err != nil {
		return nil, err
	}
	if isNew {
		previous = nil
	}
	return p.save(meta, root, previous, isNew)
}

// Delete plans the deletion of root. The version of versioned roots is
// checked by the root delete.
func (p *Planner) Delete(root any) (*Plan, error) {
	meta, err := p.entityOf("Delete", root)
	if err != nil {
		return nil, err
	}
	return p.Plan(Delete, root, meta.Version(root))
}

// DeleteByID plans the deletion of the aggregate of type t with the given
// identifier. A nil identifier deletes all aggregates of the type.
func (p *Planner) DeleteByID(t reflect.Type, id any) (*Plan, error) {
	meta, err := p.ctx.Entity(t)
	if err != nil {
		return nil, err
	}
	return p.delete(meta, id, nil)
}

// DeleteAll plans the deletion of all aggregates of type t.
func (p *Planner) DeleteAll(t reflect.Type) (*Plan, error) {
	return p.DeleteByID(t, nil)
}

func (p *Planner) entityOf(op string, root any) (*mapping.Entity, error) {
	if root == nil {
		return nil, relagg.NewInvariantError(op, "", "aggregate root is nil")
	}
	return p.ctx.EntityOf(root)
}

func (p *Planner) save(meta *mapping.Entity, root, previousVersion any, isNew bool) (*Plan, error) {
	w, err := p.newWritingContext(meta, root)
	if err != nil {
		return nil, err
	}
	plan := newPlan(Save, meta, root, previousVersion)
	if isNew {
		err = w.insert(plan)
	} else {
		err = w.update(plan, previousVersion)
	}
	if err != nil {
		return nil, err
	}
	p.log.Debug("change: planned aggregate", "entity", meta.Name(), "kind", Save, "new", isNew, "actions", plan.Len())
	return plan, nil
}

func (p *Planner) delete(meta *mapping.Entity, id, previousVersion any) (*Plan, error) {
	w, err := p.newWritingContext(meta, nil)
	if err != nil {
		return nil, err
	}
	plan := newPlan(Delete, meta, nil, previousVersion)
	if id == nil {
		w.deleteAll(plan)
	} else {
		w.deleteByID(plan, id, previousVersion)
	}
	p.log.Debug("change: planned aggregate", "entity", meta.Name(), "kind", Delete, "id", id, "actions", plan.Len())
	return plan, nil
}

func (p *Planner) newWritingContext(meta *mapping.Entity, root any) (*writingContext, error) {
	paths, err := p.paths.Paths(meta.Type(), mapping.IsTableEntity)
	if err != nil {
		return nil, err
	}
	return &writingContext{
		ctx:      p.ctx,
		meta:     meta,
		root:     root,
		paths:    paths,
		nodes:    make(map[*aggpath.Path][]*node, len(paths)),
		previous: make(map[*node]dbaction.Action),
	}, nil
}

// node is an element of the aggregate at a path, linked to the node of the
// entity owning its row. Nodes exist only during one planning call.
type node struct {
	path   *aggpath.Path
	parent *node // nil for children of the root
	value  any
	key    any
}

// writingContext holds the traversal state of one planning call. Paths are
// ordered parents first, so the nodes of a parent path are always cached
// before its children are visited.
type writingContext struct {
	ctx      *mapping.Context
	meta     *mapping.Entity
	root     any
	paths    []*aggpath.Path
	nodes    map[*aggpath.Path][]*node
	previous map[*node]dbaction.Action // the nil node is the root
}

func (w *writingContext) insert(plan *Plan) error {
	root := dbaction.NewInsertRoot(w.meta, w.root, dbaction.IDValueSourceFor(w.meta, w.root))
	w.previous[nil] = root
	plan.add(root)
	return w.insertReferenced(plan)
}

func (w *writingContext) update(plan *Plan, previousVersion any) error {
	if _, err := w.meta.RequiredIDProperty(); err != nil {
		return err
	}
	w.deleteReferenced(plan, w.meta.ID(w.root))
	root := dbaction.NewUpdateRoot(w.meta, w.root, previousVersion)
	w.previous[nil] = root
	plan.add(root)
	return w.insertReferenced(plan)
}

func (w *writingContext) deleteByID(plan *Plan, id, previousVersion any) {
	if len(w.paths) > 0 {
		plan.add(dbaction.NewAcquireLockRoot(id, w.meta))
	}
	w.deleteReferenced(plan, id)
	plan.add(dbaction.NewDeleteRoot(id, w.meta, previousVersion))
}

func (w *writingContext) deleteAll(plan *Plan) {
	if len(w.paths) > 0 {
		plan.add(dbaction.NewAcquireLockAllRoot(w.meta))
	}
	for _, path := range slices.Backward(w.paths) {
		plan.add(dbaction.NewDeleteAll(path))
	}
	plan.add(dbaction.NewDeleteAllRoot(w.meta))
}

// deleteReferenced deletes the rows of all paths, children first.
func (w *writingContext) deleteReferenced(plan *Plan, id any) {
	for _, path := range slices.Backward(w.paths) {
		plan.add(dbaction.NewDelete(id, path))
	}
}

func (w *writingContext) insertReferenced(plan *Plan) error {
	for _, path := range w.paths {
		nodes, err := w.from(path)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			insert, err := w.insertNode(n)
			if err != nil {
				return err
			}
			plan.add(insert)
		}
	}
	return nil
}

func (w *writingContext) insertNode(n *node) (*dbaction.Insert, error) {
	parent, err := w.parentAction(n)
	if err != nil {
		return nil, err
	}
	leaf, err := n.path.RequiredLeafEntity()
	if err != nil {
		return nil, err
	}
	var qualifiers []dbaction.Qualifier
	if pi, ok := parent.(*dbaction.Insert); ok && !pi.PropertyPath().HasIDProperty() {
		qualifiers = append(qualifiers, pi.Qualifiers()...)
	}
	if n.path.IsQualified() {
		qualifiers = append(qualifiers, dbaction.Qualifier{Path: n.path, Value: n.key})
	}
	insert := dbaction.NewInsert(n.value, n.path, parent, qualifiers, dbaction.IDValueSourceFor(leaf, n.value))
	w.previous[n] = insert
	return insert, nil
}

func (w *writingContext) parentAction(n *node) (dbaction.WithEntity, error) {
	a, ok := w.previous[n.parent]
	if !ok {
		return nil, relagg.NewInvariantError("parentAction", n.path.String(), "no action was recorded for the parent node")
	}
	we, ok := a.(dbaction.WithEntity)
	if !ok {
		return nil, relagg.Invariantf("parentAction", n.path.String(), "parent action %s of type %T is not an entity action", a, a)
	}
	return we, nil
}

// from returns the nodes of path. Values are read relative to the nodes of
// the nearest ancestor owning a table, skipping embedded values in between.
func (w *writingContext) from(path *aggpath.Path) ([]*node, error) {
	owner := path.Parent().TableOwningAncestor()
	rel, ok := path.Subtract(owner)
	if !ok {
		return nil, relagg.Invariantf("from", path.String(), "%s is not a prefix of the path", owner)
	}
	var (
		nodes []*node
		err   error
	)
	if owner.IsRoot() {
		nodes, err = w.createNodes(nodes, path, nil, w.ctx.GetPath(w.root, rel))
	} else {
		parents, ok := w.nodes[owner]
		if !ok {
			return nil, relagg.Invariantf("from", path.String(), "parent path %s was not visited", owner)
		}
		for _, parent := range parents {
			if nodes, err = w.createNodes(nodes, path, parent, w.ctx.GetPath(parent.value, rel)); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}
	w.nodes[path] = nodes
	return nodes, nil
}

// createNodes appends the nodes of the elements of value to nodes.
func (w *writingContext) createNodes(nodes []*node, path *aggpath.Path, parent *node, value any) ([]*node, error) {
	entries, err := mapping.Entries(path.Leaf(), value)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		nodes = append(nodes, &node{path: path, parent: parent, value: e.Value, key: e.Key})
	}
	return nodes, nil
}

// nextVersion returns the version following current: 1 for new roots and
// current+1 otherwise.
func nextVersion(current any, isNew bool) (any, error) {
	if isNew {
		return 1, nil
	}
	rv := reflect.ValueOf(current)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() + 1, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() + 1, nil
	default:
		return nil, relagg.Invariantf("nextVersion", "", "version of type %T is not numeric", current)
	}
}
