// Package dbaction defines the closed set of database actions produced by
// the write planner. Actions are never executed by the planner; they are
// handed to an Interpreter in emission order.
package dbaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/mapping"
)

// Action is a single database interaction. The set of implementations is
// closed; use Dispatch to hand an action to an Interpreter.
type Action interface {
	fmt.Stringer
	accept(context.Context, Interpreter) error
}

// WithEntity is implemented by actions carrying an entity instance.
type WithEntity interface {
	Action
	Entity() any
}

// WithRoot is implemented by the write actions of the aggregate root. The
// entity is replaced when an immutable root receives its identifier.
type WithRoot interface {
	WithEntity
	SetEntity(any)
	EntityType() *mapping.Entity
}

// WithGeneratedID is implemented by inserts, which may produce an
// identifier. The interpreter records the identifier with SetGeneratedID.
type WithGeneratedID interface {
	WithEntity
	IDValueSource() IDValueSource
	GeneratedID() any
	SetGeneratedID(any)
}

// WithPropertyPath is implemented by actions on non-root entities.
type WithPropertyPath interface {
	Action
	PropertyPath() *aggpath.Path
}

// WithDependingOn is implemented by writes of non-root entities. They
// depend on the action writing the parent row.
type WithDependingOn interface {
	WithPropertyPath
	WithEntity
	DependingOn() WithEntity
	Qualifiers() []Qualifier
	Qualifier() (Qualifier, bool, error)
}

// Batch is implemented by actions grouping several actions of one kind that
// share a discriminating value.
type Batch interface {
	Action
	Actions() []Action
}

// Qualifier is a list index or map key positioning an element written at
// Path. Qualifiers of id-less ancestors are carried along with the
// element's own qualifier.
type Qualifier struct {
	Path  *aggpath.Path
	Value any
}

// InsertRoot inserts the aggregate root.
type InsertRoot struct {
	entity    any
	meta      *mapping.Entity
	src       IDValueSource
	generated any
}

// NewInsertRoot returns a new InsertRoot.
func NewInsertRoot(meta *mapping.Entity, entity any, src IDValueSource) *InsertRoot {
	return &InsertRoot{entity: entity, meta: meta, src: src}
}

// Entity returns the root instance.
func (a *InsertRoot) Entity() any { return a.entity }

// SetEntity replaces the root instance.
func (a *InsertRoot) SetEntity(e any) { a.entity = e }

// EntityType returns the root entity metadata.
func (a *InsertRoot) EntityType() *mapping.Entity { return a.meta }

// IDValueSource returns the identifier value source.
func (a *InsertRoot) IDValueSource() IDValueSource { return a.src }

// GeneratedID returns the identifier produced by the insert, if any.
func (a *InsertRoot) GeneratedID() any { return a.generated }

// SetGeneratedID records the identifier produced by the insert.
func (a *InsertRoot) SetGeneratedID(id any) { a.generated = id }

func (a *InsertRoot) String() string {
	return fmt.Sprintf("InsertRoot{entity=%s, idValueSource=%s}", a.meta.Name(), a.src)
}

func (a *InsertRoot) accept(ctx context.Context, i Interpreter) error { return i.InsertRoot(ctx, a) }

// UpdateRoot updates the aggregate root.
type UpdateRoot struct {
	entity  any
	meta    *mapping.Entity
	version any
}

// NewUpdateRoot returns a new UpdateRoot. previousVersion is the version the
// row is expected to have, or nil for unversioned entities.
func NewUpdateRoot(meta *mapping.Entity, entity, previousVersion any) *UpdateRoot {
	return &UpdateRoot{entity: entity, meta: meta, version: previousVersion}
}

// Entity returns the root instance.
func (a *UpdateRoot) Entity() any { return a.entity }

// SetEntity replaces the root instance.
func (a *UpdateRoot) SetEntity(e any) { a.entity = e }

// EntityType returns the root entity metadata.
func (a *UpdateRoot) EntityType() *mapping.Entity { return a.meta }

// PreviousVersion returns the expected version of the row, or nil.
func (a *UpdateRoot) PreviousVersion() any { return a.version }

func (a *UpdateRoot) String() string {
	return fmt.Sprintf("UpdateRoot{entity=%s, previousVersion=%v}", a.meta.Name(), a.version)
}

func (a *UpdateRoot) accept(ctx context.Context, i Interpreter) error { return i.UpdateRoot(ctx, a) }

// dependent holds the state shared by writes of non-root entities.
type dependent struct {
	entity      any
	path        *aggpath.Path
	dependingOn WithEntity
	qualifiers  []Qualifier
}

// Entity returns the instance to write.
func (d *dependent) Entity() any { return d.entity }

// PropertyPath returns the path of the written entity.
func (d *dependent) PropertyPath() *aggpath.Path { return d.path }

// DependingOn returns the action writing the parent row.
func (d *dependent) DependingOn() WithEntity { return d.dependingOn }

// Qualifiers returns all qualifiers, including those of id-less ancestors.
func (d *dependent) Qualifiers() []Qualifier { return d.qualifiers }

// Qualifier returns the qualifier of the action's own path. It reports false
// when the path is not qualified and fails if more than one qualifier is
// recorded for the path.
func (d *dependent) Qualifier() (Qualifier, bool, error) {
	var (
		found Qualifier
		n     int
	)
	for _, q := range d.qualifiers {
		if q.Path == d.path {
			found = q
			n++
		}
	}
	switch n {
	case 0:
		return Qualifier{}, false, nil
	case 1:
		return found, true, nil
	default:
		return Qualifier{}, false, relagg.Invariantf("Qualifier", d.path.String(), "can't handle more than one qualifier, got %d", n)
	}
}

func (d *dependent) describe(kind string, extra ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s{path=%s", kind, d.path)
	for _, e := range extra {
		b.WriteString(", ")
		b.WriteString(e)
	}
	if len(d.qualifiers) > 0 {
		b.WriteString(", qualifiers=[")
		for i, q := range d.qualifiers {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", q.Path.DotPath(), q.Value)
		}
		b.WriteByte(']')
	}
	b.WriteByte('}')
	return b.String()
}

// Insert inserts a non-root entity.
type Insert struct {
	dependent
	src       IDValueSource
	generated any
}

// NewInsert returns a new Insert of the entity at path, depending on the
// action writing the parent row.
func NewInsert(entity any, path *aggpath.Path, dependingOn WithEntity, qualifiers []Qualifier, src IDValueSource) *Insert {
	return &Insert{
		dependent: dependent{entity: entity, path: path, dependingOn: dependingOn, qualifiers: qualifiers},
		src:       src,
	}
}

// IDValueSource returns the identifier value source.
func (a *Insert) IDValueSource() IDValueSource { return a.src }

// GeneratedID returns the identifier produced by the insert, if any.
func (a *Insert) GeneratedID() any { return a.generated }

// SetGeneratedID records the identifier produced by the insert.
func (a *Insert) SetGeneratedID(id any) { a.generated = id }

func (a *Insert) String() string {
	return a.describe("Insert", "idValueSource="+a.src.String())
}

func (a *Insert) accept(ctx context.Context, i Interpreter) error { return i.Insert(ctx, a) }

// Merge inserts or updates a non-root entity.
type Merge struct {
	dependent
}

// NewMerge returns a new Merge of the entity at path.
func NewMerge(entity any, path *aggpath.Path, dependingOn WithEntity, qualifiers []Qualifier) *Merge {
	return &Merge{dependent: dependent{entity: entity, path: path, dependingOn: dependingOn, qualifiers: qualifiers}}
}

func (a *Merge) String() string { return a.describe("Merge") }

func (a *Merge) accept(ctx context.Context, i Interpreter) error { return i.Merge(ctx, a) }

// Delete deletes the entities at a path belonging to one aggregate root.
type Delete struct {
	rootID any
	path   *aggpath.Path
}

// NewDelete returns a new Delete of all entities at path owned by the root
// with the given identifier.
func NewDelete(rootID any, path *aggpath.Path) *Delete {
	return &Delete{rootID: rootID, path: path}
}

// RootID returns the identifier of the owning root.
func (a *Delete) RootID() any { return a.rootID }

// PropertyPath returns the path of the deleted entities.
func (a *Delete) PropertyPath() *aggpath.Path { return a.path }

func (a *Delete) String() string {
	return fmt.Sprintf("Delete{path=%s, rootID=%v}", a.path, a.rootID)
}

func (a *Delete) accept(ctx context.Context, i Interpreter) error { return i.Delete(ctx, a) }

// DeleteAll deletes the entities at a path for all roots of the type.
type DeleteAll struct {
	path *aggpath.Path
}

// NewDeleteAll returns a new DeleteAll.
func NewDeleteAll(path *aggpath.Path) *DeleteAll { return &DeleteAll{path: path} }

// PropertyPath returns the path of the deleted entities.
func (a *DeleteAll) PropertyPath() *aggpath.Path { return a.path }

func (a *DeleteAll) String() string { return fmt.Sprintf("DeleteAll{path=%s}", a.path) }

func (a *DeleteAll) accept(ctx context.Context, i Interpreter) error { return i.DeleteAll(ctx, a) }

// DeleteRoot deletes an aggregate root by identifier.
type DeleteRoot struct {
	id      any
	meta    *mapping.Entity
	version any
}

// NewDeleteRoot returns a new DeleteRoot. previousVersion is checked when
// not nil.
func NewDeleteRoot(id any, meta *mapping.Entity, previousVersion any) *DeleteRoot {
	return &DeleteRoot{id: id, meta: meta, version: previousVersion}
}

// ID returns the identifier of the root.
func (a *DeleteRoot) ID() any { return a.id }

// EntityType returns the root entity metadata.
func (a *DeleteRoot) EntityType() *mapping.Entity { return a.meta }

// PreviousVersion returns the expected version of the row, or nil.
func (a *DeleteRoot) PreviousVersion() any { return a.version }

func (a *DeleteRoot) String() string {
	return fmt.Sprintf("DeleteRoot{entity=%s, id=%v, previousVersion=%v}", a.meta.Name(), a.id, a.version)
}

func (a *DeleteRoot) accept(ctx context.Context, i Interpreter) error { return i.DeleteRoot(ctx, a) }

// DeleteAllRoot deletes all roots of a type.
type DeleteAllRoot struct {
	meta *mapping.Entity
}

// NewDeleteAllRoot returns a new DeleteAllRoot.
func NewDeleteAllRoot(meta *mapping.Entity) *DeleteAllRoot { return &DeleteAllRoot{meta: meta} }

// EntityType returns the root entity metadata.
func (a *DeleteAllRoot) EntityType() *mapping.Entity { return a.meta }

func (a *DeleteAllRoot) String() string { return fmt.Sprintf("DeleteAllRoot{entity=%s}", a.meta.Name()) }

func (a *DeleteAllRoot) accept(ctx context.Context, i Interpreter) error { return i.DeleteAllRoot(ctx, a) }

// AcquireLockRoot locks the row of one aggregate root before its children
// are deleted.
type AcquireLockRoot struct {
	id   any
	meta *mapping.Entity
}

// NewAcquireLockRoot returns a new AcquireLockRoot.
func NewAcquireLockRoot(id any, meta *mapping.Entity) *AcquireLockRoot {
	return &AcquireLockRoot{id: id, meta: meta}
}

// ID returns the identifier of the root.
func (a *AcquireLockRoot) ID() any { return a.id }

// EntityType returns the root entity metadata.
func (a *AcquireLockRoot) EntityType() *mapping.Entity { return a.meta }

func (a *AcquireLockRoot) String() string {
	return fmt.Sprintf("AcquireLockRoot{entity=%s, id=%v}", a.meta.Name(), a.id)
}

func (a *AcquireLockRoot) accept(ctx context.Context, i Interpreter) error {
	return i.AcquireLockRoot(ctx, a)
}

// AcquireLockAllRoot locks all rows of a root type.
type AcquireLockAllRoot struct {
	meta *mapping.Entity
}

// NewAcquireLockAllRoot returns a new AcquireLockAllRoot.
func NewAcquireLockAllRoot(meta *mapping.Entity) *AcquireLockAllRoot {
	return &AcquireLockAllRoot{meta: meta}
}

// EntityType returns the root entity metadata.
func (a *AcquireLockAllRoot) EntityType() *mapping.Entity { return a.meta }

func (a *AcquireLockAllRoot) String() string {
	return fmt.Sprintf("AcquireLockAllRoot{entity=%s}", a.meta.Name())
}

func (a *AcquireLockAllRoot) accept(ctx context.Context, i Interpreter) error {
	return i.AcquireLockAllRoot(ctx, a)
}

var (
	_ WithRoot         = (*InsertRoot)(nil)
	_ WithGeneratedID  = (*InsertRoot)(nil)
	_ WithRoot         = (*UpdateRoot)(nil)
	_ WithDependingOn  = (*Insert)(nil)
	_ WithGeneratedID  = (*Insert)(nil)
	_ WithDependingOn  = (*Merge)(nil)
	_ WithPropertyPath = (*Delete)(nil)
	_ WithPropertyPath = (*DeleteAll)(nil)
)
