package dbaction

import (
	"context"
	"fmt"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/mapping"
)

// batchValue returns the value shared by all actions of a batch. It fails
// on an empty batch or when two actions disagree.
func batchValue[A Action, V comparable](op string, actions []A, value func(A) V) (V, error) {
	var zero V
	if len(actions) == 0 {
		return zero, relagg.NewInvariantError(op, "", "batch must contain at least one action")
	}
	v := value(actions[0])
	for _, a := range actions[1:] {
		if w := value(a); w != v {
			return zero, relagg.Invariantf(op, a.String(), "batch value %v does not match %v", w, v)
		}
	}
	return v, nil
}

func asActions[A Action](actions []A) []Action {
	all := make([]Action, len(actions))
	for i, a := range actions {
		all[i] = a
	}
	return all
}

func describeBatch[A Action](kind string, value any, actions []A) string {
	return fmt.Sprintf("%s{value=%v, actions=%d}", kind, value, len(actions))
}

// BatchInsert groups inserts sharing a path and an identifier value source.
type BatchInsert struct {
	inserts []*Insert
	path    *aggpath.Path
	src     IDValueSource
}

// NewBatchInsert returns a batch of the given inserts. All inserts must
// share the same path and identifier value source.
func NewBatchInsert(inserts []*Insert) (*BatchInsert, error) {
	path, err := batchValue("NewBatchInsert", inserts, (*Insert).PropertyPath)
	if err != nil {
		return nil, err
	}
	src, err := batchValue("NewBatchInsert", inserts, (*Insert).IDValueSource)
	if err != nil {
		return nil, err
	}
	return &BatchInsert{inserts: inserts, path: path, src: src}, nil
}

// Inserts returns the batched inserts.
func (b *BatchInsert) Inserts() []*Insert { return b.inserts }

// Actions returns the batched inserts.
func (b *BatchInsert) Actions() []Action { return asActions(b.inserts) }

// PropertyPath returns the shared path.
func (b *BatchInsert) PropertyPath() *aggpath.Path { return b.path }

// IDValueSource returns the shared identifier value source.
func (b *BatchInsert) IDValueSource() IDValueSource { return b.src }

func (b *BatchInsert) String() string {
	return describeBatch("BatchInsert", b.path.String()+"/"+b.src.String(), b.inserts)
}

func (b *BatchInsert) accept(ctx context.Context, i Interpreter) error { return i.BatchInsert(ctx, b) }

// BatchInsertRoot groups root inserts sharing an identifier value source.
type BatchInsertRoot struct {
	inserts []*InsertRoot
	src     IDValueSource
}

// NewBatchInsertRoot returns a batch of the given root inserts. All
// inserts must share the same identifier value source.
func NewBatchInsertRoot(inserts []*InsertRoot) (*BatchInsertRoot, error) {
	src, err := batchValue("NewBatchInsertRoot", inserts, (*InsertRoot).IDValueSource)
	if err != nil {
		return nil, err
	}
	return &BatchInsertRoot{inserts: inserts, src: src}, nil
}

// Inserts returns the batched root inserts.
func (b *BatchInsertRoot) Inserts() []*InsertRoot { return b.inserts }

// Actions returns the batched root inserts.
func (b *BatchInsertRoot) Actions() []Action { return asActions(b.inserts) }

// IDValueSource returns the shared identifier value source.
func (b *BatchInsertRoot) IDValueSource() IDValueSource { return b.src }

func (b *BatchInsertRoot) String() string { return describeBatch("BatchInsertRoot", b.src, b.inserts) }

func (b *BatchInsertRoot) accept(ctx context.Context, i Interpreter) error {
	return i.BatchInsertRoot(ctx, b)
}

// BatchDelete groups deletes sharing a path.
type BatchDelete struct {
	deletes []*Delete
	path    *aggpath.Path
}

// NewBatchDelete returns a batch of the given deletes. All deletes must
// share the same path.
func NewBatchDelete(deletes []*Delete) (*BatchDelete, error) {
	path, err := batchValue("NewBatchDelete", deletes, (*Delete).PropertyPath)
	if err != nil {
		return nil, err
	}
	return &BatchDelete{deletes: deletes, path: path}, nil
}

// Deletes returns the batched deletes.
func (b *BatchDelete) Deletes() []*Delete { return b.deletes }

// Actions returns the batched deletes.
func (b *BatchDelete) Actions() []Action { return asActions(b.deletes) }

// PropertyPath returns the shared path.
func (b *BatchDelete) PropertyPath() *aggpath.Path { return b.path }

// RootIDs returns the root identifiers of all batched deletes.
func (b *BatchDelete) RootIDs() []any {
	ids := make([]any, len(b.deletes))
	for i, d := range b.deletes {
		ids[i] = d.RootID()
	}
	return ids
}

func (b *BatchDelete) String() string { return describeBatch("BatchDelete", b.path, b.deletes) }

func (b *BatchDelete) accept(ctx context.Context, i Interpreter) error { return i.BatchDelete(ctx, b) }

// BatchDeleteRoot groups unversioned root deletes of one entity type.
type BatchDeleteRoot struct {
	deletes []*DeleteRoot
	meta    *mapping.Entity
}

// NewBatchDeleteRoot returns a batch of the given root deletes. All
// deletes must target the same entity type and carry no version.
func NewBatchDeleteRoot(deletes []*DeleteRoot) (*BatchDeleteRoot, error) {
	meta, err := batchValue("NewBatchDeleteRoot", deletes, (*DeleteRoot).EntityType)
	if err != nil {
		return nil, err
	}
	for _, d := range deletes {
		if d.PreviousVersion() != nil {
			return nil, relagg.NewInvariantError("NewBatchDeleteRoot", d.String(), "versioned root deletes can't be batched")
		}
	}
	return &BatchDeleteRoot{deletes: deletes, meta: meta}, nil
}

// Deletes returns the batched root deletes.
func (b *BatchDeleteRoot) Deletes() []*DeleteRoot { return b.deletes }

// Actions returns the batched root deletes.
func (b *BatchDeleteRoot) Actions() []Action { return asActions(b.deletes) }

// EntityType returns the shared root entity metadata.
func (b *BatchDeleteRoot) EntityType() *mapping.Entity { return b.meta }

// IDs returns the identifiers of all batched roots.
func (b *BatchDeleteRoot) IDs() []any {
	ids := make([]any, len(b.deletes))
	for i, d := range b.deletes {
		ids[i] = d.ID()
	}
	return ids
}

func (b *BatchDeleteRoot) String() string {
	return describeBatch("BatchDeleteRoot", b.meta.Name(), b.deletes)
}

func (b *BatchDeleteRoot) accept(ctx context.Context, i Interpreter) error {
	return i.BatchDeleteRoot(ctx, b)
}

// Flatten expands batches into their members, preserving order.
func Flatten(actions []Action) []Action {
	flat := make([]Action, 0, len(actions))
	for _, a := range actions {
		if b, ok := a.(Batch); ok {
			flat = append(flat, b.Actions()...)
			continue
		}
		flat = append(flat, a)
	}
	return flat
}

var (
	_ Batch = (*BatchInsert)(nil)
	_ Batch = (*BatchInsertRoot)(nil)
	_ Batch = (*BatchDelete)(nil)
	_ Batch = (*BatchDeleteRoot)(nil)
)
