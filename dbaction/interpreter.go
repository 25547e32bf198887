package dbaction

import "context"

// Interpreter executes actions. It has one method per action kind.
type Interpreter interface {
	InsertRoot(context.Context, *InsertRoot) error
	UpdateRoot(context.Context, *UpdateRoot) error
	Insert(context.Context, *Insert) error
	Merge(context.Context, *Merge) error
	Delete(context.Context, *Delete) error
	DeleteAll(context.Context, *DeleteAll) error
	DeleteRoot(context.Context, *DeleteRoot) error
	DeleteAllRoot(context.Context, *DeleteAllRoot) error
	AcquireLockRoot(context.Context, *AcquireLockRoot) error
	AcquireLockAllRoot(context.Context, *AcquireLockAllRoot) error
	BatchInsert(context.Context, *BatchInsert) error
	BatchInsertRoot(context.Context, *BatchInsertRoot) error
	BatchDelete(context.Context, *BatchDelete) error
	BatchDeleteRoot(context.Context, *BatchDeleteRoot) error
}

// Dispatch hands the action to the matching method of the interpreter.
func Dispatch(ctx context.Context, i Interpreter, a Action) error {
	return a.accept(ctx, i)
}

// InterpreterFunc adapts a function to an Interpreter. Every action kind is
// passed to the function.
type InterpreterFunc func(context.Context, Action) error

func (f InterpreterFunc) InsertRoot(ctx context.Context, a *InsertRoot) error { return f(ctx, a) }
func (f InterpreterFunc) UpdateRoot(ctx context.Context, a *UpdateRoot) error { return f(ctx, a) }
func (f InterpreterFunc) Insert(ctx context.Context, a *Insert) error         { return f(ctx, a) }
func (f InterpreterFunc) Merge(ctx context.Context, a *Merge) error           { return f(ctx, a) }
func (f InterpreterFunc) Delete(ctx context.Context, a *Delete) error         { return f(ctx, a) }
func (f InterpreterFunc) DeleteAll(ctx context.Context, a *DeleteAll) error   { return f(ctx, a) }
func (f InterpreterFunc) DeleteRoot(ctx context.Context, a *DeleteRoot) error { return f(ctx, a) }
func (f InterpreterFunc) DeleteAllRoot(ctx context.Context, a *DeleteAllRoot) error {
	return f(ctx, a)
}
func (f InterpreterFunc) AcquireLockRoot(ctx context.Context, a *AcquireLockRoot) error {
	return f(ctx, a)
}
func (f InterpreterFunc) AcquireLockAllRoot(ctx context.Context, a *AcquireLockAllRoot) error {
	return f(ctx, a)
}
func (f InterpreterFunc) BatchInsert(ctx context.Context, a *BatchInsert) error { return f(ctx, a) }
func (f InterpreterFunc) BatchInsertRoot(ctx context.Context, a *BatchInsertRoot) error {
	return f(ctx, a)
}
func (f InterpreterFunc) BatchDelete(ctx context.Context, a *BatchDelete) error { return f(ctx, a) }
func (f InterpreterFunc) BatchDeleteRoot(ctx context.Context, a *BatchDeleteRoot) error {
	return f(ctx, a)
}

var _ Interpreter = InterpreterFunc(nil)
