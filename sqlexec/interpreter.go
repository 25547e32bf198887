// Package sqlexec executes the actions of aggregate changes as SQL
// statements over a dialect.ExecQuerier.
package sqlexec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/dbaction"
	"github.com/syssam/relagg/dialect"
	"github.com/syssam/relagg/dialect/sql"
	"github.com/syssam/relagg/mapping"
)

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger of the interpreter.
func WithLogger(l *slog.Logger) Option {
	return func(i *Interpreter) { i.log = l }
}

// Interpreter renders actions to SQL and executes them. Generated
// identifiers are recorded on the actions. Writes guarded by a version that
// match no row fail with a relagg.OptimisticLockingError and driver
// constraint violations are returned as relagg.ConstraintError.
type Interpreter struct {
	eq      dialect.ExecQuerier
	dialect string
	paths   *aggpath.Factory
	log     *slog.Logger
	columns *sync.Map // *aggpath.Path => []column
}

// New returns an interpreter executing statements of the given dialect
// over eq.
func New(d string, eq dialect.ExecQuerier, paths *aggpath.Factory, opts ...Option) *Interpreter {
	i := &Interpreter{
		eq:      eq,
		dialect: d,
		paths:   paths,
		log:     slog.Default(),
		columns: &sync.Map{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// NewDriver returns an interpreter executing statements over drv.
func NewDriver(drv dialect.Driver, paths *aggpath.Factory, opts ...Option) *Interpreter {
	return New(drv.Dialect(), drv, paths, opts...)
}

// Tx returns a copy of the interpreter executing statements in tx.
func (i *Interpreter) Tx(tx dialect.Tx) *Interpreter {
	cp := *i
	cp.eq = tx
	return &cp
}

func (i *Interpreter) builder() *sql.DialectBuilder { return sql.Dialect(i.dialect) }

func (i *Interpreter) exec(ctx context.Context, q sql.Querier) (sql.Result, error) {
	query, args := q.Query()
	i.log.Debug("sqlexec: exec", "query", query, "args", len(args))
	var res sql.Result
	if err := i.eq.Exec(ctx, query, args, &res); err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// query runs q and returns the first column of its first row, or nil when
// there is none.
func (i *Interpreter) query(ctx context.Context, q sql.Querier) (any, error) {
	query, args := q.Query()
	i.log.Debug("sqlexec: query", "query", query, "args", len(args))
	var rows sql.Rows
	if err := i.eq.Query(ctx, query, args, &rows); err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var v any
	if rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		dest := make([]any, len(cols))
		dest[0] = &v
		for j := 1; j < len(dest); j++ {
			dest[j] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
	}
	return v, rows.Err()
}

// InsertRoot implements dbaction.Interpreter.
func (i *Interpreter) InsertRoot(ctx context.Context, a *dbaction.InsertRoot) error {
	id, err := i.insert(ctx, i.paths.RootOf(a.EntityType()), a.Entity(), a.IDValueSource(), nil)
	if err != nil {
		return err
	}
	if id != nil {
		a.SetGeneratedID(id)
	}
	return nil
}

// Insert implements dbaction.Interpreter.
func (i *Interpreter) Insert(ctx context.Context, a *dbaction.Insert) error {
	extra, err := dependentColumns(a.PropertyPath(), a.DependingOn(), a.Qualifiers())
	if err != nil {
		return err
	}
	id, err := i.insert(ctx, a.PropertyPath(), a.Entity(), a.IDValueSource(), extra)
	if err != nil {
		return err
	}
	if id != nil {
		a.SetGeneratedID(id)
	}
	return nil
}

// BatchInsertRoot implements dbaction.Interpreter. Roots with provided
// identifiers are written with a single statement.
func (i *Interpreter) BatchInsertRoot(ctx context.Context, b *dbaction.BatchInsertRoot) error {
	inserts := b.Inserts()
	if generates(b.IDValueSource()) {
		for _, a := range inserts {
			if err := i.InsertRoot(ctx, a); err != nil {
				return err
			}
		}
		return nil
	}
	p := i.paths.RootOf(inserts[0].EntityType())
	rows := make([][]assignment, len(inserts))
	for j, a := range inserts {
		row, _, err := i.row(ctx, p, a.Entity(), b.IDValueSource(), nil)
		if err != nil {
			return err
		}
		rows[j] = row
	}
	return i.insertRows(ctx, p, rows)
}

// BatchInsert implements dbaction.Interpreter. Entities with provided or
// no identifiers are written with a single statement.
func (i *Interpreter) BatchInsert(ctx context.Context, b *dbaction.BatchInsert) error {
	inserts := b.Inserts()
	if generates(b.IDValueSource()) {
		for _, a := range inserts {
			if err := i.Insert(ctx, a); err != nil {
				return err
			}
		}
		return nil
	}
	rows := make([][]assignment, len(inserts))
	for j, a := range inserts {
		extra, err := dependentColumns(a.PropertyPath(), a.DependingOn(), a.Qualifiers())
		if err != nil {
			return err
		}
		row, _, err := i.row(ctx, b.PropertyPath(), a.Entity(), b.IDValueSource(), extra)
		if err != nil {
			return err
		}
		rows[j] = row
	}
	return i.insertRows(ctx, b.PropertyPath(), rows)
}

// Merge implements dbaction.Interpreter. The row is updated when the entity
// has an identifier matching a stored row and inserted otherwise.
func (i *Interpreter) Merge(ctx context.Context, a *dbaction.Merge) error {
	p := a.PropertyPath()
	extra, err := dependentColumns(p, a.DependingOn(), a.Qualifiers())
	if err != nil {
		return err
	}
	e := p.LeafEntity()
	src := dbaction.IDValueSourceFor(e, a.Entity())
	if src == dbaction.IDValueSourceProvided {
		n, err := i.update(ctx, p, a.Entity(), e.ID(a.Entity()), nil, extra)
		if err != nil || n > 0 {
			return err
		}
	}
	_, err = i.insert(ctx, p, a.Entity(), src, extra)
	return err
}

// UpdateRoot implements dbaction.Interpreter.
func (i *Interpreter) UpdateRoot(ctx context.Context, a *dbaction.UpdateRoot) error {
	meta := a.EntityType()
	p := i.paths.RootOf(meta)
	id := meta.ID(a.Entity())
	var version *assignment
	if vp := meta.VersionProperty(); vp != nil && a.PreviousVersion() != nil {
		version = &assignment{column: vp.ColumnName(), value: a.PreviousVersion()}
	}
	n, err := i.update(ctx, p, a.Entity(), id, version, nil)
	switch {
	case err != nil:
		return err
	case n > 0:
		return nil
	case version != nil:
		return relagg.NewOptimisticLockingError(meta.Name(), meta.QualifiedTableName(), id, version.value)
	default:
		return fmt.Errorf("%w: %s with id %v", ErrNotFound, meta.Name(), id)
	}
}

// DeleteRoot implements dbaction.Interpreter.
func (i *Interpreter) DeleteRoot(ctx context.Context, a *dbaction.DeleteRoot) error {
	meta := a.EntityType()
	p := i.paths.RootOf(meta)
	pred, err := idPredicate(p, a.ID())
	if err != nil {
		return err
	}
	vp := meta.VersionProperty()
	if vp != nil && a.PreviousVersion() != nil {
		pred = sql.And(pred, sql.EQ(vp.ColumnName(), a.PreviousVersion()))
	}
	res, err := i.exec(ctx, i.deleteFrom(p).Where(pred))
	if err != nil || vp == nil || a.PreviousVersion() == nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	return relagg.NewOptimisticLockingError(meta.Name(), meta.QualifiedTableName(), a.ID(), a.PreviousVersion())
}

// BatchDeleteRoot implements dbaction.Interpreter.
func (i *Interpreter) BatchDeleteRoot(ctx context.Context, b *dbaction.BatchDeleteRoot) error {
	p := i.paths.RootOf(b.EntityType())
	ids := b.IDs()
	preds := make([]*sql.Predicate, 0, len(ids))
	if id, err := p.TableInfo().IDColumnInfos.Unique(); err == nil {
		preds = append(preds, sql.In(id.Name, ids...))
	} else {
		for _, id := range ids {
			pred, err := idPredicate(p, id)
			if err != nil {
				return err
			}
			preds = append(preds, pred)
		}
	}
	_, err := i.exec(ctx, i.deleteFrom(p).Where(sql.Or(preds...)))
	return err
}

// DeleteAllRoot implements dbaction.Interpreter.
func (i *Interpreter) DeleteAllRoot(ctx context.Context, a *dbaction.DeleteAllRoot) error {
	_, err := i.exec(ctx, i.deleteFrom(i.paths.RootOf(a.EntityType())))
	return err
}

// Delete implements dbaction.Interpreter.
func (i *Interpreter) Delete(ctx context.Context, a *dbaction.Delete) error {
	return i.deleteOwned(ctx, a.PropertyPath(), []any{a.RootID()})
}

// BatchDelete implements dbaction.Interpreter.
func (i *Interpreter) BatchDelete(ctx context.Context, b *dbaction.BatchDelete) error {
	return i.deleteOwned(ctx, b.PropertyPath(), b.RootIDs())
}

// DeleteAll implements dbaction.Interpreter.
func (i *Interpreter) DeleteAll(ctx context.Context, a *dbaction.DeleteAll) error {
	return i.deleteOwned(ctx, a.PropertyPath(), nil)
}

// AcquireLockRoot implements dbaction.Interpreter.
func (i *Interpreter) AcquireLockRoot(ctx context.Context, a *dbaction.AcquireLockRoot) error {
	p := i.paths.RootOf(a.EntityType())
	pred, err := idPredicate(p, a.ID())
	if err != nil {
		return err
	}
	_, err = i.query(ctx, i.lock(p).Where(pred))
	return err
}

// AcquireLockAllRoot implements dbaction.Interpreter.
func (i *Interpreter) AcquireLockAllRoot(ctx context.Context, a *dbaction.AcquireLockAllRoot) error {
	_, err := i.query(ctx, i.lock(i.paths.RootOf(a.EntityType())))
	return err
}

func (i *Interpreter) lock(p *aggpath.Path) *sql.Selector {
	ti := p.TableInfo()
	return i.builder().Select(ti.IDColumnInfos.Names()...).From(tableOf(p)).ForUpdate()
}

func (i *Interpreter) deleteFrom(p *aggpath.Path) *sql.DeleteBuilder {
	ti := p.TableInfo()
	return i.builder().Delete(ti.TableName).Schema(ti.Schema)
}

// deleteOwned deletes the rows of the table of p belonging to the given
// roots, or to any root when ids is nil.
func (i *Interpreter) deleteOwned(ctx context.Context, p *aggpath.Path, ids []any) error {
	pred, err := ownedBy(p, ids)
	if err != nil {
		return err
	}
	_, err = i.exec(ctx, i.deleteFrom(p).Where(pred))
	return err
}

// insert writes a single row and returns the identifier generated for it
// or fetched from its sequence, if any.
func (i *Interpreter) insert(ctx context.Context, p *aggpath.Path, entity any, src dbaction.IDValueSource, extra []assignment) (any, error) {
	row, id, err := i.row(ctx, p, entity, src, extra)
	if err != nil {
		return nil, err
	}
	ti := p.TableInfo()
	ins := i.builder().Insert(ti.TableName).Schema(ti.Schema)
	if len(row) == 0 {
		ins.Default()
	} else {
		values := make([]any, len(row))
		for j, a := range row {
			ins.Columns(a.column)
			values[j] = a.value
		}
		ins.Values(values...)
	}
	if src != dbaction.IDValueSourceGenerated {
		_, err := i.exec(ctx, ins)
		return id, err
	}
	idCol, err := ti.IDColumnInfos.Unique()
	if err != nil {
		return nil, err
	}
	if i.dialect == dialect.Postgres {
		return i.query(ctx, ins.Returning(idCol.Name))
	}
	res, err := i.exec(ctx, ins)
	if err != nil {
		return nil, err
	}
	return res.LastInsertId()
}

func (i *Interpreter) insertRows(ctx context.Context, p *aggpath.Path, rows [][]assignment) error {
	ti := p.TableInfo()
	ins := i.builder().Insert(ti.TableName).Schema(ti.Schema)
	for _, a := range rows[0] {
		ins.Columns(a.column)
	}
	for _, row := range rows {
		values := make([]any, len(row))
		for j, a := range row {
			values[j] = a.value
		}
		ins.Values(values...)
	}
	_, err := i.exec(ctx, ins)
	return err
}

// row returns the assignments of an inserted row. Generated identifiers
// are left to the database; sequence values are fetched and returned.
func (i *Interpreter) row(ctx context.Context, p *aggpath.Path, entity any, src dbaction.IDValueSource, extra []assignment) ([]assignment, any, error) {
	cols, err := i.columnsOf(p)
	if err != nil {
		return nil, nil, err
	}
	var (
		row = make([]assignment, 0, len(cols)+len(extra))
		id  any
	)
	ctxm := i.paths.Context()
	for _, c := range cols {
		switch {
		case c.id && src == dbaction.IDValueSourceGenerated:
			continue
		case c.id && src == dbaction.IDValueSourceSequence:
			if id, err = i.nextval(ctx, p.LeafEntity()); err != nil {
				return nil, nil, err
			}
			row = append(row, assignment{column: c.name, value: id})
		default:
			row = append(row, assignment{column: c.name, value: ctxm.GetPath(entity, c.rel)})
		}
	}
	return append(row, extra...), id, nil
}

func (i *Interpreter) nextval(ctx context.Context, e *mapping.Entity) (any, error) {
	seq := e.IDProperty().Sequence()
	if i.dialect != dialect.Postgres {
		return nil, relagg.NewUnsupportedError(e.Name(), "sequence "+seq+" on "+i.dialect)
	}
	return i.query(ctx, i.builder().SelectExpr(sql.Raw("nextval(?)", seq)))
}

// update writes every non-identifier column of the entity and the extra
// assignments to the row with the given identifier, optionally guarded by
// a version, and returns the number of affected rows.
func (i *Interpreter) update(ctx context.Context, p *aggpath.Path, entity, id any, version *assignment, extra []assignment) (int64, error) {
	cols, err := i.columnsOf(p)
	if err != nil {
		return 0, err
	}
	pred, err := idPredicate(p, id)
	if err != nil {
		return 0, err
	}
	ti := p.TableInfo()
	upd := i.builder().Update(ti.TableName).Schema(ti.Schema)
	ctxm := i.paths.Context()
	for _, c := range cols {
		if !c.id {
			upd.Set(c.name, ctxm.GetPath(entity, c.rel))
		}
	}
	for _, a := range extra {
		upd.Set(a.column, a.value)
	}
	if upd.Empty() {
		return 1, nil
	}
	upd.Where(pred)
	if version != nil {
		upd.Where(sql.EQ(version.column, version.value))
	}
	res, err := i.exec(ctx, upd)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func generates(src dbaction.IDValueSource) bool {
	return src == dbaction.IDValueSourceGenerated || src == dbaction.IDValueSourceSequence
}

func tableOf(p *aggpath.Path) *sql.SelectTable {
	ti := p.TableInfo()
	return sql.Table(ti.TableName).Schema(ti.Schema)
}

// idPredicate matches the row of the entity of p with the given identifier.
func idPredicate(p *aggpath.Path, id any) (*sql.Predicate, error) {
	infos := p.TableInfo().IDColumnInfos
	if infos.IsEmpty() {
		return nil, relagg.NewMetadataError(p.String(), "", "entity has no identifier", nil)
	}
	var preds []*sql.Predicate
	for key, info := range infos.All() {
		v, err := keyValue(p.LeafEntity(), id, key)
		if err != nil {
			return nil, err
		}
		preds = append(preds, sql.EQ(info.Name, v))
	}
	return sql.And(preds...), nil
}

// ownedBy returns the predicate selecting the rows of the table of p that
// belong to the given roots, or to any root when ids is nil. Tables below
// another identified entity are reached through nested sub-selects.
func ownedBy(p *aggpath.Path, ids []any) (*sql.Predicate, error) {
	rev, err := p.TableInfo().ReverseColumnInfo()
	if err != nil {
		return nil, relagg.NewUnsupportedError(p.RootEntity().Name(), "delete below composite identifier at "+p.DotPath())
	}
	parent := p.IDDefiningParent()
	if parent.IsRoot() {
		switch len(ids) {
		case 0:
			return sql.NotNull(rev.Name), nil
		case 1:
			return sql.EQ(rev.Name, ids[0]), nil
		default:
			return sql.In(rev.Name, ids...), nil
		}
	}
	id, err := parent.TableInfo().IDColumnInfos.Unique()
	if err != nil {
		return nil, err
	}
	cond, err := ownedBy(parent, ids)
	if err != nil {
		return nil, err
	}
	return sql.InSelector(rev.Name, sql.Select(id.Name).From(tableOf(parent)).Where(cond)), nil
}

// dependentColumns returns the reverse and qualifier column assignments of
// an entity inserted below the entity of dependingOn.
func dependentColumns(p *aggpath.Path, dependingOn dbaction.WithEntity, qualifiers []dbaction.Qualifier) ([]assignment, error) {
	target := p.IDDefiningParent()
	parent, err := definingAction(p, target, dependingOn)
	if err != nil {
		return nil, err
	}
	e := target.LeafEntity()
	var id any
	if g, ok := parent.(dbaction.WithGeneratedID); ok && g.GeneratedID() != nil {
		id = g.GeneratedID()
	} else {
		id = e.ID(parent.Entity())
	}
	var out []assignment
	for key, info := range p.TableInfo().ReverseColumnInfos.All() {
		v, err := keyValue(e, id, key)
		if err != nil {
			return nil, err
		}
		out = append(out, assignment{column: info.Name, value: v})
	}
	for _, q := range qualifiers {
		info := q.Path.TableInfo().QualifierColumnInfo
		if info == nil {
			return nil, relagg.NewInvariantError("Insert", q.Path.String(), "qualifier of unqualified path")
		}
		out = append(out, assignment{column: info.Name, value: q.Value})
	}
	return out, nil
}

// definingAction walks the dependingOn chain up to the action of the
// entity at target.
func definingAction(p, target *aggpath.Path, d dbaction.WithEntity) (dbaction.WithEntity, error) {
	for d != nil {
		wp, ok := d.(dbaction.WithPropertyPath)
		switch {
		case !ok && target.IsRoot():
			return d, nil
		case !ok:
			return nil, relagg.Invariantf("Insert", p.String(), "reached %s before %s", d, target)
		case wp.PropertyPath() == target:
			return d, nil
		}
		dep, ok := d.(dbaction.WithDependingOn)
		if !ok {
			return nil, relagg.Invariantf("Insert", p.String(), "action %T has no parent", d)
		}
		d = dep.DependingOn()
	}
	return nil, relagg.NewInvariantError("Insert", p.String(), "no parent action")
}

var _ dbaction.Interpreter = (*Interpreter)(nil)
