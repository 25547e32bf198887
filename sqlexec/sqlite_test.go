package sqlexec

import (
	"context"
	stdsql "database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/change"
	"github.com/syssam/relagg/dialect"
	"github.com/syssam/relagg/dialect/sql"
	"github.com/syssam/relagg/mapping"
)

type sqliteFixture struct {
	db       *stdsql.DB
	drv      *sql.Driver
	interp   *Interpreter
	planner  *change.Planner
	executor *change.Executor
}

func newSQLite(t *testing.T) *sqliteFixture {
	t.Helper()
	db, err := stdsql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		`CREATE TABLE "order" (id INTEGER PRIMARY KEY AUTOINCREMENT, version INTEGER NOT NULL, name TEXT)`,
		`CREATE TABLE line ("order" INTEGER NOT NULL, order_key INTEGER NOT NULL, sku TEXT)`,
		`CREATE TABLE item (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT UNIQUE, "order" INTEGER NOT NULL, order_key INTEGER, line_key INTEGER)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	ctx, err := mapping.NewContext()
	require.NoError(t, err)
	paths := aggpath.NewFactory(ctx)
	drv := sql.OpenDB(dialect.SQLite, db)
	interp := NewDriver(drv, paths)
	return &sqliteFixture{
		db:       db,
		drv:      drv,
		interp:   interp,
		planner:  change.NewPlanner(paths),
		executor: change.NewExecutor(ctx, interp),
	}
}

func (f *sqliteFixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}

func (f *sqliteFixture) save(t *testing.T, order *Order) {
	t.Helper()
	plan, err := f.planner.Save(order)
	require.NoError(t, err)
	_, err = f.executor.Execute(context.Background(), plan)
	require.NoError(t, err)
}

func TestSQLiteRoundTrip(t *testing.T) {
	f := newSQLite(t)
	order := &Order{
		Name: "a",
		Lines: []*Line{
			{Sku: "s0", Items: []*Item{{Name: "i0"}, {Name: "i1"}}},
			{Sku: "s1", Items: []*Item{{Name: "i2"}}},
		},
	}
	f.save(t, order)
	assert.EqualValues(t, 1, order.ID)
	assert.EqualValues(t, 1, order.Version)
	assert.EqualValues(t, 1, order.Lines[0].Items[0].ID)
	assert.EqualValues(t, 2, order.Lines[0].Items[1].ID)
	assert.EqualValues(t, 3, order.Lines[1].Items[0].ID)
	assert.Equal(t, 2, f.count(t, "line"))
	assert.Equal(t, 3, f.count(t, "item"))

	var lineKey int
	require.NoError(t, f.db.QueryRow(`SELECT order_key FROM item WHERE name = 'i2'`).Scan(&lineKey))
	assert.Equal(t, 1, lineKey)

	order.Name = "b"
	order.Lines = order.Lines[:1]
	order.Lines[0].Items = order.Lines[0].Items[1:]
	f.save(t, order)
	assert.EqualValues(t, 2, order.Version)
	assert.Equal(t, 1, f.count(t, "line"))
	assert.Equal(t, 1, f.count(t, "item"))
	var name string
	require.NoError(t, f.db.QueryRow(`SELECT name FROM "order" WHERE id = 1`).Scan(&name))
	assert.Equal(t, "b", name)

	plan, err := f.planner.Delete(order)
	require.NoError(t, err)
	_, err = f.executor.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Zero(t, f.count(t, "order"))
	assert.Zero(t, f.count(t, "line"))
	assert.Zero(t, f.count(t, "item"))
}

func TestSQLiteStaleVersion(t *testing.T) {
	f := newSQLite(t)
	ctx := context.Background()
	order := &Order{Name: "a", Lines: []*Line{{Sku: "s0"}}}
	f.save(t, order)
	f.save(t, order)
	require.EqualValues(t, 2, order.Version)

	stale := &Order{ID: order.ID, Version: 1, Name: "stale"}
	plan, err := f.planner.Save(stale)
	require.NoError(t, err)
	tx, err := f.drv.Tx(ctx)
	require.NoError(t, err)
	_, err = change.NewExecutor(f.planner.Factory().Context(), f.interp.Tx(tx)).Execute(ctx, plan)
	require.ErrorIs(t, err, relagg.ErrOptimisticLock)
	require.NoError(t, tx.Rollback())
	assert.Equal(t, 1, f.count(t, "line"))
}

func TestSQLiteBatching(t *testing.T) {
	f := newSQLite(t)
	ctx := context.Background()
	orders := []any{
		&Order{Name: "a", Lines: []*Line{{Sku: "a0", Items: []*Item{{Name: "x"}}}}},
		&Order{Name: "b", Lines: []*Line{{Sku: "b0"}, {Sku: "b1", Items: []*Item{{Name: "y"}}}}},
	}
	c := change.NewSaveBatching()
	require.NoError(t, change.SaveAll(ctx, f.planner, c, orders, 2))
	roots, err := f.executor.Execute(ctx, c)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	a, b := orders[0].(*Order), orders[1].(*Order)
	assert.EqualValues(t, 1, a.ID)
	assert.EqualValues(t, 2, b.ID)
	assert.NotZero(t, a.Lines[0].Items[0].ID)
	assert.NotZero(t, b.Lines[1].Items[0].ID)
	assert.Equal(t, 3, f.count(t, "line"))

	var owner int
	require.NoError(t, f.db.QueryRow(`SELECT "order" FROM item WHERE name = 'y'`).Scan(&owner))
	assert.Equal(t, 2, owner)

	t.Run("Constraint", func(t *testing.T) {
		dup := &Order{Name: "c", Lines: []*Line{{Items: []*Item{{Name: "x"}}}}}
		plan, err := f.planner.Save(dup)
		require.NoError(t, err)
		_, err = f.executor.Execute(ctx, plan)
		require.Error(t, err)
		assert.True(t, relagg.IsConstraintError(err))
	})
}
