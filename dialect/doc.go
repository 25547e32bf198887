// Package dialect defines the database dialect names and the driver
// interfaces that executors use to run the actions of an aggregate change.
//
// # Supported Dialects
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// The planner itself never talks to a Driver. The sqlexec package renders
// each planned action to SQL and runs it through one:
//
//	db, err := stdsql.Open("postgres", "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	drv := sql.OpenDB(dialect.Postgres, db)
//	defer drv.Close()
//	interp := sqlexec.NewDriver(drv, aggpath.NewFactory(mappingContext))
//
// # Sub-packages
//
//   - dialect/sql: SQL statement builders and the database/sql driver adapter
package dialect
