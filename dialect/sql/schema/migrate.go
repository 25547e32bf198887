package schema

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
	"github.com/lib/pq"

	"github.com/syssam/relagg"
	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/dialect"
)

// Migrate creates the tables of aggregate roots.
type Migrate struct {
	drv   dialect.Driver
	paths *aggpath.Factory
	plan  migrate.PlanApplier
	fks   bool
	log   *slog.Logger
}

// MigrateOption allows configuring Migrate using functional arguments.
type MigrateOption func(*Migrate)

// WithForeignKeys enables or disables the foreign keys from reverse
// columns to the referenced identifiers. Enabled by default.
func WithForeignKeys(b bool) MigrateOption {
	return func(m *Migrate) {
		m.fks = b
	}
}

// WithLogger sets the logger of the migration.
func WithLogger(l *slog.Logger) MigrateOption {
	return func(m *Migrate) {
		m.log = l
	}
}

// NewMigrate returns a Migrate creating tables through the given driver.
func NewMigrate(drv dialect.Driver, paths *aggpath.Factory, opts ...MigrateOption) (*Migrate, error) {
	m := &Migrate{drv: drv, paths: paths, fks: true, log: slog.Default()}
	switch drv.Dialect() {
	case dialect.MySQL:
		m.plan = mysql.DefaultPlan
	case dialect.SQLite:
		m.plan = sqlite.DefaultPlan
	case dialect.Postgres:
		m.plan = postgres.DefaultPlan
	default:
		return nil, relagg.NewUnsupportedError(drv.Dialect(), "schema migration is not supported by this dialect")
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Plan returns the statements creating the tables of the given aggregate
// root types, in execution order.
func (m *Migrate) Plan(ctx context.Context, types ...reflect.Type) ([]string, error) {
	b := newBuilder(m.drv.Dialect(), m.paths, m.fks)
	if err := b.build(types); err != nil {
		return nil, err
	}
	var stmts []string
	if m.drv.Dialect() == dialect.Postgres {
		for _, seq := range b.sequences {
			stmts = append(stmts, "CREATE SEQUENCE IF NOT EXISTS "+quoteQualified(seq))
		}
	}
	changes := make([]schema.Change, len(b.tables))
	for i, t := range b.tables {
		changes[i] = &schema.AddTable{T: t}
	}
	plan, err := m.plan.PlanChanges(ctx, "relagg", changes)
	if err != nil {
		return nil, fmt.Errorf("schema: plan changes: %w", err)
	}
	for _, c := range plan.Changes {
		stmts = append(stmts, c.Cmd)
	}
	m.log.Debug("schema: planned statements", "tables", len(b.tables), "statements", len(stmts), "dialect", m.drv.Dialect())
	return stmts, nil
}

// Create creates the tables of the given aggregate root types in a single
// transaction, where the dialect supports transactional DDL.
func (m *Migrate) Create(ctx context.Context, types ...reflect.Type) (err error) {
	stmts, err := m.Plan(ctx, types...)
	if err != nil {
		return err
	}
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				err = fmt.Errorf("%w: %v", err, rerr)
			}
		}
	}()
	for _, stmt := range stmts {
		m.log.Debug("schema: exec", "statement", stmt)
		if err := tx.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("schema: create: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("schema: commit: %w", err)
	}
	m.log.Info("schema: tables created", "statements", len(stmts))
	return nil
}

// quoteQualified quotes every part of a dotted name.
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
