// Package sql provides the SQL statement builders used to render planned
// aggregate actions and the single-query aggregate loader, plus a
// database/sql backed dialect.Driver.
//
// # Builder Types
//
//   - Selector: SELECT with sub-queries, LEFT JOINs, window functions and FOR UPDATE
//   - InsertBuilder: INSERT with RETURNING support
//   - UpdateBuilder: UPDATE with SET and WHERE clauses
//   - DeleteBuilder: DELETE with WHERE predicates
//
// # Dialect Support
//
// Identifier quoting and placeholders follow the configured dialect:
//
//	sql.Dialect(dialect.Postgres).
//	    Select("id", "name").
//	    From(sql.Table("users")).
//	    Where(sql.EQ("status", "active"))
//	// SELECT "id", "name" FROM "users" WHERE "status" = $1
//
// # Window Functions
//
// Row numbering per parent row, as used by the aggregate loader:
//
//	t := sql.Table("line").As("l")
//	sql.Select().AppendSelectAs(
//	    sql.RowNumber().PartitionBy(t.C("order")).OrderBy(t.C("order")), "rn",
//	)
package sql
