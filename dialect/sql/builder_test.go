package sql

import (
	"strconv"
	"testing"

	"github.com/syssam/relagg/dialect"

	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	tests := []struct {
		input     Querier
		wantQuery string
		wantArgs  []any
	}{
		{
			input:     Dialect(dialect.Postgres).Select("id", "name").From(Table("users")).Where(EQ("status", "active")),
			wantQuery: `SELECT "id", "name" FROM "users" WHERE "status" = $1`,
			wantArgs:  []any{"active"},
		},
		{
			input:     Dialect(dialect.MySQL).Select("id", "name").From(Table("users")).Where(EQ("status", "active")),
			wantQuery: "SELECT `id`, `name` FROM `users` WHERE `status` = ?",
			wantArgs:  []any{"active"},
		},
		{
			input:     Dialect(dialect.Postgres).Select("*").From(Table("users").Schema("app")),
			wantQuery: `SELECT * FROM "app"."users"`,
		},
		{
			input: Dialect(dialect.SQLite).Select("o.id").
				From(Table("order").As("o")).
				LeftJoin(Select().From(Table("line")).As("l")).
				On("l.order", "o.id"),
			wantQuery: `SELECT "o"."id" FROM "order" AS "o" LEFT JOIN (SELECT * FROM "line") AS "l" ON "l"."order" = "o"."id"`,
		},
		{
			input: Dialect(dialect.Postgres).
				SelectExpr(As(RowNumber().PartitionBy("line.order").OrderBy("line.order"), "rn")).
				AppendSelectAs(CountOver().PartitionBy("line.order"), "rc").
				From(Table("line")),
			wantQuery: `SELECT ROW_NUMBER() OVER (PARTITION BY "line"."order" ORDER BY "line"."order") AS "rn", COUNT(*) OVER (PARTITION BY "line"."order") AS "rc" FROM "line"`,
		},
		{
			input:     Dialect(dialect.SQLite).SelectExpr(As(Greatest(Coalesce(C("rn_1"), Lit(1)), Coalesce(C("rn_2"), Lit(1))), "rn")),
			wantQuery: `SELECT MAX(COALESCE("rn_1", 1), COALESCE("rn_2", 1)) AS "rn"`,
		},
		{
			input:     Dialect(dialect.Postgres).SelectExpr(As(Greatest(Coalesce(C("rn_1"), Lit(1)), Coalesce(C("rn_2"), Lit(1))), "rn")),
			wantQuery: `SELECT GREATEST(COALESCE("rn_1", 1), COALESCE("rn_2", 1)) AS "rn"`,
		},
		{
			input:     Dialect(dialect.Postgres).SelectExpr(As(Greatest(Lit(1)), "rn"), As(Lit("x'y"), "s")),
			wantQuery: `SELECT 1 AS "rn", 'x''y' AS "s"`,
		},
		{
			input:     Dialect(dialect.Postgres).SelectExpr(As(CaseWhen(ColumnsEQ("rn_1", "rn"), C("c_x"), Lit(nil)), "c_x")),
			wantQuery: `SELECT CASE WHEN "rn_1" = "rn" THEN "c_x" ELSE NULL END AS "c_x"`,
		},
		{
			input: Dialect(dialect.Postgres).Select("a").From(Table("t")).
				Where(Or(ColumnsEQ("a", "b"), IsNull("a"), And(ColumnsGT("a", "c"), EQ("b", Lit(1))))),
			wantQuery: `SELECT "a" FROM "t" WHERE "a" = "b" OR "a" IS NULL OR ("a" > "c" AND "b" = 1)`,
		},
		{
			input: Dialect(dialect.Postgres).Select("a").From(Table("t")).
				Where(And(Or(EQ("a", 1), EQ("a", 2)), NotNull("b"))).
				OrderBy("a", "b"),
			wantQuery: `SELECT "a" FROM "t" WHERE ("a" = $1 OR "a" = $2) AND "b" IS NOT NULL ORDER BY "a", "b"`,
			wantArgs:  []any{1, 2},
		},
		{
			input:     Dialect(dialect.Postgres).Select("id").From(Table("t")).Where(In("id", 1, 2, 3)),
			wantQuery: `SELECT "id" FROM "t" WHERE "id" IN ($1, $2, $3)`,
			wantArgs:  []any{1, 2, 3},
		},
		{
			input:     Dialect(dialect.Postgres).Insert("users").Columns("name", "age").Values("a", 1).Returning("id"),
			wantQuery: `INSERT INTO "users" ("name", "age") VALUES ($1, $2) RETURNING "id"`,
			wantArgs:  []any{"a", 1},
		},
		{
			input:     Dialect(dialect.MySQL).Insert("users").Columns("name", "age").Values("a", 1).Values("b", 2).Returning("id"),
			wantQuery: "INSERT INTO `users` (`name`, `age`) VALUES (?, ?), (?, ?)",
			wantArgs:  []any{"a", 1, "b", 2},
		},
		{
			input:     Dialect(dialect.Postgres).Insert("users").Default().Returning("id"),
			wantQuery: `INSERT INTO "users" DEFAULT VALUES RETURNING "id"`,
		},
		{
			input:     Dialect(dialect.MySQL).Insert("users").Default(),
			wantQuery: "INSERT INTO `users` VALUES ()",
		},
		{
			input:     Dialect(dialect.Postgres).Update("users").Set("name", "b").Where(EQ("id", 1)).Where(EQ("version", 2)),
			wantQuery: `UPDATE "users" SET "name" = $1 WHERE "id" = $2 AND "version" = $3`,
			wantArgs:  []any{"b", 1, 2},
		},
		{
			input: Dialect(dialect.Postgres).Delete("item").
				Where(InSelector("line", Select("line.id").From(Table("line")).Where(EQ("line.order", 5)))),
			wantQuery: `DELETE FROM "item" WHERE "line" IN (SELECT "line"."id" FROM "line" WHERE "line"."order" = $1)`,
			wantArgs:  []any{5},
		},
		{
			input:     Dialect(dialect.SQLite).Delete("item").Schema("main"),
			wantQuery: `DELETE FROM "main"."item"`,
		},
		{
			input:     Dialect(dialect.Postgres).Select("id").From(Table("order")).Where(EQ("id", 1)).ForUpdate(),
			wantQuery: `SELECT "id" FROM "order" WHERE "id" = $1 FOR UPDATE`,
			wantArgs:  []any{1},
		},
		{
			input:     Dialect(dialect.SQLite).Select("id").From(Table("order")).Where(EQ("id", 1)).ForUpdate(),
			wantQuery: `SELECT "id" FROM "order" WHERE "id" = ?`,
			wantArgs:  []any{1},
		},
		{
			input:     Dialect(dialect.Postgres).Select("id").From(Table("t")).Where(Not(EQ("id", 1))).Where(P("? < 10", 3)),
			wantQuery: `SELECT "id" FROM "t" WHERE NOT ("id" = $1) AND $2 < 10`,
			wantArgs:  []any{1, 3},
		},
	}
	for i, tt := range tests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			query, args := tt.input.Query()
			require.Equal(t, tt.wantQuery, query)
			require.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestQuote(t *testing.T) {
	require.Equal(t, `"a""b"`, Quote(dialect.Postgres, `a"b`))
	require.Equal(t, "`a``b`", Quote(dialect.MySQL, "a`b"))
	require.Equal(t, `"users"`, Quote(dialect.SQLite, "users"))
}

func TestSelectorC(t *testing.T) {
	require.Equal(t, "u.id", Table("users").As("u").C("id"))
	require.Equal(t, "users.id", Table("users").C("id"))
	require.Equal(t, "users", Table("users").Name())
	require.Equal(t, "main.rn", Select().As("main").C("rn"))
	require.Equal(t, "rn", Select().C("rn"))
}
