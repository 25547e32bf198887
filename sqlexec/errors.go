package sqlexec

import (
	"errors"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/syssam/relagg"
)

// ErrNotFound is returned when an unversioned root update matches no row.
var ErrNotFound = errors.New("sqlexec: entity not found")

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// SQLite extended result codes for constraint violations.
const (
	sqliteCheck      = 275
	sqliteForeignKey = 787
	sqlitePrimaryKey = 1555
	sqliteUnique     = 2067
)

// sqlStateError is implemented by drivers exposing SQLSTATE codes, such as
// pgx.
type sqlStateError interface {
	SQLState() string
}

// sqliteError is implemented by modernc.org/sqlite errors.
type sqliteError interface {
	Code() int
}

// violation describes how each driver reports one kind of constraint
// violation.
type violation struct {
	kind    string
	pg      []string
	mysql   []uint16
	sqlite  []int
	message []string
}

var violations = []violation{
	{
		kind:    "unique",
		pg:      []string{pgUniqueViolation},
		mysql:   []uint16{mysqlDuplicateEntry},
		sqlite:  []int{sqliteUnique, sqlitePrimaryKey},
		message: []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	},
	{
		kind:    "foreign key",
		pg:      []string{pgForeignKeyViolation},
		mysql:   []uint16{mysqlForeignKeyParent, mysqlForeignKeyChild},
		sqlite:  []int{sqliteForeignKey},
		message: []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	},
	{
		kind:    "check",
		pg:      []string{pgCheckViolation},
		mysql:   []uint16{mysqlCheckConstraintViolate},
		sqlite:  []int{sqliteCheck},
		message: []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	},
}

func (v violation) matches(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && slices.Contains(v.pg, string(pqErr.Code)) {
		return true
	}
	if e, ok := asError[sqlStateError](err); ok && slices.Contains(v.pg, e.SQLState()) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && slices.Contains(v.mysql, myErr.Number) {
		return true
	}
	if e, ok := asError[sqliteError](err); ok && slices.Contains(v.sqlite, e.Code()) {
		return true
	}
	// Fallback to string matching for drivers that don't implement interfaces.
	return containsAny(err.Error(), v.message...)
}

// constraintKind returns the kind of constraint the error violates, or ""
// when it is not a constraint violation.
func constraintKind(err error) string {
	if err == nil {
		return ""
	}
	for _, v := range violations {
		if v.matches(err) {
			return v.kind
		}
	}
	return ""
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness
// constraint violation.
func IsUniqueConstraintError(err error) bool { return constraintKind(err) == "unique" }

// IsForeignKeyConstraintError reports if the error resulted from a database
// foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool { return constraintKind(err) == "foreign key" }

// IsCheckConstraintError reports if the error resulted from a database check
// constraint violation.
func IsCheckConstraintError(err error) bool { return constraintKind(err) == "check" }

// classify wraps constraint violations in a relagg.ConstraintError.
func classify(err error) error {
	if kind := constraintKind(err); kind != "" {
		return relagg.NewConstraintError(kind+" constraint violated", err)
	}
	return err
}

// asError attempts to extract an error implementing interface T from the
// error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
