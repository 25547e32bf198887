package sqlexec

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/syssam/relagg"
)

type codedError int

func (e codedError) Error() string { return fmt.Sprintf("sqlite error %d", int(e)) }
func (e codedError) Code() int     { return int(e) }

func TestConstraintKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"Nil", nil, ""},
		{"Plain", errors.New("connection refused"), ""},
		{"PostgresUnique", &pq.Error{Code: pgUniqueViolation}, "unique"},
		{"PostgresForeignKey", fmt.Errorf("exec: %w", &pq.Error{Code: pgForeignKeyViolation}), "foreign key"},
		{"PostgresCheck", &pq.Error{Code: pgCheckViolation}, "check"},
		{"MySQLDuplicate", &mysql.MySQLError{Number: mysqlDuplicateEntry}, "unique"},
		{"MySQLChild", &mysql.MySQLError{Number: mysqlForeignKeyChild}, "foreign key"},
		{"MySQLCheck", &mysql.MySQLError{Number: mysqlCheckConstraintViolate}, "check"},
		{"MySQLOther", &mysql.MySQLError{Number: 1045}, ""},
		{"SQLiteCode", codedError(sqliteForeignKey), "foreign key"},
		{"SQLitePrimaryKey", codedError(sqlitePrimaryKey), "unique"},
		{"SQLiteMessage", errors.New("CHECK constraint failed: qty > 0"), "check"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, constraintKind(tt.err))
			assert.Equal(t, tt.kind == "unique", IsUniqueConstraintError(tt.err))
			assert.Equal(t, tt.kind == "foreign key", IsForeignKeyConstraintError(tt.err))
			assert.Equal(t, tt.kind == "check", IsCheckConstraintError(tt.err))
			if tt.err == nil {
				return
			}
			err := classify(tt.err)
			assert.Equal(t, tt.kind != "", relagg.IsConstraintError(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
