package mapping

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NamingStrategy derives database names from the metamodel.
type NamingStrategy interface {
	// Schema returns the default schema of all tables, or "".
	Schema() string
	// TableName returns the table name of the given entity struct type.
	TableName(t reflect.Type) string
	// ColumnName returns the column name of a simple property.
	ColumnName(p *Property) string
	// ReverseColumnName returns the name of the column in a child table
	// referencing a row of the given owner entity.
	ReverseColumnName(owner *Entity) string
	// KeyColumn returns the qualifier column of a list or map property.
	KeyColumn(p *Property) string
}

var rules = inflect.NewDefaultRuleset()

// DefaultNamingStrategy maps Go names to snake_case database names.
type DefaultNamingStrategy struct {
	// SchemaName is returned by Schema.
	SchemaName string
	// TablePrefix is prepended to every table name.
	TablePrefix string
	// Pluralize pluralizes table names ("OrderLine" becomes "order_lines").
	Pluralize bool
	// UpperCase upper-cases all derived names.
	UpperCase bool
}

// Schema implements NamingStrategy.
func (s DefaultNamingStrategy) Schema() string { return s.SchemaName }

// TableName implements NamingStrategy.
func (s DefaultNamingStrategy) TableName(t reflect.Type) string {
	name := snake(t.Name())
	if s.Pluralize {
		name = rules.Pluralize(name)
	}
	return s.apply(s.TablePrefix + name)
}

// ColumnName implements NamingStrategy.
func (s DefaultNamingStrategy) ColumnName(p *Property) string {
	return s.apply(snake(p.Name))
}

// ReverseColumnName implements NamingStrategy. It defaults to the table
// name of the owner.
func (s DefaultNamingStrategy) ReverseColumnName(owner *Entity) string {
	return owner.TableName()
}

// KeyColumn implements NamingStrategy.
func (s DefaultNamingStrategy) KeyColumn(p *Property) string {
	return s.ReverseColumnName(p.Owner()) + s.apply("_key")
}

func (s DefaultNamingStrategy) apply(name string) string {
	if s.UpperCase {
		return cases.Upper(language.Und).String(name)
	}
	return name
}

// snake converts the given Go identifier to snake_case.
//
//	snake("UserID") == "user_id"
//	snake("HTTPCode") == "http_code"
func snake(s string) string {
	var (
		j int
		b strings.Builder
	)
	for i := 0; i < len(s); i++ {
		r := rune(s[i])
		if i > 0 && i < len(s)-1 && unicode.IsUpper(r) {
			if unicode.IsLower(rune(s[i-1])) ||
				j != i-1 && unicode.IsLower(rune(s[i+1])) && unicode.IsLetter(rune(s[i-1])) {
				j = i
				b.WriteString("_")
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// CachingNamingStrategy memoizes the names derived by another strategy.
// It is safe for concurrent use and lives as long as the Context owning it.
type CachingNamingStrategy struct {
	delegate NamingStrategy
	schema   func() string
	tables   sync.Map // reflect.Type => string
	columns  sync.Map // *Property => string
	keys     sync.Map // *Property => string
	reverse  sync.Map // *Entity => string
}

// NewCachingNamingStrategy wraps the given strategy with memoization.
func NewCachingNamingStrategy(delegate NamingStrategy) *CachingNamingStrategy {
	return &CachingNamingStrategy{
		delegate: delegate,
		schema:   sync.OnceValue(delegate.Schema),
	}
}

// Schema implements NamingStrategy.
func (s *CachingNamingStrategy) Schema() string { return s.schema() }

// TableName implements NamingStrategy.
func (s *CachingNamingStrategy) TableName(t reflect.Type) string {
	return memo(&s.tables, t, func() string { return s.delegate.TableName(t) })
}

// ColumnName implements NamingStrategy.
func (s *CachingNamingStrategy) ColumnName(p *Property) string {
	return memo(&s.columns, p, func() string { return s.delegate.ColumnName(p) })
}

// ReverseColumnName implements NamingStrategy.
func (s *CachingNamingStrategy) ReverseColumnName(owner *Entity) string {
	return memo(&s.reverse, owner, func() string { return s.delegate.ReverseColumnName(owner) })
}

// KeyColumn implements NamingStrategy.
func (s *CachingNamingStrategy) KeyColumn(p *Property) string {
	return memo(&s.keys, p, func() string { return s.delegate.KeyColumn(p) })
}

func memo(m *sync.Map, key any, compute func() string) string {
	if v, ok := m.Load(key); ok {
		return v.(string)
	}
	v, _ := m.LoadOrStore(key, compute())
	return v.(string)
}
