package loader

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/relagg/aggpath"
)

// Alias prefixes.
const (
	columnPrefix        = "c_"
	tablePrefix         = "t_"
	rowNumberPrefix     = "rn_"
	rowCountPrefix      = "rc_"
	backReferencePrefix = "br_"
	keyPrefix           = "key_"
)

type aliasKey struct {
	prefix string
	path   *aggpath.Path
}

// AliasFactory hands out aliases that are unique within one statement and
// need no quoting: a kind prefix, the lower-cased table (and column) name
// stripped of non-word characters and a sequence number. Asking twice for
// the same kind and path returns the same alias. An AliasFactory is not
// safe for concurrent use.
type AliasFactory struct {
	n       int
	aliases map[aliasKey]string
	lower   cases.Caser
}

// NewAliasFactory returns an empty AliasFactory.
func NewAliasFactory() *AliasFactory {
	return &AliasFactory{
		aliases: make(map[aliasKey]string),
		lower:   cases.Lower(language.Und),
	}
}

// Column returns the alias of the column of a simple property path.
func (f *AliasFactory) Column(p *aggpath.Path) string {
	return f.alias(columnPrefix, p, func() string {
		return p.TableInfo().TableName + "_" + p.ColumnInfo().Name
	})
}

// Table returns the alias of the inline query of an entity path.
func (f *AliasFactory) Table(p *aggpath.Path) string { return f.tableAlias(tablePrefix, p) }

// RowNumber returns the alias of the row number of an entity path.
func (f *AliasFactory) RowNumber(p *aggpath.Path) string { return f.tableAlias(rowNumberPrefix, p) }

// RowCount returns the alias of the row count of an entity path.
func (f *AliasFactory) RowCount(p *aggpath.Path) string { return f.tableAlias(rowCountPrefix, p) }

// BackReference returns the alias of the reverse column of an entity path.
func (f *AliasFactory) BackReference(p *aggpath.Path) string {
	return f.tableAlias(backReferencePrefix, p)
}

// Key returns the alias of the key of an entity path.
func (f *AliasFactory) Key(p *aggpath.Path) string { return f.tableAlias(keyPrefix, p) }

func (f *AliasFactory) tableAlias(prefix string, p *aggpath.Path) string {
	return f.alias(prefix, p, func() string { return p.TableInfo().TableName })
}

func (f *AliasFactory) alias(prefix string, p *aggpath.Path, base func() string) string {
	k := aliasKey{prefix: prefix, path: p}
	if a, ok := f.aliases[k]; ok {
		return a
	}
	f.n++
	a := prefix + f.sanitize(base()) + "_" + strconv.Itoa(f.n)
	f.aliases[k] = a
	return a
}

// sanitize drops every character that is not a letter, a digit or an
// underscore and lower-cases the rest.
func (f *AliasFactory) sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return -1
		}
	}, s)
	return f.lower.String(s)
}
