// Package mapping is the metamodel consumed by the aggregate planner.
//
// Entities are Go struct types. Their persistent properties are read from
// exported fields and the `db` struct tag:
//
//	type Order struct {
//		ID      int64            `db:"id,id"`
//		Version int64            `db:",version"`
//		Ship    Address          `db:",embedded=ship_"`
//		Lines   []*Line          `db:"lines"`          // ordered, qualified by index
//		Tags    []Tag            `db:",set"`           // unordered collection
//		Items   map[string]*Item `db:",key=sku"`       // qualified by map key
//		Memo    string           `db:"-"`              // transient
//	}
//
// Recognized options: id, version, sequence=<name>, embedded[=prefix],
// key=<column>, ref=<column>, set and readonly.
//
// Fields of simple types (numbers, strings, booleans, time.Time, uuid.UUID,
// []byte, driver.Valuer and sql.Scanner implementations) map to columns.
// Slices and maps of structs, and struct or pointer-to-struct fields, map to
// entities stored in their own tables unless marked embedded.
package mapping
