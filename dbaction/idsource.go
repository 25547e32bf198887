package dbaction

import (
	"reflect"

	"github.com/syssam/relagg/mapping"
)

// IDValueSource tells where the identifier of an inserted entity comes from.
type IDValueSource uint8

// Identifier value sources.
const (
	// IDValueSourceGenerated means the database generates the identifier.
	IDValueSourceGenerated IDValueSource = iota
	// IDValueSourceProvided means the instance already holds the identifier.
	IDValueSourceProvided
	// IDValueSourceSequence means the identifier is fetched from a sequence
	// before the insert.
	IDValueSourceSequence
	// IDValueSourceNone means the entity has no identifier.
	IDValueSourceNone
)

// String returns the source name.
func (s IDValueSource) String() string {
	switch s {
	case IDValueSourceGenerated:
		return "generated"
	case IDValueSourceProvided:
		return "provided"
	case IDValueSourceSequence:
		return "sequence"
	case IDValueSourceNone:
		return "none"
	default:
		return "invalid"
	}
}

// IDValueSourceFor returns the identifier value source of the given
// instance: provided when its identifier is set, sequence or generated when
// it is zero and none when the entity declares no identifier. Embedded
// (composite) identifiers are always provided.
func IDValueSourceFor(e *mapping.Entity, instance any) IDValueSource {
	id := e.IDProperty()
	switch {
	case id == nil:
		return IDValueSourceNone
	case id.IsEmbedded():
		return IDValueSourceProvided
	}
	if v := e.ID(instance); v != nil && !reflect.ValueOf(v).IsZero() {
		return IDValueSourceProvided
	}
	if id.Sequence() != "" {
		return IDValueSourceSequence
	}
	return IDValueSourceGenerated
}
