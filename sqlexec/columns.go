package sqlexec

import (
	"github.com/syssam/relagg"
	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/mapping"
)

// column is a writable column of an entity table.
type column struct {
	name string
	// rel leads from the entity instance to the column value.
	rel     mapping.PropertyPath
	id      bool
	version bool
}

// assignment is a column and the value written to it.
type assignment struct {
	column string
	value  any
}

// columnsOf returns the writable columns of the leaf entity of p, with
// embedded values flattened. Entity-valued properties are stored in their
// own tables and skipped.
func (i *Interpreter) columnsOf(p *aggpath.Path) ([]column, error) {
	if v, ok := i.columns.Load(p); ok {
		return v.([]column), nil
	}
	var cols []column
	var walk func(base *aggpath.Path, id bool) error
	walk = func(base *aggpath.Path, id bool) error {
		e, err := base.RequiredLeafEntity()
		if err != nil {
			return err
		}
		for _, prop := range e.Properties() {
			if prop.IsEntity() && !prop.IsEmbedded() {
				continue
			}
			cp, err := base.Append(prop)
			if err != nil {
				return err
			}
			isID := id || base == p && prop.IsIDProperty()
			if prop.IsEmbedded() {
				if err := walk(cp, isID); err != nil {
					return err
				}
				continue
			}
			if !prop.IsWritable() && !isID {
				continue
			}
			rel, _ := cp.Subtract(p)
			cols = append(cols, column{
				name:    cp.ColumnInfo().Name,
				rel:     rel,
				id:      isID,
				version: base == p && prop.IsVersionProperty(),
			})
		}
		return nil
	}
	if err := walk(p, false); err != nil {
		return nil, err
	}
	v, _ := i.columns.LoadOrStore(p, cols)
	return v.([]column), nil
}

// keyValue returns the part of an identifier stored in the column keyed by
// key (see aggpath.ColumnInfos): the identifier itself for simple ones, a
// field of the embedded identifier otherwise.
func keyValue(e *mapping.Entity, id any, key string) (any, error) {
	if key == "" {
		return id, nil
	}
	ide, err := e.Context().PropertyEntity(e.IDProperty())
	if err != nil {
		return nil, err
	}
	prop, ok := ide.Property(key)
	if !ok {
		return nil, relagg.NewMetadataError(ide.Name(), key, "unknown identifier property", nil)
	}
	return e.Context().GetPath(id, mapping.PropertyPath{prop}), nil
}
