package dispatch

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Structured records
// ---------------------------------------------------------------------------

// TagRecord is the conventional base tag for structured records. Richer
// record variants declare their own tags and relate them through unify
// handlers or hierarchy edges, one level up from field tags.
const TagRecord TypeTag = "record"

// Field is one named, typed column of a structured record.
type Field struct {
	Name   string
	Chain  TypeChain
	Column []any
}

// StructuredRecord is a named, typed-column aggregate: an ordered set of
// uniquely named fields plus the record's own tag.
type StructuredRecord struct {
	Tag    TypeTag
	Fields []Field
}

// NewRecord builds a StructuredRecord, validating that field names are
// unique and non-empty, every field has a chain, and all columns have the
// same length.
func NewRecord(tag TypeTag, fields ...Field) (*StructuredRecord, error) {
	if tag == "" {
		tag = TagRecord
	}
	seen := make(map[string]bool, len(fields))
	rows := -1
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("dispatch: record field with empty name")
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("dispatch: duplicate record field %q", f.Name)
		}
		seen[f.Name] = true
		if len(f.Chain) == 0 {
			return nil, fmt.Errorf("dispatch: record field %q has no type chain", f.Name)
		}
		if rows < 0 {
			rows = len(f.Column)
		} else if len(f.Column) != rows {
			return nil, fmt.Errorf("dispatch: record field %q has %d rows, want %d", f.Name, len(f.Column), rows)
		}
	}
	r := &StructuredRecord{Tag: tag, Fields: make([]Field, len(fields))}
	copy(r.Fields, fields)
	return r, nil
}

// Field returns the named field and whether it exists.
func (r *StructuredRecord) Field(name string) (*Field, bool) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// FieldNames returns the field names in order.
func (r *StructuredRecord) FieldNames() []string {
	out := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.Name
	}
	return out
}

// Rows returns the number of rows, zero for a fieldless record.
func (r *StructuredRecord) Rows() int {
	if len(r.Fields) == 0 {
		return 0
	}
	return len(r.Fields[0].Column)
}

// ---------------------------------------------------------------------------
// Reconciliation
// ---------------------------------------------------------------------------

// Reconcile merges two records into one with the union of their fields and
// the rows of both inputs, r1's first. For each shared field the common
// type is decided by Unify; a field absent from one side participates as
// the "unknown" placeholder and is backfilled from the fill registry at the
// resolved type. The result record's own tag is decided by the same unify
// machinery applied to the two record tags.
//
// The first field-level incompatibility aborts the whole reconciliation,
// with the offending field named on the error. No partial schema is
// produced.
func (e *Engine) Reconcile(r1, r2 *StructuredRecord) (*StructuredRecord, error) {
	if r1 == nil || r2 == nil {
		return nil, fmt.Errorf("dispatch: Reconcile requires two records")
	}

	recTag, err := e.Unify(e.DerivedChain(r1.Tag), e.DerivedChain(r2.Tag))
	if err != nil {
		var ite *IncompatibleTypeError
		if errors.As(err, &ite) {
			return nil, fmt.Errorf("dispatch: record tags: %w", err)
		}
		return nil, err
	}

	// Union of field names, first-seen order: all of r1, then r2-only.
	names := r1.FieldNames()
	for _, f := range r2.Fields {
		if _, ok := r1.Field(f.Name); !ok {
			names = append(names, f.Name)
		}
	}

	rows1, rows2 := r1.Rows(), r2.Rows()
	out := &StructuredRecord{Tag: recTag, Fields: make([]Field, 0, len(names))}
	for _, name := range names {
		f1, ok1 := r1.Field(name)
		f2, ok2 := r2.Field(name)

		c1 := TypeChain{TagUnknown}
		if ok1 {
			c1 = f1.Chain
		}
		c2 := TypeChain{TagUnknown}
		if ok2 {
			c2 = f2.Chain
		}

		resolved, err := e.Unify(c1, c2)
		if err != nil {
			var ite *IncompatibleTypeError
			if errors.As(err, &ite) {
				ite.Field = name
				return nil, ite
			}
			return nil, fmt.Errorf("dispatch: field %q: %w", name, err)
		}

		column := make([]any, 0, rows1+rows2)
		column, err = e.appendConverted(column, f1, ok1, resolved, rows1)
		if err != nil {
			return nil, fmt.Errorf("dispatch: field %q: %w", name, err)
		}
		column, err = e.appendConverted(column, f2, ok2, resolved, rows2)
		if err != nil {
			return nil, fmt.Errorf("dispatch: field %q: %w", name, err)
		}

		out.Fields = append(out.Fields, Field{
			Name:   name,
			Chain:  e.resolvedChain(f1, ok1, f2, ok2, resolved),
			Column: column,
		})
	}
	return out, nil
}

// appendConverted extends a result column with one input record's share of
// rows: the converted source column when the field is present, fill values
// at the resolved type when it is not.
func (e *Engine) appendConverted(column []any, f *Field, present bool, resolved TypeTag, rows int) ([]any, error) {
	if !present {
		fill, err := e.FillFor(resolved)
		if err != nil {
			return nil, err
		}
		for i := 0; i < rows; i++ {
			column = append(column, fill)
		}
		return column, nil
	}
	for _, elem := range f.Column {
		v, err := e.Convert(NewValue(elem, f.Chain), resolved)
		if err != nil {
			return nil, err
		}
		column = append(column, v.Payload)
	}
	return column, nil
}

// resolvedChain picks the chain for a reconciled field: an input chain when
// one already heads at the resolved tag, the derived chain otherwise.
func (e *Engine) resolvedChain(f1 *Field, ok1 bool, f2 *Field, ok2 bool, resolved TypeTag) TypeChain {
	if ok1 && f1.Chain.Head() == resolved {
		return f1.Chain
	}
	if ok2 && f2.Chain.Head() == resolved {
		return f2.Chain
	}
	return e.DerivedChain(resolved)
}

// FillFor returns the registered fill value for a tag.
func (e *Engine) FillFor(tag TypeTag) (any, error) {
	e.mu.RLock()
	fn := e.fills[tag]
	e.mu.RUnlock()

	if fn == nil {
		return nil, fmt.Errorf("dispatch: no fill registered for tag %q", tag)
	}
	return fn(), nil
}
