// Package wire serializes structured records and registry snapshots as
// canonical CBOR, for storage and interchange between processes sharing a
// type system.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/kindred/dispatch"
)

// cborEncMode uses canonical options for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// Field is the wire form of one record column.
type Field struct {
	Name   string   `cbor:"name"`
	Chain  []string `cbor:"chain"`
	Column []any    `cbor:"column"`
}

// Record is the wire form of a structured record.
type Record struct {
	Tag    string  `cbor:"tag"`
	Fields []Field `cbor:"fields"`
}

// FromRecord converts an engine record to its wire form.
func FromRecord(r *dispatch.StructuredRecord) *Record {
	out := &Record{Tag: string(r.Tag), Fields: make([]Field, len(r.Fields))}
	for i, f := range r.Fields {
		chain := make([]string, len(f.Chain))
		for j, t := range f.Chain {
			chain[j] = string(t)
		}
		out.Fields[i] = Field{Name: f.Name, Chain: chain, Column: f.Column}
	}
	return out
}

// ToRecord converts a wire record back to an engine record, re-validating
// the record invariants (unique field names, chain shape, uniform columns).
func (r *Record) ToRecord() (*dispatch.StructuredRecord, error) {
	fields := make([]dispatch.Field, len(r.Fields))
	for i, f := range r.Fields {
		tags := make([]dispatch.TypeTag, len(f.Chain))
		for j, t := range f.Chain {
			tags[j] = dispatch.TypeTag(t)
		}
		chain, err := dispatch.NewChain(tags...)
		if err != nil {
			return nil, fmt.Errorf("wire: field %q: %w", f.Name, err)
		}
		fields[i] = dispatch.Field{Name: f.Name, Chain: chain, Column: f.Column}
	}
	return dispatch.NewRecord(dispatch.TypeTag(r.Tag), fields...)
}

// MarshalRecord serializes a structured record to CBOR bytes.
func MarshalRecord(r *dispatch.StructuredRecord) ([]byte, error) {
	return cborEncMode.Marshal(FromRecord(r))
}

// UnmarshalRecord deserializes a structured record from CBOR bytes.
func UnmarshalRecord(data []byte) (*dispatch.StructuredRecord, error) {
	var r Record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("wire: unmarshal record: %w", err)
	}
	return r.ToRecord()
}

// ---------------------------------------------------------------------------
// Registry snapshots
// ---------------------------------------------------------------------------

// MethodKey is the wire form of one single-dispatch registration.
type MethodKey struct {
	Op  string `cbor:"op"`
	Tag string `cbor:"tag"`
}

// Pair is the wire form of one double-dispatch registration.
type Pair struct {
	A string `cbor:"a"`
	B string `cbor:"b"`
}

// Edge is the wire form of one hierarchy edge.
type Edge struct {
	Child  string `cbor:"child"`
	Parent string `cbor:"parent"`
}

// Snapshot lists the registered keys of an engine. It carries no handlers,
// only keys: handlers are code and do not travel. Snapshots serve
// diagnostics and registry diffing between processes.
type Snapshot struct {
	Methods      []MethodKey `cbor:"methods"`
	UnifyPairs   []Pair      `cbor:"unify"`
	ConvertPairs []Pair      `cbor:"convert"`
	Edges        []Edge      `cbor:"edges"`
	Fills        []string    `cbor:"fills"`
}

// CaptureSnapshot records the registered keys of an engine. The engine's
// introspection accessors return sorted slices, so equal registries yield
// byte-identical snapshots under canonical encoding.
func CaptureSnapshot(e *dispatch.Engine) *Snapshot {
	s := &Snapshot{}
	for _, k := range e.MethodKeys() {
		s.Methods = append(s.Methods, MethodKey{Op: k.Op, Tag: string(k.Tag)})
	}
	for _, p := range e.UnifyPairs() {
		s.UnifyPairs = append(s.UnifyPairs, Pair{A: string(p.A), B: string(p.B)})
	}
	for _, p := range e.ConvertPairs() {
		s.ConvertPairs = append(s.ConvertPairs, Pair{A: string(p.A), B: string(p.B)})
	}
	for _, edge := range e.HierarchyEdges() {
		s.Edges = append(s.Edges, Edge{Child: string(edge.Child), Parent: string(edge.Parent)})
	}
	for _, t := range e.FillTags() {
		s.Fills = append(s.Fills, string(t))
	}
	return s
}

// MarshalSnapshot serializes a Snapshot to CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("wire: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
