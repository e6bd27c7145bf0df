package dispatch

import (
	"fmt"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// TypeTag and TypeChain
// ---------------------------------------------------------------------------

// TypeTag is an atomic identifier for a runtime type, e.g. "percent" or
// "double". Tags carry no inherent relationships; everything the engine
// knows about a tag comes from chains, registries and hierarchy edges.
type TypeTag string

// Reserved tags.
const (
	// TagDefault is the single-dispatch fallback tag. A handler registered
	// under it is tried after every tag in a value's chain has missed.
	TagDefault TypeTag = "default"

	// TagUnknown is the placeholder tag for fields absent from one side of
	// a record reconciliation. It unifies with any tag to that tag.
	TagUnknown TypeTag = "unknown"
)

// TypeChain is a value's full inheritance chain for single dispatch:
// an ordered, non-empty sequence of tags, most specific first. The last
// element is the root base representation.
type TypeChain []TypeTag

// NewChain builds a TypeChain, validating the chain invariants: the chain
// must be non-empty, tags must be non-empty strings, and no tag may appear
// twice. Violations are caller errors and fail at construction time.
func NewChain(tags ...TypeTag) (TypeChain, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("dispatch: type chain must not be empty")
	}
	seen := make(map[TypeTag]bool, len(tags))
	for _, t := range tags {
		if t == "" {
			return nil, fmt.Errorf("dispatch: type chain contains empty tag")
		}
		if seen[t] {
			return nil, fmt.Errorf("dispatch: duplicate tag %q in type chain", t)
		}
		seen[t] = true
	}
	c := make(TypeChain, len(tags))
	copy(c, tags)
	return c, nil
}

// MustChain is NewChain that panics on invalid input. Intended for
// registration-phase code and tests where the chain is a literal.
func MustChain(tags ...TypeTag) TypeChain {
	c, err := NewChain(tags...)
	if err != nil {
		panic(err)
	}
	return c
}

// Head returns the most specific tag of the chain.
func (c TypeChain) Head() TypeTag {
	return c[0]
}

// Root returns the least specific tag of the chain.
func (c TypeChain) Root() TypeTag {
	return c[len(c)-1]
}

// Contains reports whether the chain carries the given tag.
func (c TypeChain) Contains(tag TypeTag) bool {
	for _, t := range c {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the chain.
func (c TypeChain) Clone() TypeChain {
	out := make(TypeChain, len(c))
	copy(out, c)
	return out
}

// Equal reports whether two chains carry the same tags in the same order.
func (c TypeChain) Equal(other TypeChain) bool {
	if len(c) != len(other) {
		return false
	}
	for i, t := range c {
		if other[i] != t {
			return false
		}
	}
	return true
}

// String implements the Stringer interface.
func (c TypeChain) String() string {
	parts := make([]string, len(c))
	for i, t := range c {
		parts[i] = string(t)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// IsA reports whether a chain carries the given tag. It is the membership
// query of the tag model: the chain's ordering is what dispatch consumes,
// membership is all IsA answers.
func IsA(tag TypeTag, chain TypeChain) bool {
	return chain.Contains(tag)
}

// ---------------------------------------------------------------------------
// Value
// ---------------------------------------------------------------------------

// Value is an opaque payload paired with its TypeChain. The engine never
// inspects the payload; it routes purely on the chain.
type Value struct {
	// Payload is the carried data, owned by the caller.
	Payload any

	chain TypeChain
}

// NewValue pairs a payload with a chain.
func NewValue(payload any, chain TypeChain) Value {
	return Value{Payload: payload, chain: chain}
}

// ChainOf returns a value's type chain.
func ChainOf(v Value) TypeChain {
	return v.chain
}

// Chain returns the value's type chain. Callers must treat it as read-only.
func (v Value) Chain() TypeChain {
	return v.chain
}

// Tag returns the value's most specific tag.
func (v Value) Tag() TypeTag {
	return v.chain.Head()
}

// Retag returns a copy of the value carrying a different chain. The payload
// is shared, not copied.
func (v Value) Retag(chain TypeChain) Value {
	return Value{Payload: v.Payload, chain: chain}
}

// ---------------------------------------------------------------------------
// OpTable: interned operation names
// ---------------------------------------------------------------------------

// OpTable interns operation names to dense integer IDs so that the method
// registry can key on small integers instead of strings. It is thread-safe
// for concurrent access.
type OpTable struct {
	mu    sync.RWMutex
	ids   map[string]int
	names []string
}

// NewOpTable creates a new empty operation table.
func NewOpTable() *OpTable {
	return &OpTable{ids: make(map[string]int)}
}

// Intern returns the ID for an operation name, assigning the next free ID
// on first sight.
func (ot *OpTable) Intern(name string) int {
	ot.mu.Lock()
	defer ot.mu.Unlock()

	if id, ok := ot.ids[name]; ok {
		return id
	}
	id := len(ot.names)
	ot.ids[name] = id
	ot.names = append(ot.names, name)
	return id
}

// Lookup returns the ID for an operation name, or -1 if never interned.
func (ot *OpTable) Lookup(name string) int {
	ot.mu.RLock()
	defer ot.mu.RUnlock()

	if id, ok := ot.ids[name]; ok {
		return id
	}
	return -1
}

// Name returns the operation name for an ID, or "" if out of range.
func (ot *OpTable) Name(id int) string {
	ot.mu.RLock()
	defer ot.mu.RUnlock()

	if id < 0 || id >= len(ot.names) {
		return ""
	}
	return ot.names[id]
}

// Len returns the number of interned operation names.
func (ot *OpTable) Len() int {
	ot.mu.RLock()
	defer ot.mu.RUnlock()
	return len(ot.names)
}

// All returns all interned names in ID order.
func (ot *OpTable) All() []string {
	ot.mu.RLock()
	defer ot.mu.RUnlock()

	out := make([]string, len(ot.names))
	copy(out, ot.names)
	return out
}
