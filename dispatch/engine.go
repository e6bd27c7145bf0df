package dispatch

import (
	"fmt"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Engine: the process-wide registries
// ---------------------------------------------------------------------------

// UnifyFunc decides the common (richer) tag of two chains. Implementations
// must be order-independent: the engine invokes the same function for both
// argument orders of a mirrored pair.
type UnifyFunc func(a, b TypeChain) (TypeTag, error)

// ConvertFunc converts a value to the target tag it was registered under.
// It must return a value whose chain is headed by that tag, or an
// *IncompatibleValueError for payloads the target cannot represent.
type ConvertFunc func(v Value) (Value, error)

// FillFunc produces the fill value used to backfill an absent column of the
// given resolved type during reconciliation.
type FillFunc func() any

// pairKey is an ordered tag pair. The unify registry stores both orders of
// every pair; the convert registry stores exactly what was registered.
type pairKey struct {
	a TypeTag
	b TypeTag
}

func (k pairKey) String() string {
	return fmt.Sprintf("(%s, %s)", k.a, k.b)
}

// unifyEntry is one direction of a registered unify pair. mirror marks
// entries the engine created automatically for the reverse order; pending
// marks asymmetric registrations whose reverse has not arrived yet.
type unifyEntry struct {
	fn      UnifyFunc
	flipped bool
	mirror  bool
	pending bool
}

// Engine holds the method, unification, conversion, hierarchy and fill
// registries. Registration happens during an initialization phase; Freeze
// validates the registries and flips the engine read-only, after which it
// may be queried concurrently without further synchronization concerns.
type Engine struct {
	mu     sync.RWMutex
	frozen bool

	ops     *OpTable
	methods map[int]map[TypeTag]Handler

	unify    map[pairKey]*unifyEntry
	converts map[pairKey]ConvertFunc

	// parents is the hierarchy-edge graph. It is deliberately a separate
	// structure from TypeChain: the single-dispatch chain and the coercion
	// hierarchy are independent relationships.
	parents map[TypeTag][]TypeTag

	fills map[TypeTag]FillFunc
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{
		ops:      NewOpTable(),
		methods:  make(map[int]map[TypeTag]Handler),
		unify:    make(map[pairKey]*unifyEntry),
		converts: make(map[pairKey]ConvertFunc),
		parents:  make(map[TypeTag][]TypeTag),
		fills:    make(map[TypeTag]FillFunc),
	}
}

// ---------------------------------------------------------------------------
// Registration: single dispatch
// ---------------------------------------------------------------------------

// AddMethod registers a single-dispatch handler for (op, tag). Registering
// the same key twice is a RegistrationConflictError.
func (e *Engine) AddMethod(op string, tag TypeTag, h Handler) error {
	if op == "" || tag == "" {
		return fmt.Errorf("dispatch: AddMethod requires non-empty operation and tag")
	}
	if h == nil {
		return fmt.Errorf("dispatch: AddMethod requires a handler")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frozen {
		return ErrFrozen
	}

	id := e.ops.Intern(op)
	byTag := e.methods[id]
	if byTag == nil {
		byTag = make(map[TypeTag]Handler)
		e.methods[id] = byTag
	}
	if _, exists := byTag[tag]; exists {
		return &RegistrationConflictError{Key: fmt.Sprintf("method (%s, %s)", op, tag)}
	}
	byTag[tag] = h
	return nil
}

// ---------------------------------------------------------------------------
// Registration: unification
// ---------------------------------------------------------------------------

// UnifyOption adjusts RegisterUnify behavior.
type UnifyOption func(*unifyOpts)

type unifyOpts struct {
	asymmetric bool
}

// Asymmetric suppresses the automatic mirror registration. The author takes
// on the obligation to register the reverse order explicitly; Freeze reports
// any pair still unmirrored as a conflict.
func Asymmetric() UnifyOption {
	return func(o *unifyOpts) { o.asymmetric = true }
}

// RegisterUnify registers the unification handler for an unordered tag pair.
// Symmetry is a hard invariant of unification, so by default the reverse
// order is registered automatically against the same function. Registering
// a key that is already covered is a RegistrationConflictError.
func (e *Engine) RegisterUnify(a, b TypeTag, fn UnifyFunc, opts ...UnifyOption) error {
	if a == "" || b == "" {
		return fmt.Errorf("dispatch: RegisterUnify requires non-empty tags")
	}
	if fn == nil {
		return fmt.Errorf("dispatch: RegisterUnify requires a handler")
	}
	var o unifyOpts
	for _, opt := range opts {
		opt(&o)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frozen {
		return ErrFrozen
	}

	key := pairKey{a, b}
	if existing, ok := e.unify[key]; ok {
		// Completing a pending asymmetric registration from the other
		// direction is the one allowed overwrite.
		if !(existing.mirror && existing.pending) {
			return &RegistrationConflictError{Key: "unify " + key.String()}
		}
	}

	e.unify[key] = &unifyEntry{fn: fn, pending: o.asymmetric && a != b}
	if a == b {
		return nil
	}

	rev := pairKey{b, a}
	if o.asymmetric {
		// Leave a pending marker so Freeze can detect a forgotten mirror.
		if _, ok := e.unify[rev]; !ok {
			e.unify[rev] = &unifyEntry{fn: fn, flipped: true, mirror: true, pending: true}
		} else if cur := e.unify[rev]; cur.pending {
			// Both directions now explicitly registered.
			cur.pending = false
			e.unify[key].pending = false
		}
		return nil
	}
	if cur, ok := e.unify[rev]; ok {
		if !(cur.mirror || cur.pending) {
			return &RegistrationConflictError{Key: "unify " + rev.String()}
		}
		cur.pending = false
		e.unify[key].pending = false
		return nil
	}
	e.unify[rev] = &unifyEntry{fn: fn, flipped: true, mirror: true}
	return nil
}

// ---------------------------------------------------------------------------
// Registration: conversion, hierarchy, fills
// ---------------------------------------------------------------------------

// RegisterConvert registers the conversion handler from src to dst. Keys
// are ordered: registering (a, b) implies nothing about (b, a).
func (e *Engine) RegisterConvert(src, dst TypeTag, fn ConvertFunc) error {
	if src == "" || dst == "" {
		return fmt.Errorf("dispatch: RegisterConvert requires non-empty tags")
	}
	if fn == nil {
		return fmt.Errorf("dispatch: RegisterConvert requires a handler")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frozen {
		return ErrFrozen
	}

	key := pairKey{src, dst}
	if _, exists := e.converts[key]; exists {
		return &RegistrationConflictError{Key: "convert " + key.String()}
	}
	e.converts[key] = fn
	return nil
}

// AddHierarchyEdge declares that parent is a default, payload-preserving
// generalization of child. Edges feed the unify and convert fallbacks; they
// are not consulted by single dispatch, which walks the value's own chain.
func (e *Engine) AddHierarchyEdge(child, parent TypeTag) error {
	if child == "" || parent == "" {
		return fmt.Errorf("dispatch: AddHierarchyEdge requires non-empty tags")
	}
	if child == parent {
		return &RegistrationConflictError{Key: fmt.Sprintf("hierarchy edge (%s, %s)", child, parent)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frozen {
		return ErrFrozen
	}

	for _, p := range e.parents[child] {
		if p == parent {
			return &RegistrationConflictError{Key: fmt.Sprintf("hierarchy edge (%s, %s)", child, parent)}
		}
	}
	// Reject edges that would close a cycle: child must not already be an
	// ancestor of parent.
	if e.reachableLocked(parent, child) {
		return &RegistrationConflictError{Key: fmt.Sprintf("hierarchy cycle via (%s, %s)", child, parent)}
	}
	e.parents[child] = append(e.parents[child], parent)
	return nil
}

// RegisterFill registers the fill-value source for a tag, used by Reconcile
// to backfill columns absent from one input record.
func (e *Engine) RegisterFill(tag TypeTag, fn FillFunc) error {
	if tag == "" {
		return fmt.Errorf("dispatch: RegisterFill requires a non-empty tag")
	}
	if fn == nil {
		return fmt.Errorf("dispatch: RegisterFill requires a fill function")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frozen {
		return ErrFrozen
	}

	if _, exists := e.fills[tag]; exists {
		return &RegistrationConflictError{Key: fmt.Sprintf("fill %q", tag)}
	}
	e.fills[tag] = fn
	return nil
}

// ---------------------------------------------------------------------------
// Freeze
// ---------------------------------------------------------------------------

// Freeze validates the registries and flips the engine read-only. After a
// successful Freeze the engine may be queried from any number of goroutines;
// all registration entry points return ErrFrozen. Freezing twice is a no-op.
//
// Validation: every unify pair registered Asymmetric must have received its
// explicit mirror.
func (e *Engine) Freeze() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frozen {
		return nil
	}
	for key, entry := range e.unify {
		if entry.pending && !entry.mirror {
			return &RegistrationConflictError{Key: "unify " + key.String() + " lacks its mirror"}
		}
	}
	e.frozen = true
	return nil
}

// Frozen reports whether the engine has been frozen.
func (e *Engine) Frozen() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frozen
}

// ---------------------------------------------------------------------------
// Registry introspection
// ---------------------------------------------------------------------------

// MethodKey identifies one single-dispatch registration.
type MethodKey struct {
	Op  string
	Tag TypeTag
}

// Pair identifies one double-dispatch registration.
type Pair struct {
	A TypeTag
	B TypeTag
}

// Edge identifies one hierarchy edge.
type Edge struct {
	Child  TypeTag
	Parent TypeTag
}

// MethodKeys returns every registered (operation, tag) key, sorted.
func (e *Engine) MethodKeys() []MethodKey {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []MethodKey
	for id, byTag := range e.methods {
		op := e.ops.Name(id)
		for tag := range byTag {
			out = append(out, MethodKey{Op: op, Tag: tag})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Op != out[j].Op {
			return out[i].Op < out[j].Op
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// UnifyPairs returns every explicitly registered unify pair (auto-mirrors
// excluded), sorted.
func (e *Engine) UnifyPairs() []Pair {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Pair
	for key, entry := range e.unify {
		if entry.mirror {
			continue
		}
		out = append(out, Pair{A: key.a, B: key.b})
	}
	sortPairs(out)
	return out
}

// ConvertPairs returns every registered (source, target) conversion key,
// sorted.
func (e *Engine) ConvertPairs() []Pair {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Pair
	for key := range e.converts {
		out = append(out, Pair{A: key.a, B: key.b})
	}
	sortPairs(out)
	return out
}

// HierarchyEdges returns every declared edge, sorted.
func (e *Engine) HierarchyEdges() []Edge {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Edge
	for child, ps := range e.parents {
		for _, p := range ps {
			out = append(out, Edge{Child: child, Parent: p})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Child != out[j].Child {
			return out[i].Child < out[j].Child
		}
		return out[i].Parent < out[j].Parent
	})
	return out
}

// FillTags returns every tag with a registered fill source, sorted.
func (e *Engine) FillTags() []TypeTag {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]TypeTag, 0, len(e.fills))
	for tag := range e.fills {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortPairs(pairs []Pair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
}
