package dispatch

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Double-dispatch unification
// ---------------------------------------------------------------------------

// Unify decides the common (richer) tag of two chains, or fails with an
// IncompatibleTypeError. Resolution order:
//
//  1. registered handler for the leading tag pair, either order
//  2. the "unknown" placeholder yields the other tag
//  3. identity: equal leading tags unify to themselves
//  4. hierarchy fallback: the nearest declared ancestor of either tag that
//     unifies with the other side resolves the pair
//
// Unification is order-independent for any single pair. N-way unification
// by folding (see UnifyAll) is not: handlers may accumulate order-sensitive
// side information, so different fold orders can produce different, equally
// valid results.
func (e *Engine) Unify(a, b TypeChain) (TypeTag, error) {
	if len(a) == 0 || len(b) == 0 {
		return "", fmt.Errorf("dispatch: Unify requires non-empty chains")
	}
	return e.unifyPair(a, b)
}

// UnifyAll left-folds Unify across chains. At least one chain is required.
// The result is well-defined but may depend on argument order when handlers
// carry order-sensitive state; two-chain calls are always order-independent.
func (e *Engine) UnifyAll(chains ...TypeChain) (TypeTag, error) {
	if len(chains) == 0 {
		return "", fmt.Errorf("dispatch: UnifyAll requires at least one chain")
	}
	if len(chains[0]) == 0 {
		return "", fmt.Errorf("dispatch: UnifyAll requires non-empty chains")
	}
	acc := chains[0]
	for _, c := range chains[1:] {
		t, err := e.Unify(acc, c)
		if err != nil {
			return "", err
		}
		acc = e.DerivedChain(t)
	}
	return acc.Head(), nil
}

func (e *Engine) unifyPair(a, b TypeChain) (TypeTag, error) {
	ta, tb := a.Head(), b.Head()

	// Exact and symmetric lookup. Mirrors are stored at registration time,
	// so one map probe covers both orders.
	if entry := e.lookupUnify(ta, tb); entry != nil {
		if entry.flipped {
			return entry.fn(b, a)
		}
		return entry.fn(a, b)
	}

	// The absent-field placeholder is trivially compatible with anything.
	if ta == TagUnknown {
		return tb, nil
	}
	if tb == TagUnknown {
		return ta, nil
	}

	// Identity: a tag is compatible with itself. Callers needing
	// attribute-level reconciliation of same-tagged values register an
	// explicit handler, which the lookup above already honored.
	if ta == tb {
		return ta, nil
	}

	// Hierarchy fallback: adding a leaf type only requires declaring its
	// relation to one existing type. Try each side's ancestors, nearest
	// first; edges are acyclic, so every recursive step strictly
	// generalizes one side and the walk terminates. Only an incompatible
	// pair moves the probe along; a handler error is a real failure and
	// propagates.
	for _, t := range e.Ancestors(ta) {
		r, err := e.unifyPair(e.DerivedChain(t), b)
		if err == nil {
			return r, nil
		}
		var ite *IncompatibleTypeError
		if !errors.As(err, &ite) {
			return "", err
		}
	}
	for _, t := range e.Ancestors(tb) {
		r, err := e.unifyPair(a, e.DerivedChain(t))
		if err == nil {
			return r, nil
		}
		var ite *IncompatibleTypeError
		if !errors.As(err, &ite) {
			return "", err
		}
	}

	return "", &IncompatibleTypeError{TagA: ta, TagB: tb}
}

func (e *Engine) lookupUnify(a, b TypeTag) *unifyEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.unify[pairKey{a, b}]
}
