package dispatch

// ---------------------------------------------------------------------------
// Hierarchy-edge graph
// ---------------------------------------------------------------------------
//
// The edge graph records declared generalization relationships between tags
// (child -> parent, payload-preserving). It backs the unify and convert
// fallbacks. It is a distinct structure from TypeChain: a value's dispatch
// chain and the coercion hierarchy are independent and must not be assumed
// equal.

// IsGeneralizationOf reports whether parent is reachable from child through
// declared hierarchy edges (transitively). A tag is not a generalization of
// itself.
func (e *Engine) IsGeneralizationOf(parent, child TypeTag) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reachableLocked(child, parent)
}

// Ancestors returns the tags reachable from t through hierarchy edges,
// nearest first (breadth-first, deduplicated). The result excludes t.
func (e *Engine) Ancestors(t TypeTag) []TypeTag {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ancestorsLocked(t)
}

// DerivedChain builds a canonical chain for a bare tag: the tag followed by
// its ancestors, nearest first. Used when a fallback produces a tag the
// caller never constructed a value for (hierarchy projections, fills).
func (e *Engine) DerivedChain(t TypeTag) TypeChain {
	e.mu.RLock()
	defer e.mu.RUnlock()

	chain := TypeChain{t}
	return append(chain, e.ancestorsLocked(t)...)
}

// reachableLocked reports whether target is reachable from start through
// edges. Caller holds at least a read lock.
func (e *Engine) reachableLocked(start, target TypeTag) bool {
	if start == target {
		return false
	}
	seen := map[TypeTag]bool{start: true}
	queue := []TypeTag{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range e.parents[cur] {
			if p == target {
				return true
			}
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false
}

// ancestorsLocked collects ancestors breadth-first. Caller holds at least a
// read lock. Edges are acyclic by construction, but the visited set also
// collapses diamond shapes to a single visit.
func (e *Engine) ancestorsLocked(t TypeTag) []TypeTag {
	var out []TypeTag
	seen := map[TypeTag]bool{t: true}
	queue := []TypeTag{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range e.parents[cur] {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
				queue = append(queue, p)
			}
		}
	}
	return out
}
