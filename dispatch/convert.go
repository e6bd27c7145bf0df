package dispatch

import "fmt"

// ---------------------------------------------------------------------------
// Directional conversion (cast)
// ---------------------------------------------------------------------------

// Convert produces a value whose chain is headed by target, or fails.
// Resolution order:
//
//  1. registered handler for (source, target) — ordered, never mirrored
//  2. identity: the value is returned unchanged when source equals target
//  3. hierarchy projection: when target is a declared generalization of
//     source, the value is re-tagged without payload transformation
//
// With no path at all the call fails with a NoConversionError. A handler
// that exists may still reject a specific payload with an
// IncompatibleValueError; the two failures are distinct.
//
// Casts may be lossy by design: converting to target and back is not
// guaranteed to reproduce the original value.
func (e *Engine) Convert(v Value, target TypeTag) (Value, error) {
	chain := v.Chain()
	if len(chain) == 0 {
		return Value{}, fmt.Errorf("dispatch: Convert requires a value with a non-empty chain")
	}
	if target == "" {
		return Value{}, fmt.Errorf("dispatch: Convert requires a non-empty target tag")
	}
	src := chain.Head()

	if fn := e.lookupConvert(src, target); fn != nil {
		out, err := fn(v)
		if err != nil {
			return Value{}, err
		}
		if len(out.Chain()) == 0 || out.Tag() != target {
			return Value{}, fmt.Errorf("dispatch: convert handler (%s, %s) returned a value headed by %q", src, target, out.Tag())
		}
		return out, nil
	}

	if src == target {
		return v, nil
	}

	if e.IsGeneralizationOf(target, src) {
		return v.Retag(e.projectChain(chain, target)), nil
	}

	return Value{}, &NoConversionError{Source: src, Target: target}
}

// projectChain re-tags a chain at a generalization target. When the chain
// itself carries the target, the projection is the suffix starting there;
// otherwise the target's derived chain is used.
func (e *Engine) projectChain(chain TypeChain, target TypeTag) TypeChain {
	for i, t := range chain {
		if t == target {
			return chain[i:]
		}
	}
	return e.DerivedChain(target)
}

func (e *Engine) lookupConvert(src, dst TypeTag) ConvertFunc {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.converts[pairKey{src, dst}]
}
