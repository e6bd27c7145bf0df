package dispatch

// ---------------------------------------------------------------------------
// Single dispatch
// ---------------------------------------------------------------------------

// DispatchContext is the per-call continuation token for single dispatch.
// It carries the suffix of the receiver's chain not yet tried, so that a
// handler can delegate to the next, less specific handler. A context is
// created at the start of a dispatch call and must not outlive it or be
// shared across calls; it is the only transport for continuation position.
type DispatchContext struct {
	engine    *Engine
	op        string
	opID      int
	remaining TypeChain
	receiver  Value
	args      []Value

	// exhausted marks a context handed to the "default" handler. The
	// default handler is the end of the line: delegating from it must
	// not re-enter the default lookup.
	exhausted bool
}

// Op returns the operation being dispatched.
func (ctx *DispatchContext) Op() string {
	return ctx.op
}

// Remaining returns the chain suffix delegation would continue at. Callers
// must treat it as read-only.
func (ctx *DispatchContext) Remaining() TypeChain {
	return ctx.remaining
}

// Delegate resumes resolution at the context's remaining suffix. It never
// re-examines tags at or before the position that selected the current
// handler, so a delegation chain always terminates. Re-tagging the receiver
// inside a handler has no effect on delegation: the continuation position
// lives here, not on the value.
//
// With an exhausted suffix, Delegate falls through to the "default" handler
// if one is registered, else returns a NoHandlerError. Delegating from the
// default handler itself is always a NoHandlerError: there is nothing less
// specific left.
func (ctx *DispatchContext) Delegate() (Value, error) {
	if ctx.exhausted {
		return Value{}, &NoHandlerError{Op: ctx.op, Chain: ctx.receiver.Chain()}
	}
	return ctx.engine.dispatchChain(ctx.op, ctx.opID, ctx.remaining, ctx.receiver, ctx.args)
}

// DelegateWith is Delegate with replacement arguments.
func (ctx *DispatchContext) DelegateWith(args ...Value) (Value, error) {
	if ctx.exhausted {
		return Value{}, &NoHandlerError{Op: ctx.op, Chain: ctx.receiver.Chain()}
	}
	return ctx.engine.dispatchChain(ctx.op, ctx.opID, ctx.remaining, ctx.receiver, args)
}

// Dispatch resolves op against the receiver's chain, trying tags left to
// right, and invokes the first registered handler. If no tag in the chain
// has a handler, the reserved "default" tag is tried last. With no match at
// all the call fails with a NoHandlerError.
func (e *Engine) Dispatch(op string, receiver Value, args ...Value) (Value, error) {
	chain := receiver.Chain()
	if len(chain) == 0 {
		return Value{}, &NoHandlerError{Op: op, Chain: chain}
	}
	opID := e.ops.Lookup(op)
	if opID < 0 {
		return Value{}, &NoHandlerError{Op: op, Chain: chain}
	}
	return e.dispatchChain(op, opID, chain, receiver, args)
}

// dispatchChain walks the given chain suffix left to right and invokes the
// first handler found, handing it a fresh context whose remaining suffix
// starts just past the matched tag.
func (e *Engine) dispatchChain(op string, opID int, chain TypeChain, receiver Value, args []Value) (Value, error) {
	for i, tag := range chain {
		if h := e.lookupMethod(opID, tag); h != nil {
			ctx := &DispatchContext{
				engine:    e,
				op:        op,
				opID:      opID,
				remaining: chain[i+1:],
				receiver:  receiver,
				args:      args,
			}
			return h.Invoke(ctx, receiver, args)
		}
	}
	if h := e.lookupMethod(opID, TagDefault); h != nil {
		ctx := &DispatchContext{
			engine:    e,
			op:        op,
			opID:      opID,
			receiver:  receiver,
			args:      args,
			exhausted: true,
		}
		return h.Invoke(ctx, receiver, args)
	}
	return Value{}, &NoHandlerError{Op: op, Chain: receiver.Chain()}
}

func (e *Engine) lookupMethod(opID int, tag TypeTag) Handler {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byTag := e.methods[opID]
	if byTag == nil {
		return nil
	}
	return byTag[tag]
}
