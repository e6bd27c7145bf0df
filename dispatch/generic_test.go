package dispatch

import (
	"errors"
	"sync"
	"testing"
)

func strValue(s string, tags ...TypeTag) Value {
	return NewValue(s, MustChain(tags...))
}

func constHandler(s string) Handler {
	return HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		return NewValue(s, receiver.Chain()), nil
	})
}

// ---------------------------------------------------------------------------
// Resolution order
// ---------------------------------------------------------------------------

func TestDispatchChainOrder(t *testing.T) {
	// Handlers for Y and "default" but not X or Z: Y must win.
	e := NewEngine()
	if err := e.AddMethod("describe", "Y", constHandler("from Y")); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	if err := e.AddMethod("describe", TagDefault, constHandler("from default")); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}

	out, err := e.Dispatch("describe", strValue("v", "X", "Y", "Z"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if out.Payload != "from Y" {
		t.Errorf("Dispatch got %v, want handler for Y", out.Payload)
	}
}

func TestDispatchMostSpecificFirst(t *testing.T) {
	e := NewEngine()
	e.AddMethod("describe", "X", constHandler("from X"))
	e.AddMethod("describe", "Y", constHandler("from Y"))

	out, err := e.Dispatch("describe", strValue("v", "X", "Y"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if out.Payload != "from X" {
		t.Errorf("Dispatch got %v, want the most specific handler", out.Payload)
	}
}

func TestDispatchDefaultFallback(t *testing.T) {
	e := NewEngine()
	e.AddMethod("describe", TagDefault, constHandler("fallback"))

	out, err := e.Dispatch("describe", strValue("v", "X", "Y"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if out.Payload != "fallback" {
		t.Errorf("Dispatch got %v, want the default handler", out.Payload)
	}
}

func TestDispatchNoHandler(t *testing.T) {
	e := NewEngine()
	e.AddMethod("other", "X", constHandler("x"))

	_, err := e.Dispatch("describe", strValue("v", "X"))
	var nhe *NoHandlerError
	if !errors.As(err, &nhe) {
		t.Fatalf("Dispatch error = %v, want NoHandlerError", err)
	}
	if nhe.Op != "describe" {
		t.Errorf("NoHandlerError.Op = %q, want %q", nhe.Op, "describe")
	}
}

func TestDispatchArgs(t *testing.T) {
	e := NewEngine()
	e.AddMethod("concat", "text", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		s := receiver.Payload.(string)
		for _, a := range args {
			s += a.Payload.(string)
		}
		return NewValue(s, receiver.Chain()), nil
	}))

	out, err := e.Dispatch("concat", strValue("a", "text"), strValue("b", "text"), strValue("c", "text"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if out.Payload != "abc" {
		t.Errorf("Dispatch got %v, want abc", out.Payload)
	}
}

// ---------------------------------------------------------------------------
// Delegation
// ---------------------------------------------------------------------------

func TestDelegateReachesLessSpecific(t *testing.T) {
	// Handler for "b" delegates; only "a" has a real implementation.
	e := NewEngine()
	e.AddMethod("describe", "b", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		return ctx.Delegate()
	}))
	e.AddMethod("describe", "a", constHandler("from a"))

	out, err := e.Dispatch("describe", strValue("v", "b", "a"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if out.Payload != "from a" {
		t.Errorf("delegation got %v, want handler for a", out.Payload)
	}
}

func TestDelegateMonotonic(t *testing.T) {
	// A handler at position i delegating must never re-enter positions < i,
	// even when an earlier tag has a handler.
	var order []string
	e := NewEngine()
	e.AddMethod("walk", "top", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		order = append(order, "top")
		return ctx.Delegate()
	}))
	e.AddMethod("walk", "mid", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		order = append(order, "mid")
		return ctx.Delegate()
	}))
	e.AddMethod("walk", "base", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		order = append(order, "base")
		return NewValue("done", receiver.Chain()), nil
	}))

	if _, err := e.Dispatch("walk", strValue("v", "top", "mid", "base")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(order) != 3 || order[0] != "top" || order[1] != "mid" || order[2] != "base" {
		t.Errorf("delegation order = %v, want [top mid base]", order)
	}
}

func TestDelegateExhaustedSuffix(t *testing.T) {
	// Delegating past the end of the chain behaves like a fresh miss:
	// the default handler if present, otherwise NoHandlerError.
	e := NewEngine()
	e.AddMethod("describe", "only", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		return ctx.Delegate()
	}))
	e.AddMethod("describe", TagDefault, constHandler("fallback"))

	out, err := e.Dispatch("describe", strValue("v", "only"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if out.Payload != "fallback" {
		t.Errorf("exhausted Delegate got %v, want the default handler", out.Payload)
	}
}

func TestDelegateFromDefaultTerminates(t *testing.T) {
	// The default handler is the end of the line: delegating from it is a
	// NoHandlerError, never a re-entry into the default lookup.
	e := NewEngine()
	e.AddMethod("describe", TagDefault, HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		return ctx.Delegate()
	}))

	_, err := e.Dispatch("describe", strValue("v", "X"))
	var nhe *NoHandlerError
	if !errors.As(err, &nhe) {
		t.Fatalf("Delegate from default error = %v, want NoHandlerError", err)
	}
	if nhe.Op != "describe" {
		t.Errorf("NoHandlerError.Op = %q, want %q", nhe.Op, "describe")
	}
}

func TestDelegateWithFromDefaultTerminates(t *testing.T) {
	e := NewEngine()
	e.AddMethod("describe", TagDefault, HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		return ctx.DelegateWith(strValue("x", "text"))
	}))

	_, err := e.Dispatch("describe", strValue("v", "X"))
	var nhe *NoHandlerError
	if !errors.As(err, &nhe) {
		t.Errorf("DelegateWith from default error = %v, want NoHandlerError", err)
	}
}

func TestDelegateExhaustedNoDefault(t *testing.T) {
	e := NewEngine()
	e.AddMethod("describe", "only", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		return ctx.Delegate()
	}))

	_, err := e.Dispatch("describe", strValue("v", "only"))
	var nhe *NoHandlerError
	if !errors.As(err, &nhe) {
		t.Errorf("exhausted Delegate error = %v, want NoHandlerError", err)
	}
}

func TestDelegateIgnoresRetagging(t *testing.T) {
	// The continuation position lives on the context, not the value:
	// re-tagging the receiver mid-handler must not widen delegation.
	e := NewEngine()
	e.AddMethod("describe", "b", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		// A rogue handler rebuilding the receiver from scratch.
		_ = receiver.Retag(MustChain("b", "a"))
		return ctx.Delegate()
	}))
	e.AddMethod("describe", "a", constHandler("from a"))

	out, err := e.Dispatch("describe", strValue("v", "b", "a"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if out.Payload != "from a" {
		t.Errorf("Dispatch got %v, want handler for a", out.Payload)
	}
}

func TestDelegateWithArgs(t *testing.T) {
	e := NewEngine()
	e.AddMethod("join", "wrap", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		return ctx.DelegateWith(strValue("!", "text"))
	}))
	e.AddMethod("join", "text", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		return NewValue(receiver.Payload.(string)+args[0].Payload.(string), receiver.Chain()), nil
	}))

	out, err := e.Dispatch("join", strValue("hi", "wrap", "text"), strValue("?", "text"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if out.Payload != "hi!" {
		t.Errorf("DelegateWith got %v, want hi!", out.Payload)
	}
}

// ---------------------------------------------------------------------------
// Determinism and concurrency
// ---------------------------------------------------------------------------

func TestDispatchDeterminism(t *testing.T) {
	e := NewEngine()
	e.AddMethod("describe", "a", constHandler("from a"))

	first, err1 := e.Dispatch("describe", strValue("v", "a"))
	second, err2 := e.Dispatch("describe", strValue("v", "a"))
	if err1 != nil || err2 != nil {
		t.Fatalf("Dispatch failed: %v, %v", err1, err2)
	}
	if first.Payload != second.Payload {
		t.Error("repeated dispatch with identical inputs should yield identical outputs")
	}
}

func TestDispatchConcurrentReaders(t *testing.T) {
	e := NewEngine()
	e.AddMethod("describe", "b", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		return ctx.Delegate()
	}))
	e.AddMethod("describe", "a", constHandler("from a"))
	if err := e.Freeze(); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				out, err := e.Dispatch("describe", strValue("v", "b", "a"))
				if err != nil || out.Payload != "from a" {
					t.Errorf("concurrent Dispatch got (%v, %v)", out.Payload, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

// ---------------------------------------------------------------------------
// Handler wrappers
// ---------------------------------------------------------------------------

func TestHandlerWrappers(t *testing.T) {
	h0 := NewHandler0("zero", func(ctx *DispatchContext, receiver Value) (Value, error) {
		return receiver, nil
	})
	h2 := NewHandler2("two", func(ctx *DispatchContext, receiver, a, b Value) (Value, error) {
		return NewValue(a.Payload.(int)+b.Payload.(int), receiver.Chain()), nil
	})

	if HandlerName(h0) != "zero" || HandlerArity(h0) != 0 {
		t.Errorf("handler0 metadata = (%s, %d)", HandlerName(h0), HandlerArity(h0))
	}
	if HandlerName(h2) != "two" || HandlerArity(h2) != 2 {
		t.Errorf("handler2 metadata = (%s, %d)", HandlerName(h2), HandlerArity(h2))
	}

	args := []Value{NewValue(3, MustChain("int")), NewValue(4, MustChain("int"))}
	out, err := h2.Invoke(nil, NewValue(nil, MustChain("int")), args)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out.Payload != 7 {
		t.Errorf("handler2 result = %v, want 7", out.Payload)
	}

	if HandlerName(HandlerFunc(nil)) != "<anonymous>" {
		t.Error("bare HandlerFunc should be anonymous")
	}
	if HandlerArity(HandlerFunc(nil)) != -1 {
		t.Error("bare HandlerFunc should report variable arity")
	}
}

// ---------------------------------------------------------------------------
// Benchmarks
// ---------------------------------------------------------------------------

func BenchmarkDispatchDirect(b *testing.B) {
	e := NewEngine()
	e.AddMethod("describe", "a", constHandler("x"))
	e.Freeze()
	v := strValue("v", "a")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Dispatch("describe", v)
	}
}

func BenchmarkDispatchDelegated(b *testing.B) {
	e := NewEngine()
	e.AddMethod("describe", "b", HandlerFunc(func(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
		return ctx.Delegate()
	}))
	e.AddMethod("describe", "a", constHandler("x"))
	e.Freeze()
	v := strValue("v", "b", "a")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Dispatch("describe", v)
	}
}
