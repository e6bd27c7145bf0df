package dispatch

// Handler is a single-dispatch operation implementation. The context is the
// only transport for delegation state; handlers must not stash it beyond
// the call.
type Handler interface {
	Invoke(ctx *DispatchContext, receiver Value, args []Value) (Value, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx *DispatchContext, receiver Value, args []Value) (Value, error)

func (f HandlerFunc) Invoke(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
	return f(ctx, receiver, args)
}

// Handler0Func is a handler taking no arguments beyond the receiver.
type Handler0Func func(ctx *DispatchContext, receiver Value) (Value, error)

// Handler1Func is a handler taking one argument.
type Handler1Func func(ctx *DispatchContext, receiver Value, arg1 Value) (Value, error)

// Handler2Func is a handler taking two arguments.
type Handler2Func func(ctx *DispatchContext, receiver Value, arg1, arg2 Value) (Value, error)

// ---------------------------------------------------------------------------
// Arity-specialized handler wrappers
// ---------------------------------------------------------------------------

type handler0 struct {
	name string
	fn   Handler0Func
}

func (h *handler0) Invoke(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
	return h.fn(ctx, receiver)
}

func (h *handler0) Name() string { return h.name }
func (h *handler0) Arity() int   { return 0 }

type handler1 struct {
	name string
	fn   Handler1Func
}

func (h *handler1) Invoke(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
	return h.fn(ctx, receiver, args[0])
}

func (h *handler1) Name() string { return h.name }
func (h *handler1) Arity() int   { return 1 }

type handler2 struct {
	name string
	fn   Handler2Func
}

func (h *handler2) Invoke(ctx *DispatchContext, receiver Value, args []Value) (Value, error) {
	return h.fn(ctx, receiver, args[0], args[1])
}

func (h *handler2) Name() string { return h.name }
func (h *handler2) Arity() int   { return 2 }

// ---------------------------------------------------------------------------
// Factory functions
// ---------------------------------------------------------------------------

// NewHandler0 creates a named zero-argument handler.
func NewHandler0(name string, fn Handler0Func) Handler {
	return &handler0{name: name, fn: fn}
}

// NewHandler1 creates a named one-argument handler.
func NewHandler1(name string, fn Handler1Func) Handler {
	return &handler1{name: name, fn: fn}
}

// NewHandler2 creates a named two-argument handler.
func NewHandler2(name string, fn Handler2Func) Handler {
	return &handler2{name: name, fn: fn}
}

// ---------------------------------------------------------------------------
// Handler metadata (optional)
// ---------------------------------------------------------------------------

// NamedHandler is implemented by handlers that carry a name.
type NamedHandler interface {
	Handler
	Name() string
}

// ArityHandler is implemented by handlers with a fixed arity.
type ArityHandler interface {
	Handler
	Arity() int
}

// HandlerName returns a handler's name if it implements NamedHandler.
func HandlerName(h Handler) string {
	if nh, ok := h.(NamedHandler); ok {
		return nh.Name()
	}
	return "<anonymous>"
}

// HandlerArity returns a handler's arity, or -1 for variable arity.
func HandlerArity(h Handler) int {
	if ah, ok := h.(ArityHandler); ok {
		return ah.Arity()
	}
	return -1
}
