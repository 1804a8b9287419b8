package statecraft

// Raiser is an optional capability a Context may expose during action
// execution: calling Raise enqueues an internal event to be processed in
// FIFO order against the new state before the current step completes (spec
// §4.3 step 10, §9 "model as explicit in-memory FIFO"). Actions that need
// to raise an event type-assert their ctx argument:
//
//	if r, ok := ctx.(statecraft.Raiser); ok {
//		r.Raise(statecraft.Event{Type: "order.retry"})
//	}
//
// Outside of action execution (e.g. inside a Guard or Calculator) ctx is
// never a Raiser, since raising mid-guard-evaluation has no defined
// ordering.
type Raiser interface {
	Raise(evt Event)
}

// raisingContext wraps a Context with a FIFO queue for the duration of one
// action's execution. It is unexported: engine constructs one internally
// and never leaks it past the Run call it was built for.
type raisingContext struct {
	Context
	queue *[]Event
}

// NewRaisingContext is exported so the engine package (which cannot depend
// on unexported identifiers here) can wrap a Context before invoking an
// Action.
func NewRaisingContext(ctx Context, queue *[]Event) Context {
	return &raisingContext{Context: ctx, queue: queue}
}

func (r *raisingContext) Raise(evt Event) {
	*r.queue = append(*r.queue, evt)
}
