package statecraft

import "fmt"

// ConfigError is raised by the validator or compiler at compile time, never at
// runtime. It names the offending path within the raw configuration so an
// implementer can find the mistake quickly.
type ConfigError struct {
	Path    []string
	Message string
}

func (e *ConfigError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error at %s: %s", joinPath(e.Path), e.Message)
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

// BehaviorNotFound is raised when a named action/guard/calculator/event/result
// cannot be resolved in the BehaviorRegistry.
type BehaviorNotFound struct {
	Kind string // "action", "guard", "calculator", "event", "result"
	Name string
}

func (e *BehaviorNotFound) Error() string {
	return fmt.Sprintf("%s %q not registered", e.Kind, e.Name)
}

// MissingContext is raised when a behavior's declared required context is
// absent or of the wrong type.
type MissingContext struct {
	Behavior string
	Key      string
	Reason   string
}

func (e *MissingContext) Error() string {
	return fmt.Sprintf("behavior %q requires context %q: %s", e.Behavior, e.Key, e.Reason)
}

// NoTransition describes an event that no state handles. Unhandled events
// are ignored silently: no engine or Machine code path returns it, and
// there is no option that turns it on.
type NoTransition struct {
	State string
	Event string
}

func (e *NoTransition) Error() string {
	return fmt.Sprintf("no transition for event %q from state %q", e.Event, e.State)
}

// ValidationError aggregates failing validation-guard messages, keyed by the
// event type that triggered them. It is only ever returned after the event
// log write has completed.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

// AlreadyRunning is raised when the ConcurrencyGate fails to acquire the lock
// for a root event id within its bounded timeout.
type AlreadyRunning struct {
	RootEventID string
}

func (e *AlreadyRunning) Error() string {
	return fmt.Sprintf("machine %q is already running", e.RootEventID)
}

// RestoreFailure is raised when neither the active log nor the archive has
// any record for a root event id, or the archive blob is corrupted.
type RestoreFailure struct {
	RootEventID string
	Reason      string
}

func (e *RestoreFailure) Error() string {
	return fmt.Sprintf("cannot restore %q: %s", e.RootEventID, e.Reason)
}

// AlwaysLoopExceeded is raised when the @always fixpoint in the transition
// engine does not settle within MaxAlwaysIterations consecutive eventless
// transitions.
type AlwaysLoopExceeded struct {
	MachineID string
	Value     []string
}

func (e *AlwaysLoopExceeded) Error() string {
	return fmt.Sprintf("machine %q: @always did not settle after bound, value=%v", e.MachineID, e.Value)
}
