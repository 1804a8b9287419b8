// Package statecraft wires a compiled machine definition to an
// event-sourced transition engine, an append-only event log, an optional
// archival gateway, and an optional concurrency gate.
package statecraft

import (
	"context"
	"fmt"
	"time"

	core "github.com/statecraftio/statecraft/pkg/statecraft"
)

// EventLog is the subset of eventlog.Store the facade needs, declared here
// (rather than imported) so this root package never imports
// pkg/statecraft/eventlog — callers wire a concrete *eventlog.SQLStore or
// *eventlog.MemoryStore in.
type EventLog interface {
	Append(ctx context.Context, events []core.MachineEvent) error
	Load(ctx context.Context, rootEventID string) ([]core.MachineEvent, error)
}

// Restorer rebuilds a State from a log, with transparent archive restore
// (pkg/statecraft/restore.Restorer satisfies this).
type Restorer interface {
	Restore(ctx context.Context, def *core.MachineDefinition, rootEventID string) (*core.State, error)
}

// ArchivalGateway is the subset of archive.Service the facade needs to
// transparently resume an archived instance on its next event.
type ArchivalGateway interface {
	RestoreAndDelete(ctx context.Context, rootEventID string) error
}

// ConcurrencyGate is the subset of lock.Gate the facade needs.
type ConcurrencyGate interface {
	Acquire(ctx context.Context, rootEventID string) (release func(), err error)
}

// StepEngine is the subset of engine.Engine the facade needs.
type StepEngine interface {
	Step(cur *core.State, evt core.Event) (*core.State, error)
}

// Machine wires a compiled MachineDefinition to an event-sourced transition
// engine, an append-only event log, an optional archival gateway, and an
// optional concurrency gate. Send's control flow: acquire lock → step →
// log append → validation-guard scan → release lock.
//
// Machine.Send is the single public entry point.
type Machine struct {
	Def      *core.MachineDefinition
	Engine   StepEngine
	Log      EventLog
	Restorer Restorer

	Archive ArchivalGateway // nil disables transparent archive-resume
	Gate    ConcurrencyGate // nil disables locking (single-writer callers only)

	Logger  Logger
	Metrics MetricsRecorder
}

// Logger is the minimal logging surface Machine uses, satisfied by
// observability.Logger without this package importing it.
type Logger interface {
	Info(msg string, fields ...any)
	Error(msg string, fields ...any)
}

// MetricsRecorder is the minimal metrics surface Machine uses, satisfied by
// *observability.Metrics without this package importing it.
type MetricsRecorder interface {
	RecordStep(machineID, outcome string, d time.Duration)
}

// Option configures a Machine using the functional-options pattern.
type Option func(*Machine)

// WithArchive installs transparent archive-resume.
func WithArchive(a ArchivalGateway) Option { return func(m *Machine) { m.Archive = a } }

// WithGate installs a concurrency gate.
func WithGate(g ConcurrencyGate) Option { return func(m *Machine) { m.Gate = g } }

// WithLogger installs a logger.
func WithLogger(l Logger) Option { return func(m *Machine) { m.Logger = l } }

// WithMetrics installs a metrics recorder.
func WithMetrics(mr MetricsRecorder) Option { return func(m *Machine) { m.Metrics = mr } }

// NewMachine wires def, an engine, and a log into a ready Machine.
func NewMachine(def *core.MachineDefinition, engine StepEngine, log EventLog, restorer Restorer, opts ...Option) *Machine {
	m := &Machine{Def: def, Engine: engine, Log: log, Restorer: restorer}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send processes one event against the instance identified by rootEventID,
// persists the resulting event batch, and returns the new State.
//
// If rootEventID is empty, a fresh instance id is expected to already be
// baked into the caller's event correlation; Send still
// functions, it simply never checks for archived history or an existing
// running lock.
func (m *Machine) Send(ctx context.Context, rootEventID string, event core.Event) (*core.State, error) {
	started := time.Now()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if rootEventID != "" && m.Archive != nil {
		if err := m.Archive.RestoreAndDelete(ctx, rootEventID); err != nil {
			if _, ok := err.(*core.RestoreFailure); !ok {
				m.recordOutcome(event, "error", started)
				return nil, fmt.Errorf("statecraft: resume archived instance: %w", err)
			}
		}
	}

	var release func()
	if rootEventID != "" && m.Gate != nil {
		r, err := m.Gate.Acquire(ctx, rootEventID)
		if err != nil {
			m.recordOutcome(event, "error", started)
			return nil, err
		}
		release = r
	}
	if release != nil {
		defer release()
	}

	cur, err := m.currentState(ctx, rootEventID)
	if err != nil {
		m.recordOutcome(event, "error", started)
		return nil, err
	}

	next, err := m.Engine.Step(cur, event)
	if err != nil {
		m.recordOutcome(event, "error", started)
		return nil, err
	}

	// newRecords is the suffix of next.History appended by this step; cur's
	// own history (already durable from prior sends) precedes it.
	newRecords := next.History[len(cur.History):]

	if len(newRecords) > 0 {
		if event.Transactional {
			// SQLStore.Append already wraps its batch in a single DB
			// transaction; Transactional only documents the caller's
			// intent here, since the facade has no DB handle of its own
			// to additionally scope.
			for i := range newRecords {
				if newRecords[i].Meta == nil {
					newRecords[i].Meta = map[string]any{}
				}
				newRecords[i].Meta["transactional"] = true
			}
		}
		if err := m.Log.Append(ctx, next.History); err != nil {
			m.recordOutcome(event, "error", started)
			return nil, fmt.Errorf("statecraft: append event log: %w", err)
		}
	}

	if verr := m.scanValidationFailures(newRecords, event.Type); verr != nil {
		m.recordOutcome(event, "rejected", started)
		return next, verr
	}

	m.recordOutcome(event, "transitioned", started)
	if m.Logger != nil {
		m.Logger.Info("statecraft: step complete", "machine_id", m.Def.ID, "root_event_id", rootEventID, "event_type", event.Type)
	}
	return next, nil
}

// currentState loads and rebuilds the instance's State from the log (via
// Restorer; when the Restorer reports a RestoreFailure because there are no
// records yet, currentState seeds the initial leaves itself), or a fresh
// initial State when rootEventID is empty (a one-shot,
// unpersisted machine — used by tests and by Visualizer callers that only
// want to dry-run a definition).
func (m *Machine) currentState(ctx context.Context, rootEventID string) (*core.State, error) {
	if rootEventID == "" {
		return initialState(m.Def), nil
	}
	state, err := m.Restorer.Restore(ctx, m.Def, rootEventID)
	if err != nil {
		if _, ok := err.(*core.RestoreFailure); ok {
			// No prior records under this rootEventID: this is the
			// instance's first event, not a restore failure.
			return initialState(m.Def), nil
		}
		return nil, err
	}
	return state, nil
}

func initialState(def *core.MachineDefinition) *core.State {
	return &core.State{
		Value:                  append([]string(nil), def.Root.InitialLeaves...),
		Context:                core.NewMapContext(nil),
		CurrentStateDefinition: def.Root,
	}
}

// scanValidationFailures runs after the log write completes: it scans the
// newly appended events (never the instance's prior history) for
// "<machineId>.guard.<name>.fail" records whose guard is registered as a
// validation guard, and surface them as one aggregated ValidationError.
func (m *Machine) scanValidationFailures(newRecords []core.MachineEvent, triggeringEventType string) error {
	fields := map[string]string{}
	for _, evt := range newRecords {
		name, ok := core.GuardNameFromFailEventType(m.Def.ID, evt.Type)
		if !ok {
			continue
		}
		if !m.Def.Behavior.IsValidationGuard(name) {
			continue
		}
		message := "validation failed"
		if msg, ok := evt.Payload[triggeringEventType].(string); ok {
			message = msg
		} else {
			for _, v := range evt.Payload {
				if s, ok := v.(string); ok {
					message = s
					break
				}
			}
		}
		fields[triggeringEventType] = message
	}
	if len(fields) == 0 {
		return nil
	}
	return &core.ValidationError{Fields: fields}
}

func (m *Machine) recordOutcome(event core.Event, outcome string, started time.Time) {
	if m.Metrics != nil {
		m.Metrics.RecordStep(m.Def.ID, outcome, time.Since(started))
	}
	if m.Logger != nil && outcome == "error" {
		m.Logger.Error("statecraft: step failed", "event_type", event.Type, "outcome", outcome)
	}
}
