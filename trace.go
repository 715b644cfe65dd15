package hsm

import (
	"context"
	"fmt"
	"log/slog"
)

// TraceKind classifies a TraceRecord.
type TraceKind uint8

const (
	TraceInit TraceKind = iota
	TraceEnqueue
	TraceEnqueueSelf
	TraceOverflow
	TraceIgnore
	TraceDefer
	TraceDispatch
	TraceGuard
	TraceAction
	TraceTransition
	TraceDrop
)

var traceKindNames = [...]string{
	TraceInit:        "init",
	TraceEnqueue:     "enqueue",
	TraceEnqueueSelf: "enqueue-self",
	TraceOverflow:    "overflow",
	TraceIgnore:      "ignore",
	TraceDefer:       "defer",
	TraceDispatch:    "dispatch",
	TraceGuard:       "guard",
	TraceAction:      "action",
	TraceTransition:  "transition",
	TraceDrop:        "drop",
}

func (k TraceKind) String() string {
	if int(k) < len(traceKindNames) {
		return traceKindNames[k]
	}
	return fmt.Sprintf("TraceKind(%d)", uint8(k))
}

// TraceRecord describes one observable step of the engine. Only the fields
// relevant to Kind are set; the others hold their invalid sentinel.
type TraceRecord struct {
	Chart    *Statechart
	Instance int
	Kind     TraceKind
	Event    Event
	State    StateID
	Action   ActionID
	Guard    GuardID
	Result   bool // guard outcome
}

func (r TraceRecord) String() string {
	c := r.Chart
	prefix := fmt.Sprintf("%s %d", c.Name, r.Instance)
	switch r.Kind {
	case TraceInit:
		return prefix + " init"
	case TraceEnqueue:
		return fmt.Sprintf("%s event %s enqueued", prefix, c.EventName(r.Event))
	case TraceEnqueueSelf:
		return fmt.Sprintf("%s event %s enqueued internally", prefix, c.EventName(r.Event))
	case TraceOverflow:
		return fmt.Sprintf("%s event %s dropped, queue full", prefix, c.EventName(r.Event))
	case TraceIgnore:
		return fmt.Sprintf("%s event %s ignored", prefix, c.EventName(r.Event))
	case TraceDefer:
		return fmt.Sprintf("%s event %s deferred", prefix, c.EventName(r.Event))
	case TraceDispatch:
		return fmt.Sprintf("%s dispatching event %s in state %s", prefix, c.EventName(r.Event), c.StateName(r.State))
	case TraceGuard:
		return fmt.Sprintf("%s %s evaluates to %t", prefix, c.GuardName(r.Guard), r.Result)
	case TraceAction:
		return fmt.Sprintf("%s %s", prefix, c.ActionName(r.Action))
	case TraceTransition:
		return fmt.Sprintf("%s transition to state %s finished", prefix, c.StateName(r.State))
	case TraceDrop:
		return fmt.Sprintf("%s event %s ignored at top state", prefix, c.EventName(r.Event))
	}
	return prefix + " " + r.Kind.String()
}

// Tracer observes engine steps. It is called synchronously, sometimes with
// the instance's queue lock held, and must not call back into the Machine.
type Tracer func(TraceRecord)

// SlogTracer renders trace records as debug lines on logger.
func SlogTracer(logger *slog.Logger) Tracer {
	if logger == nil {
		logger = Logger
	}
	return func(r TraceRecord) {
		if !logger.Enabled(context.Background(), slog.LevelDebug) {
			return
		}
		logger.Debug("hsm trace",
			"chart", r.Chart.Name,
			"instance", r.Instance,
			"kind", r.Kind.String(),
			"detail", r.String(),
		)
	}
}

// trace forwards r to the tracer when tracing is enabled.
func (m *Machine) trace(inst int, kind TraceKind, ev Event, state StateID) {
	if m.tracer == nil || !m.tracing.Load() {
		return
	}
	m.tracer(TraceRecord{
		Chart:    m.chart,
		Instance: inst,
		Kind:     kind,
		Event:    ev,
		State:    state,
		Action:   ActionInvalid,
		Guard:    GuardInvalid,
	})
}

func (m *Machine) traceAction(inst int, a ActionID, state StateID) {
	if m.tracer == nil || !m.tracing.Load() {
		return
	}
	m.tracer(TraceRecord{
		Chart:    m.chart,
		Instance: inst,
		Kind:     TraceAction,
		Event:    EventInvalid,
		State:    state,
		Action:   a,
		Guard:    GuardInvalid,
	})
}

func (m *Machine) traceGuard(inst int, g GuardID, ev Event, state StateID, result bool) {
	if m.tracer == nil || !m.tracing.Load() {
		return
	}
	m.tracer(TraceRecord{
		Chart:    m.chart,
		Instance: inst,
		Kind:     TraceGuard,
		Event:    ev,
		State:    state,
		Action:   ActionInvalid,
		Guard:    g,
		Result:   result,
	})
}
