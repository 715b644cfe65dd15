package hsm

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Machine drives one or more instances of a statechart. Emit and
// EmitToSelf may be called from any goroutine; Init, Dispatch and
// DispatchAll must not run concurrently for the same instance.
type Machine struct {
	chart     *Statechart
	instances []Instance

	numInstances int
	capacity     int
	strict       bool
	locker       sync.Locker

	data    any
	logger  *slog.Logger
	tracer  Tracer
	tracing atomic.Bool

	stateChangeCallback func(inst int, from, to StateID)

	timers  map[timerKey]*timerEntry
	timerMu sync.Mutex
}

// MachineOption is a functional option for configuring a Machine
type MachineOption func(*Machine)

// WithInstances sets the number of parallel instances (channels) driven by
// the machine. The default is 1.
func WithInstances(n int) MachineOption {
	return func(m *Machine) {
		m.numInstances = n
	}
}

// WithQueueCapacity sets the per-instance event queue capacity. It defaults
// to the chart's event count, which can never overflow.
func WithQueueCapacity(n int) MachineOption {
	return func(m *Machine) {
		m.capacity = n
	}
}

// WithStrictQueue makes a queue overflow panic instead of dropping the event.
func WithStrictQueue() MachineOption {
	return func(m *Machine) {
		m.strict = true
	}
}

// WithLocker shares one critical section between all instance queues,
// e.g. a module-wide exclusive area. By default each instance has its own
// mutex.
func WithLocker(l sync.Locker) MachineOption {
	return func(m *Machine) {
		m.locker = l
	}
}

// WithLogger sets the logger for the machine
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithData sets the module data accessible via Context
func WithData(data any) MachineOption {
	return func(m *Machine) {
		m.data = data
	}
}

// WithStateChangeCallback sets a callback invoked after each external
// transition with the leaf state left and the leaf state reached.
func WithStateChangeCallback(fn func(inst int, from, to StateID)) MachineOption {
	return func(m *Machine) {
		m.stateChangeCallback = fn
	}
}

// OnStateChange sets a callback invoked after each external transition.
// Must be called before the first Dispatch.
func (m *Machine) OnStateChange(fn func(inst int, from, to StateID)) {
	m.stateChangeCallback = fn
}

// WithTracer installs a tracer and enables tracing.
func WithTracer(t Tracer) MachineOption {
	return func(m *Machine) {
		m.tracer = t
	}
}

// New validates chart and creates a machine for it. Instances must be
// initialized with Init or InitAll before use.
func New(chart *Statechart, opts ...MachineOption) (*Machine, error) {
	if chart == nil {
		return nil, errors.Mark(errors.New("nil statechart"), ErrInvalidChart)
	}
	if err := chart.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid definition")
	}

	m := &Machine{
		chart:        chart,
		numInstances: 1,
		capacity:     chart.NumEvents,
		logger:       Logger,
		timers:       make(map[timerKey]*timerEntry),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.numInstances < 1 || m.numInstances > 0xFF {
		return nil, errors.Wrapf(ErrInstanceRange, "%d instances", m.numInstances)
	}
	if m.capacity < 1 || m.capacity > MaxEvents {
		return nil, errors.Newf("queue capacity %d out of range 1..%d", m.capacity, MaxEvents)
	}
	if m.tracer != nil {
		m.tracing.Store(true)
	}

	m.instances = make([]Instance, m.numInstances)
	for i := range m.instances {
		in := &m.instances[i]
		if m.locker != nil {
			in.mu = m.locker
		} else {
			in.mu = &sync.Mutex{}
		}
		in.source = StateInvalid
		in.setState(chart.Top)
		in.ctx = Context{
			Machine:  m,
			Instance: i,
			Data:     m.data,
			Logger:   m.logger,
		}
	}

	return m, nil
}

// Chart returns the statechart the machine was built from.
func (m *Machine) Chart() *Statechart {
	return m.chart
}

// NumInstances returns the number of instances driven by the machine.
func (m *Machine) NumInstances() int {
	return m.numInstances
}

// SetTracing turns the installed tracer on or off at runtime.
func (m *Machine) SetTracing(enabled bool) {
	m.tracing.Store(enabled)
}

// Init resets an instance: it empties its queue, stops its timers and
// enters the top state and its default-child chain. It may be called again
// at any time to restart the instance.
func (m *Machine) Init(inst int) {
	m.init(inst)
}

// InitAll initializes every instance in order.
func (m *Machine) InitAll() {
	for i := range m.instances {
		m.init(i)
	}
}

// Emit queues an external event. Events already pending are not queued
// again.
func (m *Machine) Emit(inst int, event Event) {
	in := &m.instances[inst]
	if !m.usable(in, inst, event, "emit") {
		return
	}

	in.mu.Lock()
	dup := in.queue.isPending(event)
	ok := in.queue.enqueueTail(event)
	in.mu.Unlock()

	if !ok {
		m.overflow(in, inst, event)
		return
	}
	if dup {
		return
	}
	m.trace(inst, TraceEnqueue, event, in.current())
}

// EmitToSelf queues an event ahead of every event that was already pending
// when the current dispatch round started. It is meant to be called from
// actions.
func (m *Machine) EmitToSelf(inst int, event Event) {
	in := &m.instances[inst]
	if !m.usable(in, inst, event, "emit to self") {
		return
	}

	in.mu.Lock()
	dup := in.queue.isPending(event)
	ok := in.queue.enqueueAtInsertionPoint(event)
	in.mu.Unlock()

	if !ok {
		m.overflow(in, inst, event)
		return
	}
	if dup {
		return
	}
	m.trace(inst, TraceEnqueueSelf, event, in.current())
}

// Broadcast emits event to every instance.
func (m *Machine) Broadcast(event Event) {
	for i := range m.instances {
		m.Emit(i, event)
	}
}

// Dispatch processes the instance's queue until no dispatchable event is
// left. It reports whether at least one transition fired.
func (m *Machine) Dispatch(inst int) bool {
	in := &m.instances[inst]
	if !in.ready.Load() {
		m.logger.Warn("dispatch on uninitialized instance", "chart", m.chart.Name, "instance", inst)
		return false
	}

	in.mu.Lock()
	in.queue.insertAt = 0
	in.mu.Unlock()

	fired := false
	for {
		event, ok := m.nextEvent(in, inst)
		if !ok {
			return fired
		}
		if m.dispatchEvent(in, inst, event) {
			fired = true
		}
	}
}

// DispatchAll dispatches all instances repeatedly until a full pass fires no
// transition. It reports whether anything fired.
func (m *Machine) DispatchAll() bool {
	anyFired := false
	for {
		fired := false
		for i := range m.instances {
			if m.Dispatch(i) {
				fired = true
			}
		}
		if !fired {
			return anyFired
		}
		anyFired = true
	}
}

// CurrentState returns the instance's current leaf state. It is safe to call
// from any goroutine.
func (m *Machine) CurrentState(inst int) StateID {
	return m.instances[inst].current()
}

// IsInState checks if id is the current state of the instance or one of
// its ancestors.
func (m *Machine) IsInState(inst int, id StateID) bool {
	if int(id) >= len(m.chart.States) {
		return false
	}
	return m.chart.isAncestorOrSelf(id, m.instances[inst].current())
}

// SetState forces the current state without running any action. It leaves
// the queue untouched and is meant for tests and restoring snapshots.
func (m *Machine) SetState(inst int, id StateID) error {
	in := &m.instances[inst]
	if !in.ready.Load() {
		return errors.Newf("instance %d not initialized", inst)
	}
	if int(id) >= len(m.chart.States) {
		return errors.Newf("unknown state: %d", id)
	}
	if !m.chart.state(id).IsLeaf() {
		return errors.Newf("state %s is not a leaf state", m.chart.StateName(id))
	}
	in.setState(id)
	return nil
}

// Pending returns the events currently queued for the instance, in
// dispatch order.
func (m *Machine) Pending(inst int) []Event {
	in := &m.instances[inst]
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.queue.events()
}

// Dropped returns how many events the instance lost to a full queue since
// its last Init.
func (m *Machine) Dropped(inst int) uint64 {
	return m.instances[inst].dropped.Load()
}

func (m *Machine) usable(in *Instance, inst int, event Event, op string) bool {
	if !in.ready.Load() {
		m.logger.Warn(op+" on uninitialized instance", "chart", m.chart.Name, "instance", inst, "event", event)
		return false
	}
	if int(event) >= m.chart.NumEvents {
		m.logger.Warn(op+" of undefined event", "chart", m.chart.Name, "instance", inst, "event", event)
		return false
	}
	return true
}

func (m *Machine) overflow(in *Instance, inst int, event Event) {
	if m.strict {
		panic(errors.Mark(
			errors.AssertionFailedf("chart %s instance %d: event queue full (capacity %d), event %s",
				m.chart.Name, inst, m.capacity, m.chart.EventName(event)),
			ErrQueueOverflow))
	}
	in.dropped.Add(1)
	m.logger.Warn("event queue full, dropping event",
		"chart", m.chart.Name,
		"instance", inst,
		"event", m.chart.EventName(event),
		"capacity", m.capacity)
	m.trace(inst, TraceOverflow, event, in.current())
}

func (m *Machine) String() string {
	return fmt.Sprintf("hsm.Machine(%s, %d instances)", m.chart.Name, m.numInstances)
}
