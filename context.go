package hsm

import (
	"log/slog"
	"time"
)

// Context is passed to all actions and guards. Each instance owns one
// Context for its lifetime; callbacks must not retain it.
type Context struct {
	Machine  *Machine
	Instance int // index of the instance being driven
	Data     any // module-private data set with WithData
	Logger   *slog.Logger
}

// CurrentState returns the instance's current state. During a transition
// this is the state whose action is running, or the declaring state while
// transition steps execute.
func (c *Context) CurrentState() StateID {
	return c.Machine.CurrentState(c.Instance)
}

// IsInState checks if the given state is current or an ancestor of current
func (c *Context) IsInState(id StateID) bool {
	return c.Machine.IsInState(c.Instance, id)
}

// Emit queues an external event for this instance.
func (c *Context) Emit(event Event) {
	c.Machine.Emit(c.Instance, event)
}

// EmitToSelf queues an event that is dispatched right after the event
// currently being processed, ahead of anything queued before this round.
func (c *Context) EmitToSelf(event Event) {
	c.Machine.EmitToSelf(c.Instance, event)
}

// EmitTo queues an external event for another instance of the same machine.
func (c *Context) EmitTo(instance int, event Event) {
	c.Machine.Emit(instance, event)
}

// StartTimer starts a named timer that emits event when it fires.
// If a timer with the same name exists, it is reset.
func (c *Context) StartTimer(name string, duration time.Duration, event Event) {
	c.Machine.startTimer(c.Instance, name, duration, event, StateInvalid)
}

// StartStateTimer starts a timer that is cancelled once owner is no longer
// active after a transition.
func (c *Context) StartStateTimer(owner StateID, name string, duration time.Duration, event Event) {
	c.Machine.startTimer(c.Instance, name, duration, event, owner)
}

// StopTimer stops a timer by name. No-op if timer doesn't exist.
func (c *Context) StopTimer(name string) {
	c.Machine.StopTimer(c.Instance, name)
}

// ResetTimer stops and restarts a timer with a new duration
func (c *Context) ResetTimer(name string, duration time.Duration) {
	c.Machine.ResetTimer(c.Instance, name, duration)
}

// TimerActive checks if a timer is currently running
func (c *Context) TimerActive(name string) bool {
	return c.Machine.TimerActive(c.Instance, name)
}
