package hsm

import (
	"sync"
	"sync/atomic"
)

// Instance is the mutable state of one running copy of a statechart.
type Instance struct {
	// mu guards queue. It is never held while actions or guards run.
	mu    sync.Locker
	queue eventQueue

	state atomic.Uint32 // StateID of the current leaf state
	// source is where the winning transition was found. Only meaningful
	// within one dispatch step.
	source StateID

	ready   atomic.Bool
	dropped atomic.Uint64

	ctx Context
}

func (in *Instance) current() StateID {
	return StateID(in.state.Load())
}

func (in *Instance) setState(s StateID) {
	in.state.Store(uint32(s))
}

// init resets the instance and enters the chart's initial configuration.
func (m *Machine) init(inst int) {
	in := &m.instances[inst]
	c := m.chart

	m.stopInstanceTimers(inst)

	in.setState(c.Top)
	in.source = StateInvalid
	in.mu.Lock()
	in.queue.reset(m.capacity)
	in.mu.Unlock()
	in.dropped.Store(0)
	in.ready.Store(true)

	m.trace(inst, TraceInit, EventInvalid, c.Top)

	if top := c.state(c.Top); top.Entry != ActionInvalid {
		m.runAction(in, inst, top.Entry)
	}
	m.initSubstates(in, inst)
}
