package hsm

// nextEvent scans the queue in order for the first event the current leaf
// state can act on and removes it. Ignored events found on the way are
// discarded; deferred ones stay where they are.
func (m *Machine) nextEvent(in *Instance, inst int) (Event, bool) {
	cur := in.current()
	st := m.chart.state(cur)

	in.mu.Lock()
	defer in.mu.Unlock()

	q := &in.queue
	var i uint8
	for i < q.fill {
		ev := q.entries[i]
		switch {
		case st.Ignored.Has(ev):
			m.trace(inst, TraceIgnore, ev, cur)
			q.removeAt(i)
			// entry i now holds the next event
		case st.Actionable.Has(ev):
			if q.insertAt <= i {
				// self emits during this dispatch land right behind it
				q.insertAt = i + 1
			}
			q.removeAt(i)
			return ev, true
		default:
			m.trace(inst, TraceDefer, ev, cur)
			i++
		}
	}
	return EventInvalid, false
}

// dispatchEvent searches the current state and then its ancestors for the
// first transition triggered by event whose guard holds, and executes it.
func (m *Machine) dispatchEvent(in *Instance, inst int, event Event) bool {
	c := m.chart
	m.trace(inst, TraceDispatch, event, in.current())

	in.source = in.current()
	for in.source != StateInvalid {
		st := c.state(in.source)
		for i := range st.Transitions {
			t := &st.Transitions[i]
			if t.Event != event {
				continue
			}
			if t.Guard != GuardInvalid {
				ok := c.Guards[t.Guard](&in.ctx)
				m.traceGuard(inst, t.Guard, event, in.source, ok)
				if !ok {
					// a false guard hides the transition
					continue
				}
			}
			m.execute(in, inst, t)
			in.source = StateInvalid
			return true
		}
		in.source = st.Parent
	}

	m.trace(inst, TraceDrop, event, in.current())
	return false
}

// execute runs a resolved transition. in.source holds the state declaring t.
func (m *Machine) execute(in *Instance, inst int, t *Transition) {
	c := m.chart

	if t.IsInternal() {
		m.runAction(in, inst, t.Steps[0])
		return
	}

	from := in.current()

	// exit from the leaf up to the declaring state
	for cur := in.current(); cur != in.source; cur = in.current() {
		st := c.state(cur)
		if st.Exit != ActionInvalid {
			m.runAction(in, inst, st.Exit)
		}
		in.setState(st.Parent)
	}

	for _, a := range t.Steps {
		m.runAction(in, inst, a)
	}

	in.setState(t.Target)
	m.initSubstates(in, inst)
	m.cleanupStateTimers(inst)

	m.trace(inst, TraceTransition, EventInvalid, in.current())

	if m.stateChangeCallback != nil {
		m.stateChangeCallback(inst, from, in.current())
	}
}

// initSubstates descends the default-child chain from the current state,
// entering each child on the way.
func (m *Machine) initSubstates(in *Instance, inst int) {
	c := m.chart
	for next := c.state(in.current()).Init; next != StateInvalid; next = c.state(next).Init {
		in.setState(next)
		if entry := c.state(next).Entry; entry != ActionInvalid {
			m.runAction(in, inst, entry)
		}
	}
}

func (m *Machine) runAction(in *Instance, inst int, a ActionID) {
	m.traceAction(inst, a, in.current())
	m.chart.Actions[a](&in.ctx)
}
