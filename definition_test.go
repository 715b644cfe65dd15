package hsm

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the names of actions in the order they run.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) action(name string) Action {
	return func(*Context) {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
	}
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := r.calls
	r.calls = nil
	return calls
}

type deviceEvents struct {
	power, work, step, done, tick Event
}

// deviceChart builds
//
//	Top
//	├── Off            defers work
//	└── On
//	    ├── Idle
//	    └── Busy
//	        ├── B1
//	        └── B2
func deviceChart(t *testing.T, rec *recorder) (*Statechart, deviceEvents) {
	t.Helper()

	d := NewDefinition("Device")
	ev := deviceEvents{
		power: d.Event("power"),
		work:  d.Event("work"),
		step:  d.Event("step"),
		done:  d.Event("done"),
		tick:  d.Event("tick"),
	}

	state := func(name string, opts ...StateOption) {
		opts = append(opts, WithEntry(rec.action("enter "+name)), WithExit(rec.action("exit "+name)))
		d.State(name, opts...)
	}

	d.State("Top", WithDefaultChild("Off"))
	state("Off")
	state("On", WithDefaultChild("Idle"))
	state("Idle", WithParent("On"))
	state("Busy", WithParent("On"), WithDefaultChild("B1"))
	state("B1", WithParent("Busy"))
	state("B2", WithParent("Busy"))
	d.Top("Top")

	d.Transition("Off", ev.power, "On", WithAction(rec.action("power up")))
	d.Defer("Off", ev.work)
	d.Transition("On", ev.power, "Off", WithAction(rec.action("power down")))
	d.InternalTransition("On", ev.tick, rec.action("tick"))
	d.Transition("Idle", ev.work, "B2")
	d.Transition("Busy", ev.done, "Idle")
	d.Transition("B1", ev.step, "B1")
	d.Transition("B2", ev.step, "Busy")

	c, err := d.Build()
	require.NoError(t, err)
	return c, ev
}

func stateByName(t *testing.T, c *Statechart, name string) StateID {
	t.Helper()
	for i, n := range c.StateNames {
		if n == name {
			return StateID(i)
		}
	}
	t.Fatalf("no state %q in chart %s", name, c.Name)
	return StateInvalid
}

func stepNames(c *Statechart, tr Transition) []string {
	names := []string{}
	for _, a := range tr.Steps {
		names = append(names, c.ActionName(a))
	}
	return names
}

func TestDefinitionHierarchy(t *testing.T) {
	c, _ := deviceChart(t, &recorder{})

	top := stateByName(t, c, "Top")
	on := stateByName(t, c, "On")
	busy := stateByName(t, c, "Busy")
	b1 := stateByName(t, c, "B1")

	assert.Equal(t, top, c.Top)
	assert.Equal(t, StateInvalid, c.States[top].Parent)
	assert.Equal(t, top, c.States[on].Parent)
	assert.Equal(t, busy, c.States[b1].Parent)
	assert.Equal(t, b1, c.States[busy].Init)
	assert.True(t, c.States[b1].IsLeaf())
	assert.Equal(t, stateByName(t, c, "Off"), c.DefaultLeaf(top))
	assert.Equal(t, stateByName(t, c, "Idle"), c.DefaultLeaf(on))

	assert.Equal(t, "OnEntry", c.ActionName(c.States[on].Entry))
	assert.Equal(t, "OnExit", c.ActionName(c.States[on].Exit))
	assert.Equal(t, ActionInvalid, c.States[top].Entry)
}

func TestDefinitionSteps(t *testing.T) {
	c, ev := deviceChart(t, &recorder{})

	tests := []struct {
		from   string
		event  Event
		target string
		steps  []string
	}{
		// sibling: exit source, action, enter target
		{"Off", ev.power, "On", []string{"OffExit", "OffAction1", "OnEntry"}},
		{"On", ev.power, "Off", []string{"OnExit", "OnAction1", "OffEntry"}},
		// into a nested sibling
		{"Idle", ev.work, "B2", []string{"IdleExit", "BusyEntry", "B2Entry"}},
		{"Busy", ev.done, "Idle", []string{"BusyExit", "IdleEntry"}},
		// self transition leaves and re-enters
		{"B1", ev.step, "B1", []string{"B1Exit", "B1Entry"}},
		// to an ancestor: the ancestor is left and re-entered
		{"B2", ev.step, "Busy", []string{"B2Exit", "BusyExit", "BusyEntry"}},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.target, func(t *testing.T) {
			st := c.States[stateByName(t, c, tt.from)]
			var found *Transition
			for i := range st.Transitions {
				if st.Transitions[i].Event == tt.event {
					found = &st.Transitions[i]
					break
				}
			}
			require.NotNil(t, found)
			assert.Equal(t, stateByName(t, c, tt.target), found.Target)
			assert.Equal(t, tt.steps, stepNames(c, *found))
		})
	}

	on := c.States[stateByName(t, c, "On")]
	require.Len(t, on.Transitions, 2)
	internal := on.Transitions[1]
	assert.True(t, internal.IsInternal())
	assert.Equal(t, []string{"OnAction2"}, stepNames(c, internal))
}

func TestDefinitionMasks(t *testing.T) {
	c, ev := deviceChart(t, &recorder{})

	tests := []struct {
		state      string
		actionable EventMask
		ignored    EventMask
	}{
		{"Off", MaskOf(ev.power), MaskOf(ev.step, ev.done, ev.tick)},
		{"Idle", MaskOf(ev.work, ev.power, ev.tick), MaskOf(ev.step, ev.done)},
		{"B1", MaskOf(ev.step, ev.done, ev.power, ev.tick), MaskOf(ev.work)},
		{"B2", MaskOf(ev.step, ev.done, ev.power, ev.tick), MaskOf(ev.work)},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			st := c.States[stateByName(t, c, tt.state)]
			assert.Equal(t, tt.actionable, st.Actionable, "actionable")
			assert.Equal(t, tt.ignored, st.Ignored, "ignored")
		})
	}

	// work is neither ignored nor actionable in Off
	off := c.States[stateByName(t, c, "Off")]
	assert.False(t, off.Actionable.Has(ev.work))
	assert.False(t, off.Ignored.Has(ev.work))
}

func TestDefinitionMasksNearestWins(t *testing.T) {
	d := NewDefinition("Nearest")
	e := d.Event("e")
	c, err := d.
		State("Top", WithDefaultChild("P")).
		State("P", WithDefaultChild("A")).
		State("A", WithParent("P")).
		State("B", WithParent("P"), WithDefaultChild("C")).
		State("C", WithParent("B")).
		Top("Top").
		Defer("P", e).
		Transition("A", e, "B").
		Defer("C", e).
		Transition("Top", e, "P").
		Build()
	require.NoError(t, err)

	a := c.States[stateByName(t, c, "A")]
	assert.True(t, a.Actionable.Has(e), "A's own transition overrides P's deferral")
	assert.False(t, a.Ignored.Has(e))
	cs := c.States[stateByName(t, c, "C")]
	assert.False(t, cs.Actionable.Has(e), "deferred on C")
	assert.False(t, cs.Ignored.Has(e))
	p := c.States[stateByName(t, c, "P")]
	assert.False(t, p.Actionable.Has(e), "P defers before Top handles")

	m := newMachine(t, c)
	require.Equal(t, stateByName(t, c, "A"), m.CurrentState(0))
	m.Emit(0, e)
	require.True(t, m.Dispatch(0))
	assert.Equal(t, stateByName(t, c, "C"), m.CurrentState(0))

	m.Emit(0, e)
	assert.False(t, m.Dispatch(0))
	assert.Equal(t, []Event{e}, m.Pending(0))
}

func TestDefinitionGuardNames(t *testing.T) {
	d := NewDefinition("Guards")
	evGo := d.Event("go")
	c, err := d.
		State("Top", WithDefaultChild("A")).
		State("A").
		State("B").
		Top("Top").
		Transition("A", evGo, "B", WithGuard(func(*Context) bool { return false })).
		Transition("A", evGo, "A").
		Build()
	require.NoError(t, err)

	a := c.States[stateByName(t, c, "A")]
	require.Len(t, a.Transitions, 2)
	assert.Equal(t, "AGuard1", c.GuardName(a.Transitions[0].Guard))
	assert.Equal(t, GuardInvalid, a.Transitions[1].Guard)
	assert.Equal(t, []string{"go"}, c.EventNames)
	assert.Equal(t, evGo, d.Event("go"))
}

func TestDefinitionErrors(t *testing.T) {
	noop := func(*Context) {}

	tests := []struct {
		name  string
		build func(d *Definition)
	}{
		{"no top", func(d *Definition) {
			d.State("A")
		}},
		{"undefined top", func(d *Definition) {
			d.State("A").Top("Top")
		}},
		{"top with parent", func(d *Definition) {
			d.State("X").State("Top", WithParent("X")).Top("Top")
		}},
		{"duplicate state", func(d *Definition) {
			d.State("Top").State("Top").Top("Top")
		}},
		{"unnamed state", func(d *Definition) {
			d.State("").Top("Top")
		}},
		{"undefined parent", func(d *Definition) {
			d.State("Top", WithDefaultChild("A")).State("A", WithParent("Nope")).Top("Top")
		}},
		{"parent cycle", func(d *Definition) {
			d.State("Top").State("A", WithParent("B")).State("B", WithParent("A")).Top("Top")
		}},
		{"composite without default child", func(d *Definition) {
			d.State("Top").State("A").Top("Top")
		}},
		{"default child not a child", func(d *Definition) {
			d.State("Top", WithDefaultChild("A")).
				State("A", WithDefaultChild("B")).
				State("A1", WithParent("A")).
				State("B").
				Top("Top")
		}},
		{"undefined default child", func(d *Definition) {
			d.State("Top", WithDefaultChild("Nope")).State("A").Top("Top")
		}},
		{"transition from undefined state", func(d *Definition) {
			e := d.Event("e")
			d.State("Top", WithDefaultChild("A")).State("A").Top("Top").Transition("Nope", e, "A")
		}},
		{"transition to undefined state", func(d *Definition) {
			e := d.Event("e")
			d.State("Top", WithDefaultChild("A")).State("A").Top("Top").Transition("A", e, "Nope")
		}},
		{"undeclared event", func(d *Definition) {
			d.Event("e")
			d.State("Top", WithDefaultChild("A")).State("A").Top("Top").Transition("A", 3, "A")
		}},
		{"internal without action", func(d *Definition) {
			e := d.Event("e")
			d.State("Top", WithDefaultChild("A")).State("A").Top("Top").InternalTransition("A", e, nil)
		}},
		{"defer on undefined state", func(d *Definition) {
			e := d.Event("e")
			d.State("Top", WithDefaultChild("A")).State("A").Top("Top").Defer("Nope", e)
		}},
		{"too many events", func(d *Definition) {
			for i := 0; i <= MaxEvents; i++ {
				d.Event(string(rune('a' + i)))
			}
			d.State("Top").Top("Top")
		}},
		{"handle and defer in one state", func(d *Definition) {
			e := d.Event("e")
			d.State("Top", WithDefaultChild("A")).State("A").State("B").Top("Top").
				Defer("A", e).Transition("A", e, "B")
		}},
		{"no events", func(d *Definition) {
			d.State("Top", WithEntry(noop)).Top("Top")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDefinition("Broken")
			tt.build(d)
			_, err := d.Build()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidChart), "got %v", err)
		})
	}
}
