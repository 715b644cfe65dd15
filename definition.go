package hsm

import (
	"strconv"
)

// Definition collects states, events and transitions by name and compiles
// them into a Statechart. States and transitions may be declared in any
// order; names are resolved by Build.
type Definition struct {
	name string

	states      []*stateDef
	stateByName map[string]StateID

	events      []string
	eventByName map[string]Event

	top string
	err error
}

type stateDef struct {
	name         string
	parent       string
	defaultChild string
	entry        Action
	exit         Action
	deferred     EventMask
	transitions  []transitionDef
}

type transitionDef struct {
	event    Event
	target   string
	internal bool
	guard    Guard
	action   Action
}

// StateOption configures a state
type StateOption func(*stateDef)

// TransitionOption configures a transition
type TransitionOption func(*transitionDef)

// WithParent sets the parent state for hierarchical FSMs. States without
// a parent become children of the top state.
func WithParent(parent string) StateOption {
	return func(s *stateDef) {
		s.parent = parent
	}
}

// WithDefaultChild sets the child entered when a transition targets this
// state. Every composite state needs one.
func WithDefaultChild(child string) StateOption {
	return func(s *stateDef) {
		s.defaultChild = child
	}
}

// WithEntry sets the entry action
func WithEntry(fn Action) StateOption {
	return func(s *stateDef) {
		s.entry = fn
	}
}

// WithExit sets the exit action
func WithExit(fn Action) StateOption {
	return func(s *stateDef) {
		s.exit = fn
	}
}

// WithGuard sets a guard condition for the transition
func WithGuard(fn Guard) TransitionOption {
	return func(t *transitionDef) {
		t.guard = fn
	}
}

// WithAction sets an action to execute during the transition
func WithAction(fn Action) TransitionOption {
	return func(t *transitionDef) {
		t.action = fn
	}
}

// NewDefinition creates a new statechart definition builder
func NewDefinition(name string) *Definition {
	return &Definition{
		name:        name,
		stateByName: make(map[string]StateID),
		eventByName: make(map[string]Event),
	}
}

// Event declares an event and returns its id. Declaring a name twice
// returns the same id.
func (d *Definition) Event(name string) Event {
	if e, ok := d.eventByName[name]; ok {
		return e
	}
	if len(d.events) >= MaxEvents {
		d.fail(chartErrorf("chart %q: event %q exceeds the limit of %d events", d.name, name, MaxEvents))
		return EventInvalid
	}
	e := Event(len(d.events))
	d.events = append(d.events, name)
	d.eventByName[name] = e
	return e
}

// State adds a state to the definition
func (d *Definition) State(name string, opts ...StateOption) *Definition {
	if name == "" {
		d.fail(chartErrorf("chart %q: state without a name", d.name))
		return d
	}
	if _, ok := d.stateByName[name]; ok {
		d.fail(chartErrorf("chart %q: state %q declared twice", d.name, name))
		return d
	}
	if len(d.states) >= int(StateInvalid) {
		d.fail(chartErrorf("chart %q: state %q exceeds state index range", d.name, name))
		return d
	}
	s := &stateDef{name: name}
	for _, opt := range opts {
		opt(s)
	}
	d.stateByName[name] = StateID(len(d.states))
	d.states = append(d.states, s)
	return d
}

// Top names the outermost state. It must not have a parent.
func (d *Definition) Top(name string) *Definition {
	d.top = name
	return d
}

// Transition adds an external transition from one state to another. The
// transition is also taken when from is an ancestor of the current state
// and no inner state handles the event.
func (d *Definition) Transition(from string, event Event, to string, opts ...TransitionOption) *Definition {
	t := transitionDef{event: event, target: to}
	for _, opt := range opts {
		opt(&t)
	}
	return d.addTransition(from, t)
}

// InternalTransition adds a transition that runs action without leaving
// or entering any state.
func (d *Definition) InternalTransition(from string, event Event, action Action, opts ...TransitionOption) *Definition {
	t := transitionDef{event: event, internal: true}
	for _, opt := range opts {
		opt(&t)
	}
	t.action = action
	if action == nil {
		d.fail(chartErrorf("chart %q: internal transition of %q on %s has no action", d.name, from, d.eventName(event)))
		return d
	}
	return d.addTransition(from, t)
}

// Defer keeps events queued while state, or one of its descendants, is
// current.
func (d *Definition) Defer(state string, events ...Event) *Definition {
	s := d.lookup(state)
	if s == nil {
		d.fail(chartErrorf("chart %q: defer on undefined state %q", d.name, state))
		return d
	}
	s.deferred |= MaskOf(events...)
	return d
}

func (d *Definition) addTransition(from string, t transitionDef) *Definition {
	s := d.lookup(from)
	if s == nil {
		d.fail(chartErrorf("chart %q: transition from undefined state %q", d.name, from))
		return d
	}
	if t.event == EventInvalid || int(t.event) >= len(d.events) {
		d.fail(chartErrorf("chart %q: transition from %q on undeclared event %d", d.name, from, t.event))
		return d
	}
	s.transitions = append(s.transitions, t)
	return d
}

func (d *Definition) lookup(name string) *stateDef {
	id, ok := d.stateByName[name]
	if !ok {
		return nil
	}
	return d.states[id]
}

func (d *Definition) eventName(e Event) string {
	if int(e) < len(d.events) {
		return d.events[e]
	}
	return "#" + strconv.Itoa(int(e))
}

// fail records the first declaration error; Build reports it.
func (d *Definition) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Build compiles the definition into a validated Statechart.
func (d *Definition) Build() (*Statechart, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.top == "" {
		return nil, chartErrorf("chart %q: no top state defined", d.name)
	}
	top, ok := d.stateByName[d.top]
	if !ok {
		return nil, chartErrorf("chart %q: top state %q not defined", d.name, d.top)
	}
	if p := d.states[top].parent; p != "" {
		return nil, chartErrorf("chart %q: top state %q has parent %q", d.name, d.top, p)
	}

	c := &Statechart{
		Name:       d.name,
		States:     make([]State, len(d.states)),
		Top:        top,
		NumEvents:  len(d.events),
		StateNames: make([]string, len(d.states)),
		EventNames: append([]string(nil), d.events...),
	}

	// Hierarchy first; everything below walks parent chains.
	for i, s := range d.states {
		st := &c.States[i]
		c.StateNames[i] = s.name
		st.Parent = StateInvalid
		st.Init = StateInvalid
		st.Entry = ActionInvalid
		st.Exit = ActionInvalid

		if StateID(i) == top {
			continue
		}
		if s.parent == "" {
			st.Parent = top
			continue
		}
		parent, ok := d.stateByName[s.parent]
		if !ok {
			return nil, chartErrorf("chart %q: state %q references undefined parent %q", d.name, s.name, s.parent)
		}
		st.Parent = parent
	}
	for i := range d.states {
		if err := d.checkParentCycle(c, StateID(i)); err != nil {
			return nil, err
		}
	}

	hasChildren := make([]bool, len(d.states))
	for i := range c.States {
		if p := c.States[i].Parent; p != StateInvalid {
			hasChildren[p] = true
		}
	}
	for i, s := range d.states {
		if s.defaultChild == "" {
			if hasChildren[i] {
				return nil, chartErrorf("chart %q: composite state %q has no default child", d.name, s.name)
			}
			continue
		}
		child, ok := d.stateByName[s.defaultChild]
		if !ok {
			return nil, chartErrorf("chart %q: state %q references undefined default child %q",
				d.name, s.name, s.defaultChild)
		}
		if c.States[child].Parent != StateID(i) {
			return nil, chartErrorf("chart %q: default child %q is not a child of %q", d.name, s.defaultChild, s.name)
		}
		c.States[i].Init = child
	}

	// Action and guard tables, in declaration order.
	for i, s := range d.states {
		st := &c.States[i]
		if s.entry != nil {
			st.Entry = c.addAction(s.name+"Entry", s.entry)
		}
		if s.exit != nil {
			st.Exit = c.addAction(s.name+"Exit", s.exit)
		}
	}
	for i, s := range d.states {
		from := StateID(i)
		st := &c.States[i]
		st.Transitions = make([]Transition, 0, len(s.transitions))
		for n, td := range s.transitions {
			t := Transition{
				Event:  td.event,
				Guard:  GuardInvalid,
				Target: StateInvalid,
			}
			if td.guard != nil {
				t.Guard = c.addGuard(s.name+"Guard"+strconv.Itoa(n+1), td.guard)
			}
			action := ActionInvalid
			if td.action != nil {
				action = c.addAction(s.name+"Action"+strconv.Itoa(n+1), td.action)
			}

			if td.internal {
				t.Steps = []ActionID{action}
			} else {
				target, ok := d.stateByName[td.target]
				if !ok {
					return nil, chartErrorf("chart %q: transition from %q to undefined state %q",
						d.name, s.name, td.target)
				}
				t.Target = target
				t.Steps = c.transitionSteps(from, target, action)
			}
			st.Transitions = append(st.Transitions, t)
		}
	}

	// Masks are inherited down the hierarchy; the nearest state that
	// handles or defers an event decides it.
	all := allEvents(c.NumEvents)
	for i := range c.States {
		var actionable, deferred EventMask
		for s := StateID(i); s != StateInvalid; s = c.States[s].Parent {
			handled := c.handledBy(s)
			if both := handled & d.states[s].deferred; both != 0 {
				return nil, chartErrorf("chart %q: state %q both handles and defers %s",
					d.name, d.states[s].name, d.eventName(both.First()))
			}
			open := all &^ actionable &^ deferred
			actionable |= handled & open
			deferred |= d.states[s].deferred & open
		}
		c.States[i].Actionable = actionable
		c.States[i].Ignored = all &^ actionable &^ deferred
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Statechart) handledBy(s StateID) EventMask {
	var m EventMask
	for _, t := range c.States[s].Transitions {
		m |= t.Event.Mask()
	}
	return m
}

func (d *Definition) checkParentCycle(c *Statechart, id StateID) error {
	visited := make(map[StateID]bool)
	current := id
	for current != StateInvalid {
		if visited[current] {
			return chartErrorf("chart %q: cycle detected in parent hierarchy at state %q", d.name, d.states[current].name)
		}
		visited[current] = true
		current = c.States[current].Parent
	}
	return nil
}

func (c *Statechart) addAction(name string, fn Action) ActionID {
	c.Actions = append(c.Actions, fn)
	c.ActionNames = append(c.ActionNames, name)
	return ActionID(len(c.Actions) - 1)
}

func (c *Statechart) addGuard(name string, fn Guard) GuardID {
	c.Guards = append(c.Guards, fn)
	c.GuardNames = append(c.GuardNames, name)
	return GuardID(len(c.Guards) - 1)
}

// lca returns the state whose children are the outermost states left and
// entered by an external transition from source to target.
func (c *Statechart) lca(source, target StateID) StateID {
	if source != target && c.isAncestorOrSelf(source, target) {
		return source
	}
	if c.isAncestorOrSelf(target, source) {
		return c.States[target].Parent
	}
	for a := c.States[source].Parent; a != StateInvalid; a = c.States[a].Parent {
		if c.isAncestorOrSelf(a, target) {
			return a
		}
	}
	return StateInvalid
}

// transitionSteps lists the exits from source up to the LCA, the transition
// action and the entries from below the LCA down to target.
func (c *Statechart) transitionSteps(source, target StateID, action ActionID) []ActionID {
	lca := c.lca(source, target)
	steps := []ActionID{}

	for s := source; s != lca; s = c.States[s].Parent {
		if exit := c.States[s].Exit; exit != ActionInvalid {
			steps = append(steps, exit)
		}
	}

	if action != ActionInvalid {
		steps = append(steps, action)
	}

	var path []StateID
	for s := target; s != lca; s = c.States[s].Parent {
		path = append(path, s)
	}
	for i := len(path) - 1; i >= 0; i-- {
		if entry := c.States[path[i]].Entry; entry != ActionInvalid {
			steps = append(steps, entry)
		}
	}
	return steps
}
