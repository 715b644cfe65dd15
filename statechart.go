package hsm

import "strconv"

// Statechart is the immutable, generated description of a state machine.
// It is shared read-only by every Machine built from it.
type Statechart struct {
	Name string

	States  []State
	Actions []Action
	Guards  []Guard

	Top       StateID
	NumEvents int

	// Optional name tables, used for tracing and rendering only. Each is
	// either empty or as long as the table it names.
	StateNames  []string
	EventNames  []string
	ActionNames []string
	GuardNames  []string
}

// StateName returns the configured name of s, or "#s".
func (c *Statechart) StateName(s StateID) string {
	return lookupName(c.StateNames, int(s))
}

// EventName returns the configured name of e, or "#e".
func (c *Statechart) EventName(e Event) string {
	return lookupName(c.EventNames, int(e))
}

// ActionName returns the configured name of a, or "#a".
func (c *Statechart) ActionName(a ActionID) string {
	return lookupName(c.ActionNames, int(a))
}

// GuardName returns the configured name of g, or "#g".
func (c *Statechart) GuardName(g GuardID) string {
	return lookupName(c.GuardNames, int(g))
}

func lookupName(names []string, i int) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return "#" + strconv.Itoa(i)
}

// state returns the descriptor row of s. s must be valid.
func (c *Statechart) state(s StateID) *State {
	return &c.States[s]
}

// isAncestorOrSelf reports whether a is s or one of its ancestors.
func (c *Statechart) isAncestorOrSelf(a, s StateID) bool {
	for cur := s; cur != StateInvalid; cur = c.States[cur].Parent {
		if cur == a {
			return true
		}
	}
	return false
}

// DefaultLeaf follows the default-child chain down from s. Init leaves an
// instance in DefaultLeaf(Top).
func (c *Statechart) DefaultLeaf(s StateID) StateID {
	for c.States[s].Init != StateInvalid {
		s = c.States[s].Init
	}
	return s
}

// Validate checks the descriptor for configuration defects. The runtime
// assumes a chart that passed Validate.
func (c *Statechart) Validate() error {
	if c.NumEvents < 1 || c.NumEvents > MaxEvents {
		return chartErrorf("chart %q: %d events, want 1..%d", c.Name, c.NumEvents, MaxEvents)
	}
	n := len(c.States)
	if n == 0 {
		return chartErrorf("chart %q: no states", c.Name)
	}
	if n >= int(StateInvalid) {
		return chartErrorf("chart %q: %d states exceed state index range", c.Name, n)
	}
	if len(c.Actions) >= int(ActionInvalid) {
		return chartErrorf("chart %q: %d actions exceed action index range", c.Name, len(c.Actions))
	}
	if len(c.Guards) >= int(GuardInvalid) {
		return chartErrorf("chart %q: %d guards exceed guard index range", c.Name, len(c.Guards))
	}
	if int(c.Top) >= n {
		return chartErrorf("chart %q: top state %d not defined", c.Name, c.Top)
	}
	if c.States[c.Top].Parent != StateInvalid {
		return chartErrorf("chart %q: top state %s has a parent", c.Name, c.StateName(c.Top))
	}

	for i, a := range c.Actions {
		if a == nil {
			return chartErrorf("chart %q: action %s is nil", c.Name, c.ActionName(ActionID(i)))
		}
	}
	for i, g := range c.Guards {
		if g == nil {
			return chartErrorf("chart %q: guard %s is nil", c.Name, c.GuardName(GuardID(i)))
		}
	}

	valid := allEvents(c.NumEvents)
	for i := range c.States {
		id := StateID(i)
		s := &c.States[i]
		name := c.StateName(id)

		if id != c.Top && s.Parent == StateInvalid {
			return chartErrorf("chart %q: state %s has no parent and is not the top state", c.Name, name)
		}
		if s.Parent != StateInvalid && int(s.Parent) >= n {
			return chartErrorf("chart %q: state %s references undefined parent %d", c.Name, name, s.Parent)
		}
		if s.Init != StateInvalid {
			if int(s.Init) >= n {
				return chartErrorf("chart %q: state %s references undefined default child %d", c.Name, name, s.Init)
			}
			if c.States[s.Init].Parent != id {
				return chartErrorf("chart %q: default child %s of %s is not its child",
					c.Name, c.StateName(s.Init), name)
			}
		}
		if err := c.checkAction(s.Entry, name, "entry"); err != nil {
			return err
		}
		if err := c.checkAction(s.Exit, name, "exit"); err != nil {
			return err
		}
		if s.Ignored&^valid != 0 || s.Actionable&^valid != 0 {
			return chartErrorf("chart %q: state %s masks reference undefined events", c.Name, name)
		}
		if s.Ignored&s.Actionable != 0 {
			return chartErrorf("chart %q: state %s has events both ignored and actionable", c.Name, name)
		}

		for j := range s.Transitions {
			if err := c.checkTransition(&s.Transitions[j], name, j); err != nil {
				return err
			}
		}
	}

	// every state must reach the top without cycling
	for i := range c.States {
		if err := c.checkParentChain(StateID(i)); err != nil {
			return err
		}
	}

	if err := c.checkNames(); err != nil {
		return err
	}
	return nil
}

func (c *Statechart) checkAction(a ActionID, state, kind string) error {
	if a != ActionInvalid && int(a) >= len(c.Actions) {
		return chartErrorf("chart %q: state %s %s action %d not defined", c.Name, state, kind, a)
	}
	return nil
}

func (c *Statechart) checkTransition(t *Transition, state string, idx int) error {
	if int(t.Event) >= c.NumEvents {
		return chartErrorf("chart %q: transition %d of %s triggered by undefined event %d", c.Name, idx, state, t.Event)
	}
	if t.Guard != GuardInvalid && int(t.Guard) >= len(c.Guards) {
		return chartErrorf("chart %q: transition %d of %s uses undefined guard %d", c.Name, idx, state, t.Guard)
	}
	if t.Target != StateInvalid && int(t.Target) >= len(c.States) {
		return chartErrorf("chart %q: transition %d of %s targets undefined state %d", c.Name, idx, state, t.Target)
	}
	if t.IsInternal() && len(t.Steps) != 1 {
		return chartErrorf("chart %q: internal transition %d of %s has %d steps, want 1", c.Name, idx, state, len(t.Steps))
	}
	for _, a := range t.Steps {
		if a == ActionInvalid || int(a) >= len(c.Actions) {
			return chartErrorf("chart %q: transition %d of %s runs undefined action %d", c.Name, idx, state, a)
		}
	}
	return nil
}

func (c *Statechart) checkParentChain(id StateID) error {
	visited := make(map[StateID]bool)
	current := id
	for current != StateInvalid {
		if visited[current] {
			return chartErrorf("chart %q: cycle detected in parent hierarchy at state %s", c.Name, c.StateName(current))
		}
		visited[current] = true
		if current == c.Top {
			return nil
		}
		current = c.States[current].Parent
	}
	return chartErrorf("chart %q: state %s does not reach the top state", c.Name, c.StateName(id))
}

func (c *Statechart) checkNames() error {
	tables := []struct {
		kind  string
		names []string
		want  int
	}{
		{"state", c.StateNames, len(c.States)},
		{"event", c.EventNames, c.NumEvents},
		{"action", c.ActionNames, len(c.Actions)},
		{"guard", c.GuardNames, len(c.Guards)},
	}
	for _, t := range tables {
		if len(t.names) != 0 && len(t.names) != t.want {
			return chartErrorf("chart %q: %d %s names for %d entries", c.Name, len(t.names), t.kind, t.want)
		}
	}
	return nil
}
