package hsm

// State is one row of a statechart's state table.
type State struct {
	Parent StateID // StateInvalid for the top state
	Init   StateID // default child, StateInvalid for leaf states

	Entry ActionID
	Exit  ActionID

	// Ignored events are discarded when found in the queue while this is
	// the current leaf state.
	Ignored EventMask
	// Actionable events have a transition on this state or an ancestor.
	// Events in neither mask stay queued (deferred).
	Actionable EventMask

	// Transitions are searched in declared order.
	Transitions []Transition
}

// IsLeaf reports whether the state has no default child.
func (s *State) IsLeaf() bool {
	return s.Init == StateInvalid
}
