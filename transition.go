package hsm

// Transition is one outgoing transition of a state.
type Transition struct {
	Event  Event
	Guard  GuardID // GuardInvalid if unguarded
	Target StateID // StateInvalid for an internal transition

	// Steps run after the exit walk up to the declaring state. For external
	// transitions they already hold the remaining exits, the transition
	// action and the entries down to Target. An internal transition has
	// exactly one step.
	Steps []ActionID
}

// IsInternal reports whether the transition leaves the current state alone.
func (t *Transition) IsInternal() bool {
	return t.Target == StateInvalid
}
