package hsm

import "log/slog"

// StateID indexes Statechart.States
type StateID uint8

// ActionID indexes Statechart.Actions
type ActionID uint8

// GuardID indexes Statechart.Guards
type GuardID uint8

const (
	// StateInvalid marks "no state": the parent of the top state, a missing
	// default child, or the target of an internal transition.
	StateInvalid StateID = 0xFF
	// ActionInvalid marks a missing entry or exit action
	ActionInvalid ActionID = 0xFF
	// GuardInvalid marks an unguarded transition
	GuardInvalid GuardID = 0xFF
)

// Action is an entry, exit or transition action.
type Action func(ctx *Context)

// Guard is a side-effect-free predicate gating a transition.
type Guard func(ctx *Context) bool

// Logger is the default logger used when none is provided
var Logger = slog.Default()
