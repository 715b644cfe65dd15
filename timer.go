package hsm

import (
	"time"
)

type timerKey struct {
	instance int
	name     string
}

// timerEntry tracks a running timer
type timerEntry struct {
	timer    *time.Timer
	event    Event
	owner    StateID // StateInvalid for instance-scoped timers
	duration time.Duration
}

// startTimer starts a named timer that emits event into the instance when
// it fires. A running timer with the same name is replaced.
func (m *Machine) startTimer(inst int, name string, duration time.Duration, event Event, owner StateID) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	m.startTimerLocked(inst, name, duration, event, owner)
}

// startTimerLocked is startTimer with timerMu held.
func (m *Machine) startTimerLocked(inst int, name string, duration time.Duration, event Event, owner StateID) {
	key := timerKey{instance: inst, name: name}

	if existing, ok := m.timers[key]; ok {
		existing.timer.Stop()
		delete(m.timers, key)
	}

	entry := &timerEntry{
		event:    event,
		owner:    owner,
		duration: duration,
	}
	entry.timer = time.AfterFunc(duration, func() {
		m.timerMu.Lock()
		// a stopped or replaced timer must not fire
		if m.timers[key] != entry {
			m.timerMu.Unlock()
			return
		}
		delete(m.timers, key)
		m.timerMu.Unlock()

		m.logger.Debug("timer fired", "chart", m.chart.Name, "instance", inst, "name", name, "event", m.chart.EventName(event))
		m.Emit(inst, event)
	})
	m.timers[key] = entry

	m.logger.Debug("timer started", "chart", m.chart.Name, "instance", inst, "name", name, "duration", duration)
}

// StartTimer starts a named instance timer from outside the state machine.
func (m *Machine) StartTimer(inst int, name string, duration time.Duration, event Event) {
	m.startTimer(inst, name, duration, event, StateInvalid)
}

// StopTimer stops a timer by name
func (m *Machine) StopTimer(inst int, name string) {
	key := timerKey{instance: inst, name: name}

	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if entry, ok := m.timers[key]; ok {
		entry.timer.Stop()
		delete(m.timers, key)
		m.logger.Debug("timer stopped", "chart", m.chart.Name, "instance", inst, "name", name)
	}
}

// StopAllTimers stops all running timers of every instance
func (m *Machine) StopAllTimers() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	for key, entry := range m.timers {
		entry.timer.Stop()
		m.logger.Debug("timer stopped (cleanup)", "chart", m.chart.Name, "instance", key.instance, "name", key.name)
	}
	m.timers = make(map[timerKey]*timerEntry)
}

// TimerActive checks if a timer is running
func (m *Machine) TimerActive(inst int, name string) bool {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	_, ok := m.timers[timerKey{instance: inst, name: name}]
	return ok
}

// ResetTimer restarts a running timer with a new duration, keeping its
// event and scope. No-op if the timer doesn't exist.
func (m *Machine) ResetTimer(inst int, name string, duration time.Duration) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	entry, ok := m.timers[timerKey{instance: inst, name: name}]
	if !ok {
		return
	}
	m.startTimerLocked(inst, name, duration, entry.event, entry.owner)
}

// stopInstanceTimers cancels every timer of one instance
func (m *Machine) stopInstanceTimers(inst int) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	for key, entry := range m.timers {
		if key.instance == inst {
			entry.timer.Stop()
			delete(m.timers, key)
		}
	}
}

// cleanupStateTimers cancels the instance's state-scoped timers whose owner
// state is no longer active
func (m *Machine) cleanupStateTimers(inst int) {
	current := m.instances[inst].current()

	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	for key, entry := range m.timers {
		if key.instance != inst || entry.owner == StateInvalid {
			continue
		}
		if !m.chart.isAncestorOrSelf(entry.owner, current) {
			entry.timer.Stop()
			delete(m.timers, key)
			m.logger.Debug("timer cleaned up (state exit)", "chart", m.chart.Name, "instance", inst, "name", key.name,
				"state", m.chart.StateName(entry.owner))
		}
	}
}
