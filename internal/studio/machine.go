// Package studio holds the per-project editor session: selections, the generation
// state machine, the gallery and the submit pipeline that reconciles render results.
package studio

import (
	"fmt"

	"studio/internal/domain"
)

// State is the generation state of a session.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateError   State = "error"
	StateTimeout State = "timeout"
)

// Messages shown for terminal states.
const (
	MsgCreateJobFailed = "Failed to create job. Please try again."
	MsgMissingContext  = "Missing project context. Please refresh and try again."
	MsgRenderFailed    = "Render failed. Please try again."
	MsgPhotoTimeout    = "Render is still processing. Please try again in a few minutes."
	MsgVideoTimeout    = "Video render is still processing. Please try again in a few minutes."
)

// Machine tracks what the session is doing right now. It is not safe for concurrent use;
// the owning session serializes access.
type Machine struct {
	state     State
	mode      domain.Mode
	jobID     string
	message   string
	lastJobID string
	settled   int
}

// NewMachine starts idle.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// MachineSnapshot is a read-only view of the machine.
type MachineSnapshot struct {
	State     State       `json:"state"`
	Mode      domain.Mode `json:"mode,omitempty"`
	JobID     string      `json:"jobId,omitempty"`
	Message   string      `json:"message,omitempty"`
	LastJobID string      `json:"lastJobId,omitempty"`
	Settled   int         `json:"settled"`
}

// Snapshot copies the current state.
func (m *Machine) Snapshot() MachineSnapshot {
	return MachineSnapshot{
		State:     m.state,
		Mode:      m.mode,
		JobID:     m.jobID,
		Message:   m.message,
		LastJobID: m.lastJobID,
		Settled:   m.settled,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Loading reports whether a job is in flight.
func (m *Machine) Loading() bool { return m.state == StateLoading }

// LoadingMode returns the mode of the in-flight job, or "" when idle.
func (m *Machine) LoadingMode() domain.Mode {
	if m.state != StateLoading {
		return ""
	}
	return m.mode
}

// JobID returns the identifier of the in-flight or last failed job.
func (m *Machine) JobID() string { return m.jobID }

// Begin moves idle to loading.
func (m *Machine) Begin(mode domain.Mode, jobID string) error {
	switch m.state {
	case StateLoading:
		return domain.ErrBusy
	case StateIdle:
	default:
		return fmt.Errorf("%w: submit from %s", domain.ErrInvalidTransition, m.state)
	}
	m.load(mode, jobID)
	return nil
}

// Retry moves error or timeout back to loading under a new job identifier.
func (m *Machine) Retry(mode domain.Mode, jobID string) error {
	switch m.state {
	case StateLoading:
		return domain.ErrBusy
	case StateError, StateTimeout:
	default:
		return fmt.Errorf("%w: retry from %s", domain.ErrInvalidTransition, m.state)
	}
	if jobID == m.jobID {
		return fmt.Errorf("%w: job id %s reused", domain.ErrInvalidTransition, jobID)
	}
	m.load(mode, jobID)
	return nil
}

func (m *Machine) load(mode domain.Mode, jobID string) {
	m.state = StateLoading
	m.mode = mode
	m.jobID = jobID
	m.message = ""
}

// Fail moves loading to error.
func (m *Machine) Fail(msg string) error {
	return m.finish(StateError, msg)
}

// TimeOut moves loading to timeout.
func (m *Machine) TimeOut(msg string) error {
	return m.finish(StateTimeout, msg)
}

func (m *Machine) finish(to State, msg string) error {
	if m.state != StateLoading {
		return fmt.Errorf("%w: %s from %s", domain.ErrInvalidTransition, to, m.state)
	}
	m.state = to
	m.message = msg
	return nil
}

// Succeed records the settled job and returns to idle.
func (m *Machine) Succeed() error {
	if m.state != StateLoading {
		return fmt.Errorf("%w: success from %s", domain.ErrInvalidTransition, m.state)
	}
	m.lastJobID = m.jobID
	m.settled++
	m.state = StateIdle
	m.jobID = ""
	m.message = ""
	return nil
}

// Dismiss returns error or timeout to idle without side effects.
func (m *Machine) Dismiss() error {
	switch m.state {
	case StateError, StateTimeout:
	default:
		return fmt.Errorf("%w: dismiss from %s", domain.ErrInvalidTransition, m.state)
	}
	m.state = StateIdle
	m.jobID = ""
	m.message = ""
	return nil
}

// CanSwitchTo reports whether the editor may change to mode. While a video job is
// loading the photo editor stays locked.
func (m *Machine) CanSwitchTo(mode domain.Mode) error {
	if m.state == StateLoading && m.mode == domain.ModeVideo && mode == domain.ModePhoto {
		return domain.ErrModeLocked
	}
	return nil
}
