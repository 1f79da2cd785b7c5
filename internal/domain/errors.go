package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMissingContext    = errors.New("missing user or project context")
	ErrBusy              = errors.New("generation already in progress")
	ErrInvalidTransition = errors.New("invalid generation state transition")
	ErrModeLocked        = errors.New("mode switch locked while video is rendering")
	ErrSlotCapReached    = errors.New("feature selection limit reached")
	ErrUnknownSlot       = errors.New("unknown feature slot")
	ErrKindMismatch      = errors.New("value does not match slot kind")
	ErrInvalidValue      = errors.New("invalid slot value")
	ErrTimeout           = errors.New("render still processing")
)

// SlotCapWarning is shown to the user when a new photo selection exceeds the cap.
const SlotCapWarning = "You can select up to 3 features."

// ValidationError reports that the selection rules of a mode are not met. It is raised
// before any network activity.
type ValidationError struct {
	Mode    Mode
	Missing []SlotID
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("%s: %s", e.Mode, e.Reason)
	}
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = string(id)
	}
	return fmt.Sprintf("%s: %s (missing %s)", e.Mode, e.Reason, strings.Join(ids, ", "))
}

// DispatchFailure is a hard transport or response failure of one dispatch attempt.
type DispatchFailure struct {
	StatusCode int
	Err        error
}

func (e *DispatchFailure) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("dispatch failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("dispatch failed: %v", e.Err)
}

func (e *DispatchFailure) Unwrap() error { return e.Err }

// PersistenceWarning reports a failed side effect after a result was obtained. It never
// blocks showing the result.
type PersistenceWarning struct {
	Op  string
	Err error
}

func (e *PersistenceWarning) Error() string {
	return fmt.Sprintf("persistence warning: %s: %v", e.Op, e.Err)
}

func (e *PersistenceWarning) Unwrap() error { return e.Err }
