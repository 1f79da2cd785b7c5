package domain

import (
	"fmt"
	"strings"
)

// Mode enumerates the generation workflows offered by the studio.
type Mode string

const (
	ModePhoto Mode = "photo"
	ModeVideo Mode = "video"
)

// Modes lists every supported mode in display order.
var Modes = []Mode{ModePhoto, ModeVideo}

// ParseMode sanitizes free-form input into a supported mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModePhoto:
		return ModePhoto, nil
	case ModeVideo:
		return ModeVideo, nil
	default:
		return "", fmt.Errorf("unsupported mode %q", raw)
	}
}

// Valid reports whether the mode is one of the supported workflows.
func (m Mode) Valid() bool {
	return m == ModePhoto || m == ModeVideo
}

// Scope identifies the user and project a studio session works on.
type Scope struct {
	UserID    string
	ProjectID string
}

// Complete reports whether both identifiers are present.
func (s Scope) Complete() bool {
	return strings.TrimSpace(s.UserID) != "" && strings.TrimSpace(s.ProjectID) != ""
}

// Key returns a stable identifier for the scope.
func (s Scope) Key() string {
	return s.UserID + ":" + s.ProjectID
}
