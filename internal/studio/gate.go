package studio

import "studio/internal/domain"

// GateState is the upscale gate position.
type GateState string

const (
	GateInitial      GateState = "initial"
	GateWentToBefore GateState = "wentToBefore"
	GateUnlocked     GateState = "unlocked"
)

// View selects which side of the gallery is shown.
type View string

const (
	ViewBefore View = "before"
	ViewAfter  View = "after"
)

// ParseView accepts before or after.
func ParseView(raw string) (View, bool) {
	switch View(raw) {
	case ViewBefore:
		return ViewBefore, true
	case ViewAfter:
		return ViewAfter, true
	default:
		return "", false
	}
}

// UpscaleGate requires a before/after comparison before offering an upscale.
type UpscaleGate struct {
	state GateState
}

// NewUpscaleGate starts at initial.
func NewUpscaleGate() *UpscaleGate {
	return &UpscaleGate{state: GateInitial}
}

// State returns the gate position.
func (g *UpscaleGate) State() GateState { return g.state }

// Observe advances the gate for a view change.
func (g *UpscaleGate) Observe(v View) {
	switch {
	case g.state == GateUnlocked:
	case v == ViewBefore:
		g.state = GateWentToBefore
	case v == ViewAfter && g.state == GateWentToBefore:
		g.state = GateUnlocked
	}
}

// Reset returns to initial. Called whenever the after image changes.
func (g *UpscaleGate) Reset() {
	g.state = GateInitial
}

// UpscaleAvailable reports whether the upscale action is offered.
func (g *UpscaleGate) UpscaleAvailable(mode domain.Mode, after string) bool {
	return mode == domain.ModePhoto && g.state == GateUnlocked && after != ""
}
