package domain

import "math"

// SlotID names one editable aspect of the output.
type SlotID string

const (
	SlotPaint      SlotID = "paint"
	SlotBodykit    SlotID = "bodykit"
	SlotRims       SlotID = "rims"
	SlotHeight     SlotID = "height"
	SlotLivery     SlotID = "livery"
	SlotWindow     SlotID = "window"
	SlotBackground SlotID = "background"
	SlotAddPerson  SlotID = "addPerson"
	SlotMulticar   SlotID = "multicar"

	SlotVideoPrompt   SlotID = "videoPrompt"
	SlotVideoDuration SlotID = "videoDuration"
	SlotVideoScale    SlotID = "videoScale"
	SlotVideoQuality  SlotID = "videoQuality"
)

// SlotKind enumerates the shape of the value a slot accepts.
type SlotKind string

const (
	KindImageRef  SlotKind = "image-reference"
	KindText      SlotKind = "free-text"
	KindNumeric   SlotKind = "numeric"
	KindChoice    SlotKind = "enum-choice"
	KindComposite SlotKind = "composite"
	KindImageList SlotKind = "image-list"
)

// SlotSpec describes a slot: its kind, title and accepted options.
type SlotSpec struct {
	ID    SlotID
	Mode  Mode
	Kind  SlotKind
	Title string
	// Exempt slots do not count towards the photo selection cap.
	Exempt bool
	// RequireAll means a composite slot is populated only when both image and text are set.
	RequireAll bool
	Choices    []string
	Min        float64
	Max        float64
}

// Height choices accepted by the height slot.
const (
	HeightExtraLow  = "extra-low"
	HeightLow       = "low"
	HeightHigh      = "high"
	HeightExtraHigh = "extra-high"
)

// Video quality choices.
const (
	QualityDraft    = "draft"
	QualityStandard = "standard"
	QualityHigh     = "high"
)

var photoSlots = []SlotSpec{
	{ID: SlotPaint, Mode: ModePhoto, Kind: KindComposite, Title: "Color"},
	{ID: SlotBodykit, Mode: ModePhoto, Kind: KindComposite, Title: "Bodykit"},
	{ID: SlotRims, Mode: ModePhoto, Kind: KindImageRef, Title: "Rims"},
	{ID: SlotHeight, Mode: ModePhoto, Kind: KindChoice, Title: "Height", Choices: []string{HeightExtraLow, HeightLow, HeightHigh, HeightExtraHigh}},
	{ID: SlotLivery, Mode: ModePhoto, Kind: KindImageRef, Title: "Livery"},
	{ID: SlotWindow, Mode: ModePhoto, Kind: KindNumeric, Title: "Tint", Min: 0, Max: 100},
	{ID: SlotBackground, Mode: ModePhoto, Kind: KindComposite, Title: "Background"},
	{ID: SlotAddPerson, Mode: ModePhoto, Kind: KindComposite, Title: "Add Person", Exempt: true, RequireAll: true},
	{ID: SlotMulticar, Mode: ModePhoto, Kind: KindImageList, Title: "Add Car"},
}

var videoSlots = []SlotSpec{
	{ID: SlotVideoPrompt, Mode: ModeVideo, Kind: KindText, Title: "Prompt"},
	{ID: SlotVideoDuration, Mode: ModeVideo, Kind: KindNumeric, Title: "Duration", Min: 1, Max: 60},
	{ID: SlotVideoScale, Mode: ModeVideo, Kind: KindChoice, Title: "Scale", Choices: []string{"16:9", "9:16", "1:1"}},
	{ID: SlotVideoQuality, Mode: ModeVideo, Kind: KindChoice, Title: "Quality", Choices: []string{QualityDraft, QualityStandard, QualityHigh}},
}

// MaxPhotoSelections caps the populated non-exempt photo slots.
const MaxPhotoSelections = 3

// SlotsFor returns the slot catalogue of a mode in display order.
func SlotsFor(mode Mode) []SlotSpec {
	switch mode {
	case ModePhoto:
		return append([]SlotSpec(nil), photoSlots...)
	case ModeVideo:
		return append([]SlotSpec(nil), videoSlots...)
	default:
		return nil
	}
}

// LookupSlot finds the definition of a slot within a mode.
func LookupSlot(mode Mode, id SlotID) (SlotSpec, bool) {
	var catalogue []SlotSpec
	switch mode {
	case ModePhoto:
		catalogue = photoSlots
	case ModeVideo:
		catalogue = videoSlots
	}
	for _, spec := range catalogue {
		if spec.ID == id {
			return spec, true
		}
	}
	return SlotSpec{}, false
}

// AllowsChoice reports whether option is accepted by an enum-choice slot.
func (s SlotSpec) AllowsChoice(option string) bool {
	for _, c := range s.Choices {
		if c == option {
			return true
		}
	}
	return false
}

// InRange reports whether n is accepted by a numeric slot.
func (s SlotSpec) InRange(n float64) bool {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	if s.Min == 0 && s.Max == 0 {
		return true
	}
	return n >= s.Min && n <= s.Max
}
