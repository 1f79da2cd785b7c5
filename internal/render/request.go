// Package render builds generation requests and dispatches them to the render endpoint.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"studio/internal/domain"
	"studio/internal/feature"
)

// PhotoEvent is the event name attached to photo payloads.
const PhotoEvent = "studio.photo.mode.activated"

// DefaultPlan is used when the user has no plan metadata.
const DefaultPlan = "free"

// AspectPreset selects the framing of a photo render.
type AspectPreset string

const (
	AspectAuto        AspectPreset = "auto"
	AspectPost        AspectPreset = "instagram_post"
	AspectStory       AspectPreset = "instagram_story"
	AspectMarketplace AspectPreset = "marketplace_website"
)

// ResolutionPreset selects the base edge length of a photo render.
type ResolutionPreset string

const (
	Resolution1K ResolutionPreset = "1K"
	Resolution2K ResolutionPreset = "2K"
	Resolution4K ResolutionPreset = "4K"
)

// ParseAspectPreset accepts the known presets, defaulting to auto.
func ParseAspectPreset(raw string) (AspectPreset, error) {
	switch p := AspectPreset(strings.TrimSpace(raw)); p {
	case "":
		return AspectAuto, nil
	case AspectAuto, AspectPost, AspectStory, AspectMarketplace:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported aspect preset %q", raw)
	}
}

// ParseResolutionPreset accepts the known presets, defaulting to 1K.
func ParseResolutionPreset(raw string) (ResolutionPreset, error) {
	switch p := ResolutionPreset(strings.ToUpper(strings.TrimSpace(raw))); p {
	case "":
		return Resolution1K, nil
	case Resolution1K, Resolution2K, Resolution4K:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported resolution preset %q", raw)
	}
}

// Base returns the edge length in pixels.
func (r ResolutionPreset) Base() int {
	switch r {
	case Resolution4K:
		return 4096
	case Resolution2K:
		return 2048
	default:
		return 1024
	}
}

// Dimensions is a measured image size. Zero values mean unknown.
type Dimensions struct {
	Width  int
	Height int
}

// Known reports whether both sides are positive.
func (d Dimensions) Known() bool {
	return d.Width > 0 && d.Height > 0
}

// OutputPrefs carries the photo output presets and the measured source size used by auto.
type OutputPrefs struct {
	Aspect     AspectPreset
	Resolution ResolutionPreset
	Source     Dimensions
}

// Identity is the caller context stamped into request metadata.
type Identity struct {
	UserID    string
	ProjectID string
	Plan      string
}

// BuildInput gathers everything Build needs. RequestedAt is an input to keep Build pure.
type BuildInput struct {
	Mode        domain.Mode
	Features    *feature.Set
	SourceImage string
	Prefs       OutputPrefs
	JobID       string
	Identity    Identity
	RequestedAt time.Time
}

// Request is the immutable snapshot sent to the render endpoint.
type Request struct {
	Mode    domain.Mode
	JobID   string
	Payload any
}

// PhotoPayload is the wire body of a photo render.
type PhotoPayload struct {
	Event        string            `json:"event"`
	Timestamp    string            `json:"timestamp"`
	SourceImage  string            `json:"source_image"`
	Modes        []string          `json:"modes"`
	Instructions map[string]string `json:"instructions"`
	Images       map[string]any    `json:"images"`
	Metadata     PhotoMetadata     `json:"metadata"`
}

// PhotoMetadata correlates a photo render with its job and owner.
type PhotoMetadata struct {
	JobID       string `json:"job_id"`
	UserID      string `json:"user_id"`
	ProjectID   string `json:"project_id"`
	Plan        string `json:"plan"`
	AspectRatio string `json:"aspect_ratio"`
	Resolution  string `json:"resolution"`
}

// VideoPayload is the wire body of a video render.
type VideoPayload struct {
	SourceImage string        `json:"source_image"`
	Prompt      string        `json:"prompt"`
	Duration    string        `json:"duration"`
	Plan        string        `json:"plan"`
	Metadata    VideoMetadata `json:"metadata"`
}

// VideoMetadata correlates a video render with its job and owner.
type VideoMetadata struct {
	JobID       string `json:"job_id"`
	UserID      string `json:"user_id"`
	ProjectID   string `json:"project_id"`
	AspectRatio string `json:"aspect_ratio"`
}

var requiredVideoSlots = []domain.SlotID{
	domain.SlotVideoPrompt,
	domain.SlotVideoDuration,
	domain.SlotVideoScale,
	domain.SlotVideoQuality,
}

// Validate applies the minimum-selection rule of the set's mode.
func Validate(mode domain.Mode, set *feature.Set) error {
	if set == nil {
		set = feature.NewSet(mode)
	}
	switch mode {
	case domain.ModePhoto:
		if len(set.Populated()) == 0 {
			return &domain.ValidationError{Mode: mode, Reason: "select at least one feature"}
		}
		if set.PopulatedCount() > domain.MaxPhotoSelections {
			return &domain.ValidationError{Mode: mode, Reason: domain.SlotCapWarning}
		}
	case domain.ModeVideo:
		var missing []domain.SlotID
		for _, id := range requiredVideoSlots {
			if !set.IsPopulated(id) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return &domain.ValidationError{Mode: mode, Missing: missing, Reason: "select prompt, duration, scale and quality"}
		}
	default:
		return &domain.ValidationError{Mode: mode, Reason: "unsupported mode"}
	}
	return nil
}

// Build projects the feature set and output preferences into a request. It returns a
// *domain.ValidationError when the set fails the minimum-selection rule.
func Build(in BuildInput) (Request, error) {
	if err := Validate(in.Mode, in.Features); err != nil {
		return Request{}, err
	}
	if strings.TrimSpace(in.JobID) == "" {
		return Request{}, fmt.Errorf("render: job id is required")
	}
	req := Request{Mode: in.Mode, JobID: in.JobID}
	if in.Mode == domain.ModeVideo {
		req.Payload = buildVideo(in)
	} else {
		req.Payload = buildPhoto(in)
	}
	return req, nil
}

// photo wire keys in payload order
var photoOrder = []struct {
	slot domain.SlotID
	key  string
}{
	{domain.SlotPaint, "paint"},
	{domain.SlotBodykit, "bodykit"},
	{domain.SlotRims, "rim"},
	{domain.SlotLivery, "livery"},
	{domain.SlotBackground, "environment"},
	{domain.SlotAddPerson, "insert_person"},
	{domain.SlotMulticar, "multicars"},
}

var heightModes = map[string]string{
	domain.HeightExtraLow:  "height_extreme_low",
	domain.HeightLow:       "height_low",
	domain.HeightHigh:      "height_high",
	domain.HeightExtraHigh: "height_extreme_high",
}

// WireKey returns the payload key of a photo slot.
func WireKey(id domain.SlotID) string {
	if id == domain.SlotWindow {
		return "tint"
	}
	for _, e := range photoOrder {
		if e.slot == id {
			return e.key
		}
	}
	return string(id)
}

func buildPhoto(in BuildInput) PhotoPayload {
	p := PhotoPayload{
		Event:        PhotoEvent,
		Timestamp:    in.RequestedAt.UTC().Format(time.RFC3339Nano),
		SourceImage:  strings.TrimSpace(in.SourceImage),
		Modes:        []string{},
		Instructions: map[string]string{},
		Images:       map[string]any{},
	}
	set := in.Features
	for _, e := range photoOrder {
		v, ok := set.Value(e.slot)
		if !ok {
			continue
		}
		switch val := v.(type) {
		case domain.Composite:
			if text := strings.TrimSpace(val.Text); text != "" {
				p.Instructions[e.key] = text
			}
			if img := strings.TrimSpace(val.ImageURL); img != "" {
				p.Images[e.key] = img
			}
		case domain.ImageRef:
			p.Images[e.key] = strings.TrimSpace(val.URL)
		case domain.ImageList:
			p.Images[e.key] = val.Trimmed()
		}
		p.Modes = append(p.Modes, e.key)
	}
	if v, ok := set.Value(domain.SlotHeight); ok {
		if token, ok := heightModes[v.(domain.Choice).Option]; ok {
			p.Modes = append(p.Modes, token)
		}
	}
	if v, ok := set.Value(domain.SlotWindow); ok {
		p.Instructions["tint"] = formatNumber(v.(domain.Number).N)
		p.Modes = append(p.Modes, "tint")
	}

	plan := strings.TrimSpace(in.Identity.Plan)
	if plan == "" {
		plan = DefaultPlan
	}
	preset := EffectiveAspect(in.Prefs.Aspect, in.Prefs.Source)
	p.Metadata = PhotoMetadata{
		JobID:       in.JobID,
		UserID:      in.Identity.UserID,
		ProjectID:   in.Identity.ProjectID,
		Plan:        plan,
		AspectRatio: AspectRatio(preset),
		Resolution:  ResolutionString(in.Prefs.Resolution, preset),
	}
	return p
}

func buildVideo(in BuildInput) VideoPayload {
	set := in.Features
	prompt, _ := set.Value(domain.SlotVideoPrompt)
	duration, _ := set.Value(domain.SlotVideoDuration)
	scale, _ := set.Value(domain.SlotVideoScale)
	quality, _ := set.Value(domain.SlotVideoQuality)

	aspect := "16:9"
	if c, ok := scale.(domain.Choice); ok && c.Option != "" {
		aspect = c.Option
	}
	var qualityOption string
	if c, ok := quality.(domain.Choice); ok {
		qualityOption = c.Option
	}
	return VideoPayload{
		SourceImage: strings.TrimSpace(in.SourceImage),
		Prompt:      strings.TrimSpace(prompt.(domain.Text).Text),
		Duration:    formatNumber(duration.(domain.Number).N),
		Plan:        PlanTier(qualityOption),
		Metadata: VideoMetadata{
			JobID:       in.JobID,
			UserID:      in.Identity.UserID,
			ProjectID:   in.Identity.ProjectID,
			AspectRatio: aspect,
		},
	}
}

// PlanTier maps a video quality choice to the render plan tier.
func PlanTier(quality string) string {
	switch strings.ToLower(strings.TrimSpace(quality)) {
	case domain.QualityStandard:
		return "Standard"
	case domain.QualityHigh:
		return "High"
	default:
		return "Draft"
	}
}

// EffectiveAspect resolves auto against the measured source. Unknown sizes fall back to
// the square post preset.
func EffectiveAspect(preset AspectPreset, src Dimensions) AspectPreset {
	if preset != "" && preset != AspectAuto {
		return preset
	}
	if !src.Known() {
		return AspectPost
	}
	ratio := float64(src.Width) / float64(src.Height)
	switch {
	case math.Abs(ratio-1) < 0.12:
		return AspectPost
	case ratio < 1:
		return AspectStory
	default:
		return AspectMarketplace
	}
}

// AspectRatio returns the ratio string of a concrete preset.
func AspectRatio(preset AspectPreset) string {
	switch preset {
	case AspectStory:
		return "9:16"
	case AspectMarketplace:
		return "16:9"
	default:
		return "1:1"
	}
}

// ResolutionString derives WxH from the base edge and a concrete preset.
func ResolutionString(res ResolutionPreset, preset AspectPreset) string {
	base := res.Base()
	short := int(math.Max(1, math.Round(float64(base)*9/16)))
	switch preset {
	case AspectMarketplace:
		return fmt.Sprintf("%dx%d", base, short)
	case AspectStory:
		return fmt.Sprintf("%dx%d", short, base)
	default:
		return fmt.Sprintf("%dx%d", base, base)
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
