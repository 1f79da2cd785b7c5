package studio

import "studio/internal/domain"

// Gallery is the before/after pair shown in the editor plus the video result and the
// per-mode source images that the next render starts from.
type Gallery struct {
	Before      string `json:"before"`
	After       string `json:"after"`
	View        View   `json:"currentView"`
	VideoResult string `json:"videoResult,omitempty"`
	PhotoSource string `json:"photoSource,omitempty"`
	VideoSource string `json:"videoSource,omitempty"`
}

// newGallery seeds the gallery from persisted project state.
func newGallery(before, after string) Gallery {
	g := Gallery{Before: before, After: after, View: ViewBefore}
	if after != "" {
		g.View = ViewAfter
	}
	g.PhotoSource = firstNonEmpty(after, before)
	g.VideoSource = firstNonEmpty(after, before)
	return g
}

// SourceFor returns the image a render in mode starts from.
func (g Gallery) SourceFor(mode domain.Mode) string {
	if mode == domain.ModeVideo {
		return firstNonEmpty(g.VideoSource, g.After, g.Before)
	}
	return firstNonEmpty(g.PhotoSource, g.Before)
}

// upload replaces the gallery with a fresh source image.
func (g *Gallery) upload(url string) {
	*g = Gallery{Before: url, View: ViewBefore, PhotoSource: url, VideoSource: url}
}

// applyPhoto reconciles a photo result. The previous after image, when present, becomes
// the new before so the user compares consecutive edits. It reports whether after changed.
func (g *Gallery) applyPhoto(after, storeBefore, previousAfter string) bool {
	changed := g.After != after
	switch {
	case previousAfter != "":
		g.Before = previousAfter
	case storeBefore != "":
		g.Before = storeBefore
	}
	g.After = after
	g.View = ViewAfter
	g.PhotoSource = after
	return changed
}

// applyVideo records a video result without touching the photo pair.
func (g *Gallery) applyVideo(video, storeAfter, storeBefore string) {
	g.VideoResult = video
	g.VideoSource = firstNonEmpty(storeAfter, storeBefore, g.VideoSource)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
