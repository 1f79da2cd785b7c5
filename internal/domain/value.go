package domain

import "strings"

// Value is the content of a slot. Each concrete type corresponds to exactly one SlotKind.
type Value interface {
	Kind() SlotKind
	// Populated reports whether the value counts as a selection. requireAll applies the
	// AND rule to composite values.
	Populated(requireAll bool) bool
}

// ImageRef references a single image by URL or storage key.
type ImageRef struct {
	URL string
}

func (ImageRef) Kind() SlotKind { return KindImageRef }

func (v ImageRef) Populated(bool) bool { return strings.TrimSpace(v.URL) != "" }

// Text is a free-form instruction.
type Text struct {
	Text string
}

func (Text) Kind() SlotKind { return KindText }

func (v Text) Populated(bool) bool { return strings.TrimSpace(v.Text) != "" }

// Number is a numeric setting such as tint percentage or duration seconds.
type Number struct {
	N float64
}

func (Number) Kind() SlotKind { return KindNumeric }

func (Number) Populated(bool) bool { return true }

// Choice is one option out of the slot's list.
type Choice struct {
	Option string
}

func (Choice) Kind() SlotKind { return KindChoice }

func (v Choice) Populated(bool) bool { return strings.TrimSpace(v.Option) != "" }

// Composite carries an image reference and a text instruction at the same time.
type Composite struct {
	ImageURL string
	Text     string
}

func (Composite) Kind() SlotKind { return KindComposite }

func (v Composite) Populated(requireAll bool) bool {
	hasImage := strings.TrimSpace(v.ImageURL) != ""
	hasText := strings.TrimSpace(v.Text) != ""
	if requireAll {
		return hasImage && hasText
	}
	return hasImage || hasText
}

// ImageList references several images, most recent last.
type ImageList struct {
	URLs []string
}

func (ImageList) Kind() SlotKind { return KindImageList }

func (v ImageList) Populated(bool) bool {
	for _, u := range v.URLs {
		if strings.TrimSpace(u) != "" {
			return true
		}
	}
	return false
}

// Trimmed returns the non-empty URLs with surrounding whitespace removed.
func (v ImageList) Trimmed() []string {
	out := make([]string, 0, len(v.URLs))
	for _, u := range v.URLs {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
