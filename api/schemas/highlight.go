package schemas

// HighlightPadding is the margin added around an element's box on every side.
const HighlightPadding = 8.0

// Rect is an element's bounding box relative to the viewport.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Highlight is what the core hands to a presenter: the resolved selector and
// a padded, document-relative box around it.
type Highlight struct {
	Selector    string  `json:"selector"`
	Left        float64 `json:"left"`
	Top         float64 `json:"top"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	HasGeometry bool    `json:"has_geometry"`
}

// NewHighlight pads the viewport box and shifts it by the document scroll
// offset. Left and Top are clamped at zero.
func NewHighlight(selector string, r Rect, scrollY float64) Highlight {
	left := r.X - HighlightPadding
	if left < 0 {
		left = 0
	}
	top := r.Y - HighlightPadding + scrollY
	if top < 0 {
		top = 0
	}
	return Highlight{
		Selector:    selector,
		Left:        left,
		Top:         top,
		Width:       r.Width + 2*HighlightPadding,
		Height:      r.Height + 2*HighlightPadding,
		HasGeometry: true,
	}
}
