// File: internal/browser/page.go
package browser

import (
	"context"
	"errors"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

var (
	// ErrNotFound is returned when a selector locates no element in the live document.
	ErrNotFound = errors.New("no element matches selector")
	// ErrInvalidSelector is returned when a selector cannot be parsed.
	ErrInvalidSelector = errors.New("invalid selector")
	// ErrNoGeometry is returned by pages that have no layout engine.
	ErrNoGeometry = errors.New("element geometry unavailable")
)

// Option is one entry of a <select> element.
type Option struct {
	Text     string `json:"text"`
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
}

// Element is a read-only description of a live element, captured at query time.
// Selector always re-locates the same element while the document is unchanged.
type Element struct {
	Selector string   `json:"selector"`
	Tag      string   `json:"tag"`
	ID       string   `json:"id,omitempty"`
	Type     string   `json:"type,omitempty"`
	Name     string   `json:"name,omitempty"`
	Value    string   `json:"value,omitempty"`
	Text     string   `json:"text,omitempty"`
	Checked  bool     `json:"checked,omitempty"`
	Options  []Option `json:"options,omitempty"`
}

// IsSelect reports whether the element is a <select> control.
func (e *Element) IsSelect() bool { return e.Tag == "select" }

// IsCheckbox reports whether the element is an <input type="checkbox">.
func (e *Element) IsCheckbox() bool { return e.Tag == "input" && e.Type == "checkbox" }

// Page is the live document a walkthrough runs against. Every method re-reads
// the document; callers never hold element handles between calls.
// Selectors are CSS.
type Page interface {
	// Query returns the first element matching selector, ErrNotFound, or ErrInvalidSelector.
	Query(ctx context.Context, selector string) (*Element, error)
	// QueryAll returns every match in document order.
	QueryAll(ctx context.Context, selector string) ([]*Element, error)
	// Snapshot returns a parsed copy of the current document for inventory scans.
	Snapshot(ctx context.Context) (*html.Node, error)
	// VisibleText returns the text a user would see in the document body.
	VisibleText(ctx context.Context) (string, error)

	Focus(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// Notify dispatches a bubbling event (e.g. "input", "change") so dependent
	// listeners observe a programmatic mutation.
	Notify(ctx context.Context, selector, event string) error
	// SetVisible shows or hides an element.
	SetVisible(ctx context.Context, selector string, visible bool) error

	// Geometry returns the viewport box of an element and the document scroll
	// offset. Pages without layout return ErrNoGeometry.
	Geometry(ctx context.Context, selector string) (schemas.Rect, float64, error)
}
