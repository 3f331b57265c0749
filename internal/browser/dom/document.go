// internal/browser/dom/document.go
package dom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/browser"
	"github.com/xkilldash9x/stepwise/internal/browser/network"
)

// Event records a notification dispatched on the document.
type Event struct {
	Selector string
	Type     string
}

// Document is an in-memory HTML document that implements browser.Page.
// Mutations are applied to the parsed tree directly; there is no script
// engine and no layout, so Geometry always reports browser.ErrNoGeometry.
type Document struct {
	mu        sync.RWMutex
	root      *html.Node
	focused   *html.Node
	events    []Event
	listeners []func(Event)
	logger    *zap.Logger
}

var _ browser.Page = (*Document)(nil)

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node, logger *zap.Logger) *Document {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Document{root: root, logger: logger.Named("dom")}
}

// Parse reads HTML from r.
func Parse(r io.Reader, logger *zap.Logger) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML document: %w", err)
	}
	return NewDocument(root, logger), nil
}

// ParseString is Parse for an in-memory string.
func ParseString(s string, logger *zap.Logger) (*Document, error) {
	return Parse(strings.NewReader(s), logger)
}

// Load fetches and parses the document at location (a path or http(s) URL).
func Load(ctx context.Context, fetcher *network.Fetcher, location string, logger *zap.Logger) (*Document, error) {
	data, err := fetcher.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(data), logger)
}

// OnEvent registers a listener that observes every dispatched event.
func (d *Document) OnEvent(fn func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Events returns a copy of every event dispatched so far.
func (d *Document) Events() []Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Focused returns the derived selector of the focused element, if any.
func (d *Document) Focused() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return DeriveSelector(d.focused)
}

// HTML renders the current state of the document.
func (d *Document) HTML() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

// -- Read primitives --

func (d *Document) Query(_ context.Context, selector string) (*browser.Element, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, err := d.find(selector)
	if err != nil {
		return nil, err
	}
	return describe(d.root, n), nil
}

func (d *Document) QueryAll(_ context.Context, selector string) ([]*browser.Element, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	nodes := sel.MatchAll(d.root)
	out := make([]*browser.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, describe(d.root, n))
	}
	return out, nil
}

// Snapshot returns a deep copy so inventory scans never race with mutations.
func (d *Document) Snapshot(_ context.Context) (*html.Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneTree(d.root), nil
}

func (d *Document) VisibleText(_ context.Context) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return VisibleText(d.root), nil
}

func (d *Document) Geometry(_ context.Context, selector string) (schemas.Rect, float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, err := d.find(selector); err != nil {
		return schemas.Rect{}, 0, err
	}
	return schemas.Rect{}, 0, browser.ErrNoGeometry
}

// -- Mutating primitives --

func (d *Document) Focus(_ context.Context, selector string) error {
	return d.mutate(selector, func(n *html.Node) []string {
		d.focused = n
		return []string{"focus"}
	})
}

func (d *Document) SetValue(_ context.Context, selector, value string) error {
	return d.mutate(selector, func(n *html.Node) []string {
		switch strings.ToLower(n.Data) {
		case "textarea":
			for c := n.FirstChild; c != nil; {
				next := c.NextSibling
				n.RemoveChild(c)
				c = next
			}
			n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
		case "select":
			selectOption(n, value)
		default:
			setAttr(n, "value", value)
		}
		return nil
	})
}

// Click applies the default activation behaviour of checkboxes and radios.
// Links and submit buttons are recorded but never navigate.
func (d *Document) Click(_ context.Context, selector string) error {
	return d.mutate(selector, func(n *html.Node) []string {
		if strings.ToLower(n.Data) != "input" {
			return []string{"click"}
		}
		switch inputType(n) {
		case "checkbox":
			if hasAttr(n, "checked") {
				removeAttr(n, "checked")
			} else {
				setAttr(n, "checked", "")
			}
			return []string{"click", "input", "change"}
		case "radio":
			if hasAttr(n, "checked") {
				return []string{"click"}
			}
			checkRadio(n)
			return []string{"click", "input", "change"}
		}
		return []string{"click"}
	})
}

func (d *Document) Notify(_ context.Context, selector, event string) error {
	return d.mutate(selector, func(*html.Node) []string { return []string{event} })
}

func (d *Document) SetVisible(_ context.Context, selector string, visible bool) error {
	return d.mutate(selector, func(n *html.Node) []string {
		setDisplayNone(n, !visible)
		return nil
	})
}

// mutate runs fn on the element under the write lock, then delivers the
// events it reports to listeners outside the lock.
func (d *Document) mutate(selector string, fn func(*html.Node) []string) error {
	d.mu.Lock()
	n, err := d.find(selector)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	types := fn(n)
	emitted := make([]Event, 0, len(types))
	for _, t := range types {
		emitted = append(emitted, Event{Selector: selector, Type: t})
	}
	d.events = append(d.events, emitted...)
	listeners := append([]func(Event){}, d.listeners...)
	d.mu.Unlock()

	for _, ev := range emitted {
		d.logger.Debug("Dispatched event", zap.String("selector", ev.Selector), zap.String("event", ev.Type))
		for _, l := range listeners {
			l(ev)
		}
	}
	return nil
}

// find must be called with d.mu held.
func (d *Document) find(selector string) (*html.Node, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	n := sel.MatchFirst(d.root)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return n, nil
}

func compile(selector string) (cascadia.Selector, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, fmt.Errorf("%w: empty selector", browser.ErrInvalidSelector)
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", browser.ErrInvalidSelector, selector, err)
	}
	return sel, nil
}
