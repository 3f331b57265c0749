// internal/browser/cdp/page.go
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/browser"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultOperationTimeout  = 10 * time.Second
)

// Page drives a live browser tab through the DevTools protocol. Every
// primitive is a single script evaluation against the current document.
type Page struct {
	// ctx is the chromedp tab context. Operations derive from it so that a
	// cancelled caller context never closes the tab.
	ctx               context.Context
	navigationTimeout time.Duration
	operationTimeout  time.Duration
	logger            *zap.Logger
}

var _ browser.Page = (*Page)(nil)

// NewPage wraps a chromedp tab context created with chromedp.NewContext.
func NewPage(tabCtx context.Context, navigationTimeout time.Duration, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	if navigationTimeout <= 0 {
		navigationTimeout = defaultNavigationTimeout
	}
	return &Page{
		ctx:               tabCtx,
		navigationTimeout: navigationTimeout,
		operationTimeout:  defaultOperationTimeout,
		logger:            logger.Named("cdp"),
	}
}

// Navigate loads url in the tab and waits for the body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Info("Navigating.", zap.String("url", url))
	err := p.run(ctx, p.navigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to '%s': %w", url, err)
	}
	return nil
}

// -- Read primitives --

func (p *Page) Query(ctx context.Context, selector string) (*browser.Element, error) {
	var el browser.Element
	if err := p.call(ctx, selector, &el, fnQuery, selector); err != nil {
		return nil, err
	}
	return &el, nil
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]*browser.Element, error) {
	var els []*browser.Element
	if err := p.call(ctx, selector, &els, fnQueryAll, selector); err != nil {
		return nil, err
	}
	return els, nil
}

// Snapshot parses the serialized document so inventory scans run on a
// detached tree.
func (p *Page) Snapshot(ctx context.Context) (*html.Node, error) {
	var markup string
	if err := p.call(ctx, "", &markup, fnSnapshot); err != nil {
		return nil, err
	}
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document snapshot: %w", err)
	}
	return doc, nil
}

func (p *Page) VisibleText(ctx context.Context) (string, error) {
	var text string
	if err := p.call(ctx, "", &text, fnVisibleText); err != nil {
		return "", err
	}
	return text, nil
}

func (p *Page) Geometry(ctx context.Context, selector string) (schemas.Rect, float64, error) {
	var g struct {
		schemas.Rect
		ScrollY float64 `json:"scroll_y"`
	}
	if err := p.call(ctx, selector, &g, fnGeometry, selector); err != nil {
		return schemas.Rect{}, 0, err
	}
	return g.Rect, g.ScrollY, nil
}

// -- Mutating primitives --

func (p *Page) Focus(ctx context.Context, selector string) error {
	return p.call(ctx, selector, nil, fnFocus, selector)
}

func (p *Page) SetValue(ctx context.Context, selector, value string) error {
	return p.call(ctx, selector, nil, fnSetValue, selector, value)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	return p.call(ctx, selector, nil, fnClick, selector)
}

func (p *Page) Notify(ctx context.Context, selector, event string) error {
	return p.call(ctx, selector, nil, fnNotify, selector, event)
}

func (p *Page) SetVisible(ctx context.Context, selector string, visible bool) error {
	return p.call(ctx, selector, nil, fnSetVisible, selector, visible)
}

// call evaluates fn with args and decodes the envelope's value into out
// (which may be nil).
func (p *Page) call(ctx context.Context, selector string, out interface{}, fn string, args ...interface{}) error {
	script, err := buildScript(fn, args...)
	if err != nil {
		return err
	}

	var raw json.RawMessage
	err = p.run(ctx, p.operationTimeout,
		chromedp.Evaluate(script, &raw, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
			return ep.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed JS evaluation for '%s': %w", selector, err)
	}

	value, err := decodeEnvelope(raw, selector)
	if err != nil {
		return err
	}
	if out == nil || len(value) == 0 || string(value) == "null" {
		return nil
	}
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("failed to unmarshal result for '%s': %w (payload: %s)", selector, err, string(value))
	}
	return nil
}

// run executes actions in a context derived from the tab, bounded by timeout
// and cancelled together with the caller's ctx.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("context error: %w", ctx.Err())
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timeout after %s: %w", timeout, opCtx.Err())
	}
	return err
}
