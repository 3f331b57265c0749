// internal/browser/cdp/overlay.go
package cdp

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

// OverlayID is the id of the injected highlight box.
const OverlayID = "stepwise-overlay"

// Overlay draws the step highlight inside the page itself: the element is
// scrolled into view, marked, and framed by an absolutely positioned box.
type Overlay struct {
	page   *Page
	logger *zap.Logger
}

func NewOverlay(page *Page) *Overlay {
	return &Overlay{page: page, logger: page.logger.Named("overlay")}
}

func (o *Overlay) Present(ctx context.Context, h schemas.Highlight) error {
	if err := o.page.call(ctx, h.Selector, nil, fnShowOverlay, h.Selector, OverlayID, h); err != nil {
		return err
	}
	o.logger.Debug("Overlay shown.", zap.String("selector", h.Selector))
	return nil
}

func (o *Overlay) Clear(ctx context.Context) error {
	return o.page.call(ctx, "", nil, fnHideOverlay, OverlayID)
}
