// File: internal/walkthrough/highlight.go
package walkthrough

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

// Presenter renders the highlight around the current step's element.
type Presenter interface {
	Present(ctx context.Context, h schemas.Highlight) error
	Clear(ctx context.Context) error
}

// Notifier surfaces user-visible alerts (invalid collections, failed assertions).
type Notifier interface {
	Alert(ctx context.Context, message string)
}

// LogPresenter writes highlights to the log. Useful for headless runs.
type LogPresenter struct {
	logger *zap.Logger
}

func NewLogPresenter(logger *zap.Logger) *LogPresenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPresenter{logger: logger.Named("highlight")}
}

func (p *LogPresenter) Present(_ context.Context, h schemas.Highlight) error {
	p.logger.Info("Highlight.",
		zap.String("selector", h.Selector),
		zap.Bool("has_geometry", h.HasGeometry),
		zap.Float64("left", h.Left),
		zap.Float64("top", h.Top),
		zap.Float64("width", h.Width),
		zap.Float64("height", h.Height),
	)
	return nil
}

func (p *LogPresenter) Clear(context.Context) error {
	p.logger.Debug("Highlight cleared.")
	return nil
}

// MultiPresenter fans a highlight out to several presenters. Every presenter
// is called; the errors are joined.
type MultiPresenter []Presenter

func (m MultiPresenter) Present(ctx context.Context, h schemas.Highlight) error {
	var errs []error
	for _, p := range m {
		if err := p.Present(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPresenter) Clear(ctx context.Context) error {
	var errs []error
	for _, p := range m {
		if err := p.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier records alerts as warnings.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("alert")}
}

func (n *LogNotifier) Alert(_ context.Context, message string) {
	n.logger.Warn(message)
}

// MultiNotifier delivers each alert to every notifier.
type MultiNotifier []Notifier

func (m MultiNotifier) Alert(ctx context.Context, message string) {
	for _, n := range m {
		n.Alert(ctx, message)
	}
}
