// internal/browser/cdp/allocator.go
package cdp

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/config"
)

// AllocatorOptions builds the exec allocator flags for cfg. Extra args are
// "name" or "name=value" switches without leading dashes.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	for _, arg := range cfg.Args {
		name, value := parseFlag(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseFlag turns "--window-size=1280,800" into ("window-size", "1280,800")
// and "--mute-audio" into ("mute-audio", true).
func parseFlag(arg string) (string, interface{}) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	name, value, hasValue := strings.Cut(arg, "=")
	if !hasValue {
		return name, true
	}
	return name, value
}

// Browser owns the allocator and the single tab a walkthrough runs in.
type Browser struct {
	Page *Page

	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	logger      *zap.Logger
}

// Launch starts a browser process and opens one tab.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cdp")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Warnf),
	)

	// The first Run on a fresh context starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	logger.Info("Browser started.", zap.Bool("headless", cfg.Headless))

	return &Browser{
		Page:        NewPage(tabCtx, cfg.NavigationTimeout, logger),
		allocCancel: allocCancel,
		tabCancel:   tabCancel,
		logger:      logger,
	}, nil
}

// Close closes the tab and terminates the browser process.
func (b *Browser) Close() {
	b.tabCancel()
	b.allocCancel()
	b.logger.Debug("Browser closed.")
}
