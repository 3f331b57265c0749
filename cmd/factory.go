// File: cmd/factory.go
package cmd

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/browser"
	"github.com/xkilldash9x/stepwise/internal/browser/cdp"
	"github.com/xkilldash9x/stepwise/internal/browser/dom"
	"github.com/xkilldash9x/stepwise/internal/browser/network"
	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/examples"
	"github.com/xkilldash9x/stepwise/internal/mapping"
	"github.com/xkilldash9x/stepwise/internal/store"
	"github.com/xkilldash9x/stepwise/internal/walkthrough"
)

// components holds everything a command needs to drive one session.
type components struct {
	Page      browser.Page
	Source    mapping.Source
	Fetcher   *network.Fetcher
	Store     *store.Store
	Presenter walkthrough.Presenter

	closers []func()
}

// Shutdown releases resources in reverse order of acquisition.
func (c *components) Shutdown() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// newFetcher builds the fetcher used for pages, step files and HTTP mappings.
func newFetcher(cfg config.BrowserConfig, logger *zap.Logger) *network.Fetcher {
	clientCfg := network.NewClientConfig()
	if cfg.RequestTimeout > 0 {
		clientCfg.RequestTimeout = cfg.RequestTimeout
	}
	if cfg.MaxBodyBytes > 0 {
		clientCfg.MaxBodyBytes = cfg.MaxBodyBytes
	}
	clientCfg.InsecureSkipVerify = cfg.IgnoreTLSErrors
	return network.NewFetcher(network.NewClient(clientCfg), logger)
}

// initializeComponents opens the page and the mapping source described by
// cfg. pageLocation is a file path or URL; empty means the bundled example page.
func initializeComponents(ctx context.Context, cfg *config.Config, pageLocation string, logger *zap.Logger) (*components, error) {
	c := &components{Fetcher: newFetcher(cfg.Browser(), logger)}

	if err := c.openPage(ctx, cfg.Browser(), pageLocation, logger); err != nil {
		c.Shutdown()
		return nil, err
	}
	if err := c.openMapping(ctx, cfg, logger); err != nil {
		c.Shutdown()
		return nil, err
	}
	return c, nil
}

func (c *components) openPage(ctx context.Context, cfg config.BrowserConfig, location string, logger *zap.Logger) error {
	switch cfg.Mode {
	case config.BrowserModeChrome:
		b, err := cdp.Launch(ctx, cfg, logger)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, b.Close)

		target, err := browserURL(location)
		if err != nil {
			return err
		}
		if err := b.Page.Navigate(ctx, target); err != nil {
			return err
		}
		c.Page = b.Page
		c.Presenter = walkthrough.MultiPresenter{cdp.NewOverlay(b.Page), walkthrough.NewLogPresenter(logger)}
		return nil

	default:
		var (
			doc *dom.Document
			err error
		)
		if location == "" {
			doc, err = dom.ParseString(string(examples.SignupPage()), logger)
		} else {
			doc, err = dom.Load(ctx, c.Fetcher, location, logger)
		}
		if err != nil {
			return fmt.Errorf("failed to load page: %w", err)
		}
		c.Page = doc
		c.Presenter = walkthrough.NewLogPresenter(logger)
		return nil
	}
}

// browserURL turns a local path into a file:// URL. An empty location opens
// the bundled example page as a data URL.
func browserURL(location string) (string, error) {
	if location == "" {
		return "data:text/html;charset=utf-8," + url.PathEscape(string(examples.SignupPage())), nil
	}
	if network.IsRemote(location) || strings.HasPrefix(location, "file://") || strings.HasPrefix(location, "data:") {
		return location, nil
	}
	path, err := homedir.Expand(location)
	if err != nil {
		return "", fmt.Errorf("failed to expand page path: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve page path: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

func (c *components) openMapping(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	mc := cfg.Mapping()
	switch mc.Kind {
	case config.MappingExample:
		mappings, err := mapping.ParseDocument(examples.Mappings())
		if err != nil {
			return err
		}
		c.Source = mapping.Static{Mappings: mappings}
	case config.MappingFile:
		src, err := mapping.NewFileSource(mc.Location)
		if err != nil {
			return err
		}
		c.Source = src
	case config.MappingHTTP:
		c.Source = mapping.NewHTTPSource(mc.Location, c.Fetcher, mapping.HTTPOptions{
			RateLimit: mc.RateLimit,
			Timeout:   mc.Timeout,
		})
	case config.MappingPostgres:
		s, err := c.openStore(ctx, cfg.Database(), logger)
		if err != nil {
			return err
		}
		c.Source = mapping.NewPostgresSource(s)
	default:
		c.Source = mapping.None{}
	}
	logger.Debug("Mapping source ready.", zap.String("kind", mc.Kind))
	return nil
}

// openStore connects once; later calls reuse the store.
func (c *components) openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, error) {
	if c.Store != nil {
		return c.Store, nil
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("database.url is not set")
	}
	pool, err := store.Connect(ctx, cfg.URL, cfg.ConnectMaxRetry, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, pool.Close)

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	c.Store = s
	return s, nil
}

// newSession builds a session over c with the walkthrough settings from cfg.
func (c *components) newSession(cfg *config.Config, logger *zap.Logger, opts ...walkthrough.SessionOption) *walkthrough.Session {
	base := []walkthrough.SessionOption{
		walkthrough.WithPresenter(c.Presenter),
		walkthrough.WithSuccessSelector(cfg.Walkthrough().SuccessSelector),
	}
	return walkthrough.NewSession(c.Page, c.Source, logger, append(base, opts...)...)
}
