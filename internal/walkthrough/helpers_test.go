// File: internal/walkthrough/helpers_test.go
package walkthrough

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/browser/dom"
	"github.com/xkilldash9x/stepwise/internal/mapping"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const fixtureHTML = `<html><body>
<h1>Join us</h1>
<form id="signup"><label for="em">Email</label><input id="em" name="email" placeholder="you@example.test"><label for="country">Country</label><select id="country" name="country"><option value="us">USA</option><option value="ca">Canada</option></select><label for="role">Role</label><select id="role" name="role"><option>Admin</option><option>User</option></select><fieldset><legend>Account type</legend><input type="radio" name="acct" value="user" checked><input type="radio" name="acct" value="admin"></fieldset><label><input type="checkbox" id="terms"> I agree to the terms</label><label><input type="checkbox" name="news"> Subscribe for updates</label><input type="search" placeholder="Search products"><div role="button" id="help">Need help?</div><button type="submit">Create my account</button><span id="promo_code">Promo</span></form>
<div id="success">Thanks!</div>
</body></html>`

func newFixture(t *testing.T) *dom.Document {
	t.Helper()
	return newPage(t, fixtureHTML)
}

func newPage(t *testing.T, markup string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(markup, zaptest.NewLogger(t))
	require.NoError(t, err)
	return doc
}

func snapshot(t *testing.T, doc *dom.Document) *html.Node {
	t.Helper()
	root, err := doc.Snapshot(context.Background())
	require.NoError(t, err)
	return root
}

func step(action, target, value string) schemas.Step {
	s := schemas.Step{Action: action, TargetText: target}
	if value != "" {
		s.Value = schemas.NewScalar(value)
	}
	return s
}

// countingSource wraps a mapping source and counts lookups.
type countingSource struct {
	inner mapping.Source
	calls atomic.Int32
}

func (c *countingSource) Lookup(ctx context.Context, target string) mapping.Result {
	c.calls.Add(1)
	if c.inner == nil {
		return mapping.NotFoundResult()
	}
	return c.inner.Lookup(ctx, target)
}

// countingScanner wraps the default heuristics and counts scans.
type countingScanner struct {
	inner Scanner
	calls atomic.Int32
}

func newCountingScanner() *countingScanner {
	return &countingScanner{inner: NewHeuristicScanner()}
}

func (c *countingScanner) Scan(target string, doc *html.Node) (Match, bool) {
	c.calls.Add(1)
	return c.inner.Scan(target, doc)
}

// fixedSource always returns the same result.
type fixedSource struct {
	result mapping.Result
}

func (f fixedSource) Lookup(context.Context, string) mapping.Result { return f.result }

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (r *recordingNotifier) Alert(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, message)
}

func (r *recordingNotifier) Alerts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.alerts...)
}

type recordingPresenter struct {
	mu         sync.Mutex
	highlights []schemas.Highlight
	clears     int
}

func (r *recordingPresenter) Present(_ context.Context, h schemas.Highlight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.highlights = append(r.highlights, h)
	return nil
}

func (r *recordingPresenter) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	return nil
}

func (r *recordingPresenter) Last() (schemas.Highlight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.highlights) == 0 {
		return schemas.Highlight{}, false
	}
	return r.highlights[len(r.highlights)-1], true
}

func (r *recordingPresenter) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}

// geometryPage reports a fixed box for every element.
type geometryPage struct {
	*dom.Document
	rect    schemas.Rect
	scrollY float64
}

func (g geometryPage) Geometry(ctx context.Context, selector string) (schemas.Rect, float64, error) {
	if _, err := g.Document.Query(ctx, selector); err != nil {
		return schemas.Rect{}, 0, err
	}
	return g.rect, g.scrollY, nil
}

// failingPage rejects clicks.
type failingPage struct {
	*dom.Document
	err error
}

func (f failingPage) Click(context.Context, string) error { return f.err }
