// File: internal/walkthrough/session_test.go
package walkthrough

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/browser"
	"github.com/xkilldash9x/stepwise/internal/examples"
	"github.com/xkilldash9x/stepwise/internal/mapping"
)

type sessionHarness struct {
	session   *Session
	notifier  *recordingNotifier
	presenter *recordingPresenter
}

func newHarness(t *testing.T, page browser.Page, source mapping.Source, opts ...SessionOption) *sessionHarness {
	t.Helper()
	h := &sessionHarness{notifier: &recordingNotifier{}, presenter: &recordingPresenter{}}
	opts = append([]SessionOption{WithNotifier(h.notifier), WithPresenter(h.presenter)}, opts...)
	h.session = NewSession(page, source, zaptest.NewLogger(t), opts...)
	return h
}

func navigateSteps(n int) schemas.Collection {
	steps := make(schemas.Collection, n)
	for i := range steps {
		steps[i] = schemas.Step{Action: schemas.ActionNavigate}
	}
	return steps
}

func TestSession_EmptyState(t *testing.T) {
	h := newHarness(t, newFixture(t), nil)
	st := h.session.State()
	assert.Equal(t, State{SessionID: h.session.ID(), Index: -1, Total: 0, Counter: "Step 0/0", Label: "Load steps to begin"}, st)
	assert.NotEmpty(t, st.SessionID)
}

func TestSession_CursorBounds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFixture(t), nil)
	s := h.session

	t.Run("operations are no-ops while empty", func(t *testing.T) {
		require.NoError(t, s.Start(ctx))
		out, err := s.Advance(ctx)
		require.NoError(t, err)
		assert.Nil(t, out)
		require.NoError(t, s.Retreat(ctx))
		assert.Equal(t, -1, s.State().Index)
	})

	require.NoError(t, s.Load(ctx, navigateSteps(3)))

	t.Run("advance and retreat before start do nothing", func(t *testing.T) {
		out, err := s.Advance(ctx)
		require.NoError(t, err)
		assert.Nil(t, out)
		require.NoError(t, s.Retreat(ctx))
		assert.Equal(t, -1, s.State().Index)
	})

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, 0, s.State().Index)

	for i := 0; i < 5; i++ {
		out, err := s.Advance(ctx)
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, StatusPerformed, out.Status)
	}
	assert.Equal(t, 2, s.State().Index, "advance never moves past the last step")
	assert.Equal(t, "Step 3/3", s.State().Counter)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Retreat(ctx))
	}
	assert.Equal(t, 0, s.State().Index, "retreat never moves below the first step")
}

func TestSession_RetreatDoesNotExecute(t *testing.T) {
	ctx := context.Background()
	doc := newFixture(t)
	h := newHarness(t, doc, nil)
	s := h.session

	require.NoError(t, s.Load(ctx, schemas.Collection{
		step(schemas.ActionType, "Email", "first"),
		step(schemas.ActionNavigate, "", ""),
	}))
	require.NoError(t, s.Start(ctx))
	_, err := s.Advance(ctx)
	require.NoError(t, err)
	require.NoError(t, doc.SetValue(ctx, "#em", "edited"))

	require.NoError(t, s.Retreat(ctx))
	assert.Equal(t, 0, s.State().Index)
	assert.Equal(t, "edited", query(t, doc, "#em").Value)
}

func TestSession_LabelAndHighlight(t *testing.T) {
	ctx := context.Background()
	page := geometryPage{
		Document: newFixture(t),
		rect:     schemas.Rect{X: 100, Y: 50, Width: 200, Height: 30},
		scrollY:  400,
	}
	h := newHarness(t, page, nil)
	s := h.session

	require.NoError(t, s.Load(ctx, schemas.Collection{step(schemas.ActionType, "Email", "a@b.com")}))
	require.NoError(t, s.Start(ctx))

	st := s.State()
	assert.Equal(t, `type • Email = "a@b.com"`, st.Label)
	assert.Equal(t, "Step 1/1", st.Counter)

	want := schemas.Highlight{Selector: "#em", Left: 92, Top: 442, Width: 216, Height: 46, HasGeometry: true}
	require.NotNil(t, st.Highlight)
	assert.Equal(t, want, *st.Highlight)
	last, ok := h.presenter.Last()
	require.True(t, ok)
	assert.Equal(t, want, last)
}

func TestSession_HighlightWithoutGeometry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFixture(t), nil)
	s := h.session

	require.NoError(t, s.Load(ctx, schemas.Collection{
		step(schemas.ActionType, "Email", ""),
		step(schemas.ActionClick, "nothing resembles this", ""),
	}))
	require.NoError(t, s.Start(ctx))
	require.NotNil(t, s.State().Highlight)
	assert.Equal(t, schemas.Highlight{Selector: "#em"}, *s.State().Highlight)

	clears := h.presenter.Clears()
	_, err := s.Advance(ctx)
	require.NoError(t, err)
	assert.Nil(t, s.State().Highlight, "an unresolved step clears the highlight")
	assert.Equal(t, clears+1, h.presenter.Clears())
}

func TestSession_ResetHidesSuccess(t *testing.T) {
	ctx := context.Background()
	doc := newFixture(t)
	h := newHarness(t, doc, nil)
	s := h.session

	require.NoError(t, s.Load(ctx, schemas.Collection{step(schemas.ActionType, "Email", "x")}))
	require.NoError(t, doc.SetVisible(ctx, "#success", true))
	require.NoError(t, s.Start(ctx))

	text, err := doc.VisibleText(ctx)
	require.NoError(t, err)
	require.Contains(t, text, "Thanks!")

	require.NoError(t, s.Reset(ctx))
	st := s.State()
	assert.Equal(t, -1, st.Index)
	assert.Equal(t, "Load steps to begin", st.Label)
	assert.Nil(t, st.Highlight)

	text, err = doc.VisibleText(ctx)
	require.NoError(t, err)
	assert.NotContains(t, text, "Thanks!")
}

func TestSession_SuccessIndicatorIsOptional(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newPage(t, `<p>no banner</p>`), nil, WithSuccessSelector("#done"))
	require.NoError(t, h.session.Load(ctx, navigateSteps(1)))
	require.NoError(t, h.session.Reset(ctx))
}

func TestSession_LoadBytes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFixture(t), nil)
	s := h.session

	require.NoError(t, s.LoadBytes(ctx, []byte(`{"steps":[{"action":"navigate"},{"action":"click"}]}`), schemas.FormatJSON))
	assert.Equal(t, 2, s.State().Total)

	err := s.LoadBytes(ctx, []byte(`{"steps": [`), schemas.FormatJSON)
	assert.ErrorIs(t, err, ErrMalformedCollection)
	assert.Equal(t, []string{"Invalid JSON file."}, h.notifier.Alerts())
	assert.Equal(t, 2, s.State().Total, "a malformed payload leaves the previous collection loaded")
}

func TestSession_LoadExample(t *testing.T) {
	ctx := context.Background()

	t.Run("bundled collection", func(t *testing.T) {
		h := newHarness(t, newFixture(t), nil)
		require.NoError(t, h.session.LoadExample(ctx))
		assert.Equal(t, 11, h.session.State().Total)
		assert.Empty(t, h.notifier.Alerts())
	})

	t.Run("loader failure alerts", func(t *testing.T) {
		h := newHarness(t, newFixture(t), nil, WithExampleLoader(func(context.Context) ([]byte, error) {
			return nil, errors.New("not reachable")
		}))
		require.Error(t, h.session.LoadExample(ctx))
		assert.Equal(t, []string{"Could not load example steps."}, h.notifier.Alerts())
	})

	t.Run("unparseable example alerts the same way", func(t *testing.T) {
		h := newHarness(t, newFixture(t), nil, WithExampleLoader(func(context.Context) ([]byte, error) {
			return []byte("<html>"), nil
		}))
		require.Error(t, h.session.LoadExample(ctx))
		assert.Equal(t, []string{"Could not load example steps."}, h.notifier.Alerts())
	})
}

func TestSession_BusyRejectsConcurrentControls(t *testing.T) {
	ctx := context.Background()
	source := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, newFixture(t), source)
	s := h.session
	require.NoError(t, s.Load(ctx, schemas.Collection{step(schemas.ActionType, "Email", "a@b.com")}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Start(ctx))
	}()

	<-source.entered
	_, err := s.Advance(ctx)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, s.Reset(ctx), ErrBusy)
	assert.ErrorIs(t, s.Load(ctx, nil), ErrBusy)
	assert.Equal(t, 1, s.State().Total, "state stays readable while an operation runs")

	close(source.release)
	wg.Wait()
	assert.Equal(t, 0, s.State().Index)
}

type blockingSource struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) Lookup(ctx context.Context, _ string) mapping.Result {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return mapping.NotFoundResult()
}

func TestSession_Observer(t *testing.T) {
	ctx := context.Background()
	var states []State
	h := newHarness(t, newFixture(t), nil, WithObserver(func(st State) { states = append(states, st) }))

	require.NoError(t, h.session.Load(ctx, navigateSteps(2)))
	require.NoError(t, h.session.Start(ctx))
	_, err := h.session.Advance(ctx)
	require.NoError(t, err)

	require.Len(t, states, 3)
	assert.Equal(t, -1, states[0].Index)
	assert.Equal(t, 0, states[1].Index)
	assert.Equal(t, 1, states[2].Index)
}

// -- End-to-end walkthroughs --

func TestSession_TypeIntoLabeledInput(t *testing.T) {
	ctx := context.Background()
	doc := newPage(t, `<html><body><label for="em">Email</label><input id="em"></body></html>`)
	h := newHarness(t, doc, nil)

	require.NoError(t, h.session.Load(ctx, schemas.Collection{step(schemas.ActionType, "Email", "a@b.com")}))
	require.NoError(t, h.session.Start(ctx))
	out, err := h.session.Advance(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, StatusPerformed, out.Status)
	assert.Equal(t, "a@b.com", query(t, doc, "#em").Value)
}

func TestSession_SelectViaSynonym(t *testing.T) {
	ctx := context.Background()
	doc := newPage(t, `<html><body><label for="country">Country</label>
		<select id="country"><option>USA</option><option>Canada</option></select></body></html>`)
	h := newHarness(t, doc, nil)

	require.NoError(t, h.session.Load(ctx, schemas.Collection{step(schemas.ActionSelect, "Country", "united states")}))
	require.NoError(t, h.session.Start(ctx))
	out, err := h.session.Advance(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, StatusPerformed, out.Status)
	assert.Equal(t, "USA", out.Detail)
	assert.Equal(t, "USA", query(t, doc, "#country").Value)
}

func TestSession_FailedAssertionAlertsAndAdvances(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newPage(t, `<html><body><p>Hello there</p></body></html>`), nil)

	assertion := schemas.Step{
		Action: schemas.ActionAssert,
		Assert: &schemas.Assertion{Type: schemas.AssertTextContains, Value: schemas.NewScalar("welcome")},
	}
	require.NoError(t, h.session.Load(ctx, schemas.Collection{assertion, {Action: schemas.ActionNavigate}}))
	require.NoError(t, h.session.Start(ctx))
	out, err := h.session.Advance(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, StatusAssertionFailed, out.Status)
	assert.Equal(t, []string{`Assertion failed: could not find "welcome"`}, h.notifier.Alerts())
	assert.Equal(t, 1, h.session.State().Index)
}

func TestSession_ReloadResetsCursorAndCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFixture(t), nil)
	s := h.session
	steps := schemas.Collection{step(schemas.ActionType, "Email", "a@b.com"), step(schemas.ActionNavigate, "", "")}

	require.NoError(t, s.Load(ctx, steps))
	require.NoError(t, s.Start(ctx))
	_, err := s.Advance(ctx)
	require.NoError(t, err)
	require.Positive(t, s.Resolver().Cache().Len())

	require.NoError(t, s.Load(ctx, append(schemas.Collection(nil), steps...)))
	assert.Equal(t, -1, s.State().Index)
	assert.Zero(t, s.Resolver().Cache().Len())
	assert.Nil(t, s.State().Highlight)
}

func TestSession_ExampleWalkthrough(t *testing.T) {
	ctx := context.Background()
	doc := newPage(t, string(examples.SignupPage()))
	stub, err := mapping.ParseDocument(examples.Mappings())
	require.NoError(t, err)

	h := newHarness(t, doc, mapping.Static{Mappings: stub})
	require.NoError(t, h.session.LoadExample(ctx))

	outcomes, err := h.session.RunToEnd(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 11)
	for i, out := range outcomes {
		assert.Equal(t, StatusPerformed, out.Status, "step %d (%s): %s", i, out.Action, out.Message)
	}
	// Rendering resolves each step before it runs, so execution hits the cache.
	assert.Equal(t, StageCache, outcomes[1].Stage)
	assert.Equal(t, "#full_name", outcomes[1].Selector)
	assert.Equal(t, "#email", outcomes[2].Selector)

	assert.Equal(t, "Ada Lovelace", query(t, doc, "#full_name").Value)
	assert.Equal(t, "ada@example.test", query(t, doc, "#email").Value)
	assert.Equal(t, "us", query(t, doc, "#country").Value)
	assert.True(t, query(t, doc, "#terms").Checked)
	assert.True(t, query(t, doc, "#newsletter").Checked)
	assert.Equal(t, "admin", outcomes[5].Detail)
	assert.Equal(t, "phone", outcomes[6].Detail)
	assert.Empty(t, h.notifier.Alerts())
	assert.Equal(t, 10, h.session.State().Index)
}
