// File: internal/walkthrough/resolver_test.go
package walkthrough

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/mapping"
)

func TestResolver_Idempotent(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(newFixture(t), nil, nil, zaptest.NewLogger(t))
	s := step(schemas.ActionType, "Email", "a@b.com")

	first := r.Resolve(ctx, s)
	require.NotNil(t, first)
	second := r.Resolve(ctx, s)
	require.NotNil(t, second)

	assert.Equal(t, first.Selector, second.Selector)
	assert.Equal(t, first.Element, second.Element)
	assert.Equal(t, StageHeuristic, first.Stage)
	assert.Equal(t, StageCache, second.Stage)
}

func TestResolver_SameResultWithoutCache(t *testing.T) {
	ctx := context.Background()
	doc := newFixture(t)
	s := step(schemas.ActionRadio, "Account type", "admin")

	cached := NewResolver(doc, nil, nil, zaptest.NewLogger(t))
	warm := cached.Resolve(ctx, s)
	require.NotNil(t, warm)
	hit := cached.Resolve(ctx, s)
	require.NotNil(t, hit)

	cold := NewResolver(doc, nil, nil, zaptest.NewLogger(t)).Resolve(ctx, s)
	require.NotNil(t, cold)
	assert.Equal(t, cold.Selector, hit.Selector)
	assert.Equal(t, cold.Element, hit.Element)
}

func TestResolver_CacheShortCircuit(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{}
	scanner := newCountingScanner()
	r := NewResolver(newFixture(t), source, nil, zaptest.NewLogger(t), WithScanner(scanner))
	s := step(schemas.ActionType, "Email", "a@b.com")

	require.NotNil(t, r.Resolve(ctx, s))
	assert.EqualValues(t, 1, source.calls.Load())
	assert.EqualValues(t, 1, scanner.calls.Load())

	for i := 0; i < 3; i++ {
		res := r.Resolve(ctx, s)
		require.NotNil(t, res)
		assert.Equal(t, StageCache, res.Stage)
	}
	assert.EqualValues(t, 1, source.calls.Load(), "cache hit must not reach the mapping stage")
	assert.EqualValues(t, 1, scanner.calls.Load(), "cache hit must not reach the heuristic stage")

	t.Run("stale entry reruns the full pipeline", func(t *testing.T) {
		r.Cache().Put(s.Identity(), "#gone")
		res := r.Resolve(ctx, s)
		require.NotNil(t, res)
		assert.Equal(t, StageHeuristic, res.Stage)
		assert.Equal(t, "#em", res.Selector)
		assert.EqualValues(t, 2, source.calls.Load())
		assert.EqualValues(t, 2, scanner.calls.Load())

		sel, ok := r.Cache().Get(s.Identity())
		require.True(t, ok)
		assert.Equal(t, "#em", sel)
	})
}

func TestResolver_ExplicitSelectorBeatsMapping(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{inner: mapping.Static{Mappings: []schemas.TargetMapping{
		{TargetText: "Country", Selector: "#country"},
	}}}
	r := NewResolver(newFixture(t), source, nil, zaptest.NewLogger(t))

	s := step(schemas.ActionClick, "Country", "")
	s.Selector = "#em"
	res := r.Resolve(ctx, s)
	require.NotNil(t, res)
	assert.Equal(t, StageSelector, res.Stage)
	assert.Equal(t, "#em", res.Selector)
	assert.Zero(t, source.calls.Load())

	t.Run("missing or invalid selector falls through", func(t *testing.T) {
		for _, sel := range []string{"#missing", "[["} {
			r.Cache().Clear()
			s := step(schemas.ActionClick, "Country", "")
			s.Selector = sel
			res := r.Resolve(ctx, s)
			require.NotNil(t, res, sel)
			assert.Equal(t, StageMapping, res.Stage)
			assert.Equal(t, "#country", res.Selector)
		}
	})
}

func TestResolver_MappingStage(t *testing.T) {
	ctx := context.Background()

	t.Run("found and present", func(t *testing.T) {
		r := NewResolver(newFixture(t), fixedSource{mapping.FoundResult("#role")}, nil, zaptest.NewLogger(t))
		res := r.Resolve(ctx, step(schemas.ActionSelect, "Email", "admin"))
		require.NotNil(t, res)
		assert.Equal(t, StageMapping, res.Stage)
		assert.Equal(t, "#role", res.Selector)
	})

	t.Run("found but absent degrades to heuristics", func(t *testing.T) {
		r := NewResolver(newFixture(t), fixedSource{mapping.FoundResult("#nope")}, nil, zaptest.NewLogger(t))
		res := r.Resolve(ctx, step(schemas.ActionType, "Email", ""))
		require.NotNil(t, res)
		assert.Equal(t, StageHeuristic, res.Stage)
	})

	t.Run("skipped without target text", func(t *testing.T) {
		source := &countingSource{}
		r := NewResolver(newFixture(t), source, nil, zaptest.NewLogger(t))
		s := schemas.Step{Action: schemas.ActionClick, Selector: "#missing"}
		_ = r.Resolve(ctx, s)
		assert.Zero(t, source.calls.Load())
	})
}

func TestResolver_LookupOutcomesAreLoggedDistinctly(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	failing := NewResolver(newFixture(t), fixedSource{mapping.ErrorResult(errors.New("connection refused"))}, nil, logger)
	res := failing.Resolve(ctx, step(schemas.ActionType, "Email", ""))
	require.NotNil(t, res, "a lookup failure must degrade to the heuristic stage")
	assert.Equal(t, StageHeuristic, res.Stage)

	warned := logs.FilterMessage("Mapping lookup failed; continuing with heuristics.").All()
	require.Len(t, warned, 1)
	assert.Equal(t, zapcore.WarnLevel, warned[0].Level)

	missing := NewResolver(newFixture(t), fixedSource{mapping.NotFoundResult()}, nil, logger)
	require.NotNil(t, missing.Resolve(ctx, step(schemas.ActionType, "Email", "")))
	notFound := logs.FilterMessage("No mapping for target.").All()
	require.Len(t, notFound, 1)
	assert.Equal(t, zapcore.DebugLevel, notFound[0].Level)
}

func TestResolver_NormalizesTargetText(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(newFixture(t), nil, nil, zaptest.NewLogger(t))

	padded := r.Resolve(ctx, step(schemas.ActionType, "  Email  ", ""))
	plain := r.Resolve(ctx, step(schemas.ActionType, "email", ""))
	require.NotNil(t, padded)
	require.NotNil(t, plain)
	assert.Equal(t, plain.Selector, padded.Selector)
}

func TestResolver_Miss(t *testing.T) {
	r := NewResolver(newFixture(t), nil, nil, zaptest.NewLogger(t))
	assert.Nil(t, r.Resolve(context.Background(), step(schemas.ActionClick, "nothing resembles this", "")))
	assert.Zero(t, r.Cache().Len())
}
