// File: internal/walkthrough/session.go
// A Session owns one loaded step collection, the cursor into it and the
// selector cache built while walking it. Control operations (load, start,
// advance, retreat, reset) are serialized with a try-lock: a call that arrives
// while another is still running is rejected with ErrBusy instead of queueing,
// which is the server-side equivalent of disabling a button while it works.
package walkthrough

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/browser"
	"github.com/xkilldash9x/stepwise/internal/examples"
	"github.com/xkilldash9x/stepwise/internal/mapping"
)

const (
	// DefaultSuccessSelector locates the success indicator hidden on load and reset.
	DefaultSuccessSelector = "#success"

	emptyLabel          = "Load steps to begin"
	alertInvalidJSON    = "Invalid JSON file."
	alertExampleFailure = "Could not load example steps."
)

// ExampleLoader returns the raw JSON of the example collection.
type ExampleLoader func(ctx context.Context) ([]byte, error)

// State is a snapshot of the session as the control panel shows it.
type State struct {
	SessionID string             `json:"session_id" yaml:"session_id"`
	Index     int                `json:"index" yaml:"index"`
	Total     int                `json:"total" yaml:"total"`
	Counter   string             `json:"counter" yaml:"counter"`
	Label     string             `json:"label" yaml:"label"`
	Highlight *schemas.Highlight `json:"highlight,omitempty" yaml:"highlight,omitempty"`
}

// Session drives a walkthrough over a single page.
type Session struct {
	id     string
	page   browser.Page
	logger *zap.Logger

	cache    *SelectorCache
	resolver *Resolver
	executor *Executor

	presenter       Presenter
	notifier        Notifier
	examples        ExampleLoader
	successSelector string
	scanner         Scanner
	observers       []func(State)

	// op serializes control operations; mu guards the fields below.
	op        sync.Mutex
	mu        sync.RWMutex
	steps     schemas.Collection
	index     int
	highlight *schemas.Highlight
}

// SessionOption configures a Session.
type SessionOption func(*Session)

func WithPresenter(p Presenter) SessionOption {
	return func(s *Session) { s.presenter = p }
}

func WithNotifier(n Notifier) SessionOption {
	return func(s *Session) { s.notifier = n }
}

// WithSuccessSelector overrides DefaultSuccessSelector.
func WithSuccessSelector(selector string) SessionOption {
	return func(s *Session) {
		if selector != "" {
			s.successSelector = selector
		}
	}
}

func WithExampleLoader(l ExampleLoader) SessionOption {
	return func(s *Session) { s.examples = l }
}

// WithHeuristics replaces the heuristic scanner used by the session's resolver.
func WithHeuristics(sc Scanner) SessionOption {
	return func(s *Session) { s.scanner = sc }
}

// WithObserver registers fn to receive the state after every operation that
// changed it.
func WithObserver(fn func(State)) SessionOption {
	return func(s *Session) { s.observers = append(s.observers, fn) }
}

// NewSession creates an empty session over page. source may be nil.
func NewSession(page browser.Page, source mapping.Source, logger *zap.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		id:              uuid.NewString(),
		page:            page,
		cache:           NewSelectorCache(),
		examples:        func(context.Context) ([]byte, error) { return examples.Steps(), nil },
		successSelector: DefaultSuccessSelector,
		index:           -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Named("session").With(zap.String("session_id", s.id))
	if s.presenter == nil {
		s.presenter = NewLogPresenter(logger)
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(logger)
	}

	var resolverOpts []ResolverOption
	if s.scanner != nil {
		resolverOpts = append(resolverOpts, WithScanner(s.scanner))
	}
	s.resolver = NewResolver(page, source, s.cache, logger, resolverOpts...)
	s.executor = NewExecutor(page, s.resolver, s.notifier, logger)
	return s
}

func (s *Session) ID() string { return s.id }

// Resolver exposes the session's resolver for read-only inspection.
func (s *Session) Resolver() *Resolver { return s.resolver }

// Steps returns a copy of the loaded collection.
func (s *Session) Steps() schemas.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(schemas.Collection(nil), s.steps...)
}

// State returns the current panel state. It never blocks on a running operation.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{
		SessionID: s.id,
		Index:     s.index,
		Total:     len(s.steps),
		Counter:   fmt.Sprintf("Step %d/%d", s.index+1, len(s.steps)),
		Label:     emptyLabel,
	}
	if s.index >= 0 {
		st.Label = s.steps[s.index].Label()
	}
	if s.highlight != nil {
		h := *s.highlight
		st.Highlight = &h
	}
	return st
}

// -- Control operations --

// Load replaces the collection. The cursor returns to Empty and the cache is cleared.
func (s *Session) Load(ctx context.Context, steps schemas.Collection) error {
	if !s.op.TryLock() {
		return ErrBusy
	}
	defer s.op.Unlock()
	s.load(ctx, steps)
	return nil
}

// LoadBytes parses data and loads it. A malformed payload raises an alert and
// leaves the current collection in place.
func (s *Session) LoadBytes(ctx context.Context, data []byte, format schemas.CollectionFormat) error {
	if !s.op.TryLock() {
		return ErrBusy
	}
	defer s.op.Unlock()

	steps, err := schemas.ParseCollection(data, format)
	if err != nil {
		s.logger.Error("Failed to parse step collection.", zap.Error(err))
		s.notifier.Alert(ctx, alertInvalidJSON)
		return err
	}
	s.load(ctx, steps)
	return nil
}

// LoadExample loads the bundled example collection.
func (s *Session) LoadExample(ctx context.Context) error {
	if !s.op.TryLock() {
		return ErrBusy
	}
	defer s.op.Unlock()

	data, err := s.examples(ctx)
	if err == nil {
		var steps schemas.Collection
		if steps, err = schemas.ParseCollection(data, schemas.FormatJSON); err == nil {
			s.load(ctx, steps)
			return nil
		}
	}
	s.logger.Error("Failed to load example steps.", zap.Error(err))
	s.notifier.Alert(ctx, alertExampleFailure)
	return fmt.Errorf("failed to load example steps: %w", err)
}

// Start positions the cursor on the first step. It does nothing for an empty collection.
func (s *Session) Start(ctx context.Context) error {
	if !s.op.TryLock() {
		return ErrBusy
	}
	defer s.op.Unlock()

	if s.total() == 0 {
		return nil
	}
	s.setIndex(0)
	s.render(ctx)
	return nil
}

// Advance executes the current step and then moves forward, stopping at the
// last step. It returns nil without doing anything when the cursor is Empty.
func (s *Session) Advance(ctx context.Context) (*Outcome, error) {
	if !s.op.TryLock() {
		return nil, ErrBusy
	}
	defer s.op.Unlock()
	return s.advance(ctx), nil
}

// Retreat moves back one step without executing anything.
func (s *Session) Retreat(ctx context.Context) error {
	if !s.op.TryLock() {
		return ErrBusy
	}
	defer s.op.Unlock()

	idx, total := s.position()
	if idx < 0 || total == 0 {
		return nil
	}
	s.setIndex(max(0, idx-1))
	s.render(ctx)
	return nil
}

// Reset returns the cursor to Empty, clearing the highlight and hiding the
// success indicator. The collection and cache are kept.
func (s *Session) Reset(ctx context.Context) error {
	if !s.op.TryLock() {
		return ErrBusy
	}
	defer s.op.Unlock()

	s.setIndex(-1)
	s.clearHighlight(ctx)
	s.hideSuccess(ctx)
	s.publish()
	return nil
}

// RunToEnd starts the walkthrough and advances through every step once,
// returning the outcome of each.
func (s *Session) RunToEnd(ctx context.Context) ([]Outcome, error) {
	if !s.op.TryLock() {
		return nil, ErrBusy
	}
	defer s.op.Unlock()

	total := s.total()
	if total == 0 {
		return nil, nil
	}
	s.setIndex(0)
	s.render(ctx)

	outcomes := make([]Outcome, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		if out := s.advance(ctx); out != nil {
			outcomes = append(outcomes, *out)
		}
	}
	return outcomes, nil
}

// -- Internals; callers hold s.op --

func (s *Session) load(ctx context.Context, steps schemas.Collection) {
	s.mu.Lock()
	s.steps = steps
	s.index = -1
	s.mu.Unlock()

	s.cache.Clear()
	s.hideSuccess(ctx)
	s.clearHighlight(ctx)
	s.logger.Info("Loaded step collection.", zap.Int("steps", len(steps)))
	s.publish()
}

func (s *Session) advance(ctx context.Context) *Outcome {
	idx, total := s.position()
	if idx < 0 || total == 0 {
		return nil
	}
	s.mu.RLock()
	step := s.steps[idx]
	s.mu.RUnlock()

	out := s.executor.Execute(ctx, step)
	s.logger.Debug("Executed step.",
		zap.Int("index", idx),
		zap.String("status", string(out.Status)),
		zap.String("selector", out.Selector),
	)
	s.setIndex(min(total-1, idx+1))
	s.render(ctx)
	return &out
}

// render resolves the current step and highlights it. It has no action side effects.
func (s *Session) render(ctx context.Context) {
	defer s.publish()

	s.mu.RLock()
	idx := s.index
	var step schemas.Step
	if idx >= 0 && idx < len(s.steps) {
		step = s.steps[idx]
	}
	s.mu.RUnlock()
	if idx < 0 {
		s.clearHighlight(ctx)
		return
	}

	resolved := s.resolver.Resolve(ctx, step)
	if resolved == nil {
		s.clearHighlight(ctx)
		return
	}

	h := schemas.Highlight{Selector: resolved.Selector}
	rect, scrollY, err := s.page.Geometry(ctx, resolved.Selector)
	switch {
	case err == nil:
		h = schemas.NewHighlight(resolved.Selector, rect, scrollY)
	case errors.Is(err, browser.ErrNoGeometry):
	default:
		s.logger.Warn("Could not measure highlighted element.", zap.String("selector", resolved.Selector), zap.Error(err))
	}

	if err := s.presenter.Present(ctx, h); err != nil {
		s.logger.Warn("Presenter failed to show highlight.", zap.Error(err))
	}
	s.mu.Lock()
	s.highlight = &h
	s.mu.Unlock()
}

func (s *Session) clearHighlight(ctx context.Context) {
	if err := s.presenter.Clear(ctx); err != nil {
		s.logger.Warn("Presenter failed to clear highlight.", zap.Error(err))
	}
	s.mu.Lock()
	s.highlight = nil
	s.mu.Unlock()
}

func (s *Session) hideSuccess(ctx context.Context) {
	err := s.page.SetVisible(ctx, s.successSelector, false)
	switch {
	case err == nil:
	case errors.Is(err, browser.ErrNotFound):
		s.logger.Debug("No success indicator on page.", zap.String("selector", s.successSelector))
	default:
		s.logger.Warn("Failed to hide success indicator.", zap.Error(err))
	}
}

func (s *Session) publish() {
	if len(s.observers) == 0 {
		return
	}
	st := s.State()
	for _, fn := range s.observers {
		fn(st)
	}
}

func (s *Session) setIndex(i int) {
	s.mu.Lock()
	s.index = i
	s.mu.Unlock()
}

func (s *Session) position() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index, len(s.steps)
}

func (s *Session) total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.steps)
}
