// File: internal/walkthrough/executor.go
package walkthrough

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/browser"
	"github.com/xkilldash9x/stepwise/internal/browser/dom"
	"github.com/xkilldash9x/stepwise/internal/textnorm"
)

// Status classifies the outcome of executing a step.
type Status string

const (
	StatusPerformed       Status = "performed"
	StatusSkipped         Status = "skipped-no-element"
	StatusAssertionFailed Status = "assertion-failed"
	StatusNoOp            Status = "no-op"
	StatusFailed          Status = "failed"
)

// Outcome reports what executing a step did to the page.
type Outcome struct {
	Status   Status `json:"status" yaml:"status"`
	Action   string `json:"action" yaml:"action"`
	Stage    Stage  `json:"stage,omitempty" yaml:"stage,omitempty"`
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`
	// Detail carries the action's result, e.g. the chosen option value.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
	// Message explains skips, no-ops and failures.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Executor performs step actions against the page. It never returns an error
// and never panics; every problem is folded into the Outcome and the log.
type Executor struct {
	page     browser.Page
	resolver *Resolver
	notifier Notifier
	logger   *zap.Logger
}

// NewExecutor creates an executor that resolves targets with resolver.
func NewExecutor(page browser.Page, resolver *Resolver, notifier Notifier, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Executor{page: page, resolver: resolver, notifier: notifier, logger: logger.Named("executor")}
}

// Execute runs step's action.
func (e *Executor) Execute(ctx context.Context, step schemas.Step) (out Outcome) {
	out.Action = step.Action
	log := e.logger.With(zap.String("action", step.ActionName()), zap.String("target", step.TargetText))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic while executing step.", zap.Any("panic", r))
			out.Status = StatusFailed
			out.Message = fmt.Sprintf("panic: %v", r)
		}
	}()

	switch step.Action {
	case schemas.ActionNavigate:
		dest := step.TargetText
		if dest == "" {
			dest = "(no URL)"
		}
		log.Info("Navigate step; the current document is kept.", zap.String("destination", dest))
		out.Status = StatusPerformed
		out.Detail = dest
		return out
	case schemas.ActionAssert:
		return e.assert(ctx, step, out, log)
	}

	resolved := e.resolver.Resolve(ctx, step)
	if resolved == nil {
		log.Warn("No element resolved for step; skipping action.")
		out.Status = StatusSkipped
		out.Message = "no element resolved"
		return out
	}
	out.Stage = resolved.Stage
	out.Selector = resolved.Selector
	el := resolved.Element
	log = log.With(zap.String("selector", resolved.Selector), zap.String("stage", string(resolved.Stage)))

	switch step.Action {
	case schemas.ActionType:
		value := step.Value.String()
		if err := firstErr(
			func() error { return e.page.Focus(ctx, resolved.Selector) },
			func() error { return e.page.SetValue(ctx, resolved.Selector, value) },
			func() error { return e.page.Notify(ctx, resolved.Selector, "input") },
		); err != nil {
			return e.failed(out, log, err)
		}
		log.Info("Typed value.")
		out.Status = StatusPerformed
		out.Detail = value

	case schemas.ActionSelect:
		return e.selectOption(ctx, step, el, out, log)

	case schemas.ActionRadio:
		return e.chooseRadio(ctx, step, el, out, log)

	case schemas.ActionCheck:
		if !el.IsCheckbox() {
			log.Warn("Check target is not a checkbox.", zap.String("tag", el.Tag), zap.String("type", el.Type))
			out.Status = StatusNoOp
			out.Message = "target is not a checkbox"
			return out
		}
		if err := e.page.Click(ctx, resolved.Selector); err != nil {
			return e.failed(out, log, err)
		}
		log.Info("Toggled checkbox.")
		out.Status = StatusPerformed
		out.Detail = fmt.Sprintf("checked=%t", !el.Checked)

	case schemas.ActionClick:
		if err := e.page.Click(ctx, resolved.Selector); err != nil {
			return e.failed(out, log, err)
		}
		log.Info("Clicked element.")
		out.Status = StatusPerformed

	default:
		log.Info("Unknown action; no-op.")
		out.Status = StatusNoOp
		out.Message = "unknown action"
	}
	return out
}

func (e *Executor) assert(ctx context.Context, step schemas.Step, out Outcome, log *zap.Logger) Outcome {
	if step.Assert == nil || step.Assert.Type != schemas.AssertTextContains {
		log.Info("Assertion type not supported; no-op.", zap.Any("assert", step.Assert))
		out.Status = StatusNoOp
		out.Message = "unknown assert type"
		return out
	}

	want := step.Assert.Value.String()
	text, err := e.page.VisibleText(ctx)
	if err != nil {
		return e.failed(out, log, err)
	}
	contains := strings.Contains(strings.ToLower(text), strings.ToLower(want))
	log.Info("Assert textContains.", zap.String("value", want), zap.Bool("contains", contains))
	out.Detail = want
	if !contains {
		out.Status = StatusAssertionFailed
		out.Message = fmt.Sprintf(`Assertion failed: could not find "%s"`, want)
		e.notifier.Alert(ctx, out.Message)
		return out
	}
	out.Status = StatusPerformed
	return out
}

// selectOption matches option text by exact normalized equality, then by
// synonym equality, then by inclusion. A change notification fires even when
// nothing matched.
func (e *Executor) selectOption(ctx context.Context, step schemas.Step, el *browser.Element, out Outcome, log *zap.Logger) Outcome {
	if !el.IsSelect() {
		log.Warn("Select target is not a <select>.", zap.String("tag", el.Tag))
		out.Status = StatusNoOp
		out.Message = "target is not a <select>"
		return out
	}

	want := textnorm.Normalize(step.Value.String())
	opt, ok := matchOption(el.Options, want)
	if ok {
		if err := e.page.SetValue(ctx, out.Selector, opt.Value); err != nil {
			return e.failed(out, log, err)
		}
	}
	if err := e.page.Notify(ctx, out.Selector, "change"); err != nil {
		return e.failed(out, log, err)
	}

	if !ok {
		log.Warn("No option matched; selection left unchanged.", zap.String("want", want))
		out.Status = StatusNoOp
		out.Message = fmt.Sprintf("no option matches %q", want)
		out.Detail = el.Value
		return out
	}
	log.Info("Selected option.", zap.String("value", opt.Value), zap.String("text", opt.Text))
	out.Status = StatusPerformed
	out.Detail = opt.Value
	return out
}

func matchOption(options []browser.Option, want string) (browser.Option, bool) {
	synonym, hasSynonym := textnorm.SynonymOf(want)
	passes := []func(text string) bool{
		func(text string) bool { return text == want },
		func(text string) bool { return text == textnorm.Canonical(want) },
		func(text string) bool {
			return strings.Contains(text, want) ||
				(text != "" && strings.Contains(want, text)) ||
				(hasSynonym && strings.Contains(text, synonym))
		},
	}
	for _, pass := range passes {
		for _, opt := range options {
			if pass(textnorm.Normalize(opt.Text)) {
				return opt, true
			}
		}
	}
	return browser.Option{}, false
}

// chooseRadio uses the resolved element only to learn the group name, then
// clicks the group member whose value matches.
func (e *Executor) chooseRadio(ctx context.Context, step schemas.Step, el *browser.Element, out Outcome, log *zap.Logger) Outcome {
	want := textnorm.Normalize(step.Value.String())

	var radios []*browser.Element
	if el.Name != "" {
		group := fmt.Sprintf(`input[type="radio"][name="%s"]`, dom.EscapeCSS(el.Name))
		found, err := e.page.QueryAll(ctx, group)
		if err != nil {
			return e.failed(out, log, err)
		}
		radios = found
	} else if el.Tag == "input" && el.Type == "radio" {
		radios = []*browser.Element{el}
	}

	target, ok := matchRadio(radios, want)
	if !ok {
		log.Warn("Could not match radio value.", zap.String("want", want), zap.String("group", el.Name))
		out.Status = StatusNoOp
		out.Message = fmt.Sprintf("no radio matches %q", want)
		return out
	}
	if err := e.page.Click(ctx, target.Selector); err != nil {
		return e.failed(out, log, err)
	}
	log.Info("Selected radio.", zap.String("value", target.Value))
	out.Status = StatusPerformed
	out.Selector = target.Selector
	out.Detail = target.Value
	return out
}

func matchRadio(radios []*browser.Element, want string) (*browser.Element, bool) {
	synonym, hasSynonym := textnorm.SynonymOf(want)
	passes := []func(value string) bool{
		func(value string) bool { return value == want },
		func(value string) bool { return strings.Contains(value, want) },
		func(value string) bool { return hasSynonym && value == synonym },
	}
	for _, pass := range passes {
		for _, r := range radios {
			if pass(textnorm.Normalize(r.Value)) {
				return r, true
			}
		}
	}
	return nil, false
}

// firstErr runs steps in order and stops at the first failure.
func firstErr(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) failed(out Outcome, log *zap.Logger, err error) Outcome {
	log.Warn("Page operation failed.", zap.Error(err))
	out.Status = StatusFailed
	out.Message = err.Error()
	return out
}
