// File: internal/walkthrough/strategies.go
// Heuristic resolution runs over a parsed snapshot of the live document. Each
// strategy is a pure function of the normalized target text and the snapshot;
// the first strategy that produces a selector wins, even if that selector later
// fails to locate anything on the live page.
package walkthrough

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/stepwise/internal/browser/dom"
	"github.com/xkilldash9x/stepwise/internal/textnorm"
)

// Strategy is one heuristic used to turn target text into a selector.
type Strategy struct {
	Name string
	Find func(target string, doc *html.Node) (string, bool)
}

// Match is a selector produced by a named strategy.
type Match struct {
	Selector string
	Strategy string
}

// Scanner runs the heuristic inventory scan. The target is already normalized.
type Scanner interface {
	Scan(target string, doc *html.Node) (Match, bool)
}

// HeuristicScanner tries its strategies in order.
type HeuristicScanner struct {
	Strategies []Strategy
}

// NewHeuristicScanner returns a scanner with DefaultStrategies.
func NewHeuristicScanner() *HeuristicScanner {
	return &HeuristicScanner{Strategies: DefaultStrategies()}
}

func (h *HeuristicScanner) Scan(target string, doc *html.Node) (Match, bool) {
	if doc == nil {
		return Match{}, false
	}
	for _, s := range h.Strategies {
		if sel, ok := s.Find(target, doc); ok && sel != "" {
			return Match{Selector: sel, Strategy: s.Name}, true
		}
	}
	return Match{}, false
}

// DefaultStrategies lists the built-in heuristics in precedence order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "label-for", Find: findByLabelFor},
		{Name: "control-affinity", Find: findByControlText},
		{Name: "checkbox-label", Find: findCheckboxByLabel},
		{Name: "radio-legend", Find: findRadioByLegend},
		{Name: "fixed-anchor", Find: findFixedAnchor},
		{Name: "id-guess", Find: findByIDGuess},
	}
}

var (
	controlsSelector = cascadia.MustCompile(`input, select, button, [role="button"]`)
	legendSelector   = cascadia.MustCompile(`fieldset > legend`)
	checkboxSelector = cascadia.MustCompile(`input[type="checkbox"]`)
	radioSelector    = cascadia.MustCompile(`input[type="radio"]`)
	buttonSelector   = cascadia.MustCompile(`button`)
)

const (
	createAccountID    = "create_account"
	successIndicatorID = "success"
)

func normalizedText(n *html.Node) string {
	return textnorm.Normalize(dom.TextContent(n))
}

// findByLabelFor matches <label for> text against the target. An empty target
// overlaps every label.
func findByLabelFor(target string, doc *html.Node) (string, bool) {
	for _, label := range htmlquery.Find(doc, "//label[@for]") {
		if !textnorm.Overlaps(normalizedText(label), target) {
			continue
		}
		if forID := htmlquery.SelectAttr(label, "for"); forID != "" {
			return dom.IDSelector(forID), true
		}
	}
	return "", false
}

// findByControlText matches a control's own text or its placeholder.
func findByControlText(target string, doc *html.Node) (string, bool) {
	for _, control := range controlsSelector.MatchAll(doc) {
		text := normalizedText(control)
		placeholder := textnorm.Normalize(htmlquery.SelectAttr(control, "placeholder"))
		if (text != "" && textnorm.Overlaps(text, target)) ||
			(placeholder != "" && textnorm.Overlaps(placeholder, target)) {
			return dom.DeriveSelector(control), true
		}
	}
	return "", false
}

// findCheckboxByLabel only fires for consent and subscription wording.
func findCheckboxByLabel(target string, doc *html.Node) (string, bool) {
	for _, label := range htmlquery.Find(doc, "//label") {
		text := normalizedText(label)
		matched := (strings.Contains(target, "agree") && strings.Contains(text, "agree")) ||
			(strings.Contains(target, "terms") && strings.Contains(text, "terms")) ||
			(strings.Contains(target, "newsletter") &&
				(strings.Contains(text, "newsletter") || strings.Contains(text, "subscribe")))
		if !matched {
			continue
		}
		if input := checkboxSelector.MatchFirst(label); input != nil {
			return dom.DeriveSelector(input), true
		}
	}
	return "", false
}

// findRadioByLegend picks the first radio of a fieldset whose legend matches.
// The radio action chooses the actual option later.
func findRadioByLegend(target string, doc *html.Node) (string, bool) {
	for _, legend := range legendSelector.MatchAll(doc) {
		if !textnorm.Overlaps(normalizedText(legend), target) || legend.Parent == nil {
			continue
		}
		if radio := radioSelector.MatchFirst(legend.Parent); radio != nil {
			return dom.DeriveSelector(radio), true
		}
	}
	return "", false
}

func findFixedAnchor(target string, doc *html.Node) (string, bool) {
	if strings.Contains(target, "create account") {
		if btn := elementByID(doc, createAccountID); btn != nil {
			return dom.DeriveSelector(btn), true
		}
		for _, btn := range buttonSelector.MatchAll(doc) {
			if strings.Contains(normalizedText(btn), "create") {
				return dom.DeriveSelector(btn), true
			}
		}
	}
	if strings.Contains(target, "success") && elementByID(doc, successIndicatorID) != nil {
		return "#" + successIndicatorID, true
	}
	return "", false
}

// findByIDGuess treats the target, with whitespace runs replaced by
// underscores, as an element id.
func findByIDGuess(target string, doc *html.Node) (string, bool) {
	guess := textnorm.CollapseSpaces(target)
	if guess == "" || elementByID(doc, guess) == nil {
		return "", false
	}
	return dom.IDSelector(guess), true
}

// elementByID returns the first element in document order whose id is exactly id.
func elementByID(doc *html.Node, id string) *html.Node {
	for _, n := range htmlquery.Find(doc, "//*[@id]") {
		if htmlquery.SelectAttr(n, "id") == id {
			return n
		}
	}
	return nil
}
