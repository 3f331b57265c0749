// internal/browser/dom/nodes.go
package dom

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/stepwise/internal/browser"
)

// describe captures the observable state of an element.
func describe(root, n *html.Node) *browser.Element {
	tag := strings.ToLower(n.Data)
	el := &browser.Element{
		Selector: UniqueSelector(root, n),
		Tag:      tag,
		ID:       htmlquery.SelectAttr(n, "id"),
		Name:     htmlquery.SelectAttr(n, "name"),
		Text:     TextContent(n),
	}

	switch tag {
	case "input":
		el.Type = inputType(n)
		el.Value = htmlquery.SelectAttr(n, "value")
		el.Checked = hasAttr(n, "checked")
		if el.Value == "" && (el.Type == "checkbox" || el.Type == "radio") && !hasAttr(n, "value") {
			el.Value = "on"
		}
	case "textarea":
		el.Value = TextContent(n)
	case "select":
		el.Options = selectOptions(n)
		for _, opt := range el.Options {
			if opt.Selected {
				el.Value = opt.Value
				break
			}
		}
	case "button":
		el.Type = strings.ToLower(htmlquery.SelectAttr(n, "type"))
		if el.Type == "" {
			el.Type = "submit"
		}
		el.Value = htmlquery.SelectAttr(n, "value")
	case "option":
		el.Value = optionValue(n)
		el.Checked = hasAttr(n, "selected")
	}
	return el
}

// inputType returns the lower-cased type of an <input>, defaulting to "text".
func inputType(n *html.Node) string {
	t := strings.ToLower(strings.TrimSpace(htmlquery.SelectAttr(n, "type")))
	if t == "" {
		return "text"
	}
	return t
}

func optionNodes(selectNode *html.Node) []*html.Node {
	return htmlquery.Find(selectNode, ".//option")
}

// optionValue is the value attribute, or the collapsed text when absent.
func optionValue(opt *html.Node) string {
	if hasAttr(opt, "value") {
		return htmlquery.SelectAttr(opt, "value")
	}
	return strings.Join(strings.Fields(TextContent(opt)), " ")
}

// selectOptions lists the options of a <select>. When none carries the
// selected attribute the first option is reported as selected, as browsers do
// for single-choice selects.
func selectOptions(selectNode *html.Node) []browser.Option {
	nodes := optionNodes(selectNode)
	options := make([]browser.Option, 0, len(nodes))
	anySelected := false
	for _, opt := range nodes {
		selected := hasAttr(opt, "selected")
		anySelected = anySelected || selected
		options = append(options, browser.Option{
			Text:     TextContent(opt),
			Value:    optionValue(opt),
			Selected: selected,
		})
	}
	if !anySelected && len(options) > 0 {
		options[0].Selected = true
	}
	return options
}

// selectOption marks the first option whose value equals value as selected
// and clears the rest.
func selectOption(selectNode *html.Node, value string) {
	matched := false
	for _, opt := range optionNodes(selectNode) {
		if !matched && optionValue(opt) == value {
			setAttr(opt, "selected", "")
			matched = true
			continue
		}
		removeAttr(opt, "selected")
	}
}

// checkRadio checks element and unchecks the rest of its group, which is
// scoped to the enclosing form or, failing that, the whole document.
func checkRadio(element *html.Node) {
	setAttr(element, "checked", "")
	name := htmlquery.SelectAttr(element, "name")
	if name == "" {
		return
	}

	scope := findParentForm(element)
	if scope == nil {
		scope = element
		for scope.Parent != nil {
			scope = scope.Parent
		}
	}
	for _, radio := range htmlquery.Find(scope, ".//input") {
		if radio == element || inputType(radio) != "radio" || htmlquery.SelectAttr(radio, "name") != name {
			continue
		}
		if findParentForm(radio) != findParentForm(element) {
			continue
		}
		removeAttr(radio, "checked")
	}
}

func findParentForm(element *html.Node) *html.Node {
	for p := element.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && strings.EqualFold(p.Data, "form") {
			return p
		}
	}
	return nil
}

// setDisplayNone adds or removes a display:none declaration in the inline style.
func setDisplayNone(n *html.Node, hidden bool) {
	var kept []string
	for _, decl := range strings.Split(htmlquery.SelectAttr(n, "style"), ";") {
		compact := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(decl), " ", ""))
		if compact == "" || strings.HasPrefix(compact, "display:") {
			continue
		}
		kept = append(kept, strings.TrimSpace(decl))
	}
	if hidden {
		kept = append(kept, "display: none")
	}
	if len(kept) == 0 {
		removeAttr(n, "style")
		return
	}
	setAttr(n, "style", strings.Join(kept, "; "))
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

func removeAttr(n *html.Node, key string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// cloneTree deep-copies n and its descendants.
func cloneTree(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(cloneTree(child))
	}
	return c
}
