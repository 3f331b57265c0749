// internal/browser/dom/selector.go
package dom

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// EscapeCSS escapes s for use as a CSS identifier or inside a quoted CSS
// string, following the CSSOM serialization rules used by CSS.escape.
func EscapeCSS(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case (r >= 0x01 && r <= 0x1f) || r == 0x7f:
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r >= '0' && r <= '9':
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r == '-' && len(runes) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IDSelector returns the "#id" selector for id.
func IDSelector(id string) string {
	return "#" + EscapeCSS(id)
}

// DeriveSelector builds a CSS selector that re-locates node. It prefers the
// element's id, then its name scoped by tag, then a positional path through
// the nearest ancestors: `parent > tag:nth-child(k)`.
func DeriveSelector(node *html.Node) string {
	if node == nil || node.Type != html.ElementNode {
		return ""
	}
	if id := htmlquery.SelectAttr(node, "id"); id != "" {
		return IDSelector(id)
	}

	tag := strings.ToLower(node.Data)
	if name := htmlquery.SelectAttr(node, "name"); name != "" {
		return fmt.Sprintf(`%s[name="%s"]`, tag, EscapeCSS(name))
	}

	parent := node.Parent
	if parent == nil || parent.Type != html.ElementNode {
		return tag
	}
	return fmt.Sprintf("%s > %s:nth-child(%d)", DeriveSelector(parent), tag, elementIndex(node))
}

// elementIndex is the 1-based position of node among its parent's element children.
func elementIndex(node *html.Node) int {
	index := 1
	for prev := node.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if prev.Type == html.ElementNode {
			index++
		}
	}
	return index
}

// UniqueSelector is DeriveSelector, falling back to a positional path when the
// derived form would locate a different element first (for example radios
// that share a name).
func UniqueSelector(root, node *html.Node) string {
	sel := DeriveSelector(node)
	if locatesFirst(root, sel, node) {
		return sel
	}
	parent := node.Parent
	tag := strings.ToLower(node.Data)
	if parent == nil || parent.Type != html.ElementNode {
		return tag
	}
	return fmt.Sprintf("%s > %s:nth-child(%d)", UniqueSelector(root, parent), tag, elementIndex(node))
}

func locatesFirst(root *html.Node, selector string, node *html.Node) bool {
	compiled, err := cascadia.Compile(selector)
	if err != nil {
		return false
	}
	return compiled.MatchFirst(root) == node
}
