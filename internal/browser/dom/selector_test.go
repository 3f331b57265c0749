// internal/browser/dom/selector_test.go
package dom

import (
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parseTree(t *testing.T, src string) *html.Node {
	t.Helper()
	root, err := htmlquery.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return root
}

func TestEscapeCSS(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"em", "em"},
		{"first_name", "first_name"},
		{"1a", `\31 a`},
		{"-1", `-\31 `},
		{"-", `\-`},
		{"a.b", `a\.b`},
		{"a b", `a\ b`},
		{`say"hi"`, `say\"hi\"`},
		{"tab\there", `tab\9 here`},
		{"ünï", "ünï"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, EscapeCSS(tc.in), "EscapeCSS(%q)", tc.in)
	}
}

func TestDeriveSelector_Preferences(t *testing.T) {
	root := parseTree(t, `<html><body>
		<form>
			<input id="em" name="email">
			<input name="user name">
			<div><span>a</span><button>Go</button></div>
		</form>
	</body></html>`)

	byID := htmlquery.FindOne(root, "//input[@id='em']")
	assert.Equal(t, "#em", DeriveSelector(byID))

	byName := htmlquery.FindOne(root, "//input[@name='user name']")
	assert.Equal(t, `input[name="user\ name"]`, DeriveSelector(byName))

	button := htmlquery.FindOne(root, "//button")
	assert.Equal(t,
		"html > body:nth-child(2) > form:nth-child(1) > div:nth-child(3) > button:nth-child(2)",
		DeriveSelector(button))

	htmlEl := htmlquery.FindOne(root, "/html")
	assert.Equal(t, "html", DeriveSelector(htmlEl))
	assert.Equal(t, "", DeriveSelector(nil))
}

// Every derived selector must re-locate the node it was derived from.
func TestDeriveSelector_RoundTrip(t *testing.T) {
	root := parseTree(t, `<html><body>
		<div id="1st"><p>one</p><p>two</p></div>
		<ul><li>a</li><li><a href="#">b</a></li></ul>
		<select name="country"><option>USA</option></select>
		<label>x <input type="checkbox"></label>
	</body></html>`)

	for _, n := range htmlquery.Find(root, "//body//*") {
		sel := DeriveSelector(n)
		compiled, err := cascadia.Compile(sel)
		require.NoError(t, err, "selector %q", sel)
		assert.Same(t, n, compiled.MatchFirst(root), "selector %q", sel)
	}
}

func findLabel(t *testing.T, root *html.Node) *html.Node {
	t.Helper()
	n := htmlquery.FindOne(root, "//label[@for='em']")
	require.NotNil(t, n)
	return n
}

func TestUniqueSelector_SharedNames(t *testing.T) {
	root := parseTree(t, `<html><body><fieldset>
		<input type="radio" name="acct" value="admin">
		<input type="radio" name="acct" value="user">
	</fieldset></body></html>`)

	radios := htmlquery.Find(root, "//input")
	require.Len(t, radios, 2)
	assert.Equal(t, `input[name="acct"]`, UniqueSelector(root, radios[0]))
	assert.Equal(t,
		"html > body:nth-child(2) > fieldset:nth-child(1) > input:nth-child(2)",
		UniqueSelector(root, radios[1]))
}
