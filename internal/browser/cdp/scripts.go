// internal/browser/cdp/scripts.go
package cdp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/stepwise/internal/browser"
)

// prelude is shared by every evaluated script. The selector helpers mirror
// dom.DeriveSelector and dom.UniqueSelector so both page implementations
// describe elements with the same selectors.
const prelude = `
const esc = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : String(s).replace(/[^a-zA-Z0-9_\-\u0080-\uFFFF]/g, (c) => '\\' + c);
const nth = (el) => { let i = 1; for (let p = el.previousElementSibling; p; p = p.previousElementSibling) i++; return i; };
const derive = (el) => {
  if (el.id) return '#' + esc(el.id);
  const tag = el.tagName.toLowerCase();
  const name = el.getAttribute('name');
  if (name) return tag + '[name="' + esc(name) + '"]';
  const parent = el.parentElement;
  if (!parent) return tag;
  return derive(parent) + ' > ' + tag + ':nth-child(' + nth(el) + ')';
};
const unique = (el) => {
  const sel = derive(el);
  try { if (document.querySelector(sel) === el) return sel; } catch (e) {}
  const tag = el.tagName.toLowerCase();
  const parent = el.parentElement;
  if (!parent) return tag;
  return unique(parent) + ' > ' + tag + ':nth-child(' + nth(el) + ')';
};
const describe = (el) => {
  const tag = el.tagName.toLowerCase();
  const d = { selector: unique(el), tag: tag, id: el.id || '', name: el.getAttribute('name') || '', text: el.textContent || '' };
  if (tag === 'input') {
    d.type = (el.getAttribute('type') || 'text').trim().toLowerCase() || 'text';
    d.value = el.value;
    d.checked = !!el.checked;
  } else if (tag === 'textarea') {
    d.value = el.value;
  } else if (tag === 'select') {
    d.value = el.value;
    d.options = Array.from(el.options).map((o) => ({ text: o.textContent || '', value: o.value, selected: o.selected }));
  } else if (tag === 'button') {
    d.type = (el.getAttribute('type') || 'submit').toLowerCase();
    d.value = el.value;
  } else if (tag === 'option') {
    d.value = el.value;
    d.checked = el.selected;
  }
  return d;
};
const find = (sel) => {
  try {
    const el = document.querySelector(sel);
    return el ? { el: el } : { res: { code: 'not_found' } };
  } catch (e) {
    return { res: { code: 'invalid_selector', message: String(e) } };
  }
};
const withElement = (sel, fn) => {
  const f = find(sel);
  if (!f.el) return f.res;
  return { ok: true, value: fn(f.el) };
};
`

// Evaluated functions. Each returns an envelope {ok, code, message, value}.
const (
	fnQuery = `(sel) => withElement(sel, describe)`

	fnQueryAll = `(sel) => {
  try {
    return { ok: true, value: Array.from(document.querySelectorAll(sel)).map(describe) };
  } catch (e) {
    return { code: 'invalid_selector', message: String(e) };
  }
}`

	fnFocus = `(sel) => withElement(sel, (el) => { el.focus(); return null; })`

	fnSetValue = `(sel, value) => withElement(sel, (el) => { el.value = value; return null; })`

	fnClick = `(sel) => withElement(sel, (el) => { el.click(); return null; })`

	fnNotify = `(sel, type) => withElement(sel, (el) => { el.dispatchEvent(new Event(type, { bubbles: true })); return null; })`

	fnSetVisible = `(sel, visible) => withElement(sel, (el) => { el.style.display = visible ? '' : 'none'; return null; })`

	fnGeometry = `(sel) => withElement(sel, (el) => {
  const r = el.getBoundingClientRect();
  return { x: r.left, y: r.top, width: r.width, height: r.height, scroll_y: window.scrollY };
})`

	fnSnapshot = `() => ({ ok: true, value: document.documentElement ? document.documentElement.outerHTML : '' })`

	fnVisibleText = `() => ({ ok: true, value: document.body ? document.body.innerText : '' })`

	fnShowOverlay = `(sel, id, box) => withElement(sel, (el) => {
  el.scrollIntoView({ behavior: 'instant', block: 'center' });
  document.querySelectorAll('.stepwise-highlight').forEach((n) => n.classList.remove('stepwise-highlight'));
  el.classList.add('stepwise-highlight');
  let overlay = document.getElementById(id);
  if (!overlay) {
    overlay = document.createElement('div');
    overlay.id = id;
    overlay.style.position = 'absolute';
    overlay.style.pointerEvents = 'none';
    overlay.style.zIndex = '2147483647';
    overlay.style.border = '2px solid #f59e0b';
    overlay.style.borderRadius = '6px';
    overlay.style.boxShadow = '0 0 0 9999px rgba(0, 0, 0, 0.35)';
    document.body.appendChild(overlay);
  }
  overlay.style.left = box.left + 'px';
  overlay.style.top = box.top + 'px';
  overlay.style.width = box.width + 'px';
  overlay.style.height = box.height + 'px';
  overlay.style.display = box.has_geometry ? 'block' : 'none';
  return null;
})`

	fnHideOverlay = `(id) => {
  document.querySelectorAll('.stepwise-highlight').forEach((n) => n.classList.remove('stepwise-highlight'));
  const overlay = document.getElementById(id);
  if (overlay) overlay.remove();
  return { ok: true, value: null };
}`
)

// buildScript wraps fn in an IIFE with the prelude and applies the JSON
// encoded args, so selectors and values never need manual quoting.
func buildScript(fn string, args ...interface{}) (string, error) {
	encoded := make([]string, 0, len(args))
	for _, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("failed to encode script argument: %w", err)
		}
		encoded = append(encoded, string(b))
	}
	var b strings.Builder
	b.WriteString("(() => {")
	b.WriteString(prelude)
	b.WriteString("return (")
	b.WriteString(fn)
	b.WriteString(")(")
	b.WriteString(strings.Join(encoded, ", "))
	b.WriteString(");\n})()")
	return b.String(), nil
}

// envelope is the common result shape of every evaluated function.
type envelope struct {
	OK      bool            `json:"ok"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Value   json.RawMessage `json:"value"`
}

var errEmptyResult = errors.New("script returned no result")

// decodeEnvelope maps script failures onto the browser package's sentinel errors.
func decodeEnvelope(raw []byte, selector string) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errEmptyResult
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode script result: %w", err)
	}
	if env.OK {
		return env.Value, nil
	}
	switch env.Code {
	case "not_found":
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	case "invalid_selector":
		return nil, fmt.Errorf("%w: %q: %s", browser.ErrInvalidSelector, selector, env.Message)
	default:
		return nil, fmt.Errorf("script failed for '%s': %s %s", selector, env.Code, env.Message)
	}
}
