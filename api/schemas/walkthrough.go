package schemas

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// -- Walkthrough Step Schemas --

// Action names understood by the executor. Any other string is carried verbatim.
const (
	ActionNavigate = "navigate"
	ActionAssert   = "assert"
	ActionType     = "type"
	ActionSelect   = "select"
	ActionRadio    = "radio"
	ActionCheck    = "check"
	ActionClick    = "click"
)

// AssertTextContains is the only assertion type currently evaluated.
const AssertTextContains = "textContains"

// ErrMalformedCollection is returned when a step payload cannot be decoded at all.
var ErrMalformedCollection = errors.New("malformed step collection")

// CollectionFormat identifies the encoding of a step collection payload.
type CollectionFormat string

const (
	FormatJSON CollectionFormat = "json"
	FormatYAML CollectionFormat = "yaml"
)

// FormatFromPath picks a format from a file extension. Anything that is not
// .yaml or .yml is treated as JSON.
func FormatFromPath(path string) CollectionFormat {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return FormatYAML
	}
	return FormatJSON
}

// Scalar holds a step value as it was written: a string, number or boolean.
// The zero value means "not present" (absent or null).
type Scalar struct {
	text  string
	valid bool
}

// NewScalar builds a present scalar from its string form.
func NewScalar(s string) Scalar { return Scalar{text: s, valid: true} }

// IsSet reports whether a value was supplied.
func (s Scalar) IsSet() bool { return s.valid }

// String renders the value the way it reads in the source document. An unset
// scalar renders as the empty string.
func (s Scalar) String() string { return s.text }

// UnmarshalJSON accepts strings, numbers and booleans. Null leaves the scalar unset.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = Scalar{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var str string
		if err := json.Unmarshal(trimmed, &str); err != nil {
			return err
		}
		*s = NewScalar(str)
	default:
		// Numbers and booleans keep their literal text.
		*s = NewScalar(string(trimmed))
	}
	return nil
}

// MarshalJSON writes the scalar back as a JSON string, or null when unset.
func (s Scalar) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.text)
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML collections.
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("step value must be a scalar, got yaml kind %d", node.Kind)
	}
	if node.Tag == "!!null" {
		*s = Scalar{}
		return nil
	}
	*s = NewScalar(node.Value)
	return nil
}

// MarshalYAML renders the scalar as a plain string, or null when unset.
func (s Scalar) MarshalYAML() (interface{}, error) {
	if !s.valid {
		return nil, nil
	}
	return s.text, nil
}

// Assertion is the structured payload of an assert step.
type Assertion struct {
	Type  string `json:"type" yaml:"type"`
	Value Scalar `json:"value" yaml:"value"`
}

// Step is one unit of a walkthrough. Steps are immutable once loaded.
type Step struct {
	ID         string     `json:"id,omitempty" yaml:"id,omitempty"`
	Action     string     `json:"action,omitempty" yaml:"action,omitempty"`
	TargetText string     `json:"target_text,omitempty" yaml:"target_text,omitempty"`
	Value      Scalar     `json:"value" yaml:"value"`
	Selector   string     `json:"selector,omitempty" yaml:"selector,omitempty"`
	Assert     *Assertion `json:"assert,omitempty" yaml:"assert,omitempty"`
}

// stepWire is the decoding shape of a Step. Recorded collections carry
// numeric or boolean ids and target texts, so those read like Value does.
type stepWire struct {
	ID         Scalar     `json:"id" yaml:"id"`
	Action     string     `json:"action" yaml:"action"`
	TargetText Scalar     `json:"target_text" yaml:"target_text"`
	Value      Scalar     `json:"value" yaml:"value"`
	Selector   string     `json:"selector" yaml:"selector"`
	Assert     *Assertion `json:"assert" yaml:"assert"`
}

func (w stepWire) step() Step {
	return Step{
		ID:         w.ID.String(),
		Action:     w.Action,
		TargetText: w.TargetText.String(),
		Value:      w.Value,
		Selector:   w.Selector,
		Assert:     w.Assert,
	}
}

// UnmarshalJSON decodes a step, ignoring unknown fields. Null leaves s unchanged.
func (s *Step) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var w stepWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = w.step()
	return nil
}

// UnmarshalYAML decodes a step from a YAML mapping.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var w stepWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	*s = w.step()
	return nil
}

// Identity returns the key used to cache the step's resolved selector.
// An explicit id wins; otherwise the key is "action:target_text:value".
func (s Step) Identity() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Action + ":" + s.TargetText + ":" + s.Value.String()
}

// ActionName returns the action, or "unknown" when none was given.
func (s Step) ActionName() string {
	if s.Action == "" {
		return "unknown"
	}
	return s.Action
}

// Label renders a one-line description such as `type • Email = "a@b.com"`.
func (s Step) Label() string {
	var b strings.Builder
	b.WriteString(s.ActionName())
	if s.TargetText != "" {
		b.WriteString(" • ")
		b.WriteString(s.TargetText)
	}
	if s.Value.IsSet() {
		b.WriteString(` = "`)
		b.WriteString(s.Value.String())
		b.WriteString(`"`)
	}
	return b.String()
}

// NeedsElement reports whether the action operates on a resolved element.
func (s Step) NeedsElement() bool {
	return s.Action != ActionNavigate && s.Action != ActionAssert
}

// Collection is an ordered list of steps, loaded wholesale.
type Collection []Step

// ParseCollection decodes a payload holding either a bare array of steps or an
// object with a "steps" array. A payload that decodes but has neither shape
// yields an empty collection. Undecodable payloads return ErrMalformedCollection.
// Step values keep the literal text they were written with in either format.
func ParseCollection(data []byte, format CollectionFormat) (Collection, error) {
	var (
		steps Collection
		err   error
	)
	switch format {
	case FormatYAML:
		steps, err = parseYAMLCollection(data)
	default:
		steps, err = parseJSONCollection(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCollection, err)
	}
	if steps == nil {
		steps = Collection{}
	}
	return steps, nil
}

func parseJSONCollection(data []byte) (Collection, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, errors.New("invalid JSON")
	}

	list := trimmed
	switch trimmed[0] {
	case '[':
	case '{':
		var doc struct {
			Steps json.RawMessage `json:"steps"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, err
		}
		list = bytes.TrimSpace(doc.Steps)
		if len(list) == 0 || list[0] != '[' {
			return nil, nil
		}
	case 'n':
		return nil, errors.New("empty document")
	default:
		return nil, nil
	}

	var steps Collection
	if err := json.Unmarshal(list, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func parseYAMLCollection(data []byte) (Collection, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty document")
	}

	root := doc.Content[0]
	var list *yaml.Node
	switch root.Kind {
	case yaml.SequenceNode:
		list = root
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value == "steps" && root.Content[i+1].Kind == yaml.SequenceNode {
				list = root.Content[i+1]
				break
			}
		}
	case yaml.ScalarNode:
		if root.Tag == "!!null" {
			return nil, errors.New("empty document")
		}
	}
	if list == nil {
		return nil, nil
	}

	var steps Collection
	if err := list.Decode(&steps); err != nil {
		return nil, err
	}
	return steps, nil
}
