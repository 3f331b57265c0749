// File: internal/mapping/source.go
package mapping

import (
	"context"
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/textnorm"
)

// Kind distinguishes the three lookup outcomes.
type Kind int

const (
	NotFound Kind = iota
	Found
	LookupError
)

func (k Kind) String() string {
	switch k {
	case Found:
		return "found"
	case LookupError:
		return "lookup-error"
	default:
		return "not-found"
	}
}

// Result is the outcome of a mapping lookup. The resolver treats NotFound and
// LookupError the same way; they differ only in how they are logged.
type Result struct {
	Kind     Kind
	Selector string
	Err      error
}

// FoundResult reports a selector for the target.
func FoundResult(selector string) Result { return Result{Kind: Found, Selector: selector} }

// NotFoundResult reports that the source holds no entry for the target.
func NotFoundResult() Result { return Result{Kind: NotFound} }

// ErrorResult reports that the source could not be consulted.
func ErrorResult(err error) Result { return Result{Kind: LookupError, Err: err} }

// Source maps a human-readable target label to a selector. Implementations
// must not panic and must honour ctx cancellation.
type Source interface {
	Lookup(ctx context.Context, targetText string) Result
}

// None is a Source that never knows any target.
type None struct{}

func (None) Lookup(context.Context, string) Result { return NotFoundResult() }

// Static serves mappings held in memory. It is mostly useful in tests and for
// embedding fixed mapping tables.
type Static struct {
	Mappings []schemas.TargetMapping
}

func (s Static) Lookup(_ context.Context, targetText string) Result {
	return find(s.Mappings, targetText)
}

// ParseDocument decodes a mapping document. A document without a mappings
// array yields no mappings.
func ParseDocument(data []byte) ([]schemas.TargetMapping, error) {
	var doc schemas.MappingDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed mapping document: %w", err)
	}
	return doc.Mappings, nil
}

// find returns the first mapping whose normalized target equals the
// normalized targetText.
func find(mappings []schemas.TargetMapping, targetText string) Result {
	want := textnorm.Normalize(targetText)
	for _, m := range mappings {
		if textnorm.Normalize(m.TargetText) == want {
			if m.Selector == "" {
				return NotFoundResult()
			}
			return FoundResult(m.Selector)
		}
	}
	return NotFoundResult()
}
