// File: internal/mapping/postgres.go
package mapping

import "context"

// SelectorStore is the subset of the store used for lookups.
type SelectorStore interface {
	LookupSelector(ctx context.Context, targetText string) (string, bool, error)
}

// PostgresSource looks targets up in the target_mappings table.
type PostgresSource struct {
	store SelectorStore
}

// NewPostgresSource wraps a store.
func NewPostgresSource(store SelectorStore) *PostgresSource {
	return &PostgresSource{store: store}
}

func (p *PostgresSource) Lookup(ctx context.Context, targetText string) Result {
	selector, found, err := p.store.LookupSelector(ctx, targetText)
	switch {
	case err != nil:
		return ErrorResult(err)
	case !found || selector == "":
		return NotFoundResult()
	default:
		return FoundResult(selector)
	}
}
