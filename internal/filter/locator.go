package filter

import (
	"fmt"
	"sync"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/query"
)

// Locator maps filter ids, as referenced by operations, to filters
type Locator struct {
	mu      sync.RWMutex
	filters map[string]Filter
	order   []string
}

// NewLocator creates an empty locator
func NewLocator() *Locator {
	return &Locator{filters: make(map[string]Filter)}
}

// Register adds a filter under id
func (l *Locator) Register(id string, f Filter) error {
	if id == "" {
		return apierr.Configuration("filter id cannot be empty")
	}
	if f == nil {
		return apierr.Configuration("filter %q is nil", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.filters[id]; dup {
		return apierr.Configuration("filter %q is already registered", id)
	}
	l.filters[id] = f
	l.order = append(l.order, id)
	return nil
}

// MustRegister registers a filter and panics on error
func (l *Locator) MustRegister(id string, f Filter) *Locator {
	if err := l.Register(id, f); err != nil {
		panic(err)
	}
	return l
}

// Get returns the filter registered under id
func (l *Locator) Get(id string) (Filter, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.filters[id]
	return f, ok
}

// Has reports whether id is registered
func (l *Locator) Has(id string) bool {
	_, ok := l.Get(id)
	return ok
}

// IDs returns the registered ids in registration order
func (l *Locator) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// ForOperation returns the filters of op in declaration order. An unknown
// id is a configuration error.
func (l *Locator) ForOperation(op *metadata.Operation) ([]Filter, error) {
	out := make([]Filter, 0, len(op.Filters))
	for _, id := range op.Filters {
		f, ok := l.Get(id)
		if !ok {
			return nil, apierr.Configuration("operation %s references unknown filter %q", op.Name, id)
		}
		out = append(out, f)
	}
	return out, nil
}

// Apply runs every filter of op over qb
func (l *Locator) Apply(qb *query.QueryBuilder, names *query.NameGenerator, resourceClass string, op *metadata.Operation, fctx Context) error {
	filters, err := l.ForOperation(op)
	if err != nil {
		return err
	}
	for i, f := range filters {
		if err := f.Apply(qb, names, resourceClass, op, fctx); err != nil {
			return fmt.Errorf("filter %s: %w", op.Filters[i], err)
		}
	}
	return nil
}

// Describe merges the descriptions of the filters of op
func (l *Locator) Describe(resourceClass string, op *metadata.Operation) (map[string]Description, error) {
	filters, err := l.ForOperation(op)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Description)
	for _, f := range filters {
		for key, d := range f.Description(resourceClass) {
			out[key] = d
		}
	}
	return out, nil
}
