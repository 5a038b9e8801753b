package filter

import (
	"fmt"
	"sort"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/query"
)

// DefaultOrParameter is the query key read by the or-search filter
const DefaultOrParameter = "or"

// OrSearchFilter combines search conditions with OR:
// ?or[title]=go&or[author.name]=pike matches either. Each property is
// searched into an isolated scope; the scopes are merged under one OR with
// their joins deduplicated. Joins are LEFT joins so a missing association
// only fails its own branch.
type OrSearchFilter struct {
	search    *SearchFilter
	parameter string
}

// NewOrSearchFilter wraps search. Properties, strategies and IRI resolution
// come from search.
func NewOrSearchFilter(search *SearchFilter, opts ...Option) *OrSearchFilter {
	c := newConfig(opts)
	if c.parameter == "" {
		c.parameter = DefaultOrParameter
	}
	return &OrSearchFilter{search: search, parameter: c.parameter}
}

// Apply implements Filter
func (f *OrSearchFilter) Apply(qb *query.QueryBuilder, names *query.NameGenerator, _ string, _ *metadata.Operation, fctx Context) error {
	raw, present := fctx.Filters[f.parameter]
	if !present {
		return nil
	}
	sub, ok := subValues(raw)
	if !ok {
		f.search.skip(f.parameter, raw, "expected or[property]=value")
		return nil
	}

	keys := make([]string, 0, len(sub))
	for k := range sub {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	branches := make([]query.ScopeResult, 0, len(keys))
	for _, property := range keys {
		scope := query.NewScope(qb)
		if err := f.search.filterProperty(scope.Builder(), names, property, sub[property], query.LeftJoin); err != nil {
			return err
		}
		branches = append(branches, scope.Result())
	}
	if err := qb.MergeOr(branches...); err != nil {
		return fmt.Errorf("or filter: %w", err)
	}
	return nil
}

// Description implements Filter
func (f *OrSearchFilter) Description(resourceClass string) map[string]Description {
	out := make(map[string]Description)
	for key, d := range f.search.Description(resourceClass) {
		if d.IsCollection {
			continue
		}
		out[fmt.Sprintf("%s[%s]", f.parameter, key)] = d
	}
	return out
}
