package state

import (
	"strconv"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/filter"
	"github.com/conduit-lang/hyperapi/internal/metadata"
)

// Default pagination query parameters
const (
	DefaultPageParameter         = "page"
	DefaultItemsPerPageParameter = "itemsPerPage"
	DefaultEnabledParameter      = "pagination"
)

// PaginationOptions names the query parameters pagination reads
type PaginationOptions struct {
	PageParameter         string
	ItemsPerPageParameter string
	EnabledParameter      string
}

// DefaultPaginationOptions returns the default parameter names
func DefaultPaginationOptions() PaginationOptions {
	return PaginationOptions{
		PageParameter:         DefaultPageParameter,
		ItemsPerPageParameter: DefaultItemsPerPageParameter,
		EnabledParameter:      DefaultEnabledParameter,
	}
}

// Page is the resolved pagination of one request
type Page struct {
	Enabled bool
	Page    int
	Limit   int
	Offset  int
}

// Pagination resolves the page of a request from operation settings and
// query parameters
type Pagination struct {
	options PaginationOptions
}

// NewPagination creates a resolver; empty option fields take their default
func NewPagination(opts PaginationOptions) Pagination {
	d := DefaultPaginationOptions()
	if opts.PageParameter == "" {
		opts.PageParameter = d.PageParameter
	}
	if opts.ItemsPerPageParameter == "" {
		opts.ItemsPerPageParameter = d.ItemsPerPageParameter
	}
	if opts.EnabledParameter == "" {
		opts.EnabledParameter = d.EnabledParameter
	}
	return Pagination{options: opts}
}

// Options returns the parameter names
func (p Pagination) Options() PaginationOptions {
	return p.options
}

// Resolve computes the page of a request. A page below 1, a negative item
// count or a page above 1 with a zero item count is an invalid argument.
func (p Pagination) Resolve(op *metadata.Operation, fctx filter.Context) (Page, error) {
	settings := op.Pagination
	enabled := settings.IsEnabled()
	if settings.ClientEnabled != nil && *settings.ClientEnabled {
		if raw, ok := stringParam(fctx, p.options.EnabledParameter); ok {
			switch strings.ToLower(raw) {
			case "true", "1":
				enabled = true
			case "false", "0":
				enabled = false
			}
		}
	}

	out := Page{Enabled: enabled, Page: 1, Limit: settings.ItemsPerPage}
	if !enabled {
		return out, nil
	}

	if raw, ok := stringParam(fctx, p.options.PageParameter); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Page{}, apierr.InvalidArgument("page must be an integer, got %q", raw)
		}
		if n < 1 {
			return Page{}, apierr.InvalidArgument("page should not be less than 1")
		}
		out.Page = n
	}

	if settings.ClientItemsPerPage != nil && *settings.ClientItemsPerPage {
		if raw, ok := stringParam(fctx, p.options.ItemsPerPageParameter); ok {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return Page{}, apierr.InvalidArgument("items per page must be an integer, got %q", raw)
			}
			if n < 0 {
				return Page{}, apierr.InvalidArgument("limit should not be less than 0")
			}
			out.Limit = n
		}
	}
	if settings.MaximumItemsPerPage > 0 && out.Limit > settings.MaximumItemsPerPage {
		out.Limit = settings.MaximumItemsPerPage
	}

	if out.Limit == 0 && out.Page > 1 {
		return Page{}, apierr.InvalidArgument("page should not be greater than 1 if limit is equal to 0")
	}
	out.Offset = (out.Page - 1) * out.Limit
	return out, nil
}

// Paginator is the result of a collection operation
type Paginator struct {
	Items        []interface{}
	TotalItems   int
	CurrentPage  int
	ItemsPerPage int
	// Paginated is false when the whole collection was returned
	Paginated bool
}

// LastPage returns the number of the last page, at least 1
func (p *Paginator) LastPage() int {
	if !p.Paginated || p.ItemsPerPage <= 0 {
		return 1
	}
	last := (p.TotalItems + p.ItemsPerPage - 1) / p.ItemsPerPage
	if last < 1 {
		return 1
	}
	return last
}

// Len returns the number of items on the page
func (p *Paginator) Len() int {
	return len(p.Items)
}

// stringParam reads a single query value
func stringParam(fctx filter.Context, key string) (string, bool) {
	switch v := fctx.Filters[key].(type) {
	case string:
		return v, true
	case []string:
		if len(v) > 0 {
			return v[len(v)-1], true
		}
	}
	return "", false
}
