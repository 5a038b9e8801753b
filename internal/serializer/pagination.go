package serializer

import (
	"net/url"
	"strconv"

	"github.com/conduit-lang/hyperapi/internal/state"
)

// pageInfo is the pagination metadata of one collection
type pageInfo struct {
	paginated    bool
	current      int
	last         int
	itemsPerPage int
	total        int
}

func pageInfoOf(p *state.Paginator) pageInfo {
	return pageInfo{
		paginated:    p.Paginated,
		current:      p.CurrentPage,
		last:         p.LastPage(),
		itemsPerPage: p.ItemsPerPage,
		total:        p.TotalItems,
	}
}

// pageLinks are the navigation links of a paginated collection. Prev and
// next are empty on the first and last page.
type pageLinks struct {
	self, first, last, prev, next string
}

func linksOf(requestURI, param string, info pageInfo) pageLinks {
	l := pageLinks{
		self:  pageURL(requestURI, param, info.current),
		first: pageURL(requestURI, param, 1),
		last:  pageURL(requestURI, param, info.last),
	}
	if info.current > 1 {
		l.prev = pageURL(requestURI, param, info.current-1)
	}
	if info.current < info.last {
		l.next = pageURL(requestURI, param, info.current+1)
	}
	return l
}

// pageURL sets the page parameter of requestURI
func pageURL(requestURI, param string, page int) string {
	u, err := url.Parse(requestURI)
	if err != nil {
		return requestURI
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// requestPath strips the query of requestURI
func requestPath(requestURI string) string {
	u, err := url.Parse(requestURI)
	if err != nil {
		return requestURI
	}
	return u.Path
}

// Union merges b into a and returns the result. Keys present in both keep
// the value of a, except maps, which merge recursively, and lists, which
// merge index by index so item structure is kept.
func Union(a, b interface{}) interface{} {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok {
			return a
		}
		out := make(map[string]interface{}, len(av)+len(bv))
		for k, v := range bv {
			out[k] = v
		}
		for k, v := range av {
			if existing, ok := out[k]; ok {
				out[k] = Union(v, existing)
				continue
			}
			out[k] = v
		}
		return out
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok {
			return a
		}
		n := len(av)
		if len(bv) > n {
			n = len(bv)
		}
		out := make([]interface{}, n)
		for i := range out {
			switch {
			case i < len(av) && i < len(bv):
				out[i] = Union(av[i], bv[i])
			case i < len(av):
				out[i] = av[i]
			default:
				out[i] = bv[i]
			}
		}
		return out
	case nil:
		return b
	}
	return a
}
