package query

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNested(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected map[string]interface{}
	}{
		{
			name:     "empty",
			query:    "",
			expected: map[string]interface{}{},
		},
		{
			name:     "scalars",
			query:    "title=Go&page=2",
			expected: map[string]interface{}{"title": "Go", "page": "2"},
		},
		{
			name:     "last scalar wins",
			query:    "title=a&title=b",
			expected: map[string]interface{}{"title": "b"},
		},
		{
			name:     "list",
			query:    "id[]=1&id[]=2",
			expected: map[string]interface{}{"id": []interface{}{"1", "2"}},
		},
		{
			name:  "nested map",
			query: "order[title]=asc&order[author.name]=desc",
			expected: map[string]interface{}{
				"order": map[string]interface{}{"title": "asc", "author.name": "desc"},
			},
		},
		{
			name:  "list inside map",
			query: "price[between][]=1&price[between][]=5",
			expected: map[string]interface{}{
				"price": map[string]interface{}{"between": []interface{}{"1", "5"}},
			},
		},
		{
			name:     "escaped brackets and values",
			query:    "order%5Btitle%5D=asc&q=a+b%26c",
			expected: map[string]interface{}{"order": map[string]interface{}{"title": "asc"}, "q": "a b&c"},
		},
		{
			name:     "unbalanced brackets are a plain key",
			query:    "a[b=1&[c]=2",
			expected: map[string]interface{}{"a[b": "1", "[c]": "2"},
		},
		{
			name:     "key without value",
			query:    "exists[author]",
			expected: map[string]interface{}{"exists": map[string]interface{}{"author": ""}},
		},
		{
			name:     "bad escape skipped",
			query:    "a=%zz&b=1",
			expected: map[string]interface{}{"b": "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseNested(tt.query))
		})
	}
}

func TestParseFields(t *testing.T) {
	r := httptest.NewRequest("GET", "/books?fields[Book]=title,%20author,&fields[Author]=", nil)
	assert.Equal(t, map[string][]string{
		"Book":   {"title", "author"},
		"Author": {},
	}, ParseFields(ParseRequest(r)))

	assert.Empty(t, ParseFields(ParseNested("title=Go")))
}
