package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []string{"Method", "Path", "Name"}, &TableOptions{NoColor: true})
	table.StyleColumn(0, MethodColor)
	table.AddRow("GET", "/books", "_api_/books{._format}_get_collection")
	table.AddRow("DELETE", "/books/{id}", "_api_/books/{id}{._format}_delete")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Method  Path         Name", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "──────  ───────────  "))
	assert.Equal(t, "GET     /books       _api_/books{._format}_get_collection", lines[2])
	assert.Equal(t, "DELETE  /books/{id}  _api_/books/{id}{._format}_delete", lines[3])
	assert.Equal(t, 2, table.Len())
}

func TestTableEmptyHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, nil, nil).Render()
	assert.Empty(t, buf.String())
}

func TestTableShortRows(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []string{"A", "B"}, &TableOptions{NoColor: true})
	table.AddRow("x")
	table.Render()
	assert.Contains(t, buf.String(), "\nx\n")
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("Class", "Book")
	kv.AddRow("Short name", "Book")
	kv.Render()
	assert.Equal(t, "Class:      Book\nShort name: Book\n", buf.String())
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	Header(&buf, "Résumé", true)
	assert.Equal(t, "Résumé\n──────\n", buf.String())
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab  ", padRight("ab", 4))
	assert.Equal(t, "abcdef", padRight("abcdef", 4))
	assert.Equal(t, "é ", padRight("é", 2))
}

func TestMethodColor(t *testing.T) {
	for _, m := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
		assert.NotNil(t, MethodColor(m), m)
	}
	assert.Nil(t, MethodColor("OPTIONS"))
	assert.IsType(t, &color.Color{}, MethodColor("GET"))
}
