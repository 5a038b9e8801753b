package query

import (
	"fmt"
	"strings"
)

// NameGenerator hands out join aliases and parameter names for one query.
// It is request scoped and must never be shared between requests.
type NameGenerator struct {
	aliasCounter int
	paramCounter int
	used         map[string]bool
}

// NewNameGenerator creates an empty generator
func NewNameGenerator() *NameGenerator {
	return &NameGenerator{used: make(map[string]bool)}
}

// Alias returns a fresh alias for an association, e.g. "relatedDummy_a1"
func (g *NameGenerator) Alias(association string) string {
	g.aliasCounter++
	return fmt.Sprintf("%s_a%d", sanitizeName(association), g.aliasCounter)
}

// Parameter returns base when it has not been handed out yet and a
// numbered variant ("base_p2") otherwise
func (g *NameGenerator) Parameter(base string) string {
	base = sanitizeName(base)
	if !g.used[base] {
		g.used[base] = true
		return base
	}
	for {
		g.paramCounter++
		name := fmt.Sprintf("%s_p%d", base, g.paramCounter)
		if !g.used[name] {
			g.used[name] = true
			return name
		}
	}
}

// Reserve marks names as taken, used when a builder already carries parameters
func (g *NameGenerator) Reserve(names ...string) {
	for _, name := range names {
		g.used[name] = true
	}
}

// sanitizeName keeps letters, digits and underscores; dots of nested paths
// become underscores
func sanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, char := range s {
		switch {
		case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z', char >= '0' && char <= '9', char == '_':
			b.WriteRune(char)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "param"
	}
	return b.String()
}
