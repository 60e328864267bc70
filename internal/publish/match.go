package publish

import (
	"sync"

	"github.com/gobwas/glob"
)

var patterns sync.Map // string -> glob.Glob

// compilePattern compiles and caches a family pattern. Patterns that do not
// compile match literally.
func compilePattern(pattern string) glob.Glob {
	if g, ok := patterns.Load(pattern); ok {
		return g.(glob.Glob)
	}
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		g = literalPattern(pattern)
	}
	patterns.Store(pattern, g)
	return g
}

type literalPattern string

func (l literalPattern) Match(s string) bool { return string(l) == s }
