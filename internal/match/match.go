// Package match provides the name-pattern capability used to classify proxies.
//
// Patterns are compiled with regexp2 in ECMAScript mode so that they behave the
// same way as the client's own filter/exclude-filter evaluation.
package match

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

// Matcher reports whether a proxy name belongs to a bucket.
type Matcher interface {
	Match(name string) bool
}

// Pattern is a compiled, case-sensitive alternation pattern.
type Pattern struct {
	src string
	re  *regexp2.Regexp
}

// Compile parses pattern. Matching is unanchored (substring semantics).
func Compile(pattern string) (*Pattern, error) {
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", pattern, err)
	}
	return &Pattern{src: pattern, re: re}, nil
}

func (p *Pattern) Match(name string) bool {
	if name == "" {
		return false
	}
	ok, err := p.re.MatchString(name)
	// only a match timeout yields err; treat as no match
	return err == nil && ok
}

func (p *Pattern) String() string { return p.src }

// AnyOf matches when at least one of ms matches. It is equivalent to the
// alternation of the underlying patterns. An empty AnyOf matches nothing.
type AnyOf []Matcher

func (a AnyOf) Match(name string) bool {
	for _, m := range a {
		if m.Match(name) {
			return true
		}
	}
	return false
}
