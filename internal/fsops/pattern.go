package fsops

import (
	"regexp"
	"strings"
)

// Pattern is a compiled search pattern. '*' matches any run of characters,
// every other character (including '.') matches itself. Matches are anchored.
// A nil *Pattern matches every name.
type Pattern struct {
	glob string
	re   *regexp.Regexp
}

// CompilePattern translates glob into an anchored regular expression.
// An empty glob yields nil (match everything).
func CompilePattern(glob string) *Pattern {
	if glob == "" {
		return nil
	}
	var b strings.Builder
	b.WriteString("^")
	for i, part := range strings.Split(glob, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteString("$")
	return &Pattern{glob: glob, re: regexp.MustCompile(b.String())}
}

// Match reports whether name matches the pattern.
func (p *Pattern) Match(name string) bool {
	if p == nil {
		return true
	}
	return p.re.MatchString(name)
}

func (p *Pattern) String() string {
	if p == nil {
		return "*"
	}
	return p.glob
}
