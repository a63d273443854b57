// Package exclude decides which URLs bypass tracking and policy entirely.
package exclude

import (
	"fmt"
	"regexp"
)

// PatternError reports a pattern that does not compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid exclude pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Matcher holds compiled exclude patterns in configured order.
// A nil Matcher matches nothing.
type Matcher struct {
	patterns []*regexp.Regexp
}

// New compiles patterns in order. Patterns are matched against the full URL
// as given, without implicit anchoring or case folding.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &PatternError{Pattern: p, Err: err}
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match returns the first pattern that matches url.
func (m *Matcher) Match(url string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, re := range m.patterns {
		if re.MatchString(url) {
			return re.String(), true
		}
	}
	return "", false
}

// Len returns the number of patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}
