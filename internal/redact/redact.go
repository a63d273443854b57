// Package redact masks credentials in captured request data before it
// leaves the process.
package redact

import (
	"net/http"
	"regexp"
	"sort"
	"strings"
)

// Mask replaces every redacted value.
const Mask = "[REDACTED]"

// Kind identifies the category of a detected secret.
type Kind string

const (
	KindKeyValue Kind = "KV"     // password=..., "api_key": "..."
	KindBearer   Kind = "BEARER" // Bearer <token>
	KindToken    Kind = "TOKEN"  // provider key formats
)

// Match is one secret occurrence. Start and End index the value to mask.
type Match struct {
	Kind  Kind
	Start int
	End   int
}

var (
	// Group 1 is the secret value; quotes around it are kept.
	keyValueRe = regexp.MustCompile(`(?i)"?(?:password|passwd|secret|client_secret|token|access_token|refresh_token|api_key|apikey|auth)"?[ \t]*[=:][ \t]*"?([^\s"&,}]+)`)

	bearerRe = regexp.MustCompile(`(?i)\bbearer[ \t]+([A-Za-z0-9\-._~+/]+=*)`)

	tokenRe = regexp.MustCompile(`\b(?:sk-[A-Za-z0-9_\-]{16,}|sk_live_[A-Za-z0-9]{16,}|AKIA[0-9A-Z]{16}|gh[pousr]_[A-Za-z0-9]{30,}|xox[abpr]-[A-Za-z0-9\-]{10,}|cw_[A-Za-z0-9_\-]{12,})\b`)
)

// sensitiveHeaders are masked whole, regardless of value.
var sensitiveHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
	"X-Api-Key":           true,
}

// Header reports whether the header name always carries a credential.
func Header(name string) bool {
	return sensitiveHeaders[http.CanonicalHeaderKey(name)]
}

// Scan finds secrets in text, sorted by position with overlaps removed.
func Scan(text string) []Match {
	var matches []Match
	for _, loc := range keyValueRe.FindAllStringSubmatchIndex(text, -1) {
		matches = append(matches, Match{Kind: KindKeyValue, Start: loc[2], End: loc[3]})
	}
	for _, loc := range bearerRe.FindAllStringSubmatchIndex(text, -1) {
		matches = append(matches, Match{Kind: KindBearer, Start: loc[2], End: loc[3]})
	}
	for _, loc := range tokenRe.FindAllStringIndex(text, -1) {
		matches = append(matches, Match{Kind: KindToken, Start: loc[0], End: loc[1]})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		return matches[i].End > matches[j].End
	})

	out := matches[:0]
	end := -1
	for _, m := range matches {
		if m.Start < end {
			continue
		}
		out = append(out, m)
		end = m.End
	}
	return out
}

// Text returns text with every detected secret replaced by Mask.
func Text(text string) string {
	matches := Scan(text)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.Start])
		b.WriteString(Mask)
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}
