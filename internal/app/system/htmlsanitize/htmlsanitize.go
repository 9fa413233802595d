// Package htmlsanitize strips markup from user-supplied display strings such
// as file and folder names. Names are rendered by browser clients, so they
// are stored as plain text.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNameLength is the longest name, in runes, kept after cleaning.
const MaxNameLength = 255

var (
	// policy is the shared bluemonday policy; it allows no elements at all.
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared sanitization policy, creating it on first use.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// StripTags removes every HTML element and returns the remaining text with
// entities decoded.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<>&") {
		return s
	}
	return html.UnescapeString(getPolicy().Sanitize(s))
}

// Name cleans a file or folder name: markup is stripped, control characters
// are dropped, runs of whitespace collapse to one space, and the result is
// trimmed and capped at MaxNameLength runes. An empty result means the
// input had no usable characters.
func Name(s string) string {
	s = StripTags(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	n := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
			n++
		}
		space = false
		if n >= MaxNameLength {
			break
		}
		b.WriteRune(r)
		n++
	}

	return strings.TrimSpace(b.String())
}
