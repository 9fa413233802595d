// Package normalize holds the canonical forms of user-entered account
// fields. Stores and handlers both call these so lookups and uniqueness
// checks agree.
package normalize

import "strings"

// Email trims and lowercases an address. Stored emails are always in this form.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name and collapses inner runs of whitespace to a
// single space.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
