// Package search normalizes a raw directory search string into the three
// matcher terms the team query understands: a name term, a phone term, and an
// email term.
package search

import (
	"regexp"
	"strings"
)

var (
	nonPhoneChars = regexp.MustCompile(`[^\d+]`)
	nonEmailChars = regexp.MustCompile(`[^\w.@]`)
)

// Terms holds the per-matcher projections of one raw search string. An empty
// term disables its matcher branch, otherwise a query like "John" would
// phone-match every contact whose serialized phone list contains the empty
// string, which is all of them.
type Terms struct {
	// Name is the raw term trimmed and lowercased, matched as a substring of
	// the composed name in both component orders.
	Name string
	// Phone keeps only digits and "+", matched against the serialized phone
	// collection.
	Phone string
	// Email keeps only word characters, "." and "@", matched against the
	// serialized email collection.
	Email string
}

// Normalize derives the matcher terms from raw user input.
func Normalize(raw string) Terms {
	return Terms{
		Name:  strings.ToLower(strings.TrimSpace(raw)),
		Phone: nonPhoneChars.ReplaceAllString(raw, ""),
		Email: nonEmailChars.ReplaceAllString(raw, ""),
	}
}

// IsEmpty reports whether no matcher branch would fire for these terms.
func (t Terms) IsEmpty() bool {
	return t.Name == "" && t.Phone == "" && t.Email == ""
}
