// Package nameorder composes display names from first/middle/last components
// according to the team settings.
//
// The same component order drives two consumers: the Go-side display name
// shown to clients, and the SQL ORDER BY expression the team query sorts with.
// Both go through Order, so a settings change can never make the displayed
// name and the sort position disagree.
package nameorder

import (
	"strings"

	"github.com/team-directory/team-directory/internal/db/models"
)

// Component identifies one user name column.
type Component int

const (
	First Component = iota
	Middle
	Last
)

// Order returns the name components in the configured composition order.
// With SortByLastName the last name leads; without ListMiddleName the middle
// component is dropped entirely rather than rendered empty.
func Order(cfg models.TeamSettings) []Component {
	if cfg.SortByLastName {
		if cfg.ListMiddleName {
			return []Component{Last, First, Middle}
		}
		return []Component{Last, First}
	}
	if cfg.ListMiddleName {
		return []Component{First, Middle, Last}
	}
	return []Component{First, Last}
}

// Compose joins the user's name components in the configured order, skipping
// empty components, separated by single spaces and trimmed.
func Compose(cfg models.TeamSettings, first, middle, last string) string {
	values := map[Component]string{First: first, Middle: middle, Last: last}

	parts := make([]string, 0, 3)
	for _, c := range Order(cfg) {
		if v := values[c]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
