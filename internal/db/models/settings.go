// settings.go defines the typed views over the settings table. Settings are
// stored as (catalog, name, value) rows so new knobs never require a schema
// change; the typed structs carry the defaults applied when a row is absent.
package models

// TeamSettings controls how the team directory composes and orders names.
type TeamSettings struct {
	SortByLastName bool `json:"sort_by_last_name"`
	ListMiddleName bool `json:"list_middle_name"`
}

// DefaultTeamSettings returns the values used when the settings rows have
// never been written: sort by last name, show middle names.
func DefaultTeamSettings() TeamSettings {
	return TeamSettings{SortByLastName: true, ListMiddleName: true}
}

// GeneralSettings controls directory-wide features.
type GeneralSettings struct {
	// Personal allows users to create personal contact books.
	Personal bool `json:"personal"`
}

// DefaultGeneralSettings returns the defaults: personal books disabled.
func DefaultGeneralSettings() GeneralSettings {
	return GeneralSettings{Personal: false}
}
