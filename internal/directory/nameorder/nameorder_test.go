package nameorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/team-directory/team-directory/internal/db/models"
)

func TestCompose(t *testing.T) {
	tests := []struct {
		name   string
		cfg    models.TeamSettings
		first  string
		middle string
		last   string
		want   string
	}{
		{
			name: "last name first with middle",
			cfg:  models.TeamSettings{SortByLastName: true, ListMiddleName: true},
			first: "Micheal", middle: "Stacey", last: "Torres",
			want: "Torres Micheal Stacey",
		},
		{
			name: "first name first with middle",
			cfg:  models.TeamSettings{SortByLastName: false, ListMiddleName: true},
			first: "Micheal", middle: "Stacey", last: "Torres",
			want: "Micheal Stacey Torres",
		},
		{
			name: "middle name suppressed",
			cfg:  models.TeamSettings{SortByLastName: true, ListMiddleName: false},
			first: "Micheal", middle: "Stacey", last: "Torres",
			want: "Torres Micheal",
		},
		{
			name: "empty components skipped",
			cfg:  models.TeamSettings{SortByLastName: true, ListMiddleName: true},
			first: "Ann", middle: "", last: "",
			want: "Ann",
		},
		{
			name: "all empty",
			cfg:  models.TeamSettings{SortByLastName: true, ListMiddleName: true},
			want: "",
		},
		{
			name: "no double spaces around missing middle",
			cfg:  models.TeamSettings{SortByLastName: false, ListMiddleName: true},
			first: "Ann", middle: "", last: "Lee",
			want: "Ann Lee",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compose(tt.cfg, tt.first, tt.middle, tt.last)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.TeamSettings
		want []Component
	}{
		{"by last with middle", models.TeamSettings{SortByLastName: true, ListMiddleName: true}, []Component{Last, First, Middle}},
		{"by last without middle", models.TeamSettings{SortByLastName: true, ListMiddleName: false}, []Component{Last, First}},
		{"by first with middle", models.TeamSettings{SortByLastName: false, ListMiddleName: true}, []Component{First, Middle, Last}},
		{"by first without middle", models.TeamSettings{SortByLastName: false, ListMiddleName: false}, []Component{First, Last}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Order(tt.cfg))
		})
	}
}

// Toggling SortByLastName must change Compose output and Order together;
// a divergence here would let the list display one name but sort by another.
func TestComposeFollowsOrder(t *testing.T) {
	for _, cfg := range []models.TeamSettings{
		{SortByLastName: true, ListMiddleName: true},
		{SortByLastName: true, ListMiddleName: false},
		{SortByLastName: false, ListMiddleName: true},
		{SortByLastName: false, ListMiddleName: false},
	} {
		values := map[Component]string{First: "f", Middle: "m", Last: "l"}
		want := ""
		for i, c := range Order(cfg) {
			if i > 0 {
				want += " "
			}
			want += values[c]
		}
		assert.Equal(t, want, Compose(cfg, "f", "m", "l"))
	}
}
