// settings_repository.go implements SettingsRepository, providing database
// queries for the catalog/name/value settings store. Each catalog groups the
// tunables of one feature area; values are stored as JSONB so callers read
// and write typed Go values without per-setting columns.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/team-directory/team-directory/internal/db/models"
)

// Settings catalogs.
const (
	CatalogTeam    = "team"
	CatalogGeneral = "general"
)

// SettingsRepository handles database operations for runtime settings
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

type settingRow struct {
	Name  string          `db:"name"`
	Value json.RawMessage `db:"value"`
}

// GetCatalog retrieves every setting stored under one catalog.
func (r *SettingsRepository) GetCatalog(ctx context.Context, catalog string) (map[string]json.RawMessage, error) {
	var rows []settingRow
	query := `SELECT name, value FROM settings WHERE catalog = $1`
	if err := r.db.SelectContext(ctx, &rows, query, catalog); err != nil {
		return nil, fmt.Errorf("failed to load settings catalog %s: %w", catalog, err)
	}

	values := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		values[row.Name] = row.Value
	}
	return values, nil
}

// SetValue upserts one setting in a catalog.
func (r *SettingsRepository) SetValue(ctx context.Context, catalog, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s/%s: %w", catalog, name, err)
	}

	query := `
		INSERT INTO settings (catalog, name, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (catalog, name) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := r.db.ExecContext(ctx, query, catalog, name, raw); err != nil {
		return fmt.Errorf("failed to store setting %s/%s: %w", catalog, name, err)
	}
	return nil
}

// GetTeamSettings returns the team directory settings. Missing values fall
// back to defaults, so a fresh database behaves sensibly without any admin
// action.
func (r *SettingsRepository) GetTeamSettings(ctx context.Context) (models.TeamSettings, error) {
	settings := models.DefaultTeamSettings()

	values, err := r.GetCatalog(ctx, CatalogTeam)
	if err != nil {
		return settings, err
	}

	if err := overlay(values, "sort_by_last_name", &settings.SortByLastName); err != nil {
		return settings, err
	}
	if err := overlay(values, "list_middle_name", &settings.ListMiddleName); err != nil {
		return settings, err
	}
	return settings, nil
}

// SetTeamSettings persists the team directory settings.
func (r *SettingsRepository) SetTeamSettings(ctx context.Context, settings models.TeamSettings) error {
	if err := r.SetValue(ctx, CatalogTeam, "sort_by_last_name", settings.SortByLastName); err != nil {
		return err
	}
	return r.SetValue(ctx, CatalogTeam, "list_middle_name", settings.ListMiddleName)
}

// GetGeneralSettings returns the general application settings with defaults
// for missing values.
func (r *SettingsRepository) GetGeneralSettings(ctx context.Context) (models.GeneralSettings, error) {
	settings := models.DefaultGeneralSettings()

	values, err := r.GetCatalog(ctx, CatalogGeneral)
	if err != nil {
		return settings, err
	}

	if err := overlay(values, "personal", &settings.Personal); err != nil {
		return settings, err
	}
	return settings, nil
}

// SetGeneralSettings persists the general application settings.
func (r *SettingsRepository) SetGeneralSettings(ctx context.Context, settings models.GeneralSettings) error {
	return r.SetValue(ctx, CatalogGeneral, "personal", settings.Personal)
}

// overlay decodes a stored value into dest when present, leaving the default
// in place otherwise.
func overlay(values map[string]json.RawMessage, name string, dest any) error {
	raw, ok := values[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode setting %s: %w", name, err)
	}
	return nil
}
