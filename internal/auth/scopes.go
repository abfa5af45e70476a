// Package auth - scopes.go defines permission scope constants for the team
// directory and provides HasScope, HasAnyScope, and HasAllScopes helper
// functions for scope checking.
package auth

import (
	"errors"
	"fmt"
)

// Scope represents a permission/scope type
type Scope string

const (
	// Team directory scopes
	ScopeTeamRead Scope = "team:read" // View the merged team list and pin contacts

	// Contact scopes
	ScopeContactsRead  Scope = "contacts:read"
	ScopeContactsWrite Scope = "contacts:write"

	// Personal directory scopes
	ScopeDirectoriesRead  Scope = "directories:read"  // View own personal contact books
	ScopeDirectoriesWrite Scope = "directories:write" // Create, rename, delete own contact books

	// User management scopes
	ScopeUsersRead  Scope = "users:read"
	ScopeUsersWrite Scope = "users:write"

	// Settings management scope
	ScopeSettingsManage Scope = "settings:manage"

	// Admin scope (wildcard - all permissions)
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeTeamRead,
		ScopeContactsRead,
		ScopeContactsWrite,
		ScopeDirectoriesRead,
		ScopeDirectoriesWrite,
		ScopeUsersRead,
		ScopeUsersWrite,
		ScopeSettingsManage,
		ScopeAdmin,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// HasScope checks if a user has a required scope
// Supports wildcard admin scope
func HasScope(userScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range userScopes {
		// Check for exact match
		if scope == requiredStr {
			return true
		}

		// Check for admin wildcard
		if scope == string(ScopeAdmin) {
			return true
		}

		// Write permission implies read permission
		if required == ScopeContactsRead && scope == string(ScopeContactsWrite) {
			return true
		}
		if required == ScopeDirectoriesRead && scope == string(ScopeDirectoriesWrite) {
			return true
		}
		if required == ScopeUsersRead && scope == string(ScopeUsersWrite) {
			return true
		}
	}

	return false
}

// HasAnyScope checks if a user has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if a user has all of the required scopes
func HasAllScopes(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(userScopes, required) {
			return false
		}
	}
	return true
}

// GetDefaultScopes returns the scopes granted to a regular signed-in user
func GetDefaultScopes() []string {
	return []string{
		string(ScopeTeamRead),
		string(ScopeContactsRead),
		string(ScopeDirectoriesRead),
		string(ScopeDirectoriesWrite),
	}
}

// GetAdminScopes returns all scopes including admin
func GetAdminScopes() []string {
	scopes := make([]string, 0)
	for _, scope := range AllScopes() {
		scopes = append(scopes, string(scope))
	}
	return scopes
}

// ValidateScopeString validates a single scope string
func ValidateScopeString(scope string) error {
	validScopes := ValidScopes()
	if !validScopes[scope] {
		return errors.New("invalid scope")
	}
	return nil
}
