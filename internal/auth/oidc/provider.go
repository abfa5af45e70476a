// Package oidc implements generic OpenID Connect single sign-on for the team
// directory. It handles OIDC service discovery, token exchange, and claims
// extraction. Provider-specific behavior is handled by configuration.
package oidc

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/team-directory/team-directory/internal/config"
	"golang.org/x/oauth2"
)

// UserInfo holds the identity claims the directory cares about.
type UserInfo struct {
	Sub        string
	Email      string
	FirstName  string
	MiddleName string
	LastName   string
}

// OIDCProvider wraps the generic OIDC provider
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	config   *oauth2.Config
	provider *oidc.Provider
}

// NewOIDCProvider initializes a new OIDC provider using a background context.
func NewOIDCProvider(cfg *config.OIDCConfig) (*OIDCProvider, error) {
	return NewOIDCProviderWithContext(context.Background(), cfg)
}

// NewOIDCProviderWithContext initializes a new OIDC provider with the given context,
// allowing callers to set deadlines or cancellation for the OIDC discovery request.
func NewOIDCProviderWithContext(ctx context.Context, cfg *config.OIDCConfig) (*OIDCProvider, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("OIDC is not enabled")
	}

	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}

	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC client secret is required")
	}

	// Initialize OIDC provider
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	// Create ID token verifier
	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	// Configure OAuth2
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       cfg.Scopes,
	}

	return &OIDCProvider{
		verifier: verifier,
		config:   oauth2Config,
		provider: provider,
	}, nil
}

// GetAuthURL returns the OAuth2 authorization URL
func (p *OIDCProvider) GetAuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// GetEndSessionEndpoint returns the OIDC end_session_endpoint from the discovery document,
// or an empty string if the provider does not advertise one.
func (p *OIDCProvider) GetEndSessionEndpoint() string {
	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := p.provider.Claims(&claims); err != nil {
		return ""
	}
	return claims.EndSessionEndpoint
}

// ExchangeCode exchanges the authorization code for tokens
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	return token, nil
}

// VerifyIDToken verifies and extracts claims from the ID token
func (p *OIDCProvider) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return idToken, nil
}

// ExtractUserInfo extracts directory user fields from the ID token.
// Name parts come from given_name/middle_name/family_name when present;
// otherwise the display name claim is split on whitespace as a fallback.
func (p *OIDCProvider) ExtractUserInfo(idToken *oidc.IDToken) (*UserInfo, error) {
	var claims struct {
		Sub        string `json:"sub"`
		Email      string `json:"email"`
		Name       string `json:"name"`
		GivenName  string `json:"given_name"`
		MiddleName string `json:"middle_name"`
		FamilyName string `json:"family_name"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	// Validate required fields
	if claims.Sub == "" {
		return nil, fmt.Errorf("ID token missing 'sub' claim")
	}

	if claims.Email == "" {
		return nil, fmt.Errorf("ID token missing 'email' claim")
	}

	info := &UserInfo{
		Sub:        claims.Sub,
		Email:      claims.Email,
		FirstName:  claims.GivenName,
		MiddleName: claims.MiddleName,
		LastName:   claims.FamilyName,
	}

	if info.FirstName == "" && info.LastName == "" {
		info.FirstName, info.LastName = splitDisplayName(claims.Name)
	}

	return info, nil
}

// splitDisplayName splits "First [Middle...] Last" into first and last parts.
// A single token becomes the first name with an empty last name.
func splitDisplayName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[len(parts)-1]
	}
}
