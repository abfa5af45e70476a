// auth.go implements the authentication handlers: local email/password login,
// OIDC single sign-on, and the current-user endpoint. Both login paths end in
// the same place, a signed JWT carrying the user's scopes.
package admin

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/team-directory/team-directory/internal/auth"
	"github.com/team-directory/team-directory/internal/auth/oidc"
	"github.com/team-directory/team-directory/internal/config"
	"github.com/team-directory/team-directory/internal/db/models"
	"github.com/team-directory/team-directory/internal/db/repositories"
	"github.com/team-directory/team-directory/internal/middleware"
)

// tokenTTL is the lifetime of issued session tokens.
const tokenTTL = 24 * time.Hour

// ssoStateCookie carries the OAuth2 state between the redirect and the
// callback.
const ssoStateCookie = "sso_state"

// AuthHandlers handles login and single sign-on endpoints.
type AuthHandlers struct {
	cfg          *config.Config
	users        *repositories.UserRepository
	oidcProvider *oidc.OIDCProvider
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(cfg *config.Config, users *repositories.UserRepository) *AuthHandlers {
	return &AuthHandlers{cfg: cfg, users: users}
}

// SetOIDCProvider wires the SSO provider. Until it is set, the SSO endpoints
// answer 404.
func (h *AuthHandlers) SetOIDCProvider(provider *oidc.OIDCProvider) {
	h.oidcProvider = provider
}

// LoginRequest is the local login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Log in
// @Description  Exchanges email and password for a signed JWT. Accounts synced from LDAP or provisioned via SSO have no local password and cannot log in here.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "token, expires_in, user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Router       /api/v1/auth/login [post]
// LoginHandler authenticates a local account
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}
		// One response for unknown accounts, password-less accounts, and wrong
		// passwords, so login cannot be used to enumerate users.
		if user == nil || user.PasswordHash == nil ||
			!auth.VerifyPassword(*user.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		h.issueToken(c, user)
	}
}

// @Summary      Start single sign-on
// @Description  Redirects the browser to the configured OIDC provider's authorization endpoint.
// @Tags         Auth
// @Success      302  "Redirect to identity provider"
// @Failure      404  {object}  map[string]interface{}  "Single sign-on is not configured"
// @Router       /api/v1/auth/sso [get]
// SSOHandler starts the OIDC authorization code flow
// GET /api/v1/auth/sso
func (h *AuthHandlers) SSOHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.oidcProvider == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Single sign-on is not configured"})
			return
		}

		state, err := randomState()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start sign-on"})
			return
		}

		c.SetCookie(ssoStateCookie, state, int((10 * time.Minute).Seconds()), "/", "", false, true)
		c.Redirect(http.StatusFound, h.oidcProvider.GetAuthURL(state))
	}
}

// @Summary      Single sign-on callback
// @Description  Completes the OIDC flow: validates state, exchanges the code, verifies the ID token, provisions the account on first sign-in, and issues a JWT.
// @Tags         Auth
// @Produce      json
// @Param        code   query  string  true  "Authorization code"
// @Param        state  query  string  true  "Opaque state from the sso redirect"
// @Success      200  {object}  map[string]interface{}  "token, expires_in, user"
// @Failure      400  {object}  map[string]interface{}  "State mismatch or missing code"
// @Failure      401  {object}  map[string]interface{}  "Token exchange or verification failed"
// @Failure      404  {object}  map[string]interface{}  "Single sign-on is not configured"
// @Router       /api/v1/auth/sso/callback [get]
// SSOCallbackHandler completes the OIDC authorization code flow
// GET /api/v1/auth/sso/callback
func (h *AuthHandlers) SSOCallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.oidcProvider == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Single sign-on is not configured"})
			return
		}

		expectedState, err := c.Cookie(ssoStateCookie)
		if err != nil || expectedState == "" || c.Query("state") != expectedState {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sign-on state"})
			return
		}
		c.SetCookie(ssoStateCookie, "", -1, "/", "", false, true)

		code := c.Query("code")
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
			return
		}

		token, err := h.oidcProvider.ExchangeCode(c.Request.Context(), code)
		if err != nil {
			slog.Error("sso code exchange failed", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign-on failed"})
			return
		}

		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok || rawIDToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Identity provider returned no ID token"})
			return
		}

		idToken, err := h.oidcProvider.VerifyIDToken(c.Request.Context(), rawIDToken)
		if err != nil {
			slog.Error("sso id token verification failed", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign-on failed"})
			return
		}

		info, err := h.oidcProvider.ExtractUserInfo(idToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign-on failed"})
			return
		}

		user, err := h.provisionSSOUser(c, info)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to provision account"})
			return
		}

		h.issueToken(c, user)
	}
}

// @Summary      Log out
// @Description  Ends the session. Tokens are stateless, so this only tells the client to discard its token and, when the provider advertises one, points at the OIDC end-session endpoint.
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message, end_session_endpoint (optional)"
// @Router       /api/v1/auth/logout [get]
// LogoutHandler ends the session
// GET /api/v1/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response := gin.H{"message": "Logged out"}
		if h.oidcProvider != nil {
			if endpoint := h.oidcProvider.GetEndSessionEndpoint(); endpoint != "" {
				response["end_session_endpoint"] = endpoint
			}
		}
		c.JSON(http.StatusOK, response)
	}
}

// @Summary      Current user
// @Description  Returns the authenticated user and the scopes on the presented token.
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user, scopes"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/auth/me [get]
// MeHandler returns the authenticated user
// GET /api/v1/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, _ := c.Get(middleware.ContextUser)
		user, ok := value.(*models.User)
		if !ok || user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":   userViewOf(user),
			"scopes": middleware.ScopesFromContext(c),
		})
	}
}

// provisionSSOUser finds or creates the account for a verified SSO identity,
// keyed by email. Returning users get their name components refreshed from
// the provider's claims.
func (h *AuthHandlers) provisionSSOUser(c *gin.Context, info *oidc.UserInfo) (*models.User, error) {
	user, err := h.users.GetUserByEmail(c.Request.Context(), info.Email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user = &models.User{
			Email:      info.Email,
			FirstName:  info.FirstName,
			MiddleName: info.MiddleName,
			LastName:   info.LastName,
		}
		if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
			return nil, err
		}
		slog.Info("provisioned account from sso", "email", info.Email)
		return user, nil
	}

	if user.FirstName != info.FirstName || user.MiddleName != info.MiddleName ||
		user.LastName != info.LastName {
		user.FirstName = info.FirstName
		user.MiddleName = info.MiddleName
		user.LastName = info.LastName
		if err := h.users.UpdateUser(c.Request.Context(), user); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// issueToken signs a JWT for the user and writes the login response.
func (h *AuthHandlers) issueToken(c *gin.Context, user *models.User) {
	scopes := auth.GetDefaultScopes()
	if h.cfg.Auth.IsAdminEmail(user.Email) {
		scopes = auth.GetAdminScopes()
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, scopes, tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(tokenTTL.Seconds()),
		"user":       userViewOf(user),
	})
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
