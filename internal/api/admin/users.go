// users.go implements the user account management handlers. Accounts normally
// arrive via LDAP sync or SSO provisioning; these endpoints cover manual
// administration and small deployments without an identity provider.
package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/team-directory/team-directory/internal/auth"
	"github.com/team-directory/team-directory/internal/db/models"
	"github.com/team-directory/team-directory/internal/db/repositories"
	"github.com/team-directory/team-directory/internal/middleware"
)

// UserHandlers handles user management endpoints.
type UserHandlers struct {
	users *repositories.UserRepository
}

// NewUserHandlers creates a new UserHandlers instance.
func NewUserHandlers(users *repositories.UserRepository) *UserHandlers {
	return &UserHandlers{users: users}
}

// UserView is the wire shape of a user account. The password hash never
// leaves the repository layer.
type UserView struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	MiddleName string    `json:"middle_name"`
	LastName   string    `json:"last_name"`
	LDAPSynced bool      `json:"ldap_synced"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func userViewOf(user *models.User) UserView {
	return UserView{
		ID:         user.ID,
		Email:      user.Email,
		FirstName:  user.FirstName,
		MiddleName: user.MiddleName,
		LastName:   user.LastName,
		LDAPSynced: user.LDAPDN != nil,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}

// @Summary      List users
// @Description  Returns a paginated list of user accounts. Requires users:read scope.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "users: []UserView, pagination: map"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/users [get]
// ListUsersHandler lists users with pagination
// GET /api/v1/users?page=1&per_page=20
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		users, total, err := h.users.ListUsers(c.Request.Context(), perPage, (page-1)*perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		views := make([]UserView, 0, len(users))
		for _, user := range users {
			views = append(views, userViewOf(user))
		}

		c.JSON(http.StatusOK, gin.H{
			"users": views,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get user
// @Description  Returns one user account. Requires users:read scope.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "user: UserView"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/users/{id} [get]
// GetUserHandler retrieves a user by ID
// GET /api/v1/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.users.GetUserByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": userViewOf(user)})
	}
}

// CreateUserRequest is the account creation payload. Password is optional;
// accounts without one can only sign in through SSO.
type CreateUserRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name"`
}

// @Summary      Create user
// @Description  Creates a user account. Requires users:write scope.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUserRequest  true  "Account fields"
// @Success      201  {object}  map[string]interface{}  "user: UserView"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/users [post]
// CreateUserHandler creates a user account
// POST /api/v1/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		existing, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing user"})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}

		user := &models.User{
			Email:      req.Email,
			FirstName:  req.FirstName,
			MiddleName: req.MiddleName,
			LastName:   req.LastName,
		}
		if req.Password != "" {
			hash, err := auth.HashPassword(req.Password)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
				return
			}
			user.PasswordHash = &hash
		}

		if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"user": userViewOf(user)})
	}
}

// @Summary      Delete user
// @Description  Deletes a user account. Pins, personal directories, and the linked contact card cascade away. Requires users:write scope.
// @Tags         Users
// @Security     Bearer
// @Param        id  path  string  true  "User ID"
// @Success      204  "Deleted"
// @Failure      400  {object}  map[string]interface{}  "Cannot delete own account"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/users/{id} [delete]
// DeleteUserHandler deletes a user account
// DELETE /api/v1/users/:id
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		if userID == middleware.ActorID(c) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete own account"})
			return
		}

		user, err := h.users.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		if err := h.users.DeleteUser(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}
