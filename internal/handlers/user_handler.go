package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "finlink/internal/errors"
	"finlink/internal/models"
	"finlink/internal/pagination"
	"finlink/internal/services"
)

// UserHandler manages user profiles. Listing and deleting are admin-only;
// reads and updates are allowed for the user themself or an admin.
type UserHandler struct {
	userService  services.UserServicer
	auditService services.AuditServicer
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService services.UserServicer, auditService services.AuditServicer) *UserHandler {
	return &UserHandler{userService: userService, auditService: auditService}
}

// UpdateUserRequest represents a profile update. Role may only be changed by an admin.
type UpdateUserRequest struct {
	FirstName *string      `json:"first_name" binding:"omitempty,max=100"`
	LastName  *string      `json:"last_name" binding:"omitempty,max=100"`
	Role      *models.Role `json:"role" binding:"omitempty,user_role"`
}

// authorizeUser resolves the :id path parameter and checks the caller may act on it.
func authorizeUser(c *gin.Context) (services.Caller, string, error) {
	caller, err := getCaller(c)
	if err != nil {
		return services.Caller{}, "", err
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		return services.Caller{}, "", err
	}
	if id != caller.UserID && !caller.IsAdmin() {
		return services.Caller{}, "", apperrors.ErrForbidden
	}
	return caller, id, nil
}

// ListUsers handles listing all users
// @Summary     List users
// @Description List all users (admin only)
// @Tags        users
// @Produce     json
// @Security    BearerAuth
// @Param       limit  query int false "Page size (default 100, max 500)"
// @Param       offset query int false "Offset"
// @Success     200 {object} pagination.Response[UserResponse] "Users"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Router      /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	var page pagination.Request
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.userService.ListUsers(page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	users := make([]UserResponse, 0, len(result.Data))
	for i := range result.Data {
		users = append(users, toUserResponse(&result.Data[i]))
	}
	c.JSON(http.StatusOK, pagination.Response[UserResponse]{
		Data:   users,
		Limit:  result.Limit,
		Offset: result.Offset,
		Total:  result.Total,
	})
}

// GetMe returns the authenticated user
// @Summary     Get current user
// @Tags        users
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} UserResponse "Current user"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /users/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	user, err := h.userService.GetUserByID(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// GetUser returns a user by id
// @Summary     Get user
// @Description Get a user by id (self or admin)
// @Tags        users
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "User ID"
// @Success     200 {object} UserResponse "User"
// @Failure     400 {object} ErrorResponse "Invalid id"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "User not found"
// @Router      /users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	_, id, err := authorizeUser(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	user, err := h.userService.GetUserByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// UpdateUser updates a user's profile
// @Summary     Update user
// @Description Update names (self or admin) and role (admin only)
// @Tags        users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string            true "User ID"
// @Param       request body UpdateUserRequest true "Fields to update"
// @Success     200 {object} UserResponse "Updated user"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "User not found"
// @Router      /users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	caller, id, err := authorizeUser(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	if req.Role != nil && !caller.IsAdmin() {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrForbidden, "Only admins can change roles"))
		return
	}

	user, err := h.userService.UpdateUser(id, services.UserUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	changes := map[string]interface{}{}
	if req.FirstName != nil {
		changes["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		changes["last_name"] = *req.LastName
	}
	if req.Role != nil {
		changes["role"] = *req.Role
	}
	h.auditService.Log(caller.UserID, services.AuditActionUpdateUser, "user", id, c.ClientIP(), changes)

	c.JSON(http.StatusOK, toUserResponse(user))
}

// DeleteUser deletes a user with all linked data
// @Summary     Delete user
// @Description Delete a user and cascade to items, accounts and transactions (admin only)
// @Tags        users
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "User ID"
// @Success     200 {object} SuccessResponse "Deleted"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "User not found"
// @Router      /users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	caller, err := getCaller(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.userService.DeleteUser(id); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(caller.UserID, services.AuditActionDeleteUser, "user", id, c.ClientIP(), nil)
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}
