package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gridwatch/healthindexer/internal/models"
	"github.com/gridwatch/healthindexer/internal/services"
	"github.com/gridwatch/healthindexer/pkg/errors"
	"github.com/gridwatch/healthindexer/pkg/response"
)

// AdminHandler exposes the admin panel endpoints: user management and
// cross-user analysis history.
type AdminHandler struct {
	users    *services.UserService
	analyses *services.AnalysisService
}

func NewAdminHandler(users *services.UserService, analyses *services.AnalysisService) *AdminHandler {
	return &AdminHandler{users: users, analyses: analyses}
}

// GET /api/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	display := make([]gin.H, 0, len(users))
	for _, u := range users {
		display = append(display, gin.H{
			"id":             u.ID,
			"name":           u.Name,
			"email":          u.Email,
			"role":           displayRole(u.Role),
			"status":         displayStatus(u.Role),
			"email_verified": u.EmailVerified,
			"created_at":     u.CreatedAt,
		})
	}

	response.Success(c, http.StatusOK, gin.H{"users": display})
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// PUT /api/admin/users/:id/role
func (h *AdminHandler) UpdateRole(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		response.Error(c, errors.NewBadRequest("user id is required"))
		return
	}

	var req updateRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.UpdateRole(requestContext(c), userID, models.Role(strings.ToLower(strings.TrimSpace(req.Role))))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Role updated",
		"user": gin.H{
			"id":   user.ID,
			"role": user.Role,
		},
	})
}

// GET /api/admin/history?scope=all or ?userId=<id>
// Exactly one of the two selectors must be present.
func (h *AdminHandler) History(c *gin.Context) {
	scope := strings.TrimSpace(c.Query("scope"))
	userID := strings.TrimSpace(c.Query("userId"))

	switch {
	case scope == "all":
		logs, err := h.analyses.HistoryAll(requestContext(c))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"history": logs})

	case userID != "":
		logs, err := h.analyses.HistoryForUser(requestContext(c), userID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"history": logs})

	default:
		response.Error(c, errors.NewBadRequest("scope=all or userId query parameter is required"))
	}
}

func displayRole(role models.Role) string {
	switch role {
	case models.RoleAdmin:
		return "Admin"
	default:
		return "User"
	}
}

func displayStatus(role models.Role) string {
	if role == models.RoleSuspended {
		return "Suspended"
	}
	return "Active"
}
