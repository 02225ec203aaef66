package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"teamchat/internal/app"
	"teamchat/internal/transport/http/response"
)

type AdminHandler struct {
	adminService    *app.AdminService
	authService     *app.AuthService
	documentService *app.DocumentService
}

func NewAdminHandler(adminService *app.AdminService, authService *app.AuthService, documentService *app.DocumentService) *AdminHandler {
	return &AdminHandler{
		adminService:    adminService,
		authService:     authService,
		documentService: documentService,
	}
}

func (h *AdminHandler) actor(c *gin.Context) (app.Identity, bool) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return app.Identity{}, false
	}
	identity, err := h.authService.IdentityFor(userID)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "account no longer exists")
		return app.Identity{}, false
	}
	return identity, true
}

type createUserRequest struct {
	Username string   `json:"username" binding:"required"`
	Password string   `json:"password" binding:"required"`
	Role     string   `json:"role"`
	Teams    []string `json:"teams"`
}

func (h *AdminHandler) CreateUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "username and password are required")
		return
	}

	user, err := h.adminService.CreateUser(c.Request.Context(), actor, app.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Teams:    req.Teams,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "username is required and password must be at least 8 characters")
		case errors.Is(err, app.ErrInvalidRole):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "role must be admin or member")
		case errors.Is(err, app.ErrUsernameExists):
			response.Error(c, http.StatusConflict, response.CodeUsernameExists, "username already exists")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create user failed")
		}
		return
	}

	response.OK(c, toUserView(user))
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.adminService.ListUsers()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list users failed")
		return
	}

	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, toUserView(&users[i]))
	}
	response.OK(c, views)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	username := strings.TrimSpace(c.Param("username"))
	err := h.adminService.DeleteUser(c.Request.Context(), actor, username)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrProtectedAccount):
			response.Error(c, http.StatusForbidden, response.CodeForbidden, "the default admin account cannot be deleted")
		case errors.Is(err, app.ErrSelfDelete):
			response.Error(c, http.StatusForbidden, response.CodeForbidden, "cannot delete your own account")
		case errors.Is(err, app.ErrUserNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, "user not found")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete user failed")
		}
		return
	}
	response.OK(c, nil)
}

type setRoleTeamsRequest struct {
	Role  string   `json:"role" binding:"required"`
	Teams []string `json:"teams"`
}

func (h *AdminHandler) SetRoleAndTeams(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req setRoleTeamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "role is required")
		return
	}

	username := strings.TrimSpace(c.Param("username"))
	err := h.adminService.SetRoleAndTeams(c.Request.Context(), actor, username, req.Role, req.Teams)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRole):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "role must be admin or member")
		case errors.Is(err, app.ErrUserNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, "user not found")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "update user failed")
		}
		return
	}
	response.OK(c, nil)
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *AdminHandler) ResetPassword(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "new_password is required")
		return
	}

	username := strings.TrimSpace(c.Param("username"))
	err := h.adminService.ResetPassword(c.Request.Context(), actor, username, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "new password must be at least 8 characters")
		case errors.Is(err, app.ErrUserNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, "user not found")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "reset password failed")
		}
		return
	}
	response.OK(c, nil)
}

type setDocumentTeamsRequest struct {
	Teams []string `json:"teams"`
}

func (h *AdminHandler) SetDocumentTeams(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req setDocumentTeamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body")
		return
	}

	docID := strings.TrimSpace(c.Param("id"))
	err := h.adminService.SetDocumentTeams(c.Request.Context(), actor, docID, req.Teams)
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "document id is required")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "set document teams failed")
		return
	}
	response.OK(c, nil)
}

func (h *AdminHandler) GetDocumentTeams(c *gin.Context) {
	docID := strings.TrimSpace(c.Param("id"))
	if docID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "document id is required")
		return
	}

	teams, err := h.adminService.DocumentTeams(docID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get document teams failed")
		return
	}
	response.OK(c, gin.H{"doc_id": docID, "teams": teams})
}

// ListDocuments returns the full corpus with team tags. The caller is
// already known to be an admin, so nothing is filtered out.
func (h *AdminHandler) ListDocuments(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	infos, err := h.documentService.List(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, http.StatusBadGateway, response.CodeCollaborator, "list documents failed")
		return
	}
	response.OK(c, infos)
}

// ListAuditLogs returns the most recent audit entries, newest first. The
// limit query parameter caps the page size and falls back to the repository
// default when absent or malformed.
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.adminService.ListAuditLogs(limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list audit logs failed")
		return
	}
	response.OK(c, logs)
}

func (h *AdminHandler) ListTeams(c *gin.Context) {
	teams, err := h.adminService.ListTeams()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list teams failed")
		return
	}
	response.OK(c, teams)
}
