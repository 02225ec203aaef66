package handler

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"teamchat/internal/app"
	"teamchat/internal/pkg/pdfextract"
	"teamchat/internal/transport/http/response"
)

const maxUploadBytes = 20 << 20

type DocumentHandler struct {
	documentService *app.DocumentService
	authService     *app.AuthService
}

func NewDocumentHandler(documentService *app.DocumentService, authService *app.AuthService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, authService: authService}
}

func (h *DocumentHandler) actor(c *gin.Context) (app.Identity, bool) {
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

// Upload accepts one multipart file. PDF content is extracted to text
// before ingestion; anything else is ingested as-is.
func (h *DocumentHandler) Upload(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file is required")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file exceeds the 20MB upload limit")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "open uploaded file failed")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "read uploaded file failed")
		return
	}

	content := string(raw)
	if strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		content, err = pdfextract.ExtractText(bytes.NewReader(raw))
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "extract pdf text failed")
			return
		}
	}

	var teams []string
	if rawTeams := strings.TrimSpace(c.PostForm("teams")); rawTeams != "" {
		for _, team := range strings.Split(rawTeams, ",") {
			if team = strings.TrimSpace(team); team != "" {
				teams = append(teams, team)
			}
		}
	}

	infos, err := h.documentService.Upload(c.Request.Context(), actor, fileHeader.Filename, content, teams)
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file name and content must be non-empty")
			return
		}
		response.Error(c, http.StatusBadGateway, response.CodeCollaborator, "document ingestion failed")
		return
	}
	response.OK(c, infos)
}

func (h *DocumentHandler) List(c *gin.Context) {
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

func (h *DocumentHandler) Delete(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	docID := strings.TrimSpace(c.Param("id"))
	if docID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "document id is required")
		return
	}

	if err := h.documentService.Delete(c.Request.Context(), actor, docID); err != nil {
		response.Error(c, http.StatusBadGateway, response.CodeCollaborator, "delete document failed")
		return
	}
	response.OK(c, nil)
}

// DeleteAll clears the entire corpus, including team tags.
func (h *DocumentHandler) DeleteAll(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	deleted, err := h.documentService.DeleteAll(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, http.StatusBadGateway, response.CodeCollaborator, "delete all documents failed")
		return
	}
	response.OK(c, gin.H{"deleted": deleted})
}
