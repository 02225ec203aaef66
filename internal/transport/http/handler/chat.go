package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"teamchat/internal/app"
	"teamchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
	authService *app.AuthService
	ledger      *app.LedgerService
}

func NewChatHandler(chatService *app.ChatService, authService *app.AuthService, ledger *app.LedgerService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		authService: authService,
		ledger:      ledger,
	}
}

type streamChatRequest struct {
	SessionID string   `json:"session_id"`
	Mode      string   `json:"mode"`
	Content   string   `json:"content" binding:"required"`
	DocIDs    []string `json:"doc_ids"`
}

// StreamChat serves one chat turn as a server-sent event stream. Events are
// JSON payloads tagged with an SSE event name; errors after the stream has
// started arrive as a terminal "error" event rather than an HTTP status.
func (h *ChatHandler) StreamChat(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req streamChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "message content is required")
		return
	}

	identity, err := h.authService.IdentityFor(userID)
	if err != nil {
		if errors.Is(err, app.ErrUserNotFound) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "account no longer exists")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load identity failed")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	writeEvent := func(event app.StreamEvent) error {
		payload, marshalErr := json.Marshal(event)
		if marshalErr != nil {
			return marshalErr
		}
		if _, writeErr := c.Writer.Write([]byte("event: " + event.Type + "\ndata: " + string(payload) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	}

	err = h.chatService.Stream(c.Request.Context(), app.StreamInput{
		Identity:  identity,
		SessionID: req.SessionID,
		Mode:      req.Mode,
		Content:   req.Content,
		DocIDs:    req.DocIDs,
	}, writeEvent)
	if err != nil {
		msg := "chat stream failed"
		switch {
		case errors.Is(err, app.ErrMessageEmpty):
			msg = "message content is empty"
		case errors.Is(err, app.ErrUnknownMode):
			msg = "unknown chat mode"
		}
		if _, writeErr := c.Writer.Write([]byte("event: error\ndata: " + sanitizeSSE(msg) + "\n\n")); writeErr == nil {
			flusher.Flush()
		}
	}
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessions, err := h.ledger.ListSessions(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *ChatHandler) GetTranscript(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "session id is required")
		return
	}

	turns, err := h.ledger.GetTranscript(c.Request.Context(), userID, sessionID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get transcript failed")
		return
	}
	response.OK(c, turns)
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
