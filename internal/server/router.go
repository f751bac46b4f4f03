package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/docstudio/internal/documents"
	"github.com/MarcoPoloResearchLab/docstudio/internal/feedback"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway"
	"github.com/MarcoPoloResearchLab/docstudio/internal/outline"
	"github.com/MarcoPoloResearchLab/docstudio/internal/session"
	"github.com/MarcoPoloResearchLab/docstudio/internal/workspace"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
)

const defaultHeartbeatInterval = 15 * time.Second

var (
	errMissingApp      = errors.New("workspace app dependency required")
	errMissingRealtime = errors.New("realtime dispatcher dependency required")
	errInvalidSection  = errors.New("section index must be a non-negative integer")
	errInvalidRequest  = errors.New("invalid request body")
)

type Dependencies struct {
	App               *workspace.App
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	HeartbeatInterval time.Duration
}

// NewHTTPHandler builds the local workspace API consumed by the browser front-end.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.App == nil {
		return nil, errMissingApp
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		app:       deps.App,
		realtime:  deps.Realtime,
		logger:    logger,
		heartbeat: heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)

	router.GET("/session", handler.handleCurrentSession)
	router.POST("/session/login", handler.handleLogin)
	router.POST("/session/signup", handler.handleSignup)
	router.DELETE("/session", handler.handleLogout)

	router.GET("/projects", handler.handleListProjects)
	router.POST("/projects", handler.handleCreateProject)
	router.POST("/outline/suggest", handler.handleSuggestOutline)
	router.POST("/projects/:projectID/open", handler.handleOpenProject)
	router.POST("/versions/:versionID/select", handler.handleSelectVersion)
	router.GET("/workspace", handler.handleWorkspace)

	sections := router.Group("/sections/:index")
	sections.POST("/like", handler.handleLike)
	sections.POST("/dislike", handler.handleDislike)
	sections.POST("/comment", handler.handleComment)
	sections.POST("/refine", handler.handleRefine)

	router.GET("/download", handler.handleDownload)
	router.GET("/events", handler.handleEvents)

	return router, nil
}

// corsMiddleware admits browser origins served from this machine only.
func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  isLocalOrigin,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func isLocalOrigin(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

type httpHandler struct {
	app       *workspace.App
	realtime  *RealtimeDispatcher
	logger    *zap.Logger
	heartbeat time.Duration
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type draftPayload struct {
	Topic   string   `json:"topic"`
	DocType string   `json:"doc_type"`
	Mode    string   `json:"mode"`
	Entries []string `json:"entries"`
	Raw     string   `json:"raw"`
}

type commentPayload struct {
	Text string `json:"text"`
}

type refinePayload struct {
	Prompt string `json:"prompt"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleCurrentSession(c *gin.Context) {
	current, err := h.app.CurrentSession(c.Request.Context())
	if errors.Is(err, session.ErrNoSession) || errors.Is(err, session.ErrSessionExpired) {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "session": current})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondError(c, errInvalidRequest)
		return
	}
	current, err := h.app.Login(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "session": current})
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondError(c, errInvalidRequest)
		return
	}
	result, err := h.app.Signup(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if err := h.app.Logout(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListProjects(c *gin.Context) {
	projects, err := h.app.ListProjects(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *httpHandler) handleCreateProject(c *gin.Context) {
	draft, err := h.bindDraft(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	project, err := h.app.CreateProject(c.Request.Context(), draft)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project, "workspace": h.app.View()})
}

func (h *httpHandler) handleSuggestOutline(c *gin.Context) {
	draft, err := h.bindDraft(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.app.SuggestOutline(c.Request.Context(), draft); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"doc_type": draft.Doctype.OutlineName(), "entries": draft.Entries()})
}

// bindDraft rebuilds an outline draft from the editor's payload.
func (h *httpHandler) bindDraft(c *gin.Context) (*outline.Draft, error) {
	var request draftPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		return nil, errInvalidRequest
	}
	draft := outline.NewDraft()
	draft.Topic = request.Topic
	if strings.TrimSpace(request.DocType) != "" {
		doctype, err := documents.ParseDoctype(request.DocType)
		if err != nil {
			return nil, err
		}
		draft.Doctype = doctype
	}
	if len(request.Entries) > 0 {
		draft.SetEntries(request.Entries)
	}
	if outline.Mode(request.Mode) == outline.ModeRaw {
		if err := draft.SwitchMode(outline.ModeRaw); err != nil {
			return nil, err
		}
		draft.SetRaw(request.Raw)
	}
	return draft, nil
}

func (h *httpHandler) handleOpenProject(c *gin.Context) {
	if err := h.app.OpenProject(c.Request.Context(), c.Param("projectID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.app.View())
}

func (h *httpHandler) handleSelectVersion(c *gin.Context) {
	if err := h.app.SelectVersion(c.Request.Context(), c.Param("versionID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.app.View())
}

func (h *httpHandler) handleWorkspace(c *gin.Context) {
	c.JSON(http.StatusOK, h.app.View())
}

func (h *httpHandler) handleLike(c *gin.Context) {
	h.withSection(c, func(index int) error {
		return h.app.Like(c.Request.Context(), index)
	})
}

func (h *httpHandler) handleDislike(c *gin.Context) {
	h.withSection(c, func(index int) error {
		return h.app.Dislike(c.Request.Context(), index)
	})
}

func (h *httpHandler) handleComment(c *gin.Context) {
	var request commentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondError(c, errInvalidRequest)
		return
	}
	h.withSection(c, func(index int) error {
		return h.app.Comment(c.Request.Context(), index, request.Text)
	})
}

func (h *httpHandler) handleRefine(c *gin.Context) {
	var request refinePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondError(c, errInvalidRequest)
		return
	}
	h.withSection(c, func(index int) error {
		return h.app.Refine(c.Request.Context(), index, request.Prompt)
	})
}

func (h *httpHandler) withSection(c *gin.Context, apply func(index int) error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		h.respondError(c, errInvalidSection)
		return
	}
	if err := apply(index); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.app.View())
}

func (h *httpHandler) handleDownload(c *gin.Context) {
	file, err := h.app.Download(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, contentType, file.Data)
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(realtimeEventSnapshot, h.app.View())
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-stream:
			c.SSEvent(string(event.Type), event)
			c.Writer.Flush()
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSource, "timestamp": tick.UTC()})
			c.Writer.Flush()
		}
	}
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := statusForError(err)
	code := "internal"
	var coded interface{ Code() string }
	switch {
	case errors.As(err, &coded):
		code = coded.Code()
	case status == http.StatusBadRequest:
		code = "invalid_request"
	case status == http.StatusUnauthorized:
		code = "unauthorized"
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("workspace request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": code})
}

func statusForError(err error) int {
	var validationErrors validation.Errors
	var apiErr *gateway.APIError
	var transportErr *gateway.TransportError
	switch {
	case errors.Is(err, gateway.ErrUnauthorized),
		errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.As(err, &validationErrors),
		errors.Is(err, errInvalidRequest),
		errors.Is(err, errInvalidSection),
		errors.Is(err, workspace.ErrEmptyPrompt),
		errors.Is(err, workspace.ErrSectionIndex),
		errors.Is(err, feedback.ErrEmptyComment),
		errors.Is(err, feedback.ErrMissingTitle),
		errors.Is(err, outline.ErrMalformedRaw),
		errors.Is(err, outline.ErrMissingTopic),
		errors.Is(err, outline.ErrUnknownMode),
		errors.Is(err, documents.ErrUnknownDoctype):
		return http.StatusBadRequest
	case errors.Is(err, workspace.ErrUnknownProject),
		errors.Is(err, workspace.ErrUnknownVersion):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrStaleSelection),
		errors.Is(err, workspace.ErrNoProject),
		errors.Is(err, workspace.ErrContentNotReady),
		errors.Is(err, feedback.ErrVersionMismatch):
		return http.StatusConflict
	case errors.As(err, &apiErr),
		errors.As(err, &transportErr),
		errors.Is(err, gateway.ErrMalformedResponse),
		errors.Is(err, documents.ErrMalformedContent):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
