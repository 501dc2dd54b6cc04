package api

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"docuexplore/internal/apperr"
	"docuexplore/internal/auth"
	"docuexplore/internal/logger"
	"docuexplore/internal/models"
	"docuexplore/internal/service/docai"
	"docuexplore/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// multipart framing allowance on top of the file size limit
const formOverhead = 1 << 20

type WorkerManager interface {
	Upload(ctx context.Context, id string, req session.UploadRequest) error
	Ask(ctx context.Context, id, question string) (models.Message, error)
	Reset(ctx context.Context, id string) error
	Snapshot(ctx context.Context, id string) models.SessionView
	End(ctx context.Context, id string)
}

// Handler wires HTTP routes to the per-session workers.
type Handler struct {
	workers   WorkerManager
	auth      *auth.Service
	maxUpload int64
	inspect   func([]byte) (int, error)
	health    func(context.Context) error
	log       *logger.Logger
}

// NewHandler constructs a Handler instance. health may be nil.
func NewHandler(workers WorkerManager, authService *auth.Service, maxUpload int64, health func(context.Context) error, log *logger.Logger) *Handler {
	return &Handler{
		workers:   workers,
		auth:      authService,
		maxUpload: maxUpload,
		inspect:   docai.Inspect,
		health:    health,
		log:       logger.OrNop(log).With("component", "api"),
	}
}

// RegisterRoutes attaches all HTTP routes and the page template to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")))
	router.GET("/healthz", h.healthz)

	site := router.Group("/")
	site.Use(h.limitBody(), h.auth.Middleware(), h.auth.CSRFMiddleware())
	site.GET("/", h.index)
	site.POST("/upload", h.upload)
	site.POST("/ask", h.askForm)
	site.POST("/reset", h.reset)
	site.POST("/end", h.end)

	api := site.Group("/api")
	api.GET("/session", h.sessionState)
	api.POST("/ask", h.askJSON)
}

type pageData struct {
	View        models.SessionView
	CSRFToken   string
	CSRFField   string
	Flash       string
	MaxUploadMB int64
}

func (h *Handler) render(c *gin.Context, status int, flash string) {
	id, _ := auth.SessionIDFromContext(c)
	c.HTML(status, "index.html", pageData{
		View:        h.workers.Snapshot(c.Request.Context(), id),
		CSRFToken:   auth.CSRFTokenFromContext(c),
		CSRFField:   h.auth.CSRFFormFieldName(),
		Flash:       flash,
		MaxUploadMB: h.maxUpload >> 20,
	})
}

func (h *Handler) index(c *gin.Context) {
	h.render(c, http.StatusOK, "")
}

func (h *Handler) upload(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	req, err := h.readUpload(c)
	if err != nil {
		h.render(c, apperr.StatusCode(err), apperr.Message(err))
		return
	}
	if err := h.workers.Upload(c.Request.Context(), id, req); err != nil {
		h.render(c, apperr.StatusCode(err), apperr.Message(err))
		return
	}
	h.log.Info("upload accepted", "session_id", id, "file_name", req.FileName, "pages", req.Pages)
	c.Redirect(http.StatusSeeOther, "/")
}

// readUpload validates the multipart file: size, extension, and PDF structure.
func (h *Handler) readUpload(c *gin.Context) (session.UploadRequest, error) {
	file, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return session.UploadRequest{}, apperr.New(apperr.KindValidation, "file too large", err)
		}
		return session.UploadRequest{}, apperr.New(apperr.KindValidation, "file is required", err)
	}
	if file.Size > h.maxUpload {
		return session.UploadRequest{}, apperr.New(apperr.KindValidation, "file too large", nil)
	}
	name := filepath.Base(file.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return session.UploadRequest{}, apperr.New(apperr.KindValidation, "only PDF files are accepted", nil)
	}
	f, err := file.Open()
	if err != nil {
		return session.UploadRequest{}, apperr.New(apperr.KindValidation, "open file failed", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return session.UploadRequest{}, apperr.New(apperr.KindValidation, "read file failed", err)
	}
	if int64(len(data)) > h.maxUpload {
		return session.UploadRequest{}, apperr.New(apperr.KindValidation, "file too large", nil)
	}
	pages, err := h.inspect(data)
	if err != nil {
		return session.UploadRequest{}, err
	}
	return session.UploadRequest{FileName: name, Data: data, Pages: pages}, nil
}

func (h *Handler) askForm(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	if _, err := h.workers.Ask(c.Request.Context(), id, c.PostForm("question")); err != nil {
		// chat turn failures are already in the transcript
		if !apperr.IsKind(err, apperr.KindChatTurn) {
			h.render(c, apperr.StatusCode(err), apperr.Message(err))
			return
		}
	}
	c.Redirect(http.StatusSeeOther, "/")
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *Handler) askJSON(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	msg, err := h.workers.Ask(c.Request.Context(), id, req.Question)
	if err != nil {
		c.JSON(apperr.StatusCode(err), gin.H{"error": apperr.Message(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *Handler) reset(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	if err := h.workers.Reset(c.Request.Context(), id); err != nil {
		h.render(c, apperr.StatusCode(err), apperr.Message(err))
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) end(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	h.workers.End(c.Request.Context(), id)
	h.auth.ClearSession(c)
	h.log.Info("session ended", "session_id", id)
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) sessionState(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.workers.Snapshot(c.Request.Context(), id))
}

func (h *Handler) healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) sessionID(c *gin.Context) (string, bool) {
	id, ok := auth.SessionIDFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session missing"})
		return "", false
	}
	return id, true
}

func (h *Handler) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+formOverhead)
		}
		c.Next()
	}
}
