package notes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/notehub/internal/auth"
)

// Handler exposes the notes HTTP API. Every endpoint requires auth.
type Handler struct {
	service   *Service
	jwtSecret string
}

func NewHandler(service *Service, jwtSecret string) *Handler {
	return &Handler{service: service, jwtSecret: jwtSecret}
}

type createRequest struct {
	Title   string `json:"title" binding:"required,max=100"`
	Content string `json:"content" binding:"required"`
}

type updateRequest struct {
	Title   *string `json:"title" binding:"omitempty,max=100"`
	Content *string `json:"content"`
}

// RegisterRoutes mounts the notes endpoints.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	g := r.Group("/notes", auth.Middleware(h.jwtSecret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	note, err := h.service.Create(c.Request.Context(), auth.CurrentUserID(c), req.Title, req.Content)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create note")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create note"})
		return
	}

	c.JSON(http.StatusCreated, note)
}

func (h *Handler) list(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	list, err := h.service.List(c.Request.Context(), auth.CurrentUserID(c), skip, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list notes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notes"})
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *Handler) get(c *gin.Context) {
	noteID, ok := noteParam(c)
	if !ok {
		return
	}

	note, err := h.service.Get(c.Request.Context(), auth.CurrentUserID(c), noteID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load note"})
		return
	}

	c.JSON(http.StatusOK, note)
}

func (h *Handler) update(c *gin.Context) {
	noteID, ok := noteParam(c)
	if !ok {
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	note, err := h.service.Update(c.Request.Context(), auth.CurrentUserID(c), noteID, UpdateParams{
		Title:   req.Title,
		Content: req.Content,
	})
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to update note")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update note"})
		return
	}

	c.JSON(http.StatusOK, note)
}

func (h *Handler) delete(c *gin.Context) {
	noteID, ok := noteParam(c)
	if !ok {
		return
	}

	err := h.service.Delete(c.Request.Context(), auth.CurrentUserID(c), noteID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete note")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete note"})
		return
	}

	c.Status(http.StatusNoContent)
}

func noteParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid note id"})
		return 0, false
	}
	return uint(id), true
}
