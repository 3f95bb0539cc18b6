package analytics

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/notehub/internal/auth"
)

const defaultEventLimit = 50

// Handler exposes the analytics read API.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the analytics endpoints. System statistics are
// public; everything else requires authentication.
func (h *Handler) RegisterRoutes(r *gin.Engine, authMW gin.HandlerFunc) {
	g := r.Group("/analytics")
	g.GET("/system/statistics", h.systemStatistics)

	authed := g.Group("", authMW)
	authed.GET("/users/me/statistics", h.myStatistics)
	authed.GET("/users/:id/statistics", h.userStatistics)
	authed.GET("/users/:id/events/notes", h.noteEvents)
	authed.GET("/users/:id/events/activity", h.activityEvents)
}

// myStatistics returns zero-valued statistics when nothing has been
// aggregated for the user yet, mirroring a brand-new account.
func (h *Handler) myStatistics(c *gin.Context) {
	userID := auth.CurrentUserID(c)

	stats, err := h.service.UserStatistics(c.Request.Context(), userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, UserStatistics{UserID: userID})
		return
	}
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("Failed to load statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) userStatistics(c *gin.Context) {
	userID, ok := h.requireSelf(c)
	if !ok {
		return
	}

	stats, err := h.service.UserStatistics(c.Request.Context(), userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "statistics not found for this user"})
		return
	}
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("Failed to load statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) noteEvents(c *gin.Context) {
	userID, ok := h.requireSelf(c)
	if !ok {
		return
	}

	evts, err := h.service.NoteEvents(c.Request.Context(), userID, eventLimit(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("Failed to list note events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}

	c.JSON(http.StatusOK, evts)
}

func (h *Handler) activityEvents(c *gin.Context) {
	userID, ok := h.requireSelf(c)
	if !ok {
		return
	}

	evts, err := h.service.UserEvents(c.Request.Context(), userID, eventLimit(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("Failed to list user events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}

	c.JSON(http.StatusOK, evts)
}

func (h *Handler) systemStatistics(c *gin.Context) {
	stats, err := h.service.SystemStatistics(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute system statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// requireSelf parses the :id path parameter and rejects requests for other
// users' data.
func (h *Handler) requireSelf(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}

	if uint(id) != auth.CurrentUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "you can only view your own data"})
		return 0, false
	}
	return uint(id), true
}

func eventLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultEventLimit)))
	if err != nil || limit <= 0 {
		return defaultEventLimit
	}
	return limit
}
