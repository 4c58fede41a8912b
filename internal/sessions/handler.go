package sessions

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"clinic-portal/clinic-portal-backend/internal/auth"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.Create)
		sessions.GET("", h.List)
		sessions.GET("/export", h.Export)
		sessions.GET("/:id", h.Get)
		sessions.PATCH("/:id/status", h.UpdateStatus)
		sessions.GET("/:id/transitions", h.Transitions)
		sessions.GET("/:id/history", h.History)
	}
}

func (h *Handler) Create(c *gin.Context) {
	actorID, ok := auth.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), actorID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

func (h *Handler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp, err := h.service.ListSessions(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Export(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="sessions-%s.xlsx"`, time.Now().UTC().Format("20060102")))
	if err := h.service.ExportSessions(c.Request.Context(), filter, c.Writer); err != nil {
		c.Header("Content-Disposition", "")
		h.respondError(c, err)
	}
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	session, err := h.service.GetSession(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	actorID, ok := auth.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status, actorID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *Handler) Transitions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	allowed, err := h.service.GetAllowedTransitions(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": id, "allowed": allowed})
}

func (h *Handler) History(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	history, err := h.service.ListHistory(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Message, "path": verr.Path})
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrStatusConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Session request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func parseFilter(c *gin.Context) (*SessionFilter, error) {
	filter := &SessionFilter{
		Search:    strings.TrimSpace(c.Query("q")),
		SortBy:    SortField(c.Query("sort_by")),
		SortOrder: SortOrder(strings.ToLower(c.Query("sort_order"))),
	}

	ids := []struct {
		param string
		dst   **uuid.UUID
	}{
		{"therapist_id", &filter.TherapistID},
		{"client_id", &filter.ClientID},
		{"therapy_id", &filter.TherapyID},
		{"clinic_id", &filter.ClinicID},
	}
	for _, p := range ids {
		raw := c.Query(p.param)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, &ValidationError{Path: p.param, Message: fmt.Sprintf("invalid %s", p.param)}
		}
		*p.dst = &id
	}

	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			status, err := ParseStatus(part)
			if err != nil {
				return nil, err
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	times := []struct {
		param string
		dst   **time.Time
	}{
		{"scheduled_from", &filter.ScheduledFrom},
		{"scheduled_to", &filter.ScheduledTo},
	}
	for _, p := range times {
		raw := c.Query(p.param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, &ValidationError{Path: p.param, Message: fmt.Sprintf("%s must be an RFC 3339 timestamp", p.param)}
		}
		*p.dst = &t
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &ValidationError{Path: "page", Message: "page must be a number"}
		}
		filter.Page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &ValidationError{Path: "page_size", Message: "page_size must be a number"}
		}
		filter.PageSize = size
	}

	return filter, nil
}
