package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/attendance-api/internal/models"
	"github.com/campuskit/attendance-api/internal/service"
	"github.com/campuskit/attendance-api/pkg/response"
)

// ActivityHandler exposes the audit trail for administrators.
type ActivityHandler struct {
	activity *service.ActivityService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(activity *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// List godoc
// @Summary List activity logs
// @Tags Activity
// @Produce json
// @Param actorId query string false "Filter by actor"
// @Param action query string false "Filter by action"
// @Param objectType query string false "Filter by object type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /activity-logs [get]
func (h *ActivityHandler) List(c *gin.Context) {
	var filter models.ActivityLogFilter
	filter.ActorID = c.Query("actorId")
	filter.Action = c.Query("action")
	filter.ObjectType = c.Query("objectType")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	logs, pagination, err := h.activity.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

// RecentImports godoc
// @Summary Recent CSV import runs
// @Tags Activity
// @Produce json
// @Param limit query int false "Number of entries" default(10)
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /activity-logs/imports [get]
func (h *ActivityHandler) RecentImports(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}

	imports, err := h.activity.RecentImports(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, imports, nil)
}
