package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/attendance-api/internal/models"
	apperrors "github.com/campuskit/attendance-api/pkg/errors"
	"github.com/campuskit/attendance-api/pkg/response"
)

type attendanceService interface {
	Submit(ctx context.Context, sessionKey string, req models.SubmitAttendanceRequest) (*models.SubmitAttendanceResponse, error)
	Lookup(ctx context.Context, req models.AttendanceLookupRequest) (*models.AttendanceLookupResponse, error)
}

type markContextProvider interface {
	MarkContext(ctx context.Context, sessionKey string) (*models.MarkContext, error)
}

// AttendanceHandler exposes the public submission endpoints reached from
// scanned QR codes, plus the student self-service lookup.
type AttendanceHandler struct {
	attendance attendanceService
	sessions   markContextProvider
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService, sessions markContextProvider) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, sessions: sessions}
}

// Mark godoc
// @Summary Session context for the QR landing page
// @Tags Attendance
// @Produce json
// @Param sessionKey path string true "Session key"
// @Success 200 {object} response.Envelope
// @Router /attendance/mark/{sessionKey} [get]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	mc, err := h.sessions.MarkContext(c.Request.Context(), c.Param("sessionKey"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mc, nil)
}

// Submit godoc
// @Summary Submit attendance for a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param sessionKey path string true "Session key"
// @Param payload body models.SubmitAttendanceRequest true "Submission"
// @Success 200 {object} response.Envelope
// @Router /attendance/submit/{sessionKey} [post]
func (h *AttendanceHandler) Submit(c *gin.Context) {
	var req models.SubmitAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.Wrap(err, apperrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.IP = c.ClientIP()

	result, err := h.attendance.Submit(c.Request.Context(), c.Param("sessionKey"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Lookup godoc
// @Summary Student self-service attendance lookup
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.AttendanceLookupRequest true "Lookup"
// @Success 200 {object} response.Envelope
// @Router /attendance/lookup [post]
func (h *AttendanceHandler) Lookup(c *gin.Context) {
	var req models.AttendanceLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.Wrap(err, apperrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.attendance.Lookup(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
