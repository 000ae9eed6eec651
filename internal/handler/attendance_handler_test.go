package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/attendance-api/internal/models"
	apperrors "github.com/campuskit/attendance-api/pkg/errors"
)

type attendanceServiceMock struct {
	submitResp *models.SubmitAttendanceResponse
	submitErr  error
	lookupResp *models.AttendanceLookupResponse
	lookupErr  error
	gotKey     string
	gotReq     models.SubmitAttendanceRequest
}

func (m *attendanceServiceMock) Submit(ctx context.Context, sessionKey string, req models.SubmitAttendanceRequest) (*models.SubmitAttendanceResponse, error) {
	m.gotKey = sessionKey
	m.gotReq = req
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.submitResp, nil
}

func (m *attendanceServiceMock) Lookup(ctx context.Context, req models.AttendanceLookupRequest) (*models.AttendanceLookupResponse, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return m.lookupResp, nil
}

type markContextMock struct {
	resp *models.MarkContext
	err  error
}

func (m *markContextMock) MarkContext(ctx context.Context, sessionKey string) (*models.MarkContext, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func TestAttendanceHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &attendanceServiceMock{
		submitResp: &models.SubmitAttendanceResponse{
			RecordID:     "att-1",
			SessionTitle: "Week 3 Lecture",
			IsVerified:   true,
		},
	}
	handler := NewAttendanceHandler(svc, &markContextMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(models.SubmitAttendanceRequest{AdmissionNumber: "ADM001"})
	req, _ := http.NewRequest(http.MethodPost, "/attendance/submit/abc-123", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:52100"
	c.Request = req
	c.Params = gin.Params{{Key: "sessionKey", Value: "abc-123"}}

	handler.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", svc.gotKey)
	assert.Equal(t, "ADM001", svc.gotReq.AdmissionNumber)
	assert.Equal(t, "203.0.113.7", svc.gotReq.IP)
}

func TestAttendanceHandlerSubmitInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttendanceHandler(&attendanceServiceMock{}, &markContextMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/attendance/submit/abc-123", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerSubmitDuplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &attendanceServiceMock{
		submitErr: apperrors.ErrDuplicateSubmission,
	}
	handler := NewAttendanceHandler(svc, &markContextMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(models.SubmitAttendanceRequest{AdmissionNumber: "ADM001"})
	req, _ := http.NewRequest(http.MethodPost, "/attendance/submit/abc-123", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "sessionKey", Value: "abc-123"}}

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "DUPLICATE_SUBMISSION", envelope.Error.Code)
}

func TestAttendanceHandlerMark(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sessions := &markContextMock{resp: &models.MarkContext{
		SessionKey: "abc-123",
		Title:      "Week 3 Lecture",
		Status:     models.SessionStatusActive,
	}}
	handler := NewAttendanceHandler(&attendanceServiceMock{}, sessions)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/attendance/mark/abc-123", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "sessionKey", Value: "abc-123"}}

	handler.Mark(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.MarkContext `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.SessionStatusActive, envelope.Data.Status)
	assert.Equal(t, "Week 3 Lecture", envelope.Data.Title)
}

func TestAttendanceHandlerMarkUnknownKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sessions := &markContextMock{err: apperrors.Clone(apperrors.ErrNotFound, "session not found or not accepting submissions")}
	handler := NewAttendanceHandler(&attendanceServiceMock{}, sessions)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/attendance/mark/nope", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "sessionKey", Value: "nope"}}

	handler.Mark(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
