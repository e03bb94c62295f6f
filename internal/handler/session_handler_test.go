package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-center-api/internal/middleware"
	"github.com/noah-isme/tuition-center-api/internal/models"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

type stubSessions struct {
	owner   string
	markErr error
	marked  []string
	source  models.MarkSource
}

func (s *stubSessions) Start(_ context.Context, teacher models.Actor, req models.StartSessionRequest) (*models.SessionSnapshot, error) {
	if req.Grade == 0 {
		return nil, appErrors.ErrInvalidSessionParams
	}
	return &models.SessionSnapshot{ID: "sess-1", TeacherID: teacher.ID, Subject: teacher.Subject, Grade: req.Grade, Active: true}, nil
}

func (s *stubSessions) Get(id string) (*models.SessionSnapshot, error) {
	return &models.SessionSnapshot{ID: id, TeacherID: s.owner, Active: true}, nil
}

func (s *stubSessions) ActiveForTeacher(teacherID string) (*models.SessionSnapshot, error) {
	if teacherID != s.owner {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active session")
	}
	return &models.SessionSnapshot{ID: "sess-1", TeacherID: teacherID, Active: true}, nil
}

func (s *stubSessions) Authorize(_ string, teacherID string) error {
	if teacherID != s.owner {
		return appErrors.Clone(appErrors.ErrForbidden, "session belongs to another teacher")
	}
	return nil
}

func (s *stubSessions) record(studentID string, status models.AttendanceStatus) (*models.AttendanceRecord, error) {
	if s.markErr != nil {
		return nil, s.markErr
	}
	s.marked = append(s.marked, studentID)
	return &models.AttendanceRecord{ID: "ATT1", StudentID: studentID, Status: status}, nil
}

func (s *stubSessions) MarkPresent(_ context.Context, _ string, studentID string, source models.MarkSource) (*models.AttendanceRecord, error) {
	s.source = source
	return s.record(studentID, models.AttendancePresent)
}

func (s *stubSessions) MarkAbsent(_ context.Context, _ string, studentID string) (*models.AttendanceRecord, error) {
	return s.record(studentID, models.AttendanceAbsent)
}

func (s *stubSessions) MarkScanned(_ context.Context, _ string, payload string) (*models.AttendanceRecord, error) {
	if payload == "garbage" {
		return nil, appErrors.ErrMalformedPayload
	}
	return s.record("S-scanned", models.AttendancePresent)
}

func (s *stubSessions) End(_ context.Context, id string) (*models.SessionSummary, error) {
	return &models.SessionSummary{SessionID: id, PresentCount: len(s.marked)}, nil
}

type stubScans struct {
	active   bool
	startErr error
	frame    []byte
}

func (s *stubScans) StartCamera(context.Context, string) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.active = true
	return nil
}

func (s *stubScans) StopCamera(string) { s.active = false }

func (s *stubScans) CameraActive(string) bool { return s.active }

func (s *stubScans) ScanImage(_ context.Context, _ string, frame io.Reader) (*models.AttendanceRecord, error) {
	data, err := io.ReadAll(frame)
	if err != nil {
		return nil, err
	}
	s.frame = data
	return &models.AttendanceRecord{ID: "ATT2", StudentID: "S-frame", Status: models.AttendancePresent, Source: models.SourceScan}, nil
}

func teacherContext(method, target string, body io.Reader, teacherID string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, body)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: teacherID, Role: models.RoleTeacher, Subject: "Mathematics"})
	return c, w
}

func decodeOutcome(t *testing.T, w *httptest.ResponseRecorder) models.MarkOutcome {
	t.Helper()
	var env struct {
		Data models.MarkOutcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data
}

func TestSessionHandlerMarkOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		ok     bool
		reason string
	}{
		{name: "success", status: http.StatusOK, ok: true},
		{name: "already marked", err: appErrors.ErrAlreadyMarked, status: http.StatusOK, reason: "ALREADY_MARKED"},
		{name: "grade mismatch", err: appErrors.ErrGradeMismatch, status: http.StatusOK, reason: "GRADE_MISMATCH"},
		{name: "subject mismatch", err: appErrors.ErrSubjectMismatch, status: http.StatusOK, reason: "SUBJECT_MISMATCH"},
		{name: "not on roster", err: appErrors.ErrNotOnRoster, status: http.StatusOK, reason: "NOT_ON_ROSTER"},
		{name: "unknown student", err: appErrors.Clone(appErrors.ErrStudentNotFound, "student S1 not found"), status: http.StatusOK, reason: "STUDENT_NOT_FOUND"},
		{name: "session closed", err: appErrors.ErrSessionNotActive, status: http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sessions := &stubSessions{owner: "T003", markErr: tc.err}
			h := NewSessionHandler(sessions, &stubScans{}, nil)
			c, w := teacherContext(http.MethodPost, "/sessions/sess-1/present", bytes.NewBufferString(`{"student_id":"S1"}`), "T003")

			h.MarkPresent(c)

			require.Equal(t, tc.status, w.Code)
			if tc.status != http.StatusOK {
				assert.Contains(t, w.Body.String(), "SESSION_NOT_ACTIVE")
				return
			}
			out := decodeOutcome(t, w)
			assert.Equal(t, tc.ok, out.OK)
			assert.Equal(t, tc.reason, out.Reason)
			if tc.ok {
				require.NotNil(t, out.Record)
				assert.Equal(t, "S1", out.Record.StudentID)
				assert.Equal(t, models.SourceManual, sessions.source)
			}
		})
	}
}

func TestSessionHandlerRejectsForeignTeacher(t *testing.T) {
	sessions := &stubSessions{owner: "T003"}
	h := NewSessionHandler(sessions, &stubScans{}, nil)
	c, w := teacherContext(http.MethodPost, "/sessions/sess-1/absent", bytes.NewBufferString(`{"student_id":"S1"}`), "T004")

	h.MarkAbsent(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, sessions.marked)
}

func TestSessionHandlerScanMalformedPayload(t *testing.T) {
	h := NewSessionHandler(&stubSessions{owner: "T003"}, &stubScans{}, nil)
	c, w := teacherContext(http.MethodPost, "/sessions/sess-1/scan", bytes.NewBufferString(`{"payload":"garbage"}`), "T003")

	h.Scan(c)

	require.Equal(t, http.StatusOK, w.Code)
	out := decodeOutcome(t, w)
	assert.False(t, out.OK)
	assert.Equal(t, "MALFORMED_PAYLOAD", out.Reason)
}

func TestSessionHandlerScanImageReadsFrame(t *testing.T) {
	scans := &stubScans{}
	h := NewSessionHandler(&stubSessions{owner: "T003"}, scans, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("frame", "frame.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	c, w := teacherContext(http.MethodPost, "/sessions/sess-1/scan-image", &body, "T003")
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())

	h.ScanImage(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", string(scans.frame))
	assert.True(t, decodeOutcome(t, w).OK)
}

func TestSessionHandlerScanImageRequiresFrame(t *testing.T) {
	h := NewSessionHandler(&stubSessions{owner: "T003"}, &stubScans{}, nil)
	c, w := teacherContext(http.MethodPost, "/sessions/sess-1/scan-image", bytes.NewBufferString(`{}`), "T003")

	h.ScanImage(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlerCameraLifecycle(t *testing.T) {
	scans := &stubScans{}
	h := NewSessionHandler(&stubSessions{owner: "T003"}, scans, nil)

	c, w := teacherContext(http.MethodPost, "/sessions/sess-1/camera", nil, "T003")
	h.StartCamera(c)
	require.Equal(t, http.StatusAccepted, w.Code)

	c, w = teacherContext(http.MethodGet, "/sessions/sess-1", nil, "T003")
	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"camera_active":true`)

	c, w = teacherContext(http.MethodDelete, "/sessions/sess-1/camera", nil, "T003")
	h.StopCamera(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, scans.active)
}

func TestSessionHandlerCameraUnavailable(t *testing.T) {
	scans := &stubScans{startErr: appErrors.ErrDeviceUnavailable}
	h := NewSessionHandler(&stubSessions{owner: "T003"}, scans, nil)
	c, w := teacherContext(http.MethodPost, "/sessions/sess-1/camera", nil, "T003")

	h.StartCamera(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "DEVICE_UNAVAILABLE")
}

func TestSessionHandlerStartAndEnd(t *testing.T) {
	sessions := &stubSessions{owner: "T003"}
	h := NewSessionHandler(sessions, &stubScans{}, nil)

	c, w := teacherContext(http.MethodPost, "/sessions", bytes.NewBufferString(`{"grade":7,"time":"09:00"}`), "T003")
	h.Start(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"subject":"Mathematics"`)

	c, w = teacherContext(http.MethodPost, "/sessions", bytes.NewBufferString(`{"time":"09:00"}`), "T003")
	h.Start(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_SESSION_PARAMS")

	sessions.marked = []string{"S1", "S2"}
	c, w = teacherContext(http.MethodPost, "/sessions/sess-1/end", nil, "T003")
	h.End(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"present_count":2`)
}

func TestSessionHandlerRequiresCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/sessions/current", nil)

	NewSessionHandler(&stubSessions{}, &stubScans{}, nil).Current(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
