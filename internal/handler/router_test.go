package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/service"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

type stubTokens map[string]*models.JWTClaims

func (s stubTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type stubAuth struct{}

func (stubAuth) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if req.Password != "admin123" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{AccessToken: "admin", User: models.Actor{ID: "A001", Role: models.RoleAdmin}}, nil
}

func (stubAuth) RegisterParent(_ context.Context, req models.RegisterParentRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{AccessToken: "parent", User: models.Actor{ID: "P1", Name: req.Name, Role: models.RoleParent}}, nil
}

type stubNotifications struct {
	lastFilter models.NotificationFilter
}

func (s *stubNotifications) Broadcast(_ context.Context, author models.Actor, req models.BroadcastRequest) (*models.BroadcastResult, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, appErrors.ErrEmptyMessage
	}
	return &models.BroadcastResult{Sent: 3, AnnouncementID: "ann-" + author.ID}, nil
}

func (s *stubNotifications) Sent(_ context.Context, author models.Actor) ([]models.Announcement, error) {
	return []models.Announcement{{ID: "ann-1", SenderID: author.ID}}, nil
}

func (s *stubNotifications) ListFor(_ context.Context, actor models.Actor, filter models.NotificationFilter) ([]models.Notification, error) {
	s.lastFilter = filter
	return []models.Notification{{ID: "n1", Title: "Hello", TargetRole: actor.Role.Audience()}}, nil
}

type stubEnrollment struct{}

func (stubEnrollment) Enroll(_ context.Context, parent models.Actor, req models.EnrollRequest) (*models.EnrollResult, error) {
	return &models.EnrollResult{Student: models.Student{ID: "S1", Name: req.StudentName, ParentID: parent.ID}}, nil
}

func (stubEnrollment) AddSubjects(_ context.Context, _ models.Actor, studentID string, req models.AddSubjectsRequest) (*models.Student, error) {
	return &models.Student{ID: studentID, Subjects: req.Subjects}, nil
}

func (stubEnrollment) Children(context.Context, models.Actor) ([]models.Student, error) {
	return []models.Student{{ID: "S1"}}, nil
}

func (stubEnrollment) QRCode(_ context.Context, actor models.Actor, studentID string) ([]byte, error) {
	if actor.Role == models.RoleParent && studentID != "S1" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another parent")
	}
	return []byte("\x89PNG"), nil
}

func (stubEnrollment) SubmitMonthly(_ context.Context, parent models.Actor, req models.MonthlyPaymentRequest) (*models.Payment, error) {
	if req.Month == "2024-01" {
		return nil, appErrors.Clone(appErrors.ErrConflict, "Payment for 2024-01 already exists")
	}
	return &models.Payment{ID: "PAY2", StudentID: req.StudentID, ParentID: parent.ID, Month: req.Month, Status: models.PaymentPending}, nil
}

func (stubEnrollment) Payments(_ context.Context, parent models.Actor) ([]models.Payment, error) {
	return []models.Payment{{ID: "PAY2", ParentID: parent.ID}}, nil
}

type stubMarks struct{}

func (stubMarks) Upload(_ context.Context, teacher models.Actor, req models.UploadMarksRequest) (*service.MarksUploadResult, error) {
	return &service.MarksUploadResult{Marks: []models.Mark{{ID: "MRK1", Subject: teacher.Subject, Term: req.Term}}, Notified: 1}, nil
}

func (stubMarks) List(_ context.Context, teacher models.Actor, filter models.MarkFilter) ([]models.Mark, error) {
	return []models.Mark{{ID: "MRK1", Subject: teacher.Subject, Term: filter.Term}}, nil
}

func (stubMarks) ReportCard(_ context.Context, _ models.Actor, studentID string, term models.Term) (*models.ReportCard, error) {
	if term == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "term is required")
	}
	return &models.ReportCard{StudentID: studentID, Term: term, Average: 81.5, OverallGrade: "A"}, nil
}

type stubChats struct {
	lastCounterpart string
}

func (s *stubChats) Send(_ context.Context, sender models.Actor, req models.SendChatRequest) (*models.ChatMessage, error) {
	return &models.ChatMessage{ID: "CHAT1", Message: req.Message, Sender: sender.Role.Audience()}, nil
}

func (s *stubChats) Conversation(_ context.Context, _ models.Actor, counterpartID string) ([]models.ChatMessage, error) {
	s.lastCounterpart = counterpartID
	return []models.ChatMessage{{ID: "CHAT1"}}, nil
}

func (s *stubChats) Threads(context.Context, models.Actor) ([]models.ChatThread, error) {
	return nil, nil
}

type stubAdmin struct {
	deleted []string
}

func (s *stubAdmin) ListTeachers(context.Context) ([]models.Teacher, error) {
	return []models.Teacher{{ID: "T001"}}, nil
}

func (s *stubAdmin) CreateTeacher(_ context.Context, req models.TeacherRequest) (*models.Teacher, error) {
	return &models.Teacher{ID: "T007", Name: req.Name, Subject: req.Subject}, nil
}

func (s *stubAdmin) UpdateTeacher(_ context.Context, id string, req models.TeacherRequest) (*models.Teacher, error) {
	return &models.Teacher{ID: id, Name: req.Name}, nil
}

func (s *stubAdmin) DeleteTeacher(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubAdmin) ListStudents(_ context.Context, filter models.StudentFilter) ([]models.Student, error) {
	return []models.Student{{ID: "S1", Grade: filter.Grade}}, nil
}

func (s *stubAdmin) DeleteStudent(_ context.Context, id string) error {
	if id == "S404" {
		return appErrors.Clone(appErrors.ErrStudentNotFound, "")
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type stubPayments struct {
	approved *bool
}

func (s *stubPayments) List(_ context.Context, status models.PaymentStatus) ([]models.Payment, error) {
	return []models.Payment{{ID: "PAY1", Status: status}}, nil
}

func (s *stubPayments) Review(_ context.Context, _ models.Actor, id string, approve bool) (*models.Payment, error) {
	s.approved = &approve
	status := models.PaymentRejected
	if approve {
		status = models.PaymentApproved
	}
	return &models.Payment{ID: id, Status: status}, nil
}

type stubMaterials struct{}

func (stubMaterials) Upload(_ context.Context, teacher models.Actor, req models.UploadMaterialRequest) (*service.MaterialUploadResult, error) {
	return &service.MaterialUploadResult{Material: models.Material{ID: "M1", Title: req.Title, Subject: teacher.Subject}, Notified: 2}, nil
}

func (stubMaterials) List(_ context.Context, filter models.MaterialFilter) ([]models.Material, error) {
	return []models.Material{{ID: "M1", Grade: filter.Grade}}, nil
}

type stubReports struct{}

func (stubReports) TeacherOverview(_ context.Context, teacher models.Actor, _ models.AttendanceOverviewFilter) (*models.AttendanceOverview, error) {
	return &models.AttendanceOverview{Subject: teacher.Subject, Present: 4, Total: 5, Percentage: 80}, nil
}

func (stubReports) StudentSummary(_ context.Context, _ models.Actor, studentID string) (*models.StudentAttendanceSummary, error) {
	return &models.StudentAttendanceSummary{StudentID: studentID}, nil
}

func (stubReports) CreateExport(_ context.Context, teacher models.Actor, req models.CreateExportRequest) (*models.ReportJob, error) {
	return &models.ReportJob{ID: "RPT1", TeacherID: teacher.ID, Format: req.Format, Status: models.ReportStatusQueued}, nil
}

func (stubReports) ExportStatus(_ context.Context, _ models.Actor, id string) (*models.ReportJob, error) {
	return &models.ReportJob{ID: id, Status: models.ReportStatusFinished, ResultURL: "/api/v1/export/tok"}, nil
}

type readSeekNopCloser struct{ *strings.Reader }

func (readSeekNopCloser) Close() error { return nil }

func (stubReports) ResolveDownload(_ context.Context, token string) (*service.ReportDownload, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	return &service.ReportDownload{
		File:        readSeekNopCloser{strings.NewReader("student_id,status\nS1,Present\n")},
		Filename:    "attendance-mathematics-20240102.csv",
		ContentType: "text/csv",
		ExpiresAt:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	}, nil
}

type apiFixture struct {
	router        *gin.Engine
	notifications *stubNotifications
	payments      *stubPayments
	chats         *stubChats
	admin         *stubAdmin
}

func newAPI() apiFixture {
	gin.SetMode(gin.TestMode)
	f := apiFixture{notifications: &stubNotifications{}, payments: &stubPayments{}, chats: &stubChats{}, admin: &stubAdmin{}}
	tokens := stubTokens{
		"admin":   {UserID: "A001", Role: models.RoleAdmin},
		"teacher": {UserID: "T003", Role: models.RoleTeacher, Subject: "Mathematics"},
		"parent":  {UserID: "P1", Role: models.RoleParent},
	}
	h := Handlers{
		Auth:          NewAuthHandler(stubAuth{}),
		Sessions:      NewSessionHandler(&stubSessions{owner: "T003"}, &stubScans{}, nil),
		Notifications: NewNotificationHandler(f.notifications),
		Enrollment:    NewEnrollmentHandler(stubEnrollment{}),
		Payments:      NewPaymentHandler(f.payments),
		Materials:     NewMaterialHandler(stubMaterials{}),
		Reports:       NewReportHandler(stubReports{}),
		Marks:         NewMarkHandler(stubMarks{}),
		Chats:         NewChatHandler(f.chats),
		Admin:         NewAdminHandler(f.admin),
	}
	f.router = gin.New()
	RegisterRoutes(f.router.Group("/api/v1"), h, tokens, zap.NewNop())

	checks := map[string]ReadinessCheck{"store": func(context.Context) error { return nil }}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "tuition_up 1\n")
	})
	RegisterProbes(f.router, NewMetricsHandler(metrics, checks))
	return f
}

func (f apiFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRoutesEnforceRoles(t *testing.T) {
	api := newAPI()

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
	}{
		{"login is public", http.MethodPost, "/api/v1/auth/login", "", `{"email":"admin@tuition.com","password":"admin123"}`, http.StatusOK},
		{"bad login", http.MethodPost, "/api/v1/auth/login", "", `{"email":"admin@tuition.com","password":"nope"}`, http.StatusUnauthorized},
		{"register is public", http.MethodPost, "/api/v1/auth/register", "", `{"name":"Priya","email":"p@x.com","phone":"1","password":"secret1"}`, http.StatusCreated},
		{"sessions need a token", http.MethodGet, "/api/v1/sessions/current", "", "", http.StatusUnauthorized},
		{"parents cannot run sessions", http.MethodGet, "/api/v1/sessions/current", "parent", "", http.StatusForbidden},
		{"teacher current session", http.MethodGet, "/api/v1/sessions/current", "teacher", "", http.StatusOK},
		{"teacher marks present", http.MethodPost, "/api/v1/sessions/sess-1/present", "teacher", `{"student_id":"S1"}`, http.StatusOK},
		{"parents cannot broadcast", http.MethodPost, "/api/v1/announcements", "parent", `{"title":"x","message":"y"}`, http.StatusForbidden},
		{"admin broadcast", http.MethodPost, "/api/v1/announcements", "admin", `{"title":"x","message":"y","target_role":"teacher"}`, http.StatusCreated},
		{"empty broadcast", http.MethodPost, "/api/v1/announcements", "teacher", `{"title":" ","message":"y"}`, http.StatusBadRequest},
		{"teacher sent announcements", http.MethodGet, "/api/v1/announcements/sent", "teacher", "", http.StatusOK},
		{"parents have no sent announcements", http.MethodGet, "/api/v1/announcements/sent", "parent", "", http.StatusForbidden},
		{"teachers cannot enroll", http.MethodPost, "/api/v1/enrollments", "teacher", `{}`, http.StatusForbidden},
		{"parent enrolls", http.MethodPost, "/api/v1/enrollments", "parent", `{"student_name":"Kavin"}`, http.StatusCreated},
		{"parent children", http.MethodGet, "/api/v1/students", "parent", "", http.StatusOK},
		{"parent adds subjects", http.MethodPost, "/api/v1/students/S1/subjects", "parent", `{"subjects":["Science"]}`, http.StatusOK},
		{"teacher cannot fetch qr", http.MethodGet, "/api/v1/students/S1/qr", "teacher", "", http.StatusForbidden},
		{"foreign qr", http.MethodGet, "/api/v1/students/S9/qr", "parent", "", http.StatusForbidden},
		{"teachers cannot list payments", http.MethodGet, "/api/v1/payments", "teacher", "", http.StatusForbidden},
		{"admin lists payments", http.MethodGet, "/api/v1/payments?status=Approved", "admin", "", http.StatusOK},
		{"parent cannot upload", http.MethodPost, "/api/v1/materials", "parent", `{}`, http.StatusForbidden},
		{"teacher uploads", http.MethodPost, "/api/v1/materials", "teacher", `{"title":"Fractions"}`, http.StatusCreated},
		{"anyone lists materials", http.MethodGet, "/api/v1/materials?grade=7", "parent", "", http.StatusOK},
		{"bad material filter", http.MethodGet, "/api/v1/materials?grade=seven", "parent", "", http.StatusBadRequest},
		{"overview", http.MethodGet, "/api/v1/attendance/overview?grade=7", "teacher", "", http.StatusOK},
		{"student attendance for admin", http.MethodGet, "/api/v1/students/S1/attendance", "admin", "", http.StatusOK},
		{"student attendance not for teachers", http.MethodGet, "/api/v1/students/S1/attendance", "teacher", "", http.StatusForbidden},
		{"queue export", http.MethodPost, "/api/v1/reports/attendance", "teacher", `{"format":"csv"}`, http.StatusAccepted},
		{"export status", http.MethodGet, "/api/v1/reports/RPT1", "teacher", "", http.StatusOK},
		{"bad download token", http.MethodGet, "/api/v1/export/forged", "", "", http.StatusForbidden},
		{"teacher uploads marks", http.MethodPost, "/api/v1/marks", "teacher", `{"grade":7,"term":"Term 1","entries":[{"student_id":"S1","marks":80}]}`, http.StatusCreated},
		{"parents cannot upload marks", http.MethodPost, "/api/v1/marks", "parent", `{}`, http.StatusForbidden},
		{"teacher lists marks", http.MethodGet, "/api/v1/marks?term=Final", "teacher", "", http.StatusOK},
		{"parent report card", http.MethodGet, "/api/v1/students/S1/report-card?term=Final", "parent", "", http.StatusOK},
		{"report card needs term", http.MethodGet, "/api/v1/students/S1/report-card", "parent", "", http.StatusBadRequest},
		{"teachers cannot read report cards", http.MethodGet, "/api/v1/students/S1/report-card?term=Final", "teacher", "", http.StatusForbidden},
		{"parent monthly payment", http.MethodPost, "/api/v1/payments/monthly", "parent", `{"student_id":"S1","month":"2024-02"}`, http.StatusCreated},
		{"duplicate monthly payment", http.MethodPost, "/api/v1/payments/monthly", "parent", `{"student_id":"S1","month":"2024-01"}`, http.StatusConflict},
		{"admin cannot submit monthly payment", http.MethodPost, "/api/v1/payments/monthly", "admin", `{}`, http.StatusForbidden},
		{"parent lists own payments", http.MethodGet, "/api/v1/payments/mine", "parent", "", http.StatusOK},
		{"teacher sends chat", http.MethodPost, "/api/v1/chats", "teacher", `{"student_id":"S1","message":"hi"}`, http.StatusCreated},
		{"parent threads", http.MethodGet, "/api/v1/chats", "parent", "", http.StatusOK},
		{"admin has no chats", http.MethodGet, "/api/v1/chats", "admin", "", http.StatusForbidden},
		{"admin lists teachers", http.MethodGet, "/api/v1/admin/teachers", "admin", "", http.StatusOK},
		{"teachers cannot manage teachers", http.MethodPost, "/api/v1/admin/teachers", "teacher", `{}`, http.StatusForbidden},
		{"admin creates teacher", http.MethodPost, "/api/v1/admin/teachers", "admin", `{"name":"Anita","subject":"Science"}`, http.StatusCreated},
		{"admin updates teacher", http.MethodPut, "/api/v1/admin/teachers/T002", "admin", `{"name":"Kumar"}`, http.StatusOK},
		{"admin lists students", http.MethodGet, "/api/v1/admin/students?grade=7", "admin", "", http.StatusOK},
		{"bad student filter", http.MethodGet, "/api/v1/admin/students?grade=x", "admin", "", http.StatusBadRequest},
		{"missing student", http.MethodDelete, "/api/v1/admin/students/S404", "admin", "", http.StatusNotFound},
		{"health", http.MethodGet, "/health", "", "", http.StatusOK},
		{"ready", http.MethodGet, "/ready", "", "", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := api.do(tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestPaymentReviewRoutes(t *testing.T) {
	api := newAPI()

	w := api.do(http.MethodPost, "/api/v1/payments/PAY1/approve", "admin", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, api.payments.approved)
	assert.True(t, *api.payments.approved)
	assert.Contains(t, w.Body.String(), `"status":"Approved"`)

	w = api.do(http.MethodPost, "/api/v1/payments/PAY1/reject", "admin", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, *api.payments.approved)
}

func TestNotificationListBindsQuery(t *testing.T) {
	api := newAPI()

	w := api.do(http.MethodGet, "/api/v1/notifications?type=material&limit=5", "parent", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.NotificationMaterial, api.notifications.lastFilter.Type)
	assert.Equal(t, 5, api.notifications.lastFilter.Limit)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestQRCodeServesPNG(t *testing.T) {
	api := newAPI()

	w := api.do(http.MethodGet, "/api/v1/students/S1/qr", "parent", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", w.Body.String())
}

func TestDownloadStreamsExport(t *testing.T) {
	api := newAPI()

	w := api.do(http.MethodGet, "/api/v1/export/good", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance-mathematics-20240102.csv")
	assert.Equal(t, "student_id,status\nS1,Present\n", w.Body.String())
}

func TestReadyReportsFailingCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterProbes(r, NewMetricsHandler(nil, map[string]ReadinessCheck{
		"store": func(context.Context) error { return errors.New("connection refused") },
	}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminDeletesAndChatConversation(t *testing.T) {
	api := newAPI()

	w := api.do(http.MethodDelete, "/api/v1/admin/teachers/T001", "admin", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = api.do(http.MethodDelete, "/api/v1/admin/students/S2", "admin", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"T001", "S2"}, api.admin.deleted)

	w = api.do(http.MethodGet, "/api/v1/chats/T003", "parent", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T003", api.chats.lastCounterpart)
	assert.Contains(t, w.Body.String(), `"count":1`)
}
