package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-center-api/internal/models"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
	"github.com/noah-isme/tuition-center-api/pkg/response"
)

const maxFrameBytes = 8 << 20

type sessionService interface {
	Start(ctx context.Context, teacher models.Actor, req models.StartSessionRequest) (*models.SessionSnapshot, error)
	Get(sessionID string) (*models.SessionSnapshot, error)
	ActiveForTeacher(teacherID string) (*models.SessionSnapshot, error)
	Authorize(sessionID, teacherID string) error
	MarkPresent(ctx context.Context, sessionID, studentID string, source models.MarkSource) (*models.AttendanceRecord, error)
	MarkAbsent(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error)
	MarkScanned(ctx context.Context, sessionID, payload string) (*models.AttendanceRecord, error)
	End(ctx context.Context, sessionID string) (*models.SessionSummary, error)
}

type scanService interface {
	StartCamera(ctx context.Context, sessionID string) error
	StopCamera(sessionID string)
	CameraActive(sessionID string) bool
	ScanImage(ctx context.Context, sessionID string, frame io.Reader) (*models.AttendanceRecord, error)
}

type eventStreamer interface {
	Serve(w http.ResponseWriter, r *http.Request, sessionID string) error
}

// SessionHandler exposes attendance session endpoints to teachers.
type SessionHandler struct {
	sessions sessionService
	scans    scanService
	events   eventStreamer
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(sessions sessionService, scans scanService, events eventStreamer) *SessionHandler {
	return &SessionHandler{sessions: sessions, scans: scans, events: events}
}

// Mark outcomes that describe the student rather than a broken request are
// answered with 200 and ok=false.
var markRejections = []*appErrors.Error{
	appErrors.ErrAlreadyMarked,
	appErrors.ErrGradeMismatch,
	appErrors.ErrSubjectMismatch,
	appErrors.ErrNotOnRoster,
	appErrors.ErrStudentNotFound,
	appErrors.ErrMalformedPayload,
}

func writeMarkOutcome(c *gin.Context, rec *models.AttendanceRecord, err error) {
	if err == nil {
		response.OK(c, models.MarkOutcome{OK: true, Record: rec})
		return
	}
	for _, tmpl := range markRejections {
		if appErrors.HasCode(err, tmpl) {
			e := appErrors.FromError(err)
			response.OK(c, models.MarkOutcome{OK: false, Reason: e.Code, Message: e.Message})
			return
		}
	}
	response.Error(c, err)
}

// owned resolves the caller and checks they run the session in the path.
func (h *SessionHandler) owned(c *gin.Context) (string, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		return "", false
	}
	id := c.Param("id")
	if err := h.sessions.Authorize(id, actor.ID); err != nil {
		response.Error(c, err)
		return "", false
	}
	return id, true
}

func (h *SessionHandler) snapshot(snap *models.SessionSnapshot) *models.SessionSnapshot {
	if h.scans != nil {
		snap.CameraActive = h.scans.CameraActive(snap.ID)
	}
	return snap
}

// Start godoc
// @Summary Start attendance session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body models.StartSessionRequest true "Grade, date and start time"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.StartSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	snap, err := h.sessions.Start(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, h.snapshot(snap))
}

// Current godoc
// @Summary Current attendance session of the caller
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/current [get]
func (h *SessionHandler) Current(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	snap, err := h.sessions.ActiveForTeacher(actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.snapshot(snap))
}

// Get godoc
// @Summary Attendance session snapshot
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	snap, err := h.sessions.Get(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.snapshot(snap))
}

// MarkPresent godoc
// @Summary Mark a student present
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.MarkRequest true "Student"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/present [post]
func (h *SessionHandler) MarkPresent(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	var req models.MarkRequest
	if !bindJSON(c, &req, "student_id is required") {
		return
	}
	rec, err := h.sessions.MarkPresent(c.Request.Context(), id, req.StudentID, models.SourceManual)
	writeMarkOutcome(c, rec, err)
}

// MarkAbsent godoc
// @Summary Mark a student absent
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.MarkRequest true "Student"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/absent [post]
func (h *SessionHandler) MarkAbsent(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	var req models.MarkRequest
	if !bindJSON(c, &req, "student_id is required") {
		return
	}
	rec, err := h.sessions.MarkAbsent(c.Request.Context(), id, req.StudentID)
	writeMarkOutcome(c, rec, err)
}

// Scan godoc
// @Summary Submit QR text read by a client-side scanner
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.ScanRequest true "QR text"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/scan [post]
func (h *SessionHandler) Scan(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	var req models.ScanRequest
	if !bindJSON(c, &req, "invalid scan payload") {
		return
	}
	rec, err := h.sessions.MarkScanned(c.Request.Context(), id, req.Payload)
	writeMarkOutcome(c, rec, err)
}

// ScanImage godoc
// @Summary Submit a camera frame containing a QR code
// @Tags Sessions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param frame formData file true "PNG or JPEG frame"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/scan-image [post]
func (h *SessionHandler) ScanImage(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFrameBytes)
	header, err := c.FormFile("frame")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "frame file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "frame file is unreadable"))
		return
	}
	defer file.Close() //nolint:errcheck

	rec, err := h.scans.ScanImage(c.Request.Context(), id, file)
	writeMarkOutcome(c, rec, err)
}

// StartCamera godoc
// @Summary Start the server-side camera scan loop
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sessions/{id}/camera [post]
func (h *SessionHandler) StartCamera(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	if err := h.scans.StartCamera(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"session_id": id, "camera_active": true})
}

// StopCamera godoc
// @Summary Stop the camera scan loop
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id}/camera [delete]
func (h *SessionHandler) StopCamera(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	h.scans.StopCamera(id)
	response.NoContent(c)
}

// End godoc
// @Summary End attendance session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	summary, err := h.sessions.End(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// Events godoc
// @Summary Live session events (websocket)
// @Tags Sessions
// @Param id path string true "Session ID"
// @Param access_token query string false "Access token for browsers"
// @Success 101
// @Router /sessions/{id}/events [get]
func (h *SessionHandler) Events(c *gin.Context) {
	id, ok := h.owned(c)
	if !ok {
		return
	}
	if err := h.events.Serve(c.Writer, c.Request, id); err != nil {
		_ = c.Error(err)
	}
}
