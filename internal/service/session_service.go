package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/repository"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
	"github.com/noah-isme/tuition-center-api/pkg/qrcodec"
)

type sessionStudentRepository interface {
	ListEligible(ctx context.Context, grade int, subject string) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type sessionAttendanceRepository interface {
	Append(ctx context.Context, record models.AttendanceRecord) error
}

type payloadDecoder interface {
	Decode(text string) (qrcodec.Identity, error)
}

// EventPublisher receives live session events.
type EventPublisher interface {
	Publish(sessionID string, event models.SessionEvent)
}

type session struct {
	mu sync.Mutex

	id           string
	teacherID    string
	subject      string
	grade        int
	date         string
	startTime    string
	sessionStart string
	startedAt    time.Time
	active       bool

	roster   []models.Student
	eligible map[string]struct{}
	marks    map[string]models.AttendanceStatus
}

func (s *session) snapshot() models.SessionSnapshot {
	marks := make(map[string]models.AttendanceStatus, len(s.marks))
	for k, v := range s.marks {
		marks[k] = v
	}
	roster := make([]models.Student, len(s.roster))
	copy(roster, s.roster)
	return models.SessionSnapshot{
		ID:           s.id,
		TeacherID:    s.teacherID,
		Subject:      s.subject,
		Grade:        s.grade,
		Date:         s.date,
		StartTime:    s.startTime,
		SessionStart: s.sessionStart,
		Active:       s.active,
		Eligible:     roster,
		Marks:        marks,
		StartedAt:    s.startedAt,
	}
}

// SessionService runs attendance sessions. Sessions live in memory only;
// every successful mark appends exactly one attendance record.
type SessionService struct {
	students   sessionStudentRepository
	attendance sessionAttendanceRepository
	decoder    payloadDecoder
	school     validation.School
	events     EventPublisher
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.RWMutex
	sessions  map[string]*session
	byTeacher map[string]string
	onEnd     []func(sessionID string)
}

// NewSessionService constructs a SessionService.
func NewSessionService(students sessionStudentRepository, attendance sessionAttendanceRepository, decoder payloadDecoder, school validation.School, events EventPublisher, metrics *MetricsService, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(school.Grades) == 0 {
		school = validation.DefaultSchool
	}
	return &SessionService{
		students:   students,
		attendance: attendance,
		decoder:    decoder,
		school:     school,
		events:     events,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		sessions:   make(map[string]*session),
		byTeacher:  make(map[string]string),
	}
}

// OnEnd registers fn to run after a session ends.
func (s *SessionService) OnEnd(fn func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnd = append(s.onEnd, fn)
}

// Start opens a session for teacher. The roster is fixed at this moment.
func (s *SessionService) Start(ctx context.Context, teacher models.Actor, req models.StartSessionRequest) (*models.SessionSnapshot, error) {
	if teacher.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only subject teachers can run attendance sessions")
	}
	if req.Grade == 0 || req.Time == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidSessionParams, "")
	}
	if !s.school.HasGrade(req.Grade) {
		return nil, appErrors.Clone(appErrors.ErrInvalidSessionParams, fmt.Sprintf("grade %d is not taught", req.Grade))
	}
	if _, err := time.Parse("15:04", req.Time); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidSessionParams, "time must be HH:MM")
	}
	if req.Date == "" {
		req.Date = s.now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidSessionParams, "date must be YYYY-MM-DD")
	}

	if _, busy := s.activeID(teacher.ID); busy {
		return nil, appErrors.Clone(appErrors.ErrSessionConflict, "")
	}

	roster, err := s.students.ListEligible(ctx, req.Grade, teacher.Subject)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load eligible students")
	}
	sort.SliceStable(roster, func(i, j int) bool { return roster[i].Name < roster[j].Name })

	sess := &session{
		id:           uuid.NewString(),
		teacherID:    teacher.ID,
		subject:      teacher.Subject,
		grade:        req.Grade,
		date:         req.Date,
		startTime:    req.Time,
		sessionStart: req.Date + "T" + req.Time,
		startedAt:    s.now().UTC(),
		active:       true,
		roster:       roster,
		eligible:     make(map[string]struct{}, len(roster)),
		marks:        make(map[string]models.AttendanceStatus),
	}
	for _, st := range roster {
		sess.eligible[st.ID] = struct{}{}
	}

	s.mu.Lock()
	if _, busy := s.byTeacher[teacher.ID]; busy {
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrSessionConflict, "")
	}
	s.sessions[sess.id] = sess
	s.byTeacher[teacher.ID] = sess.id
	s.mu.Unlock()

	s.metrics.SessionOpened()
	s.logger.Info("attendance session started",
		zap.String("session_id", sess.id),
		zap.String("teacher_id", teacher.ID),
		zap.String("subject", sess.subject),
		zap.Int("grade", sess.grade),
		zap.Int("eligible", len(roster)),
	)
	s.publish(models.SessionEvent{Type: models.EventSessionStarted, SessionID: sess.id})

	snap := sess.snapshot()
	return &snap, nil
}

func (s *SessionService) activeID(teacherID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTeacher[teacherID]
	return id, ok
}

func (s *SessionService) lookup(sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrSessionNotActive, "")
	}
	return sess, nil
}

// Get returns a snapshot of an active session.
func (s *SessionService) Get(sessionID string) (*models.SessionSnapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	snap := sess.snapshot()
	return &snap, nil
}

// ActiveForTeacher returns the teacher's open session.
func (s *SessionService) ActiveForTeacher(teacherID string) (*models.SessionSnapshot, error) {
	id, ok := s.activeID(teacherID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active attendance session")
	}
	return s.Get(id)
}

// Authorize fails unless teacherID owns the active session.
func (s *SessionService) Authorize(sessionID, teacherID string) error {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	if sess.teacherID != teacherID {
		return appErrors.Clone(appErrors.ErrForbidden, "session belongs to another teacher")
	}
	return nil
}

// MarkPresent records a present mark.
func (s *SessionService) MarkPresent(ctx context.Context, sessionID, studentID string, source models.MarkSource) (*models.AttendanceRecord, error) {
	return s.mark(ctx, sessionID, studentID, models.AttendancePresent, source)
}

// MarkAbsent records an absent mark.
func (s *SessionService) MarkAbsent(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error) {
	return s.mark(ctx, sessionID, studentID, models.AttendanceAbsent, models.SourceManual)
}

// MarkScanned decodes QR text and marks the student present.
func (s *SessionService) MarkScanned(ctx context.Context, sessionID, payload string) (*models.AttendanceRecord, error) {
	if _, err := s.lookup(sessionID); err != nil {
		return nil, err
	}
	id, err := s.decoder.Decode(payload)
	if err != nil {
		s.metrics.RecordScan("malformed")
		s.publish(models.SessionEvent{
			Type:      models.EventInvalidPayload,
			SessionID: sessionID,
			Reason:    appErrors.ErrMalformedPayload.Code,
			Message:   "Invalid QR code format",
		})
		return nil, appErrors.Wrap(err, appErrors.ErrMalformedPayload.Code, appErrors.ErrMalformedPayload.Status, "Invalid QR code format")
	}
	rec, err := s.MarkPresent(ctx, sessionID, id.ID, models.SourceScan)
	if err != nil {
		s.metrics.RecordScan(outcomeLabel(err))
		return nil, err
	}
	s.metrics.RecordScan("marked")
	return rec, nil
}

func (s *SessionService) mark(ctx context.Context, sessionID, studentID string, status models.AttendanceStatus, source models.MarkSource) (*models.AttendanceRecord, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.reject(sessionID, studentID, "", appErrors.Clone(appErrors.ErrStudentNotFound, "Student not found"))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.active {
		return nil, appErrors.Clone(appErrors.ErrSessionNotActive, "")
	}
	if student.Grade != sess.grade {
		return nil, s.reject(sessionID, student.ID, student.Name, appErrors.Clone(appErrors.ErrGradeMismatch, "Student is not from the selected grade"))
	}
	if !student.TakesSubject(sess.subject) {
		return nil, s.reject(sessionID, student.ID, student.Name, appErrors.Clone(appErrors.ErrSubjectMismatch, fmt.Sprintf("Student is not enrolled in %s", sess.subject)))
	}
	if _, ok := sess.eligible[student.ID]; !ok {
		return nil, s.reject(sessionID, student.ID, student.Name, appErrors.Clone(appErrors.ErrNotOnRoster, ""))
	}
	if prev, ok := sess.marks[student.ID]; ok {
		return nil, s.reject(sessionID, student.ID, student.Name, appErrors.Clone(appErrors.ErrAlreadyMarked, fmt.Sprintf("Student already marked %s", lower(prev))))
	}

	now := s.now().UTC()
	record := models.AttendanceRecord{
		ID:               "ATT" + uuid.NewString(),
		StudentID:        student.ID,
		StudentName:      student.Name,
		Subject:          sess.subject,
		Grade:            sess.grade,
		TeacherID:        sess.teacherID,
		Date:             sess.date,
		Status:           status,
		Timestamp:        now,
		SessionStartTime: sess.sessionStart,
		SessionID:        sess.id,
		Source:           source,
	}
	if err := s.attendance.Append(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance record")
	}
	sess.marks[student.ID] = status

	s.metrics.RecordMark(string(status), string(source))
	s.publish(models.SessionEvent{
		Type:      models.EventMarked,
		SessionID: sess.id,
		StudentID: student.ID,
		Student:   student.Name,
		Status:    status,
		Source:    source,
		At:        now,
	})
	return &record, nil
}

func (s *SessionService) reject(sessionID, studentID, name string, err *appErrors.Error) error {
	s.publish(models.SessionEvent{
		Type:      models.EventRejected,
		SessionID: sessionID,
		StudentID: studentID,
		Student:   name,
		Reason:    err.Code,
		Message:   err.Message,
	})
	return err
}

// End closes the session and discards it.
func (s *SessionService) End(_ context.Context, sessionID string) (*models.SessionSummary, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrSessionNotActive, "")
	}
	delete(s.sessions, sessionID)
	delete(s.byTeacher, sess.teacherID)
	hooks := append([]func(string){}, s.onEnd...)
	s.mu.Unlock()

	sess.mu.Lock()
	sess.active = false
	summary := models.SessionSummary{
		SessionID:     sess.id,
		EligibleCount: len(sess.roster),
		EndedAt:       s.now().UTC(),
	}
	for _, status := range sess.marks {
		if status == models.AttendancePresent {
			summary.PresentCount++
		} else {
			summary.AbsentCount++
		}
	}
	summary.UnmarkedCount = summary.EligibleCount - summary.PresentCount - summary.AbsentCount
	sess.mu.Unlock()

	for _, fn := range hooks {
		fn(sessionID)
	}

	s.metrics.SessionClosed()
	s.logger.Info("attendance session ended",
		zap.String("session_id", sessionID),
		zap.Int("present", summary.PresentCount),
		zap.Int("absent", summary.AbsentCount),
		zap.Int("unmarked", summary.UnmarkedCount),
	)
	s.publish(models.SessionEvent{Type: models.EventSessionEnded, SessionID: sessionID, Summary: &summary})
	return &summary, nil
}

// EndAll closes every open session, used at shutdown.
func (s *SessionService) EndAll(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		_, _ = s.End(ctx, id)
	}
}

func (s *SessionService) publish(event models.SessionEvent) {
	if s.events == nil {
		return
	}
	if event.At.IsZero() {
		event.At = s.now().UTC()
	}
	s.events.Publish(event.SessionID, event)
}

func outcomeLabel(err error) string {
	if e := appErrors.FromError(err); e != nil {
		return e.Code
	}
	return "error"
}

func lower(status models.AttendanceStatus) string {
	if status == models.AttendancePresent {
		return "present"
	}
	return "absent"
}
