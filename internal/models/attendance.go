package models

import "time"

// AttendanceStatus is the outcome recorded for a student in a session.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "Present"
	AttendanceAbsent  AttendanceStatus = "Absent"
)

// MarkSource tells how a mark was captured.
type MarkSource string

const (
	SourceScan   MarkSource = "scan"
	SourceManual MarkSource = "manual"
)

// AttendanceRecord is append-only.
type AttendanceRecord struct {
	ID               string           `json:"id" validate:"required"`
	StudentID        string           `json:"student_id" validate:"required"`
	StudentName      string           `json:"student_name"`
	Subject          string           `json:"subject" validate:"required"`
	Grade            int              `json:"grade" validate:"grade"`
	TeacherID        string           `json:"teacher_id" validate:"required"`
	Date             string           `json:"date" validate:"required,datetime=2006-01-02"`
	Status           AttendanceStatus `json:"status" validate:"required,oneof=Present Absent"`
	Timestamp        time.Time        `json:"timestamp"`
	SessionStartTime string           `json:"session_start_time"`
	SessionID        string           `json:"session_id"`
	Source           MarkSource       `json:"source" validate:"omitempty,oneof=scan manual"`
}

// StartSessionRequest opens an attendance session for the calling teacher.
type StartSessionRequest struct {
	Grade int    `json:"grade"`
	Date  string `json:"date"`
	Time  string `json:"time"`
}

// MarkRequest addresses a student inside a session.
type MarkRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// ScanRequest carries raw text read from a QR code.
type ScanRequest struct {
	Payload string `json:"payload"`
}

// SessionSnapshot is a read-only view of a session.
type SessionSnapshot struct {
	ID           string                      `json:"id"`
	TeacherID    string                      `json:"teacher_id"`
	Subject      string                      `json:"subject"`
	Grade        int                         `json:"grade"`
	Date         string                      `json:"date"`
	StartTime    string                      `json:"start_time"`
	SessionStart string                      `json:"session_start"`
	Active       bool                        `json:"active"`
	Eligible     []Student                   `json:"eligible"`
	Marks        map[string]AttendanceStatus `json:"marks"`
	StartedAt    time.Time                   `json:"started_at"`
	CameraActive bool                        `json:"camera_active"`
}

// SessionSummary is returned when a session ends. Present and Absent count
// marks actually made; Unmarked counts eligible students never marked.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	PresentCount  int       `json:"present_count"`
	AbsentCount   int       `json:"absent_count"`
	UnmarkedCount int       `json:"unmarked_count"`
	EligibleCount int       `json:"eligible_count"`
	EndedAt       time.Time `json:"ended_at"`
}

// MarkOutcome is the HTTP shape of a mark attempt.
type MarkOutcome struct {
	OK      bool              `json:"ok"`
	Reason  string            `json:"reason,omitempty"`
	Message string            `json:"message,omitempty"`
	Record  *AttendanceRecord `json:"record,omitempty"`
}

// AttendanceOverviewFilter narrows the teacher overview.
type AttendanceOverviewFilter struct {
	DateFrom string `form:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo   string `form:"date_to" validate:"omitempty,datetime=2006-01-02"`
	Grade    int    `form:"grade" validate:"omitempty,grade"`
}

// StudentAttendanceLine summarises one student in the overview.
type StudentAttendanceLine struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	Grade       int     `json:"grade"`
	Present     int     `json:"present"`
	Absent      int     `json:"absent"`
	Total       int     `json:"total"`
	Percentage  float64 `json:"percentage"`
}

// AttendanceOverview aggregates a teacher's records.
type AttendanceOverview struct {
	Subject     string                        `json:"subject"`
	Present     int                           `json:"present"`
	Absent      int                           `json:"absent"`
	Total       int                           `json:"total"`
	Percentage  float64                       `json:"percentage"`
	SessionDays int                           `json:"session_days"`
	Students    []StudentAttendanceLine       `json:"students"`
	ByDate      map[string][]AttendanceRecord `json:"by_date"`
}

// SubjectAttendance is one subject in a student's summary.
type SubjectAttendance struct {
	Subject    string  `json:"subject"`
	Present    int     `json:"present"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// StudentAttendanceSummary aggregates a single student's records.
type StudentAttendanceSummary struct {
	StudentID string              `json:"student_id"`
	Subjects  []SubjectAttendance `json:"subjects"`
	Recent    []AttendanceRecord  `json:"recent"`
}

// SessionEventType names a live session event.
type SessionEventType string

const (
	EventSessionStarted SessionEventType = "session_started"
	EventMarked         SessionEventType = "marked"
	EventRejected       SessionEventType = "rejected"
	EventInvalidPayload SessionEventType = "invalid_payload"
	EventCameraStarted  SessionEventType = "camera_started"
	EventCameraStopped  SessionEventType = "camera_stopped"
	EventDeviceError    SessionEventType = "device_error"
	EventSessionEnded   SessionEventType = "session_ended"
)

// SessionEvent is streamed to clients watching a session.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	SessionID string           `json:"session_id"`
	StudentID string           `json:"student_id,omitempty"`
	Student   string           `json:"student_name,omitempty"`
	Status    AttendanceStatus `json:"status,omitempty"`
	Source    MarkSource       `json:"source,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Message   string           `json:"message,omitempty"`
	Summary   *SessionSummary  `json:"summary,omitempty"`
	At        time.Time        `json:"at"`
}
