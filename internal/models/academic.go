package models

import "time"

// Term names an assessment period.
type Term string

const (
	Term1     Term = "Term 1"
	Term2     Term = "Term 2"
	Term3     Term = "Term 3"
	TermFinal Term = "Final"
)

// Mark is one student's result in a subject for a term. A student has at
// most one mark per subject and term; uploading again replaces it.
type Mark struct {
	ID          string    `json:"id" validate:"required"`
	StudentID   string    `json:"student_id" validate:"required"`
	StudentName string    `json:"student_name"`
	Grade       int       `json:"grade" validate:"grade"`
	Subject     string    `json:"subject" validate:"required"`
	Term        Term      `json:"term" validate:"required,oneof='Term 1' 'Term 2' 'Term 3' Final"`
	Marks       int       `json:"marks" validate:"min=0,max=100"`
	TeacherID   string    `json:"teacher_id" validate:"required"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// MarkEntry is a single row of an upload.
type MarkEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Marks     int    `json:"marks" validate:"min=0,max=100"`
}

// UploadMarksRequest records marks for the teacher's subject.
type UploadMarksRequest struct {
	Grade   int         `json:"grade" validate:"required,grade"`
	Term    Term        `json:"term" validate:"required,oneof='Term 1' 'Term 2' 'Term 3' Final"`
	Entries []MarkEntry `json:"entries" validate:"required,min=1,dive"`
}

// MarkFilter narrows mark listings.
type MarkFilter struct {
	Grade int  `form:"grade" validate:"omitempty,grade"`
	Term  Term `form:"term" validate:"omitempty,oneof='Term 1' 'Term 2' 'Term 3' Final"`
}

// ReportCardLine is one subject on a report card.
type ReportCardLine struct {
	Subject     string `json:"subject"`
	Marks       int    `json:"marks"`
	LetterGrade string `json:"letter_grade"`
	Remark      string `json:"remark"`
}

// ReportCard summarises a student's marks for a term.
type ReportCard struct {
	StudentID    string           `json:"student_id"`
	StudentName  string           `json:"student_name"`
	Grade        int              `json:"grade"`
	Term         Term             `json:"term"`
	Subjects     []ReportCardLine `json:"subjects"`
	Total        int              `json:"total"`
	Average      float64          `json:"average"`
	OverallGrade string           `json:"overall_grade,omitempty"`
	Remark       string           `json:"remark,omitempty"`
}

// ChatMessage is one message between a teacher and a parent.
type ChatMessage struct {
	ID          string    `json:"id" validate:"required"`
	TeacherID   string    `json:"teacher_id" validate:"required"`
	TeacherName string    `json:"teacher_name"`
	Subject     string    `json:"subject"`
	ParentID    string    `json:"parent_id" validate:"required"`
	ParentName  string    `json:"parent_name"`
	StudentID   string    `json:"student_id,omitempty"`
	StudentName string    `json:"student_name,omitempty"`
	Message     string    `json:"message" validate:"required,max=2000"`
	Sender      Audience  `json:"sender" validate:"required,oneof=teacher parent"`
	Timestamp   time.Time `json:"timestamp"`
	Read        bool      `json:"read"`
}

// SendChatRequest addresses a message. Teachers name the student whose
// parent they write to; parents name the teacher and may name their child.
type SendChatRequest struct {
	StudentID string `json:"student_id"`
	TeacherID string `json:"teacher_id"`
	Message   string `json:"message"`
}

// ChatThread is the latest message with one counterpart.
type ChatThread struct {
	CounterpartID   string      `json:"counterpart_id"`
	CounterpartName string      `json:"counterpart_name"`
	Unread          int         `json:"unread"`
	Last            ChatMessage `json:"last"`
}
