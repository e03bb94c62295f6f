package models

import "time"

// Student is an enrolled learner. QRCode and QRPayload are produced once at
// enrollment and never regenerated.
type Student struct {
	ID         string    `json:"id" validate:"required"`
	Name       string    `json:"name" validate:"required"`
	Grade      int       `json:"grade" validate:"required,grade"`
	Subjects   []string  `json:"subjects" validate:"required,min=1,dive,required"`
	ParentID   string    `json:"parent_id" validate:"required"`
	EnrolledAt time.Time `json:"enrolled_at"`
	QRCode     string    `json:"qr_code,omitempty"`
	QRPayload  string    `json:"qr_payload,omitempty"`
}

// TakesSubject reports whether subject is among the student's subjects.
func (s Student) TakesSubject(subject string) bool {
	for _, sub := range s.Subjects {
		if sub == subject {
			return true
		}
	}
	return false
}

// Teacher teaches exactly one subject.
type Teacher struct {
	ID           string `json:"id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Subject      string `json:"subject" validate:"required,subject"`
	Phone        string `json:"phone"`
	PasswordHash string `json:"password_hash,omitempty"`
}

// Parent owns one or more students.
type Parent struct {
	ID           string    `json:"id" validate:"required"`
	Name         string    `json:"name" validate:"required"`
	Email        string    `json:"email" validate:"required,email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"password_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TeacherRequest creates or updates a teacher. Password is optional on
// update.
type TeacherRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Subject  string `json:"subject" validate:"required,subject"`
	Phone    string `json:"phone" validate:"required,max=32"`
	Password string `json:"password" validate:"omitempty,min=6"`
}

// StudentFilter narrows admin student listings.
type StudentFilter struct {
	Grade   int    `form:"grade" validate:"omitempty,grade"`
	Subject string `form:"subject" validate:"omitempty,subject"`
}
