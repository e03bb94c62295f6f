package repository

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/pkg/store"
)

// AttendanceFilter selects attendance records. Empty fields match all.
type AttendanceFilter struct {
	TeacherID string
	Subject   string
	StudentID string
	Grade     int
	DateFrom  string
	DateTo    string
}

func (f AttendanceFilter) match(r models.AttendanceRecord) bool {
	switch {
	case f.TeacherID != "" && r.TeacherID != f.TeacherID:
		return false
	case f.Subject != "" && r.Subject != f.Subject:
		return false
	case f.StudentID != "" && r.StudentID != f.StudentID:
		return false
	case f.Grade != 0 && r.Grade != f.Grade:
		return false
	case f.DateFrom != "" && r.Date < f.DateFrom:
		return false
	case f.DateTo != "" && r.Date > f.DateTo:
		return false
	}
	return true
}

// AttendanceRepository is the append-only attendance log.
type AttendanceRepository struct {
	c collection[models.AttendanceRecord]
}

func NewAttendanceRepository(s store.Store, v *validator.Validate) *AttendanceRepository {
	return &AttendanceRepository{c: newCollection[models.AttendanceRecord](s, store.Attendance, v)}
}

// Append adds one record.
func (r *AttendanceRepository) Append(ctx context.Context, record models.AttendanceRecord) error {
	return r.c.appendAll(ctx, record)
}

func (r *AttendanceRepository) List(ctx context.Context, filter AttendanceFilter) ([]models.AttendanceRecord, error) {
	return r.c.filter(ctx, filter.match)
}
