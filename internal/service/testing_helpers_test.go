package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/repository"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	"github.com/noah-isme/tuition-center-api/pkg/qrcodec"
	"github.com/noah-isme/tuition-center-api/pkg/store"
)

type fixture struct {
	store         *store.MemoryStore
	students      *repository.StudentRepository
	teachers      *repository.TeacherRepository
	parents       *repository.ParentRepository
	attendance    *repository.AttendanceRepository
	notifications *repository.NotificationRepository
	announcements *repository.AnnouncementRepository
	payments      *repository.PaymentRepository
	materials     *repository.MaterialRepository
	reports       *repository.ReportRepository
	marks         *repository.MarkRepository
	chats         *repository.ChatRepository
	codec         *qrcodec.Codec
	events        *eventRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	v := validation.New(validation.DefaultSchool)
	return &fixture{
		store:         s,
		students:      repository.NewStudentRepository(s, v),
		teachers:      repository.NewTeacherRepository(s, v),
		parents:       repository.NewParentRepository(s, v),
		attendance:    repository.NewAttendanceRepository(s, v),
		notifications: repository.NewNotificationRepository(s, v),
		announcements: repository.NewAnnouncementRepository(s, v),
		payments:      repository.NewPaymentRepository(s, v),
		materials:     repository.NewMaterialRepository(s, v),
		reports:       repository.NewReportRepository(s, v),
		marks:         repository.NewMarkRepository(s, v),
		chats:         repository.NewChatRepository(s, v),
		codec:         qrcodec.New(300, validation.DefaultSchool.Grades),
		events:        &eventRecorder{},
	}
}

func (f *fixture) addStudent(t *testing.T, id string, grade int, subjects ...string) models.Student {
	t.Helper()
	st := models.Student{ID: id, Name: "Student " + id, Grade: grade, Subjects: subjects, ParentID: "P1", EnrolledAt: time.Now()}
	require.NoError(t, f.students.Create(context.Background(), st))
	return st
}

func (f *fixture) addParent(t *testing.T, id, name string) models.Parent {
	t.Helper()
	p := models.Parent{ID: id, Name: name, Email: strings.ToLower(id) + "@example.com", CreatedAt: time.Now()}
	require.NoError(t, f.parents.Create(context.Background(), p))
	return p
}

func (f *fixture) addTeacher(t *testing.T, id, subject string) models.Teacher {
	t.Helper()
	tc := models.Teacher{ID: id, Name: "Teacher " + id, Email: id + "@tuition.com", Subject: subject}
	_, err := f.teachers.Seed(context.Background(), []models.Teacher{tc})
	require.NoError(t, err)
	return tc
}

func (f *fixture) records(t *testing.T) []models.AttendanceRecord {
	t.Helper()
	recs, err := f.attendance.List(context.Background(), repository.AttendanceFilter{})
	require.NoError(t, err)
	return recs
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (r *eventRecorder) Publish(_ string, e models.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types() []models.SessionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SessionEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
