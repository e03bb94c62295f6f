package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/repository"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

type markRepository interface {
	Upsert(ctx context.Context, marks []models.Mark) ([]models.Mark, error)
	List(ctx context.Context, keep func(models.Mark) bool) ([]models.Mark, error)
}

type markStudentRepository interface {
	ListEligible(ctx context.Context, grade int, subject string) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type listedStudentNotifier interface {
	NotifyStudentIDs(ctx context.Context, sender models.Actor, kind models.NotificationType, title, message string, ids []string) (int, error)
}

// MarksUploadResult reports the stored marks and how many students were told.
type MarksUploadResult struct {
	Marks    []models.Mark `json:"marks"`
	Notified int           `json:"notified"`
}

// MarkService records term marks and builds report cards.
type MarkService struct {
	marks     markRepository
	students  markStudentRepository
	notifier  listedStudentNotifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

func NewMarkService(marks markRepository, students markStudentRepository, notifier listedStudentNotifier, validate *validator.Validate, logger *zap.Logger) *MarkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New(validation.DefaultSchool)
	}
	return &MarkService{marks: marks, students: students, notifier: notifier, validator: validate, logger: logger, now: time.Now}
}

// Upload stores marks for the teacher's subject. Every entry must name a
// student of the grade who takes the subject, at most once. Each student
// with a stored mark gets a notification.
func (s *MarkService) Upload(ctx context.Context, teacher models.Actor, req models.UploadMarksRequest) (*MarksUploadResult, error) {
	if teacher.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only subject teachers can upload marks")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Please enter marks between 0 and 100 for at least one student")
	}

	eligible, err := s.students.ListEligible(ctx, req.Grade, teacher.Subject)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	byID := make(map[string]models.Student, len(eligible))
	for _, st := range eligible {
		byID[st.ID] = st
	}

	now := s.now().UTC()
	marks := make([]models.Mark, 0, len(req.Entries))
	ids := make([]string, 0, len(req.Entries))
	seen := make(map[string]struct{}, len(req.Entries))
	for _, e := range req.Entries {
		st, ok := byID[e.StudentID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not in grade %d taking %s", e.StudentID, req.Grade, teacher.Subject))
		}
		if _, dup := seen[st.ID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s appears more than once", st.ID))
		}
		seen[st.ID] = struct{}{}
		marks = append(marks, models.Mark{
			ID:          "MRK" + uuid.NewString(),
			StudentID:   st.ID,
			StudentName: st.Name,
			Grade:       st.Grade,
			Subject:     teacher.Subject,
			Term:        req.Term,
			Marks:       e.Marks,
			TeacherID:   teacher.ID,
			UploadedBy:  teacher.Name,
			UploadedAt:  now,
		})
		ids = append(ids, st.ID)
	}

	stored, err := s.marks.Upsert(ctx, marks)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save marks")
	}

	notified, err := s.notifier.NotifyStudentIDs(ctx, teacher, models.NotificationMarks,
		"New Marks Uploaded",
		fmt.Sprintf("%s uploaded marks for %s - %s", teacher.Name, teacher.Subject, req.Term),
		ids)
	if err != nil {
		s.logger.Warn("marks notifications failed", zap.String("teacher_id", teacher.ID), zap.Error(err))
	}
	s.logger.Info("marks uploaded",
		zap.String("teacher_id", teacher.ID),
		zap.Int("grade", req.Grade),
		zap.String("term", string(req.Term)),
		zap.Int("count", len(stored)),
	)
	return &MarksUploadResult{Marks: stored, Notified: notified}, nil
}

// List returns the marks of the teacher's subject.
func (s *MarkService) List(ctx context.Context, teacher models.Actor, filter models.MarkFilter) ([]models.Mark, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid marks filter")
	}
	items, err := s.marks.List(ctx, func(m models.Mark) bool {
		return m.Subject == teacher.Subject &&
			(filter.Grade == 0 || m.Grade == filter.Grade) &&
			(filter.Term == "" || m.Term == filter.Term)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load marks")
	}
	return items, nil
}

// ReportCard grades a student's marks for term. Parents may only see their
// own children.
func (s *MarkService) ReportCard(ctx context.Context, actor models.Actor, studentID string, term models.Term) (*models.ReportCard, error) {
	if err := s.validator.Var(string(term), "required,oneof='Term 1' 'Term 2' 'Term 3' Final"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "term must be Term 1, Term 2, Term 3 or Final")
	}
	st, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if actor.Role == models.RoleParent && st.ParentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another parent")
	}

	marks, err := s.marks.List(ctx, func(m models.Mark) bool { return m.StudentID == studentID && m.Term == term })
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load marks")
	}

	card := &models.ReportCard{
		StudentID:   st.ID,
		StudentName: st.Name,
		Grade:       st.Grade,
		Term:        term,
		Subjects:    make([]models.ReportCardLine, 0, len(marks)),
	}
	for _, m := range marks {
		letter, remark := letterGrade(float64(m.Marks))
		card.Subjects = append(card.Subjects, models.ReportCardLine{Subject: m.Subject, Marks: m.Marks, LetterGrade: letter, Remark: remark})
		card.Total += m.Marks
	}
	if len(marks) > 0 {
		card.Average = math.Round(float64(card.Total)/float64(len(marks))*100) / 100
		card.OverallGrade, card.Remark = letterGrade(card.Average)
	}
	return card, nil
}

func letterGrade(score float64) (string, string) {
	switch {
	case score >= 90:
		return "A+", "Excellent"
	case score >= 80:
		return "A", "Very Good"
	case score >= 70:
		return "B+", "Good"
	case score >= 60:
		return "B", "Above Average"
	case score >= 50:
		return "C", "Average"
	case score >= 40:
		return "D", "Below Average"
	default:
		return "F", "Needs Improvement"
	}
}
