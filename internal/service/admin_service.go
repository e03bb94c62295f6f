package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/repository"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

type adminTeacherRepository interface {
	List(ctx context.Context) ([]models.Teacher, error)
	Create(ctx context.Context, teacher models.Teacher) error
	Update(ctx context.Context, id string, fn func(t *models.Teacher, others []models.Teacher) error) (*models.Teacher, error)
	Delete(ctx context.Context, id string) error
}

type adminStudentRepository interface {
	ListMatching(ctx context.Context, grade int, subject string) ([]models.Student, error)
	Delete(ctx context.Context, id string) error
}

// AdminService manages staff accounts and the student register.
type AdminService struct {
	teachers  adminTeacherRepository
	students  adminStudentRepository
	school    validation.School
	validator *validator.Validate
	logger    *zap.Logger
}

func NewAdminService(teachers adminTeacherRepository, students adminStudentRepository, school validation.School, validate *validator.Validate, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(school.Subjects) == 0 {
		school = validation.DefaultSchool
	}
	if validate == nil {
		validate = validation.New(school)
	}
	return &AdminService{teachers: teachers, students: students, school: school, validator: validate, logger: logger}
}

// ListTeachers returns every teacher without password hashes.
func (s *AdminService) ListTeachers(ctx context.Context) ([]models.Teacher, error) {
	items, err := s.teachers.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	for i := range items {
		items[i].PasswordHash = ""
	}
	return items, nil
}

// CreateTeacher adds a teacher. Emails are unique and each subject has at
// most one teacher.
func (s *AdminService) CreateTeacher(ctx context.Context, req models.TeacherRequest) (*models.Teacher, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	if req.Password == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Password must be at least 6 characters")
	}
	existing, err := s.teachers.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	if err := checkTeacherUnique(req, existing); err != nil {
		return nil, err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	t := models.Teacher{
		ID:           nextTeacherID(existing),
		Name:         req.Name,
		Email:        req.Email,
		Subject:      req.Subject,
		Phone:        req.Phone,
		PasswordHash: hash,
	}
	if err := s.teachers.Create(ctx, t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "Email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save teacher")
	}
	s.logger.Info("teacher created", zap.String("teacher_id", t.ID), zap.String("subject", t.Subject))
	t.PasswordHash = ""
	return &t, nil
}

// UpdateTeacher replaces a teacher's details. The password changes only
// when one is given.
func (s *AdminService) UpdateTeacher(ctx context.Context, id string, req models.TeacherRequest) (*models.Teacher, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	hash := ""
	if req.Password != "" {
		if hash, err = HashPassword(req.Password); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
	}
	updated, err := s.teachers.Update(ctx, id, func(t *models.Teacher, others []models.Teacher) error {
		if err := checkTeacherUnique(req, others); err != nil {
			return err
		}
		t.Name, t.Email, t.Subject, t.Phone = req.Name, req.Email, req.Subject, req.Phone
		if hash != "" {
			t.PasswordHash = hash
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	s.logger.Info("teacher updated", zap.String("teacher_id", id))
	updated.PasswordHash = ""
	return updated, nil
}

func (s *AdminService) DeleteTeacher(ctx context.Context, id string) error {
	if err := s.teachers.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}
	s.logger.Info("teacher deleted", zap.String("teacher_id", id))
	return nil
}

// ListStudents returns students for an optional grade and subject.
func (s *AdminService) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student filter")
	}
	items, err := s.students.ListMatching(ctx, filter.Grade, s.school.Canonical(filter.Subject))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	return items, nil
}

// DeleteStudent removes a student from the register. Attendance, marks and
// payments already recorded are kept.
func (s *AdminService) DeleteStudent(ctx context.Context, id string) error {
	if err := s.students.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrStudentNotFound, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.logger.Info("student deleted", zap.String("student_id", id))
	return nil
}

func (s *AdminService) normalize(req models.TeacherRequest) (models.TeacherRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validator.Struct(req); err != nil {
		return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Please fill in all fields")
	}
	req.Subject = s.school.Canonical(req.Subject)
	return req, nil
}

func checkTeacherUnique(req models.TeacherRequest, others []models.Teacher) error {
	for _, t := range others {
		if strings.EqualFold(t.Email, req.Email) {
			return appErrors.Clone(appErrors.ErrConflict, "Email already exists")
		}
		if t.Subject == req.Subject {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s already has a teacher assigned", req.Subject))
		}
	}
	return nil
}

// nextTeacherID continues the T001, T002 sequence past the highest ID in use.
func nextTeacherID(existing []models.Teacher) string {
	highest := 0
	for _, t := range existing {
		if n, err := strconv.Atoi(strings.TrimPrefix(t.ID, "T")); err == nil && strings.HasPrefix(t.ID, "T") && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("T%03d", highest+1)
}
