package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

type materialRepository interface {
	Create(ctx context.Context, m models.Material) error
	List(ctx context.Context, grade int, subject string) ([]models.Material, error)
}

type studentNotifier interface {
	NotifyStudents(ctx context.Context, sender models.Actor, kind models.NotificationType, title, message string, grade int, subject string) (int, error)
}

// MaterialUploadResult reports the stored material and the fan-out size.
type MaterialUploadResult struct {
	Material models.Material `json:"material"`
	Notified int             `json:"notified"`
}

// MaterialService stores study materials and tells affected students.
type MaterialService struct {
	materials materialRepository
	notifier  studentNotifier
	school    validation.School
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

func NewMaterialService(materials materialRepository, notifier studentNotifier, school validation.School, validate *validator.Validate, logger *zap.Logger) *MaterialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(school.Subjects) == 0 {
		school = validation.DefaultSchool
	}
	if validate == nil {
		validate = validation.New(school)
	}
	return &MaterialService{materials: materials, notifier: notifier, school: school, validator: validate, logger: logger, now: time.Now}
}

// Upload saves a material for the teacher's subject and notifies students of
// that grade taking the subject. No matching students is not an error.
func (s *MaterialService) Upload(ctx context.Context, teacher models.Actor, req models.UploadMaterialRequest) (*MaterialUploadResult, error) {
	if teacher.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only subject teachers can upload materials")
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Please fill in all required fields and upload a file")
	}
	mime, err := checkMaterial(req.FileData, req.FileType)
	if err != nil {
		return nil, err
	}

	m := models.Material{
		ID:          "M" + uuid.NewString(),
		TeacherID:   teacher.ID,
		TeacherName: teacher.Name,
		Subject:     teacher.Subject,
		Grade:       req.Grade,
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		FileName:    req.FileName,
		FileType:    mime,
		FileData:    req.FileData,
		UploadedAt:  s.now().UTC(),
	}
	if err := s.materials.Create(ctx, m); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save material")
	}

	notified, err := s.notifier.NotifyStudents(ctx, teacher, models.NotificationMaterial,
		"New Study Material",
		fmt.Sprintf("%s uploaded %q for %s", teacher.Name, m.Title, m.Subject),
		m.Grade, m.Subject)
	if err != nil {
		s.logger.Warn("material notifications failed", zap.String("material_id", m.ID), zap.Error(err))
	}
	return &MaterialUploadResult{Material: m, Notified: notified}, nil
}

// List returns materials without their file bodies.
func (s *MaterialService) List(ctx context.Context, filter models.MaterialFilter) ([]models.Material, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material filter")
	}
	items, err := s.materials.List(ctx, filter.Grade, s.school.Canonical(filter.Subject))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load materials")
	}
	for i := range items {
		items[i].FileData = ""
	}
	return items, nil
}
