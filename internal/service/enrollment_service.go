package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/repository"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
	"github.com/noah-isme/tuition-center-api/pkg/qrcodec"
)

type enrollmentStudentRepository interface {
	Create(ctx context.Context, student models.Student) error
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListByParent(ctx context.Context, parentID string) ([]models.Student, error)
	AddSubjects(ctx context.Context, id string, fn func(models.Student) ([]string, error)) (*models.Student, error)
	Delete(ctx context.Context, id string) error
}

type enrollmentPaymentRepository interface {
	Create(ctx context.Context, p models.Payment) error
	CreateMonthly(ctx context.Context, p models.Payment) error
	ListByParent(ctx context.Context, parentID string) ([]models.Payment, error)
}

type qrEncoder interface {
	Encode(id qrcodec.Identity) (qrcodec.Image, error)
}

type notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// EnrollmentService enrolls students on behalf of parents.
type EnrollmentService struct {
	students  enrollmentStudentRepository
	payments  enrollmentPaymentRepository
	qr        qrEncoder
	notifier  notifier
	school    validation.School
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(students enrollmentStudentRepository, payments enrollmentPaymentRepository, qr qrEncoder, notifier notifier, school validation.School, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(school.Subjects) == 0 {
		school = validation.DefaultSchool
	}
	if validate == nil {
		validate = validation.New(school)
	}
	return &EnrollmentService{
		students:  students,
		payments:  payments,
		qr:        qr,
		notifier:  notifier,
		school:    school,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *EnrollmentService) canonicalSubjects(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		name := s.school.Canonical(raw)
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Enroll creates the student with its QR code, a pending payment and an
// admin notification.
func (s *EnrollmentService) Enroll(ctx context.Context, parent models.Actor, req models.EnrollRequest) (*models.EnrollResult, error) {
	req.StudentName = strings.TrimSpace(req.StudentName)
	req.PaymentReference = strings.TrimSpace(req.PaymentReference)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Please fill in all required fields")
	}
	if err := checkReceipt(req.Receipt); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	student := models.Student{
		ID:         newStudentID(),
		Name:       req.StudentName,
		Grade:      req.Grade,
		Subjects:   s.canonicalSubjects(req.Subjects),
		ParentID:   parent.ID,
		EnrolledAt: now,
	}
	qr, err := s.qr.Encode(qrcodec.Identity{ID: student.ID, Name: student.Name, Grade: student.Grade})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate QR code")
	}
	student.QRCode = qr.DataURL
	student.QRPayload = qr.Payload

	if err := s.students.Create(ctx, student); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student id collision, please retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save student")
	}

	payment := models.Payment{
		ID:              "PAY" + uuid.NewString(),
		StudentID:       student.ID,
		StudentName:     student.Name,
		ParentID:        parent.ID,
		ParentName:      parent.Name,
		Reference:       req.PaymentReference,
		Receipt:         req.Receipt,
		ReceiptFileName: req.ReceiptFileName,
		Status:          models.PaymentPending,
		SubmittedAt:     now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if delErr := s.students.Delete(ctx, student.ID); delErr != nil {
			s.logger.Error("failed to roll back student after payment error", zap.String("student_id", student.ID), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save payment")
	}

	if err := s.notifier.Notify(ctx, models.Notification{
		Type:       models.NotificationPayment,
		Title:      "New Payment Submitted",
		Message:    fmt.Sprintf("%s has submitted payment for %s", parent.Name, student.Name),
		SenderName: parent.Name,
		SenderRole: string(models.AudienceParent),
		TargetRole: models.AudienceAdmin,
	}); err != nil {
		s.logger.Warn("enrollment notification failed", zap.String("student_id", student.ID), zap.Error(err))
	}

	s.logger.Info("student enrolled", zap.String("student_id", student.ID), zap.String("parent_id", parent.ID), zap.Int("grade", student.Grade))
	payment.Receipt = ""
	return &models.EnrollResult{Student: student, Payment: payment}, nil
}

// AddSubjects extends a student's subjects. Only subjects the student does
// not already take are accepted.
func (s *EnrollmentService) AddSubjects(ctx context.Context, parent models.Actor, studentID string, req models.AddSubjectsRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Please select at least one subject to add")
	}
	if _, err := s.owned(ctx, parent, studentID); err != nil {
		return nil, err
	}
	wanted := s.canonicalSubjects(req.Subjects)

	var added []string
	updated, err := s.students.AddSubjects(ctx, studentID, func(st models.Student) ([]string, error) {
		added = added[:0]
		for _, sub := range wanted {
			if st.TakesSubject(sub) {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is already enrolled in %s", st.Name, sub))
			}
			added = append(added, sub)
		}
		return added, nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subjects")
	}

	if err := s.notifier.Notify(ctx, models.Notification{
		Type:       models.NotificationEnrollment,
		Title:      "Subjects Added",
		Message:    fmt.Sprintf("%s added %s for %s", parent.Name, strings.Join(added, ", "), updated.Name),
		SenderName: parent.Name,
		SenderRole: string(models.AudienceParent),
		TargetRole: models.AudienceAdmin,
	}); err != nil {
		s.logger.Warn("subjects notification failed", zap.String("student_id", studentID), zap.Error(err))
	}
	return updated, nil
}

// SubmitMonthly records one month's fee for a parent's student. A student
// has at most one payment per month.
func (s *EnrollmentService) SubmitMonthly(ctx context.Context, parent models.Actor, req models.MonthlyPaymentRequest) (*models.Payment, error) {
	req.Reference = strings.TrimSpace(req.Reference)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Please fill all fields and upload receipt")
	}
	if err := checkReceipt(req.Receipt); err != nil {
		return nil, err
	}
	st, err := s.owned(ctx, parent, req.StudentID)
	if err != nil {
		return nil, err
	}

	payment := models.Payment{
		ID:              "PAY" + uuid.NewString(),
		StudentID:       st.ID,
		StudentName:     st.Name,
		ParentID:        parent.ID,
		ParentName:      parent.Name,
		Month:           req.Month,
		Amount:          req.Amount,
		Reference:       req.Reference,
		Receipt:         req.Receipt,
		ReceiptFileName: req.ReceiptFileName,
		Status:          models.PaymentPending,
		SubmittedAt:     s.now().UTC(),
	}
	if err := s.payments.CreateMonthly(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("Payment for %s already exists for %s", req.Month, st.Name))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save payment")
	}

	if err := s.notifier.Notify(ctx, models.Notification{
		Type:       models.NotificationPayment,
		Title:      "New Payment Submitted",
		Message:    fmt.Sprintf("%s submitted payment for %s - %s", parent.Name, st.Name, req.Month),
		SenderName: parent.Name,
		SenderRole: string(models.AudienceParent),
		TargetRole: models.AudienceAdmin,
	}); err != nil {
		s.logger.Warn("monthly payment notification failed", zap.String("payment_id", payment.ID), zap.Error(err))
	}
	payment.Receipt = ""
	return &payment, nil
}

// Payments lists the parent's payments without receipt bodies.
func (s *EnrollmentService) Payments(ctx context.Context, parent models.Actor) ([]models.Payment, error) {
	items, err := s.payments.ListByParent(ctx, parent.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}
	for i := range items {
		items[i].Receipt = ""
	}
	return items, nil
}

// Children lists the parent's students.
func (s *EnrollmentService) Children(ctx context.Context, parent models.Actor) ([]models.Student, error) {
	items, err := s.students.ListByParent(ctx, parent.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	return items, nil
}

// QRCode returns the stored PNG for a student. Parents may only fetch their
// own children; admins may fetch any.
func (s *EnrollmentService) QRCode(ctx context.Context, actor models.Actor, studentID string) ([]byte, error) {
	st, err := s.owned(ctx, actor, studentID)
	if err != nil {
		return nil, err
	}
	f, err := parseDataURL(st.QRCode)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no QR code")
	}
	return f.Data, nil
}

func (s *EnrollmentService) owned(ctx context.Context, actor models.Actor, studentID string) (*models.Student, error) {
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
	return st, nil
}

func newStudentID() string {
	return "S" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
