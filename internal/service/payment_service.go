package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/repository"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

type paymentRepository interface {
	List(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error)
	Review(ctx context.Context, id string, status models.PaymentStatus, at time.Time) (*models.Payment, error)
}

// PaymentService lets the admin review submitted payments.
type PaymentService struct {
	payments paymentRepository
	notifier notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewPaymentService(payments paymentRepository, notifier notifier, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{payments: payments, notifier: notifier, logger: logger, now: time.Now}
}

// List returns payments, optionally by status. Receipts are included.
func (s *PaymentService) List(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error) {
	switch status {
	case "", models.PaymentPending, models.PaymentApproved, models.PaymentRejected:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown payment status")
	}
	items, err := s.payments.List(ctx, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}
	return items, nil
}

// Review approves or rejects a pending payment and tells the parent.
func (s *PaymentService) Review(ctx context.Context, reviewer models.Actor, paymentID string, approve bool) (*models.Payment, error) {
	status, verb, suffix := models.PaymentRejected, "rejected", ". Please resubmit."
	if approve {
		status, verb, suffix = models.PaymentApproved, "approved", ""
	}

	p, err := s.payments.Review(ctx, paymentID, status, s.now().UTC())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	case errors.Is(err, repository.ErrNotPending):
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment has already been reviewed")
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review payment")
	}

	title := "Payment Rejected"
	if approve {
		title = "Payment Approved"
	}
	if err := s.notifier.Notify(ctx, models.Notification{
		Type:       models.NotificationPayment,
		Title:      title,
		Message:    fmt.Sprintf("Payment for %s has been %s%s", p.StudentName, verb, suffix),
		SenderName: reviewer.Name,
		SenderRole: string(models.AudienceAdmin),
		TargetRole: models.AudienceParent,
		TargetID:   p.ParentID,
	}); err != nil {
		s.logger.Warn("payment notification failed", zap.String("payment_id", p.ID), zap.Error(err))
	}
	s.logger.Info("payment reviewed", zap.String("payment_id", p.ID), zap.String("status", string(p.Status)))
	return p, nil
}
