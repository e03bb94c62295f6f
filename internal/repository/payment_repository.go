package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/pkg/store"
)

// ErrNotPending is returned when reviewing an already reviewed payment.
var ErrNotPending = errors.New("repository: payment already reviewed")

// PaymentRepository persists payments.
type PaymentRepository struct {
	c collection[models.Payment]
}

func NewPaymentRepository(s store.Store, v *validator.Validate) *PaymentRepository {
	return &PaymentRepository{c: newCollection[models.Payment](s, store.Payments, v)}
}

func (r *PaymentRepository) Create(ctx context.Context, p models.Payment) error {
	return r.c.appendAll(ctx, p)
}

// CreateMonthly stores p unless the student already has a payment for
// p.Month.
func (r *PaymentRepository) CreateMonthly(ctx context.Context, p models.Payment) error {
	return r.c.mutate(ctx, func(items []models.Payment) ([]models.Payment, error) {
		for _, existing := range items {
			if existing.StudentID == p.StudentID && existing.Month == p.Month {
				return nil, ErrDuplicate
			}
		}
		return append(items, p), nil
	})
}

// ListByParent returns a parent's payments, newest first.
func (r *PaymentRepository) ListByParent(ctx context.Context, parentID string) ([]models.Payment, error) {
	items, err := r.c.filter(ctx, func(p models.Payment) bool { return p.ParentID == parentID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].SubmittedAt.After(items[j].SubmittedAt) })
	return items, nil
}

// List returns payments with the given status, or all when status is empty,
// newest first.
func (r *PaymentRepository) List(ctx context.Context, status models.PaymentStatus) ([]models.Payment, error) {
	items, err := r.c.filter(ctx, func(p models.Payment) bool { return status == "" || p.Status == status })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].SubmittedAt.After(items[j].SubmittedAt) })
	return items, nil
}

// Review moves a pending payment to status.
func (r *PaymentRepository) Review(ctx context.Context, id string, status models.PaymentStatus, at time.Time) (*models.Payment, error) {
	var reviewed *models.Payment
	err := r.c.mutate(ctx, func(items []models.Payment) ([]models.Payment, error) {
		for i := range items {
			if items[i].ID != id {
				continue
			}
			if items[i].Status != models.PaymentPending {
				return nil, ErrNotPending
			}
			items[i].Status = status
			items[i].ReviewedAt = &at
			p := items[i]
			reviewed = &p
			return items, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return reviewed, nil
}

// MaterialRepository persists uploaded materials.
type MaterialRepository struct {
	c collection[models.Material]
}

func NewMaterialRepository(s store.Store, v *validator.Validate) *MaterialRepository {
	return &MaterialRepository{c: newCollection[models.Material](s, store.Materials, v)}
}

func (r *MaterialRepository) Create(ctx context.Context, m models.Material) error {
	return r.c.appendAll(ctx, m)
}

// List returns materials for an optional grade and subject, newest first.
func (r *MaterialRepository) List(ctx context.Context, grade int, subject string) ([]models.Material, error) {
	items, err := r.c.filter(ctx, func(m models.Material) bool {
		return (grade == 0 || m.Grade == grade) && (subject == "" || m.Subject == subject)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].UploadedAt.After(items[j].UploadedAt) })
	return items, nil
}

// ReportRepository persists export jobs.
type ReportRepository struct {
	c collection[models.ReportJob]
}

func NewReportRepository(s store.Store, v *validator.Validate) *ReportRepository {
	return &ReportRepository{c: newCollection[models.ReportJob](s, store.Reports, v)}
}

func (r *ReportRepository) Create(ctx context.Context, job models.ReportJob) error {
	return r.c.appendAll(ctx, job)
}

func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok, err := r.c.first(ctx, func(j models.ReportJob) bool { return j.ID == id })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

// Save replaces the stored job with the same ID.
func (r *ReportRepository) Save(ctx context.Context, job models.ReportJob) error {
	return r.c.mutate(ctx, func(items []models.ReportJob) ([]models.ReportJob, error) {
		for i := range items {
			if items[i].ID == job.ID {
				items[i] = job
				return items, nil
			}
		}
		return nil, ErrNotFound
	})
}

// ListFinishedBefore returns finished jobs completed before cutoff.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.ReportJob, error) {
	return r.c.filter(ctx, func(j models.ReportJob) bool {
		return j.Status == models.ReportStatusFinished && j.FinishedAt != nil && j.FinishedAt.Before(cutoff)
	})
}
