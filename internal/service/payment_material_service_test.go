package service

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

func TestPaymentReviewNotifiesParent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notifications := newNotificationService(f)
	svc := NewPaymentService(f.payments, notifications, nil)

	require.NoError(t, f.payments.Create(ctx, models.Payment{
		ID: "PAY1", StudentID: "S1", StudentName: "Ava", ParentID: "P1", Reference: "R", Status: models.PaymentPending, SubmittedAt: time.Now(),
	}))

	p, err := svc.Review(ctx, admin, "PAY1", true)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentApproved, p.Status)

	items, err := notifications.ListFor(ctx, parentActor, models.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Payment Approved", items[0].Title)

	_, err = svc.Review(ctx, admin, "PAY1", false)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))

	_, err = svc.Review(ctx, admin, "nope", false)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))

	_, err = svc.List(ctx, "Lost")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestMaterialUploadFansOutToGradeAndSubject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, "S1", 7, "Mathematics")
	f.addStudent(t, "S2", 7, "English")
	f.addStudent(t, "S3", 8, "Mathematics")
	svc := NewMaterialService(f.materials, newNotificationService(f), validation.DefaultSchool, nil, nil)

	res, err := svc.Upload(ctx, mathTeacher, models.UploadMaterialRequest{
		Grade:    7,
		Title:    "Fractions worksheet",
		FileName: "fractions.txt",
		FileType: "text/plain",
		FileData: "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("1/2 + 1/4")),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Notified)
	assert.Equal(t, "Mathematics", res.Material.Subject)

	list, err := svc.List(ctx, models.MaterialFilter{Grade: 7, Subject: "mathematics"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].FileData)

	_, err = svc.Upload(ctx, mathTeacher, models.UploadMaterialRequest{
		Grade: 7, Title: "Bad", FileName: "x.exe", FileType: "application/x-msdownload",
		FileData: "data:application/x-msdownload;base64,AAAA",
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}
