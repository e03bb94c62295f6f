package repository

import (
	"context"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/pkg/store"
)

// NotificationRepository persists notifications.
type NotificationRepository struct {
	c collection[models.Notification]
}

func NewNotificationRepository(s store.Store, v *validator.Validate) *NotificationRepository {
	return &NotificationRepository{c: newCollection[models.Notification](s, store.Notifications, v)}
}

// AppendBatch writes every notification in one store update, or none.
func (r *NotificationRepository) AppendBatch(ctx context.Context, items []models.Notification) error {
	return r.c.appendAll(ctx, items...)
}

// List returns notifications matching keep, newest first.
func (r *NotificationRepository) List(ctx context.Context, keep func(models.Notification) bool) ([]models.Notification, error) {
	items, err := r.c.filter(ctx, keep)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	return items, nil
}

// AnnouncementRepository persists announcement records.
type AnnouncementRepository struct {
	c collection[models.Announcement]
}

func NewAnnouncementRepository(s store.Store, v *validator.Validate) *AnnouncementRepository {
	return &AnnouncementRepository{c: newCollection[models.Announcement](s, store.Announcements, v)}
}

func (r *AnnouncementRepository) Create(ctx context.Context, a models.Announcement) error {
	return r.c.appendAll(ctx, a)
}

// ListBySender returns the announcements sent by senderID, newest first.
func (r *AnnouncementRepository) ListBySender(ctx context.Context, senderID string) ([]models.Announcement, error) {
	items, err := r.c.filter(ctx, func(a models.Announcement) bool { return senderID == "" || a.SenderID == senderID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	return items, nil
}
