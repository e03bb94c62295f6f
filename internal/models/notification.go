package models

import "time"

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationAnnouncement NotificationType = "announcement"
	NotificationMaterial     NotificationType = "material"
	NotificationPayment      NotificationType = "payment"
	NotificationEnrollment   NotificationType = "enrollment"
	NotificationMarks        NotificationType = "marks"
	NotificationChat         NotificationType = "chat"
)

// Notification is one message addressed to a role, and to a single person
// within that role when TargetID is set.
type Notification struct {
	ID         string           `json:"id" validate:"required"`
	Type       NotificationType `json:"type" validate:"required,oneof=announcement material payment enrollment marks chat"`
	Title      string           `json:"title" validate:"required"`
	Message    string           `json:"message" validate:"required"`
	SenderName string           `json:"sender_name"`
	SenderRole string           `json:"sender_role"`
	Timestamp  time.Time        `json:"timestamp"`
	Read       bool             `json:"read"`
	TargetRole Audience         `json:"target_role" validate:"required,oneof=admin teacher student parent"`
	TargetID   string           `json:"target_id,omitempty"`
}

// NotificationFilter narrows notification listings.
type NotificationFilter struct {
	Type  NotificationType `form:"type" validate:"omitempty,oneof=announcement material payment enrollment marks chat"`
	Limit int              `form:"limit" validate:"omitempty,min=1,max=500"`
}

// Announcement records a broadcast after its notifications were written.
type Announcement struct {
	ID             string    `json:"id" validate:"required"`
	Title          string    `json:"title" validate:"required"`
	Message        string    `json:"message" validate:"required"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	SenderRole     string    `json:"sender_role"`
	SenderSubject  string    `json:"sender_subject,omitempty"`
	TargetAudience Audience  `json:"target_audience" validate:"required,oneof=teacher student"`
	Grade          string    `json:"grade"`
	Subject        string    `json:"subject"`
	RecipientCount int       `json:"recipient_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// BroadcastRequest is an announcement to fan out.
type BroadcastRequest struct {
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	TargetRole Audience `json:"target_role"`
	Grade      string   `json:"grade"`
	Subject    string   `json:"subject"`
}

// BroadcastResult reports how many notifications were written.
type BroadcastResult struct {
	Sent           int    `json:"sent"`
	AnnouncementID string `json:"announcement_id"`
}
