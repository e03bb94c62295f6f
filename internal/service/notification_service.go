package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

type notificationStudentRepository interface {
	ListMatching(ctx context.Context, grade int, subject string) ([]models.Student, error)
	ListByParent(ctx context.Context, parentID string) ([]models.Student, error)
}

type notificationTeacherRepository interface {
	List(ctx context.Context) ([]models.Teacher, error)
}

type notificationRepository interface {
	AppendBatch(ctx context.Context, items []models.Notification) error
	List(ctx context.Context, keep func(models.Notification) bool) ([]models.Notification, error)
}

type announcementRepository interface {
	Create(ctx context.Context, a models.Announcement) error
	ListBySender(ctx context.Context, senderID string) ([]models.Announcement, error)
}

// NotificationService fans messages out into one notification per recipient.
type NotificationService struct {
	students      notificationStudentRepository
	teachers      notificationTeacherRepository
	notifications notificationRepository
	announcements announcementRepository
	school        validation.School
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(students notificationStudentRepository, teachers notificationTeacherRepository, notifications notificationRepository, announcements announcementRepository, school validation.School, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(school.Subjects) == 0 {
		school = validation.DefaultSchool
	}
	return &NotificationService{
		students:      students,
		teachers:      teachers,
		notifications: notifications,
		announcements: announcements,
		school:        school,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

type audience struct {
	role    models.Audience
	grade   string
	subject string
	ids     []string
}

// Broadcast sends an announcement from author to the selected audience.
func (s *NotificationService) Broadcast(ctx context.Context, author models.Actor, req models.BroadcastRequest) (*models.BroadcastResult, error) {
	title := strings.TrimSpace(req.Title)
	message := strings.TrimSpace(req.Message)
	if title == "" || message == "" {
		return nil, appErrors.Clone(appErrors.ErrEmptyMessage, "")
	}

	aud, err := s.resolveAudience(ctx, author, req)
	if err != nil {
		return nil, err
	}
	if len(aud.ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoRecipients, "")
	}

	now := s.now().UTC()
	items := make([]models.Notification, 0, len(aud.ids))
	for _, id := range aud.ids {
		items = append(items, models.Notification{
			ID:         uuid.NewString(),
			Type:       models.NotificationAnnouncement,
			Title:      title,
			Message:    message,
			SenderName: author.Name,
			SenderRole: string(author.Role.Audience()),
			Timestamp:  now,
			TargetRole: aud.role,
			TargetID:   id,
		})
	}
	if err := s.notifications.AppendBatch(ctx, items); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save notifications")
	}
	s.metrics.RecordNotifications(string(models.NotificationAnnouncement), string(aud.role), len(items))

	announcement := models.Announcement{
		ID:             uuid.NewString(),
		Title:          title,
		Message:        message,
		SenderID:       author.ID,
		SenderName:     author.Name,
		SenderRole:     string(author.Role.Audience()),
		SenderSubject:  author.Subject,
		TargetAudience: aud.role,
		Grade:          aud.grade,
		Subject:        aud.subject,
		RecipientCount: len(items),
		Timestamp:      now,
	}
	if err := s.announcements.Create(ctx, announcement); err != nil {
		// Notifications are already delivered; the announcement log is secondary.
		s.logger.Error("failed to save announcement record", zap.String("sender_id", author.ID), zap.Error(err))
		announcement.ID = ""
	}

	s.logger.Info("announcement broadcast",
		zap.String("sender_id", author.ID),
		zap.String("target_role", string(aud.role)),
		zap.Int("recipients", len(items)),
	)
	return &models.BroadcastResult{Sent: len(items), AnnouncementID: announcement.ID}, nil
}

func (s *NotificationService) resolveAudience(ctx context.Context, author models.Actor, req models.BroadcastRequest) (audience, error) {
	target := models.Audience(strings.ToLower(strings.TrimSpace(string(req.TargetRole))))
	subject := strings.TrimSpace(req.Subject)

	switch author.Role {
	case models.RoleAdmin:
		if target != models.AudienceTeacher && target != models.AudienceStudent {
			return audience{}, appErrors.Clone(appErrors.ErrValidation, "target_role must be teacher or student")
		}
	case models.RoleTeacher:
		if target == "" {
			target = models.AudienceStudent
		}
		if target != models.AudienceStudent {
			return audience{}, appErrors.Clone(appErrors.ErrForbidden, "teachers can only notify students")
		}
		if subject != "" && !strings.EqualFold(subject, "all") && !strings.EqualFold(subject, author.Subject) {
			return audience{}, appErrors.Clone(appErrors.ErrForbidden, "teachers can only notify students of their own subject")
		}
		subject = author.Subject
	default:
		return audience{}, appErrors.Clone(appErrors.ErrForbidden, "only admins and teachers can send announcements")
	}

	if target == models.AudienceTeacher {
		teachers, err := s.teachers.List(ctx)
		if err != nil {
			return audience{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
		}
		aud := audience{role: target, grade: "all", subject: "all"}
		for _, t := range teachers {
			aud.ids = append(aud.ids, t.ID)
		}
		return aud, nil
	}

	grade, allGrades, ok := s.school.ParseGradeFilter(req.Grade)
	if !ok {
		return audience{}, appErrors.Clone(appErrors.ErrValidation, "grade must be \"all\" or a taught grade")
	}
	subjectFilter := ""
	if subject != "" && !strings.EqualFold(subject, "all") {
		subjectFilter = s.school.Canonical(subject)
		if subjectFilter == "" {
			return audience{}, appErrors.Clone(appErrors.ErrValidation, "unknown subject")
		}
	}

	students, err := s.students.ListMatching(ctx, grade, subjectFilter)
	if err != nil {
		return audience{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	aud := audience{role: target, grade: "all", subject: "all"}
	if !allGrades {
		aud.grade = req.Grade
	}
	if subjectFilter != "" {
		aud.subject = subjectFilter
	}
	for _, st := range students {
		aud.ids = append(aud.ids, st.ID)
	}
	return aud, nil
}

// Notify stores a single notification, filling in its ID and timestamp.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = s.now().UTC()
	}
	if err := s.notifications.AppendBatch(ctx, []models.Notification{n}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save notification")
	}
	s.metrics.RecordNotifications(string(n.Type), string(n.TargetRole), 1)
	return nil
}

// NotifyStudents notifies every student in grade taking subject. An empty
// audience is not an error here and returns 0.
func (s *NotificationService) NotifyStudents(ctx context.Context, sender models.Actor, kind models.NotificationType, title, message string, grade int, subject string) (int, error) {
	students, err := s.students.ListMatching(ctx, grade, subject)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	return s.NotifyStudentIDs(ctx, sender, kind, title, message, ids)
}

// NotifyStudentIDs writes one student notification per id in a single batch.
func (s *NotificationService) NotifyStudentIDs(ctx context.Context, sender models.Actor, kind models.NotificationType, title, message string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := s.now().UTC()
	items := make([]models.Notification, 0, len(ids))
	for _, id := range ids {
		items = append(items, models.Notification{
			ID:         uuid.NewString(),
			Type:       kind,
			Title:      title,
			Message:    message,
			SenderName: sender.Name,
			SenderRole: string(sender.Role.Audience()),
			Timestamp:  now,
			TargetRole: models.AudienceStudent,
			TargetID:   id,
		})
	}
	if err := s.notifications.AppendBatch(ctx, items); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save notifications")
	}
	s.metrics.RecordNotifications(string(kind), string(models.AudienceStudent), len(items))
	return len(items), nil
}

// Sent lists the announcements author has broadcast, newest first.
func (s *NotificationService) Sent(ctx context.Context, author models.Actor) ([]models.Announcement, error) {
	items, err := s.announcements.ListBySender(ctx, author.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcements")
	}
	return items, nil
}

// ListFor returns the notifications visible to actor, newest first. Parents
// also see notifications addressed to their children.
func (s *NotificationService) ListFor(ctx context.Context, actor models.Actor, filter models.NotificationFilter) ([]models.Notification, error) {
	var keep func(models.Notification) bool
	switch actor.Role {
	case models.RoleAdmin:
		keep = func(n models.Notification) bool { return n.TargetRole == models.AudienceAdmin }
	case models.RoleTeacher:
		keep = func(n models.Notification) bool {
			return n.TargetRole == models.AudienceTeacher && (n.TargetID == "" || n.TargetID == actor.ID)
		}
	case models.RoleParent:
		children, err := s.students.ListByParent(ctx, actor.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
		}
		ids := make(map[string]struct{}, len(children))
		for _, c := range children {
			ids[c.ID] = struct{}{}
		}
		keep = func(n models.Notification) bool {
			switch n.TargetRole {
			case models.AudienceParent:
				return n.TargetID == "" || n.TargetID == actor.ID
			case models.AudienceStudent:
				_, ok := ids[n.TargetID]
				return ok
			}
			return false
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}

	items, err := s.notifications.List(ctx, func(n models.Notification) bool {
		return keep(n) && (filter.Type == "" || n.Type == filter.Type)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notifications")
	}
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}
