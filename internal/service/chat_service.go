package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/repository"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

const maxChatMessage = 2000

type chatRepository interface {
	Create(ctx context.Context, m models.ChatMessage) error
	List(ctx context.Context, keep func(models.ChatMessage) bool) ([]models.ChatMessage, error)
	MarkRead(ctx context.Context, match func(models.ChatMessage) bool) (int, error)
}

type chatStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type chatTeacherRepository interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type chatParentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Parent, error)
}

// ChatService carries messages between teachers and parents.
type ChatService struct {
	chats    chatRepository
	students chatStudentRepository
	teachers chatTeacherRepository
	parents  chatParentRepository
	notifier notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewChatService(chats chatRepository, students chatStudentRepository, teachers chatTeacherRepository, parents chatParentRepository, notifier notifier, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{chats: chats, students: students, teachers: teachers, parents: parents, notifier: notifier, logger: logger, now: time.Now}
}

// Send stores a message and notifies its recipient. A teacher writes to the
// parent of a student taking their subject; a parent writes to any teacher,
// optionally about one of their own children.
func (s *ChatService) Send(ctx context.Context, sender models.Actor, req models.SendChatRequest) (*models.ChatMessage, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, appErrors.Clone(appErrors.ErrEmptyMessage, "Please enter a message")
	}
	if utf8.RuneCountInString(text) > maxChatMessage {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("message must be at most %d characters", maxChatMessage))
	}

	msg := models.ChatMessage{
		ID:        "CHAT" + uuid.NewString(),
		Message:   text,
		Sender:    sender.Role.Audience(),
		Timestamp: s.now().UTC(),
	}
	var recipient models.Notification
	switch sender.Role {
	case models.RoleTeacher:
		if req.StudentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
		}
		st, err := s.student(ctx, req.StudentID)
		if err != nil {
			return nil, err
		}
		if !st.TakesSubject(sender.Subject) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student does not take your subject")
		}
		parent, err := s.parents.FindByID(ctx, st.ParentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "Parent information not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
		}
		msg.TeacherID, msg.TeacherName, msg.Subject = sender.ID, sender.Name, sender.Subject
		msg.ParentID, msg.ParentName = parent.ID, parent.Name
		msg.StudentID, msg.StudentName = st.ID, st.Name
		recipient = models.Notification{TargetRole: models.AudienceParent, TargetID: parent.ID}
	case models.RoleParent:
		if req.TeacherID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher_id is required")
		}
		teacher, err := s.teachers.FindByID(ctx, req.TeacherID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
		}
		if req.StudentID != "" {
			st, err := s.student(ctx, req.StudentID)
			if err != nil {
				return nil, err
			}
			if st.ParentID != sender.ID {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another parent")
			}
			msg.StudentID, msg.StudentName = st.ID, st.Name
		}
		msg.TeacherID, msg.TeacherName, msg.Subject = teacher.ID, teacher.Name, teacher.Subject
		msg.ParentID, msg.ParentName = sender.ID, sender.Name
		recipient = models.Notification{TargetRole: models.AudienceTeacher, TargetID: teacher.ID}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers and parents can chat")
	}

	if err := s.chats.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save message")
	}

	recipient.Type = models.NotificationChat
	recipient.Title = "New Message"
	recipient.Message = fmt.Sprintf("%s sent you a message", sender.Name)
	recipient.SenderName = sender.Name
	recipient.SenderRole = string(sender.Role.Audience())
	if err := s.notifier.Notify(ctx, recipient); err != nil {
		s.logger.Warn("chat notification failed", zap.String("chat_id", msg.ID), zap.Error(err))
	}
	return &msg, nil
}

// Conversation returns the messages between actor and counterpart, oldest
// first, and marks those addressed to actor as read.
func (s *ChatService) Conversation(ctx context.Context, actor models.Actor, counterpartID string) ([]models.ChatMessage, error) {
	mine, err := s.ownership(actor)
	if err != nil {
		return nil, err
	}
	with := func(m models.ChatMessage) bool { return mine(m) && counterpart(actor, m) == counterpartID }
	items, err := s.chats.List(ctx, with)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load messages")
	}
	self := actor.Role.Audience()
	if _, err := s.chats.MarkRead(ctx, func(m models.ChatMessage) bool { return with(m) && m.Sender != self }); err != nil {
		s.logger.Warn("failed to mark messages read", zap.String("actor_id", actor.ID), zap.Error(err))
	}
	return items, nil
}

// Threads lists one entry per counterpart, most recent first.
func (s *ChatService) Threads(ctx context.Context, actor models.Actor) ([]models.ChatThread, error) {
	mine, err := s.ownership(actor)
	if err != nil {
		return nil, err
	}
	items, err := s.chats.List(ctx, mine)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load messages")
	}
	self := actor.Role.Audience()
	byID := make(map[string]*models.ChatThread)
	for _, m := range items {
		id := counterpart(actor, m)
		th, ok := byID[id]
		if !ok {
			th = &models.ChatThread{CounterpartID: id}
			byID[id] = th
		}
		// items are oldest first
		th.Last = m
		th.CounterpartName = m.ParentName
		if actor.Role == models.RoleParent {
			th.CounterpartName = m.TeacherName
		}
		if m.Sender != self && !m.Read {
			th.Unread++
		}
	}
	out := make([]models.ChatThread, 0, len(byID))
	for _, th := range byID {
		out = append(out, *th)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Last.Timestamp.After(out[j].Last.Timestamp) })
	return out, nil
}

func (s *ChatService) ownership(actor models.Actor) (func(models.ChatMessage) bool, error) {
	switch actor.Role {
	case models.RoleTeacher:
		return func(m models.ChatMessage) bool { return m.TeacherID == actor.ID }, nil
	case models.RoleParent:
		return func(m models.ChatMessage) bool { return m.ParentID == actor.ID }, nil
	}
	return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers and parents can chat")
}

func counterpart(actor models.Actor, m models.ChatMessage) string {
	if actor.Role == models.RoleParent {
		return m.TeacherID
	}
	return m.ParentID
}

func (s *ChatService) student(ctx context.Context, id string) (*models.Student, error) {
	st, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return st, nil
}
