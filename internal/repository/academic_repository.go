package repository

import (
	"context"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/pkg/store"
)

// MarkRepository persists marks keyed by student, subject and term.
type MarkRepository struct {
	c collection[models.Mark]
}

func NewMarkRepository(s store.Store, v *validator.Validate) *MarkRepository {
	return &MarkRepository{c: newCollection[models.Mark](s, store.Marks, v)}
}

// Upsert writes marks in one update. A mark for an existing student, subject
// and term replaces the stored one and keeps its ID. The stored marks are
// returned in input order.
func (r *MarkRepository) Upsert(ctx context.Context, marks []models.Mark) ([]models.Mark, error) {
	out := make([]models.Mark, len(marks))
	err := r.c.mutate(ctx, func(items []models.Mark) ([]models.Mark, error) {
		index := make(map[[3]string]int, len(items))
		for i, m := range items {
			index[markKey(m)] = i
		}
		for i, m := range marks {
			if at, ok := index[markKey(m)]; ok {
				m.ID = items[at].ID
				items[at] = m
			} else {
				index[markKey(m)] = len(items)
				items = append(items, m)
			}
			out[i] = m
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func markKey(m models.Mark) [3]string {
	return [3]string{m.StudentID, m.Subject, string(m.Term)}
}

// List returns the marks keep accepts, ordered by subject.
func (r *MarkRepository) List(ctx context.Context, keep func(models.Mark) bool) ([]models.Mark, error) {
	items, err := r.c.filter(ctx, keep)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Subject < items[j].Subject })
	return items, nil
}

// ChatRepository persists teacher and parent messages.
type ChatRepository struct {
	c collection[models.ChatMessage]
}

func NewChatRepository(s store.Store, v *validator.Validate) *ChatRepository {
	return &ChatRepository{c: newCollection[models.ChatMessage](s, store.Chats, v)}
}

func (r *ChatRepository) Create(ctx context.Context, m models.ChatMessage) error {
	return r.c.appendAll(ctx, m)
}

// List returns the messages keep accepts, oldest first.
func (r *ChatRepository) List(ctx context.Context, keep func(models.ChatMessage) bool) ([]models.ChatMessage, error) {
	items, err := r.c.filter(ctx, keep)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.Before(items[j].Timestamp) })
	return items, nil
}

// MarkRead flags the messages match accepts as read and returns how many
// changed.
func (r *ChatRepository) MarkRead(ctx context.Context, match func(models.ChatMessage) bool) (int, error) {
	changed := 0
	err := r.c.mutate(ctx, func(items []models.ChatMessage) ([]models.ChatMessage, error) {
		changed = 0
		for i := range items {
			if !items[i].Read && match(items[i]) {
				items[i].Read = true
				changed++
			}
		}
		return items, nil
	})
	return changed, err
}
