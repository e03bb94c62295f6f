package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/pkg/store"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("repository: duplicate record")
)

// StudentRepository persists students.
type StudentRepository struct {
	c collection[models.Student]
}

func NewStudentRepository(s store.Store, v *validator.Validate) *StudentRepository {
	return &StudentRepository{c: newCollection[models.Student](s, store.Students, v)}
}

func (r *StudentRepository) List(ctx context.Context) ([]models.Student, error) {
	return r.c.all(ctx)
}

// ListEligible returns students in grade who take subject.
func (r *StudentRepository) ListEligible(ctx context.Context, grade int, subject string) ([]models.Student, error) {
	return r.c.filter(ctx, func(s models.Student) bool {
		return s.Grade == grade && s.TakesSubject(subject)
	})
}

// ListMatching returns students matching an optional grade and subject.
// A zero grade or empty subject matches everything on that axis.
func (r *StudentRepository) ListMatching(ctx context.Context, grade int, subject string) ([]models.Student, error) {
	return r.c.filter(ctx, func(s models.Student) bool {
		return (grade == 0 || s.Grade == grade) && (subject == "" || s.TakesSubject(subject))
	})
}

func (r *StudentRepository) ListByParent(ctx context.Context, parentID string) ([]models.Student, error) {
	return r.c.filter(ctx, func(s models.Student) bool { return s.ParentID == parentID })
}

func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok, err := r.c.first(ctx, func(s models.Student) bool { return s.ID == id })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *StudentRepository) Create(ctx context.Context, student models.Student) error {
	return r.c.mutate(ctx, func(items []models.Student) ([]models.Student, error) {
		for _, s := range items {
			if s.ID == student.ID {
				return nil, ErrDuplicate
			}
		}
		return append(items, student), nil
	})
}

// AddSubjects appends subjects to a student and returns the updated record.
// fn receives the stored record and returns the subjects to add.
func (r *StudentRepository) AddSubjects(ctx context.Context, id string, fn func(models.Student) ([]string, error)) (*models.Student, error) {
	var updated *models.Student
	err := r.c.mutate(ctx, func(items []models.Student) ([]models.Student, error) {
		for i := range items {
			if items[i].ID != id {
				continue
			}
			add, err := fn(items[i])
			if err != nil {
				return nil, err
			}
			items[i].Subjects = append(items[i].Subjects, add...)
			s := items[i]
			updated = &s
			return items, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the student with id.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	return r.c.mutate(ctx, func(items []models.Student) ([]models.Student, error) {
		for i := range items {
			if items[i].ID == id {
				return append(items[:i], items[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
}

// TeacherRepository persists teachers.
type TeacherRepository struct {
	c collection[models.Teacher]
}

func NewTeacherRepository(s store.Store, v *validator.Validate) *TeacherRepository {
	return &TeacherRepository{c: newCollection[models.Teacher](s, store.Teachers, v)}
}

func (r *TeacherRepository) List(ctx context.Context) ([]models.Teacher, error) {
	return r.c.all(ctx)
}

func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	t, ok, err := r.c.first(ctx, func(t models.Teacher) bool { return t.ID == id })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (r *TeacherRepository) FindByEmail(ctx context.Context, email string) (*models.Teacher, error) {
	t, ok, err := r.c.first(ctx, func(t models.Teacher) bool { return strings.EqualFold(t.Email, email) })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// Create stores teacher unless its ID or email is taken.
func (r *TeacherRepository) Create(ctx context.Context, teacher models.Teacher) error {
	return r.c.mutate(ctx, func(items []models.Teacher) ([]models.Teacher, error) {
		for _, t := range items {
			if t.ID == teacher.ID || strings.EqualFold(t.Email, teacher.Email) {
				return nil, ErrDuplicate
			}
		}
		return append(items, teacher), nil
	})
}

// Update applies fn to the stored teacher and returns the result. fn sees
// the other teachers so it can check uniqueness.
func (r *TeacherRepository) Update(ctx context.Context, id string, fn func(t *models.Teacher, others []models.Teacher) error) (*models.Teacher, error) {
	var updated *models.Teacher
	err := r.c.mutate(ctx, func(items []models.Teacher) ([]models.Teacher, error) {
		for i := range items {
			if items[i].ID != id {
				continue
			}
			others := make([]models.Teacher, 0, len(items)-1)
			others = append(others, items[:i]...)
			others = append(others, items[i+1:]...)
			if err := fn(&items[i], others); err != nil {
				return nil, err
			}
			t := items[i]
			updated = &t
			return items, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *TeacherRepository) Delete(ctx context.Context, id string) error {
	return r.c.mutate(ctx, func(items []models.Teacher) ([]models.Teacher, error) {
		for i := range items {
			if items[i].ID == id {
				return append(items[:i], items[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
}

// Seed inserts teachers whose IDs are not stored yet and returns how many
// were added.
func (r *TeacherRepository) Seed(ctx context.Context, teachers []models.Teacher) (int, error) {
	added := 0
	err := r.c.mutate(ctx, func(items []models.Teacher) ([]models.Teacher, error) {
		added = 0
		seen := make(map[string]struct{}, len(items))
		for _, t := range items {
			seen[t.ID] = struct{}{}
		}
		for _, t := range teachers {
			if _, ok := seen[t.ID]; ok {
				continue
			}
			items = append(items, t)
			added++
		}
		return items, nil
	})
	return added, err
}

// ParentRepository persists parents.
type ParentRepository struct {
	c collection[models.Parent]
}

func NewParentRepository(s store.Store, v *validator.Validate) *ParentRepository {
	return &ParentRepository{c: newCollection[models.Parent](s, store.Parents, v)}
}

func (r *ParentRepository) FindByID(ctx context.Context, id string) (*models.Parent, error) {
	p, ok, err := r.c.first(ctx, func(p models.Parent) bool { return p.ID == id })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *ParentRepository) FindByEmail(ctx context.Context, email string) (*models.Parent, error) {
	p, ok, err := r.c.first(ctx, func(p models.Parent) bool { return strings.EqualFold(p.Email, email) })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// Create stores parent unless the email is taken.
func (r *ParentRepository) Create(ctx context.Context, parent models.Parent) error {
	return r.c.mutate(ctx, func(items []models.Parent) ([]models.Parent, error) {
		for _, p := range items {
			if strings.EqualFold(p.Email, parent.Email) {
				return nil, ErrDuplicate
			}
		}
		return append(items, parent), nil
	})
}
