package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

func newAdminService(f *fixture) *AdminService {
	return NewAdminService(f.teachers, f.students, validation.DefaultSchool, nil, nil)
}

func TestCreateTeacherAssignsNextIDAndHashesPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTeacher(t, "T001", "English")
	f.addTeacher(t, "T004", "History")
	svc := newAdminService(f)

	created, err := svc.CreateTeacher(ctx, models.TeacherRequest{
		Name: " Anita Rao ", Email: "anita@tuition.com", Subject: "science", Phone: "+94 77 000 0000", Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "T005", created.ID)
	assert.Equal(t, "Anita Rao", created.Name)
	assert.Equal(t, "Science", created.Subject)
	assert.Empty(t, created.PasswordHash)

	stored, err := f.teachers.FindByID(ctx, "T005")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")))

	list, err := svc.ListTeachers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, tc := range list {
		assert.Empty(t, tc.PasswordHash)
	}
}

func TestCreateTeacherRejectsTakenEmailOrSubject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTeacher(t, "T001", "English")
	svc := newAdminService(f)

	_, err := svc.CreateTeacher(ctx, models.TeacherRequest{Name: "A", Email: "t001@tuition.com", Subject: "Tamil", Phone: "1", Password: "secret1"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))

	_, err = svc.CreateTeacher(ctx, models.TeacherRequest{Name: "A", Email: "new@tuition.com", Subject: "English", Phone: "1", Password: "secret1"})
	require.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	assert.Contains(t, err.Error(), "English already has a teacher assigned")

	_, err = svc.CreateTeacher(ctx, models.TeacherRequest{Name: "A", Email: "new@tuition.com", Subject: "Tamil", Phone: "1"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	_, err = svc.CreateTeacher(ctx, models.TeacherRequest{Name: "A", Email: "new@tuition.com", Subject: "Art", Phone: "1", Password: "secret1"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestUpdateAndDeleteTeacher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addTeacher(t, "T001", "English")
	f.addTeacher(t, "T002", "Tamil")
	svc := newAdminService(f)

	updated, err := svc.UpdateTeacher(ctx, "T002", models.TeacherRequest{Name: "Kumar Raj", Email: "kumar@tuition.com", Subject: "Tamil", Phone: "2"})
	require.NoError(t, err)
	assert.Equal(t, "kumar@tuition.com", updated.Email)

	_, err = svc.UpdateTeacher(ctx, "T002", models.TeacherRequest{Name: "Kumar Raj", Email: "kumar@tuition.com", Subject: "English", Phone: "2"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))

	_, err = svc.UpdateTeacher(ctx, "T404", models.TeacherRequest{Name: "X", Email: "x@tuition.com", Subject: "History", Phone: "2"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))

	require.NoError(t, svc.DeleteTeacher(ctx, "T001"))
	assert.True(t, appErrors.HasCode(svc.DeleteTeacher(ctx, "T001"), appErrors.ErrNotFound))

	list, err := svc.ListTeachers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "T002", list[0].ID)
}

func TestAdminListsAndDeletesStudents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, "S1", 7, "Mathematics")
	f.addStudent(t, "S2", 8, "Mathematics")
	f.addStudent(t, "S3", 7, "English")
	svc := newAdminService(f)

	items, err := svc.ListStudents(ctx, models.StudentFilter{Grade: 7, Subject: "mathematics"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "S1", items[0].ID)

	require.NoError(t, svc.DeleteStudent(ctx, "S1"))
	assert.True(t, appErrors.HasCode(svc.DeleteStudent(ctx, "S1"), appErrors.ErrStudentNotFound))

	items, err = svc.ListStudents(ctx, models.StudentFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
