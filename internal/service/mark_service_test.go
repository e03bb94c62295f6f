package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-center-api/internal/models"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
)

func newMarkService(f *fixture) *MarkService {
	return NewMarkService(f.marks, f.students, newNotificationService(f), nil, nil)
}

func TestUploadMarksNotifiesEachMarkedStudent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, "S1", 7, "Mathematics")
	f.addStudent(t, "S2", 7, "Mathematics", "Science")
	f.addStudent(t, "S3", 7, "Mathematics")
	f.addStudent(t, "S4", 7, "English")
	svc := newMarkService(f)

	res, err := svc.Upload(ctx, mathTeacher, models.UploadMarksRequest{
		Grade: 7,
		Term:  models.Term1,
		Entries: []models.MarkEntry{
			{StudentID: "S1", Marks: 92},
			{StudentID: "S2", Marks: 0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Notified)
	require.Len(t, res.Marks, 2)
	assert.Equal(t, "Mathematics", res.Marks[0].Subject)

	items := allNotifications(t, f)
	require.Len(t, items, 2)
	targets := []string{items[0].TargetID, items[1].TargetID}
	assert.ElementsMatch(t, []string{"S1", "S2"}, targets)
	assert.Equal(t, models.NotificationMarks, items[0].Type)
	assert.Equal(t, "New Marks Uploaded", items[0].Title)
	assert.Equal(t, "Mr. Kumar uploaded marks for Mathematics - Term 1", items[0].Message)
}

func TestUploadMarksReplacesSameTerm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, "S1", 7, "Mathematics")
	svc := newMarkService(f)

	first, err := svc.Upload(ctx, mathTeacher, models.UploadMarksRequest{Grade: 7, Term: models.Term1, Entries: []models.MarkEntry{{StudentID: "S1", Marks: 40}}})
	require.NoError(t, err)
	second, err := svc.Upload(ctx, mathTeacher, models.UploadMarksRequest{Grade: 7, Term: models.Term1, Entries: []models.MarkEntry{{StudentID: "S1", Marks: 75}}})
	require.NoError(t, err)
	_, err = svc.Upload(ctx, mathTeacher, models.UploadMarksRequest{Grade: 7, Term: models.Term2, Entries: []models.MarkEntry{{StudentID: "S1", Marks: 60}}})
	require.NoError(t, err)

	assert.Equal(t, first.Marks[0].ID, second.Marks[0].ID)
	items, err := svc.List(ctx, mathTeacher, models.MarkFilter{Term: models.Term1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 75, items[0].Marks)

	all, err := svc.List(ctx, mathTeacher, models.MarkFilter{Grade: 7})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUploadMarksRejectsBadEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, "S1", 7, "Mathematics")
	f.addStudent(t, "S2", 8, "Mathematics")
	f.addStudent(t, "S3", 7, "English")
	svc := newMarkService(f)

	cases := []struct {
		name string
		req  models.UploadMarksRequest
	}{
		{"no entries", models.UploadMarksRequest{Grade: 7, Term: models.Term1}},
		{"over 100", models.UploadMarksRequest{Grade: 7, Term: models.Term1, Entries: []models.MarkEntry{{StudentID: "S1", Marks: 101}}}},
		{"negative", models.UploadMarksRequest{Grade: 7, Term: models.Term1, Entries: []models.MarkEntry{{StudentID: "S1", Marks: -1}}}},
		{"unknown term", models.UploadMarksRequest{Grade: 7, Term: "Midterm", Entries: []models.MarkEntry{{StudentID: "S1", Marks: 50}}}},
		{"other grade", models.UploadMarksRequest{Grade: 7, Term: models.Term1, Entries: []models.MarkEntry{{StudentID: "S2", Marks: 50}}}},
		{"other subject", models.UploadMarksRequest{Grade: 7, Term: models.Term1, Entries: []models.MarkEntry{{StudentID: "S3", Marks: 50}}}},
		{"duplicate", models.UploadMarksRequest{Grade: 7, Term: models.Term1, Entries: []models.MarkEntry{{StudentID: "S1", Marks: 50}, {StudentID: "S1", Marks: 60}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, mathTeacher, tc.req)
			assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation), "%v", err)
		})
	}

	_, err := svc.Upload(ctx, models.Actor{ID: "A001", Role: models.RoleAdmin}, cases[1].req)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
	assert.Empty(t, allNotifications(t, f))
}

func TestReportCardGradesEachSubject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, "S1", 7, "Mathematics", "Science", "English")
	science := models.Actor{ID: "T005", Name: "Dr. Silva", Role: models.RoleTeacher, Subject: "Science"}
	english := models.Actor{ID: "T001", Name: "Ms. Williams", Role: models.RoleTeacher, Subject: "English"}
	svc := newMarkService(f)

	for actor, mark := range map[models.Actor]int{mathTeacher: 95, science: 72, english: 38} {
		_, err := svc.Upload(ctx, actor, models.UploadMarksRequest{Grade: 7, Term: models.TermFinal, Entries: []models.MarkEntry{{StudentID: "S1", Marks: mark}}})
		require.NoError(t, err)
	}

	card, err := svc.ReportCard(ctx, parentActor, "S1", models.TermFinal)
	require.NoError(t, err)
	require.Len(t, card.Subjects, 3)
	assert.Equal(t, models.ReportCardLine{Subject: "English", Marks: 38, LetterGrade: "F", Remark: "Needs Improvement"}, card.Subjects[0])
	assert.Equal(t, models.ReportCardLine{Subject: "Mathematics", Marks: 95, LetterGrade: "A+", Remark: "Excellent"}, card.Subjects[1])
	assert.Equal(t, models.ReportCardLine{Subject: "Science", Marks: 72, LetterGrade: "B+", Remark: "Good"}, card.Subjects[2])
	assert.Equal(t, 205, card.Total)
	assert.Equal(t, 68.33, card.Average)
	assert.Equal(t, "B", card.OverallGrade)

	empty, err := svc.ReportCard(ctx, admin, "S1", models.Term2)
	require.NoError(t, err)
	assert.Empty(t, empty.Subjects)
	assert.Zero(t, empty.Average)
	assert.Empty(t, empty.OverallGrade)

	_, err = svc.ReportCard(ctx, models.Actor{ID: "P2", Role: models.RoleParent}, "S1", models.TermFinal)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
	_, err = svc.ReportCard(ctx, parentActor, "S1", "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
	_, err = svc.ReportCard(ctx, parentActor, "S9", models.TermFinal)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrStudentNotFound))
}

func TestLetterGradeBoundaries(t *testing.T) {
	cases := []struct {
		score  float64
		letter string
	}{
		{100, "A+"}, {90, "A+"}, {89.99, "A"}, {80, "A"}, {70, "B+"}, {60, "B"}, {50, "C"}, {40, "D"}, {39.5, "F"}, {0, "F"},
	}
	for _, tc := range cases {
		letter, _ := letterGrade(tc.score)
		assert.Equal(t, tc.letter, letter, "score %v", tc.score)
	}
}
