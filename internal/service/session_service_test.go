package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
	"github.com/noah-isme/tuition-center-api/pkg/qrcodec"
)

var mathTeacher = models.Actor{ID: "T003", Name: "Mr. Kumar", Role: models.RoleTeacher, Subject: "Mathematics"}

func newSessionService(f *fixture) *SessionService {
	return NewSessionService(f.students, f.attendance, f.codec, validation.DefaultSchool, f.events, NewMetricsService(), nil)
}

func startMath7(t *testing.T, svc *SessionService) *models.SessionSnapshot {
	t.Helper()
	snap, err := svc.Start(context.Background(), mathTeacher, models.StartSessionRequest{Grade: 7, Date: "2024-03-01", Time: "16:00"})
	require.NoError(t, err)
	return snap
}

func TestSessionScenarioScanRescanAbsentEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s010 := f.addStudent(t, "S010", 7, "Mathematics")
	f.addStudent(t, "S011", 7, "Mathematics", "English")
	f.addStudent(t, "S012", 7, "Mathematics")
	svc := newSessionService(f)

	snap := startMath7(t, svc)
	assert.Len(t, snap.Eligible, 3)
	assert.Equal(t, "2024-03-01T16:00", snap.SessionStart)

	qr, err := f.codec.Encode(qrcodec.Identity{ID: s010.ID, Name: s010.Name, Grade: s010.Grade})
	require.NoError(t, err)

	rec, err := svc.MarkScanned(ctx, snap.ID, qr.Payload)
	require.NoError(t, err)
	assert.Equal(t, "S010", rec.StudentID)
	assert.Equal(t, models.AttendancePresent, rec.Status)
	assert.Equal(t, models.SourceScan, rec.Source)

	_, err = svc.MarkScanned(ctx, snap.ID, qr.Payload)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrAlreadyMarked))
	assert.Len(t, f.records(t), 1)

	rec, err = svc.MarkAbsent(ctx, snap.ID, "S011")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceAbsent, rec.Status)

	summary, err := svc.End(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PresentCount)
	assert.Equal(t, 1, summary.AbsentCount)
	assert.Equal(t, 1, summary.UnmarkedCount)
	assert.Equal(t, 3, summary.EligibleCount)
	assert.Len(t, f.records(t), 2)

	_, err = svc.MarkPresent(ctx, snap.ID, "S012", models.SourceManual)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSessionNotActive))
}

func TestSessionStartValidation(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(f)
	ctx := context.Background()

	cases := []models.StartSessionRequest{
		{Time: "16:00"},
		{Grade: 7},
		{Grade: 9, Time: "16:00"},
		{Grade: 7, Time: "4pm"},
		{Grade: 7, Time: "16:00", Date: "01/03/2024"},
	}
	for _, req := range cases {
		_, err := svc.Start(ctx, mathTeacher, req)
		assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidSessionParams), "%+v", req)
	}

	_, err := svc.Start(ctx, models.Actor{ID: "A001", Role: models.RoleAdmin}, models.StartSessionRequest{Grade: 7, Time: "16:00"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestSessionOnePerTeacher(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(f)
	snap := startMath7(t, svc)

	_, err := svc.Start(context.Background(), mathTeacher, models.StartSessionRequest{Grade: 8, Time: "17:00"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSessionConflict))

	active, err := svc.ActiveForTeacher(mathTeacher.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, active.ID)

	assert.NoError(t, svc.Authorize(snap.ID, mathTeacher.ID))
	assert.True(t, appErrors.HasCode(svc.Authorize(snap.ID, "T001"), appErrors.ErrForbidden))
}

func TestMarkRejectsIneligibleStudentsWithoutWriting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, "S1", 8, "Mathematics")
	f.addStudent(t, "S2", 7, "English")
	svc := newSessionService(f)
	snap := startMath7(t, svc)

	_, err := svc.MarkPresent(ctx, snap.ID, "S1", models.SourceManual)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrGradeMismatch))

	_, err = svc.MarkPresent(ctx, snap.ID, "S2", models.SourceManual)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSubjectMismatch))

	_, err = svc.MarkAbsent(ctx, snap.ID, "ghost")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrStudentNotFound))

	assert.Empty(t, f.records(t))
	assert.Contains(t, f.events.types(), models.EventRejected)
}

func TestMarkRejectsStudentAddedAfterStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newSessionService(f)
	snap := startMath7(t, svc)

	f.addStudent(t, "LATE", 7, "Mathematics")
	_, err := svc.MarkPresent(ctx, snap.ID, "LATE", models.SourceManual)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotOnRoster))
	assert.Empty(t, f.records(t))
}

func TestMarkScannedMalformedPayload(t *testing.T) {
	f := newFixture(t)
	svc := newSessionService(f)
	snap := startMath7(t, svc)

	_, err := svc.MarkScanned(context.Background(), snap.ID, "not json")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrMalformedPayload))
	assert.Contains(t, f.events.types(), models.EventInvalidPayload)
}

func TestConcurrentMarksWriteOneRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, "S1", 7, "Mathematics")
	svc := newSessionService(f)
	snap := startMath7(t, svc)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = svc.MarkPresent(ctx, snap.ID, "S1", models.SourceScan)
			} else {
				_, err = svc.MarkAbsent(ctx, snap.ID, "S1")
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, f.records(t), 1)

	got, err := svc.Get(snap.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.Marks), len(got.Eligible))
}

func TestEndRunsHooksAndSummaryAddsUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addStudent(t, "S1", 7, "Mathematics")
	f.addStudent(t, "S2", 7, "Mathematics")
	svc := newSessionService(f)

	var ended []string
	svc.OnEnd(func(id string) { ended = append(ended, id) })

	snap := startMath7(t, svc)
	_, err := svc.MarkPresent(ctx, snap.ID, "S1", models.SourceManual)
	require.NoError(t, err)
	_, err = svc.MarkAbsent(ctx, snap.ID, "S2")
	require.NoError(t, err)

	summary, err := svc.End(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, summary.EligibleCount, summary.PresentCount+summary.AbsentCount)
	assert.Equal(t, []string{snap.ID}, ended)

	_, err = svc.End(ctx, snap.ID)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSessionNotActive))

	_, err = svc.Start(ctx, mathTeacher, models.StartSessionRequest{Grade: 7, Time: "18:00"})
	assert.NoError(t, err)
}
