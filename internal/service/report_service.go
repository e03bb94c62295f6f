package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-center-api/internal/models"
	"github.com/noah-isme/tuition-center-api/internal/repository"
	"github.com/noah-isme/tuition-center-api/internal/validation"
	appErrors "github.com/noah-isme/tuition-center-api/pkg/errors"
	"github.com/noah-isme/tuition-center-api/pkg/export"
	"github.com/noah-isme/tuition-center-api/pkg/jobs"
	"github.com/noah-isme/tuition-center-api/pkg/storage"
)

type reportStudentRepository interface {
	ListMatching(ctx context.Context, grade int, subject string) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type reportAttendanceRepository interface {
	List(ctx context.Context, filter repository.AttendanceFilter) ([]models.AttendanceRecord, error)
}

type reportJobStore interface {
	Create(ctx context.Context, job models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	Save(ctx context.Context, job models.ReportJob) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.ReportJob, error)
}

type reportDispatcher interface {
	Enqueue(task jobs.Task[string]) error
}

// ReportServiceConfig governs download links and cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
	DownloadBaseURL string
}

// ReportDownload is an opened export file.
type ReportDownload struct {
	File        io.ReadSeekCloser
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ReportService answers attendance overviews and manages export jobs.
type ReportService struct {
	students   reportStudentRepository
	attendance reportAttendanceRepository
	jobs       reportJobStore
	queue      reportDispatcher
	files      *storage.LocalStorage
	signer     *storage.Signer
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        ReportServiceConfig
	now        func() time.Time
}

// NewReportService constructs the report service. The queue is attached
// with SetQueue once the worker exists.
func NewReportService(students reportStudentRepository, attendance reportAttendanceRepository, jobStore reportJobStore, files *storage.LocalStorage, signer *storage.Signer, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New(validation.DefaultSchool)
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ReportService{
		students:   students,
		attendance: attendance,
		jobs:       jobStore,
		files:      files,
		signer:     signer,
		validator:  validate,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetQueue attaches the export queue.
func (s *ReportService) SetQueue(queue reportDispatcher) {
	s.queue = queue
}

// TeacherOverview aggregates the attendance of the teacher's subject.
func (s *ReportService) TeacherOverview(ctx context.Context, teacher models.Actor, filter models.AttendanceOverviewFilter) (*models.AttendanceOverview, error) {
	if teacher.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only subject teachers have an attendance overview")
	}
	if err := s.validator.Struct(filter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid overview filter")
	}

	records, err := s.attendance.List(ctx, repository.AttendanceFilter{
		Subject:  teacher.Subject,
		Grade:    filter.Grade,
		DateFrom: filter.DateFrom,
		DateTo:   filter.DateTo,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	students, err := s.students.ListMatching(ctx, filter.Grade, teacher.Subject)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}

	overview := &models.AttendanceOverview{
		Subject:  teacher.Subject,
		Students: make([]models.StudentAttendanceLine, 0, len(students)),
		ByDate:   make(map[string][]models.AttendanceRecord),
	}
	perStudent := make(map[string]*models.StudentAttendanceLine, len(students))
	for _, st := range students {
		overview.Students = append(overview.Students, models.StudentAttendanceLine{StudentID: st.ID, StudentName: st.Name, Grade: st.Grade})
	}
	for i := range overview.Students {
		perStudent[overview.Students[i].StudentID] = &overview.Students[i]
	}

	for _, rec := range records {
		overview.Total++
		line := perStudent[rec.StudentID]
		if line != nil {
			line.Total++
		}
		if rec.Status == models.AttendancePresent {
			overview.Present++
			if line != nil {
				line.Present++
			}
		} else {
			overview.Absent++
			if line != nil {
				line.Absent++
			}
		}
		overview.ByDate[rec.Date] = append(overview.ByDate[rec.Date], rec)
	}
	overview.SessionDays = len(overview.ByDate)
	overview.Percentage = percent(overview.Present, overview.Total, 0)
	for i := range overview.Students {
		line := &overview.Students[i]
		line.Percentage = percent(line.Present, line.Total, 0)
	}
	for date := range overview.ByDate {
		day := overview.ByDate[date]
		sort.Slice(day, func(i, j int) bool { return day[i].Timestamp.Before(day[j].Timestamp) })
	}
	return overview, nil
}

// StudentSummary reports a student's attendance per subject. Parents may only
// read their own children.
func (s *ReportService) StudentSummary(ctx context.Context, actor models.Actor, studentID string) (*models.StudentAttendanceSummary, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "Student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if actor.Role == models.RoleParent && student.ParentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another parent")
	}

	records, err := s.attendance.List(ctx, repository.AttendanceFilter{StudentID: student.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	summary := &models.StudentAttendanceSummary{StudentID: student.ID, Subjects: make([]models.SubjectAttendance, 0, len(student.Subjects))}
	for _, subject := range student.Subjects {
		line := models.SubjectAttendance{Subject: subject}
		for _, rec := range records {
			if rec.Subject != subject {
				continue
			}
			line.Total++
			if rec.Status == models.AttendancePresent {
				line.Present++
			}
		}
		line.Percentage = percent(line.Present, line.Total, 1)
		summary.Subjects = append(summary.Subjects, line)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.After(records[j].Timestamp) })
	if len(records) > 10 {
		records = records[:10]
	}
	summary.Recent = records
	return summary, nil
}

// CreateExport persists an export job and queues it.
func (s *ReportService) CreateExport(ctx context.Context, teacher models.Actor, req models.CreateExportRequest) (*models.ReportJob, error) {
	if teacher.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only subject teachers can export attendance")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	if req.DateFrom != "" && req.DateTo != "" && req.DateFrom > req.DateTo {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_from must not be after date_to")
	}
	if s.queue == nil {
		return nil, appErrors.Wrap(fmt.Errorf("report queue missing"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "exports are not available")
	}

	job := models.ReportJob{
		ID:        "RPT" + uuid.NewString(),
		TeacherID: teacher.ID,
		Subject:   teacher.Subject,
		Format:    req.Format,
		Status:    models.ReportStatusQueued,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		CreatedAt: s.now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Task[string]{ID: job.ID, Payload: job.ID}); err != nil {
		now := s.now().UTC()
		job.Status = models.ReportStatusFailed
		job.ErrorMessage = "failed to enqueue job"
		job.FinishedAt = &now
		if saveErr := s.jobs.Save(ctx, job); saveErr != nil {
			s.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(saveErr))
		}
		s.metrics.RecordReportJob(string(models.ReportStatusFailed))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	s.metrics.RecordReportJob(string(models.ReportStatusQueued))
	return &job, nil
}

// ExportStatus returns a job owned by the teacher.
func (s *ReportService) ExportStatus(ctx context.Context, teacher models.Actor, id string) (*models.ReportJob, error) {
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.TeacherID != teacher.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report job belongs to another teacher")
	}
	job.FilePath = ""
	return job, nil
}

// ResolveDownload validates a signed token and opens the export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	grant, err := s.signer.Verify(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}
	job, err := s.jobs.FindByID(ctx, grant.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.Status != models.ReportStatusFinished || job.FilePath != grant.Path {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not available")
	}
	file, err := s.files.Open(grant.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	renderer, err := export.ForFormat(string(job.Format))
	if err != nil {
		_ = file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unknown export format")
	}
	return &ReportDownload{
		File:        file,
		Filename:    fmt.Sprintf("attendance-%s-%s.%s", slug(job.Subject), job.CreatedAt.Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		ExpiresAt:   grant.ExpiresAt,
	}, nil
}

// StartCleanup removes expired exports every CleanupInterval until ctx ends.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired deletes export files older than the result TTL.
func (s *ReportService) CleanupExpired(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	expired, err := s.jobs.ListFinishedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn("cleanup list failed", zap.Error(err))
		return 0
	}
	removed := 0
	for _, job := range expired {
		if job.FilePath == "" {
			continue
		}
		if err := s.files.Delete(job.FilePath); err != nil {
			s.logger.Warn("cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		job.FilePath = ""
		job.ResultURL = ""
		if err := s.jobs.Save(ctx, job); err != nil {
			s.logger.Warn("cleanup save failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		removed++
	}
	swept, err := s.files.Sweep(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("filesystem cleanup failed", zap.Error(err))
	}
	if removed > 0 || len(swept) > 0 {
		s.logger.Info("expired exports removed", zap.Int("jobs", removed), zap.Int("orphans", len(swept)))
	}
	return removed
}

// ReportWorker renders queued export jobs.
type ReportWorker struct {
	jobs       reportJobStore
	attendance reportAttendanceRepository
	files      *storage.LocalStorage
	signer     *storage.Signer
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
	baseURL    string
	now        func() time.Time
}

// NewReportWorker constructs a worker.
func NewReportWorker(jobStore reportJobStore, attendance reportAttendanceRepository, files *storage.LocalStorage, signer *storage.Signer, metrics *MetricsService, logger *zap.Logger, cfg ReportServiceConfig) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ReportWorker{
		jobs:       jobStore,
		attendance: attendance,
		files:      files,
		signer:     signer,
		metrics:    metrics,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		baseURL:    cfg.DownloadBaseURL,
		now:        time.Now,
	}
}

// Handle processes one queued job.
func (w *ReportWorker) Handle(ctx context.Context, task jobs.Task[string]) error {
	job, err := w.jobs.FindByID(ctx, task.Payload)
	if err != nil {
		return err
	}
	job.Status = models.ReportStatusProcessing
	if err := w.jobs.Save(ctx, *job); err != nil {
		return err
	}

	path, err := w.generate(ctx, *job)
	if err != nil {
		job.ErrorMessage = err.Error()
		if task.Attempt >= w.maxRetries {
			now := w.now().UTC()
			job.Status = models.ReportStatusFailed
			job.FinishedAt = &now
			w.metrics.RecordReportJob(string(models.ReportStatusFailed))
		} else {
			job.Status = models.ReportStatusQueued
		}
		if saveErr := w.jobs.Save(ctx, *job); saveErr != nil {
			w.logger.Warn("failed to update job after error", zap.String("job_id", job.ID), zap.Error(saveErr))
		}
		return err
	}

	token, _, err := w.signer.Sign(job.ID, path)
	if err != nil {
		return err
	}
	now := w.now().UTC()
	job.Status = models.ReportStatusFinished
	job.FilePath = path
	job.ResultURL = w.baseURL + token
	job.ErrorMessage = ""
	job.FinishedAt = &now
	if err := w.jobs.Save(ctx, *job); err != nil {
		w.logger.Warn("failed to mark job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.metrics.RecordReportJob(string(models.ReportStatusFinished))
	w.logger.Info("attendance export ready", zap.String("job_id", job.ID), zap.String("format", string(job.Format)))
	return nil
}

func (w *ReportWorker) generate(ctx context.Context, job models.ReportJob) (string, error) {
	renderer, err := export.ForFormat(string(job.Format))
	if err != nil {
		return "", err
	}
	records, err := w.attendance.List(ctx, repository.AttendanceFilter{
		Subject:  job.Subject,
		DateFrom: job.DateFrom,
		DateTo:   job.DateTo,
	})
	if err != nil {
		return "", fmt.Errorf("load attendance: %w", err)
	}
	data, err := renderer.Render(attendanceTable(job, records))
	if err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}
	path := fmt.Sprintf("%s/%s.%s", job.TeacherID, job.ID, renderer.Extension())
	if err := w.files.Save(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func attendanceTable(job models.ReportJob, records []models.AttendanceRecord) export.Table {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		if records[i].Grade != records[j].Grade {
			return records[i].Grade < records[j].Grade
		}
		return records[i].StudentName < records[j].StudentName
	})

	present := 0
	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		if rec.Status == models.AttendancePresent {
			present++
		}
		rows = append(rows, map[string]string{
			"date":       rec.Date,
			"start":      rec.SessionStartTime,
			"student_id": rec.StudentID,
			"student":    rec.StudentName,
			"grade":      strconv.Itoa(rec.Grade),
			"status":     string(rec.Status),
			"source":     string(rec.Source),
			"marked_at":  rec.Timestamp.Format(time.RFC3339),
		})
	}

	period := "all dates"
	switch {
	case job.DateFrom != "" && job.DateTo != "":
		period = job.DateFrom + " to " + job.DateTo
	case job.DateFrom != "":
		period = "from " + job.DateFrom
	case job.DateTo != "":
		period = "until " + job.DateTo
	}

	return export.Table{
		Title:    job.Subject + " attendance",
		Subtitle: "Teacher " + job.TeacherID + ", " + period,
		Columns: []export.Column{
			{Key: "date", Label: "Date", Width: 1.2},
			{Key: "start", Label: "Session", Width: 1.6},
			{Key: "student_id", Label: "Student ID", Width: 1.3},
			{Key: "student", Label: "Student", Width: 2.2},
			{Key: "grade", Label: "Grade", Width: 0.7},
			{Key: "status", Label: "Status", Width: 1},
			{Key: "source", Label: "Source", Width: 0.9},
			{Key: "marked_at", Label: "Marked at", Width: 2},
		},
		Rows: rows,
		Footer: []string{
			fmt.Sprintf("Records: %d", len(records)),
			fmt.Sprintf("Present: %d", present),
			fmt.Sprintf("Absent: %d", len(records)-present),
			fmt.Sprintf("Attendance: %.0f%%", percent(present, len(records), 0)),
		},
	}
}

// percent rounds present/total to the given number of decimals.
func percent(present, total, decimals int) float64 {
	if total == 0 {
		return 0
	}
	scale := math.Pow(10, float64(decimals))
	return math.Round(float64(present)/float64(total)*100*scale) / scale
}

func slug(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			if len(out) > 0 && out[len(out)-1] != '-' {
				out = append(out, '-')
			}
		}
	}
	return string(out)
}
