package models

import "time"

// ReportFormat enumerates export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus is the lifecycle of an export job.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportJob is an asynchronous attendance export.
type ReportJob struct {
	ID           string       `json:"id" validate:"required"`
	TeacherID    string       `json:"teacher_id" validate:"required"`
	Subject      string       `json:"subject" validate:"required"`
	Format       ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	Status       ReportStatus `json:"status" validate:"required"`
	DateFrom     string       `json:"date_from,omitempty"`
	DateTo       string       `json:"date_to,omitempty"`
	FilePath     string       `json:"file_path,omitempty"`
	ResultURL    string       `json:"result_url,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
}

// CreateExportRequest asks for a new export.
type CreateExportRequest struct {
	Format   ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	DateFrom string       `json:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo   string       `json:"date_to" validate:"omitempty,datetime=2006-01-02"`
}
