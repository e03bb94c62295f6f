package models

import "time"

// PaymentStatus tracks admin review of a payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending Approval"
	PaymentApproved PaymentStatus = "Approved"
	PaymentRejected PaymentStatus = "Rejected"
)

// Payment is a receipt submitted with an enrollment, or a monthly fee when
// Month is set.
type Payment struct {
	ID              string        `json:"id" validate:"required"`
	StudentID       string        `json:"student_id" validate:"required"`
	StudentName     string        `json:"student_name"`
	ParentID        string        `json:"parent_id" validate:"required"`
	ParentName      string        `json:"parent_name"`
	Month           string        `json:"month,omitempty" validate:"omitempty,datetime=2006-01"`
	Amount          float64       `json:"amount,omitempty" validate:"min=0"`
	Reference       string        `json:"reference" validate:"required"`
	Receipt         string        `json:"receipt,omitempty"`
	ReceiptFileName string        `json:"receipt_file_name"`
	Status          PaymentStatus `json:"status" validate:"required,oneof='Pending Approval' Approved Rejected"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	ReviewedAt      *time.Time    `json:"reviewed_at,omitempty"`
}

// EnrollRequest creates a student together with its first payment.
type EnrollRequest struct {
	StudentName      string   `json:"student_name" validate:"required,max=120"`
	Grade            int      `json:"grade" validate:"required,grade"`
	Subjects         []string `json:"subjects" validate:"required,min=1,dive,subject"`
	PaymentReference string   `json:"payment_reference" validate:"required,max=120"`
	Receipt          string   `json:"receipt" validate:"required"`
	ReceiptFileName  string   `json:"receipt_file_name" validate:"required"`
}

// MonthlyPaymentRequest submits one month's fee for a student.
type MonthlyPaymentRequest struct {
	StudentID       string  `json:"student_id" validate:"required"`
	Month           string  `json:"month" validate:"required,datetime=2006-01"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	Reference       string  `json:"reference" validate:"required,max=120"`
	Receipt         string  `json:"receipt" validate:"required"`
	ReceiptFileName string  `json:"receipt_file_name" validate:"required"`
}

// EnrollResult is returned after a successful enrollment.
type EnrollResult struct {
	Student Student `json:"student"`
	Payment Payment `json:"payment"`
}

// AddSubjectsRequest extends a student's subjects.
type AddSubjectsRequest struct {
	Subjects []string `json:"subjects" validate:"required,min=1,dive,subject"`
}

// Material is a learning resource uploaded by a teacher.
type Material struct {
	ID          string    `json:"id" validate:"required"`
	TeacherID   string    `json:"teacher_id" validate:"required"`
	TeacherName string    `json:"teacher_name"`
	Subject     string    `json:"subject" validate:"required"`
	Grade       int       `json:"grade" validate:"required,grade"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	FileName    string    `json:"file_name" validate:"required"`
	FileType    string    `json:"file_type"`
	FileData    string    `json:"file_data,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// UploadMaterialRequest is the body of a material upload.
type UploadMaterialRequest struct {
	Grade       int    `json:"grade" validate:"required,grade"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	FileName    string `json:"file_name" validate:"required"`
	FileType    string `json:"file_type"`
	FileData    string `json:"file_data" validate:"required"`
}

// MaterialFilter narrows material listings.
type MaterialFilter struct {
	Grade   int    `form:"grade" validate:"omitempty,grade"`
	Subject string `form:"subject" validate:"omitempty,subject"`
}
