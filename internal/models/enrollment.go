package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment request.
type EnrollmentStatus string

const (
	EnrollmentStatusPending  EnrollmentStatus = "pending"
	EnrollmentStatusApproved EnrollmentStatus = "approved"
	EnrollmentStatusRejected EnrollmentStatus = "rejected"
)

// Valid returns true when the status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusApproved, EnrollmentStatusRejected:
		return true
	default:
		return false
	}
}

// Enrollment pairs a student with a course. At most one row exists per
// (student, course); decisions are final.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	RequestedAt time.Time        `db:"requested_at" json:"requested_at"`
	DecidedAt   *time.Time       `db:"decided_at" json:"decided_at,omitempty"`
	DecidedBy   *string          `db:"decided_by" json:"decided_by,omitempty"`
}

// EnrollmentDetail enriches an enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentFirstName string `db:"student_first_name" json:"student_first_name"`
	StudentLastName  string `db:"student_last_name" json:"student_last_name"`
	CourseCode       string `db:"course_code" json:"course_code"`
	CourseTitle      string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// EnrollRequest is the public self-enrollment payload.
type EnrollRequest struct {
	AdmissionNumber string `json:"admission_number" validate:"required,max=50"`
	EnrollmentKey   string `json:"enrollment_key" validate:"required"`
}

// EnrollResponse reports the resulting enrollment state. Repeat requests for
// the same pair return the current status rather than an error.
type EnrollResponse struct {
	EnrollmentID string           `json:"enrollment_id"`
	CourseCode   string           `json:"course_code"`
	CourseTitle  string           `json:"course_title"`
	Status       EnrollmentStatus `json:"status"`
	AlreadyKnown bool             `json:"already_known"`
}

// EnrollmentDecisionRequest approves or rejects a pending enrollment.
type EnrollmentDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

// EnrollmentKey is the per-course shared secret gating self-enrollment. One
// live key per course; rotation keeps the previous key for auditing but the
// key is a one-time gate, so approved enrollments survive rotation.
type EnrollmentKey struct {
	ID            string     `db:"id" json:"id"`
	CourseID      string     `db:"course_id" json:"course_id"`
	Key           string     `db:"key" json:"key"`
	PreviousKey   *string    `db:"previous_key" json:"previous_key,omitempty"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	RegeneratedAt *time.Time `db:"regenerated_at" json:"regenerated_at,omitempty"`
	CreatedBy     string     `db:"created_by" json:"created_by"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
