package models

import "time"

// VerificationMethod tags how a submission was verified.
type VerificationMethod string

const (
	VerificationMethodGPS  VerificationMethod = "GPS"
	VerificationMethodNone VerificationMethod = "NONE"
)

// AttendanceRecord is append-only: created once through the submission flow,
// never updated, removed only by cascade. At most one row exists per
// (session, student) — enforced by a storage-level unique constraint, not
// just a pre-insert check.
type AttendanceRecord struct {
	ID                 string             `db:"id" json:"id"`
	SessionID          string             `db:"session_id" json:"session_id"`
	StudentID          string             `db:"student_id" json:"student_id"`
	SubmittedAt        time.Time          `db:"submitted_at" json:"submitted_at"`
	IPAddress          *string            `db:"ip_address" json:"ip_address,omitempty"`
	Latitude           *float64           `db:"latitude" json:"latitude,omitempty"`
	Longitude          *float64           `db:"longitude" json:"longitude,omitempty"`
	IsVerified         bool               `db:"is_verified" json:"is_verified"`
	VerificationMethod VerificationMethod `db:"verification_method" json:"verification_method"`
	DistanceMeters     *float64           `db:"distance_meters" json:"distance_meters,omitempty"`
	Flagged            bool               `db:"flagged" json:"flagged"`
	FlagReason         string             `db:"flag_reason" json:"flag_reason,omitempty"`
}

// SubmitAttendanceRequest is the public submission payload. Location is
// optional; geofenced sessions flag its absence rather than reject.
type SubmitAttendanceRequest struct {
	AdmissionNumber string   `json:"admission_number" validate:"required,max=50"`
	Latitude        *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude       *float64 `json:"longitude" validate:"omitempty,longitude"`
	IP              string   `json:"-"`
}

// SubmitAttendanceResponse echoes the recorded outcome to the student.
type SubmitAttendanceResponse struct {
	RecordID       string    `json:"record_id"`
	SessionTitle   string    `json:"session_title"`
	SubmittedAt    time.Time `json:"submitted_at"`
	IsVerified     bool      `json:"is_verified"`
	Flagged        bool      `json:"flagged"`
	FlagReason     string    `json:"flag_reason,omitempty"`
	DistanceMeters *float64  `json:"distance_meters,omitempty"`
}

// AttendanceLookupRequest is the student self-service lookup payload.
type AttendanceLookupRequest struct {
	AdmissionNumber string `json:"admission_number" validate:"required,max=50"`
	CourseID        string `json:"course_id" validate:"omitempty,uuid4"`
}

// AttendanceLookupResponse bundles a student's enrollments and records.
type AttendanceLookupResponse struct {
	Student     Student                `json:"student"`
	Enrollments []EnrollmentDetail     `json:"enrollments"`
	Records     []StudentAttendanceRow `json:"records"`
}

// SessionReportRow is one line of a faculty attendance report.
type SessionReportRow struct {
	StudentID        string             `db:"student_id" json:"student_id"`
	StudentFirstName string             `db:"student_first_name" json:"student_first_name"`
	StudentLastName  string             `db:"student_last_name" json:"student_last_name"`
	SubmittedAt      time.Time          `db:"submitted_at" json:"submitted_at"`
	IsVerified       bool               `db:"is_verified" json:"is_verified"`
	Method           VerificationMethod `db:"verification_method" json:"verification_method"`
	DistanceMeters   *float64           `db:"distance_meters" json:"distance_meters,omitempty"`
	Flagged          bool               `db:"flagged" json:"flagged"`
	FlagReason       string             `db:"flag_reason" json:"flag_reason,omitempty"`
}

// StudentAttendanceRow is a student-facing attendance history entry.
type StudentAttendanceRow struct {
	CourseCode   string    `db:"course_code" json:"course_code"`
	CourseTitle  string    `db:"course_title" json:"course_title"`
	SessionTitle string    `db:"session_title" json:"session_title"`
	SessionDate  time.Time `db:"session_date" json:"session_date"`
	SubmittedAt  time.Time `db:"submitted_at" json:"submitted_at"`
	IsVerified   bool      `db:"is_verified" json:"is_verified"`
}
