package models

import "time"

// SessionStatus is the time-derived state of a class session.
type SessionStatus string

const (
	SessionStatusInactive SessionStatus = "INACTIVE"
	SessionStatusActive   SessionStatus = "ACTIVE"
	SessionStatusEnded    SessionStatus = "ENDED"
)

// Session represents one class meeting. SessionKey is the opaque public
// token QR codes point at; IsActive is the administrative kill-switch,
// independent of the time-derived status.
type Session struct {
	ID            string    `db:"id" json:"id"`
	CourseID      string    `db:"course_id" json:"course_id"`
	FacultyID     string    `db:"faculty_id" json:"faculty_id"`
	SessionKey    string    `db:"session_key" json:"session_key"`
	Title         string    `db:"title" json:"title"`
	Date          time.Time `db:"date" json:"date"`
	StartTime     string    `db:"start_time" json:"start_time"`
	EndTime       string    `db:"end_time" json:"end_time"`
	Latitude      *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude     *float64  `db:"longitude" json:"longitude,omitempty"`
	AllowedRadius int       `db:"allowed_radius" json:"allowed_radius"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Geofenced reports whether the session has a configured location.
func (s *Session) Geofenced() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// SessionDetail enriches a session with course context and the current
// attendance count.
type SessionDetail struct {
	Session
	CourseCode      string        `db:"course_code" json:"course_code"`
	CourseTitle     string        `db:"course_title" json:"course_title"`
	FacultyName     string        `db:"faculty_name" json:"faculty_name"`
	AttendanceCount int           `db:"attendance_count" json:"attendance_count"`
	Status          SessionStatus `db:"-" json:"status,omitempty"`
}

// CreateSessionRequest is the payload for creating a session. Times are
// HH:MM wall-clock values interpreted in the configured zone.
type CreateSessionRequest struct {
	CourseID      string   `json:"course_id" validate:"required,uuid4"`
	Title         string   `json:"title" validate:"required,max=200"`
	Date          string   `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime     string   `json:"start_time" validate:"required,datetime=15:04"`
	EndTime       string   `json:"end_time" validate:"required,datetime=15:04"`
	Latitude      *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude     *float64 `json:"longitude" validate:"omitempty,longitude"`
	AllowedRadius int      `json:"allowed_radius" validate:"omitempty,gte=0,lte=10000"`
}

// UpdateSessionRequest is the payload for editing a session.
type UpdateSessionRequest struct {
	Title         *string  `json:"title" validate:"omitempty,max=200"`
	Date          *string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime     *string  `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime       *string  `json:"end_time" validate:"omitempty,datetime=15:04"`
	Latitude      *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude     *float64 `json:"longitude" validate:"omitempty,longitude"`
	AllowedRadius *int     `json:"allowed_radius" validate:"omitempty,gte=0,lte=10000"`
	IsActive      *bool    `json:"is_active"`
}

// MarkContext is the public payload backing the QR landing page: enough to
// render the form, nothing that leaks private session data.
type MarkContext struct {
	SessionKey  string        `json:"session_key"`
	Title       string        `json:"title"`
	CourseCode  string        `json:"course_code"`
	CourseTitle string        `json:"course_title"`
	Date        string        `json:"date"`
	StartTime   string        `json:"start_time"`
	EndTime     string        `json:"end_time"`
	Status      SessionStatus `json:"status"`
	Geofenced   bool          `json:"geofenced"`
}

// SessionFilter provides filters for listing sessions.
type SessionFilter struct {
	CourseCode string
	CourseID   string
	FacultyID  string
	DateFrom   *time.Time
	DateTo     *time.Time
	ActiveOnly bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
