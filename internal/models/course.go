package models

import "time"

// Course represents an academic course. Code is globally unique.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseLecturer links a course to a faculty user.
type CourseLecturer struct {
	CourseID string `db:"course_id" json:"course_id"`
	UserID   string `db:"user_id" json:"user_id"`
}

// CourseDetail enriches a course with its lecturers.
type CourseDetail struct {
	Course
	Lecturers []UserInfo `json:"lecturers"`
}

// CreateCourseRequest is the payload for creating a course.
type CreateCourseRequest struct {
	Code        string `json:"code" validate:"required,max=20"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateCourseRequest is the payload for editing a course.
type UpdateCourseRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// AssignLecturerRequest links a faculty user to a course.
type AssignLecturerRequest struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Code       string
	LecturerID string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
