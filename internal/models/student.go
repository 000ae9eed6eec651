package models

import "time"

// Student is identified by the campus admission number, not an internal ID.
// Records may be created lazily with blank names on first attendance
// submission; CSV import backfills the names later.
type Student struct {
	AdmissionNumber string    `db:"admission_number" json:"admission_number"`
	FirstName       string    `db:"first_name" json:"first_name"`
	LastName        string    `db:"last_name" json:"last_name"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// UpsertStudentRequest is the payload for creating or editing a student.
type UpsertStudentRequest struct {
	AdmissionNumber string `json:"admission_number" validate:"required,max=50"`
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
}

// ImportRowError describes one rejected CSV row.
type ImportRowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ImportResult summarises a CSV student import.
type ImportResult struct {
	ImportID string           `json:"import_id"`
	Total    int              `json:"total"`
	Imported int              `json:"imported"`
	Failed   int              `json:"failed"`
	Errors   []ImportRowError `json:"errors,omitempty"`
}

// StudentFilter provides filters for listing students.
type StudentFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
