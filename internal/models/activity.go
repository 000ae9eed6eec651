package models

import "time"

// Activity log actions.
const (
	ActivityActionCreate = "CREATE"
	ActivityActionUpdate = "UPDATE"
	ActivityActionDelete = "DELETE"
	ActivityActionImport = "IMPORT"
	ActivityActionExport = "EXPORT"
	ActivityActionLogin  = "LOGIN"
)

// ActivityLog records an administrative or faculty action.
type ActivityLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	ObjectType string    `db:"object_type" json:"object_type"`
	ObjectID   *string   `db:"object_id" json:"object_id,omitempty"`
	Details    string    `db:"details" json:"details"`
	IPAddress  *string   `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ActivityLogFilter provides filters for listing activity logs.
type ActivityLogFilter struct {
	ActorID    string
	Action     string
	ObjectType string
	Page       int
	PageSize   int
}

// ImportStatus tracks the state of a CSV student import.
type ImportStatus string

const (
	ImportStatusProcessing ImportStatus = "PROCESSING"
	ImportStatusCompleted  ImportStatus = "COMPLETED"
	ImportStatusFailed     ImportStatus = "FAILED"
)

// StudentImportLog records the outcome of one CSV import.
type StudentImportLog struct {
	ID              string       `db:"id" json:"id"`
	AdminID         *string      `db:"admin_id" json:"admin_id,omitempty"`
	Filename        string       `db:"filename" json:"filename"`
	Status          ImportStatus `db:"status" json:"status"`
	RecordsTotal    int          `db:"records_total" json:"records_total"`
	RecordsImported int          `db:"records_imported" json:"records_imported"`
	RecordsFailed   int          `db:"records_failed" json:"records_failed"`
	ErrorLog        string       `db:"error_log" json:"error_log,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}
