package model

import "time"

type SyncType string

const (
	SyncTypeGrades      SyncType = "grades"
	SyncTypeEnrollments SyncType = "enrollments"
	SyncTypeUsers       SyncType = "users"
	SyncTypeAll         SyncType = "all"
)

type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
	DirectionBoth Direction = "both"
)

type SyncStatus string

const (
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncLog is the audit row of one sync invocation. It is inserted as running
// and finalized once with the terminal status.
type SyncLog struct {
	ID               int64      `json:"id" db:"id"`
	SyncType         SyncType   `json:"sync_type" db:"sync_type"`
	CourseID         *int64     `json:"course_id,omitempty" db:"course_id"`
	Direction        Direction  `json:"direction" db:"direction"`
	RecordsProcessed int        `json:"records_processed" db:"records_processed"`
	RecordsSuccess   int        `json:"records_success" db:"records_success"`
	RecordsFailed    int        `json:"records_failed" db:"records_failed"`
	Status           SyncStatus `json:"status" db:"status"`
	ErrorMessage     *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}
