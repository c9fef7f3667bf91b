package model

import "time"

type FileStatus string

const (
	FileStatusUploaded FileStatus = "UPLOADED"
	FileStatusImported FileStatus = "IMPORTED"
	FileStatusFailed   FileStatus = "FAILED"
)

// ImportFile is an uploaded grade sheet waiting for, or done with, ingestion.
type ImportFile struct {
	ID            int64      `json:"id" db:"id"`
	CourseID      int64      `json:"course_id" db:"course_id"`
	S3Path        string     `json:"s3_path" db:"s3_path"`
	UploadedBy    int64      `json:"uploaded_by" db:"uploaded_by"`
	Status        FileStatus `json:"status" db:"status"`
	TotalRecords  int        `json:"total_records" db:"total_records"`
	ImportedCount int        `json:"imported_count" db:"imported_count"`
	ErrorMessage  *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// GradeSheet is a parsed import spreadsheet: one email column plus one
// column per grade item, named exactly as the item.
type GradeSheet struct {
	Items []string        `json:"items"`
	Rows  []GradeSheetRow `json:"rows"`
}

// GradeSheetRow holds one learner's scores. Blank cells are absent from
// Scores rather than zero.
type GradeSheetRow struct {
	Row    int                `json:"row"`
	Email  string             `json:"email"`
	Scores map[string]float64 `json:"scores"`
}
