package model

import (
	"encoding/json"
	"time"
)

// CreateStructureRequest drives structure creation. When Level is set, or
// AutoDetect finds one, the catalog template replaces Structure.
type CreateStructureRequest struct {
	CourseID   int64      `json:"course_id"`
	Structure  *Structure `json:"structure,omitempty"`
	Level      Level      `json:"ieap_level,omitempty"`
	AutoDetect bool       `json:"auto_detect"`
}

type BuildResult struct {
	CourseID       int64            `json:"course_id"`
	MainCategoryID int64            `json:"main_category_id"`
	StructureName  string           `json:"structure_name"`
	Components     []BuiltComponent `json:"components"`
}

type BuiltComponent struct {
	CategoryID int64       `json:"category_id"`
	Name       string      `json:"name"`
	Weight     float64     `json:"weight"`
	Items      []BuiltItem `json:"items"`
}

type BuiltItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	MaxGrade float64 `json:"maxgrade"`
}

// GradeReport is the reconstructed composite view of one course. Absent
// grades stay nil; an ungraded item never reads as zero.
type GradeReport struct {
	CourseID      int64           `json:"course_id"`
	StructureName string          `json:"structure_name"`
	Learners      []LearnerGrades `json:"learners"`
}

type LearnerGrades struct {
	UserID         int64            `json:"user_id"`
	Email          string           `json:"email"`
	FirstName      string           `json:"first_name"`
	LastName       string           `json:"last_name"`
	CompositeGrade *float64         `json:"composite_grade"`
	Components     []ComponentGrade `json:"components,omitempty"`
}

type ComponentGrade struct {
	Name       string      `json:"name"`
	Weight     float64     `json:"weight"`
	CategoryID int64       `json:"category_id"`
	Grade      *float64    `json:"grade"`
	Items      []ItemGrade `json:"items"`
}

type ItemGrade struct {
	ItemID     int64    `json:"item_id"`
	Name       string   `json:"name"`
	Grade      *float64 `json:"grade"`
	MaxGrade   float64  `json:"max_grade"`
	Percentage *float64 `json:"percentage"`
}

type GradeUpdate struct {
	CourseID int64   `json:"course_id" binding:"required"`
	UserID   int64   `json:"user_id" binding:"required"`
	ItemID   int64   `json:"item_id" binding:"required"`
	Grade    float64 `json:"grade"`
}

type GradeUpdateResult struct {
	GradeUpdate
	Success bool `json:"success"`
}

type TemplatesResponse struct {
	Templates       map[Level]Structure `json:"templates"`
	AvailableLevels map[Level]string    `json:"available_levels"`
}

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceNone Confidence = "none"
)

type LevelDetection struct {
	CourseID        int64            `json:"course_id"`
	CourseName      string           `json:"course_name"`
	DetectedLevel   *Level           `json:"detected_level"`
	Confidence      Confidence       `json:"confidence"`
	TemplatePreview *TemplatePreview `json:"template_preview,omitempty"`
}

type TemplatePreview struct {
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	ComponentCount int                `json:"component_count"`
	Components     []ComponentPreview `json:"components"`
}

type ComponentPreview struct {
	Name      string  `json:"name"`
	Weight    float64 `json:"weight"`
	ItemCount int     `json:"item_count"`
}

type SyncRequest struct {
	SyncType  SyncType  `json:"sync_type"`
	Direction Direction `json:"direction"`
	CourseID  *int64    `json:"course_id,omitempty"`
	UserID    *int64    `json:"user_id,omitempty"`
	Term      string    `json:"term,omitempty"`
	Force     bool      `json:"force"`
}

type SyncResponse struct {
	Success   bool        `json:"success"`
	SyncType  SyncType    `json:"sync_type"`
	Direction Direction   `json:"direction"`
	Results   SyncResults `json:"results"`
	Error     string      `json:"error,omitempty"`
}

type SyncResults struct {
	Grades      *PushResult            `json:"grades,omitempty"`
	Enrollments *PullEnrollmentsResult `json:"enrollments,omitempty"`
	Users       *SyncUsersResult       `json:"users,omitempty"`
}

// PushResult counts come from the SIS response lists. Skipped lists learners
// without a user mapping.
type PushResult struct {
	Success bool              `json:"success"`
	Count   int               `json:"count"`
	Skipped []int64           `json:"skipped"`
	Errors  []json.RawMessage `json:"errors"`
}

type PullEnrollmentsResult struct {
	Enrolled         int                     `json:"enrolled"`
	Updated          int                     `json:"updated"`
	Unchanged        int                     `json:"unchanged"`
	CoursesProcessed int                     `json:"courses_processed"`
	Errors           []EnrollmentRecordError `json:"errors"`
}

type EnrollmentRecordError struct {
	StudentID  string `json:"student_id"`
	CourseCode string `json:"course_code"`
	Error      string `json:"error"`
}

type SyncUsersResult struct {
	Created int               `json:"created"`
	Updated int               `json:"updated"`
	Errors  []UserRecordError `json:"errors"`
}

type UserRecordError struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Error  string `json:"error"`
}

// SyncJob is a queued SyncData invocation.
type SyncJob struct {
	RequestID  string      `json:"request_id"`
	ActorID    int64       `json:"actor_id"`
	Request    SyncRequest `json:"request"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// IngestionJob points the ingestion worker at an uploaded grade sheet.
type IngestionJob struct {
	FileID   int64  `json:"file_id"`
	S3Path   string `json:"s3_path"`
	CourseID int64  `json:"course_id"`
	ActorID  int64  `json:"actor_id"`
}

type ImportStatusResponse struct {
	FileID        int64      `json:"file_id"`
	CourseID      int64      `json:"course_id"`
	Status        FileStatus `json:"status"`
	TotalRecords  int        `json:"total_records"`
	ImportedCount int        `json:"imported_count"`
	Error         *string    `json:"error,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
