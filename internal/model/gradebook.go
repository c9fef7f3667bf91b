package model

import "time"

type Aggregation string

const (
	AggregationWeightedMean Aggregation = "weighted_mean"
	AggregationNatural      Aggregation = "natural"
)

// GradeCategory is a node of the course grading tree. Every category owns a
// total item (TotalItemID) holding the aggregated final grade per learner.
type GradeCategory struct {
	ID              int64       `json:"id" db:"id"`
	CourseID        int64       `json:"course_id" db:"course_id"`
	ParentID        *int64      `json:"parent_id,omitempty" db:"parent_id"`
	FullName        string      `json:"full_name" db:"full_name"`
	Aggregation     Aggregation `json:"aggregation" db:"aggregation"`
	AggregationCoef float64     `json:"aggregation_coef" db:"aggregation_coef"`
	TotalItemID     int64       `json:"total_item_id" db:"-"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

type GradeItem struct {
	ID           int64     `json:"id" db:"id"`
	CourseID     int64     `json:"course_id" db:"course_id"`
	CategoryID   *int64    `json:"category_id,omitempty" db:"category_id"`
	ItemName     string    `json:"item_name" db:"item_name"`
	ItemType     ItemType  `json:"item_type" db:"item_type"`
	ItemInstance *int64    `json:"item_instance,omitempty" db:"item_instance"`
	GradeMin     float64   `json:"grade_min" db:"grade_min"`
	GradeMax     float64   `json:"grade_max" db:"grade_max"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Grade is one learner's score on one item. FinalGrade is nil while ungraded.
type Grade struct {
	ID         int64     `json:"id" db:"id"`
	ItemID     int64     `json:"item_id" db:"item_id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	FinalGrade *float64  `json:"final_grade" db:"final_grade"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
