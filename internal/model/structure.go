package model

import "time"

type Level string

const (
	LevelIEAP1 Level = "ieap1"
	LevelIEAP2 Level = "ieap2"
	LevelIEAP3 Level = "ieap3"
	LevelIEAP4 Level = "ieap4"
	LevelIEAP5 Level = "ieap5"
	LevelIEAP6 Level = "ieap6"
)

type ItemType string

const (
	ItemTypeManual   ItemType = "manual"
	ItemTypeCategory ItemType = "category"
	ItemTypeCourse   ItemType = "course"
)

// Structure is a weighted grading hierarchy. Catalog templates and
// caller-supplied custom structures share this shape.
type Structure struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Difficulty  string      `json:"level,omitempty"`
	Components  []Component `json:"components"`
}

type Component struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Items  []Item  `json:"subitems"`
}

type Item struct {
	Name     string   `json:"name"`
	MaxGrade float64  `json:"maxgrade"`
	ItemType ItemType `json:"itemtype,omitempty"`
}

// Clone returns a deep copy so catalog entries are never mutated by callers.
func (s Structure) Clone() Structure {
	out := s
	out.Components = make([]Component, len(s.Components))
	for i, c := range s.Components {
		c.Items = append([]Item(nil), c.Items...)
		out.Components[i] = c
	}
	return out
}

func (s Structure) TotalWeight() float64 {
	var total float64
	for _, c := range s.Components {
		total += c.Weight
	}
	return total
}

// CompositeConfig is the persisted, active structure of one course.
type CompositeConfig struct {
	ID             int64     `json:"id" db:"id"`
	CourseID       int64     `json:"course_id" db:"course_id"`
	MainCategoryID int64     `json:"main_category_id" db:"main_category_id"`
	StructureName  string    `json:"structure_name" db:"structure_name"`
	Structure      Structure `json:"structure" db:"config_data"`
	Active         bool      `json:"active" db:"active"`
	CreatedBy      int64     `json:"created_by" db:"created_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// StructureCreated is emitted after a structure transaction commits.
type StructureCreated struct {
	CourseID       int64     `json:"course_id"`
	MainCategoryID int64     `json:"main_category_id"`
	StructureName  string    `json:"structure_name"`
	ActorID        int64     `json:"actor_id"`
	CreatedAt      time.Time `json:"created_at"`
}
