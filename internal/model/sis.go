package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RemoteID is a SIS identifier. The SIS sends ids as JSON strings or numbers.
type RemoteID string

func (id *RemoteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RemoteID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("remote id must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = RemoteID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = RemoteID(n.String())
	return nil
}

func (id RemoteID) String() string { return string(id) }

const GradeImportAction = "import_grades"

// GradeImportRequest is the body of POST /api/grades/import.
type GradeImportRequest struct {
	Action     string              `json:"action"`
	CourseCode *string             `json:"course_code"`
	Timestamp  int64               `json:"timestamp"`
	Grades     []StudentGradeEntry `json:"grades"`
}

type StudentGradeEntry struct {
	StudentID      string                      `json:"student_id"`
	StudentEmail   string                      `json:"student_email"`
	CompositeGrade *float64                    `json:"composite_grade"`
	Components     map[string]ComponentPayload `json:"components,omitempty"`
}

type ComponentPayload struct {
	Grade  *float64      `json:"grade"`
	Weight float64       `json:"weight"`
	Items  []ItemPayload `json:"items"`
}

type ItemPayload struct {
	Name       string   `json:"name"`
	Grade      *float64 `json:"grade"`
	MaxGrade   float64  `json:"max_grade"`
	Percentage *float64 `json:"percentage"`
}

// GradeImportResponse entries are opaque; only their counts are audited.
type GradeImportResponse struct {
	Success []json.RawMessage `json:"success"`
	Errors  []json.RawMessage `json:"errors"`
}

// EnrollmentsResponse keeps records raw so one malformed element is a
// record error rather than a failed response.
type EnrollmentsResponse struct {
	Enrollments []json.RawMessage `json:"enrollments"`
}

type SISEnrollment struct {
	Student    SISStudent `json:"student"`
	CourseCode string     `json:"course_code"`
}

type SISStudent struct {
	ID        RemoteID `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
}

type UsersResponse struct {
	Users []json.RawMessage `json:"users"`
}

// DecodeEnrollment decodes one raw record. On failure the returned record
// still carries whatever identifying fields could be read.
func DecodeEnrollment(raw json.RawMessage) (SISEnrollment, error) {
	var e SISEnrollment
	if err := json.Unmarshal(raw, &e); err != nil {
		var hint struct {
			Student struct {
				ID    json.RawMessage `json:"id"`
				Email json.RawMessage `json:"email"`
			} `json:"student"`
			CourseCode json.RawMessage `json:"course_code"`
		}
		_ = json.Unmarshal(raw, &hint)
		return SISEnrollment{
			Student:    SISStudent{ID: RemoteID(rawText(hint.Student.ID)), Email: rawText(hint.Student.Email)},
			CourseCode: rawText(hint.CourseCode),
		}, err
	}
	return e, nil
}

func DecodeUser(raw json.RawMessage) (SISUser, error) {
	var u SISUser
	if err := json.Unmarshal(raw, &u); err != nil {
		var hint struct {
			ID    json.RawMessage `json:"id"`
			Email json.RawMessage `json:"email"`
		}
		_ = json.Unmarshal(raw, &hint)
		return SISUser{ID: RemoteID(rawText(hint.ID)), Email: rawText(hint.Email)}, err
	}
	return u, nil
}

// rawText renders a raw JSON value for error reports, unquoting strings.
func rawText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

type SISUser struct {
	ID        RemoteID `json:"id"`
	Email     string   `json:"email"`
	Username  string   `json:"username,omitempty"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
}
