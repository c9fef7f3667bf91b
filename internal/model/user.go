package model

import "time"

type User struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Auth      string    `json:"auth" db:"auth"`
	Confirmed bool      `json:"confirmed" db:"confirmed"`
	Lang      string    `json:"lang" db:"lang"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Course struct {
	ID        int64  `json:"id" db:"id"`
	ShortName string `json:"short_name" db:"short_name"`
	FullName  string `json:"full_name" db:"full_name"`
}

const RoleStudent = "student"

type Enrollment struct {
	CourseID  int64     `json:"course_id" db:"course_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
