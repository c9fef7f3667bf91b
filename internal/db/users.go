package db

import (
	"context"
	"database/sql"
	"fmt"

	"ieap-grade-sync/internal/model"
)

const userSelect = `SELECT id, username, email, first_name, last_name, auth, confirmed, lang, created_at, updated_at FROM users`

func scanUser(s interface{ Scan(...interface{}) error }) (*model.User, error) {
	var u model.User
	err := s.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.Auth, &u.Confirmed, &u.Lang, &u.CreatedAt, &u.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repository) FindUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, userSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return u, nil
}

func (r *repository) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, userSelect+` WHERE email = ? ORDER BY id LIMIT 1`, email))
	if err != nil {
		return nil, fmt.Errorf("failed to load user by email: %w", err)
	}
	return u, nil
}

func (r *repository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO users (username, email, first_name, last_name, auth, confirmed, lang, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`,
		u.Username, u.Email, u.FirstName, u.LastName, u.Auth, u.Confirmed, u.Lang)
	if err != nil {
		return 0, fmt.Errorf("failed to create user %q: %w", u.Username, err)
	}
	return res.LastInsertId()
}

func (r *repository) UpdateUserNames(ctx context.Context, id int64, firstName, lastName string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET first_name = ?, last_name = ?, updated_at = NOW() WHERE id = ?`,
		firstName, lastName, id)
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", id, err)
	}
	return nil
}

func (r *repository) FindCourse(ctx context.Context, id int64) (*model.Course, error) {
	var c model.Course
	err := r.q.QueryRowContext(ctx, `SELECT id, short_name, full_name FROM courses WHERE id = ?`, id).
		Scan(&c.ID, &c.ShortName, &c.FullName)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load course %d: %w", id, err)
	}
	return &c, nil
}

func (r *repository) IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_enrolments WHERE course_id = ? AND user_id = ?`, courseID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check enrolment: %w", err)
	}
	return n > 0, nil
}

// Enroll is idempotent. It reports whether a new enrolment row was created.
func (r *repository) Enroll(ctx context.Context, courseID, userID int64, role string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT IGNORE INTO user_enrolments (course_id, user_id, role, created_at) VALUES (?, ?, ?, NOW())`,
		courseID, userID, role)
	if err != nil {
		return false, fmt.Errorf("failed to enrol user %d in course %d: %w", userID, courseID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repository) ListEnrolledUsers(ctx context.Context, courseID int64) ([]model.User, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT u.id, u.username, u.email, u.first_name, u.last_name, u.auth, u.confirmed, u.lang, u.created_at, u.updated_at
		 FROM users u JOIN user_enrolments e ON e.user_id = u.id
		 WHERE e.course_id = ? ORDER BY u.last_name, u.first_name, u.id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrolled users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]model.User, error) {
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
