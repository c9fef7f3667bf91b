package db

import (
	"context"
	"fmt"
)

// HasCapability matches grants scoped to the course or system-wide (NULL course).
func (r *repository) HasCapability(ctx context.Context, userID, courseID int64, capability string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_capabilities
		 WHERE user_id = ? AND capability = ? AND (course_id = ? OR course_id IS NULL)`,
		userID, capability, courseID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check capability %s: %w", capability, err)
	}
	return n > 0, nil
}
