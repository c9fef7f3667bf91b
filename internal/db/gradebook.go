package db

import (
	"context"
	"database/sql"
	"fmt"

	"ieap-grade-sync/internal/model"
)

// Every category has exactly one total item: item_type 'category' with
// item_instance = category id, or 'course' for the course root.
const categorySelect = `SELECT c.id, c.course_id, c.parent_id, c.full_name, c.aggregation, c.aggregation_coef, c.created_at,
			  COALESCE(t.id, 0)
			  FROM grade_categories c
			  LEFT JOIN grade_items t ON t.item_instance = c.id AND t.item_type IN ('category', 'course')`

func scanCategory(row *sql.Row) (*model.GradeCategory, error) {
	var cat model.GradeCategory
	err := row.Scan(&cat.ID, &cat.CourseID, &cat.ParentID, &cat.FullName, &cat.Aggregation,
		&cat.AggregationCoef, &cat.CreatedAt, &cat.TotalItemID)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// EnsureCourseCategory returns the course's root category, creating it with
// its course total item when the course has none yet.
func (r *repository) EnsureCourseCategory(ctx context.Context, courseID int64) (*model.GradeCategory, error) {
	cat, err := scanCategory(r.q.QueryRowContext(ctx,
		categorySelect+` WHERE c.course_id = ? AND c.parent_id IS NULL ORDER BY c.id LIMIT 1`, courseID))
	if err != nil {
		return nil, fmt.Errorf("failed to load course category: %w", err)
	}
	if cat != nil {
		return cat, nil
	}

	return r.createCategory(ctx, &model.GradeCategory{
		CourseID:    courseID,
		FullName:    "?",
		Aggregation: model.AggregationNatural,
	}, model.ItemTypeCourse)
}

func (r *repository) CreateCategory(ctx context.Context, cat *model.GradeCategory) (*model.GradeCategory, error) {
	return r.createCategory(ctx, cat, model.ItemTypeCategory)
}

func (r *repository) createCategory(ctx context.Context, cat *model.GradeCategory, totalType model.ItemType) (*model.GradeCategory, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO grade_categories (course_id, parent_id, full_name, aggregation, aggregation_coef, created_at)
		 VALUES (?, ?, ?, ?, ?, NOW())`,
		cat.CourseID, cat.ParentID, cat.FullName, cat.Aggregation, cat.AggregationCoef)
	if err != nil {
		return nil, fmt.Errorf("failed to insert grade category %q: %w", cat.FullName, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	res, err = r.q.ExecContext(ctx,
		`INSERT INTO grade_items (course_id, category_id, item_name, item_type, item_instance, grade_min, grade_max, created_at)
		 VALUES (?, NULL, '', ?, ?, 0, 100, NOW())`,
		cat.CourseID, totalType, id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert total item for category %d: %w", id, err)
	}
	totalID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	out := *cat
	out.ID = id
	out.TotalItemID = totalID
	return &out, nil
}

func (r *repository) FindCategory(ctx context.Context, id int64) (*model.GradeCategory, error) {
	cat, err := scanCategory(r.q.QueryRowContext(ctx, categorySelect+` WHERE c.id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to load grade category %d: %w", id, err)
	}
	return cat, nil
}

func (r *repository) FindChildCategory(ctx context.Context, parentID int64, name string) (*model.GradeCategory, error) {
	cat, err := scanCategory(r.q.QueryRowContext(ctx,
		categorySelect+` WHERE c.parent_id = ? AND c.full_name = ? ORDER BY c.id LIMIT 1`, parentID, name))
	if err != nil {
		return nil, fmt.Errorf("failed to load category %q under %d: %w", name, parentID, err)
	}
	return cat, nil
}

func (r *repository) CreateItem(ctx context.Context, item *model.GradeItem) (*model.GradeItem, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO grade_items (course_id, category_id, item_name, item_type, item_instance, grade_min, grade_max, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NOW())`,
		item.CourseID, item.CategoryID, item.ItemName, item.ItemType, item.ItemInstance, item.GradeMin, item.GradeMax)
	if err != nil {
		return nil, fmt.Errorf("failed to insert grade item %q: %w", item.ItemName, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *item
	out.ID = id
	return &out, nil
}

const itemSelect = `SELECT id, course_id, category_id, item_name, item_type, item_instance, grade_min, grade_max, created_at FROM grade_items`

func scanItem(row *sql.Row) (*model.GradeItem, error) {
	var it model.GradeItem
	err := row.Scan(&it.ID, &it.CourseID, &it.CategoryID, &it.ItemName, &it.ItemType,
		&it.ItemInstance, &it.GradeMin, &it.GradeMax, &it.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *repository) FindItem(ctx context.Context, id int64) (*model.GradeItem, error) {
	it, err := scanItem(r.q.QueryRowContext(ctx, itemSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to load grade item %d: %w", id, err)
	}
	return it, nil
}

func (r *repository) FindItemByName(ctx context.Context, categoryID int64, name string) (*model.GradeItem, error) {
	it, err := scanItem(r.q.QueryRowContext(ctx,
		itemSelect+` WHERE category_id = ? AND item_name = ? ORDER BY id LIMIT 1`, categoryID, name))
	if err != nil {
		return nil, fmt.Errorf("failed to load item %q in category %d: %w", name, categoryID, err)
	}
	return it, nil
}

func (r *repository) FindCourseItemByName(ctx context.Context, courseID int64, name string) (*model.GradeItem, error) {
	it, err := scanItem(r.q.QueryRowContext(ctx,
		itemSelect+` WHERE course_id = ? AND item_name = ? AND item_type = 'manual' ORDER BY id LIMIT 1`, courseID, name))
	if err != nil {
		return nil, fmt.Errorf("failed to load item %q in course %d: %w", name, courseID, err)
	}
	return it, nil
}

func (r *repository) FindGrade(ctx context.Context, itemID, userID int64) (*model.Grade, error) {
	var g model.Grade
	err := r.q.QueryRowContext(ctx,
		`SELECT id, item_id, user_id, final_grade, updated_at FROM grade_grades WHERE item_id = ? AND user_id = ?`,
		itemID, userID).Scan(&g.ID, &g.ItemID, &g.UserID, &g.FinalGrade, &g.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load grade for item %d user %d: %w", itemID, userID, err)
	}
	return &g, nil
}

func (r *repository) UpsertGrade(ctx context.Context, itemID, userID int64, value *float64) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO grade_grades (item_id, user_id, final_grade, updated_at) VALUES (?, ?, ?, NOW())
		 ON DUPLICATE KEY UPDATE final_grade = VALUES(final_grade), updated_at = NOW()`,
		itemID, userID, value)
	if err != nil {
		return fmt.Errorf("failed to save grade for item %d user %d: %w", itemID, userID, err)
	}
	return nil
}
