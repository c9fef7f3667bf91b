package composite

import (
	"context"
	"fmt"

	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/model"
)

// build writes the category tree, items and config row. It must run inside
// a transaction; any error leaves nothing behind.
func build(ctx context.Context, tx db.Repository, courseID, actorID int64, s model.Structure) (*model.BuildResult, error) {
	root, err := tx.EnsureCourseCategory(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("course category: %w", err)
	}

	main, err := tx.CreateCategory(ctx, &model.GradeCategory{
		CourseID:    courseID,
		ParentID:    &root.ID,
		FullName:    s.Name,
		Aggregation: model.AggregationWeightedMean,
	})
	if err != nil {
		return nil, fmt.Errorf("structure category: %w", err)
	}

	result := &model.BuildResult{
		CourseID:       courseID,
		MainCategoryID: main.ID,
		StructureName:  s.Name,
		Components:     make([]model.BuiltComponent, 0, len(s.Components)),
	}

	for _, comp := range s.Components {
		cat, err := tx.CreateCategory(ctx, &model.GradeCategory{
			CourseID:        courseID,
			ParentID:        &main.ID,
			FullName:        comp.Name,
			Aggregation:     model.AggregationWeightedMean,
			AggregationCoef: comp.Weight,
		})
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", comp.Name, err)
		}

		built := model.BuiltComponent{
			CategoryID: cat.ID,
			Name:       comp.Name,
			Weight:     comp.Weight,
			Items:      make([]model.BuiltItem, 0, len(comp.Items)),
		}
		for _, it := range comp.Items {
			item, err := tx.CreateItem(ctx, &model.GradeItem{
				CourseID:   courseID,
				CategoryID: &cat.ID,
				ItemName:   it.Name,
				ItemType:   model.ItemTypeManual,
				GradeMin:   0,
				GradeMax:   it.MaxGrade,
			})
			if err != nil {
				return nil, fmt.Errorf("item %q: %w", it.Name, err)
			}
			built.Items = append(built.Items, model.BuiltItem{ID: item.ID, Name: it.Name, MaxGrade: it.MaxGrade})
		}
		result.Components = append(result.Components, built)
	}

	_, err = tx.InsertStructure(ctx, &model.CompositeConfig{
		CourseID:       courseID,
		MainCategoryID: main.ID,
		StructureName:  s.Name,
		Structure:      s,
		Active:         true,
		CreatedBy:      actorID,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
