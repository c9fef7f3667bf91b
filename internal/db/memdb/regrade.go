package memdb

import (
	"ieap-grade-sync/internal/model"
)

// Regrade stands in for the external grading engine. For every learner
// enrolled in the course it writes each component category total as
// 100*sum(grade)/sum(max) over graded items, then writes the structure
// total as the weight-averaged mean of graded components. Ungraded items and
// components are left out rather than counted as zero.
func (s *Store) Regrade(courseID int64) {
	st, _ := s.lock("")
	defer s.unlock()

	var cfg *model.CompositeConfig
	for i := range st.structures {
		if st.structures[i].CourseID == courseID && st.structures[i].Active {
			cfg = &st.structures[i]
			break
		}
	}
	if cfg == nil {
		return
	}
	main, ok := st.categories[cfg.MainCategoryID]
	if !ok {
		return
	}

	var components []model.GradeCategory
	for _, c := range st.categories {
		if c.ParentID != nil && *c.ParentID == main.ID {
			components = append(components, c)
		}
	}

	for key := range st.enrolments {
		if key[0] != courseID {
			continue
		}
		userID := key[1]

		var weighted, weights float64
		for _, comp := range components {
			var sum, max float64
			graded := false
			for _, it := range st.items {
				if it.CategoryID == nil || *it.CategoryID != comp.ID || it.ItemType != model.ItemTypeManual {
					continue
				}
				g, ok := st.grades[pair{it.ID, userID}]
				if !ok || g.FinalGrade == nil {
					continue
				}
				sum += *g.FinalGrade
				max += it.GradeMax
				graded = true
			}
			if !graded || max == 0 {
				continue
			}
			pct := 100 * sum / max
			setGrade(st, comp.TotalItemID, userID, pct)
			weighted += comp.AggregationCoef * pct
			weights += comp.AggregationCoef
		}
		if weights > 0 {
			setGrade(st, main.TotalItemID, userID, weighted/weights)
		}
	}
}

func setGrade(st *state, itemID, userID int64, value float64) {
	g, ok := st.grades[pair{itemID, userID}]
	if !ok {
		g = model.Grade{ID: st.id(), ItemID: itemID, UserID: userID}
	}
	g.FinalGrade = &value
	st.grades[pair{itemID, userID}] = g
}
