package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"ieap-grade-sync/internal/model"
)

const reportSheet = "Grades"

// WriteReport renders a grade report as XLSX. Item columns are named after
// the items, so the file can be edited and imported back. Ungraded cells stay
// empty.
func WriteReport(report *model.GradeReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), reportSheet); err != nil {
		return nil, err
	}

	header := []interface{}{"Email", "First name", "Last name", "Composite grade"}
	var components []string
	var items []string
	if len(report.Learners) > 0 {
		for _, c := range report.Learners[0].Components {
			components = append(components, c.Name)
			header = append(header, c.Name+" (component)")
			for _, it := range c.Items {
				items = append(items, it.Name)
			}
		}
	}
	for _, it := range items {
		header = append(header, it)
	}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, lg := range report.Learners {
		row := []interface{}{lg.Email, lg.FirstName, lg.LastName, cell(lg.CompositeGrade)}
		compGrades := make(map[string]*float64, len(lg.Components))
		itemGrades := make(map[string]*float64)
		for _, c := range lg.Components {
			compGrades[c.Name] = c.Grade
			for _, it := range c.Items {
				itemGrades[it.Name] = it.Grade
			}
		}
		for _, name := range components {
			row = append(row, cell(compGrades[name]))
		}
		for _, name := range items {
			row = append(row, cell(itemGrades[name]))
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(reportSheet, axis, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func cell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
