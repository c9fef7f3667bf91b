package excel

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

const emailColumn = "email"

// ignoredColumns are identity columns an exported report carries. They are
// skipped so an export can be edited and imported back.
var ignoredColumns = map[string]bool{
	"first name":      true,
	"last name":       true,
	"composite grade": true,
	"user id":         true,
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads the first worksheet of an xlsx workbook.
func (p *Parser) Parse(ctx context.Context, data []byte) (*model.GradeSheet, error) {
	rows, err := readXLSX(data)
	if err != nil {
		return nil, err
	}
	return p.ParseRows(ctx, rows)
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrInvalidFileFormat, err.Error())
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrInvalidFileFormat
	}
	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrInvalidFileFormat, err.Error())
	}
	return rows, nil
}

// ParseRows reads a header row and data rows. The header must contain an
// "email" column, every other non-empty header names a grade item.
func (p *Parser) ParseRows(ctx context.Context, rows [][]string) (*model.GradeSheet, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: header and at least one data row required", errors.ErrInvalidFileFormat)
	}

	emailIdx := -1
	itemCols := make(map[int]string)
	sheet := &model.GradeSheet{}
	for i, col := range rows[0] {
		name := strings.TrimSpace(col)
		lower := strings.ToLower(name)
		switch {
		case name == "":
		case lower == emailColumn:
			emailIdx = i
		case ignoredColumns[lower] || strings.HasSuffix(lower, " (component)"):
		default:
			itemCols[i] = name
			sheet.Items = append(sheet.Items, name)
		}
	}
	if emailIdx < 0 {
		return nil, fmt.Errorf("%w: missing required column: %s", errors.ErrInvalidFileFormat, emailColumn)
	}

	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rowNum := i + 2
		if blank(row) {
			continue
		}
		parsed, err := p.parseRow(row, emailIdx, itemCols, rowNum)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", rowNum, err)
		}
		sheet.Rows = append(sheet.Rows, *parsed)
	}
	return sheet, nil
}

func (p *Parser) parseRow(row []string, emailIdx int, itemCols map[int]string, rowNum int) (*model.GradeSheetRow, error) {
	out := &model.GradeSheetRow{Row: rowNum, Scores: make(map[string]float64)}
	if emailIdx < len(row) {
		out.Email = strings.TrimSpace(row[emailIdx])
	}
	for idx, item := range itemCols {
		if idx >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, errors.ValidationError{Field: item, Value: cell, Message: "not a number", Err: errors.ErrInvalidGradeValue}
		}
		out.Scores[item] = v
	}
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
