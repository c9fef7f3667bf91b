package excel

import (
	"context"
	"fmt"
	"path"
	"strings"

	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	CSVContentType  = "text/csv"
)

// ParsingStrategy reads one upload format into a grade sheet.
type ParsingStrategy interface {
	Parse(ctx context.Context, data []byte) (*model.GradeSheet, error)
	Validate(ctx context.Context, sheet *model.GradeSheet) error
	ContentType() string
}

type sheetStrategy struct {
	contentType string
	read        func([]byte) ([][]string, error)
	parser      *Parser
	validator   *Validator
}

func newStrategy(contentType string, read func([]byte) ([][]string, error)) ParsingStrategy {
	return &sheetStrategy{
		contentType: contentType,
		read:        read,
		parser:      NewParser(),
		validator:   NewValidator(),
	}
}

func NewExcelStrategy() ParsingStrategy { return newStrategy(XLSXContentType, readXLSX) }

func NewCSVStrategy() ParsingStrategy { return newStrategy(CSVContentType, readCSV) }

// StrategyFor picks the strategy by file extension: .xlsx or .csv.
func StrategyFor(filename string) (ParsingStrategy, error) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".xlsx":
		return NewExcelStrategy(), nil
	case ".csv":
		return NewCSVStrategy(), nil
	default:
		return nil, fmt.Errorf("%w: %q is not an .xlsx or .csv file", errors.ErrInvalidFileFormat, path.Base(filename))
	}
}

func (s *sheetStrategy) Parse(ctx context.Context, data []byte) (*model.GradeSheet, error) {
	rows, err := s.read(data)
	if err != nil {
		return nil, err
	}
	return s.parser.ParseRows(ctx, rows)
}

func (s *sheetStrategy) Validate(ctx context.Context, sheet *model.GradeSheet) error {
	return s.validator.Validate(ctx, sheet)
}

func (s *sheetStrategy) ContentType() string { return s.contentType }
