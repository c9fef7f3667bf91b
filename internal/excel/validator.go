package excel

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

type Validator struct {
	emailRegex *regexp.Regexp
}

func NewValidator() *Validator {
	return &Validator{
		emailRegex: regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
	}
}

// Validate checks sheet shape only. Item names and score ranges are checked
// against the gradebook at import time.
func (v *Validator) Validate(ctx context.Context, sheet *model.GradeSheet) error {
	if sheet == nil || len(sheet.Rows) == 0 {
		return fmt.Errorf("%w: sheet has no data rows", errors.ErrSchemaValidation)
	}
	if len(sheet.Items) == 0 {
		return fmt.Errorf("%w: sheet has no grade item columns", errors.ErrSchemaValidation)
	}

	var errs errors.ValidationErrors
	seenItems := make(map[string]bool, len(sheet.Items))
	for _, item := range sheet.Items {
		key := strings.ToLower(item)
		if seenItems[key] {
			errs = append(errs, errors.ValidationError{Field: "header", Value: item, Message: "duplicate item column", Err: errors.ErrSchemaValidation})
		}
		seenItems[key] = true
	}

	seenEmails := make(map[string]int, len(sheet.Rows))
	for _, row := range sheet.Rows {
		field := fmt.Sprintf("row %d", row.Row)
		email := strings.ToLower(row.Email)
		switch {
		case !v.emailRegex.MatchString(row.Email):
			errs = append(errs, errors.ValidationError{Field: field + " email", Value: row.Email, Message: "must be a valid email", Err: errors.ErrSchemaValidation})
		case seenEmails[email] > 0:
			errs = append(errs, errors.ValidationError{Field: field + " email", Value: row.Email, Message: fmt.Sprintf("duplicate of row %d", seenEmails[email]), Err: errors.ErrSchemaValidation})
		default:
			seenEmails[email] = row.Row
		}
		for item, score := range row.Scores {
			if score < 0 || math.IsNaN(score) || math.IsInf(score, 0) {
				errs = append(errs, errors.ValidationError{Field: field + " " + item, Value: score, Message: "must be a non-negative number", Err: errors.ErrInvalidGradeValue})
			}
		}
	}
	return errs.Err()
}
