package ieap

import (
	"fmt"
	"math"
	"strings"

	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

// Validate reports every problem with a structure rather than the first.
func Validate(s model.Structure) errors.ValidationErrors {
	var errs errors.ValidationErrors
	add := func(field string, value interface{}, msg string) {
		errs = append(errs, errors.ValidationError{
			Field:   field,
			Value:   value,
			Message: msg,
			Err:     errors.ErrSchemaValidation,
		})
	}

	if strings.TrimSpace(s.Name) == "" {
		add("name", nil, "structure name is required")
	}
	if len(s.Components) == 0 {
		add("components", nil, "structure must have at least one component")
		return errs
	}

	seen := make(map[string]bool, len(s.Components))
	for i, c := range s.Components {
		field := fmt.Sprintf("components[%d]", i)
		name := strings.TrimSpace(c.Name)
		switch {
		case name == "":
			add(field+".name", nil, "component name is required")
		case seen[strings.ToLower(name)]:
			add(field+".name", c.Name, "component name must be unique")
		default:
			seen[strings.ToLower(name)] = true
		}

		if c.Weight < 0 || c.Weight > 1 || math.IsNaN(c.Weight) {
			add(field+".weight", c.Weight, "component weight must be between 0 and 1")
		}

		if len(c.Items) == 0 {
			add(field+".subitems", nil, "component must have at least one item")
		}
		for j, it := range c.Items {
			itemField := fmt.Sprintf("%s.subitems[%d]", field, j)
			if strings.TrimSpace(it.Name) == "" {
				add(itemField+".name", nil, "item name is required")
			}
			if !(it.MaxGrade > 0) {
				add(itemField+".maxgrade", it.MaxGrade, "item max grade must be positive")
			}
			if it.ItemType != "" && it.ItemType != model.ItemTypeManual {
				add(itemField+".itemtype", it.ItemType, "only manual items are supported")
			}
		}
	}

	if total := s.TotalWeight(); math.Abs(total-1.0) > WeightTolerance {
		add("components", total, fmt.Sprintf("component weights must sum to 1.0 (current: %g)", total))
	}
	return errs
}
