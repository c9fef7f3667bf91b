package ieap

import (
	"math"
	"sort"
	"strings"

	"ieap-grade-sync/internal/model"
)

// WeightTolerance is the allowed distance of a component weight sum from 1.0.
const WeightTolerance = 0.001

// Customize applies weight overrides to a level's template and re-normalizes.
// Keys name a component directly ("Grammar") or with a _weight suffix
// ("grammar_weight"); underscores read as spaces and matching ignores case.
// Overrides for components the template lacks are ignored.
func Customize(level model.Level, overrides map[string]float64) (model.Structure, error) {
	s, err := Get(level)
	if err != nil {
		return model.Structure{}, err
	}
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		weight := overrides[key]
		name := overrideComponentName(key)
		for i := range s.Components {
			if strings.EqualFold(s.Components[i].Name, name) {
				s.Components[i].Weight = weight
				break
			}
		}
	}
	Normalize(&s)
	return s, nil
}

func overrideComponentName(key string) string {
	key = strings.TrimSpace(key)
	lower := strings.ToLower(key)
	if strings.HasSuffix(lower, "_weight") {
		key = key[:len(key)-len("_weight")]
	}
	return strings.ReplaceAll(key, "_", " ")
}

// Normalize scales component weights to sum to 1.0. It is a no-op when the
// total is zero or already within WeightTolerance.
func Normalize(s *model.Structure) {
	total := s.TotalWeight()
	if total <= 0 || math.Abs(total-1.0) <= WeightTolerance {
		return
	}
	for i := range s.Components {
		s.Components[i].Weight /= total
	}
}
