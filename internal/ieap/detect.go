package ieap

import (
	"fmt"
	"regexp"
	"strings"

	"ieap-grade-sync/internal/model"
)

type levelRule struct {
	level    model.Level
	patterns []*regexp.Regexp
}

var detectRules = buildDetectRules()

func buildDetectRules() []levelRule {
	rules := make([]levelRule, 0, len(catalog))
	for i, e := range catalog {
		n := i + 1
		rules = append(rules, levelRule{
			level: e.level,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(fmt.Sprintf(`ieap\s*%d`, n)),
				regexp.MustCompile(fmt.Sprintf(`ieap-%d`, n)),
				regexp.MustCompile(fmt.Sprintf(`intensive.*english.*%d`, n)),
				regexp.MustCompile(fmt.Sprintf(`english.*level.*%d`, n)),
			},
		})
	}
	return rules
}

// DetectLevel matches a course name against each level's patterns in
// ascending level order. The first match wins.
func DetectLevel(courseName string) (model.Level, bool) {
	name := strings.ToLower(courseName)
	for _, rule := range detectRules {
		for _, p := range rule.patterns {
			if p.MatchString(name) {
				return rule.level, true
			}
		}
	}
	return "", false
}

// Preview summarizes a template for level detection responses.
func Preview(s model.Structure) *model.TemplatePreview {
	p := &model.TemplatePreview{
		Name:           s.Name,
		Description:    s.Description,
		ComponentCount: len(s.Components),
		Components:     make([]model.ComponentPreview, 0, len(s.Components)),
	}
	for _, c := range s.Components {
		p.Components = append(p.Components, model.ComponentPreview{
			Name:      c.Name,
			Weight:    c.Weight,
			ItemCount: len(c.Items),
		})
	}
	return p
}
