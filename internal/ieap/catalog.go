// Package ieap holds the fixed IEAP level catalog: the weighted grading
// template of each level, level detection from course names, weight
// customization and structure validation.
package ieap

import (
	"fmt"
	"regexp"
	"strings"

	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

type levelEntry struct {
	level    model.Level
	label    string
	template model.Structure
}

func manual(name string, max float64) model.Item {
	return model.Item{Name: name, MaxGrade: max, ItemType: model.ItemTypeManual}
}

var catalog = []levelEntry{
	{
		level: model.LevelIEAP1,
		label: "IEAP-1 (Beginner)",
		template: model.Structure{
			Name:        "IEAP-1",
			Description: "Basic English Foundation Course",
			Difficulty:  "Beginner",
			Components: []model.Component{
				{Name: "Grammar & Vocabulary", Weight: 0.4, Items: []model.Item{
					manual("Basic Grammar Quiz 1", 50),
					manual("Basic Grammar Quiz 2", 50),
					manual("Vocabulary Test 1", 50),
					manual("Vocabulary Test 2", 50),
					manual("Grammar Final Exam", 100),
				}},
				{Name: "Speaking & Listening", Weight: 0.35, Items: []model.Item{
					manual("Pronunciation Practice", 50),
					manual("Basic Conversation", 75),
					manual("Listening Comprehension 1", 50),
					manual("Listening Comprehension 2", 50),
					manual("Speaking Assessment", 100),
				}},
				{Name: "Basic Writing", Weight: 0.25, Items: []model.Item{
					manual("Sentence Writing", 50),
					manual("Paragraph Writing 1", 75),
					manual("Paragraph Writing 2", 75),
					manual("Basic Essay", 100),
				}},
			},
		},
	},
	{
		level: model.LevelIEAP2,
		label: "IEAP-2 (Elementary)",
		template: model.Structure{
			Name:        "IEAP-2",
			Description: "Elementary English Course",
			Difficulty:  "Elementary",
			Components: []model.Component{
				{Name: "Grammar & Vocabulary", Weight: 0.35, Items: []model.Item{
					manual("Grammar Quiz 1", 75),
					manual("Grammar Quiz 2", 75),
					manual("Vocabulary Test 1", 75),
					manual("Vocabulary Test 2", 75),
					manual("Grammar Midterm", 100),
					manual("Grammar Final", 100),
				}},
				{Name: "Speaking & Listening", Weight: 0.35, Items: []model.Item{
					manual("Pronunciation Assessment", 75),
					manual("Dialogue Practice", 75),
					manual("Listening Test 1", 75),
					manual("Listening Test 2", 75),
					manual("Oral Presentation", 100),
				}},
				{Name: "Writing", Weight: 0.3, Items: []model.Item{
					manual("Paragraph Writing 1", 75),
					manual("Paragraph Writing 2", 75),
					manual("Short Essay 1", 100),
					manual("Short Essay 2", 100),
				}},
			},
		},
	},
	{
		level: model.LevelIEAP3,
		label: "IEAP-3 (Pre-Intermediate)",
		template: model.Structure{
			Name:        "IEAP-3",
			Description: "Pre-Intermediate English Course",
			Difficulty:  "Pre-Intermediate",
			Components: []model.Component{
				{Name: "Grammar", Weight: 0.3, Items: []model.Item{
					manual("Grammar Quiz 1", 100),
					manual("Grammar Quiz 2", 100),
					manual("Grammar Midterm", 100),
					manual("Grammar Final", 100),
				}},
				{Name: "Writing", Weight: 0.35, Items: []model.Item{
					manual("Essay 1: Descriptive", 100),
					manual("Essay 2: Narrative", 100),
					manual("Research Project", 150),
				}},
				{Name: "Speaking", Weight: 0.2, Items: []model.Item{
					manual("Individual Presentation", 100),
					manual("Group Discussion", 75),
					manual("Speaking Exam", 100),
				}},
				{Name: "Reading & Listening", Weight: 0.15, Items: []model.Item{
					manual("Reading Comprehension 1", 75),
					manual("Reading Comprehension 2", 75),
					manual("Listening Test", 100),
				}},
			},
		},
	},
	{
		level: model.LevelIEAP4,
		label: "IEAP-4 (Intermediate)",
		template: model.Structure{
			Name:        "IEAP-4",
			Description: "Intermediate English Course",
			Difficulty:  "Intermediate",
			Components: []model.Component{
				{Name: "Grammar", Weight: 0.5, Items: []model.Item{
					manual("Grammar Quiz 1", 100),
					manual("Grammar Quiz 2", 100),
					manual("Grammar Midterm Exam", 100),
					manual("Grammar Final Exam", 100),
				}},
				{Name: "Writing", Weight: 0.5, Items: []model.Item{
					manual("Writing Essay 1", 100),
					manual("Writing Essay 2", 100),
					manual("Writing Portfolio", 100),
				}},
			},
		},
	},
	{
		level: model.LevelIEAP5,
		label: "IEAP-5 (Upper-Intermediate)",
		template: model.Structure{
			Name:        "IEAP-5",
			Description: "Upper-Intermediate English Course",
			Difficulty:  "Upper-Intermediate",
			Components: []model.Component{
				{Name: "Academic Writing", Weight: 0.4, Items: []model.Item{
					manual("Argumentative Essay", 100),
					manual("Research Paper", 150),
					manual("Critical Analysis Essay", 100),
					manual("Writing Portfolio", 100),
				}},
				{Name: "Grammar & Language Use", Weight: 0.25, Items: []model.Item{
					manual("Advanced Grammar Test 1", 100),
					manual("Advanced Grammar Test 2", 100),
					manual("Language Use Final", 100),
				}},
				{Name: "Speaking & Presentation", Weight: 0.25, Items: []model.Item{
					manual("Academic Presentation", 100),
					manual("Debate Participation", 75),
					manual("Speaking Proficiency Test", 100),
				}},
				{Name: "Reading & Critical Thinking", Weight: 0.1, Items: []model.Item{
					manual("Critical Reading Test", 100),
					manual("Text Analysis Project", 100),
				}},
			},
		},
	},
	{
		level: model.LevelIEAP6,
		label: "IEAP-6 (Advanced)",
		template: model.Structure{
			Name:        "IEAP-6",
			Description: "Advanced English Course",
			Difficulty:  "Advanced",
			Components: []model.Component{
				{Name: "Academic Writing & Research", Weight: 0.45, Items: []model.Item{
					manual("Research Proposal", 100),
					manual("Literature Review", 150),
					manual("Research Paper Draft", 150),
					manual("Final Research Paper", 200),
					manual("Academic Writing Portfolio", 100),
				}},
				{Name: "Advanced Language Skills", Weight: 0.25, Items: []model.Item{
					manual("Advanced Grammar & Style", 100),
					manual("Academic Vocabulary Test", 100),
					manual("Language Proficiency Exam", 150),
				}},
				{Name: "Presentation & Communication", Weight: 0.2, Items: []model.Item{
					manual("Research Presentation", 150),
					manual("Academic Conference Simulation", 100),
					manual("Professional Communication", 75),
				}},
				{Name: "Critical Analysis", Weight: 0.1, Items: []model.Item{
					manual("Critical Reading Analysis", 100),
					manual("Media Analysis Project", 100),
				}},
			},
		},
	},
}

var levelInput = regexp.MustCompile(`^ieap[\s\-_]*([1-6])$`)

// ParseLevel accepts "ieap4", "IEAP-4" and "ieap 4".
func ParseLevel(s string) (model.Level, error) {
	m := levelInput.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return "", fmt.Errorf("%w: %q", errors.ErrUnknownLevel, s)
	}
	return model.Level("ieap" + m[1]), nil
}

func lookup(level model.Level) (levelEntry, error) {
	parsed, err := ParseLevel(string(level))
	if err != nil {
		return levelEntry{}, err
	}
	for _, e := range catalog {
		if e.level == parsed {
			return e, nil
		}
	}
	return levelEntry{}, fmt.Errorf("%w: %q", errors.ErrUnknownLevel, level)
}

// Get returns a private copy of the level's template.
func Get(level model.Level) (model.Structure, error) {
	e, err := lookup(level)
	if err != nil {
		return model.Structure{}, err
	}
	return e.template.Clone(), nil
}

func All() map[model.Level]model.Structure {
	out := make(map[model.Level]model.Structure, len(catalog))
	for _, e := range catalog {
		out[e.level] = e.template.Clone()
	}
	return out
}

func Levels() []model.Level {
	out := make([]model.Level, len(catalog))
	for i, e := range catalog {
		out[i] = e.level
	}
	return out
}

func AvailableLevels() map[model.Level]string {
	out := make(map[model.Level]string, len(catalog))
	for _, e := range catalog {
		out[e.level] = e.label
	}
	return out
}

func Description(level model.Level) (string, error) {
	e, err := lookup(level)
	if err != nil {
		return "", err
	}
	return e.template.Description, nil
}
