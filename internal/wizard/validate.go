package wizard

import (
	"strings"

	"github.com/segakai/segakai/internal/models"
)

// ValidationResult lists the problems found for one step. Valid is true only
// when both lists are empty.
type ValidationResult struct {
	Valid         bool     `json:"valid"`
	MissingFields []string `json:"missingFields,omitempty"`
	InvalidFields []string `json:"invalidFields,omitempty"`
}

// ValidateStep checks fields against the default catalog.
func ValidateStep(step int, fields models.SectionUpdate) ValidationResult {
	return MustDefaultCatalog().ValidateStep(step, fields)
}

// ValidateStep checks that fields belongs to step and that every field the
// step collects is present and acceptable. Text values are trimmed, choice
// values must be listed options and integers must lie within the bounds.
func (c *Catalog) ValidateStep(step int, fields models.SectionUpdate) ValidationResult {
	def, ok := c.Step(step)
	if !ok || def.Review {
		return ValidationResult{InvalidFields: []string{"step"}}
	}
	if fields == nil || fields.Section() != def.Section {
		return ValidationResult{InvalidFields: []string{"section"}}
	}

	values := make(map[string]FieldValue)
	for _, v := range Values(fields) {
		values[v.Name] = v
	}

	var res ValidationResult
	for _, f := range def.Fields {
		v := values[f.Name]
		switch f.Kind {
		case KindInteger:
			if v.Number == nil {
				res.MissingFields = append(res.MissingFields, f.Name)
				continue
			}
			if (f.Min != nil && *v.Number < *f.Min) || (f.Max != nil && *v.Number > *f.Max) {
				res.InvalidFields = append(res.InvalidFields, f.Name)
			}
		default:
			if v.Text == nil || strings.TrimSpace(*v.Text) == "" {
				res.MissingFields = append(res.MissingFields, f.Name)
				continue
			}
			if !f.HasOption(strings.TrimSpace(*v.Text)) {
				res.InvalidFields = append(res.InvalidFields, f.Name)
			}
		}
	}
	res.Valid = len(res.MissingFields) == 0 && len(res.InvalidFields) == 0
	return res
}

// ValidateForm validates every section of form and returns the problems
// keyed by section. An empty map means the form is complete.
func (c *Catalog) ValidateForm(form models.FormState) map[models.Section]ValidationResult {
	problems := make(map[models.Section]ValidationResult)
	for _, step := range c.Steps {
		res := c.ValidateStep(step.Number, SectionOf(form, step.Section))
		if !res.Valid {
			problems[step.Section] = res
		}
	}
	return problems
}
