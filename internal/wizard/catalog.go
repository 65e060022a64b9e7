package wizard

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/segakai/segakai/internal/models"
)

//go:embed questions.yaml
var defaultCatalogYAML []byte

// FieldKind describes how a field is answered.
type FieldKind string

const (
	// KindInteger fields hold a whole number within optional bounds.
	KindInteger FieldKind = "integer"
	// KindChoice fields hold one of a fixed list of option values.
	KindChoice FieldKind = "choice"
	// KindText fields hold any non-empty text.
	KindText FieldKind = "text"
)

// Option is one allowed value of a choice field.
type Option struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// Field is a single question within a step.
type Field struct {
	Name    string    `yaml:"name"`
	Label   string    `yaml:"label"`
	Kind    FieldKind `yaml:"kind"`
	Min     *int      `yaml:"min,omitempty"`
	Max     *int      `yaml:"max,omitempty"`
	Options []Option  `yaml:"options,omitempty"`
}

// HasOption reports whether value is one of the field's options. Fields
// without options accept any value.
func (f Field) HasOption(value string) bool {
	if len(f.Options) == 0 {
		return true
	}
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// OptionLabel returns the display label for value, or value itself if unknown.
func (f Field) OptionLabel(value string) string {
	for _, o := range f.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

// Step is the question set shown for one step number.
type Step struct {
	Number      int            `yaml:"number"`
	Section     models.Section `yaml:"section"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Fields      []Field        `yaml:"fields"`
	Review      bool           `yaml:"-"`
}

// Field looks up a field by name.
func (s Step) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

type reviewDef struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Catalog is the ordered set of wizard steps.
type Catalog struct {
	Steps  []Step    `yaml:"steps"`
	Review reviewDef `yaml:"review"`
}

// ParseCatalog decodes and checks a YAML catalog. Steps must be numbered
// 1..n in order and cover every form section exactly once.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse question catalog: %w", err)
	}
	if len(c.Steps) != len(models.Sections) {
		return nil, fmt.Errorf("question catalog has %d steps, expected %d", len(c.Steps), len(models.Sections))
	}
	for i, step := range c.Steps {
		if step.Number != i+1 {
			return nil, fmt.Errorf("question catalog step %d is numbered %d", i+1, step.Number)
		}
		if step.Section != models.Sections[i] {
			return nil, fmt.Errorf("question catalog step %d has section %q, expected %q", step.Number, step.Section, models.Sections[i])
		}
		for _, f := range step.Fields {
			if _, ok := sectionFields[step.Section][f.Name]; !ok {
				return nil, fmt.Errorf("question catalog step %d has unknown field %q", step.Number, f.Name)
			}
			switch f.Kind {
			case KindInteger, KindText:
			case KindChoice:
				if len(f.Options) == 0 {
					return nil, fmt.Errorf("question catalog field %q has no options", f.Name)
				}
			default:
				return nil, fmt.Errorf("question catalog field %q has unknown kind %q", f.Name, f.Kind)
			}
		}
	}
	return &c, nil
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
	defaultCatalogErr  error
)

// DefaultCatalog returns the embedded question catalog.
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseCatalog(defaultCatalogYAML)
	})
	return defaultCatalog, defaultCatalogErr
}

// MustDefaultCatalog is DefaultCatalog for callers that treat a broken embedded
// catalog as a programming error.
func MustDefaultCatalog() *Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// TotalSteps is the number of data-collecting steps.
func (c *Catalog) TotalSteps() int {
	return len(c.Steps)
}

// ReviewStep is the step number of the review screen.
func (c *Catalog) ReviewStep() int {
	return len(c.Steps) + 1
}

// Step returns the question set for number. The review step has no fields.
func (c *Catalog) Step(number int) (Step, bool) {
	if number == c.ReviewStep() {
		return Step{Number: number, Title: c.Review.Title, Description: c.Review.Description, Review: true}, true
	}
	if number < 1 || number > len(c.Steps) {
		return Step{}, false
	}
	return c.Steps[number-1], true
}

// StepFor returns the step collecting section.
func (c *Catalog) StepFor(section models.Section) (Step, bool) {
	for _, s := range c.Steps {
		if s.Section == section {
			return s, true
		}
	}
	return Step{}, false
}
