package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segakai/segakai/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)
	assert.Equal(t, 4, c.TotalSteps())
	assert.Equal(t, 5, c.ReviewStep())

	for i, section := range models.Sections {
		step, ok := c.Step(i + 1)
		require.True(t, ok)
		assert.Equal(t, section, step.Section)
		assert.NotEmpty(t, step.Fields)
	}

	review, ok := c.Step(5)
	require.True(t, ok)
	assert.True(t, review.Review)
	assert.Empty(t, review.Fields)

	_, ok = c.Step(6)
	assert.False(t, ok)

	personal, _ := c.Step(1)
	age, ok := personal.Field("age")
	require.True(t, ok)
	assert.Equal(t, KindInteger, age.Kind)
	assert.Equal(t, models.MinAge, *age.Min)
	assert.Equal(t, models.MaxAge, *age.Max)

	gender, _ := personal.Field("gender")
	assert.True(t, gender.HasOption("non-binary"))
	assert.False(t, gender.HasOption("unknown"))
	assert.Equal(t, "Prefer not to say", gender.OptionLabel("prefer-not-to-say"))
}

func TestParseCatalogRejectsBrokenCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "steps: [unterminated"},
		{"too few steps", "steps:\n  - number: 1\n    section: personalDetails\n"},
		{"wrong order", `
steps:
  - {number: 1, section: lifestyleDetails}
  - {number: 2, section: personalDetails}
  - {number: 3, section: physicalAttributes}
  - {number: 4, section: fitnessGoals}
`},
		{"unknown field", `
steps:
  - number: 1
    section: personalDetails
    fields: [{name: height, kind: integer}]
  - {number: 2, section: lifestyleDetails}
  - {number: 3, section: physicalAttributes}
  - {number: 4, section: fitnessGoals}
`},
		{"choice without options", `
steps:
  - number: 1
    section: personalDetails
    fields: [{name: gender, kind: choice}]
  - {number: 2, section: lifestyleDetails}
  - {number: 3, section: physicalAttributes}
  - {number: 4, section: fitnessGoals}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestBuildUpdate(t *testing.T) {
	u, err := BuildUpdate(models.SectionPersonal, map[string]string{"age": " 34 ", "gender": "male", "culturalBackground": ""})
	require.NoError(t, err)
	p := u.(models.PersonalDetails)
	assert.Equal(t, 34, *p.Age)
	assert.Equal(t, "male", *p.Gender)
	assert.Nil(t, p.CulturalBackground, "blank answers stay unset")

	_, err = BuildUpdate(models.SectionPersonal, map[string]string{"age": "thirty"})
	assert.Error(t, err)

	_, err = BuildUpdate(models.SectionGoals, map[string]string{"age": "30"})
	assert.Error(t, err, "field from another section")

	u, err = BuildUpdate(models.SectionLifestyle, map[string]string{"workload": "light"})
	require.NoError(t, err)
	assert.Equal(t, models.SectionLifestyle, u.Section())
}
