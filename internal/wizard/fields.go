package wizard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/segakai/segakai/internal/models"
)

// FieldValue is one field of a section update. Exactly one of Text and
// Number is meaningful, depending on the field; both nil means unset.
type FieldValue struct {
	Name   string
	Text   *string
	Number *int
}

// Set reports whether the field carries a value.
func (v FieldValue) Set() bool {
	return v.Text != nil || v.Number != nil
}

// String renders the value for display.
func (v FieldValue) String() string {
	switch {
	case v.Number != nil:
		return strconv.Itoa(*v.Number)
	case v.Text != nil:
		return *v.Text
	default:
		return ""
	}
}

var sectionFields = map[models.Section]map[string]struct{}{
	models.SectionPersonal:  {"age": {}, "gender": {}, "culturalBackground": {}},
	models.SectionLifestyle: {"sleepQuality": {}, "mentalHealth": {}, "familyStatus": {}, "livingArrangement": {}, "workload": {}},
	models.SectionPhysical:  {"bodyDescription": {}, "currentMealHabits": {}, "exerciseKnowledge": {}},
	models.SectionGoals:     {"primaryGoal": {}, "desiredBodyShape": {}, "efficiencyPreference": {}},
}

// Values lists the fields of update in declaration order.
func Values(update models.SectionUpdate) []FieldValue {
	switch u := update.(type) {
	case models.PersonalDetails:
		return []FieldValue{
			{Name: "age", Number: u.Age},
			{Name: "gender", Text: u.Gender},
			{Name: "culturalBackground", Text: u.CulturalBackground},
		}
	case models.LifestyleDetails:
		return []FieldValue{
			{Name: "sleepQuality", Text: u.SleepQuality},
			{Name: "mentalHealth", Text: u.MentalHealth},
			{Name: "familyStatus", Text: u.FamilyStatus},
			{Name: "livingArrangement", Text: u.LivingArrangement},
			{Name: "workload", Text: u.Workload},
		}
	case models.PhysicalAttributes:
		return []FieldValue{
			{Name: "bodyDescription", Text: u.BodyDescription},
			{Name: "currentMealHabits", Text: u.CurrentMealHabits},
			{Name: "exerciseKnowledge", Text: u.ExerciseKnowledge},
		}
	case models.FitnessGoals:
		return []FieldValue{
			{Name: "primaryGoal", Text: u.PrimaryGoal},
			{Name: "desiredBodyShape", Text: u.DesiredBodyShape},
			{Name: "efficiencyPreference", Text: u.EfficiencyPreference},
		}
	}
	return nil
}

// SectionOf returns the section of form as an update value.
func SectionOf(form models.FormState, section models.Section) models.SectionUpdate {
	switch section {
	case models.SectionPersonal:
		return form.PersonalDetails
	case models.SectionLifestyle:
		return form.LifestyleDetails
	case models.SectionPhysical:
		return form.PhysicalAttributes
	case models.SectionGoals:
		return form.FitnessGoals
	}
	return nil
}

// Normalize returns a copy of update with its text values trimmed.
func Normalize(update models.SectionUpdate) models.SectionUpdate {
	if update == nil {
		return nil
	}
	var form models.FormState
	switch u := update.(type) {
	case models.PersonalDetails:
		form.PersonalDetails = u
	case models.LifestyleDetails:
		form.LifestyleDetails = u
	case models.PhysicalAttributes:
		form.PhysicalAttributes = u
	case models.FitnessGoals:
		form.FitnessGoals = u
	}
	return SectionOf(form.Trimmed(), update.Section())
}

// BuildUpdate converts raw answers keyed by field name into a section update.
// Blank answers leave the field unset; integer fields must parse.
func BuildUpdate(section models.Section, answers map[string]string) (models.SectionUpdate, error) {
	for name := range answers {
		if _, ok := sectionFields[section][name]; !ok {
			return nil, fmt.Errorf("field %q does not belong to section %s", name, section)
		}
	}
	text := func(name string) *string {
		v, ok := answers[name]
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		v = strings.TrimSpace(v)
		return &v
	}

	switch section {
	case models.SectionPersonal:
		u := models.PersonalDetails{Gender: text("gender"), CulturalBackground: text("culturalBackground")}
		if raw := text("age"); raw != nil {
			age, err := strconv.Atoi(*raw)
			if err != nil {
				return nil, fmt.Errorf("age must be a whole number: %w", err)
			}
			u.Age = &age
		}
		return u, nil
	case models.SectionLifestyle:
		return models.LifestyleDetails{
			SleepQuality:      text("sleepQuality"),
			MentalHealth:      text("mentalHealth"),
			FamilyStatus:      text("familyStatus"),
			LivingArrangement: text("livingArrangement"),
			Workload:          text("workload"),
		}, nil
	case models.SectionPhysical:
		return models.PhysicalAttributes{
			BodyDescription:   text("bodyDescription"),
			CurrentMealHabits: text("currentMealHabits"),
			ExerciseKnowledge: text("exerciseKnowledge"),
		}, nil
	case models.SectionGoals:
		return models.FitnessGoals{
			PrimaryGoal:          text("primaryGoal"),
			DesiredBodyShape:     text("desiredBodyShape"),
			EfficiencyPreference: text("efficiencyPreference"),
		}, nil
	}
	return nil, fmt.Errorf("unknown section %q", section)
}
