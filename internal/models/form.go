package models

import "strings"

// Section names one of the four groups of fields collected by the onboarding wizard.
type Section string

const (
	// SectionPersonal holds age, gender and cultural background.
	SectionPersonal Section = "personalDetails"
	// SectionLifestyle holds sleep, mental health, family, living and workload answers.
	SectionLifestyle Section = "lifestyleDetails"
	// SectionPhysical holds body description, meal habits and exercise knowledge.
	SectionPhysical Section = "physicalAttributes"
	// SectionGoals holds the fitness goals.
	SectionGoals Section = "fitnessGoals"
)

// Sections lists the sections in wizard order.
var Sections = []Section{SectionPersonal, SectionLifestyle, SectionPhysical, SectionGoals}

// Age bounds accepted by the wizard and the generation endpoint, both inclusive.
const (
	MinAge = 16
	MaxAge = 120
)

// SectionUpdate is a partial set of fields for exactly one section.
// Only the four section types in this package implement it.
type SectionUpdate interface {
	Section() Section
	isSectionUpdate()
}

// PersonalDetails is the first wizard step. Nil fields are unset.
type PersonalDetails struct {
	Age                *int    `json:"age,omitempty"`
	Gender             *string `json:"gender,omitempty"`
	CulturalBackground *string `json:"culturalBackground,omitempty"`
}

// LifestyleDetails is the second wizard step.
type LifestyleDetails struct {
	SleepQuality      *string `json:"sleepQuality,omitempty"`
	MentalHealth      *string `json:"mentalHealth,omitempty"`
	FamilyStatus      *string `json:"familyStatus,omitempty"`
	LivingArrangement *string `json:"livingArrangement,omitempty"`
	Workload          *string `json:"workload,omitempty"`
}

// PhysicalAttributes is the third wizard step.
type PhysicalAttributes struct {
	BodyDescription   *string `json:"bodyDescription,omitempty"`
	CurrentMealHabits *string `json:"currentMealHabits,omitempty"`
	ExerciseKnowledge *string `json:"exerciseKnowledge,omitempty"`
}

// FitnessGoals is the fourth wizard step.
type FitnessGoals struct {
	PrimaryGoal          *string `json:"primaryGoal,omitempty"`
	DesiredBodyShape     *string `json:"desiredBodyShape,omitempty"`
	EfficiencyPreference *string `json:"efficiencyPreference,omitempty"`
}

func (PersonalDetails) Section() Section    { return SectionPersonal }
func (LifestyleDetails) Section() Section   { return SectionLifestyle }
func (PhysicalAttributes) Section() Section { return SectionPhysical }
func (FitnessGoals) Section() Section       { return SectionGoals }

func (PersonalDetails) isSectionUpdate()    {}
func (LifestyleDetails) isSectionUpdate()   {}
func (PhysicalAttributes) isSectionUpdate() {}
func (FitnessGoals) isSectionUpdate()       {}

// FormState is the aggregate onboarding submission.
type FormState struct {
	PersonalDetails    PersonalDetails    `json:"personalDetails"`
	LifestyleDetails   LifestyleDetails   `json:"lifestyleDetails"`
	PhysicalAttributes PhysicalAttributes `json:"physicalAttributes"`
	FitnessGoals       FitnessGoals       `json:"fitnessGoals"`
}

// Clone returns a deep copy so callers cannot mutate the original through shared pointers.
func (f FormState) Clone() FormState {
	return FormState{
		PersonalDetails: PersonalDetails{
			Age:                cloneInt(f.PersonalDetails.Age),
			Gender:             cloneString(f.PersonalDetails.Gender),
			CulturalBackground: cloneString(f.PersonalDetails.CulturalBackground),
		},
		LifestyleDetails: LifestyleDetails{
			SleepQuality:      cloneString(f.LifestyleDetails.SleepQuality),
			MentalHealth:      cloneString(f.LifestyleDetails.MentalHealth),
			FamilyStatus:      cloneString(f.LifestyleDetails.FamilyStatus),
			LivingArrangement: cloneString(f.LifestyleDetails.LivingArrangement),
			Workload:          cloneString(f.LifestyleDetails.Workload),
		},
		PhysicalAttributes: PhysicalAttributes{
			BodyDescription:   cloneString(f.PhysicalAttributes.BodyDescription),
			CurrentMealHabits: cloneString(f.PhysicalAttributes.CurrentMealHabits),
			ExerciseKnowledge: cloneString(f.PhysicalAttributes.ExerciseKnowledge),
		},
		FitnessGoals: FitnessGoals{
			PrimaryGoal:          cloneString(f.FitnessGoals.PrimaryGoal),
			DesiredBodyShape:     cloneString(f.FitnessGoals.DesiredBodyShape),
			EfficiencyPreference: cloneString(f.FitnessGoals.EfficiencyPreference),
		},
	}
}

// Trimmed returns a deep copy with leading and trailing white space removed
// from every text value.
func (f FormState) Trimmed() FormState {
	c := f.Clone()
	for _, p := range []**string{
		&c.PersonalDetails.Gender, &c.PersonalDetails.CulturalBackground,
		&c.LifestyleDetails.SleepQuality, &c.LifestyleDetails.MentalHealth, &c.LifestyleDetails.FamilyStatus,
		&c.LifestyleDetails.LivingArrangement, &c.LifestyleDetails.Workload,
		&c.PhysicalAttributes.BodyDescription, &c.PhysicalAttributes.CurrentMealHabits, &c.PhysicalAttributes.ExerciseKnowledge,
		&c.FitnessGoals.PrimaryGoal, &c.FitnessGoals.DesiredBodyShape, &c.FitnessGoals.EfficiencyPreference,
	} {
		if *p != nil {
			**p = strings.TrimSpace(**p)
		}
	}
	return c
}

// UserDetails is the flattened generation payload: personal details inline,
// the other sections nested under their wire names.
type UserDetails struct {
	PersonalDetails
	Lifestyle          LifestyleDetails   `json:"lifestyle"`
	PhysicalAttributes PhysicalAttributes `json:"physicalAttributes"`
	Goals              FitnessGoals       `json:"goals"`
}

// Flatten converts the form into the generation payload shape.
func (f FormState) Flatten() UserDetails {
	c := f.Clone()
	return UserDetails{
		PersonalDetails:    c.PersonalDetails,
		Lifestyle:          c.LifestyleDetails,
		PhysicalAttributes: c.PhysicalAttributes,
		Goals:              c.FitnessGoals,
	}
}

// FormState converts a payload back into sections.
func (u UserDetails) FormState() FormState {
	return FormState{
		PersonalDetails:    u.PersonalDetails,
		LifestyleDetails:   u.Lifestyle,
		PhysicalAttributes: u.PhysicalAttributes,
		FitnessGoals:       u.Goals,
	}.Clone()
}

// GenerationRequest is the body of POST /api/generate.
type GenerationRequest struct {
	UserDetails *UserDetails `json:"userDetails"`
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
