// Package wizard implements the onboarding wizard: the in-progress form, the
// step sequencer, per-step validation and assembly of the plan generation request.
//
// The package has no transport of its own. Hosts supply an Indicator for the
// restorable step location, an IdentityProvider and a PlanRequester.
package wizard

import (
	"sync"

	"github.com/segakai/segakai/internal/models"
)

// Store holds one in-progress FormState and the current step pointer.
// It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	form models.FormState
	step int
}

// NewStore returns an empty store at step 1.
func NewStore() *Store {
	return &Store{step: 1}
}

// UpdateFormData merges the set fields of update into its section. Unset
// fields and all other sections are left as they are.
func (s *Store) UpdateFormData(update models.SectionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch u := update.(type) {
	case models.PersonalDetails:
		p := &s.form.PersonalDetails
		mergeInt(&p.Age, u.Age)
		mergeString(&p.Gender, u.Gender)
		mergeString(&p.CulturalBackground, u.CulturalBackground)
	case models.LifestyleDetails:
		l := &s.form.LifestyleDetails
		mergeString(&l.SleepQuality, u.SleepQuality)
		mergeString(&l.MentalHealth, u.MentalHealth)
		mergeString(&l.FamilyStatus, u.FamilyStatus)
		mergeString(&l.LivingArrangement, u.LivingArrangement)
		mergeString(&l.Workload, u.Workload)
	case models.PhysicalAttributes:
		p := &s.form.PhysicalAttributes
		mergeString(&p.BodyDescription, u.BodyDescription)
		mergeString(&p.CurrentMealHabits, u.CurrentMealHabits)
		mergeString(&p.ExerciseKnowledge, u.ExerciseKnowledge)
	case models.FitnessGoals:
		g := &s.form.FitnessGoals
		mergeString(&g.PrimaryGoal, u.PrimaryGoal)
		mergeString(&g.DesiredBodyShape, u.DesiredBodyShape)
		mergeString(&g.EfficiencyPreference, u.EfficiencyPreference)
	}
}

// SetCurrentStep stores step as given. Bounds are enforced by the Sequencer.
func (s *Store) SetCurrentStep(step int) {
	s.mu.Lock()
	s.step = step
	s.mu.Unlock()
}

// CurrentStep returns the step pointer.
func (s *Store) CurrentStep() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// FormState returns a deep copy of the accumulated form.
func (s *Store) FormState() models.FormState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.form.Clone()
}

// Reset discards the form and returns to step 1.
func (s *Store) Reset() {
	s.mu.Lock()
	s.form = models.FormState{}
	s.step = 1
	s.mu.Unlock()
}

func mergeString(dst **string, src *string) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func mergeInt(dst **int, src *int) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
