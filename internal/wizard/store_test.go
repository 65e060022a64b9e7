package wizard

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/segakai/segakai/internal/models"
)

func TestStoreUpdateFormDataMergesOnlyOwnSection(t *testing.T) {
	updates := []models.SectionUpdate{
		models.PersonalDetails{Age: models.Ptr(40)},
		models.LifestyleDetails{Workload: models.Ptr("light")},
		models.PhysicalAttributes{ExerciseKnowledge: models.Ptr("advanced")},
		models.FitnessGoals{PrimaryGoal: models.Ptr("maintain")},
	}
	for _, update := range updates {
		t.Run(string(update.Section()), func(t *testing.T) {
			s := NewStore()
			for _, section := range models.Sections {
				s.UpdateFormData(SectionOf(completeForm(), section))
			}
			before := s.FormState()

			s.UpdateFormData(update)
			after := s.FormState()

			for _, section := range models.Sections {
				diff := cmp.Diff(SectionOf(before, section), SectionOf(after, section))
				if section == update.Section() {
					assert.NotEmpty(t, diff, "submitted section should change")
					continue
				}
				assert.Empty(t, diff, "section %s changed", section)
			}
		})
	}
}

func TestStoreUpdateFormDataLeavesAbsentFields(t *testing.T) {
	s := NewStore()
	s.UpdateFormData(models.PersonalDetails{Age: models.Ptr(30), Gender: models.Ptr("male")})
	s.UpdateFormData(models.PersonalDetails{CulturalBackground: models.Ptr("european")})

	want := models.PersonalDetails{
		Age:                models.Ptr(30),
		Gender:             models.Ptr("male"),
		CulturalBackground: models.Ptr("european"),
	}
	if diff := cmp.Diff(want, s.FormState().PersonalDetails); diff != "" {
		t.Errorf("personal details mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreResubmitOverwritesSubmittedFields(t *testing.T) {
	s := NewStore()
	s.UpdateFormData(models.FitnessGoals{PrimaryGoal: models.Ptr("lose-weight"), DesiredBodyShape: models.Ptr("slim")})
	s.UpdateFormData(models.FitnessGoals{PrimaryGoal: models.Ptr("build-muscle")})

	goals := s.FormState().FitnessGoals
	assert.Equal(t, "build-muscle", *goals.PrimaryGoal)
	assert.Equal(t, "slim", *goals.DesiredBodyShape)
}

func TestStoreFormStateIsACopy(t *testing.T) {
	s := NewStore()
	s.UpdateFormData(models.PersonalDetails{Age: models.Ptr(30)})

	snapshot := s.FormState()
	*snapshot.PersonalDetails.Age = 99

	assert.Equal(t, 30, *s.FormState().PersonalDetails.Age)
}

func TestStoreSetCurrentStepStoresAnyValue(t *testing.T) {
	s := NewStore()
	assert.Equal(t, 1, s.CurrentStep())
	for _, step := range []int{0, -3, 99} {
		s.SetCurrentStep(step)
		assert.Equal(t, step, s.CurrentStep())
	}
}

func TestStoreReset(t *testing.T) {
	s := NewStore()
	s.UpdateFormData(models.PersonalDetails{Age: models.Ptr(30)})
	s.SetCurrentStep(4)
	s.Reset()

	assert.Equal(t, 1, s.CurrentStep())
	assert.Empty(t, cmp.Diff(models.FormState{}, s.FormState()))
}
