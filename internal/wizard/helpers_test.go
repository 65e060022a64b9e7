package wizard

import "github.com/segakai/segakai/internal/models"

func completeForm() models.FormState {
	return models.FormState{
		PersonalDetails: models.PersonalDetails{
			Age:                models.Ptr(29),
			Gender:             models.Ptr("female"),
			CulturalBackground: models.Ptr("asian"),
		},
		LifestyleDetails: models.LifestyleDetails{
			SleepQuality:      models.Ptr("good"),
			MentalHealth:      models.Ptr("average"),
			FamilyStatus:      models.Ptr("relationship"),
			LivingArrangement: models.Ptr("partner"),
			Workload:          models.Ptr("heavy"),
		},
		PhysicalAttributes: models.PhysicalAttributes{
			BodyDescription:   models.Ptr("average"),
			CurrentMealHabits: models.Ptr("irregular"),
			ExerciseKnowledge: models.Ptr("beginner"),
		},
		FitnessGoals: models.FitnessGoals{
			PrimaryGoal:          models.Ptr("lose-weight"),
			DesiredBodyShape:     models.Ptr("toned"),
			EfficiencyPreference: models.Ptr("quick-effective"),
		},
	}
}
