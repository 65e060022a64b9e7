package genai

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/segakai/segakai/internal/models"
)

// SystemPrompt instructs the model to answer with the plan schema.
const SystemPrompt = `You are a professional fitness trainer and nutritionist. Your task is to create a personalized workout and diet plan based on the user's information.
The plan should be detailed, practical, and tailored to their specific goals, lifestyle, and physical attributes.
Format your response as JSON with the following structure:
{
  "workoutPlan": {
    "summary": "Brief overview of the workout plan and goals",
    "weeklySchedule": [
      {
        "day": "Monday",
        "focus": "Upper Body",
        "exercises": [
          {
            "name": "Exercise name",
            "sets": "Number of sets",
            "reps": "Number of repetitions or duration",
            "restPeriod": "Rest between sets",
            "notes": "Optional form tips or variations"
          }
        ]
      }
    ],
    "progressionPlan": "How to progress over time",
    "recommendations": "Additional recommendations based on user's experience level"
  },
  "dietPlan": {
    "summary": "Brief overview of the nutritional approach",
    "dailyCalories": "Estimated daily caloric intake",
    "macronutrients": {
      "protein": "Daily protein target",
      "carbs": "Daily carbohydrate target",
      "fats": "Daily fat target"
    },
    "mealPlan": [
      {
        "meal": "Breakfast",
        "options": [
          {
            "name": "Meal name",
            "ingredients": ["List of ingredients"],
            "preparation": "Brief preparation instructions",
            "nutritionalInfo": "Estimated calories and macros"
          }
        ]
      }
    ],
    "recommendations": "Additional dietary recommendations",
    "hydration": "Water intake recommendations"
  },
  "additionalRecommendations": "General lifestyle advice, sleep recommendations, etc."
}`

const notSpecified = "Not specified"

// BuildUserPrompt lists every collected field. Blank fields read "Not specified".
func BuildUserPrompt(d models.UserDetails) string {
	var b strings.Builder
	b.WriteString("I need a personalized workout and diet plan based on the following information:\n\n")

	age := notSpecified
	if d.Age != nil {
		age = strconv.Itoa(*d.Age)
	}
	fmt.Fprintf(&b, "Age: %s\n", age)
	fmt.Fprintf(&b, "Gender: %s\n", orNotSpecified(d.Gender))
	fmt.Fprintf(&b, "Cultural Background: %s\n\n", orNotSpecified(d.CulturalBackground))

	b.WriteString("Lifestyle:\n")
	fmt.Fprintf(&b, "- Sleep Quality: %s\n", orNotSpecified(d.Lifestyle.SleepQuality))
	fmt.Fprintf(&b, "- Mental Health: %s\n", orNotSpecified(d.Lifestyle.MentalHealth))
	fmt.Fprintf(&b, "- Family Status: %s\n", orNotSpecified(d.Lifestyle.FamilyStatus))
	fmt.Fprintf(&b, "- Living Arrangement: %s\n", orNotSpecified(d.Lifestyle.LivingArrangement))
	fmt.Fprintf(&b, "- Workload: %s\n\n", orNotSpecified(d.Lifestyle.Workload))

	b.WriteString("Physical Attributes:\n")
	fmt.Fprintf(&b, "- Body Description: %s\n", orNotSpecified(d.PhysicalAttributes.BodyDescription))
	fmt.Fprintf(&b, "- Current Meal Habits: %s\n", orNotSpecified(d.PhysicalAttributes.CurrentMealHabits))
	fmt.Fprintf(&b, "- Exercise Knowledge/Experience: %s\n\n", orNotSpecified(d.PhysicalAttributes.ExerciseKnowledge))

	b.WriteString("Fitness Goals:\n")
	fmt.Fprintf(&b, "- Primary Goal: %s\n", orNotSpecified(d.Goals.PrimaryGoal))
	fmt.Fprintf(&b, "- Desired Body Shape: %s\n", orNotSpecified(d.Goals.DesiredBodyShape))
	fmt.Fprintf(&b, "- Workout Duration Preference: %s\n\n", orNotSpecified(d.Goals.EfficiencyPreference))

	b.WriteString("Please provide a detailed workout plan and diet plan tailored specifically to this individual. ")
	b.WriteString("Take into account their lifestyle constraints, physical attributes, and goals to make the plan realistic and achievable.")
	return b.String()
}

func orNotSpecified(s *string) string {
	if v := strings.TrimSpace(models.StringValue(s)); v != "" {
		return v
	}
	return notSpecified
}
