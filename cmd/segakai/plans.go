package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/segakai/segakai/internal/client"
	"github.com/segakai/segakai/internal/models"
)

func newPlansCmd(cfg *Config) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "plans [id]",
		Short: "List your plans, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				plans, err := c.ListPlans(cmd.Context())
				if err != nil {
					return err
				}
				return printPlanList(out, plans)
			}
			plan, err := c.GetPlan(cmd.Context(), args[0])
			if client.IsNotFound(err) {
				return fmt.Errorf("plan %s not found", args[0])
			}
			if err != nil {
				return err
			}
			if raw {
				var buf bytes.Buffer
				if err := json.Indent(&buf, plan.PlanData, "", "  "); err != nil {
					return fmt.Errorf("failed to format plan: %w", err)
				}
				buf.WriteByte('\n')
				_, err := buf.WriteTo(out)
				return err
			}
			return printPlan(out, plan)
		},
	}
	cmd.Flags().BoolVar(&raw, "json", false, "print the plan as JSON")
	return cmd
}

func printPlanList(out io.Writer, plans []models.Plan) error {
	if len(plans) == 0 {
		fmt.Fprintln(out, "No plans yet. Run `segakai onboard` to create one.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSUMMARY")
	for _, p := range plans {
		summary := ""
		if content, err := models.ParsePlanContent(p.PlanData); err == nil {
			summary = truncate(string(content.WorkoutPlan.Summary), 60)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.CreatedAt.Local().Format(time.DateTime), summary)
	}
	return tw.Flush()
}

func printPlan(out io.Writer, plan *models.Plan) error {
	content, err := models.ParsePlanContent(plan.PlanData)
	if err != nil {
		return fmt.Errorf("failed to read plan %s: %w", plan.ID, err)
	}
	w := content.WorkoutPlan
	fmt.Fprintf(out, "Plan %s (%s)\n\nWORKOUT\n%s\n", plan.ID, plan.CreatedAt.Local().Format(time.DateTime), w.Summary)
	for _, day := range w.WeeklySchedule {
		fmt.Fprintf(out, "\n%s: %s\n", day.Day, day.Focus)
		for _, ex := range day.Exercises {
			fmt.Fprintf(out, "  - %s", ex.Name)
			if ex.Sets != "" || ex.Reps != "" {
				fmt.Fprintf(out, " %sx%s", ex.Sets, ex.Reps)
			}
			if ex.RestPeriod != "" {
				fmt.Fprintf(out, ", rest %s", ex.RestPeriod)
			}
			fmt.Fprintln(out)
		}
	}
	if w.ProgressionPlan != "" {
		fmt.Fprintf(out, "\nProgression: %s\n", w.ProgressionPlan)
	}

	d := content.DietPlan
	fmt.Fprintf(out, "\nDIET\n%s\n", d.Summary)
	if d.DailyCalories != "" {
		fmt.Fprintf(out, "Daily calories: %s (protein %s, carbs %s, fats %s)\n",
			d.DailyCalories, d.Macronutrients.Protein, d.Macronutrients.Carbs, d.Macronutrients.Fats)
	}
	for _, meal := range d.MealPlan {
		fmt.Fprintf(out, "\n%s\n", meal.Meal)
		for _, opt := range meal.Options {
			fmt.Fprintf(out, "  - %s\n", opt.Name)
		}
	}
	if d.Hydration != "" {
		fmt.Fprintf(out, "\nHydration: %s\n", d.Hydration)
	}
	if content.AdditionalRecommendations != "" {
		fmt.Fprintf(out, "\n%s\n", content.AdditionalRecommendations)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
