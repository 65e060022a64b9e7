// Package onboard drives the onboarding wizard from a line-oriented terminal.
// It renders the current step's questions, feeds answers through the
// sequencer and hands the completed form to the assembler.
package onboard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/wizard"
)

// ErrQuit is returned when the user leaves the wizard before generating.
var ErrQuit = errors.New("onboarding cancelled")

// ErrInputClosed is returned when input ends before the wizard finishes.
var ErrInputClosed = errors.New("input closed before onboarding finished")

// Generator is the part of the assembler the runner needs.
type Generator interface {
	Generate(ctx context.Context, form models.FormState) (*wizard.GenerationResult, error)
}

// Runner hosts one wizard session on a reader/writer pair.
type Runner struct {
	in  *bufio.Scanner
	out io.Writer
	seq *wizard.Sequencer
	gen Generator
}

// NewRunner returns a Runner reading answers from in and writing prompts to out.
func NewRunner(in io.Reader, out io.Writer, seq *wizard.Sequencer, gen Generator) *Runner {
	return &Runner{in: bufio.NewScanner(in), out: out, seq: seq, gen: gen}
}

// Run loops until a plan is generated, the user quits or input ends. A plan
// that was generated but not saved is returned together with its
// *wizard.PersistenceError. If nobody is signed in, wizard.ErrUnauthenticated
// is returned and the form is kept where it was.
func (r *Runner) Run(ctx context.Context) (*wizard.GenerationResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			res  *wizard.GenerationResult
			done bool
			err  error
		)
		if r.seq.IsReview() {
			res, done, err = r.review(ctx)
		} else {
			err = r.questions()
		}
		if err != nil || done {
			return res, err
		}
	}
}

// questions asks every field of the current step and submits the answers.
func (r *Runner) questions() error {
	step := r.seq.Questions()
	total := r.seq.Catalog().TotalSteps()
	r.printf("\nStep %d of %d: %s\n", step.Number, total, step.Title)
	if step.Description != "" {
		r.printf("%s\n", step.Description)
	}
	r.printf("(blank keeps the current answer, \"back\" returns to the previous step, \"quit\" exits)\n")

	current := make(map[string]wizard.FieldValue)
	for _, v := range wizard.Values(wizard.SectionOf(r.seq.Store().FormState(), step.Section)) {
		current[v.Name] = v
	}

	answers := make(map[string]string, len(step.Fields))
	for _, f := range step.Fields {
		for {
			r.printField(f, current[f.Name])
			line, err := r.readLine()
			if err != nil {
				return err
			}
			switch strings.ToLower(line) {
			case "quit":
				return ErrQuit
			case "back":
				if _, err := r.seq.Back(); err != nil {
					r.printf("%s\n", err)
					continue
				}
				return nil
			}
			if line == "" {
				if cur := current[f.Name]; cur.Set() {
					answers[f.Name] = cur.String()
				}
				break
			}
			value, ok := resolveAnswer(f, line)
			if !ok {
				r.printf("%q is not one of the options for %s.\n", line, f.Label)
				continue
			}
			answers[f.Name] = value
			break
		}
	}

	update, err := wizard.BuildUpdate(step.Section, answers)
	if err != nil {
		r.printf("%s\n", err)
		return nil
	}
	if _, err := r.seq.Submit(update); err != nil {
		var verr *wizard.ValidationError
		if errors.As(err, &verr) {
			r.printProblems(step, verr.Result)
			return nil
		}
		return err
	}
	return nil
}

// review shows the collected answers and waits for a command.
func (r *Runner) review(ctx context.Context) (*wizard.GenerationResult, bool, error) {
	cat := r.seq.Catalog()
	form := r.seq.Store().FormState()
	reviewStep, _ := cat.Step(cat.ReviewStep())
	r.printf("\n%s\n", reviewStep.Title)
	if reviewStep.Description != "" {
		r.printf("%s\n", reviewStep.Description)
	}
	for _, section := range models.Sections {
		step, ok := cat.StepFor(section)
		if !ok {
			continue
		}
		r.printf("\n[%d] %s\n", step.Number, step.Title)
		for _, v := range wizard.Values(wizard.SectionOf(form, section)) {
			f, _ := step.Field(v.Name)
			shown := "-"
			if v.Set() {
				shown = f.OptionLabel(v.String())
			}
			r.printf("  %s: %s\n", f.Label, shown)
		}
	}
	r.printf("\nType \"generate\" to create your plan, \"edit N\" to change a step, \"back\" or \"quit\".\n> ")

	line, err := r.readLine()
	if err != nil {
		return nil, false, err
	}
	cmd, arg, _ := strings.Cut(strings.ToLower(line), " ")
	switch cmd {
	case "quit":
		return nil, false, ErrQuit
	case "back":
		_, _ = r.seq.Back()
		return nil, false, nil
	case "edit":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			r.printf("edit needs a step number, for example \"edit 2\".\n")
			return nil, false, nil
		}
		r.seq.JumpTo(n)
		return nil, false, nil
	case "generate":
		return r.generate(ctx, form)
	case "":
		return nil, false, nil
	default:
		r.printf("Unknown command %q.\n", line)
		return nil, false, nil
	}
}

func (r *Runner) generate(ctx context.Context, form models.FormState) (*wizard.GenerationResult, bool, error) {
	r.printf("Generating your plan, this can take a minute...\n")
	res, err := r.gen.Generate(ctx, form)

	var (
		verr    *wizard.ValidationError
		genErr  *wizard.GenerationError
		persErr *wizard.PersistenceError
	)
	switch {
	case err == nil:
		r.printPlan(res)
		r.printf("\nPlan saved with id %s.\n", res.PlanID)
		r.seq.Reset()
		return res, true, nil
	case errors.As(err, &verr):
		step, _ := r.seq.Catalog().Step(verr.Step)
		r.printProblems(step, verr.Result)
		r.seq.JumpTo(verr.Step)
		return nil, false, nil
	case errors.Is(err, wizard.ErrUnauthenticated):
		r.printf("You need to sign in first. Run `segakai login` and then `segakai onboard` again.\n")
		return nil, true, err
	case errors.As(err, &persErr):
		r.printPlan(res)
		r.printf("\nWarning: %s. Copy anything you need from above.\n", persErr.Error())
		return res, true, err
	case errors.As(err, &genErr):
		slog.Warn("Runner.generate: generation failed", "status", genErr.StatusCode, "error", genErr.Message)
		r.printf("%s\nType \"generate\" to try again.\n", genErr.Error())
		return nil, false, nil
	default:
		return nil, true, err
	}
}

func (r *Runner) printField(f wizard.Field, current wizard.FieldValue) {
	r.printf("\n%s", f.Label)
	switch f.Kind {
	case wizard.KindInteger:
		if f.Min != nil && f.Max != nil {
			r.printf(" (%d-%d)", *f.Min, *f.Max)
		}
	}
	if current.Set() {
		r.printf(" [%s]", f.OptionLabel(current.String()))
	}
	r.printf("\n")
	for i, o := range f.Options {
		r.printf("  %d) %s\n", i+1, o.Label)
	}
	r.printf("> ")
}

func (r *Runner) printProblems(step wizard.Step, res wizard.ValidationResult) {
	label := func(name string) string {
		if f, ok := step.Field(name); ok {
			return f.Label
		}
		return name
	}
	r.printf("\nPlease fix step %d before continuing:\n", step.Number)
	for _, name := range res.MissingFields {
		r.printf("  - %s is required\n", label(name))
	}
	for _, name := range res.InvalidFields {
		r.printf("  - %s is not valid\n", label(name))
	}
}

func (r *Runner) printPlan(res *wizard.GenerationResult) {
	content, err := res.Content()
	if err != nil {
		r.printf("\n%s\n", string(res.Plan))
		return
	}
	r.printf("\nWorkout plan\n  %s\n", content.WorkoutPlan.Summary)
	for _, day := range content.WorkoutPlan.WeeklySchedule {
		r.printf("  %s: %s (%d exercises)\n", day.Day, day.Focus, len(day.Exercises))
	}
	r.printf("\nDiet plan\n  %s\n", content.DietPlan.Summary)
	if content.DietPlan.DailyCalories != "" {
		r.printf("  Daily calories: %s\n", content.DietPlan.DailyCalories)
	}
	for _, meal := range content.DietPlan.MealPlan {
		r.printf("  %s\n", meal.Meal)
	}
	if content.AdditionalRecommendations != "" {
		r.printf("\n%s\n", content.AdditionalRecommendations)
	}
}

func (r *Runner) readLine() (string, error) {
	if !r.in.Scan() {
		if err := r.in.Err(); err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return "", ErrInputClosed
	}
	return strings.TrimSpace(r.in.Text()), nil
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// resolveAnswer maps a typed answer to a field value. Choice fields accept
// the option number, its value or its label.
func resolveAnswer(f wizard.Field, line string) (string, bool) {
	if f.Kind != wizard.KindChoice || len(f.Options) == 0 {
		return line, true
	}
	if n, err := strconv.Atoi(line); err == nil {
		if n >= 1 && n <= len(f.Options) {
			return f.Options[n-1].Value, true
		}
		return "", false
	}
	for _, o := range f.Options {
		if strings.EqualFold(o.Value, line) || strings.EqualFold(o.Label, line) {
			return o.Value, true
		}
	}
	return "", false
}
