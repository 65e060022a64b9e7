package wizard

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/segakai/segakai/internal/models"
)

// Sequencer moves a Store through the catalog steps and keeps the Indicator
// in sync with the current step.
type Sequencer struct {
	mu        sync.Mutex
	store     *Store
	catalog   *Catalog
	indicator Indicator
}

// NewSequencer adopts the indicator's step when it parses to a step number in
// range, otherwise starts at step 1, and publishes the adopted step. A nil
// catalog means the default catalog; a nil indicator means an in-memory one.
func NewSequencer(store *Store, catalog *Catalog, indicator Indicator) *Sequencer {
	if catalog == nil {
		catalog = MustDefaultCatalog()
	}
	if indicator == nil {
		indicator = NewLocationIndicator("")
	}
	s := &Sequencer{store: store, catalog: catalog, indicator: indicator}

	step := 1
	if raw, ok := indicator.StepValue(); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && s.inRange(n) {
			step = n
		} else {
			slog.Debug("Sequencer: ignoring step indicator", "value", raw)
		}
	}
	s.mu.Lock()
	s.setStep(step)
	s.mu.Unlock()
	return s
}

// Catalog returns the catalog driving the sequencer.
func (s *Sequencer) Catalog() *Catalog {
	return s.catalog
}

// Store returns the underlying form store.
func (s *Sequencer) Store() *Store {
	return s.store
}

// CurrentStep returns the current step number. A store pointer outside the
// step range reads as the nearest valid step.
func (s *Sequencer) CurrentStep() int {
	step, _ := s.current()
	return step
}

// IsReview reports whether the wizard is on the review step.
func (s *Sequencer) IsReview() bool {
	return s.CurrentStep() == s.catalog.ReviewStep()
}

// Questions returns the question set for the current step.
func (s *Sequencer) Questions() Step {
	step, _ := s.catalog.Step(s.CurrentStep())
	return step
}

// Continue advances by one step.
func (s *Sequencer) Continue() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advance()
}

// Back retreats by one step.
func (s *Sequencer) Back() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, moved := s.current()
	if cur <= 1 {
		if moved {
			s.setStep(cur)
		}
		return cur, ErrNoPreviousStep
	}
	s.setStep(cur - 1)
	return cur - 1, nil
}

// JumpTo moves directly to step, clamped to the valid range, and returns the
// adopted step. Form data is not touched.
func (s *Sequencer) JumpTo(step int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step < 1 {
		step = 1
	}
	if review := s.catalog.ReviewStep(); step > review {
		step = review
	}
	s.setStep(step)
	return step
}

// Submit trims the text values of update and validates them for the current
// step. On success the update is merged and the wizard advances; otherwise a
// *ValidationError is returned and nothing changes.
func (s *Sequencer) Submit(update models.SectionUpdate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, moved := s.current()
	if moved {
		s.setStep(cur)
	}
	if cur == s.catalog.ReviewStep() {
		return cur, ErrReviewHasNoFields
	}
	update = Normalize(update)
	res := s.catalog.ValidateStep(cur, update)
	if !res.Valid {
		return cur, &ValidationError{Step: cur, Result: res}
	}
	s.store.UpdateFormData(update)
	return s.advance()
}

// Reset clears the form and returns to step 1.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Reset()
	s.setStep(1)
}

func (s *Sequencer) advance() (int, error) {
	cur, moved := s.current()
	if cur >= s.catalog.ReviewStep() {
		if moved {
			s.setStep(cur)
		}
		return cur, ErrNoNextStep
	}
	s.setStep(cur + 1)
	return cur + 1, nil
}

// current returns the store's step clamped into [1, ReviewStep] and whether
// clamping changed it.
func (s *Sequencer) current() (int, bool) {
	raw := s.store.CurrentStep()
	step := min(max(raw, 1), s.catalog.ReviewStep())
	return step, step != raw
}

func (s *Sequencer) inRange(step int) bool {
	return step >= 1 && step <= s.catalog.ReviewStep()
}

// setStep must be called with mu held.
func (s *Sequencer) setStep(step int) {
	s.store.SetCurrentStep(step)
	if err := s.indicator.Publish(step); err != nil {
		slog.Warn("Sequencer: failed to publish step indicator", "step", step, "error", err)
	}
}
