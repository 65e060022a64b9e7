package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/segakai/segakai/internal/models"
)

// IdentityProvider reports the signed-in user. A nil identity with a nil
// error means nobody is signed in.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (*models.Identity, error)
}

// PlanRequester sends one generation request to the generation endpoint.
type PlanRequester interface {
	RequestPlan(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error)
}

// GenerationResult is a generated plan as returned by the endpoint.
type GenerationResult struct {
	PlanID    string
	Plan      json.RawMessage
	Persisted bool
	Warning   string
}

// Content decodes the plan into its typed view.
func (r *GenerationResult) Content() (models.PlanContent, error) {
	return models.ParsePlanContent(r.Plan)
}

// Assembler turns a completed form into exactly one generation request per
// Generate call. Concurrent calls are not deduplicated; hosts keep their
// trigger disabled while a call is running.
type Assembler struct {
	identity  IdentityProvider
	requester PlanRequester
	catalog   *Catalog
}

// NewAssembler returns an Assembler. A nil catalog means the default catalog.
func NewAssembler(identity IdentityProvider, requester PlanRequester, catalog *Catalog) *Assembler {
	if catalog == nil {
		catalog = MustDefaultCatalog()
	}
	return &Assembler{identity: identity, requester: requester, catalog: catalog}
}

// Generate checks the caller's identity, then submits form. It returns
// ErrUnauthenticated without issuing a request when nobody is signed in, a
// *ValidationError for an incomplete form and a *GenerationError for any
// upstream failure. A plan that was generated but not stored is returned
// together with a *PersistenceError.
func (a *Assembler) Generate(ctx context.Context, form models.FormState) (*GenerationResult, error) {
	id, err := a.identity.CurrentIdentity(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}
	if id == nil {
		return nil, ErrUnauthenticated
	}

	if problems := a.catalog.ValidateForm(form); len(problems) > 0 {
		step := a.firstProblemStep(problems)
		return nil, &ValidationError{Step: step.Number, Result: problems[step.Section]}
	}

	details := form.Flatten()
	slog.Debug("Assembler.Generate: requesting plan", "user_id", id.UserID)
	resp, err := a.requester.RequestPlan(ctx, models.GenerationRequest{UserDetails: &details})
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return nil, genErr
		}
		if errors.Is(err, ErrUnauthenticated) {
			return nil, ErrUnauthenticated
		}
		return nil, &GenerationError{Message: err.Error(), Err: err}
	}
	if resp == nil || len(resp.Plan) == 0 {
		return nil, &GenerationError{Message: "generation endpoint returned no plan"}
	}

	result := &GenerationResult{
		PlanID:    resp.PlanID,
		Plan:      resp.Plan,
		Persisted: resp.Persisted == nil || *resp.Persisted,
		Warning:   resp.Warning,
	}
	if !result.Persisted {
		slog.Warn("Assembler.Generate: plan was not persisted", "user_id", id.UserID, "warning", resp.Warning)
		return result, &PersistenceError{Warning: resp.Warning}
	}
	return result, nil
}

func (a *Assembler) firstProblemStep(problems map[models.Section]ValidationResult) Step {
	sections := make([]Step, 0, len(problems))
	for section := range problems {
		if step, ok := a.catalog.StepFor(section); ok {
			sections = append(sections, step)
		}
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].Number < sections[j].Number })
	return sections[0]
}
